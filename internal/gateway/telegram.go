package gateway

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rahul/commander/internal/agent"
	"github.com/rahul/commander/internal/observability"
)

type TelegramGateway struct {
	Bot    *tgbotapi.BotAPI
	Brain  agent.Brain
	Logger *observability.Logger

	stopOnce sync.Once
}

func NewTelegramGateway(token string, brain agent.Brain, logger *observability.Logger) (*TelegramGateway, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	return newTelegramGateway(bot, brain, logger), nil
}

func newTelegramGateway(bot *tgbotapi.BotAPI, brain agent.Brain, logger *observability.Logger) *TelegramGateway {
	logger.Infof("Authorized on account %s", bot.Self.UserName)
	return &TelegramGateway{
		Bot:    bot,
		Brain:  brain,
		Logger: logger,
	}
}

func (tg *TelegramGateway) Name() string { return "tg" }

func (tg *TelegramGateway) Start(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := tg.Bot.GetUpdatesChan(u)
	go func() {
		<-ctx.Done()
		tg.Stop()
	}()

	for update := range updates {
		if update.Message == nil || update.Message.Text == "" {
			continue
		}

		tg.Logger.Infof("[%s] %s", update.Message.From.UserName, update.Message.Text)

		chatID := ChatID(tg.Name(), strconv.FormatInt(update.Message.Chat.ID, 10))
		response, err := tg.Brain.Think(ctx, chatID, update.Message.Text)
		if err != nil {
			tg.Logger.Errorf("Error thinking: %v", err)
			response = "I'm having trouble thinking right now..."
		}
		if response == "" {
			continue
		}
		if err := tg.Send(chatID, response); err != nil {
			tg.Logger.Errorf("telegram send: %v", err)
		}
	}
	return nil
}

func (tg *TelegramGateway) Send(chatID string, text string) error {
	_, raw, _ := SplitChatID(chatID)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id == 0 {
		return fmt.Errorf("invalid chat ID: %s", chatID)
	}

	// plain text: item ids such as minecraft:oak_log break Markdown
	msg := tgbotapi.NewMessage(id, Sanitize(text))
	_, err = tg.Bot.Send(msg)
	return err
}

// Stop may be called more than once.
func (tg *TelegramGateway) Stop() error {
	tg.stopOnce.Do(tg.Bot.StopReceivingUpdates)
	return nil
}
