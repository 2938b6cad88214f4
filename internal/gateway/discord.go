package gateway

import (
	"context"
	"strings"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/rahul/commander/internal/agent"
	"github.com/rahul/commander/internal/observability"
)

// DiscordGateway answers direct messages, mentions, and every message in
// the configured channel.
type DiscordGateway struct {
	token   string
	channel string
	brain   agent.Brain
	logger  *observability.Logger
	session *discordgo.Session

	closeOnce sync.Once
	closeErr  error
}

func NewDiscordGateway(token, channel string, brain agent.Brain, logger *observability.Logger) *DiscordGateway {
	return &DiscordGateway{token: token, channel: channel, brain: brain, logger: logger}
}

func (d *DiscordGateway) Name() string { return "dc" }

func (d *DiscordGateway) Start(ctx context.Context) error {
	session, err := discordgo.New("Bot " + d.token)
	if err != nil {
		return err
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentsDirectMessages | discordgo.IntentsMessageContent
	d.session = session

	session.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		if m.Author == nil || m.Author.Bot {
			return
		}
		botID := ""
		if s.State != nil && s.State.User != nil {
			botID = s.State.User.ID
		}
		text, ok := d.accept(botID, m.Message)
		if !ok {
			return
		}
		d.logger.Infof("[discord %s] %s", m.Author.Username, text)

		chatID := ChatID(d.Name(), m.ChannelID)
		reply, err := d.brain.Think(ctx, chatID, text)
		if err != nil {
			d.logger.Errorf("Error thinking: %v", err)
			reply = "I'm having trouble thinking right now..."
		}
		if reply == "" {
			return
		}
		if err := d.Send(chatID, reply); err != nil {
			d.logger.Errorf("discord send: %v", err)
		}
	})

	if err := session.Open(); err != nil {
		return err
	}

	<-ctx.Done()
	return d.Stop()
}

// accept decides whether m is addressed to the bot and returns the text
// with any mention of the bot removed.
func (d *DiscordGateway) accept(botID string, m *discordgo.Message) (string, bool) {
	mentioned := false
	for _, u := range m.Mentions {
		if u != nil && u.ID == botID {
			mentioned = true
			break
		}
	}
	text := m.Content
	if botID != "" {
		text = strings.NewReplacer("<@"+botID+">", "", "<@!"+botID+">", "").Replace(text)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", false
	}

	switch {
	case m.GuildID == "":
		return text, true
	case d.channel != "" && m.ChannelID == d.channel:
		return text, true
	default:
		return text, mentioned
	}
}

func (d *DiscordGateway) Send(chatID string, text string) error {
	if d.session == nil {
		return ErrNotStarted
	}
	_, channelID, _ := SplitChatID(chatID)
	_, err := d.session.ChannelMessageSend(channelID, Sanitize(text))
	return err
}

func (d *DiscordGateway) Stop() error {
	if d.session == nil {
		return nil
	}
	d.closeOnce.Do(func() { d.closeErr = d.session.Close() })
	return d.closeErr
}
