package gateway

import (
	"context"
	"strings"
	"sync/atomic"

	"github.com/rahul/commander/internal/agent"
	"github.com/rahul/commander/internal/observability"
)

// Sayer writes into the game chat.
type Sayer interface {
	Say(player, text string) error
}

// GameGateway takes instructions typed in the game chat. Messages must
// start with the trigger word, e.g. "ai mine 10 coal".
type GameGateway struct {
	sayer   Sayer
	brain   agent.Brain
	trigger string
	logger  *observability.Logger
	ctx     atomic.Pointer[context.Context]
}

func NewGameGateway(sayer Sayer, brain agent.Brain, trigger string, logger *observability.Logger) *GameGateway {
	if trigger == "" {
		trigger = "ai"
	}
	return &GameGateway{sayer: sayer, brain: brain, trigger: strings.TrimPrefix(strings.ToLower(trigger), "/"), logger: logger}
}

func (g *GameGateway) Name() string { return "game" }

// Start only records ctx for Handle; chat arrives through the bridge.
func (g *GameGateway) Start(ctx context.Context) error {
	g.ctx.Store(&ctx)
	<-ctx.Done()
	return nil
}

// Handle is the bridge's chat callback. It returns at once so the bridge
// read loop keeps receiving status while the instruction is planned.
func (g *GameGateway) Handle(player, text string) {
	instruction, ok := g.strip(text)
	if !ok {
		return
	}
	go g.think(player, instruction)
}

func (g *GameGateway) think(player, instruction string) {
	ctx := context.Background()
	if p := g.ctx.Load(); p != nil {
		ctx = *p
	}
	chatID := ChatID(g.Name(), player)
	reply, err := g.brain.Think(ctx, chatID, instruction)
	if err != nil {
		g.logger.Errorf("Error thinking: %v", err)
		reply = "Something went wrong, see the logs."
	}
	if reply == "" {
		return
	}
	if err := g.Send(chatID, reply); err != nil {
		g.logger.Warnf("game chat: %v", err)
	}
}

func (g *GameGateway) strip(text string) (string, bool) {
	fields := strings.Fields(text)
	if len(fields) < 2 || strings.ToLower(strings.TrimPrefix(fields[0], "/")) != g.trigger {
		return "", false
	}
	return strings.Join(fields[1:], " "), true
}

func (g *GameGateway) Send(chatID string, text string) error {
	_, player, _ := SplitChatID(chatID)
	return g.sayer.Say(player, Sanitize(text))
}

func (g *GameGateway) Stop() error { return nil }
