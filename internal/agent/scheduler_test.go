package agent

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rahul/commander/internal/action"
	"github.com/rahul/commander/internal/backend"
	"github.com/rahul/commander/internal/executor"
	"github.com/rahul/commander/internal/observability"
	"github.com/rahul/commander/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingMessenger struct {
	mu   sync.Mutex
	sent map[string][]string
}

func (m *recordingMessenger) Send(chatID, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sent == nil {
		m.sent = map[string][]string{}
	}
	m.sent[chatID] = append(m.sent[chatID], text)
	return nil
}

func (m *recordingMessenger) For(chatID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.sent[chatID]...)
}

func TestSchedulerRelaysNotices(t *testing.T) {
	sim := backend.NewSim(backend.WithBusyPolls(1))
	var cmdr *Commander
	engine := executor.New(sim, config.ExecutorConfig{TickIntervalMillis: 5},
		executor.WithNotifier(func(m string) { cmdr.Notify(m) }))
	p := &fakePlanner{plans: map[string]action.Plan{
		"farm": action.Single(action.Cultivate{}, "Farming"),
	}}
	cmdr = NewCommander(p, engine)

	msgr := &recordingMessenger{}
	board := observability.NewStatusBoard()
	s := NewScheduler(cmdr, engine, msgr)
	s.Board = board
	s.Backend = sim

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Start(ctx)

	_, err := cmdr.Think(ctx, "chat-9", "farm")
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(msgr.For("chat-9")) == 3 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"Farming", "Farming nearby crops", "All actions completed!"}, msgr.For("chat-9"))

	require.Eventually(t, func() bool {
		state, _, up, _ := board.GetStatus()
		return state == "COMPLETED" && up
	}, 2*time.Second, 5*time.Millisecond)
}
