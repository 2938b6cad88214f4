package agent

import (
	"context"
	"strings"
	"time"

	"github.com/rahul/commander/internal/executor"
	"github.com/rahul/commander/internal/observability"
)

type Messenger interface {
	Send(chatID string, text string) error
}

// BackendChecker reports whether the automation backend can take commands.
type BackendChecker interface {
	IsAvailable() bool
}

// Scheduler runs the engine tick loop, relays commander notices to the
// messenger and keeps the status board fresh.
type Scheduler struct {
	Commander *Commander
	Engine    *executor.Engine
	Gateway   Messenger
	Backend   BackendChecker
	Board     *observability.StatusBoard
	Logger    *observability.Logger
	Heartbeat time.Duration
}

func NewScheduler(cmdr *Commander, engine *executor.Engine, gateway Messenger) *Scheduler {
	return &Scheduler{
		Commander: cmdr,
		Engine:    engine,
		Gateway:   gateway,
		Heartbeat: 30 * time.Second,
	}
}

// Start blocks until ctx is done.
func (s *Scheduler) Start(ctx context.Context) {
	go s.Engine.Run(ctx)

	heartbeat := s.Heartbeat
	if heartbeat <= 0 {
		heartbeat = 30 * time.Second
	}
	ticker := time.NewTicker(heartbeat)
	defer ticker.Stop()

	s.Logger.Infof("scheduler started")
	s.refresh()

	for {
		select {
		case <-ctx.Done():
			return
		case n := <-s.Commander.Notices():
			s.deliver(n)
			s.refresh()
		case <-ticker.C:
			s.Logger.LogHeartbeat()
			s.refresh()
		}
	}
}

func (s *Scheduler) deliver(n Notice) {
	if s.Gateway == nil || n.ChatID == "" {
		s.Logger.Infof("notice: %s", n.Text)
		return
	}
	if err := s.Gateway.Send(n.ChatID, n.Text); err != nil {
		s.Logger.Errorf("delivering notice to %s: %v", n.ChatID, err)
	}
}

func (s *Scheduler) refresh() {
	if s.Board == nil {
		return
	}
	st := s.Engine.Snapshot()
	s.Board.SetStatus(strings.ToUpper(st.State.String()), st.Current)
	if s.Backend != nil {
		s.Board.SetBackend(s.Backend.IsAvailable())
	}
	s.Board.Heartbeat()
}
