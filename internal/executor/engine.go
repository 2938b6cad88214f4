// Package executor runs plans against the automation backend one action at
// a time, polling for completion on a fixed tick.
package executor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rahul/commander/internal/action"
	"github.com/rahul/commander/internal/backend"
	"github.com/rahul/commander/internal/observability"
	"github.com/rahul/commander/pkg/config"
)

// Status is a point-in-time view of the engine.
type Status struct {
	State    State
	RunID    string
	Current  string
	Queue    int
	Retries  int
	Steps    int
	Question string
}

// Engine owns the action queue and the execution state. All methods are
// safe to call from any goroutine; the backend is only ever called with the
// engine lock held, and callbacks run after it is released.
type Engine struct {
	backend   backend.Backend
	inventory backend.Inventory
	cfg       config.ExecutorConfig
	now       func() time.Time
	position  func() (action.Position, bool)
	notify    func(string)
	logger    *observability.Logger

	mu         sync.Mutex
	state      State
	runID      string
	queue      []action.Action
	current    action.Action
	retries    int
	steps      int
	retryAt    time.Time
	waitUntil  time.Time
	question   string
	onComplete func()
	onFail     func(error)
}

type Option func(*Engine)

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithPosition supplies the agent position, used as the explore origin.
func WithPosition(fn func() (action.Position, bool)) Option {
	return func(e *Engine) { e.position = fn }
}

// WithNotifier receives player-facing progress messages.
func WithNotifier(fn func(string)) Option {
	return func(e *Engine) { e.notify = fn }
}

func WithLogger(l *observability.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

func New(b backend.Backend, cfg config.ExecutorConfig, opts ...Option) *Engine {
	if cfg.MaxRetriesPerAction <= 0 {
		cfg.MaxRetriesPerAction = 3
	}
	if cfg.MaxStepsPerGoal <= 0 {
		cfg.MaxStepsPerGoal = 1000
	}
	if cfg.TickIntervalMillis <= 0 {
		cfg.TickIntervalMillis = 500
	}
	e := &Engine{backend: b, cfg: cfg, now: time.Now}
	e.inventory, _ = b.(backend.Inventory)
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// deferred collects work that must run after the lock is released.
type deferred []func()

func (d *deferred) add(fn func()) {
	if fn != nil {
		*d = append(*d, fn)
	}
}

func (d deferred) run() {
	for _, fn := range d {
		fn()
	}
}

func (e *Engine) say(after *deferred, format string, args ...any) {
	if e.notify == nil {
		return
	}
	msg := fmt.Sprintf(format, args...)
	after.add(func() { e.notify(msg) })
}

// Execute loads a plan and dispatches its first action. Unless queue mode
// is on, any running plan is cancelled first; in queue mode the actions are
// appended to the running plan.
func (e *Engine) Execute(plan action.Plan, onComplete func(), onFail func(error)) error {
	if len(plan.Actions) == 0 {
		if onFail != nil {
			onFail(ErrEmptyPlan)
		}
		return ErrEmptyPlan
	}

	var after deferred
	e.mu.Lock()
	appending := e.cfg.QueueMode && e.state.active()
	if !appending && e.state.active() {
		e.backend.Stop()
		e.resetLocked()
	}
	e.queue = append(e.queue, plan.Actions...)
	if appending {
		// the running plan keeps its callbacks; both fire when the queue ends
		e.onComplete = chainComplete(e.onComplete, onComplete)
		e.onFail = chainFail(e.onFail, onFail)
	} else {
		e.onComplete = onComplete
		e.onFail = onFail
	}
	if !appending {
		e.runID = uuid.NewString()
		e.steps = 0
		e.state = StateExecuting
		if plan.Summary != "" {
			e.say(&after, "%s", plan.Summary)
		}
		e.advanceLocked(&after)
	}
	e.mu.Unlock()

	after.run()
	return nil
}

// Appends reports whether the next Execute will join the running plan
// instead of replacing it.
func (e *Engine) Appends() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg.QueueMode && e.state.active()
}

func chainComplete(a, b func()) func() {
	if a == nil || b == nil {
		if a == nil {
			return b
		}
		return a
	}
	return func() { a(); b() }
}

func chainFail(a, b func(error)) func(error) {
	if a == nil || b == nil {
		if a == nil {
			return b
		}
		return a
	}
	return func(err error) { a(err); b(err) }
}

// Tick checks the current action for completion, fires due retries and
// ends finished waits.
func (e *Engine) Tick() {
	var after deferred
	e.mu.Lock()
	if e.state == StateExecuting {
		e.tickLocked(&after)
	}
	e.mu.Unlock()
	after.run()
}

func (e *Engine) tickLocked(after *deferred) {
	now := e.now()
	switch {
	case e.current == nil:
		e.advanceLocked(after)
	case !e.retryAt.IsZero():
		if now.Before(e.retryAt) {
			return
		}
		e.retryAt = time.Time{}
		if e.dispatchLocked(e.current, after) {
			e.advanceLocked(after)
		}
	case e.current.Kind() == action.KindWait:
		if !now.Before(e.waitUntil) {
			e.finishLocked("done")
			e.advanceLocked(after)
		}
	case action.Driven(e.current):
		if !e.backend.IsPathing() {
			e.finishLocked("done")
			e.advanceLocked(after)
		}
	}
}

// advanceLocked starts queued actions until one needs time to complete or
// the queue runs out.
func (e *Engine) advanceLocked(after *deferred) {
	for e.state == StateExecuting {
		if len(e.queue) == 0 {
			e.current = nil
			e.state = StateCompleted
			e.say(after, "All actions completed!")
			after.add(e.onComplete)
			e.onComplete, e.onFail = nil, nil
			return
		}
		e.current = e.queue[0]
		e.queue = e.queue[1:]
		e.retries = 0
		if !e.dispatchLocked(e.current, after) {
			return
		}
	}
}

// dispatchLocked sends a to the backend. It returns true when the action
// is already finished and the next one can start.
func (e *Engine) dispatchLocked(a action.Action, after *deferred) bool {
	e.steps++
	if e.steps > e.cfg.MaxStepsPerGoal {
		e.abortLocked(StateIdle, ErrStepBudgetExceeded, after)
		e.say(after, "Max steps reached (%d). Stopping.", e.cfg.MaxStepsPerGoal)
		return false
	}
	if action.Driven(a) && !e.backend.IsAvailable() {
		e.abortLocked(StateFailed, ErrBackendUnavailable, after)
		e.say(after, "Automation backend is not available.")
		return false
	}

	attempt := e.retries + 1
	ok, instant := e.sendLocked(a, after)
	if !ok {
		e.retries++
		e.logger.LogStep(e.runID, a.String(), "rejected", attempt)
		if e.retries >= e.cfg.MaxRetriesPerAction {
			e.say(after, "Action failed after %d retries: %s", e.retries, a)
			e.logger.LogStep(e.runID, a.String(), "skipped", attempt)
			return true
		}
		e.retryAt = e.now().Add(e.cfg.RetryDelay())
		return false
	}
	e.logger.LogStep(e.runID, a.String(), "dispatched", attempt)
	if instant {
		e.finishLocked("done")
	}
	return instant && e.state == StateExecuting
}

// sendLocked performs the action. ok=false means the backend rejected it;
// instant=true means it needs no completion polling.
func (e *Engine) sendLocked(a action.Action, after *deferred) (ok, instant bool) {
	b := e.backend
	switch v := a.(type) {
	case action.MoveTo:
		if v.Y != nil {
			e.say(after, "Going to %d, %d, %d", v.X, *v.Y, v.Z)
			return b.MoveTo(v.X, *v.Y, v.Z), false
		}
		e.say(after, "Going to X=%d Z=%d", v.X, v.Z)
		return b.MoveToXZ(v.X, v.Z), false
	case action.MoveToLandmark:
		e.say(after, "Going to nearest %s", v.LandmarkID)
		return b.MoveToLandmark(v.LandmarkID), false
	case action.Harvest:
		e.say(after, "Mining %dx %s", v.Count, v.ResourceID)
		return b.Harvest(v.ResourceID, v.Count), false
	case action.FollowTarget:
		e.say(after, "Following %s", v.TargetID)
		if v.IsEntity() {
			return b.FollowEntity(v.TargetID), false
		}
		return b.FollowPlayer(v.TargetID), false
	case action.Patrol:
		if e.position == nil {
			return false, false
		}
		pos, known := e.position()
		if !known {
			return false, false
		}
		x, _, z := pos.Block()
		e.say(after, "Exploring from current position")
		return b.Patrol(x, z, v.Distance), false
	case action.Cultivate:
		if v.Range > 0 {
			e.say(after, "Farming within %d blocks", v.Range)
		} else {
			e.say(after, "Farming nearby crops")
		}
		return b.Cultivate(v.Range), false
	case action.Halt:
		e.say(after, "Stopping all actions")
		b.Stop()
		e.queue = nil
		e.current = nil
		e.state = StateIdle
		after.add(e.onComplete)
		e.onComplete, e.onFail = nil, nil
		return true, true
	case action.AskClarification:
		if v.Question == "" {
			return true, true
		}
		e.question = v.Question
		e.state = StateWaitingInput
		e.say(after, "%s", v.Question)
		return true, false
	case action.WaitSeconds:
		secs := v.Seconds
		if secs <= 0 {
			secs = action.DefaultWaitSeconds
		}
		e.waitUntil = e.now().Add(time.Duration(secs) * time.Second)
		e.say(after, "Waiting %d seconds...", secs)
		return true, false
	case action.Equip:
		if e.inventory == nil {
			e.say(after, "Equip is not supported by this backend")
			return true, true
		}
		if v.Slot != nil {
			return e.inventory.SelectSlot(*v.Slot), true
		}
		if !e.inventory.SelectItem(v.ItemID) {
			e.say(after, "Item not found in hotbar: %s", v.ItemID)
		}
		return true, true
	case action.Drop:
		if e.inventory == nil {
			e.say(after, "Drop is not supported by this backend")
			return true, true
		}
		return e.inventory.DropItem(v.ItemID, v.Count), true
	}
	e.say(after, "Unknown action type: %s", a.Kind())
	return true, true
}

func (e *Engine) finishLocked(outcome string) {
	if e.current != nil {
		e.logger.LogStep(e.runID, e.current.String(), outcome, e.retries+1)
	}
}

// abortLocked stops the backend, drops the plan and reports err.
func (e *Engine) abortLocked(to State, err error, after *deferred) {
	e.backend.Stop()
	onFail := e.onFail
	e.resetLocked()
	e.state = to
	if onFail != nil {
		after.add(func() { onFail(err) })
	}
}

func (e *Engine) resetLocked() {
	e.queue = nil
	e.current = nil
	e.retries = 0
	e.retryAt = time.Time{}
	e.waitUntil = time.Time{}
	e.question = ""
	e.onComplete, e.onFail = nil, nil
}

// SupplyInput answers a pending clarification and resumes with the next
// queued action. It returns the question that was answered.
func (e *Engine) SupplyInput(answer string) (string, bool) {
	var after deferred
	e.mu.Lock()
	if e.state != StateWaitingInput {
		e.mu.Unlock()
		return "", false
	}
	q := e.question
	e.question = ""
	e.finishLocked("answered")
	e.current = nil
	e.state = StateExecuting
	e.advanceLocked(&after)
	e.mu.Unlock()

	after.run()
	return q, true
}

// Pause stops the backend and puts the current action back at the head of
// the queue so Resume starts it again.
func (e *Engine) Pause() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateExecuting {
		return false
	}
	e.backend.Stop()
	if e.current != nil {
		e.queue = append([]action.Action{e.current}, e.queue...)
		e.current = nil
	}
	e.retries = 0
	e.retryAt = time.Time{}
	e.waitUntil = time.Time{}
	e.state = StatePaused
	return true
}

func (e *Engine) Resume() bool {
	var after deferred
	e.mu.Lock()
	if e.state != StatePaused {
		e.mu.Unlock()
		return false
	}
	e.state = StateExecuting
	e.advanceLocked(&after)
	e.mu.Unlock()

	after.run()
	return true
}

// CancelAll stops everything and returns to Idle. The backend is told to
// stop twice since a single command can get lost. It reports whether there
// was anything to cancel.
func (e *Engine) CancelAll() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.backend.Stop()
	had := e.state != StateIdle || len(e.queue) > 0 || e.current != nil
	e.resetLocked()
	e.steps = 0
	e.state = StateIdle
	e.backend.Stop()
	return had
}

// BeginPlanning marks the engine as waiting for a planner. It refuses while
// a plan is loaded.
func (e *Engine) BeginPlanning() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state.active() || e.state == StatePlanning {
		return false
	}
	e.state = StatePlanning
	return true
}

// EndPlanning leaves the Planning state; a planning error lands in Failed.
func (e *Engine) EndPlanning(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StatePlanning {
		return
	}
	if err != nil {
		e.state = StateFailed
		return
	}
	e.state = StateIdle
}

// Run ticks the engine until ctx is done.
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.TickInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.Tick()
		}
	}
}

func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Engine) QueueLen() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.queue)
}

func (e *Engine) Retries() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.retries
}

func (e *Engine) PendingQuestion() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.question
}

func (e *Engine) Snapshot() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := Status{
		State:    e.state,
		RunID:    e.runID,
		Queue:    len(e.queue),
		Retries:  e.retries,
		Steps:    e.steps,
		Question: e.question,
	}
	if e.current != nil {
		s.Current = e.current.String()
	}
	return s
}
