package agent

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/rahul/commander/internal/action"
	"github.com/rahul/commander/internal/executor"
	"github.com/rahul/commander/internal/governance"
	"github.com/rahul/commander/internal/llm"
	"github.com/rahul/commander/internal/observability"
	"github.com/rahul/commander/internal/planner"
	"github.com/rahul/commander/internal/router"
	"github.com/rahul/commander/internal/store"
	"github.com/rahul/commander/internal/worldstate"
)

// Brain defines the core interface between chat front-ends and the agent.
type Brain interface {
	Think(ctx context.Context, chatID string, input string) (string, error)
}

// Planner is the part of planner.Planner the commander drives.
type Planner interface {
	Plan(ctx context.Context, instruction string) (planner.Result, error)
	PlanWithAnswer(ctx context.Context, instruction, question, answer string) (planner.Result, error)
}

// Notice is an asynchronous message for a chat, produced while a plan runs.
type Notice struct {
	ChatID string
	Text   string
}

// Commander accepts player instructions, plans them and hands the plans to
// the execution engine. Progress is reported through Notices; Think only
// replies directly when nothing was started.
type Commander struct {
	planner Planner
	engine  *executor.Engine
	policy  governance.PolicyEngine
	journal *store.Journal
	world   *worldstate.Store
	logger  *observability.Logger
	dryRun  bool
	replan  bool

	notices chan Notice

	mu     sync.Mutex
	chatID string
	instr  string
	// runs the engine still owes a callback, oldest first; more than one
	// only in queue mode
	runs []string
}

type Option func(*Commander)

func WithPolicy(p governance.PolicyEngine) Option {
	return func(c *Commander) { c.policy = p }
}

func WithJournal(j *store.Journal) Option {
	return func(c *Commander) { c.journal = j }
}

// WithWorldState receives last-failure context for the next snapshot.
func WithWorldState(s *worldstate.Store) Option {
	return func(c *Commander) { c.world = s }
}

func WithLogger(l *observability.Logger) Option {
	return func(c *Commander) { c.logger = l }
}

// WithDryRun plans and journals instructions without executing them.
func WithDryRun(v bool) Option {
	return func(c *Commander) { c.dryRun = v }
}

// WithClarificationReplan makes answers to a clarification re-plan the
// original instruction instead of resuming the remaining actions.
func WithClarificationReplan(v bool) Option {
	return func(c *Commander) { c.replan = v }
}

func NewCommander(p Planner, e *executor.Engine, opts ...Option) *Commander {
	c := &Commander{
		planner: p,
		engine:  e,
		notices: make(chan Notice, 64),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Notices delivers engine progress for the chat that owns the running plan.
func (c *Commander) Notices() <-chan Notice { return c.notices }

// Notify queues text for the active chat. It never blocks; when nobody is
// draining the channel the notice is dropped.
func (c *Commander) Notify(text string) {
	c.mu.Lock()
	chatID := c.chatID
	c.mu.Unlock()
	select {
	case c.notices <- Notice{ChatID: chatID, Text: text}:
	default:
		c.logger.Warnf("notice dropped: %s", text)
	}
}

// Status reports the engine state.
func (c *Commander) Status() executor.Status { return c.engine.Snapshot() }

func (c *Commander) Think(ctx context.Context, chatID string, input string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", nil
	}
	ctx = observability.WithChatID(ctx, chatID)
	c.remember(ctx, chatID, "human", input)

	reply, err := c.think(ctx, chatID, input)
	if reply != "" {
		c.remember(ctx, chatID, "ai", reply)
	}
	return reply, err
}

func (c *Commander) think(ctx context.Context, chatID, input string) (string, error) {
	if reply, ok := c.slash(ctx, chatID, input); ok {
		return reply, nil
	}
	switch router.ControlWord(input) {
	case router.ControlStop:
		c.engine.CancelAll()
		c.closeRun(store.StatusCancelled, nil)
		return "Stopped all actions.", nil
	case router.ControlPause:
		if c.engine.Pause() {
			return "Paused. Say resume to continue.", nil
		}
		return "Nothing to pause.", nil
	case router.ControlResume:
		if c.engine.Resume() {
			return "Resuming.", nil
		}
		return "Nothing to resume.", nil
	}

	if c.engine.State() == executor.StateWaitingInput {
		return c.answer(ctx, chatID, input)
	}
	return c.command(ctx, chatID, input)
}

func (c *Commander) command(ctx context.Context, chatID, input string) (string, error) {
	planning := c.engine.BeginPlanning()
	res, err := c.planner.Plan(ctx, input)
	if planning {
		c.engine.EndPlanning(err)
	}
	if err != nil {
		return c.planFailed(ctx, chatID, input, err), nil
	}
	return c.run(ctx, chatID, input, res)
}

// answer handles text typed while a clarification question is pending.
func (c *Commander) answer(ctx context.Context, chatID, input string) (string, error) {
	if !c.replan {
		q, ok := c.engine.SupplyInput(input)
		if !ok {
			return c.command(ctx, chatID, input)
		}
		c.logger.Infof("clarification %q answered: %s", q, input)
		return "Got it.", nil
	}

	question := c.engine.PendingQuestion()
	c.mu.Lock()
	instr := c.instr
	c.mu.Unlock()
	c.engine.CancelAll()
	c.closeRun(store.StatusCompleted, nil)

	res, err := c.planner.PlanWithAnswer(ctx, instr, question, input)
	if err != nil {
		return c.planFailed(ctx, chatID, instr, err), nil
	}
	return c.run(ctx, chatID, instr, res)
}

func (c *Commander) planFailed(ctx context.Context, chatID, input string, err error) string {
	c.logger.Errorf("planning %q: %v", input, err)
	c.record(ctx, store.Entry{ChatID: chatID, Instruction: input, Status: store.StatusPlanError, Error: err.Error()})

	var pe *planner.PlanningError
	if errors.As(err, &pe) && c.world != nil {
		c.world.SetLastFailure(fmt.Sprintf("could not plan %q (stage %s)", input, pe.Stage))
	}
	if llm.IsUnreachable(err) {
		return "The planning model is not reachable. Is the model server running?"
	}
	return "Sorry, I couldn't work out how to do that. Try rephrasing."
}

func (c *Commander) run(ctx context.Context, chatID, input string, res planner.Result) (string, error) {
	plan := res.Plan
	if len(plan.Actions) == 0 {
		return plan.Summary, nil
	}

	var denied []governance.Result
	if c.policy != nil {
		var err error
		plan, denied, err = governance.Filter(ctx, c.policy, chatID, plan)
		if err != nil {
			return "", err
		}
	}

	entry := store.Entry{
		ChatID:      chatID,
		Instruction: input,
		Source:      string(res.Source),
		Summary:     plan.Summary,
		Actions:     plan.String(),
		Truncated:   res.Truncated,
	}
	if len(plan.Actions) == 0 {
		entry.Status = store.StatusDenied
		entry.Error = denied[0].Reason
		c.record(ctx, entry)
		return "Blocked by safety policy: " + denied[0].Reason, nil
	}
	if c.dryRun {
		entry.Status = store.StatusDryRun
		c.record(ctx, entry)
		return "[dry run] " + plan.String(), nil
	}

	if !c.engine.Appends() {
		c.closeRun(store.StatusCancelled, nil)
	}
	runID := c.record(ctx, entry)
	c.logger.LogPlan(chatID, runID, string(res.Source), plan.Summary, actionStrings(plan))

	c.mu.Lock()
	c.chatID, c.instr = chatID, input
	c.runs = append(c.runs, runID)
	c.mu.Unlock()
	if c.world != nil {
		c.world.ClearLastFailure()
	}

	if len(denied) > 0 {
		c.Notify(fmt.Sprintf("Skipped %d unsafe action(s): %s", len(denied), denied[0].Reason))
	}
	err := c.engine.Execute(plan,
		func() { c.finished(runID, nil) },
		func(err error) { c.finished(runID, err) },
	)
	return "", err
}

// finished is called by the engine when runID completes or fails.
func (c *Commander) finished(runID string, err error) {
	c.mu.Lock()
	instr := c.instr
	current := slices.Contains(c.runs, runID)
	if current {
		c.runs = slices.DeleteFunc(c.runs, func(id string) bool { return id == runID })
	}
	c.mu.Unlock()

	status := store.StatusCompleted
	if err != nil {
		status = store.StatusFailed
		if c.world != nil && current {
			c.world.SetLastFailure(fmt.Sprintf("%s: %v", instr, err))
		}
		c.Notify("Plan failed: " + err.Error())
	}
	c.mark(runID, status, err)
}

// closeRun settles the journal rows of runs that will not report back.
func (c *Commander) closeRun(status string, err error) {
	c.mu.Lock()
	runs := c.runs
	c.runs = nil
	c.mu.Unlock()
	for _, runID := range runs {
		c.mark(runID, status, err)
	}
}

func (c *Commander) record(ctx context.Context, e store.Entry) string {
	if c.journal == nil {
		return ""
	}
	runID, err := c.journal.RecordPlan(ctx, e)
	if err != nil {
		c.logger.Errorf("journal: %v", err)
	}
	return runID
}

func (c *Commander) mark(runID, status string, cause error) {
	if c.journal == nil || runID == "" {
		return
	}
	if err := c.journal.MarkOutcome(context.Background(), runID, status, cause); err != nil {
		c.logger.Errorf("journal: %v", err)
	}
}

func (c *Commander) remember(ctx context.Context, chatID, role, content string) {
	if c.journal == nil {
		return
	}
	if err := c.journal.AddMessage(ctx, chatID, role, content); err != nil {
		c.logger.Errorf("journal: %v", err)
	}
}

func actionStrings(p action.Plan) []string {
	out := make([]string, len(p.Actions))
	for i, a := range p.Actions {
		out[i] = a.String()
	}
	return out
}
