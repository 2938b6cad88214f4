package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rahul/commander/internal/agent"
	"github.com/rahul/commander/internal/backend"
	"github.com/rahul/commander/internal/cache"
	"github.com/rahul/commander/internal/executor"
	"github.com/rahul/commander/internal/gateway"
	"github.com/rahul/commander/internal/governance"
	"github.com/rahul/commander/internal/llm"
	"github.com/rahul/commander/internal/observability"
	"github.com/rahul/commander/internal/planner"
	"github.com/rahul/commander/internal/router"
	"github.com/rahul/commander/internal/store"
	"github.com/rahul/commander/internal/worldstate"
	"github.com/rahul/commander/pkg/config"
)

// app is the wired object graph shared by the subcommands.
type app struct {
	cfg       *config.Config
	logger    *observability.Logger
	llm       llm.Gateway
	world     *worldstate.Store
	planner   *planner.Planner
	backend   backend.Backend
	bridge    *backend.BridgeClient
	engine    *executor.Engine
	journal   *store.Journal
	commander *agent.Commander
	game      *gateway.GameGateway
}

func newLogger(cfg *config.Config, out io.Writer) *observability.Logger {
	return observability.NewLogger(observability.Options{
		Out:    out,
		Dir:    cfg.Logging.Dir,
		Level:  cfg.Logging.Level,
		Pretty: cfg.Logging.Pretty,
	})
}

func newWorld(cfg *config.Config, logger *observability.Logger) *worldstate.Store {
	count := worldstate.NewTokenCounter(worldstate.LoadEncoding, func(err error) {
		logger.Warnf("token encoding unavailable, estimating snapshot size: %v", err)
	})
	return worldstate.NewStore(
		worldstate.WithTokenBudget(cfg.Planner.SnapshotTokens),
		worldstate.WithTokenCounter(count),
	)
}

// newPlanner builds the planning pipeline only: router, cache, LLM gateway
// and world state.
func newPlanner(cfg *config.Config, logger *observability.Logger, world *worldstate.Store) (*planner.Planner, llm.Gateway, error) {
	aliases, err := router.LoadAliasFile(cfg.Planner.AliasFile)
	if err != nil {
		return nil, nil, err
	}
	prompts, err := planner.LoadPrompts(cfg.Planner.PromptDir)
	if err != nil {
		return nil, nil, err
	}
	gw, err := llm.NewFromConfig(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	c := cache.New(
		cache.WithCapacity(cfg.Planner.CacheCapacity),
		cache.WithTTL(cfg.Planner.CacheTTL()),
	)
	p := planner.New(cfg, router.New(aliases), c, gw, world,
		planner.WithPrompts(prompts),
		planner.WithLogger(logger),
	)
	return p, gw, nil
}

func newApp(cfg *config.Config, logger *observability.Logger) (*app, error) {
	a := &app{
		cfg:    cfg,
		logger: logger,
		world:  newWorld(cfg, logger),
	}

	var err error
	a.planner, a.llm, err = newPlanner(cfg, logger, a.world)
	if err != nil {
		return nil, err
	}

	switch cfg.Backend.Kind {
	case "bridge":
		a.bridge = backend.NewBridgeClient(cfg.Backend.BridgeURL,
			backend.WithBridgeLogger(logger),
			backend.OnSnapshot(a.world.Update),
			backend.OnChat(func(player, text string) {
				if a.game != nil {
					a.game.Handle(player, text)
				}
			}),
		)
		a.backend = backend.NewCommandBackend(a.bridge, a.bridge, backend.WithCommandLogger(logger))
	case "sim", "":
		a.backend = backend.NewSim()
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend.Kind)
	}

	policy, err := governance.FromConfig(cfg.Safety, logger)
	if err != nil {
		return nil, err
	}

	if cfg.Memory.Path != "" {
		a.journal, err = store.NewJournal(cfg.Memory.Path)
		if err != nil {
			return nil, fmt.Errorf("open journal: %w", err)
		}
	}

	var cmdr *agent.Commander
	a.engine = executor.New(a.backend, cfg.Executor,
		executor.WithLogger(logger),
		executor.WithPosition(a.world.Position),
		executor.WithNotifier(func(msg string) { cmdr.Notify(msg) }),
	)
	cmdr = agent.NewCommander(a.planner, a.engine,
		agent.WithPolicy(policy),
		agent.WithJournal(a.journal),
		agent.WithWorldState(a.world),
		agent.WithLogger(logger),
		agent.WithDryRun(cfg.App.DryRun),
		agent.WithClarificationReplan(cfg.Planner.ClarificationReplan),
	)
	a.commander = cmdr
	return a, nil
}

// gateways builds every enabled front-end.
func (a *app) gateways() (*gateway.Hub, error) {
	hub := gateway.NewHub()

	if _, ok := a.cfg.GetGatewayConfig("terminal"); ok {
		hub.Add(gateway.NewTerminalGateway(a.commander, os.Stdin, os.Stdout, a.logger))
	}
	if tg, ok := a.cfg.GetGatewayConfig("telegram"); ok {
		if tg.Token == "" {
			return nil, fmt.Errorf("telegram gateway is enabled but has no token")
		}
		t, err := gateway.NewTelegramGateway(tg.Token, a.commander, a.logger)
		if err != nil {
			return nil, fmt.Errorf("telegram: %w", err)
		}
		hub.Add(t)
	}
	if dc, ok := a.cfg.GetGatewayConfig("discord"); ok {
		if dc.Token == "" {
			return nil, fmt.Errorf("discord gateway is enabled but has no token")
		}
		hub.Add(gateway.NewDiscordGateway(dc.Token, dc.Channel, a.commander, a.logger))
	}
	if a.bridge != nil {
		trigger := ""
		if g, ok := a.cfg.GetGatewayConfig("game"); ok {
			trigger = g.Channel
		}
		a.game = gateway.NewGameGateway(a.bridge, a.commander, trigger, a.logger)
		hub.Add(a.game)
	}
	if len(hub.Names()) == 0 {
		return nil, fmt.Errorf("no gateway enabled")
	}
	return hub, nil
}

// checkModels warns about stage models missing from an Ollama server.
func (a *app) checkModels(ctx context.Context) {
	og, ok := a.llm.(*llm.OllamaGateway)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	for _, m := range a.planner.Stages().Models() {
		has, err := og.HasModel(ctx, m)
		if err != nil {
			a.logger.Warnf("model server %s: %v", og.BaseURL(), err)
			return
		}
		if !has {
			a.logger.Warnf("model %s is not installed; run: commander pull %s", m, m)
		}
	}
}

func (a *app) Close() {
	if a.bridge != nil {
		a.bridge.Close()
	}
	if a.journal != nil {
		if err := a.journal.Close(); err != nil {
			a.logger.Errorf("closing journal: %v", err)
		}
	}
}
