package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rahul/commander/internal/agent"
	"github.com/rahul/commander/internal/observability"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the commander with every enabled gateway",
	RunE:  runCommander,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runCommander(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// The dashboard owns the top rows of the screen, so it only runs when
	// nothing else reads from or writes to the terminal.
	_, repl := cfg.GetGatewayConfig("terminal")
	dashboard := observability.IsTerminal() && !repl
	if dashboard {
		observability.PrintBanner()
		observability.InitializeTerminal()
	}

	logger := newLogger(cfg, observability.NewTermWriter())
	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	hub, err := a.gateways()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a.checkModels(ctx)
	if cfg.App.DryRun {
		logger.Warnf("dry run: plans are journaled but never executed")
	}

	board := observability.NewStatusBoard()
	sched := agent.NewScheduler(a.commander, a.engine, hub)
	sched.Backend = a.backend
	sched.Board = board
	sched.Logger = logger

	g, ctx := errgroup.WithContext(ctx)
	if a.bridge != nil {
		g.Go(func() error { return a.bridge.Run(ctx) })
	}
	g.Go(func() error {
		sched.Start(ctx)
		return nil
	})
	g.Go(func() error {
		err := hub.Start(ctx)
		if err != nil {
			logger.Errorf("gateway failed: %v", err)
			return err
		}
		// A gateway that returns on its own (the REPL on "exit") ends the run.
		stop()
		return nil
	})
	if dashboard {
		g.Go(func() error {
			ticker := time.NewTicker(time.Second)
			defer ticker.Stop()
			for frame := 0; ; frame++ {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					observability.PrintLiveStatus(board, frame)
				}
			}
		})
	}

	logger.Infof("commander up: gateways %v, backend %s, preset %s", hub.Names(), cfg.Backend.Kind, cfg.LLM.Preset)
	err = g.Wait()

	a.engine.CancelAll()
	if stopErr := hub.Stop(); stopErr != nil {
		logger.Warnf("stopping gateways: %v", stopErr)
	}
	if dashboard {
		observability.CleanupTerminal()
	}
	logger.Infof("commander stopped")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
