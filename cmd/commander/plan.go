package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rahul/commander/internal/planner"
	"github.com/rahul/commander/internal/worldstate"
	"github.com/spf13/cobra"
)

var planSnapshot string

type planOutput struct {
	Instruction string `json:"instruction"`
	Source      string `json:"source"`
	Trace       string `json:"trace"`
	Truncated   bool   `json:"truncated,omitempty"`
	Plan        any    `json:"plan"`
}

var planCmd = &cobra.Command{
	Use:   "plan <instruction...>",
	Short: "Plan one instruction and print the actions without executing them",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger := newLogger(cfg, io.Discard)

		world := newWorld(cfg, logger)
		if planSnapshot != "" {
			snap, err := readSnapshot(planSnapshot)
			if err != nil {
				return err
			}
			world.Update(snap)
		}

		p, _, err := newPlanner(cfg, logger, world)
		if err != nil {
			return err
		}

		instruction := strings.Join(args, " ")
		res, err := p.Plan(cmd.Context(), instruction)
		if err != nil {
			return err
		}
		return printPlan(cmd.OutOrStdout(), instruction, res)
	},
}

func init() {
	planCmd.Flags().StringVar(&planSnapshot, "snapshot", "", "World snapshot JSON to plan against")
	rootCmd.AddCommand(planCmd)
}

func readSnapshot(path string) (worldstate.Snapshot, error) {
	var snap worldstate.Snapshot
	data, err := os.ReadFile(path)
	if err != nil {
		return snap, err
	}
	if err := json.Unmarshal(data, &snap); err != nil {
		return snap, fmt.Errorf("parse snapshot %s: %w", path, err)
	}
	return snap, nil
}

func printPlan(w io.Writer, instruction string, res planner.Result) error {
	if jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(planOutput{
			Instruction: instruction,
			Source:      string(res.Source),
			Trace:       res.Trace,
			Truncated:   res.Truncated,
			Plan:        res.Plan,
		})
	}

	fmt.Fprintf(w, "Instruction: %s\n", instruction)
	fmt.Fprintf(w, "Source: %s\n", res.Source)
	if res.Trace != "" {
		fmt.Fprintf(w, "Trace: %s\n", res.Trace)
	}
	if res.Plan.Summary != "" {
		fmt.Fprintf(w, "Summary: %s\n", res.Plan.Summary)
	}
	if len(res.Plan.Actions) == 0 {
		fmt.Fprintln(w, "No actions.")
		return nil
	}
	fmt.Fprintln(w)
	for i, a := range res.Plan.Actions {
		fmt.Fprintf(w, "%2d. %s\n", i+1, a)
	}
	if res.Truncated {
		fmt.Fprintf(w, "\n(plan cut to %d actions)\n", len(res.Plan.Actions))
	}
	return nil
}
