package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rahul/commander/internal/backend"
	"github.com/rahul/commander/internal/llm"
	"github.com/rahul/commander/internal/store"
	"github.com/spf13/cobra"
)

var statusChat string

type statusReport struct {
	Provider    string          `json:"provider"`
	ModelServer bool            `json:"model_server"`
	Models      map[string]bool `json:"models,omitempty"`
	Backend     string          `json:"backend"`
	BackendUp   bool            `json:"backend_up"`
	Recent      []store.Entry   `json:"recent,omitempty"`
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check the model server, the backend and recent runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()

		gw, err := llm.NewFromConfig(cfg, nil)
		if err != nil {
			return err
		}
		rep := statusReport{
			Provider:    cfg.LLM.Provider,
			ModelServer: gw.Available(ctx),
			Backend:     cfg.Backend.Kind,
			BackendUp:   true,
		}

		if og, ok := gw.(*llm.OllamaGateway); ok && rep.ModelServer {
			rep.Models = map[string]bool{}
			for _, m := range cfg.Stages().Models() {
				has, err := og.HasModel(ctx, m)
				if err != nil {
					return err
				}
				rep.Models[m] = has
			}
		}

		if cfg.Backend.Kind == "bridge" {
			bc := backend.NewBridgeClient(cfg.Backend.BridgeURL)
			rep.BackendUp = bc.Connect(ctx) == nil
			bc.Close()
		}

		if _, err := os.Stat(cfg.Memory.Path); err == nil {
			j, err := store.NewJournal(cfg.Memory.Path)
			if err != nil {
				return err
			}
			defer j.Close()
			rep.Recent, err = j.Recent(ctx, statusChat, 5)
			if err != nil {
				return err
			}
		}

		if jsonOutput {
			return json.NewEncoder(os.Stdout).Encode(rep)
		}
		printStatus(cmd.OutOrStdout(), rep, cfg.LLM.URL, cfg.Backend.BridgeURL)
		return nil
	},
}

func init() {
	statusCmd.Flags().StringVar(&statusChat, "chat", "term:local", "Chat ID whose recent runs to show")
	rootCmd.AddCommand(statusCmd)
}

func mark(ok bool) string {
	if ok {
		return okMark
	}
	return missingMark
}

func printStatus(w io.Writer, rep statusReport, llmURL, bridgeURL string) {
	fmt.Fprintf(w, "%s model server (%s) %s\n", mark(rep.ModelServer), rep.Provider, llmURL)
	for m, has := range rep.Models {
		fmt.Fprintf(w, "    %s %s\n", mark(has), m)
	}
	if rep.Backend == "bridge" {
		fmt.Fprintf(w, "%s backend bridge %s\n", mark(rep.BackendUp), bridgeURL)
	} else {
		fmt.Fprintf(w, "%s backend %s\n", mark(rep.BackendUp), rep.Backend)
	}
	if len(rep.Recent) == 0 {
		return
	}
	fmt.Fprintln(w, "\nRecent runs:")
	for _, e := range rep.Recent {
		fmt.Fprintf(w, "  %s  %-10s %s\n", e.CreatedAt.Format(time.DateTime), e.Status, e.Instruction)
		if e.Error != "" {
			fmt.Fprintf(w, "      %s\n", e.Error)
		}
	}
}
