package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/rahul/commander/internal/llm"
	"github.com/rahul/commander/pkg/config"
	"github.com/spf13/cobra"
)

var (
	okMark      = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Render("✔")
	missingMark = lipgloss.NewStyle().Foreground(lipgloss.Color("13")).Render("✘")
	activeStyle = lipgloss.NewStyle().Bold(true)
)

type presetView struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	StageA      string `json:"stage_a"`
	StageB      string `json:"stage_b"`
	Active      bool   `json:"active"`
	Installed   bool   `json:"installed"`
}

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List model presets and whether their models are installed",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		og := llm.NewOllamaGateway(cfg.LLM.URL)

		installed := map[string]bool{}
		models, err := og.ListModels(cmd.Context())
		if err != nil {
			fmt.Fprintf(os.Stderr, "model server %s: %v\n", og.BaseURL(), err)
		}
		for _, m := range models {
			installed[m.Name] = true
		}
		has := func(name string) bool {
			return installed[name] || installed[name+":latest"]
		}

		names := make([]string, 0, len(config.Presets))
		for n := range config.Presets {
			names = append(names, n)
		}
		sort.Strings(names)

		views := make([]presetView, 0, len(names))
		for _, n := range names {
			p := config.Presets[n]
			views = append(views, presetView{
				Name:        p.Name,
				Description: p.Description,
				StageA:      p.StageAModel,
				StageB:      p.StageBModel,
				Active:      n == cfg.LLM.Preset,
				Installed:   has(p.StageAModel) && has(p.StageBModel),
			})
		}

		if jsonOutput {
			return json.NewEncoder(os.Stdout).Encode(views)
		}
		for _, v := range views {
			mark := missingMark
			if v.Installed {
				mark = okMark
			}
			name := fmt.Sprintf("%-9s", v.Name)
			if v.Active {
				name = activeStyle.Render(name + "*")
			}
			fmt.Printf("%s %s A=%s B=%s  %s\n", mark, name, v.StageA, v.StageB, v.Description)
		}
		if len(models) > 0 {
			fmt.Println("\nInstalled:")
			for _, m := range models {
				fmt.Printf("  %-32s %6.1f GB  %s\n", m.Name, float64(m.Size)/1e9, m.ModifiedAt.Format(time.DateOnly))
			}
		}
		return nil
	},
}

var pullCmd = &cobra.Command{
	Use:   "pull [model...]",
	Short: "Download models; defaults to the active preset's stage models",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		models := args
		if len(models) == 0 {
			models = cfg.Stages().Models()
		}
		og := llm.NewOllamaGateway(cfg.LLM.URL)

		for _, m := range models {
			last := ""
			err := og.Pull(cmd.Context(), m, func(p llm.PullProgress) {
				line := p.Status
				if p.Total > 0 {
					line = fmt.Sprintf("%s %3d%%", p.Status, p.Percent)
				}
				if line != last {
					fmt.Printf("\r\033[K%s: %s", m, line)
					last = line
				}
			})
			fmt.Println()
			if err != nil {
				return fmt.Errorf("pull %s: %w", m, err)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(modelsCmd)
	rootCmd.AddCommand(pullCmd)
}
