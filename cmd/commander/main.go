package main

import (
	"fmt"
	"os"

	"github.com/rahul/commander/pkg/config"
	"github.com/spf13/cobra"
)

var (
	configPath string
	presetFlag string
	jsonOutput bool
)

var rootCmd = &cobra.Command{
	Use:          "commander",
	Short:        "Natural-language commander for a Baritone-driven game agent",
	Long:         "commander turns chat instructions into pathing, mining and farming plans using a local LLM.",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "commander.yaml", "Path to the YAML config file")
	rootCmd.PersistentFlags().StringVar(&presetFlag, "preset", "", "Model preset: fast, balanced or thinking")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output raw JSON")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadFromPath(configPath)
	if err != nil {
		return nil, err
	}
	if presetFlag != "" {
		if _, ok := config.Presets[presetFlag]; !ok {
			return nil, fmt.Errorf("unknown preset %q", presetFlag)
		}
		cfg.LLM.Preset = presetFlag
	}
	return cfg, nil
}
