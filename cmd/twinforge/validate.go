package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/twinforge/twinforge/pkg/engine"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration without starting the engine",
	Long: `Dry-run mode: load the configuration, register the demo component
set, and print the validation report. Nothing is opened or mutated.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")

		cfg, err := loadConfig(configPath)
		if err != nil {
			return err
		}

		e := engine.New(cfg)
		if err := registerDemoComponents(e, cfg); err != nil {
			return err
		}

		report := e.Validate()
		if report.OK() {
			fmt.Println("configuration is valid")
			return nil
		}
		for _, problem := range report.Problems {
			fmt.Printf("  - %s\n", problem)
		}
		return fmt.Errorf("configuration has %d problem(s)", len(report.Problems))
	},
}

func init() {
	validateCmd.Flags().String("config", "", "Path to YAML config file")
}
