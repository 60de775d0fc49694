package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/clusterops/telemetoor/pkg/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration file",
	Long: `Load and validate the configuration file, then print the effective
configuration with defaults applied and credentials redacted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfgFile == "" {
			return fmt.Errorf("config file is required (use --config)")
		}

		cfg, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("validating config: %w", err)
		}

		out, err := cfg.Dump()
		if err != nil {
			return err
		}

		fmt.Print(out)
		log.Info("Configuration is valid")

		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
