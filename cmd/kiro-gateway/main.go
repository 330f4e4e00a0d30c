package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kiro-gateway/kiro-gateway/internal/app"
	"github.com/kiro-gateway/kiro-gateway/internal/config"
)

var version = "0.1.0-dev"

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:     "kiro-gateway",
		Short:   "Anthropic Messages API gateway for AWS CodeWhisperer",
		Version: version,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path (when unset, only built-in defaults and environment overrides apply)")

	rootCmd.AddCommand(
		newServeCmd(&configPath),
		newKeysCmd(&configPath),
		newVersionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the gateway HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			application, err := app.New(cfg)
			if err != nil {
				return fmt.Errorf("building app: %w", err)
			}

			return application.Server.Run(application.Addr())
		},
	}
}

// newKeysCmd prints configured account names and masked API keys. It is
// supplemented from original_source's print_keys.py debugging helper;
// since accounts are config-owned here (spec.md §1, §6), this only
// surfaces the static table, not an admin-store listing.
func newKeysCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Inspect configured account API keys",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List static accounts and masked API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			for _, a := range cfg.Accounts {
				fmt.Printf("%-20s %s\n", a.Name, maskAPIKey(a.APIKey))
			}
			return nil
		},
	}

	cmd.AddCommand(listCmd)
	return cmd
}

func maskAPIKey(key string) string {
	const visible = 4
	if len(key) <= visible {
		return "****"
	}
	return "****" + key[len(key)-visible:]
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("kiro-gateway %s\n", version)
		},
	}
}
