package main

import (
	"fmt"
	"os"
	"strings"

	"starblog/internal/platform/config"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type flags struct {
	storage string
	port    string
}

func newRootCmd() *cobra.Command {
	f := &flags{}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(f)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(f)
			if err != nil {
				return err
			}
			return migrate(cmd.Context(), cfg)
		},
	}

	root := &cobra.Command{
		Use:           "starblog",
		Short:         "Blog posts with star ratings",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          serveCmd.RunE, // serve is the default
	}
	root.PersistentFlags().StringVar(&f.storage, "storage", "", "storage backend: postgres or memory (overrides STORAGE)")
	root.PersistentFlags().StringVar(&f.port, "port", "", "HTTP port (overrides API_PORT)")
	root.AddCommand(serveCmd, migrateCmd)
	return root
}

// loadConfig reads the environment, applies flag overrides and validates
// the result once.
func loadConfig(f *flags) (*config.Config, error) {
	cfg := config.Load()
	if f.storage != "" {
		cfg.Storage = strings.ToLower(f.storage)
	}
	if f.port != "" {
		cfg.APIPort = f.port
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
