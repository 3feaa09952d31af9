package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/redmonkez12/go-otp-auth/internal/config"
	"github.com/redmonkez12/go-otp-auth/internal/logging"
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "otp-auth",
		Short:        "Email OTP sign-up and session service",
		SilenceUsage: true,
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}

	rootCmd.AddCommand(serveCmd, newMigrateCmd())

	// Allow running without subcommand (default to serve)
	rootCmd.RunE = serveCmd.RunE

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Application error: %v\n", err)
		os.Exit(1)
	}
}

// bootstrap loads configuration and installs the process-wide logger.
func bootstrap() (*config.Config, *logging.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger := logging.NewLogger(cfg.Server.IsDevelopment())
	zap.ReplaceGlobals(logger.Zap())

	return cfg, logger, nil
}
