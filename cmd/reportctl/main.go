// Command reportctl runs report pipeline operations from a shell: schema
// migrations, manual submissions, synchronous processing and retries.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/AI-Template-SDK/brand-visibility-workflows/internal/bootstrap"
	"github.com/AI-Template-SDK/brand-visibility-workflows/internal/config"
	"github.com/AI-Template-SDK/brand-visibility-workflows/internal/logger"
	"github.com/AI-Template-SDK/brand-visibility-workflows/services"
)

var (
	verbose bool
	timeout time.Duration

	log = zap.NewNop().Sugar()

	// openRuntime is replaced in tests.
	openRuntime = defaultRuntime
)

var rootCmd = &cobra.Command{
	Use:           "reportctl",
	Short:         "Operate the brand visibility report pipeline",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := "info"
		if verbose {
			level = "debug"
		}
		l, err := logger.New(os.Getenv("ENVIRONMENT"), level)
		if err != nil {
			return err
		}
		log = l
		return nil
	},
}

func init() {
	_ = godotenv.Load()

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 2*time.Hour, "Operation timeout")

	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(submitCmd)
	rootCmd.AddCommand(processCmd)
	rootCmd.AddCommand(retryCmd)
	rootCmd.AddCommand(statusCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func defaultRuntime(ctx context.Context) (*services.Services, func() error, error) {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	rt, err := bootstrap.Build(ctx, cfg, log)
	if err != nil {
		return nil, nil, err
	}
	return rt.Services, rt.Close, nil
}

// withServices runs fn against a freshly wired pipeline.
func withServices(cmd *cobra.Command, fn func(ctx context.Context, svc *services.Services) error) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	svc, closeFn, err := openRuntime(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeFn(); err != nil {
			log.Warnf("[reportctl] close: %v", err)
		}
	}()
	return fn(ctx, svc)
}
