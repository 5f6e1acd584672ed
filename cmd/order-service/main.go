package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/dmehra2102/storefront/internal/config"
	"github.com/dmehra2102/storefront/pkg/logging"
	"github.com/dmehra2102/storefront/pkg/shutdown"
)

func main() {
	ctx, cancel := shutdown.WithSignals(context.Background())
	defer cancel()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		cancel()
		os.Exit(1)
	}
}

// deps is filled in by the root command before any subcommand runs.
type deps struct {
	cfg *config.Config
	log *slog.Logger
}

func newRootCommand() *cobra.Command {
	d := &deps{}

	cmd := &cobra.Command{
		Use:           "order-service",
		Short:         "Storefront order placement service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			d.cfg = cfg
			d.log = logging.New(cfg.LogLevel)
			return nil
		},
	}

	cmd.AddCommand(newServeCommand(d))
	cmd.AddCommand(newMigrateCommand(d))
	cmd.AddCommand(newTokenCommand(d))
	return cmd
}
