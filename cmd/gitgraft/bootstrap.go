package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fardream/gitgraft"
)

type bootstrapCmd struct {
	*cobra.Command

	configPath string
}

func newBootstrapCmd() *bootstrapCmd {
	c := &bootstrapCmd{
		Command: &cobra.Command{
			Use:   "bootstrap",
			Short: "import the source tree as one squash commit on the target",
			Long: `Before two repositories can be synchronized the target needs a starting
point. Bootstrap creates a single commit on the target branch containing the
source tree as of the configured since ref (or until ref when no since ref
is set).`,
			Args: cobra.NoArgs,
		},
	}

	c.Flags().StringVarP(&c.configPath, "config", "c", c.configPath, "path to the configuration")
	c.MarkFlagRequired("config")

	c.Run = func(*cobra.Command, []string) {
		c.run()
	}

	return c
}

func (c *bootstrapCmd) run() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	config := loadConfig(c.configPath)

	runner, err := gitgraft.NewRunner(config)
	if err != nil {
		slog.Error("failed to set up bootstrap", "err", err)
		os.Exit(exitFatal)
	}
	defer runner.Close()

	newhash, err := runner.Bootstrap(ctx)
	if err != nil {
		slog.Error("bootstrap failed", "err", err)
		os.Exit(exitFatal)
	}

	fmt.Printf("bootstrapped target at %s\n", newhash)
}
