package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fardream/gitgraft"
	"github.com/fardream/gitgraft/cmd"
)

// Exit codes of the run command. A conflict is an actionable operator
// condition, not a failure, and gets its own code.
const (
	exitConflict = 2
	exitFatal    = 1
)

type runCmd struct {
	*cobra.Command

	configPath string
}

func newRunCmd() *runCmd {
	c := &runCmd{
		Command: &cobra.Command{
			Use:   "run",
			Short: "start or resume a transplant run",
			Args:  cobra.NoArgs,
		},
	}

	c.Flags().StringVarP(&c.configPath, "config", "c", c.configPath, "path to the configuration")
	c.MarkFlagRequired("config")

	c.Run = func(*cobra.Command, []string) {
		c.run()
	}

	return c
}

func loadConfig(path string) *gitgraft.Config {
	return cmd.GetOrPanic(gitgraft.ParseConfigYAML(cmd.GetOrPanic(os.ReadFile(path))))
}

func (c *runCmd) run() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	config := loadConfig(c.configPath)

	runner, err := gitgraft.NewRunner(config)
	if err != nil {
		slog.Error("failed to set up run", "err", err)
		os.Exit(exitFatal)
	}
	defer runner.Close()

	result, err := runner.Run(ctx)
	if err != nil {
		if conflict, ok := gitgraft.AsConflict(err); ok {
			fmt.Fprintf(os.Stderr,
				"halted on conflict at commit %s\npaths:\n  %s\nresolve the paths in the target working tree, then rerun\n",
				conflict.Commit, strings.Join(conflict.Paths, "\n  "))
			os.Exit(exitConflict)
		}

		slog.Error("run failed", "err", err)
		os.Exit(exitFatal)
	}

	fmt.Printf("transplanted %d commits, skipped %d\n", result.Applied, result.Skipped)
}
