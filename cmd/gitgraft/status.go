package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/spf13/cobra"

	"github.com/fardream/gitgraft"
)

type statusCmd struct {
	*cobra.Command

	configPath string
	verbose    bool
}

func newStatusCmd() *statusCmd {
	c := &statusCmd{
		Command: &cobra.Command{
			Use:   "status",
			Short: "show the pending run state and the transplant ledger",
			Args:  cobra.NoArgs,
		},
	}

	c.Flags().StringVarP(&c.configPath, "config", "c", c.configPath, "path to the configuration")
	c.MarkFlagRequired("config")
	c.Flags().BoolVarP(&c.verbose, "verbose", "v", c.verbose, "list every ledger entry")

	c.Run = func(*cobra.Command, []string) {
		c.run()
	}

	return c
}

func (c *statusCmd) run() {
	config := loadConfig(c.configPath)

	store := gitgraft.NewFileStore(config.StateFile())
	state, err := store.Load()
	if err != nil {
		slog.Error("failed to load state", "err", err)
		os.Exit(exitFatal)
	}

	switch {
	case state == nil:
		fmt.Println("no run in progress")
	case state.Pending != nil:
		fmt.Printf("run %s halted on conflict at commit %s\npaths:\n  %s\n%d commits remaining\n",
			state.RunID, state.Pending.Commit,
			strings.Join(state.Pending.Paths, "\n  "), len(state.Queue))
	default:
		fmt.Printf("run %s in progress, %d commits remaining\n", state.RunID, len(state.Queue))
	}

	ledger, err := gitgraft.OpenLedger(config.LedgerFile())
	if err != nil {
		slog.Error("failed to open ledger", "err", err)
		os.Exit(exitFatal)
	}
	defer ledger.Close()

	applied, skipped, err := ledger.Counts()
	if err != nil {
		slog.Error("failed to read ledger", "err", err)
		os.Exit(exitFatal)
	}
	fmt.Printf("ledger: %d applied, %d skipped\n", applied, skipped)

	if !c.verbose {
		return
	}

	ledger.ForEachApplied(func(source, target plumbing.Hash) error {
		fmt.Printf("applied %s -> %s\n", source, target)
		return nil
	})
	ledger.ForEachSkipped(func(source plumbing.Hash, reason string) error {
		fmt.Printf("skipped %s (%s)\n", source, reason)
		return nil
	})
}
