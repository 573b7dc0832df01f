package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/fardream/gitgraft"
)

type clearCmd struct {
	*cobra.Command

	configPath string
	force      bool
}

func newClearCmd() *clearCmd {
	c := &clearCmd{
		Command: &cobra.Command{
			Use:   "clear",
			Short: "abandon the pending run state",
			Long: `Clear removes the persisted run state so the next run starts fresh.
Commits already transplanted stay on the target and in the ledger; the
remaining queue is discarded. Requires --force.`,
			Args: cobra.NoArgs,
		},
	}

	c.Flags().StringVarP(&c.configPath, "config", "c", c.configPath, "path to the configuration")
	c.MarkFlagRequired("config")
	c.Flags().BoolVarP(&c.force, "force", "f", c.force, "actually remove the state")

	c.Run = func(*cobra.Command, []string) {
		c.run()
	}

	return c
}

func (c *clearCmd) run() {
	config := loadConfig(c.configPath)

	store := gitgraft.NewFileStore(config.StateFile())
	state, err := store.Load()
	if err != nil {
		slog.Error("failed to load state", "err", err)
		os.Exit(exitFatal)
	}
	if state == nil {
		fmt.Println("no run in progress")
		return
	}

	if !c.force {
		fmt.Printf("run %s has %d commits remaining, pass --force to abandon it\n", state.RunID, len(state.Queue))
		os.Exit(exitFatal)
	}

	if err := store.Clear(); err != nil {
		slog.Error("failed to clear state", "err", err)
		os.Exit(exitFatal)
	}

	fmt.Printf("cleared run %s\n", state.RunID)
}
