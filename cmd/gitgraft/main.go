package main

import (
	"github.com/spf13/cobra"
)

func main() {
	newRootCmd().Execute()
}

type rootCmd struct {
	*cobra.Command
}

func newRootCmd() *rootCmd {
	c := &rootCmd{
		Command: &cobra.Command{
			Use:   "gitgraft",
			Short: "transplant commits between git repositories",
			Long: `gitgraft copies a linear range of commits from a source git repository onto
a target repository, replaying each kept commit's tree changes as a new
commit. Runs are resumable: a conflict or a crash halts the run with its
progress checkpointed, and rerunning continues from the first unprocessed
commit.`,
			Args: cobra.NoArgs,
		},
	}

	c.AddCommand(
		newRunCmd().Command,
		newBootstrapCmd().Command,
		newStatusCmd().Command,
		newClearCmd().Command,
	)

	return c
}
