// gitgraft transplants a linear range of commits from one git repository onto another.
// Each source commit's tree changes are replayed as a new commit on the target's
// current branch, with optional filtering on commit messages and changed paths,
// and optional remapping of author/committer identities.
//
// The engine is resumable: progress is checkpointed to a state file after every
// commit, so an interrupted run (by a conflict or a crash) continues from exactly
// where it stopped. See [Runner] for the main entry point, [ResolveRange] for
// range resolution, and [RuleSet] for filtering.
package gitgraft
