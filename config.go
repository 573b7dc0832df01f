package gitgraft

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/goccy/go-yaml"
)

var (
	ErrEmptySourcePath = errors.New("empty source_path")
	ErrEmptyTargetPath = errors.New("empty target_path")
	ErrEmptyUntilRef   = errors.New("empty until_ref")
)

// ConfigRule is one filter rule as written in the configuration file.
type ConfigRule struct {
	Pattern  string `yaml:"pattern"`
	Field    string `yaml:"field"`
	Polarity string `yaml:"polarity"`
}

// Config is the YAML configuration of one transplant.
type Config struct {
	SourcePath string `yaml:"source_path"`
	TargetPath string `yaml:"target_path"`

	// SinceRef is the exclusive lower bound of the range, UntilRef the
	// inclusive upper bound. An empty SinceRef means the whole history up to
	// UntilRef.
	SinceRef string `yaml:"since_ref"`
	UntilRef string `yaml:"until_ref"`

	// Branch is the target branch to advance, "master" when empty.
	Branch string `yaml:"branch"`

	Filters   []ConfigRule      `yaml:"filters"`
	AuthorMap map[string]string `yaml:"author_map"`

	// StripMessagePatterns are removed line by line from transplanted commit
	// messages.
	StripMessagePatterns []string `yaml:"strip_message_patterns"`

	// AnnotateSource appends a "git-graft: <source-hash>" trailer to every
	// transplanted commit message. Defaults to true.
	AnnotateSource *bool `yaml:"annotate_source"`

	StateFilePath string `yaml:"state_file_path"`
	LedgerPath    string `yaml:"ledger_path"`
}

// ParseConfigYAML parses and validates the configuration. All filter
// patterns are compiled here so a malformed one fails before any repository
// is touched.
func ParseConfigYAML(file []byte) (*Config, error) {
	result := &Config{}

	if err := yaml.Unmarshal(file, result); err != nil {
		return nil, err
	}

	if err := result.Validate(); err != nil {
		return nil, err
	}

	return result, nil
}

// Validate checks required fields and compiles every pattern once.
func (c *Config) Validate() error {
	if c.SourcePath == "" {
		return ErrEmptySourcePath
	}
	if c.TargetPath == "" {
		return ErrEmptyTargetPath
	}
	if c.UntilRef == "" {
		return ErrEmptyUntilRef
	}

	if _, err := NewRuleSet(c.Filters...); err != nil {
		return err
	}
	if _, err := NewMessageScrubber(c.StripMessagePatterns...); err != nil {
		return err
	}
	if _, err := NewAuthorMap(c.AuthorMap); err != nil {
		return err
	}

	return nil
}

// TargetBranch is the configured branch or "master".
func (c *Config) TargetBranch() string {
	if c.Branch == "" {
		return "master"
	}

	return c.Branch
}

// StateFile is the configured state file location, or the default
// <target>/.git/gitgraft-state.yml.
func (c *Config) StateFile() string {
	if c.StateFilePath != "" {
		return c.StateFilePath
	}

	return filepath.Join(c.TargetPath, ".git", "gitgraft-state.yml")
}

// LedgerFile is the configured ledger location, or the default
// <target>/.git/gitgraft.db.
func (c *Config) LedgerFile() string {
	if c.LedgerPath != "" {
		return c.LedgerPath
	}

	return filepath.Join(c.TargetPath, ".git", "gitgraft.db")
}

// Annotate reports whether transplanted commits carry the source trailer.
func (c *Config) Annotate() bool {
	return c.AnnotateSource == nil || *c.AnnotateSource
}

// compile materializes the compiled filter configuration. Validate has the
// same error surface, compile is for callers that already validated.
func (c *Config) compile() (*RuleSet, MessageScrubber, AuthorMap, error) {
	rules, err := NewRuleSet(c.Filters...)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to compile filters: %w", err)
	}
	scrubber, err := NewMessageScrubber(c.StripMessagePatterns...)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to compile strip_message_patterns: %w", err)
	}
	authormap, err := NewAuthorMap(c.AuthorMap)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to parse author_map: %w", err)
	}

	return rules, scrubber, authormap, nil
}
