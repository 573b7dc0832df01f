package gitgraft

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/object"
)

// RuleField selects what part of a commit a [Rule] matches against.
type RuleField uint8

const (
	// FieldMessage matches the rule against the full commit message.
	FieldMessage RuleField = iota
	// FieldPath matches the rule against each changed path, any match counts.
	FieldPath
)

func (f RuleField) String() string {
	switch f {
	case FieldMessage:
		return "message"
	case FieldPath:
		return "path"
	default:
		return fmt.Sprintf("field(%d)", f)
	}
}

// RulePolarity is whether a matching [Rule] keeps or drops a commit.
type RulePolarity uint8

const (
	PolarityInclude RulePolarity = iota
	PolarityExclude
)

func (p RulePolarity) String() string {
	switch p {
	case PolarityInclude:
		return "include"
	case PolarityExclude:
		return "exclude"
	default:
		return fmt.Sprintf("polarity(%d)", p)
	}
}

// Rule is one compiled inclusion or exclusion predicate.
type Rule struct {
	Pattern  *regexp.Regexp
	Field    RuleField
	Polarity RulePolarity
}

func (r *Rule) String() string {
	return fmt.Sprintf("%s %s %q", r.Polarity, r.Field, r.Pattern)
}

// matches reports whether the rule matches the commit message or any of the
// changed paths, depending on the rule field.
func (r *Rule) matches(message string, paths []string) bool {
	switch r.Field {
	case FieldMessage:
		return r.Pattern.MatchString(message)
	case FieldPath:
		for _, p := range paths {
			if r.Pattern.MatchString(p) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// RuleSet is the ordered active filter configuration.
type RuleSet struct {
	rules       []*Rule
	hasIncludes bool
}

// NewRuleSet compiles the rules. A pattern that fails to compile returns
// [ErrInvalidFilterPattern], so a malformed configuration fails at load time
// and never at commit evaluation time.
func NewRuleSet(rules ...ConfigRule) (*RuleSet, error) {
	r := &RuleSet{}

	for _, cr := range rules {
		field, err := parseRuleField(cr.Field)
		if err != nil {
			return nil, err
		}
		polarity, err := parseRulePolarity(cr.Polarity)
		if err != nil {
			return nil, err
		}
		re, err := regexp.Compile(cr.Pattern)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrInvalidFilterPattern, cr.Pattern, err)
		}

		rule := &Rule{Pattern: re, Field: field, Polarity: polarity}
		r.rules = append(r.rules, rule)
		if polarity == PolarityInclude {
			r.hasIncludes = true
		}
	}

	return r, nil
}

func parseRuleField(s string) (RuleField, error) {
	switch s {
	case "message", "":
		return FieldMessage, nil
	case "path":
		return FieldPath, nil
	default:
		return 0, fmt.Errorf("%w: unknown field %q", ErrInvalidFilterPattern, s)
	}
}

func parseRulePolarity(s string) (RulePolarity, error) {
	switch s {
	case "include":
		return PolarityInclude, nil
	case "exclude":
		return PolarityExclude, nil
	default:
		return 0, fmt.Errorf("%w: unknown polarity %q", ErrInvalidFilterPattern, s)
	}
}

// Decision is the outcome of evaluating one commit against a [RuleSet].
type Decision struct {
	Keep bool
	// Reason is the rule that dropped the commit, empty for kept commits.
	Reason string
}

// Evaluate decides keep or drop for one commit. The decision is a pure
// function of the commit message, its changed paths and the rule set, so the
// same decision can be recomputed on resume.
//
// Precedence is fixed: exclusions always override inclusions. When the set
// contains include rules, a commit must match at least one of them to be
// kept; a commit matching any exclude rule is dropped regardless. The rule
// order only determines which rule is named in the drop reason.
func (r *RuleSet) Evaluate(c *object.Commit, changedPaths []string) Decision {
	if r == nil || len(r.rules) == 0 {
		return Decision{Keep: true}
	}

	included := !r.hasIncludes
	for _, rule := range r.rules {
		if rule.Polarity != PolarityInclude {
			continue
		}
		if rule.matches(c.Message, changedPaths) {
			included = true
			break
		}
	}

	if !included {
		return Decision{Reason: "no include rule matched"}
	}

	for _, rule := range r.rules {
		if rule.Polarity != PolarityExclude {
			continue
		}
		if rule.matches(c.Message, changedPaths) {
			return Decision{Reason: rule.String()}
		}
	}

	return Decision{Keep: true}
}

// MessageScrubber removes message lines matching any of its patterns from
// transplanted commit messages.
type MessageScrubber []*regexp.Regexp

// NewMessageScrubber compiles the patterns, failing with
// [ErrInvalidFilterPattern] on a malformed one.
func NewMessageScrubber(patterns ...string) (MessageScrubber, error) {
	if len(patterns) == 0 {
		return nil, nil
	}

	result := make(MessageScrubber, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrInvalidFilterPattern, p, err)
		}
		result = append(result, re)
	}

	return result, nil
}

// Scrub drops every message line matching one of the patterns.
func (s MessageScrubber) Scrub(message string) string {
	if len(s) == 0 {
		return message
	}

	lines := strings.Split(message, "\n")
	kept := make([]string, 0, len(lines))

lineloop:
	for _, line := range lines {
		for _, re := range s {
			if re.MatchString(line) {
				continue lineloop
			}
		}
		kept = append(kept, line)
	}

	return strings.Join(kept, "\n")
}
