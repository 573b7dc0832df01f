package gitgraft

import (
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidIdentity = errors.New("invalid identity, want \"Name <email>\"")

// Identity is one author or committer, the name and email pair of a git
// signature without the timestamp.
type Identity struct {
	Name  string
	Email string
}

// ParseIdentity parses the conventional git form "Name <email>".
func ParseIdentity(s string) (Identity, error) {
	open := strings.LastIndex(s, "<")
	end := strings.LastIndex(s, ">")
	if open < 0 || end < open {
		return Identity{}, fmt.Errorf("%w: %q", ErrInvalidIdentity, s)
	}

	name := strings.TrimSpace(s[:open])
	email := strings.TrimSpace(s[open+1 : end])
	if name == "" || email == "" {
		return Identity{}, fmt.Errorf("%w: %q", ErrInvalidIdentity, s)
	}

	return Identity{Name: name, Email: email}, nil
}

func (id Identity) String() string {
	return fmt.Sprintf("%s <%s>", id.Name, id.Email)
}

// AuthorMap remaps source identities to target identities when stamping
// transplanted commits. Identities absent from the map pass through unchanged.
type AuthorMap map[Identity]Identity

// NewAuthorMap parses a mapping of "Name <email>" strings.
func NewAuthorMap(m map[string]string) (AuthorMap, error) {
	if len(m) == 0 {
		return nil, nil
	}

	result := make(AuthorMap, len(m))
	for from, to := range m {
		f, err := ParseIdentity(from)
		if err != nil {
			return nil, err
		}
		t, err := ParseIdentity(to)
		if err != nil {
			return nil, err
		}
		result[f] = t
	}

	return result, nil
}

// Remap returns the mapped identity, or the input unchanged when no mapping
// exists.
func (m AuthorMap) Remap(id Identity) Identity {
	if mapped, found := m[id]; found {
		return mapped
	}

	return id
}
