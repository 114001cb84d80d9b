// Package session defines the identity of a durable agent session: an owner
// name plus a unique key, with a canonical string form used to address the
// backing entity across process restarts.
package session

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
)

// entityPrefix is the fixed prefix turning an agent name into the entity-type
// name registered with the durable substrate. The transform is reversible so
// an entity id observed on the substrate can be mapped back to its session.
const entityPrefix = "agent_"

// ErrInvalidFormat is returned by Parse for strings that do not match the
// canonical "@agent_name@key" shape.
var ErrInvalidFormat = errors.New("session: invalid session id format")

// ID identifies one agent session. Name is case-insensitive and normalized to
// lower case at construction; Key is case-sensitive. Values are comparable
// with ==.
type ID struct {
	Name string
	Key  string
}

// New returns a session id for the named agent with a fresh random key.
// Intended for caller-initiated sessions; inside replayed orchestration code
// use NewFromReader with the orchestration's deterministic random source.
func New(name string) ID {
	return ID{Name: normalize(name), Key: uuid.NewString()}
}

// WithKey builds a session id from an explicit key. Used by substrate code
// that derives keys through its own replay-safe machinery.
func WithKey(name, key string) ID {
	return ID{Name: normalize(name), Key: key}
}

// NewFromReader derives the session key from r so that the same identifier is
// produced on every replay of deterministic orchestration code.
func NewFromReader(name string, r io.Reader) (ID, error) {
	u, err := uuid.NewRandomFromReader(r)
	if err != nil {
		return ID{}, fmt.Errorf("session: derive key: %w", err)
	}
	return ID{Name: normalize(name), Key: u.String()}, nil
}

// Parse is the exact inverse of String. It fails with an error matching
// ErrInvalidFormat for any string lacking the "@agent_name@key" shape,
// including entity names that do not carry the expected prefix.
func Parse(s string) (ID, error) {
	if !strings.HasPrefix(s, "@") {
		return ID{}, fmt.Errorf("%w: %q", ErrInvalidFormat, s)
	}
	rest := s[1:]
	i := strings.Index(rest, "@")
	if i <= 0 || i == len(rest)-1 {
		return ID{}, fmt.Errorf("%w: %q", ErrInvalidFormat, s)
	}
	name, ok := strings.CutPrefix(normalize(rest[:i]), entityPrefix)
	if !ok || name == "" {
		return ID{}, fmt.Errorf("%w: %q", ErrInvalidFormat, s)
	}
	return ID{Name: name, Key: rest[i+1:]}, nil
}

// String returns the canonical "@agent_name@key" form, which is also the
// entity instance id the session addresses on the durable substrate.
func (id ID) String() string {
	return "@" + id.EntityName() + "@" + id.Key
}

// EntityName returns the entity-type name this session addresses on the
// durable substrate.
func (id ID) EntityName() string {
	return entityPrefix + id.Name
}

// FromEntityName recovers the agent name from an entity-type name produced by
// EntityName. Fails when the prefix is missing.
func FromEntityName(entity string) (string, error) {
	name, ok := strings.CutPrefix(entity, entityPrefix)
	if !ok || name == "" {
		return "", fmt.Errorf("%w: entity name %q", ErrInvalidFormat, entity)
	}
	return name, nil
}

// IsZero reports whether the id is the zero value.
func (id ID) IsZero() bool { return id.Name == "" && id.Key == "" }

func normalize(name string) string { return strings.ToLower(name) }
