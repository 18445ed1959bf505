// Package model defines model artifact identities, the packaged artifact
// format, and the error taxonomy shared by the serving cache tiers.
package model

import (
	"fmt"
	"strings"
)

// ID identifies a published model artifact.
//
// An ID is a free-form token chosen at publish time, typically a
// filename-like string with a version suffix (e.g. "bert-base-v3.tar.gz").
// Artifacts are immutable once published: a new model version must be
// published under a new ID, never by overwriting an existing one. This keeps
// every cache tier trivially coherent - bytes for an ID never change.
type ID string

// Validate checks that the identity is usable as a store key and a cache
// directory entry.
func (id ID) Validate() error {
	s := string(id)

	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: empty identity", ErrInvalidIdentity)
	}
	if strings.HasPrefix(s, "/") || strings.HasPrefix(s, ".") {
		return fmt.Errorf("%w: %q must not start with %q", ErrInvalidIdentity, s, s[:1])
	}
	if strings.Contains(s, "..") {
		return fmt.Errorf("%w: %q contains a path traversal sequence", ErrInvalidIdentity, s)
	}
	for _, r := range s {
		if r < 0x20 || r == 0x7f {
			return fmt.Errorf("%w: %q contains control characters", ErrInvalidIdentity, s)
		}
	}

	return nil
}

// String returns the identity as a plain string.
func (id ID) String() string {
	return string(id)
}
