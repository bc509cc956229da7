// Package idgen generates fresh room ids.
//
// The registry never calls a UUID library directly; it takes a
// generator function so tests can force collisions. Gen is the
// default used by cmd/relay.
package idgen

import "github.com/google/uuid"

// Func produces a fresh, 36-character UUID-shaped string.
type Func func() string

// Gen is the production generator, backed by a random UUIDv4.
func Gen() string {
	return uuid.NewString()
}
