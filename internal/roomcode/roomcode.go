// Package roomcode is an optional convenience layer on top of
// internal/registry: it mints a short, human-dictatable numeric code
// that aliases a room id, and resolves that code back to the id for
// callers who would rather not pass a 36-character UUID around (over
// a phone, in a support ticket, etc).
//
// It is strictly additive. The primary path of spec.md §4.1 — a
// client receives the real room id from its "create" ack and passes
// that id directly to "join" — is unaffected; nothing in
// internal/registry or internal/router depends on this package.
//
// Adapted from the teacher's internal/rendezvous / internal/rendezvouz
// packages (a single-use, 4-digit code ⇄ independently-minted appID
// store for a different product). This version aliases an
// already-created registry room id instead of minting its own id, and
// is multi-use within its TTL: every member who wants to join the
// same room dials the same code.
package roomcode

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrExhausted means every 4-digit code is currently in use and
// unexpired.
var ErrExhausted = errors.New("roomcode: code space exhausted")

// ErrNotFound means the code names no live alias.
var ErrNotFound = errors.New("roomcode: not found or expired")

type entry struct {
	roomID string
	exp    time.Time
}

// Store is an in-memory, TTL-bound code ⇄ room-id alias table.
type Store struct {
	mu     sync.Mutex
	ttl    time.Duration
	codes  map[string]entry  // code -> entry
	byRoom map[string]string // roomID -> code, for idempotent re-mint
}

// NewStore builds a Store whose aliases expire after ttl.
func NewStore(ttl time.Duration) *Store {
	return &Store{
		ttl:    ttl,
		codes:  make(map[string]entry),
		byRoom: make(map[string]string),
	}
}

// Mint returns a 4-digit code aliasing roomID, creating one if none
// exists yet, or refreshing and returning the existing one otherwise.
func (s *Store) Mint(roomID string) (code string, exp time.Time, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	exp = now.Add(s.ttl)

	if existing, ok := s.byRoom[roomID]; ok {
		// The code may since have been reassigned to another room
		// after this room's alias expired; only touch it if it is
		// still this room's.
		if e, ok := s.codes[existing]; ok && e.roomID == roomID {
			if now.Before(e.exp) {
				s.codes[existing] = entry{roomID: roomID, exp: exp}
				return existing, exp, nil
			}
			delete(s.codes, existing)
		}
		delete(s.byRoom, roomID)
	}

	for tries := 0; tries < 10000; tries++ {
		v, rerr := randUint32()
		if rerr != nil {
			return "", time.Time{}, rerr
		}
		code = fmt.Sprintf("%04d", v%10000)
		if e, exists := s.codes[code]; exists && now.Before(e.exp) {
			continue
		}
		s.codes[code] = entry{roomID: roomID, exp: exp}
		s.byRoom[roomID] = code
		return code, exp, nil
	}
	return "", time.Time{}, ErrExhausted
}

// Resolve looks up the room id aliased by code. Expired or unknown
// codes return ErrNotFound.
func (s *Store) Resolve(code string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.codes[code]
	if !ok {
		return "", ErrNotFound
	}
	if time.Now().After(e.exp) {
		delete(s.codes, code)
		delete(s.byRoom, e.roomID)
		return "", ErrNotFound
	}
	return e.roomID, nil
}

func (s *Store) sweep(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for code, e := range s.codes {
		if now.After(e.exp) {
			delete(s.codes, code)
			delete(s.byRoom, e.roomID)
		}
	}
}

// StartJanitor runs a periodic sweep of expired aliases until ctx is
// canceled. The sweep interval scales with the store's TTL so a
// short-lived store (tests) and a long-lived one (production) each
// get a reasonably prompt sweep without busy-looping.
func (s *Store) StartJanitor(ctx context.Context) {
	interval := s.ttl / 4
	if interval < 50*time.Millisecond {
		interval = 50 * time.Millisecond
	}
	t := time.NewTicker(interval)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-t.C:
				s.sweep(now)
			}
		}
	}()
}

func randUint32() (uint32, error) {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]), nil
}
