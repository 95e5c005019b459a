// UCServer - Universal Control Protocol Engine for Media Devices
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ucserver

// Package notify implements the notification store behind uc/events: a
// persistent 64-bit notification counter, the per-resource last-change map,
// and the parked long-poll waiters.
//
// The coalescing rule is load-bearing: Notify only bumps the counter when
// at least one waiter is parked. With nobody listening, consecutive changes
// share the current counter value and are delivered together by the next
// long-poll, which keeps the counter from racing ahead while the box is
// idle.
package notify

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/tomtom215/ucserver/internal/logging"
)

// DefaultTimeout bounds a parked uc/events long-poll.
const DefaultTimeout = 60 * time.Second

// Store is the notification store. A single mutex and condition variable
// protect the counter, the change map and the waiter count.
type Store struct {
	mu      sync.Mutex
	cond    *sync.Cond
	path    string
	counter uint64
	changes map[string]uint64
	waiters int
	timeout time.Duration
}

// Open loads the persisted counter from path, reseeding from the clock if
// the file is missing or corrupt, and returns a ready Store. An empty path
// keeps the counter in memory only.
func Open(path string, timeout time.Duration) *Store {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	s := &Store{
		path:    path,
		changes: make(map[string]uint64),
		timeout: timeout,
	}
	s.cond = sync.NewCond(&s.mu)
	s.counter = s.load()
	return s
}

// load reads the 16-hex-digit counter file. Any failure reseeds the
// counter as seconds-since-epoch shifted into the top half and rewrites
// the file.
func (s *Store) load() uint64 {
	if s.path != "" {
		data, err := os.ReadFile(s.path)
		if err == nil {
			line := strings.TrimSpace(string(data))
			if id, perr := strconv.ParseUint(line, 16, 64); perr == nil && len(line) == 16 {
				return id
			}
			logging.Warn().Str("path", s.path).Msg("Corrupt notification id file, reseeding")
		}
	}

	id := uint64(time.Now().Unix()) << 32
	s.persist(id)
	return id
}

func (s *Store) persist(id uint64) {
	if s.path == "" {
		return
	}
	if err := os.WriteFile(s.path, []byte(fmt.Sprintf("%016x\n", id)), 0o644); err != nil {
		logging.Error().Err(err).Str("path", s.path).Msg("Failed to persist notification id")
	}
}

// GreaterThan compares two counter values with wrap-aware ordering:
// a > b iff (a-b) mod 2^64 <= 2^63 and a != b.
func GreaterThan(a, b uint64) bool {
	if a == b {
		return false
	}
	return a-b <= 1<<63
}

// Current returns the counter without modifying it.
func (s *Store) Current() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counter
}

// Bump atomically increments the counter modulo 2^64 and persists it.
func (s *Store) Bump() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bumpLocked()
}

func (s *Store) bumpLocked() uint64 {
	s.counter++
	s.persist(s.counter)
	return s.counter
}

// Notify records a notifiable change to the given resource. If any
// long-poll waiters are parked the counter is bumped first and all waiters
// are woken; otherwise the change is recorded at the current counter so it
// coalesces with the next one.
func (s *Store) Notify(resource string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.waiters != 0 {
		s.changes[resource] = s.bumpLocked()
		s.cond.Broadcast()
	} else {
		s.changes[resource] = s.counter
	}
	logging.Debug().Str("resource", resource).Uint64("notification_id", s.changes[resource]).
		Msg("Notifiable change recorded")
}

// ChangedSince returns the resources whose last change is later than
// since, in report order: uc/power first, uc next, everything else after
// (sorted for determinism). In standby only uc and uc/power are reported.
func (s *Store) ChangedSince(since uint64, standby bool) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.changedSinceLocked(since, standby)
}

func (s *Store) changedSinceLocked(since uint64, standby bool) []string {
	var power, base bool
	var rest []string
	for resource, id := range s.changes {
		if !GreaterThan(id, since) {
			continue
		}
		switch resource {
		case "uc/power":
			power = true
		case "uc":
			base = true
		default:
			if !standby {
				rest = append(rest, resource)
			}
		}
	}
	sort.Strings(rest)

	out := make([]string, 0, len(rest)+2)
	if power {
		out = append(out, "uc/power")
	}
	if base {
		out = append(out, "uc")
	}
	return append(out, rest...)
}

// Wait implements the long-poll body of GET uc/events. It returns the
// changed resources since the given counter together with the counter to
// report. If the changed set is immediately non-empty the counter is
// bumped before returning; otherwise the caller parks until a notification
// or the configured timeout, and whatever is present on wake-up is
// returned (possibly nothing, with the counter unchanged).
func (s *Store) Wait(since uint64, standby func() bool) (uint64, []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.waiters++
	defer func() { s.waiters-- }()

	changed := s.changedSinceLocked(since, standby())
	if len(changed) != 0 {
		return s.bumpLocked(), changed
	}

	s.waitLocked(s.timeout)
	return s.counter, s.changedSinceLocked(since, standby())
}

// waitLocked blocks on the condition variable for at most d. sync.Cond has
// no native timeout, so a timer broadcasts when the deadline passes;
// spurious wake-ups of other waiters are harmless because every waiter
// recomputes its changed set on return.
func (s *Store) waitLocked(d time.Duration) {
	timer := time.AfterFunc(d, func() {
		s.mu.Lock()
		s.cond.Broadcast()
		s.mu.Unlock()
	})
	defer timer.Stop()

	s.cond.Wait()
}

// Waiters reports the number of parked long-polls.
func (s *Store) Waiters() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.waiters
}
