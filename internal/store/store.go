// Package store holds the toggle snapshot a client evaluates against.
//
// A Store has a single writer (the sync loop or test-mode setup) and any
// number of readers. Readers never block and never observe a partially
// built snapshot: snapshots are published by swapping one pointer.
package store

import (
	"sync/atomic"

	"github.com/matt-riley/flagprobe/internal/core"
)

type Store struct {
	current atomic.Pointer[core.Snapshot]
}

// New returns a store serving an empty snapshot at version 0.
func New() *Store {
	s := &Store{}
	s.current.Store(core.EmptySnapshot())
	return s
}

// Current returns the most recently published snapshot. The result must be
// treated as read-only.
func (s *Store) Current() *core.Snapshot {
	return s.current.Load()
}

// Replace publishes next unconditionally. A nil snapshot is ignored.
func (s *Store) Replace(next *core.Snapshot) {
	if next == nil {
		return
	}
	if next.Toggles == nil {
		next.Toggles = map[string]core.Toggle{}
	}
	s.current.Store(next)
}

// ReplaceIfNewer publishes next only when its version is strictly greater
// than the current one, and reports whether it did.
func (s *Store) ReplaceIfNewer(next *core.Snapshot) bool {
	if next == nil {
		return false
	}
	if next.Toggles == nil {
		next.Toggles = map[string]core.Toggle{}
	}

	for {
		current := s.current.Load()
		if next.Version <= current.Version {
			return false
		}
		if s.current.CompareAndSwap(current, next) {
			return true
		}
	}
}
