// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package settings

import "sync"

// Sink is notified with a copy of the committed settings after every Apply
type Sink interface {
	OnSettingsChanged(s Settings)
}

// Store keeps the committed settings, which are mirrored to the ECU, and the
// staged copy the operator is editing. Staged values never leave the store
// until Apply promotes them.
type Store struct {
	mu        sync.Mutex
	committed Settings
	staged    Settings
	sink      Sink
}

// NewStore creates a store with both copies set to initial
func NewStore(initial Settings) *Store {
	return &Store{committed: initial, staged: initial}
}

// SetSink sets the receiver of committed settings
func (s *Store) SetSink(sink Sink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sink = sink
}

// Committed returns a copy of the committed settings
func (s *Store) Committed() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.committed
}

// Staged returns a copy of the staged settings
func (s *Store) Staged() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.staged
}

// Stage applies edit to a copy of the staged settings. The edit is kept only
// if the result validates.
func (s *Store) Stage(edit func(*Settings)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.staged
	edit(&next)
	if err := next.Validate(); err != nil {
		return err
	}
	s.staged = next
	return nil
}

// Dirty reports whether staged differs from committed
func (s *Store) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.staged != s.committed
}

// Apply promotes staged to committed and notifies the sink
func (s *Store) Apply() (Settings, error) {
	s.mu.Lock()
	if err := s.staged.Validate(); err != nil {
		s.mu.Unlock()
		return Settings{}, err
	}
	s.committed = s.staged
	committed := s.committed
	sink := s.sink
	s.mu.Unlock()

	if sink != nil {
		sink.OnSettingsChanged(committed)
	}
	return committed, nil
}

// Discard resets staged to committed
func (s *Store) Discard() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.staged = s.committed
}
