package queue

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// ErrNotFound is returned when no entry exists for an id.
var ErrNotFound = errors.New("queue entry not found")

// Store persists queue entries. Implementations must provide atomic
// compare-and-set semantics for the PENDING to IN_FLIGHT transition and a
// uniqueness guarantee on the entry id.
//
// Outcome methods (Complete, Reschedule, Abandon, Fail) apply only while the
// entry is IN_FLIGHT; an outcome arriving for an entry that has since become
// terminal is discarded silently. This is what makes stale outcomes from an
// attempt that outlived its entry harmless.
type Store interface {
	// Enqueue inserts the entry. If an entry with the same id is already
	// PENDING or IN_FLIGHT the call is a no-op and returns false.
	Enqueue(ctx context.Context, e *Entry) (bool, error)

	// Due returns up to limit PENDING entries whose NextAttemptAt has
	// passed, oldest first.
	Due(ctx context.Context, now time.Time, limit int) ([]*Entry, error)

	// MarkInFlight transitions PENDING to IN_FLIGHT atomically. Returns
	// false when the entry was not PENDING, which means another worker got
	// there first or the entry is terminal.
	MarkInFlight(ctx context.Context, id string) (*Entry, bool, error)

	// Complete records a successful send.
	Complete(ctx context.Context, id, externalID string) error

	// Reschedule returns the entry to PENDING for another attempt.
	Reschedule(ctx context.Context, id string, attemptCount int, lastAttemptAt, nextAttemptAt time.Time, lastError string) error

	// Abandon terminates the entry after a permanent failure or exhausted
	// retries.
	Abandon(ctx context.Context, id, reason string) error

	// Fail terminates the entry without transmission, typically after an
	// integrity check failure.
	Fail(ctx context.Context, id, reason string) error

	// Get returns the entry for a status query.
	Get(ctx context.Context, id string) (*Entry, error)

	// FindByConversation returns the entries for a conversation across all
	// channels, used by the receipt reconciler.
	FindByConversation(ctx context.Context, conversationID string) ([]*Entry, error)

	// RecordReceipt applies a delivery receipt to an entry that is SENT or
	// IN_FLIGHT. accepted=false abandons the entry. Returns false without
	// mutation when the entry is in neither state; out-of-order receipts
	// must never move a PENDING or terminal entry.
	RecordReceipt(ctx context.Context, id string, accepted bool, externalID string) (bool, error)
}

// MemoryStore is an in-process Store for tests and single-node deployments
// that accept losing the queue on restart.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*Entry
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]*Entry)}
}

func (s *MemoryStore) Enqueue(ctx context.Context, e *Entry) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.entries[e.ID]; ok && !existing.Status.Terminal() {
		return false, nil
	}
	clone := *e
	s.entries[e.ID] = &clone
	return true, nil
}

func (s *MemoryStore) Due(ctx context.Context, now time.Time, limit int) ([]*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []*Entry
	for _, e := range s.entries {
		if e.Status == StatusPending && !e.NextAttemptAt.After(now) {
			clone := *e
			due = append(due, &clone)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].NextAttemptAt.Before(due[j].NextAttemptAt) })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (s *MemoryStore) MarkInFlight(ctx context.Context, id string) (*Entry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return nil, false, ErrNotFound
	}
	if e.Status != StatusPending {
		return nil, false, nil
	}
	e.Status = StatusInFlight
	clone := *e
	return &clone, true, nil
}

func (s *MemoryStore) Complete(ctx context.Context, id, externalID string) error {
	return s.applyOutcome(id, func(e *Entry) {
		e.Status = StatusSent
		e.ExternalID = externalID
		e.LastError = ""
	})
}

func (s *MemoryStore) Reschedule(ctx context.Context, id string, attemptCount int, lastAttemptAt, nextAttemptAt time.Time, lastError string) error {
	return s.applyOutcome(id, func(e *Entry) {
		e.Status = StatusPending
		e.AttemptCount = attemptCount
		e.LastAttemptAt = lastAttemptAt
		e.NextAttemptAt = nextAttemptAt
		e.LastError = lastError
	})
}

func (s *MemoryStore) Abandon(ctx context.Context, id, reason string) error {
	return s.applyOutcome(id, func(e *Entry) {
		e.Status = StatusAbandoned
		e.LastError = reason
	})
}

func (s *MemoryStore) Fail(ctx context.Context, id, reason string) error {
	return s.applyOutcome(id, func(e *Entry) {
		e.Status = StatusFailed
		e.LastError = reason
	})
}

// applyOutcome mutates an IN_FLIGHT entry. Outcomes for entries in any
// other state are stale and dropped.
func (s *MemoryStore) applyOutcome(id string, apply func(*Entry)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return ErrNotFound
	}
	if e.Status != StatusInFlight {
		return nil
	}
	apply(e)
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *e
	return &clone, nil
}

func (s *MemoryStore) FindByConversation(ctx context.Context, conversationID string) ([]*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var found []*Entry
	for _, e := range s.entries {
		if e.ConversationID == conversationID {
			clone := *e
			found = append(found, &clone)
		}
	}
	sort.Slice(found, func(i, j int) bool { return found[i].ID < found[j].ID })
	return found, nil
}

func (s *MemoryStore) RecordReceipt(ctx context.Context, id string, accepted bool, externalID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return false, ErrNotFound
	}
	if e.Status != StatusSent && e.Status != StatusInFlight {
		return false, nil
	}
	if accepted {
		e.Status = StatusSent
		if externalID != "" {
			e.ExternalID = externalID
		}
	} else {
		e.Status = StatusAbandoned
		e.LastError = "delivery receipt reported error"
	}
	return true, nil
}
