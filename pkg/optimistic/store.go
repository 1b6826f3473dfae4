package optimistic

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"bookchain/pkg/domain"
)

// DefaultMaxPasses is how many snapshots an acked mutation may be missing
// from before it is declared lost.
const DefaultMaxPasses = 5

var (
	// ErrReconciliationTimeout marks an acked mutation that never showed up
	// in a confirmed snapshot.
	ErrReconciliationTimeout = errors.New("mutation not confirmed by ledger")
	// ErrUnknownMutation indicates no pending mutation has the given local id.
	ErrUnknownMutation = errors.New("unknown mutation")
	// ErrMutationActive indicates an attempt to dismiss a mutation that has
	// not failed.
	ErrMutationActive = errors.New("mutation still active")
)

// Mutation is a locally issued write that the ledger has not yet confirmed.
type Mutation[T any] struct {
	LocalID     string
	Collection  string
	Operation   string
	Args        []any
	Value       T
	Key         string
	SubmittedAt time.Time
	AckedAt     time.Time
	Status      domain.MutationStatus
	Err         error

	passes int
}

// Snapshot is the ledger-confirmed content of one collection.
type Snapshot[T any] struct {
	Collection string
	Items      []T
	FetchedAt  time.Time
}

// Item is one projected entry. Confirmed entries have an empty LocalID.
type Item[T any] struct {
	Value   T
	Key     string
	LocalID string
	Status  domain.MutationStatus
	Err     error
}

// Pending reports whether the item is an optimistic overlay.
func (i Item[T]) Pending() bool {
	return i.LocalID != ""
}

// Reconciliation summarizes what one snapshot did to the pending set.
type Reconciliation struct {
	Confirmed []string
	TimedOut  []string
}

// Config configures a Store.
type Config[T any] struct {
	// Key returns the natural key used to match a mutation with its
	// confirmed entity.
	Key       func(T) string
	MaxPasses int
	Now       func() time.Time
	NewID     func() string
	Logger    *slog.Logger
}

// Store overlays pending mutations on confirmed snapshots, per collection.
type Store[T any] struct {
	key       func(T) string
	maxPasses int
	now       func() time.Time
	newID     func() string
	logger    *slog.Logger

	mu        sync.RWMutex
	snapshots map[string]Snapshot[T]
	pending   map[string]*Mutation[T]
}

// NewStore constructs a Store. cfg.Key is required.
func NewStore[T any](cfg Config[T]) *Store[T] {
	if cfg.Key == nil {
		panic("optimistic: key function required")
	}
	if cfg.MaxPasses <= 0 {
		cfg.MaxPasses = DefaultMaxPasses
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NewID == nil {
		cfg.NewID = func() string { return uuid.NewString() }
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Store[T]{
		key:       cfg.Key,
		maxPasses: cfg.MaxPasses,
		now:       cfg.Now,
		newID:     cfg.NewID,
		logger:    cfg.Logger,
		snapshots: make(map[string]Snapshot[T]),
		pending:   make(map[string]*Mutation[T]),
	}
}

// ApplyLocal records m as in flight and returns its local id. Applying a
// mutation whose LocalID is already pending is a no-op.
func (s *Store[T]) ApplyLocal(m Mutation[T]) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.LocalID == "" {
		m.LocalID = s.newID()
	}
	if _, exists := s.pending[m.LocalID]; exists {
		return m.LocalID
	}
	if m.Key == "" {
		m.Key = s.key(m.Value)
	}
	if m.SubmittedAt.IsZero() {
		m.SubmittedAt = s.now()
	}
	m.Status = domain.MutationInflight
	m.Err = nil
	m.AckedAt = time.Time{}
	m.passes = 0
	s.pending[m.LocalID] = &m
	return m.LocalID
}

// MarkAcked records that the node accepted the mutation. A mutation already
// retired by a snapshot yields ErrUnknownMutation.
func (s *Store[T]) MarkAcked(localID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.pending[localID]
	if !ok {
		return ErrUnknownMutation
	}
	if m.Status == domain.MutationInflight {
		m.Status = domain.MutationAcked
		m.AckedAt = s.now()
	}
	return nil
}

// MarkFailed records that the node rejected the mutation. The mutation stays
// in the projection until dismissed.
func (s *Store[T]) MarkFailed(localID string, cause error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.pending[localID]
	if !ok {
		return ErrUnknownMutation
	}
	m.Status = domain.MutationFailed
	m.Err = cause
	return nil
}

// Dismiss removes a failed mutation.
func (s *Store[T]) Dismiss(localID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.pending[localID]
	if !ok {
		return ErrUnknownMutation
	}
	if m.Status != domain.MutationFailed {
		return fmt.Errorf("%w: %s is %s", ErrMutationActive, localID, m.Status)
	}
	delete(s.pending, localID)
	return nil
}

// ObserveSnapshot replaces the collection's snapshot and retires every
// non-failed mutation whose key the snapshot now contains. Acked mutations
// still missing use up one pass, unless the snapshot was fetched before the
// ack; when passes run out they fail with ErrReconciliationTimeout. A
// snapshot older than the stored one is ignored.
func (s *Store[T]) ObserveSnapshot(snap Snapshot[T]) Reconciliation {
	if snap.FetchedAt.IsZero() {
		snap.FetchedAt = s.now()
	}
	snap.Items = append([]T(nil), snap.Items...)

	s.mu.Lock()
	defer s.mu.Unlock()

	var res Reconciliation
	if prev, ok := s.snapshots[snap.Collection]; ok && snap.FetchedAt.Before(prev.FetchedAt) {
		s.logger.Debug("ignoring stale snapshot", "collection", snap.Collection, "fetchedAt", snap.FetchedAt)
		return res
	}
	s.snapshots[snap.Collection] = snap

	confirmed := make(map[string]struct{}, len(snap.Items))
	for _, item := range snap.Items {
		confirmed[s.key(item)] = struct{}{}
	}
	for id, m := range s.pending {
		if m.Collection != snap.Collection || m.Status == domain.MutationFailed {
			continue
		}
		if _, ok := confirmed[m.Key]; ok {
			delete(s.pending, id)
			res.Confirmed = append(res.Confirmed, id)
			continue
		}
		if m.Status != domain.MutationAcked || snap.FetchedAt.Before(m.AckedAt) {
			continue
		}
		m.passes++
		if m.passes >= s.maxPasses {
			m.Status = domain.MutationFailed
			m.Err = ErrReconciliationTimeout
			res.TimedOut = append(res.TimedOut, id)
			s.logger.Warn("pending mutation never confirmed",
				"collection", m.Collection, "op", m.Operation, "localId", id, "passes", m.passes)
		}
	}
	sort.Strings(res.Confirmed)
	sort.Strings(res.TimedOut)
	return res
}

// Project returns the snapshot's items in ledger order followed by the live
// overlays ordered by submission time. It does not modify the store.
func (s *Store[T]) Project(collection string) []Item[T] {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := s.snapshots[collection]
	out := make([]Item[T], 0, len(snap.Items))
	for _, v := range snap.Items {
		out = append(out, Item[T]{Value: v, Key: s.key(v)})
	}
	for _, m := range s.pendingLocked(collection) {
		out = append(out, Item[T]{
			Value:   m.Value,
			Key:     m.Key,
			LocalID: m.LocalID,
			Status:  m.Status,
			Err:     m.Err,
		})
	}
	return out
}

// Pending lists the collection's mutations in submission order.
func (s *Store[T]) Pending(collection string) []Mutation[T] {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pendingLocked(collection)
}

// Snapshot returns the stored snapshot for collection.
func (s *Store[T]) Snapshot(collection string) (Snapshot[T], bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.snapshots[collection]
	snap.Items = append([]T(nil), snap.Items...)
	return snap, ok
}

// Lookup returns the pending mutation with localID.
func (s *Store[T]) Lookup(localID string) (Mutation[T], bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.pending[localID]
	if !ok {
		return Mutation[T]{}, false
	}
	return *m, true
}

func (s *Store[T]) pendingLocked(collection string) []Mutation[T] {
	out := make([]Mutation[T], 0)
	for _, m := range s.pending {
		if m.Collection == collection {
			out = append(out, *m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].SubmittedAt.Equal(out[j].SubmittedAt) {
			return out[i].SubmittedAt.Before(out[j].SubmittedAt)
		}
		return out[i].LocalID < out[j].LocalID
	})
	return out
}
