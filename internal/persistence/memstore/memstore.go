// Package memstore is an in-memory implementation of persistence.Port,
// built on a map guarded by sync.RWMutex with per-saga locking. It
// backs tests and serves as the default demo persistence backend when
// no DATABASE_URL is configured.
package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/katalystsys/sagaflow/internal/persistence"
	"github.com/katalystsys/sagaflow/internal/sagacontext"
	"github.com/katalystsys/sagaflow/internal/sagastatus"
	"github.com/katalystsys/sagaflow/internal/step"
)

// Store is a process-local, thread-safe persistence.Port.
type Store struct {
	mu        sync.RWMutex
	byOrderID map[string]*sagacontext.SagaContext
	byOrderNo map[string]string // orderNo -> orderID
	steps     map[string][]step.Log

	lockMu sync.Mutex
	locks  map[string]bool // orderID -> held
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		byOrderID: make(map[string]*sagacontext.SagaContext),
		byOrderNo: make(map[string]string),
		steps:     make(map[string][]step.Log),
		locks:     make(map[string]bool),
	}
}

func clone(sc *sagacontext.SagaContext) *sagacontext.SagaContext {
	cp := *sc
	cp.ForwardSteps = append([]step.Step(nil), sc.ForwardSteps...)
	cp.CompensationSteps = append([]step.Step(nil), sc.CompensationSteps...)
	cp.ProcessedStepIDs = append([]string(nil), sc.ProcessedStepIDs...)
	return &cp
}

// Create persists sc, failing only on a duplicate OrderID — the
// documented Port contract. OrderNo-level business deduplication is
// the DedupHook's job (internal/hookset), run by engine.Engine.Start
// before a saga is ever persisted; Create deliberately does not
// re-enforce it, since by the time a row lands here the hook chain
// has already had its say.
func (s *Store) Create(_ context.Context, sc *sagacontext.SagaContext) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byOrderID[sc.OrderID]; exists {
		return false, nil
	}
	s.byOrderID[sc.OrderID] = clone(sc)
	s.byOrderNo[sc.OrderNo] = sc.OrderID
	return true, nil
}

func (s *Store) UpdateStatus(_ context.Context, sc *sagacontext.SagaContext, prevUpdatedAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.byOrderID[sc.OrderID]
	if !ok {
		return false, persistence.ErrNotFound
	}
	if !existing.UpdatedAt.Equal(prevUpdatedAt) {
		return false, nil
	}
	s.byOrderID[sc.OrderID] = clone(sc)
	return true, nil
}

func (s *Store) FindByID(_ context.Context, orderID string) (*sagacontext.SagaContext, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sc, ok := s.byOrderID[orderID]
	if !ok {
		return nil, persistence.ErrNotFound
	}
	return clone(sc), nil
}

func (s *Store) FindByOrderNo(_ context.Context, orderNo string) (*sagacontext.SagaContext, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	orderID, ok := s.byOrderNo[orderNo]
	if !ok {
		return nil, persistence.ErrNotFound
	}
	return clone(s.byOrderID[orderID]), nil
}

func (s *Store) ExistsByOrderNo(_ context.Context, orderNo string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.byOrderNo[orderNo]
	return ok, nil
}

func (s *Store) SaveSteps(_ context.Context, logs []step.Log) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, l := range logs {
		s.steps[l.OrderID] = append(s.steps[l.OrderID], l)
	}
	return true, nil
}

func (s *Store) LoadSteps(_ context.Context, orderID string) ([]step.Log, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]step.Log(nil), s.steps[orderID]...), nil
}

func (s *Store) FindStuckSagas(_ context.Context, statuses []sagastatus.Status, olderThan time.Time, limit int) ([]*sagacontext.SagaContext, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wanted := make(map[sagastatus.Status]bool, len(statuses))
	for _, st := range statuses {
		wanted[st] = true
	}

	var out []*sagacontext.SagaContext
	for _, sc := range s.byOrderID {
		if len(out) >= limit {
			break
		}
		if !wanted[sc.Status] {
			continue
		}
		if sc.UpdatedAt.Before(olderThan) {
			out = append(out, clone(sc))
		}
	}
	return out, nil
}

// TryLock acquires the per-saga lock with a non-blocking check keyed
// by orderID.
func (s *Store) TryLock(_ context.Context, orderID string) (bool, error) {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()

	if s.locks[orderID] {
		return false, nil
	}
	s.locks[orderID] = true
	return true, nil
}

func (s *Store) ReleaseLock(_ context.Context, orderID string) error {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()

	delete(s.locks, orderID)
	return nil
}

var _ persistence.Port = (*Store)(nil)
