package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"comply/internal/filing"
	"comply/pkg/platform/sentinel"
)

// MemoryStore is an in-memory filing store for development and tests. The
// optimistic version check mirrors the Postgres store so concurrency tests
// exercise the same semantics.
type MemoryStore struct {
	mu       sync.RWMutex
	filings  map[uuid.UUID]*filing.Filing
	deposits map[string]depositRecord
}

type depositRecord struct {
	subjectID string
	amount    float64
	at        time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		filings:  make(map[uuid.UUID]*filing.Filing),
		deposits: make(map[string]depositRecord),
	}
}

// Save inserts a new filing. Duplicate ids conflict.
func (s *MemoryStore) Save(_ context.Context, f *filing.Filing) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.filings[f.ID]; exists {
		return fmt.Errorf("filing %s already exists: %w", f.ID, sentinel.ErrConflict)
	}
	cp := *f
	s.filings[f.ID] = &cp
	return nil
}

// Update applies an optimistic version check: the stored version must match
// the caller's, and the stored copy advances by one.
func (s *MemoryStore) Update(_ context.Context, f *filing.Filing) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.filings[f.ID]
	if !ok {
		return fmt.Errorf("filing %s: %w", f.ID, sentinel.ErrNotFound)
	}
	if current.Version != f.Version {
		return fmt.Errorf("filing %s version %d superseded by %d: %w",
			f.ID, f.Version, current.Version, sentinel.ErrConflict)
	}
	cp := *f
	cp.Version++
	s.filings[f.ID] = &cp
	f.Version = cp.Version
	return nil
}

// FindByID returns a copy of the filing.
func (s *MemoryStore) FindByID(_ context.Context, id uuid.UUID) (*filing.Filing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.filings[id]
	if !ok {
		return nil, fmt.Errorf("filing %s: %w", id, sentinel.ErrNotFound)
	}
	cp := *f
	return &cp, nil
}

// ListActive returns all non-terminal filings.
func (s *MemoryStore) ListActive(_ context.Context) ([]*filing.Filing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*filing.Filing
	for _, f := range s.filings {
		if !f.Status.IsTerminal() {
			cp := *f
			out = append(out, &cp)
		}
	}
	return out, nil
}

// RecordCashDeposit appends a deposit to the cash ledger. Recording the same
// transaction id twice is a no-op, matching the Postgres store.
func (s *MemoryStore) RecordCashDeposit(_ context.Context, transactionID, subjectID string, amount float64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.deposits[transactionID]; exists {
		return nil
	}
	s.deposits[transactionID] = depositRecord{subjectID: subjectID, amount: amount, at: at}
	return nil
}

// SumRecentAmountsBySubject totals ledgered cash deposits for a subject since
// the given time. Backs structuring-pattern detection.
func (s *MemoryStore) SumRecentAmountsBySubject(_ context.Context, subjectID string, since time.Time) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var sum float64
	for _, d := range s.deposits {
		if d.subjectID == subjectID && !d.at.Before(since) {
			sum += d.amount
		}
	}
	return sum, nil
}
