// Package store provides in-memory lease.Store implementations.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/warp/lease-loan/lease"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu          sync.RWMutex
	loans       map[lease.LoanID]lease.Record
	repayments  map[lease.LoanID][]lease.Repayment
	idempotency map[string]bool
}

func NewMemory() *Memory {
	return &Memory{
		loans:       make(map[lease.LoanID]lease.Record),
		repayments:  make(map[lease.LoanID][]lease.Repayment),
		idempotency: make(map[string]bool),
	}
}

func (m *Memory) CreateLoan(_ context.Context, r lease.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createLocked(r)
}

func (m *Memory) GetLoan(_ context.Context, id lease.LoanID) (lease.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getLocked(id)
}

func (m *Memory) SaveLoan(_ context.Context, r lease.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveLocked(r)
}

func (m *Memory) ListLoans(_ context.Context) ([]lease.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listLocked(), nil
}

// AppendRepayment adds a repayment. Append-only.
func (m *Memory) AppendRepayment(_ context.Context, r lease.Repayment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appendLocked(r)
}

func (m *Memory) Repayments(_ context.Context, id lease.LoanID) ([]lease.Repayment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.repaymentsLocked(id), nil
}

func (m *Memory) Exists(_ context.Context, idempotencyKey string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.idempotency[idempotencyKey], nil
}

func (m *Memory) createLocked(r lease.Record) error {
	if _, ok := m.loans[r.ID]; ok {
		return fmt.Errorf("%w: %s", lease.ErrLoanExists, r.ID)
	}
	m.loans[r.ID] = r
	return nil
}

func (m *Memory) getLocked(id lease.LoanID) (lease.Record, error) {
	r, ok := m.loans[id]
	if !ok {
		return lease.Record{}, fmt.Errorf("%w: %s", lease.ErrLoanNotFound, id)
	}
	return r, nil
}

func (m *Memory) saveLocked(r lease.Record) error {
	if _, ok := m.loans[r.ID]; !ok {
		return fmt.Errorf("%w: %s", lease.ErrLoanNotFound, r.ID)
	}
	m.loans[r.ID] = r
	return nil
}

func (m *Memory) listLocked() []lease.Record {
	out := make([]lease.Record, 0, len(m.loans))
	for _, r := range m.loans {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].OpenedAt != out[j].OpenedAt {
			return out[i].OpenedAt < out[j].OpenedAt
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (m *Memory) appendLocked(r lease.Repayment) error {
	if r.IdempotencyKey != "" && m.idempotency[r.IdempotencyKey] {
		return lease.ErrDuplicateIdempotencyKey
	}
	m.repayments[r.LoanID] = append(m.repayments[r.LoanID], r)
	if r.IdempotencyKey != "" {
		m.idempotency[r.IdempotencyKey] = true
	}
	return nil
}

func (m *Memory) repaymentsLocked(id lease.LoanID) []lease.Repayment {
	out := make([]lease.Repayment, len(m.repayments[id]))
	copy(out, m.repayments[id])
	return out
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// TxMemory wraps Memory with transaction support.
type TxMemory struct {
	*Memory
}

func NewTxMemory() *TxMemory {
	return &TxMemory{Memory: NewMemory()}
}

// WithTx executes fn within a transaction, simulated with a snapshot that
// is restored when fn fails or panics.
func (tm *TxMemory) WithTx(_ context.Context, fn func(lease.Store) error) (err error) {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	snapshot := tm.snapshot()
	defer func() {
		if r := recover(); r != nil {
			tm.restore(snapshot)
			panic(r)
		}
	}()

	if err := fn(&txMemoryView{parent: tm.Memory}); err != nil {
		tm.restore(snapshot)
		return err
	}
	return nil
}

type memorySnapshot struct {
	loans       map[lease.LoanID]lease.Record
	repayments  map[lease.LoanID][]lease.Repayment
	idempotency map[string]bool
}

func (tm *TxMemory) snapshot() memorySnapshot {
	loans := make(map[lease.LoanID]lease.Record, len(tm.loans))
	for k, v := range tm.loans {
		loans[k] = v
	}
	repayments := make(map[lease.LoanID][]lease.Repayment, len(tm.repayments))
	for k, v := range tm.repayments {
		repayments[k] = append([]lease.Repayment{}, v...)
	}
	idempotency := make(map[string]bool, len(tm.idempotency))
	for k, v := range tm.idempotency {
		idempotency[k] = v
	}
	return memorySnapshot{loans: loans, repayments: repayments, idempotency: idempotency}
}

func (tm *TxMemory) restore(s memorySnapshot) {
	tm.loans = s.loans
	tm.repayments = s.repayments
	tm.idempotency = s.idempotency
}

// txMemoryView runs inside WithTx with the parent lock already held.
type txMemoryView struct {
	parent *Memory
}

func (tv *txMemoryView) CreateLoan(_ context.Context, r lease.Record) error {
	return tv.parent.createLocked(r)
}

func (tv *txMemoryView) GetLoan(_ context.Context, id lease.LoanID) (lease.Record, error) {
	return tv.parent.getLocked(id)
}

func (tv *txMemoryView) SaveLoan(_ context.Context, r lease.Record) error {
	return tv.parent.saveLocked(r)
}

func (tv *txMemoryView) ListLoans(_ context.Context) ([]lease.Record, error) {
	return tv.parent.listLocked(), nil
}

func (tv *txMemoryView) AppendRepayment(_ context.Context, r lease.Repayment) error {
	return tv.parent.appendLocked(r)
}

func (tv *txMemoryView) Repayments(_ context.Context, id lease.LoanID) ([]lease.Repayment, error) {
	return tv.parent.repaymentsLocked(id), nil
}

func (tv *txMemoryView) Exists(_ context.Context, idempotencyKey string) (bool, error) {
	return tv.parent.idempotency[idempotencyKey], nil
}
