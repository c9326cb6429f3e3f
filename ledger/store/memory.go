// Package store provides Store implementations.
package store

import (
	"context"
	"sync"

	"github.com/warp/cash-drawer/ledger"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu      sync.RWMutex
	ops     []ledger.CashOperation
	ids     map[ledger.OperationID]bool
	session ledger.Session
}

func NewMemory() *Memory {
	return &Memory{ids: make(map[ledger.OperationID]bool)}
}

// Append adds a single operation. Append-only.
func (m *Memory) Append(_ context.Context, op ledger.CashOperation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ids[op.ID] {
		return ledger.ErrDuplicateOperationID
	}
	m.appendLocked(op)
	return nil
}

// AppendBatch adds multiple operations atomically.
func (m *Memory) AppendBatch(_ context.Context, ops []ledger.CashOperation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Check all ids first (atomic check), including within the batch
	seen := make(map[ledger.OperationID]bool, len(ops))
	for _, op := range ops {
		if m.ids[op.ID] || seen[op.ID] {
			return ledger.ErrDuplicateOperationID
		}
		seen[op.ID] = true
	}

	for _, op := range ops {
		m.appendLocked(op)
	}
	return nil
}

func (m *Memory) appendLocked(op ledger.CashOperation) {
	m.ops = append(m.ops, op)
	m.ids[op.ID] = true
}

// Load returns the full log in append order.
func (m *Memory) Load(_ context.Context) ([]ledger.CashOperation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]ledger.CashOperation, len(m.ops))
	copy(result, m.ops)
	return result, nil
}

func (m *Memory) SaveSession(_ context.Context, s ledger.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = s
	return nil
}

func (m *Memory) LoadSession(_ context.Context) (ledger.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.session, nil
}
