package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

type stockRow struct {
	onHand   int
	reserved int
}

// Memory is a mutex-guarded StockLedger for tests and single-process
// deployments. Same contract as the Postgres ledger: the mutex makes
// every operation one atomic read-modify-write.
type Memory struct {
	mu     sync.Mutex
	log    *slog.Logger
	stocks map[string]*stockRow
}

func NewMemory(log *slog.Logger) *Memory {
	return &Memory{
		log:    log,
		stocks: make(map[string]*stockRow),
	}
}

// SetStock creates or resets a product at the given on-hand count with
// nothing reserved. Inventory management is the only expected caller.
func (m *Memory) SetStock(productID string, onHand int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stocks[productID] = &stockRow{onHand: onHand}
}

func (m *Memory) Reserve(_ context.Context, productID string, qty int) (int, error) {
	if qty <= 0 {
		return 0, ErrInvalidQuantity
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	row, ok := m.stocks[productID]
	if !ok {
		return 0, ErrProductNotFound
	}
	available := row.onHand - row.reserved
	if available < qty {
		return 0, &InsufficientStockError{ProductID: productID, Available: available}
	}
	row.reserved += qty
	return row.onHand - row.reserved, nil
}

func (m *Memory) Release(_ context.Context, productID string, qty int) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	row, ok := m.stocks[productID]
	if !ok {
		return ErrProductNotFound
	}
	if row.reserved < qty {
		m.log.Warn("release clamped beyond reserved",
			slog.String("product_id", productID),
			slog.Int("qty", qty),
			slog.Int("was_reserved", row.reserved))
		row.reserved = 0
		return nil
	}
	row.reserved -= qty
	return nil
}

func (m *Memory) Finalize(_ context.Context, productID string, qty int) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.finalizeLocked(productID, qty)
}

// FinalizeAll applies finalize to every line or to none, mirroring the
// checkout transaction of the Postgres backend. Validation runs as a
// first pass under the lock so a failing line leaves stock untouched.
func (m *Memory) FinalizeAll(_ context.Context, lines map[string]int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for productID, qty := range lines {
		if qty <= 0 {
			return ErrInvalidQuantity
		}
		row, ok := m.stocks[productID]
		if !ok {
			return ErrProductNotFound
		}
		if row.reserved < qty {
			return fmt.Errorf("product %s: %w", productID, ErrInsufficientReservation)
		}
	}
	for productID, qty := range lines {
		if err := m.finalizeLocked(productID, qty); err != nil {
			return err
		}
	}
	return nil
}

func (m *Memory) finalizeLocked(productID string, qty int) error {
	row, ok := m.stocks[productID]
	if !ok {
		return ErrProductNotFound
	}
	if row.reserved < qty {
		return fmt.Errorf("product %s: %w", productID, ErrInsufficientReservation)
	}
	row.reserved -= qty
	row.onHand -= qty
	return nil
}

func (m *Memory) Available(_ context.Context, productID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	row, ok := m.stocks[productID]
	if !ok {
		return 0, ErrProductNotFound
	}
	return row.onHand - row.reserved, nil
}

// Reserved reports the live reservation counter, for invariant checks
// in tests.
func (m *Memory) Reserved(productID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if row, ok := m.stocks[productID]; ok {
		return row.reserved
	}
	return 0
}

// OnHand reports the physical stock count, for invariant checks in
// tests.
func (m *Memory) OnHand(productID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if row, ok := m.stocks[productID]; ok {
		return row.onHand
	}
	return 0
}
