package ledger

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLedger() *Memory {
	return NewMemory(slog.Default())
}

func TestMemory_Reserve_Success(t *testing.T) {
	m := newTestLedger()
	m.SetStock("p1", 10)

	available, err := m.Reserve(context.Background(), "p1", 3)
	require.NoError(t, err)
	assert.Equal(t, 7, available)
	assert.Equal(t, 3, m.Reserved("p1"))
	assert.Equal(t, 10, m.OnHand("p1"))
}

func TestMemory_Reserve_Insufficient(t *testing.T) {
	m := newTestLedger()
	m.SetStock("p1", 2)

	_, err := m.Reserve(context.Background(), "p1", 3)

	var ise *InsufficientStockError
	require.ErrorAs(t, err, &ise)
	assert.Equal(t, "p1", ise.ProductID)
	assert.Equal(t, 2, ise.Available)
	// Failed reserve leaves the counters unchanged.
	assert.Equal(t, 0, m.Reserved("p1"))
}

func TestMemory_Reserve_Validation(t *testing.T) {
	m := newTestLedger()
	m.SetStock("p1", 5)

	_, err := m.Reserve(context.Background(), "p1", 0)
	assert.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = m.Reserve(context.Background(), "p1", -1)
	assert.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = m.Reserve(context.Background(), "ghost", 1)
	assert.ErrorIs(t, err, ErrProductNotFound)
}

func TestMemory_Release_Clamped(t *testing.T) {
	m := newTestLedger()
	m.SetStock("p1", 5)

	_, err := m.Reserve(context.Background(), "p1", 2)
	require.NoError(t, err)

	// Double release beyond the reserved amount clamps at zero.
	require.NoError(t, m.Release(context.Background(), "p1", 2))
	require.NoError(t, m.Release(context.Background(), "p1", 2))

	assert.Equal(t, 0, m.Reserved("p1"))
	available, err := m.Available(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, 5, available)
}

func TestMemory_Finalize(t *testing.T) {
	m := newTestLedger()
	m.SetStock("p1", 5)

	_, err := m.Reserve(context.Background(), "p1", 3)
	require.NoError(t, err)

	require.NoError(t, m.Finalize(context.Background(), "p1", 3))
	assert.Equal(t, 2, m.OnHand("p1"))
	assert.Equal(t, 0, m.Reserved("p1"))

	// Nothing reserved anymore, so a second finalize must fail.
	err = m.Finalize(context.Background(), "p1", 1)
	assert.ErrorIs(t, err, ErrInsufficientReservation)
}

func TestMemory_FinalizeAll_AllOrNothing(t *testing.T) {
	m := newTestLedger()
	m.SetStock("a", 5)
	m.SetStock("b", 5)

	_, err := m.Reserve(context.Background(), "a", 2)
	require.NoError(t, err)
	// No reservation for b: the whole batch must abort.
	err = m.FinalizeAll(context.Background(), map[string]int{"a": 2, "b": 1})
	require.ErrorIs(t, err, ErrInsufficientReservation)

	assert.Equal(t, 5, m.OnHand("a"))
	assert.Equal(t, 2, m.Reserved("a"))
	assert.Equal(t, 5, m.OnHand("b"))
}

// N concurrent single-unit reserves against k available succeed for
// exactly k units regardless of arrival order.
func TestMemory_Reserve_ConcurrentExactness(t *testing.T) {
	const available = 40
	const callers = 200

	m := newTestLedger()
	m.SetStock("p1", available)

	var ok, short int64
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.Reserve(context.Background(), "p1", 1)
			switch {
			case err == nil:
				atomic.AddInt64(&ok, 1)
			case errors.As(err, new(*InsufficientStockError)):
				atomic.AddInt64(&short, 1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(available), ok)
	assert.Equal(t, int64(callers-available), short)
	assert.Equal(t, available, m.Reserved("p1"))
	// on_hand - reserved >= 0 and reserved >= 0 must hold throughout.
	assert.GreaterOrEqual(t, m.OnHand("p1")-m.Reserved("p1"), 0)
}

// Scenario from the shopping flow: two sessions competing for the last
// units of a product, with a decrease freeing stock in between.
func TestMemory_TwoSessionScenario(t *testing.T) {
	ctx := context.Background()
	m := newTestLedger()
	m.SetStock("p1", 5)

	available, err := m.Reserve(ctx, "p1", 3) // session A
	require.NoError(t, err)
	assert.Equal(t, 2, available)

	_, err = m.Reserve(ctx, "p1", 3) // session B, rejected
	var ise *InsufficientStockError
	require.ErrorAs(t, err, &ise)
	assert.Equal(t, 2, ise.Available)

	require.NoError(t, m.Release(ctx, "p1", 2)) // A decreases 3 -> 1
	available, err = m.Available(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 4, available)

	available, err = m.Reserve(ctx, "p1", 3) // B retries
	require.NoError(t, err)
	assert.Equal(t, 1, available)
}
