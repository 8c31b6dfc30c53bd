//go:build integration

package orders_test

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	pgcontainer "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/retailcore/checkout-engine/internal/ledger"
	"github.com/retailcore/checkout-engine/internal/orders"
	"github.com/retailcore/checkout-engine/internal/postgres"
	"github.com/retailcore/checkout-engine/internal/receipts"
	"github.com/retailcore/checkout-engine/internal/reservation"
)

func setupDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	pg, err := pgcontainer.Run(ctx, "postgres:16-alpine",
		pgcontainer.WithDatabase("checkout"),
		pgcontainer.WithUsername("app"),
		pgcontainer.WithPassword("secret"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pg.Terminate(ctx) })

	dsn, err := pg.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	require.NoError(t, postgres.Migrate(dsn, "../../migrations"))

	pool, err := postgres.Connect(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

func seedProduct(t *testing.T, pool *pgxpool.Pool, id string, price, onHand int) {
	t.Helper()
	_, err := pool.Exec(context.Background(), `
		INSERT INTO products (id, sku, name, price_cents, on_hand)
		VALUES ($1, $1, $1, $2, $3)`, id, price, onHand)
	require.NoError(t, err)
}

func TestPostgresLedger_ConcurrentReserveExactness(t *testing.T) {
	ctx := context.Background()
	pool := setupDB(t)
	seedProduct(t, pool, "hot-item", 100, 25)

	led := &ledger.Postgres{DB: pool, Log: slog.Default()}

	const callers = 60
	var ok int64
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := led.Reserve(ctx, "hot-item", 1); err == nil {
				atomic.AddInt64(&ok, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(25), ok)
	available, err := led.Available(ctx, "hot-item")
	require.NoError(t, err)
	assert.Equal(t, 0, available)
}

func TestPostgresLedger_ReleaseClampAndFinalize(t *testing.T) {
	ctx := context.Background()
	pool := setupDB(t)
	seedProduct(t, pool, "p1", 100, 5)

	led := &ledger.Postgres{DB: pool, Log: slog.Default()}

	_, err := led.Reserve(ctx, "p1", 3)
	require.NoError(t, err)

	// Clamped double release never drives reserved negative.
	require.NoError(t, led.Release(ctx, "p1", 3))
	require.NoError(t, led.Release(ctx, "p1", 3))
	available, err := led.Available(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 5, available)

	_, err = led.Reserve(ctx, "p1", 2)
	require.NoError(t, err)
	require.NoError(t, led.Finalize(ctx, "p1", 2))
	available, err = led.Available(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 3, available)

	err = led.Finalize(ctx, "p1", 1)
	assert.ErrorIs(t, err, ledger.ErrInsufficientReservation)
}

func TestPostgresReservations_Roundtrip(t *testing.T) {
	ctx := context.Background()
	pool := setupDB(t)
	seedProduct(t, pool, "p1", 100, 5)

	store := &reservation.Postgres{DB: pool}
	require.NoError(t, store.Upsert(ctx, "s1", "p1", 2, -time.Second))
	require.NoError(t, store.Upsert(ctx, "s1", "p1", 1, -time.Second))

	expired, err := store.ListExpired(ctx, time.Now())
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, 3, expired[0].Qty)

	require.NoError(t, store.Touch(ctx, "s1", "p1", time.Hour))
	expired, err = store.ListExpired(ctx, time.Now())
	require.NoError(t, err)
	assert.Empty(t, expired)

	require.NoError(t, store.Decrement(ctx, "s1", "p1", 3))
	entries, err := store.BySession(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestCreateSale_AtomicAndIdempotent(t *testing.T) {
	ctx := context.Background()
	pool := setupDB(t)
	seedProduct(t, pool, "a", 100, 10)
	seedProduct(t, pool, "b", 250, 10)

	led := &ledger.Postgres{DB: pool, Log: slog.Default()}
	repo := &orders.Repo{DB: pool}

	_, err := led.Reserve(ctx, "a", 2)
	require.NoError(t, err)
	_, err = led.Reserve(ctx, "b", 1)
	require.NoError(t, err)

	in := orders.SaleInput{
		ExternalID:    "ext-1",
		SessionID:     "s1",
		PaymentMethod: "cash",
		Lines: []orders.SaleLine{
			{ProductID: "a", Name: "A", Qty: 2, PriceCents: 100},
			{ProductID: "b", Name: "B", Qty: 1, PriceCents: 250},
		},
	}
	ord, existed, err := repo.CreateSale(ctx, in)
	require.NoError(t, err)
	require.False(t, existed)
	assert.Equal(t, orders.StatusCompleted, ord.Status)
	assert.Equal(t, 450, ord.TotalCents)
	require.Len(t, ord.Items, 2)

	// Replay returns the same order without another finalize.
	again, existed, err := repo.CreateSale(ctx, in)
	require.NoError(t, err)
	assert.True(t, existed)
	assert.Equal(t, ord.ID, again.ID)
	available, err := led.Available(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 8, available)

	// Receipt issuing is idempotent per order.
	svc := &receipts.Service{DB: pool}
	rc1, err := svc.EnsureReceipt(ctx, ord.ID)
	require.NoError(t, err)
	rc2, err := svc.EnsureReceipt(ctx, ord.ID)
	require.NoError(t, err)
	assert.Equal(t, rc1.ID, rc2.ID)
	assert.Equal(t, receipts.Number(ord.CreatedAt.Year(), ord.Seq), rc1.ReceiptNumber)
}

func TestCreateSale_StaleReservationRollsBack(t *testing.T) {
	ctx := context.Background()
	pool := setupDB(t)
	seedProduct(t, pool, "a", 100, 10)
	seedProduct(t, pool, "b", 250, 10)

	led := &ledger.Postgres{DB: pool, Log: slog.Default()}
	repo := &orders.Repo{DB: pool}

	_, err := led.Reserve(ctx, "a", 2)
	require.NoError(t, err)
	// No reservation for b.

	_, _, err = repo.CreateSale(ctx, orders.SaleInput{
		ExternalID:    "ext-stale",
		SessionID:     "s1",
		PaymentMethod: "cash",
		Lines: []orders.SaleLine{
			{ProductID: "a", Name: "A", Qty: 2, PriceCents: 100},
			{ProductID: "b", Name: "B", Qty: 1, PriceCents: 250},
		},
	})
	var stale *orders.StaleReservationError
	require.ErrorAs(t, err, &stale)
	assert.Equal(t, "b", stale.ProductID)

	// Whole transaction rolled back: a is still reserved, nothing sold.
	var onHand, reserved int
	require.NoError(t, pool.QueryRow(ctx, `SELECT on_hand, reserved FROM products WHERE id='a'`).Scan(&onHand, &reserved))
	assert.Equal(t, 10, onHand)
	assert.Equal(t, 2, reserved)

	_, err = repo.GetOrderByExternalID(ctx, "ext-stale")
	assert.ErrorIs(t, err, orders.ErrOrderNotFound)
}
