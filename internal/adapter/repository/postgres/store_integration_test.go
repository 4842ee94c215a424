//go:build integration

package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simaogato/portfolio-backend/internal/domain"
	"github.com/simaogato/portfolio-backend/internal/id"
)

var testDB *DB

func TestMain(m *testing.M) {
	var err error
	testDB, err = NewDB(getDBConnectionString())
	if err != nil {
		panic(fmt.Sprintf("Failed to connect to database: %v", err))
	}

	if err := testDB.EnsureSchema(context.Background()); err != nil {
		panic(fmt.Sprintf("Failed to apply schema: %v", err))
	}

	code := m.Run()
	testDB.Close()
	os.Exit(code)
}

func getDBConnectionString() string {
	if connStr := os.Getenv("DB_CONN_STR"); connStr != "" {
		return connStr
	}

	host := getEnv("DB_HOST", "localhost")
	port := getEnv("DB_PORT", "5432")
	user := getEnv("DB_USER", "postgres")
	password := getEnv("DB_PASSWORD", "postgres")
	dbname := getEnv("DB_NAME", "portfolio")

	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		host, port, user, password, dbname)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func seedPortfolio(t *testing.T, store *Store) (*domain.Portfolio, *domain.Security) {
	t.Helper()
	ctx := context.Background()

	p := &domain.Portfolio{
		ID:           uuid.New(),
		OwnerID:      uuid.New(),
		Name:         "Integration",
		BaseCurrency: "USD",
		CashBalance:  decimal.NewFromInt(1000),
		IsDefault:    true,
		CreatedAt:    time.Now().UTC(),
	}
	require.NoError(t, store.Portfolios().Create(ctx, p))

	sec := &domain.Security{
		ID:           uuid.New(),
		Symbol:       "ACME",
		Name:         "Acme Corp",
		Currency:     "USD",
		CurrentPrice: decimal.NewFromInt(100),
		IsActive:     true,
	}
	require.NoError(t, store.Securities().Create(ctx, sec))
	return p, sec
}

func TestStore_AtomicRollback(t *testing.T) {
	ctx := context.Background()
	store := NewStore(testDB)
	p, _ := seedPortfolio(t, store)

	boom := errors.New("boom")
	err := store.Atomic(ctx, func(ctx context.Context, tx domain.Tx) error {
		locked, err := tx.Portfolios().GetForUpdate(ctx, p.ID)
		require.NoError(t, err)
		require.NoError(t, tx.Portfolios().UpdateCashBalance(ctx, locked.ID, decimal.NewFromInt(1)))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := store.Portfolios().GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, got.CashBalance.Equal(decimal.NewFromInt(1000)))
}

func TestStore_SingleDefaultPerOwner(t *testing.T) {
	ctx := context.Background()
	store := NewStore(testDB)
	p, _ := seedPortfolio(t, store)

	second := *p
	second.ID = uuid.New()
	err := store.Portfolios().Create(ctx, &second)
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestStore_TransactionLog(t *testing.T) {
	ctx := context.Background()
	store := NewStore(testDB)
	p, sec := seedPortfolio(t, store)

	now := time.Now().UTC().Truncate(time.Microsecond)
	deposit := &domain.Transaction{
		ID:             id.NewAt(now),
		PortfolioID:    p.ID,
		IdempotencyKey: "dep-1",
		Type:           domain.TransactionTypeDeposit,
		Amount:         decimal.NewFromInt(500),
		Timestamp:      now,
	}
	require.NoError(t, store.Transactions().Create(ctx, deposit))

	buy := &domain.Transaction{
		ID:               id.NewAt(now.Add(time.Second)),
		PortfolioID:      p.ID,
		IdempotencyKey:   "buy-1",
		Type:             domain.TransactionTypeBuy,
		SecurityID:       &sec.ID,
		Quantity:         3,
		ExecutedPrice:    decimal.NewNullDecimal(decimal.NewFromInt(100)),
		SecurityCurrency: "USD",
		Timestamp:        now.Add(time.Second),
	}
	require.NoError(t, store.Transactions().Create(ctx, buy))

	dup := *deposit
	dup.ID = id.NewAt(now)
	assert.ErrorIs(t, store.Transactions().Create(ctx, &dup), domain.ErrConflict)

	got, err := store.Transactions().GetByIdempotencyKey(ctx, p.ID, "buy-1")
	require.NoError(t, err)
	assert.Equal(t, buy.ID, got.ID)
	assert.Equal(t, int64(3), got.Quantity)
	assert.True(t, got.ExecutedPrice.Decimal.Equal(decimal.NewFromInt(100)))

	log, err := store.Transactions().ListUpTo(ctx, p.ID, now.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, log, 2)
	assert.Equal(t, deposit.ID, log[0].ID)

	flows, err := store.Transactions().ListCashFlows(ctx, p.ID, now.Add(-time.Hour), now.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, flows, 1)

	latest, err := store.Transactions().LatestIDUpTo(ctx, p.ID, now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, buy.ID, latest)

	// the log is append-only
	_, err = testDB.ExecContext(ctx, `UPDATE transactions SET idempotency_key = 'x' WHERE id = $1`, buy.ID.String())
	assert.ErrorIs(t, translate(err, "update transaction"), domain.ErrImmutableRecord)
}

func TestStore_SnapshotUpsertKeepsID(t *testing.T) {
	ctx := context.Background()
	store := NewStore(testDB)
	p, _ := seedPortfolio(t, store)
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

	first := domain.NewDailySnapshot(p.ID, day, decimal.NewFromInt(10), decimal.NewFromInt(20), decimal.NewFromInt(30))
	require.NoError(t, store.Snapshots().Upsert(ctx, first))

	second := domain.NewDailySnapshot(p.ID, day, decimal.NewFromInt(11), decimal.NewFromInt(20), decimal.NewFromInt(30))
	require.NoError(t, store.Snapshots().Upsert(ctx, second))
	assert.Equal(t, first.ID, second.ID)

	got, err := store.Snapshots().Get(ctx, p.ID, day)
	require.NoError(t, err)
	assert.Equal(t, "31.00", got.TotalValue.StringFixed(2))
	assert.True(t, got.Date.Equal(day))
}

func TestStore_FXRateFind(t *testing.T) {
	ctx := context.Background()
	store := NewStore(testDB)
	day := time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC)
	base, quote := "PEN", "USD"

	require.NoError(t, store.FXRates().Add(ctx, &domain.FXRate{
		Date: day.AddDate(0, 0, -1), BaseCurrency: base, QuoteCurrency: quote,
		RateType: domain.FXRateTypeMid, Session: domain.FXSessionCierre, Rate: decimal.RequireFromString("3.70"),
	}))
	require.NoError(t, store.FXRates().Add(ctx, &domain.FXRate{
		Date: day, BaseCurrency: base, QuoteCurrency: quote,
		RateType: domain.FXRateTypeVenta, Session: domain.FXSessionIntraday, Rate: decimal.RequireFromString("3.75"),
	}))

	got, err := store.FXRates().Find(ctx, domain.FXRateQuery{
		BaseCurrency: base, QuoteCurrency: quote, Date: day,
		RateType: domain.FXRateTypeVenta, ExcludeSession: domain.FXSessionCierre,
	})
	require.NoError(t, err)
	assert.Equal(t, "3.75", got.Rate.StringFixed(2))

	got, err = store.FXRates().Find(ctx, domain.FXRateQuery{BaseCurrency: base, QuoteCurrency: quote, Date: day, Before: true})
	require.NoError(t, err)
	assert.Equal(t, "3.70", got.Rate.StringFixed(2))
}
