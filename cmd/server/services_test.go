package main

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simaogato/portfolio-backend/internal/adapter/repository/memory"
	"github.com/simaogato/portfolio-backend/internal/config"
)

func TestNewServices_WiresMemoryStore(t *testing.T) {
	ctx := context.Background()
	cfg := &config.Config{
		RepoKind:                config.RepoMemory,
		MarketTimezone:          "UTC",
		BaseCurrency:            "USD",
		SnapshotMaxRetries:      2,
		SnapshotConcurrency:     1,
		ReconstructionCacheSize: 8,
	}

	store := memory.NewStore()
	app, err := newServices(store, cfg, zerolog.Nop())
	require.NoError(t, err)

	p, err := app.Seeder.Seed(ctx, uuid.New())
	require.NoError(t, err)

	growth, err := app.Dashboard.GetGrowth(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "10000.00", growth.Total.StringFixed(2))
	assert.True(t, growth.InvestmentGrowth.IsZero())

	snap, err := app.Snapshots.CreateDailySnapshot(ctx, p.ID, time.Now())
	require.NoError(t, err)
	assert.Equal(t, "10000.00", snap.TotalValue.StringFixed(2))

	_, err = app.Performance.Recompute(ctx, p.ID, time.Now().Add(time.Hour))
	require.NoError(t, err)
}
