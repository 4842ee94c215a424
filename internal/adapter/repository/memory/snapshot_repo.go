package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/simaogato/portfolio-backend/internal/domain"
)

type snapshotRepo struct{ s *Store }

func (r snapshotRepo) Upsert(ctx context.Context, snap *domain.DailySnapshot) error {
	return r.s.write(ctx, func(st *state) error {
		key := datedKey{snap.PortfolioID, domain.DateOf(snap.Date)}
		row := *snap
		row.Date = key.date
		if existing, ok := st.snapshots[key]; ok {
			row.ID = existing.ID
			snap.ID = existing.ID
		}
		st.snapshots[key] = row
		return nil
	})
}

func (r snapshotRepo) Get(ctx context.Context, portfolioID uuid.UUID, date time.Time) (*domain.DailySnapshot, error) {
	var out *domain.DailySnapshot
	err := r.s.read(ctx, func(st *state) error {
		snap, ok := st.snapshots[datedKey{portfolioID, domain.DateOf(date)}]
		if !ok {
			return domain.ErrNotFound
		}
		out = &snap
		return nil
	})
	return out, err
}

func (r snapshotRepo) ListRange(ctx context.Context, portfolioID uuid.UUID, from, to time.Time) ([]*domain.DailySnapshot, error) {
	start, end := domain.DateOf(from), domain.DateOf(to)
	var out []*domain.DailySnapshot
	err := r.s.read(ctx, func(st *state) error {
		for key, snap := range st.snapshots {
			if key.id == portfolioID && !key.date.Before(start) && !key.date.After(end) {
				out = append(out, &snap)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, err
}

func (r snapshotRepo) ReplaceHoldingSnapshots(ctx context.Context, portfolioID uuid.UUID, date time.Time, rows []*domain.HoldingSnapshot) error {
	return r.s.write(ctx, func(st *state) error {
		key := datedKey{portfolioID, domain.DateOf(date)}
		copied := make([]domain.HoldingSnapshot, 0, len(rows))
		for _, row := range rows {
			copied = append(copied, *row)
		}
		st.holdingSnapshots[key] = copied
		return nil
	})
}

// HoldingSnapshots returns the stored holding rows of (portfolio, date)
func (s *Store) HoldingSnapshots(portfolioID uuid.UUID, date time.Time) []domain.HoldingSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.HoldingSnapshot(nil), s.st.holdingSnapshots[datedKey{portfolioID, domain.DateOf(date)}]...)
}
