package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/simaogato/portfolio-backend/internal/domain"
)

/* ---- Securities ---- */

type securityRepo struct{ s *Store }

func (r securityRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Security, error) {
	var out *domain.Security
	err := r.s.read(ctx, func(st *state) error {
		sec, ok := st.securities[id]
		if !ok {
			return domain.ErrNotFound
		}
		out = &sec
		return nil
	})
	return out, err
}

// Create inserts or replaces a security; the market-data collaborator owns these rows
func (r securityRepo) Create(ctx context.Context, sec *domain.Security) error {
	return r.s.write(ctx, func(st *state) error {
		st.securities[sec.ID] = *sec
		return nil
	})
}

/* ---- FX rates ---- */

type fxRateRepo struct{ s *Store }

func (r fxRateRepo) Find(ctx context.Context, q domain.FXRateQuery) (*domain.FXRate, error) {
	day := domain.DateOf(q.Date)
	var candidates []domain.FXRate
	err := r.s.read(ctx, func(st *state) error {
		for _, rate := range st.fxRates {
			if !q.Matches(&rate) {
				continue
			}
			if (q.Before && rate.Date.Before(day)) || (!q.Before && rate.Date.Equal(day)) {
				candidates = append(candidates, rate)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, domain.ErrNotFound
	}

	// same ordering as the SQL adapter: date desc, rate_type, session
	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.After(b.Date)
		}
		if a.RateType != b.RateType {
			return a.RateType < b.RateType
		}
		return a.Session < b.Session
	})
	return &candidates[0], nil
}

func (r fxRateRepo) Add(ctx context.Context, rate *domain.FXRate) error {
	return r.s.write(ctx, func(st *state) error {
		row := *rate
		row.Date = domain.DateOf(rate.Date)
		for i, existing := range st.fxRates {
			if existing.Date.Equal(row.Date) && existing.BaseCurrency == row.BaseCurrency &&
				existing.QuoteCurrency == row.QuoteCurrency && existing.RateType == row.RateType &&
				existing.Session == row.Session {
				st.fxRates[i] = row
				return nil
			}
		}
		st.fxRates = append(st.fxRates, row)
		return nil
	})
}

/* ---- Historical prices ---- */

type priceRepo struct{ s *Store }

func (r priceRepo) Add(ctx context.Context, p *domain.HistoricalPrice) error {
	return r.s.write(ctx, func(st *state) error {
		row := *p
		row.Date = domain.DateOf(p.Date)
		st.prices[datedKey{row.SecurityID, row.Date}] = row
		return nil
	})
}

func (r priceRepo) GetOn(ctx context.Context, securityID uuid.UUID, date time.Time) (*domain.HistoricalPrice, error) {
	var out *domain.HistoricalPrice
	err := r.s.read(ctx, func(st *state) error {
		p, ok := st.prices[datedKey{securityID, domain.DateOf(date)}]
		if !ok {
			return domain.ErrNotFound
		}
		out = &p
		return nil
	})
	return out, err
}

// pick returns the price of the security that keep accepts and less orders first
func (r priceRepo) pick(ctx context.Context, securityID uuid.UUID, keep func(d time.Time) bool, less func(a, b time.Time) bool) (*domain.HistoricalPrice, error) {
	var out *domain.HistoricalPrice
	err := r.s.read(ctx, func(st *state) error {
		for key, p := range st.prices {
			if key.id != securityID || !keep(p.Date) {
				continue
			}
			if out == nil || less(p.Date, out.Date) {
				out = &p
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if out == nil {
		return nil, domain.ErrNotFound
	}
	return out, nil
}

func (r priceRepo) LatestBefore(ctx context.Context, securityID uuid.UUID, date time.Time) (*domain.HistoricalPrice, error) {
	day := domain.DateOf(date)
	return r.pick(ctx, securityID, func(d time.Time) bool { return d.Before(day) }, time.Time.After)
}

func (r priceRepo) EarliestAfter(ctx context.Context, securityID uuid.UUID, date time.Time) (*domain.HistoricalPrice, error) {
	day := domain.DateOf(date)
	return r.pick(ctx, securityID, func(d time.Time) bool { return d.After(day) }, time.Time.Before)
}

func (r priceRepo) Latest(ctx context.Context, securityID uuid.UUID) (*domain.HistoricalPrice, error) {
	return r.pick(ctx, securityID, func(time.Time) bool { return true }, time.Time.After)
}
