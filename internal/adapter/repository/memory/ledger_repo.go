package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/simaogato/portfolio-backend/internal/domain"
)

/* ---- Holdings ---- */

type holdingRepo struct{ s *Store }

func (r holdingRepo) GetForUpdate(ctx context.Context, portfolioID, securityID uuid.UUID) (*domain.Holding, error) {
	var out *domain.Holding
	err := r.s.read(ctx, func(st *state) error {
		h, ok := st.holdings[holdingKey{portfolioID, securityID}]
		if !ok {
			return domain.ErrNotFound
		}
		out = &h
		return nil
	})
	return out, err
}

func (r holdingRepo) Create(ctx context.Context, h *domain.Holding) error {
	return r.s.write(ctx, func(st *state) error {
		key := holdingKey{h.PortfolioID, h.SecurityID}
		if _, ok := st.holdings[key]; ok {
			return domain.ErrConflict
		}
		st.holdings[key] = *h
		return nil
	})
}

func (r holdingRepo) Update(ctx context.Context, h *domain.Holding) error {
	return r.s.write(ctx, func(st *state) error {
		key := holdingKey{h.PortfolioID, h.SecurityID}
		if _, ok := st.holdings[key]; !ok {
			return domain.ErrNotFound
		}
		st.holdings[key] = *h
		return nil
	})
}

func (r holdingRepo) ListActive(ctx context.Context, portfolioID uuid.UUID) ([]*domain.Holding, error) {
	var out []*domain.Holding
	err := r.s.read(ctx, func(st *state) error {
		for key, h := range st.holdings {
			if key.portfolioID == portfolioID && h.IsActive {
				out = append(out, &h)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].SecurityID.String() < out[j].SecurityID.String() })
	return out, err
}

func (r holdingRepo) DeactivateAll(ctx context.Context, portfolioID uuid.UUID) error {
	return r.s.write(ctx, func(st *state) error {
		for key, h := range st.holdings {
			if key.portfolioID == portfolioID && h.IsActive {
				h.IsActive = false
				st.holdings[key] = h
			}
		}
		return nil
	})
}

/* ---- Transactions ---- */

type transactionRepo struct{ s *Store }

func (r transactionRepo) Create(ctx context.Context, t *domain.Transaction) error {
	return r.s.write(ctx, func(st *state) error {
		key := idempotencyKey{t.PortfolioID, t.IdempotencyKey}
		if _, ok := st.idempotency[key]; ok {
			return domain.ErrConflict
		}
		st.transactions = append(st.transactions, *t)
		st.idempotency[key] = len(st.transactions) - 1
		return nil
	})
}

func (r transactionRepo) GetByIdempotencyKey(ctx context.Context, portfolioID uuid.UUID, key string) (*domain.Transaction, error) {
	var out *domain.Transaction
	err := r.s.read(ctx, func(st *state) error {
		i, ok := st.idempotency[idempotencyKey{portfolioID, key}]
		if !ok {
			return domain.ErrNotFound
		}
		t := st.transactions[i]
		out = &t
		return nil
	})
	return out, err
}

// scan returns the portfolio's transactions matching keep, ordered by timestamp then ID
func (r transactionRepo) scan(ctx context.Context, portfolioID uuid.UUID, keep func(t *domain.Transaction) bool) ([]*domain.Transaction, error) {
	var out []*domain.Transaction
	err := r.s.read(ctx, func(st *state) error {
		for _, t := range st.transactions {
			if t.PortfolioID == portfolioID && keep(&t) {
				out = append(out, &t)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		return out[i].ID.Compare(out[j].ID) < 0
	})
	return out, err
}

func (r transactionRepo) ListUpTo(ctx context.Context, portfolioID uuid.UUID, asOf time.Time) ([]*domain.Transaction, error) {
	return r.scan(ctx, portfolioID, func(t *domain.Transaction) bool { return !t.Timestamp.After(asOf) })
}

func (r transactionRepo) LatestIDUpTo(ctx context.Context, portfolioID uuid.UUID, asOf time.Time) (ulid.ULID, error) {
	txns, err := r.ListUpTo(ctx, portfolioID, asOf)
	if err != nil || len(txns) == 0 {
		return ulid.ULID{}, err
	}
	return txns[len(txns)-1].ID, nil
}

func (r transactionRepo) ListCashFlows(ctx context.Context, portfolioID uuid.UUID, from, to time.Time) ([]*domain.Transaction, error) {
	return r.scan(ctx, portfolioID, func(t *domain.Transaction) bool {
		return t.IsCashFlow() && t.Timestamp.After(from) && t.Timestamp.Before(to)
	})
}

func (r transactionRepo) LatestBuy(ctx context.Context, portfolioID, securityID uuid.UUID, asOf time.Time) (*domain.Transaction, error) {
	buys, err := r.scan(ctx, portfolioID, func(t *domain.Transaction) bool {
		return t.Type == domain.TransactionTypeBuy && t.SecurityID != nil && *t.SecurityID == securityID && !t.Timestamp.After(asOf)
	})
	if err != nil {
		return nil, err
	}
	if len(buys) == 0 {
		return nil, domain.ErrNotFound
	}
	return buys[len(buys)-1], nil
}

func (r transactionRepo) First(ctx context.Context, portfolioID uuid.UUID) (*domain.Transaction, error) {
	all, err := r.scan(ctx, portfolioID, func(*domain.Transaction) bool { return true })
	if err != nil {
		return nil, err
	}
	if len(all) == 0 {
		return nil, domain.ErrNotFound
	}
	return all[0], nil
}

/* ---- Realized P&L ---- */

type realizedRepo struct{ s *Store }

// Create rejects a second record for the same sale; a differing one is reported as a mutation attempt
func (r realizedRepo) Create(ctx context.Context, p *domain.RealizedPNL) error {
	return r.s.write(ctx, func(st *state) error {
		if existing, ok := st.realized[p.TransactionID]; ok {
			if err := p.CheckImmutable(&existing); err != nil {
				return err
			}
			return domain.ErrConflict
		}
		st.realized[p.TransactionID] = *p
		return nil
	})
}

func (r realizedRepo) GetByTransactionID(ctx context.Context, transactionID ulid.ULID) (*domain.RealizedPNL, error) {
	var out *domain.RealizedPNL
	err := r.s.read(ctx, func(st *state) error {
		p, ok := st.realized[transactionID]
		if !ok {
			return domain.ErrNotFound
		}
		out = &p
		return nil
	})
	return out, err
}

func (r realizedRepo) ListByPortfolio(ctx context.Context, portfolioID uuid.UUID) ([]*domain.RealizedPNL, error) {
	var out []*domain.RealizedPNL
	err := r.s.read(ctx, func(st *state) error {
		for _, p := range st.realized {
			if p.PortfolioID == portfolioID {
				out = append(out, &p)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].TransactionID.Compare(out[j].TransactionID) > 0 })
	return out, err
}

/* ---- Performance ---- */

type performanceRepo struct{ s *Store }

func (r performanceRepo) GetOrCreate(ctx context.Context, portfolioID uuid.UUID) (*domain.PortfolioPerformance, error) {
	var out *domain.PortfolioPerformance
	err := r.s.write(ctx, func(st *state) error {
		p, ok := st.performance[portfolioID]
		if !ok {
			p = domain.PortfolioPerformance{PortfolioID: portfolioID}
			st.performance[portfolioID] = p
		}
		out = &p
		return nil
	})
	return out, err
}

func (r performanceRepo) Update(ctx context.Context, p *domain.PortfolioPerformance) error {
	return r.s.write(ctx, func(st *state) error {
		st.performance[p.PortfolioID] = *p
		return nil
	})
}
