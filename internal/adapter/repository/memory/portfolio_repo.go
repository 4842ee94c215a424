package memory

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/simaogato/portfolio-backend/internal/domain"
)

type portfolioRepo struct{ s *Store }

func (r portfolioRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Portfolio, error) {
	var out *domain.Portfolio
	err := r.s.read(ctx, func(st *state) error {
		p, ok := st.portfolios[id]
		if !ok {
			return domain.ErrNotFound
		}
		out = &p
		return nil
	})
	return out, err
}

// GetForUpdate is a plain read: the enclosing atomic unit already holds the store lock
func (r portfolioRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.Portfolio, error) {
	return r.GetByID(ctx, id)
}

func (r portfolioRepo) Create(ctx context.Context, p *domain.Portfolio) error {
	return r.s.write(ctx, func(st *state) error {
		if _, ok := st.portfolios[p.ID]; ok {
			return domain.ErrConflict
		}
		if err := checkSingleDefault(st, p); err != nil {
			return err
		}
		st.portfolios[p.ID] = *p
		return nil
	})
}

func (r portfolioRepo) Update(ctx context.Context, p *domain.Portfolio) error {
	return r.s.write(ctx, func(st *state) error {
		current, ok := st.portfolios[p.ID]
		if !ok {
			return domain.ErrNotFound
		}
		if err := checkSingleDefault(st, p); err != nil {
			return err
		}
		// cash only moves through UpdateCashBalance
		next := *p
		next.CashBalance = current.CashBalance
		st.portfolios[p.ID] = next
		return nil
	})
}

func (r portfolioRepo) UpdateCashBalance(ctx context.Context, id uuid.UUID, balance decimal.Decimal) error {
	return r.s.write(ctx, func(st *state) error {
		p, ok := st.portfolios[id]
		if !ok {
			return domain.ErrNotFound
		}
		if balance.IsNegative() {
			return domain.ErrInsufficientFunds
		}
		p.CashBalance = balance
		st.portfolios[id] = p
		return nil
	})
}

func (r portfolioRepo) ListActive(ctx context.Context) ([]*domain.Portfolio, error) {
	return r.list(ctx, func(p *domain.Portfolio) bool { return !p.IsDeleted })
}

func (r portfolioRepo) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]*domain.Portfolio, error) {
	return r.list(ctx, func(p *domain.Portfolio) bool { return !p.IsDeleted && p.OwnerID == ownerID })
}

func (r portfolioRepo) list(ctx context.Context, keep func(p *domain.Portfolio) bool) ([]*domain.Portfolio, error) {
	var out []*domain.Portfolio
	err := r.s.read(ctx, func(st *state) error {
		for _, p := range st.portfolios {
			if keep(&p) {
				out = append(out, &p)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.String() > out[j].ID.String()
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, err
}

// checkSingleDefault mirrors the partial unique index on (owner) where default and not deleted
func checkSingleDefault(st *state, p *domain.Portfolio) error {
	if !p.IsDefault || p.IsDeleted {
		return nil
	}
	for id, other := range st.portfolios {
		if id != p.ID && other.OwnerID == p.OwnerID && other.IsDefault && !other.IsDeleted {
			return domain.ErrConflict
		}
	}
	return nil
}
