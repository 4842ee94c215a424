package portfolio

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/simaogato/portfolio-backend/internal/domain"
)

// CreateInput holds the fields of a new portfolio
type CreateInput struct {
	OwnerID      uuid.UUID
	Name         string
	BaseCurrency string
	MakeDefault  bool
}

// PortfolioService manages the portfolio lifecycle
type PortfolioService struct {
	Store domain.Store
	Clock func() time.Time
	log   zerolog.Logger
}

// NewPortfolioService creates a new PortfolioService instance
func NewPortfolioService(store domain.Store, log zerolog.Logger) *PortfolioService {
	return &PortfolioService{
		Store: store,
		Clock: time.Now,
		log:   log.With().Str("service", "portfolio").Logger(),
	}
}

// Create opens a portfolio with no cash. Funds arrive through deposits.
// Logic:
//   - the owner's first portfolio always becomes the default
//   - MakeDefault moves the default flag from the current default
//   - the performance row is created with the portfolio
func (s *PortfolioService) Create(ctx context.Context, in CreateInput) (*domain.Portfolio, error) {
	p := &domain.Portfolio{
		ID:           uuid.New(),
		OwnerID:      in.OwnerID,
		Name:         strings.TrimSpace(in.Name),
		BaseCurrency: strings.ToUpper(strings.TrimSpace(in.BaseCurrency)),
		CashBalance:  decimal.Zero,
		CreatedAt:    s.Clock().UTC().Truncate(time.Microsecond),
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	err := s.Store.Atomic(ctx, func(ctx context.Context, tx domain.Tx) error {
		existing, err := tx.Portfolios().ListByOwner(ctx, in.OwnerID)
		if err != nil {
			return fmt.Errorf("failed to list portfolios: %w", err)
		}

		p.IsDefault = in.MakeDefault || len(existing) == 0
		if p.IsDefault {
			if err := unsetDefault(ctx, tx, existing, p.ID); err != nil {
				return err
			}
		}

		if err := tx.Portfolios().Create(ctx, p); err != nil {
			return err
		}
		_, err = tx.Performance().GetOrCreate(ctx, p.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("portfolio_id", p.ID.String()).
		Str("owner_id", p.OwnerID.String()).
		Str("base_currency", p.BaseCurrency).
		Bool("default", p.IsDefault).
		Msg("Portfolio created")
	return p, nil
}

// Get retrieves a portfolio, deleted or not
func (s *PortfolioService) Get(ctx context.Context, id uuid.UUID) (*domain.Portfolio, error) {
	return s.Store.Portfolios().GetByID(ctx, id)
}

// List returns the owner's live portfolios, newest first
func (s *PortfolioService) List(ctx context.Context, ownerID uuid.UUID) ([]*domain.Portfolio, error) {
	return s.Store.Portfolios().ListByOwner(ctx, ownerID)
}

// SetDefault makes id the owner's default portfolio
func (s *PortfolioService) SetDefault(ctx context.Context, id uuid.UUID) (*domain.Portfolio, error) {
	var p *domain.Portfolio
	err := s.Store.Atomic(ctx, func(ctx context.Context, tx domain.Tx) error {
		var err error
		if p, err = tx.Portfolios().GetForUpdate(ctx, id); err != nil {
			return err
		}
		if !p.Active() {
			return domain.ErrPortfolioDeleted
		}
		if p.IsDefault {
			return nil
		}

		existing, err := tx.Portfolios().ListByOwner(ctx, p.OwnerID)
		if err != nil {
			return fmt.Errorf("failed to list portfolios: %w", err)
		}
		if err := unsetDefault(ctx, tx, existing, p.ID); err != nil {
			return err
		}

		p.IsDefault = true
		return tx.Portfolios().Update(ctx, p)
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// SoftDelete retires a portfolio while keeping its history
// Logic, in one atomic unit:
//  1. Lock the portfolio and mark it deleted with a timestamp
//  2. Deactivate its holdings, keeping quantities
//  3. If it was the default, promote the owner's newest remaining portfolio
func (s *PortfolioService) SoftDelete(ctx context.Context, id uuid.UUID) (*domain.Portfolio, error) {
	var p *domain.Portfolio
	var promoted *domain.Portfolio

	err := s.Store.Atomic(ctx, func(ctx context.Context, tx domain.Tx) error {
		var err error
		if p, err = tx.Portfolios().GetForUpdate(ctx, id); err != nil {
			return err
		}
		if !p.Active() {
			return domain.ErrPortfolioDeleted
		}

		wasDefault := p.IsDefault
		now := s.Clock().UTC().Truncate(time.Microsecond)
		p.IsDeleted = true
		p.IsDefault = false
		p.DeletedAt = &now
		if err := tx.Portfolios().Update(ctx, p); err != nil {
			return err
		}

		if err := tx.Holdings().DeactivateAll(ctx, p.ID); err != nil {
			return err
		}

		if !wasDefault {
			return nil
		}
		remaining, err := tx.Portfolios().ListByOwner(ctx, p.OwnerID)
		if err != nil {
			return fmt.Errorf("failed to list portfolios: %w", err)
		}
		if len(remaining) == 0 {
			return nil
		}
		promoted = remaining[0]
		promoted.IsDefault = true
		return tx.Portfolios().Update(ctx, promoted)
	})
	if err != nil {
		return nil, err
	}

	event := s.log.Info().Str("portfolio_id", p.ID.String())
	if promoted != nil {
		event = event.Str("promoted_id", promoted.ID.String())
	}
	event.Msg("Portfolio deleted")
	return p, nil
}

// ListRealized returns the realized P&L of a portfolio, newest first
func (s *PortfolioService) ListRealized(ctx context.Context, id uuid.UUID) ([]*domain.RealizedPNL, error) {
	if _, err := s.Store.Portfolios().GetByID(ctx, id); err != nil {
		return nil, err
	}
	return s.Store.RealizedPNL().ListByPortfolio(ctx, id)
}

func unsetDefault(ctx context.Context, tx domain.Tx, portfolios []*domain.Portfolio, keep uuid.UUID) error {
	for _, other := range portfolios {
		if other.ID == keep || !other.IsDefault {
			continue
		}
		other.IsDefault = false
		if err := tx.Portfolios().Update(ctx, other); err != nil {
			return fmt.Errorf("failed to unset default portfolio %s: %w", other.ID, err)
		}
	}
	return nil
}
