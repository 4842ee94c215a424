// Package ledger holds the two mutable books of a portfolio: its cash
// account and its per-security cost basis. Both serialize writers with
// row locks taken inside the caller's atomic unit.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/simaogato/portfolio-backend/internal/domain"
)

// CashLedger adjusts portfolio cash balances
type CashLedger struct {
	Store domain.Store
	log   zerolog.Logger
}

// NewCashLedger creates a new CashLedger instance
func NewCashLedger(store domain.Store, log zerolog.Logger) *CashLedger {
	return &CashLedger{
		Store: store,
		log:   log.With().Str("service", "cash_ledger").Logger(),
	}
}

// Adjust adds amount (negative to debit) to the portfolio's cash balance.
// Logic: lock the portfolio row, compute the new balance rounded to cents,
// reject it with ErrInsufficientFunds if negative, persist it.
// Called inside an atomic unit it joins it and the lock is held until that unit ends.
func (l *CashLedger) Adjust(ctx context.Context, portfolioID uuid.UUID, amount decimal.Decimal) (*domain.Portfolio, error) {
	var out *domain.Portfolio
	err := l.Store.Atomic(ctx, func(ctx context.Context, tx domain.Tx) error {
		p, err := tx.Portfolios().GetForUpdate(ctx, portfolioID)
		if err != nil {
			return err
		}

		balance := domain.Round2(p.CashBalance.Add(amount))
		if balance.IsNegative() {
			l.log.Debug().
				Str("portfolio_id", portfolioID.String()).
				Str("balance", p.CashBalance.StringFixed(2)).
				Str("amount", amount.StringFixed(2)).
				Msg("Rejected cash adjustment")
			return fmt.Errorf("%w: balance %s, requested %s",
				domain.ErrInsufficientFunds, p.CashBalance.StringFixed(2), amount.Neg().StringFixed(2))
		}

		if err := tx.Portfolios().UpdateCashBalance(ctx, portfolioID, balance); err != nil {
			return err
		}
		p.CashBalance = balance
		out = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// HoldingLedger maintains weighted-average cost basis per (portfolio, security)
type HoldingLedger struct {
	Store domain.Store
	log   zerolog.Logger
}

// NewHoldingLedger creates a new HoldingLedger instance
func NewHoldingLedger(store domain.Store, log zerolog.Logger) *HoldingLedger {
	return &HoldingLedger{
		Store: store,
		log:   log.With().Str("service", "holding_ledger").Logger(),
	}
}

// RecordPurchase adds quantity shares bought at price (base currency) at time at.
// Logic: lock the holding; create it on first purchase, otherwise recompute
// average = (oldQ*oldAvg + q*price) / (oldQ + q) rounded to cents.
// A previously closed holding is reopened at the new price.
func (l *HoldingLedger) RecordPurchase(ctx context.Context, portfolioID, securityID uuid.UUID, quantity int64, price decimal.Decimal, at time.Time) (*domain.Holding, error) {
	var out *domain.Holding
	err := l.Store.Atomic(ctx, func(ctx context.Context, tx domain.Tx) error {
		h, err := tx.Holdings().GetForUpdate(ctx, portfolioID, securityID)
		if errors.Is(err, domain.ErrNotFound) {
			h = &domain.Holding{
				ID:          uuid.New(),
				PortfolioID: portfolioID,
				SecurityID:  securityID,
				CreatedAt:   at,
			}
			if err := h.ApplyPurchase(quantity, price, at); err != nil {
				return err
			}
			if err := h.Validate(); err != nil {
				return err
			}
			out = h
			return tx.Holdings().Create(ctx, h)
		}
		if err != nil {
			return err
		}

		if err := h.ApplyPurchase(quantity, price, at); err != nil {
			return err
		}
		if err := h.Validate(); err != nil {
			return err
		}
		out = h
		return tx.Holdings().Update(ctx, h)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// RecordSale removes quantity shares. The returned holding keeps its average price
// and acquisition date; it is inactive when the position was closed.
func (l *HoldingLedger) RecordSale(ctx context.Context, portfolioID, securityID uuid.UUID, quantity int64, at time.Time) (*domain.Holding, error) {
	var out *domain.Holding
	err := l.Store.Atomic(ctx, func(ctx context.Context, tx domain.Tx) error {
		h, err := tx.Holdings().GetForUpdate(ctx, portfolioID, securityID)
		if errors.Is(err, domain.ErrNotFound) {
			return domain.ErrNoSuchHolding
		}
		if err != nil {
			return err
		}

		if err := h.ApplySale(quantity, at); err != nil {
			if errors.Is(err, domain.ErrInsufficientShares) {
				return fmt.Errorf("%w: holding %d, requested %d", err, h.Quantity, quantity)
			}
			return err
		}
		if !h.IsActive {
			l.log.Debug().
				Str("portfolio_id", portfolioID.String()).
				Str("security_id", securityID.String()).
				Msg("Position closed")
		}
		out = h
		return tx.Holdings().Update(ctx, h)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
