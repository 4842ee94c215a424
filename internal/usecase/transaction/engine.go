package transaction

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/simaogato/portfolio-backend/internal/domain"
	"github.com/simaogato/portfolio-backend/internal/id"
	"github.com/simaogato/portfolio-backend/internal/usecase/fx"
	"github.com/simaogato/portfolio-backend/internal/usecase/ledger"
)

// maxConflictAttempts bounds re-execution after a uniqueness race with a concurrent writer
const maxConflictAttempts = 3

// Engine executes transaction requests against the ledgers
type Engine struct {
	Store    domain.Store
	Cash     *ledger.CashLedger
	Holdings *ledger.HoldingLedger
	FX       *fx.Resolver

	// Clock and Location decide the execution timestamp and the FX session
	Clock    func() time.Time
	Location *time.Location

	log zerolog.Logger
}

// NewEngine creates a new Engine instance
func NewEngine(store domain.Store, fxResolver *fx.Resolver, location *time.Location, log zerolog.Logger) *Engine {
	if location == nil {
		location = time.UTC
	}
	return &Engine{
		Store:    store,
		Cash:     ledger.NewCashLedger(store, log),
		Holdings: ledger.NewHoldingLedger(store, log),
		FX:       fxResolver,
		Clock:    time.Now,
		Location: location,
		log:      log.With().Str("service", "transaction_engine").Logger(),
	}
}

// Execute validates and applies req, returning the recorded transaction.
// A request whose idempotency key was already used returns the stored
// transaction without applying anything again. Effects are all-or-nothing.
// Logic:
//  1. Structural validation of the request
//  2. In one atomic unit: lock the portfolio, check the idempotency key,
//     apply the operation to the ledgers, append the transaction
//  3. On a uniqueness race, return the winner's transaction or retry
func (e *Engine) Execute(ctx context.Context, req domain.TransactionRequest) (*domain.Transaction, error) {
	if err := req.Validate(); err != nil {
		return nil, e.fail(req, err)
	}

	for attempt := 1; ; attempt++ {
		t, err := e.execute(ctx, req)
		if err == nil {
			return t, nil
		}
		if !errors.Is(err, domain.ErrConflict) || attempt >= maxConflictAttempts {
			return nil, e.fail(req, err)
		}

		existing, getErr := e.Store.Transactions().GetByIdempotencyKey(ctx, req.PortfolioID, req.IdempotencyKey)
		if getErr == nil {
			return existing, nil
		}
		e.log.Warn().Err(err).
			Str("portfolio_id", req.PortfolioID.String()).
			Int("attempt", attempt).
			Msg("Transaction raced a concurrent writer, retrying")
	}
}

func (e *Engine) execute(ctx context.Context, req domain.TransactionRequest) (*domain.Transaction, error) {
	var result *domain.Transaction
	err := e.Store.Atomic(ctx, func(ctx context.Context, tx domain.Tx) error {
		portfolio, err := tx.Portfolios().GetForUpdate(ctx, req.PortfolioID)
		if err != nil {
			return err
		}
		existing, err := tx.Transactions().GetByIdempotencyKey(ctx, req.PortfolioID, req.IdempotencyKey)
		if err == nil {
			e.log.Debug().
				Str("portfolio_id", req.PortfolioID.String()).
				Str("idempotency_key", req.IdempotencyKey).
				Str("transaction_id", existing.ID.String()).
				Msg("Idempotent replay")
			result = existing
			return nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		if !portfolio.Active() {
			return domain.ErrPortfolioDeleted
		}

		now := e.Clock().UTC().Truncate(time.Microsecond)
		t := &domain.Transaction{
			ID:             id.NewAt(now),
			PortfolioID:    portfolio.ID,
			IdempotencyKey: req.IdempotencyKey,
			Type:           req.Operation.Type(),
			Timestamp:      now,
		}

		switch op := req.Operation.(type) {
		case domain.Buy:
			err = e.buy(ctx, tx, portfolio, op, t)
		case domain.Sell:
			err = e.sell(ctx, tx, portfolio, op, t)
		case domain.Deposit:
			err = e.deposit(ctx, tx, portfolio, op, t)
		case domain.Withdrawal:
			err = e.withdraw(ctx, tx, portfolio, op, t)
		default:
			err = fmt.Errorf("%w: %T", domain.ErrUnsupportedTransactionType, op)
		}
		if err != nil {
			return err
		}

		result = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// price captures the execution price and, across currencies, the FX rate of the given side
func (e *Engine) price(ctx context.Context, tx domain.Tx, portfolio *domain.Portfolio, securityID uuid.UUID, rateType domain.FXRateType, t *domain.Transaction) error {
	sec, err := tx.Securities().GetByID(ctx, securityID)
	if errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("%w: unknown security", domain.ErrInvalidSecurity)
	}
	if err != nil {
		return err
	}
	if err := sec.Tradable(); err != nil {
		return err
	}

	t.SecurityID = &sec.ID
	t.SecurityCurrency = sec.Currency
	t.ExecutedPrice = decimal.NewNullDecimal(domain.Round2(sec.CurrentPrice))

	if sec.Currency != portfolio.BaseCurrency {
		rate := e.FX.Resolve(ctx, fx.Request{
			Date:     t.Timestamp,
			Base:     portfolio.BaseCurrency,
			Quote:    sec.Currency,
			RateType: rateType,
			Session:  domain.SessionAt(t.Timestamp, e.Location),
		})
		t.FXRate = decimal.NewNullDecimal(rate.Value)
		t.FXRateType = rateType
	}
	return nil
}

// record validates the finished transaction and appends it to the log
func (e *Engine) record(ctx context.Context, tx domain.Tx, t *domain.Transaction) error {
	if err := t.Validate(); err != nil {
		return err
	}
	if err := tx.Transactions().Create(ctx, t); err != nil {
		return err
	}

	e.log.Info().
		Str("portfolio_id", t.PortfolioID.String()).
		Str("transaction_id", t.ID.String()).
		Str("type", string(t.Type)).
		Str("base_amount", t.BaseAmount().StringFixed(2)).
		Msg("Transaction executed")
	return nil
}

// buy debits cash in base currency at the ask (venta) rate and averages the cost basis
func (e *Engine) buy(ctx context.Context, tx domain.Tx, portfolio *domain.Portfolio, op domain.Buy, t *domain.Transaction) error {
	t.Quantity = op.Quantity
	if err := e.price(ctx, tx, portfolio, op.SecurityID, domain.FXRateTypeVenta, t); err != nil {
		return err
	}

	if _, err := e.Cash.Adjust(ctx, portfolio.ID, t.BaseAmount().Neg()); err != nil {
		return err
	}
	if _, err := e.Holdings.RecordPurchase(ctx, portfolio.ID, op.SecurityID, op.Quantity, t.BasePrice(), t.Timestamp); err != nil {
		return err
	}
	return e.record(ctx, tx, t)
}

// sell credits cash at the bid (compra) rate and books the realized result against the average cost
func (e *Engine) sell(ctx context.Context, tx domain.Tx, portfolio *domain.Portfolio, op domain.Sell, t *domain.Transaction) error {
	t.Quantity = op.Quantity
	if err := e.price(ctx, tx, portfolio, op.SecurityID, domain.FXRateTypeCompra, t); err != nil {
		return err
	}

	holding, err := e.Holdings.RecordSale(ctx, portfolio.ID, op.SecurityID, op.Quantity, t.Timestamp)
	if err != nil {
		return err
	}
	if _, err := e.Cash.Adjust(ctx, portfolio.ID, t.BaseAmount()); err != nil {
		return err
	}
	if err := e.record(ctx, tx, t); err != nil {
		return err
	}

	pnl := domain.NewRealizedPNL(t, holding.AveragePurchasePrice, holding.AcquiredAt)
	if err := tx.RealizedPNL().Create(ctx, pnl); err != nil {
		return err
	}

	e.log.Info().
		Str("portfolio_id", portfolio.ID.String()).
		Str("security_id", op.SecurityID.String()).
		Str("pnl", pnl.PNL.StringFixed(2)).
		Msg("Realized P&L recorded")
	return nil
}

func (e *Engine) deposit(ctx context.Context, tx domain.Tx, portfolio *domain.Portfolio, op domain.Deposit, t *domain.Transaction) error {
	t.Amount = domain.Round2(op.Amount)
	if _, err := e.Cash.Adjust(ctx, portfolio.ID, t.Amount); err != nil {
		return err
	}
	if err := e.record(ctx, tx, t); err != nil {
		return err
	}
	return e.recordCashFlow(ctx, tx, t)
}

func (e *Engine) withdraw(ctx context.Context, tx domain.Tx, portfolio *domain.Portfolio, op domain.Withdrawal, t *domain.Transaction) error {
	t.Amount = domain.Round2(op.Amount)
	if _, err := e.Cash.Adjust(ctx, portfolio.ID, t.Amount.Neg()); err != nil {
		return err
	}
	if err := e.record(ctx, tx, t); err != nil {
		return err
	}
	return e.recordCashFlow(ctx, tx, t)
}

func (e *Engine) recordCashFlow(ctx context.Context, tx domain.Tx, t *domain.Transaction) error {
	perf, err := tx.Performance().GetOrCreate(ctx, t.PortfolioID)
	if err != nil {
		return err
	}
	perf.RecordCashFlow(t)
	return tx.Performance().Update(ctx, perf)
}

// fail wraps err with the request context unless it is already a LedgerError
func (e *Engine) fail(req domain.TransactionRequest, err error) error {
	var ledgerErr *domain.LedgerError
	if errors.As(err, &ledgerErr) {
		return err
	}

	out := &domain.LedgerError{PortfolioID: req.PortfolioID, Err: err}
	switch op := req.Operation.(type) {
	case domain.Buy:
		out.SecurityID, out.Quantity = &op.SecurityID, op.Quantity
	case domain.Sell:
		out.SecurityID, out.Quantity = &op.SecurityID, op.Quantity
	case domain.Deposit:
		out.Amount = op.Amount
	case domain.Withdrawal:
		out.Amount = op.Amount
	}
	if req.Operation != nil {
		out.Op = strings.ToLower(string(req.Operation.Type()))
	} else {
		out.Op = "execute"
	}
	return out
}
