package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/simaogato/portfolio-backend/internal/domain"
)

// securityRepository implements domain.SecurityRepository
type securityRepository struct {
	db *DB
}

// GetByID retrieves a security by its ID
func (r *securityRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Security, error) {
	query := `SELECT id, symbol, name, currency, current_price, is_active FROM securities WHERE id = $1`

	var s domain.Security
	var priceStr string
	err := r.db.conn(ctx).QueryRowContext(ctx, query, id).Scan(
		&s.ID,
		&s.Symbol,
		&s.Name,
		&s.Currency,
		&priceStr,
		&s.IsActive,
	)
	if err != nil {
		return nil, translate(err, fmt.Sprintf("get security %s", id))
	}

	if s.CurrentPrice, err = parseDecimal(priceStr, "current_price"); err != nil {
		return nil, err
	}
	return &s, nil
}

// Create inserts or refreshes a security
func (r *securityRepository) Create(ctx context.Context, s *domain.Security) error {
	query := `
		INSERT INTO securities (id, symbol, name, currency, current_price, is_active)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE
		SET symbol = EXCLUDED.symbol, name = EXCLUDED.name, currency = EXCLUDED.currency,
		    current_price = EXCLUDED.current_price, is_active = EXCLUDED.is_active
	`

	_, err := r.db.conn(ctx).ExecContext(ctx, query,
		s.ID,
		s.Symbol,
		s.Name,
		s.Currency,
		s.CurrentPrice.StringFixed(4),
		s.IsActive,
	)
	if err != nil {
		return translate(err, "upsert security")
	}
	return nil
}

// fxRateRepository implements domain.FXRateRepository
type fxRateRepository struct {
	db *DB
}

// Find returns the most recent quote matching q
func (r *fxRateRepository) Find(ctx context.Context, q domain.FXRateQuery) (*domain.FXRate, error) {
	where := []string{"base_currency = $1", "quote_currency = $2"}
	args := []any{q.BaseCurrency, q.QuoteCurrency, dateArg(q.Date)}
	if q.Before {
		where = append(where, "date < $3")
	} else {
		where = append(where, "date = $3")
	}

	add := func(clause, value string) {
		if value == "" {
			return
		}
		args = append(args, value)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	add("rate_type = $%d", string(q.RateType))
	add("rate_type <> $%d", string(q.ExcludeRateType))
	add("session = $%d", string(q.Session))
	add("session <> $%d", string(q.ExcludeSession))

	query := `
		SELECT id, date, base_currency, quote_currency, rate_type, session, rate, source
		FROM fx_rates
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY date DESC, rate_type, session
		LIMIT 1
	`

	var rate domain.FXRate
	var rateStr string
	err := r.db.conn(ctx).QueryRowContext(ctx, query, args...).Scan(
		&rate.ID,
		&rate.Date,
		&rate.BaseCurrency,
		&rate.QuoteCurrency,
		&rate.RateType,
		&rate.Session,
		&rateStr,
		&rate.Source,
	)
	if err != nil {
		return nil, translate(err, fmt.Sprintf("find fx rate %s/%s", q.BaseCurrency, q.QuoteCurrency))
	}

	if rate.Rate, err = parseDecimal(rateStr, "rate"); err != nil {
		return nil, err
	}
	rate.Date = domain.DateOf(rate.Date)
	return &rate, nil
}

// Add upserts a quote for (date, pair, rate type, session)
func (r *fxRateRepository) Add(ctx context.Context, rate *domain.FXRate) error {
	query := `
		INSERT INTO fx_rates (id, date, base_currency, quote_currency, rate_type, session, rate, source)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (date, base_currency, quote_currency, rate_type, session) DO UPDATE
		SET rate = EXCLUDED.rate, source = EXCLUDED.source
	`

	id := rate.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	_, err := r.db.conn(ctx).ExecContext(ctx, query,
		id,
		dateArg(rate.Date),
		rate.BaseCurrency,
		rate.QuoteCurrency,
		string(rate.RateType),
		string(rate.Session),
		rate.Rate.String(),
		rate.Source,
	)
	if err != nil {
		return translate(err, "upsert fx rate")
	}
	return nil
}

// priceRepository implements domain.HistoricalPriceRepository
type priceRepository struct {
	db *DB
}

// Add upserts the closing price of (security, date)
func (r *priceRepository) Add(ctx context.Context, p *domain.HistoricalPrice) error {
	query := `
		INSERT INTO historical_prices (id, security_id, date, price)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (security_id, date) DO UPDATE SET price = EXCLUDED.price
	`

	id := p.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	_, err := r.db.conn(ctx).ExecContext(ctx, query, id, p.SecurityID, dateArg(p.Date), p.Price.StringFixed(4))
	if err != nil {
		return translate(err, "upsert historical price")
	}
	return nil
}

// GetOn returns the price recorded on exactly date
func (r *priceRepository) GetOn(ctx context.Context, securityID uuid.UUID, date time.Time) (*domain.HistoricalPrice, error) {
	return r.one(ctx, "date = $2", "date", securityID, dateArg(date))
}

// LatestBefore returns the most recent price strictly before date
func (r *priceRepository) LatestBefore(ctx context.Context, securityID uuid.UUID, date time.Time) (*domain.HistoricalPrice, error) {
	return r.one(ctx, "date < $2", "date DESC", securityID, dateArg(date))
}

// EarliestAfter returns the oldest price strictly after date
func (r *priceRepository) EarliestAfter(ctx context.Context, securityID uuid.UUID, date time.Time) (*domain.HistoricalPrice, error) {
	return r.one(ctx, "date > $2", "date", securityID, dateArg(date))
}

// Latest returns the most recent price on record
func (r *priceRepository) Latest(ctx context.Context, securityID uuid.UUID) (*domain.HistoricalPrice, error) {
	return r.one(ctx, "TRUE", "date DESC", securityID)
}

func (r *priceRepository) one(ctx context.Context, cond, order string, args ...any) (*domain.HistoricalPrice, error) {
	query := `
		SELECT id, security_id, date, price
		FROM historical_prices
		WHERE security_id = $1 AND ` + cond + `
		ORDER BY ` + order + `
		LIMIT 1
	`

	var p domain.HistoricalPrice
	var priceStr string
	err := r.db.conn(ctx).QueryRowContext(ctx, query, args...).Scan(&p.ID, &p.SecurityID, &p.Date, &priceStr)
	if err != nil {
		return nil, translate(err, "get historical price")
	}

	if p.Price, err = parseDecimal(priceStr, "price"); err != nil {
		return nil, err
	}
	p.Date = domain.DateOf(p.Date)
	return &p, nil
}
