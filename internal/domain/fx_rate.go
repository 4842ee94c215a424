package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// FXRateType is the side of the quote
type FXRateType string

const (
	FXRateTypeCompra FXRateType = "compra" // bid, applied when selling foreign currency
	FXRateTypeVenta  FXRateType = "venta"  // ask, applied when buying foreign currency
	FXRateTypeMid    FXRateType = "mid"
)

// FXSession is the trading session a quote was taken in
type FXSession string

const (
	FXSessionIntraday FXSession = "intraday"
	FXSessionCierre   FXSession = "cierre"
)

// Intraday session bounds in market-local time, both inclusive
const (
	intradayStartMinute = 11*60 + 5
	intradayEndMinute   = 13*60 + 29
)

// SessionAt returns the FX session in effect at t in the market's location
func SessionAt(t time.Time, loc *time.Location) FXSession {
	if loc == nil {
		loc = time.UTC
	}
	local := t.In(loc)
	minute := local.Hour()*60 + local.Minute()
	if minute >= intradayStartMinute && minute <= intradayEndMinute {
		return FXSessionIntraday
	}
	return FXSessionCierre
}

// FXRate is one published quote. Rate is expressed as base units per one quote unit.
// Rows are written by the ingestion collaborator and only read by the ledger.
type FXRate struct {
	ID            uuid.UUID
	Date          time.Time
	BaseCurrency  string
	QuoteCurrency string
	RateType      FXRateType
	Session       FXSession
	Rate          decimal.Decimal
	Source        string
}

// FXRateQuery selects the most recent matching quote.
// Empty RateType or Session match anything; Exclude* fields filter a value out.
type FXRateQuery struct {
	BaseCurrency    string
	QuoteCurrency   string
	Date            time.Time
	Before          bool // most recent date strictly before Date instead of Date itself
	RateType        FXRateType
	ExcludeRateType FXRateType
	Session         FXSession
	ExcludeSession  FXSession
}

// Matches reports whether r satisfies every filter of q except the date filter
func (q FXRateQuery) Matches(r *FXRate) bool {
	if r.BaseCurrency != q.BaseCurrency || r.QuoteCurrency != q.QuoteCurrency {
		return false
	}
	if q.RateType != "" && r.RateType != q.RateType {
		return false
	}
	if q.ExcludeRateType != "" && r.RateType == q.ExcludeRateType {
		return false
	}
	if q.Session != "" && r.Session != q.Session {
		return false
	}
	if q.ExcludeSession != "" && r.Session == q.ExcludeSession {
		return false
	}
	return true
}
