package domain

import (
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionAt(t *testing.T) {
	lima, err := time.LoadLocation("America/Lima")
	require.NoError(t, err)

	tests := []struct {
		name  string
		local string
		want  FXSession
	}{
		{"Before the window", "11:04", FXSessionCierre},
		{"Window opens", "11:05", FXSessionIntraday},
		{"Midday", "12:30", FXSessionIntraday},
		{"Last intraday minute", "13:29", FXSessionIntraday},
		{"Window closed", "13:30", FXSessionCierre},
		{"Evening", "19:00", FXSessionCierre},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock, err := time.ParseInLocation("2006-01-02 15:04", "2024-03-15 "+tt.local, lima)
			require.NoError(t, err)
			// the caller's instant may be in any zone
			assert.Equal(t, tt.want, SessionAt(clock.UTC(), lima))
		})
	}
}

func TestFXRateQuery_Matches(t *testing.T) {
	rate := &FXRate{
		BaseCurrency:  "PEN",
		QuoteCurrency: "USD",
		RateType:      FXRateTypeVenta,
		Session:       FXSessionCierre,
		Rate:          decimal.RequireFromString("3.75"),
	}

	assert.True(t, FXRateQuery{BaseCurrency: "PEN", QuoteCurrency: "USD"}.Matches(rate))
	assert.True(t, FXRateQuery{BaseCurrency: "PEN", QuoteCurrency: "USD", RateType: FXRateTypeVenta, Session: FXSessionCierre}.Matches(rate))
	assert.False(t, FXRateQuery{BaseCurrency: "USD", QuoteCurrency: "PEN"}.Matches(rate))
	assert.False(t, FXRateQuery{BaseCurrency: "PEN", QuoteCurrency: "USD", RateType: FXRateTypeCompra}.Matches(rate))
	assert.False(t, FXRateQuery{BaseCurrency: "PEN", QuoteCurrency: "USD", ExcludeRateType: FXRateTypeVenta}.Matches(rate))
	assert.False(t, FXRateQuery{BaseCurrency: "PEN", QuoteCurrency: "USD", ExcludeSession: FXSessionCierre}.Matches(rate))
	assert.True(t, FXRateQuery{BaseCurrency: "PEN", QuoteCurrency: "USD", ExcludeSession: FXSessionIntraday}.Matches(rate))
}
