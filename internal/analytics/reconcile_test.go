package analytics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gw/kalshi-pnl/internal/kalshi"
)

func TestReconcileAdjustsPayout(t *testing.T) {
	settlements := []kalshi.Settlement{
		{Ticker: "X", Revenue: 500, SettledTime: kalshi.TimestampMS(1700000000000)},
	}
	basis := map[string]int{"X": 220}

	out := Reconcile(settlements, 0, basis)
	require.Len(t, out, 1)
	assert.Equal(t, 280, out[0].RealizedPnL)
	assert.True(t, out[0].Win)
	assert.False(t, out[0].Loss)
	assert.Equal(t, "2023-11-14", out[0].Day)
}

func TestReconcileSignFlip(t *testing.T) {
	// A positive payout can still be a loss once cost basis is
	// subtracted.
	settlements := []kalshi.Settlement{
		{Ticker: "X", Revenue: 100, SettledTime: kalshi.TimestampMS(1700000000000)},
	}
	out := Reconcile(settlements, 0, map[string]int{"X": 300})
	require.Len(t, out, 1)
	assert.Equal(t, -200, out[0].RealizedPnL)
	assert.True(t, out[0].Loss)
}

func TestReconcileZeroIsNeither(t *testing.T) {
	settlements := []kalshi.Settlement{
		{Ticker: "X", Revenue: 220, SettledTime: kalshi.TimestampMS(1700000000000)},
	}
	out := Reconcile(settlements, 0, map[string]int{"X": 220})
	require.Len(t, out, 1)
	assert.False(t, out[0].Win)
	assert.False(t, out[0].Loss)
}

func TestReconcileNoBasisDefaultsZero(t *testing.T) {
	settlements := []kalshi.Settlement{
		{Ticker: "UNSEEN", Revenue: 75, SettledTime: kalshi.TimestampMS(1700000000000)},
	}
	out := Reconcile(settlements, 0, map[string]int{})
	require.Len(t, out, 1)
	assert.Equal(t, 75, out[0].RealizedPnL)
}

func TestReconcileWindowFilter(t *testing.T) {
	settlements := []kalshi.Settlement{
		{Ticker: "OLD", Revenue: 100, SettledTime: kalshi.TimestampMS(1000)},
		{Ticker: "NEW", Revenue: 100, SettledTime: kalshi.TimestampMS(5000)},
		{Ticker: "EDGE", Revenue: 100, SettledTime: kalshi.TimestampMS(3000)},
	}

	out := Reconcile(settlements, 3000, map[string]int{})
	require.Len(t, out, 2) // floor is inclusive
	assert.Equal(t, "NEW", out[0].Ticker)
	assert.Equal(t, "EDGE", out[1].Ticker)
}

func TestReconcileExcludesInvalidTimestamps(t *testing.T) {
	settlements := []kalshi.Settlement{
		{Ticker: "BAD", Revenue: 100},
		{Ticker: "GOOD", Revenue: 100, SettledTime: kalshi.TimestampMS(5000)},
	}

	out := Reconcile(settlements, 0, map[string]int{})
	require.Len(t, out, 1)
	assert.Equal(t, "GOOD", out[0].Ticker)
}
