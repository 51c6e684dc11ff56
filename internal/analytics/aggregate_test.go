package analytics

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gw/kalshi-pnl/internal/kalshi"
)

// fakeCollector serves canned records and applies the min_ts filter the
// way the exchange does. Safe for the service's concurrent fetches.
type fakeCollector struct {
	mu          sync.Mutex
	fills       []kalshi.Fill
	settlements []kalshi.Settlement
	fillMinTS   []int64
}

func (f *fakeCollector) AllFills(ctx context.Context, minTS int64) ([]kalshi.Fill, error) {
	f.mu.Lock()
	f.fillMinTS = append(f.fillMinTS, minTS)
	f.mu.Unlock()

	if minTS == 0 {
		return f.fills, nil
	}
	var out []kalshi.Fill
	for _, fill := range f.fills {
		if fill.CreatedTime.Valid() && fill.CreatedTime.Millis() >= minTS {
			out = append(out, fill)
		}
	}
	return out, nil
}

func (f *fakeCollector) AllSettlements(ctx context.Context) ([]kalshi.Settlement, error) {
	return f.settlements, nil
}

func serviceAt(ex Collector, now time.Time) *Service {
	s := NewService(ex)
	s.now = func() time.Time { return now }
	return s
}

// 2023-11-20T00:00:00Z
var testNow = time.UnixMilli(1700438400000).UTC()

const (
	msNov01 = 1698796800000 // 2023-11-01T00:00:00Z
	msNov14 = 1700000000000 // 2023-11-14T22:13:20Z
	msNov15 = 1700050000000 // 2023-11-15T12:06:40Z
)

func TestDailyPnLUsesFullHistoryBasis(t *testing.T) {
	// The position was built outside the 7d window; its settlement
	// falls inside. Cost basis must still be subtracted.
	ex := &fakeCollector{
		fills: []kalshi.Fill{
			{Ticker: "X", Side: "yes", Action: "buy", Count: 10, YesPrice: 40, CreatedTime: kalshi.TimestampMS(msNov01)},
		},
		settlements: []kalshi.Settlement{
			{Ticker: "X", Revenue: 500, SettledTime: kalshi.TimestampMS(msNov14)},
		},
	}

	report, err := serviceAt(ex, testNow).DailyPnL(context.Background(), "7d")
	require.NoError(t, err)
	require.Len(t, report.DailyPnL, 1)

	day := report.DailyPnL[0]
	assert.Equal(t, "2023-11-14", day.Date)
	assert.Equal(t, 100, day.RealizedPnL) // 500 − 10×40
	assert.Equal(t, 1, day.SettlementCount)
	assert.Equal(t, 1, day.Wins)
	assert.Equal(t, 0, day.Losses)
	// The old fill is outside the window: no volume or trade count.
	assert.Equal(t, 0, day.TradeCount)
	assert.Equal(t, 0, day.Volume)

	// One full-history fetch and one window-scoped fetch.
	assert.ElementsMatch(t, []int64{0, WindowFloor("7d", testNow)}, ex.fillMinTS)
}

func TestDailyPnLTwoPartitions(t *testing.T) {
	// Volume buckets by fill day, P/L by settlement day; the two are
	// independent partitions of the timeline.
	ex := &fakeCollector{
		fills: []kalshi.Fill{
			{Ticker: "A", Side: "yes", Action: "buy", Count: 5, YesPrice: 20, CreatedTime: kalshi.TimestampMS(msNov14)},
			{Ticker: "A", Side: "yes", Action: "buy", Count: 2, YesPrice: 30, CreatedTime: kalshi.TimestampMS(msNov14)},
		},
		settlements: []kalshi.Settlement{
			{Ticker: "A", Revenue: 700, SettledTime: kalshi.TimestampMS(msNov15)},
		},
	}

	report, err := serviceAt(ex, testNow).DailyPnL(context.Background(), "all")
	require.NoError(t, err)
	require.Len(t, report.DailyPnL, 2)

	fillDay := report.DailyPnL[0]
	assert.Equal(t, "2023-11-14", fillDay.Date)
	assert.Equal(t, 2, fillDay.TradeCount)
	assert.Equal(t, 160, fillDay.Volume) // 5×20 + 2×30
	assert.Equal(t, 0, fillDay.SettlementCount)

	settleDay := report.DailyPnL[1]
	assert.Equal(t, "2023-11-15", settleDay.Date)
	assert.Equal(t, 540, settleDay.RealizedPnL) // 700 − 160
	assert.Equal(t, 1, settleDay.SettlementCount)
	assert.Equal(t, 0, settleDay.TradeCount)
}

func TestDailyPnLEmptyWindow(t *testing.T) {
	// Records exist, but none inside the last hour: an empty series,
	// not an error.
	ex := &fakeCollector{
		fills: []kalshi.Fill{
			{Ticker: "A", Side: "yes", Action: "buy", Count: 1, YesPrice: 50, CreatedTime: kalshi.TimestampMS(msNov01)},
		},
		settlements: []kalshi.Settlement{
			{Ticker: "A", Revenue: 100, SettledTime: kalshi.TimestampMS(msNov01)},
		},
	}

	report, err := serviceAt(ex, testNow).DailyPnL(context.Background(), "1h")
	require.NoError(t, err)
	assert.Empty(t, report.DailyPnL)
}

func TestCumulativePnLRunningSum(t *testing.T) {
	ex := &fakeCollector{
		settlements: []kalshi.Settlement{
			{Ticker: "A", Revenue: 300, SettledTime: kalshi.TimestampMS(msNov14)},
			{Ticker: "B", Revenue: -100, SettledTime: kalshi.TimestampMS(msNov15)},
		},
	}

	report, err := serviceAt(ex, testNow).CumulativePnL(context.Background(), "all")
	require.NoError(t, err)
	require.Len(t, report.CumulativePnL, 2)

	assert.Equal(t, 300, report.CumulativePnL[0].DailyPnL)
	assert.Equal(t, 300, report.CumulativePnL[0].CumulativePnL)
	assert.Equal(t, -100, report.CumulativePnL[1].DailyPnL)
	assert.Equal(t, 200, report.CumulativePnL[1].CumulativePnL)
}

func TestWinRateStats(t *testing.T) {
	ex := &fakeCollector{
		settlements: []kalshi.Settlement{
			{Ticker: "A", Revenue: 300, SettledTime: kalshi.TimestampMS(msNov14)},
			{Ticker: "B", Revenue: -500, SettledTime: kalshi.TimestampMS(msNov14)},
			{Ticker: "C", Revenue: -100, SettledTime: kalshi.TimestampMS(msNov15)},
		},
	}

	report, err := serviceAt(ex, testNow).WinRate(context.Background(), "all")
	require.NoError(t, err)

	assert.Equal(t, 1, report.Wins)
	assert.Equal(t, 2, report.Losses)
	assert.Equal(t, 3, report.Total)
	assert.Equal(t, 33.33, report.WinRate)
	assert.Equal(t, 300.0, report.AvgWin)
	assert.Equal(t, 300.0, report.AvgLoss) // (500+100)/2
	assert.Equal(t, -300, report.NetPnL)
}

func TestWinRateNoDecidedSettlements(t *testing.T) {
	report, err := serviceAt(&fakeCollector{}, testNow).WinRate(context.Background(), "all")
	require.NoError(t, err)

	assert.Zero(t, report.Total)
	assert.Zero(t, report.WinRate)
	assert.Zero(t, report.AvgWin)
	assert.Zero(t, report.AvgLoss)
}

func TestMarketBreakdownSortedByAbsolutePnL(t *testing.T) {
	ex := &fakeCollector{
		settlements: []kalshi.Settlement{
			{Ticker: "WINNER", Revenue: 300, SettledTime: kalshi.TimestampMS(msNov14)},
			{Ticker: "LOSER", Revenue: -500, SettledTime: kalshi.TimestampMS(msNov14)},
		},
	}

	report, err := serviceAt(ex, testNow).MarketBreakdown(context.Background(), "all")
	require.NoError(t, err)
	require.Len(t, report.Breakdown, 2)

	assert.Equal(t, "LOSER", report.Breakdown[0].Ticker)
	assert.Equal(t, -500, report.Breakdown[0].PnL)
	assert.Equal(t, 0.0, report.Breakdown[0].WinRate)
	assert.Equal(t, "WINNER", report.Breakdown[1].Ticker)
	assert.Equal(t, 300, report.Breakdown[1].PnL)
	assert.Equal(t, 100.0, report.Breakdown[1].WinRate)
}

func TestWindowFloorTokens(t *testing.T) {
	now := testNow
	assert.Equal(t, now.Add(-time.Hour).UnixMilli(), WindowFloor("1h", now))
	assert.Equal(t, now.Add(-24*time.Hour).UnixMilli(), WindowFloor("1d", now))
	assert.Equal(t, now.Add(-7*24*time.Hour).UnixMilli(), WindowFloor("7d", now))
	assert.Equal(t, now.Add(-30*24*time.Hour).UnixMilli(), WindowFloor("30d", now))
	assert.Zero(t, WindowFloor("all", now))
	assert.Zero(t, WindowFloor("bogus", now))
	assert.Zero(t, WindowFloor("", now))
}
