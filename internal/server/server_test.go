package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gw/kalshi-pnl/internal/analytics"
	"github.com/gw/kalshi-pnl/internal/kalshi"
	"github.com/gw/kalshi-pnl/internal/ledger"
)

type fakeExchange struct {
	balance     *kalshi.Balance
	positions   []kalshi.Position
	fills       []kalshi.Fill
	settlements []kalshi.Settlement
	err         error
}

func (f *fakeExchange) GetBalance(ctx context.Context) (*kalshi.Balance, error) {
	return f.balance, f.err
}

func (f *fakeExchange) GetPortfolioHistory(ctx context.Context, minTS int64) ([]kalshi.PortfolioValue, error) {
	return nil, f.err
}

func (f *fakeExchange) GetFills(ctx context.Context, p kalshi.FillParams) ([]kalshi.Fill, string, error) {
	return f.fills, "", f.err
}

func (f *fakeExchange) GetSettlements(ctx context.Context, p kalshi.SettlementParams) ([]kalshi.Settlement, string, error) {
	return f.settlements, "", f.err
}

func (f *fakeExchange) AllPositions(ctx context.Context) ([]kalshi.Position, error) {
	return f.positions, f.err
}

func (f *fakeExchange) AllFills(ctx context.Context, minTS int64) ([]kalshi.Fill, error) {
	return f.fills, f.err
}

func (f *fakeExchange) AllSettlements(ctx context.Context) ([]kalshi.Settlement, error) {
	return f.settlements, f.err
}

type fakeAnalytics struct {
	daily *analytics.DailyPnLReport
	err   error
}

func (f *fakeAnalytics) DailyPnL(ctx context.Context, period string) (*analytics.DailyPnLReport, error) {
	return f.daily, f.err
}

func (f *fakeAnalytics) CumulativePnL(ctx context.Context, period string) (*analytics.CumulativePnLReport, error) {
	return &analytics.CumulativePnLReport{Period: period}, f.err
}

func (f *fakeAnalytics) WinRate(ctx context.Context, period string) (*analytics.WinRateReport, error) {
	return &analytics.WinRateReport{Period: period}, f.err
}

func (f *fakeAnalytics) MarketBreakdown(ctx context.Context, period string) (*analytics.MarketBreakdownReport, error) {
	return &analytics.MarketBreakdownReport{Period: period}, f.err
}

func testServer(t *testing.T, ex Exchange, an Analytics) *Server {
	t.Helper()
	store, err := ledger.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return New(Config{Exchange: ex, Analytics: an, Ledger: store})
}

func doJSON(t *testing.T, srv *Server, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	var parsed map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &parsed))
	}
	return rec, parsed
}

func TestHealth(t *testing.T) {
	srv := testServer(t, &fakeExchange{}, &fakeAnalytics{})
	rec, body := doJSON(t, srv, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", body["status"])
}

func TestDailyPnLEndpoint(t *testing.T) {
	an := &fakeAnalytics{daily: &analytics.DailyPnLReport{
		DailyPnL: []analytics.DailyBucket{{Date: "2024-03-01", RealizedPnL: 150, Wins: 2}},
		Period:   "7d",
	}}
	srv := testServer(t, &fakeExchange{}, an)

	rec, body := doJSON(t, srv, http.MethodGet, "/api/analytics/daily-pnl?period=7d", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "7d", body["period"])

	days, ok := body["daily_pnl"].([]any)
	require.True(t, ok)
	require.Len(t, days, 1)
	day := days[0].(map[string]any)
	assert.Equal(t, "2024-03-01", day["date"])
	assert.Equal(t, float64(150), day["realized_pnl"])
}

func TestExchangeErrorMapsToBadGateway(t *testing.T) {
	ex := &fakeExchange{err: &kalshi.APIError{StatusCode: http.StatusForbidden, Body: "denied"}}
	srv := testServer(t, ex, &fakeAnalytics{})

	rec, body := doJSON(t, srv, http.MethodGet, "/api/portfolio/balance", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, float64(http.StatusForbidden), body["upstream_status"])
}

func TestSettlementsRawWinNotion(t *testing.T) {
	ex := &fakeExchange{settlements: []kalshi.Settlement{
		{Ticker: "A", MarketResult: "yes", YesTotalCount: 10, Revenue: 1000, SettledTime: kalshi.TimestampMS(1700000000000)},
		{Ticker: "B", MarketResult: "no", YesTotalCount: 5, Revenue: 0, SettledTime: kalshi.TimestampMS(1700000000000)},
	}}
	srv := testServer(t, ex, &fakeAnalytics{})

	rec, body := doJSON(t, srv, http.MethodGet, "/api/trades/settlements", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	settlements := body["settlements"].([]any)
	require.Len(t, settlements, 2)
	assert.Equal(t, true, settlements[0].(map[string]any)["is_win"])
	assert.Equal(t, false, settlements[1].(map[string]any)["is_win"])
}

func TestRecentTradesCostSign(t *testing.T) {
	ex := &fakeExchange{fills: []kalshi.Fill{
		{TradeID: "t1", Ticker: "A", Side: "yes", Action: "buy", Count: 10, YesPrice: 40},
		{TradeID: "t2", Ticker: "A", Side: "yes", Action: "sell", Count: 4, YesPrice: 45},
	}}
	srv := testServer(t, ex, &fakeAnalytics{})

	rec, body := doJSON(t, srv, http.MethodGet, "/api/trades/recent", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	trades := body["trades"].([]any)
	require.Len(t, trades, 2)
	assert.Equal(t, float64(-400), trades[0].(map[string]any)["cost"])
	assert.Equal(t, float64(180), trades[1].(map[string]any)["cost"])
}

func TestCreateTransaction(t *testing.T) {
	srv := testServer(t, &fakeExchange{}, &fakeAnalytics{})

	rec, body := doJSON(t, srv, http.MethodPost, "/api/transactions",
		`{"type":"deposit","amount":5000,"note":"funding"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, body["id"])
	assert.Equal(t, float64(5000), body["amount"])

	rec, body = doJSON(t, srv, http.MethodGet, "/api/transactions/summary", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(5000), body["total_deposits"])
	assert.Equal(t, float64(5000), body["net_deposited"])
}

func TestCreateTransactionRejectsBadType(t *testing.T) {
	srv := testServer(t, &fakeExchange{}, &fakeAnalytics{})

	rec, _ := doJSON(t, srv, http.MethodPost, "/api/transactions",
		`{"type":"loan","amount":100}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = doJSON(t, srv, http.MethodPost, "/api/transactions", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLiveWithoutFeed(t *testing.T) {
	srv := testServer(t, &fakeExchange{}, &fakeAnalytics{})

	rec, body := doJSON(t, srv, http.MethodGet, "/api/portfolio/live", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, body["connected"])
}

func TestCORSAllowedOrigin(t *testing.T) {
	store, err := ledger.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	srv := New(Config{
		Exchange:    &fakeExchange{},
		Analytics:   &fakeAnalytics{},
		Ledger:      store,
		CORSOrigins: []string{"http://localhost:3000"},
	})

	req := httptest.NewRequest(http.MethodOptions, "/api/analytics/win-rate", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://evil.example")
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
