package kalshi

import (
	"context"
	"crypto"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gw/kalshi-pnl/internal/config"
)

// Client is the process-wide signed transport for the Kalshi REST API.
// It is read-only after construction and safe for concurrent use.
type Client struct {
	cfg            *config.Config
	key            crypto.Signer
	http           *http.Client
	baseURL        string
	basePathPrefix string
}

func NewClient(cfg *config.Config) (*Client, error) {
	material, err := cfg.PrivateKeyMaterial()
	if err != nil {
		return nil, fmt.Errorf("loading kalshi key: %w", err)
	}
	key, err := ParsePrivateKey(material)
	if err != nil {
		return nil, fmt.Errorf("loading kalshi key: %w", err)
	}

	parsed, err := url.Parse(cfg.BaseURL())
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}

	return &Client{
		cfg:            cfg,
		key:            key,
		http:           &http.Client{Timeout: 30 * time.Second},
		baseURL:        cfg.BaseURL(),
		basePathPrefix: parsed.Path,
	}, nil
}

func (c *Client) PrivateKey() crypto.Signer { return c.key }

// signPath returns the full resource path Kalshi expects in the
// signature, including the API version prefix.
func (c *Client) signPath(path string) string {
	return c.basePathPrefix + path
}

// APIError is a non-2xx response from the exchange. Callers decide
// whether a given status is fatal; 404 on single-record lookups is not.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("kalshi API error %d: %s", e.StatusCode, e.Body)
}

func (e *APIError) NotFound() bool { return e.StatusCode == http.StatusNotFound }

// IsNotFound reports whether err is an APIError with status 404.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.NotFound()
}

// --- API Types ---

type Balance struct {
	Balance          int `json:"balance"`
	PortfolioValue   int `json:"portfolio_value"`
	AvailableBalance int `json:"available_balance"`
	BonusBalance     int `json:"bonus_balance"`
}

type Position struct {
	Ticker             string `json:"ticker"`
	MarketTitle        string `json:"market_title"`
	Position           int    `json:"position"` // positive = yes, negative = no
	MarketExposure     int    `json:"market_exposure"`
	RestingOrdersCount int    `json:"resting_orders_count"`
	TotalTraded        int    `json:"total_traded"`
	RealizedPnL        int    `json:"realized_pnl"`
	FeesPaid           int    `json:"fees_paid"`
}

type Fill struct {
	TradeID     string    `json:"trade_id"`
	OrderID     string    `json:"order_id"`
	Ticker      string    `json:"ticker"`
	Side        string    `json:"side"`   // "yes" or "no"
	Action      string    `json:"action"` // "buy" or "sell"
	YesPrice    int       `json:"yes_price"`
	NoPrice     int       `json:"no_price"`
	Count       int       `json:"count"`
	IsTaker     bool      `json:"is_taker"`
	CreatedTime Timestamp `json:"created_time"`
}

// Price returns the execution price in cents for the side the trader
// holds.
func (f *Fill) Price() int {
	if f.Side == "no" {
		return f.NoPrice
	}
	return f.YesPrice
}

type Settlement struct {
	Ticker        string    `json:"ticker"`
	MarketResult  string    `json:"market_result"` // "yes" or "no"
	NoTotalCount  int       `json:"no_total_count"`
	NoCost        int       `json:"no_cost"`
	YesTotalCount int       `json:"yes_total_count"`
	YesCost       int       `json:"yes_cost"`
	Revenue       int       `json:"revenue"` // payout in cents, signed
	SettledTime   Timestamp `json:"settled_time"`
}

// HeldSide returns the side the trader held and the contract count.
func (s *Settlement) HeldSide() (string, int) {
	if s.YesTotalCount > 0 {
		return "yes", s.YesTotalCount
	}
	return "no", s.NoTotalCount
}

type Market struct {
	Ticker       string `json:"ticker"`
	EventTicker  string `json:"event_ticker"`
	Title        string `json:"title"`
	Status       string `json:"status"`
	YesBid       int    `json:"yes_bid"`
	YesAsk       int    `json:"yes_ask"`
	NoBid        int    `json:"no_bid"`
	NoAsk        int    `json:"no_ask"`
	LastPrice    int    `json:"last_price"`
	Volume       int    `json:"volume"`
	OpenInterest int    `json:"open_interest"`
	CloseTime    string `json:"close_time"`
	Result       string `json:"result"`
}

// PortfolioValue is one point of the account's historical value series.
type PortfolioValue struct {
	TS             int64 `json:"ts"` // epoch milliseconds
	Balance        int   `json:"balance"`
	PortfolioValue int   `json:"portfolio_value"`
	PnL            int   `json:"pnl"`
}

// --- API Methods ---

func (c *Client) GetBalance(ctx context.Context) (*Balance, error) {
	var result Balance
	if err := c.get(ctx, "/portfolio/balance", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// PositionParams specifies filters for GetPositions.
type PositionParams struct {
	Cursor string
}

func (c *Client) GetPositions(ctx context.Context, p PositionParams) ([]Position, string, error) {
	params := url.Values{}
	params.Set("limit", strconv.Itoa(pageLimit))
	if p.Cursor != "" {
		params.Set("cursor", p.Cursor)
	}

	var result struct {
		MarketPositions []Position `json:"market_positions"`
		Cursor          string     `json:"cursor"`
	}
	if err := c.get(ctx, "/portfolio/positions", params, &result); err != nil {
		return nil, "", err
	}
	return result.MarketPositions, result.Cursor, nil
}

// FillParams specifies filters for GetFills. MinTS is a millisecond
// floor applied server-side; zero means no floor.
type FillParams struct {
	Ticker string
	Cursor string
	MinTS  int64
	Limit  int
}

func (c *Client) GetFills(ctx context.Context, p FillParams) ([]Fill, string, error) {
	params := url.Values{}
	limit := p.Limit
	if limit <= 0 {
		limit = pageLimit
	}
	params.Set("limit", strconv.Itoa(limit))
	if p.Ticker != "" {
		params.Set("ticker", p.Ticker)
	}
	if p.Cursor != "" {
		params.Set("cursor", p.Cursor)
	}
	if p.MinTS > 0 {
		params.Set("min_ts", strconv.FormatInt(p.MinTS, 10))
	}

	var result struct {
		Fills  []Fill `json:"fills"`
		Cursor string `json:"cursor"`
	}
	if err := c.get(ctx, "/portfolio/fills", params, &result); err != nil {
		return nil, "", err
	}
	return result.Fills, result.Cursor, nil
}

// SettlementParams specifies filters for GetSettlements. The exchange
// does not support a timestamp floor here; callers filter locally.
type SettlementParams struct {
	Cursor string
	Limit  int
}

func (c *Client) GetSettlements(ctx context.Context, p SettlementParams) ([]Settlement, string, error) {
	params := url.Values{}
	limit := p.Limit
	if limit <= 0 {
		limit = pageLimit
	}
	params.Set("limit", strconv.Itoa(limit))
	if p.Cursor != "" {
		params.Set("cursor", p.Cursor)
	}

	var result struct {
		Settlements []Settlement `json:"settlements"`
		Cursor      string       `json:"cursor"`
	}
	if err := c.get(ctx, "/portfolio/settlements", params, &result); err != nil {
		return nil, "", err
	}
	return result.Settlements, result.Cursor, nil
}

func (c *Client) GetMarket(ctx context.Context, ticker string) (*Market, error) {
	var result struct {
		Market Market `json:"market"`
	}
	path := fmt.Sprintf("/markets/%s", ticker)
	if err := c.get(ctx, path, nil, &result); err != nil {
		return nil, err
	}
	return &result.Market, nil
}

// MarketParams specifies filters for GetMarkets.
type MarketParams struct {
	Tickers []string
	Cursor  string
}

func (c *Client) GetMarkets(ctx context.Context, p MarketParams) ([]Market, string, error) {
	params := url.Values{}
	params.Set("limit", strconv.Itoa(pageLimit))
	if len(p.Tickers) > 0 {
		params.Set("tickers", strings.Join(p.Tickers, ","))
	}
	if p.Cursor != "" {
		params.Set("cursor", p.Cursor)
	}

	var result struct {
		Markets []Market `json:"markets"`
		Cursor  string   `json:"cursor"`
	}
	if err := c.get(ctx, "/markets", params, &result); err != nil {
		return nil, "", err
	}
	return result.Markets, result.Cursor, nil
}

func (c *Client) GetPortfolioHistory(ctx context.Context, minTS int64) ([]PortfolioValue, error) {
	params := url.Values{}
	if minTS > 0 {
		params.Set("min_ts", strconv.FormatInt(minTS, 10))
	}

	var result struct {
		History []PortfolioValue `json:"history"`
	}
	if err := c.get(ctx, "/portfolio/history", params, &result); err != nil {
		return nil, err
	}
	return result.History, nil
}

// --- HTTP helpers ---

func (c *Client) get(ctx context.Context, path string, params url.Values, out interface{}) error {
	reqURL := c.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, "GET", reqURL, nil)
	if err != nil {
		return err
	}

	headers, err := AuthHeaders(c.cfg.KalshiAPIKeyID, c.key, "GET", c.signPath(path))
	if err != nil {
		return err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	req.Header.Set("Accept", "application/json")

	return c.doRequest(req, out)
}

func (c *Client) doRequest(req *http.Request, out interface{}) error {
	slog.Debug("kalshi request", "method", req.Method, "url", req.URL.String())

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("kalshi request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode >= 400 {
		slog.Error("kalshi API error", "status", resp.StatusCode, "body", string(body))
		return &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("decoding response: %w (body: %s)", err, string(body))
		}
	}

	return nil
}
