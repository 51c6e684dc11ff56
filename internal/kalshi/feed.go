package kalshi

import (
	"context"
	"crypto"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/gw/kalshi-pnl/internal/config"
)

// Feed is a WebSocket client for live ticker prices on the markets the
// trader currently holds. It backs the dashboard's live snapshot view.
type Feed struct {
	cfg   *config.Config
	key   crypto.Signer
	wsURL string

	mu      sync.RWMutex
	prices  map[string]*TickerPrice // ticker → latest ws data
	desired map[string]bool         // markets we want subscribed

	// Write-side state, protected by writeMu. Lock ordering: mu before writeMu.
	writeMu    sync.Mutex
	conn       *websocket.Conn
	tickerSID  int
	subscribed map[string]bool
	cmdSeq     int64

	connected atomic.Bool
}

// TickerPrice holds the latest ticker data for one market.
type TickerPrice struct {
	Ticker       string `json:"ticker"`
	YesBid       int    `json:"yes_bid"`
	YesAsk       int    `json:"yes_ask"`
	LastPrice    int    `json:"last_price"`
	Volume       int    `json:"volume"`
	OpenInterest int    `json:"open_interest"`
	UpdatedMS    int64  `json:"updated_ms"`
}

func NewFeed(cfg *config.Config, key crypto.Signer) *Feed {
	return &Feed{
		cfg:        cfg,
		key:        key,
		wsURL:      cfg.WSBaseURL(),
		prices:     make(map[string]*TickerPrice),
		desired:    make(map[string]bool),
		subscribed: make(map[string]bool),
	}
}

func (f *Feed) IsConnected() bool {
	return f.connected.Load()
}

// Run maintains the WebSocket connection with automatic reconnection.
func (f *Feed) Run(ctx context.Context) error {
	for {
		if err := f.connect(ctx); err != nil {
			slog.Warn("kalshi ws disconnected", "err", err)
		}
		f.connected.Store(false)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(2 * time.Second):
			slog.Info("kalshi ws reconnecting...")
		}
	}
}

func (f *Feed) connect(ctx context.Context) error {
	conn, err := f.dial(ctx)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}

	f.writeMu.Lock()
	f.conn = conn
	f.tickerSID = 0
	f.subscribed = make(map[string]bool)
	f.cmdSeq = 0
	f.writeMu.Unlock()

	f.mu.RLock()
	tickers := make([]string, 0, len(f.desired))
	for t := range f.desired {
		tickers = append(tickers, t)
	}
	f.mu.RUnlock()

	if len(tickers) > 0 {
		f.writeMu.Lock()
		err := f.subscribeLocked(tickers)
		f.writeMu.Unlock()
		if err != nil {
			conn.Close()
			return fmt.Errorf("subscribe: %w", err)
		}
	}

	f.connected.Store(true)
	slog.Info("kalshi ws connected", "subscriptions", len(tickers))

	ctx2, cancel := context.WithCancel(ctx)
	defer cancel()
	go f.pingLoop(ctx2, conn)
	return f.readLoop(ctx2, conn)
}

func (f *Feed) dial(ctx context.Context) (*websocket.Conn, error) {
	headers, err := AuthHeaders(f.cfg.KalshiAPIKeyID, f.key, "GET", "/trade-api/ws/v2")
	if err != nil {
		return nil, fmt.Errorf("auth headers: %w", err)
	}

	h := http.Header{}
	for k, v := range headers {
		h.Set(k, v)
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, f.wsURL, h)
	if err != nil {
		return nil, err
	}

	// Kalshi sends pings every ~10s. Reset read deadline on ping/pong.
	conn.SetPingHandler(func(data string) error {
		conn.SetReadDeadline(time.Now().Add(30 * time.Second))
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(5*time.Second))
	})
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(30 * time.Second))
		return nil
	})
	conn.SetReadDeadline(time.Now().Add(30 * time.Second))

	return conn, nil
}

func (f *Feed) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				slog.Debug("kalshi ws ping failed", "err", err)
				return
			}
		}
	}
}

// --- WS message types ---

type wsCommand struct {
	ID     int64       `json:"id"`
	Cmd    string      `json:"cmd"`
	Params interface{} `json:"params"`
}

type subscribeParams struct {
	Channels      []string `json:"channels"`
	MarketTickers []string `json:"market_tickers"`
}

type updateSubParams struct {
	SIDs          []int    `json:"sids"`
	MarketTickers []string `json:"market_tickers"`
	Action        string   `json:"action"`
}

type wsEnvelope struct {
	ID   int64           `json:"id,omitempty"`
	Type string          `json:"type"`
	SID  int             `json:"sid,omitempty"`
	Msg  json.RawMessage `json:"msg"`
}

type subOKEntry struct {
	Channel string `json:"channel"`
	SID     int    `json:"sid"`
}

type tickerPayload struct {
	MarketTicker string `json:"market_ticker"`
	Price        int    `json:"price"`
	YesBid       int    `json:"yes_bid"`
	YesAsk       int    `json:"yes_ask"`
	Volume       int    `json:"volume"`
	OpenInterest int    `json:"open_interest"`
}

// --- Read loop ---

func (f *Feed) readLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		conn.SetReadDeadline(time.Now().Add(30 * time.Second))

		var env wsEnvelope
		if err := json.Unmarshal(msg, &env); err != nil {
			slog.Debug("kalshi ws: unmarshal error", "err", err)
			continue
		}

		switch env.Type {
		case "ticker":
			f.handleTicker(env.Msg)
		case "ok":
			f.handleOK(env.Msg)
		case "error":
			slog.Warn("kalshi ws error", "id", env.ID, "msg", string(env.Msg))
		default:
			slog.Debug("kalshi ws: unknown message type", "type", env.Type)
		}
	}
}

func (f *Feed) handleTicker(raw json.RawMessage) {
	var t tickerPayload
	if err := json.Unmarshal(raw, &t); err != nil {
		slog.Debug("kalshi ws: ticker unmarshal error", "err", err)
		return
	}

	f.mu.Lock()
	p, ok := f.prices[t.MarketTicker]
	if !ok {
		p = &TickerPrice{Ticker: t.MarketTicker}
		f.prices[t.MarketTicker] = p
	}
	p.YesBid = t.YesBid
	p.YesAsk = t.YesAsk
	p.LastPrice = t.Price
	p.Volume = t.Volume
	p.OpenInterest = t.OpenInterest
	p.UpdatedMS = time.Now().UnixMilli()
	f.mu.Unlock()
}

func (f *Feed) handleOK(raw json.RawMessage) {
	var entries []subOKEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return
	}

	f.writeMu.Lock()
	for _, e := range entries {
		if e.Channel == "ticker" {
			f.tickerSID = e.SID
		}
		slog.Debug("ws subscribed", "channel", e.Channel, "sid", e.SID)
	}
	f.writeMu.Unlock()
}

// --- Subscription management ---

// subscribeLocked sends a subscribe command. Caller must hold writeMu.
func (f *Feed) subscribeLocked(tickers []string) error {
	f.cmdSeq++
	cmd := wsCommand{
		ID:  f.cmdSeq,
		Cmd: "subscribe",
		Params: subscribeParams{
			Channels:      []string{"ticker"},
			MarketTickers: tickers,
		},
	}
	f.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := f.conn.WriteJSON(cmd); err != nil {
		return err
	}
	f.conn.SetWriteDeadline(time.Time{})
	for _, t := range tickers {
		f.subscribed[t] = true
	}
	return nil
}

// UpdateSubscriptions adjusts the subscribed market set. Called by the
// server's position refresh loop.
func (f *Feed) UpdateSubscriptions(tickers []string) {
	desired := make(map[string]bool, len(tickers))
	for _, t := range tickers {
		desired[t] = true
	}

	f.mu.Lock()
	f.desired = desired
	f.mu.Unlock()

	if !f.connected.Load() {
		return
	}

	f.writeMu.Lock()

	if f.conn == nil {
		f.writeMu.Unlock()
		return
	}

	var toAdd, toRemove []string
	for t := range desired {
		if !f.subscribed[t] {
			toAdd = append(toAdd, t)
		}
	}
	for t := range f.subscribed {
		if !desired[t] {
			toRemove = append(toRemove, t)
		}
	}

	if len(toAdd) > 0 {
		if f.tickerSID == 0 {
			if err := f.subscribeLocked(toAdd); err != nil {
				slog.Warn("ws subscribe failed", "err", err)
			}
		} else {
			f.cmdSeq++
			cmd := wsCommand{
				ID:  f.cmdSeq,
				Cmd: "update_subscription",
				Params: updateSubParams{
					SIDs:          []int{f.tickerSID},
					MarketTickers: toAdd,
					Action:        "add_markets",
				},
			}
			f.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := f.conn.WriteJSON(cmd); err != nil {
				slog.Warn("ws update_subscription add failed", "err", err)
			}
			for _, t := range toAdd {
				f.subscribed[t] = true
			}
		}
	}

	if len(toRemove) > 0 && f.tickerSID != 0 {
		f.cmdSeq++
		cmd := wsCommand{
			ID:  f.cmdSeq,
			Cmd: "update_subscription",
			Params: updateSubParams{
				SIDs:          []int{f.tickerSID},
				MarketTickers: toRemove,
				Action:        "remove_markets",
			},
		}
		f.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := f.conn.WriteJSON(cmd); err != nil {
			slog.Warn("ws update_subscription remove failed", "err", err)
		}
		for _, t := range toRemove {
			delete(f.subscribed, t)
		}
	}

	f.conn.SetWriteDeadline(time.Time{})
	f.writeMu.Unlock()

	if len(toRemove) > 0 {
		f.mu.Lock()
		for _, t := range toRemove {
			delete(f.prices, t)
		}
		f.mu.Unlock()
	}
}

// Snapshot returns the latest ticker prices for all subscribed markets.
func (f *Feed) Snapshot() []TickerPrice {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make([]TickerPrice, 0, len(f.prices))
	for _, p := range f.prices {
		out = append(out, *p)
	}
	return out
}
