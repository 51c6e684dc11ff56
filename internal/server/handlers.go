package server

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/gw/kalshi-pnl/internal/analytics"
	"github.com/gw/kalshi-pnl/internal/kalshi"
	"github.com/gw/kalshi-pnl/internal/ledger"
)

type handlers struct {
	exchange  Exchange
	analytics Analytics
	ledger    *ledger.Store
	feed      *kalshi.Feed
}

func (h *handlers) register(router *gin.Engine) {
	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "Kalshi Trading Dashboard API", "status": "running"})
	})
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})

	api := router.Group("/api")

	an := api.Group("/analytics")
	an.GET("/daily-pnl", h.dailyPnL)
	an.GET("/cumulative-pnl", h.cumulativePnL)
	an.GET("/win-rate", h.winRate)
	an.GET("/market-breakdown", h.marketBreakdown)

	pf := api.Group("/portfolio")
	pf.GET("/balance", h.balance)
	pf.GET("/positions", h.positions)
	pf.GET("/history", h.history)
	pf.GET("/summary", h.summary)
	pf.GET("/live", h.live)

	tr := api.Group("/trades")
	tr.GET("/fills", h.fills)
	tr.GET("/settlements", h.settlements)
	tr.GET("/recent", h.recentTrades)

	tx := api.Group("/transactions")
	tx.GET("", h.listTransactions)
	tx.POST("", h.createTransaction)
	tx.GET("/summary", h.transactionsSummary)
}

// abortErr maps failures to one structured error response. Remote
// rejections keep their upstream status context; everything else is an
// internal error.
func abortErr(c *gin.Context, err error) {
	var apiErr *kalshi.APIError
	if errors.As(err, &apiErr) {
		c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{
			"error":           "exchange rejected request",
			"upstream_status": apiErr.StatusCode,
		})
		return
	}
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}

// --- Analytics ---

func (h *handlers) dailyPnL(c *gin.Context) {
	report, err := h.analytics.DailyPnL(c.Request.Context(), c.DefaultQuery("period", "30d"))
	if err != nil {
		abortErr(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *handlers) cumulativePnL(c *gin.Context) {
	report, err := h.analytics.CumulativePnL(c.Request.Context(), c.DefaultQuery("period", "30d"))
	if err != nil {
		abortErr(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *handlers) winRate(c *gin.Context) {
	report, err := h.analytics.WinRate(c.Request.Context(), c.DefaultQuery("period", "all"))
	if err != nil {
		abortErr(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *handlers) marketBreakdown(c *gin.Context) {
	report, err := h.analytics.MarketBreakdown(c.Request.Context(), c.DefaultQuery("period", "all"))
	if err != nil {
		abortErr(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// --- Portfolio ---

func (h *handlers) balance(c *gin.Context) {
	bal, err := h.exchange.GetBalance(c.Request.Context())
	if err != nil {
		abortErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"balance":           bal.Balance,
		"portfolio_value":   bal.PortfolioValue,
		"available_balance": bal.AvailableBalance,
		"bonus_balance":     bal.BonusBalance,
	})
}

func (h *handlers) positions(c *gin.Context) {
	positions, err := h.exchange.AllPositions(c.Request.Context())
	if err != nil {
		abortErr(c, err)
		return
	}

	out := make([]gin.H, 0, len(positions))
	for _, p := range positions {
		out = append(out, gin.H{
			"ticker":               p.Ticker,
			"market_title":         p.MarketTitle,
			"position":             p.Position,
			"market_exposure":      p.MarketExposure,
			"resting_orders_count": p.RestingOrdersCount,
			"total_traded":         p.TotalTraded,
			"realized_pnl":         p.RealizedPnL,
			"fees_paid":            p.FeesPaid,
		})
	}
	c.JSON(http.StatusOK, gin.H{"positions": out, "count": len(out)})
}

func (h *handlers) history(c *gin.Context) {
	period := c.DefaultQuery("period", "7d")
	minTS := analytics.WindowFloor(period, time.Now())

	// The history endpoint is not available on all accounts; serve an
	// empty series rather than failing the dashboard.
	history, err := h.exchange.GetPortfolioHistory(c.Request.Context(), minTS)
	if err != nil {
		slog.Warn("portfolio history unavailable", "err", err)
		history = nil
	}

	out := make([]gin.H, 0, len(history))
	for _, point := range history {
		if point.TS == 0 {
			continue
		}
		out = append(out, gin.H{
			"timestamp":       time.UnixMilli(point.TS).UTC().Format(time.RFC3339),
			"ts":              point.TS,
			"balance":         point.Balance,
			"portfolio_value": point.PortfolioValue,
			"total_value":     point.Balance + point.PortfolioValue,
			"pnl":             point.PnL,
		})
	}
	c.JSON(http.StatusOK, gin.H{"history": out, "period": period})
}

func (h *handlers) summary(c *gin.Context) {
	ctx := c.Request.Context()
	period := c.DefaultQuery("period", "all")
	minTS := analytics.WindowFloor(period, time.Now())

	bal, err := h.exchange.GetBalance(ctx)
	if err != nil {
		abortErr(c, err)
		return
	}
	positions, err := h.exchange.AllPositions(ctx)
	if err != nil {
		abortErr(c, err)
		return
	}
	fills, err := h.exchange.AllFills(ctx, minTS)
	if err != nil {
		abortErr(c, err)
		return
	}
	settlements, err := h.exchange.AllSettlements(ctx)
	if err != nil {
		abortErr(c, err)
		return
	}

	var exposure, unrealized int
	for _, p := range positions {
		exposure += absInt(p.MarketExposure)
		unrealized += p.RealizedPnL
	}

	var volume int
	for i := range fills {
		volume += fills[i].Count * fills[i].Price()
	}

	// Raw exchange payouts within the window; the analytics reports
	// carry the cost-basis-adjusted view.
	var realized int
	for i := range settlements {
		s := &settlements[i]
		if !s.SettledTime.Valid() {
			continue
		}
		if minTS > 0 && s.SettledTime.Millis() < minTS {
			continue
		}
		realized += s.Revenue
	}

	c.JSON(http.StatusOK, gin.H{
		"balance":              bal.Balance,
		"portfolio_value":      bal.PortfolioValue,
		"total_value":          bal.Balance + bal.PortfolioValue,
		"available_balance":    bal.AvailableBalance,
		"open_positions_count": len(positions),
		"total_exposure":       exposure,
		"unrealized_pnl":       unrealized,
		"realized_pnl":         realized,
		"trade_count":          len(fills),
		"volume":               volume,
		"period":               period,
	})
}

func (h *handlers) live(c *gin.Context) {
	if h.feed == nil {
		c.JSON(http.StatusOK, gin.H{"connected": false, "markets": []kalshi.TickerPrice{}})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"connected": h.feed.IsConnected(),
		"markets":   h.feed.Snapshot(),
	})
}

// --- Trades ---

func (h *handlers) fills(c *gin.Context) {
	period := c.DefaultQuery("period", "all")
	fills, cursor, err := h.exchange.GetFills(c.Request.Context(), kalshi.FillParams{
		Cursor: c.Query("cursor"),
		Limit:  intQuery(c, "limit", 100),
		MinTS:  analytics.WindowFloor(period, time.Now()),
	})
	if err != nil {
		abortErr(c, err)
		return
	}

	out := make([]gin.H, 0, len(fills))
	for i := range fills {
		f := &fills[i]
		out = append(out, gin.H{
			"id":         f.TradeID,
			"ticker":     f.Ticker,
			"side":       f.Side,
			"action":     f.Action,
			"count":      f.Count,
			"yes_price":  f.YesPrice,
			"no_price":   f.NoPrice,
			"created_at": f.CreatedTime,
			"is_taker":   f.IsTaker,
			"order_id":   f.OrderID,
		})
	}
	c.JSON(http.StatusOK, gin.H{"fills": out, "cursor": cursor, "period": period})
}

func (h *handlers) settlements(c *gin.Context) {
	period := c.DefaultQuery("period", "all")
	minTS := analytics.WindowFloor(period, time.Now())

	settlements, cursor, err := h.exchange.GetSettlements(c.Request.Context(), kalshi.SettlementParams{
		Cursor: c.Query("cursor"),
		Limit:  intQuery(c, "limit", 100),
	})
	if err != nil {
		abortErr(c, err)
		return
	}

	out := make([]gin.H, 0, len(settlements))
	for i := range settlements {
		s := &settlements[i]
		if minTS > 0 && s.SettledTime.Valid() && s.SettledTime.Millis() < minTS {
			continue
		}

		// Raw listing notion of a win: the market resolved to the side
		// the trader held. The analytics reports use the cost-basis
		// adjusted classification instead.
		side, _ := s.HeldSide()
		out = append(out, gin.H{
			"ticker":        s.Ticker,
			"market_result": s.MarketResult,
			"yes_count":     s.YesTotalCount,
			"no_count":      s.NoTotalCount,
			"revenue":       s.Revenue,
			"settled_at":    s.SettledTime,
			"is_win":        s.MarketResult == side,
		})
	}
	c.JSON(http.StatusOK, gin.H{"settlements": out, "cursor": cursor, "period": period})
}

func (h *handlers) recentTrades(c *gin.Context) {
	fills, _, err := h.exchange.GetFills(c.Request.Context(), kalshi.FillParams{
		Limit: intQuery(c, "limit", 20),
	})
	if err != nil {
		abortErr(c, err)
		return
	}

	out := make([]gin.H, 0, len(fills))
	for i := range fills {
		f := &fills[i]
		cost := f.Count * f.Price()
		if f.Action != "sell" {
			cost = -cost // buys spend cash
		}
		out = append(out, gin.H{
			"id":         f.TradeID,
			"ticker":     f.Ticker,
			"side":       f.Side,
			"action":     f.Action,
			"count":      f.Count,
			"price":      f.Price(),
			"cost":       cost,
			"created_at": f.CreatedTime,
		})
	}
	c.JSON(http.StatusOK, gin.H{"trades": out})
}

// --- Transactions ---

type transactionRequest struct {
	Type      string `json:"type" binding:"required"`
	Amount    int    `json:"amount" binding:"required"`
	Note      string `json:"note"`
	CreatedAt string `json:"created_at"`
}

func (h *handlers) createTransaction(c *gin.Context) {
	var req transactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	t := ledger.Transaction{Type: req.Type, Amount: req.Amount, Note: req.Note}
	if req.CreatedAt != "" {
		if parsed, err := time.Parse(time.RFC3339, req.CreatedAt); err == nil {
			t.CreatedAt = parsed
		}
	}

	stored, err := h.ledger.Insert(c.Request.Context(), t)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, transactionJSON(*stored))
}

func (h *handlers) listTransactions(c *gin.Context) {
	transactions, err := h.ledger.List(c.Request.Context())
	if err != nil {
		abortErr(c, err)
		return
	}
	out := make([]gin.H, 0, len(transactions))
	for _, t := range transactions {
		out = append(out, transactionJSON(t))
	}
	c.JSON(http.StatusOK, gin.H{"transactions": out})
}

func (h *handlers) transactionsSummary(c *gin.Context) {
	sum, err := h.ledger.Summarize(c.Request.Context())
	if err != nil {
		abortErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"total_deposits":    sum.TotalDeposits,
		"total_withdrawals": sum.TotalWithdrawals,
		"net_deposited":     sum.NetDeposited,
	})
}

func transactionJSON(t ledger.Transaction) gin.H {
	return gin.H{
		"id":         t.ID,
		"type":       t.Type,
		"amount":     t.Amount,
		"note":       t.Note,
		"created_at": t.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// --- helpers ---

func intQuery(c *gin.Context, key string, def int) int {
	if v := c.Query(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}

func absInt(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
