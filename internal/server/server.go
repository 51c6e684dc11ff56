package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/gw/kalshi-pnl/internal/analytics"
	"github.com/gw/kalshi-pnl/internal/kalshi"
	"github.com/gw/kalshi-pnl/internal/ledger"
)

// Exchange is the slice of the Kalshi client the HTTP layer consumes.
type Exchange interface {
	GetBalance(ctx context.Context) (*kalshi.Balance, error)
	GetPortfolioHistory(ctx context.Context, minTS int64) ([]kalshi.PortfolioValue, error)
	GetFills(ctx context.Context, p kalshi.FillParams) ([]kalshi.Fill, string, error)
	GetSettlements(ctx context.Context, p kalshi.SettlementParams) ([]kalshi.Settlement, string, error)
	AllPositions(ctx context.Context) ([]kalshi.Position, error)
	AllFills(ctx context.Context, minTS int64) ([]kalshi.Fill, error)
	AllSettlements(ctx context.Context) ([]kalshi.Settlement, error)
}

// Analytics produces the four period-scoped reports.
type Analytics interface {
	DailyPnL(ctx context.Context, period string) (*analytics.DailyPnLReport, error)
	CumulativePnL(ctx context.Context, period string) (*analytics.CumulativePnLReport, error)
	WinRate(ctx context.Context, period string) (*analytics.WinRateReport, error)
	MarketBreakdown(ctx context.Context, period string) (*analytics.MarketBreakdownReport, error)
}

// Config describes the server's dependencies. Feed and Ledger are
// optional; their endpoints degrade when absent.
type Config struct {
	Addr        string
	Exchange    Exchange
	Analytics   Analytics
	Ledger      *ledger.Store
	Feed        *kalshi.Feed
	CORSOrigins []string
}

type Server struct {
	addr   string
	router *gin.Engine
}

func New(cfg Config) *Server {
	if cfg.Addr == "" {
		cfg.Addr = ":8000"
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(), corsMiddleware(cfg.CORSOrigins))

	h := &handlers{
		exchange:  cfg.Exchange,
		analytics: cfg.Analytics,
		ledger:    cfg.Ledger,
		feed:      cfg.Feed,
	}
	h.register(router)

	return &Server{addr: cfg.Addr, router: router}
}

func (s *Server) Handler() http.Handler { return s.router }

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.router}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	slog.Info("http server listening", "addr", s.addr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		slog.Info("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[o] = true
	}
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if allowed[origin] {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Content-Type")
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
