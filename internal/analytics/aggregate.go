package analytics

import (
	"context"
	"math"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/gw/kalshi-pnl/internal/kalshi"
)

// Collector fetches complete record sets from the exchange.
// *kalshi.Client satisfies it.
type Collector interface {
	AllFills(ctx context.Context, minTS int64) ([]kalshi.Fill, error)
	AllSettlements(ctx context.Context) ([]kalshi.Settlement, error)
}

// Service computes the trading reports. Each call runs a stateless
// fetch→reduce→aggregate pipeline from cold inputs; nothing is cached
// between requests, so concurrent calls share no mutable state.
type Service struct {
	ex  Collector
	now func() time.Time
}

func NewService(ex Collector) *Service {
	return &Service{ex: ex, now: time.Now}
}

// --- Report types ---

// DailyBucket aggregates one UTC calendar day. P/L fields are keyed by
// settlement day while trade count and volume are keyed by fill day;
// the two partition the same timeline independently and are not
// reconciled against each other.
type DailyBucket struct {
	Date            string `json:"date"`
	RealizedPnL     int    `json:"realized_pnl"`
	SettlementCount int    `json:"settlement_count"`
	Wins            int    `json:"wins"`
	Losses          int    `json:"losses"`
	TradeCount      int    `json:"trade_count"`
	Volume          int    `json:"volume"`
}

type DailyPnLReport struct {
	DailyPnL []DailyBucket `json:"daily_pnl"`
	Period   string        `json:"period"`
}

type CumulativePoint struct {
	Date          string `json:"date"`
	DailyPnL      int    `json:"daily_pnl"`
	CumulativePnL int    `json:"cumulative_pnl"`
	TradeCount    int    `json:"trade_count"`
}

type CumulativePnLReport struct {
	CumulativePnL []CumulativePoint `json:"cumulative_pnl"`
	Period        string            `json:"period"`
}

type WinRateReport struct {
	Wins    int     `json:"wins"`
	Losses  int     `json:"losses"`
	Total   int     `json:"total"`
	WinRate float64 `json:"win_rate"` // percentage, 2 decimals
	AvgWin  float64 `json:"avg_win"`
	AvgLoss float64 `json:"avg_loss"`
	NetPnL  int     `json:"net_pnl"`
	Period  string  `json:"period"`
}

type MarketPnL struct {
	Ticker  string  `json:"ticker"`
	PnL     int     `json:"pnl"`
	Wins    int     `json:"wins"`
	Losses  int     `json:"losses"`
	Count   int     `json:"count"`
	WinRate float64 `json:"win_rate"`
}

type MarketBreakdownReport struct {
	Breakdown []MarketPnL `json:"breakdown"`
	Period    string      `json:"period"`
}

// --- Fetching ---

// fetchSettled collects the full fill history and settlement set
// concurrently (neither depends on the other) and reconciles them.
func (s *Service) fetchSettled(ctx context.Context, minTS int64) ([]Settled, error) {
	var allFills []kalshi.Fill
	var settlements []kalshi.Settlement

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		allFills, err = s.ex.AllFills(gctx, 0) // full history: cost basis may predate the window
		return err
	})
	g.Go(func() error {
		var err error
		settlements, err = s.ex.AllSettlements(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return Reconcile(settlements, minTS, CostBasis(allFills)), nil
}

// --- Reports ---

func (s *Service) DailyPnL(ctx context.Context, period string) (*DailyPnLReport, error) {
	minTS := WindowFloor(period, s.now())

	var settled []Settled
	var windowFills []kalshi.Fill

	// The window-scoped fill fetch is a separate collector invocation:
	// it carries min_ts at the transport level, which the full-history
	// fetch must not.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		settled, err = s.fetchSettled(gctx, minTS)
		return err
	})
	g.Go(func() error {
		var err error
		windowFills, err = s.ex.AllFills(gctx, minTS)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	buckets := make(map[string]*DailyBucket)
	bucket := func(day string) *DailyBucket {
		b, ok := buckets[day]
		if !ok {
			b = &DailyBucket{Date: day}
			buckets[day] = b
		}
		return b
	}

	for _, st := range settled {
		b := bucket(st.Day)
		b.RealizedPnL += st.RealizedPnL
		b.SettlementCount++
		if st.Win {
			b.Wins++
		} else if st.Loss {
			b.Losses++
		}
	}

	for i := range windowFills {
		f := &windowFills[i]
		if !f.CreatedTime.Valid() {
			continue
		}
		b := bucket(f.CreatedTime.Day())
		b.TradeCount++
		b.Volume += f.Count * f.Price()
	}

	days := make([]string, 0, len(buckets))
	for day := range buckets {
		days = append(days, day)
	}
	sort.Strings(days)

	out := make([]DailyBucket, 0, len(days))
	for _, day := range days {
		out = append(out, *buckets[day])
	}
	return &DailyPnLReport{DailyPnL: out, Period: period}, nil
}

func (s *Service) CumulativePnL(ctx context.Context, period string) (*CumulativePnLReport, error) {
	daily, err := s.DailyPnL(ctx, period)
	if err != nil {
		return nil, err
	}

	points := make([]CumulativePoint, 0, len(daily.DailyPnL))
	running := 0
	for _, day := range daily.DailyPnL {
		running += day.RealizedPnL
		points = append(points, CumulativePoint{
			Date:          day.Date,
			DailyPnL:      day.RealizedPnL,
			CumulativePnL: running,
			TradeCount:    day.TradeCount,
		})
	}
	return &CumulativePnLReport{CumulativePnL: points, Period: period}, nil
}

func (s *Service) WinRate(ctx context.Context, period string) (*WinRateReport, error) {
	settled, err := s.fetchSettled(ctx, WindowFloor(period, s.now()))
	if err != nil {
		return nil, err
	}

	report := &WinRateReport{Period: period}
	var totalWin, totalLoss int
	for _, st := range settled {
		if st.Win {
			report.Wins++
			totalWin += st.RealizedPnL
		} else if st.Loss {
			report.Losses++
			totalLoss += -st.RealizedPnL
		}
	}

	report.Total = report.Wins + report.Losses
	report.WinRate = winRate(report.Wins, report.Losses)
	if report.Wins > 0 {
		report.AvgWin = float64(totalWin) / float64(report.Wins)
	}
	if report.Losses > 0 {
		report.AvgLoss = float64(totalLoss) / float64(report.Losses)
	}
	report.NetPnL = totalWin - totalLoss
	return report, nil
}

func (s *Service) MarketBreakdown(ctx context.Context, period string) (*MarketBreakdownReport, error) {
	settled, err := s.fetchSettled(ctx, WindowFloor(period, s.now()))
	if err != nil {
		return nil, err
	}

	byTicker := make(map[string]*MarketPnL)
	for _, st := range settled {
		m, ok := byTicker[st.Ticker]
		if !ok {
			m = &MarketPnL{Ticker: st.Ticker}
			byTicker[st.Ticker] = m
		}
		m.PnL += st.RealizedPnL
		m.Count++
		if st.Win {
			m.Wins++
		} else if st.Loss {
			m.Losses++
		}
	}

	out := make([]MarketPnL, 0, len(byTicker))
	for _, m := range byTicker {
		m.WinRate = winRate(m.Wins, m.Losses)
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool {
		ai, aj := abs(out[i].PnL), abs(out[j].PnL)
		if ai != aj {
			return ai > aj
		}
		return out[i].Ticker < out[j].Ticker
	})
	return &MarketBreakdownReport{Breakdown: out, Period: period}, nil
}

// winRate returns wins/(wins+losses) as a percentage rounded to two
// decimals, 0 when there are no decided settlements.
func winRate(wins, losses int) float64 {
	total := wins + losses
	if total == 0 {
		return 0
	}
	return math.Round(float64(wins)/float64(total)*10000) / 100
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
