package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/gw/kalshi-pnl/internal/analytics"
	"github.com/gw/kalshi-pnl/internal/config"
	"github.com/gw/kalshi-pnl/internal/kalshi"
)

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})))

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	arg := ""
	if len(os.Args) > 2 {
		arg = os.Args[2]
	}

	switch cmd {
	case "daily":
		runDaily(periodArg(arg))
	case "winrate":
		runWinRate(periodArg(arg))
	case "markets":
		runMarkets(periodArg(arg))
	case "recent":
		limit := 50
		if n, err := strconv.Atoi(arg); err == nil {
			limit = n
		}
		runRecent(limit)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `Usage: pnl <command>

Commands:
  daily [period]     Daily P/L table (period: 1h, 1d, 7d, 30d, all)
  winrate [period]   Win/loss statistics
  markets [period]   Per-market P/L breakdown
  recent [N]         Show last N fills (default 50)`)
}

func periodArg(arg string) string {
	if arg == "" {
		return "all"
	}
	return arg
}

func newService() (*analytics.Service, *kalshi.Client) {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config error", "err", err)
		os.Exit(1)
	}
	client, err := kalshi.NewClient(cfg)
	if err != nil {
		slog.Error("kalshi client init", "err", err)
		os.Exit(1)
	}
	return analytics.NewService(client), client
}

func runDaily(period string) {
	svc, _ := newService()
	report, err := svc.DailyPnL(context.Background(), period)
	if err != nil {
		slog.Error("report failed", "err", err)
		os.Exit(1)
	}

	if len(report.DailyPnL) == 0 {
		fmt.Println("No settlements or trades in this period.")
		return
	}

	fmt.Printf("%-12s %10s %6s %5s %7s %7s %10s\n",
		"Date", "PnL", "Settl", "W/L", "Trades", "", "Volume")
	fmt.Println("---------------------------------------------------------------")
	var totalPnL, totalTrades, totalVolume int
	for _, d := range report.DailyPnL {
		fmt.Printf("%-12s %10s %6d %3d/%-3d %7d %7s %10s\n",
			d.Date,
			cents(d.RealizedPnL),
			d.SettlementCount,
			d.Wins, d.Losses,
			d.TradeCount,
			"",
			cents(d.Volume),
		)
		totalPnL += d.RealizedPnL
		totalTrades += d.TradeCount
		totalVolume += d.Volume
	}
	fmt.Println("---------------------------------------------------------------")
	fmt.Printf("%-12s %10s %6s %5s %7d %7s %10s\n",
		"TOTAL", cents(totalPnL), "", "", totalTrades, "", cents(totalVolume))
}

func runWinRate(period string) {
	svc, _ := newService()
	report, err := svc.WinRate(context.Background(), period)
	if err != nil {
		slog.Error("report failed", "err", err)
		os.Exit(1)
	}

	fmt.Printf("Period:    %s\n", report.Period)
	fmt.Printf("Wins:      %d\n", report.Wins)
	fmt.Printf("Losses:    %d\n", report.Losses)
	fmt.Printf("Win rate:  %.2f%%\n", report.WinRate)
	fmt.Printf("Avg win:   %s\n", cents(int(report.AvgWin)))
	fmt.Printf("Avg loss:  %s\n", cents(int(report.AvgLoss)))
	fmt.Printf("Net PnL:   %s\n", cents(report.NetPnL))
}

func runMarkets(period string) {
	svc, _ := newService()
	report, err := svc.MarketBreakdown(context.Background(), period)
	if err != nil {
		slog.Error("report failed", "err", err)
		os.Exit(1)
	}

	if len(report.Breakdown) == 0 {
		fmt.Println("No settled markets in this period.")
		return
	}

	fmt.Printf("%-35s %10s %5s %7s %8s\n", "Ticker", "PnL", "Count", "W/L", "WinRate")
	fmt.Println("----------------------------------------------------------------------")
	for _, m := range report.Breakdown {
		fmt.Printf("%-35s %10s %5d %3d/%-3d %7.2f%%\n",
			m.Ticker,
			cents(m.PnL),
			m.Count,
			m.Wins, m.Losses,
			m.WinRate,
		)
	}
}

func runRecent(limit int) {
	_, client := newService()
	fills, _, err := client.GetFills(context.Background(), kalshi.FillParams{Limit: limit})
	if err != nil {
		slog.Error("fetch failed", "err", err)
		os.Exit(1)
	}

	if len(fills) == 0 {
		fmt.Println("No trades.")
		return
	}

	fmt.Printf("%-20s %-35s %5s %5s %5s %5s\n",
		"Time", "Ticker", "Side", "Act", "Price", "Qty")
	fmt.Println("---------------------------------------------------------------------------------")
	for i := range fills {
		f := &fills[i]
		ts := "-"
		if f.CreatedTime.Valid() {
			ts = f.CreatedTime.Time().Format("2006-01-02 15:04:05")
		}
		fmt.Printf("%-20s %-35s %5s %5s %5d %5d\n",
			ts,
			f.Ticker,
			f.Side,
			f.Action,
			f.Price(),
			f.Count,
		)
	}
}

func cents(c int) string {
	sign := ""
	if c < 0 {
		sign = "-"
		c = -c
	}
	return fmt.Sprintf("%s$%d.%02d", sign, c/100, c%100)
}
