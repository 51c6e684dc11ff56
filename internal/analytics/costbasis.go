package analytics

import "github.com/gw/kalshi-pnl/internal/kalshi"

// CostBasis reduces a fill history to net cash committed per ticker, in
// cents: +count×price on a buy, −count×price on a sell, always at the
// held side's price. The reduction is a commutative sum, so fill order
// does not matter. Tickers with no fills are simply absent; map lookups
// default to zero, which is the correct basis for them.
//
// Callers feeding settlement reconciliation must pass the complete fill
// history, not a window: a position's cost may predate the reporting
// window its settlement falls in.
func CostBasis(fills []kalshi.Fill) map[string]int {
	basis := make(map[string]int)
	for i := range fills {
		f := &fills[i]
		cost := f.Count * f.Price()
		if f.Action == "sell" {
			cost = -cost
		}
		basis[f.Ticker] += cost
	}
	return basis
}
