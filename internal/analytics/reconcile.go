package analytics

import "github.com/gw/kalshi-pnl/internal/kalshi"

// Settled is one settlement joined against the trader's cost basis.
// RealizedPnL is the exchange payout minus the net cash committed to
// the ticker across the full fill history; it routinely differs in sign
// from the raw payout, which is the reason cost basis exists as a
// separate step.
type Settled struct {
	Ticker      string
	Revenue     int // raw exchange payout, cents
	RealizedPnL int // Revenue − cost basis, cents
	Win         bool
	Loss        bool
	SettledMS   int64
	Day         string // UTC calendar day
}

// Reconcile joins settlements with the precomputed cost-basis map and
// filters to settlements at or after minTS (0 = all time). Settlements
// with missing or unparseable timestamps are excluded rather than
// failing the report. A realized P/L of exactly zero is neither a win
// nor a loss but still counts as a settlement.
func Reconcile(settlements []kalshi.Settlement, minTS int64, basis map[string]int) []Settled {
	out := make([]Settled, 0, len(settlements))
	for i := range settlements {
		s := &settlements[i]
		if !s.SettledTime.Valid() {
			continue
		}
		ms := s.SettledTime.Millis()
		if minTS > 0 && ms < minTS {
			continue
		}

		realized := s.Revenue - basis[s.Ticker]
		out = append(out, Settled{
			Ticker:      s.Ticker,
			Revenue:     s.Revenue,
			RealizedPnL: realized,
			Win:         realized > 0,
			Loss:        realized < 0,
			SettledMS:   ms,
			Day:         s.SettledTime.Day(),
		})
	}
	return out
}
