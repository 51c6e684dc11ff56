package ledger

import "time"

// Transaction is a manually entered deposit or withdrawal, in cents.
type Transaction struct {
	ID        string
	Type      string // "deposit" or "withdrawal"
	Amount    int    // always positive; Type carries the direction
	Note      string
	CreatedAt time.Time
}

// Summary totals the ledger. NetDeposited is deposits minus
// withdrawals.
type Summary struct {
	TotalDeposits    int
	TotalWithdrawals int
	NetDeposited     int
}
