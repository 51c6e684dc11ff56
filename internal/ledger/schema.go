package ledger

const schemaDDL = `
CREATE TABLE IF NOT EXISTS transactions (
	id         TEXT PRIMARY KEY,
	type       TEXT NOT NULL CHECK (type IN ('deposit', 'withdrawal')),
	amount     INTEGER NOT NULL CHECK (amount > 0),
	note       TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_transactions_created ON transactions(created_at);
CREATE INDEX IF NOT EXISTS idx_transactions_type ON transactions(type);
`
