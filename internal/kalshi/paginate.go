package kalshi

import (
	"context"
	"log/slog"
)

// pageLimit is the page size requested from cursor-paged endpoints.
const pageLimit = 200

// Each All* method walks a cursor-paged endpoint to exhaustion. The
// loop terminates when the returned cursor is empty or the page is
// empty, whichever comes first; the second condition guards against a
// server that echoes a stale cursor alongside an empty page. Any
// transport error aborts the collection with no partial result.

// AllFills returns the complete fill set. minTS is a millisecond floor
// applied at the transport level; pass 0 for the full history (required
// when the result feeds cost-basis).
func (c *Client) AllFills(ctx context.Context, minTS int64) ([]Fill, error) {
	var all []Fill
	var cursor string
	for {
		fills, next, err := c.GetFills(ctx, FillParams{Cursor: cursor, MinTS: minTS})
		if err != nil {
			return nil, err
		}
		all = append(all, fills...)
		if next == "" || len(fills) == 0 {
			break
		}
		cursor = next
	}
	slog.Debug("collected fills", "count", len(all), "min_ts", minTS)
	return all, nil
}

// AllSettlements returns the complete settlement set.
func (c *Client) AllSettlements(ctx context.Context) ([]Settlement, error) {
	var all []Settlement
	var cursor string
	for {
		settlements, next, err := c.GetSettlements(ctx, SettlementParams{Cursor: cursor})
		if err != nil {
			return nil, err
		}
		all = append(all, settlements...)
		if next == "" || len(settlements) == 0 {
			break
		}
		cursor = next
	}
	slog.Debug("collected settlements", "count", len(all))
	return all, nil
}

// AllPositions returns every open position.
func (c *Client) AllPositions(ctx context.Context) ([]Position, error) {
	var all []Position
	var cursor string
	for {
		positions, next, err := c.GetPositions(ctx, PositionParams{Cursor: cursor})
		if err != nil {
			return nil, err
		}
		all = append(all, positions...)
		if next == "" || len(positions) == 0 {
			break
		}
		cursor = next
	}
	return all, nil
}

// AllMarkets returns every market matching the given tickers (all
// markets when tickers is empty).
func (c *Client) AllMarkets(ctx context.Context, tickers []string) ([]Market, error) {
	var all []Market
	var cursor string
	for {
		markets, next, err := c.GetMarkets(ctx, MarketParams{Tickers: tickers, Cursor: cursor})
		if err != nil {
			return nil, err
		}
		all = append(all, markets...)
		if next == "" || len(markets) == 0 {
			break
		}
		cursor = next
	}
	return all, nil
}
