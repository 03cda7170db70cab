package market

import "context"

// Source provides market snapshots. Implementations must return candles in
// ascending time order or fail with ErrDataUnavailable.
type Source interface {
	FetchSnapshot(ctx context.Context, ticker string, lookback int) (*Snapshot, error)
}
