package fixture

import (
	"context"
	"time"
)

// Repository is the fixture store consumed by the dispatch pipeline.
type Repository interface {
	// ListDue returns unprocessed, non-deleted fixtures scheduled inside w,
	// ordered by date_time ascending. It must run as one read.
	ListDue(ctx context.Context, w Window) ([]Fixture, error)
	// MarkProcessed flags ids as processed at the given instant in one write
	// and returns how many rows changed. Already processed rows are left as is.
	MarkProcessed(ctx context.Context, ids []int64, at time.Time) (int64, error)
}
