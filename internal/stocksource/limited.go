package stocksource

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Limited throttles calls to the wrapped Source to a fixed request rate.
// Waiting for a token honours the caller's context.
type Limited struct {
	source  Source
	limiter *rate.Limiter
}

// NewLimited allows perMinute calls per minute with bursts of up to burst calls
func NewLimited(source Source, perMinute, burst int) *Limited {
	if burst <= 0 {
		burst = 1
	}
	limit := rate.Inf
	if perMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(perMinute))
	}

	return &Limited{
		source:  source,
		limiter: rate.NewLimiter(limit, burst),
	}
}

func (l *Limited) FetchBulkStock(ctx context.Context, skus []string) (map[string]StockRecord, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return l.source.FetchBulkStock(ctx, skus)
}

func (l *Limited) FetchFullCatalog(ctx context.Context, cursor string) (Page, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return Page{}, err
	}
	return l.source.FetchFullCatalog(ctx, cursor)
}
