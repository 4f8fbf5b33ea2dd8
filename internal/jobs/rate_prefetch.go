package jobs

import "context"

// RateWarmer refreshes every cached rate at once
type RateWarmer interface {
	Prefetch(ctx context.Context) error
}

// RatePrefetcher keeps the rate cache warm so users rarely wait on the feed
type RatePrefetcher struct {
	rates RateWarmer
}

func NewRatePrefetcher(rates RateWarmer) *RatePrefetcher {
	return &RatePrefetcher{rates: rates}
}

func (p *RatePrefetcher) Run(ctx context.Context) error {
	return p.rates.Prefetch(ctx)
}
