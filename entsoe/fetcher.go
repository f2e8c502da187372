package entsoe

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/icodeforyou/entsoe-transparency/types"
)

type PriceQuerier interface {
	QueryDayAheadPrices(ctx context.Context, apiKey, region string, start, end time.Time) ([]byte, error)
}

// Fetcher combines a PriceQuerier with the document parser.
type Fetcher struct {
	logger  *slog.Logger
	querier PriceQuerier
}

var _ types.RatesFetcher = (*Fetcher)(nil)

func NewFetcher(logger *slog.Logger, querier PriceQuerier) *Fetcher {
	return &Fetcher{logger: logger, querier: querier}
}

func (f *Fetcher) FetchDayAheadRates(ctx context.Context, apiKey, region string, start, end time.Time) ([]types.PriceObservation, error) {
	if !start.Before(end) {
		return nil, fmt.Errorf("%w: [%s, %s)", ErrInvalidWindow, start.Format(time.RFC3339), end.Format(time.RFC3339))
	}

	raw, err := f.querier.QueryDayAheadPrices(ctx, apiKey, region, start.UTC(), end.UTC())
	if err != nil {
		return nil, fmt.Errorf("%w: region %s: %w", ErrUpstreamFetchFailed, region, err)
	}

	observations, err := ParseDayAheadRates(raw)
	if err != nil {
		return nil, fmt.Errorf("region %s: %w", region, err)
	}

	f.logger.Debug("day-ahead rates fetched",
		slog.String("region", region),
		slog.Int("bytes", len(raw)),
		slog.Int("observations", len(observations)))

	return observations, nil
}
