package types

import (
	"context"
	"time"
)

const UnitKWh = "kWh"

// PriceObservation is the price for the hour starting at Timepoint.
type PriceObservation struct {
	Timepoint time.Time // UTC, start of the hour
	Price     float64   // Price per kWh
	Currency  string
	Unit      string
}

type RatesFetcher interface {
	FetchDayAheadRates(ctx context.Context, apiKey, region string, start, end time.Time) ([]PriceObservation, error)
}
