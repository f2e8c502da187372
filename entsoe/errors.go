package entsoe

import "errors"

var (
	// ErrMalformedDocument is returned when a payload is not a well formed
	// Publication_MarketDocument or lacks a field the parser depends on.
	ErrMalformedDocument = errors.New("malformed market document")

	// ErrUpstreamFetchFailed wraps every failure of the price querier.
	ErrUpstreamFetchFailed = errors.New("upstream fetch failed")

	// ErrInvalidWindow is returned without calling upstream when the
	// requested window is empty or reversed.
	ErrInvalidWindow = errors.New("window start must be before window end")
)
