package entsoe

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Resolutions treated as one hour.
var hourlyResolutions = map[string]bool{
	"PT60M": true,
	"PT1H":  true,
}

type publicationDocument struct {
	XMLName    xml.Name         `xml:"Publication_MarketDocument"`
	TimeSeries []wireTimeSeries `xml:"TimeSeries"`
}

type wireTimeSeries struct {
	Currency string       `xml:"currency_Unit.name"`
	Periods  []wirePeriod `xml:"Period"`
}

type wirePeriod struct {
	TimeInterval struct {
		Start string `xml:"start"`
		End   string `xml:"end"`
	} `xml:"timeInterval"`
	Resolution string      `xml:"resolution"`
	Points     []wirePoint `xml:"Point"`
}

type wirePoint struct {
	Position string `xml:"position"`
	Amount   string `xml:"price.amount"`
}

// marketSeries is one priced period of a TimeSeries. Points of non hourly
// series are not decoded.
type marketSeries struct {
	currency   string
	resolution string
	start      time.Time
	points     []marketPoint
}

type marketPoint struct {
	position int
	amount   decimal.Decimal
}

func (s marketSeries) hourly() bool {
	return hourlyResolutions[s.resolution]
}

// decodeDocument is the only place that inspects the raw document shape.
func decodeDocument(raw []byte) ([]marketSeries, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrMalformedDocument)
	}

	var doc publicationDocument
	if err := xml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}

	var series []marketSeries
	for i, ts := range doc.TimeSeries {
		for j, p := range ts.Periods {
			s, err := decodePeriod(ts.Currency, p)
			if err != nil {
				return nil, fmt.Errorf("%w: time series %d, period %d: %v", ErrMalformedDocument, i+1, j+1, err)
			}
			series = append(series, s)
		}
	}

	return series, nil
}

func decodePeriod(currency string, p wirePeriod) (marketSeries, error) {
	s := marketSeries{resolution: strings.TrimSpace(p.Resolution)}
	if s.resolution == "" {
		return s, fmt.Errorf("missing resolution")
	}
	if !s.hourly() {
		return s, nil
	}

	s.currency = strings.TrimSpace(currency)
	if s.currency == "" {
		return s, fmt.Errorf("missing currency_Unit.name")
	}

	start, err := parseInstant(p.TimeInterval.Start)
	if err != nil {
		return s, fmt.Errorf("timeInterval.start: %w", err)
	}
	s.start = start

	s.points = make([]marketPoint, 0, len(p.Points))
	for k, pt := range p.Points {
		pos, err := strconv.Atoi(strings.TrimSpace(pt.Position))
		if err != nil {
			return s, fmt.Errorf("point %d: position %q: %w", k+1, pt.Position, err)
		}
		if pos < 1 {
			return s, fmt.Errorf("point %d: position %d is not 1-based", k+1, pos)
		}
		amount, err := decimal.NewFromString(strings.TrimSpace(pt.Amount))
		if err != nil {
			return s, fmt.Errorf("point %d: price.amount %q: %w", k+1, pt.Amount, err)
		}
		s.points = append(s.points, marketPoint{position: pos, amount: amount})
	}

	return s, nil
}

// parseInstant accepts ISO-8601 instants with or without seconds,
// ENTSO-E uses "2024-01-01T23:00Z".
func parseInstant(str string) (time.Time, error) {
	str = strings.TrimSpace(str)
	if str == "" {
		return time.Time{}, fmt.Errorf("missing instant")
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04Z07:00"} {
		if t, err := time.Parse(layout, str); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unsupported instant %q", str)
}
