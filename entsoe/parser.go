package entsoe

import (
	"time"

	"github.com/icodeforyou/entsoe-transparency/types"
	"github.com/shopspring/decimal"
)

var perMWh = decimal.NewFromInt(1000)

// ParseDayAheadRates turns a raw day-ahead market document into hourly
// observations. Series are concatenated in document order and points keep
// their document order, they are not sorted by position. Non hourly
// periods contribute nothing.
func ParseDayAheadRates(raw []byte) ([]types.PriceObservation, error) {
	series, err := decodeDocument(raw)
	if err != nil {
		return nil, err
	}

	observations := make([]types.PriceObservation, 0)
	for _, s := range series {
		if !s.hourly() {
			continue
		}
		for _, p := range s.points {
			observations = append(observations, types.PriceObservation{
				Timepoint: s.start.Add(time.Duration(p.position-1) * time.Hour),
				Price:     p.amount.Div(perMWh).InexactFloat64(),
				Currency:  s.currency,
				Unit:      types.UnitKWh,
			})
		}
	}

	return observations, nil
}
