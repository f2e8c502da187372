package entsoe

import (
	"fmt"
	"strings"
)

type testPoint struct {
	position string
	amount   string
}

type testSeries struct {
	currency   string
	resolution string
	start      string
	points     []testPoint
}

func hourlyPoints(amounts ...string) []testPoint {
	points := make([]testPoint, len(amounts))
	for i, a := range amounts {
		points[i] = testPoint{position: fmt.Sprint(i + 1), amount: a}
	}
	return points
}

func buildDocument(series ...testSeries) []byte {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	b.WriteString(`<Publication_MarketDocument xmlns="urn:iec62325.351:tc57wg16:451-3:publicationdocument:7:0">` + "\n")
	b.WriteString("  <mRID>1</mRID>\n  <type>A44</type>\n")
	for i, s := range series {
		fmt.Fprintf(&b, "  <TimeSeries>\n    <mRID>%d</mRID>\n", i+1)
		fmt.Fprintf(&b, "    <currency_Unit.name>%s</currency_Unit.name>\n", s.currency)
		b.WriteString("    <price_Measure_Unit.name>MWH</price_Measure_Unit.name>\n")
		b.WriteString("    <Period>\n      <timeInterval>\n")
		fmt.Fprintf(&b, "        <start>%s</start>\n        <end>2099-01-01T00:00Z</end>\n", s.start)
		b.WriteString("      </timeInterval>\n")
		fmt.Fprintf(&b, "      <resolution>%s</resolution>\n", s.resolution)
		for _, p := range s.points {
			fmt.Fprintf(&b, "      <Point>\n        <position>%s</position>\n        <price.amount>%s</price.amount>\n      </Point>\n", p.position, p.amount)
		}
		b.WriteString("    </Period>\n  </TimeSeries>\n")
	}
	b.WriteString("</Publication_MarketDocument>\n")
	return []byte(b.String())
}
