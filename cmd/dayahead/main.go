package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/icodeforyou/entsoe-transparency/entsoe"
	"github.com/icodeforyou/entsoe-transparency/hours"
	"github.com/lmittmann/tint"
)

func main() {
	region := flag.String("region", "AT", "bidding zone or country code")
	baseURL := flag.String("url", entsoe.DefaultBaseURL, "transparency platform endpoint")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: dayahead [-region AT] <api-key>\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	logger := slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      slog.LevelDebug,
		TimeFormat: time.Kitchen,
	}))

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	fetcher := entsoe.NewFetcher(logger, entsoe.NewClient(logger, *baseURL, 30*time.Second))
	start, end := hours.DayWindow(time.Now())
	res, err := fetcher.FetchDayAheadRates(ctx, flag.Arg(0), *region, start, end)
	if err != nil {
		logger.Error("fetch failed", slog.Any("error", err))
		os.Exit(1)
	}

	for _, p := range res {
		fmt.Printf("Hour: %s, Price: %f %s/%s\n", hours.FromTime(p.Timepoint), p.Price, p.Currency, p.Unit)
	}
}
