package entsoe

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultBaseURL = "https://web-api.tp.entsoe.eu/api"

	documentTypeDayAhead = "A44"
	periodLayout         = "200601021504"
)

type acknowledgementDocument struct {
	XMLName xml.Name `xml:"Acknowledgement_MarketDocument"`
	Reasons []struct {
		Code string `xml:"code"`
		Text string `xml:"text"`
	} `xml:"Reason"`
}

// Client queries the ENTSO-E Transparency Platform REST API.
type Client struct {
	logger     *slog.Logger
	baseURL    string
	httpClient *http.Client
}

func NewClient(logger *slog.Logger, baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		logger:     logger,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// QueryDayAheadPrices returns the raw day-ahead price document for region
// over [start, end).
func (c *Client) QueryDayAheadPrices(ctx context.Context, apiKey, region string, start, end time.Time) ([]byte, error) {
	area := AreaCode(region)
	params := url.Values{}
	params.Set("documentType", documentTypeDayAhead)
	params.Set("in_Domain", area)
	params.Set("out_Domain", area)
	params.Set("periodStart", start.UTC().Format(periodLayout))
	params.Set("periodEnd", end.UTC().Format(periodLayout))
	params.Set("securityToken", apiKey)

	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	c.logger.Debug("querying day-ahead prices",
		slog.String("area", area),
		slog.String("periodStart", params.Get("periodStart")),
		slog.String("periodEnd", params.Get("periodEnd")))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// The request URL carries the security token
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			urlErr.URL = c.baseURL
		}
		return nil, fmt.Errorf("failed to fetch prices: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		if reason := acknowledgementReason(body); reason != "" {
			return nil, fmt.Errorf("unexpected status code: %d: %s", resp.StatusCode, reason)
		}
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	if reason := acknowledgementReason(body); reason != "" {
		return nil, fmt.Errorf("request acknowledged without data: %s", reason)
	}

	return body, nil
}

// acknowledgementReason returns the reason text when body is an
// Acknowledgement_MarketDocument, otherwise "".
func acknowledgementReason(body []byte) string {
	if !bytes.Contains(body, []byte("Acknowledgement_MarketDocument")) {
		return ""
	}
	var ack acknowledgementDocument
	if err := xml.Unmarshal(body, &ack); err != nil {
		return ""
	}
	texts := make([]string, 0, len(ack.Reasons))
	for _, r := range ack.Reasons {
		texts = append(texts, strings.TrimSpace(r.Text))
	}
	if len(texts) == 0 {
		return "no reason given"
	}
	return strings.Join(texts, "; ")
}
