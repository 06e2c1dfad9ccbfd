package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"TrendGate/internal/domain/models"
	"TrendGate/internal/domain/repository"
	xhttp "TrendGate/pkg/http"
	"TrendGate/pkg/util"
)

// HTTPBarSource fetches historical bars from the market-data collaborator's
// REST API. A non-2xx status or malformed payload yields a typed error;
// synthetic data is never substituted.
type HTTPBarSource struct {
	baseURL string
	apiKey  string
	client  *xhttp.Client
}

// NewHTTPBarSource creates a bar source for the given endpoint.
func NewHTTPBarSource(baseURL, apiKey string, timeout time.Duration) *HTTPBarSource {
	return &HTTPBarSource{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  xhttp.NewClient(xhttp.WithTimeout(timeout), xhttp.WithRetry(2, 300*time.Millisecond)),
	}
}

type barPayload struct {
	Timestamp string  `json:"timestamp"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    int64   `json:"volume"`
}

type barsResponse struct {
	Bars     []barPayload `json:"bars"`
	Source   string       `json:"source"`
	Exchange string       `json:"exchange"`
}

// FetchBars implements repository.BarSource.
func (s *HTTPBarSource) FetchBars(ctx context.Context, symbol string, tf models.Timeframe, limit int, from, to time.Time) (models.FetchResult, error) {
	params := map[string][]string{
		"symbol":    {symbol},
		"timeframe": {string(tf)},
		"limit":     {strconv.Itoa(limit)},
	}
	if !from.IsZero() {
		params["from"] = []string{from.UTC().Format(time.RFC3339)}
	}
	if !to.IsZero() {
		params["to"] = []string{to.UTC().Format(time.RFC3339)}
	}
	headers := map[string]string{}
	if s.apiKey != "" {
		headers["Authorization"] = "Bearer " + s.apiKey
	}

	resp, err := s.client.SendRequest(ctx, &xhttp.RequestOptions{
		Method:      xhttp.MethodGet,
		URL:         s.baseURL + "/v1/bars",
		Headers:     headers,
		QueryParams: params,
	})
	if err != nil {
		return models.FetchResult{}, &models.FetchError{Symbol: symbol, Timeframe: tf, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return models.FetchResult{}, &models.FetchError{
			Symbol:    symbol,
			Timeframe: tf,
			Status:    resp.StatusCode,
			Err:       fmt.Errorf("upstream: %s", truncate(body, 200)),
		}
	}

	var payload barsResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return models.FetchResult{}, &models.DataFormatError{
			Symbol:    symbol,
			Timeframe: tf,
			Reason:    "invalid json: " + err.Error(),
		}
	}

	bars := make([]models.Bar, 0, len(payload.Bars))
	for i, b := range payload.Bars {
		ts, ok := util.ParseTime(b.Timestamp)
		if !ok {
			return models.FetchResult{}, &models.DataFormatError{
				Symbol:    symbol,
				Timeframe: tf,
				Reason:    fmt.Sprintf("unparseable timestamp at index %d: %q", i, b.Timestamp),
			}
		}
		if b.Volume < 0 {
			return models.FetchResult{}, &models.DataFormatError{
				Symbol:    symbol,
				Timeframe: tf,
				Reason:    fmt.Sprintf("negative volume at index %d", i),
			}
		}
		bars = append(bars, models.Bar{
			Time:   ts,
			Open:   b.Open,
			High:   b.High,
			Low:    b.Low,
			Close:  b.Close,
			Volume: b.Volume,
		})
	}

	return models.FetchResult{Bars: bars, Source: payload.Source, Exchange: payload.Exchange}, nil
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		b = b[:n]
	}
	return string(b)
}

var _ repository.BarSource = (*HTTPBarSource)(nil)
