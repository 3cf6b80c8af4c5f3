package forecast

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/sync/errgroup"

	"github.com/evaonline/matopiba-pipeline/internal/citycatalog"
)

// BackoffConfig controls exponential backoff between retried attempts.
type BackoffConfig struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// Config bundles everything the client needs to reach the provider.
type Config struct {
	BaseURL        string
	HTTPClient     *http.Client
	Backoff        BackoffConfig
	BatchSize      int
	MaxConcurrency int
	ForecastDays   int
	RequestTimeout time.Duration
}

// DefaultConfig returns the standard operating defaults: 50 cities per
// batch, 4 concurrent in-flight batch requests, 2-day horizon, 3 retries
// at 1s/2s/4s, 30s per-request timeout.
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL:        baseURL,
		HTTPClient:     &http.Client{},
		BatchSize:      50,
		MaxConcurrency: 4,
		ForecastDays:   2,
		RequestTimeout: 30 * time.Second,
		Backoff: BackoffConfig{
			MaxRetries:      3,
			InitialInterval: 1 * time.Second,
			MaxInterval:     4 * time.Second,
		},
	}
}

// Client fetches hourly MATOPIBA forecasts from the external provider.
type Client struct {
	cfg     Config
	circuit *gobreaker.CircuitBreaker
}

// NewClient builds a Client with a dedicated circuit breaker, shared by
// every batch request the client issues.
func NewClient(cfg Config) *Client {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 4
	}
	if cfg.ForecastDays <= 0 {
		cfg.ForecastDays = 2
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "matopiba-forecast-provider",
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     2 * time.Minute,
	})

	return &Client{cfg: cfg, circuit: cb}
}

// FetchAll fetches hourly forecasts for every city in the catalog,
// batching BatchSize cities per request and bounding in-flight requests
// to MaxConcurrency.
//
// A failed batch does not abort the call: its cities are reported as
// failures and the remaining batches still run.
func (c *Client) FetchAll(ctx context.Context, cities []citycatalog.City) (map[string]CityForecast, []CityFailure, error) {
	batches := citycatalog.BatchCities(cities, c.cfg.BatchSize)

	results := make([]map[string]CityForecast, len(batches))
	failures := make([][]CityFailure, len(batches))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.MaxConcurrency)

	for i, batch := range batches {
		i, batch := i, batch
		g.Go(func() error {
			res, fails := c.fetchBatch(gCtx, batch)
			results[i] = res
			failures[i] = fails
			return nil
		})
	}

	// Intentionally ignore the returned error: fetchBatch never returns a
	// goroutine-level error, only per-city failures, so every batch always
	// contributes its partial results even under total upstream outage.
	_ = g.Wait()

	merged := make(map[string]CityForecast)
	var allFailures []CityFailure
	for i := range batches {
		for code, cf := range results[i] {
			merged[code] = cf
		}
		allFailures = append(allFailures, failures[i]...)
	}

	return merged, allFailures, nil
}

// FetchOne fetches a single city's forecast. Used by the matopiba-probe
// CLI for manual spot checks against the provider.
func (c *Client) FetchOne(ctx context.Context, city citycatalog.City) (CityForecast, error) {
	results, failures := c.fetchBatch(ctx, []citycatalog.City{city})
	if len(failures) > 0 {
		return CityForecast{}, fmt.Errorf("forecast: %s: %s (%s)", failures[0].CityCode, failures[0].Kind, failures[0].Detail)
	}
	cf, ok := results[city.Code]
	if !ok {
		return CityForecast{}, ErrEmptyResponse
	}
	return cf, nil
}

func (c *Client) fetchBatch(ctx context.Context, batch []citycatalog.City) (map[string]CityForecast, []CityFailure) {
	if len(batch) == 0 {
		return nil, nil
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	buildRequest := func() (*http.Request, error) {
		u := c.buildBatchURL(batch)
		req, err := http.NewRequest(http.MethodGet, u, nil)
		if err != nil {
			return nil, err
		}
		return req, nil
	}

	resp, err := doRequestWithResilience(reqCtx, c.cfg, c.circuit, buildRequest)
	if err != nil {
		return nil, failAll(batch, classifyError(err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, failAll(batch, FailureUpstreamMalformed)
	}

	var payload []openMeteoResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		// Open-Meteo returns a single object, not an array, when only one
		// coordinate pair was requested.
		var single openMeteoResponse
		if len(batch) == 1 && json.Unmarshal(body, &single) == nil {
			payload = []openMeteoResponse{single}
		} else {
			return nil, failAll(batch, FailureUpstreamMalformed)
		}
	}

	results := make(map[string]CityForecast, len(batch))
	var failures []CityFailure

	for i, city := range batch {
		if i >= len(payload) {
			failures = append(failures, CityFailure{CityCode: city.Code, Kind: FailureUpstreamMalformed, Detail: "no entry in provider response"})
			continue
		}
		hourly, err := parseHourly(payload[i])
		if err != nil {
			failures = append(failures, CityFailure{CityCode: city.Code, Kind: FailureInsufficientHours, Detail: err.Error()})
			continue
		}
		results[city.Code] = CityForecast{CityCode: city.Code, Hourly: hourly}
	}

	return results, failures
}

func (c *Client) buildBatchURL(batch []citycatalog.City) string {
	lats := make([]string, len(batch))
	lons := make([]string, len(batch))
	for i, city := range batch {
		lats[i] = strconv.FormatFloat(city.Latitude, 'f', 4, 64)
		lons[i] = strconv.FormatFloat(city.Longitude, 'f', 4, 64)
	}

	values := url.Values{}
	values.Set("latitude", strings.Join(lats, ","))
	values.Set("longitude", strings.Join(lons, ","))
	values.Set("hourly", strings.Join(HourlyVariables, ","))
	values.Set("models", "best_match")
	values.Set("forecast_days", strconv.Itoa(c.cfg.ForecastDays))
	values.Set("timezone", "UTC")

	return fmt.Sprintf("%s?%s", c.cfg.BaseURL, values.Encode())
}

type openMeteoResponse struct {
	Hourly struct {
		Time                     []string  `json:"time"`
		Temperature2m            []float64 `json:"temperature_2m"`
		RelativeHumidity2m       []float64 `json:"relative_humidity_2m"`
		DewPoint2m               []float64 `json:"dew_point_2m"`
		WindSpeed10m             []float64 `json:"wind_speed_10m"`
		ShortwaveRadiation       []float64 `json:"shortwave_radiation"`
		Precipitation            []float64 `json:"precipitation"`
		Et0FaoEvapotranspiration []float64 `json:"et0_fao_evapotranspiration"`
	} `json:"hourly"`
}

func parseHourly(resp openMeteoResponse) ([]HourlyObs, error) {
	n := len(resp.Hourly.Time)
	if n < 48 {
		return nil, fmt.Errorf("provider returned %d hourly records, want at least 48", n)
	}

	obs := make([]HourlyObs, n)
	for i := range obs {
		ts, err := time.Parse("2006-01-02T15:04", resp.Hourly.Time[i])
		if err != nil {
			ts, err = time.Parse(time.RFC3339, resp.Hourly.Time[i])
			if err != nil {
				return nil, fmt.Errorf("unparsable timestamp %q: %w", resp.Hourly.Time[i], err)
			}
		}

		o := HourlyObs{
			TimestampUTC:          ts.UTC(),
			TempC:                 valueAt(resp.Hourly.Temperature2m, i),
			RelativeHumidityPct:   valueAt(resp.Hourly.RelativeHumidity2m, i),
			WindSpeed10mMS:        valueAt(resp.Hourly.WindSpeed10m, i),
			ShortwaveRadiationWM2: valueAt(resp.Hourly.ShortwaveRadiation, i),
			PrecipitationMM:       valueAt(resp.Hourly.Precipitation, i),
			ProviderEtoMMH:        valueAt(resp.Hourly.Et0FaoEvapotranspiration, i),
		}
		if i < len(resp.Hourly.DewPoint2m) {
			td := resp.Hourly.DewPoint2m[i]
			o.DewPointC = &td
		}
		obs[i] = o
	}
	return obs, nil
}

func valueAt(xs []float64, i int) float64 {
	if i >= len(xs) {
		return math.NaN()
	}
	return xs[i]
}

func failAll(batch []citycatalog.City, kind FailureKind) []CityFailure {
	failures := make([]CityFailure, len(batch))
	for i, city := range batch {
		failures[i] = CityFailure{CityCode: city.Code, Kind: kind, Detail: string(kind)}
	}
	return failures
}
