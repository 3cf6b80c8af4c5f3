// Package snapshot defines the run's published output: the typed
// records written to the hot cache and the audit log, and read back
// out by the HTTP API. It has no dependencies on the packages that
// produce or consume it, so every other package can import it without
// risking an import cycle.
package snapshot

import (
	"strconv"
	"time"
)

// RunLabel names one of the four fixed daily schedule instants.
type RunLabel string

const (
	RunLabel00h RunLabel = "00h UTC"
	RunLabel06h RunLabel = "06h UTC"
	RunLabel12h RunLabel = "12h UTC"
	RunLabel18h RunLabel = "18h UTC"
)

// DailyForecast is one city's one-day rollup, as published to readers.
type DailyForecast struct {
	DateLocal          string  `json:"date"`
	TMaxC              float64 `json:"t_max_c"`
	TMinC              float64 `json:"t_min_c"`
	TMeanC             float64 `json:"t_mean_c"`
	RHMeanPct          float64 `json:"rh_mean_pct"`
	WSMeanMS           float64 `json:"ws_mean_ms"`
	RadiationSumMJM2   float64 `json:"radiation_sum_mj_m2"`
	PrecipitationSumMM float64 `json:"precipitation_sum_mm"`
	EtoModelMMDay      float64 `json:"eto_model_mm_day"`
	EtoProviderMMDay   float64 `json:"eto_provider_mm_day"`
}

// CityEntry is one city's static reference info plus its two-day forecast.
type CityEntry struct {
	CityName   string          `json:"city_name"`
	State      string          `json:"state"`
	Latitude   float64         `json:"latitude"`
	Longitude  float64         `json:"longitude"`
	ElevationM float64         `json:"elevation_m"`
	Days       []DailyForecast `json:"days"`
}

// ValidationMetrics is the global model-vs-provider agreement report.
type ValidationMetrics struct {
	R2        float64 `json:"r2"`
	RMSEMMDay float64 `json:"rmse_mm_day"`
	BiasMMDay float64 `json:"bias_mm_day"`
	MAEMMDay  float64 `json:"mae_mm_day"`
	NSamples  int     `json:"n_samples"`
	Quality   string  `json:"quality"`
}

// RunMetadata is the run-level summary published alongside the snapshot.
type RunMetadata struct {
	RunLabel         RunLabel  `json:"run_label"`
	UpdatedAtUTC     time.Time `json:"updated_at_utc"`
	NextUpdateUTC    time.Time `json:"next_update_utc"`
	NCitiesAttempted int       `json:"n_cities_attempted"`
	NCitiesSucceeded int       `json:"n_cities_succeeded"`
	SuccessRate      float64   `json:"success_rate"`
	Version          string    `json:"version"`
}

// Snapshot is a run's complete output: the entire prior snapshot is
// replaced atomically by a new one, never merged.
type Snapshot struct {
	Forecasts  map[string]CityEntry `json:"forecasts"`
	Validation ValidationMetrics    `json:"validation"`
	Metadata   RunMetadata          `json:"metadata"`
}

// RunLabelForHour maps a triggering UTC hour to its fixed label. Any
// hour outside {0, 6, 12, 18} is an off-schedule run (e.g. a manual
// trigger or a retry that crossed an hour boundary) and is labeled
// accordingly rather than forced into one of the four buckets.
func RunLabelForHour(hour int) RunLabel {
	switch hour {
	case 0:
		return RunLabel00h
	case 6:
		return RunLabel06h
	case 12:
		return RunLabel12h
	case 18:
		return RunLabel18h
	default:
		return RunLabel("Run off-schedule " + strconv.Itoa(hour) + "h UTC")
	}
}
