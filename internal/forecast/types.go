// Package forecast fetches hourly weather forecasts for the MATOPIBA city
// roster from the external provider, in batches of up to 50 coordinates per
// request, with retry, backoff, and circuit-breaking per call.
package forecast

import (
	"errors"
	"time"
)

// FailureKind classifies why a city's forecast could not be retrieved, per
// the taxonomy every per-city report must bubble up.
type FailureKind string

const (
	FailureTransientNetwork  FailureKind = "TransientNetwork"
	FailureUpstreamRateLimit FailureKind = "UpstreamRateLimited"
	FailureUpstreamBadInput  FailureKind = "UpstreamBadRequest"
	FailureUpstreamMalformed FailureKind = "UpstreamMalformed"
	FailureTimeout           FailureKind = "Timeout"
	FailureInsufficientHours FailureKind = "InsufficientHours"
)

// CityFailure records one city that did not make it into the result map.
type CityFailure struct {
	CityCode string
	Kind     FailureKind
	Detail   string
}

// MinHealthySuccessRate is the fraction of cities below which a run is
// flagged in logs as degraded, even though the pipeline still proceeds
// (availability-first policy — see internal/orchestrator).
const MinHealthySuccessRate = 0.90

// HourlyVariables is the exact set of Open-Meteo hourly variables this
// client requests: the five required by the ETo kernel, plus the
// provider's own ETo for validation, plus a few extra columns the
// original MATOPIBA client carried for future use (cloud cover, VPD,
// precipitation probability, surface pressure) that this pipeline passes
// through but does not currently consume.
var HourlyVariables = []string{
	"temperature_2m",
	"relative_humidity_2m",
	"dew_point_2m",
	"wind_speed_10m",
	"surface_pressure",
	"shortwave_radiation",
	"cloud_cover",
	"vapour_pressure_deficit",
	"precipitation",
	"precipitation_probability",
	"et0_fao_evapotranspiration",
}

// HourlyObs mirrors internal/eto's HourlyObs plus the raw fields the
// kernel does not need but the audit/validation path still wants
// (ProviderEtoMMH is consumed by Phase 3 validation).
type HourlyObs struct {
	TimestampUTC          time.Time
	TempC                 float64
	RelativeHumidityPct   float64
	WindSpeed10mMS        float64
	ShortwaveRadiationWM2 float64
	PrecipitationMM       float64
	DewPointC             *float64
	ProviderEtoMMH        float64
}

// CityForecast is one city's full hourly series as returned by the
// provider, before the ETo kernel runs.
type CityForecast struct {
	CityCode string
	Hourly   []HourlyObs
}

var (
	ErrMissingCoordinates = errors.New("forecast: batch request missing latitude/longitude")
	ErrEmptyResponse      = errors.New("forecast: provider returned no hourly series")
)
