package eto

import "time"

// HourlyObs is one hourly weather observation for a single city.
// DewPointC is a pointer because the field is optional: a nil value
// means the provider did not report dew point for that hour, and the
// kernel substitutes TempC-5 in that case.
type HourlyObs struct {
	TimestampUTC          time.Time
	TempC                 float64
	RelativeHumidityPct   float64
	WindSpeed10mMS        float64
	ShortwaveRadiationWM2 float64
	PrecipitationMM       float64
	DewPointC             *float64
	ProviderEtoMMH        float64

	// EtoHourlyMMH is populated by Compute; zero until then.
	EtoHourlyMMH float64
}

// DailyAggregate is the per-local-date rollup of one city's hourly series.
type DailyAggregate struct {
	DateLocal            string // YYYY-MM-DD, America/Sao_Paulo civil date
	TMaxC                float64
	TMinC                float64
	TMeanC               float64
	RHMeanPct            float64
	WSMeanMS             float64
	RadiationSumMJM2     float64
	PrecipitationSumMM   float64
	EtoDayMM             float64
	EtoProviderDayMM     float64
}

// Result is the kernel's output contract: the input array augmented with
// hourly ETo, plus the daily aggregation keyed by local calendar date.
type Result struct {
	Hourly   []HourlyObs
	Daily    map[string]DailyAggregate
	Warnings []string
}

// Station carries the station-level inputs the kernel needs beyond the
// hourly array itself. Longitude is required because extraterrestrial
// radiation (step 9) depends on solar time, which is derived from the
// station's meridian.
type Station struct {
	LatitudeDeg  float64
	LongitudeDeg float64
	ElevationM   float64
}

const (
	// nightCn/nightCd and dayCn/dayCd are the FAO-56/ASCE-EWRI
	// standardized hourly Penman-Monteith coefficients. The night values
	// follow the ASCE-EWRI (2005) reference (Cd=0.96 at night, not the
	// 0.24 sometimes seen quoted for daytime use).
	dayCn   = 37.0
	dayCd   = 0.24
	nightCn = 6.0
	nightCd = 0.96

	albedo         = 0.23
	stefanBoltzman = 2.043e-10 // MJ K^-4 m^-2 h^-1, hourly form
)
