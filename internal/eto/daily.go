package eto

import (
	"sort"
	"time"
)

// saoPauloLocation is the fixed civil-time zone used for daily grouping
// across all 337 MATOPIBA cities: the region shares one civil time, so
// per-city timezone lookup is not needed.
var saoPauloLocation = func() *time.Location {
	loc, err := time.LoadLocation("America/Sao_Paulo")
	if err != nil {
		// -03:00 is America/Sao_Paulo's standard offset; used only if the
		// runtime has no timezone database available.
		return time.FixedZone("America/Sao_Paulo", -3*3600)
	}
	return loc
}()

// aggregateDaily groups hourly observations (already augmented with
// EtoHourlyMMH) by their America/Sao_Paulo calendar date.
func aggregateDaily(hourly []HourlyObs) map[string]DailyAggregate {
	type bucket struct {
		temps        []float64
		rhs          []float64
		winds        []float64
		radiationSum float64
		precipSum    float64
		etoSum       float64
		providerSum  float64
	}

	buckets := make(map[string]*bucket)
	order := make([]string, 0, 2)

	for _, o := range hourly {
		dateKey := o.TimestampUTC.In(saoPauloLocation).Format("2006-01-02")
		b, ok := buckets[dateKey]
		if !ok {
			b = &bucket{}
			buckets[dateKey] = b
			order = append(order, dateKey)
		}

		b.temps = append(b.temps, o.TempC)
		b.rhs = append(b.rhs, o.RelativeHumidityPct)
		b.winds = append(b.winds, o.WindSpeed10mMS)
		b.radiationSum += o.ShortwaveRadiationWM2
		b.precipSum += o.PrecipitationMM
		b.etoSum += o.EtoHourlyMMH
		b.providerSum += o.ProviderEtoMMH
	}

	sort.Strings(order)

	result := make(map[string]DailyAggregate, len(buckets))
	for _, dateKey := range order {
		b := buckets[dateKey]
		result[dateKey] = DailyAggregate{
			DateLocal:          dateKey,
			TMaxC:              maxOf(b.temps),
			TMinC:              minOf(b.temps),
			TMeanC:             meanOf(b.temps),
			RHMeanPct:          meanOf(b.rhs),
			WSMeanMS:           meanOf(b.winds),
			RadiationSumMJM2:   b.radiationSum * 3600 / 1e6,
			PrecipitationSumMM: b.precipSum,
			EtoDayMM:           b.etoSum,
			EtoProviderDayMM:   b.providerSum,
		}
	}
	return result
}

func maxOf(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	m := xs[0]
	for _, x := range xs[1:] {
		if x > m {
			m = x
		}
	}
	return m
}

func minOf(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	m := xs[0]
	for _, x := range xs[1:] {
		if x < m {
			m = x
		}
	}
	return m
}

func meanOf(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}
