// Package eto implements the FAO-56 Penman-Monteith hourly reference
// evapotranspiration kernel: vectorized array operations over the hour
// axis, with the extraterrestrial radiation step (the only
// datetime-dependent one) computed hour by hour.
package eto

import "math"

// Compute runs the full hourly ETo calculation and daily aggregation for
// one city's hourly array.
func Compute(obs []HourlyObs, station Station) (Result, error) {
	if len(obs) < 24 {
		return Result{}, ErrInsufficientHours
	}

	n := len(obs)
	var warnings []string

	// Validate required columns up front. temp, wind, and radiation have
	// no fallback.
	finite := func(x float64) bool { return !math.IsNaN(x) && !math.IsInf(x, 0) }
	for i := range obs {
		if !finite(obs[i].TempC) || !finite(obs[i].WindSpeed10mMS) || !finite(obs[i].ShortwaveRadiationWM2) {
			return Result{}, ErrMissingColumns
		}
	}

	out := make([]HourlyObs, n)
	copy(out, obs)

	// Step 1: wind adjustment 10m -> 2m.
	u2 := make([]float64, n)
	for i, o := range out {
		if o.WindSpeed10mMS <= 0 {
			u2[i] = 0.5
		} else {
			u2[i] = o.WindSpeed10mMS * 4.87 / math.Log(67.8*10-5.42)
		}
	}

	// Steps 2-3: atmospheric pressure and psychrometric constant are
	// station-level scalars, constant across the whole hour axis.
	pressure := 101.3 * math.Pow((293-0.0065*station.ElevationM)/293, 5.26)
	gamma := 0.000665 * pressure

	// Step 4: saturation vapor pressure.
	es := make([]float64, n)
	for i, o := range out {
		es[i] = saturationVaporPressure(o.TempC)
	}

	// Step 5: actual vapor pressure from dew point (or T-5 fallback).
	ea := make([]float64, n)
	for i, o := range out {
		td := o.TempC - 5
		if o.DewPointC != nil {
			td = *o.DewPointC
		}
		ea[i] = saturationVaporPressure(td)
	}

	// Step 6: vapor pressure deficit.
	vpd := make([]float64, n)
	for i := range out {
		d := es[i] - ea[i]
		if d < 0 {
			d = 0
		}
		vpd[i] = d
	}

	// Step 7: slope of the saturation vapor pressure curve.
	delta := make([]float64, n)
	for i, o := range out {
		delta[i] = 4098 * es[i] / math.Pow(o.TempC+237.3, 2)
	}

	// Step 8: net radiation, with day/night soil heat flux.
	rnMinusG := make([]float64, n)
	isNight := make([]bool, n)
	for i, o := range out {
		isNight[i] = o.ShortwaveRadiationWM2 == 0

		rs := o.ShortwaveRadiationWM2 * 3600 / 1e6 // W/m^2 -> MJ/m^2/h
		ra := extraterrestrialRadiation(o.TimestampUTC, station.LatitudeDeg, station.LongitudeDeg) // step 9
		rso := (0.75 + 2e-5*station.ElevationM) * ra

		rns := (1 - albedo) * rs

		tk4mean := (math.Pow(o.TempC+273.16, 4)) // hourly Rnl uses the single hourly air temp, not max/min
		var rsRsoRatio float64
		if rso > 0 {
			rsRsoRatio = rs / rso
		} else {
			rsRsoRatio = 1
		}
		if rsRsoRatio > 1 {
			rsRsoRatio = 1
		}
		rnl := stefanBoltzman * tk4mean * (0.34 - 0.14*math.Sqrt(ea[i])) * (1.35*rsRsoRatio - 0.35)

		netRad := rns - rnl

		var g float64
		if isNight[i] {
			g = 0.5 * netRad
		} else {
			g = 0
		}

		rnMinusG[i] = netRad - g
	}

	// Steps 10-11: day/night coefficients and hourly Penman-Monteith.
	for i := range out {
		cn, cd := dayCn, dayCd
		if isNight[i] {
			cn, cd = nightCn, nightCd
		}

		t := out[i].TempC
		denom := delta[i] + gamma*(1+cd*u2[i])

		var etoHour float64
		if denom > 0 {
			numer := 0.408*delta[i]*rnMinusG[i] + gamma*(cn/(t+273))*u2[i]*vpd[i]
			etoHour = numer / denom
		}

		if math.IsNaN(etoHour) || math.IsInf(etoHour, 0) {
			warnings = append(warnings, "non-finite hourly ETo substituted with 0")
			etoHour = 0
		}
		if etoHour < 0 {
			etoHour = 0
		}

		out[i].EtoHourlyMMH = etoHour
	}

	daily := aggregateDaily(out)

	return Result{Hourly: out, Daily: daily, Warnings: warnings}, nil
}

func saturationVaporPressure(tempC float64) float64 {
	return 0.6108 * math.Exp(17.27*tempC/(tempC+237.3))
}
