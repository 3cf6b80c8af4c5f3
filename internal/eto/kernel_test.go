package eto

import (
	"math"
	"sort"
	"testing"
	"time"
)

func syntheticHour(hour int, base time.Time, radiation float64) HourlyObs {
	ts := base.Add(time.Duration(hour) * time.Hour)
	isDay := radiation > 0
	temp := 22.0
	rh := 70.0
	ws := 2.5
	if isDay {
		temp = 30.0
		rh = 45.0
		ws = 3.5
	}
	return HourlyObs{
		TimestampUTC:          ts,
		TempC:                 temp,
		RelativeHumidityPct:   rh,
		WindSpeed10mMS:        ws,
		ShortwaveRadiationWM2: radiation,
		PrecipitationMM:       0,
		ProviderEtoMMH:        0,
	}
}

// syntheticCity48h builds a 48-hour array loosely shaped like a tropical
// diurnal cycle: radiation ramps up from 06h to 18h local and is zero at
// night.
func syntheticCity48h(base time.Time) []HourlyObs {
	obs := make([]HourlyObs, 0, 48)
	for h := 0; h < 48; h++ {
		localHour := h % 24
		radiation := 0.0
		if localHour >= 6 && localHour < 18 {
			// Simple bell-shaped radiation curve, peak at noon.
			x := float64(localHour-12) / 6.0
			radiation = 800 * math.Max(0, 1-x*x)
		}
		obs = append(obs, syntheticHour(h, base, radiation))
	}
	return obs
}

func TestCompute_InsufficientHours(t *testing.T) {
	base := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	obs := syntheticCity48h(base)[:10]

	_, err := Compute(obs, Station{LatitudeDeg: -7.53, LongitudeDeg: -48.0, ElevationM: 280})
	if err != ErrInsufficientHours {
		t.Fatalf("Compute() error = %v, want ErrInsufficientHours", err)
	}
}

func TestCompute_MissingColumns(t *testing.T) {
	base := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	obs := syntheticCity48h(base)
	obs[5].TempC = math.NaN()

	_, err := Compute(obs, Station{LatitudeDeg: -7.53, LongitudeDeg: -48.0, ElevationM: 280})
	if err != ErrMissingColumns {
		t.Fatalf("Compute() error = %v, want ErrMissingColumns", err)
	}
}

func TestCompute_NightHoursAreSmallAndNonNegative(t *testing.T) {
	base := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	obs := syntheticCity48h(base)

	result, err := Compute(obs, Station{LatitudeDeg: -7.53, LongitudeDeg: -48.0, ElevationM: 280})
	if err != nil {
		t.Fatalf("Compute() error = %v", err)
	}

	for i, o := range result.Hourly {
		if o.ShortwaveRadiationWM2 != 0 {
			continue
		}
		if o.EtoHourlyMMH < 0 {
			t.Fatalf("hour %d: night ETo = %f, want >= 0", i, o.EtoHourlyMMH)
		}
		if o.EtoHourlyMMH >= 0.1 {
			t.Fatalf("hour %d: night ETo = %f, want < 0.1 mm/h", i, o.EtoHourlyMMH)
		}
	}
}

func TestCompute_MissingDewPointFallsBackToTMinus5(t *testing.T) {
	base := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	obsNil := syntheticCity48h(base)

	obsExplicit := syntheticCity48h(base)
	for i := range obsExplicit {
		td := obsExplicit[i].TempC - 5
		obsExplicit[i].DewPointC = &td
	}

	station := Station{LatitudeDeg: -7.53, LongitudeDeg: -48.0, ElevationM: 280}

	resultNil, err := Compute(obsNil, station)
	if err != nil {
		t.Fatalf("Compute(nil dew point) error = %v", err)
	}
	resultExplicit, err := Compute(obsExplicit, station)
	if err != nil {
		t.Fatalf("Compute(explicit dew point) error = %v", err)
	}

	for i := range resultNil.Hourly {
		got := resultNil.Hourly[i].EtoHourlyMMH
		want := resultExplicit.Hourly[i].EtoHourlyMMH
		if math.Abs(got-want) > 1e-9 {
			t.Fatalf("hour %d: nil dew point ETo = %f, explicit T-5 ETo = %f", i, got, want)
		}
	}
}

func TestCompute_DailyAggregationHasTwoConsecutiveDays(t *testing.T) {
	base := time.Date(2026, 1, 15, 3, 0, 0, 0, time.UTC)
	obs := syntheticCity48h(base)

	result, err := Compute(obs, Station{LatitudeDeg: -7.53, LongitudeDeg: -48.0, ElevationM: 280})
	if err != nil {
		t.Fatalf("Compute() error = %v", err)
	}

	if len(result.Daily) < 2 {
		t.Fatalf("Daily has %d entries, want at least 2", len(result.Daily))
	}

	dates := make([]string, 0, len(result.Daily))
	for d := range result.Daily {
		dates = append(dates, d)
	}
	sort.Strings(dates)
	for i := 1; i < len(dates); i++ {
		prev, err := time.Parse("2006-01-02", dates[i-1])
		if err != nil {
			t.Fatalf("unparsable date %q: %v", dates[i-1], err)
		}
		cur, err := time.Parse("2006-01-02", dates[i])
		if err != nil {
			t.Fatalf("unparsable date %q: %v", dates[i], err)
		}
		if cur.Sub(prev) != 24*time.Hour {
			t.Fatalf("dates %s and %s are not consecutive", dates[i-1], dates[i])
		}
	}

	for _, d := range result.Daily {
		if d.EtoDayMM < 0 {
			t.Fatalf("date %s: EtoDayMM = %f, want >= 0", d.DateLocal, d.EtoDayMM)
		}
	}
}

// referencePerHourLoop is a deliberately non-vectorized reimplementation
// of the same FAO-56 hourly Penman-Monteith equation, used as an
// independent oracle for a vectorization-equivalence check. It
// recomputes every station-level scalar inside the loop instead of
// hoisting it, to ensure the two implementations are structurally
// distinct rather than the same code path twice.
func referencePerHourLoop(obs []HourlyObs, station Station) []float64 {
	out := make([]float64, len(obs))
	for i, o := range obs {
		pressure := 101.3 * math.Pow((293-0.0065*station.ElevationM)/293, 5.26)
		gamma := 0.000665 * pressure

		var u2 float64
		if o.WindSpeed10mMS <= 0 {
			u2 = 0.5
		} else {
			u2 = o.WindSpeed10mMS * 4.87 / math.Log(67.8*10-5.42)
		}

		es := 0.6108 * math.Exp(17.27*o.TempC/(o.TempC+237.3))
		td := o.TempC - 5
		if o.DewPointC != nil {
			td = *o.DewPointC
		}
		ea := 0.6108 * math.Exp(17.27*td/(td+237.3))
		vpd := es - ea
		if vpd < 0 {
			vpd = 0
		}
		delta := 4098 * es / math.Pow(o.TempC+237.3, 2)

		isNight := o.ShortwaveRadiationWM2 == 0
		rs := o.ShortwaveRadiationWM2 * 3600 / 1e6
		ra := extraterrestrialRadiation(o.TimestampUTC, station.LatitudeDeg, station.LongitudeDeg)
		rso := (0.75 + 2e-5*station.ElevationM) * ra

		rns := (1 - albedo) * rs
		ratio := 1.0
		if rso > 0 {
			ratio = rs / rso
			if ratio > 1 {
				ratio = 1
			}
		}
		rnl := stefanBoltzman * math.Pow(o.TempC+273.16, 4) * (0.34 - 0.14*math.Sqrt(ea)) * (1.35*ratio - 0.35)
		netRad := rns - rnl

		g := 0.0
		if isNight {
			g = 0.5 * netRad
		}
		rnMinusG := netRad - g

		cn, cd := dayCn, dayCd
		if isNight {
			cn, cd = nightCn, nightCd
		}

		denom := delta + gamma*(1+cd*u2)
		eto := 0.0
		if denom > 0 {
			eto = (0.408*delta*rnMinusG + gamma*(cn/(o.TempC+273))*u2*vpd) / denom
		}
		if eto < 0 || math.IsNaN(eto) || math.IsInf(eto, 0) {
			eto = 0
		}
		out[i] = eto
	}
	return out
}

func TestCompute_MatchesReferencePerHourLoop(t *testing.T) {
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	obs := syntheticCity48h(base)
	station := Station{LatitudeDeg: -7.53, LongitudeDeg: -48.0, ElevationM: 280}

	result, err := Compute(obs, station)
	if err != nil {
		t.Fatalf("Compute() error = %v", err)
	}
	reference := referencePerHourLoop(obs, station)

	var dailySumVectorized, dailySumReference float64
	for i, o := range result.Hourly {
		diff := math.Abs(o.EtoHourlyMMH - reference[i])
		if diff > 0.01 {
			t.Fatalf("hour %d: vectorized = %f, reference = %f, diff = %f exceeds 0.01", i, o.EtoHourlyMMH, reference[i], diff)
		}
		dailySumVectorized += o.EtoHourlyMMH
		dailySumReference += reference[i]
	}
	if math.Abs(dailySumVectorized-dailySumReference) > 0.05 {
		t.Fatalf("daily sums differ by more than 0.05: vectorized=%f reference=%f", dailySumVectorized, dailySumReference)
	}
}
