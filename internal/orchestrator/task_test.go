package orchestrator

import (
	"errors"
	"testing"
	"time"

	"github.com/evaonline/matopiba-pipeline/internal/eto"
	"github.com/evaonline/matopiba-pipeline/internal/forecast"
)

func TestToKernelObs_MapsAllFields(t *testing.T) {
	dew := 12.5
	in := []forecast.HourlyObs{
		{
			TimestampUTC:          time.Date(2026, 8, 6, 3, 0, 0, 0, time.UTC),
			TempC:                 28.4,
			RelativeHumidityPct:   55,
			WindSpeed10mMS:        3.2,
			ShortwaveRadiationWM2: 410,
			PrecipitationMM:       0.2,
			DewPointC:             &dew,
			ProviderEtoMMH:        0.31,
		},
	}

	out := toKernelObs(in)
	if len(out) != 1 {
		t.Fatalf("len = %d, want 1", len(out))
	}
	if out[0].TempC != in[0].TempC || out[0].WindSpeed10mMS != in[0].WindSpeed10mMS {
		t.Fatalf("field mismatch: %+v vs %+v", out[0], in[0])
	}
	if out[0].DewPointC == nil || *out[0].DewPointC != dew {
		t.Fatalf("DewPointC not carried through: %+v", out[0])
	}
}

func TestTwoConsecutiveDays_RejectsWrongCount(t *testing.T) {
	result := eto.Result{
		Daily: map[string]eto.DailyAggregate{
			"2026-08-06": {DateLocal: "2026-08-06"},
		},
	}
	if _, err := twoConsecutiveDays(result); err == nil {
		t.Fatalf("expected error for a single-day result")
	}
}

func TestTwoConsecutiveDays_RejectsNonConsecutiveDates(t *testing.T) {
	result := eto.Result{
		Daily: map[string]eto.DailyAggregate{
			"2026-08-06": {DateLocal: "2026-08-06"},
			"2026-08-08": {DateLocal: "2026-08-08"},
		},
	}
	if _, err := twoConsecutiveDays(result); err == nil {
		t.Fatalf("expected error for non-consecutive dates")
	}
}

func TestTwoConsecutiveDays_AcceptsConsecutivePair(t *testing.T) {
	result := eto.Result{
		Daily: map[string]eto.DailyAggregate{
			"2026-08-06": {DateLocal: "2026-08-06", EtoDayMM: 5.1, EtoProviderDayMM: 4.9},
			"2026-08-07": {DateLocal: "2026-08-07", EtoDayMM: 5.3, EtoProviderDayMM: 5.0},
		},
	}
	days, err := twoConsecutiveDays(result)
	if err != nil {
		t.Fatalf("twoConsecutiveDays: %v", err)
	}
	if len(days) != 2 {
		t.Fatalf("len(days) = %d, want 2", len(days))
	}
	if days[0].DateLocal != "2026-08-06" || days[1].DateLocal != "2026-08-07" {
		t.Fatalf("days not in date order: %+v", days)
	}
}

func TestIsRetryable(t *testing.T) {
	if !isRetryable(ErrCompleteOutage) {
		t.Fatalf("ErrCompleteOutage should be retryable")
	}
	if !isRetryable(&ErrHotCacheWrite{Err: errors.New("boom")}) {
		t.Fatalf("ErrHotCacheWrite should be retryable")
	}
	if isRetryable(ErrRunInProgress) {
		t.Fatalf("ErrRunInProgress should not be retryable")
	}
	if isRetryable(errors.New("some other failure")) {
		t.Fatalf("an arbitrary error should not be retryable")
	}
}
