package validation

import (
	"math"
	"testing"
)

func TestCompute_ZeroSamples(t *testing.T) {
	m := Compute(nil)
	if m.NSamples != 0 {
		t.Fatalf("NSamples = %d, want 0", m.NSamples)
	}
	if !math.IsNaN(m.R2) {
		t.Fatalf("R2 = %f, want NaN", m.R2)
	}
	if m.Quality != QualityBelowExpected {
		t.Fatalf("Quality = %s, want BELOW_EXPECTED", m.Quality)
	}
}

func TestCompute_PerfectAgreementIsExcellent(t *testing.T) {
	samples := []Sample{
		{ModelMMDay: 4.0, ProviderMMDay: 4.0},
		{ModelMMDay: 4.5, ProviderMMDay: 4.5},
		{ModelMMDay: 5.1, ProviderMMDay: 5.1},
		{ModelMMDay: 3.8, ProviderMMDay: 3.8},
	}
	m := Compute(samples)
	if m.NSamples != 4 {
		t.Fatalf("NSamples = %d, want 4", m.NSamples)
	}
	if m.Quality != QualityExcellent {
		t.Fatalf("Quality = %s, want EXCELLENT", m.Quality)
	}
	if m.RMSEMMDay != 0 || m.BiasMMDay != 0 || m.MAEMMDay != 0 {
		t.Fatalf("expected zero error metrics, got rmse=%f bias=%f mae=%f", m.RMSEMMDay, m.BiasMMDay, m.MAEMMDay)
	}
}

func TestCompute_LargeBiasIsBelowExpected(t *testing.T) {
	samples := []Sample{
		{ModelMMDay: 7.0, ProviderMMDay: 4.0},
		{ModelMMDay: 7.5, ProviderMMDay: 4.5},
		{ModelMMDay: 8.1, ProviderMMDay: 5.1},
		{ModelMMDay: 6.8, ProviderMMDay: 3.8},
	}
	m := Compute(samples)
	if m.Quality != QualityBelowExpected {
		t.Fatalf("Quality = %s, want BELOW_EXPECTED", m.Quality)
	}
	if m.BiasMMDay <= 0 {
		t.Fatalf("BiasMMDay = %f, want positive (model overestimates)", m.BiasMMDay)
	}
}

func TestCompute_NonFiniteSamplesAreExcluded(t *testing.T) {
	samples := []Sample{
		{ModelMMDay: 4.0, ProviderMMDay: 4.0},
		{ModelMMDay: math.NaN(), ProviderMMDay: 4.5},
		{ModelMMDay: 5.0, ProviderMMDay: math.Inf(1)},
	}
	m := Compute(samples)
	if m.NSamples != 1 {
		t.Fatalf("NSamples = %d, want 1", m.NSamples)
	}
}
