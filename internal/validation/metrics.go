// Package validation computes global agreement metrics between the
// kernel's computed ETo and the provider's own ETo, across every
// successfully processed (city, day) pair in a run.
package validation

import "math"

// Quality is the categorical agreement assessment attached to a run's
// metadata.
type Quality string

const (
	QualityExcellent     Quality = "EXCELLENT"
	QualityAcceptable    Quality = "ACCEPTABLE"
	QualityBelowExpected Quality = "BELOW_EXPECTED"
)

// Metrics is the global validation report for one run.
type Metrics struct {
	R2        float64
	RMSEMMDay float64
	BiasMMDay float64
	MAEMMDay  float64
	NSamples  int
	Quality   Quality
}

// Sample is one (model, provider) ETo pair for a single city-day.
type Sample struct {
	ModelMMDay    float64
	ProviderMMDay float64
}

// Compute runs the global R²/RMSE/Bias/MAE comparison across every
// finite (model, provider) pair and classifies the result.
//
// A run with zero samples (e.g. every city failed) reports NSamples=0,
// R2=NaN, and Quality=BELOW_EXPECTED: low quality never blocks
// persistence, it is purely diagnostic.
func Compute(samples []Sample) Metrics {
	finite := make([]Sample, 0, len(samples))
	for _, s := range samples {
		if isFinite(s.ModelMMDay) && isFinite(s.ProviderMMDay) {
			finite = append(finite, s)
		}
	}

	n := len(finite)
	if n == 0 {
		return Metrics{NSamples: 0, R2: math.NaN(), Quality: QualityBelowExpected}
	}

	var sumDiff, sumAbsDiff, sumSqDiff, sumProvider float64
	for _, s := range finite {
		diff := s.ModelMMDay - s.ProviderMMDay
		sumDiff += diff
		sumAbsDiff += math.Abs(diff)
		sumSqDiff += diff * diff
		sumProvider += s.ProviderMMDay
	}

	bias := sumDiff / float64(n)
	mae := sumAbsDiff / float64(n)
	rmse := math.Sqrt(sumSqDiff / float64(n))

	providerMean := sumProvider / float64(n)
	var ssRes, ssTot float64
	for _, s := range finite {
		diff := s.ModelMMDay - s.ProviderMMDay
		ssRes += diff * diff
		centered := s.ProviderMMDay - providerMean
		ssTot += centered * centered
	}

	var r2 float64
	if ssTot == 0 {
		r2 = math.NaN()
	} else {
		r2 = 1 - ssRes/ssTot
	}

	return Metrics{
		R2:        r2,
		RMSEMMDay: rmse,
		BiasMMDay: bias,
		MAEMMDay:  mae,
		NSamples:  n,
		Quality:   classify(r2, rmse),
	}
}

func classify(r2, rmse float64) Quality {
	switch {
	case !math.IsNaN(r2) && r2 >= 0.75 && rmse <= 1.2:
		return QualityExcellent
	case !math.IsNaN(r2) && r2 >= 0.65 && rmse <= 1.5:
		return QualityAcceptable
	default:
		return QualityBelowExpected
	}
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
