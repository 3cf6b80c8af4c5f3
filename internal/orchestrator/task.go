// Package orchestrator runs the fixed five-phase pipeline — fetch,
// compute, validate, persist-hot, persist-audit — once per scheduled
// trigger. Task.Run fans out to one forecast provider across 337 cities
// and hands the result to two persistence gateways in a fixed order
// with different failure tolerance at each step.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"

	"github.com/evaonline/matopiba-pipeline/internal/auditlog"
	"github.com/evaonline/matopiba-pipeline/internal/citycatalog"
	"github.com/evaonline/matopiba-pipeline/internal/eto"
	"github.com/evaonline/matopiba-pipeline/internal/forecast"
	"github.com/evaonline/matopiba-pipeline/internal/hotcache"
	"github.com/evaonline/matopiba-pipeline/internal/snapshot"
	"github.com/evaonline/matopiba-pipeline/internal/validation"
)

// Phase names a stage of the pipeline for failure reporting.
type Phase string

const (
	PhaseFetch   Phase = "fetch"
	PhaseCompute Phase = "compute"
)

// CityFailure records one city dropped from the run, at whichever
// phase dropped it.
type CityFailure struct {
	CityCode string
	Phase    Phase
	Detail   string
}

// ErrCompleteOutage is returned when Phase 1 (Fetch) comes back with
// zero successful cities: a total upstream outage, the one Phase 1
// condition that triggers a task-level retry. A partial Phase 1
// success — even a bad one — proceeds through the rest of the
// pipeline without retry.
var ErrCompleteOutage = fmt.Errorf("orchestrator: forecast fetch returned zero successful cities")

// ErrRunInProgress is returned when the distributed run lock is
// already held by another invocation. This is not a failure worth
// retrying: the other run will publish a snapshot itself.
var ErrRunInProgress = fmt.Errorf("orchestrator: a run is already in progress")

// ErrHotCacheWrite wraps the persist-hot failure that aborts a run:
// without a published snapshot, readers cannot be served, so this is
// the other condition (besides ErrCompleteOutage) that triggers a
// task-level retry.
type ErrHotCacheWrite struct {
	Err error
}

func (e *ErrHotCacheWrite) Error() string {
	return fmt.Sprintf("orchestrator: persist-hot failed: %v", e.Err)
}

func (e *ErrHotCacheWrite) Unwrap() error { return e.Err }

// Config bundles every dependency Task.Run needs.
type Config struct {
	Catalog  *citycatalog.Catalog
	Forecast *forecast.Client
	Hotcache *hotcache.Gateway
	Audit    *auditlog.Store
	Version  string

	// HotCacheRetryDelay is how long to wait before the single retry of
	// a failed persist-hot write. Defaults to 500ms.
	HotCacheRetryDelay time.Duration

	// RunDeadline bounds a single Run attempt end to end. RunWithRetry
	// gives every attempt its own fresh deadline of this length, rather
	// than bounding the whole retry sequence with one deadline — three
	// attempts plus two taskRetryDelay waits between them already
	// exceed the deadline of a single attempt. Defaults to 10 minutes.
	RunDeadline time.Duration
}

// Task runs the pipeline for one scheduler trigger.
type Task struct {
	cfg Config
}

// NewTask builds a Task from a fully-populated Config.
func NewTask(cfg Config) *Task {
	if cfg.HotCacheRetryDelay <= 0 {
		cfg.HotCacheRetryDelay = 500 * time.Millisecond
	}
	if cfg.RunDeadline <= 0 {
		cfg.RunDeadline = 10 * time.Minute
	}
	return &Task{cfg: cfg}
}

// Report is what Run hands back for logging/metrics at the call site.
type Report struct {
	Snapshot     snapshot.Snapshot
	CityFailures []CityFailure
	ForecastRaw  []forecast.CityFailure
}

// Run executes the five-phase pipeline for the given triggering UTC
// hour. The distributed run lock is acquired first and released on
// every return path; if another run already holds it, Run returns
// ErrRunInProgress immediately without touching any phase.
func (t *Task) Run(ctx context.Context, triggerHourUTC int) (Report, error) {
	traceID := uuid.New().String()
	owner := lockOwner()
	acquired, err := t.cfg.Hotcache.AcquireRunLock(ctx, owner)
	if err != nil {
		return Report{}, fmt.Errorf("orchestrator: acquire run lock: %w", err)
	}
	if !acquired {
		return Report{}, ErrRunInProgress
	}
	defer func() {
		if err := t.cfg.Hotcache.ReleaseRunLock(context.Background()); err != nil {
			log.Printf("WARN: orchestrator: [%s] release run lock: %v", traceID, err)
		}
	}()

	now := time.Now().UTC()
	cities := t.cfg.Catalog.All()
	log.Printf("orchestrator: [%s] starting run for hour %02dh UTC, %d cities", traceID, triggerHourUTC, len(cities))

	// Phase 1 — Fetch.
	forecasts, fetchFailures, err := t.cfg.Forecast.FetchAll(ctx, cities)
	if err != nil {
		return Report{}, fmt.Errorf("orchestrator: fetch: %w", err)
	}
	if len(forecasts) == 0 && len(cities) > 0 {
		return Report{}, ErrCompleteOutage
	}

	var cityFailures []CityFailure
	for _, f := range fetchFailures {
		cityFailures = append(cityFailures, CityFailure{CityCode: f.CityCode, Phase: PhaseFetch, Detail: fmt.Sprintf("%s: %s", f.Kind, f.Detail)})
	}

	// Phase 2 — Compute.
	entries := make(map[string]snapshot.CityEntry, len(forecasts))
	var samples []validation.Sample

	for code, cf := range forecasts {
		city, ok := t.cfg.Catalog.Lookup(code)
		if !ok {
			cityFailures = append(cityFailures, CityFailure{CityCode: code, Phase: PhaseCompute, Detail: "city not found in catalog"})
			continue
		}

		obs := toKernelObs(cf.Hourly)
		station := eto.Station{
			LatitudeDeg:  city.Latitude,
			LongitudeDeg: city.Longitude,
			ElevationM:   city.ElevationM,
		}

		result, err := eto.Compute(obs, station)
		if err != nil {
			cityFailures = append(cityFailures, CityFailure{CityCode: code, Phase: PhaseCompute, Detail: err.Error()})
			continue
		}

		days, err := twoConsecutiveDays(result)
		if err != nil {
			cityFailures = append(cityFailures, CityFailure{CityCode: code, Phase: PhaseCompute, Detail: err.Error()})
			continue
		}

		entries[code] = snapshot.CityEntry{
			CityName:   city.Name,
			State:      city.State,
			Latitude:   city.Latitude,
			Longitude:  city.Longitude,
			ElevationM: city.ElevationM,
			Days:       days,
		}

		for _, d := range days {
			samples = append(samples, validation.Sample{ModelMMDay: d.EtoModelMMDay, ProviderMMDay: d.EtoProviderMMDay})
		}
	}

	// Phase 3 — Validate. Diagnostic only; never halts the pipeline.
	metrics := validation.Compute(samples)

	// Run labeling and metadata.
	attempted := len(cities)
	succeeded := len(entries)
	var successRate float64
	if attempted > 0 {
		successRate = float64(succeeded) / float64(attempted)
	}

	meta := snapshot.RunMetadata{
		RunLabel:         snapshot.RunLabelForHour(triggerHourUTC),
		UpdatedAtUTC:     now,
		NextUpdateUTC:    now.Add(6 * time.Hour),
		NCitiesAttempted: attempted,
		NCitiesSucceeded: succeeded,
		SuccessRate:      successRate,
		Version:          t.cfg.Version,
	}
	if successRate < forecast.MinHealthySuccessRate {
		log.Printf("WARN: orchestrator: [%s] run %s succeeded for only %d/%d cities (%.1f%%)", traceID, meta.RunLabel, succeeded, attempted, successRate*100)
	}

	snap := snapshot.Snapshot{
		Forecasts: entries,
		Validation: snapshot.ValidationMetrics{
			R2:        metrics.R2,
			RMSEMMDay: metrics.RMSEMMDay,
			BiasMMDay: metrics.BiasMMDay,
			MAEMMDay:  metrics.MAEMMDay,
			NSamples:  metrics.NSamples,
			Quality:   string(metrics.Quality),
		},
		Metadata: meta,
	}

	// Phase 4 — Persist hot. The only phase whose failure aborts the run.
	// A quick Status probe decides whether the best-effort legacy-key
	// cleanup is worth the extra round trip right now.
	skipCleanup := t.cfg.Hotcache.Status(ctx) != nil
	if skipCleanup {
		log.Printf("WARN: orchestrator: [%s] hot cache status check failed, publishing without legacy-key cleanup", traceID)
	}
	if err := t.persistHotWithRetry(ctx, snap, skipCleanup); err != nil {
		return Report{Snapshot: snap, CityFailures: cityFailures, ForecastRaw: fetchFailures}, &ErrHotCacheWrite{Err: err}
	}

	// Phase 5 — Persist audit. Failures are logged and swallowed inside
	// RecordRun itself; it never aborts the run.
	if err := t.cfg.Audit.RecordRun(ctx, meta, snap.Validation); err != nil {
		log.Printf("WARN: orchestrator: [%s] audit record for %s: %v", traceID, meta.RunLabel, err)
	}

	log.Printf("orchestrator: [%s] run %s complete: %d/%d cities succeeded", traceID, meta.RunLabel, succeeded, attempted)
	return Report{Snapshot: snap, CityFailures: cityFailures, ForecastRaw: fetchFailures}, nil
}

// maxTaskRetries and taskRetryDelay bound the task-level retry
// wrapper: up to 3 attempts total, 5 minutes apart. Only the two error
// conditions that mean "readers will be left with nothing new" retry
// — a complete upstream outage (Phase 1) or a failed hot-cache publish
// (Phase 4, after its own internal single retry already failed). Every
// other failure mode (partial fetch, per-city kernel errors, audit log
// write failures) is absorbed into the report and the run is
// considered complete.
const (
	maxTaskRetries = 3
	taskRetryDelay = 5 * time.Minute
)

// RunWithRetry wraps Run with the task-level retry policy: up to
// maxTaskRetries attempts, taskRetryDelay apart, retrying only on
// ErrCompleteOutage or ErrHotCacheWrite. Each attempt gets its own
// fresh context.WithTimeout(ctx, t.cfg.RunDeadline) — the deadline
// bounds a single Run, not the whole retry sequence, so a retried
// attempt is never starved by time already spent on a prior one.
func (t *Task) RunWithRetry(ctx context.Context, triggerHourUTC int) (Report, error) {
	var lastErr error
	for attempt := 1; attempt <= maxTaskRetries; attempt++ {
		report, err := t.runOneAttempt(ctx, triggerHourUTC)
		if err == nil {
			return report, nil
		}
		lastErr = err

		if errors.Is(err, ErrRunInProgress) {
			return report, err
		}
		if !isRetryable(err) {
			return report, err
		}
		if attempt == maxTaskRetries {
			break
		}

		log.Printf("WARN: orchestrator: attempt %d/%d failed: %v; retrying in %s", attempt, maxTaskRetries, err, taskRetryDelay)
		select {
		case <-time.After(taskRetryDelay):
		case <-ctx.Done():
			return report, ctx.Err()
		}
	}
	return Report{}, lastErr
}

// runOneAttempt runs Run under its own fresh RunDeadline, independent
// of how much time prior attempts (and the delay between them) have
// already spent against the parent context.
func (t *Task) runOneAttempt(ctx context.Context, triggerHourUTC int) (Report, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, t.cfg.RunDeadline)
	defer cancel()
	return t.Run(attemptCtx, triggerHourUTC)
}

func isRetryable(err error) bool {
	if errors.Is(err, ErrCompleteOutage) {
		return true
	}
	var hotCacheErr *ErrHotCacheWrite
	return errors.As(err, &hotCacheErr)
}

func (t *Task) persistHotWithRetry(ctx context.Context, snap snapshot.Snapshot, skipCleanup bool) error {
	put := t.cfg.Hotcache.PutSnapshot
	if skipCleanup {
		put = t.cfg.Hotcache.PutSnapshotOnly
	}

	firstErr := put(ctx, snap)
	if firstErr == nil {
		return nil
	}

	select {
	case <-time.After(t.cfg.HotCacheRetryDelay):
	case <-ctx.Done():
		return ctx.Err()
	}

	secondErr := put(ctx, snap)
	if secondErr == nil {
		return nil
	}

	var merr *multierror.Error
	merr = multierror.Append(merr, firstErr, secondErr)
	return merr
}

func toKernelObs(hourly []forecast.HourlyObs) []eto.HourlyObs {
	obs := make([]eto.HourlyObs, len(hourly))
	for i, h := range hourly {
		obs[i] = eto.HourlyObs{
			TimestampUTC:          h.TimestampUTC,
			TempC:                 h.TempC,
			RelativeHumidityPct:   h.RelativeHumidityPct,
			WindSpeed10mMS:        h.WindSpeed10mMS,
			ShortwaveRadiationWM2: h.ShortwaveRadiationWM2,
			PrecipitationMM:       h.PrecipitationMM,
			DewPointC:             h.DewPointC,
			ProviderEtoMMH:        h.ProviderEtoMMH,
		}
	}
	return obs
}

// twoConsecutiveDays enforces the data model's invariant that every
// published city has exactly two DailyForecast entries with
// consecutive dates. A kernel result with any other day count is
// dropped from the run rather than silently truncated or padded.
func twoConsecutiveDays(result eto.Result) ([]snapshot.DailyForecast, error) {
	keys := make([]string, 0, len(result.Daily))
	for k := range result.Daily {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	if len(keys) != 2 {
		return nil, fmt.Errorf("orchestrator: expected 2 daily aggregates, got %d", len(keys))
	}

	first, err := time.Parse("2006-01-02", keys[0])
	if err != nil {
		return nil, fmt.Errorf("orchestrator: unparsable date %q: %w", keys[0], err)
	}
	second, err := time.Parse("2006-01-02", keys[1])
	if err != nil {
		return nil, fmt.Errorf("orchestrator: unparsable date %q: %w", keys[1], err)
	}
	if second.Sub(first) != 24*time.Hour {
		return nil, fmt.Errorf("orchestrator: daily aggregate dates %s and %s are not consecutive", keys[0], keys[1])
	}

	days := make([]snapshot.DailyForecast, 2)
	for i, k := range keys {
		d := result.Daily[k]
		days[i] = snapshot.DailyForecast{
			DateLocal:          d.DateLocal,
			TMaxC:              d.TMaxC,
			TMinC:              d.TMinC,
			TMeanC:             d.TMeanC,
			RHMeanPct:          d.RHMeanPct,
			WSMeanMS:           d.WSMeanMS,
			RadiationSumMJM2:   d.RadiationSumMJM2,
			PrecipitationSumMM: d.PrecipitationSumMM,
			EtoModelMMDay:      d.EtoDayMM,
			EtoProviderMMDay:   d.EtoProviderDayMM,
		}
	}
	return days, nil
}

func lockOwner() string {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	return fmt.Sprintf("%s:%d", host, os.Getpid())
}
