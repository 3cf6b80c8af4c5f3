// Package auditlog is the append-only relational record of every
// pipeline run, kept for post-hoc analysis after the hot cache has
// moved on to a newer snapshot. A write here never blocks or fails a
// run: the hot cache is the authoritative path for read availability,
// this package is diagnostic.
package auditlog

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/evaonline/matopiba-pipeline/internal/snapshot"
)

// Store wraps the matopiba_runs table. A nil db means the store is
// running in disabled/no-op mode (no DB_URL configured): every
// RecordRun call then logs one warning and returns nil rather than
// erroring, so a deployment without Postgres still runs the pipeline
// and serves reads, it simply has no run history.
type Store struct {
	db *gorm.DB
}

// Open connects to Postgres via the given DSN, runs AutoMigrate for
// RunRecord, and returns a ready Store. The dialector wiring mirrors
// the registration-free, single-provider shape this module needs: no
// dialector registry, since Postgres is the only backend this pipeline
// ever targets.
func Open(dsn string) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("auditlog: open connection: %w", err)
	}

	if err := db.AutoMigrate(&RunRecord{}); err != nil {
		return nil, fmt.Errorf("auditlog: auto-migrate: %w", err)
	}

	return &Store{db: db}, nil
}

// NewNoop returns a disabled Store: every write is a logged no-op.
// Used when DB_URL is unset, matching the pipeline's policy of running
// without an audit log rather than refusing to start.
func NewNoop() *Store {
	return &Store{db: nil}
}

// RecordRun upserts one row keyed by metadata.UpdatedAtUTC: a retried
// run that recomputes the same triggering timestamp replaces the prior
// row's metrics in place instead of inserting a duplicate. Any error
// (including running in no-op mode) is logged and swallowed — an audit
// log failure must never fail the run it is recording.
func (s *Store) RecordRun(ctx context.Context, meta snapshot.RunMetadata, val snapshot.ValidationMetrics) error {
	if s.db == nil {
		log.Printf("WARN: auditlog disabled (no DB_URL configured); dropping run record for %s", meta.RunLabel)
		return nil
	}

	blob, err := json.Marshal(struct {
		Metadata   snapshot.RunMetadata      `json:"metadata"`
		Validation snapshot.ValidationMetrics `json:"validation"`
	}{meta, val})
	if err != nil {
		log.Printf("WARN: auditlog: marshal metadata for %s: %v", meta.RunLabel, err)
		return nil
	}

	record := RunRecord{
		RunLabel:     string(meta.RunLabel),
		UpdatedAt:    meta.UpdatedAtUTC.UTC(),
		NCities:      meta.NCitiesSucceeded,
		SuccessRate:  meta.SuccessRate,
		Quality:      val.Quality,
		MetadataJSON: string(blob),
	}
	if !isNaN(val.R2) {
		v := val.R2
		record.R2 = &v
	}
	if val.NSamples > 0 {
		rmse, bias, mae := val.RMSEMMDay, val.BiasMMDay, val.MAEMMDay
		record.RMSEMMDay = &rmse
		record.BiasMMDay = &bias
		record.MAEMMDay = &mae
	}

	err = s.db.WithContext(ctx).
		Where("updated_at = ?", record.UpdatedAt).
		Assign(record).
		FirstOrCreate(&RunRecord{}, RunRecord{UpdatedAt: record.UpdatedAt}).Error
	if err != nil {
		log.Printf("WARN: auditlog: upsert run record for %s: %v", meta.RunLabel, err)
		return nil
	}
	return nil
}

// RecentRuns returns up to limit rows ordered by updated_at descending,
// the access pattern the idx_runs_updated_at_desc index exists to serve.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if s.db == nil {
		return nil, nil
	}
	var rows []RunRecord
	err := s.db.WithContext(ctx).Order("updated_at DESC").Limit(limit).Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("auditlog: query recent runs: %w", err)
	}
	return rows, nil
}

func isNaN(f float64) bool {
	return f != f
}
