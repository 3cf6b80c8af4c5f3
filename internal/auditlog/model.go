package auditlog

import "time"

// RunRecord is the durable audit-log row for one pipeline run: one row
// per run timestamp, upserted in place on retry rather than appended,
// so `matopiba_runs` never accumulates duplicate rows for the same
// triggering instant.
type RunRecord struct {
	ID uint `gorm:"primaryKey"`

	RunLabel  string    `gorm:"column:run_label;index:idx_runs_run_label"`
	UpdatedAt time.Time `gorm:"column:updated_at;uniqueIndex:idx_runs_updated_at_unique;index:idx_runs_updated_at_desc,sort:desc"`
	NCities   int       `gorm:"column:n_cities"`

	R2          *float64 `gorm:"column:r2"`
	RMSEMMDay   *float64 `gorm:"column:rmse"`
	BiasMMDay   *float64 `gorm:"column:bias"`
	MAEMMDay    *float64 `gorm:"column:mae"`
	SuccessRate float64  `gorm:"column:success_rate"`
	Quality     string   `gorm:"column:quality;index:idx_runs_quality"`

	// MetadataJSON carries the full RunMetadata/ValidationMetrics pair
	// as a free-form blob, so a schema change to either struct never
	// requires a migration of this table.
	MetadataJSON string `gorm:"column:metadata_json;type:jsonb"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName pins the table name so it does not depend on GORM's
// pluralization of the struct name.
func (RunRecord) TableName() string {
	return "matopiba_runs"
}
