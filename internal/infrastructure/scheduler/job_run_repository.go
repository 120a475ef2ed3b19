package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// JobRunRecord is one row of job run history
type JobRunRecord struct {
	ID          uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	Kind        string     `gorm:"column:kind;size:50;not null;index"`
	Status      string     `gorm:"column:status;size:20;not null"`
	Attempt     int        `gorm:"column:attempt;not null"`
	Error       string     `gorm:"column:error;type:text"`
	StartedAt   time.Time  `gorm:"column:started_at;not null"`
	CompletedAt *time.Time `gorm:"column:completed_at"`
}

// TableName returns the table name for GORM
func (JobRunRecord) TableName() string {
	return "job_runs"
}

// GormJobRunRepository records job runs with GORM. A retried job writes
// one row per attempt.
type GormJobRunRepository struct {
	db *gorm.DB

	mu   sync.Mutex
	rows map[runKey]uuid.UUID // open run rows by job and attempt
}

type runKey struct {
	job     uuid.UUID
	attempt int
}

// NewGormJobRunRepository creates a new GormJobRunRepository
func NewGormJobRunRepository(db *gorm.DB) *GormJobRunRepository {
	return &GormJobRunRepository{
		db:   db,
		rows: make(map[runKey]uuid.UUID),
	}
}

// RecordStart inserts a RUNNING row for the job's current attempt
func (r *GormJobRunRepository) RecordStart(ctx context.Context, job *Job) error {
	rec := &JobRunRecord{
		ID:        uuid.New(),
		Kind:      string(job.Kind),
		Status:    string(JobStatusRunning),
		Attempt:   job.RetryCount + 1,
		StartedAt: time.Now(),
	}
	if job.StartedAt != nil {
		rec.StartedAt = *job.StartedAt
	}
	if err := r.db.WithContext(ctx).Create(rec).Error; err != nil {
		return err
	}

	r.mu.Lock()
	r.rows[runKey{job.ID, job.RetryCount}] = rec.ID
	r.mu.Unlock()
	return nil
}

// RecordFinish stores the outcome of the job's current attempt
func (r *GormJobRunRepository) RecordFinish(ctx context.Context, job *Job) error {
	key := runKey{job.ID, job.RetryCount}
	r.mu.Lock()
	id, ok := r.rows[key]
	delete(r.rows, key)
	r.mu.Unlock()
	if !ok {
		return nil
	}

	return r.db.WithContext(ctx).
		Model(&JobRunRecord{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":       string(job.Status),
			"error":        job.Error,
			"completed_at": job.CompletedAt,
		}).Error
}

// LastRun returns the most recent run of kind
func (r *GormJobRunRepository) LastRun(ctx context.Context, kind JobKind) (*JobRunRecord, error) {
	var rec JobRunRecord
	if err := r.db.WithContext(ctx).
		Where("kind = ?", string(kind)).
		Order("started_at DESC").
		First(&rec).Error; err != nil {
		return nil, err
	}
	return &rec, nil
}

var _ JobRecorder = (*GormJobRunRepository)(nil)
