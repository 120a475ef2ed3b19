package event

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopfront/backend/internal/domain/shared"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	// DefaultClaimTimeout is how long a PROCESSING entry may stay claimed
	// before another processor takes it over
	DefaultClaimTimeout = 5 * time.Minute

	// cleanupBatch bounds the rows removed per delete statement
	cleanupBatch = 500
)

// GormOutboxRepository stores outbox entries in the outbox_entries table
type GormOutboxRepository struct {
	db           *gorm.DB
	claimTimeout time.Duration
}

// NewGormOutboxRepository creates a repository using DefaultClaimTimeout
func NewGormOutboxRepository(db *gorm.DB) *GormOutboxRepository {
	return &GormOutboxRepository{db: db, claimTimeout: DefaultClaimTimeout}
}

// WithClaimTimeout returns a copy that treats claims older than d as
// abandoned. A non-positive d keeps the current timeout.
func (r *GormOutboxRepository) WithClaimTimeout(d time.Duration) *GormOutboxRepository {
	if d <= 0 {
		return r
	}
	return &GormOutboxRepository{db: r.db, claimTimeout: d}
}

// claimable matches entries a processor may take: new ones, failed ones and
// claims abandoned before staleBefore
func claimable(db *gorm.DB, staleBefore time.Time) *gorm.DB {
	return db.Where("status IN ?", []shared.OutboxStatus{shared.OutboxStatusPending, shared.OutboxStatusFailed}).
		Or("status = ? AND updated_at <= ?", shared.OutboxStatusProcessing, staleBefore)
}

// Save persists one or more outbox entries
func (r *GormOutboxRepository) Save(ctx context.Context, entries ...*shared.OutboxEntry) error {
	if len(entries) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(entries).Error
}

// FindPending returns the oldest entries never attempted
func (r *GormOutboxRepository) FindPending(ctx context.Context, limit int) ([]*shared.OutboxEntry, error) {
	var entries []*shared.OutboxEntry
	err := r.db.WithContext(ctx).
		Where("status = ?", shared.OutboxStatusPending).
		Order("created_at ASC").
		Limit(limit).
		Find(&entries).Error
	return entries, err
}

// FindRetryable returns failed entries due at now, then claims abandoned for
// longer than the claim timeout
func (r *GormOutboxRepository) FindRetryable(ctx context.Context, now time.Time, limit int) ([]*shared.OutboxEntry, error) {
	var entries []*shared.OutboxEntry
	err := r.db.WithContext(ctx).
		Where(r.db.Where("status = ? AND next_retry_at <= ?", shared.OutboxStatusFailed, now).
			Or("status = ? AND updated_at <= ?", shared.OutboxStatusProcessing, now.Add(-r.claimTimeout))).
		Order("updated_at ASC").
		Limit(limit).
		Find(&entries).Error
	return entries, err
}

// MarkProcessing claims the given entries with FOR UPDATE SKIP LOCKED and
// returns the ones this caller now owns
func (r *GormOutboxRepository) MarkProcessing(ctx context.Context, ids []uuid.UUID) ([]*shared.OutboxEntry, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var entries []*shared.OutboxEntry
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		if err := tx.
			Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("id IN ?", ids).
			Where(claimable(r.db, now.Add(-r.claimTimeout))).
			Find(&entries).Error; err != nil {
			return err
		}
		if len(entries) == 0 {
			return nil
		}

		claimed := make([]uuid.UUID, len(entries))
		for i, e := range entries {
			claimed[i] = e.ID
			e.Status = shared.OutboxStatusProcessing
			e.UpdatedAt = now
		}
		return tx.Model(&shared.OutboxEntry{}).
			Where("id IN ?", claimed).
			Updates(map[string]any{
				"status":     shared.OutboxStatusProcessing,
				"updated_at": now,
			}).Error
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// Update saves an entry's delivery state
func (r *GormOutboxRepository) Update(ctx context.Context, entry *shared.OutboxEntry) error {
	entry.UpdatedAt = time.Now()
	return r.db.WithContext(ctx).Save(entry).Error
}

// DeleteOlderThan removes entries delivered before the cutoff
func (r *GormOutboxRepository) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	return r.deleteInBatches(ctx, "status = ? AND processed_at < ?", shared.OutboxStatusSent, before)
}

// DeleteDeadOlderThan removes dead letters last touched before the cutoff
func (r *GormOutboxRepository) DeleteDeadOlderThan(ctx context.Context, before time.Time) (int64, error) {
	return r.deleteInBatches(ctx, "status = ? AND updated_at < ?", shared.OutboxStatusDead, before)
}

// deleteInBatches keeps each delete short so it does not hold locks the
// processor's claims are waiting on
func (r *GormOutboxRepository) deleteInBatches(ctx context.Context, cond string, args ...any) (int64, error) {
	var total int64
	for {
		batch := r.db.Model(&shared.OutboxEntry{}).Select("id").Where(cond, args...).Limit(cleanupBatch)
		result := r.db.WithContext(ctx).Where("id IN (?)", batch).Delete(&shared.OutboxEntry{})
		if result.Error != nil {
			return total, result.Error
		}
		total += result.RowsAffected
		if result.RowsAffected < cleanupBatch {
			return total, nil
		}
	}
}

// FindDead returns a page of dead entries, most recently failed first
func (r *GormOutboxRepository) FindDead(ctx context.Context, filter shared.DeadLetterFilter) ([]*shared.OutboxEntry, int64, error) {
	query := r.db.WithContext(ctx).Model(&shared.OutboxEntry{}).Where("status = ?", shared.OutboxStatusDead)
	if filter.EventType != "" {
		query = query.Where("event_type = ?", filter.EventType)
	}
	query = query.Session(&gorm.Session{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var entries []*shared.OutboxEntry
	if err := query.
		Order("updated_at DESC").
		Offset((filter.Page - 1) * filter.PageSize).
		Limit(filter.PageSize).
		Find(&entries).Error; err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

// FindByID loads one entry. A missing entry is shared.ErrNotFound.
func (r *GormOutboxRepository) FindByID(ctx context.Context, id uuid.UUID) (*shared.OutboxEntry, error) {
	var entry shared.OutboxEntry
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, shared.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// CountByStatus returns the number of entries in each status
func (r *GormOutboxRepository) CountByStatus(ctx context.Context) (map[shared.OutboxStatus]int64, error) {
	var rows []struct {
		Status shared.OutboxStatus
		Count  int64
	}
	if err := r.db.WithContext(ctx).
		Model(&shared.OutboxEntry{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	counts := make(map[shared.OutboxStatus]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

var _ shared.OutboxRepository = (*GormOutboxRepository)(nil)
