// Package repository provides access to the persisted user snapshot store.
package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mkushnerov/tg-harvester/internal/logger"
	"github.com/mkushnerov/tg-harvester/internal/models"
)

// InsertBatchSize is the number of rows per insert statement. Batching is a
// throughput choice only; correctness comes from the uniqueness constraint.
const InsertBatchSize = 1000

// UsersRepository handles users table operations.
type UsersRepository struct {
	db  *gorm.DB
	log *logger.Logger
}

// NewUsersRepository creates a new users repository.
func NewUsersRepository(db *gorm.DB) *UsersRepository {
	return &UsersRepository{db: db, log: logger.Get()}
}

// ExistingIDs returns the full distinct user_id set already in the store.
func (r *UsersRepository) ExistingIDs(ctx context.Context) (map[int64]struct{}, error) {
	var ids []int64
	err := r.db.WithContext(ctx).
		Model(&models.UserSnapshot{}).
		Distinct("user_id").
		Pluck("user_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("load existing user ids: %w", err)
	}

	set := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set, nil
}

// InsertBatch persists snapshots with conflict-ignore semantics under the
// (user_id, collected_at, source_group_id) uniqueness constraint. A failed
// batch is logged and skipped; the remaining batches still commit. Returns
// the number of rows actually inserted.
func (r *UsersRepository) InsertBatch(ctx context.Context, snapshots []models.UserSnapshot) (int, error) {
	if len(snapshots) == 0 {
		return 0, nil
	}

	inserted := 0
	var lastErr error

	for start := 0; start < len(snapshots); start += InsertBatchSize {
		end := start + InsertBatchSize
		if end > len(snapshots) {
			end = len(snapshots)
		}
		batch := snapshots[start:end]

		res := r.db.WithContext(ctx).
			Clauses(clause.OnConflict{DoNothing: true}).
			Create(&batch)
		if res.Error != nil {
			r.log.Error().Err(res.Error).
				Int("batch_start", start).
				Int("batch_size", len(batch)).
				Msg("repository: batch insert failed, skipping batch")
			lastErr = res.Error
			continue
		}
		inserted += int(res.RowsAffected)
	}

	if inserted == 0 && lastErr != nil {
		return 0, fmt.Errorf("insert users: %w", lastErr)
	}
	return inserted, nil
}

// Search finds snapshots by numeric user id, @username fragment, or name
// fragment, newest collections first.
func (r *UsersRepository) Search(ctx context.Context, term string, limit int) ([]models.UserSnapshot, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, fmt.Errorf("empty search term")
	}
	if limit <= 0 {
		limit = 100
	}

	q := r.db.WithContext(ctx).Model(&models.UserSnapshot{}).
		Order("collected_at DESC").
		Limit(limit)

	switch {
	case isDigits(term):
		q = q.Where("user_id = ?", term)
	case strings.HasPrefix(term, "@"):
		q = q.Where("username LIKE ?", "%"+term+"%")
	default:
		pattern := "%" + term + "%"
		q = q.Where("first_name LIKE ? OR last_name LIKE ? OR username LIKE ?", pattern, pattern, pattern)
	}

	var out []models.UserSnapshot
	if err := q.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("search users: %w", err)
	}
	return out, nil
}

// All returns every snapshot, newest collections first. Used by the export
// endpoint; limit <= 0 means no limit.
func (r *UsersRepository) All(ctx context.Context, limit int) ([]models.UserSnapshot, error) {
	q := r.db.WithContext(ctx).Model(&models.UserSnapshot{}).Order("collected_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}

	var out []models.UserSnapshot
	if err := q.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("load users: %w", err)
	}
	return out, nil
}

// StoreStats aggregates statistics over the snapshot store.
type StoreStats struct {
	TotalRows    int64      `json:"total_rows"`
	UniqueUsers  int64      `json:"unique_users"`
	WithUsername int64      `json:"with_username"`
	Premium      int64      `json:"premium"`
	Verified     int64      `json:"verified"`
	Bots         int64      `json:"bots"`
	FirstRecord  *time.Time `json:"first_record,omitempty"`
	LastRecord   *time.Time `json:"last_record,omitempty"`
}

// Stats computes store statistics.
func (r *UsersRepository) Stats(ctx context.Context) (*StoreStats, error) {
	stats := &StoreStats{}
	m := r.db.WithContext(ctx).Model(&models.UserSnapshot{})

	if err := m.Count(&stats.TotalRows).Error; err != nil {
		return nil, fmt.Errorf("count rows: %w", err)
	}
	if err := r.db.WithContext(ctx).Model(&models.UserSnapshot{}).
		Distinct("user_id").Count(&stats.UniqueUsers).Error; err != nil {
		return nil, fmt.Errorf("count unique users: %w", err)
	}
	if err := r.db.WithContext(ctx).Model(&models.UserSnapshot{}).
		Where("username IS NOT NULL").Count(&stats.WithUsername).Error; err != nil {
		return nil, fmt.Errorf("count usernames: %w", err)
	}
	if err := r.db.WithContext(ctx).Model(&models.UserSnapshot{}).
		Where("is_premium = ?", true).Count(&stats.Premium).Error; err != nil {
		return nil, fmt.Errorf("count premium: %w", err)
	}
	if err := r.db.WithContext(ctx).Model(&models.UserSnapshot{}).
		Where("is_verified = ?", true).Count(&stats.Verified).Error; err != nil {
		return nil, fmt.Errorf("count verified: %w", err)
	}
	if err := r.db.WithContext(ctx).Model(&models.UserSnapshot{}).
		Where("is_bot = ?", true).Count(&stats.Bots).Error; err != nil {
		return nil, fmt.Errorf("count bots: %w", err)
	}

	if stats.TotalRows > 0 {
		var bounds struct {
			First time.Time
			Last  time.Time
		}
		err := r.db.WithContext(ctx).Model(&models.UserSnapshot{}).
			Select("MIN(collected_at) AS first, MAX(collected_at) AS last").
			Scan(&bounds).Error
		if err != nil {
			return nil, fmt.Errorf("collection bounds: %w", err)
		}
		stats.FirstRecord = &bounds.First
		stats.LastRecord = &bounds.Last
	}

	return stats, nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
