package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/hightide/internal/notification/domain"
	"github.com/smallbiznis/hightide/pkg/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, conn *gorm.DB, notification *domain.Notification) (bool, error) {
	result := conn.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "dedupe_key"}},
			DoNothing: true,
		}).
		Create(notification)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) ListDue(ctx context.Context, conn *gorm.DB, now time.Time, limit int) ([]domain.Notification, error) {
	stmt := conn.WithContext(ctx).
		Model(&domain.Notification{}).
		Where("status = ? AND next_attempt_at <= ?", domain.StatusPending, now).
		Order("next_attempt_at asc, id asc").
		Limit(limit)
	if db.IsPostgres(conn) {
		stmt = stmt.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
	}

	var rows []domain.Notification
	if err := stmt.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repo) Lease(ctx context.Context, conn *gorm.DB, ids []snowflake.ID, until time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	return conn.WithContext(ctx).Exec(
		`UPDATE notifications SET next_attempt_at = ? WHERE id IN ? AND status = ?`,
		until,
		ids,
		domain.StatusPending,
	).Error
}

func (r *repo) MarkSent(ctx context.Context, conn *gorm.DB, id snowflake.ID, attempts int, now time.Time) error {
	return conn.WithContext(ctx).Exec(
		`UPDATE notifications
		 SET status = ?, attempts = ?, sent_at = ?, last_error = NULL, updated_at = ?
		 WHERE id = ?`,
		domain.StatusSent,
		attempts,
		now,
		now,
		id,
	).Error
}

func (r *repo) MarkRetry(ctx context.Context, conn *gorm.DB, id snowflake.ID, attempts int, nextAttemptAt time.Time, lastError string, now time.Time) error {
	return conn.WithContext(ctx).Exec(
		`UPDATE notifications
		 SET attempts = ?, next_attempt_at = ?, last_error = ?, updated_at = ?
		 WHERE id = ?`,
		attempts,
		nextAttemptAt,
		lastError,
		now,
		id,
	).Error
}

func (r *repo) MarkFailed(ctx context.Context, conn *gorm.DB, id snowflake.ID, attempts int, lastError string, now time.Time) error {
	return conn.WithContext(ctx).Exec(
		`UPDATE notifications
		 SET status = ?, attempts = ?, last_error = ?, updated_at = ?
		 WHERE id = ?`,
		domain.StatusFailed,
		attempts,
		lastError,
		now,
		id,
	).Error
}

func (r *repo) CountPending(ctx context.Context, conn *gorm.DB) (int64, error) {
	var count int64
	err := conn.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM notifications WHERE status = ?`,
		domain.StatusPending,
	).Scan(&count).Error
	return count, err
}
