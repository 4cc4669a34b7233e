package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	apikeydomain "github.com/smallbiznis/hightide/internal/apikey/domain"
	"gorm.io/gorm"
)

const selectColumns = `SELECT id, key_id, name, key_hash, role, affiliate_id, scopes, is_active,
	last_used_at, expires_at, created_at, updated_at FROM api_keys`

type repo struct{}

func Provide() apikeydomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, key *apikeydomain.APIKey) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO api_keys (id, key_id, name, key_hash, role, affiliate_id, scopes, is_active, last_used_at, expires_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		key.ID,
		key.KeyID,
		key.Name,
		key.KeyHash,
		key.Role,
		key.AffiliateID,
		key.Scopes,
		key.IsActive,
		key.LastUsedAt,
		key.ExpiresAt,
		key.CreatedAt,
		key.UpdatedAt,
	).Error
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, key *apikeydomain.APIKey) error {
	return db.WithContext(ctx).Exec(
		`UPDATE api_keys
		 SET name = ?, scopes = ?, is_active = ?, expires_at = ?, updated_at = ?
		 WHERE key_id = ?`,
		key.Name,
		key.Scopes,
		key.IsActive,
		key.ExpiresAt,
		key.UpdatedAt,
		key.KeyID,
	).Error
}

func (r *repo) FindByKeyID(ctx context.Context, db *gorm.DB, keyID string) (*apikeydomain.APIKey, error) {
	return r.findOne(ctx, db, selectColumns+` WHERE key_id = ?`, keyID)
}

func (r *repo) FindByHash(ctx context.Context, db *gorm.DB, hash string) (*apikeydomain.APIKey, error) {
	return r.findOne(ctx, db, selectColumns+` WHERE key_hash = ?`, hash)
}

func (r *repo) List(ctx context.Context, db *gorm.DB, affiliateID *snowflake.ID) ([]apikeydomain.APIKey, error) {
	var keys []apikeydomain.APIKey
	stmt := db.WithContext(ctx)
	var err error
	if affiliateID != nil {
		err = stmt.Raw(selectColumns+` WHERE affiliate_id = ? ORDER BY created_at DESC, id DESC`, *affiliateID).Scan(&keys).Error
	} else {
		err = stmt.Raw(selectColumns + ` ORDER BY created_at DESC, id DESC`).Scan(&keys).Error
	}
	if err != nil {
		return nil, err
	}
	return keys, nil
}

func (r *repo) TouchLastUsed(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE api_keys SET last_used_at = ? WHERE id = ?`,
		at,
		id,
	).Error
}

func (r *repo) findOne(ctx context.Context, db *gorm.DB, query string, args ...any) (*apikeydomain.APIKey, error) {
	var key apikeydomain.APIKey
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&key).Error; err != nil {
		return nil, err
	}
	if key.ID == 0 {
		return nil, nil
	}
	return &key, nil
}
