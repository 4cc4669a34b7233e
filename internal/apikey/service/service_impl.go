package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/lib/pq"
	apikeydomain "github.com/smallbiznis/hightide/internal/apikey/domain"
	auditdomain "github.com/smallbiznis/hightide/internal/audit/domain"
	"github.com/smallbiznis/hightide/internal/audit/masking"
	"github.com/smallbiznis/hightide/internal/clock"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	apiKeyPrefix              = "ht_live_"
	apiKeySecretBytes         = 32
	apiKeyMinSecretLength     = 16
	apiKeyRotationGracePeriod = 24 * time.Hour
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  apikeydomain.Repository
	Audit auditdomain.Service `optional:"true"`
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	repo  apikeydomain.Repository
	genID *snowflake.Node
	clock clock.Clock
	audit auditdomain.Service
}

func New(p Params) apikeydomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("apikey.service"),
		repo:  p.Repo,
		genID: p.GenID,
		clock: p.Clock,
		audit: p.Audit,
	}
}

func (s *Service) Create(ctx context.Context, req apikeydomain.CreateRequest) (*apikeydomain.SecretResponse, error) {
	key, err := s.newKey(req)
	if err != nil {
		return nil, err
	}
	plain, hash, err := generateAPIKey(key.KeyID)
	if err != nil {
		return nil, err
	}
	key.KeyHash = hash

	if err := s.repo.Insert(ctx, s.db, key); err != nil {
		return nil, err
	}

	s.record(ctx, "api_key.created", key, map[string]any{
		"role":     string(key.Role),
		"key_hint": masking.MaskSecret(plain),
	})
	return &apikeydomain.SecretResponse{KeyID: key.KeyID, APIKey: plain}, nil
}

// EnsureSecret stores a caller-chosen key unless one with the same hash exists.
func (s *Service) EnsureSecret(ctx context.Context, req apikeydomain.CreateRequest, plain string) (bool, error) {
	plain = strings.TrimSpace(plain)
	if len(plain) < apiKeyMinSecretLength {
		return false, apikeydomain.ErrInvalidSecret
	}

	hash := apikeydomain.HashAPIKey(plain)
	existing, err := s.repo.FindByHash(ctx, s.db, hash)
	if err != nil {
		return false, err
	}
	if existing != nil {
		return false, nil
	}

	key, err := s.newKey(req)
	if err != nil {
		return false, err
	}
	key.KeyHash = hash
	if err := s.repo.Insert(ctx, s.db, key); err != nil {
		return false, err
	}

	s.record(ctx, "api_key.bootstrapped", key, map[string]any{"role": string(key.Role)})
	return true, nil
}

func (s *Service) Authenticate(ctx context.Context, raw string) (apikeydomain.Principal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return apikeydomain.Principal{}, apikeydomain.ErrUnauthorized
	}

	key, err := s.repo.FindByHash(ctx, s.db, apikeydomain.HashAPIKey(raw))
	if err != nil {
		return apikeydomain.Principal{}, err
	}
	now := s.clock.Now()
	if key == nil || !key.IsActive || isExpired(key.ExpiresAt, now) {
		return apikeydomain.Principal{}, apikeydomain.ErrUnauthorized
	}

	if err := s.repo.TouchLastUsed(ctx, s.db, key.ID, now); err != nil {
		s.log.Warn("failed to update api key last_used_at", zap.String("key_id", key.KeyID), zap.Error(err))
	}

	return apikeydomain.Principal{
		KeyID:       key.KeyID,
		Role:        key.Role,
		AffiliateID: key.AffiliateID,
		Scopes:      []string(key.Scopes),
	}, nil
}

func (s *Service) List(ctx context.Context, affiliateID *snowflake.ID) ([]apikeydomain.Response, error) {
	items, err := s.repo.List(ctx, s.db, affiliateID)
	if err != nil {
		return nil, err
	}

	resp := make([]apikeydomain.Response, 0, len(items))
	for i := range items {
		resp = append(resp, toResponse(&items[i]))
	}
	return resp, nil
}

func (s *Service) Rotate(ctx context.Context, keyID string) (*apikeydomain.SecretResponse, error) {
	trimmed := strings.TrimSpace(keyID)
	if trimmed == "" {
		return nil, apikeydomain.ErrInvalidKeyID
	}

	var (
		result *apikeydomain.SecretResponse
		next   *apikeydomain.APIKey
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.repo.FindByKeyID(ctx, tx, trimmed)
		if err != nil {
			return err
		}
		now := s.clock.Now()
		if current == nil || !current.IsActive || isExpired(current.ExpiresAt, now) {
			return apikeydomain.ErrNotFound
		}

		current.ExpiresAt = ptrTime(now.Add(apiKeyRotationGracePeriod))
		current.UpdatedAt = now
		if err := s.repo.Update(ctx, tx, current); err != nil {
			return err
		}

		next, err = s.newKey(apikeydomain.CreateRequest{
			Name:        current.Name,
			Role:        current.Role,
			AffiliateID: current.AffiliateID,
			Scopes:      current.Scopes,
		})
		if err != nil {
			return err
		}
		plain, hash, err := generateAPIKey(next.KeyID)
		if err != nil {
			return err
		}
		next.KeyHash = hash
		if err := s.repo.Insert(ctx, tx, next); err != nil {
			return err
		}

		result = &apikeydomain.SecretResponse{KeyID: next.KeyID, APIKey: plain}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.record(ctx, "api_key.rotated", next, map[string]any{"rotated_from": trimmed})
	return result, nil
}

func (s *Service) Revoke(ctx context.Context, keyID string) error {
	trimmed := strings.TrimSpace(keyID)
	if trimmed == "" {
		return apikeydomain.ErrInvalidKeyID
	}

	key, err := s.repo.FindByKeyID(ctx, s.db, trimmed)
	if err != nil {
		return err
	}
	if key == nil {
		return apikeydomain.ErrNotFound
	}

	now := s.clock.Now()
	key.IsActive = false
	key.UpdatedAt = now
	if key.ExpiresAt == nil || key.ExpiresAt.After(now) {
		key.ExpiresAt = &now
	}
	if err := s.repo.Update(ctx, s.db, key); err != nil {
		return err
	}

	s.record(ctx, "api_key.revoked", key, nil)
	return nil
}

func (s *Service) newKey(req apikeydomain.CreateRequest) (*apikeydomain.APIKey, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, apikeydomain.ErrInvalidName
	}

	switch req.Role {
	case apikeydomain.RoleAdmin:
		if req.AffiliateID != nil {
			return nil, apikeydomain.ErrInvalidAffiliate
		}
	case apikeydomain.RoleAffiliate:
		if req.AffiliateID == nil || *req.AffiliateID == 0 {
			return nil, apikeydomain.ErrInvalidAffiliate
		}
	default:
		return nil, apikeydomain.ErrInvalidRole
	}

	scopes := normalizeScopes(req.Scopes)
	if len(scopes) == 0 {
		scopes = defaultScopes(req.Role)
	}

	now := s.clock.Now()
	id := s.genID.Generate()
	return &apikeydomain.APIKey{
		ID:          id,
		KeyID:       newKeyID(id),
		Name:        name,
		Role:        req.Role,
		AffiliateID: req.AffiliateID,
		Scopes:      pq.StringArray(scopes),
		IsActive:    true,
		ExpiresAt:   req.ExpiresAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

func (s *Service) record(ctx context.Context, action string, key *apikeydomain.APIKey, metadata map[string]any) {
	if s.audit == nil || key == nil {
		return
	}
	targetID := key.KeyID
	if err := s.audit.AuditLog(ctx, "", nil, action, "api_key", &targetID, metadata); err != nil {
		s.log.Warn("failed to audit api key change", zap.String("action", action), zap.Error(err))
	}
}

func toResponse(key *apikeydomain.APIKey) apikeydomain.Response {
	return apikeydomain.Response{
		KeyID:       key.KeyID,
		Name:        key.Name,
		Role:        key.Role,
		AffiliateID: key.AffiliateID,
		Scopes:      []string(key.Scopes),
		IsActive:    key.IsActive,
		CreatedAt:   key.CreatedAt,
		LastUsedAt:  key.LastUsedAt,
		ExpiresAt:   key.ExpiresAt,
	}
}

func normalizeScopes(scopes []string) []string {
	out := make([]string, 0, len(scopes))
	seen := make(map[string]struct{}, len(scopes))
	for _, scope := range scopes {
		scope = strings.ToLower(strings.TrimSpace(scope))
		if scope == "" {
			continue
		}
		if _, ok := seen[scope]; ok {
			continue
		}
		seen[scope] = struct{}{}
		out = append(out, scope)
	}
	return out
}

func defaultScopes(role apikeydomain.Role) []string {
	if role == apikeydomain.RoleAdmin {
		return []string{apikeydomain.ScopeAdmin}
	}
	return []string{apikeydomain.ScopePortal}
}

func generateAPIKey(keyID string) (string, string, error) {
	secret := make([]byte, apiKeySecretBytes)
	if _, err := rand.Read(secret); err != nil {
		return "", "", err
	}

	trimmed := strings.ToLower(strings.TrimPrefix(keyID, "key_"))
	plain := fmt.Sprintf("%s%s_%s", apiKeyPrefix, trimmed, hex.EncodeToString(secret))
	return plain, apikeydomain.HashAPIKey(plain), nil
}

func newKeyID(id snowflake.ID) string {
	return "key_" + strings.ToUpper(strconv.FormatInt(int64(id), 36))
}

func isExpired(expiresAt *time.Time, now time.Time) bool {
	if expiresAt == nil {
		return false
	}
	return now.After(*expiresAt)
}

func ptrTime(value time.Time) *time.Time {
	return &value
}
