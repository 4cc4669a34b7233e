package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

const (
	ScopePortal = "portal"
	ScopeAdmin  = "admin"
)

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*SecretResponse, error)
	EnsureSecret(ctx context.Context, req CreateRequest, plain string) (bool, error)
	Authenticate(ctx context.Context, raw string) (Principal, error)
	List(ctx context.Context, affiliateID *snowflake.ID) ([]Response, error)
	Rotate(ctx context.Context, keyID string) (*SecretResponse, error)
	Revoke(ctx context.Context, keyID string) error
}

type CreateRequest struct {
	Name        string        `json:"name"`
	Role        Role          `json:"role"`
	AffiliateID *snowflake.ID `json:"affiliate_id,omitempty"`
	Scopes      []string      `json:"scopes"`
	ExpiresAt   *time.Time    `json:"expires_at,omitempty"`
}

type Response struct {
	KeyID       string        `json:"key_id"`
	Name        string        `json:"name"`
	Role        Role          `json:"role"`
	AffiliateID *snowflake.ID `json:"affiliate_id,omitempty"`
	Scopes      []string      `json:"scopes"`
	IsActive    bool          `json:"is_active"`
	CreatedAt   time.Time     `json:"created_at"`
	LastUsedAt  *time.Time    `json:"last_used_at"`
	ExpiresAt   *time.Time    `json:"expires_at"`
}

// SecretResponse carries the plaintext key; it is returned once and never stored.
type SecretResponse struct {
	KeyID  string `json:"key_id"`
	APIKey string `json:"api_key"`
}

var (
	ErrInvalidName      = errors.New("invalid_name")
	ErrInvalidRole      = errors.New("invalid_role")
	ErrInvalidAffiliate = errors.New("invalid_affiliate")
	ErrInvalidKeyID     = errors.New("invalid_key_id")
	ErrInvalidSecret    = errors.New("invalid_secret")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrNotFound         = errors.New("api_key_not_found")
)
