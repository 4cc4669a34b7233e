package domain

import (
	"context"
	"errors"

	"github.com/smallbiznis/hightide/pkg/db/pagination"
)

type CreateRequest struct {
	Name       string
	Slug       string
	LandingURL string
}

type ListRequest struct {
	PageToken string
	PageSize  int
}

type CampaignWithStats struct {
	Campaign
	Stats Stats `json:"stats"`
}

type ListResponse struct {
	pagination.PageInfo
	Campaigns []CampaignWithStats `json:"campaigns"`
}

type RecordEventRequest struct {
	Slug        string
	Kind        EventKind
	Email       string
	IPHash      string
	Referrer    string
	LandingPage string
}

type Service interface {
	Create(ctx context.Context, req CreateRequest) (Campaign, error)
	List(ctx context.Context, req ListRequest) (ListResponse, error)
	// GetBySlug returns ErrNotFound for unknown or inactive campaigns.
	GetBySlug(ctx context.Context, slug string) (Campaign, error)
	RecordEvent(ctx context.Context, req RecordEventRequest) (Event, error)
}

var (
	ErrInvalidName      = errors.New("invalid_name")
	ErrInvalidSlug      = errors.New("invalid_slug")
	ErrInvalidEventKind = errors.New("invalid_event_kind")
	ErrSlugTaken        = errors.New("slug_taken")
	ErrNotFound         = errors.New("campaign_not_found")
)
