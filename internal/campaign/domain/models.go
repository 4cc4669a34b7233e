package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Campaign is an internally owned tracking link. Campaign traffic is never
// commissioned.
type Campaign struct {
	ID         snowflake.ID `gorm:"primaryKey" json:"id"`
	Slug       string       `gorm:"type:varchar(64);not null;uniqueIndex:ux_campaigns_slug" json:"slug"`
	Name       string       `gorm:"type:varchar(255);not null" json:"name"`
	LandingURL string       `gorm:"type:varchar(500)" json:"landing_url,omitempty"`
	IsActive   bool         `gorm:"not null" json:"is_active"`
	CreatedAt  time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt  time.Time    `gorm:"not null" json:"updated_at"`
}

func (Campaign) TableName() string { return "campaigns" }

type EventKind string

const (
	EventKindClick EventKind = "click"
	EventKindLead  EventKind = "lead"
)

type Event struct {
	ID          snowflake.ID `gorm:"primaryKey" json:"id"`
	CampaignID  snowflake.ID `gorm:"not null;index" json:"campaign_id"`
	Kind        EventKind    `gorm:"type:varchar(16);not null" json:"kind"`
	Email       *string      `gorm:"type:varchar(255)" json:"email,omitempty"`
	IPHash      string       `gorm:"type:varchar(32)" json:"ip_hash,omitempty"`
	Referrer    string       `gorm:"type:varchar(500)" json:"referrer,omitempty"`
	LandingPage string       `gorm:"type:varchar(500)" json:"landing_page,omitempty"`
	CreatedAt   time.Time    `gorm:"not null" json:"created_at"`
}

func (Event) TableName() string { return "campaign_events" }

// Stats aggregates campaign events for reporting.
type Stats struct {
	Clicks int64 `json:"clicks"`
	Leads  int64 `json:"leads"`
}
