package model

import (
	"time"

	"gorm.io/datatypes"
)

// Severity classifies a reconciliation discrepancy.
type Severity string

const (
	SeverityNone  Severity = "NONE"
	SeverityMinor Severity = "MINOR"
	SeverityMajor Severity = "MAJOR"
)

// Placement is one extracted result line from a social post. Stored as a
// jsonb array on SocialPost.
type Placement struct {
	Rank        int     `json:"rank"`
	PlayerName  string  `json:"player_name"`
	CashPrize   float64 `json:"cash_prize"`
	TicketCount int     `json:"ticket_count"`
	TicketValue float64 `json:"ticket_value"`
}

// SocialPost is an independently scraped result post with claims already
// extracted by the external social collaborator.
type SocialPost struct {
	ID         uint64         `gorm:"column:id;primaryKey;autoIncrement"`
	TenantID   uint64         `gorm:"column:tenant_id;type:bigint;not null;uniqueIndex:uq_post_tenant_external"`
	ExternalID string         `gorm:"column:external_id;type:varchar(128);not null;uniqueIndex:uq_post_tenant_external"`
	Source     string         `gorm:"column:source;type:varchar(32)"` // facebook / instagram / ...
	PostedAt   time.Time      `gorm:"column:posted_at;type:timestamp;not null"`
	VenueText  string         `gorm:"column:venue_text;type:varchar(256)"`
	EventDate  time.Time      `gorm:"column:event_date;type:timestamp;not null"`
	BuyIn      *float64       `gorm:"column:buy_in;type:numeric(12,2)"`
	Placements datatypes.JSON `gorm:"column:placements;type:jsonb"` // []Placement
	CreatedAt  time.Time      `gorm:"column:created_at;type:timestamp;default:now()"`
	UpdatedAt  time.Time      `gorm:"column:updated_at;type:timestamp;default:now()"`
}

func (SocialPost) TableName() string { return "social_posts" }

// PostGameLink ties a post to a candidate game. At most one primary link
// per post; secondaries are retained for review.
type PostGameLink struct {
	ID            uint64    `gorm:"column:id;primaryKey;autoIncrement"`
	PostID        uint64    `gorm:"column:post_id;type:bigint;not null;uniqueIndex:uq_link_post_record"`
	RecordID      uint64    `gorm:"column:record_id;type:bigint;not null;uniqueIndex:uq_link_post_record"`
	Confidence    float64   `gorm:"column:confidence;type:decimal(4,3);not null"`
	IsPrimaryGame bool      `gorm:"column:is_primary_game;type:boolean;default:false"`
	Reason        string    `gorm:"column:reason;type:varchar(256)"`
	CreatedAt     time.Time `gorm:"column:created_at;type:timestamp;default:now()"`
}

func (PostGameLink) TableName() string { return "post_game_links" }

// ReconciliationRecord holds the computed deltas between a post's claims
// and the linked game's authoritative financials. Recomputed whenever
// either side changes; a MAJOR severity never auto-corrects the game.
type ReconciliationRecord struct {
	ID                    uint64    `gorm:"column:id;primaryKey;autoIncrement"`
	LinkID                uint64    `gorm:"column:link_id;type:bigint;not null;uniqueIndex"`
	CashDifference        float64   `gorm:"column:cash_difference;type:numeric(14,2)"`
	TicketCountDifference int       `gorm:"column:ticket_count_difference;type:int"`
	TicketValueDifference float64   `gorm:"column:ticket_value_difference;type:numeric(14,2)"`
	Severity              Severity  `gorm:"column:severity;type:varchar(8);not null"`
	Report                string    `gorm:"column:report;type:text"`
	RecomputedAt          time.Time `gorm:"column:recomputed_at;type:timestamp;not null"`
	CreatedAt             time.Time `gorm:"column:created_at;type:timestamp;default:now()"`
}

func (ReconciliationRecord) TableName() string { return "reconciliation_records" }
