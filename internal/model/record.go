package model

import (
	"time"

	"gorm.io/datatypes"
)

// IngestState tracks a raw record through enrichment.
type IngestState string

const (
	IngestPending  IngestState = "pending"
	IngestEnriched IngestState = "enriched"
	IngestFailed   IngestState = "failed"
)

// GameStatus is the lifecycle of a game record.
type GameStatus string

const (
	GameScheduled GameStatus = "scheduled"
	GameRunning   GameStatus = "running"
	GameFinished  GameStatus = "finished"
	GameCancelled GameStatus = "cancelled"
)

// AssignmentStatus is the per-dimension resolution state shared by the
// venue, series and recurring-game dimensions.
type AssignmentStatus string

const (
	AutoAssigned      AssignmentStatus = "AUTO_ASSIGNED"
	ManuallyAssigned  AssignmentStatus = "MANUALLY_ASSIGNED"
	PendingAssignment AssignmentStatus = "PENDING_ASSIGNMENT"
	Unassigned        AssignmentStatus = "UNASSIGNED"
	NotApplicable     AssignmentStatus = "NOT_APPLICABLE"
)

// RawRecord is one scraped game observation as delivered by the external
// fetch collaborator. Immutable once enrichment starts; enrichment writes
// an EnrichedRecord, never back into this row.
type RawRecord struct {
	ID            uint64      `gorm:"column:id;primaryKey;autoIncrement"`
	TenantID      uint64      `gorm:"column:tenant_id;type:bigint;not null;uniqueIndex:uq_raw_tenant_external"`
	ExternalID    string      `gorm:"column:external_id;type:varchar(128);not null;uniqueIndex:uq_raw_tenant_external"`
	SourceURL     string      `gorm:"column:source_url;type:varchar(512)"`
	Name          string      `gorm:"column:name;type:varchar(256);not null"`
	RawVenueText  string      `gorm:"column:raw_venue_text;type:varchar(256)"`
	RawVenueCity  string      `gorm:"column:raw_venue_city;type:varchar(128)"`
	RawSeriesText string      `gorm:"column:raw_series_text;type:varchar(256)"`
	EventNumber   string      `gorm:"column:event_number;type:varchar(32)"` // explicit series event number, when the source provides one
	GameType      string      `gorm:"column:game_type;type:varchar(32)"`    // tournament / cash
	Variant       string      `gorm:"column:variant;type:varchar(32)"`      // NLHE / PLO / ...
	BuyIn         *float64    `gorm:"column:buy_in;type:numeric(12,2)"`
	Guarantee     *float64    `gorm:"column:guarantee;type:numeric(14,2)"`
	StartTime     time.Time   `gorm:"column:start_time;type:timestamp;not null"`
	EndTime       *time.Time  `gorm:"column:end_time;type:timestamp"`
	Status        GameStatus  `gorm:"column:status;type:varchar(16);default:scheduled"`
	Entries       *int        `gorm:"column:entries;type:int"`
	Rebuys        *int        `gorm:"column:rebuys;type:int"`
	Addons        *int        `gorm:"column:addons;type:int"`
	PrizePool     *float64    `gorm:"column:prize_pool;type:numeric(14,2)"`
	PrizepoolPaid *float64    `gorm:"column:prizepool_paid;type:numeric(14,2)"`
	IngestState   IngestState `gorm:"column:ingest_state;type:varchar(16);default:pending;index"`
	CreatedAt     time.Time   `gorm:"column:created_at;type:timestamp;default:now()"`
	UpdatedAt     time.Time   `gorm:"column:updated_at;type:timestamp;default:now()"`
}

func (RawRecord) TableName() string { return "raw_records" }

// EnrichedRecord is the fully classified game produced by enrichment.
// Parent/child consolidation links are ids, never embedded pointers.
type EnrichedRecord struct {
	ID         uint64 `gorm:"column:id;primaryKey;autoIncrement"`
	RecordUUID string `gorm:"column:record_uuid;type:varchar(64);uniqueIndex;not null"`
	TenantID   uint64 `gorm:"column:tenant_id;type:bigint;not null;index"`
	RawID      uint64 `gorm:"column:raw_id;type:bigint;index"` // 0 for synthetic consolidation parents
	Name       string `gorm:"column:name;type:varchar(256);not null"`

	GameType  string     `gorm:"column:game_type;type:varchar(32)"`
	Variant   string     `gorm:"column:variant;type:varchar(32)"`
	BuyIn     *float64   `gorm:"column:buy_in;type:numeric(12,2)"`
	Guarantee *float64   `gorm:"column:guarantee;type:numeric(14,2)"`
	StartTime time.Time  `gorm:"column:start_time;type:timestamp;not null"`
	EndTime   *time.Time `gorm:"column:end_time;type:timestamp"`
	Status    GameStatus `gorm:"column:status;type:varchar(16);default:scheduled"`

	// Venue dimension
	VenueID         *uint64          `gorm:"column:venue_id;type:bigint;index"`
	VenueStatus     AssignmentStatus `gorm:"column:venue_status;type:varchar(24);default:UNASSIGNED"`
	VenueConfidence float64          `gorm:"column:venue_confidence;type:decimal(4,3);default:0"`
	VenueReason     string           `gorm:"column:venue_reason;type:varchar(256)"`

	// Series dimension
	SeriesID         *uint64          `gorm:"column:series_id;type:bigint;index"`
	SeriesStatus     AssignmentStatus `gorm:"column:series_status;type:varchar(24);default:UNASSIGNED"`
	SeriesConfidence float64          `gorm:"column:series_confidence;type:decimal(4,3);default:0"`
	SeriesReason     string           `gorm:"column:series_reason;type:varchar(256)"`

	// Recurring-game dimension
	RecurringID         *uint64          `gorm:"column:recurring_id;type:bigint;index"`
	RecurringStatus     AssignmentStatus `gorm:"column:recurring_status;type:varchar(24);default:UNASSIGNED"`
	RecurringConfidence float64          `gorm:"column:recurring_confidence;type:decimal(4,3);default:0"`
	RecurringReason     string           `gorm:"column:recurring_reason;type:varchar(256)"`

	// Multi-day consolidation
	ConsolidationKey      string  `gorm:"column:consolidation_key;type:varchar(256);index:idx_enriched_consolidation"`
	ConsolidationStrategy string  `gorm:"column:consolidation_strategy;type:varchar(32)"`
	ParentID              *uint64 `gorm:"column:parent_id;type:bigint;index"`
	FlightLabel           string  `gorm:"column:flight_label;type:varchar(16)"` // e.g. "1A", "2"
	IsParent              bool    `gorm:"column:is_parent;type:boolean;default:false"`
	IsPartialData         bool    `gorm:"column:is_partial_data;type:boolean;default:false"`

	// Financials (parents hold sums across children)
	Entries          *int     `gorm:"column:entries;type:int"`
	Rebuys           *int     `gorm:"column:rebuys;type:int"`
	Addons           *int     `gorm:"column:addons;type:int"`
	PrizePool        *float64 `gorm:"column:prize_pool;type:numeric(14,2)"`
	PrizepoolPaid    *float64 `gorm:"column:prizepool_paid;type:numeric(14,2)"`
	TicketsAwarded   int      `gorm:"column:tickets_awarded;type:int;default:0"`
	TicketValueTotal float64  `gorm:"column:ticket_value_total;type:numeric(14,2);default:0"`

	// Decision trail: one entry per resolution decision taken during
	// enrichment (dimension, status, confidence, reason, strategy).
	EnrichmentMeta datatypes.JSON `gorm:"column:enrichment_meta;type:jsonb"`

	CreatedAt time.Time `gorm:"column:created_at;type:timestamp;default:now()"`
	UpdatedAt time.Time `gorm:"column:updated_at;type:timestamp;default:now()"`
}

func (EnrichedRecord) TableName() string { return "enriched_records" }

// Assignment is the per-dimension view extracted from an EnrichedRecord,
// also used as the decision-trail entry shape inside enrichment_meta.
type Assignment struct {
	Dimension  string           `json:"dimension"`
	TargetID   *uint64          `json:"target_id"`
	Status     AssignmentStatus `json:"status"`
	Confidence float64          `json:"confidence"`
	Reason     string           `json:"reason"`
}
