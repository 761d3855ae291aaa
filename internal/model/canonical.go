package model

import (
	"time"

	"gorm.io/datatypes"
)

// Venue is the canonical deduplicated card room. normalized_name + tenant
// is the idempotency key: concurrent create-if-missing calls collapse
// onto one row via the upsert in the repository.
type Venue struct {
	ID                  uint64         `gorm:"column:id;primaryKey;autoIncrement"`
	TenantID            uint64         `gorm:"column:tenant_id;type:bigint;not null;uniqueIndex:uq_venue_tenant_name"`
	Name                string         `gorm:"column:name;type:varchar(256);not null"`
	NormalizedName      string         `gorm:"column:normalized_name;type:varchar(256);not null;uniqueIndex:uq_venue_tenant_name"`
	Address             string         `gorm:"column:address;type:varchar(256)"`
	City                string         `gorm:"column:city;type:varchar(128)"`
	Aliases             datatypes.JSON `gorm:"column:aliases;type:jsonb"` // []string of known raw spellings
	GameCount           int            `gorm:"column:game_count;type:int;default:0"`
	LastDataRefreshedAt *time.Time     `gorm:"column:last_data_refreshed_at;type:timestamp"`
	CreatedAt           time.Time      `gorm:"column:created_at;type:timestamp;default:now()"`
	UpdatedAt           time.Time      `gorm:"column:updated_at;type:timestamp;default:now()"`
}

func (Venue) TableName() string { return "venues" }

// SeriesTitle is the year-independent canonical series name ("Winter
// Poker Open" persists; the dated series is one instance per year).
type SeriesTitle struct {
	ID             uint64         `gorm:"column:id;primaryKey;autoIncrement"`
	TenantID       uint64         `gorm:"column:tenant_id;type:bigint;not null;uniqueIndex:uq_series_title_tenant_name"`
	Title          string         `gorm:"column:title;type:varchar(256);not null"`
	NormalizedName string         `gorm:"column:normalized_name;type:varchar(256);not null;uniqueIndex:uq_series_title_tenant_name"`
	Aliases        datatypes.JSON `gorm:"column:aliases;type:jsonb"`
	SeriesCount    int            `gorm:"column:series_count;type:int;default:0"`
	CreatedAt      time.Time      `gorm:"column:created_at;type:timestamp;default:now()"`
	UpdatedAt      time.Time      `gorm:"column:updated_at;type:timestamp;default:now()"`
}

func (SeriesTitle) TableName() string { return "series_titles" }

// TournamentSeries is one dated instance of a SeriesTitle.
type TournamentSeries struct {
	ID            uint64     `gorm:"column:id;primaryKey;autoIncrement"`
	TenantID      uint64     `gorm:"column:tenant_id;type:bigint;not null;uniqueIndex:uq_series_tenant_title_year"`
	SeriesTitleID uint64     `gorm:"column:series_title_id;type:bigint;not null;uniqueIndex:uq_series_tenant_title_year"`
	Year          int        `gorm:"column:year;type:int;not null;uniqueIndex:uq_series_tenant_title_year"`
	VenueID       *uint64    `gorm:"column:venue_id;type:bigint;index"`
	GameCount     int        `gorm:"column:game_count;type:int;default:0"`
	LastSeenAt    *time.Time `gorm:"column:last_seen_at;type:timestamp"`
	CreatedAt     time.Time  `gorm:"column:created_at;type:timestamp;default:now()"`
	UpdatedAt     time.Time  `gorm:"column:updated_at;type:timestamp;default:now()"`
}

func (TournamentSeries) TableName() string { return "tournament_series" }

// RecurringGameTemplate is the canonical weekly slot (venue + weekday +
// format). slot_key = normalized name + venue + weekday, the idempotency
// key for auto-created templates.
type RecurringGameTemplate struct {
	ID               uint64     `gorm:"column:id;primaryKey;autoIncrement"`
	TenantID         uint64     `gorm:"column:tenant_id;type:bigint;not null;uniqueIndex:uq_recurring_tenant_slot"`
	VenueID          uint64     `gorm:"column:venue_id;type:bigint;not null;index"`
	SlotKey          string     `gorm:"column:slot_key;type:varchar(256);not null;uniqueIndex:uq_recurring_tenant_slot"`
	Name             string     `gorm:"column:name;type:varchar(256);not null"`
	DayOfWeek        int        `gorm:"column:day_of_week;type:int;not null"` // time.Weekday, 0=Sunday
	StartMinute      int        `gorm:"column:start_minute;type:int"`         // minutes from midnight
	GameType         string     `gorm:"column:game_type;type:varchar(32)"`
	Variant          string     `gorm:"column:variant;type:varchar(32)"`
	TypicalBuyIn     *float64   `gorm:"column:typical_buy_in;type:numeric(12,2)"`
	TypicalGuarantee *float64   `gorm:"column:typical_guarantee;type:numeric(14,2)"`
	OccurrenceCount  int        `gorm:"column:occurrence_count;type:int;default:0"`
	LastSeenAt       *time.Time `gorm:"column:last_seen_at;type:timestamp"`
	CreatedAt        time.Time  `gorm:"column:created_at;type:timestamp;default:now()"`
	UpdatedAt        time.Time  `gorm:"column:updated_at;type:timestamp;default:now()"`
}

func (RecurringGameTemplate) TableName() string { return "recurring_game_templates" }
