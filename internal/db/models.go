package db

import (
	"encoding/json"
	"time"
)

// Source maps radar.sources: one configured upstream. Config is immutable
// admin-owned connector configuration; Cursor is the only field the
// ingestion pipeline mutates across runs.
type Source struct {
	ID        int64           `gorm:"column:id;primaryKey;autoIncrement"`
	Name      string          `gorm:"column:name;type:text;not null;unique"`
	Type      string          `gorm:"column:type;type:text;not null"`
	Config    json.RawMessage `gorm:"column:config;type:jsonb;not null"`
	Cursor    string          `gorm:"column:cursor;type:text;not null;default:''"`
	Enabled   bool            `gorm:"column:enabled;type:boolean;not null;default:true"`
	LastRunAt *time.Time      `gorm:"column:last_run_at;type:timestamptz"`
	CreatedAt time.Time       `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
}

func (Source) TableName() string { return "radar.sources" }

// Item maps radar.items: one discovered content item. Items are created
// exactly once at ingestion time and never mutated afterward.
type Item struct {
	ID                int64           `gorm:"column:id;primaryKey;autoIncrement"`
	CanonicalURL      string          `gorm:"column:canonical_url;type:text;not null;unique;index"`
	Title             string          `gorm:"column:title;type:text;not null"`
	SourceID          int64           `gorm:"column:source_id;type:bigint;not null;index"`
	PublishedAt       *time.Time      `gorm:"column:published_at;type:timestamptz;index"`
	FetchedAt         time.Time       `gorm:"column:fetched_at;type:timestamptz;not null;default:now()"`
	Snippet           *string         `gorm:"column:snippet;type:text"`
	Summary           *string         `gorm:"column:summary;type:text"`
	Domain            *string         `gorm:"column:domain;type:text;index"`
	Language          *string         `gorm:"column:language;type:text"`
	ContentHash       *string         `gorm:"column:content_hash;type:text;index"`
	Simhash           *int64          `gorm:"column:simhash;type:bigint;index"`
	DuplicateOfItemID *int64          `gorm:"column:duplicate_of_item_id;type:bigint;index"`
	NoveltyScore      float64         `gorm:"column:novelty_score;type:double precision;not null;default:0"`
	QualityScore      float64         `gorm:"column:quality_score;type:double precision;not null;default:0"`
	FinalScore        float64         `gorm:"column:final_score;type:double precision;not null;default:0;index"`
	RawSignals        json.RawMessage `gorm:"column:raw_signals;type:jsonb"`
	CreatedAt         time.Time       `gorm:"column:created_at;type:timestamptz;not null;default:now();index"`
}

func (Item) TableName() string { return "radar.items" }

// Collection maps radar.collections: an anonymous, token-scoped grouping of
// saved items.
type Collection struct {
	ID        int64     `gorm:"column:id;primaryKey;autoIncrement"`
	UserToken string    `gorm:"column:user_token;type:text;not null;index"`
	Name      string    `gorm:"column:name;type:text;not null"`
	CreatedAt time.Time `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
}

func (Collection) TableName() string { return "radar.collections" }

// SavedItem maps radar.saved_items.
type SavedItem struct {
	ID           int64     `gorm:"column:id;primaryKey;autoIncrement"`
	CollectionID int64     `gorm:"column:collection_id;type:bigint;not null;uniqueIndex:idx_saved_items_unique"`
	ItemID       int64     `gorm:"column:item_id;type:bigint;not null;uniqueIndex:idx_saved_items_unique"`
	Notes        *string   `gorm:"column:notes;type:text"`
	SavedAt      time.Time `gorm:"column:saved_at;type:timestamptz;not null;default:now()"`
}

func (SavedItem) TableName() string { return "radar.saved_items" }

func autoMigrateModels() []any {
	return []any{
		&Source{},
		&Item{},
		&Collection{},
		&SavedItem{},
	}
}
