package model

import (
	"time"

	"github.com/google/uuid"
)

// Suggestion is an unmoderated content candidate submitted from
// outside. The compound unique index on (channel_id, source_hash) is
// what enforces deduplication; concurrent identical submissions race
// on the constraint, not on an application-level check.
type Suggestion struct {
	ID         uuid.UUID `gorm:"type:uuid;primary_key"`
	ChannelID  uuid.UUID `gorm:"type:uuid;not null;index;uniqueIndex:idx_suggestions_channel_hash"`
	Channel    *Channel  `gorm:"foreignKey:ChannelID"`
	Title      string    `gorm:"size:255;not null"`
	BodyText   string    `gorm:"type:text;not null"`
	MediaURL   string    `gorm:"size:500"`
	SourceURL  string    `gorm:"size:500"`
	SourceHash string    `gorm:"size:64;not null;uniqueIndex:idx_suggestions_channel_hash"`
	CreatedAt  time.Time
}
