package model

import (
	"time"

	"github.com/google/uuid"
)

// Channel is a delivery target for published posts. The Telegram
// identifier is stored as submitted (raw id, @handle or t.me URL);
// normalization happens in the gateway at send time.
type Channel struct {
	ID                 uuid.UUID `gorm:"type:uuid;primary_key"`
	Title              string    `gorm:"size:255;not null;index"`
	TelegramIdentifier string    `gorm:"size:255;not null;uniqueIndex"`
	IsActive           bool      `gorm:"default:true"`
	AvatarURL          string    `gorm:"size:500"`
	CreatedAt          time.Time
}
