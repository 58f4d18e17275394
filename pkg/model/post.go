package model

import (
	"time"

	"github.com/google/uuid"
)

type PostStatus string

const (
	PostDraft     PostStatus = "draft"
	PostPending   PostStatus = "pending"
	PostApproved  PostStatus = "approved"
	PostScheduled PostStatus = "scheduled"
	PostPublished PostStatus = "published"
	PostRejected  PostStatus = "rejected"
	PostFailed    PostStatus = "failed"
)

func IsValidPostStatus(s PostStatus) bool {
	switch s {
	case PostDraft, PostPending, PostApproved, PostScheduled, PostPublished, PostRejected, PostFailed:
		return true
	}
	return false
}

type Post struct {
	ID                uuid.UUID  `gorm:"type:uuid;primary_key"`
	ChannelID         uuid.UUID  `gorm:"type:uuid;not null;index"`
	Channel           *Channel   `gorm:"foreignKey:ChannelID"`
	Title             string     `gorm:"size:255;not null"`
	BodyText          string     `gorm:"type:text;not null"`
	MediaURL          string     `gorm:"size:500"`
	Status            PostStatus `gorm:"type:varchar(20);default:'draft';index"`
	ScheduledAt       *time.Time `gorm:"index"`
	PublishedAt       *time.Time
	ExternalMessageID string `gorm:"size:128"`
	LastKnownViews    *int
	PublishAttempts   int    `gorm:"default:0"`
	LastError         string `gorm:"type:text"`
	EditorComment     string `gorm:"type:text"`
	CreatedBy         uuid.UUID `gorm:"type:uuid;not null"`
	UpdatedBy         uuid.UUID `gorm:"type:uuid;not null"`
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Editable reports whether content fields may still change. Only drafts
// and rejected posts are open for edits.
func (p *Post) Editable() bool {
	return p.Status == PostDraft || p.Status == PostRejected
}

// ComposedMessage is the text actually delivered to the channel.
func (p *Post) ComposedMessage() string {
	return p.Title + "\n\n" + p.BodyText
}
