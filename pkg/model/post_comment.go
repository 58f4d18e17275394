package model

import (
	"time"

	"github.com/google/uuid"
)

const (
	CommentKindComment = "comment"
	CommentKindReject  = "reject"
	CommentKindSystem  = "system"
)

// PostComment keeps a thread-like history of review decisions and
// notes attached to a post.
type PostComment struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key"`
	PostID    uuid.UUID `gorm:"type:uuid;not null;index"`
	Post      *Post     `gorm:"foreignKey:PostID"`
	AuthorID  uuid.UUID `gorm:"type:uuid;not null;index"`
	Kind      string    `gorm:"size:16;default:'comment'"`
	BodyText  string    `gorm:"type:text;not null"`
	CreatedAt time.Time
}
