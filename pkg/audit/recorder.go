// Package audit appends immutable provenance records for every
// state-changing action. Append deliberately never commits: it writes
// through the caller's transaction so a failed audit write rolls the
// whole mutation back.
package audit

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/postline/postline/pkg/model"
)

const (
	EntityPost       = "post"
	EntitySuggestion = "suggestion"
	EntityChannel    = "channel"
)

func Append(ctx context.Context, tx *gorm.DB, entityType string, entityID uuid.UUID, action string, actorID uuid.UUID, payload model.JSONB) error {
	entry := &model.AuditLog{
		ID:         uuid.New(),
		EntityType: entityType,
		EntityID:   entityID,
		Action:     action,
		ActorID:    actorID,
		Payload:    payload,
	}
	return tx.WithContext(ctx).Create(entry).Error
}
