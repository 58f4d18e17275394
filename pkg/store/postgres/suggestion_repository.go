package postgres

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/postline/postline/pkg/model"
)

type SuggestionRepository struct {
	db *gorm.DB
}

func NewSuggestionRepository(db *gorm.DB) *SuggestionRepository {
	return &SuggestionRepository{db: db}
}

// Create relies on the (channel_id, source_hash) unique index for
// dedup. A duplicate surfaces as gorm.ErrDuplicatedKey; there is
// deliberately no check-then-insert here.
func (r *SuggestionRepository) Create(ctx context.Context, suggestion *model.Suggestion) error {
	return r.db.WithContext(ctx).Create(suggestion).Error
}

func (r *SuggestionRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Suggestion, error) {
	var suggestion model.Suggestion
	err := r.db.WithContext(ctx).First(&suggestion, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &suggestion, nil
}

func (r *SuggestionRepository) List(ctx context.Context, channelID uuid.UUID, limit, offset int) ([]model.Suggestion, int64, error) {
	var suggestions []model.Suggestion
	var total int64

	query := r.db.WithContext(ctx).Model(&model.Suggestion{}).Where("channel_id = ?", channelID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&suggestions).Error

	return suggestions, total, err
}

// Delete removes the suggestion and reports whether a row was actually
// deleted, so a concurrent accept/reject can be detected.
func (r *SuggestionRepository) Delete(ctx context.Context, tx *gorm.DB, id uuid.UUID) (bool, error) {
	result := tx.WithContext(ctx).Delete(&model.Suggestion{}, "id = ?", id)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
