package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/postline/postline/pkg/model"
)

type PostRepository struct {
	db *gorm.DB
}

func NewPostRepository(db *gorm.DB) *PostRepository {
	return &PostRepository{db: db}
}

func (r *PostRepository) Create(ctx context.Context, tx *gorm.DB, post *model.Post) error {
	return tx.WithContext(ctx).Create(post).Error
}

func (r *PostRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Post, error) {
	var post model.Post
	err := r.db.WithContext(ctx).First(&post, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &post, nil
}

// GetForUpdate fetches the post under an exclusive row lock so the
// caller's transaction serializes with concurrent publishers. The
// sqlite dialect used in tests has no row locks; its writes are
// serialized by the engine itself.
func (r *PostRepository) GetForUpdate(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*model.Post, error) {
	q := tx.WithContext(ctx)
	if tx.Dialector.Name() == "postgres" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var post model.Post
	if err := q.First(&post, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &post, nil
}

// ClaimDue selects scheduled posts whose time has arrived, locking the
// rows with SKIP LOCKED so concurrent scheduler instances each claim a
// disjoint subset without blocking on one another. Must run inside the
// caller's transaction; the claim is held until that transaction ends.
func (r *PostRepository) ClaimDue(ctx context.Context, tx *gorm.DB, now time.Time, limit int) ([]model.Post, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `
		SELECT * FROM posts
		WHERE status = ? AND scheduled_at <= ?
		ORDER BY scheduled_at ASC
		LIMIT ?`
	if tx.Dialector.Name() == "postgres" {
		query += " FOR UPDATE SKIP LOCKED"
	}
	var posts []model.Post
	err := tx.WithContext(ctx).Raw(query, model.PostScheduled, now, limit).Scan(&posts).Error
	return posts, err
}

func (r *PostRepository) Save(ctx context.Context, tx *gorm.DB, post *model.Post) error {
	return tx.WithContext(ctx).Save(post).Error
}

func (r *PostRepository) Delete(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	return tx.WithContext(ctx).Delete(&model.Post{}, "id = ?", id).Error
}

func (r *PostRepository) List(ctx context.Context, channelID uuid.UUID, statuses []model.PostStatus, limit, offset int) ([]model.Post, int64, error) {
	var posts []model.Post
	var total int64

	query := r.db.WithContext(ctx).Model(&model.Post{}).Where("channel_id = ?", channelID)
	if len(statuses) > 0 {
		query = query.Where("status IN ?", statuses)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&posts).Error

	return posts, total, err
}

type ScheduledFilter struct {
	ChannelID *uuid.UUID
	Since     *time.Time
	Until     *time.Time
	Limit     int
	Offset    int
}

func (r *PostRepository) ListScheduled(ctx context.Context, filter ScheduledFilter) ([]model.Post, int64, error) {
	var posts []model.Post
	var total int64

	query := r.db.WithContext(ctx).Model(&model.Post{}).Where("status = ?", model.PostScheduled)
	if filter.ChannelID != nil {
		query = query.Where("channel_id = ?", *filter.ChannelID)
	}
	if filter.Since != nil {
		query = query.Where("scheduled_at >= ?", *filter.Since)
	}
	if filter.Until != nil {
		query = query.Where("scheduled_at <= ?", *filter.Until)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	err := query.
		Order("scheduled_at ASC").
		Limit(limit).
		Offset(offset).
		Find(&posts).Error

	return posts, total, err
}

func (r *PostRepository) UpdateViews(ctx context.Context, id uuid.UUID, views int) error {
	return r.db.WithContext(ctx).Model(&model.Post{}).
		Where("id = ?", id).
		Update("last_known_views", views).Error
}
