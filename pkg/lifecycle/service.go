// Package lifecycle owns the post state machine. Every transition is
// atomic: the field mutations and the audit entry commit together or
// not at all. Transition metrics and bus events are emitted only after
// the transaction commits.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/postline/postline/pkg/audit"
	"github.com/postline/postline/pkg/gateway"
	"github.com/postline/postline/pkg/metrics"
	"github.com/postline/postline/pkg/model"
	"github.com/postline/postline/pkg/publisher"
	"github.com/postline/postline/pkg/store/postgres"
)

type Service struct {
	db           *gorm.DB
	posts        *postgres.PostRepository
	channels     *postgres.ChannelRepository
	comments     *postgres.CommentRepository
	pub          *publisher.Publisher
	gw           gateway.Gateway
	notifier     publisher.TransitionNotifier
	viewsEnabled bool
	logger       *zap.Logger
}

func NewService(db *gorm.DB, pub *publisher.Publisher, gw gateway.Gateway, notifier publisher.TransitionNotifier, viewsEnabled bool, logger *zap.Logger) *Service {
	return &Service{
		db:           db,
		posts:        postgres.NewPostRepository(db),
		channels:     postgres.NewChannelRepository(db),
		comments:     postgres.NewCommentRepository(db),
		pub:          pub,
		gw:           gw,
		notifier:     notifier,
		viewsEnabled: viewsEnabled,
		logger:       logger,
	}
}

type CreateInput struct {
	Title    string
	BodyText string
	MediaURL string
}

type UpdateInput struct {
	Title    *string
	BodyText *string
	MediaURL *string
}

type transition struct {
	from, to model.PostStatus
}

func (s *Service) emit(ctx context.Context, post *model.Post, actorID uuid.UUID, transitions []transition) {
	for _, t := range transitions {
		metrics.RecordTransition(string(t.from), string(t.to))
		if s.notifier != nil {
			s.notifier.NotifyTransition(ctx, post, t.from, t.to, actorID)
		}
	}
}

func (s *Service) CreatePost(ctx context.Context, channelID uuid.UUID, in CreateInput, actorID uuid.UUID) (*model.Post, error) {
	if strings.TrimSpace(in.Title) == "" || strings.TrimSpace(in.BodyText) == "" {
		return nil, &model.ValidationError{Reason: "title and body are required"}
	}

	channel, err := s.channels.GetByID(ctx, channelID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("channel: %w", model.ErrNotFound)
		}
		return nil, err
	}
	if !channel.IsActive {
		return nil, &model.ValidationError{Reason: "channel is not active"}
	}

	post := &model.Post{
		ID:        uuid.New(),
		ChannelID: channelID,
		Title:     in.Title,
		BodyText:  in.BodyText,
		MediaURL:  in.MediaURL,
		Status:    model.PostDraft,
		CreatedBy: actorID,
		UpdatedBy: actorID,
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.posts.Create(ctx, tx, post); err != nil {
			return err
		}
		return audit.Append(ctx, tx, audit.EntityPost, post.ID, "create", actorID,
			model.JSONB{"status": string(post.Status)})
	})
	if err != nil {
		return nil, err
	}
	return post, nil
}

func (s *Service) GetPost(ctx context.Context, postID uuid.UUID) (*model.Post, error) {
	post, err := s.posts.GetByID(ctx, postID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, model.ErrNotFound
		}
		return nil, err
	}
	return post, nil
}

// ListPosts optionally refreshes the cached view counters of published
// posts from the gateway. View lookups are best effort and never fail
// the listing.
func (s *Service) ListPosts(ctx context.Context, channelID uuid.UUID, statuses []model.PostStatus, limit, offset int) ([]model.Post, int64, error) {
	posts, total, err := s.posts.List(ctx, channelID, statuses, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	if !s.viewsEnabled || s.gw == nil {
		return posts, total, nil
	}

	channel, err := s.channels.GetByID(ctx, channelID)
	if err != nil {
		return posts, total, nil
	}
	for i := range posts {
		post := &posts[i]
		if post.Status != model.PostPublished || post.ExternalMessageID == "" {
			continue
		}
		views, err := s.gw.GetViews(ctx, channel.TelegramIdentifier, post.ExternalMessageID)
		if err != nil {
			continue
		}
		if post.LastKnownViews == nil || *post.LastKnownViews != views {
			if err := s.posts.UpdateViews(ctx, post.ID, views); err == nil {
				post.LastKnownViews = &views
			}
		}
	}
	return posts, total, nil
}

func (s *Service) UpdatePost(ctx context.Context, postID uuid.UUID, in UpdateInput, actorID uuid.UUID) (*model.Post, error) {
	var post *model.Post
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		post, err = s.posts.GetForUpdate(ctx, tx, postID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return model.ErrNotFound
			}
			return err
		}
		if !post.Editable() {
			return invalidTransition(post.Status, "edit")
		}
		if in.Title != nil {
			post.Title = *in.Title
		}
		if in.BodyText != nil {
			post.BodyText = *in.BodyText
		}
		if in.MediaURL != nil {
			post.MediaURL = *in.MediaURL
		}
		if strings.TrimSpace(post.Title) == "" || strings.TrimSpace(post.BodyText) == "" {
			return &model.ValidationError{Reason: "title and body are required"}
		}
		post.UpdatedBy = actorID
		if err := s.posts.Save(ctx, tx, post); err != nil {
			return err
		}
		return audit.Append(ctx, tx, audit.EntityPost, post.ID, "update", actorID,
			model.JSONB{"status": string(post.Status)})
	})
	if err != nil {
		return nil, err
	}
	return post, nil
}

// Submit moves a draft or rejected post into review.
func (s *Service) Submit(ctx context.Context, postID uuid.UUID, actorID uuid.UUID) (*model.Post, error) {
	return s.singleTransition(ctx, postID, actorID, "submit", func(post *model.Post) error {
		if !canSubmit(post.Status) {
			return invalidTransition(post.Status, "submit")
		}
		post.Status = model.PostPending
		return nil
	})
}

// Approve accepts a pending post and clears any previous rejection
// comment.
func (s *Service) Approve(ctx context.Context, postID uuid.UUID, actorID uuid.UUID) (*model.Post, error) {
	return s.singleTransition(ctx, postID, actorID, "approve", func(post *model.Post) error {
		if post.Status != model.PostPending {
			return invalidTransition(post.Status, "approve")
		}
		post.Status = model.PostApproved
		post.EditorComment = ""
		return nil
	})
}

func (s *Service) singleTransition(ctx context.Context, postID uuid.UUID, actorID uuid.UUID, action string, mutate func(*model.Post) error) (*model.Post, error) {
	var post *model.Post
	var previous model.PostStatus
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		post, err = s.posts.GetForUpdate(ctx, tx, postID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return model.ErrNotFound
			}
			return err
		}
		previous = post.Status
		if err := mutate(post); err != nil {
			return err
		}
		post.UpdatedBy = actorID
		if err := s.posts.Save(ctx, tx, post); err != nil {
			return err
		}
		return audit.Append(ctx, tx, audit.EntityPost, post.ID, action, actorID,
			model.JSONB{"status": string(post.Status)})
	})
	if err != nil {
		return nil, err
	}
	s.emit(ctx, post, actorID, []transition{{previous, post.Status}})
	return post, nil
}

// Reject sends a pending post back to its author. The reason is
// required; it lands both on the post and in the review comment
// thread, all in one transaction.
func (s *Service) Reject(ctx context.Context, postID uuid.UUID, comment string, actorID uuid.UUID) (*model.Post, error) {
	if strings.TrimSpace(comment) == "" {
		return nil, &model.ValidationError{Reason: "rejection comment is required"}
	}

	var post *model.Post
	var previous model.PostStatus
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		post, err = s.posts.GetForUpdate(ctx, tx, postID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return model.ErrNotFound
			}
			return err
		}
		previous = post.Status
		if post.Status != model.PostPending {
			return invalidTransition(post.Status, "reject")
		}
		post.Status = model.PostRejected
		post.EditorComment = comment
		post.UpdatedBy = actorID
		if err := s.posts.Save(ctx, tx, post); err != nil {
			return err
		}
		review := &model.PostComment{
			ID:       uuid.New(),
			PostID:   post.ID,
			AuthorID: actorID,
			Kind:     model.CommentKindReject,
			BodyText: comment,
		}
		if err := s.comments.Create(ctx, tx, review); err != nil {
			return err
		}
		return audit.Append(ctx, tx, audit.EntityPost, post.ID, "reject", actorID,
			model.JSONB{"status": string(post.Status), "comment": comment})
	})
	if err != nil {
		return nil, err
	}
	s.emit(ctx, post, actorID, []transition{{previous, post.Status}})
	return post, nil
}

// Schedule stamps a future delivery time on the post. Draft, rejected
// and pending posts are first promoted through review as separate,
// audited transitions; the shortcut exists for privileged roles but is
// never silent.
func (s *Service) Schedule(ctx context.Context, postID uuid.UUID, at time.Time, actorID uuid.UUID) (*model.Post, error) {
	scheduledAt := at.UTC()
	if !scheduledAt.After(time.Now().UTC()) {
		return nil, &model.ValidationError{Reason: "scheduled time must be in the future"}
	}

	var post *model.Post
	var transitions []transition
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		post, err = s.posts.GetForUpdate(ctx, tx, postID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return model.ErrNotFound
			}
			return err
		}
		transitions, err = s.promote(ctx, tx, post, actorID)
		if err != nil {
			return err
		}
		previous := post.Status
		post.Status = model.PostScheduled
		post.ScheduledAt = &scheduledAt
		post.UpdatedBy = actorID
		if err := s.posts.Save(ctx, tx, post); err != nil {
			return err
		}
		transitions = append(transitions, transition{previous, post.Status})
		return audit.Append(ctx, tx, audit.EntityPost, post.ID, "schedule", actorID,
			model.JSONB{"status": string(post.Status), "scheduled_at": scheduledAt.Format(time.RFC3339)})
	})
	if err != nil {
		return nil, err
	}
	s.emit(ctx, post, actorID, transitions)
	return post, nil
}

// promote walks the post through the auto-promotion chain, writing one
// audit entry per hop.
func (s *Service) promote(ctx context.Context, tx *gorm.DB, post *model.Post, actorID uuid.UUID) ([]transition, error) {
	chain, err := promotionChain(post.Status)
	if err != nil {
		return nil, err
	}
	var transitions []transition
	for _, next := range chain {
		previous := post.Status
		post.Status = next
		if next == model.PostApproved {
			post.EditorComment = ""
		}
		post.UpdatedBy = actorID
		if err := s.posts.Save(ctx, tx, post); err != nil {
			return nil, err
		}
		action := "submit"
		if next == model.PostApproved {
			action = "approve"
		}
		err := audit.Append(ctx, tx, audit.EntityPost, post.ID, action, actorID,
			model.JSONB{"status": string(next), "auto": true})
		if err != nil {
			return nil, err
		}
		transitions = append(transitions, transition{previous, next})
	}
	return transitions, nil
}

// PublishNow promotes the post if needed and performs one synchronous
// delivery attempt under the row lock, so a concurrent scheduler claim
// can never double-send. Delivery failures come back as post state
// (scheduled or failed), not as an error.
func (s *Service) PublishNow(ctx context.Context, postID uuid.UUID, actorID uuid.UUID) (*model.Post, error) {
	var post *model.Post
	var transitions []transition
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		post, err = s.posts.GetForUpdate(ctx, tx, postID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return model.ErrNotFound
			}
			return err
		}
		// An already published post skips promotion and falls through to
		// the publisher's idempotency guard.
		if post.Status != model.PostPublished {
			transitions, err = s.promote(ctx, tx, post, actorID)
			if err != nil {
				return err
			}
		}
		post, err = s.pub.PublishLocked(ctx, tx, post, actorID)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.emit(ctx, post, actorID, transitions)
	return post, nil
}

// DeletePost removes a post. A published post's remote message is
// deleted first; if the gateway refuses, the post stays so no remote
// content is ever orphaned without a local record.
func (s *Service) DeletePost(ctx context.Context, postID uuid.UUID, actorID uuid.UUID) error {
	post, err := s.GetPost(ctx, postID)
	if err != nil {
		return err
	}

	if post.Status == model.PostPublished && post.ExternalMessageID != "" {
		channel, err := s.channels.GetByID(ctx, post.ChannelID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("channel: %w", model.ErrNotFound)
			}
			return err
		}
		if err := s.gw.Delete(ctx, channel.TelegramIdentifier, post.ExternalMessageID); err != nil {
			return fmt.Errorf("remote message delete refused, post kept: %w", err)
		}
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.WithContext(ctx).Delete(&model.PostComment{}, "post_id = ?", post.ID).Error; err != nil {
			return err
		}
		if err := s.posts.Delete(ctx, tx, post.ID); err != nil {
			return err
		}
		return audit.Append(ctx, tx, audit.EntityPost, post.ID, "delete", actorID,
			model.JSONB{"status": string(post.Status)})
	})
}

func (s *Service) ListComments(ctx context.Context, postID uuid.UUID, limit, offset int) ([]model.PostComment, error) {
	if _, err := s.GetPost(ctx, postID); err != nil {
		return nil, err
	}
	return s.comments.ListByPost(ctx, postID, limit, offset)
}
