// Package publisher orchestrates one delivery attempt of a post
// against the messaging gateway. All publish paths — scheduler claims,
// manual publish-now, retries — go through Publish/PublishLocked so
// the state transition logic never diverges.
package publisher

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/postline/postline/pkg/audit"
	"github.com/postline/postline/pkg/config"
	"github.com/postline/postline/pkg/gateway"
	"github.com/postline/postline/pkg/metrics"
	"github.com/postline/postline/pkg/model"
	"github.com/postline/postline/pkg/store/postgres"
)

// TransitionNotifier receives post status changes after they commit.
// Nil notifiers are allowed.
type TransitionNotifier interface {
	NotifyTransition(ctx context.Context, post *model.Post, from, to model.PostStatus, actorID uuid.UUID)
}

type Publisher struct {
	db       *gorm.DB
	posts    *postgres.PostRepository
	channels *postgres.ChannelRepository
	gw       gateway.Gateway
	cfg      config.PublishConfig
	notifier TransitionNotifier
	logger   *zap.Logger
}

func New(db *gorm.DB, gw gateway.Gateway, cfg config.PublishConfig, notifier TransitionNotifier, logger *zap.Logger) *Publisher {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 5 * time.Minute
	}
	return &Publisher{
		db:       db,
		posts:    postgres.NewPostRepository(db),
		channels: postgres.NewChannelRepository(db),
		gw:       gw,
		cfg:      cfg,
		notifier: notifier,
		logger:   logger,
	}
}

// Publish locks the post row, performs one delivery attempt and
// commits the outcome. Safe to call twice for the same post: a second
// call on a published post returns it unchanged without touching the
// gateway.
func (p *Publisher) Publish(ctx context.Context, postID uuid.UUID, actorID uuid.UUID) (*model.Post, error) {
	var result *model.Post
	err := p.db.Transaction(func(tx *gorm.DB) error {
		post, err := p.posts.GetForUpdate(ctx, tx, postID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return model.ErrNotFound
			}
			return err
		}
		result, err = p.PublishLocked(ctx, tx, post, actorID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// PublishLocked runs the delivery attempt for a post whose row is
// already locked inside tx. The scheduler calls this directly for the
// batch it claimed; Publish wraps it for single posts.
//
// Delivery failures are absorbed into the post's state, never returned
// as errors: the returned post is published, rescheduled or failed.
func (p *Publisher) PublishLocked(ctx context.Context, tx *gorm.DB, post *model.Post, actorID uuid.UUID) (*model.Post, error) {
	previous := post.Status

	// Idempotency guard: a re-claimed or double-clicked post that is
	// already out must not be sent again.
	if post.Status == model.PostPublished && post.ExternalMessageID != "" {
		return post, nil
	}

	channel, err := p.channels.GetByID(ctx, post.ChannelID)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		// Missing channel is a configuration problem, not a transport
		// one. No amount of retrying fixes it.
		return p.markFailed(ctx, tx, post, previous, actorID, "channel not found", false)
	}

	result, sendErr := p.gw.Send(ctx, channel.TelegramIdentifier, post.ComposedMessage(), post.MediaURL)
	now := time.Now().UTC()

	if sendErr == nil {
		post.Status = model.PostPublished
		post.PublishedAt = &now
		post.ExternalMessageID = result.MessageID
		post.LastError = ""
		post.UpdatedBy = actorID
		if err := p.posts.Save(ctx, tx, post); err != nil {
			return nil, err
		}
		payload := model.JSONB{"status": string(post.Status), "message_id": post.ExternalMessageID}
		if err := audit.Append(ctx, tx, audit.EntityPost, post.ID, "publish", actorID, payload); err != nil {
			return nil, err
		}
		metrics.PublishSuccessTotal.Inc()
		metrics.RecordTransition(string(previous), string(post.Status))
		p.notify(ctx, post, previous, actorID)
		p.logger.Info("publish success",
			zap.String("post_id", post.ID.String()), zap.String("message_id", post.ExternalMessageID))
		return post, nil
	}

	if !gateway.IsRetryable(sendErr) {
		return p.markFailed(ctx, tx, post, previous, actorID, sendErr.Error(), false)
	}

	post.PublishAttempts++
	post.LastError = sendErr.Error()
	post.UpdatedBy = actorID

	if post.PublishAttempts < p.cfg.MaxAttempts {
		retryAt := now.Add(p.cfg.RetryDelay)
		post.Status = model.PostScheduled
		post.ScheduledAt = &retryAt
		if err := p.posts.Save(ctx, tx, post); err != nil {
			return nil, err
		}
		payload := model.JSONB{"error": post.LastError, "attempt": post.PublishAttempts}
		if err := audit.Append(ctx, tx, audit.EntityPost, post.ID, "retry", actorID, payload); err != nil {
			return nil, err
		}
		metrics.PublishRetryTotal.Inc()
		metrics.RecordTransition(string(previous), string(post.Status))
		p.notify(ctx, post, previous, actorID)
		p.logger.Info("publish rescheduled",
			zap.String("post_id", post.ID.String()),
			zap.Int("attempt", post.PublishAttempts),
			zap.Time("retry_at", retryAt),
			zap.Error(sendErr))
		return post, nil
	}

	return p.markFailed(ctx, tx, post, previous, actorID, sendErr.Error(), true)
}

func (p *Publisher) markFailed(ctx context.Context, tx *gorm.DB, post *model.Post, previous model.PostStatus, actorID uuid.UUID, reason string, retryable bool) (*model.Post, error) {
	post.Status = model.PostFailed
	post.LastError = reason
	post.UpdatedBy = actorID
	if err := p.posts.Save(ctx, tx, post); err != nil {
		return nil, err
	}
	payload := model.JSONB{"error": reason, "retryable": retryable, "attempts": post.PublishAttempts}
	if err := audit.Append(ctx, tx, audit.EntityPost, post.ID, "fail", actorID, payload); err != nil {
		return nil, err
	}
	metrics.PublishFailTotal.Inc()
	metrics.RecordTransition(string(previous), string(post.Status))
	p.notify(ctx, post, previous, actorID)
	p.logger.Warn("publish failed",
		zap.String("post_id", post.ID.String()), zap.String("error", reason))
	return post, nil
}

func (p *Publisher) notify(ctx context.Context, post *model.Post, from model.PostStatus, actorID uuid.UUID) {
	if p.notifier == nil {
		return
	}
	p.notifier.NotifyTransition(ctx, post, from, post.Status, actorID)
}

// MaxAttempts exposes the configured outer retry bound.
func (p *Publisher) MaxAttempts() int {
	return p.cfg.MaxAttempts
}
