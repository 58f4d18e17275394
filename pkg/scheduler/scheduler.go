// Package scheduler is the due-post claimer: a background worker that
// periodically claims scheduled posts whose time has arrived and hands
// them to the publisher. Multiple instances may run concurrently; the
// SKIP LOCKED claim gives each a disjoint subset.
package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/postline/postline/pkg/audit"
	"github.com/postline/postline/pkg/config"
	"github.com/postline/postline/pkg/metrics"
	"github.com/postline/postline/pkg/model"
	"github.com/postline/postline/pkg/publisher"
	"github.com/postline/postline/pkg/store/postgres"
)

type Scheduler struct {
	db        *gorm.DB
	posts     *postgres.PostRepository
	pub       *publisher.Publisher
	notifier  publisher.TransitionNotifier
	interval  time.Duration
	batchSize int
	logger    *zap.Logger
}

func New(db *gorm.DB, pub *publisher.Publisher, cfg config.SchedulerConfig, notifier publisher.TransitionNotifier, logger *zap.Logger) *Scheduler {
	interval := cfg.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 20
	}
	return &Scheduler{
		db:        db,
		posts:     postgres.NewPostRepository(db),
		pub:       pub,
		notifier:  notifier,
		interval:  interval,
		batchSize: batchSize,
		logger:    logger,
	}
}

func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info("scheduler starting",
		zap.Duration("interval", s.interval), zap.Int("batch_size", s.batchSize))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler shutting down")
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick claims one batch of due posts and publishes each while the
// claim is held. The actor attributed to an automatic publish is the
// last human who touched the post.
func (s *Scheduler) Tick(ctx context.Context) {
	published := 0
	err := s.db.Transaction(func(tx *gorm.DB) error {
		posts, err := s.posts.ClaimDue(ctx, tx, time.Now().UTC(), s.batchSize)
		if err != nil {
			return err
		}
		for i := range posts {
			post := &posts[i]
			actor := post.UpdatedBy
			if actor == uuid.Nil {
				actor = post.CreatedBy
			}
			if _, err := s.pub.PublishLocked(ctx, tx, post, actor); err != nil {
				return err
			}
			published++
		}
		return nil
	})
	if err != nil {
		s.logger.Error("scheduler tick failed", zap.Error(err))
		return
	}
	if published > 0 {
		s.logger.Info("scheduler tick processed due posts", zap.Int("count", published))
	}
}

// Requeue puts a failed (or still scheduled) post back into the due
// queue after a delay. Any other status is an invalid transition.
func (s *Scheduler) Requeue(ctx context.Context, postID uuid.UUID, actorID uuid.UUID, delay time.Duration) (*model.Post, error) {
	if delay < 0 {
		delay = 0
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
		if post.Status != model.PostFailed && post.Status != model.PostScheduled {
			return model.ErrInvalidTransition
		}
		retryAt := time.Now().UTC().Add(delay)
		post.Status = model.PostScheduled
		post.ScheduledAt = &retryAt
		post.UpdatedBy = actorID
		if err := s.posts.Save(ctx, tx, post); err != nil {
			return err
		}
		return audit.Append(ctx, tx, audit.EntityPost, post.ID, "requeue", actorID,
			model.JSONB{"delay_seconds": int(delay.Seconds())})
	})
	if err != nil {
		return nil, err
	}

	metrics.RecordTransition(string(previous), string(post.Status))
	if s.notifier != nil {
		s.notifier.NotifyTransition(ctx, post, previous, post.Status, actorID)
	}
	return post, nil
}

// ListScheduled exposes the upcoming queue for operator dashboards.
func (s *Scheduler) ListScheduled(ctx context.Context, filter postgres.ScheduledFilter) ([]model.Post, int64, error) {
	return s.posts.ListScheduled(ctx, filter)
}
