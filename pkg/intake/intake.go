// Package intake receives externally submitted content candidates,
// deduplicates them by content fingerprint and converts the accepted
// ones into draft posts. Dedup is enforced by the storage layer's
// unique constraint, not by a check-then-insert, so concurrent
// identical submissions cannot race past each other.
package intake

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/postline/postline/pkg/audit"
	"github.com/postline/postline/pkg/metrics"
	"github.com/postline/postline/pkg/model"
	"github.com/postline/postline/pkg/store/postgres"
)

// Notifier receives intake outcomes after they commit. Nil is allowed.
type Notifier interface {
	NotifySuggestion(ctx context.Context, suggestionID, channelID uuid.UUID, outcome string)
}

type Service struct {
	db          *gorm.DB
	suggestions *postgres.SuggestionRepository
	channels    *postgres.ChannelRepository
	posts       *postgres.PostRepository
	notifier    Notifier
	logger      *zap.Logger
}

func NewService(db *gorm.DB, notifier Notifier, logger *zap.Logger) *Service {
	return &Service{
		db:          db,
		suggestions: postgres.NewSuggestionRepository(db),
		channels:    postgres.NewChannelRepository(db),
		posts:       postgres.NewPostRepository(db),
		notifier:    notifier,
		logger:      logger,
	}
}

type SubmitInput struct {
	Title    string
	BodyText string
	MediaURL string
	// SourceURL is the upstream item's canonical address, when the
	// submitter has one. It becomes the dedup basis.
	SourceURL string
}

// Submit stores a new suggestion or reports a conflict when the same
// content was already queued for this channel. Callers rely on the
// distinct conflict signal: "already known" is not "bad input".
func (s *Service) Submit(ctx context.Context, channelID uuid.UUID, in SubmitInput) (*model.Suggestion, error) {
	if strings.TrimSpace(in.Title) == "" || strings.TrimSpace(in.BodyText) == "" {
		return nil, &model.ValidationError{Reason: "title and body are required"}
	}
	if _, err := s.channels.GetByID(ctx, channelID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("channel: %w", model.ErrNotFound)
		}
		return nil, err
	}

	suggestion := &model.Suggestion{
		ID:         uuid.New(),
		ChannelID:  channelID,
		Title:      in.Title,
		BodyText:   in.BodyText,
		MediaURL:   in.MediaURL,
		SourceURL:  in.SourceURL,
		SourceHash: Fingerprint(in.SourceURL, in.Title, in.BodyText),
	}
	if err := s.suggestions.Create(ctx, suggestion); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, fmt.Errorf("suggestion: %w", model.ErrConflict)
		}
		return nil, err
	}

	metrics.SuggestionsCreatedTotal.Inc()
	if s.notifier != nil {
		s.notifier.NotifySuggestion(ctx, suggestion.ID, channelID, "created")
	}
	return suggestion, nil
}

func (s *Service) List(ctx context.Context, channelID uuid.UUID, limit, offset int) ([]model.Suggestion, int64, error) {
	if _, err := s.channels.GetByID(ctx, channelID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, 0, fmt.Errorf("channel: %w", model.ErrNotFound)
		}
		return nil, 0, err
	}
	return s.suggestions.List(ctx, channelID, limit, offset)
}

// Accept converts the suggestion into a draft post and removes it, in
// one transaction. A suggestion that vanished under a concurrent
// accept or reject surfaces as not-found instead of a duplicate post.
func (s *Service) Accept(ctx context.Context, suggestionID uuid.UUID, actorID uuid.UUID) (*model.Post, error) {
	var post *model.Post
	var channelID uuid.UUID
	err := s.db.Transaction(func(tx *gorm.DB) error {
		suggestion, err := s.suggestions.GetByID(ctx, suggestionID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return model.ErrNotFound
			}
			return err
		}
		channelID = suggestion.ChannelID

		post = &model.Post{
			ID:        uuid.New(),
			ChannelID: suggestion.ChannelID,
			Title:     suggestion.Title,
			BodyText:  suggestion.BodyText,
			MediaURL:  suggestion.MediaURL,
			Status:    model.PostDraft,
			CreatedBy: actorID,
			UpdatedBy: actorID,
		}
		if err := s.posts.Create(ctx, tx, post); err != nil {
			return err
		}

		deleted, err := s.suggestions.Delete(ctx, tx, suggestionID)
		if err != nil {
			return err
		}
		if !deleted {
			// Lost the race against another accept/reject. Roll the
			// post back rather than double-creating.
			return model.ErrNotFound
		}

		return audit.Append(ctx, tx, audit.EntitySuggestion, suggestionID, "accept", actorID,
			model.JSONB{"post_id": post.ID.String()})
	})
	if err != nil {
		return nil, err
	}

	if s.notifier != nil {
		s.notifier.NotifySuggestion(ctx, suggestionID, channelID, "accepted")
	}
	return post, nil
}

// Reject discards the suggestion without creating a post.
func (s *Service) Reject(ctx context.Context, suggestionID uuid.UUID, actorID uuid.UUID) error {
	var channelID uuid.UUID
	err := s.db.Transaction(func(tx *gorm.DB) error {
		suggestion, err := s.suggestions.GetByID(ctx, suggestionID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return model.ErrNotFound
			}
			return err
		}
		channelID = suggestion.ChannelID

		deleted, err := s.suggestions.Delete(ctx, tx, suggestionID)
		if err != nil {
			return err
		}
		if !deleted {
			return model.ErrNotFound
		}

		return audit.Append(ctx, tx, audit.EntitySuggestion, suggestionID, "reject", actorID, model.JSONB{})
	})
	if err != nil {
		return err
	}

	if s.notifier != nil {
		s.notifier.NotifySuggestion(ctx, suggestionID, channelID, "rejected")
	}
	return nil
}
