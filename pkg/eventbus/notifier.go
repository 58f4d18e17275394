package eventbus

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/postline/postline/pkg/model"
)

// PostNotifier publishes lifecycle events onto the bus. Event delivery
// is best effort: a redis hiccup must never fail the transition that
// already committed.
type PostNotifier struct {
	bus    *Bus
	logger *zap.Logger
}

func NewPostNotifier(bus *Bus, logger *zap.Logger) *PostNotifier {
	return &PostNotifier{bus: bus, logger: logger}
}

func (n *PostNotifier) NotifyTransition(ctx context.Context, post *model.Post, from, to model.PostStatus, actorID uuid.UUID) {
	if n == nil || n.bus == nil {
		return
	}
	payload := PostTransitionEvent{
		PostID:     post.ID.String(),
		ChannelID:  post.ChannelID.String(),
		FromStatus: string(from),
		ToStatus:   string(to),
		ActorID:    actorID.String(),
	}
	event, err := NewEvent("post_transition", payload)
	if err != nil {
		return
	}
	if err := n.bus.Publish(ctx, ChannelPost, event); err != nil {
		n.logger.Warn("failed to publish transition event", zap.Error(err))
	}
}

func (n *PostNotifier) NotifySuggestion(ctx context.Context, suggestionID, channelID uuid.UUID, outcome string) {
	if n == nil || n.bus == nil {
		return
	}
	payload := SuggestionEvent{
		SuggestionID: suggestionID.String(),
		ChannelID:    channelID.String(),
		Outcome:      outcome,
	}
	event, err := NewEvent("suggestion", payload)
	if err != nil {
		return
	}
	if err := n.bus.Publish(ctx, ChannelSuggestion, event); err != nil {
		n.logger.Warn("failed to publish suggestion event", zap.Error(err))
	}
}
