package lifecycle

import (
	"fmt"

	"github.com/postline/postline/pkg/model"
)

// The post lifecycle:
//
//	draft -> pending -> approved -> scheduled -> published
//	         pending -> rejected -> pending (resubmit)
//	         scheduled -> failed -> scheduled (manual requeue)
//
// Content is editable only in draft and rejected. Published and failed
// are reached exclusively through the publisher.

func canSubmit(s model.PostStatus) bool {
	return s == model.PostDraft || s == model.PostRejected
}

// promotionChain returns the intermediate statuses a post passes
// through before it can be scheduled or published now. Privileged
// callers may schedule straight from draft; each hop is still recorded
// as its own transition.
func promotionChain(s model.PostStatus) ([]model.PostStatus, error) {
	switch s {
	case model.PostDraft, model.PostRejected:
		return []model.PostStatus{model.PostPending, model.PostApproved}, nil
	case model.PostPending:
		return []model.PostStatus{model.PostApproved}, nil
	case model.PostApproved, model.PostScheduled:
		return nil, nil
	default:
		return nil, invalidTransition(s, "schedule")
	}
}

func invalidTransition(s model.PostStatus, op string) error {
	return fmt.Errorf("cannot %s a %s post: %w", op, s, model.ErrInvalidTransition)
}
