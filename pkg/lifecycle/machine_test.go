package lifecycle

import (
	"errors"
	"testing"

	"github.com/postline/postline/pkg/model"
)

func TestCanSubmit(t *testing.T) {
	cases := []struct {
		status model.PostStatus
		want   bool
	}{
		{model.PostDraft, true},
		{model.PostRejected, true},
		{model.PostPending, false},
		{model.PostApproved, false},
		{model.PostScheduled, false},
		{model.PostPublished, false},
		{model.PostFailed, false},
	}
	for _, tc := range cases {
		if got := canSubmit(tc.status); got != tc.want {
			t.Errorf("canSubmit(%s) = %v, want %v", tc.status, got, tc.want)
		}
	}
}

func TestPromotionChain(t *testing.T) {
	cases := []struct {
		status model.PostStatus
		chain  []model.PostStatus
		ok     bool
	}{
		{model.PostDraft, []model.PostStatus{model.PostPending, model.PostApproved}, true},
		{model.PostRejected, []model.PostStatus{model.PostPending, model.PostApproved}, true},
		{model.PostPending, []model.PostStatus{model.PostApproved}, true},
		{model.PostApproved, nil, true},
		{model.PostScheduled, nil, true},
		{model.PostPublished, nil, false},
		{model.PostFailed, nil, false},
	}
	for _, tc := range cases {
		chain, err := promotionChain(tc.status)
		if tc.ok != (err == nil) {
			t.Errorf("promotionChain(%s) error = %v, want ok=%v", tc.status, err, tc.ok)
			continue
		}
		if err != nil {
			if !errors.Is(err, model.ErrInvalidTransition) {
				t.Errorf("promotionChain(%s) error = %v, want ErrInvalidTransition", tc.status, err)
			}
			continue
		}
		if len(chain) != len(tc.chain) {
			t.Errorf("promotionChain(%s) = %v, want %v", tc.status, chain, tc.chain)
			continue
		}
		for i := range chain {
			if chain[i] != tc.chain[i] {
				t.Errorf("promotionChain(%s) = %v, want %v", tc.status, chain, tc.chain)
				break
			}
		}
	}
}
