package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/postline/postline/pkg/config"
	"github.com/postline/postline/pkg/gateway"
	"github.com/postline/postline/pkg/model"
	"github.com/postline/postline/pkg/publisher"
	"github.com/postline/postline/pkg/store/postgres"
)

type fakeGateway struct {
	mu        sync.Mutex
	sendCalls int
	sendErr   error
	nextID    int
}

func (f *fakeGateway) Send(ctx context.Context, identifier, text, mediaURL string) (gateway.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sendCalls++
	if f.sendErr != nil {
		return gateway.Result{}, f.sendErr
	}
	f.nextID++
	return gateway.Result{MessageID: strconv.Itoa(f.nextID)}, nil
}

func (f *fakeGateway) Edit(ctx context.Context, identifier, messageID, text, mediaURL string) (gateway.Result, error) {
	return gateway.Result{MessageID: messageID}, nil
}

func (f *fakeGateway) Delete(ctx context.Context, identifier, messageID string) error {
	return nil
}

func (f *fakeGateway) GetViews(ctx context.Context, identifier, messageID string) (int, error) {
	return 0, nil
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	err = db.AutoMigrate(&model.Channel{}, &model.Post{}, &model.PostComment{}, &model.Suggestion{}, &model.AuditLog{})
	if err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

func newTestScheduler(t *testing.T, db *gorm.DB, gw *fakeGateway) *Scheduler {
	t.Helper()
	pub := publisher.New(db, gw, config.PublishConfig{MaxAttempts: 3, RetryDelay: time.Minute}, nil, zap.NewNop())
	return New(db, pub, config.SchedulerConfig{Interval: time.Minute, BatchSize: 10}, nil, zap.NewNop())
}

func seedChannel(t *testing.T, db *gorm.DB) *model.Channel {
	t.Helper()
	channel := &model.Channel{
		ID:                 uuid.New(),
		Title:              "News",
		TelegramIdentifier: "@news",
		IsActive:           true,
	}
	if err := db.Create(channel).Error; err != nil {
		t.Fatalf("failed to seed channel: %v", err)
	}
	return channel
}

func seedPost(t *testing.T, db *gorm.DB, channelID uuid.UUID, status model.PostStatus, scheduledAt *time.Time) *model.Post {
	t.Helper()
	post := &model.Post{
		ID:          uuid.New(),
		ChannelID:   channelID,
		Title:       "Breaking",
		BodyText:    "Something happened.",
		Status:      status,
		ScheduledAt: scheduledAt,
		CreatedBy:   uuid.New(),
		UpdatedBy:   uuid.New(),
	}
	if err := db.Create(post).Error; err != nil {
		t.Fatalf("failed to seed post: %v", err)
	}
	return post
}

func ptr(value time.Time) *time.Time {
	return &value
}

func reload(t *testing.T, db *gorm.DB, id uuid.UUID) *model.Post {
	t.Helper()
	var post model.Post
	if err := db.First(&post, "id = ?", id).Error; err != nil {
		t.Fatalf("failed to reload post: %v", err)
	}
	return &post
}

func TestTickPublishesDuePosts(t *testing.T) {
	db := openTestDB(t)
	gw := &fakeGateway{}
	sched := newTestScheduler(t, db, gw)
	channel := seedChannel(t, db)

	due := seedPost(t, db, channel.ID, model.PostScheduled, ptr(time.Now().UTC().Add(-time.Minute)))
	future := seedPost(t, db, channel.ID, model.PostScheduled, ptr(time.Now().UTC().Add(time.Hour)))
	draft := seedPost(t, db, channel.ID, model.PostDraft, nil)

	sched.Tick(context.Background())

	if got := reload(t, db, due.ID); got.Status != model.PostPublished {
		t.Fatalf("expected due post published, got %s", got.Status)
	}
	if got := reload(t, db, future.ID); got.Status != model.PostScheduled {
		t.Fatalf("future post must stay scheduled, got %s", got.Status)
	}
	if got := reload(t, db, draft.ID); got.Status != model.PostDraft {
		t.Fatalf("draft must be untouched, got %s", got.Status)
	}
	if gw.sendCalls != 1 {
		t.Fatalf("expected 1 gateway call, got %d", gw.sendCalls)
	}
}

func TestTickReschedulesTransientFailure(t *testing.T) {
	db := openTestDB(t)
	gw := &fakeGateway{sendErr: &gateway.DeliveryError{Action: "send", Retryable: true, Err: errors.New("timeout")}}
	sched := newTestScheduler(t, db, gw)
	channel := seedChannel(t, db)

	due := seedPost(t, db, channel.ID, model.PostScheduled, ptr(time.Now().UTC().Add(-time.Minute)))

	sched.Tick(context.Background())

	got := reload(t, db, due.ID)
	if got.Status != model.PostScheduled {
		t.Fatalf("expected post rescheduled, got %s", got.Status)
	}
	if got.PublishAttempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", got.PublishAttempts)
	}
	if got.ScheduledAt == nil || !got.ScheduledAt.After(time.Now().UTC()) {
		t.Fatalf("expected a future retry time, got %v", got.ScheduledAt)
	}
}

// A post rescheduled into the future must not be picked up again by an
// immediately following tick.
func TestTickRespectsRetryDelay(t *testing.T) {
	db := openTestDB(t)
	gw := &fakeGateway{sendErr: &gateway.DeliveryError{Action: "send", Retryable: true, Err: errors.New("timeout")}}
	sched := newTestScheduler(t, db, gw)
	channel := seedChannel(t, db)

	seedPost(t, db, channel.ID, model.PostScheduled, ptr(time.Now().UTC().Add(-time.Minute)))

	sched.Tick(context.Background())
	sched.Tick(context.Background())

	if gw.sendCalls != 1 {
		t.Fatalf("expected 1 gateway call across two ticks, got %d", gw.sendCalls)
	}
}

func TestRequeueFailedPost(t *testing.T) {
	db := openTestDB(t)
	sched := newTestScheduler(t, db, &fakeGateway{})
	channel := seedChannel(t, db)
	post := seedPost(t, db, channel.ID, model.PostFailed, nil)

	requeued, err := sched.Requeue(context.Background(), post.ID, uuid.New(), time.Hour)
	if err != nil {
		t.Fatalf("requeue failed: %v", err)
	}
	if requeued.Status != model.PostScheduled {
		t.Fatalf("expected scheduled, got %s", requeued.Status)
	}
	if requeued.ScheduledAt == nil || requeued.ScheduledAt.Before(time.Now().UTC().Add(50*time.Minute)) {
		t.Fatalf("expected scheduled_at pushed out by the delay, got %v", requeued.ScheduledAt)
	}

	var entry model.AuditLog
	if err := db.First(&entry, "entity_id = ? AND action = ?", post.ID, "requeue").Error; err != nil {
		t.Fatalf("expected requeue audit entry: %v", err)
	}
}

func TestRequeueKeepsAttemptCounter(t *testing.T) {
	db := openTestDB(t)
	sched := newTestScheduler(t, db, &fakeGateway{})
	channel := seedChannel(t, db)
	post := seedPost(t, db, channel.ID, model.PostFailed, nil)
	if err := db.Model(post).Update("publish_attempts", 3).Error; err != nil {
		t.Fatalf("failed to set attempts: %v", err)
	}

	requeued, err := sched.Requeue(context.Background(), post.ID, uuid.New(), 0)
	if err != nil {
		t.Fatalf("requeue failed: %v", err)
	}
	if requeued.PublishAttempts != 3 {
		t.Fatalf("requeue must not reset the attempt counter, got %d", requeued.PublishAttempts)
	}
}

func TestRequeueRejectsOtherStatuses(t *testing.T) {
	db := openTestDB(t)
	sched := newTestScheduler(t, db, &fakeGateway{})
	channel := seedChannel(t, db)

	for _, status := range []model.PostStatus{model.PostDraft, model.PostPending, model.PostApproved, model.PostPublished} {
		post := seedPost(t, db, channel.ID, status, nil)
		_, err := sched.Requeue(context.Background(), post.ID, uuid.New(), 0)
		if !errors.Is(err, model.ErrInvalidTransition) {
			t.Fatalf("requeue from %s: expected ErrInvalidTransition, got %v", status, err)
		}
	}
}

func TestRequeueUnknownPost(t *testing.T) {
	db := openTestDB(t)
	sched := newTestScheduler(t, db, &fakeGateway{})

	_, err := sched.Requeue(context.Background(), uuid.New(), uuid.New(), 0)
	if !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListScheduledFilters(t *testing.T) {
	db := openTestDB(t)
	sched := newTestScheduler(t, db, &fakeGateway{})
	channelA := seedChannel(t, db)
	channelB := &model.Channel{ID: uuid.New(), Title: "Other", TelegramIdentifier: "@other", IsActive: true}
	if err := db.Create(channelB).Error; err != nil {
		t.Fatalf("failed to seed channel: %v", err)
	}

	now := time.Now().UTC()
	seedPost(t, db, channelA.ID, model.PostScheduled, ptr(now.Add(time.Hour)))
	seedPost(t, db, channelA.ID, model.PostScheduled, ptr(now.Add(48*time.Hour)))
	seedPost(t, db, channelB.ID, model.PostScheduled, ptr(now.Add(time.Hour)))
	seedPost(t, db, channelA.ID, model.PostDraft, nil)

	until := now.Add(24 * time.Hour)
	posts, total, err := sched.ListScheduled(context.Background(), postgres.ScheduledFilter{
		ChannelID: &channelA.ID,
		Until:     &until,
	})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if total != 1 || len(posts) != 1 {
		t.Fatalf("expected 1 post within the window, got %d (total %d)", len(posts), total)
	}
}
