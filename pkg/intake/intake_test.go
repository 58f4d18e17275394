package intake

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/postline/postline/pkg/model"
)

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

func TestSubmitSuggestion(t *testing.T) {
	db := openTestDB(t)
	svc := NewService(db, nil, zap.NewNop())
	channel := seedChannel(t, db)

	suggestion, err := svc.Submit(context.Background(), channel.ID, SubmitInput{
		Title:     "Found this",
		BodyText:  "Worth a look",
		SourceURL: "https://example.com/item/1",
	})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if suggestion.SourceHash == "" {
		t.Fatal("expected source hash to be computed")
	}
}

func TestSubmitDuplicateSourceURLConflicts(t *testing.T) {
	db := openTestDB(t)
	svc := NewService(db, nil, zap.NewNop())
	channel := seedChannel(t, db)
	ctx := context.Background()

	in := SubmitInput{Title: "A", BodyText: "B", SourceURL: "https://example.com/item/1"}
	if _, err := svc.Submit(ctx, channel.ID, in); err != nil {
		t.Fatalf("first submit failed: %v", err)
	}

	// Same upstream item, different wording: still a duplicate.
	_, err := svc.Submit(ctx, channel.ID, SubmitInput{
		Title: "Other title", BodyText: "Other body", SourceURL: "https://example.com/item/1",
	})
	if !errors.Is(err, model.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestSubmitDuplicateContentConflicts(t *testing.T) {
	db := openTestDB(t)
	svc := NewService(db, nil, zap.NewNop())
	channel := seedChannel(t, db)
	ctx := context.Background()

	in := SubmitInput{Title: "A", BodyText: "B"}
	if _, err := svc.Submit(ctx, channel.ID, in); err != nil {
		t.Fatalf("first submit failed: %v", err)
	}
	_, err := svc.Submit(ctx, channel.ID, in)
	if !errors.Is(err, model.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestSubmitSameContentDifferentChannels(t *testing.T) {
	db := openTestDB(t)
	svc := NewService(db, nil, zap.NewNop())
	channelA := seedChannel(t, db)
	channelB := &model.Channel{ID: uuid.New(), Title: "Other", TelegramIdentifier: "@other", IsActive: true}
	if err := db.Create(channelB).Error; err != nil {
		t.Fatalf("failed to seed channel: %v", err)
	}
	ctx := context.Background()

	in := SubmitInput{Title: "A", BodyText: "B", SourceURL: "https://example.com/item/1"}
	if _, err := svc.Submit(ctx, channelA.ID, in); err != nil {
		t.Fatalf("submit to first channel failed: %v", err)
	}
	if _, err := svc.Submit(ctx, channelB.ID, in); err != nil {
		t.Fatalf("dedup is per channel, submit to second channel failed: %v", err)
	}
}

func TestSubmitUnknownChannel(t *testing.T) {
	db := openTestDB(t)
	svc := NewService(db, nil, zap.NewNop())

	_, err := svc.Submit(context.Background(), uuid.New(), SubmitInput{Title: "A", BodyText: "B"})
	if !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSubmitValidation(t *testing.T) {
	db := openTestDB(t)
	svc := NewService(db, nil, zap.NewNop())
	channel := seedChannel(t, db)

	var verr *model.ValidationError
	_, err := svc.Submit(context.Background(), channel.ID, SubmitInput{Title: " ", BodyText: ""})
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestAcceptCreatesDraftAndRemovesSuggestion(t *testing.T) {
	db := openTestDB(t)
	svc := NewService(db, nil, zap.NewNop())
	channel := seedChannel(t, db)
	ctx := context.Background()

	suggestion, err := svc.Submit(ctx, channel.ID, SubmitInput{
		Title: "Found this", BodyText: "Worth a look", MediaURL: "https://example.com/pic.jpg",
	})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	actor := uuid.New()
	post, err := svc.Accept(ctx, suggestion.ID, actor)
	if err != nil {
		t.Fatalf("accept failed: %v", err)
	}

	if post.Status != model.PostDraft {
		t.Fatalf("expected draft, got %s", post.Status)
	}
	if post.Title != suggestion.Title || post.BodyText != suggestion.BodyText || post.MediaURL != suggestion.MediaURL {
		t.Fatal("accepted post must carry the suggestion's content")
	}
	if post.CreatedBy != actor {
		t.Fatalf("expected accepting actor as author, got %s", post.CreatedBy)
	}

	var count int64
	db.Model(&model.Suggestion{}).Where("id = ?", suggestion.ID).Count(&count)
	if count != 0 {
		t.Fatal("accepted suggestion must be removed")
	}

	var entry model.AuditLog
	if err := db.First(&entry, "entity_id = ? AND action = ?", suggestion.ID, "accept").Error; err != nil {
		t.Fatalf("expected accept audit entry: %v", err)
	}
	if entry.Payload["post_id"] != post.ID.String() {
		t.Fatalf("expected audit payload to reference the new post, got %v", entry.Payload)
	}
}

func TestAcceptTwiceReportsNotFound(t *testing.T) {
	db := openTestDB(t)
	svc := NewService(db, nil, zap.NewNop())
	channel := seedChannel(t, db)
	ctx := context.Background()

	suggestion, _ := svc.Submit(ctx, channel.ID, SubmitInput{Title: "A", BodyText: "B"})
	if _, err := svc.Accept(ctx, suggestion.ID, uuid.New()); err != nil {
		t.Fatalf("first accept failed: %v", err)
	}
	_, err := svc.Accept(ctx, suggestion.ID, uuid.New())
	if !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second accept, got %v", err)
	}

	var count int64
	db.Model(&model.Post{}).Where("channel_id = ?", channel.ID).Count(&count)
	if count != 1 {
		t.Fatalf("expected exactly one post, got %d", count)
	}
}

func TestRejectRemovesSuggestionWithoutPost(t *testing.T) {
	db := openTestDB(t)
	svc := NewService(db, nil, zap.NewNop())
	channel := seedChannel(t, db)
	ctx := context.Background()

	suggestion, _ := svc.Submit(ctx, channel.ID, SubmitInput{Title: "A", BodyText: "B"})
	if err := svc.Reject(ctx, suggestion.ID, uuid.New()); err != nil {
		t.Fatalf("reject failed: %v", err)
	}

	var count int64
	db.Model(&model.Suggestion{}).Where("id = ?", suggestion.ID).Count(&count)
	if count != 0 {
		t.Fatal("rejected suggestion must be removed")
	}
	db.Model(&model.Post{}).Count(&count)
	if count != 0 {
		t.Fatal("reject must not create a post")
	}
}

func TestResubmitAfterRejectAllowed(t *testing.T) {
	db := openTestDB(t)
	svc := NewService(db, nil, zap.NewNop())
	channel := seedChannel(t, db)
	ctx := context.Background()

	in := SubmitInput{Title: "A", BodyText: "B", SourceURL: "https://example.com/item/1"}
	suggestion, _ := svc.Submit(ctx, channel.ID, in)
	if err := svc.Reject(ctx, suggestion.ID, uuid.New()); err != nil {
		t.Fatalf("reject failed: %v", err)
	}

	if _, err := svc.Submit(ctx, channel.ID, in); err != nil {
		t.Fatalf("resubmission after rejection must pass: %v", err)
	}
}
