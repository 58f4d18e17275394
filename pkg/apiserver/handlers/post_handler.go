package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/postline/postline/pkg/apiserver/middleware"
	"github.com/postline/postline/pkg/lifecycle"
	"github.com/postline/postline/pkg/model"
)

type PostHandler struct {
	posts  *lifecycle.Service
	logger *zap.Logger
}

func NewPostHandler(posts *lifecycle.Service, logger *zap.Logger) *PostHandler {
	return &PostHandler{posts: posts, logger: logger}
}

type postCreateRequest struct {
	Title    string `json:"title" binding:"required"`
	BodyText string `json:"body_text" binding:"required"`
	MediaURL string `json:"media_url"`
}

type postUpdateRequest struct {
	Title    *string `json:"title"`
	BodyText *string `json:"body_text"`
	MediaURL *string `json:"media_url"`
}

type rejectRequest struct {
	Comment string `json:"comment"`
}

type scheduleRequest struct {
	ScheduledAt time.Time `json:"scheduled_at" binding:"required"`
}

type postResponse struct {
	ID                string  `json:"id"`
	ChannelID         string  `json:"channel_id"`
	Title             string  `json:"title"`
	BodyText          string  `json:"body_text"`
	MediaURL          string  `json:"media_url,omitempty"`
	Status            string  `json:"status"`
	ScheduledAt       *string `json:"scheduled_at,omitempty"`
	PublishedAt       *string `json:"published_at,omitempty"`
	ExternalMessageID string  `json:"external_message_id,omitempty"`
	LastKnownViews    *int    `json:"last_known_views,omitempty"`
	PublishAttempts   int     `json:"publish_attempts"`
	LastError         string  `json:"last_error,omitempty"`
	EditorComment     string  `json:"editor_comment,omitempty"`
	CreatedAt         string  `json:"created_at"`
	UpdatedAt         string  `json:"updated_at"`
}

func mapPost(post *model.Post) postResponse {
	return postResponse{
		ID:                post.ID.String(),
		ChannelID:         post.ChannelID.String(),
		Title:             post.Title,
		BodyText:          post.BodyText,
		MediaURL:          post.MediaURL,
		Status:            string(post.Status),
		ScheduledAt:       formatTime(post.ScheduledAt),
		PublishedAt:       formatTime(post.PublishedAt),
		ExternalMessageID: post.ExternalMessageID,
		LastKnownViews:    post.LastKnownViews,
		PublishAttempts:   post.PublishAttempts,
		LastError:         post.LastError,
		EditorComment:     post.EditorComment,
		CreatedAt:         post.CreatedAt.UTC().Format(time.RFC3339Nano),
		UpdatedAt:         post.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func (h *PostHandler) Create(c *gin.Context) {
	channelID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid channel id"})
		return
	}
	var req postCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "details": err.Error()})
		return
	}

	post, err := h.posts.CreatePost(c.Request.Context(), channelID, lifecycle.CreateInput{
		Title:    req.Title,
		BodyText: req.BodyText,
		MediaURL: req.MediaURL,
	}, middleware.Actor(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, mapPost(post))
}

func (h *PostHandler) List(c *gin.Context) {
	channelID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid channel id"})
		return
	}

	var statuses []model.PostStatus
	for _, value := range c.QueryArray("status") {
		status := model.PostStatus(value)
		if !model.IsValidPostStatus(status) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status"})
			return
		}
		statuses = append(statuses, status)
	}

	limit := parseLimit(c.Query("limit"), 20)
	offset := parseOffset(c.Query("offset"))

	posts, total, err := h.posts.ListPosts(c.Request.Context(), channelID, statuses, limit, offset)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	response := make([]postResponse, 0, len(posts))
	for i := range posts {
		response = append(response, mapPost(&posts[i]))
	}
	c.JSON(http.StatusOK, gin.H{"posts": response, "total": total})
}

func (h *PostHandler) Get(c *gin.Context) {
	postID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid post id"})
		return
	}
	post, err := h.posts.GetPost(c.Request.Context(), postID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, mapPost(post))
}

func (h *PostHandler) Update(c *gin.Context) {
	postID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid post id"})
		return
	}
	var req postUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "details": err.Error()})
		return
	}

	post, err := h.posts.UpdatePost(c.Request.Context(), postID, lifecycle.UpdateInput{
		Title:    req.Title,
		BodyText: req.BodyText,
		MediaURL: req.MediaURL,
	}, middleware.Actor(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, mapPost(post))
}

func (h *PostHandler) Delete(c *gin.Context) {
	postID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid post id"})
		return
	}
	if err := h.posts.DeletePost(c.Request.Context(), postID, middleware.Actor(c)); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *PostHandler) transition(c *gin.Context, op func(ctx context.Context, postID, actorID uuid.UUID) (*model.Post, error)) {
	postID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid post id"})
		return
	}
	post, err := op(c.Request.Context(), postID, middleware.Actor(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, mapPost(post))
}

func (h *PostHandler) Submit(c *gin.Context) {
	h.transition(c, h.posts.Submit)
}

func (h *PostHandler) Approve(c *gin.Context) {
	h.transition(c, h.posts.Approve)
}

func (h *PostHandler) Publish(c *gin.Context) {
	h.transition(c, h.posts.PublishNow)
}

func (h *PostHandler) Reject(c *gin.Context) {
	postID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid post id"})
		return
	}
	var req rejectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "details": err.Error()})
		return
	}
	post, err := h.posts.Reject(c.Request.Context(), postID, req.Comment, middleware.Actor(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, mapPost(post))
}

func (h *PostHandler) Schedule(c *gin.Context) {
	postID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid post id"})
		return
	}
	var req scheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "details": err.Error()})
		return
	}
	post, err := h.posts.Schedule(c.Request.Context(), postID, req.ScheduledAt, middleware.Actor(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, mapPost(post))
}

type commentResponse struct {
	ID        string `json:"id"`
	PostID    string `json:"post_id"`
	AuthorID  string `json:"author_id"`
	Kind      string `json:"kind"`
	Body      string `json:"body"`
	CreatedAt string `json:"created_at"`
}

func mapComment(comment *model.PostComment) commentResponse {
	return commentResponse{
		ID:        comment.ID.String(),
		PostID:    comment.PostID.String(),
		AuthorID:  comment.AuthorID.String(),
		Kind:      comment.Kind,
		Body:      comment.BodyText,
		CreatedAt: comment.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func (h *PostHandler) ListComments(c *gin.Context) {
	postID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid post id"})
		return
	}
	limit := parseLimit(c.Query("limit"), 50)
	offset := parseOffset(c.Query("offset"))

	comments, err := h.posts.ListComments(c.Request.Context(), postID, limit, offset)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	response := make([]commentResponse, 0, len(comments))
	for i := range comments {
		response = append(response, mapComment(&comments[i]))
	}
	c.JSON(http.StatusOK, gin.H{"comments": response})
}
