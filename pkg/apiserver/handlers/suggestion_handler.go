package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/postline/postline/pkg/apiserver/middleware"
	"github.com/postline/postline/pkg/intake"
	"github.com/postline/postline/pkg/model"
)

type SuggestionHandler struct {
	intake *intake.Service
	logger *zap.Logger
}

func NewSuggestionHandler(svc *intake.Service, logger *zap.Logger) *SuggestionHandler {
	return &SuggestionHandler{intake: svc, logger: logger}
}

type suggestionSubmitRequest struct {
	Title     string `json:"title" binding:"required"`
	BodyText  string `json:"body_text" binding:"required"`
	MediaURL  string `json:"media_url"`
	SourceURL string `json:"source_url"`
}

type suggestionResponse struct {
	ID         string `json:"id"`
	ChannelID  string `json:"channel_id"`
	Title      string `json:"title"`
	BodyText   string `json:"body_text"`
	MediaURL   string `json:"media_url,omitempty"`
	SourceURL  string `json:"source_url,omitempty"`
	SourceHash string `json:"source_hash"`
	CreatedAt  string `json:"created_at"`
}

func mapSuggestion(suggestion *model.Suggestion) suggestionResponse {
	return suggestionResponse{
		ID:         suggestion.ID.String(),
		ChannelID:  suggestion.ChannelID.String(),
		Title:      suggestion.Title,
		BodyText:   suggestion.BodyText,
		MediaURL:   suggestion.MediaURL,
		SourceURL:  suggestion.SourceURL,
		SourceHash: suggestion.SourceHash,
		CreatedAt:  suggestion.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func (h *SuggestionHandler) Submit(c *gin.Context) {
	channelID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid channel id"})
		return
	}
	var req suggestionSubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "details": err.Error()})
		return
	}

	suggestion, err := h.intake.Submit(c.Request.Context(), channelID, intake.SubmitInput{
		Title:     req.Title,
		BodyText:  req.BodyText,
		MediaURL:  req.MediaURL,
		SourceURL: req.SourceURL,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, mapSuggestion(suggestion))
}

func (h *SuggestionHandler) List(c *gin.Context) {
	channelID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid channel id"})
		return
	}
	limit := parseLimit(c.Query("limit"), 20)
	offset := parseOffset(c.Query("offset"))

	suggestions, total, err := h.intake.List(c.Request.Context(), channelID, limit, offset)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	response := make([]suggestionResponse, 0, len(suggestions))
	for i := range suggestions {
		response = append(response, mapSuggestion(&suggestions[i]))
	}
	c.JSON(http.StatusOK, gin.H{"suggestions": response, "total": total})
}

// Accept turns a suggestion into a draft post and removes the
// suggestion in the same transaction.
func (h *SuggestionHandler) Accept(c *gin.Context) {
	suggestionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid suggestion id"})
		return
	}
	post, err := h.intake.Accept(c.Request.Context(), suggestionID, middleware.Actor(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, mapPost(post))
}

func (h *SuggestionHandler) Reject(c *gin.Context) {
	suggestionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid suggestion id"})
		return
	}
	if err := h.intake.Reject(c.Request.Context(), suggestionID, middleware.Actor(c)); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}
