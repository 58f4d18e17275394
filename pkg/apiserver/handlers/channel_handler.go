package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/postline/postline/pkg/model"
	"github.com/postline/postline/pkg/store/postgres"
)

type ChannelHandler struct {
	channels *postgres.ChannelRepository
	logger   *zap.Logger
}

func NewChannelHandler(channels *postgres.ChannelRepository, logger *zap.Logger) *ChannelHandler {
	return &ChannelHandler{channels: channels, logger: logger}
}

type channelCreateRequest struct {
	Title              string `json:"title" binding:"required"`
	TelegramIdentifier string `json:"telegram_identifier" binding:"required"`
	AvatarURL          string `json:"avatar_url"`
}

type channelResponse struct {
	ID                 string `json:"id"`
	Title              string `json:"title"`
	TelegramIdentifier string `json:"telegram_identifier"`
	IsActive           bool   `json:"is_active"`
	AvatarURL          string `json:"avatar_url,omitempty"`
	CreatedAt          string `json:"created_at"`
}

func mapChannel(channel *model.Channel) channelResponse {
	return channelResponse{
		ID:                 channel.ID.String(),
		Title:              channel.Title,
		TelegramIdentifier: channel.TelegramIdentifier,
		IsActive:           channel.IsActive,
		AvatarURL:          channel.AvatarURL,
		CreatedAt:          channel.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func (h *ChannelHandler) Create(c *gin.Context) {
	var req channelCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "details": err.Error()})
		return
	}

	channel := &model.Channel{
		ID:                 uuid.New(),
		Title:              req.Title,
		TelegramIdentifier: req.TelegramIdentifier,
		IsActive:           true,
		AvatarURL:          req.AvatarURL,
	}
	if err := h.channels.Create(c.Request.Context(), channel); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			c.JSON(http.StatusConflict, gin.H{"error": "channel already registered"})
			return
		}
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, mapChannel(channel))
}

func (h *ChannelHandler) Get(c *gin.Context) {
	channelID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid channel id"})
		return
	}
	channel, err := h.channels.GetByID(c.Request.Context(), channelID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "channel not found"})
			return
		}
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, mapChannel(channel))
}

func (h *ChannelHandler) List(c *gin.Context) {
	limit := parseLimit(c.Query("limit"), 20)
	offset := parseOffset(c.Query("offset"))

	channels, total, err := h.channels.List(c.Request.Context(), limit, offset)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	response := make([]channelResponse, 0, len(channels))
	for i := range channels {
		response = append(response, mapChannel(&channels[i]))
	}
	c.JSON(http.StatusOK, gin.H{"channels": response, "total": total})
}
