package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/postline/postline/pkg/apiserver/middleware"
	"github.com/postline/postline/pkg/scheduler"
	"github.com/postline/postline/pkg/store/postgres"
)

type ScheduleHandler struct {
	sched  *scheduler.Scheduler
	logger *zap.Logger
}

func NewScheduleHandler(sched *scheduler.Scheduler, logger *zap.Logger) *ScheduleHandler {
	return &ScheduleHandler{sched: sched, logger: logger}
}

type requeueRequest struct {
	DelaySeconds int `json:"delay_seconds"`
}

// ListScheduled returns the upcoming publication queue, optionally
// narrowed to a channel or a time window.
func (h *ScheduleHandler) ListScheduled(c *gin.Context) {
	filter := postgres.ScheduledFilter{
		Limit:  parseLimit(c.Query("limit"), 50),
		Offset: parseOffset(c.Query("offset")),
	}
	if raw := c.Query("channel_id"); raw != "" {
		channelID, err := uuid.Parse(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid channel id"})
			return
		}
		filter.ChannelID = &channelID
	}
	if raw := c.Query("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid since timestamp"})
			return
		}
		filter.Since = &since
	}
	if raw := c.Query("until"); raw != "" {
		until, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid until timestamp"})
			return
		}
		filter.Until = &until
	}

	posts, total, err := h.sched.ListScheduled(c.Request.Context(), filter)
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

// Requeue puts a failed post back into the scheduled queue. A zero
// delay republishes on the next scheduler tick.
func (h *ScheduleHandler) Requeue(c *gin.Context) {
	postID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid post id"})
		return
	}
	var req requeueRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "details": err.Error()})
			return
		}
	}
	if req.DelaySeconds < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "delay_seconds must not be negative"})
		return
	}

	post, err := h.sched.Requeue(c.Request.Context(), postID, middleware.Actor(c), time.Duration(req.DelaySeconds)*time.Second)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, mapPost(post))
}
