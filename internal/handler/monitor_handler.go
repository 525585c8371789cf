package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctoring/internal/notify"
	"github.com/stemsi/exstem-proctoring/internal/response"
	"github.com/stemsi/exstem-proctoring/internal/service"
)

const (
	refreshInterval   = 15 * time.Second
	keepAliveInterval = 30 * time.Second
	refreshTimeout    = 5 * time.Second
)

// FeedSource opens a live event feed for one exam.
type FeedSource interface {
	Subscribe(ctx context.Context, examID uuid.UUID) (*notify.Subscription, error)
}

// MonitorHandler streams an exam's proctoring activity to supervisors over SSE.
type MonitorHandler struct {
	feeds             FeedSource
	proctoringService *service.ProctoringService
	log               zerolog.Logger
}

// NewMonitorHandler creates a new MonitorHandler.
func NewMonitorHandler(feeds FeedSource, proctoringService *service.ProctoringService, log zerolog.Logger) *MonitorHandler {
	return &MonitorHandler{
		feeds:             feeds,
		proctoringService: proctoringService,
		log:               log.With().Str("component", "monitor_handler").Logger(),
	}
}

// MonitorExamSSE godoc
// GET /api/v1/admin/proctoring/exams/:exam_id/feed
// Sends a snapshot of the exam's active sessions, then every escalation and
// session lifecycle event as it happens. The snapshot is refreshed
// periodically while events keep arriving.
func (h *MonitorHandler) MonitorExamSSE(c *gin.Context) {
	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	reqCtx := c.Request.Context()

	sessions, err := h.proctoringService.ExamSnapshot(reqCtx, examID)
	if err != nil {
		failWith(c, h.log, err)
		return
	}

	sub, err := h.feeds.Subscribe(reqCtx, examID)
	if err != nil {
		failWith(c, h.log, err)
		return
	}
	defer sub.Close()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")

	h.writeEvent(c, gin.H{"type": "snapshot", "count": len(sessions), "sessions": sessions})

	keepAliveTicker := time.NewTicker(keepAliveInterval)
	defer keepAliveTicker.Stop()

	refreshTicker := time.NewTicker(refreshInterval)
	defer refreshTicker.Stop()

	// Skip refreshes while the exam is quiet.
	dirty := false

	examLog := h.log.With().Str("exam_id", examID.String()).Logger()
	examLog.Info().Msg("Supervisor attached to proctoring feed")

	pingPayload, _ := json.Marshal(map[string]string{"type": "ping"})

	for {
		select {
		case <-reqCtx.Done():
			examLog.Info().Msg("Supervisor detached from proctoring feed")
			return

		case ev, ok := <-sub.C:
			if !ok {
				examLog.Warn().Msg("Proctoring feed closed")
				return
			}
			h.writeEvent(c, gin.H{"type": ev.Kind, "data": ev})
			dirty = true

		case <-refreshTicker.C:
			if !dirty {
				continue
			}
			dirty = false
			h.sendRefresh(c, reqCtx, examID)

		case <-keepAliveTicker.C:
			h.writeRaw(c, pingPayload)
		}
	}
}

func (h *MonitorHandler) sendRefresh(c *gin.Context, parentCtx context.Context, examID uuid.UUID) {
	ctx, cancel := context.WithTimeout(parentCtx, refreshTimeout)
	defer cancel()

	sessions, err := h.proctoringService.ExamSnapshot(ctx, examID)
	if err != nil {
		h.log.Warn().Err(err).Str("exam_id", examID.String()).Msg("Failed to refresh proctoring snapshot")
		return
	}
	h.writeEvent(c, gin.H{"type": "refresh", "count": len(sessions), "sessions": sessions})
}

func (h *MonitorHandler) writeEvent(c *gin.Context, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to encode feed event")
		return
	}
	h.writeRaw(c, data)
}

func (h *MonitorHandler) writeRaw(c *gin.Context, data []byte) {
	c.Writer.Write([]byte("data: "))
	c.Writer.Write(data)
	c.Writer.Write([]byte("\n\n"))
	c.Writer.Flush()
}
