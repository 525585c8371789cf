package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctoring/internal/response"
	"github.com/stemsi/exstem-proctoring/internal/service"
	ws "github.com/stemsi/exstem-proctoring/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler streams an exam's proctoring feed to supervisors over WebSocket.
type WSHandler struct {
	feeds             FeedSource
	proctoringService *service.ProctoringService
	log               zerolog.Logger
	upgrader          websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(feeds FeedSource, proctoringService *service.ProctoringService, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		feeds:             feeds,
		proctoringService: proctoringService,
		log:               log.With().Str("component", "ws_handler").Logger(),
		upgrader:          buildUpgrader(allowedOrigins),
	}
}

// ProctoringFeed godoc
// WS /ws/v1/admin/proctoring/exams/:exam_id
// Sends a snapshot on connect, then every feed event. The client may send
// {"action":"ping"} or {"action":"snapshot"}.
func (h *WSHandler) ProctoringFeed(c *gin.Context) {
	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	// Reject unknown exams before the upgrade so the client gets a status code.
	sessions, err := h.proctoringService.ExamSnapshot(c.Request.Context(), examID)
	if err != nil {
		failWith(c, h.log, err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	sub, err := h.feeds.Subscribe(ctx, examID)
	if err != nil {
		h.log.Error().Err(err).Str("exam_id", examID.String()).Msg("Feed subscribe failed")
		ws.WriteError(conn, "feed unavailable")
		return
	}
	defer sub.Close()

	wsLog := h.log.With().Str("exam_id", examID.String()).Logger()
	wsLog.Info().Msg("Supervisor connected")

	if err := ws.WriteTyped(conn, ws.SnapshotResponse{Event: ws.EventSnapshot, Count: len(sessions), Sessions: sessions}); err != nil {
		return
	}

	// gorilla allows one concurrent reader and one writer: the reader
	// goroutine only forwards actions, all writes happen below.
	actions := make(chan ws.Action, 4)
	go func() {
		defer cancel()
		defer close(actions)
		ws.KeepAlive(conn)
		for {
			var msg ws.RequestEnvelope
			if err := ws.ReadJSON(conn, &msg); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					wsLog.Warn().Err(err).Msg("Unexpected close")
				} else {
					wsLog.Debug().Msg("Connection closed")
				}
				return
			}
			select {
			case actions <- msg.Action:
			case <-ctx.Done():
				return
			}
		}
	}()

	pingTicker := time.NewTicker(ws.PingPeriod)
	defer pingTicker.Stop()

	for {
		var err error
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-sub.C:
			if !ok {
				return
			}
			err = ws.WriteTyped(conn, ws.FeedResponse{Event: ws.EventFeed, Data: ev})

		case action, ok := <-actions:
			if !ok {
				return
			}
			err = h.handleAction(ctx, conn, examID, action)

		case <-pingTicker.C:
			err = ws.WritePing(conn)
		}
		if err != nil {
			wsLog.Debug().Err(err).Msg("Write failed, closing")
			return
		}
	}
}

func (h *WSHandler) handleAction(ctx context.Context, conn *websocket.Conn, examID uuid.UUID, action ws.Action) error {
	switch action {
	case ws.ActionPing:
		return ws.WriteTyped(conn, ws.PongResponse{Event: ws.EventPong})
	case ws.ActionSnapshot:
		sessions, err := h.proctoringService.ExamSnapshot(ctx, examID)
		if err != nil {
			h.log.Warn().Err(err).Str("exam_id", examID.String()).Msg("Snapshot failed")
			return ws.WriteError(conn, "snapshot failed")
		}
		return ws.WriteTyped(conn, ws.SnapshotResponse{Event: ws.EventSnapshot, Count: len(sessions), Sessions: sessions})
	default:
		return ws.WriteError(conn, "unknown action: "+string(action))
	}
}
