package websocket

import (
	"github.com/stemsi/exstem-proctoring/internal/model"
	"github.com/stemsi/exstem-proctoring/internal/notify"
)

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionPing     Action = "ping"
	ActionSnapshot Action = "snapshot"
)

// RequestEnvelope is used to peek at the action before full parsing.
type RequestEnvelope struct {
	Action Action `json:"action"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventError    Event = "error"
	EventPong     Event = "pong"
	EventSnapshot Event = "snapshot"
	EventFeed     Event = "feed"
)

// SnapshotResponse lists the exam's active sessions. It is sent on connect
// and whenever the supervisor asks for one.
type SnapshotResponse struct {
	Event    Event                     `json:"event"`
	Count    int                       `json:"count"`
	Sessions []model.ProctoringSession `json:"sessions"`
}

// FeedResponse wraps one proctoring event published for the exam.
type FeedResponse struct {
	Event Event        `json:"event"`
	Data  notify.Event `json:"data"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
