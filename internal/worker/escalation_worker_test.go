package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctoring/internal/notify"
)

type recordingNotifier struct {
	mu   sync.Mutex
	got  []notify.Escalation
	ctxs []context.Context
}

func (n *recordingNotifier) Notify(ctx context.Context, esc notify.Escalation) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.got = append(n.got, esc)
	n.ctxs = append(n.ctxs, ctx)
}

func TestDecode(t *testing.T) {
	w := NewEscalationWorker(nil, &recordingNotifier{}, zerolog.Nop())

	tests := []struct {
		name string
		raw  string
		ok   bool
	}{
		{"valid", `{"sessionId":"sess-1","examId":"0b7c2c64-6a3f-4c1e-9a57-1f6f8c1e2d3a","studentId":7,"warningCount":5}`, true},
		{"malformed json", `{"sessionId":`, false},
		{"missing session id", `{"studentId":7,"warningCount":5}`, false},
		{"bad exam uuid", `{"sessionId":"s","examId":"not-a-uuid"}`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			esc, ok := w.decode(tt.raw)
			if ok != tt.ok {
				t.Fatalf("decode(%s) ok = %v, want %v", tt.raw, ok, tt.ok)
			}
			if ok && (esc.SessionID != "sess-1" || esc.WarningCount != 5) {
				t.Fatalf("unexpected payload %+v", esc)
			}
		})
	}
}

func TestDeliverUsesDetachedDeadline(t *testing.T) {
	n := &recordingNotifier{}
	w := NewEscalationWorker(nil, n, zerolog.Nop())

	w.deliver(notify.Escalation{SessionID: "sess-1", RaisedAt: time.Now().Add(-2 * time.Minute)})

	if len(n.got) != 1 || n.got[0].SessionID != "sess-1" {
		t.Fatalf("notifier not called: %+v", n.got)
	}
	deadline, ok := n.ctxs[0].Deadline()
	if !ok || time.Until(deadline) > DeliverTimeout {
		t.Fatalf("expected a delivery deadline within %s, got %v (set=%v)", DeliverTimeout, deadline, ok)
	}
}
