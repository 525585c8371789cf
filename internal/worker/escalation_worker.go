package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctoring/internal/config"
	"github.com/stemsi/exstem-proctoring/internal/notify"
)

const (
	PollTimeout    = 1 * time.Second // Must be >= 1s to satisfy Redis
	DeliverTimeout = 30 * time.Second
	MaxInFlight    = 16
)

// EscalationNotifier is the delivery side of an escalation.
type EscalationNotifier interface {
	Notify(ctx context.Context, esc notify.Escalation)
}

// EscalationWorker drains the escalation queue and hands each job to the
// notifier. Delivery is at-most-once: a job that fails is logged, never requeued.
type EscalationWorker struct {
	rdb      *redis.Client
	notifier EscalationNotifier
	log      zerolog.Logger
}

// NewEscalationWorker creates a new EscalationWorker.
func NewEscalationWorker(rdb *redis.Client, notifier EscalationNotifier, log zerolog.Logger) *EscalationWorker {
	return &EscalationWorker{
		rdb:      rdb,
		notifier: notifier,
		log:      log.With().Str("component", "escalation_worker").Logger(),
	}
}

// Start blocks until ctx is cancelled, then waits for in-flight deliveries.
func (w *EscalationWorker) Start(ctx context.Context) {
	w.log.Info().Msg("EscalationWorker started")

	var wg sync.WaitGroup
	slots := make(chan struct{}, MaxInFlight)

	for {
		// 1. Check Context (Graceful Shutdown)
		select {
		case <-ctx.Done():
			w.shutdown(&wg)
			return
		default:
		}

		// 2. Fetch from Redis. BLPop blocks for PollTimeout when the queue is empty.
		result, err := w.rdb.BLPop(ctx, PollTimeout, config.WorkerKey.EscalationQueue).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				w.shutdown(&wg)
				return
			}
			w.log.Error().Err(err).Msg("Redis connection error, sleeping 3s")
			time.Sleep(3 * time.Second)
			continue
		}

		if len(result) < 2 {
			continue
		}

		esc, ok := w.decode(result[1])
		if !ok {
			continue
		}

		// 3. Deliver without blocking the poll loop; bounded by slots.
		slots <- struct{}{}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-slots }()
			w.deliver(esc)
		}()
	}
}

func (w *EscalationWorker) decode(raw string) (notify.Escalation, bool) {
	var esc notify.Escalation
	if err := json.Unmarshal([]byte(raw), &esc); err != nil {
		// Malformed JSON can never succeed. Log and discard.
		w.log.Error().Err(err).Str("data", raw).Msg("Discarding malformed escalation")
		return esc, false
	}
	if esc.SessionID == "" {
		w.log.Error().Str("data", raw).Msg("Discarding escalation without session id")
		return esc, false
	}
	return esc, true
}

func (w *EscalationWorker) deliver(esc notify.Escalation) {
	// Detached from the poll context so shutdown lets in-flight mail finish.
	ctx, cancel := context.WithTimeout(context.Background(), DeliverTimeout)
	defer cancel()

	if lag := time.Since(esc.RaisedAt); !esc.RaisedAt.IsZero() && lag > time.Minute {
		w.log.Warn().Dur("lag", lag).Str("session_id", esc.SessionID).Msg("Delivering stale escalation")
	}
	w.notifier.Notify(ctx, esc)
}

func (w *EscalationWorker) shutdown(wg *sync.WaitGroup) {
	w.log.Info().Msg("Worker stopping, waiting for in-flight escalations...")
	wg.Wait()
	w.log.Info().Msg("EscalationWorker stopped")
}
