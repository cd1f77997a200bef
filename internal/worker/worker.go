package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/torim-app/torim/internal/model"
	"github.com/torim-app/torim/internal/observability/metrics"
	"github.com/torim-app/torim/internal/timeutil"
)

const (
	// MaxAttempts is the retry cap; the failure that brings attempts to
	// this value finalizes the record as error.
	MaxAttempts = 5

	// LeaseDuration bounds one processing claim. A worker that dies
	// mid-delivery loses the record to the next tick after this long.
	LeaseDuration = time.Minute

	// TickSpec drives the polling loop (seconds-resolution cron).
	TickSpec = "*/30 * * * * *"

	DefaultBatchSize   = 10
	DefaultSendTimeout = 30 * time.Second
)

// Backoff returns the requeue delay after the given failure count:
// 2, 4, 8, 16, 32 minutes for attempts 1..5.
func Backoff(attempts int) time.Duration {
	return time.Duration(1<<attempts) * time.Minute
}

// Sender delivers one message over the external channel. Errors are
// treated as retryable.
type Sender interface {
	Send(ctx context.Context, to, text string) error
}

// Queue is the worker's view of the notification queue.
type Queue interface {
	FetchDue(ctx context.Context, now time.Time, limit int) ([]model.NotificationRecord, error)
	Claim(ctx context.Context, id string, now, leaseUntil time.Time) (bool, error)
	MarkSent(ctx context.Context, id string, sentAt time.Time) error
	MarkFailed(ctx context.Context, id string, attempts int, terminal bool, nextSendAt time.Time, errMsg string) error
}

// EventSink receives terminal delivery outcomes (outbox events). Optional.
type EventSink interface {
	NotificationSent(ctx context.Context, rec model.NotificationRecord, sentAt time.Time) error
	NotificationFailed(ctx context.Context, rec model.NotificationRecord, reason string, terminal bool) error
}

// Worker leases due queue records, attempts delivery, and applies the
// success/failure transitions. It never touches the request path.
type Worker struct {
	queue       Queue
	sender      Sender
	events      EventSink
	logger      *slog.Logger
	clock       timeutil.Clock
	metrics     *metrics.QueueMetrics
	batchSize   int
	sendTimeout time.Duration
}

type Config struct {
	BatchSize   int
	SendTimeout time.Duration
	Clock       timeutil.Clock
	Events      EventSink
	Metrics     *metrics.QueueMetrics
}

func New(queue Queue, sender Sender, logger *slog.Logger, cfg Config) *Worker {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = DefaultSendTimeout
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.SystemClock()
	}
	return &Worker{
		queue:       queue,
		sender:      sender,
		events:      cfg.Events,
		logger:      logger,
		clock:       cfg.Clock,
		metrics:     cfg.Metrics,
		batchSize:   cfg.BatchSize,
		sendTimeout: cfg.SendTimeout,
	}
}

// Run blocks until ctx is cancelled, ticking every 30 seconds.
func (w *Worker) Run(ctx context.Context) {
	c := cron.New(cron.WithSeconds())
	_, err := c.AddFunc(TickSpec, func() {
		w.Tick(ctx)
	})
	if err != nil {
		w.logger.Error("worker schedule invalid", "err", err)
		return
	}
	c.Start()
	<-ctx.Done()
	stopped := c.Stop()
	<-stopped.Done()
}

// Tick processes one batch of due records. A failing due-query is logged
// and skipped, never fatal; the next tick retries.
func (w *Worker) Tick(ctx context.Context) {
	now := w.clock.Now()
	due, err := w.queue.FetchDue(ctx, now, w.batchSize)
	if err != nil {
		w.logger.Error("queue scan failed, skipping tick", "err", err)
		w.metrics.ObserveTick("error")
		return
	}
	w.metrics.ObserveTick("ok")

	for _, rec := range due {
		w.process(ctx, rec)
	}
}

func (w *Worker) process(ctx context.Context, rec model.NotificationRecord) {
	now := w.clock.Now()
	claimed, err := w.queue.Claim(ctx, rec.ID, now, now.Add(LeaseDuration))
	if err != nil {
		w.logger.Error("lease claim failed", "id", rec.ID, "err", err)
		return
	}
	if !claimed {
		// Another worker won the record, or it changed underneath us.
		w.metrics.ObserveClaimSkipped()
		return
	}

	start := time.Now()
	sendCtx, cancel := context.WithTimeout(ctx, w.sendTimeout)
	sendErr := w.sender.Send(sendCtx, rec.To, rec.Payload.MessageText)
	cancel()
	elapsed := time.Since(start).Seconds()

	if sendErr == nil {
		sentAt := w.clock.Now()
		if err := w.queue.MarkSent(ctx, rec.ID, sentAt); err != nil {
			w.logger.Error("mark sent failed", "id", rec.ID, "err", err)
			return
		}
		w.metrics.ObserveDelivery("sent", elapsed)
		w.logger.Info("notification sent", "id", rec.ID, "type", rec.Type, "to", rec.To)
		if w.events != nil {
			if err := w.events.NotificationSent(ctx, rec, sentAt); err != nil {
				w.logger.Error("sent event enqueue failed", "id", rec.ID, "err", err)
			}
		}
		return
	}

	attempts := rec.Attempts + 1
	terminal := attempts >= MaxAttempts
	nextSendAt := w.clock.Now().Add(Backoff(attempts))
	if err := w.queue.MarkFailed(ctx, rec.ID, attempts, terminal, nextSendAt, sendErr.Error()); err != nil {
		w.logger.Error("mark failed failed", "id", rec.ID, "err", err)
		return
	}
	outcome := "retried"
	if terminal {
		outcome = "error"
	}
	w.metrics.ObserveDelivery(outcome, elapsed)
	w.logger.Warn("notification delivery failed",
		"id", rec.ID, "attempts", attempts, "terminal", terminal, "err", sendErr)
	if w.events != nil {
		if err := w.events.NotificationFailed(ctx, rec, sendErr.Error(), terminal); err != nil {
			w.logger.Error("failed event enqueue failed", "id", rec.ID, "err", err)
		}
	}
}
