// Package notify publishes settlement events without making callers wait.
package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/splitledger/internal/metrics"
)

type EventType string

const (
	EventSettlementCreated   EventType = "settlement.created"
	EventPaymentClaimed      EventType = "payment.claimed"
	EventPaymentConfirmed    EventType = "payment.confirmed"
	EventPaymentRejected     EventType = "payment.rejected"
	EventPaymentCancelled    EventType = "payment.cancelled"
	EventSettlementCompleted EventType = "settlement.completed"
	EventForceSettled        EventType = "settlement.force_settled"
	EventSettlementOverdue   EventType = "settlement.overdue"
)

type Event struct {
	Type         EventType  `json:"type"`
	GroupID      string     `json:"group_id"`
	SettlementID uuid.UUID  `json:"settlement_id"`
	PaymentID    *uuid.UUID `json:"payment_id,omitempty"`
	Actor        string     `json:"actor,omitempty"`
	// Recipients are the users the event is addressed to.
	Recipients []string  `json:"recipients,omitempty"`
	Amount     int64     `json:"amount,omitempty"`
	Remaining  int64     `json:"remaining"`
	Status     string    `json:"status,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

type Sink interface {
	Publish(ctx context.Context, e Event) error
}

// Dispatcher hands events to a Sink on a separate goroutine. Publishing
// failures are logged and counted, never returned.
type Dispatcher struct {
	sink    Sink
	timeout time.Duration
	wg      sync.WaitGroup
}

func NewDispatcher(sink Sink, timeout time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	return &Dispatcher{sink: sink, timeout: timeout}
}

// Notify returns immediately. The request context's values are kept but its
// cancellation is not, so a finished request does not abort delivery.
func (d *Dispatcher) Notify(ctx context.Context, e Event) {
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}

	d.wg.Add(1)

	go func() {
		defer d.wg.Done()

		pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
		defer cancel()

		if err := d.sink.Publish(pubCtx, e); err != nil {
			metrics.Notifications.WithLabelValues(string(e.Type), "error").Inc()
			slog.Warn("failed to publish event", "type", e.Type, "settlement_id", e.SettlementID, "error", err)

			return
		}

		metrics.Notifications.WithLabelValues(string(e.Type), "ok").Inc()
	}()
}

// Wait blocks until every dispatched event has been handled.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// LogSink writes events to the structured log.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}

	return &LogSink{logger: logger}
}

func (s *LogSink) Publish(ctx context.Context, e Event) error {
	s.logger.InfoContext(ctx, "settlement event",
		"type", e.Type,
		"group_id", e.GroupID,
		"settlement_id", e.SettlementID,
		"actor", e.Actor,
		"amount", e.Amount,
		"remaining", e.Remaining,
		"status", e.Status,
	)

	return nil
}
