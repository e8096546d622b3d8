package notify

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (s *recordingSink) Publish(_ context.Context, e Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events = append(s.events, e)

	return s.err
}

func TestDispatcher_DeliversAfterRequestEnds(t *testing.T) {
	sink := &recordingSink{}
	d := NewDispatcher(sink, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	d.Notify(ctx, Event{Type: EventPaymentConfirmed, SettlementID: uuid.New()})
	cancel()

	d.Wait()

	require.Len(t, sink.events, 1)
	assert.Equal(t, EventPaymentConfirmed, sink.events[0].Type)
	assert.False(t, sink.events[0].OccurredAt.IsZero())
}

func TestDispatcher_SwallowsSinkErrors(t *testing.T) {
	sink := &recordingSink{err: errors.New("broker down")}
	d := NewDispatcher(sink, 0)

	assert.NotPanics(t, func() {
		d.Notify(context.Background(), Event{Type: EventSettlementOverdue})
		d.Wait()
	})
	assert.Len(t, sink.events, 1)
}

type fakeWriter struct {
	msgs []kafka.Message
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func TestKafkaSink_Publish(t *testing.T) {
	w := &fakeWriter{}
	sink := newKafkaSink(w, "settlement-events")

	id := uuid.New()
	err := sink.Publish(context.Background(), Event{
		Type:         EventPaymentRejected,
		GroupID:      "g1",
		SettlementID: id,
		Reason:       "not received",
	})
	require.NoError(t, err)

	require.Len(t, w.msgs, 1)
	msg := w.msgs[0]
	assert.Equal(t, "settlement-events", msg.Topic)
	assert.Equal(t, id.String(), string(msg.Key))
	assert.Equal(t, "payment.rejected", string(msg.Headers[0].Value))

	var decoded Event
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, "not received", decoded.Reason)
	assert.Equal(t, "g1", decoded.GroupID)
}

func TestNewKafkaSink_Validation(t *testing.T) {
	_, err := NewKafkaSink(nil, "t")
	assert.Error(t, err)

	_, err = NewKafkaSink([]string{"localhost:9092"}, "")
	assert.Error(t, err)
}
