package amqp

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"custeio/internal/core"
)

type ackRecorder struct {
	acked    int
	nacked   int
	requeued int
}

func (a *ackRecorder) Ack(tag uint64, multiple bool) error {
	a.acked++
	return nil
}

func (a *ackRecorder) Nack(tag uint64, multiple, requeue bool) error {
	a.nacked++
	if requeue {
		a.requeued++
	}
	return nil
}

func (a *ackRecorder) Reject(tag uint64, requeue bool) error {
	return a.Nack(tag, false, requeue)
}

func delivery(ack *ackRecorder, body string) amqp091.Delivery {
	return amqp091.Delivery{Acknowledger: ack, DeliveryTag: 1, Body: []byte(body)}
}

func TestHandleDelivery(t *testing.T) {
	tests := []struct {
		name         string
		body         string
		handlerErr   error
		wantCalled   bool
		wantAcked    int
		wantNacked   int
		wantRequeued int
	}{
		{
			name:       "success is acked",
			body:       `{"year":2023,"force":true}`,
			wantCalled: true,
			wantAcked:  1,
		},
		{
			name:         "transport failure is requeued",
			body:         `{"year":2023}`,
			handlerErr:   fmt.Errorf("warm 2023: %w", &core.TransportError{Month: core.MonthKey{Year: 2023, Month: 3}, Attempts: 10, Err: errors.New("connection reset")}),
			wantCalled:   true,
			wantNacked:   1,
			wantRequeued: 1,
		},
		{
			name:         "canceled handler is requeued",
			body:         `{"year":2023}`,
			handlerErr:   fmt.Errorf("warm 2023: %w", context.Canceled),
			wantCalled:   true,
			wantNacked:   1,
			wantRequeued: 1,
		},
		{
			name:       "schema mismatch is dropped",
			body:       `{"year":2023}`,
			handlerErr: fmt.Errorf("warm 2023: %w", &core.SchemaMismatchError{Month: core.MonthKey{Year: 2023, Month: 5}, Missing: []string{"valor"}}),
			wantCalled: true,
			wantNacked: 1,
		},
		{
			name:       "malformed value is dropped",
			body:       `{"year":2023}`,
			handlerErr: &core.MalformedValueError{Month: core.MonthKey{Year: 2023, Month: 1}, Row: 4, Column: "valor", Value: "abc"},
			wantCalled: true,
			wantNacked: 1,
		},
		{
			name:       "unclassified failure is dropped",
			body:       `{"year":2023}`,
			handlerErr: errors.New("boom"),
			wantCalled: true,
			wantNacked: 1,
		},
		{
			name:       "malformed json is dropped",
			body:       `{"year":"soon"}`,
			wantNacked: 1,
		},
		{
			name:       "invalid year is dropped",
			body:       `{"year":23}`,
			wantNacked: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ack := &ackRecorder{}
			var got *WarmRequestMessage
			handler := func(ctx context.Context, msg *WarmRequestMessage) error {
				got = msg
				return tt.handlerErr
			}

			handleDelivery(context.Background(), delivery(ack, tt.body), handler)

			if (got != nil) != tt.wantCalled {
				t.Fatalf("handler called = %v, want %v", got != nil, tt.wantCalled)
			}
			if ack.acked != tt.wantAcked || ack.nacked != tt.wantNacked || ack.requeued != tt.wantRequeued {
				t.Errorf("acks = %+v, want acked=%d nacked=%d requeued=%d",
					*ack, tt.wantAcked, tt.wantNacked, tt.wantRequeued)
			}
		})
	}
}

func TestHandleDeliveryPassesMessage(t *testing.T) {
	ack := &ackRecorder{}
	var got WarmRequestMessage
	handleDelivery(context.Background(), delivery(ack, `{"year":2022,"force":true}`), func(ctx context.Context, msg *WarmRequestMessage) error {
		got = *msg
		return nil
	})
	if got.Year != 2022 || !got.Force {
		t.Errorf("handler got %+v", got)
	}
}

func TestNewWarmRequestMessage(t *testing.T) {
	msg := NewWarmRequestMessage(2023, true)

	if msg.Year != 2023 || !msg.Force {
		t.Errorf("NewWarmRequestMessage() = %+v", msg)
	}
	if msg.RequestedAt.IsZero() || time.Since(msg.RequestedAt) > time.Second {
		t.Error("NewWarmRequestMessage() RequestedAt should be recent")
	}
	if err := msg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestWarmRequestMessage_JSON(t *testing.T) {
	at := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	msg := &WarmRequestMessage{Year: 2021, Force: false, RequestedAt: at}

	data, err := msg.ToJSON()
	if err != nil {
		t.Fatalf("ToJSON() error = %v", err)
	}
	parsed, err := WarmRequestMessageFromJSON(data)
	if err != nil {
		t.Fatalf("WarmRequestMessageFromJSON() error = %v", err)
	}
	if parsed.Year != 2021 || parsed.Force || !parsed.RequestedAt.Equal(at) {
		t.Errorf("parsed = %+v", parsed)
	}
}

func TestWarmRequestMessage_InvalidYear(t *testing.T) {
	for _, year := range []int{0, 999, 10000} {
		if err := (&WarmRequestMessage{Year: year}).Validate(); err == nil {
			t.Errorf("Validate() year %d should fail", year)
		}
	}
}
