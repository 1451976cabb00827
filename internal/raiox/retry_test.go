package raiox

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/sethvargo/go-retry"
)

func TestPolicyDelays(t *testing.T) {
	cases := []struct {
		p    Policy
		want []time.Duration
	}{
		{Policy{MaxAttempts: 1, Unit: time.Second}, nil},
		{Policy{MaxAttempts: 4, Unit: time.Second}, []time.Duration{time.Second, 2 * time.Second, 3 * time.Second}},
		{Policy{MaxAttempts: 3, Unit: 0}, []time.Duration{0, 0}},
	}
	for i, tc := range cases {
		if got := tc.p.Delays(); !reflect.DeepEqual(got, tc.want) {
			t.Fatalf("case %d expected %v, got %v", i, tc.want, got)
		}
	}

	d := DefaultPolicy().Delays()
	if len(d) != 9 || d[0] != time.Second || d[8] != 9*time.Second {
		t.Fatalf("unexpected default schedule: %v", d)
	}
}

func TestPolicyValidate(t *testing.T) {
	if err := DefaultPolicy().Validate(); err != nil {
		t.Fatalf("default policy invalid: %v", err)
	}
	for _, p := range []Policy{{MaxAttempts: 0}, {MaxAttempts: 2, Unit: -time.Second}} {
		if err := p.Validate(); !errors.Is(err, ErrInvalidPolicy) {
			t.Fatalf("%+v: expected ErrInvalidPolicy, got %v", p, err)
		}
	}
}

func TestPolicyDo(t *testing.T) {
	p := Policy{MaxAttempts: 5, Unit: time.Millisecond}
	transient := errors.New("transient")

	attempts, err := p.Do(context.Background(), func(_ context.Context, attempt int) error {
		if attempt < 3 {
			return retry.RetryableError(transient)
		}
		return nil
	})
	if err != nil || attempts != 3 {
		t.Fatalf("expected success on attempt 3, got attempts=%d err=%v", attempts, err)
	}

	attempts, err = p.Do(context.Background(), func(context.Context, int) error {
		return retry.RetryableError(transient)
	})
	if !errors.Is(err, transient) || attempts != 5 {
		t.Fatalf("expected exhaustion after 5 attempts, got attempts=%d err=%v", attempts, err)
	}

	permanent := errors.New("permanent")
	attempts, err = p.Do(context.Background(), func(context.Context, int) error {
		return permanent
	})
	if !errors.Is(err, permanent) || attempts != 1 {
		t.Fatalf("non-retryable error must stop at once, got attempts=%d err=%v", attempts, err)
	}
}
