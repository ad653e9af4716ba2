package chain

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRPCRetry(t *testing.T) {
	transient := errors.New("rpc timeout")
	tests := []struct {
		name      string
		failures  int
		retries   int
		err       error
		wantCalls int
		wantErr   bool
	}{
		{name: "first try", failures: 0, retries: 3, err: transient, wantCalls: 1},
		{name: "recovers", failures: 2, retries: 3, err: transient, wantCalls: 3},
		{name: "exhausted", failures: 10, retries: 2, err: transient, wantCalls: 3, wantErr: true},
		{name: "permanent", failures: 10, retries: 5, err: permanent{transient}, wantCalls: 1, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			retry := newRPCRetry(Options{MaxRetries: tt.retries, RetryBackoff: time.Millisecond}, nil)
			err := retry.do(context.Background(), "getAccountInfo", func(context.Context) error {
				calls++
				if calls <= tt.failures {
					return tt.err
				}
				return nil
			})
			if calls != tt.wantCalls {
				t.Fatalf("calls = %d, want %d", calls, tt.wantCalls)
			}
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, transient) {
				t.Fatalf("err = %v, want wrapped %v", err, transient)
			}
		})
	}
}

func TestRPCRetryHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	retry := newRPCRetry(Options{MaxRetries: 5, RetryBackoff: time.Hour}, nil)
	err := retry.do(ctx, "getTokenSupply", func(context.Context) error {
		return errors.New("unavailable")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestRPCRetryDefaults(t *testing.T) {
	retry := newRPCRetry(Options{MaxRetries: -1}, nil)
	if retry.maxRetries != 0 || retry.backoff != defaultRPCBackoff || retry.logger == nil {
		t.Fatalf("unexpected defaults %+v", retry)
	}
}

func TestParseAmount(t *testing.T) {
	if v, err := parseAmount("18446744073709551615"); err != nil || v != 18446744073709551615 {
		t.Fatalf("parse max = %d, %v", v, err)
	}
	if _, err := parseAmount("1.5"); err == nil {
		t.Fatalf("expected error for fractional amount")
	}
}
