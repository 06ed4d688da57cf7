package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

// instant records requested sleeps without waiting.
func instant(delays *[]time.Duration) func(context.Context, time.Duration) bool {
	return func(ctx context.Context, d time.Duration) bool {
		*delays = append(*delays, d)
		return ctx.Err() == nil
	}
}

func TestDo_SuccessOnFirstAttempt(t *testing.T) {
	var calls int
	err := Do(context.Background(), DownloadRetryConfig(), func(_ context.Context) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestDo_DownloadBudget(t *testing.T) {
	var calls int
	var delays []time.Duration
	cfg := DownloadRetryConfig()
	cfg.sleep = instant(&delays)

	err := Do(context.Background(), cfg, func(_ context.Context) error {
		calls++
		return NewTransientError(errors.New("connection reset"))
	})
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
	want := []time.Duration{2 * time.Second, 4 * time.Second}
	if len(delays) != len(want) || delays[0] != want[0] || delays[1] != want[1] {
		t.Errorf("expected delays %v, got %v", want, delays)
	}
}

func TestDo_SuccessAfterRetry(t *testing.T) {
	var calls int
	var delays []time.Duration
	cfg := DownloadRetryConfig()
	cfg.sleep = instant(&delays)

	err := Do(context.Background(), cfg, func(_ context.Context) error {
		calls++
		if calls < 3 {
			return NewTransientError(errors.New("temporary"))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestDo_NonTransientError_NoRetry(t *testing.T) {
	var calls int
	err := Do(context.Background(), DownloadRetryConfig(), func(_ context.Context) error {
		calls++
		return errors.New("http 404 from https://example.org/file")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("expected 1 call (no retry for non-transient), got %d", calls)
	}
}

func TestDo_ContextCancelled_StopsRetry(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls int
	cfg := RetryConfig{
		MaxAttempts:    5,
		InitialBackoff: 50 * time.Millisecond,
		MaxBackoff:     100 * time.Millisecond,
	}

	err := Do(ctx, cfg, func(_ context.Context) error {
		calls++
		if calls == 2 {
			cancel()
		}
		return NewTransientError(errors.New("fail"))
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 2 {
		t.Errorf("expected 2 calls before cancel, got %d", calls)
	}
}

func TestDo_CustomShouldRetryAndOnRetry(t *testing.T) {
	var calls int
	var attempts []int
	var delays []time.Duration
	cfg := RetryConfig{
		MaxAttempts: 3,
		ShouldRetry: func(err error) bool { return err.Error() == "retry me" },
		OnRetry:     func(attempt int, _ error) { attempts = append(attempts, attempt) },
		sleep:       instant(&delays),
	}

	err := Do(context.Background(), cfg, func(_ context.Context) error {
		calls++
		if calls == 1 {
			return errors.New("retry me")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 2 {
		t.Errorf("expected 2 calls, got %d", calls)
	}
	if len(attempts) != 1 || attempts[0] != 1 {
		t.Errorf("expected OnRetry attempts [1], got %v", attempts)
	}
}

func TestDoVal_ReturnsValue(t *testing.T) {
	var delays []time.Duration
	cfg := DownloadRetryConfig()
	cfg.sleep = instant(&delays)

	var calls int
	val, err := DoVal(context.Background(), cfg, func(_ context.Context) (string, error) {
		calls++
		if calls < 2 {
			return "", NewTransientError(errors.New("fail"))
		}
		return "/tmp/file.txt", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if val != "/tmp/file.txt" {
		t.Errorf("expected %q, got %q", "/tmp/file.txt", val)
	}

	n, err := DoVal(context.Background(), cfg, func(_ context.Context) (int, error) {
		return 42, NewTransientError(errors.New("fail"))
	})
	if err == nil || n != 0 {
		t.Errorf("expected zero value and error, got %d, %v", n, err)
	}
}

func TestBackoff(t *testing.T) {
	cfg := RetryConfig{InitialBackoff: time.Second, MaxBackoff: 5 * time.Second, Multiplier: 2}
	cases := map[int]time.Duration{0: time.Second, 1: 2 * time.Second, 2: 4 * time.Second, 3: 5 * time.Second}
	for attempt, want := range cases {
		if got := Backoff(attempt, cfg); got != want {
			t.Errorf("attempt %d: expected %v, got %v", attempt, want, got)
		}
	}

	cfg.JitterFraction = 0.5
	for range 20 {
		d := Backoff(1, cfg)
		if d < time.Second || d > 3*time.Second {
			t.Fatalf("jittered delay out of range: %v", d)
		}
	}
}

func TestSleep_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if Sleep(ctx, time.Hour) {
		t.Error("expected Sleep to report cancellation")
	}
	if !Sleep(context.Background(), 0) {
		t.Error("zero sleep should complete")
	}
}
