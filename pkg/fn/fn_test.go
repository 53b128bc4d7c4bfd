package fn

import (
	"context"
	"errors"
	"strconv"
	"sync/atomic"
	"testing"
	"time"
)

// --- Result ---

func TestOkAndErr(t *testing.T) {
	r := Ok(42)
	if !r.IsOk() || r.IsErr() {
		t.Fatal("Ok should be ok")
	}
	v, err := r.Unwrap()
	if v != 42 || err != nil {
		t.Fatal("wrong unwrap")
	}

	e := Err[int](errors.New("fail"))
	if e.IsOk() || !e.IsErr() {
		t.Fatal("Err should be err")
	}
}

func TestErrf(t *testing.T) {
	r := Errf[string]("code %d", 404)
	_, err := r.Unwrap()
	if err == nil || err.Error() != "code 404" {
		t.Fatal("Errf wrong message")
	}
}

func TestUnwrapOr(t *testing.T) {
	if Ok(1).UnwrapOr(9) != 1 {
		t.Fatal("should return value")
	}
	if Err[int](errors.New("x")).UnwrapOr(9) != 9 {
		t.Fatal("should return fallback")
	}
}

func TestFromPair(t *testing.T) {
	if !FromPair(1, nil).IsOk() {
		t.Fatal("nil error should be ok")
	}
	if !FromPair(0, errors.New("x")).IsErr() {
		t.Fatal("error should be err")
	}
}

func TestPartition(t *testing.T) {
	vals, errs := Partition([]Result[int]{Ok(1), Err[int](errors.New("a")), Ok(3)})
	if len(vals) != 2 || vals[0] != 1 || vals[1] != 3 {
		t.Errorf("vals = %v", vals)
	}
	if len(errs) != 1 || errs[0].Error() != "a" {
		t.Errorf("errs = %v", errs)
	}
}

// --- Parallel ---

func TestParMapResult(t *testing.T) {
	res := ParMapResult([]string{"1", "x", "3"}, 2, func(s string) Result[int] {
		return FromPair(strconv.Atoi(s))
	})
	if len(res) != 3 || !res[0].IsOk() || !res[1].IsErr() || !res[2].IsOk() {
		t.Fatalf("unexpected results: %+v", res)
	}
	if v, _ := res[2].Unwrap(); v != 3 {
		t.Errorf("order not preserved: %d", v)
	}
}

func TestParMapResultEmpty(t *testing.T) {
	if res := ParMapResult([]int{}, 0, func(int) Result[int] { return Ok(0) }); len(res) != 0 {
		t.Fatal("expected empty")
	}
}

// --- Retry ---

func TestRetrySuccessOnThirdAttempt(t *testing.T) {
	var seen []int
	r := Retry(context.Background(), FixedRetry(3, time.Millisecond), func(_ context.Context, attempt int) Result[int] {
		seen = append(seen, attempt)
		if attempt < 3 {
			return Err[int](errors.New("not yet"))
		}
		return Ok(attempt)
	})
	if v, err := r.Unwrap(); err != nil || v != 3 {
		t.Fatalf("got %v, %v", v, err)
	}
	if len(seen) != 3 || seen[0] != 1 || seen[2] != 3 {
		t.Errorf("attempts = %v", seen)
	}
}

func TestRetryExhausted(t *testing.T) {
	var retries atomic.Int32
	opts := FixedRetry(3, time.Millisecond)
	opts.OnRetry = func(int, error) { retries.Add(1) }
	r := Retry(context.Background(), opts, func(context.Context, int) Result[int] {
		return Err[int](errors.New("always"))
	})
	if r.IsOk() {
		t.Fatal("expected error")
	}
	if retries.Load() != 2 {
		t.Errorf("OnRetry called %d times, want 2", retries.Load())
	}
}

func TestRetryFixedDelay(t *testing.T) {
	start := time.Now()
	Retry(context.Background(), FixedRetry(3, 20*time.Millisecond), func(context.Context, int) Result[int] {
		return Err[int](errors.New("x"))
	})
	elapsed := time.Since(start)
	if elapsed < 40*time.Millisecond {
		t.Errorf("expected two 20ms waits, took %v", elapsed)
	}
}

func TestRetryContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	r := Retry(ctx, FixedRetry(5, time.Hour), func(context.Context, int) Result[int] {
		calls++
		cancel()
		return Err[int](errors.New("fail"))
	})
	if _, err := r.Unwrap(); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d", calls)
	}
}

func TestRetryZeroAttemptsRunsOnce(t *testing.T) {
	calls := 0
	Retry(context.Background(), RetryOpts{}, func(context.Context, int) Result[int] {
		calls++
		return Ok(1)
	})
	if calls != 1 {
		t.Errorf("calls = %d", calls)
	}
}
