package fn

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestResult(t *testing.T) {
	r := Ok(42)
	if !r.IsOk() || r.IsErr() {
		t.Fatal("Ok should be ok")
	}
	if v, err := r.Unwrap(); v != 42 || err != nil {
		t.Fatalf("Unwrap = %d, %v", v, err)
	}

	e := Errf[int]("bad %s", "input")
	if e.IsOk() {
		t.Fatal("Errf should fail")
	}
	if _, err := e.Unwrap(); err == nil || err.Error() != "bad input" {
		t.Fatalf("unexpected error %v", err)
	}

	if _, err := FromPair(0, errors.New("x")).Unwrap(); err == nil {
		t.Fatal("FromPair should carry the error")
	}
	if v, _ := FromPair("v", nil).Unwrap(); v != "v" {
		t.Fatalf("FromPair value = %q", v)
	}
}

func TestThen(t *testing.T) {
	double := Stage[int, int](func(_ context.Context, n int) Result[int] { return Ok(n * 2) })
	toString := Stage[int, string](func(_ context.Context, n int) Result[string] {
		if n > 10 {
			return Errf[string]("too big: %d", n)
		}
		return Ok(string(rune('a' + n)))
	})
	s := Then(double, toString)

	if v, err := s(context.Background(), 2).Unwrap(); err != nil || v != "e" {
		t.Fatalf("got %q, %v", v, err)
	}
	if _, err := s(context.Background(), 6).Unwrap(); err == nil {
		t.Fatal("expected error from second stage")
	}

	called := false
	failing := Stage[int, int](func(context.Context, int) Result[int] { return Err[int](errors.New("stop")) })
	never := Stage[int, int](func(context.Context, int) Result[int] { called = true; return Ok(0) })
	if _, err := Then(failing, never)(context.Background(), 1).Unwrap(); err == nil || called {
		t.Fatalf("second stage must not run after failure (err=%v called=%v)", err, called)
	}
}

func TestTapAndTraced(t *testing.T) {
	var seen []string
	s := TracedStage("test", Then(
		Tap(func(_ context.Context, v string) { seen = append(seen, v) }),
		Stage[string, int](func(_ context.Context, v string) Result[int] { return Ok(len(v)) }),
	))
	n, err := s(context.Background(), "hello").Unwrap()
	if err != nil || n != 5 {
		t.Fatalf("got %d, %v", n, err)
	}
	if len(seen) != 1 || seen[0] != "hello" {
		t.Fatalf("tap saw %v", seen)
	}

	fail := TracedStage("fail", Stage[int, int](func(context.Context, int) Result[int] {
		return Err[int](errors.New("boom"))
	}))
	if _, err := fail(context.Background(), 0).Unwrap(); err == nil {
		t.Fatal("traced stage should keep the error")
	}
}

func TestRetry(t *testing.T) {
	opts := RetryOpts{MaxAttempts: 3, InitialWait: time.Millisecond, MaxWait: 2 * time.Millisecond}

	t.Run("succeeds after failures", func(t *testing.T) {
		calls := 0
		r := Retry(context.Background(), opts, func(context.Context) Result[int] {
			calls++
			if calls < 3 {
				return Err[int](errors.New("transient"))
			}
			return Ok(calls)
		})
		if v, err := r.Unwrap(); err != nil || v != 3 {
			t.Fatalf("got %d, %v", v, err)
		}
	})

	t.Run("gives up", func(t *testing.T) {
		calls := 0
		r := Retry(context.Background(), opts, func(context.Context) Result[int] {
			calls++
			return Err[int](errors.New("down"))
		})
		if r.IsOk() || calls != 3 {
			t.Fatalf("calls=%d ok=%v", calls, r.IsOk())
		}
	})

	t.Run("non-retryable", func(t *testing.T) {
		fatal := errors.New("fatal")
		o := opts
		o.Retryable = func(err error) bool { return !errors.Is(err, fatal) }
		calls := 0
		r := Retry(context.Background(), o, func(context.Context) Result[int] {
			calls++
			return Err[int](fatal)
		})
		if _, err := r.Unwrap(); !errors.Is(err, fatal) || calls != 1 {
			t.Fatalf("calls=%d err=%v", calls, err)
		}
	})

	t.Run("zero attempts runs once", func(t *testing.T) {
		calls := 0
		Retry(context.Background(), RetryOpts{}, func(context.Context) Result[int] {
			calls++
			return Err[int](errors.New("x"))
		})
		if calls != 1 {
			t.Fatalf("calls=%d", calls)
		}
	})

	t.Run("context cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		slow := RetryOpts{MaxAttempts: 5, InitialWait: time.Hour, MaxWait: time.Hour}
		r := Retry(ctx, slow, func(context.Context) Result[int] {
			cancel()
			return Err[int](errors.New("x"))
		})
		if _, err := r.Unwrap(); !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	})
}

func TestChunk(t *testing.T) {
	items := make([]int, 70)
	for i := range items {
		items[i] = i
	}
	batches := Chunk(items, 32)
	if len(batches) != 3 || len(batches[0]) != 32 || len(batches[1]) != 32 || len(batches[2]) != 6 {
		t.Fatalf("unexpected batch sizes")
	}
	if batches[2][0] != 64 {
		t.Fatalf("order not preserved: %v", batches[2])
	}
	if Chunk(items, 0) != nil {
		t.Fatal("n <= 0 should return nil")
	}
	if got := Chunk([]int{}, 4); len(got) != 0 {
		t.Fatalf("empty input gave %v", got)
	}
}
