package testutils

import (
	"testing"
	"time"
)

// CollectN reads n values from ch, failing the test if they do not arrive in time.
func CollectN[T any](t testing.TB, ch <-chan T, n int, timeout time.Duration) []T {
	t.Helper()

	out := make([]T, 0, n)
	deadline := time.After(timeout)
	for len(out) < n {
		select {
		case v, ok := <-ch:
			if !ok {
				t.Fatalf("channel closed after %d of %d values", len(out), n)
				return out
			}
			out = append(out, v)
		case <-deadline:
			t.Fatalf("timed out after %d of %d values", len(out), n)
			return out
		}
	}
	return out
}

// Drain returns every value currently buffered in ch without waiting.
func Drain[T any](ch <-chan T) []T {
	var out []T
	for {
		select {
		case v, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, v)
		default:
			return out
		}
	}
}

// AssertQuiet fails if ch yields a value within wait
func AssertQuiet[T any](t testing.TB, ch <-chan T, wait time.Duration) {
	t.Helper()

	select {
	case v, ok := <-ch:
		if ok {
			t.Errorf("unexpected value: %+v", v)
		}
	case <-time.After(wait):
	}
}
