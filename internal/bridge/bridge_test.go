package bridge

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestBridgeDeliversValuesThenDone(t *testing.T) {
	vals := []int{1, 2, 3}
	idx := 0
	it := Func[int](func() (int, error, bool) {
		if idx >= len(vals) {
			return 0, nil, false
		}
		v := vals[idx]
		idx++
		return v, nil, true
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out := Bridge[int](ctx, it, 0)

	var got []int
	for item := range out {
		if item.Err != nil {
			t.Fatalf("unexpected error: %v", item.Err)
		}
		if item.Done {
			break
		}
		got = append(got, item.Value)
	}

	if len(got) != len(vals) {
		t.Fatalf("got %v, want %v", got, vals)
	}
	for i := range vals {
		if got[i] != vals[i] {
			t.Fatalf("got[%d]=%d want %d", i, got[i], vals[i])
		}
	}
}

func TestBridgePropagatesError(t *testing.T) {
	wantErr := errors.New("boom")
	it := Func[int](func() (int, error, bool) {
		return 0, wantErr, false
	})

	out := Bridge[int](context.Background(), it, 0)
	item := <-out
	if !errors.Is(item.Err, wantErr) {
		t.Fatalf("got err %v, want %v", item.Err, wantErr)
	}

	if _, ok := <-out; ok {
		t.Fatalf("expected channel to be closed after error")
	}
}

func TestBridgeStopsOnContextCancel(t *testing.T) {
	// An iterator that never ends: the worker will be parked trying to
	// send the second value into an unbuffered channel nobody is
	// reading from once the test stops consuming.
	n := 0
	it := Func[int](func() (int, error, bool) {
		n++
		return n, nil, true
	})

	ctx, cancel := context.WithCancel(context.Background())
	out := Bridge[int](ctx, it, 0)

	<-out // read the first value so the worker blocks sending the second

	cancel()

	select {
	case _, ok := <-out:
		if ok {
			// a second value may or may not have raced through before
			// cancellation was observed; drain until close either way.
			for range out {
			}
		}
	case <-time.After(time.Second):
		t.Fatalf("channel never closed after context cancel")
	}
}
