package worker

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestDeferredRunsContinuationsInOrder(t *testing.T) {
	var d Deferred
	var got []string
	d.Go(func(context.Context) func() {
		got = append(got, "io-1")
		return func() {
			got = append(got, "loop-1")
			d.Go(func(context.Context) func() {
				got = append(got, "io-2")
				return nil
			})
		}
	})
	if d.Len() != 1 {
		t.Fatalf("job should wait for Drain")
	}
	if n := d.Drain(); n != 2 {
		t.Fatalf("drained %d jobs", n)
	}
	want := []string{"io-1", "loop-1", "io-2"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v", got)
		}
	}
}

func TestQueuePostsContinuation(t *testing.T) {
	var (
		mu     sync.Mutex
		posted []string
		done   = make(chan struct{})
	)
	post := func(fn func()) {
		fn()
		close(done)
	}
	q := NewQueue(4, 1, time.Second, post)
	ctx, cancel := context.WithCancel(context.Background())
	finished := make(chan struct{})
	go func() {
		q.Run(ctx)
		close(finished)
	}()

	q.Go(func(ctx context.Context) func() {
		if _, ok := ctx.Deadline(); !ok {
			t.Errorf("job context has no deadline")
		}
		return func() {
			mu.Lock()
			posted = append(posted, "ok")
			mu.Unlock()
		}
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("continuation never posted")
	}
	cancel()
	<-finished

	mu.Lock()
	defer mu.Unlock()
	if len(posted) != 1 {
		t.Fatalf("posted = %v", posted)
	}
}
