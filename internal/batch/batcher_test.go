package batch

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestRunBoundedNeverExceedsLimit(t *testing.T) {
	items := make([]int, 20)
	for i := range items {
		items[i] = i
	}

	var inflight int32
	var maxObserved int32

	outcomes := RunBounded(context.Background(), items, 3, func(ctx context.Context, item int) (int, error) {
		n := atomic.AddInt32(&inflight, 1)
		for {
			old := atomic.LoadInt32(&maxObserved)
			if n <= old || atomic.CompareAndSwapInt32(&maxObserved, old, n) {
				break
			}
		}
		time.Sleep(time.Millisecond)
		atomic.AddInt32(&inflight, -1)
		return item * 2, nil
	})

	if maxObserved > 3 {
		t.Fatalf("expected at most 3 inflight, observed %d", maxObserved)
	}
	for i, o := range outcomes {
		if o.Status != Fulfilled || o.Value != i*2 {
			t.Fatalf("outcome %d: expected fulfilled %d, got %+v", i, i*2, o)
		}
	}
}

func TestRunBoundedCapturesRejections(t *testing.T) {
	boom := errors.New("boom")
	outcomes := RunBounded(context.Background(), []int{1, 2, 3}, 2, func(ctx context.Context, item int) (int, error) {
		if item == 2 {
			return 0, boom
		}
		return item, nil
	})

	if outcomes[1].Status != Rejected || outcomes[1].Reason != boom {
		t.Fatalf("expected item 2 rejected with boom, got %+v", outcomes[1])
	}
	if outcomes[0].Status != Fulfilled || outcomes[2].Status != Fulfilled {
		t.Fatalf("expected items 1 and 3 fulfilled, got %+v", outcomes)
	}
}

func TestRunBoundedPreservesOrder(t *testing.T) {
	items := []int{5, 4, 3, 2, 1}
	outcomes := RunBounded(context.Background(), items, 10, func(ctx context.Context, item int) (int, error) {
		time.Sleep(time.Duration(item) * time.Millisecond)
		return item, nil
	})
	for i, o := range outcomes {
		if o.Value != items[i] {
			t.Fatalf("outcome order mismatch at %d: got %d want %d", i, o.Value, items[i])
		}
	}
}
