package lumenvk

import (
	"slices"
	"testing"
)

func TestDeletionQueueRunsInReverse(t *testing.T) {
	var q DeletionQueue
	var order []int
	for i := 0; i < 5; i++ {
		q.Push(func() { order = append(order, i) })
	}
	q.Push(nil)
	if q.Len() != 5 {
		t.Fatalf("expected 5 pending actions, got %d", q.Len())
	}
	q.Flush()
	if want := []int{4, 3, 2, 1, 0}; !slices.Equal(order, want) {
		t.Errorf("expected order %v, got %v", want, order)
	}
}

func TestDeletionQueueFlushTwice(t *testing.T) {
	var q DeletionQueue
	calls := 0
	q.Push(func() { calls++ })
	q.Flush()
	q.Flush()
	if calls != 1 {
		t.Errorf("expected the action to run once, ran %d times", calls)
	}
	if q.Len() != 0 {
		t.Errorf("expected an empty queue, got %d", q.Len())
	}
}

func TestDeletionQueueChainsChildren(t *testing.T) {
	var parent, child DeletionQueue
	var order []string
	parent.Push(func() { order = append(order, "device") })
	parent.PushQueue(&child)
	child.Push(func() { order = append(order, "buffer") })
	child.Push(func() { order = append(order, "view") })
	parent.Push(func() { order = append(order, "swapchain") })

	parent.Flush()
	want := []string{"swapchain", "view", "buffer", "device"}
	if !slices.Equal(order, want) {
		t.Errorf("expected %v, got %v", want, order)
	}
	// the child was emptied through the parent
	child.Flush()
	if len(order) != len(want) {
		t.Errorf("child actions ran twice: %v", order)
	}
}

func TestDeletionQueueActionPushingDuringFlush(t *testing.T) {
	var q DeletionQueue
	var order []string
	q.Push(func() { order = append(order, "first") })
	q.Push(func() {
		order = append(order, "second")
		q.Push(func() { order = append(order, "late") })
	})
	q.Flush()
	want := []string{"second", "late", "first"}
	if !slices.Equal(order, want) {
		t.Errorf("expected %v, got %v", want, order)
	}
}

type countingResource struct{ destroyed int }

func (c *countingResource) Destroy() { c.destroyed++ }

func TestResourceDestroyIsTerminal(t *testing.T) {
	r := &resource{name: "r"}
	res := &countingResource{}
	r.deletion.PushResource(res)
	r.set(StatusCreated | StatusInRAM | StatusInVRAM)

	r.Destroy()
	r.Destroy()
	if res.destroyed != 1 {
		t.Errorf("expected one destroy, got %d", res.destroyed)
	}
	if r.Status() != StatusDestroyed {
		t.Errorf("expected destroyed, got %s", r.Status())
	}
	r.set(StatusInRAM)
	if r.Has(StatusInRAM) {
		t.Error("status changed after destroy")
	}
}

func TestResourceReleaseKeepsRAM(t *testing.T) {
	r := &resource{name: "r"}
	r.set(StatusCreated | StatusInRAM | StatusInVRAM)
	r.release(true)
	if r.Status() != StatusInRAM {
		t.Errorf("expected in-ram, got %s", r.Status())
	}
	r.release(false)
	if r.Status() != StatusUnloaded {
		t.Errorf("expected unloaded, got %s", r.Status())
	}
}

func TestResourceStatusString(t *testing.T) {
	tests := []struct {
		s    ResourceStatus
		want string
	}{
		{StatusUnloaded, "unloaded"},
		{StatusInRAM, "in-ram"},
		{StatusCreated | StatusInVRAM, "created|in-vram"},
		{StatusDestroyed, "destroyed"},
	}
	for _, tt := range tests {
		if got := tt.s.String(); got != tt.want {
			t.Errorf("%d: expected %q, got %q", tt.s, tt.want, got)
		}
	}
}
