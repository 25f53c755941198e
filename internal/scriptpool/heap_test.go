package scriptpool

import "testing"

func TestPriorityHeapOrdersByPriorityThenFIFO(t *testing.T) {
	h := &priorityHeap{}
	h.push(&queuedRequest{req: Request{ID: "low-1"}, priority: 0})
	h.push(&queuedRequest{req: Request{ID: "low-2"}, priority: 0})
	h.push(&queuedRequest{req: Request{ID: "high"}, priority: 10})

	first, ok := h.pop()
	if !ok || first.req.ID != "high" {
		t.Fatalf("expected high first, got %+v", first)
	}
	second, ok := h.pop()
	if !ok || second.req.ID != "low-1" {
		t.Fatalf("expected low-1 second (FIFO tie-break), got %+v", second)
	}
	third, ok := h.pop()
	if !ok || third.req.ID != "low-2" {
		t.Fatalf("expected low-2 third, got %+v", third)
	}
	if _, ok := h.pop(); ok {
		t.Fatal("expected empty heap")
	}
}
