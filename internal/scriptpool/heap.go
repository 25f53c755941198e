package scriptpool

// priorityHeap is a binary min-heap of *queuedRequest ordered by less, grounded on
// the same push/up/pop/down shape used for priority queues elsewhere in
// the retrieval pack rather than wrapping container/heap's interface
// ceremony for a single concrete element type.
type priorityHeap struct {
	data []*queuedRequest
	seq  uint64 // monotonically increasing enqueue sequence, for FIFO tie-break
}

// less orders by priority descending (spec: priority key is -req.priority,
// so the numerically highest priority pops first), breaking ties by
// enqueue order so the heap is stable.
func (h *priorityHeap) less(a, b *queuedRequest) bool {
	if a.priority != b.priority {
		return a.priority > b.priority
	}
	return a.seq < b.seq
}

func (h *priorityHeap) Len() int { return len(h.data) }

func (h *priorityHeap) push(req *queuedRequest) {
	h.seq++
	req.seq = h.seq
	h.data = append(h.data, req)
	h.up(len(h.data) - 1)
}

func (h *priorityHeap) pop() (*queuedRequest, bool) {
	if len(h.data) == 0 {
		return nil, false
	}
	top := h.data[0]
	last := h.data[len(h.data)-1]
	h.data = h.data[:len(h.data)-1]
	if len(h.data) > 0 {
		h.data[0] = last
		h.down(0)
	}
	return top, true
}

func (h *priorityHeap) up(i int) {
	for i > 0 {
		p := (i - 1) / 2
		if !h.less(h.data[i], h.data[p]) {
			break
		}
		h.data[i], h.data[p] = h.data[p], h.data[i]
		i = p
	}
}

func (h *priorityHeap) down(i int) {
	n := len(h.data)
	for {
		left, right := 2*i+1, 2*i+2
		smallest := i
		if left < n && h.less(h.data[left], h.data[smallest]) {
			smallest = left
		}
		if right < n && h.less(h.data[right], h.data[smallest]) {
			smallest = right
		}
		if smallest == i {
			return
		}
		h.data[i], h.data[smallest] = h.data[smallest], h.data[i]
		i = smallest
	}
}
