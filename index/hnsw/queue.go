package hnsw

// queueItem is an entry in a priority queue: a graph slot and its distance
// to the query.
type queueItem struct {
	Slot     uint32
	Distance float32
}

// priorityQueue is a value-based binary heap over queueItems. isMaxHeap
// selects between max-heap (worst candidate on top, used for result sets)
// and min-heap (best candidate on top, used for the exploration frontier).
type priorityQueue struct {
	isMaxHeap bool
	items     []queueItem
}

func newMinQueue(capacity int) *priorityQueue {
	return &priorityQueue{items: make([]queueItem, 0, capacity)}
}

func newMaxQueue(capacity int) *priorityQueue {
	return &priorityQueue{isMaxHeap: true, items: make([]queueItem, 0, capacity)}
}

// Len returns the number of queued items.
func (pq *priorityQueue) Len() int { return len(pq.items) }

// Top returns the root of the heap without removing it.
func (pq *priorityQueue) Top() (queueItem, bool) {
	if len(pq.items) == 0 {
		return queueItem{}, false
	}
	return pq.items[0], true
}

// Push inserts an item while maintaining the heap invariant.
func (pq *priorityQueue) Push(item queueItem) {
	pq.items = append(pq.items, item)
	pq.siftUp(len(pq.items) - 1)
}

// Pop removes and returns the root while maintaining the heap invariant.
func (pq *priorityQueue) Pop() (queueItem, bool) {
	n := len(pq.items)
	if n == 0 {
		return queueItem{}, false
	}
	root := pq.items[0]
	last := pq.items[n-1]
	pq.items = pq.items[:n-1]
	if n-1 > 0 {
		pq.items[0] = last
		pq.siftDown(0)
	}
	return root, true
}

// Min returns the item with the smallest distance. O(n) on a max-heap, but
// n is bounded by the search breadth.
func (pq *priorityQueue) Min() (queueItem, bool) {
	if len(pq.items) == 0 {
		return queueItem{}, false
	}
	best := pq.items[0]
	for _, item := range pq.items[1:] {
		if item.Distance < best.Distance {
			best = item
		}
	}
	return best, true
}

func (pq *priorityQueue) less(i, j int) bool {
	if pq.isMaxHeap {
		return pq.items[i].Distance > pq.items[j].Distance
	}
	return pq.items[i].Distance < pq.items[j].Distance
}

func (pq *priorityQueue) siftUp(i int) {
	for i > 0 {
		p := (i - 1) / 2
		if !pq.less(i, p) {
			return
		}
		pq.items[i], pq.items[p] = pq.items[p], pq.items[i]
		i = p
	}
}

func (pq *priorityQueue) siftDown(i int) {
	n := len(pq.items)
	for {
		l := 2*i + 1
		if l >= n {
			return
		}
		best := l
		if r := l + 1; r < n && pq.less(r, l) {
			best = r
		}
		if !pq.less(best, i) {
			return
		}
		pq.items[i], pq.items[best] = pq.items[best], pq.items[i]
		i = best
	}
}
