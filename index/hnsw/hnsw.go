// Package hnsw implements the Hierarchical Navigable Small World (HNSW)
// graph for approximate nearest neighbor search.
//
// Entries are tagged with caller-supplied internal ids, deletes are logical
// (tombstones), and capacity grows automatically as occupancy approaches it.
// A single mutex serializes every operation, reads included: graph operations
// are CPU-bound and fast, so the lock is a deliberate simplicity trade.
package hnsw

import (
	"math"
	"slices"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/bits-and-blooms/bitset"

	"github.com/vektordb/vektor/distance"
	"github.com/vektordb/vektor/index"
)

const (
	// DefaultM is the default number of bidirectional links per node.
	DefaultM = 16

	// DefaultEFConstruction is the default candidate list size during
	// graph construction.
	DefaultEFConstruction = 200

	// DefaultEFSearch is the default search breadth at query time.
	DefaultEFSearch = 50

	// DefaultInitialCapacity is the default preallocated entry capacity.
	DefaultInitialCapacity = 1024

	// mmax0Multiplier is the multiplier for maximum connections at layer 0.
	mmax0Multiplier = 2

	// minimumM is the minimum valid value for M.
	minimumM = 2
)

// Compile-time check.
var _ index.Index = (*HNSW)(nil)

// Options represents the options for configuring HNSW.
type Options struct {
	// Dimension is the vector dimensionality. Required.
	Dimension int

	// Metric is the distance metric, fixed for the lifetime of the index.
	Metric distance.Metric

	// M is the number of established connections per element during
	// construction. Range 12-48 is reasonable for most embedding workloads.
	M int

	// EFConstruction is the size of the dynamic candidate list while
	// building the graph. Larger values improve graph quality at the cost
	// of insert latency.
	EFConstruction int

	// EFSearch is the default search breadth: how exhaustively a query
	// explores candidates. Recall is monotonically non-decreasing in it.
	EFSearch int

	// Heuristic selects the neighbor-selection heuristic (true) or naive
	// nearest-M selection (false).
	Heuristic bool

	// InitialCapacity is the entry capacity preallocated up front.
	InitialCapacity int

	// MaxCapacity bounds capacity growth. Zero means unbounded (limited by
	// available memory).
	MaxCapacity int
}

// DefaultOptions are the default options for a cosine-metric index.
var DefaultOptions = Options{
	Metric:          distance.MetricCosine,
	M:               DefaultM,
	EFConstruction:  DefaultEFConstruction,
	EFSearch:        DefaultEFSearch,
	Heuristic:       true,
	InitialCapacity: DefaultInitialCapacity,
}

// node is a graph entry. Connections hold slot references per layer,
// indexed 0..layer.
type node struct {
	id          uint64
	layer       int
	vector      []float32
	connections [][]uint32
}

// HNSW represents the Hierarchical Navigable Small World graph.
//
// Entries live in a slot-addressed array; internal ids map to their current
// live slot. A replaced or deleted entry's slot stays in the graph as a
// tombstone so connectivity is preserved, occupying capacity until the index
// is rebuilt.
type HNSW struct {
	mu sync.Mutex

	opts   Options
	distFn distance.Func

	mmax  int     // max connections per layer
	mmax0 int     // max connections at layer 0
	ml    float64 // normalization factor for layer assignment

	nodes    []*node // slot-indexed; len(nodes) is occupancy
	capacity int

	slotByID   map[uint64]uint32
	tombstones *roaring.Bitmap // keyed by slot
	live       int

	entry    uint32
	maxLevel int
}

// New creates a new HNSW index.
func New(optFns ...func(o *Options)) (*HNSW, error) {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Dimension <= 0 {
		return nil, &index.ErrDimensionMismatch{Expected: 1, Actual: opts.Dimension}
	}
	distFn, err := distance.Provider(opts.Metric)
	if err != nil {
		return nil, err
	}
	if opts.M < minimumM {
		opts.M = minimumM
	}
	if opts.EFConstruction <= 0 {
		opts.EFConstruction = DefaultEFConstruction
	}
	if opts.EFSearch <= 0 {
		opts.EFSearch = DefaultEFSearch
	}
	if opts.InitialCapacity <= 0 {
		opts.InitialCapacity = 1
	}
	if opts.MaxCapacity > 0 && opts.InitialCapacity > opts.MaxCapacity {
		opts.InitialCapacity = opts.MaxCapacity
	}

	return &HNSW{
		opts:       opts,
		distFn:     distFn,
		mmax:       opts.M,
		mmax0:      mmax0Multiplier * opts.M,
		ml:         1 / math.Log(float64(opts.M)),
		nodes:      make([]*node, 0, opts.InitialCapacity),
		capacity:   opts.InitialCapacity,
		slotByID:   make(map[uint64]uint32),
		tombstones: roaring.New(),
	}, nil
}

// Insert implements index.Index.
func (h *HNSW) Insert(internalID uint64, vector []float32) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(vector) != h.opts.Dimension {
		return &index.ErrDimensionMismatch{Expected: h.opts.Dimension, Actual: len(vector)}
	}
	if err := h.ensureCapacity(1); err != nil {
		return err
	}

	// One live entry per internal id: replace tombstones any previous slot.
	if prev, ok := h.slotByID[internalID]; ok {
		h.tombstoneSlot(prev)
	}

	vec := slices.Clone(vector)
	layer := h.layerFor(internalID)
	slot := uint32(len(h.nodes))

	n := &node{
		id:          internalID,
		layer:       layer,
		vector:      vec,
		connections: make([][]uint32, layer+1),
	}

	// First entry becomes the entry point.
	if len(h.nodes) == 0 {
		h.nodes = append(h.nodes, n)
		h.slotByID[internalID] = slot
		h.entry = slot
		h.maxLevel = layer
		h.live++
		return nil
	}

	// Greedy descent from the top layer down to layer+1.
	currSlot := h.entry
	currDist := h.distFn(vec, h.nodes[currSlot].vector)
	currSlot, currDist = h.greedyDescend(vec, currSlot, currDist, h.maxLevel, layer)

	h.nodes = append(h.nodes, n)

	// Search and link from min(layer, maxLevel) down to 0. Tombstoned
	// slots stay eligible as link targets here: when every reachable node
	// is tombstoned (a sole record being replaced), linking through them
	// is the only path that keeps the new node connected to the graph.
	for level := min(layer, h.maxLevel); level >= 0; level-- {
		results := h.searchLayer(vec, currSlot, currDist, level, h.opts.EFConstruction, true)

		if best, ok := results.Min(); ok {
			currSlot = best.Slot
			currDist = best.Distance
		}

		maxConns := h.mmax
		if level == 0 {
			maxConns = h.mmax0
		}

		neighbors := h.selectNeighbors(results, maxConns)
		n.connections[level] = neighbors

		for _, neighbor := range neighbors {
			h.link(neighbor, slot, level)
		}
	}

	h.slotByID[internalID] = slot
	h.live++

	if layer > h.maxLevel {
		h.maxLevel = layer
		h.entry = slot
	}

	return nil
}

// Tombstone implements index.Index.
func (h *HNSW) Tombstone(internalID uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	slot, ok := h.slotByID[internalID]
	if !ok {
		// Unknown or already tombstoned: a no-op, never an error. Delete
		// races with recovery must not crash the system.
		return
	}
	h.tombstoneSlot(slot)
	delete(h.slotByID, internalID)
}

// tombstoneSlot marks a slot deleted-but-present. The node stays in the
// graph to preserve connectivity; search results exclude it.
func (h *HNSW) tombstoneSlot(slot uint32) {
	if h.tombstones.Contains(slot) {
		return
	}
	h.tombstones.Add(slot)
	h.live--
}

// Search implements index.Index.
func (h *HNSW) Search(query []float32, k, breadth int) ([]index.SearchResult, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(query) != h.opts.Dimension {
		return nil, &index.ErrDimensionMismatch{Expected: h.opts.Dimension, Actual: len(query)}
	}
	if k <= 0 || len(h.nodes) == 0 || h.live == 0 {
		return nil, nil
	}

	ef := breadth
	if ef <= 0 {
		ef = h.opts.EFSearch
	}
	if ef < k {
		ef = k
	}

	currSlot := h.entry
	currDist := h.distFn(query, h.nodes[currSlot].vector)
	currSlot, currDist = h.greedyDescend(query, currSlot, currDist, h.maxLevel, 0)

	results := h.searchLayer(query, currSlot, currDist, 0, ef, false)

	for results.Len() > k {
		_, _ = results.Pop()
	}

	// The max-heap pops worst first; fill the output from the back for
	// ascending distance order.
	out := make([]index.SearchResult, results.Len())
	for i := results.Len() - 1; i >= 0; i-- {
		item, _ := results.Pop()
		out[i] = index.SearchResult{InternalID: h.nodes[item.Slot].id, Distance: item.Distance}
	}

	return out, nil
}

// Has implements index.Index.
func (h *HNSW) Has(internalID uint64) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.slotByID[internalID]
	return ok
}

// Count implements index.Index: live plus tombstoned occupancy.
func (h *HNSW) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.nodes)
}

// Live implements index.Index.
func (h *HNSW) Live() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.live
}

// Capacity implements index.Index.
func (h *HNSW) Capacity() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.capacity
}

// Dimension implements index.Index.
func (h *HNSW) Dimension() int {
	return h.opts.Dimension
}

// ensureCapacity grows the allocated capacity so that batch more entries
// fit: new capacity = max(2x current, occupancy + batch). Growth never
// loses entries or tombstone state. Fails with ErrCapacityExhausted only
// when MaxCapacity makes growth impossible.
func (h *HNSW) ensureCapacity(batch int) error {
	occ := len(h.nodes)
	if occ+batch <= h.capacity {
		return nil
	}

	newCap := max(2*h.capacity, occ+batch)
	if h.opts.MaxCapacity > 0 {
		if occ+batch > h.opts.MaxCapacity {
			return index.ErrCapacityExhausted
		}
		newCap = min(newCap, h.opts.MaxCapacity)
	}

	grown := make([]*node, occ, newCap)
	copy(grown, h.nodes)
	h.nodes = grown
	h.capacity = newCap
	return nil
}

// layerFor derives the node layer deterministically from the internal id,
// so a rebuild replaying the same ids reconstructs the same graph shape.
func (h *HNSW) layerFor(id uint64) int {
	x := id + 0x9e3779b97f4a7c15
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	x ^= x >> 31

	const inv = 1.0 / (1 << 53)
	r := float64(x>>11) * inv
	if r == 0 {
		r = inv
	}
	return int(math.Floor(-math.Log(r) * h.ml))
}

// greedyDescend walks greedily toward the query from layer `from` down to
// (but not including) layer `to`, returning the best slot found.
func (h *HNSW) greedyDescend(q []float32, slot uint32, dist float32, from, to int) (uint32, float32) {
	for level := from; level > to; level-- {
		changed := true
		for changed {
			changed = false
			n := h.nodes[slot]
			if level >= len(n.connections) {
				break
			}
			for _, next := range n.connections[level] {
				d := h.distFn(q, h.nodes[next].vector)
				if d < dist {
					slot = next
					dist = d
					changed = true
				}
			}
		}
	}
	return slot, dist
}

// searchLayer explores one layer of the graph around the entry slot,
// returning up to ef candidates in a max-heap. Tombstoned slots are always
// traversed (they keep the graph connected); includeTombstoned controls
// whether they may also appear as results. Construction includes them so
// new nodes can link through them, queries exclude them.
func (h *HNSW) searchLayer(q []float32, epSlot uint32, epDist float32, level, ef int, includeTombstoned bool) *priorityQueue {
	visited := bitset.New(uint(len(h.nodes)))
	visited.Set(uint(epSlot))

	candidates := newMinQueue(ef)
	candidates.Push(queueItem{Slot: epSlot, Distance: epDist})

	results := newMaxQueue(ef + 1)
	if includeTombstoned || !h.tombstones.Contains(epSlot) {
		results.Push(queueItem{Slot: epSlot, Distance: epDist})
	}

	for candidates.Len() > 0 {
		curr, _ := candidates.Pop()

		if results.Len() >= ef {
			if worst, ok := results.Top(); ok && curr.Distance > worst.Distance {
				break
			}
		}

		n := h.nodes[curr.Slot]
		if level >= len(n.connections) {
			continue
		}

		for _, next := range n.connections[level] {
			if visited.Test(uint(next)) {
				continue
			}
			visited.Set(uint(next))

			d := h.distFn(q, h.nodes[next].vector)

			if results.Len() >= ef {
				if worst, ok := results.Top(); ok && d > worst.Distance {
					continue
				}
			}

			candidates.Push(queueItem{Slot: next, Distance: d})

			if includeTombstoned || !h.tombstones.Contains(next) {
				results.Push(queueItem{Slot: next, Distance: d})
				if results.Len() > ef {
					_, _ = results.Pop()
				}
			}
		}
	}

	return results
}

// selectNeighbors picks at most m connection targets from candidates.
func (h *HNSW) selectNeighbors(candidates *priorityQueue, m int) []uint32 {
	if h.opts.Heuristic {
		return h.selectNeighborsHeuristic(candidates, m)
	}
	return h.selectNeighborsSimple(candidates, m)
}

func (h *HNSW) selectNeighborsSimple(candidates *priorityQueue, m int) []uint32 {
	for candidates.Len() > m {
		_, _ = candidates.Pop()
	}
	res := make([]uint32, candidates.Len())
	for i := candidates.Len() - 1; i >= 0; i-- {
		item, _ := candidates.Pop()
		res[i] = item.Slot
	}
	return res
}

// selectNeighborsHeuristic keeps a candidate only if it is closer to the
// source than to every neighbor already kept (relative neighborhood graph
// property), which spreads connections across directions.
func (h *HNSW) selectNeighborsHeuristic(candidates *priorityQueue, m int) []uint32 {
	if candidates.Len() <= m {
		return h.selectNeighborsSimple(candidates, m)
	}

	// Drain the max-heap into best-first order.
	sorted := make([]queueItem, candidates.Len())
	for i := len(sorted) - 1; i >= 0; i-- {
		sorted[i], _ = candidates.Pop()
	}

	result := make([]uint32, 0, m)
	skipped := make([]queueItem, 0, len(sorted))

	for _, cand := range sorted {
		if len(result) >= m {
			break
		}
		good := true
		for _, sel := range result {
			if h.distFn(h.nodes[cand.Slot].vector, h.nodes[sel].vector) < cand.Distance {
				good = false
				break
			}
		}
		if good {
			result = append(result, cand.Slot)
		} else {
			skipped = append(skipped, cand)
		}
	}

	// Fill up from the skipped candidates if the heuristic was too strict.
	for _, cand := range skipped {
		if len(result) >= m {
			break
		}
		result = append(result, cand.Slot)
	}

	return result
}

// link adds a connection from source to target on the given level, pruning
// back to the per-layer maximum when the source is over-connected.
func (h *HNSW) link(source, target uint32, level int) {
	n := h.nodes[source]
	if level >= len(n.connections) {
		return
	}

	for _, c := range n.connections[level] {
		if c == target {
			return
		}
	}

	maxConns := h.mmax
	if level == 0 {
		maxConns = h.mmax0
	}

	if len(n.connections[level]) < maxConns {
		n.connections[level] = append(n.connections[level], target)
		return
	}

	// Over-connected: re-select the best maxConns neighbors.
	candidates := newMaxQueue(maxConns + 1)
	for _, c := range n.connections[level] {
		candidates.Push(queueItem{Slot: c, Distance: h.distFn(n.vector, h.nodes[c].vector)})
	}
	candidates.Push(queueItem{Slot: target, Distance: h.distFn(n.vector, h.nodes[target].vector)})

	n.connections[level] = h.selectNeighbors(candidates, maxConns)
}
