package hnsw

import (
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/klauspost/compress/zstd"

	"github.com/vektordb/vektor/distance"
	"github.com/vektordb/vektor/index"
)

const (
	// snapshotMagic identifies index snapshot files (ASCII: "VKT1").
	snapshotMagic = 0x564b5431
	// snapshotVersion is the current snapshot format version.
	snapshotVersion = 1
)

// snapshotHeader is the fixed-size uncompressed prefix of a snapshot file.
// Dimension and metric live here so incompatibility is detected without
// decompressing the payload.
type snapshotHeader struct {
	Magic     uint32
	Version   uint32
	Dimension uint32
	Metric    uint8
	Reserved  [3]byte
}

// snapshotNode mirrors node with exported fields for gob.
type snapshotNode struct {
	ID          uint64
	Layer       int32
	Vector      []float32
	Connections [][]uint32
}

// snapshotPayload is the zstd-compressed gob body. slotByID is not stored:
// it is derivable from the live (non-tombstoned) nodes.
type snapshotPayload struct {
	Entry      uint32
	MaxLevel   int32
	Nodes      []snapshotNode
	Tombstones []byte
}

// SaveToFile implements index.Index. The snapshot is written to a temporary
// file and renamed into place, so a crash mid-write never corrupts an
// existing snapshot.
func (h *HNSW) SaveToFile(path string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := h.saveToWriter(tmp); err != nil {
		tmp.Close()
		return err
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close snapshot: %w", err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename snapshot: %w", err)
	}

	return nil
}

func (h *HNSW) saveToWriter(w io.Writer) error {
	header := snapshotHeader{
		Magic:     snapshotMagic,
		Version:   snapshotVersion,
		Dimension: uint32(h.opts.Dimension),
		Metric:    uint8(h.opts.Metric),
	}
	if err := binary.Write(w, binary.LittleEndian, header); err != nil {
		return fmt.Errorf("write snapshot header: %w", err)
	}

	tombstones, err := h.tombstones.MarshalBinary()
	if err != nil {
		return fmt.Errorf("marshal tombstones: %w", err)
	}

	payload := snapshotPayload{
		Entry:      h.entry,
		MaxLevel:   int32(h.maxLevel),
		Nodes:      make([]snapshotNode, len(h.nodes)),
		Tombstones: tombstones,
	}
	for i, n := range h.nodes {
		payload.Nodes[i] = snapshotNode{
			ID:          n.id,
			Layer:       int32(n.layer),
			Vector:      n.vector,
			Connections: n.connections,
		}
	}

	zw, err := zstd.NewWriter(w)
	if err != nil {
		return fmt.Errorf("create zstd writer: %w", err)
	}

	if err := gob.NewEncoder(zw).Encode(payload); err != nil {
		zw.Close()
		return fmt.Errorf("encode snapshot payload: %w", err)
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("flush snapshot payload: %w", err)
	}

	return nil
}

// LoadFromFile restores an index from a snapshot written by SaveToFile.
// The configured dimension and metric must match the snapshot's; on
// mismatch it fails with ErrIncompatibleSnapshot so the caller can fall
// back to a rebuild.
func LoadFromFile(path string, optFns ...func(o *Options)) (*HNSW, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open snapshot: %w", err)
	}
	defer f.Close()

	return loadFromReader(f, optFns...)
}

func loadFromReader(r io.Reader, optFns ...func(o *Options)) (*HNSW, error) {
	var header snapshotHeader
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		return nil, fmt.Errorf("read snapshot header: %w", err)
	}

	if header.Magic != snapshotMagic {
		return nil, &index.ErrIncompatibleSnapshot{Reason: "invalid magic number"}
	}
	if header.Version != snapshotVersion {
		return nil, &index.ErrIncompatibleSnapshot{
			Reason: fmt.Sprintf("unsupported version %d", header.Version),
		}
	}

	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Dimension != int(header.Dimension) {
		return nil, &index.ErrIncompatibleSnapshot{
			Reason: fmt.Sprintf("dimension mismatch: snapshot %d, configured %d", header.Dimension, opts.Dimension),
		}
	}
	if opts.Metric != distance.Metric(header.Metric) {
		return nil, &index.ErrIncompatibleSnapshot{
			Reason: fmt.Sprintf("metric mismatch: snapshot %s, configured %s", distance.Metric(header.Metric), opts.Metric),
		}
	}

	h, err := New(func(o *Options) { *o = opts })
	if err != nil {
		return nil, err
	}

	zr, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("create zstd reader: %w", err)
	}
	defer zr.Close()

	var payload snapshotPayload
	if err := gob.NewDecoder(zr).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode snapshot payload: %w", err)
	}

	tombstones := roaring.New()
	if len(payload.Tombstones) > 0 {
		if err := tombstones.UnmarshalBinary(payload.Tombstones); err != nil {
			return nil, fmt.Errorf("unmarshal tombstones: %w", err)
		}
	}

	if err := h.restore(payload, tombstones); err != nil {
		return nil, err
	}

	return h, nil
}

func (h *HNSW) restore(payload snapshotPayload, tombstones *roaring.Bitmap) error {
	if err := h.ensureCapacity(len(payload.Nodes)); err != nil {
		return err
	}

	h.nodes = h.nodes[:0]
	for slot, sn := range payload.Nodes {
		if len(sn.Vector) != h.opts.Dimension {
			return &index.ErrIncompatibleSnapshot{
				Reason: fmt.Sprintf("node %d has dimension %d, expected %d", sn.ID, len(sn.Vector), h.opts.Dimension),
			}
		}
		h.nodes = append(h.nodes, &node{
			id:          sn.ID,
			layer:       int(sn.Layer),
			vector:      sn.Vector,
			connections: sn.Connections,
		})
		if !tombstones.Contains(uint32(slot)) {
			h.slotByID[sn.ID] = uint32(slot)
		}
	}

	h.tombstones = tombstones
	h.live = len(h.nodes) - int(tombstones.GetCardinality())
	h.entry = payload.Entry
	h.maxLevel = int(payload.MaxLevel)

	return nil
}

// Provider constructs and restores HNSW indexes with a fixed option set.
type Provider struct {
	optFns []func(o *Options)
}

// Compile-time check.
var _ index.Provider = (*Provider)(nil)

// NewProvider creates a Provider that applies optFns to every index it
// constructs or restores.
func NewProvider(optFns ...func(o *Options)) *Provider {
	return &Provider{optFns: optFns}
}

// New implements index.Provider.
func (p *Provider) New() (index.Index, error) {
	return New(p.optFns...)
}

// LoadFromFile implements index.Provider.
func (p *Provider) LoadFromFile(path string) (index.Index, error) {
	return LoadFromFile(path, p.optFns...)
}
