package text

import (
	"hash/fnv"

	"github.com/spaghettifunk/hut/engine/suballoc"
)

// IBox is a pixel-space box relative to a word's pen origin (glyph
// offsets may be negative), distinct from engine/math.IBox which the
// atlas/shelf packer use for always-non-negative page coordinates.
type IBox struct {
	X0, Y0, X1, Y1 int32
}

// Union returns the smallest box containing both b and o. An empty
// (zero-value) box acts as the identity.
func (b IBox) Union(o IBox) IBox {
	if b == (IBox{}) {
		return o
	}
	if o == (IBox{}) {
		return b
	}
	x0, y0, x1, y1 := b.X0, b.Y0, b.X1, b.Y1
	if o.X0 < x0 {
		x0 = o.X0
	}
	if o.Y0 < y0 {
		y0 = o.Y0
	}
	if o.X1 > x1 {
		x1 = o.X1
	}
	if o.Y1 > y1 {
		y1 = o.Y1
	}
	return IBox{X0: x0, Y0: y0, X1: x1, Y1: y1}
}

// hashWord computes the stable, deterministic-within-a-run hash the
// word cache keys by. FNV-1a over the UTF-8 bytes stands in for
// std::hash<u8string_view>; any deterministic hash works here, since
// the algorithm itself is left implementation-defined.
func hashWord(s string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return h.Sum64()
}

// growSize implements the doubling rule buffer and batch growth share:
// max(requested, previous*2).
func growSize(requested, previous uint32) uint32 {
	if d := previous * 2; d > requested {
		return d
	}
	return requested
}

// wordEntry is a cached glyph mesh for one word's string within its
// owning batch.
type wordEntry struct {
	slot     uint32
	glyphs   uint32
	refCount uint32
	bbox     IBox
}

// batchState is the pure, allocator-and-cache half of one renderer
// batch (the mesh/draw-store suballocators plus the word cache), with
// no Vulkan calls: directly unit-testable, the way engine/suballoc's
// own allocators are tested apart from the buffers they back.
type batchState struct {
	meshAlloc *suballoc.Linear1D[uint32] // glyph slots (4 vertices + 6 indices each)
	drawAlloc *suballoc.Linear1D[uint32] // word/indirect-command slots
	cache     map[uint64]*wordEntry
}

func newBatchState(meshSize, drawSize uint32) *batchState {
	return &batchState{
		meshAlloc: suballoc.NewLinear1D[uint32](meshSize),
		drawAlloc: suballoc.NewLinear1D[uint32](drawSize),
		cache:     map[uint64]*wordEntry{},
	}
}

// score implements the best-fit scoring formula: the sum of
// already-cached glyph counts (a reuse bonus) for
// the words being allocated, plus free instance capacity * 8, plus
// free mesh capacity. ok is false if the batch cannot hold the words
// at all (draw slots or the mesh budget remaining after reuse).
func (b *batchState) score(hashes []uint64, totalCodepoints, wordCount uint32) (uint32, bool) {
	if !b.drawAlloc.TryFit(wordCount, 1) {
		return 0, false
	}
	var reuse uint32
	for _, h := range hashes {
		if e, ok := b.cache[h]; ok {
			reuse += e.glyphs
		}
	}
	needed := uint32(0)
	if totalCodepoints > reuse {
		needed = totalCodepoints - reuse
	}
	if needed > 0 && !b.meshAlloc.TryFit(needed, 1) {
		return 0, false
	}
	return reuse + b.drawAlloc.Free()*8 + b.meshAlloc.Free(), true
}

// reserveDraw packs wordCount contiguous instance/indirect-command
// slots.
func (b *batchState) reserveDraw(wordCount uint32) (uint32, bool) {
	return b.drawAlloc.Pack(wordCount, 1)
}

// releaseDraw returns a previously reserved instance/indirect range.
func (b *batchState) releaseDraw(offset uint32) {
	b.drawAlloc.Offer(offset)
}

// lookupOrReserve returns the cached entry for hash, or reserves
// codepoints glyph slots and inserts a fresh zero-ref entry if this is
// the batch's first sighting of hash. The caller shapes the word and
// fills in glyphs/bbox only when isNew is true.
func (b *batchState) lookupOrReserve(hash uint64, codepoints uint32) (entry *wordEntry, isNew bool, ok bool) {
	if e, found := b.cache[hash]; found {
		return e, false, true
	}
	slot, fit := b.meshAlloc.Pack(codepoints, 1)
	if !fit {
		return nil, false, false
	}
	e := &wordEntry{slot: slot}
	b.cache[hash] = e
	return e, true, true
}

// release drops one reference to each hash; a word whose ref count
// reaches zero returns its mesh slots and is erased from the cache.
func (b *batchState) release(hashes []uint64) {
	for _, hash := range hashes {
		e, ok := b.cache[hash]
		if !ok {
			continue
		}
		e.refCount--
		if e.refCount == 0 {
			b.meshAlloc.Offer(e.slot)
			delete(b.cache, hash)
		}
	}
}
