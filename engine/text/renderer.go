package text

import (
	"encoding/binary"
	"unicode/utf8"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/hut/engine/core"
	"github.com/spaghettifunk/hut/engine/display"
	"github.com/spaghettifunk/hut/engine/gpu"
	gmath "github.com/spaghettifunk/hut/engine/math"
)

// Vertex is one corner of a glyph quad: a raw pixel position and a
// snorm16-packed UV coordinate whose sign bits also carry the atlas
// page.
type Vertex struct {
	X, Y int16
	U, V int16
}

// VertexSize is the packed wire size of one glyph-quad vertex.
const VertexSize = 8

// Encode writes v's wire representation into dst (8 bytes).
func (v Vertex) Encode(dst []byte) {
	binary.LittleEndian.PutUint16(dst[0:2], uint16(v.X))
	binary.LittleEndian.PutUint16(dst[2:4], uint16(v.Y))
	binary.LittleEndian.PutUint16(dst[4:6], uint16(v.U))
	binary.LittleEndian.PutUint16(dst[6:8], uint16(v.V))
}

// Instance is one word's per-draw data: the pen position it is drawn
// at and a solid RGBA color, the minimal shape a text renderer needs.
type Instance struct {
	X, Y  int32
	Color [4]uint8
}

// InstanceSize is the packed wire size of one draw instance.
const InstanceSize = 12

// Encode writes inst's wire representation into dst (12 bytes).
func (inst Instance) Encode(dst []byte) {
	binary.LittleEndian.PutUint32(dst[0:4], uint32(inst.X))
	binary.LittleEndian.PutUint32(dst[4:8], uint32(inst.Y))
	copy(dst[8:12], inst.Color[:])
}

// encodeAtlasPageUV flips the sign of (u,v) per atlas page index,
// letting up to 4 pages share one snorm16 UV pair without a uniform
// switch. Behavior beyond 4 pages is undefined, so this panics.
func encodeAtlasPageUV(u, v float32, page int) (int16, int16) {
	switch page {
	case 0:
	case 1:
		v = -v
	case 2:
		u = -u
	case 3:
		u, v = -u, -v
	default:
		core.Assert(false, "text: atlas page %d exceeds the 4-page UV sign encoding limit", page)
	}
	return gmath.PackSnorm16(u), gmath.PackSnorm16(v)
}

func encodeVertex(x, y int32, u, v float32, page int) Vertex {
	su, sv := encodeAtlasPageUV(u, v, page)
	return Vertex{X: int16(x), Y: int16(y), U: su, V: sv}
}

// meshStore holds one batch's glyph vertex/index arrays plus the
// glyph-slot allocator.
type meshStore struct {
	vertices *gpu.BufferSuballoc[Vertex]
	indices  *gpu.BufferSuballoc[uint16]
}

// drawStore holds one batch's per-word instance and indirect-command
// arrays plus the word-slot allocator.
type drawStore struct {
	instances *gpu.BufferSuballoc[Instance]
	commands  *gpu.BufferSuballoc[vk.DrawIndexedIndirectCommand]
}

// batch pairs the pure allocator/cache bookkeeping (batchState) with
// the GPU-backed storage it describes.
type batch struct {
	state *batchState
	mesh  meshStore
	draw  drawStore
}

// Params holds pipeline parameters plus the two initial store sizes.
type Params struct {
	Pipeline             gpu.PipelineParams
	InitialMeshStoreSize uint32
	InitialDrawStoreSize uint32
}

// DefaultParams returns the documented defaults: 8Ki glyph slots, 1Ki
// word slots.
func DefaultParams() Params {
	return Params{Pipeline: gpu.DefaultPipelineParams(), InitialMeshStoreSize: 8 * 1024, InitialDrawStoreSize: 1024}
}

// Renderer shapes word strings via a Shaper, caches the resulting
// glyph meshes per batch, and draws every batch as one indexed
// indirect call.
type Renderer struct {
	disp        *display.Display
	pipeline    *gpu.Pipeline[uint16]
	vertexBuf   *gpu.Buffer
	indexBuf    *gpu.Buffer
	instanceBuf *gpu.Buffer
	commandBuf  *gpu.Buffer
	atlas       *gpu.Atlas
	shaper      Shaper

	batches []*batch
}

// NewRenderer creates the renderer's four backing buffer pools --
// vertex, index, instance, and indirect-command, one usage flag each,
// matching render2d's one-buffer-per-usage style -- and, if both
// initial sizes are positive, its first batch.
func NewRenderer(disp *display.Display, pipeline *gpu.Pipeline[uint16], atlas *gpu.Atlas, shaper Shaper, params Params) (*Renderer, error) {
	deviceLocal := vk.MemoryPropertyFlagBits(vk.MemoryPropertyDeviceLocalBit)
	r := &Renderer{
		disp:        disp,
		pipeline:    pipeline,
		vertexBuf:   gpu.NewBuffer(disp, vk.BufferUsageFlags(vk.BufferUsageVertexBufferBit), deviceLocal),
		indexBuf:    gpu.NewBuffer(disp, vk.BufferUsageFlags(vk.BufferUsageIndexBufferBit), deviceLocal),
		instanceBuf: gpu.NewBuffer(disp, vk.BufferUsageFlags(vk.BufferUsageVertexBufferBit), deviceLocal),
		commandBuf:  gpu.NewBuffer(disp, vk.BufferUsageFlags(vk.BufferUsageIndirectBufferBit), deviceLocal),
		atlas:       atlas,
		shaper:      shaper,
	}
	if params.InitialMeshStoreSize > 0 && params.InitialDrawStoreSize > 0 {
		if _, err := r.grow(params.InitialMeshStoreSize, params.InitialDrawStoreSize); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// grow appends a new batch sized by the shared growth rule (max of the
// requested size and twice the previous batch's capacity), matching
// render2d's identical rule.
func (r *Renderer) grow(meshSize, drawSize uint32) (*batch, error) {
	var lastMesh, lastDraw uint32
	if n := len(r.batches); n > 0 {
		last := r.batches[n-1]
		lastMesh = uint32(last.state.meshAlloc.Capacity())
		lastDraw = uint32(last.state.drawAlloc.Capacity())
	}
	meshSize = growSize(meshSize, lastMesh)
	drawSize = growSize(drawSize, lastDraw)
	core.Invariant(meshSize > 0 && drawSize > 0, "text: grow requires positive mesh/draw sizes")

	vertices, err := gpu.Allocate[Vertex](r.vertexBuf, int(meshSize)*4, 0)
	if err != nil {
		return nil, err
	}
	indices, err := gpu.Allocate[uint16](r.indexBuf, int(meshSize)*6, 2)
	if err != nil {
		return nil, err
	}
	instances, err := gpu.Allocate[Instance](r.instanceBuf, int(drawSize), 0)
	if err != nil {
		return nil, err
	}
	commands, err := gpu.Allocate[vk.DrawIndexedIndirectCommand](r.commandBuf, int(drawSize), 0)
	if err != nil {
		return nil, err
	}

	b := &batch{
		state: newBatchState(meshSize, drawSize),
		mesh:  meshStore{vertices: vertices, indices: indices},
		draw:  drawStore{instances: instances, commands: commands},
	}
	r.batches = append(r.batches, b)
	return b, nil
}

// findBestFit scores every existing batch and returns the index of the
// highest-scoring one that fits. A fitting batch always has free draw
// slots and so scores above zero; a new batch is grown only when no
// existing batch fits.
func (r *Renderer) findBestFit(hashes []uint64, totalCodepoints, wordCount uint32) (int, error) {
	bestBatch := -1
	var bestScore uint32
	for i, b := range r.batches {
		score, ok := b.state.score(hashes, totalCodepoints, wordCount)
		if !ok {
			continue
		}
		if score > bestScore {
			bestBatch = i
			bestScore = score
		}
	}
	if bestBatch == -1 {
		if _, err := r.grow(totalCodepoints, wordCount); err != nil {
			return 0, err
		}
		bestBatch = len(r.batches) - 1
	}
	return bestBatch, nil
}

type shapedGlyph struct {
	bbox IBox
	uv   [4]float32
	page int
}

// shapeWord shapes word via the renderer's Shaper, writes its glyph
// vertices/indices into entry's reserved mesh slot, and records the
// resulting glyph count and bbox. Only called for a word cache miss.
func (r *Renderer) shapeWord(cb vk.CommandBuffer, b *batch, entry *wordEntry, word string) error {
	codepoints := utf8.RuneCountInString(word)
	glyphs := make([]shapedGlyph, 0, codepoints)
	var bbox IBox
	if err := r.shaper.Shape(cb, r.atlas, word, func(_ uint32, gbbox IBox, uv [4]float32, page int) {
		glyphs = append(glyphs, shapedGlyph{bbox: gbbox, uv: uv, page: page})
		bbox = bbox.Union(gbbox)
	}); err != nil {
		return err
	}

	entry.glyphs = uint32(len(glyphs))
	entry.bbox = bbox
	if entry.glyphs == 0 {
		return nil
	}

	vUpdator, err := gpu.Update[Vertex](r.disp, b.mesh.vertices, int(entry.slot)*4, int(entry.glyphs)*4)
	if err != nil {
		return err
	}
	iUpdator, err := gpu.Update[uint16](r.disp, b.mesh.indices, int(entry.slot)*6, int(entry.glyphs)*6)
	if err != nil {
		return err
	}
	vs := vUpdator.Slice()
	is := iUpdator.Slice()
	for i, g := range glyphs {
		base := uint16(i * 4)
		vs[i*4+0] = encodeVertex(g.bbox.X0, g.bbox.Y0, g.uv[0], g.uv[1], g.page)
		vs[i*4+1] = encodeVertex(g.bbox.X0, g.bbox.Y1, g.uv[0], g.uv[3], g.page)
		vs[i*4+2] = encodeVertex(g.bbox.X1, g.bbox.Y0, g.uv[2], g.uv[1], g.page)
		vs[i*4+3] = encodeVertex(g.bbox.X1, g.bbox.Y1, g.uv[2], g.uv[3], g.page)

		is[i*6+0] = base + 0
		is[i*6+1] = base + 1
		is[i*6+2] = base + 2
		is[i*6+3] = base + 2
		is[i*6+4] = base + 1
		is[i*6+5] = base + 3
	}
	vUpdator.Finalize()
	iUpdator.Finalize()
	return nil
}

// Allocate shapes (or reuses cached meshes for) each word in words,
// reserves one instance/indirect-command slot per word, and returns a
// WordsHolder the caller writes per-word position/color into via
// Write.
func (r *Renderer) Allocate(cb vk.CommandBuffer, words []string) (*WordsHolder, error) {
	core.Invariant(len(words) > 0, "text: allocate requires at least one word")

	hashes := make([]uint64, len(words))
	codepoints := make([]uint32, len(words))
	var total uint32
	for i, w := range words {
		hashes[i] = hashWord(w)
		codepoints[i] = uint32(utf8.RuneCountInString(w))
		total += codepoints[i]
	}

	batchIdx, err := r.findBestFit(hashes, total, uint32(len(words)))
	if err != nil {
		return nil, err
	}
	b := r.batches[batchIdx]

	drawOffset, ok := b.state.reserveDraw(uint32(len(words)))
	core.Invariant(ok, "text: draw-store reservation failed after findBestFit selected a fitting batch")

	cmdUpdator, err := gpu.Update[vk.DrawIndexedIndirectCommand](r.disp, b.draw.commands, int(drawOffset), len(words))
	if err != nil {
		b.state.releaseDraw(drawOffset)
		return nil, err
	}
	cmds := cmdUpdator.Slice()

	bboxes := make([]IBox, len(words))
	for i, w := range words {
		entry, isNew, fit := b.state.lookupOrReserve(hashes[i], codepoints[i])
		core.Invariant(fit, "text: mesh-store reservation failed after findBestFit selected a fitting batch")
		if isNew {
			if err := r.shapeWord(cb, b, entry, w); err != nil {
				return nil, err
			}
		}
		entry.refCount++
		bboxes[i] = entry.bbox

		cmds[i] = vk.DrawIndexedIndirectCommand{
			IndexCount:    6 * entry.glyphs,
			InstanceCount: 1,
			FirstIndex:    entry.slot * 6,
			VertexOffset:  int32(entry.slot * 4),
			FirstInstance: drawOffset + uint32(i),
		}
	}
	cmdUpdator.Finalize()

	return &WordsHolder{
		renderer: r, batch: batchIdx, offset: drawOffset, count: uint32(len(words)),
		bboxes: bboxes, hashes: hashes,
	}, nil
}

// Draw binds the pipeline and descriptor set descIndex, then records one indexed
// indirect draw per batch over its current upper bound.
func (r *Renderer) Draw(cb vk.CommandBuffer, descIndex int, atlasBinding uint32) {
	r.pipeline.UpdateAtlas(descIndex, atlasBinding)
	r.pipeline.Bind(cb, descIndex)

	for _, b := range r.batches {
		drawCount := uint32(b.state.drawAlloc.UpperBound())
		if drawCount == 0 {
			continue
		}
		indexHandle, indexOffset := b.mesh.indices.Handle()
		vertexHandle, vertexOffset := b.mesh.vertices.Handle()
		instanceHandle, instanceOffset := b.draw.instances.Handle()
		cmdHandle, cmdOffset := b.draw.commands.Handle()

		r.pipeline.DrawIndexedIndirect(cb,
			indexHandle, indexOffset, vk.IndexTypeUint16,
			vertexHandle, vertexOffset,
			instanceHandle, instanceOffset,
			cmdHandle, cmdOffset, drawCount,
		)
	}
}

// Destroy releases every batch's GPU buffers.
func (r *Renderer) Destroy() {
	r.vertexBuf.Destroy()
	r.indexBuf.Destroy()
	r.instanceBuf.Destroy()
	r.commandBuf.Destroy()
}

// WordsHolder owns one reserved range of per-word instance slots, plus
// the per-word bbox/hash arrays needed to release cleanly.
type WordsHolder struct {
	renderer *Renderer
	batch    int
	offset   uint32
	count    uint32
	bboxes   []IBox
	hashes   []uint64
	released bool
}

// Count returns the number of words this holder reserved slots for.
func (w *WordsHolder) Count() uint32 { return w.count }

// Bbox returns the i'th word's cached pixel bounding box.
func (w *WordsHolder) Bbox(i int) IBox { return w.bboxes[i] }

// Write uploads this holder's per-word instance data (position and
// color), mirroring render2d.QuadSuballoc.Write: Allocate only
// reserves the range, the caller supplies final values separately.
func (w *WordsHolder) Write(instances []Instance) error {
	core.Invariant(len(instances) == int(w.count), "text: Write got %d instances, want %d", len(instances), w.count)
	b := w.renderer.batches[w.batch]
	updator, err := gpu.Update[Instance](w.renderer.disp, b.draw.instances, int(w.offset), int(w.count))
	if err != nil {
		return err
	}
	dst := updator.Slice()
	copy(dst, instances)
	updator.Finalize()
	return nil
}

// Release zeros the indirect-command range, returns the instance
// slots to the draw-store allocator, and decrements each referenced
// word's ref count, freeing mesh slots and erasing the cache entry for
// any word whose count reaches zero. Mesh vertex/index bytes are left
// unzeroed: only the indirect commands that referenced them are
// cleared.
func (w *WordsHolder) Release(cb vk.CommandBuffer) {
	core.Invariant(!w.released, "text: double release of a WordsHolder")
	b := w.renderer.batches[w.batch]
	b.draw.commands.ZeroRange(cb, int(w.offset), int(w.count))
	b.state.releaseDraw(w.offset)
	b.state.release(w.hashes)
	w.released = true
}
