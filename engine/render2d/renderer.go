package render2d

import (
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/hut/engine/core"
	"github.com/spaghettifunk/hut/engine/display"
	"github.com/spaghettifunk/hut/engine/gpu"
)

// quadIndex is the fixed 6-index (two-triangle) pattern shared by
// every quad; render2d never needs a per-instance index buffer beyond
// this.
var quadIndex = [6]uint16{0, 1, 2, 2, 1, 3}

// Renderer2D owns a pipeline, an instance buffer pool, and the atlas
// its pipeline samples from. Growable batches are simply the
// underlying gpu.Buffer's pages: its Allocate already implements the
// `max(requested, last*2)` growth rule, so this type adds only the
// instance-encoding and draw-recording on top.
type Renderer2D struct {
	disp     *display.Display
	pipeline *gpu.Pipeline[uint16]
	buffer   *gpu.Buffer
	atlas    *gpu.Atlas
	indexBuf *gpu.BufferSuballoc[uint16]
	indexPool *gpu.Buffer
}

// NewRenderer2D creates the instance buffer pool and uploads the
// shared quad index pattern via a staging update, mirroring
// QuadSuballoc.Write's staging path.
func NewRenderer2D(disp *display.Display, pipeline *gpu.Pipeline[uint16], atlas *gpu.Atlas) (*Renderer2D, error) {
	instanceBuf := gpu.NewBuffer(disp, vk.BufferUsageFlags(vk.BufferUsageVertexBufferBit), vk.MemoryPropertyFlagBits(vk.MemoryPropertyDeviceLocalBit))

	indexBuf := gpu.NewBuffer(disp, vk.BufferUsageFlags(vk.BufferUsageIndexBufferBit), vk.MemoryPropertyFlagBits(vk.MemoryPropertyDeviceLocalBit))
	indexAlloc, err := gpu.Allocate[uint16](indexBuf, 6, 2)
	if err != nil {
		return nil, err
	}

	updator, err := gpu.Update[uint16](disp, indexAlloc, 0, 6)
	if err != nil {
		return nil, err
	}
	copy(updator.Slice(), quadIndex[:])
	updator.Finalize()

	return &Renderer2D{disp: disp, pipeline: pipeline, buffer: instanceBuf, atlas: atlas, indexBuf: indexAlloc, indexPool: indexBuf}, nil
}

// QuadSuballoc is the move-only handle returned by Allocate: a view
// into one instance-buffer page, referencing (renderer, batch_index,
// offset, size).
type QuadSuballoc struct {
	r         *Renderer2D
	batch     *gpu.BufferSuballoc[byte]
	instances int
}

// Count returns the number of instance slots this range holds.
func (q *QuadSuballoc) Count() int { return q.instances }

// Allocate reserves count contiguous 32-byte instance slots, 4-byte
// aligned.
func (r *Renderer2D) Allocate(count int) (*QuadSuballoc, error) {
	core.Invariant(count > 0, "render2d: allocate requires count > 0")
	alloc, err := gpu.Allocate[byte](r.buffer, count*InstanceSize, 4)
	if err != nil {
		return nil, err
	}
	return &QuadSuballoc{r: r, batch: alloc, instances: count}, nil
}

// Write uploads instances (len must equal q.Count()) via the display's
// staging path.
func (q *QuadSuballoc) Write(instances []Instance) error {
	core.Invariant(len(instances) == q.instances, "render2d: Write got %d instances, want %d", len(instances), q.instances)

	updator, err := gpu.Update[byte](q.r.disp, q.batch, 0, q.instances*InstanceSize)
	if err != nil {
		return err
	}
	dst := updator.Slice()
	for i, inst := range instances {
		Encode(inst, dst[i*InstanceSize:(i+1)*InstanceSize])
	}
	updator.Finalize()
	return nil
}

// Release zeros the instance range (degenerating the quads to
// zero-area boxes) and returns it to its page.
func (q *QuadSuballoc) Release(cb vk.CommandBuffer) {
	q.batch.Release(cb)
}

// Draw records one indexed draw per populated buffer page: bind
// pipeline, descriptor set descIndex, instance buffer; draw 6 indices ×
// page.upper_bound() instances. It refreshes the atlas descriptor
// before drawing so newly added pages are visible.
func (r *Renderer2D) Draw(cb vk.CommandBuffer, descIndex int, atlasBinding uint32) {
	r.pipeline.UpdateAtlas(descIndex, atlasBinding)
	r.pipeline.Bind(cb, descIndex)

	indexHandle, indexOffset := r.indexBuf.Handle()

	for i := 0; i < r.buffer.PageCount(); i++ {
		instanceCount := uint32(r.buffer.PageUpperBound(i)) / InstanceSize
		if instanceCount == 0 {
			continue
		}
		r.pipeline.DrawIndexed(cb,
			indexHandle, indexOffset, vk.IndexTypeUint16,
			vk.NullBuffer, 0,
			r.buffer.PageHandle(i), 0,
			6, instanceCount, 0, 0, 0,
		)
	}
}

// Destroy releases the instance and index buffers.
func (r *Renderer2D) Destroy(cb vk.CommandBuffer) {
	r.indexBuf.Release(cb)
	r.indexPool.Destroy()
	r.buffer.Destroy()
}
