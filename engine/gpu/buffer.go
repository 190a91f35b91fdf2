// Package gpu implements the buffer pool, image/atlas, sampler,
// render target, and pipeline abstractions (spec §4.3-4.7): the
// device-memory layer that render2d and text allocate from.
package gpu

import (
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/google/uuid"

	"github.com/spaghettifunk/hut/engine/core"
	"github.com/spaghettifunk/hut/engine/display"
	"github.com/spaghettifunk/hut/engine/suballoc"
)

// page is one VkBuffer backing a Buffer, chunked by a linear
// suballocator of byte ranges.
type page struct {
	handle   vk.Buffer
	memory   vk.DeviceMemory
	capacity uint64
	alloc    *suballoc.Linear1D[uint64]
}

// Buffer owns a growable list of device-buffer pages, each chunked by
// a linear suballocator. Grounded on spec §4.3 and the teacher's
// VulkanBuffer field set (engine/renderer/vulkan/context.go), with the
// suballocation bookkeeping added since the teacher's own buffer
// abstraction was a stub.
type Buffer struct {
	disp  *display.Display
	usage vk.BufferUsageFlags
	props vk.MemoryPropertyFlagBits
	pages []*page
	debug uuid.UUID
}

// NewBuffer creates an empty buffer pool; the first page is created
// lazily on the first Allocate call.
func NewBuffer(disp *display.Display, usage vk.BufferUsageFlags, props vk.MemoryPropertyFlagBits) *Buffer {
	return &Buffer{disp: disp, usage: usage, props: props, debug: uuid.New()}
}

func (b *Buffer) createPage(size uint64) (*page, error) {
	info := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(size),
		Usage:       b.usage,
		SharingMode: vk.SharingModeExclusive,
	}
	var handle vk.Buffer
	if res := vk.CreateBuffer(b.disp.Device, &info, nil, &handle); res != vk.Success {
		return nil, core.NewError(core.DeviceLost, "gpu: failed to create buffer page")
	}

	var requirements vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(b.disp.Device, handle, &requirements)
	requirements.Deref()

	memIndex, ok := b.disp.FindMemoryIndex(requirements.MemoryTypeBits, b.props)
	if !ok {
		vk.DestroyBuffer(b.disp.Device, handle, nil)
		return nil, core.NewError(core.ResourceExhausted, "gpu: no memory type for buffer page")
	}
	allocInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  requirements.Size,
		MemoryTypeIndex: memIndex,
	}
	var memory vk.DeviceMemory
	if res := vk.AllocateMemory(b.disp.Device, &allocInfo, nil, &memory); res != vk.Success {
		vk.DestroyBuffer(b.disp.Device, handle, nil)
		return nil, core.NewError(core.ResourceExhausted, "gpu: failed to allocate buffer page memory")
	}
	if res := vk.BindBufferMemory(b.disp.Device, handle, memory, 0); res != vk.Success {
		vk.FreeMemory(b.disp.Device, memory, nil)
		vk.DestroyBuffer(b.disp.Device, handle, nil)
		return nil, core.NewError(core.DeviceLost, "gpu: failed to bind buffer page memory")
	}

	return &page{handle: handle, memory: memory, capacity: size, alloc: suballoc.NewLinear1D[uint64](size)}, nil
}

// elemSizeOf returns the byte size of a fixed-size element type T.
func elemSizeOf[T any]() uint64 {
	var zero T
	return uint64(unsafe.Sizeof(zero))
}

// Allocate reserves room for count elements of T, searching existing
// pages in order before growing. Growth size follows spec §4.3:
// max(requested_bytes, last_page_capacity*2).
func Allocate[T any](b *Buffer, count int, align uint64) (*BufferSuballoc[T], error) {
	core.Invariant(count > 0, "gpu: Allocate requires count > 0")
	elemSize := elemSizeOf[T]()
	size := elemSize * uint64(count)
	if align == 0 {
		align = elemSize
	}

	for i, p := range b.pages {
		if off, ok := p.alloc.Pack(size, align); ok {
			return &BufferSuballoc[T]{buf: b, pageIndex: i, offset: off, size: size, count: count}, nil
		}
	}

	newCap := size
	if len(b.pages) > 0 {
		if last := b.pages[len(b.pages)-1].capacity * 2; last > newCap {
			newCap = last
		}
	}
	p, err := b.createPage(newCap)
	if err != nil {
		return nil, err
	}
	b.pages = append(b.pages, p)

	off, ok := p.alloc.Pack(size, align)
	core.Invariant(ok, "gpu: freshly created page of size %d could not fit %d bytes", newCap, size)
	return &BufferSuballoc[T]{buf: b, pageIndex: len(b.pages) - 1, offset: off, size: size, count: count}, nil
}

// PageCount returns the number of pages currently allocated.
func (b *Buffer) PageCount() int { return len(b.pages) }

// PageHandle returns page i's raw VkBuffer.
func (b *Buffer) PageHandle(i int) vk.Buffer { return b.pages[i].handle }

// PageCapacity returns page i's total byte capacity.
func (b *Buffer) PageCapacity(i int) uint64 { return b.pages[i].capacity }

// PageUpperBound returns the end of the highest used block on page i,
// bounding an indexed/indirect draw issued over that page's instances.
func (b *Buffer) PageUpperBound(i int) uint64 { return b.pages[i].alloc.UpperBound() }

// PageTryFit probes, without allocating, whether page i can fit size
// bytes at the given alignment.
func (b *Buffer) PageTryFit(i int, size, align uint64) bool { return b.pages[i].alloc.TryFit(size, align) }

// PageFree returns page i's free byte count.
func (b *Buffer) PageFree(i int) uint64 { return b.pages[i].alloc.Free() }

// Destroy frees every page. The buffer must have no live suballocs.
func (b *Buffer) Destroy() {
	for _, p := range b.pages {
		vk.DestroyBuffer(b.disp.Device, p.handle, nil)
		vk.FreeMemory(b.disp.Device, p.memory, nil)
	}
	b.pages = nil
}

// BufferSuballoc is a typed, move-only view of a byte range within one
// page of a Buffer: (page, offset_bytes, size_bytes). Per spec's
// Design Notes, it is modeled as a (container_id, slot_id) style pair
// instead of holding a pointer back to its page.
type BufferSuballoc[T any] struct {
	buf       *Buffer
	pageIndex int
	offset    uint64
	size      uint64
	count     int
	released  bool
}

// Handle returns the owning page's VkBuffer and this range's byte
// offset, for binding as a vertex/instance/index buffer.
func (s *BufferSuballoc[T]) Handle() (vk.Buffer, uint64) {
	return s.buf.pages[s.pageIndex].handle, s.offset
}

// Count returns the number of T elements this range holds.
func (s *BufferSuballoc[T]) Count() int { return s.count }

// SizeBytes returns the byte length of the range.
func (s *BufferSuballoc[T]) SizeBytes() uint64 { return s.size }

// Zero records a device-side fill of zeros over the whole range.
func (s *BufferSuballoc[T]) Zero(cb vk.CommandBuffer) {
	p := s.buf.pages[s.pageIndex]
	vk.CmdFillBuffer(cb, p.handle, vk.DeviceSize(s.offset), vk.DeviceSize(s.size), 0)
}

// ZeroRange records a device-side fill of zeros over a sub-range of
// this suballoc, given as an element offset/count. Used by batch-style
// allocators (e.g. engine/text) whose suballoc represents a whole
// growable array shared by many independently-released sub-ranges,
// rather than one caller's exclusive range.
func (s *BufferSuballoc[T]) ZeroRange(cb vk.CommandBuffer, offsetElems, count int) {
	elemSize := elemSizeOf[T]()
	core.Invariant(offsetElems+count <= s.count, "gpu: zero range [%d,%d) exceeds suballoc of %d elements", offsetElems, offsetElems+count, s.count)
	p := s.buf.pages[s.pageIndex]
	vk.CmdFillBuffer(cb, p.handle, vk.DeviceSize(s.offset+uint64(offsetElems)*elemSize), vk.DeviceSize(uint64(count)*elemSize), 0)
}

// Release zeros the range and returns it to its page's free list.
// Per spec §4.3, callers must not use the suballoc afterward. cb
// records the zero-fill; the byte range becomes reusable once that
// work is observed complete (spec §5's cancellation note: the caller
// must keep the owning resources alive at least one more frame).
func (s *BufferSuballoc[T]) Release(cb vk.CommandBuffer) {
	core.Invariant(!s.released, "gpu: double release of a BufferSuballoc")
	s.Zero(cb)
	s.buf.pages[s.pageIndex].alloc.Offer(s.offset)
	s.released = true
}

// Update allocates a matching range on the display's staging buffer
// and returns an Updator the caller writes element data into.
func Update[T any](disp *display.Display, target *BufferSuballoc[T], offsetElems, count int) (*Updator[T], error) {
	elemSize := elemSizeOf[T]()
	core.Invariant(offsetElems+count <= target.count, "gpu: update range [%d,%d) exceeds suballoc of %d elements", offsetElems, offsetElems+count, target.count)

	size := elemSize * uint64(count)
	span, ok := disp.AllocStaging(size, elemSize)
	if !ok {
		return nil, core.NewError(core.ResourceExhausted, "gpu: staging buffer exhausted")
	}
	return &Updator[T]{
		disp:        disp,
		span:        span,
		target:      target,
		offsetBytes: uint64(offsetElems) * elemSize,
		size:        size,
	}, nil
}

// Updator is a scoped staging handle (spec §4.3/§9): Slice() gives the
// caller a mapped view to write into; Finalize records the copy from
// staging to the target range and must be called exactly once before
// the updator goes out of scope.
type Updator[T any] struct {
	disp        *display.Display
	span        display.StagingSpan
	target      *BufferSuballoc[T]
	offsetBytes uint64
	size        uint64
	done        bool
}

// Slice returns the mapped staging memory as a []T the caller may
// write directly.
func (u *Updator[T]) Slice() []T {
	return unsafe.Slice((*T)(unsafe.Pointer(&u.span.Bytes[0])), u.size/elemSizeOf[T]())
}

// Finalize enqueues the staging-to-target copy. The copy becomes
// visible to command buffers recorded after this call, per spec §5's
// first ordering guarantee.
func (u *Updator[T]) Finalize() {
	core.Invariant(!u.done, "gpu: double finalize of an Updator")
	targetBuf, targetOffset := u.target.Handle()
	u.disp.Enqueue(display.StagingCopy{
		SrcOffset: u.span.Offset,
		DstBuffer: targetBuf,
		DstOffset: targetOffset + u.offsetBytes,
		Size:      u.size,
	})
	u.done = true
}
