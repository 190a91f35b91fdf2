package display

import (
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/hut/engine/core"
	"github.com/spaghettifunk/hut/engine/suballoc"
)

// stagingAllocator hands out byte ranges within the mapped staging
// buffer; it is a thin wrapper over suballoc.Linear1D keeping the
// allocator decoupled from the Vulkan handle it backs.
type stagingAllocator struct {
	ranges *suballoc.Linear1D[uint64]
}

func newStagingAllocator(capacity uint64) *stagingAllocator {
	return &stagingAllocator{ranges: suballoc.NewLinear1D[uint64](capacity)}
}

func (d *Display) createStaging(capacity uint64) error {
	bufferInfo := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(capacity),
		Usage:       vk.BufferUsageFlags(vk.BufferUsageTransferSrcBit),
		SharingMode: vk.SharingModeExclusive,
	}
	var buffer vk.Buffer
	if res := vk.CreateBuffer(d.Device, &bufferInfo, nil, &buffer); res != vk.Success {
		return core.NewError(core.DeviceLost, "display: failed to create staging buffer")
	}

	var requirements vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(d.Device, buffer, &requirements)
	requirements.Deref()

	memIndex, ok := d.FindMemoryIndex(requirements.MemoryTypeBits,
		vk.MemoryPropertyFlagBits(vk.MemoryPropertyHostVisibleBit|vk.MemoryPropertyHostCoherentBit))
	if !ok {
		vk.DestroyBuffer(d.Device, buffer, nil)
		return core.NewError(core.ResourceExhausted, "display: no host-visible memory type for staging buffer")
	}

	allocInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  requirements.Size,
		MemoryTypeIndex: memIndex,
	}
	var memory vk.DeviceMemory
	if res := vk.AllocateMemory(d.Device, &allocInfo, nil, &memory); res != vk.Success {
		vk.DestroyBuffer(d.Device, buffer, nil)
		return core.Wrap(core.ResourceExhausted, "display: failed to allocate staging memory", nil)
	}
	if res := vk.BindBufferMemory(d.Device, buffer, memory, 0); res != vk.Success {
		vk.FreeMemory(d.Device, memory, nil)
		vk.DestroyBuffer(d.Device, buffer, nil)
		return core.NewError(core.DeviceLost, "display: failed to bind staging memory")
	}

	var mapped unsafe.Pointer
	if res := vk.MapMemory(d.Device, memory, 0, vk.DeviceSize(capacity), 0, &mapped); res != vk.Success {
		vk.FreeMemory(d.Device, memory, nil)
		vk.DestroyBuffer(d.Device, buffer, nil)
		return core.NewError(core.DeviceLost, "display: failed to map staging memory")
	}

	d.stagingBuffer = buffer
	d.stagingMemory = memory
	d.stagingMapped = mapped
	d.stagingAlloc = newStagingAllocator(capacity)
	return nil
}

// StagingSpan is a writable window into the mapped staging buffer,
// handed to an Updator/ImageUpdator for the duration of a write.
type StagingSpan struct {
	Offset uint64
	Bytes  []byte
}

// AllocStaging reserves size bytes (aligned to align) of staging
// space and returns a byte slice aliasing the mapped memory. The
// caller must eventually call FreeStaging(span.Offset) once the
// corresponding copy has been enqueued and is no longer needed for
// writing (the range itself remains valid until the GPU copy completes;
// the caller is responsible for not re-using the span too early).
func (d *Display) AllocStaging(size, align uint64) (StagingSpan, bool) {
	d.stagingMutex.Lock()
	defer d.stagingMutex.Unlock()

	offset, ok := d.stagingAlloc.ranges.Pack(size, align)
	if !ok {
		return StagingSpan{}, false
	}
	ptr := unsafe.Add(d.stagingMapped, offset)
	bytes := unsafe.Slice((*byte)(ptr), size)
	return StagingSpan{Offset: offset, Bytes: bytes}, true
}

// FreeStaging returns a previously allocated staging span.
func (d *Display) FreeStaging(offset uint64) {
	d.stagingMutex.Lock()
	defer d.stagingMutex.Unlock()
	d.stagingAlloc.ranges.Offer(offset)
}

// StagingBuffer exposes the raw handle for components (image update,
// buffer copy) that must reference it directly in a VkBufferCopy /
// VkBufferImageCopy.
func (d *Display) StagingBuffer() vk.Buffer { return d.stagingBuffer }
