// Package display models the process-wide GPU context: a device
// handle, its staging buffer, and the capability limits the rest of
// this module builds around. Instance/device/queue bootstrap and
// window/surface creation happen before a Display is constructed and
// are not this package's concern.
package display

import (
	"sync"
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/hut/engine/containers"
	"github.com/spaghettifunk/hut/engine/core"
)

// Features records the subset of device capabilities the rest of the
// module needs to branch on (sampler anisotropy, descriptor-indexing
// flags for atlas growth, etc).
type Features struct {
	SamplerAnisotropy      bool
	MaxSamplerAnisotropy   float32
	DescriptorIndexing     bool
	MaxBoundDescriptorSets uint32
}

// StagingCopy is one pending buffer-to-buffer or buffer-to-image copy
// queued through Enqueue (gpu.Updator.Finalize queues buffer copies),
// awaiting the next flush. gpu.ImageUpdator.Finalize records its copy
// directly into a command buffer and does not queue one here.
type StagingCopy struct {
	SrcOffset uint64
	DstBuffer vk.Buffer
	DstOffset uint64
	Size      uint64

	// ToImage, when true, means this copy targets DstImage/ImageCopy
	// rather than DstBuffer/DstOffset.
	ToImage   bool
	DstImage  vk.Image
	ImageCopy vk.BufferImageCopy
}

// Display is the GPU context shared by every other component in this
// module: a device handle, queues, the staging buffer used for all
// uploads/downloads, and the limits (UBO alignment, max image size,
// feature bits) buffer/image/atlas code must respect.
//
// Mirrors a VulkanDevice/VulkanContext field split, but trimmed to
// exactly what this module's components read; swapchain,
// render-pass tables and per-frame synchronization stay with the
// render-target implementations in engine/gpu.
type Display struct {
	PhysicalDevice vk.PhysicalDevice
	Device         vk.Device
	GraphicsQueue  vk.Queue
	TransferQueue  vk.Queue
	CommandPool    vk.CommandPool

	memoryProperties vk.PhysicalDeviceMemoryProperties

	UBOAlignment    uint64
	OptimalRowPitch uint64
	MaxImageSize2D  uint32
	Features        Features

	stagingMutex  sync.Mutex
	stagingBuffer vk.Buffer
	stagingMemory vk.DeviceMemory
	stagingMapped unsafe.Pointer
	stagingAlloc  *stagingAllocator
	pending       *containers.RingQueue[StagingCopy]
}

// New wraps an already-created device and queue set. stagingCapacity
// is the initial size, in bytes, of the shared staging buffer.
func New(physicalDevice vk.PhysicalDevice, device vk.Device, graphicsQueue, transferQueue vk.Queue, commandPool vk.CommandPool, stagingCapacity uint64) (*Display, error) {
	d := &Display{
		PhysicalDevice: physicalDevice,
		Device:         device,
		GraphicsQueue:  graphicsQueue,
		TransferQueue:  transferQueue,
		CommandPool:    commandPool,
		pending:        containers.NewRingQueue[StagingCopy](64),
	}

	vk.GetPhysicalDeviceMemoryProperties(physicalDevice, &d.memoryProperties)
	d.memoryProperties.Deref()

	var props vk.PhysicalDeviceProperties
	vk.GetPhysicalDeviceProperties(physicalDevice, &props)
	props.Deref()
	props.Limits.Deref()
	d.UBOAlignment = uint64(props.Limits.MinUniformBufferOffsetAlignment)
	d.OptimalRowPitch = uint64(props.Limits.OptimalBufferCopyRowPitchAlignment)
	d.MaxImageSize2D = props.Limits.MaxImageDimension2D

	var features vk.PhysicalDeviceFeatures
	vk.GetPhysicalDeviceFeatures(physicalDevice, &features)
	features.Deref()
	d.Features.SamplerAnisotropy = features.SamplerAnisotropy != vk.False
	if d.Features.SamplerAnisotropy {
		d.Features.MaxSamplerAnisotropy = props.Limits.MaxSamplerAnisotropy
	}
	d.Features.MaxBoundDescriptorSets = props.Limits.MaxBoundDescriptorSets

	if err := d.createStaging(stagingCapacity); err != nil {
		return nil, err
	}
	return d, nil
}

// FindMemoryIndex returns the index of a memory type matching typeFilter
// (a bitmask from VkMemoryRequirements.memoryTypeBits) that also
// supports every flag in propertyFlags.
func (d *Display) FindMemoryIndex(typeFilter uint32, propertyFlags vk.MemoryPropertyFlagBits) (uint32, bool) {
	for i := uint32(0); i < d.memoryProperties.MemoryTypeCount; i++ {
		d.memoryProperties.MemoryTypes[i].Deref()
		hasBit := typeFilter&(1<<i) != 0
		hasFlags := vk.MemoryPropertyFlagBits(d.memoryProperties.MemoryTypes[i].PropertyFlags)&propertyFlags == propertyFlags
		if hasBit && hasFlags {
			return i, true
		}
	}
	core.LogWarn("display: no memory type matches filter 0x%x flags 0x%x", typeFilter, propertyFlags)
	return 0, false
}

// Enqueue records a pending staging copy, to be flushed before the
// next frame's command buffer executes. Safe for concurrent callers.
func (d *Display) Enqueue(copy StagingCopy) {
	d.stagingMutex.Lock()
	defer d.stagingMutex.Unlock()
	d.pending.Enqueue(copy)
}

// FlushStaged drains every pending staging copy into cb, in enqueue
// order, batching them before the command buffer that depends on them
// is submitted.
func (d *Display) FlushStaged(cb vk.CommandBuffer) {
	d.stagingMutex.Lock()
	copies := d.pending.DrainAll()
	d.stagingMutex.Unlock()

	for _, c := range copies {
		if c.ToImage {
			region := c.ImageCopy
			vk.CmdCopyBufferToImage(cb, d.stagingBuffer, c.DstImage, vk.ImageLayoutTransferDstOptimal, 1, []vk.BufferImageCopy{region})
			continue
		}
		region := vk.BufferCopy{SrcOffset: vk.DeviceSize(c.SrcOffset), DstOffset: vk.DeviceSize(c.DstOffset), Size: vk.DeviceSize(c.Size)}
		vk.CmdCopyBuffer(cb, d.stagingBuffer, c.DstBuffer, 1, []vk.BufferCopy{region})
	}
}

// Destroy releases the staging buffer/memory. All other components
// must already have been destroyed.
func (d *Display) Destroy() {
	if d.stagingBuffer != vk.NullBuffer {
		vk.DestroyBuffer(d.Device, d.stagingBuffer, nil)
		d.stagingBuffer = vk.NullBuffer
	}
	if d.stagingMemory != vk.NullDeviceMemory {
		vk.FreeMemory(d.Device, d.stagingMemory, nil)
		d.stagingMemory = vk.NullDeviceMemory
	}
}
