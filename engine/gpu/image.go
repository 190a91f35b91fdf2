package gpu

import (
	vk "github.com/goki/vulkan"
	"github.com/google/uuid"

	"github.com/spaghettifunk/hut/engine/core"
	"github.com/spaghettifunk/hut/engine/display"
	gmath "github.com/spaghettifunk/hut/engine/math"
)

// Image owns a VkImage + memory + view, with pixel updates routed
// through the display's staging buffer and a staging update/download
// protocol on top.
type Image struct {
	disp   *display.Display
	handle vk.Image
	memory vk.DeviceMemory
	view   vk.ImageView
	Width  uint32
	Height uint32
	Format vk.Format
	Usage  vk.ImageUsageFlags
	debug  uuid.UUID
}

// NewImage creates a 2-D, single-mip, single-layer image of the given
// extent/format/usage and its full-image view.
func NewImage(disp *display.Display, width, height uint32, format vk.Format, usage vk.ImageUsageFlags, aspect vk.ImageAspectFlags) (*Image, error) {
	core.Invariant(width <= disp.MaxImageSize2D && height <= disp.MaxImageSize2D,
		"gpu: image %dx%d exceeds device max 2-D size %d", width, height, disp.MaxImageSize2D)

	info := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: vk.ImageType2d,
		Format:    format,
		Extent:    vk.Extent3D{Width: width, Height: height, Depth: 1},
		MipLevels: 1,
		ArrayLayers: 1,
		Samples:     vk.SampleCount1Bit,
		Tiling:      vk.ImageTilingOptimal,
		Usage:       usage,
		SharingMode: vk.SharingModeExclusive,
		InitialLayout: vk.ImageLayoutUndefined,
	}
	var handle vk.Image
	if res := vk.CreateImage(disp.Device, &info, nil, &handle); res != vk.Success {
		return nil, core.NewError(core.DeviceLost, "gpu: failed to create image")
	}

	var requirements vk.MemoryRequirements
	vk.GetImageMemoryRequirements(disp.Device, handle, &requirements)
	requirements.Deref()

	memIndex, ok := disp.FindMemoryIndex(requirements.MemoryTypeBits, vk.MemoryPropertyFlagBits(vk.MemoryPropertyDeviceLocalBit))
	if !ok {
		vk.DestroyImage(disp.Device, handle, nil)
		return nil, core.NewError(core.ResourceExhausted, "gpu: no device-local memory type for image")
	}
	allocInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  requirements.Size,
		MemoryTypeIndex: memIndex,
	}
	var memory vk.DeviceMemory
	if res := vk.AllocateMemory(disp.Device, &allocInfo, nil, &memory); res != vk.Success {
		vk.DestroyImage(disp.Device, handle, nil)
		return nil, core.NewError(core.ResourceExhausted, "gpu: failed to allocate image memory")
	}
	if res := vk.BindImageMemory(disp.Device, handle, memory, 0); res != vk.Success {
		vk.FreeMemory(disp.Device, memory, nil)
		vk.DestroyImage(disp.Device, handle, nil)
		return nil, core.NewError(core.DeviceLost, "gpu: failed to bind image memory")
	}

	viewInfo := vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    handle,
		ViewType: vk.ImageViewType2d,
		Format:   format,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask: aspect, BaseMipLevel: 0, LevelCount: 1, BaseArrayLayer: 0, LayerCount: 1,
		},
	}
	var view vk.ImageView
	if res := vk.CreateImageView(disp.Device, &viewInfo, nil, &view); res != vk.Success {
		vk.FreeMemory(disp.Device, memory, nil)
		vk.DestroyImage(disp.Device, handle, nil)
		return nil, core.NewError(core.DeviceLost, "gpu: failed to create image view")
	}

	return &Image{disp: disp, handle: handle, memory: memory, view: view, Width: width, Height: height, Format: format, Usage: usage, debug: uuid.New()}, nil
}

// Handle returns the raw VkImage.
func (img *Image) Handle() vk.Image { return img.handle }

// View returns the full-image VkImageView, the form consumed by
// descriptor writes.
func (img *Image) View() vk.ImageView { return img.view }

// Destroy releases the view, image and memory.
func (img *Image) Destroy() {
	vk.DestroyImageView(img.disp.Device, img.view, nil)
	vk.DestroyImage(img.disp.Device, img.handle, nil)
	vk.FreeMemory(img.disp.Device, img.memory, nil)
}

// rowPitch returns bbox.Width() pixels' row size, padded to the
// device's optimal buffer-copy row pitch alignment.
func rowPitch(disp *display.Display, widthPx uint32, bytesPerPixel uint32) uint64 {
	raw := uint64(widthPx) * uint64(bytesPerPixel)
	return gmath.AlignUp(raw, disp.OptimalRowPitch)
}

// ImageUpdator is a staging handle for one bbox-shaped pixel update:
// Row(i) gives one []byte slice per row of the bbox, already separated
// by the device's required row pitch; Finalize records the
// buffer-to-image copy.
type ImageUpdator struct {
	disp   *display.Display
	img    *Image
	bbox   gmath.IBox
	span   display.StagingSpan
	pitch  uint64
	bpp    uint32
	done   bool
}

// Update reserves staging space for bbox's pixels (bytesPerPixel wide)
// and returns an updator the caller writes rows into.
func (img *Image) Update(bbox gmath.IBox, bytesPerPixel uint32) (*ImageUpdator, error) {
	width := uint32(bbox.Width())
	height := uint32(bbox.Height())
	pitch := rowPitch(img.disp, width, bytesPerPixel)
	size := pitch * uint64(height)

	span, ok := img.disp.AllocStaging(size, uint64(bytesPerPixel))
	if !ok {
		return nil, core.NewError(core.ResourceExhausted, "gpu: staging buffer exhausted for image update")
	}
	return &ImageUpdator{disp: img.disp, img: img, bbox: bbox, span: span, pitch: pitch, bpp: bytesPerPixel}, nil
}

// Row returns a writable slice for row i (0-based within the bbox).
func (u *ImageUpdator) Row(i int) []byte {
	start := uint64(i) * u.pitch
	width := uint64(u.bbox.Width()) * uint64(u.bpp)
	return u.span.Bytes[start : start+width]
}

// Finalize records the buffer-to-image copy with the correct
// subresource, transitioning the image to TRANSFER_DST_OPTIMAL first.
func (u *ImageUpdator) Finalize(cb vk.CommandBuffer) {
	core.Invariant(!u.done, "gpu: double finalize of an ImageUpdator")
	transitionLayout(cb, u.img.handle, vk.ImageLayoutUndefined, vk.ImageLayoutTransferDstOptimal, vk.ImageAspectColorBit)

	region := vk.BufferImageCopy{
		BufferOffset:      vk.DeviceSize(u.span.Offset),
		BufferRowLength:   uint32(u.pitch / uint64(u.bpp)),
		BufferImageHeight: uint32(u.bbox.Height()),
		ImageSubresource:  vk.ImageSubresourceLayers{AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit), MipLevel: 0, BaseArrayLayer: 0, LayerCount: 1},
		ImageOffset:       vk.Offset3D{X: u.bbox.X0, Y: u.bbox.Y0, Z: 0},
		ImageExtent:       vk.Extent3D{Width: uint32(u.bbox.Width()), Height: uint32(u.bbox.Height()), Depth: 1},
	}
	vk.CmdCopyBufferToImage(cb, u.disp.StagingBuffer(), u.img.handle, vk.ImageLayoutTransferDstOptimal, 1, []vk.BufferImageCopy{region})
	transitionLayout(cb, u.img.handle, vk.ImageLayoutTransferDstOptimal, vk.ImageLayoutShaderReadOnlyOptimal, vk.ImageAspectColorBit)
	u.done = true
}

// Download copies bbox's pixels out of the image into dst, respecting
// dstRowPitch as the caller's destination stride. It transitions the
// image to TRANSFER_SRC_OPTIMAL, copies to staging, calls submitAndWait
// (supplied by the render target) to submit cb and block until it
// completes, then copies into dst.
func (img *Image) Download(cb vk.CommandBuffer, bbox gmath.IBox, bytesPerPixel uint32, dst []byte, dstRowPitch uint64, submitAndWait func(vk.CommandBuffer)) error {
	width := uint32(bbox.Width())
	height := uint32(bbox.Height())
	pitch := rowPitch(img.disp, width, bytesPerPixel)
	size := pitch * uint64(height)

	span, ok := img.disp.AllocStaging(size, uint64(bytesPerPixel))
	if !ok {
		return core.NewError(core.ResourceExhausted, "gpu: staging buffer exhausted for image download")
	}
	defer img.disp.FreeStaging(span.Offset)

	transitionLayout(cb, img.handle, vk.ImageLayoutShaderReadOnlyOptimal, vk.ImageLayoutTransferSrcOptimal, vk.ImageAspectColorBit)
	region := vk.BufferImageCopy{
		BufferOffset:      vk.DeviceSize(span.Offset),
		BufferRowLength:   uint32(pitch / uint64(bytesPerPixel)),
		BufferImageHeight: height,
		ImageSubresource:  vk.ImageSubresourceLayers{AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit), MipLevel: 0, BaseArrayLayer: 0, LayerCount: 1},
		ImageOffset:       vk.Offset3D{X: bbox.X0, Y: bbox.Y0, Z: 0},
		ImageExtent:       vk.Extent3D{Width: width, Height: height, Depth: 1},
	}
	vk.CmdCopyImageToBuffer(cb, img.handle, vk.ImageLayoutTransferSrcOptimal, img.disp.StagingBuffer(), 1, []vk.BufferImageCopy{region})
	transitionLayout(cb, img.handle, vk.ImageLayoutTransferSrcOptimal, vk.ImageLayoutShaderReadOnlyOptimal, vk.ImageAspectColorBit)

	submitAndWait(cb)

	rowBytes := uint64(width) * uint64(bytesPerPixel)
	for y := uint32(0); y < height; y++ {
		src := span.Bytes[uint64(y)*pitch : uint64(y)*pitch+rowBytes]
		dstStart := uint64(y) * dstRowPitch
		copy(dst[dstStart:dstStart+rowBytes], src)
	}
	return nil
}

func transitionLayout(cb vk.CommandBuffer, img vk.Image, old, new vk.ImageLayout, aspect vk.ImageAspectFlagBits) {
	barrier := vk.ImageMemoryBarrier{
		SType:               vk.StructureTypeImageMemoryBarrier,
		OldLayout:           old,
		NewLayout:           new,
		SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
		DstQueueFamilyIndex: vk.QueueFamilyIgnored,
		Image:               img,
		SubresourceRange:    vk.ImageSubresourceRange{AspectMask: vk.ImageAspectFlags(aspect), BaseMipLevel: 0, LevelCount: 1, BaseArrayLayer: 0, LayerCount: 1},
	}
	vk.CmdPipelineBarrier(cb, vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit), vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit), 0, 0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{barrier})
}
