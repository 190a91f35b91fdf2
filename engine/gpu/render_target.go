package gpu

import (
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/hut/engine/core"
	"github.com/spaghettifunk/hut/engine/display"
	gmath "github.com/spaghettifunk/hut/engine/math"
)

// RenderTargetFlags is the offscreen flag set.
type RenderTargetFlags uint32

const (
	FlagDepth RenderTargetFlags = 1 << iota
	FlagMultisampling
)

// RenderTargetParams is the capability contract's params() result.
type RenderTargetParams struct {
	ViewportBox      gmath.IBox
	Format           vk.Format
	ClearColor       [4]float32
	ClearDepth       float32
	ClearStencil     uint32
	InitialLayout    vk.ImageLayout
	FinalLayout      vk.ImageLayout
	Flags            RenderTargetFlags
}

// RenderTarget is the narrow capability interface: only
// renderpass()/sample_count()/params() plus the two recording scope
// methods. Offscreen is the only implementation in this module; no
// window-backed implementation is provided.
type RenderTarget interface {
	RenderPass() vk.RenderPass
	SampleCount() vk.SampleCountFlagBits
	Params() RenderTargetParams
	BeginCB(fboIndex int, cb vk.CommandBuffer)
	EndCB(cb vk.CommandBuffer)
}

// Offscreen is a RenderTarget that renders into a caller-supplied color
// image (which it does not own) and owns its optional depth and MSAA
// images, suitable for headless rendering
// and round-trip upload/render/download tests.
type Offscreen struct {
	disp   *display.Display
	params RenderTargetParams

	renderPass  vk.RenderPass
	framebuffer vk.Framebuffer
	colorImage  *Image
	depthImage  *Image
	msaaImage   *Image

	fence vk.Fence
}

// NewOffscreen creates a render target owning a single color
// attachment (the caller's target image) sized to params.ViewportBox,
// building the render pass/framebuffer.
func NewOffscreen(disp *display.Display, target *Image, params RenderTargetParams) (*Offscreen, error) {
	o := &Offscreen{disp: disp, params: params, colorImage: target}
	if err := o.reinitPass(); err != nil {
		return nil, err
	}

	fenceInfo := vk.FenceCreateInfo{SType: vk.StructureTypeFenceCreateInfo}
	if res := vk.CreateFence(disp.Device, &fenceInfo, nil, &o.fence); res != vk.Success {
		return nil, core.NewError(core.DeviceLost, "gpu: failed to create offscreen fence")
	}
	return o, nil
}

// reinitPass builds the render pass, owned MSAA/depth images, and
// framebuffer. When FlagMultisampling is set, the color attachment
// written by the subpass is the multisampled o.msaaImage (store
// discarded: its only purpose is resolving), and a second,
// single-sample resolve attachment pointing at the caller's colorImage
// is wired via PResolveAttachments, per spec §4.6's MSAA-resolve
// protocol.
func (o *Offscreen) reinitPass() error {
	multisampled := o.params.Flags&FlagMultisampling != 0

	var views []vk.ImageView
	var attachments []vk.AttachmentDescription

	if multisampled {
		msaaImg, err := NewImage(o.disp, uint32(o.params.ViewportBox.Width()), uint32(o.params.ViewportBox.Height()),
			o.params.Format, vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit|vk.ImageUsageTransientAttachmentBit), vk.ImageAspectFlags(vk.ImageAspectColorBit))
		if err != nil {
			return err
		}
		o.msaaImage = msaaImg
		attachments = append(attachments, vk.AttachmentDescription{
			Format: o.params.Format, Samples: o.SampleCount(),
			LoadOp: vk.AttachmentLoadOpClear, StoreOp: vk.AttachmentStoreOpDontCare,
			StencilLoadOp: vk.AttachmentLoadOpDontCare, StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout: vk.ImageLayoutUndefined, FinalLayout: vk.ImageLayoutColorAttachmentOptimal,
		})
		views = append(views, o.msaaImage.View())
	} else {
		attachments = append(attachments, vk.AttachmentDescription{
			Format:         o.params.Format,
			Samples:        o.SampleCount(),
			LoadOp:         vk.AttachmentLoadOpClear,
			StoreOp:        vk.AttachmentStoreOpStore,
			StencilLoadOp:  vk.AttachmentLoadOpDontCare,
			StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout:  o.params.InitialLayout,
			FinalLayout:    o.params.FinalLayout,
		})
		views = append(views, o.colorImage.View())
	}
	colorRef := vk.AttachmentReference{Attachment: 0, Layout: vk.ImageLayoutColorAttachmentOptimal}

	subpass := vk.SubpassDescription{
		PipelineBindPoint:    vk.PipelineBindPointGraphics,
		ColorAttachmentCount: 1,
		PColorAttachments:    []vk.AttachmentReference{colorRef},
	}

	if o.params.Flags&FlagDepth != 0 {
		depthImg, err := NewImage(o.disp, uint32(o.params.ViewportBox.Width()), uint32(o.params.ViewportBox.Height()),
			vk.FormatD32Sfloat, vk.ImageUsageFlags(vk.ImageUsageDepthStencilAttachmentBit), vk.ImageAspectFlags(vk.ImageAspectDepthBit))
		if err != nil {
			return err
		}
		o.depthImage = depthImg
		attachments = append(attachments, vk.AttachmentDescription{
			Format: vk.FormatD32Sfloat, Samples: o.SampleCount(),
			LoadOp: vk.AttachmentLoadOpClear, StoreOp: vk.AttachmentStoreOpDontCare,
			StencilLoadOp: vk.AttachmentLoadOpDontCare, StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout: vk.ImageLayoutUndefined, FinalLayout: vk.ImageLayoutDepthStencilAttachmentOptimal,
		})
		depthRef := vk.AttachmentReference{Attachment: uint32(len(attachments) - 1), Layout: vk.ImageLayoutDepthStencilAttachmentOptimal}
		subpass.PDepthStencilAttachment = &depthRef
		views = append(views, o.depthImage.View())
	}

	if multisampled {
		attachments = append(attachments, vk.AttachmentDescription{
			Format: o.params.Format, Samples: vk.SampleCount1Bit,
			LoadOp: vk.AttachmentLoadOpDontCare, StoreOp: vk.AttachmentStoreOpStore,
			StencilLoadOp: vk.AttachmentLoadOpDontCare, StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout: o.params.InitialLayout, FinalLayout: o.params.FinalLayout,
		})
		resolveRef := vk.AttachmentReference{Attachment: uint32(len(attachments) - 1), Layout: vk.ImageLayoutColorAttachmentOptimal}
		subpass.PResolveAttachments = []vk.AttachmentReference{resolveRef}
		views = append(views, o.colorImage.View())
	}

	passInfo := vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		SubpassCount:    1,
		PSubpasses:      []vk.SubpassDescription{subpass},
	}
	if res := vk.CreateRenderPass(o.disp.Device, &passInfo, nil, &o.renderPass); res != vk.Success {
		return core.NewError(core.DeviceLost, "gpu: failed to create offscreen render pass")
	}

	fbInfo := vk.FramebufferCreateInfo{
		SType:           vk.StructureTypeFramebufferCreateInfo,
		RenderPass:      o.renderPass,
		AttachmentCount: uint32(len(views)),
		PAttachments:    views,
		Width:           uint32(o.params.ViewportBox.Width()),
		Height:          uint32(o.params.ViewportBox.Height()),
		Layers:          1,
	}
	if res := vk.CreateFramebuffer(o.disp.Device, &fbInfo, nil, &o.framebuffer); res != vk.Success {
		return core.NewError(core.DeviceLost, "gpu: failed to create offscreen framebuffer")
	}
	return nil
}

// RenderPass implements RenderTarget.
func (o *Offscreen) RenderPass() vk.RenderPass { return o.renderPass }

// SampleCount implements RenderTarget.
func (o *Offscreen) SampleCount() vk.SampleCountFlagBits {
	if o.params.Flags&FlagMultisampling != 0 {
		return vk.SampleCount4Bit
	}
	return vk.SampleCount1Bit
}

// Params implements RenderTarget.
func (o *Offscreen) Params() RenderTargetParams { return o.params }

// BeginCB starts the render pass with viewport/scissor set from the
// params box.
func (o *Offscreen) BeginCB(_ int, cb vk.CommandBuffer) {
	clear := []vk.ClearValue{vk.NewClearValue([]float32{o.params.ClearColor[0], o.params.ClearColor[1], o.params.ClearColor[2], o.params.ClearColor[3]})}
	if o.depthImage != nil {
		clear = append(clear, vk.NewClearDepthStencil(o.params.ClearDepth, o.params.ClearStencil))
	}
	box := o.params.ViewportBox
	passBegin := vk.RenderPassBeginInfo{
		SType:       vk.StructureTypeRenderPassBeginInfo,
		RenderPass:  o.renderPass,
		Framebuffer: o.framebuffer,
		RenderArea: vk.Rect2D{
			Offset: vk.Offset2D{X: box.X0, Y: box.Y0},
			Extent: vk.Extent2D{Width: uint32(box.Width()), Height: uint32(box.Height())},
		},
		ClearValueCount: uint32(len(clear)),
		PClearValues:    clear,
	}
	vk.CmdBeginRenderPass(cb, &passBegin, vk.SubpassContentsInline)

	viewport := vk.Viewport{X: float32(box.X0), Y: float32(box.Y0), Width: float32(box.Width()), Height: float32(box.Height()), MinDepth: 0, MaxDepth: 1}
	vk.CmdSetViewport(cb, 0, 1, []vk.Viewport{viewport})
	scissor := vk.Rect2D{Offset: vk.Offset2D{X: box.X0, Y: box.Y0}, Extent: vk.Extent2D{Width: uint32(box.Width()), Height: uint32(box.Height())}}
	vk.CmdSetScissor(cb, 0, 1, []vk.Rect2D{scissor})
}

// EndCB ends the render pass.
func (o *Offscreen) EndCB(cb vk.CommandBuffer) {
	vk.CmdEndRenderPass(cb)
}

// Download transitions the color image, copies the requested
// subresource to staging, blocks on the offscreen's own fence, and
// copies into dst.
func (o *Offscreen) Download(cb vk.CommandBuffer, subresource gmath.IBox, bytesPerPixel uint32, dst []byte, dstRowPitch uint64, submit func(vk.CommandBuffer, vk.Fence)) error {
	return o.colorImage.Download(cb, subresource, bytesPerPixel, dst, dstRowPitch, func(recorded vk.CommandBuffer) {
		vk.ResetFences(o.disp.Device, 1, []vk.Fence{o.fence})
		submit(recorded, o.fence)
		vk.WaitForFences(o.disp.Device, 1, []vk.Fence{o.fence}, vk.True, ^uint64(0))
	})
}

// Destroy releases the framebuffer, render pass, and any owned
// depth/MSAA images. The caller-supplied color image is not owned by
// Offscreen and is not destroyed here.
func (o *Offscreen) Destroy() {
	vk.DestroyFramebuffer(o.disp.Device, o.framebuffer, nil)
	vk.DestroyRenderPass(o.disp.Device, o.renderPass, nil)
	if o.depthImage != nil {
		o.depthImage.Destroy()
	}
	if o.msaaImage != nil {
		o.msaaImage.Destroy()
	}
	vk.DestroyFence(o.disp.Device, o.fence, nil)
}
