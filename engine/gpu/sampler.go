package gpu

import (
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/hut/engine/core"
	"github.com/spaghettifunk/hut/engine/display"
)

// SamplerParams holds the documented sampler defaults:
// {filter=LINEAR, anisotropy=true, address=CLAMP_TO_EDGE, lod=(0,0), bias=0}.
type SamplerParams struct {
	Filter      vk.Filter
	Anisotropy  bool
	AddressMode vk.SamplerAddressMode
	MinLod      float32
	MaxLod      float32
	LodBias     float32
}

// DefaultSamplerParams returns the documented sampler defaults.
func DefaultSamplerParams() SamplerParams {
	return SamplerParams{
		Filter:      vk.FilterLinear,
		Anisotropy:  true,
		AddressMode: vk.SamplerAddressModeClampToEdge,
		MinLod:      0,
		MaxLod:      0,
		LodBias:     0,
	}
}

// Sampler is a thin VkSampler wrapper. Anisotropy is disabled
// automatically when the device does not advertise it.
type Sampler struct {
	disp   *display.Display
	handle vk.Sampler
}

// NewSampler creates a sampler from params.
func NewSampler(disp *display.Display, params SamplerParams) (*Sampler, error) {
	anisotropyEnable := params.Anisotropy && disp.Features.SamplerAnisotropy
	maxAnisotropy := float32(1)
	if anisotropyEnable {
		maxAnisotropy = disp.Features.MaxSamplerAnisotropy
	}

	info := vk.SamplerCreateInfo{
		SType:                   vk.StructureTypeSamplerCreateInfo,
		MagFilter:               params.Filter,
		MinFilter:               params.Filter,
		AddressModeU:            params.AddressMode,
		AddressModeV:            params.AddressMode,
		AddressModeW:            params.AddressMode,
		AnisotropyEnable:        vk.Bool32(boolToUint32(anisotropyEnable)),
		MaxAnisotropy:           maxAnisotropy,
		BorderColor:             vk.BorderColorIntOpaqueBlack,
		UnnormalizedCoordinates: vk.False,
		CompareEnable:           vk.False,
		CompareOp:               vk.CompareOpAlways,
		MipmapMode:              vk.SamplerMipmapModeLinear,
		MipLodBias:              params.LodBias,
		MinLod:                  params.MinLod,
		MaxLod:                  params.MaxLod,
	}
	var handle vk.Sampler
	if res := vk.CreateSampler(disp.Device, &info, nil, &handle); res != vk.Success {
		return nil, core.NewError(core.DeviceLost, "gpu: failed to create sampler")
	}
	return &Sampler{disp: disp, handle: handle}, nil
}

// Handle returns the raw VkSampler.
func (s *Sampler) Handle() vk.Sampler { return s.handle }

// Destroy releases the sampler.
func (s *Sampler) Destroy() {
	vk.DestroySampler(s.disp.Device, s.handle, nil)
}

func boolToUint32(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}
