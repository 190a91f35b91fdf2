package gpu

import (
	vk "github.com/goki/vulkan"
)

// AttachmentKind discriminates the tagged Attachment variant, used in
// place of a compile-time attachment tuple.
type AttachmentKind int

const (
	AttachmentUbo AttachmentKind = iota
	AttachmentTexture
	AttachmentTextureArray
	AttachmentAtlas
)

// Attachment is one descriptor slot's bound resource. Exactly one
// field group is meaningful, selected by Kind: the tagged variant
// `Ubo | Texture | TextureArray | AtlasBinding` expressed as a single
// struct rather than an interface hierarchy, since every pipeline
// iterates a slice of these by index, not by dynamic dispatch.
type Attachment struct {
	Kind AttachmentKind

	// AttachmentUbo
	UboBuffer vk.Buffer
	UboOffset uint64
	UboRange  uint64

	// AttachmentTexture
	Image   vk.ImageView
	Sampler vk.Sampler

	// AttachmentTextureArray
	Images []vk.ImageView

	// AttachmentAtlas
	Atlas *Atlas
}

// atlasBindingState tracks, per (descriptor set index, binding), how
// many atlas pages have been written into the descriptor array so far,
// so UpdateAtlas only writes the trailing, newly-added pages.
type atlasBindingState struct {
	atlas     *Atlas
	sampler   vk.Sampler
	lastBound int
}

// unionBindings merges vertex and fragment reflected bindings by
// index, unioning stage flags.
func unionBindings(vertex, fragment []DescriptorBinding) []vk.DescriptorSetLayoutBinding {
	merged := map[uint32]*vk.DescriptorSetLayoutBinding{}
	add := func(bindings []DescriptorBinding, stage vk.ShaderStageFlagBits) {
		for _, b := range bindings {
			dt := descriptorTypeFromString(b.DescriptorType)
			if existing, ok := merged[b.Binding]; ok {
				existing.StageFlags |= vk.ShaderStageFlags(stage)
				continue
			}
			flags := vk.ShaderStageFlags(stage)
			count := b.DescriptorCount
			if count == 0 {
				count = 1
			}
			merged[b.Binding] = &vk.DescriptorSetLayoutBinding{
				Binding:         b.Binding,
				DescriptorType:  dt,
				DescriptorCount: count,
				StageFlags:      flags,
			}
		}
	}
	add(vertex, vk.ShaderStageVertexBit)
	add(fragment, vk.ShaderStageFragmentBit)

	out := make([]vk.DescriptorSetLayoutBinding, 0, len(merged))
	for _, b := range merged {
		out = append(out, *b)
	}
	return out
}

func descriptorTypeFromString(s string) vk.DescriptorType {
	switch s {
	case "ubo", "uniform_buffer":
		return vk.DescriptorTypeUniformBuffer
	case "texture", "combined_image_sampler":
		return vk.DescriptorTypeCombinedImageSampler
	default:
		return vk.DescriptorTypeCombinedImageSampler
	}
}
