package gpu

import (
	vk "github.com/goki/vulkan"
	"github.com/google/uuid"

	"github.com/spaghettifunk/hut/engine/core"
	"github.com/spaghettifunk/hut/engine/display"
)

// PipelineParams holds the documented pipeline defaults:
// {topology=TRIANGLE_LIST, polygon_mode=FILL, depth_compare=LEQUAL,
//  cull=NONE, front_face=CCW, blending=on, max_sets=16, initial_sets=1}.
type PipelineParams struct {
	CullMode    vk.CullModeFlagBits
	DepthTest   bool
	MaxSets     uint32
	InitialSets uint32
}

// DefaultPipelineParams returns the documented pipeline defaults.
func DefaultPipelineParams() PipelineParams {
	return PipelineParams{CullMode: vk.CullModeNone, DepthTest: false, MaxSets: 16, InitialSets: 1}
}

// IndexType is the pipeline's compile-time index width (u16 or u32).
type IndexType interface {
	~uint16 | ~uint32
}

// Pipeline is the generic pipeline abstraction: VkPipeline + layout +
// descriptor-set layout + pool + a vector of descriptor sets, each
// with its own per-atlas binding state so atlas growth can be
// refreshed independently per set. A compile-time "attachment tuple"
// is represented as a plain slice of tagged Attachment values written
// at runtime rather than unpacked from a type-level tuple.
type Pipeline[I IndexType] struct {
	disp   *display.Display
	handle vk.Pipeline
	layout vk.PipelineLayout

	descriptorSetLayout vk.DescriptorSetLayout
	descriptorPool      vk.DescriptorPool
	descriptorSets      []vk.DescriptorSet

	// atlasState[setIndex][binding] tracks last_bound per descriptor
	// set / binding pair that was written with an AttachmentAtlas.
	atlasState []map[uint32]*atlasBindingState

	params PipelineParams
	debug  uuid.UUID
}

// NewPipeline builds shader modules, unions vertex/fragment bindings,
// creates the descriptor-set layout/pool/pipeline layout, and compiles
// the graphics pipeline. vertex.VertexLayout describes binding 0
// (per-vertex); vertex.InstanceLayout describes binding 1
// (per-instance), omitted when vertex.InstanceStride < 4.
func NewPipeline[I IndexType](disp *display.Display, target RenderTarget, vertex, fragment *ShaderReflection, params PipelineParams) (*Pipeline[I], error) {
	vsModule, err := createShaderModule(disp, vertex.Bytecode)
	if err != nil {
		return nil, err
	}
	defer vk.DestroyShaderModule(disp.Device, vsModule, nil)
	fsModule, err := createShaderModule(disp, fragment.Bytecode)
	if err != nil {
		return nil, err
	}
	defer vk.DestroyShaderModule(disp.Device, fsModule, nil)

	bindings := unionBindings(vertex.Bindings, fragment.Bindings)
	setLayoutInfo := vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: uint32(len(bindings)),
		PBindings:    bindings,
	}

	bindingFlags := make([]vk.DescriptorBindingFlags, len(bindings))
	hasVariableCount := false
	for i, b := range bindings {
		if b.DescriptorCount > 1 {
			bindingFlags[i] = vk.DescriptorBindingFlags(vk.DescriptorBindingPartiallyBoundBit | vk.DescriptorBindingUpdateAfterBindBit)
			hasVariableCount = true
		}
	}
	if hasVariableCount {
		flagsInfo := vk.DescriptorSetLayoutBindingFlagsCreateInfo{
			SType:         vk.StructureTypeDescriptorSetLayoutBindingFlagsCreateInfo,
			BindingCount:  uint32(len(bindingFlags)),
			PBindingFlags: bindingFlags,
		}
		setLayoutInfo.PNext = unsafePointerOf(&flagsInfo)
		setLayoutInfo.Flags = vk.DescriptorSetLayoutCreateFlags(vk.DescriptorSetLayoutCreateUpdateAfterBindPoolBit)
	}

	var setLayout vk.DescriptorSetLayout
	if res := vk.CreateDescriptorSetLayout(disp.Device, &setLayoutInfo, nil, &setLayout); res != vk.Success {
		return nil, core.NewError(core.DeviceLost, "gpu: failed to create descriptor set layout")
	}

	poolSizes := make([]vk.DescriptorPoolSize, 0, len(bindings))
	for _, b := range bindings {
		poolSizes = append(poolSizes, vk.DescriptorPoolSize{Type: b.DescriptorType, DescriptorCount: b.DescriptorCount * params.MaxSets})
	}
	poolInfo := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		MaxSets:       params.MaxSets,
		PoolSizeCount: uint32(len(poolSizes)),
		PPoolSizes:    poolSizes,
		Flags:         vk.DescriptorPoolCreateFlags(vk.DescriptorPoolCreateUpdateAfterBindBit),
	}
	var pool vk.DescriptorPool
	if res := vk.CreateDescriptorPool(disp.Device, &poolInfo, nil, &pool); res != vk.Success {
		vk.DestroyDescriptorSetLayout(disp.Device, setLayout, nil)
		return nil, core.NewError(core.ResourceExhausted, "gpu: failed to create descriptor pool")
	}

	layouts := make([]vk.DescriptorSetLayout, params.InitialSets)
	for i := range layouts {
		layouts[i] = setLayout
	}
	allocInfo := vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     pool,
		DescriptorSetCount: params.InitialSets,
		PSetLayouts:        layouts,
	}
	sets := make([]vk.DescriptorSet, params.InitialSets)
	if res := vk.AllocateDescriptorSets(disp.Device, &allocInfo, &sets[0]); res != vk.Success {
		vk.DestroyDescriptorPool(disp.Device, pool, nil)
		vk.DestroyDescriptorSetLayout(disp.Device, setLayout, nil)
		return nil, core.NewError(core.ResourceExhausted, "gpu: failed to allocate descriptor sets")
	}

	pipelineLayoutInfo := vk.PipelineLayoutCreateInfo{
		SType:          vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount: 1,
		PSetLayouts:    []vk.DescriptorSetLayout{setLayout},
	}
	var layout vk.PipelineLayout
	if res := vk.CreatePipelineLayout(disp.Device, &pipelineLayoutInfo, nil, &layout); res != vk.Success {
		vk.DestroyDescriptorPool(disp.Device, pool, nil)
		vk.DestroyDescriptorSetLayout(disp.Device, setLayout, nil)
		return nil, core.NewError(core.DeviceLost, "gpu: failed to create pipeline layout")
	}

	vertexBindings := []vk.VertexInputBindingDescription{
		{Binding: 0, Stride: vertex.VertexStride, InputRate: vk.VertexInputRateVertex},
	}
	attrs := attributeDescriptions(vertex.VertexLayout, 0)
	if vertex.InstanceStride >= 4 {
		vertexBindings = append(vertexBindings, vk.VertexInputBindingDescription{Binding: 1, Stride: vertex.InstanceStride, InputRate: vk.VertexInputRateInstance})
		attrs = append(attrs, attributeDescriptions(vertex.InstanceLayout, 1)...)
	}

	handle, err := buildGraphicsPipeline(disp, target, vsModule, fsModule, vertexBindings, attrs, layout, params)
	if err != nil {
		vk.DestroyPipelineLayout(disp.Device, layout, nil)
		vk.DestroyDescriptorPool(disp.Device, pool, nil)
		vk.DestroyDescriptorSetLayout(disp.Device, setLayout, nil)
		return nil, err
	}

	atlasState := make([]map[uint32]*atlasBindingState, params.InitialSets)
	for i := range atlasState {
		atlasState[i] = map[uint32]*atlasBindingState{}
	}

	return &Pipeline[I]{
		disp: disp, handle: handle, layout: layout,
		descriptorSetLayout: setLayout, descriptorPool: pool, descriptorSets: sets,
		atlasState: atlasState, params: params, debug: uuid.New(),
	}, nil
}

func createShaderModule(disp *display.Display, bytecode []byte) (vk.ShaderModule, error) {
	info := vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint(len(bytecode)),
		PCode:    sliceUint32(bytecode),
	}
	var module vk.ShaderModule
	if res := vk.CreateShaderModule(disp.Device, &info, nil, &module); res != vk.Success {
		return vk.NullShaderModule, core.NewError(core.DeviceLost, "gpu: failed to create shader module")
	}
	return module, nil
}

func attributeDescriptions(attrs []VertexAttribute, binding uint32) []vk.VertexInputAttributeDescription {
	out := make([]vk.VertexInputAttributeDescription, 0, len(attrs))
	for _, a := range attrs {
		out = append(out, vk.VertexInputAttributeDescription{
			Location: a.Location, Binding: binding, Format: formatFromString(a.Format), Offset: a.Offset,
		})
	}
	return out
}

func formatFromString(s string) vk.Format {
	switch s {
	case "vec2":
		return vk.FormatR32g32Sfloat
	case "vec4":
		return vk.FormatR32g32b32a32Sfloat
	case "u16vec4":
		return vk.FormatR16g16b16a16Uint
	case "u8vec4":
		return vk.FormatR8g8b8a8Uint
	default:
		return vk.FormatR32g32b32a32Sfloat
	}
}

// buildGraphicsPipeline assembles the fixed-function state (viewport,
// rasterizer, multisample, depth-stencil, color-blend, dynamic state),
// using this module's blend mode (additive destination alpha) against
// a parametrized render target.
func buildGraphicsPipeline(disp *display.Display, target RenderTarget, vsModule, fsModule vk.ShaderModule, vertexBindings []vk.VertexInputBindingDescription, attrs []vk.VertexInputAttributeDescription, layout vk.PipelineLayout, params PipelineParams) (vk.Pipeline, error) {
	stages := []vk.PipelineShaderStageCreateInfo{
		{SType: vk.StructureTypePipelineShaderStageCreateInfo, Stage: vk.ShaderStageVertexBit, Module: vsModule, PName: "main\x00"},
		{SType: vk.StructureTypePipelineShaderStageCreateInfo, Stage: vk.ShaderStageFragmentBit, Module: fsModule, PName: "main\x00"},
	}

	vertexInput := vk.PipelineVertexInputStateCreateInfo{
		SType:                           vk.StructureTypePipelineVertexInputStateCreateInfo,
		VertexBindingDescriptionCount:   uint32(len(vertexBindings)),
		PVertexBindingDescriptions:      vertexBindings,
		VertexAttributeDescriptionCount: uint32(len(attrs)),
		PVertexAttributeDescriptions:    attrs,
	}
	inputAssembly := vk.PipelineInputAssemblyStateCreateInfo{
		SType: vk.StructureTypePipelineInputAssemblyStateCreateInfo, Topology: vk.PrimitiveTopologyTriangleList,
	}
	box := target.Params().ViewportBox
	viewportState := vk.PipelineViewportStateCreateInfo{
		SType: vk.StructureTypePipelineViewportStateCreateInfo,
		ViewportCount: 1,
		PViewports:    []vk.Viewport{{X: float32(box.X0), Y: float32(box.Y0), Width: float32(box.Width()), Height: float32(box.Height()), MinDepth: 0, MaxDepth: 1}},
		ScissorCount: 1,
		PScissors:    []vk.Rect2D{{Offset: vk.Offset2D{X: box.X0, Y: box.Y0}, Extent: vk.Extent2D{Width: uint32(box.Width()), Height: uint32(box.Height())}}},
	}
	rasterizer := vk.PipelineRasterizationStateCreateInfo{
		SType: vk.StructureTypePipelineRasterizationStateCreateInfo,
		PolygonMode: vk.PolygonModeFill, LineWidth: 1, CullMode: vk.CullModeFlags(params.CullMode), FrontFace: vk.FrontFaceCounterClockwise,
	}
	multisample := vk.PipelineMultisampleStateCreateInfo{
		SType: vk.StructureTypePipelineMultisampleStateCreateInfo, RasterizationSamples: target.SampleCount(), MinSampleShading: 1,
	}
	depthStencil := vk.PipelineDepthStencilStateCreateInfo{SType: vk.StructureTypePipelineDepthStencilStateCreateInfo}
	if params.DepthTest {
		depthStencil.DepthTestEnable = vk.True
		depthStencil.DepthWriteEnable = vk.True
		depthStencil.DepthCompareOp = vk.CompareOpLessOrEqual
	}
	colorBlendAttachment := vk.PipelineColorBlendAttachmentState{
		BlendEnable:         vk.True,
		SrcColorBlendFactor: vk.BlendFactorSrcAlpha,
		DstColorBlendFactor: vk.BlendFactorOneMinusSrcAlpha,
		ColorBlendOp:        vk.BlendOpAdd,
		SrcAlphaBlendFactor: vk.BlendFactorOne,
		DstAlphaBlendFactor: vk.BlendFactorOneMinusSrcAlpha,
		AlphaBlendOp:        vk.BlendOpAdd,
		ColorWriteMask: vk.ColorComponentFlags(vk.ColorComponentRBit) | vk.ColorComponentFlags(vk.ColorComponentGBit) |
			vk.ColorComponentFlags(vk.ColorComponentBBit) | vk.ColorComponentFlags(vk.ColorComponentABit),
	}
	colorBlend := vk.PipelineColorBlendStateCreateInfo{
		SType: vk.StructureTypePipelineColorBlendStateCreateInfo, AttachmentCount: 1,
		PAttachments: []vk.PipelineColorBlendAttachmentState{colorBlendAttachment},
	}
	dynamicStates := []vk.DynamicState{vk.DynamicStateViewport, vk.DynamicStateScissor}
	dynamicState := vk.PipelineDynamicStateCreateInfo{
		SType: vk.StructureTypePipelineDynamicStateCreateInfo, DynamicStateCount: uint32(len(dynamicStates)), PDynamicStates: dynamicStates,
	}

	info := vk.GraphicsPipelineCreateInfo{
		SType: vk.StructureTypeGraphicsPipelineCreateInfo,
		StageCount: uint32(len(stages)), PStages: stages,
		PVertexInputState: &vertexInput, PInputAssemblyState: &inputAssembly,
		PViewportState: &viewportState, PRasterizationState: &rasterizer,
		PMultisampleState: &multisample, PColorBlendState: &colorBlend, PDynamicState: &dynamicState,
		Layout: layout, RenderPass: target.RenderPass(), Subpass: 0,
		BasePipelineHandle: vk.NullPipeline, BasePipelineIndex: -1,
	}
	if params.DepthTest {
		info.PDepthStencilState = &depthStencil
	}

	handles := make([]vk.Pipeline, 1)
	if res := vk.CreateGraphicsPipelines(disp.Device, vk.NullPipelineCache, 1, []vk.GraphicsPipelineCreateInfo{info}, nil, handles); res != vk.Success {
		return vk.NullPipeline, core.NewError(core.DeviceLost, "gpu: failed to create graphics pipeline")
	}
	return handles[0], nil
}

// Write emits a VkWriteDescriptorSet per attachment into descriptor
// set descIndex. For an AttachmentAtlas entry, it records
// {binding -> last_bound = atlas.page_count()} so a later growth is
// detected by UpdateAtlas.
func (p *Pipeline[I]) Write(descIndex int, bindingBase uint32, attachments []Attachment) {
	set := p.descriptorSets[descIndex]
	writes := make([]vk.WriteDescriptorSet, 0, len(attachments))

	for i, a := range attachments {
		binding := bindingBase + uint32(i)
		switch a.Kind {
		case AttachmentUbo:
			info := vk.DescriptorBufferInfo{Buffer: a.UboBuffer, Offset: vk.DeviceSize(a.UboOffset), Range: vk.DeviceSize(a.UboRange)}
			writes = append(writes, vk.WriteDescriptorSet{
				SType: vk.StructureTypeWriteDescriptorSet, DstSet: set, DstBinding: binding,
				DescriptorCount: 1, DescriptorType: vk.DescriptorTypeUniformBuffer, PBufferInfo: []vk.DescriptorBufferInfo{info},
			})
		case AttachmentTexture:
			info := vk.DescriptorImageInfo{ImageView: a.Image, Sampler: a.Sampler, ImageLayout: vk.ImageLayoutShaderReadOnlyOptimal}
			writes = append(writes, vk.WriteDescriptorSet{
				SType: vk.StructureTypeWriteDescriptorSet, DstSet: set, DstBinding: binding,
				DescriptorCount: 1, DescriptorType: vk.DescriptorTypeCombinedImageSampler, PImageInfo: []vk.DescriptorImageInfo{info},
			})
		case AttachmentTextureArray:
			infos := make([]vk.DescriptorImageInfo, len(a.Images))
			for j, view := range a.Images {
				infos[j] = vk.DescriptorImageInfo{ImageView: view, Sampler: a.Sampler, ImageLayout: vk.ImageLayoutShaderReadOnlyOptimal}
			}
			writes = append(writes, vk.WriteDescriptorSet{
				SType: vk.StructureTypeWriteDescriptorSet, DstSet: set, DstBinding: binding,
				DescriptorCount: uint32(len(infos)), DescriptorType: vk.DescriptorTypeCombinedImageSampler, PImageInfo: infos,
			})
		case AttachmentAtlas:
			infos := make([]vk.DescriptorImageInfo, a.Atlas.PageCount())
			for page := range infos {
				infos[page] = vk.DescriptorImageInfo{ImageView: a.Atlas.PageView(page), Sampler: a.Sampler, ImageLayout: vk.ImageLayoutShaderReadOnlyOptimal}
			}
			writes = append(writes, vk.WriteDescriptorSet{
				SType: vk.StructureTypeWriteDescriptorSet, DstSet: set, DstBinding: binding,
				DescriptorCount: uint32(len(infos)), DescriptorType: vk.DescriptorTypeCombinedImageSampler, PImageInfo: infos,
			})
			p.atlasState[descIndex][binding] = &atlasBindingState{atlas: a.Atlas, sampler: a.Sampler, lastBound: a.Atlas.PageCount()}
		}
	}

	vk.UpdateDescriptorSets(p.disp.Device, uint32(len(writes)), writes, 0, nil)
}

// UpdateAtlas refreshes descriptor set descIndex/binding if atlas has
// grown since the last write/UpdateAtlas call, writing only the
// trailing new pages starting at dst_array_element = last_bound. The
// pipeline stores {atlas -> per-desc state}; the atlas itself stays
// unaware of any pipeline referencing it.
func (p *Pipeline[I]) UpdateAtlas(descIndex int, binding uint32) {
	state, ok := p.atlasState[descIndex][binding]
	if !ok {
		return
	}
	count := state.atlas.PageCount()
	if count <= state.lastBound {
		return
	}

	newPages := count - state.lastBound
	infos := make([]vk.DescriptorImageInfo, newPages)
	for i := 0; i < newPages; i++ {
		page := state.lastBound + i
		infos[i] = vk.DescriptorImageInfo{ImageView: state.atlas.PageView(page), Sampler: state.sampler, ImageLayout: vk.ImageLayoutShaderReadOnlyOptimal}
	}
	write := vk.WriteDescriptorSet{
		SType: vk.StructureTypeWriteDescriptorSet, DstSet: p.descriptorSets[descIndex], DstBinding: binding,
		DstArrayElement: uint32(state.lastBound), DescriptorCount: uint32(newPages),
		DescriptorType: vk.DescriptorTypeCombinedImageSampler, PImageInfo: infos,
	}
	vk.UpdateDescriptorSets(p.disp.Device, 1, []vk.WriteDescriptorSet{write}, 0, nil)
	state.lastBound = count
}

// Bind binds the pipeline and descriptor set descIndex.
func (p *Pipeline[I]) Bind(cb vk.CommandBuffer, descIndex int) {
	vk.CmdBindPipeline(cb, vk.PipelineBindPointGraphics, p.handle)
	vk.CmdBindDescriptorSets(cb, vk.PipelineBindPointGraphics, p.layout, 0, 1, []vk.DescriptorSet{p.descriptorSets[descIndex]}, 0, nil)
}

// DrawIndexed binds the given vertex/instance/index buffer ranges and
// records a direct indexed draw.
func (p *Pipeline[I]) DrawIndexed(cb vk.CommandBuffer, indexBuffer vk.Buffer, indexOffset uint64, indexType vk.IndexType,
	vertexBuffer vk.Buffer, vertexOffset uint64, instanceBuffer vk.Buffer, instanceOffset uint64,
	indexCount, instanceCount uint32, firstIndex, firstInstance uint32, vertexOffsetElems int32) {

	if vertexBuffer != vk.NullBuffer {
		vk.CmdBindVertexBuffers(cb, 0, 1, []vk.Buffer{vertexBuffer}, []vk.DeviceSize{vk.DeviceSize(vertexOffset)})
	}
	if instanceBuffer != vk.NullBuffer {
		vk.CmdBindVertexBuffers(cb, 1, 1, []vk.Buffer{instanceBuffer}, []vk.DeviceSize{vk.DeviceSize(instanceOffset)})
	}
	vk.CmdBindIndexBuffer(cb, indexBuffer, vk.DeviceSize(indexOffset), indexType)
	vk.CmdDrawIndexed(cb, indexCount, instanceCount, firstIndex, vertexOffsetElems, firstInstance)
}

// DrawIndexedIndirect records vkCmdDrawIndexedIndirect over drawCount
// commands starting at indirectOffset in indirectBuffer.
func (p *Pipeline[I]) DrawIndexedIndirect(cb vk.CommandBuffer, indexBuffer vk.Buffer, indexOffset uint64, indexType vk.IndexType,
	vertexBuffer vk.Buffer, vertexOffset uint64, instanceBuffer vk.Buffer, instanceOffset uint64,
	indirectBuffer vk.Buffer, indirectOffset uint64, drawCount uint32) {

	if vertexBuffer != vk.NullBuffer {
		vk.CmdBindVertexBuffers(cb, 0, 1, []vk.Buffer{vertexBuffer}, []vk.DeviceSize{vk.DeviceSize(vertexOffset)})
	}
	if instanceBuffer != vk.NullBuffer {
		vk.CmdBindVertexBuffers(cb, 1, 1, []vk.Buffer{instanceBuffer}, []vk.DeviceSize{vk.DeviceSize(instanceOffset)})
	}
	vk.CmdBindIndexBuffer(cb, indexBuffer, vk.DeviceSize(indexOffset), indexType)
	vk.CmdDrawIndexedIndirect(cb, indirectBuffer, vk.DeviceSize(indirectOffset), drawCount, uint32(indirectCommandSize))
}

const indirectCommandSize = 20 // sizeof(VkDrawIndexedIndirectCommand)

// Destroy releases the pipeline, layouts, and descriptor pool.
func (p *Pipeline[I]) Destroy() {
	vk.DestroyPipeline(p.disp.Device, p.handle, nil)
	vk.DestroyPipelineLayout(p.disp.Device, p.layout, nil)
	vk.DestroyDescriptorPool(p.disp.Device, p.descriptorPool, nil)
	vk.DestroyDescriptorSetLayout(p.disp.Device, p.descriptorSetLayout, nil)
}
