package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/aurora/engine/core"
	"github.com/spaghettifunk/aurora/engine/renderer/gpu"
)

// VulkanPipeline holds a Vulkan pipeline and its layout.
type VulkanPipeline struct {
	Handle         vk.Pipeline
	PipelineLayout vk.PipelineLayout
	kind           gpu.PipelineKind
	label          string
}

func (p *VulkanPipeline) Kind() gpu.PipelineKind { return p.kind }

func (p *VulkanPipeline) bindPoint() vk.PipelineBindPoint {
	if p.kind == gpu.PipelineCompute {
		return vk.PipelineBindPointCompute
	}
	return vk.PipelineBindPointGraphics
}

func (d *Device) createPipelineLayout(layouts []gpu.BindingLayout) (vk.PipelineLayout, error) {
	setLayouts := make([]vk.DescriptorSetLayout, len(layouts))
	for i, l := range layouts {
		setLayouts[i] = l.(*VulkanDescriptorSetLayout).Handle
	}
	createInfo := vk.PipelineLayoutCreateInfo{
		SType:          vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount: uint32(len(setLayouts)),
		PSetLayouts:    setLayouts,
	}
	var layout vk.PipelineLayout
	if res := vk.CreatePipelineLayout(d.LogicalDevice, &createInfo, d.allocator, &layout); res != vk.Success {
		return vk.NullPipelineLayout, resultError("vkCreatePipelineLayout", res)
	}
	return layout, nil
}

func vertexInput(layout *gpu.VertexLayout) (vk.PipelineVertexInputStateCreateInfo, error) {
	info := vk.PipelineVertexInputStateCreateInfo{
		SType: vk.StructureTypePipelineVertexInputStateCreateInfo,
	}
	// Fullscreen passes generate their vertices in the shader.
	if layout == nil {
		return info, nil
	}
	attributes := make([]vk.VertexInputAttributeDescription, len(layout.Attributes))
	for i, a := range layout.Attributes {
		f, err := vkFormat(a.Format)
		if err != nil {
			return info, err
		}
		attributes[i] = vk.VertexInputAttributeDescription{
			Location: a.Location,
			Binding:  0,
			Format:   f,
			Offset:   a.Offset,
		}
	}
	info.VertexBindingDescriptionCount = 1
	info.PVertexBindingDescriptions = []vk.VertexInputBindingDescription{{
		Binding:   0,
		Stride:    layout.Stride,
		InputRate: vk.VertexInputRateVertex,
	}}
	info.VertexAttributeDescriptionCount = uint32(len(attributes))
	info.PVertexAttributeDescriptions = attributes
	return info, nil
}

func (d *Device) CreateGraphicsPipeline(desc gpu.GraphicsPipelineDesc) (gpu.Pipeline, error) {
	vs, ok := desc.Vertex.(*VulkanShaderModule)
	if !ok || vs == nil {
		return nil, fmt.Errorf("pipeline %s: missing vertex stage", desc.Label)
	}
	fs, ok := desc.Fragment.(*VulkanShaderModule)
	if !ok || fs == nil {
		return nil, fmt.Errorf("pipeline %s: missing fragment stage", desc.Label)
	}

	key, err := compatibleKey(desc.ColorFormats, desc.DepthFormat)
	if err != nil {
		return nil, fmt.Errorf("pipeline %s: %w", desc.Label, err)
	}
	renderpass, err := d.renderpass(key)
	if err != nil {
		return nil, fmt.Errorf("pipeline %s: %w", desc.Label, err)
	}

	vertexInputInfo, err := vertexInput(desc.VertexLayout)
	if err != nil {
		return nil, fmt.Errorf("pipeline %s: %w", desc.Label, err)
	}

	inputAssembly := vk.PipelineInputAssemblyStateCreateInfo{
		SType:                  vk.StructureTypePipelineInputAssemblyStateCreateInfo,
		Topology:               vk.PrimitiveTopologyTriangleList,
		PrimitiveRestartEnable: vk.False,
	}

	// Viewport and scissor are dynamic and set per pass.
	viewportState := vk.PipelineViewportStateCreateInfo{
		SType:         vk.StructureTypePipelineViewportStateCreateInfo,
		ViewportCount: 1,
		ScissorCount:  1,
	}

	rasterizerCreateInfo := vk.PipelineRasterizationStateCreateInfo{
		SType:                   vk.StructureTypePipelineRasterizationStateCreateInfo,
		DepthClampEnable:        vk.False,
		RasterizerDiscardEnable: vk.False,
		PolygonMode:             vk.PolygonModeFill,
		LineWidth:               1.0,
		CullMode:                vk.CullModeFlags(vk.CullModeNone),
		FrontFace:               vk.FrontFaceCounterClockwise,
		DepthBiasEnable:         vk.False,
	}

	samples := vk.SampleCount1Bit
	if desc.SampleCount > 1 {
		samples = vk.SampleCountFlagBits(desc.SampleCount)
	}
	multisamplingCreateInfo := vk.PipelineMultisampleStateCreateInfo{
		SType:                vk.StructureTypePipelineMultisampleStateCreateInfo,
		SampleShadingEnable:  vk.False,
		RasterizationSamples: samples,
		MinSampleShading:     1.0,
	}

	depthStencil := vk.PipelineDepthStencilStateCreateInfo{
		SType:             vk.StructureTypePipelineDepthStencilStateCreateInfo,
		DepthTestEnable:   vk.False,
		DepthWriteEnable:  vk.False,
		StencilTestEnable: vk.False,
	}
	if desc.DepthTest {
		depthStencil.DepthTestEnable = vk.True
		depthStencil.DepthCompareOp = vk.CompareOpLess
	}
	if desc.DepthWrite {
		depthStencil.DepthWriteEnable = vk.True
	}

	blendAttachments := make([]vk.PipelineColorBlendAttachmentState, len(desc.ColorFormats))
	for i := range blendAttachments {
		blendAttachments[i] = vk.PipelineColorBlendAttachmentState{
			BlendEnable: vk.False,
			ColorWriteMask: vk.ColorComponentFlags(vk.ColorComponentRBit) | vk.ColorComponentFlags(vk.ColorComponentGBit) |
				vk.ColorComponentFlags(vk.ColorComponentBBit) | vk.ColorComponentFlags(vk.ColorComponentABit),
		}
	}
	colorBlendStateCreateInfo := vk.PipelineColorBlendStateCreateInfo{
		SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
		LogicOpEnable:   vk.False,
		LogicOp:         vk.LogicOpCopy,
		AttachmentCount: uint32(len(blendAttachments)),
		PAttachments:    blendAttachments,
	}

	dynamicStates := []vk.DynamicState{
		vk.DynamicStateViewport,
		vk.DynamicStateScissor,
	}
	dynamicStateCreateInfo := vk.PipelineDynamicStateCreateInfo{
		SType:             vk.StructureTypePipelineDynamicStateCreateInfo,
		DynamicStateCount: uint32(len(dynamicStates)),
		PDynamicStates:    dynamicStates,
	}

	out := &VulkanPipeline{kind: gpu.PipelineGraphics, label: desc.Label}
	if err := d.locks.SafeCall(PipelineManagement, func() error {
		layout, err := d.createPipelineLayout(desc.Layouts)
		if err != nil {
			return err
		}
		out.PipelineLayout = layout

		pipelineCreateInfo := vk.GraphicsPipelineCreateInfo{
			SType:               vk.StructureTypeGraphicsPipelineCreateInfo,
			StageCount:          2,
			PStages:             []vk.PipelineShaderStageCreateInfo{vs.stageInfo(), fs.stageInfo()},
			PVertexInputState:   &vertexInputInfo,
			PInputAssemblyState: &inputAssembly,
			PViewportState:      &viewportState,
			PRasterizationState: &rasterizerCreateInfo,
			PMultisampleState:   &multisamplingCreateInfo,
			PDepthStencilState:  &depthStencil,
			PColorBlendState:    &colorBlendStateCreateInfo,
			PDynamicState:       &dynamicStateCreateInfo,
			Layout:              layout,
			RenderPass:          renderpass,
			Subpass:             0,
			BasePipelineHandle:  vk.NullPipeline,
			BasePipelineIndex:   -1,
		}
		pipelines := make([]vk.Pipeline, 1)
		res := vk.CreateGraphicsPipelines(d.LogicalDevice, vk.NullPipelineCache, 1,
			[]vk.GraphicsPipelineCreateInfo{pipelineCreateInfo}, d.allocator, pipelines)
		if res != vk.Success {
			vk.DestroyPipelineLayout(d.LogicalDevice, layout, d.allocator)
			return resultError("vkCreateGraphicsPipelines", res)
		}
		out.Handle = pipelines[0]
		return nil
	}); err != nil {
		err = fmt.Errorf("pipeline %s: %w", desc.Label, err)
		core.LogError(err.Error())
		return nil, err
	}

	core.LogDebug("Graphics pipeline %s created!", desc.Label)
	return out, nil
}

func (d *Device) CreateComputePipeline(desc gpu.ComputePipelineDesc) (gpu.Pipeline, error) {
	cs, ok := desc.Shader.(*VulkanShaderModule)
	if !ok || cs == nil {
		return nil, fmt.Errorf("pipeline %s: missing compute stage", desc.Label)
	}
	out := &VulkanPipeline{kind: gpu.PipelineCompute, label: desc.Label}
	if err := d.locks.SafeCall(PipelineManagement, func() error {
		layout, err := d.createPipelineLayout(desc.Layouts)
		if err != nil {
			return err
		}
		out.PipelineLayout = layout

		pipelines := make([]vk.Pipeline, 1)
		res := vk.CreateComputePipelines(d.LogicalDevice, vk.NullPipelineCache, 1,
			[]vk.ComputePipelineCreateInfo{{
				SType:  vk.StructureTypeComputePipelineCreateInfo,
				Stage:  cs.stageInfo(),
				Layout: layout,
			}}, d.allocator, pipelines)
		if res != vk.Success {
			vk.DestroyPipelineLayout(d.LogicalDevice, layout, d.allocator)
			return resultError("vkCreateComputePipelines", res)
		}
		out.Handle = pipelines[0]
		return nil
	}); err != nil {
		err = fmt.Errorf("pipeline %s: %w", desc.Label, err)
		core.LogError(err.Error())
		return nil, err
	}

	core.LogDebug("Compute pipeline %s created!", desc.Label)
	return out, nil
}

func (d *Device) DestroyPipeline(p gpu.Pipeline) {
	pipeline, ok := p.(*VulkanPipeline)
	if !ok || pipeline == nil {
		return
	}
	_ = d.locks.SafeCall(PipelineManagement, func() error {
		if pipeline.Handle != vk.NullPipeline {
			vk.DestroyPipeline(d.LogicalDevice, pipeline.Handle, d.allocator)
			pipeline.Handle = vk.NullPipeline
		}
		if pipeline.PipelineLayout != vk.NullPipelineLayout {
			vk.DestroyPipelineLayout(d.LogicalDevice, pipeline.PipelineLayout, d.allocator)
			pipeline.PipelineLayout = vk.NullPipelineLayout
		}
		return nil
	})
}
