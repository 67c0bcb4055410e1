// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vulkan

import (
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/devblok/prism/gfx"
	"github.com/devblok/prism/gfx/hal"
	"github.com/devblok/prism/model"
	"github.com/devblok/prism/shader"
	vk "github.com/vulkan-go/vulkan"
)

// renderPassKey identifies a cached render pass. Passes differing only
// in load op are compatible, so a pipeline built against one can be
// used inside any of them.
type renderPassKey struct {
	format vk.Format
	load   gfx.LoadOp
}

// renderPass returns the single subpass render pass for key, creating
// it on first use. The attachment stays in the color attachment layout,
// transitions are recorded as explicit barriers.
func (d *Device) renderPass(key renderPassKey) (vk.RenderPass, error) {
	d.renderPassMutex.Lock()
	defer d.renderPassMutex.Unlock()
	if renderPass, ok := d.renderPasses[key]; ok {
		return renderPass, nil
	}

	loadOp := vk.AttachmentLoadOpClear
	if key.load == gfx.LoadKeep {
		loadOp = vk.AttachmentLoadOpLoad
	}
	attachments := []vk.AttachmentDescription{{
		Format:         key.format,
		Samples:        vk.SampleCount1Bit,
		LoadOp:         loadOp,
		StoreOp:        vk.AttachmentStoreOpStore,
		StencilLoadOp:  vk.AttachmentLoadOpDontCare,
		StencilStoreOp: vk.AttachmentStoreOpDontCare,
		InitialLayout:  vk.ImageLayoutColorAttachmentOptimal,
		FinalLayout:    vk.ImageLayoutColorAttachmentOptimal,
	}}

	colorAttachmentRef := []vk.AttachmentReference{{
		Attachment: 0,
		Layout:     vk.ImageLayoutColorAttachmentOptimal,
	}}

	subpass := vk.SubpassDescription{
		PipelineBindPoint:    vk.PipelineBindPointGraphics,
		ColorAttachmentCount: uint32(len(colorAttachmentRef)),
		PColorAttachments:    colorAttachmentRef,
	}

	rpci := vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		SubpassCount:    1,
		PSubpasses:      []vk.SubpassDescription{subpass},
	}

	var renderPass vk.RenderPass
	if err := vk.Error(vk.CreateRenderPass(d.logicalDevice, &rpci, nil, &renderPass)); err != nil {
		return nil, errors.Wrap(err, "vk.CreateRenderPass()")
	}
	d.renderPasses[key] = renderPass
	return renderPass, nil
}

// maxCameraSets bounds the camera blocks one pipeline can be bound
// with, one per swapchain image.
const maxCameraSets = 8

// Pipeline is a graphics pipeline together with its layout and one
// descriptor set per camera block it was bound with.
type Pipeline struct {
	device *Device
	name   string

	descriptorSetLayout vk.DescriptorSetLayout
	descriptorPool      vk.DescriptorPool
	descriptorSets      map[*Memory]vk.DescriptorSet
	layout              vk.PipelineLayout
	pipeline            vk.Pipeline
}

// Name implements hal.Pipeline.
func (p *Pipeline) Name() string {
	return p.name
}

func (d *Device) newPipeline(desc hal.PipelineDesc) (*Pipeline, error) {
	if err := desc.Shader.Validate(); err != nil {
		return nil, err
	}
	p := &Pipeline{device: d, name: desc.Shader.Name}
	if err := p.createPipelineLayout(); err != nil {
		p.Destroy()
		return nil, err
	}
	if err := p.createDescriptorPool(); err != nil {
		p.Destroy()
		return nil, err
	}
	if err := p.createPipeline(desc); err != nil {
		p.Destroy()
		return nil, err
	}
	return p, nil
}

func (p *Pipeline) createPipelineLayout() error {
	dslci := vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: 1,
		PBindings: []vk.DescriptorSetLayoutBinding{{
			Binding:         0,
			DescriptorCount: 1,
			DescriptorType:  vk.DescriptorTypeUniformBuffer,
			StageFlags:      vk.ShaderStageFlags(vk.ShaderStageVertexBit),
		}},
	}

	var descriptorSetLayout vk.DescriptorSetLayout
	if err := vk.Error(vk.CreateDescriptorSetLayout(p.device.logicalDevice, &dslci, nil, &descriptorSetLayout)); err != nil {
		return errors.Wrap(err, "vk.CreateDescriptorSetLayout()")
	}
	p.descriptorSetLayout = descriptorSetLayout

	plci := vk.PipelineLayoutCreateInfo{
		SType:          vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount: 1,
		PSetLayouts:    []vk.DescriptorSetLayout{p.descriptorSetLayout},
	}

	var pipelineLayout vk.PipelineLayout
	if err := vk.Error(vk.CreatePipelineLayout(p.device.logicalDevice, &plci, nil, &pipelineLayout)); err != nil {
		return errors.Wrap(err, "vk.CreatePipelineLayout()")
	}
	p.layout = pipelineLayout
	return nil
}

func (p *Pipeline) createDescriptorPool() error {
	dpci := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		MaxSets:       maxCameraSets,
		PoolSizeCount: 1,
		PPoolSizes: []vk.DescriptorPoolSize{{
			Type:            vk.DescriptorTypeUniformBuffer,
			DescriptorCount: maxCameraSets,
		}},
	}

	var descriptorPool vk.DescriptorPool
	if err := vk.Error(vk.CreateDescriptorPool(p.device.logicalDevice, &dpci, nil, &descriptorPool)); err != nil {
		return errors.Wrap(err, "vk.CreateDescriptorPool()")
	}
	p.descriptorPool = descriptorPool
	p.descriptorSets = make(map[*Memory]vk.DescriptorSet)
	return nil
}

// descriptorSet returns the set binding camera, allocating it on first use.
func (p *Pipeline) descriptorSet(camera *Memory) (vk.DescriptorSet, error) {
	set, ok := p.descriptorSets[camera]
	if ok {
		return set, nil
	}
	if len(p.descriptorSets) == maxCameraSets {
		return set, errors.Newf("pipeline %q is bound with more than %d camera blocks", p.name, maxCameraSets)
	}

	dsai := vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     p.descriptorPool,
		DescriptorSetCount: 1,
		PSetLayouts:        []vk.DescriptorSetLayout{p.descriptorSetLayout},
	}
	var descriptorSet vk.DescriptorSet
	if err := vk.Error(vk.AllocateDescriptorSets(p.device.logicalDevice, &dsai, &descriptorSet)); err != nil {
		return set, errors.Wrap(err, "vk.AllocateDescriptorSets()")
	}
	vk.UpdateDescriptorSets(p.device.logicalDevice, 1, []vk.WriteDescriptorSet{{
		SType:           vk.StructureTypeWriteDescriptorSet,
		DstSet:          descriptorSet,
		DstBinding:      0,
		DescriptorCount: 1,
		DescriptorType:  vk.DescriptorTypeUniformBuffer,
		PBufferInfo: []vk.DescriptorBufferInfo{{
			Buffer: camera.buffer,
			Offset: 0,
			Range:  vk.DeviceSize(camera.size),
		}},
	}}, 0, nil)
	p.descriptorSets[camera] = descriptorSet
	return descriptorSet, nil
}

func (p *Pipeline) newShaderModule(code []byte) (vk.ShaderModule, error) {
	smci := vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint(len(code)),
		PCode:    shader.SliceUint32(code),
	}
	var module vk.ShaderModule
	if err := vk.Error(vk.CreateShaderModule(p.device.logicalDevice, &smci, nil, &module)); err != nil {
		return nil, errors.Wrap(err, "vk.CreateShaderModule()")
	}
	return module, nil
}

func (p *Pipeline) createPipeline(desc hal.PipelineDesc) error {
	renderPass, err := p.device.renderPass(renderPassKey{format: toVkFormat(desc.Format), load: gfx.LoadClear})
	if err != nil {
		return err
	}

	vertexModule, err := p.newShaderModule(desc.Shader.Vertex)
	if err != nil {
		return err
	}
	defer vk.DestroyShaderModule(p.device.logicalDevice, vertexModule, nil)
	fragmentModule, err := p.newShaderModule(desc.Shader.Fragment)
	if err != nil {
		return err
	}
	defer vk.DestroyShaderModule(p.device.logicalDevice, fragmentModule, nil)

	stages := []vk.PipelineShaderStageCreateInfo{{
		SType:  vk.StructureTypePipelineShaderStageCreateInfo,
		Stage:  vk.ShaderStageVertexBit,
		Module: vertexModule,
		PName:  "main\x00",
	}, {
		SType:  vk.StructureTypePipelineShaderStageCreateInfo,
		Stage:  vk.ShaderStageFragmentBit,
		Module: fragmentModule,
		PName:  "main\x00",
	}}

	var vertex model.Vertex
	vertexBindings := []vk.VertexInputBindingDescription{{
		Binding:   0,
		Stride:    uint32(model.VertexSize),
		InputRate: vk.VertexInputRateVertex,
	}}
	vertexAttributes := []vk.VertexInputAttributeDescription{{
		Location: 0,
		Binding:  0,
		Format:   vk.FormatR32g32b32Sfloat,
		Offset:   uint32(unsafe.Offsetof(vertex.Pos)),
	}, {
		Location: 1,
		Binding:  0,
		Format:   vk.FormatR32g32b32a32Sfloat,
		Offset:   uint32(unsafe.Offsetof(vertex.Color)),
	}}

	gpci := []vk.GraphicsPipelineCreateInfo{{
		SType:      vk.StructureTypeGraphicsPipelineCreateInfo,
		StageCount: uint32(len(stages)),
		PStages:    stages,
		PVertexInputState: &vk.PipelineVertexInputStateCreateInfo{
			SType:                           vk.StructureTypePipelineVertexInputStateCreateInfo,
			VertexBindingDescriptionCount:   uint32(len(vertexBindings)),
			PVertexBindingDescriptions:      vertexBindings,
			VertexAttributeDescriptionCount: uint32(len(vertexAttributes)),
			PVertexAttributeDescriptions:    vertexAttributes,
		},
		PInputAssemblyState: &vk.PipelineInputAssemblyStateCreateInfo{
			SType:    vk.StructureTypePipelineInputAssemblyStateCreateInfo,
			Topology: vk.PrimitiveTopologyTriangleList,
		},
		PViewportState: &vk.PipelineViewportStateCreateInfo{
			SType:         vk.StructureTypePipelineViewportStateCreateInfo,
			ViewportCount: 1,
			ScissorCount:  1,
		},
		PRasterizationState: &vk.PipelineRasterizationStateCreateInfo{
			SType:       vk.StructureTypePipelineRasterizationStateCreateInfo,
			PolygonMode: vk.PolygonModeFill,
			CullMode:    vk.CullModeFlags(vk.CullModeNone),
			FrontFace:   vk.FrontFaceClockwise,
			LineWidth:   1.0,
		},
		PMultisampleState: &vk.PipelineMultisampleStateCreateInfo{
			SType:                vk.StructureTypePipelineMultisampleStateCreateInfo,
			RasterizationSamples: vk.SampleCount1Bit,
		},
		PColorBlendState: &vk.PipelineColorBlendStateCreateInfo{
			SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
			AttachmentCount: 1,
			PAttachments: []vk.PipelineColorBlendAttachmentState{{
				ColorWriteMask: 0xF,
				BlendEnable:    vk.False,
			}},
		},
		PDynamicState: &vk.PipelineDynamicStateCreateInfo{
			SType:             vk.StructureTypePipelineDynamicStateCreateInfo,
			DynamicStateCount: 2,
			PDynamicStates: []vk.DynamicState{
				vk.DynamicStateScissor,
				vk.DynamicStateViewport,
			},
		},
		Layout:     p.layout,
		RenderPass: renderPass,
	}}

	pipelines := make([]vk.Pipeline, len(gpci))
	if err := vk.Error(vk.CreateGraphicsPipelines(p.device.logicalDevice, nil, uint32(len(gpci)), gpci, nil, pipelines)); err != nil {
		return errors.Wrap(err, "vk.CreateGraphicsPipelines()")
	}
	p.pipeline = pipelines[0]
	return nil
}

// Destroy implements hal.Pipeline.
func (p *Pipeline) Destroy() {
	logical := p.device.logicalDevice
	if p.pipeline != nil {
		vk.DestroyPipeline(logical, p.pipeline, nil)
	}
	if p.descriptorPool != nil {
		vk.DestroyDescriptorPool(logical, p.descriptorPool, nil)
	}
	if p.layout != nil {
		vk.DestroyPipelineLayout(logical, p.layout, nil)
	}
	if p.descriptorSetLayout != nil {
		vk.DestroyDescriptorSetLayout(logical, p.descriptorSetLayout, nil)
	}
}
