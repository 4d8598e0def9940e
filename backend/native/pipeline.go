// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build !nogpu

package native

import (
	"github.com/cockroachdb/errors"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/diabolic/gpucore"
	"github.com/gogpu/diabolic/shader"
)

type pipelineState struct {
	device *Device
	desc   gpucore.GraphicsPipelineDesc

	vs, ps   hal.ShaderModule
	layout   hal.PipelineLayout
	pipeline hal.RenderPipeline
}

var _ gpucore.PipelineState = (*pipelineState)(nil)

// CreateGraphicsPipelineState builds a HAL render pipeline. Shaders are
// taken from their WGSL source when present, SPIR-V code otherwise.
// Pipelines bind no resources.
func (d *Device) CreateGraphicsPipelineState(desc *gpucore.GraphicsPipelineDesc) (gpucore.PipelineState, error) {
	if err := d.Err(); err != nil {
		return nil, err
	}
	if desc == nil {
		return nil, errors.Wrap(gpucore.ErrInvalidArgument, "nil pipeline description")
	}
	if err := desc.Validate(); err != nil {
		return nil, err
	}
	if desc.RootConstants > 0 {
		return nil, errors.Wrapf(gpucore.ErrUnsupported, "pipeline %q declares root constants", desc.Label)
	}

	p := &pipelineState{device: d, desc: *desc}
	p.desc.InputLayout = append([]gpucore.InputElement(nil), desc.InputLayout...)
	p.desc.VertexStrides = append([]uint32(nil), desc.VertexStrides...)
	p.desc.RTVFormats = append([]gpucore.Format(nil), desc.RTVFormats...)

	hd, err := p.halDescriptor()
	if err != nil {
		return nil, err
	}
	if p.vs, err = d.shaderModule(desc.Label+" vs", &desc.VS); err != nil {
		return nil, err
	}
	hd.Vertex.Module = p.vs
	if !desc.PS.Empty() {
		if p.ps, err = d.shaderModule(desc.Label+" ps", &desc.PS); err != nil {
			p.Destroy()
			return nil, err
		}
		hd.Fragment.Module = p.ps
	} else {
		hd.Fragment = nil
	}
	p.layout, err = d.hal.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{Label: desc.Label})
	if err != nil {
		p.Destroy()
		return nil, errors.Wrapf(err, "pipeline %q: layout", desc.Label)
	}
	hd.Layout = p.layout
	p.pipeline, err = d.hal.CreateRenderPipeline(hd)
	if err != nil {
		p.Destroy()
		return nil, errors.Wrapf(err, "pipeline %q", desc.Label)
	}
	return p, nil
}

// halDescriptor translates the fixed-function state. Modules and layout
// are filled in by the caller.
func (p *pipelineState) halDescriptor() (*hal.RenderPipelineDescriptor, error) {
	desc := &p.desc
	buffers := make([]gputypes.VertexBufferLayout, len(desc.VertexStrides))
	for i, s := range desc.VertexStrides {
		buffers[i] = gputypes.VertexBufferLayout{ArrayStride: uint64(s), StepMode: gputypes.VertexStepModeVertex}
	}
	for _, el := range desc.InputLayout {
		if int(el.Slot) >= len(buffers) {
			return nil, errors.Wrapf(gpucore.ErrInvalidArgument, "pipeline %q: %s reads slot %d without a stride",
				desc.Label, el.Semantic, el.Slot)
		}
		f, err := toVertexFormat(el.Format)
		if err != nil {
			return nil, errors.Wrapf(err, "pipeline %q: %s", desc.Label, el.Semantic)
		}
		buffers[el.Slot].Attributes = append(buffers[el.Slot].Attributes, gputypes.VertexAttribute{
			Format:         f,
			Offset:         uint64(el.Offset),
			ShaderLocation: el.Location,
		})
	}

	targets := make([]gputypes.ColorTargetState, len(desc.RTVFormats))
	for i, f := range desc.RTVFormats {
		tf, err := toTextureFormat(f)
		if err != nil {
			return nil, errors.Wrapf(err, "pipeline %q: render target %d", desc.Label, i)
		}
		targets[i] = gputypes.ColorTargetState{Format: tf, WriteMask: gputypes.ColorWriteMaskAll}
	}

	hd := &hal.RenderPipelineDescriptor{
		Label: desc.Label,
		Vertex: hal.VertexState{
			EntryPoint: desc.VS.EntryPoint,
			Buffers:    buffers,
		},
		Fragment: &hal.FragmentState{
			EntryPoint: desc.PS.EntryPoint,
			Targets:    targets,
		},
		Primitive: gputypes.PrimitiveState{
			Topology: toTopology(desc.Topology),
			CullMode: gputypes.CullModeNone,
		},
		Multisample: gputypes.MultisampleState{Count: 1, Mask: 0xFFFFFFFF},
	}
	if desc.DSVFormat != gpucore.FormatUnknown {
		df, err := toTextureFormat(desc.DSVFormat)
		if err != nil {
			return nil, errors.Wrapf(err, "pipeline %q: depth target", desc.Label)
		}
		compare := gputypes.CompareFunctionAlways
		if desc.DepthEnable {
			compare = gputypes.CompareFunctionLess
		}
		keep := hal.StencilFaceState{
			Compare:     gputypes.CompareFunctionAlways,
			FailOp:      hal.StencilOperationKeep,
			DepthFailOp: hal.StencilOperationKeep,
			PassOp:      hal.StencilOperationKeep,
		}
		hd.DepthStencil = &hal.DepthStencilState{
			Format:            df,
			DepthWriteEnabled: desc.DepthEnable && desc.DepthWrite,
			DepthCompare:      compare,
			StencilFront:      keep,
			StencilBack:       keep,
		}
	}
	return hd, nil
}

func (d *Device) shaderModule(label string, bc *gpucore.ShaderBytecode) (hal.ShaderModule, error) {
	var src hal.ShaderSource
	switch {
	case bc.Source != "":
		src.WGSL = bc.Source
	case len(bc.Code)%4 == 0:
		src.SPIRV = shader.Words(bc.Code)
	default:
		return nil, errors.Wrapf(gpucore.ErrInvalidArgument, "%s: bytecode is not SPIR-V", label)
	}
	m, err := d.hal.CreateShaderModule(&hal.ShaderModuleDescriptor{Label: label, Source: src})
	if err != nil {
		return nil, errors.Wrapf(err, "shader module %s", label)
	}
	return m, nil
}

func (p *pipelineState) Label() string { return p.desc.Label }

func (p *pipelineState) Destroy() {
	h := p.device.hal
	if p.pipeline != nil {
		h.DestroyRenderPipeline(p.pipeline)
		p.pipeline = nil
	}
	if p.layout != nil {
		h.DestroyPipelineLayout(p.layout)
		p.layout = nil
	}
	if p.ps != nil {
		h.DestroyShaderModule(p.ps)
		p.ps = nil
	}
	if p.vs != nil {
		h.DestroyShaderModule(p.vs)
		p.vs = nil
	}
}
