// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package soft

import (
	"github.com/cockroachdb/errors"

	"github.com/gogpu/diabolic/gpucore"
)

// Input semantics the fixed-function rasterizer reads.
const (
	SemanticPosition = "POSITION"
	SemanticColor    = "COLOR"
)

type pipelineState struct {
	device   *Device
	desc     gpucore.GraphicsPipelineDesc
	position *gpucore.InputElement
	color    *gpucore.InputElement
}

var _ gpucore.PipelineState = (*pipelineState)(nil)

// CreateGraphicsPipelineState validates desc and resolves the attributes
// the rasterizer consumes. Shader code is kept but never executed.
func (d *Device) CreateGraphicsPipelineState(desc *gpucore.GraphicsPipelineDesc) (gpucore.PipelineState, error) {
	if err := d.checkAlive(); err != nil {
		return nil, err
	}
	if desc == nil {
		return nil, errors.Wrap(gpucore.ErrInvalidArgument, "nil pipeline description")
	}
	if err := desc.Validate(); err != nil {
		return nil, err
	}
	for _, f := range desc.RTVFormats {
		if f != gpucore.FormatRGBA8Unorm && f != gpucore.FormatBGRA8Unorm {
			return nil, errors.Wrapf(gpucore.ErrUnsupported, "pipeline %q: render target format %s", desc.Label, f)
		}
	}

	p := &pipelineState{device: d, desc: *desc}
	p.desc.InputLayout = append([]gpucore.InputElement(nil), desc.InputLayout...)
	p.desc.VertexStrides = append([]uint32(nil), desc.VertexStrides...)
	for i := range p.desc.InputLayout {
		el := &p.desc.InputLayout[i]
		switch el.Semantic {
		case SemanticPosition:
			switch el.Format {
			case gpucore.FormatRG32Float, gpucore.FormatRGB32Float, gpucore.FormatRGBA32Float:
			default:
				return nil, errors.Wrapf(gpucore.ErrUnsupported, "pipeline %q: position format %s", desc.Label, el.Format)
			}
			p.position = el
		case SemanticColor:
			switch el.Format {
			case gpucore.FormatRGB32Float, gpucore.FormatRGBA32Float, gpucore.FormatRGBA8Unorm:
			default:
				return nil, errors.Wrapf(gpucore.ErrUnsupported, "pipeline %q: color format %s", desc.Label, el.Format)
			}
			p.color = el
		}
	}
	return p, nil
}

func (p *pipelineState) Label() string { return p.desc.Label }

func (p *pipelineState) Destroy() {}

// stride returns the vertex stride of slot, or 0 when unknown.
func (p *pipelineState) stride(slot uint32) uint32 {
	if int(slot) < len(p.desc.VertexStrides) {
		return p.desc.VertexStrides[slot]
	}
	return 0
}
