// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gpucore

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// ShaderStage identifies the pipeline stage a shader runs in.
type ShaderStage uint8

// Shader stages.
const (
	StageVertex ShaderStage = iota
	StagePixel
	StageCompute
)

// String returns the string representation of ShaderStage.
func (s ShaderStage) String() string {
	switch s {
	case StageVertex:
		return "Vertex"
	case StagePixel:
		return "Pixel"
	case StageCompute:
		return "Compute"
	default:
		return fmt.Sprintf("Unknown(%d)", int(s))
	}
}

// ShaderBytecode is a compiled shader blob. The device does not interpret
// the source language, only the bytecode format its backend accepts.
type ShaderBytecode struct {
	Stage      ShaderStage
	EntryPoint string
	Code       []byte

	// Source is the WGSL the bytecode was compiled from, when known.
	// Backends that compile on their own may use it instead of Code.
	Source string
}

// Empty reports whether the bytecode holds no code.
func (b *ShaderBytecode) Empty() bool {
	return len(b.Code) == 0 && b.Source == ""
}

// InputElement is one attribute of the vertex input layout.
type InputElement struct {
	Semantic string
	Location uint32
	Format   Format
	Slot     uint32
	Offset   uint32
}

// GraphicsPipelineDesc describes a graphics pipeline state object.
type GraphicsPipelineDesc struct {
	Label       string
	VS          ShaderBytecode
	PS          ShaderBytecode
	InputLayout []InputElement

	// VertexStrides holds the stride of each vertex buffer slot.
	VertexStrides []uint32

	Topology   PrimitiveTopology
	RTVFormats []Format
	DSVFormat  Format

	DepthEnable bool
	DepthWrite  bool

	// RootConstants is the number of 32-bit constants the pipeline reads
	// from SetGraphicsRootConstants.
	RootConstants uint32
}

// Validate checks the description for missing required fields.
func (d *GraphicsPipelineDesc) Validate() error {
	if d.VS.Empty() {
		return errors.Wrapf(ErrInvalidArgument, "pipeline %q has no vertex shader", d.Label)
	}
	if len(d.RTVFormats) == 0 && d.DSVFormat == FormatUnknown {
		return errors.Wrapf(ErrInvalidArgument, "pipeline %q has no render target formats", d.Label)
	}
	if d.DepthEnable && !d.DSVFormat.IsDepth() {
		return errors.Wrapf(ErrInvalidArgument, "pipeline %q enables depth without a depth format", d.Label)
	}
	return nil
}
