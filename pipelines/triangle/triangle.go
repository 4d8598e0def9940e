// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package triangle is a minimal geometry pipeline: one colored triangle
// spinning about the origin.
//
// The model vertices are uploaded once through the copy queue into a
// default heap buffer, and a shader resource view of them is published in
// the bindless heap. Each frame the rotated vertices are written to an
// upload buffer owned by the backbuffer being rendered, which the GPU
// cannot be reading at that point.
package triangle

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/gogpu/diabolic/gpucore"
	"github.com/gogpu/diabolic/render"
	"github.com/gogpu/diabolic/shader"
)

const shaderSource = `
struct VertexOutput {
    @builtin(position) position: vec4<f32>,
    @location(0) color: vec4<f32>,
}

@vertex
fn vs_main(@location(0) position: vec2<f32>, @location(1) color: vec4<f32>) -> VertexOutput {
    var out: VertexOutput;
    out.position = vec4<f32>(position, 0.5, 1.0);
    out.color = color;
    return out;
}

@fragment
fn fs_main(in: VertexOutput) -> @location(0) vec4<f32> {
    return in.color;
}
`

// Vertex layout: float2 position, float4 color.
const (
	vertexStride = 24
	vertexCount  = 3
	bufferSize   = vertexStride * vertexCount
)

// DefaultSpeed is the rotation speed in radians per second.
const DefaultSpeed = math.Pi / 2

// Vertex is a model vertex.
type Vertex struct {
	X, Y  float32
	Color [4]float32
}

// Model is the triangle drawn by default: red, green and blue corners.
var Model = [vertexCount]Vertex{
	{X: 0, Y: 0.5, Color: [4]float32{1, 0, 0, 1}},
	{X: 0.5, Y: -0.5, Color: [4]float32{0, 1, 0, 1}},
	{X: -0.5, Y: -0.5, Color: [4]float32{0, 0, 1, 1}},
}

// Pipeline draws the triangle.
type Pipeline struct {
	device   gpucore.Device
	pso      gpucore.PipelineState
	model    gpucore.Resource
	srvIndex uint32
	frames   []gpucore.Resource

	angle float64
	speed float64
	draws uint64
}

var _ render.Pipeline = (*Pipeline)(nil)

// New creates the pipeline state and buffers on ctx. compiler must be
// initialized.
func New(ctx *render.Context, compiler *shader.Compiler) (*Pipeline, error) {
	vs, err := compiler.Compile(shaderSource, gpucore.StageVertex, "vs_main")
	if err != nil {
		return nil, err
	}
	ps, err := compiler.Compile(shaderSource, gpucore.StagePixel, "fs_main")
	if err != nil {
		return nil, err
	}

	p := &Pipeline{device: ctx.Device(), speed: DefaultSpeed}
	if err := p.init(ctx, vs, ps); err != nil {
		p.Destroy()
		return nil, err
	}
	return p, nil
}

func (p *Pipeline) init(ctx *render.Context, vs, ps gpucore.ShaderBytecode) error {
	var err error
	p.pso, err = p.device.CreateGraphicsPipelineState(&gpucore.GraphicsPipelineDesc{
		Label: "triangle",
		VS:    vs,
		PS:    ps,
		InputLayout: []gpucore.InputElement{
			{Semantic: "POSITION", Location: 0, Format: gpucore.FormatRG32Float, Offset: 0},
			{Semantic: "COLOR", Location: 1, Format: gpucore.FormatRGBA32Float, Offset: 8},
		},
		VertexStrides: []uint32{vertexStride},
		Topology:      gpucore.TopologyTriangleList,
		RTVFormats:    []gpucore.Format{render.BackbufferFormat},
		DSVFormat:     render.DepthFormat,
		DepthEnable:   true,
		DepthWrite:    true,
	})
	if err != nil {
		return errors.Wrap(err, "triangle pipeline state")
	}

	desc := gpucore.BufferDesc("triangle model", bufferSize, gpucore.HeapDefault)
	if p.model, err = p.device.CreateCommittedResource(&desc, gpucore.StateCommon, nil); err != nil {
		return err
	}
	var model [bufferSize]byte
	encode(model[:], Model[:], 0)
	if err := ctx.Upload(p.model, 0, model[:]); err != nil {
		return errors.Wrap(err, "upload triangle model")
	}
	p.srvIndex, err = ctx.Descriptors().CreateSRV(p.model, &gpucore.ShaderResourceViewDesc{
		NumElements:         vertexCount,
		StructureByteStride: vertexStride,
	})
	if err != nil {
		return errors.Wrap(err, "triangle model view")
	}

	for i := 0; i < ctx.FrameCount(); i++ {
		desc := gpucore.BufferDesc(fmt.Sprintf("triangle frame %d", i), bufferSize, gpucore.HeapUpload)
		buf, err := p.device.CreateCommittedResource(&desc, gpucore.StateGenericRead, nil)
		if err != nil {
			return err
		}
		p.frames = append(p.frames, buf)
	}
	return nil
}

// Name returns "triangle".
func (p *Pipeline) Name() string { return "triangle" }

// ModelIndex returns the bindless index of the model vertex view.
func (p *Pipeline) ModelIndex() uint32 { return p.srvIndex }

// SetSpeed sets the rotation speed in radians per second.
func (p *Pipeline) SetSpeed(radiansPerSecond float64) { p.speed = radiansPerSecond }

// Angle returns the current rotation in radians.
func (p *Pipeline) Angle() float64 { return p.angle }

// Draws returns how many frames the triangle was recorded into.
func (p *Pipeline) Draws() uint64 { return p.draws }

// Update advances the rotation.
func (p *Pipeline) Update(dt time.Duration) {
	p.angle = math.Mod(p.angle+p.speed*dt.Seconds(), 2*math.Pi)
}

// Record writes the rotated vertices to the buffer of the current
// backbuffer and draws them.
func (p *Pipeline) Record(fc render.FrameContext) error {
	buf := p.frames[fc.BackbufferIndex()]
	mem, err := buf.Map()
	if err != nil {
		return errors.Wrap(err, "map triangle vertices")
	}
	encode(mem, Model[:], p.angle)
	buf.Unmap()

	list := fc.CommandList()
	list.SetPipelineState(p.pso)
	list.SetPrimitiveTopology(gpucore.TopologyTriangleList)
	list.SetVertexBuffers(0, gpucore.VertexBufferView{
		Resource: buf,
		Size:     bufferSize,
		Stride:   vertexStride,
	})
	list.DrawInstanced(vertexCount, 1, 0, 0)
	p.draws++
	return nil
}

// Destroy releases the buffers and the pipeline state. The GPU must be
// done with them.
func (p *Pipeline) Destroy() {
	for _, b := range p.frames {
		b.Destroy()
	}
	p.frames = nil
	if p.model != nil {
		p.model.Destroy()
		p.model = nil
	}
	if p.pso != nil {
		p.pso.Destroy()
		p.pso = nil
	}
}

// encode writes verts rotated by angle into dst.
func encode(dst []byte, verts []Vertex, angle float64) {
	sin, cos := math.Sincos(angle)
	for i, v := range verts {
		x := float32(float64(v.X)*cos - float64(v.Y)*sin)
		y := float32(float64(v.X)*sin + float64(v.Y)*cos)
		at := i * vertexStride
		binary.LittleEndian.PutUint32(dst[at:], math.Float32bits(x))
		binary.LittleEndian.PutUint32(dst[at+4:], math.Float32bits(y))
		for c := 0; c < 4; c++ {
			binary.LittleEndian.PutUint32(dst[at+8+c*4:], math.Float32bits(v.Color[c]))
		}
	}
}
