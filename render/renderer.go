// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package render

import (
	"time"

	"github.com/cockroachdb/errors"

	"github.com/gogpu/diabolic"
	"github.com/gogpu/diabolic/descriptor"
	"github.com/gogpu/diabolic/gpucore"
	"github.com/gogpu/diabolic/queue"
)

// Pipeline records draw calls into a frame. Pipelines are created against
// a Context and destroyed by whoever created them, after the Context was
// flushed.
type Pipeline interface {
	// Name identifies the pipeline in logs.
	Name() string

	// Update advances the pipeline's own state by dt. It is called once
	// per frame before recording.
	Update(dt time.Duration)

	// Record records the pipeline's draws. The render target, depth
	// target, viewport, scissor and descriptor heaps are already bound.
	Record(fc FrameContext) error
}

// FrameContext is what a pipeline may use while recording a frame.
type FrameContext interface {
	// Device returns the device, for creating per-frame views.
	Device() gpucore.Device

	// CommandList returns the list being recorded.
	CommandList() gpucore.CommandList

	// Descriptors returns the bindless heap bound to the list.
	Descriptors() *descriptor.Heap

	// BackbufferIndex returns the index of the swapchain buffer rendered
	// to. Per-frame resources indexed by it are not in use by the GPU.
	BackbufferIndex() int

	// Viewport returns the viewport bound to the list.
	Viewport() gpucore.Viewport
}

type frameContext struct {
	ctx   *Context
	list  gpucore.CommandList
	index int
}

func (f *frameContext) Device() gpucore.Device           { return f.ctx.device }
func (f *frameContext) CommandList() gpucore.CommandList { return f.list }
func (f *frameContext) Descriptors() *descriptor.Heap    { return f.ctx.srvHeap }
func (f *frameContext) BackbufferIndex() int             { return f.index }
func (f *frameContext) Viewport() gpucore.Viewport       { return f.ctx.Viewport() }

// FrameStats counts rendered frames.
type FrameStats struct {
	Frames        uint64
	BlockedFrames uint64
	CPUTime       time.Duration
}

// Renderer drives frames. Each swapchain buffer remembers the fence value
// of the last frame rendered to it; before a buffer is reused the renderer
// waits for that value, so the CPU is never more than FrameCount frames
// ahead of the GPU.
type Renderer struct {
	ctx       *Context
	pipelines []Pipeline
	fences    []uint64
	stats     FrameStats
}

// NewRenderer returns a renderer drawing pipelines in order.
func NewRenderer(ctx *Context, pipelines ...Pipeline) *Renderer {
	return &Renderer{
		ctx:       ctx,
		pipelines: pipelines,
		fences:    make([]uint64, ctx.FrameCount()),
	}
}

// Add appends a pipeline.
func (r *Renderer) Add(p Pipeline) {
	r.pipelines = append(r.pipelines, p)
}

// Stats returns the frame counters.
func (r *Renderer) Stats() FrameStats { return r.stats }

// FrameFence returns the fence value of the last frame rendered to buffer i.
func (r *Renderer) FrameFence(i int) uint64 { return r.fences[i] }

// Frame renders and presents one frame, then waits until the buffer the
// next frame renders to is free.
func (r *Renderer) Frame(dt time.Duration) error {
	start := time.Now()
	for _, p := range r.pipelines {
		p.Update(dt)
	}

	c := r.ctx
	direct := c.direct
	index := c.swapchain.CurrentBackBufferIndex()
	backbuffer := c.backbuffers[index]

	list, err := direct.AcquireCommandList()
	if err != nil {
		return errors.Wrap(err, "acquire frame command list")
	}
	list.SetDescriptorHeaps(c.srvHeap.Native(), c.samplerHeap.Native())
	list.ResourceBarrier(gpucore.TransitionBarrier(backbuffer, gpucore.StatePresent, gpucore.StateRenderTarget))

	rtv, dsv := c.rtvs[index].CPU, c.dsv.CPU
	list.ClearRenderTargetView(rtv, c.clearColor)
	list.ClearDepthStencilView(dsv, gpucore.ClearDepth, 1, 0)
	list.SetRenderTargets([]gpucore.CPUDescriptorHandle{rtv}, &dsv)
	list.SetViewports(c.Viewport())
	list.SetScissorRects(c.ScissorRect())

	fc := &frameContext{ctx: c, list: list, index: index}
	for _, p := range r.pipelines {
		if err := p.Record(fc); err != nil {
			direct.Abandon(list)
			return errors.Wrapf(err, "record pipeline %s", p.Name())
		}
	}

	list.ResourceBarrier(gpucore.TransitionBarrier(backbuffer, gpucore.StateRenderTarget, gpucore.StatePresent))
	v, err := direct.Submit(list)
	if err != nil {
		return errors.Wrap(err, "submit frame")
	}
	r.fences[index] = v

	if err := c.swapchain.Present(c.syncInterval); err != nil {
		return errors.Wrap(err, "present")
	}

	next := c.swapchain.CurrentBackBufferIndex()
	if !direct.IsFenceComplete(r.fences[next]) {
		r.stats.BlockedFrames++
	}
	if err := direct.WaitForFence(r.fences[next], queue.Infinite); err != nil {
		return errors.Wrapf(err, "wait for buffer %d", next)
	}

	r.stats.Frames++
	r.stats.CPUTime += time.Since(start)
	diabolic.Logger().Debug("render: frame", "buffer", index, "fence", v, "next", next)
	return nil
}

// Resize resizes the context and forgets the per-buffer fences, which the
// flush inside Resize completed.
func (r *Renderer) Resize(width, height uint32) error {
	if err := r.ctx.Resize(width, height); err != nil {
		return err
	}
	for i := range r.fences {
		r.fences[i] = 0
	}
	return nil
}
