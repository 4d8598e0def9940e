// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build !nogpu

package native

import (
	"github.com/cockroachdb/errors"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/diabolic/gpucore"
)

type resourceBarrier struct {
	res           *resource
	before, after gpucore.ResourceState
}

type vertexBuffer struct {
	res    *resource
	offset uint64
	size   uint32
}

type indexBuffer struct {
	res    *resource
	offset uint64
	size   uint32
	format gpucore.Format
}

// pendingClear is a clear waiting to become the load op of the next pass
// on its target.
type pendingClear struct {
	view    *view
	color   [4]float32
	depth   float32
	stencil uint8
	flags   gpucore.ClearFlags
}

// encoder replays one command list into a HAL command encoder. Render
// passes are opened lazily by draws and closed by anything that cannot run
// inside a pass.
type encoder struct {
	device *Device
	enc    hal.CommandEncoder
	pass   hal.RenderPassEncoder

	heaps   []*descriptorHeap
	targets []*view
	depth   *view
	clears  []pendingClear

	viewports   []gpucore.Viewport
	scissors    []gpucore.Rect
	pipeline    *pipelineState
	topology    gpucore.PrimitiveTopology
	topologySet bool
	vertices    []vertexBuffer
	indices     *indexBuffer

	// dirty is set when bound state must be re-applied to the pass.
	dirty bool
}

func newEncoder(d *Device, enc hal.CommandEncoder) *encoder {
	return &encoder{device: d, enc: enc}
}

// finish closes the open pass and resolves leftover clears.
func (e *encoder) finish() {
	e.endPass()
	e.flushClears()
}

func (e *encoder) abort() {
	e.endPass()
	e.clears = nil
}

func (e *encoder) endPass() {
	if e.pass != nil {
		e.pass.End()
		e.pass = nil
	}
}

// flushClears encodes every pending clear as an empty pass.
func (e *encoder) flushClears() {
	clears := e.clears
	e.clears = nil
	for _, c := range clears {
		desc := &hal.RenderPassDescriptor{Label: "clear " + c.view.res.desc.Label}
		if c.view.kind == viewRTV {
			desc.ColorAttachments = []hal.RenderPassColorAttachment{colorAttachment(c.view, &c)}
		} else {
			desc.DepthStencilAttachment = depthAttachment(c.view, &c)
		}
		e.enc.BeginRenderPass(desc).End()
		e.device.stats.Passes.Add(1)
	}
}

func colorAttachment(v *view, c *pendingClear) hal.RenderPassColorAttachment {
	a := hal.RenderPassColorAttachment{
		View:    v.res.view,
		LoadOp:  gputypes.LoadOpLoad,
		StoreOp: gputypes.StoreOpStore,
	}
	if c != nil {
		a.LoadOp = gputypes.LoadOpClear
		a.ClearValue = gputypes.Color{
			R: float64(c.color[0]), G: float64(c.color[1]),
			B: float64(c.color[2]), A: float64(c.color[3]),
		}
	}
	return a
}

func depthAttachment(v *view, c *pendingClear) *hal.RenderPassDepthStencilAttachment {
	a := &hal.RenderPassDepthStencilAttachment{
		View:         v.res.view,
		DepthLoadOp:  gputypes.LoadOpLoad,
		DepthStoreOp: gputypes.StoreOpStore,
	}
	if v.format == gpucore.FormatD24UnormS8Uint {
		a.StencilLoadOp = gputypes.LoadOpLoad
		a.StencilStoreOp = gputypes.StoreOpStore
	}
	if c == nil {
		return a
	}
	if c.flags&gpucore.ClearDepth != 0 {
		a.DepthLoadOp = gputypes.LoadOpClear
		a.DepthClearValue = c.depth
	}
	if c.flags&gpucore.ClearStencil != 0 && v.format == gpucore.FormatD24UnormS8Uint {
		a.StencilLoadOp = gputypes.LoadOpClear
		a.StencilClearValue = uint32(c.stencil)
	}
	return a
}

// takeClear removes and returns the pending clear of v's resource.
func (e *encoder) takeClear(v *view) *pendingClear {
	for i := range e.clears {
		if e.clears[i].view.res == v.res {
			c := e.clears[i]
			e.clears = append(e.clears[:i], e.clears[i+1:]...)
			return &c
		}
	}
	return nil
}

func (e *encoder) queueClear(c pendingClear) {
	// A pass may not clear its own attachments once open.
	e.endPass()
	if old := e.takeClear(c.view); old != nil && c.view.kind == viewDSV {
		// Merge aspects cleared separately.
		if c.flags&gpucore.ClearDepth == 0 && old.flags&gpucore.ClearDepth != 0 {
			c.flags |= gpucore.ClearDepth
			c.depth = old.depth
		}
		if c.flags&gpucore.ClearStencil == 0 && old.flags&gpucore.ClearStencil != 0 {
			c.flags |= gpucore.ClearStencil
			c.stencil = old.stencil
		}
	}
	e.clears = append(e.clears, c)
}

func (e *encoder) clearColor(v *view, color [4]float32) error {
	if err := v.res.requireState(gpucore.StateRenderTarget); err != nil {
		return err
	}
	e.queueClear(pendingClear{view: v, color: color})
	return nil
}

func (e *encoder) clearDepth(v *view, flags gpucore.ClearFlags, depth float32, stencil uint8) error {
	if err := v.res.requireState(gpucore.StateDepthWrite); err != nil {
		return err
	}
	e.queueClear(pendingClear{view: v, depth: depth, stencil: stencil, flags: flags})
	return nil
}

func (e *encoder) setTargets(targets []*view, depth *view) {
	if e.pass != nil && !sameTargets(e.targets, e.depth, targets, depth) {
		e.endPass()
	}
	e.targets, e.depth = targets, depth
}

func sameTargets(a []*view, ad *view, b []*view, bd *view) bool {
	if len(a) != len(b) || (ad == nil) != (bd == nil) {
		return false
	}
	if ad != nil && ad.res != bd.res {
		return false
	}
	for i := range a {
		if a[i].res != b[i].res {
			return false
		}
	}
	return true
}

func (e *encoder) beginPass() {
	desc := &hal.RenderPassDescriptor{Label: "pass"}
	for _, t := range e.targets {
		desc.ColorAttachments = append(desc.ColorAttachments, colorAttachment(t, e.takeClear(t)))
	}
	if e.depth != nil {
		desc.DepthStencilAttachment = depthAttachment(e.depth, e.takeClear(e.depth))
	}
	e.pass = e.enc.BeginRenderPass(desc)
	e.dirty = true
	e.device.stats.Passes.Add(1)
}

func (e *encoder) barrier(bs []resourceBarrier) error {
	e.endPass()
	e.flushClears()
	var textures []hal.TextureBarrier
	for _, b := range bs {
		if err := b.res.transition(b.before, b.after); err != nil {
			return err
		}
		if b.res.tex != nil {
			textures = append(textures, hal.TextureBarrier{
				Texture: b.res.tex,
				Usage: hal.TextureUsageTransition{
					OldUsage: stateUsage(b.before),
					NewUsage: stateUsage(b.after),
				},
			})
		}
		e.device.stats.Barriers.Add(1)
	}
	if len(textures) > 0 {
		e.enc.TransitionTextures(textures)
	}
	return nil
}

func (e *encoder) setHeaps(hs []*descriptorHeap) error {
	seen := map[gpucore.DescriptorHeapType]bool{}
	for _, h := range hs {
		if h.gpu == 0 {
			return errors.Wrapf(gpucore.ErrInvalidArgument, "heap %q is not shader visible", h.desc.Label)
		}
		if seen[h.desc.Type] {
			return errors.Wrapf(gpucore.ErrInvalidArgument, "two %s heaps bound", h.desc.Type)
		}
		seen[h.desc.Type] = true
	}
	e.heaps = hs
	return nil
}

// setRootTable checks that base lies in a bound heap. Pipelines on this
// backend read no tables, so nothing is bound.
func (e *encoder) setRootTable(rootIndex uint32, base gpucore.GPUDescriptorHandle) error {
	for _, h := range e.heaps {
		if h.containsGPU(base.Ptr) {
			return nil
		}
	}
	return errors.Wrapf(gpucore.ErrInvalidArgument, "descriptor table %d at %#x is in no bound heap", rootIndex, base.Ptr)
}

func (e *encoder) setVertexBuffer(slot uint32, b vertexBuffer) {
	for int(slot) >= len(e.vertices) {
		e.vertices = append(e.vertices, vertexBuffer{})
	}
	e.vertices[slot] = b
	e.dirty = true
}

func (e *encoder) copyBuffer(dst *resource, dstOffset uint64, src *resource, srcOffset, size uint64) error {
	if dst.buf == nil || src.buf == nil {
		return errors.Wrap(gpucore.ErrInvalidArgument, "buffer copy between non-buffer resources")
	}
	if dst == src {
		return errors.Wrapf(gpucore.ErrInvalidArgument, "copy of %q onto itself", dst.desc.Label)
	}
	if dstOffset+size > dst.desc.Width || srcOffset+size > src.desc.Width {
		return errors.Wrapf(gpucore.ErrInvalidArgument, "copy of %d bytes from %q to %q is out of range",
			size, src.desc.Label, dst.desc.Label)
	}
	if err := dst.requireState(gpucore.StateCopyDest); err != nil {
		return err
	}
	if err := src.requireState(gpucore.StateCopySource); err != nil {
		return err
	}
	e.endPass()
	e.flushClears()
	e.enc.CopyBufferToBuffer(src.buf, dst.buf, []hal.BufferCopy{{
		SrcOffset: srcOffset,
		DstOffset: dstOffset,
		Size:      alignUp(size, 4),
	}})
	e.device.stats.Copies.Add(1)
	return nil
}

// prepareDraw validates the bound state, opens a pass if needed and
// applies state changed since the last draw.
func (e *encoder) prepareDraw(indexed bool) error {
	if err := e.validateDraw(indexed); err != nil {
		return err
	}
	if e.pass == nil {
		e.beginPass()
	}
	if !e.dirty {
		return nil
	}
	e.pass.SetPipeline(e.pipeline.pipeline)
	for slot, vb := range e.vertices {
		if vb.res != nil {
			e.pass.SetVertexBuffer(uint32(slot), vb.res.buf, vb.offset)
		}
	}
	if e.indices != nil {
		e.pass.SetIndexBuffer(e.indices.res.buf, toIndexFormat(e.indices.format), e.indices.offset)
	}
	vp := e.viewports[0]
	e.pass.SetViewport(vp.X, vp.Y, vp.Width, vp.Height, vp.MinDepth, vp.MaxDepth)
	w, h := e.targetExtent()
	x, y, sw, sh := uint32(0), uint32(0), w, h
	if len(e.scissors) > 0 {
		x, y, sw, sh = clampRect(e.scissors[0], w, h)
	}
	e.pass.SetScissorRect(x, y, sw, sh)
	e.dirty = false
	return nil
}

func (e *encoder) validateDraw(indexed bool) error {
	p := e.pipeline
	if p == nil {
		return errors.Wrap(gpucore.ErrInvalidState, "draw without a pipeline state")
	}
	if !e.topologySet {
		return errors.Wrap(gpucore.ErrInvalidState, "draw without a primitive topology")
	}
	if e.topology != p.desc.Topology {
		return errors.Wrapf(gpucore.ErrInvalidState, "topology differs from the one pipeline %q was built for", p.desc.Label)
	}
	if len(e.targets) == 0 && e.depth == nil {
		return errors.Wrap(gpucore.ErrInvalidState, "draw without render targets")
	}
	if len(e.viewports) == 0 {
		return errors.Wrap(gpucore.ErrInvalidState, "draw without a viewport")
	}
	if len(e.targets) != len(p.desc.RTVFormats) {
		return errors.Wrapf(gpucore.ErrInvalidState, "%d render targets bound, pipeline %q declares %d",
			len(e.targets), p.desc.Label, len(p.desc.RTVFormats))
	}
	if (e.depth == nil) != (p.desc.DSVFormat == gpucore.FormatUnknown) {
		return errors.Wrapf(gpucore.ErrInvalidState, "depth target does not match pipeline %q", p.desc.Label)
	}
	for i, t := range e.targets {
		if t.format != p.desc.RTVFormats[i] {
			return errors.Wrapf(gpucore.ErrInvalidState, "render target %d is %s, pipeline %q expects %s",
				i, t.format, p.desc.Label, p.desc.RTVFormats[i])
		}
		if err := t.res.requireState(gpucore.StateRenderTarget); err != nil {
			return err
		}
	}
	if e.depth != nil && p.desc.DepthEnable {
		if err := e.depth.res.requireState(gpucore.StateDepthWrite); err != nil {
			return err
		}
	}
	for slot := range p.desc.VertexStrides {
		if slot >= len(e.vertices) || e.vertices[slot].res == nil {
			return errors.Wrapf(gpucore.ErrInvalidState, "pipeline %q reads unbound vertex slot %d", p.desc.Label, slot)
		}
		if err := e.vertices[slot].res.requireState(gpucore.StateVertexAndConstantBuffer); err != nil {
			return err
		}
	}
	if indexed {
		if e.indices == nil {
			return errors.Wrap(gpucore.ErrInvalidState, "indexed draw without an index buffer")
		}
		if err := e.indices.res.requireState(gpucore.StateIndexBuffer); err != nil {
			return err
		}
	}
	return nil
}

func (e *encoder) targetExtent() (uint32, uint32) {
	v := e.depth
	if len(e.targets) > 0 {
		v = e.targets[0]
	}
	return uint32(v.res.desc.Width), v.res.desc.Height
}

// clampRect converts a scissor rectangle to an origin and extent inside a
// w by h target.
func clampRect(r gpucore.Rect, w, h uint32) (x, y, rw, rh uint32) {
	clamp := func(v int32, limit uint32) uint32 {
		if v < 0 {
			return 0
		}
		if uint32(v) > limit {
			return limit
		}
		return uint32(v)
	}
	left, top := clamp(r.Left, w), clamp(r.Top, h)
	right, bottom := clamp(r.Right, w), clamp(r.Bottom, h)
	if right < left {
		right = left
	}
	if bottom < top {
		bottom = top
	}
	return left, top, right - left, bottom - top
}
