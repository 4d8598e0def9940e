// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build !nogpu

package native

import (
	"fmt"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/diabolic/gpucore"
)

// commandAllocator owns the HAL command buffers encoded from its lists.
// They are freed by Reset once the submission that used them retired.
type commandAllocator struct {
	device *Device
	typ    gpucore.CommandListType

	mu      sync.Mutex
	open    *commandList
	buffers []hal.CommandBuffer
	serial  uint64 // submission serial of the last executed list
}

var _ gpucore.CommandAllocator = (*commandAllocator)(nil)

func (a *commandAllocator) Type() gpucore.CommandListType { return a.typ }

func (a *commandAllocator) Reset() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.open != nil {
		return errors.Wrap(gpucore.ErrAllocatorInUse, "a command list is still recording")
	}
	if !a.device.retired(a.serial) {
		return errors.Wrapf(gpucore.ErrAllocatorInUse, "submission %d still executing", a.serial)
	}
	a.free()
	return nil
}

// free releases the command buffers. a.mu must be held.
func (a *commandAllocator) free() {
	for _, cb := range a.buffers {
		a.device.hal.FreeCommandBuffer(cb)
	}
	a.buffers = nil
}

func (a *commandAllocator) Destroy() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.free()
}

type listState int

const (
	listRecording listState = iota
	listClosed
)

// op is one recorded command, replayed into a HAL encoder on execution.
type op struct {
	graphics bool
	name     string
	run      func(*encoder) error
}

type commandList struct {
	device *Device
	typ    gpucore.CommandListType

	state listState
	alloc *commandAllocator
	ops   []op
	err   error
}

var _ gpucore.CommandList = (*commandList)(nil)

func (l *commandList) Type() gpucore.CommandListType { return l.typ }

func (l *commandList) Reset(alloc gpucore.CommandAllocator) error {
	a, ok := alloc.(*commandAllocator)
	if !ok || a.device != l.device {
		return errors.Wrap(gpucore.ErrTypeMismatch, "allocator from another device")
	}
	if a.typ != l.typ {
		return errors.Wrapf(gpucore.ErrTypeMismatch, "%s allocator for %s list", a.typ, l.typ)
	}
	if l.state != listClosed {
		return errors.Wrap(gpucore.ErrInvalidState, "reset of a list that is still recording")
	}
	a.mu.Lock()
	if a.open != nil {
		a.mu.Unlock()
		return errors.Wrap(gpucore.ErrAllocatorInUse, "another list is recording into the allocator")
	}
	a.open = l
	a.mu.Unlock()

	l.alloc = a
	l.ops = nil
	l.err = nil
	l.state = listRecording
	return nil
}

func (l *commandList) Close() error {
	if l.state != listRecording {
		return errors.Wrap(gpucore.ErrInvalidState, "close of a list that is not recording")
	}
	l.alloc.mu.Lock()
	l.alloc.open = nil
	l.alloc.mu.Unlock()
	l.state = listClosed
	return l.err
}

// encode replays the list into a new HAL command buffer owned by the
// allocator.
func (l *commandList) encode() (hal.CommandBuffer, error) {
	label := fmt.Sprintf("%s list", l.typ)
	enc, err := l.device.hal.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: label})
	if err != nil {
		return nil, errors.Wrap(err, "create command encoder")
	}
	if err := enc.BeginEncoding(label); err != nil {
		return nil, errors.Wrap(err, "begin encoding")
	}
	e := newEncoder(l.device, enc)
	for _, o := range l.ops {
		if err := o.run(e); err != nil {
			e.abort()
			enc.DiscardEncoding()
			return nil, errors.Wrapf(err, "%s", o.name)
		}
	}
	e.finish()
	cb, err := enc.EndEncoding()
	if err != nil {
		return nil, errors.Wrap(err, "end encoding")
	}
	l.alloc.mu.Lock()
	l.alloc.buffers = append(l.alloc.buffers, cb)
	l.alloc.mu.Unlock()
	return cb, nil
}

func (l *commandList) submitted(serial uint64) {
	l.alloc.mu.Lock()
	l.alloc.serial = serial
	l.alloc.mu.Unlock()
}

func (l *commandList) fail(err error) {
	if l.err == nil {
		l.err = err
	}
}

func (l *commandList) record(graphics bool, name string, run func(*encoder) error) {
	if l.state != listRecording {
		l.fail(errors.Wrapf(gpucore.ErrInvalidState, "%s recorded into a closed list", name))
		return
	}
	if graphics && l.typ == gpucore.CommandListCopy {
		l.fail(errors.Wrapf(gpucore.ErrTypeMismatch, "%s recorded into a copy list", name))
		return
	}
	l.ops = append(l.ops, op{graphics: graphics, name: name, run: run})
}

func (l *commandList) ResourceBarrier(barriers ...gpucore.ResourceBarrier) {
	bs := make([]resourceBarrier, 0, len(barriers))
	for _, b := range barriers {
		r, err := l.device.resourceOf(b.Resource)
		if err != nil {
			l.fail(err)
			return
		}
		bs = append(bs, resourceBarrier{res: r, before: b.Before, after: b.After})
	}
	l.record(false, "ResourceBarrier", func(e *encoder) error {
		return e.barrier(bs)
	})
}

func (l *commandList) SetDescriptorHeaps(heaps ...gpucore.DescriptorHeap) {
	hs := make([]*descriptorHeap, 0, len(heaps))
	for _, gh := range heaps {
		h, ok := gh.(*descriptorHeap)
		if !ok || h.device != l.device {
			l.fail(errors.Wrap(gpucore.ErrTypeMismatch, "descriptor heap from another device"))
			return
		}
		hs = append(hs, h)
	}
	l.record(true, "SetDescriptorHeaps", func(e *encoder) error {
		return e.setHeaps(hs)
	})
}

func (l *commandList) ClearRenderTargetView(rtv gpucore.CPUDescriptorHandle, color [4]float32) {
	v, err := l.device.viewAt(rtv, viewRTV)
	if err != nil {
		l.fail(err)
		return
	}
	l.record(true, "ClearRenderTargetView", func(e *encoder) error {
		return e.clearColor(v, color)
	})
}

func (l *commandList) ClearDepthStencilView(dsv gpucore.CPUDescriptorHandle, flags gpucore.ClearFlags, depth float32, stencil uint8) {
	v, err := l.device.viewAt(dsv, viewDSV)
	if err != nil {
		l.fail(err)
		return
	}
	l.record(true, "ClearDepthStencilView", func(e *encoder) error {
		return e.clearDepth(v, flags, depth, stencil)
	})
}

func (l *commandList) SetRenderTargets(rtvs []gpucore.CPUDescriptorHandle, dsv *gpucore.CPUDescriptorHandle) {
	targets := make([]*view, 0, len(rtvs))
	for _, h := range rtvs {
		v, err := l.device.viewAt(h, viewRTV)
		if err != nil {
			l.fail(err)
			return
		}
		targets = append(targets, v)
	}
	var depth *view
	if dsv != nil {
		v, err := l.device.viewAt(*dsv, viewDSV)
		if err != nil {
			l.fail(err)
			return
		}
		depth = v
	}
	l.record(true, "SetRenderTargets", func(e *encoder) error {
		e.setTargets(targets, depth)
		return nil
	})
}

func (l *commandList) SetViewports(viewports ...gpucore.Viewport) {
	vps := append([]gpucore.Viewport(nil), viewports...)
	l.record(true, "SetViewports", func(e *encoder) error {
		e.viewports = vps
		e.dirty = true
		return nil
	})
}

func (l *commandList) SetScissorRects(rects ...gpucore.Rect) {
	rs := append([]gpucore.Rect(nil), rects...)
	l.record(true, "SetScissorRects", func(e *encoder) error {
		e.scissors = rs
		e.dirty = true
		return nil
	})
}

func (l *commandList) SetPipelineState(p gpucore.PipelineState) {
	ps, ok := p.(*pipelineState)
	if !ok || ps.device != l.device {
		l.fail(errors.Wrap(gpucore.ErrTypeMismatch, "pipeline state from another device"))
		return
	}
	l.record(true, "SetPipelineState", func(e *encoder) error {
		e.pipeline = ps
		e.dirty = true
		return nil
	})
}

// SetGraphicsRootConstants fails at execution: pipelines on this backend
// declare no root constants.
func (l *commandList) SetGraphicsRootConstants(data []uint32, destOffset uint32) {
	n := len(data)
	l.record(true, "SetGraphicsRootConstants", func(e *encoder) error {
		return errors.Wrapf(gpucore.ErrUnsupported, "%d root constants at %d", n, destOffset)
	})
}

func (l *commandList) SetGraphicsRootDescriptorTable(rootIndex uint32, base gpucore.GPUDescriptorHandle) {
	l.record(true, "SetGraphicsRootDescriptorTable", func(e *encoder) error {
		return e.setRootTable(rootIndex, base)
	})
}

func (l *commandList) SetPrimitiveTopology(t gpucore.PrimitiveTopology) {
	l.record(true, "SetPrimitiveTopology", func(e *encoder) error {
		e.topology, e.topologySet = t, true
		return nil
	})
}

func (l *commandList) SetVertexBuffers(startSlot uint32, views ...gpucore.VertexBufferView) {
	bufs := make([]vertexBuffer, 0, len(views))
	for _, v := range views {
		r, err := l.device.resourceOf(v.Resource)
		if err != nil {
			l.fail(err)
			return
		}
		if r.buf == nil {
			l.fail(errors.Wrapf(gpucore.ErrInvalidArgument, "vertex buffer %q is a texture", r.desc.Label))
			return
		}
		bufs = append(bufs, vertexBuffer{res: r, offset: v.Offset, size: v.Size})
	}
	l.record(true, "SetVertexBuffers", func(e *encoder) error {
		for i, b := range bufs {
			e.setVertexBuffer(startSlot+uint32(i), b)
		}
		return nil
	})
}

func (l *commandList) SetIndexBuffer(v *gpucore.IndexBufferView) {
	if v == nil {
		l.record(true, "SetIndexBuffer", func(e *encoder) error {
			e.indices = nil
			return nil
		})
		return
	}
	r, err := l.device.resourceOf(v.Resource)
	if err != nil {
		l.fail(err)
		return
	}
	if v.Format != gpucore.FormatR16Uint && v.Format != gpucore.FormatR32Uint {
		l.fail(errors.Wrapf(gpucore.ErrInvalidArgument, "index format %s", v.Format))
		return
	}
	ib := &indexBuffer{res: r, offset: v.Offset, size: v.Size, format: v.Format}
	l.record(true, "SetIndexBuffer", func(e *encoder) error {
		e.indices = ib
		e.dirty = true
		return nil
	})
}

func (l *commandList) DrawInstanced(vertexCount, instanceCount, startVertex, startInstance uint32) {
	l.record(true, "DrawInstanced", func(e *encoder) error {
		if err := e.prepareDraw(false); err != nil {
			return err
		}
		e.pass.Draw(vertexCount, instanceCount, startVertex, startInstance)
		e.device.stats.Draws.Add(1)
		return nil
	})
}

func (l *commandList) DrawIndexedInstanced(indexCount, instanceCount, startIndex uint32, baseVertex int32, startInstance uint32) {
	l.record(true, "DrawIndexedInstanced", func(e *encoder) error {
		if err := e.prepareDraw(true); err != nil {
			return err
		}
		e.pass.DrawIndexed(indexCount, instanceCount, startIndex, baseVertex, startInstance)
		e.device.stats.Draws.Add(1)
		return nil
	})
}

func (l *commandList) CopyBufferRegion(dst gpucore.Resource, dstOffset uint64, src gpucore.Resource, srcOffset, size uint64) {
	d, err := l.device.resourceOf(dst)
	if err != nil {
		l.fail(err)
		return
	}
	s, err := l.device.resourceOf(src)
	if err != nil {
		l.fail(err)
		return
	}
	l.record(false, "CopyBufferRegion", func(e *encoder) error {
		return e.copyBuffer(d, dstOffset, s, srcOffset, size)
	})
}

func (l *commandList) Destroy() {
	if l.state == listRecording && l.alloc != nil {
		l.alloc.mu.Lock()
		if l.alloc.open == l {
			l.alloc.open = nil
		}
		l.alloc.mu.Unlock()
	}
	l.ops = nil
}
