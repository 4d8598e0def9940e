// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package soft

import (
	"fmt"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/gogpu/diabolic/gpucore"
)

// commandAllocator tracks the lists that still depend on its memory.
type commandAllocator struct {
	device *Device
	typ    gpucore.CommandListType

	mu        sync.Mutex
	open      *commandList // list currently recording into the allocator
	executing int          // submitted lists not yet retired by the timeline
	resets    uint64
}

var _ gpucore.CommandAllocator = (*commandAllocator)(nil)

func (a *commandAllocator) Type() gpucore.CommandListType { return a.typ }

// Reset fails with ErrAllocatorInUse while a list records into the
// allocator or the timeline has not retired every list recorded into it.
func (a *commandAllocator) Reset() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.open != nil {
		return errors.Wrap(gpucore.ErrAllocatorInUse, "a command list is still recording")
	}
	if a.executing > 0 {
		return errors.Wrapf(gpucore.ErrAllocatorInUse, "%d command lists still executing", a.executing)
	}
	a.resets++
	return nil
}

func (a *commandAllocator) retire() {
	a.mu.Lock()
	a.executing--
	a.mu.Unlock()
}

func (a *commandAllocator) Destroy() {}

// AllocatorExecuting returns how many submitted lists recorded into alloc
// the timeline has not retired yet.
func AllocatorExecuting(alloc gpucore.CommandAllocator) int {
	a, ok := alloc.(*commandAllocator)
	if !ok {
		return 0
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.executing
}

// listState is the recording state of a command list.
type listState int

const (
	// listRecording accepts commands. Set by Reset and creation.
	listRecording listState = iota
	// listClosed is ready for submission or Reset. Set by Close.
	listClosed
)

// opKind classifies recorded commands for queue-type checks.
type opKind int

const (
	opCopy opKind = iota
	opBarrier
	opGraphics
)

// op is one recorded command. It runs on the timeline.
type op struct {
	kind opKind
	name string
	run  func(*executor) error
}

// recording is the immutable snapshot of a list handed to the timeline.
type recording struct {
	label string
	ops   []op
	alloc *commandAllocator
}

type commandList struct {
	device *Device
	typ    gpucore.CommandListType

	state listState
	alloc *commandAllocator
	ops   []op
	err   error // first recording error, reported by Close
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

// Close ends recording. The list is closed even when a recording error is
// returned, so its allocator can be reset.
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

// submit snapshots the list for the timeline and marks its allocator busy.
func (l *commandList) submit() (*recording, error) {
	if l.state != listClosed {
		return nil, errors.Wrap(gpucore.ErrInvalidState, "execute of a list that is not closed")
	}
	if l.err != nil {
		return nil, errors.Wrap(l.err, "execute of a list with recording errors")
	}
	l.alloc.mu.Lock()
	l.alloc.executing++
	l.alloc.mu.Unlock()
	return &recording{
		label: fmt.Sprintf("%s list", l.typ),
		ops:   l.ops,
		alloc: l.alloc,
	}, nil
}

func (l *commandList) fail(err error) {
	if l.err == nil {
		l.err = err
	}
}

func (l *commandList) record(kind opKind, name string, run func(*executor) error) {
	if l.state != listRecording {
		l.fail(errors.Wrapf(gpucore.ErrInvalidState, "%s recorded into a closed list", name))
		return
	}
	if l.typ == gpucore.CommandListCopy && kind == opGraphics {
		l.fail(errors.Wrapf(gpucore.ErrTypeMismatch, "%s recorded into a copy list", name))
		return
	}
	l.ops = append(l.ops, op{kind: kind, name: name, run: run})
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
	l.record(opBarrier, "ResourceBarrier", func(e *executor) error {
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
	l.record(opGraphics, "SetDescriptorHeaps", func(e *executor) error {
		return e.setHeaps(hs)
	})
}

func (l *commandList) ClearRenderTargetView(rtv gpucore.CPUDescriptorHandle, color [4]float32) {
	v, err := l.device.viewAt(rtv, viewRTV)
	if err != nil {
		l.fail(err)
		return
	}
	l.record(opGraphics, "ClearRenderTargetView", func(e *executor) error {
		return e.clearRTV(v, color)
	})
}

func (l *commandList) ClearDepthStencilView(dsv gpucore.CPUDescriptorHandle, flags gpucore.ClearFlags, depth float32, stencil uint8) {
	v, err := l.device.viewAt(dsv, viewDSV)
	if err != nil {
		l.fail(err)
		return
	}
	l.record(opGraphics, "ClearDepthStencilView", func(e *executor) error {
		return e.clearDSV(v, flags, depth)
	})
}

func (l *commandList) SetRenderTargets(rtvs []gpucore.CPUDescriptorHandle, dsv *gpucore.CPUDescriptorHandle) {
	targets := make([]view, 0, len(rtvs))
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
		depth = &v
	}
	l.record(opGraphics, "SetRenderTargets", func(e *executor) error {
		e.targets, e.depth = targets, depth
		return nil
	})
}

func (l *commandList) SetViewports(viewports ...gpucore.Viewport) {
	vps := append([]gpucore.Viewport(nil), viewports...)
	l.record(opGraphics, "SetViewports", func(e *executor) error {
		e.viewports = vps
		return nil
	})
}

func (l *commandList) SetScissorRects(rects ...gpucore.Rect) {
	rs := append([]gpucore.Rect(nil), rects...)
	l.record(opGraphics, "SetScissorRects", func(e *executor) error {
		e.scissors = rs
		return nil
	})
}

func (l *commandList) SetPipelineState(p gpucore.PipelineState) {
	ps, ok := p.(*pipelineState)
	if !ok || ps.device != l.device {
		l.fail(errors.Wrap(gpucore.ErrTypeMismatch, "pipeline state from another device"))
		return
	}
	l.record(opGraphics, "SetPipelineState", func(e *executor) error {
		e.pipeline = ps
		return nil
	})
}

func (l *commandList) SetGraphicsRootConstants(data []uint32, destOffset uint32) {
	values := append([]uint32(nil), data...)
	l.record(opGraphics, "SetGraphicsRootConstants", func(e *executor) error {
		return e.setRootConstants(values, destOffset)
	})
}

func (l *commandList) SetGraphicsRootDescriptorTable(rootIndex uint32, base gpucore.GPUDescriptorHandle) {
	l.record(opGraphics, "SetGraphicsRootDescriptorTable", func(e *executor) error {
		return e.setRootTable(rootIndex, base)
	})
}

func (l *commandList) SetPrimitiveTopology(t gpucore.PrimitiveTopology) {
	l.record(opGraphics, "SetPrimitiveTopology", func(e *executor) error {
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
		bufs = append(bufs, vertexBuffer{res: r, offset: v.Offset, size: v.Size, stride: v.Stride})
	}
	l.record(opGraphics, "SetVertexBuffers", func(e *executor) error {
		for i, b := range bufs {
			e.setVertexBuffer(startSlot+uint32(i), b)
		}
		return nil
	})
}

func (l *commandList) SetIndexBuffer(v *gpucore.IndexBufferView) {
	if v == nil {
		l.record(opGraphics, "SetIndexBuffer", func(e *executor) error {
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
	ib := &indexBuffer{res: r, offset: v.Offset, size: v.Size, format: v.Format}
	l.record(opGraphics, "SetIndexBuffer", func(e *executor) error {
		e.indices = ib
		return nil
	})
}

func (l *commandList) DrawInstanced(vertexCount, instanceCount, startVertex, startInstance uint32) {
	l.record(opGraphics, "DrawInstanced", func(e *executor) error {
		return e.draw(vertexCount, instanceCount, startVertex, false, 0, 0)
	})
}

func (l *commandList) DrawIndexedInstanced(indexCount, instanceCount, startIndex uint32, baseVertex int32, startInstance uint32) {
	l.record(opGraphics, "DrawIndexedInstanced", func(e *executor) error {
		return e.draw(indexCount, instanceCount, startIndex, true, baseVertex, 0)
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
	l.record(opCopy, "CopyBufferRegion", func(e *executor) error {
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
