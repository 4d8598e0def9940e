// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package soft

import (
	"github.com/cockroachdb/errors"

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
	stride uint32
}

type indexBuffer struct {
	res    *resource
	offset uint64
	size   uint32
	format gpucore.Format
}

// executor holds the pipeline state of one command list while it runs.
// Lists do not inherit state from each other.
type executor struct {
	device *Device

	heaps       []*descriptorHeap
	targets     []view
	depth       *view
	viewports   []gpucore.Viewport
	scissors    []gpucore.Rect
	pipeline    *pipelineState
	constants   []uint32
	tables      map[uint32]uint64
	topology    gpucore.PrimitiveTopology
	topologySet bool
	vertices    []vertexBuffer
	indices     *indexBuffer
}

// execute runs a recording on the calling goroutine. The first error
// aborts the recording.
func execute(d *Device, rec *recording) error {
	e := &executor{device: d}
	for i, o := range rec.ops {
		if err := o.run(e); err != nil {
			return errors.Wrapf(err, "%s command %d (%s)", rec.label, i, o.name)
		}
	}
	return nil
}

func (e *executor) barrier(bs []resourceBarrier) error {
	for _, b := range bs {
		if err := b.res.transition(b.before, b.after); err != nil {
			return err
		}
		e.device.stats.Barriers.Add(1)
	}
	return nil
}

func (e *executor) setHeaps(hs []*descriptorHeap) error {
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
	e.tables = nil
	return nil
}

func (e *executor) setRootConstants(values []uint32, destOffset uint32) error {
	if e.pipeline == nil {
		return errors.Wrap(gpucore.ErrInvalidState, "root constants set without a pipeline")
	}
	end := int(destOffset) + len(values)
	if end > int(e.pipeline.desc.RootConstants) {
		return errors.Wrapf(gpucore.ErrInvalidArgument, "root constants [%d,%d) exceed the %d declared by %q",
			destOffset, end, e.pipeline.desc.RootConstants, e.pipeline.desc.Label)
	}
	if len(e.constants) < end {
		e.constants = append(e.constants, make([]uint32, end-len(e.constants))...)
	}
	copy(e.constants[destOffset:], values)
	return nil
}

func (e *executor) setRootTable(rootIndex uint32, base gpucore.GPUDescriptorHandle) error {
	for _, h := range e.heaps {
		if h.containsGPU(base.Ptr) {
			if e.tables == nil {
				e.tables = make(map[uint32]uint64)
			}
			e.tables[rootIndex] = base.Ptr
			return nil
		}
	}
	return errors.Wrapf(gpucore.ErrInvalidArgument, "descriptor table %#x is in no bound heap", base.Ptr)
}

func (e *executor) setVertexBuffer(slot uint32, b vertexBuffer) {
	for int(slot) >= len(e.vertices) {
		e.vertices = append(e.vertices, vertexBuffer{})
	}
	e.vertices[slot] = b
}

func (e *executor) clearRTV(v view, color [4]float32) error {
	if err := v.res.requireState(gpucore.StateRenderTarget); err != nil {
		return err
	}
	v.res.mu.Lock()
	v.res.fillColor(color)
	v.res.mu.Unlock()
	e.device.stats.Clears.Add(1)
	return nil
}

func (e *executor) clearDSV(v view, flags gpucore.ClearFlags, depth float32) error {
	if err := v.res.requireState(gpucore.StateDepthWrite); err != nil {
		return err
	}
	if flags&gpucore.ClearDepth != 0 {
		v.res.mu.Lock()
		v.res.fillDepth(depth)
		v.res.mu.Unlock()
	}
	e.device.stats.Clears.Add(1)
	return nil
}

func (e *executor) copyBuffer(dst *resource, dstOffset uint64, src *resource, srcOffset, size uint64) error {
	if dst.desc.Dimension != gpucore.DimensionBuffer || src.desc.Dimension != gpucore.DimensionBuffer {
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
	src.mu.Lock()
	chunk := append([]byte(nil), src.data[srcOffset:srcOffset+size]...)
	src.mu.Unlock()
	dst.mu.Lock()
	copy(dst.data[dstOffset:], chunk)
	dst.mu.Unlock()
	e.device.stats.Copies.Add(1)
	return nil
}

// draw validates the bound state and rasterizes count vertices or indices
// starting at first.
func (e *executor) draw(count, instances, first uint32, indexed bool, baseVertex int32, _ uint32) error {
	if e.pipeline == nil {
		return errors.Wrap(gpucore.ErrInvalidState, "draw without a pipeline state")
	}
	if !e.topologySet {
		return errors.Wrap(gpucore.ErrInvalidState, "draw without a primitive topology")
	}
	if len(e.targets) == 0 && e.depth == nil {
		return errors.Wrap(gpucore.ErrInvalidState, "draw without render targets")
	}
	if len(e.viewports) == 0 {
		return errors.Wrap(gpucore.ErrInvalidState, "draw without a viewport")
	}
	if len(e.targets) != len(e.pipeline.desc.RTVFormats) {
		return errors.Wrapf(gpucore.ErrInvalidState, "%d render targets bound, pipeline %q declares %d",
			len(e.targets), e.pipeline.desc.Label, len(e.pipeline.desc.RTVFormats))
	}
	for _, t := range e.targets {
		if err := t.res.requireState(gpucore.StateRenderTarget); err != nil {
			return err
		}
	}
	if e.depth != nil && e.pipeline.desc.DepthEnable {
		if err := e.depth.res.requireState(gpucore.StateDepthWrite); err != nil {
			return err
		}
	}
	for _, vb := range e.vertices {
		if vb.res != nil {
			if err := vb.res.requireState(gpucore.StateVertexAndConstantBuffer); err != nil {
				return err
			}
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

	e.device.stats.Draws.Add(1)
	if instances == 0 || count == 0 {
		return nil
	}
	ids, err := e.vertexIDs(count, first, indexed, baseVertex)
	if err != nil {
		return err
	}
	tris := e.rasterize(ids)
	e.device.stats.Triangles.Add(uint64(tris) * uint64(instances))
	return nil
}

// vertexIDs expands a draw into the vertex indices it references.
func (e *executor) vertexIDs(count, first uint32, indexed bool, baseVertex int32) ([]uint32, error) {
	ids := make([]uint32, count)
	if !indexed {
		for i := range ids {
			ids[i] = first + uint32(i)
		}
		return ids, nil
	}
	ib := e.indices
	size := uint64(ib.format.Size())
	if size != 2 && size != 4 {
		return nil, errors.Wrapf(gpucore.ErrInvalidArgument, "index format %s", ib.format)
	}
	if (uint64(first)+uint64(count))*size > uint64(ib.size) {
		return nil, errors.Wrap(gpucore.ErrInvalidArgument, "indexed draw reads past the index buffer view")
	}
	ib.res.mu.Lock()
	defer ib.res.mu.Unlock()
	for i := range ids {
		at := ib.offset + (uint64(first)+uint64(i))*size
		var idx uint32
		if size == 2 {
			idx = uint32(ib.res.data[at]) | uint32(ib.res.data[at+1])<<8
		} else {
			idx = uint32(ib.res.data[at]) | uint32(ib.res.data[at+1])<<8 |
				uint32(ib.res.data[at+2])<<16 | uint32(ib.res.data[at+3])<<24
		}
		ids[i] = uint32(int64(idx) + int64(baseVertex))
	}
	return ids, nil
}
