// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package descriptor allocates resource-view slots from fixed-capacity
// descriptor heaps.
//
// A [Heap] hands out slots with a bump cursor and never reuses them: the
// index returned for a view stays valid for the heap's lifetime and can be
// used for bindless lookups from shaders. Every slot is addressable by
// index, and index arithmetic is reversible:
//
//	h := heap.HandleAtIndex(i)
//	heap.IndexOf(h) == i
//
// A Heap is not safe for concurrent use. Allocation normally happens on the
// goroutine that loads assets; callers that allocate from several
// goroutines must serialize access.
package descriptor

import (
	"github.com/cockroachdb/errors"

	"github.com/gogpu/diabolic"
	"github.com/gogpu/diabolic/gpucore"
)

var (
	// ErrHeapExhausted is returned when an allocation does not fit in the
	// remaining capacity. The cursor is left unchanged.
	ErrHeapExhausted = gpucore.ErrHeapExhausted

	// ErrWrongHeapType is returned when a view is created in a heap of a
	// type that cannot hold it.
	ErrWrongHeapType = errors.New("descriptor: view type does not match heap type")

	// ErrZeroCapacity is returned when creating a heap without slots.
	ErrZeroCapacity = errors.New("descriptor: heap capacity must be positive")
)

// Handle addresses one descriptor slot in both address spaces. Handles
// are non-owning: they are valid while the heap that produced them lives.
type Handle struct {
	CPU    gpucore.CPUDescriptorHandle
	GPU    gpucore.GPUDescriptorHandle
	Stride uint32
}

// Offset returns the handle n slots away. The CPU and GPU parts move
// together.
func (h Handle) Offset(n int64) Handle {
	return Handle{
		CPU:    h.CPU.Offset(n, h.Stride),
		GPU:    h.GPU.Offset(n, h.Stride),
		Stride: h.Stride,
	}
}

// ShaderVisible reports whether the handle has a GPU part.
func (h Handle) ShaderVisible() bool {
	return h.GPU.Ptr != 0
}

// Heap is a fixed-capacity, append-only array of descriptors.
type Heap struct {
	device gpucore.Device
	native gpucore.DescriptorHeap

	label    string
	typ      gpucore.DescriptorHeapType
	capacity uint32
	stride   uint32

	start   Handle
	current Handle
	index   uint32
}

// Option configures a Heap.
type Option func(*options)

type options struct {
	label string
}

// WithLabel sets the debug label of the heap.
func WithLabel(label string) Option {
	return func(o *options) {
		o.label = label
	}
}

// New creates a heap of typ with room for capacity descriptors. Heaps of
// shader-visible types get GPU handles; RTV and DSV heaps are CPU-only.
func New(device gpucore.Device, typ gpucore.DescriptorHeapType, capacity uint32, opts ...Option) (*Heap, error) {
	if capacity == 0 {
		return nil, ErrZeroCapacity
	}
	o := options{label: typ.String() + " heap"}
	for _, opt := range opts {
		opt(&o)
	}

	native, err := device.CreateDescriptorHeap(&gpucore.DescriptorHeapDesc{
		Label:          o.label,
		Type:           typ,
		NumDescriptors: capacity,
		Flags:          gpucore.FlagsForHeapType(typ),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "create %s descriptor heap", typ)
	}

	h := &Heap{
		device:   device,
		native:   native,
		label:    o.label,
		typ:      typ,
		capacity: capacity,
		stride:   device.DescriptorIncrementSize(typ),
	}
	h.start = Handle{CPU: native.CPUStart(), Stride: h.stride}
	if typ.ShaderVisible() {
		h.start.GPU = native.GPUStart()
	}
	h.current = h.start

	diabolic.Logger().Debug("descriptor: heap created",
		"label", o.label, "type", typ.String(), "capacity", capacity, "stride", h.stride)
	return h, nil
}

// Native returns the backend heap, for binding with SetDescriptorHeaps.
func (h *Heap) Native() gpucore.DescriptorHeap { return h.native }

// Type returns the heap type.
func (h *Heap) Type() gpucore.DescriptorHeapType { return h.typ }

// Label returns the debug label.
func (h *Heap) Label() string { return h.label }

// Capacity returns the fixed number of slots.
func (h *Heap) Capacity() uint32 { return h.capacity }

// Stride returns the distance between two slots.
func (h *Heap) Stride() uint32 { return h.stride }

// Remaining returns the number of slots not yet allocated.
func (h *Heap) Remaining() uint32 { return h.capacity - h.index }

// HandleAtStart returns the handle of slot 0.
func (h *Heap) HandleAtStart() Handle { return h.start }

// HandleAtIndex returns the handle of slot i. It does not allocate and
// does not check i against the capacity.
func (h *Heap) HandleAtIndex(i uint32) Handle {
	return h.start.Offset(int64(i))
}

// CurrentHandle returns the handle the next allocation will use.
func (h *Heap) CurrentHandle() Handle { return h.current }

// CurrentIndex returns the index the next allocation will use, which is
// also the number of slots allocated so far.
func (h *Heap) CurrentIndex() uint32 { return h.index }

// Offset returns handle advanced by n slots.
func (h *Heap) Offset(handle Handle, n int64) Handle {
	return handle.Offset(n)
}

// IndexOf returns the slot index of handle, computed from its CPU part.
func (h *Heap) IndexOf(handle Handle) uint32 {
	return uint32((handle.CPU.Ptr - h.start.CPU.Ptr) / uint64(h.stride))
}

// IndexOfGPU returns the slot index of a GPU handle of this heap.
func (h *Heap) IndexOfGPU(g gpucore.GPUDescriptorHandle) uint32 {
	return uint32((g.Ptr - h.start.GPU.Ptr) / uint64(h.stride))
}

// Contains reports whether handle addresses a slot of this heap.
func (h *Heap) Contains(handle Handle) bool {
	if handle.Stride != h.stride || handle.CPU.Ptr < h.start.CPU.Ptr {
		return false
	}
	off := handle.CPU.Ptr - h.start.CPU.Ptr
	return off%uint64(h.stride) == 0 && off/uint64(h.stride) < uint64(h.capacity)
}

// Allocate reserves the slot at the cursor and advances the cursor by one.
func (h *Heap) Allocate() (Handle, uint32, error) {
	return h.AllocateRange(1)
}

// AllocateRange reserves n contiguous slots and returns the first one.
// When fewer than n slots remain it returns ErrHeapExhausted and leaves
// the cursor unchanged.
func (h *Heap) AllocateRange(n uint32) (Handle, uint32, error) {
	if n == 0 {
		return h.current, h.index, nil
	}
	if n > h.Remaining() {
		diabolic.Logger().Warn("descriptor: heap exhausted",
			"label", h.label, "capacity", h.capacity, "requested", n)
		return Handle{}, 0, errors.Wrapf(ErrHeapExhausted,
			"%s heap %q: %d of %d slots used, %d requested", h.typ, h.label, h.index, h.capacity, n)
	}
	handle, index := h.current, h.index
	h.current = h.current.Offset(int64(n))
	h.index += n
	return handle, index, nil
}

// Destroy releases the backend heap. Handles become invalid.
func (h *Heap) Destroy() {
	if h.native != nil {
		h.native.Destroy()
		h.native = nil
	}
}
