// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package soft

import (
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"

	"github.com/gogpu/diabolic"
	"github.com/gogpu/diabolic/gpucore"
)

// Descriptor strides. They differ per heap type so that handles from
// different heaps never line up.
const (
	strideCBVSRVUAV = 32
	strideSampler   = 16
	strideRTV       = 32
	strideDSV       = 8
)

// Address space bases. Every heap and resource gets a range aligned to
// addressAlignment so ranges never overlap.
const (
	cpuDescriptorBase = 0x0000_1000_0000
	gpuDescriptorBase = 0x4000_0000_0000
	gpuResourceBase   = 0x8000_0000_0000
	addressAlignment  = 0x1_0000
)

// Device is the reference gpucore.Device.
type Device struct {
	opts options
	info gpucore.AdapterInfo

	mu      sync.Mutex
	nextCPU uint64
	nextGPU uint64
	nextVA  uint64
	heaps   []*descriptorHeap
	fences  []*Fence
	queues  []*Queue

	lost      atomic.Pointer[error]
	destroyed bool

	stats Stats
}

// Stats counts work executed by the device.
type Stats struct {
	Batches   atomic.Uint64
	Barriers  atomic.Uint64
	Clears    atomic.Uint64
	Draws     atomic.Uint64
	Triangles atomic.Uint64
	Copies    atomic.Uint64
	Presents  atomic.Uint64
}

var _ gpucore.Device = (*Device)(nil)

// New creates a reference device.
func New(opts ...Option) (*Device, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	d := &Device{
		opts: o,
		info: gpucore.AdapterInfo{
			Name:         o.name,
			Backend:      BackendName,
			Type:         gpucore.AdapterSoftware,
			FeatureLevel: o.featureLevel,
			ShaderModel:  gpucore.ShaderModel6_6,
		},
		nextCPU: cpuDescriptorBase,
		nextGPU: gpuDescriptorBase,
		nextVA:  gpuResourceBase,
	}
	diabolic.Logger().Debug("soft: device created",
		"featureLevel", o.featureLevel.String(), "manual", o.manual)
	return d, nil
}

// Info returns the adapter description.
func (d *Device) Info() gpucore.AdapterInfo { return d.info }

// Stats returns the device counters.
func (d *Device) Stats() *Stats { return &d.stats }

// Err returns the reason the device was removed, or nil.
func (d *Device) Err() error {
	if p := d.lost.Load(); p != nil {
		return *p
	}
	return nil
}

// lose removes the device. The first cause wins. Fences jump to their
// maximum value and every blocked wait returns.
func (d *Device) lose(cause error) {
	err := gpucore.DeviceRemoved(cause)
	if !d.lost.CompareAndSwap(nil, &err) {
		return
	}
	diabolic.Logger().Warn("soft: device removed", "cause", cause)

	d.mu.Lock()
	fences := append([]*Fence(nil), d.fences...)
	d.mu.Unlock()
	for _, f := range fences {
		f.abort()
	}
}

func (d *Device) checkAlive() error {
	if err := d.Err(); err != nil {
		return err
	}
	return nil
}

// reserve returns the base of a new range of size bytes in the given
// address space counter.
func (d *Device) reserve(next *uint64, size uint64) uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	base := *next
	size = (size + addressAlignment - 1) &^ (addressAlignment - 1)
	if size == 0 {
		size = addressAlignment
	}
	*next += size
	return base
}

// DescriptorIncrementSize returns the stride of heap type t.
func (d *Device) DescriptorIncrementSize(t gpucore.DescriptorHeapType) uint32 {
	switch t {
	case gpucore.HeapTypeSampler:
		return strideSampler
	case gpucore.HeapTypeRTV:
		return strideRTV
	case gpucore.HeapTypeDSV:
		return strideDSV
	default:
		return strideCBVSRVUAV
	}
}

// CreateCommandQueue creates a queue and, unless manual execution is
// enabled, starts its timeline goroutine.
func (d *Device) CreateCommandQueue(t gpucore.CommandListType) (gpucore.Queue, error) {
	if err := d.checkAlive(); err != nil {
		return nil, err
	}
	q := newQueue(d, t)
	d.mu.Lock()
	d.queues = append(d.queues, q)
	d.mu.Unlock()
	return q, nil
}

// CreateFence creates a fence starting at initial.
func (d *Device) CreateFence(initial uint64) (gpucore.Fence, error) {
	if err := d.checkAlive(); err != nil {
		return nil, err
	}
	f := &Fence{device: d, value: initial}
	d.mu.Lock()
	d.fences = append(d.fences, f)
	d.mu.Unlock()
	return f, nil
}

// CreateCommandAllocator creates an allocator.
func (d *Device) CreateCommandAllocator(t gpucore.CommandListType) (gpucore.CommandAllocator, error) {
	if err := d.checkAlive(); err != nil {
		return nil, err
	}
	return &commandAllocator{device: d, typ: t}, nil
}

// CreateCommandList creates a list open for recording into alloc.
func (d *Device) CreateCommandList(t gpucore.CommandListType, alloc gpucore.CommandAllocator) (gpucore.CommandList, error) {
	if err := d.checkAlive(); err != nil {
		return nil, err
	}
	l := &commandList{device: d, typ: t, state: listClosed}
	if err := l.Reset(alloc); err != nil {
		return nil, err
	}
	return l, nil
}

// CreateCommittedResource creates a buffer or texture with its own memory.
func (d *Device) CreateCommittedResource(desc *gpucore.ResourceDesc, initial gpucore.ResourceState, clear *gpucore.ClearValue) (gpucore.Resource, error) {
	if err := d.checkAlive(); err != nil {
		return nil, err
	}
	if desc == nil {
		return nil, errors.Wrap(gpucore.ErrInvalidArgument, "nil resource description")
	}
	return newResource(d, *desc, initial, clear)
}

// Destroy stops the timeline goroutines. Pending work is dropped.
func (d *Device) Destroy() {
	d.mu.Lock()
	if d.destroyed {
		d.mu.Unlock()
		return
	}
	d.destroyed = true
	queues := append([]*Queue(nil), d.queues...)
	d.mu.Unlock()

	for _, q := range queues {
		q.stop()
	}
}

func (d *Device) unregisterFence(f *Fence) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, x := range d.fences {
		if x == f {
			d.fences = append(d.fences[:i], d.fences[i+1:]...)
			return
		}
	}
}

func (d *Device) unregisterQueue(q *Queue) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, x := range d.queues {
		if x == q {
			d.queues = append(d.queues[:i], d.queues[i+1:]...)
			return
		}
	}
}
