// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build !nogpu

package native

import (
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/diabolic"
	"github.com/gogpu/diabolic/gpucore"
)

// Descriptor strides.
const (
	strideCBVSRVUAV = 64
	strideSampler   = 32
	strideRTV       = 64
	strideDSV       = 16
)

// Address space bases. Ranges are aligned to addressAlignment.
const (
	cpuDescriptorBase = 0x0000_2000_0000
	gpuDescriptorBase = 0x5000_0000_0000
	gpuResourceBase   = 0x9000_0000_0000
	addressAlignment  = 0x1_0000
)

// forever stands in for an infinite HAL wait.
const forever = time.Duration(math.MaxInt64)

// Device is a gpucore.Device backed by a HAL device.
type Device struct {
	hal      hal.Device
	queue    hal.Queue
	info     gpucore.AdapterInfo
	external bool
	surface  gputypes.TextureFormat

	// submitMu orders HAL submissions so serials match queue order.
	submitMu    sync.Mutex
	submitFence hal.Fence
	submitted   uint64
	retiredTo   atomic.Uint64

	mu      sync.Mutex
	nextCPU uint64
	nextGPU uint64
	nextVA  uint64
	heaps   []*descriptorHeap
	fences  []*Fence

	lost      atomic.Pointer[error]
	destroyed bool

	stats Stats
}

// Stats counts work encoded by the device.
type Stats struct {
	Submissions atomic.Uint64
	Passes      atomic.Uint64
	Barriers    atomic.Uint64
	Draws       atomic.Uint64
	Copies      atomic.Uint64
	Presents    atomic.Uint64
}

var _ gpucore.Device = (*Device)(nil)

func newDevice(dev hal.Device, q hal.Queue, info gpucore.AdapterInfo, external bool) (*Device, error) {
	fence, err := dev.CreateFence()
	if err != nil {
		return nil, errors.Wrap(err, "create submission fence")
	}
	return &Device{
		hal:         dev,
		queue:       q,
		info:        info,
		external:    external,
		submitFence: fence,
		nextCPU:     cpuDescriptorBase,
		nextGPU:     gpuDescriptorBase,
		nextVA:      gpuResourceBase,
	}, nil
}

// NewFromProvider wraps the HAL device of a host application. The
// provider must expose HalDevice() and HalQueue() returning the HAL
// objects. The device is not destroyed by Destroy.
func NewFromProvider(p gpucontext.DeviceProvider) (*Device, error) {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := p.(halProvider)
	if !ok {
		return nil, ErrProvider
	}
	dev, ok := hp.HalDevice().(hal.Device)
	if !ok || dev == nil {
		return nil, errors.Wrap(ErrProvider, "HalDevice is not a hal.Device")
	}
	q, ok := hp.HalQueue().(hal.Queue)
	if !ok || q == nil {
		return nil, errors.Wrap(ErrProvider, "HalQueue is not a hal.Queue")
	}
	d, err := newDevice(dev, q, gpucore.AdapterInfo{
		Name:         "host device",
		Backend:      BackendName,
		Type:         gpucore.AdapterOther,
		FeatureLevel: gpucore.FeatureLevel12_0,
		ShaderModel:  gpucore.ShaderModel6_6,
	}, true)
	if err != nil {
		return nil, err
	}
	d.surface = p.SurfaceFormat()
	diabolic.Logger().Debug("native: using host device", "surfaceFormat", d.surface)
	return d, nil
}

// Info returns the adapter description.
func (d *Device) Info() gpucore.AdapterInfo { return d.info }

// Stats returns the device counters.
func (d *Device) Stats() *Stats { return &d.stats }

// SurfaceFormat returns the preferred swapchain format of the host, or
// FormatUnknown when the device was not provided by a host.
func (d *Device) SurfaceFormat() gpucore.Format {
	return fromTextureFormat(d.surface)
}

// Err returns the reason the device was removed, or nil.
func (d *Device) Err() error {
	if p := d.lost.Load(); p != nil {
		return *p
	}
	return nil
}

// lose removes the device. The first cause wins.
func (d *Device) lose(cause error) error {
	err := gpucore.DeviceRemoved(cause)
	if d.lost.CompareAndSwap(nil, &err) {
		diabolic.Logger().Warn("native: device removed", "cause", cause)
	}
	return d.Err()
}

// submit hands command buffers to the HAL queue and returns the serial
// that retires them.
func (d *Device) submit(cbs []hal.CommandBuffer) (uint64, error) {
	if err := d.Err(); err != nil {
		return 0, err
	}
	d.submitMu.Lock()
	defer d.submitMu.Unlock()
	serial := d.submitted + 1
	if err := d.queue.Submit(cbs, d.submitFence, serial); err != nil {
		return 0, d.lose(errors.Wrap(err, "submit"))
	}
	d.submitted = serial
	d.stats.Submissions.Add(1)
	return serial, nil
}

// signal submits a fence signal ordered after all previous submissions.
func (d *Device) signal(f hal.Fence, value uint64) error {
	if err := d.Err(); err != nil {
		return err
	}
	d.submitMu.Lock()
	defer d.submitMu.Unlock()
	if err := d.queue.Submit(nil, f, value); err != nil {
		return d.lose(errors.Wrap(err, "signal"))
	}
	return nil
}

// retired reports whether the submission with the given serial finished.
func (d *Device) retired(serial uint64) bool {
	if serial == 0 || serial <= d.retiredTo.Load() || d.Err() != nil {
		return true
	}
	ok, err := d.hal.Wait(d.submitFence, serial, 0)
	if err != nil || !ok {
		return false
	}
	for {
		cur := d.retiredTo.Load()
		if cur >= serial || d.retiredTo.CompareAndSwap(cur, serial) {
			return true
		}
	}
}

// idle waits until every submission retired.
func (d *Device) idle(timeout time.Duration) error {
	d.submitMu.Lock()
	serial := d.submitted
	d.submitMu.Unlock()
	if d.retired(serial) {
		return nil
	}
	ok, err := d.hal.Wait(d.submitFence, serial, timeout)
	if err != nil {
		return d.lose(errors.Wrap(err, "wait for idle"))
	}
	if !ok {
		return errors.Wrap(gpucore.ErrWaitTimeout, "device idle")
	}
	d.retired(serial)
	return nil
}

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

// CreateCommandQueue returns a queue on the HAL queue. All queues of a
// device share it.
func (d *Device) CreateCommandQueue(t gpucore.CommandListType) (gpucore.Queue, error) {
	if err := d.Err(); err != nil {
		return nil, err
	}
	return &Queue{device: d, typ: t}, nil
}

// CreateFence creates a fence starting at initial.
func (d *Device) CreateFence(initial uint64) (gpucore.Fence, error) {
	if err := d.Err(); err != nil {
		return nil, err
	}
	hf, err := d.hal.CreateFence()
	if err != nil {
		return nil, errors.Wrap(err, "create fence")
	}
	f := &Fence{device: d, hal: hf}
	if initial > 0 {
		if err := d.signal(hf, initial); err != nil {
			d.hal.DestroyFence(hf)
			return nil, err
		}
		f.pending = append(f.pending, initial)
	}
	d.mu.Lock()
	d.fences = append(d.fences, f)
	d.mu.Unlock()
	return f, nil
}

// CreateCommandAllocator creates an allocator.
func (d *Device) CreateCommandAllocator(t gpucore.CommandListType) (gpucore.CommandAllocator, error) {
	if err := d.Err(); err != nil {
		return nil, err
	}
	return &commandAllocator{device: d, typ: t}, nil
}

// CreateCommandList creates a list open for recording into alloc.
func (d *Device) CreateCommandList(t gpucore.CommandListType, alloc gpucore.CommandAllocator) (gpucore.CommandList, error) {
	if err := d.Err(); err != nil {
		return nil, err
	}
	l := &commandList{device: d, typ: t, state: listClosed}
	if err := l.Reset(alloc); err != nil {
		return nil, err
	}
	return l, nil
}

// Destroy waits for the GPU and releases the device. A host-provided HAL
// device stays alive.
func (d *Device) Destroy() {
	d.mu.Lock()
	if d.destroyed {
		d.mu.Unlock()
		return
	}
	d.destroyed = true
	fences := d.fences
	d.fences = nil
	d.mu.Unlock()

	if err := d.idle(5 * time.Second); err != nil {
		diabolic.Logger().Warn("native: destroying a busy device", "err", err)
	}
	for _, f := range fences {
		f.Destroy()
	}
	d.hal.DestroyFence(d.submitFence)
	if !d.external {
		d.hal.Destroy()
	}
}
