// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build !nogpu

package native

import (
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/diabolic/gpucore"
)

// resource wraps a HAL buffer or texture. state is the state as of the
// last encoded list; barriers are checked against it.
//
// Upload and readback buffers keep a shadow copy: Unmap writes an upload
// shadow to the HAL buffer, Map of a readback buffer refreshes it from the
// HAL buffer.
type resource struct {
	device *Device
	desc   gpucore.ResourceDesc
	va     uint64

	buf  hal.Buffer
	tex  hal.Texture
	view hal.TextureView

	owner *swapchain

	mu        sync.Mutex
	state     gpucore.ResourceState
	shadow    []byte
	mapped    bool
	destroyed bool
}

var _ gpucore.Resource = (*resource)(nil)

// CreateCommittedResource creates a buffer or texture with its own memory.
// The clear value is accepted for compatibility; textures are not filled.
func (d *Device) CreateCommittedResource(desc *gpucore.ResourceDesc, initial gpucore.ResourceState, clear *gpucore.ClearValue) (gpucore.Resource, error) {
	if err := d.Err(); err != nil {
		return nil, err
	}
	if desc == nil {
		return nil, errors.Wrap(gpucore.ErrInvalidArgument, "nil resource description")
	}
	if clear != nil && desc.Format.IsDepth() != clear.Format.IsDepth() {
		return nil, errors.Wrapf(gpucore.ErrInvalidArgument, "clear value format %s for %q", clear.Format, desc.Label)
	}
	return d.newResource(*desc, initial)
}

func (d *Device) newResource(desc gpucore.ResourceDesc, initial gpucore.ResourceState) (*resource, error) {
	if err := validateResourceDesc(&desc, initial); err != nil {
		return nil, err
	}
	r := &resource{device: d, desc: desc, state: initial}
	switch desc.Dimension {
	case gpucore.DimensionBuffer:
		size := alignUp(desc.Width, 4)
		b, err := d.hal.CreateBuffer(&hal.BufferDescriptor{
			Label: desc.Label,
			Size:  size,
			Usage: bufferUsage(desc.Heap),
		})
		if err != nil {
			return nil, errors.Wrapf(err, "create buffer %q", desc.Label)
		}
		r.buf = b
		r.va = d.reserve(&d.nextVA, size)
		if desc.Heap != gpucore.HeapDefault {
			r.shadow = make([]byte, desc.Width)
		}
	default:
		format, err := toTextureFormat(desc.Format)
		if err != nil {
			return nil, errors.Wrapf(err, "texture %q", desc.Label)
		}
		t, err := d.hal.CreateTexture(&hal.TextureDescriptor{
			Label:         desc.Label,
			Size:          hal.Extent3D{Width: uint32(desc.Width), Height: desc.Height, DepthOrArrayLayers: 1},
			MipLevelCount: uint32(max(desc.MipLevels, 1)),
			SampleCount:   1,
			Dimension:     gputypes.TextureDimension2D,
			Format:        format,
			Usage:         textureUsage(desc.Flags),
		})
		if err != nil {
			return nil, errors.Wrapf(err, "create texture %q", desc.Label)
		}
		v, err := d.hal.CreateTextureView(t, &hal.TextureViewDescriptor{Label: desc.Label})
		if err != nil {
			d.hal.DestroyTexture(t)
			return nil, errors.Wrapf(err, "create view of %q", desc.Label)
		}
		r.tex, r.view = t, v
	}
	return r, nil
}

func validateResourceDesc(desc *gpucore.ResourceDesc, initial gpucore.ResourceState) error {
	switch desc.Dimension {
	case gpucore.DimensionBuffer:
		if desc.Width == 0 {
			return errors.Wrapf(gpucore.ErrInvalidArgument, "buffer %q has zero size", desc.Label)
		}
	case gpucore.DimensionTexture2D:
		if desc.Width == 0 || desc.Height == 0 {
			return errors.Wrapf(gpucore.ErrInvalidArgument, "texture %q has zero extent", desc.Label)
		}
		if desc.Heap != gpucore.HeapDefault {
			return errors.Wrapf(gpucore.ErrInvalidArgument, "texture %q outside the default heap", desc.Label)
		}
		if desc.Flags&gpucore.ResourceFlagAllowDepthStencil != 0 && !desc.Format.IsDepth() {
			return errors.Wrapf(gpucore.ErrInvalidArgument, "depth texture %q with color format %s", desc.Label, desc.Format)
		}
	default:
		return errors.Wrapf(gpucore.ErrInvalidArgument, "resource %q has unknown dimension", desc.Label)
	}
	switch desc.Heap {
	case gpucore.HeapUpload:
		if initial != gpucore.StateGenericRead {
			return errors.Wrapf(gpucore.ErrInvalidArgument, "upload buffer %q must start in GenericRead", desc.Label)
		}
	case gpucore.HeapReadback:
		if initial != gpucore.StateCopyDest {
			return errors.Wrapf(gpucore.ErrInvalidArgument, "readback buffer %q must start in CopyDest", desc.Label)
		}
	}
	return nil
}

func alignUp(v, a uint64) uint64 { return (v + a - 1) &^ (a - 1) }

func (r *resource) Desc() gpucore.ResourceDesc { return r.desc }

// GPUVirtualAddress returns the buffer address, or 0 for textures.
func (r *resource) GPUVirtualAddress() uint64 { return r.va }

// Map returns the shadow copy. Readback buffers are refreshed from the
// HAL buffer first, so callers must have waited for the copy.
func (r *resource) Map() ([]byte, error) {
	if r.desc.Heap == gpucore.HeapDefault {
		return nil, errors.Wrapf(gpucore.ErrInvalidState, "map of default heap resource %q", r.desc.Label)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.destroyed {
		return nil, errors.Wrapf(gpucore.ErrClosed, "resource %q", r.desc.Label)
	}
	if r.desc.Heap == gpucore.HeapReadback {
		if err := r.device.queue.ReadBuffer(r.buf, 0, r.shadow); err != nil {
			return nil, errors.Wrapf(err, "read back %q", r.desc.Label)
		}
	}
	r.mapped = true
	return r.shadow, nil
}

// Unmap publishes upload writes to the HAL buffer.
func (r *resource) Unmap() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.mapped || r.destroyed {
		return
	}
	r.mapped = false
	if r.desc.Heap == gpucore.HeapUpload {
		r.device.queue.WriteBuffer(r.buf, 0, r.shadow)
	}
}

// Destroy releases the HAL objects. Swapchain buffers are released by
// the swapchain only.
func (r *resource) Destroy() {
	if r.owner != nil {
		return
	}
	r.release()
}

func (r *resource) release() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.destroyed {
		return
	}
	r.destroyed = true
	r.shadow = nil
	if r.view != nil {
		r.device.hal.DestroyTextureView(r.view)
	}
	if r.tex != nil {
		r.device.hal.DestroyTexture(r.tex)
	}
	if r.buf != nil {
		r.device.hal.DestroyBuffer(r.buf)
	}
}

func (r *resource) transition(before, after gpucore.ResourceState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.destroyed {
		return errors.Wrapf(gpucore.ErrClosed, "barrier on destroyed resource %q", r.desc.Label)
	}
	if r.state != before {
		return errors.Wrapf(gpucore.ErrInvalidState, "barrier on %q: before state %s, resource is in %s",
			r.desc.Label, before, r.state)
	}
	r.state = after
	return nil
}

// requireState checks that the resource may be accessed with want. Buffers
// in the common state are promoted implicitly.
func (r *resource) requireState(want gpucore.ResourceState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.destroyed {
		return errors.Wrapf(gpucore.ErrClosed, "access to destroyed resource %q", r.desc.Label)
	}
	if r.state&want == want && want != gpucore.StateCommon {
		return nil
	}
	if r.desc.Dimension == gpucore.DimensionBuffer && r.state == gpucore.StateCommon {
		return nil
	}
	return errors.Wrapf(gpucore.ErrInvalidState, "%q accessed as %s while in %s", r.desc.Label, want, r.state)
}

// ResourceState returns the state r had after the last encoded list.
func ResourceState(r gpucore.Resource) gpucore.ResourceState {
	nr, ok := r.(*resource)
	if !ok {
		return gpucore.StateCommon
	}
	nr.mu.Lock()
	defer nr.mu.Unlock()
	return nr.state
}
