// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package soft

import (
	"encoding/binary"
	"math"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/gogpu/diabolic/gpucore"
)

// resource is CPU memory standing in for a committed resource. state is
// the state the timeline observed last; barriers are validated against it.
type resource struct {
	device *Device
	desc   gpucore.ResourceDesc
	va     uint64

	// owner is set for swapchain buffers, which callers must not destroy.
	owner *swapchain

	mu        sync.Mutex
	state     gpucore.ResourceState
	data      []byte
	mapped    bool
	destroyed bool
}

var _ gpucore.Resource = (*resource)(nil)

func newResource(d *Device, desc gpucore.ResourceDesc, initial gpucore.ResourceState, clear *gpucore.ClearValue) (*resource, error) {
	if err := validateResourceDesc(&desc, initial); err != nil {
		return nil, err
	}
	size := desc.ByteSize()
	r := &resource{
		device: d,
		desc:   desc,
		state:  initial,
		data:   make([]byte, size),
	}
	if desc.Dimension == gpucore.DimensionBuffer {
		r.va = d.reserve(&d.nextVA, size)
	}
	if clear != nil {
		r.fill(clear)
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
		if desc.Format.Size() == 0 {
			return errors.Wrapf(gpucore.ErrInvalidArgument, "texture %q has no format", desc.Label)
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

// fill writes the optimized clear value into the whole resource.
func (r *resource) fill(c *gpucore.ClearValue) {
	if r.desc.Dimension != gpucore.DimensionTexture2D {
		return
	}
	if r.desc.Format.IsDepth() {
		r.fillDepth(c.Depth)
		return
	}
	r.fillColor(c.Color)
}

func (r *resource) fillColor(c [4]float32) {
	px := packColor(r.desc.Format, c)
	for i := 0; i+4 <= len(r.data); i += 4 {
		copy(r.data[i:i+4], px[:])
	}
}

func (r *resource) fillDepth(depth float32) {
	bits := math.Float32bits(depth)
	for i := 0; i+4 <= len(r.data); i += 4 {
		binary.LittleEndian.PutUint32(r.data[i:], bits)
	}
}

func (r *resource) Desc() gpucore.ResourceDesc { return r.desc }

// GPUVirtualAddress returns the buffer address, or 0 for textures.
func (r *resource) GPUVirtualAddress() uint64 { return r.va }

func (r *resource) Map() ([]byte, error) {
	if r.desc.Heap == gpucore.HeapDefault {
		return nil, errors.Wrapf(gpucore.ErrInvalidState, "map of default heap resource %q", r.desc.Label)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.destroyed {
		return nil, errors.Wrapf(gpucore.ErrClosed, "resource %q", r.desc.Label)
	}
	r.mapped = true
	return r.data, nil
}

func (r *resource) Unmap() {
	r.mu.Lock()
	r.mapped = false
	r.mu.Unlock()
}

// Destroy releases the memory. Swapchain buffers are released by the
// swapchain only.
func (r *resource) Destroy() {
	if r.owner != nil {
		return
	}
	r.release()
}

func (r *resource) release() {
	r.mu.Lock()
	r.destroyed = true
	r.data = nil
	r.mu.Unlock()
}

// transition moves the resource from before to after, failing if the
// resource is not in before.
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

func (r *resource) currentState() gpucore.ResourceState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// ResourceState returns the state the timeline last observed for r, for
// tests checking barrier bookkeeping.
func ResourceState(r gpucore.Resource) gpucore.ResourceState {
	if sr, ok := r.(*resource); ok {
		return sr.currentState()
	}
	return gpucore.StateCommon
}

// packColor converts a float color into the byte layout of format.
func packColor(format gpucore.Format, c [4]float32) [4]byte {
	b := [4]byte{unorm8(c[0]), unorm8(c[1]), unorm8(c[2]), unorm8(c[3])}
	if format == gpucore.FormatBGRA8Unorm {
		b[0], b[2] = b[2], b[0]
	}
	return b
}

func unorm8(v float32) byte {
	if v <= 0 {
		return 0
	}
	if v >= 1 {
		return 255
	}
	return byte(v*255 + 0.5)
}
