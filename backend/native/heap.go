// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build !nogpu

package native

import (
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/diabolic/gpucore"
)

type viewKind uint8

const (
	viewNone viewKind = iota
	viewRTV
	viewDSV
	viewSRV
	viewUAV
	viewCBV
	viewSampler
)

func (k viewKind) String() string {
	switch k {
	case viewRTV:
		return "RTV"
	case viewDSV:
		return "DSV"
	case viewSRV:
		return "SRV"
	case viewUAV:
		return "UAV"
	case viewCBV:
		return "CBV"
	case viewSampler:
		return "Sampler"
	default:
		return "empty"
	}
}

func heapTypeFor(k viewKind) gpucore.DescriptorHeapType {
	switch k {
	case viewRTV:
		return gpucore.HeapTypeRTV
	case viewDSV:
		return gpucore.HeapTypeDSV
	case viewSampler:
		return gpucore.HeapTypeSampler
	default:
		return gpucore.HeapTypeCBVSRVUAV
	}
}

// view is the content of one descriptor slot. Texture views share the
// default HAL view of their resource; samplers own a HAL sampler.
type view struct {
	kind    viewKind
	res     *resource
	format  gpucore.Format
	offset  uint64
	size    uint64
	sampler hal.Sampler
}

// descriptorHeap is a CPU table of views. HAL bind groups are not built
// from it; tables are validated when bound.
type descriptorHeap struct {
	device *Device
	desc   gpucore.DescriptorHeapDesc
	stride uint32
	cpu    uint64
	gpu    uint64

	mu    sync.Mutex
	slots []*view
}

var _ gpucore.DescriptorHeap = (*descriptorHeap)(nil)

// CreateDescriptorHeap reserves address ranges for a heap.
func (d *Device) CreateDescriptorHeap(desc *gpucore.DescriptorHeapDesc) (gpucore.DescriptorHeap, error) {
	if err := d.Err(); err != nil {
		return nil, err
	}
	if desc == nil || desc.NumDescriptors == 0 {
		return nil, errors.Wrap(gpucore.ErrInvalidArgument, "descriptor heap with no descriptors")
	}
	visible := desc.Flags&gpucore.HeapFlagShaderVisible != 0
	if visible && !desc.Type.ShaderVisible() {
		return nil, errors.Wrapf(gpucore.ErrInvalidArgument, "%s heaps cannot be shader visible", desc.Type)
	}
	stride := d.DescriptorIncrementSize(desc.Type)
	size := uint64(desc.NumDescriptors) * uint64(stride)
	h := &descriptorHeap{
		device: d,
		desc:   *desc,
		stride: stride,
		cpu:    d.reserve(&d.nextCPU, size),
		slots:  make([]*view, desc.NumDescriptors),
	}
	if visible {
		h.gpu = d.reserve(&d.nextGPU, size)
	}
	d.mu.Lock()
	d.heaps = append(d.heaps, h)
	d.mu.Unlock()
	return h, nil
}

func (h *descriptorHeap) Desc() gpucore.DescriptorHeapDesc { return h.desc }

func (h *descriptorHeap) CPUStart() gpucore.CPUDescriptorHandle {
	return gpucore.CPUDescriptorHandle{Ptr: h.cpu}
}

func (h *descriptorHeap) GPUStart() gpucore.GPUDescriptorHandle {
	return gpucore.GPUDescriptorHandle{Ptr: h.gpu}
}

// Destroy releases the samplers of the heap.
func (h *descriptorHeap) Destroy() {
	d := h.device
	d.mu.Lock()
	for i, x := range d.heaps {
		if x == h {
			d.heaps = append(d.heaps[:i], d.heaps[i+1:]...)
			break
		}
	}
	d.mu.Unlock()

	h.mu.Lock()
	defer h.mu.Unlock()
	for i, v := range h.slots {
		if v != nil && v.sampler != nil {
			d.hal.DestroySampler(v.sampler)
		}
		h.slots[i] = nil
	}
}

func (h *descriptorHeap) containsCPU(ptr uint64) bool {
	return ptr >= h.cpu && ptr < h.cpu+uint64(len(h.slots))*uint64(h.stride)
}

func (h *descriptorHeap) containsGPU(ptr uint64) bool {
	return h.gpu != 0 && ptr >= h.gpu && ptr < h.gpu+uint64(len(h.slots))*uint64(h.stride)
}

func (d *Device) slot(handle gpucore.CPUDescriptorHandle) (*descriptorHeap, int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, h := range d.heaps {
		if !h.containsCPU(handle.Ptr) {
			continue
		}
		off := handle.Ptr - h.cpu
		if off%uint64(h.stride) != 0 {
			return nil, 0, errors.Wrapf(gpucore.ErrInvalidArgument, "handle %#x is not aligned to the %s stride", handle.Ptr, h.desc.Type)
		}
		return h, int(off / uint64(h.stride)), nil
	}
	return nil, 0, errors.Wrapf(gpucore.ErrInvalidArgument, "handle %#x is in no descriptor heap", handle.Ptr)
}

// viewAt returns the view stored at handle, which must be of kind k.
func (d *Device) viewAt(handle gpucore.CPUDescriptorHandle, k viewKind) (*view, error) {
	h, i, err := d.slot(handle)
	if err != nil {
		return nil, err
	}
	h.mu.Lock()
	v := h.slots[i]
	h.mu.Unlock()
	if v == nil || v.kind != k {
		got := viewNone
		if v != nil {
			got = v.kind
		}
		return nil, errors.Wrapf(gpucore.ErrInvalidArgument, "descriptor %d of %q holds %s, want %s", i, h.desc.Label, got, k)
	}
	return v, nil
}

func (d *Device) writeView(handle gpucore.CPUDescriptorHandle, v *view) error {
	h, i, err := d.slot(handle)
	if err != nil {
		return err
	}
	if want := heapTypeFor(v.kind); h.desc.Type != want {
		return errors.Wrapf(gpucore.ErrTypeMismatch, "%s written to %s heap", v.kind, h.desc.Type)
	}
	h.mu.Lock()
	old := h.slots[i]
	h.slots[i] = v
	h.mu.Unlock()
	if old != nil && old.sampler != nil {
		d.hal.DestroySampler(old.sampler)
	}
	return nil
}

// resourceOf unwraps r, which must be a live resource of this device.
func (d *Device) resourceOf(r gpucore.Resource) (*resource, error) {
	nr, ok := r.(*resource)
	if !ok || nr == nil {
		return nil, errors.Wrap(gpucore.ErrTypeMismatch, "resource from another backend")
	}
	if nr.device != d {
		return nil, errors.Wrapf(gpucore.ErrTypeMismatch, "resource %q from another device", nr.desc.Label)
	}
	nr.mu.Lock()
	destroyed := nr.destroyed
	nr.mu.Unlock()
	if destroyed {
		return nil, errors.Wrapf(gpucore.ErrClosed, "resource %q", nr.desc.Label)
	}
	return nr, nil
}

func viewFormat(want, fallback gpucore.Format) gpucore.Format {
	if want == gpucore.FormatUnknown {
		return fallback
	}
	return want
}

// CreateRenderTargetView writes a render target view. The view format
// must match the texture format.
func (d *Device) CreateRenderTargetView(r gpucore.Resource, desc *gpucore.RenderTargetViewDesc, dst gpucore.CPUDescriptorHandle) error {
	res, err := d.resourceOf(r)
	if err != nil {
		return err
	}
	if res.tex == nil || res.desc.Flags&gpucore.ResourceFlagAllowRenderTarget == 0 {
		return errors.Wrapf(gpucore.ErrInvalidArgument, "%q does not allow render target views", res.desc.Label)
	}
	f := res.desc.Format
	if desc != nil {
		f = viewFormat(desc.Format, f)
	}
	if f != res.desc.Format {
		return errors.Wrapf(gpucore.ErrUnsupported, "render target view format %s of %s texture", f, res.desc.Format)
	}
	return d.writeView(dst, &view{kind: viewRTV, res: res, format: f})
}

// CreateDepthStencilView writes a depth stencil view.
func (d *Device) CreateDepthStencilView(r gpucore.Resource, desc *gpucore.DepthStencilViewDesc, dst gpucore.CPUDescriptorHandle) error {
	res, err := d.resourceOf(r)
	if err != nil {
		return err
	}
	if res.tex == nil || res.desc.Flags&gpucore.ResourceFlagAllowDepthStencil == 0 {
		return errors.Wrapf(gpucore.ErrInvalidArgument, "%q does not allow depth stencil views", res.desc.Label)
	}
	f := res.desc.Format
	if desc != nil {
		f = viewFormat(desc.Format, f)
	}
	if !f.IsDepth() {
		return errors.Wrapf(gpucore.ErrInvalidArgument, "depth stencil view with format %s", f)
	}
	return d.writeView(dst, &view{kind: viewDSV, res: res, format: f})
}

// CreateShaderResourceView writes a shader resource view.
func (d *Device) CreateShaderResourceView(r gpucore.Resource, desc *gpucore.ShaderResourceViewDesc, dst gpucore.CPUDescriptorHandle) error {
	res, err := d.resourceOf(r)
	if err != nil {
		return err
	}
	v := &view{kind: viewSRV, res: res, format: res.desc.Format, size: res.desc.ByteSize()}
	if desc != nil {
		v.format = viewFormat(desc.Format, v.format)
		if res.buf != nil && desc.NumElements > 0 {
			stride := uint64(desc.StructureByteStride)
			if stride == 0 {
				stride = uint64(v.format.Size())
			}
			v.offset = desc.FirstElement * stride
			v.size = uint64(desc.NumElements) * stride
			if v.offset+v.size > res.desc.Width {
				return errors.Wrapf(gpucore.ErrInvalidArgument, "view of %q exceeds the buffer", res.desc.Label)
			}
		}
	}
	return d.writeView(dst, v)
}

// CreateUnorderedAccessView writes an unordered access view.
func (d *Device) CreateUnorderedAccessView(r gpucore.Resource, desc *gpucore.UnorderedAccessViewDesc, dst gpucore.CPUDescriptorHandle) error {
	res, err := d.resourceOf(r)
	if err != nil {
		return err
	}
	if res.tex != nil && res.desc.Flags&gpucore.ResourceFlagAllowUnorderedAccess == 0 {
		return errors.Wrapf(gpucore.ErrInvalidArgument, "%q does not allow unordered access", res.desc.Label)
	}
	v := &view{kind: viewUAV, res: res, format: res.desc.Format, size: res.desc.ByteSize()}
	if desc != nil {
		v.format = viewFormat(desc.Format, v.format)
		if desc.NumElements > 0 {
			v.offset = desc.FirstElement * uint64(desc.StructureByteStride)
			v.size = uint64(desc.NumElements) * uint64(desc.StructureByteStride)
		}
	}
	return d.writeView(dst, v)
}

// CreateConstantBufferView writes a constant buffer view.
func (d *Device) CreateConstantBufferView(desc *gpucore.ConstantBufferViewDesc, dst gpucore.CPUDescriptorHandle) error {
	if desc == nil {
		return errors.Wrap(gpucore.ErrInvalidArgument, "nil constant buffer view description")
	}
	res, err := d.resourceOf(desc.Resource)
	if err != nil {
		return err
	}
	if desc.Size == 0 || desc.Size%gpucore.ConstantBufferAlignment != 0 || desc.Offset%gpucore.ConstantBufferAlignment != 0 {
		return errors.Wrapf(gpucore.ErrInvalidArgument, "constant buffer view of %q is not %d-byte aligned",
			res.desc.Label, gpucore.ConstantBufferAlignment)
	}
	if desc.Offset+uint64(desc.Size) > res.desc.Width {
		return errors.Wrapf(gpucore.ErrInvalidArgument, "constant buffer view exceeds %q", res.desc.Label)
	}
	return d.writeView(dst, &view{kind: viewCBV, res: res, offset: desc.Offset, size: uint64(desc.Size)})
}

// CreateSampler creates a HAL sampler and writes it to dst.
func (d *Device) CreateSampler(desc *gpucore.SamplerDesc, dst gpucore.CPUDescriptorHandle) error {
	if desc == nil {
		return errors.Wrap(gpucore.ErrInvalidArgument, "nil sampler description")
	}
	h, _, err := d.slot(dst)
	if err != nil {
		return err
	}
	if h.desc.Type != gpucore.HeapTypeSampler {
		return errors.Wrapf(gpucore.ErrTypeMismatch, "Sampler written to %s heap", h.desc.Type)
	}
	filter := filterMode(desc.Filter)
	s, err := d.hal.CreateSampler(&hal.SamplerDescriptor{
		Label:        "sampler",
		AddressModeU: addressMode(desc.AddressU),
		AddressModeV: addressMode(desc.AddressV),
		AddressModeW: addressMode(desc.AddressW),
		MagFilter:    filter,
		MinFilter:    filter,
		MipmapFilter: filter,
	})
	if err != nil {
		return errors.Wrap(err, "create sampler")
	}
	return d.writeView(dst, &view{kind: viewSampler, sampler: s})
}
