// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package soft

import (
	"github.com/cockroachdb/errors"

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

// heapTypeFor returns the heap type views of kind k live in.
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

// view is the content of one descriptor slot.
type view struct {
	kind    viewKind
	res     *resource
	format  gpucore.Format
	offset  uint64
	size    uint64
	sampler gpucore.SamplerDesc
}

type descriptorHeap struct {
	device *Device
	desc   gpucore.DescriptorHeapDesc
	stride uint32
	cpu    uint64
	gpu    uint64
	slots  []view
}

var _ gpucore.DescriptorHeap = (*descriptorHeap)(nil)

// CreateDescriptorHeap reserves address ranges for a heap. Shader-visible
// heaps also get a GPU range.
func (d *Device) CreateDescriptorHeap(desc *gpucore.DescriptorHeapDesc) (gpucore.DescriptorHeap, error) {
	if err := d.checkAlive(); err != nil {
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
		slots:  make([]view, desc.NumDescriptors),
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

func (h *descriptorHeap) Destroy() {
	d := h.device
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, x := range d.heaps {
		if x == h {
			d.heaps = append(d.heaps[:i], d.heaps[i+1:]...)
			return
		}
	}
}

func (h *descriptorHeap) containsCPU(ptr uint64) bool {
	return ptr >= h.cpu && ptr < h.cpu+uint64(len(h.slots))*uint64(h.stride)
}

func (h *descriptorHeap) containsGPU(ptr uint64) bool {
	return h.gpu != 0 && ptr >= h.gpu && ptr < h.gpu+uint64(len(h.slots))*uint64(h.stride)
}

// slot resolves a CPU handle to its heap and slot index. Handles must sit
// exactly on a descriptor boundary.
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
func (d *Device) viewAt(handle gpucore.CPUDescriptorHandle, k viewKind) (view, error) {
	h, i, err := d.slot(handle)
	if err != nil {
		return view{}, err
	}
	v := h.slots[i]
	if v.kind != k {
		return view{}, errors.Wrapf(gpucore.ErrInvalidArgument, "descriptor %d of %q holds %s, want %s", i, h.desc.Label, v.kind, k)
	}
	return v, nil
}

// writeView stores v at handle after checking the heap type.
func (d *Device) writeView(handle gpucore.CPUDescriptorHandle, v view) error {
	h, i, err := d.slot(handle)
	if err != nil {
		return err
	}
	if want := heapTypeFor(v.kind); h.desc.Type != want {
		return errors.Wrapf(gpucore.ErrTypeMismatch, "%s written to %s heap", v.kind, h.desc.Type)
	}
	h.slots[i] = v
	return nil
}

// resourceOf unwraps r, which must be a live resource of this device.
func (d *Device) resourceOf(r gpucore.Resource) (*resource, error) {
	sr, ok := r.(*resource)
	if !ok || sr == nil {
		return nil, errors.Wrap(gpucore.ErrTypeMismatch, "resource from another backend")
	}
	if sr.device != d {
		return nil, errors.Wrapf(gpucore.ErrTypeMismatch, "resource %q from another device", sr.desc.Label)
	}
	sr.mu.Lock()
	destroyed := sr.destroyed
	sr.mu.Unlock()
	if destroyed {
		return nil, errors.Wrapf(gpucore.ErrClosed, "resource %q", sr.desc.Label)
	}
	return sr, nil
}

func viewFormat(want, fallback gpucore.Format) gpucore.Format {
	if want == gpucore.FormatUnknown {
		return fallback
	}
	return want
}

// CreateRenderTargetView writes a render target view of a texture.
func (d *Device) CreateRenderTargetView(r gpucore.Resource, desc *gpucore.RenderTargetViewDesc, dst gpucore.CPUDescriptorHandle) error {
	res, err := d.resourceOf(r)
	if err != nil {
		return err
	}
	if res.desc.Dimension != gpucore.DimensionTexture2D || res.desc.Flags&gpucore.ResourceFlagAllowRenderTarget == 0 {
		return errors.Wrapf(gpucore.ErrInvalidArgument, "%q does not allow render target views", res.desc.Label)
	}
	f := res.desc.Format
	if desc != nil {
		f = viewFormat(desc.Format, f)
	}
	if f != gpucore.FormatRGBA8Unorm && f != gpucore.FormatBGRA8Unorm {
		return errors.Wrapf(gpucore.ErrUnsupported, "render target format %s", f)
	}
	return d.writeView(dst, view{kind: viewRTV, res: res, format: f})
}

// CreateDepthStencilView writes a depth stencil view of a depth texture.
func (d *Device) CreateDepthStencilView(r gpucore.Resource, desc *gpucore.DepthStencilViewDesc, dst gpucore.CPUDescriptorHandle) error {
	res, err := d.resourceOf(r)
	if err != nil {
		return err
	}
	if res.desc.Flags&gpucore.ResourceFlagAllowDepthStencil == 0 {
		return errors.Wrapf(gpucore.ErrInvalidArgument, "%q does not allow depth stencil views", res.desc.Label)
	}
	f := res.desc.Format
	if desc != nil {
		f = viewFormat(desc.Format, f)
	}
	if !f.IsDepth() {
		return errors.Wrapf(gpucore.ErrInvalidArgument, "depth stencil view with format %s", f)
	}
	return d.writeView(dst, view{kind: viewDSV, res: res, format: f})
}

// CreateShaderResourceView writes a shader resource view. Buffer views
// cover the element range of desc.
func (d *Device) CreateShaderResourceView(r gpucore.Resource, desc *gpucore.ShaderResourceViewDesc, dst gpucore.CPUDescriptorHandle) error {
	res, err := d.resourceOf(r)
	if err != nil {
		return err
	}
	v := view{kind: viewSRV, res: res, format: res.desc.Format, size: res.desc.ByteSize()}
	if desc != nil {
		v.format = viewFormat(desc.Format, v.format)
		if res.desc.Dimension == gpucore.DimensionBuffer && desc.NumElements > 0 {
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
	if res.desc.Dimension == gpucore.DimensionTexture2D && res.desc.Flags&gpucore.ResourceFlagAllowUnorderedAccess == 0 {
		return errors.Wrapf(gpucore.ErrInvalidArgument, "%q does not allow unordered access", res.desc.Label)
	}
	v := view{kind: viewUAV, res: res, format: res.desc.Format, size: res.desc.ByteSize()}
	if desc != nil {
		v.format = viewFormat(desc.Format, v.format)
		if desc.NumElements > 0 {
			v.offset = desc.FirstElement * uint64(desc.StructureByteStride)
			v.size = uint64(desc.NumElements) * uint64(desc.StructureByteStride)
		}
	}
	return d.writeView(dst, v)
}

// CreateConstantBufferView writes a constant buffer view. Offset and size
// must be multiples of gpucore.ConstantBufferAlignment.
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
	return d.writeView(dst, view{kind: viewCBV, res: res, offset: desc.Offset, size: uint64(desc.Size)})
}

// CreateSampler writes a sampler.
func (d *Device) CreateSampler(desc *gpucore.SamplerDesc, dst gpucore.CPUDescriptorHandle) error {
	if desc == nil {
		return errors.Wrap(gpucore.ErrInvalidArgument, "nil sampler description")
	}
	return d.writeView(dst, view{kind: viewSampler, sampler: *desc})
}
