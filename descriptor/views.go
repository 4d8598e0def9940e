// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package descriptor

import (
	"github.com/cockroachdb/errors"

	"github.com/gogpu/diabolic/gpucore"
)

// The view helpers follow one protocol: read the cursor, create the view
// in the slot under it, then advance the cursor by one. A failed view
// creation leaves the cursor where it was. Each helper returns the stable
// index of the new slot.

// CreateRTV creates a render target view of r.
func (h *Heap) CreateRTV(r gpucore.Resource, desc *gpucore.RenderTargetViewDesc) (uint32, error) {
	return h.createView(gpucore.HeapTypeRTV, "RTV", func(dst gpucore.CPUDescriptorHandle) error {
		return h.device.CreateRenderTargetView(r, desc, dst)
	})
}

// CreateDSV creates a depth stencil view of r.
func (h *Heap) CreateDSV(r gpucore.Resource, desc *gpucore.DepthStencilViewDesc) (uint32, error) {
	return h.createView(gpucore.HeapTypeDSV, "DSV", func(dst gpucore.CPUDescriptorHandle) error {
		return h.device.CreateDepthStencilView(r, desc, dst)
	})
}

// CreateSRV creates a shader resource view of r.
func (h *Heap) CreateSRV(r gpucore.Resource, desc *gpucore.ShaderResourceViewDesc) (uint32, error) {
	return h.createView(gpucore.HeapTypeCBVSRVUAV, "SRV", func(dst gpucore.CPUDescriptorHandle) error {
		return h.device.CreateShaderResourceView(r, desc, dst)
	})
}

// CreateUAV creates an unordered access view of r.
func (h *Heap) CreateUAV(r gpucore.Resource, desc *gpucore.UnorderedAccessViewDesc) (uint32, error) {
	return h.createView(gpucore.HeapTypeCBVSRVUAV, "UAV", func(dst gpucore.CPUDescriptorHandle) error {
		return h.device.CreateUnorderedAccessView(r, desc, dst)
	})
}

// CreateCBV creates a constant buffer view.
func (h *Heap) CreateCBV(desc *gpucore.ConstantBufferViewDesc) (uint32, error) {
	return h.createView(gpucore.HeapTypeCBVSRVUAV, "CBV", func(dst gpucore.CPUDescriptorHandle) error {
		return h.device.CreateConstantBufferView(desc, dst)
	})
}

// CreateSampler creates a sampler.
func (h *Heap) CreateSampler(desc *gpucore.SamplerDesc) (uint32, error) {
	return h.createView(gpucore.HeapTypeSampler, "sampler", func(dst gpucore.CPUDescriptorHandle) error {
		return h.device.CreateSampler(desc, dst)
	})
}

func (h *Heap) createView(want gpucore.DescriptorHeapType, kind string, create func(gpucore.CPUDescriptorHandle) error) (uint32, error) {
	if h.typ != want {
		return 0, errors.Wrapf(ErrWrongHeapType, "%s in %s heap %q", kind, h.typ, h.label)
	}
	if h.Remaining() == 0 {
		return 0, errors.Wrapf(ErrHeapExhausted, "%s in %s heap %q (capacity %d)", kind, h.typ, h.label, h.capacity)
	}
	index := h.CurrentIndex()
	if err := create(h.CurrentHandle().CPU); err != nil {
		return 0, errors.Wrapf(err, "create %s at index %d", kind, index)
	}
	if _, _, err := h.Allocate(); err != nil {
		return 0, err
	}
	return index, nil
}
