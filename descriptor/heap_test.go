// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package descriptor

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/gogpu/diabolic/backend/soft"
	"github.com/gogpu/diabolic/gpucore"
)

func newDevice(t *testing.T) *soft.Device {
	t.Helper()
	d, err := soft.New(soft.WithManualExecution())
	if err != nil {
		t.Fatalf("soft.New: %v", err)
	}
	t.Cleanup(d.Destroy)
	return d
}

func newHeap(t *testing.T, d gpucore.Device, typ gpucore.DescriptorHeapType, capacity uint32) *Heap {
	t.Helper()
	h, err := New(d, typ, capacity, WithLabel("test"))
	if err != nil {
		t.Fatalf("New(%s, %d): %v", typ, capacity, err)
	}
	t.Cleanup(h.Destroy)
	return h
}

func TestHeapShaderVisibility(t *testing.T) {
	d := newDevice(t)
	tests := []struct {
		typ     gpucore.DescriptorHeapType
		visible bool
	}{
		{gpucore.HeapTypeCBVSRVUAV, true},
		{gpucore.HeapTypeSampler, true},
		{gpucore.HeapTypeRTV, false},
		{gpucore.HeapTypeDSV, false},
	}
	for _, tt := range tests {
		t.Run(tt.typ.String(), func(t *testing.T) {
			h := newHeap(t, d, tt.typ, 4)
			start := h.HandleAtStart()
			if got := start.ShaderVisible(); got != tt.visible {
				t.Errorf("ShaderVisible() = %v, want %v", got, tt.visible)
			}
			if !tt.visible && h.HandleAtIndex(3).GPU.Ptr != 0 {
				t.Error("CPU-only heap produced a GPU handle")
			}
			if h.Stride() != d.DescriptorIncrementSize(tt.typ) {
				t.Errorf("Stride() = %d, want device increment %d", h.Stride(), d.DescriptorIncrementSize(tt.typ))
			}
		})
	}
}

func TestHandleIndexRoundTrip(t *testing.T) {
	d := newDevice(t)
	const capacity = 256
	for _, typ := range []gpucore.DescriptorHeapType{
		gpucore.HeapTypeCBVSRVUAV, gpucore.HeapTypeSampler, gpucore.HeapTypeRTV, gpucore.HeapTypeDSV,
	} {
		t.Run(typ.String(), func(t *testing.T) {
			h := newHeap(t, d, typ, capacity)
			for i := uint32(0); i < capacity; i++ {
				handle := h.HandleAtIndex(i)
				if got := h.IndexOf(handle); got != i {
					t.Fatalf("IndexOf(HandleAtIndex(%d)) = %d", i, got)
				}
				if handle.ShaderVisible() {
					if got := h.IndexOfGPU(handle.GPU); got != i {
						t.Fatalf("IndexOfGPU(HandleAtIndex(%d)) = %d", i, got)
					}
				}
				if !h.Contains(handle) {
					t.Fatalf("Contains(HandleAtIndex(%d)) = false", i)
				}
			}
			if h.Contains(h.HandleAtIndex(capacity)) {
				t.Error("Contains reports a handle past the end")
			}
		})
	}
}

func TestHandleOffsetLinear(t *testing.T) {
	d := newDevice(t)
	h := newHeap(t, d, gpucore.HeapTypeCBVSRVUAV, 16)

	base := h.HandleAtIndex(5)
	for _, n := range []int64{-5, -1, 0, 1, 10} {
		got := h.Offset(base, n)
		want := h.HandleAtIndex(uint32(5 + n))
		if got != want {
			t.Errorf("Offset(5, %d) = %+v, want %+v", n, got, want)
		}
		if got.CPU.Ptr-base.CPU.Ptr != uint64(n*int64(h.Stride())) {
			t.Errorf("CPU delta for n=%d not n*stride", n)
		}
		if got.GPU.Ptr-base.GPU.Ptr != uint64(n*int64(h.Stride())) {
			t.Errorf("GPU delta for n=%d not n*stride", n)
		}
	}
}

func TestAllocateAdvancesCursor(t *testing.T) {
	d := newDevice(t)
	h := newHeap(t, d, gpucore.HeapTypeSampler, 8)

	first, idx, err := h.Allocate()
	if err != nil || idx != 0 || first != h.HandleAtStart() {
		t.Fatalf("Allocate() = %+v, %d, %v", first, idx, err)
	}
	rangeStart, idx, err := h.AllocateRange(3)
	if err != nil || idx != 1 {
		t.Fatalf("AllocateRange(3) index = %d, %v", idx, err)
	}
	if rangeStart != h.HandleAtIndex(1) {
		t.Errorf("AllocateRange(3) handle = %+v", rangeStart)
	}
	if got := h.CurrentIndex(); got != 4 {
		t.Errorf("CurrentIndex() = %d, want 4", got)
	}
	if got := h.CurrentHandle(); got != h.HandleAtIndex(4) {
		t.Errorf("CurrentHandle() = %+v", got)
	}
	if got := h.Remaining(); got != 4 {
		t.Errorf("Remaining() = %d, want 4", got)
	}
}

func TestAllocateExhausted(t *testing.T) {
	d := newDevice(t)
	h := newHeap(t, d, gpucore.HeapTypeRTV, 2)

	if _, _, err := h.AllocateRange(2); err != nil {
		t.Fatal(err)
	}
	before := h.CurrentHandle()
	_, _, err := h.Allocate()
	if !errors.Is(err, ErrHeapExhausted) || !errors.Is(err, gpucore.ErrHeapExhausted) {
		t.Fatalf("Allocate on full heap = %v, want ErrHeapExhausted", err)
	}
	if h.CurrentHandle() != before || h.CurrentIndex() != 2 {
		t.Error("failed allocation moved the cursor")
	}
}

func TestAllocateRangeTooLarge(t *testing.T) {
	d := newDevice(t)
	h := newHeap(t, d, gpucore.HeapTypeCBVSRVUAV, 4)

	if _, _, err := h.AllocateRange(5); !errors.Is(err, ErrHeapExhausted) {
		t.Errorf("AllocateRange(5) = %v, want ErrHeapExhausted", err)
	}
	if h.CurrentIndex() != 0 {
		t.Errorf("CurrentIndex() = %d after failed range", h.CurrentIndex())
	}
}

func TestNewZeroCapacity(t *testing.T) {
	d := newDevice(t)
	if _, err := New(d, gpucore.HeapTypeRTV, 0); !errors.Is(err, ErrZeroCapacity) {
		t.Errorf("New with capacity 0 = %v, want ErrZeroCapacity", err)
	}
}

func TestCreateViews(t *testing.T) {
	d := newDevice(t)
	srv := newHeap(t, d, gpucore.HeapTypeCBVSRVUAV, 2)
	rtv := newHeap(t, d, gpucore.HeapTypeRTV, 1)

	texDesc := gpucore.Texture2DDesc("tex", 4, 4, gpucore.FormatRGBA8Unorm, gpucore.ResourceFlagAllowRenderTarget)
	tex, err := d.CreateCommittedResource(&texDesc, gpucore.StateCommon, nil)
	if err != nil {
		t.Fatal(err)
	}

	idx, err := srv.CreateSRV(tex, nil)
	if err != nil || idx != 0 {
		t.Fatalf("CreateSRV = %d, %v", idx, err)
	}
	idx, err = srv.CreateSRV(tex, nil)
	if err != nil || idx != 1 {
		t.Fatalf("second CreateSRV = %d, %v", idx, err)
	}
	if _, err := srv.CreateSRV(tex, nil); !errors.Is(err, ErrHeapExhausted) {
		t.Errorf("CreateSRV on full heap = %v, want ErrHeapExhausted", err)
	}

	if _, err := rtv.CreateSRV(tex, nil); !errors.Is(err, ErrWrongHeapType) {
		t.Errorf("CreateSRV in RTV heap = %v, want ErrWrongHeapType", err)
	}
	if idx, err := rtv.CreateRTV(tex, nil); err != nil || idx != 0 {
		t.Errorf("CreateRTV = %d, %v", idx, err)
	}
}

func TestCreateViewFailureKeepsCursor(t *testing.T) {
	d := newDevice(t)
	h := newHeap(t, d, gpucore.HeapTypeCBVSRVUAV, 4)

	bufDesc := gpucore.BufferDesc("cb", 100, gpucore.HeapUpload)
	buf, _ := d.CreateCommittedResource(&bufDesc, gpucore.StateGenericRead, nil)

	// 100 is not a multiple of the constant buffer alignment.
	if _, err := h.CreateCBV(&gpucore.ConstantBufferViewDesc{Resource: buf, Size: 100}); err == nil {
		t.Fatal("CreateCBV with unaligned size succeeded")
	}
	if h.CurrentIndex() != 0 {
		t.Errorf("CurrentIndex() = %d after failed view", h.CurrentIndex())
	}
}

func TestStatsJSON(t *testing.T) {
	d := newDevice(t)
	h := newHeap(t, d, gpucore.HeapTypeCBVSRVUAV, 8)
	_, _, _ = h.AllocateRange(3)

	var out []map[string]any
	if err := json.Unmarshal(StatsJSON(h, nil), &out); err != nil {
		t.Fatalf("StatsJSON is not valid JSON: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("got %d entries, want 1", len(out))
	}
	if out[0]["Allocated"] != float64(3) || out[0]["Capacity"] != float64(8) {
		t.Errorf("stats = %v", out[0])
	}
	if out[0]["ShaderVisible"] != true {
		t.Errorf("ShaderVisible = %v", out[0]["ShaderVisible"])
	}
}
