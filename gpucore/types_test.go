// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gpucore

import (
	"errors"
	"testing"
)

func TestDescriptorHeapTypeVisibility(t *testing.T) {
	tests := []struct {
		typ     DescriptorHeapType
		visible bool
		flags   DescriptorHeapFlags
	}{
		{HeapTypeCBVSRVUAV, true, HeapFlagShaderVisible},
		{HeapTypeSampler, true, HeapFlagShaderVisible},
		{HeapTypeRTV, false, HeapFlagNone},
		{HeapTypeDSV, false, HeapFlagNone},
	}
	for _, tt := range tests {
		t.Run(tt.typ.String(), func(t *testing.T) {
			if got := tt.typ.ShaderVisible(); got != tt.visible {
				t.Errorf("ShaderVisible() = %v, want %v", got, tt.visible)
			}
			if got := FlagsForHeapType(tt.typ); got != tt.flags {
				t.Errorf("FlagsForHeapType() = %v, want %v", got, tt.flags)
			}
		})
	}
}

func TestHandleOffset(t *testing.T) {
	cpu := CPUDescriptorHandle{Ptr: 0x1000}
	gpu := GPUDescriptorHandle{Ptr: 0x8000}

	if got := cpu.Offset(3, 32); got.Ptr != 0x1000+96 {
		t.Errorf("cpu.Offset(3) = %#x, want %#x", got.Ptr, 0x1000+96)
	}
	if got := cpu.Offset(3, 32).Offset(-3, 32); got != cpu {
		t.Errorf("negative offset did not return to start: %#x", got.Ptr)
	}
	if got := gpu.Offset(2, 16); got.Ptr != 0x8000+32 {
		t.Errorf("gpu.Offset(2) = %#x, want %#x", got.Ptr, 0x8000+32)
	}
	if got := (GPUDescriptorHandle{}).Offset(5, 32); got.Ptr != 0 {
		t.Errorf("null GPU handle moved to %#x", got.Ptr)
	}
}

func TestFormatSize(t *testing.T) {
	tests := []struct {
		f    Format
		size int
	}{
		{FormatUnknown, 0},
		{FormatR16Uint, 2},
		{FormatRGBA8Unorm, 4},
		{FormatD32Float, 4},
		{FormatRG32Float, 8},
		{FormatRGB32Float, 12},
		{FormatRGBA32Float, 16},
	}
	for _, tt := range tests {
		if got := tt.f.Size(); got != tt.size {
			t.Errorf("%v.Size() = %d, want %d", tt.f, got, tt.size)
		}
	}
	if !FormatD32Float.IsDepth() || FormatRGBA8Unorm.IsDepth() {
		t.Error("IsDepth misclassified formats")
	}
}

func TestResourceDescByteSize(t *testing.T) {
	buf := BufferDesc("vb", 1024, HeapUpload)
	if got := buf.ByteSize(); got != 1024 {
		t.Errorf("buffer ByteSize() = %d, want 1024", got)
	}
	tex := Texture2DDesc("rt", 64, 32, FormatRGBA8Unorm, ResourceFlagAllowRenderTarget)
	if got := tex.ByteSize(); got != 64*32*4 {
		t.Errorf("texture ByteSize() = %d, want %d", got, 64*32*4)
	}
}

func TestFeatureLevelString(t *testing.T) {
	if got := FeatureLevel12_1.String(); got != "12_1" {
		t.Errorf("FeatureLevel12_1 = %q, want 12_1", got)
	}
	if got := ShaderModel6_6.String(); got != "6_6" {
		t.Errorf("ShaderModel6_6 = %q, want 6_6", got)
	}
	if FeatureLevel11_0 >= FeatureLevel12_0 {
		t.Error("feature levels must order by version")
	}
}

func TestGraphicsPipelineDescValidate(t *testing.T) {
	vs := ShaderBytecode{Stage: StageVertex, EntryPoint: "vs_main", Source: "@vertex fn vs_main() {}"}
	tests := []struct {
		name    string
		desc    GraphicsPipelineDesc
		wantErr bool
	}{
		{"valid", GraphicsPipelineDesc{VS: vs, RTVFormats: []Format{FormatRGBA8Unorm}}, false},
		{"no vertex shader", GraphicsPipelineDesc{RTVFormats: []Format{FormatRGBA8Unorm}}, true},
		{"no targets", GraphicsPipelineDesc{VS: vs}, true},
		{"depth without format", GraphicsPipelineDesc{VS: vs, RTVFormats: []Format{FormatRGBA8Unorm}, DepthEnable: true}, true},
		{"depth", GraphicsPipelineDesc{VS: vs, RTVFormats: []Format{FormatRGBA8Unorm}, DSVFormat: FormatD32Float, DepthEnable: true}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.desc.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidArgument) {
				t.Errorf("Validate() error = %v, want ErrInvalidArgument", err)
			}
		})
	}
}
