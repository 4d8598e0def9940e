// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gpucore

import "fmt"

// CommandListType identifies the hardware queue family a command list,
// allocator or queue belongs to. Objects of different types never mix.
type CommandListType uint8

// Command list types.
const (
	// CommandListDirect records graphics, compute and copy commands.
	CommandListDirect CommandListType = iota

	// CommandListCompute records compute and copy commands.
	CommandListCompute

	// CommandListCopy records copy commands only.
	CommandListCopy
)

// String returns the string representation of CommandListType.
func (t CommandListType) String() string {
	switch t {
	case CommandListDirect:
		return "Direct"
	case CommandListCompute:
		return "Compute"
	case CommandListCopy:
		return "Copy"
	default:
		return fmt.Sprintf("Unknown(%d)", int(t))
	}
}

// DescriptorHeapType identifies what kind of views a descriptor heap stores.
type DescriptorHeapType uint8

// Descriptor heap types.
const (
	// HeapTypeCBVSRVUAV stores constant buffer, shader resource and
	// unordered access views. This is the bindless heap.
	HeapTypeCBVSRVUAV DescriptorHeapType = iota

	// HeapTypeSampler stores sampler descriptors.
	HeapTypeSampler

	// HeapTypeRTV stores render target views.
	HeapTypeRTV

	// HeapTypeDSV stores depth stencil views.
	HeapTypeDSV
)

// String returns the string representation of DescriptorHeapType.
func (t DescriptorHeapType) String() string {
	switch t {
	case HeapTypeCBVSRVUAV:
		return "CBV_SRV_UAV"
	case HeapTypeSampler:
		return "Sampler"
	case HeapTypeRTV:
		return "RTV"
	case HeapTypeDSV:
		return "DSV"
	default:
		return fmt.Sprintf("Unknown(%d)", int(t))
	}
}

// ShaderVisible reports whether heaps of this type are bound to command
// lists and indexed from shaders. RTV and DSV heaps are CPU-only.
func (t DescriptorHeapType) ShaderVisible() bool {
	return t == HeapTypeCBVSRVUAV || t == HeapTypeSampler
}

// DescriptorHeapFlags control heap creation.
type DescriptorHeapFlags uint8

// Descriptor heap flags.
const (
	// HeapFlagNone creates a CPU-only heap.
	HeapFlagNone DescriptorHeapFlags = 0

	// HeapFlagShaderVisible creates a heap with GPU handles.
	HeapFlagShaderVisible DescriptorHeapFlags = 1 << 0
)

// FlagsForHeapType returns the creation flags a heap of type t must use.
func FlagsForHeapType(t DescriptorHeapType) DescriptorHeapFlags {
	if t.ShaderVisible() {
		return HeapFlagShaderVisible
	}
	return HeapFlagNone
}

// DescriptorHeapDesc describes a descriptor heap.
type DescriptorHeapDesc struct {
	Label          string
	Type           DescriptorHeapType
	NumDescriptors uint32
	Flags          DescriptorHeapFlags
}

// CPUDescriptorHandle is the CPU address of a descriptor slot.
type CPUDescriptorHandle struct {
	Ptr uint64
}

// Offset returns the handle n slots away. n may be negative.
func (h CPUDescriptorHandle) Offset(n int64, stride uint32) CPUDescriptorHandle {
	return CPUDescriptorHandle{Ptr: uint64(int64(h.Ptr) + n*int64(stride))}
}

// GPUDescriptorHandle is the GPU address of a descriptor slot. Zero for
// heaps that are not shader visible.
type GPUDescriptorHandle struct {
	Ptr uint64
}

// Offset returns the handle n slots away. n may be negative.
func (h GPUDescriptorHandle) Offset(n int64, stride uint32) GPUDescriptorHandle {
	if h.Ptr == 0 {
		return h
	}
	return GPUDescriptorHandle{Ptr: uint64(int64(h.Ptr) + n*int64(stride))}
}

// ResourceState is a bitmask of the ways a resource may be accessed.
// Transitions between states are recorded explicitly with barriers.
type ResourceState uint32

// Resource states.
const (
	// StateCommon is the state resources are created in and the state
	// swapchain buffers must be in when presented.
	StateCommon ResourceState = 0

	StateVertexAndConstantBuffer ResourceState = 1 << 0
	StateIndexBuffer             ResourceState = 1 << 1
	StateRenderTarget            ResourceState = 1 << 2
	StateUnorderedAccess         ResourceState = 1 << 3
	StateDepthWrite              ResourceState = 1 << 4
	StateDepthRead               ResourceState = 1 << 5
	StateNonPixelShaderResource  ResourceState = 1 << 6
	StatePixelShaderResource     ResourceState = 1 << 7
	StateCopyDest                ResourceState = 1 << 10
	StateCopySource              ResourceState = 1 << 11

	// StatePresent aliases StateCommon.
	StatePresent = StateCommon

	// StateGenericRead is required for upload heap resources.
	StateGenericRead = StateVertexAndConstantBuffer | StateIndexBuffer |
		StateNonPixelShaderResource | StatePixelShaderResource | StateCopySource

	// StateAllShaderResource covers both shader resource states.
	StateAllShaderResource = StateNonPixelShaderResource | StatePixelShaderResource
)

// String returns a readable name for common single states.
func (s ResourceState) String() string {
	switch s {
	case StateCommon:
		return "Common"
	case StateVertexAndConstantBuffer:
		return "VertexAndConstantBuffer"
	case StateIndexBuffer:
		return "IndexBuffer"
	case StateRenderTarget:
		return "RenderTarget"
	case StateUnorderedAccess:
		return "UnorderedAccess"
	case StateDepthWrite:
		return "DepthWrite"
	case StateDepthRead:
		return "DepthRead"
	case StateNonPixelShaderResource:
		return "NonPixelShaderResource"
	case StatePixelShaderResource:
		return "PixelShaderResource"
	case StateAllShaderResource:
		return "AllShaderResource"
	case StateCopyDest:
		return "CopyDest"
	case StateCopySource:
		return "CopySource"
	case StateGenericRead:
		return "GenericRead"
	default:
		return fmt.Sprintf("State(%#x)", uint32(s))
	}
}

// Format is a texel or vertex element format.
type Format uint16

// Formats.
const (
	FormatUnknown Format = iota
	FormatRGBA8Unorm
	FormatBGRA8Unorm
	FormatR32Float
	FormatRG32Float
	FormatRGB32Float
	FormatRGBA32Float
	FormatR16Uint
	FormatR32Uint
	FormatD32Float
	FormatD24UnormS8Uint
)

// String returns the string representation of Format.
func (f Format) String() string {
	switch f {
	case FormatUnknown:
		return "Unknown"
	case FormatRGBA8Unorm:
		return "RGBA8Unorm"
	case FormatBGRA8Unorm:
		return "BGRA8Unorm"
	case FormatR32Float:
		return "R32Float"
	case FormatRG32Float:
		return "RG32Float"
	case FormatRGB32Float:
		return "RGB32Float"
	case FormatRGBA32Float:
		return "RGBA32Float"
	case FormatR16Uint:
		return "R16Uint"
	case FormatR32Uint:
		return "R32Uint"
	case FormatD32Float:
		return "D32Float"
	case FormatD24UnormS8Uint:
		return "D24UnormS8Uint"
	default:
		return fmt.Sprintf("Format(%d)", int(f))
	}
}

// Size returns the size in bytes of one element of the format, or 0 for
// FormatUnknown.
func (f Format) Size() int {
	switch f {
	case FormatR16Uint:
		return 2
	case FormatRGBA8Unorm, FormatBGRA8Unorm, FormatR32Float, FormatR32Uint,
		FormatD32Float, FormatD24UnormS8Uint:
		return 4
	case FormatRG32Float:
		return 8
	case FormatRGB32Float:
		return 12
	case FormatRGBA32Float:
		return 16
	default:
		return 0
	}
}

// IsDepth reports whether f is a depth(-stencil) format.
func (f Format) IsDepth() bool {
	return f == FormatD32Float || f == FormatD24UnormS8Uint
}

// ResourceDimension distinguishes buffers from textures.
type ResourceDimension uint8

// Resource dimensions.
const (
	DimensionBuffer ResourceDimension = iota
	DimensionTexture2D
)

// HeapKind selects the memory a committed resource lives in.
type HeapKind uint8

// Heap kinds.
const (
	// HeapDefault is GPU-local memory; not CPU mappable.
	HeapDefault HeapKind = iota

	// HeapUpload is CPU-writable memory read by the GPU.
	HeapUpload

	// HeapReadback is GPU-writable memory read by the CPU.
	HeapReadback
)

// ResourceFlags allow additional usages of a resource.
type ResourceFlags uint8

// Resource flags.
const (
	ResourceFlagNone                 ResourceFlags = 0
	ResourceFlagAllowRenderTarget    ResourceFlags = 1 << 0
	ResourceFlagAllowDepthStencil    ResourceFlags = 1 << 1
	ResourceFlagAllowUnorderedAccess ResourceFlags = 1 << 2
)

// ResourceDesc describes a committed resource. Width is the byte size of a
// buffer or the texel width of a texture.
type ResourceDesc struct {
	Label     string
	Dimension ResourceDimension
	Heap      HeapKind
	Width     uint64
	Height    uint32
	MipLevels uint16
	Format    Format
	Flags     ResourceFlags
}

// BufferDesc returns the description of a buffer of size bytes.
func BufferDesc(label string, size uint64, heap HeapKind) ResourceDesc {
	return ResourceDesc{
		Label:     label,
		Dimension: DimensionBuffer,
		Heap:      heap,
		Width:     size,
		Height:    1,
		MipLevels: 1,
	}
}

// Texture2DDesc returns the description of a single-mip 2D texture.
func Texture2DDesc(label string, width, height uint32, format Format, flags ResourceFlags) ResourceDesc {
	return ResourceDesc{
		Label:     label,
		Dimension: DimensionTexture2D,
		Heap:      HeapDefault,
		Width:     uint64(width),
		Height:    height,
		MipLevels: 1,
		Format:    format,
		Flags:     flags,
	}
}

// ByteSize returns the number of bytes backing the resource.
func (d *ResourceDesc) ByteSize() uint64 {
	if d.Dimension == DimensionBuffer {
		return d.Width
	}
	return d.Width * uint64(d.Height) * uint64(d.Format.Size())
}

// ClearValue is the optimized clear value of a render target or depth
// target.
type ClearValue struct {
	Format  Format
	Color   [4]float32
	Depth   float32
	Stencil uint8
}

// ResourceBarrier is a state transition of a whole resource.
type ResourceBarrier struct {
	Resource Resource
	Before   ResourceState
	After    ResourceState
}

// TransitionBarrier returns a barrier moving r from before to after.
func TransitionBarrier(r Resource, before, after ResourceState) ResourceBarrier {
	return ResourceBarrier{Resource: r, Before: before, After: after}
}

// ClearFlags select which aspects of a depth stencil view are cleared.
type ClearFlags uint8

// Clear flags.
const (
	ClearDepth   ClearFlags = 1 << 0
	ClearStencil ClearFlags = 1 << 1
)

// Viewport maps normalized device coordinates to the render target.
type Viewport struct {
	X, Y, Width, Height float32
	MinDepth, MaxDepth  float32
}

// Rect is a scissor rectangle in pixels.
type Rect struct {
	Left, Top, Right, Bottom int32
}

// PrimitiveTopology selects how vertices are assembled.
type PrimitiveTopology uint8

// Primitive topologies.
const (
	TopologyTriangleList PrimitiveTopology = iota
	TopologyTriangleStrip
	TopologyLineList
	TopologyPointList
)

// VertexBufferView binds a range of a buffer as vertex input.
type VertexBufferView struct {
	Resource Resource
	Offset   uint64
	Size     uint32
	Stride   uint32
}

// IndexBufferView binds a range of a buffer as index input.
type IndexBufferView struct {
	Resource Resource
	Offset   uint64
	Size     uint32
	Format   Format
}

// RenderTargetViewDesc describes a render target view.
type RenderTargetViewDesc struct {
	Format   Format
	MipSlice uint32
}

// DepthStencilViewDesc describes a depth stencil view.
type DepthStencilViewDesc struct {
	Format Format
}

// ShaderResourceViewDesc describes a shader resource view. For buffers the
// element range selects a structured view; for textures it is ignored.
type ShaderResourceViewDesc struct {
	Format              Format
	FirstElement        uint64
	NumElements         uint32
	StructureByteStride uint32
	MipLevels           uint32
}

// UnorderedAccessViewDesc describes an unordered access view.
type UnorderedAccessViewDesc struct {
	Format              Format
	FirstElement        uint64
	NumElements         uint32
	StructureByteStride uint32
}

// ConstantBufferViewDesc describes a constant buffer view. Size must be a
// multiple of ConstantBufferAlignment.
type ConstantBufferViewDesc struct {
	Resource Resource
	Offset   uint64
	Size     uint32
}

// ConstantBufferAlignment is the required size and offset alignment of
// constant buffer views.
const ConstantBufferAlignment = 256

// Filter selects texture filtering for a sampler.
type Filter uint8

// Filters.
const (
	FilterLinear Filter = iota
	FilterPoint
	FilterAnisotropic
)

// AddressMode selects how out-of-range texture coordinates are resolved.
type AddressMode uint8

// Address modes.
const (
	AddressWrap AddressMode = iota
	AddressClamp
	AddressMirror
)

// SamplerDesc describes a sampler.
type SamplerDesc struct {
	Filter        Filter
	AddressU      AddressMode
	AddressV      AddressMode
	AddressW      AddressMode
	MaxAnisotropy uint32
}
