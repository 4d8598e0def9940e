// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gpucore

import (
	"fmt"
	"image"
	"time"
)

// Infinite is the timeout that makes fence waits block until the value is
// reached.
const Infinite time.Duration = -1

// FeatureLevel is the capability tier a device supports.
type FeatureLevel uint16

// Feature levels.
const (
	FeatureLevel11_0 FeatureLevel = 0xb000
	FeatureLevel11_1 FeatureLevel = 0xb100
	FeatureLevel12_0 FeatureLevel = 0xc000
	FeatureLevel12_1 FeatureLevel = 0xc100
	FeatureLevel12_2 FeatureLevel = 0xc200
)

// String returns the feature level as "major_minor".
func (l FeatureLevel) String() string {
	return fmt.Sprintf("%d_%d", l>>12, (l>>8)&0xf)
}

// ShaderModel is the highest shader model the device compiles for.
type ShaderModel uint8

// Shader models.
const (
	ShaderModel6_0 ShaderModel = 0x60
	ShaderModel6_5 ShaderModel = 0x65
	ShaderModel6_6 ShaderModel = 0x66
)

// String returns the shader model as "major_minor".
func (m ShaderModel) String() string {
	return fmt.Sprintf("%d_%d", m>>4, m&0xf)
}

// AdapterType classifies an adapter.
type AdapterType uint8

// Adapter types.
const (
	AdapterDiscrete AdapterType = iota
	AdapterIntegrated
	AdapterSoftware
	AdapterOther
)

// String returns the string representation of AdapterType.
func (t AdapterType) String() string {
	switch t {
	case AdapterDiscrete:
		return "Discrete"
	case AdapterIntegrated:
		return "Integrated"
	case AdapterSoftware:
		return "Software"
	default:
		return "Other"
	}
}

// AdapterInfo describes a physical adapter and the device opened on it.
type AdapterInfo struct {
	Name         string
	Backend      string
	Type         AdapterType
	FeatureLevel FeatureLevel
	ShaderModel  ShaderModel
}

// Adapter is a physical device that can be opened.
type Adapter interface {
	Info() AdapterInfo
}

// Backend enumerates adapters and opens devices on them.
type Backend interface {
	// Name returns the registry name of the backend.
	Name() string

	// EnumerateAdapters lists the adapters the backend can open.
	EnumerateAdapters() ([]Adapter, error)

	// CreateDevice opens a device on a. The device must support at least
	// minLevel or ErrFeatureLevel is returned.
	CreateDevice(a Adapter, minLevel FeatureLevel) (Device, error)

	// Destroy releases the backend instance. Devices must be destroyed first.
	Destroy()
}

// SurfaceTarget is the native window the swapchain presents to. A zero
// Handle selects an offscreen swapchain.
type SurfaceTarget struct {
	Handle uintptr
	Width  uint32
	Height uint32
}

// SwapchainDesc describes a swapchain.
type SwapchainDesc struct {
	Label       string
	Width       uint32
	Height      uint32
	Format      Format
	BufferCount int
}

// Device creates every GPU object. Objects are owned by their creator:
// whoever creates an object destroys it, after the GPU is done with it.
type Device interface {
	Info() AdapterInfo

	// Err returns a non-nil error matching ErrDeviceLost once the device
	// was removed. Fence values reported after that are meaningless.
	Err() error

	CreateCommandQueue(t CommandListType) (Queue, error)
	CreateFence(initial uint64) (Fence, error)
	CreateCommandAllocator(t CommandListType) (CommandAllocator, error)

	// CreateCommandList creates a list that is open for recording into
	// alloc.
	CreateCommandList(t CommandListType, alloc CommandAllocator) (CommandList, error)

	CreateDescriptorHeap(desc *DescriptorHeapDesc) (DescriptorHeap, error)

	// DescriptorIncrementSize returns the stride between two descriptors
	// of heap type t.
	DescriptorIncrementSize(t DescriptorHeapType) uint32

	CreateCommittedResource(desc *ResourceDesc, initial ResourceState, clear *ClearValue) (Resource, error)

	CreateRenderTargetView(r Resource, desc *RenderTargetViewDesc, dst CPUDescriptorHandle) error
	CreateDepthStencilView(r Resource, desc *DepthStencilViewDesc, dst CPUDescriptorHandle) error
	CreateShaderResourceView(r Resource, desc *ShaderResourceViewDesc, dst CPUDescriptorHandle) error
	CreateUnorderedAccessView(r Resource, desc *UnorderedAccessViewDesc, dst CPUDescriptorHandle) error
	CreateConstantBufferView(desc *ConstantBufferViewDesc, dst CPUDescriptorHandle) error
	CreateSampler(desc *SamplerDesc, dst CPUDescriptorHandle) error

	CreateGraphicsPipelineState(desc *GraphicsPipelineDesc) (PipelineState, error)

	// CreateSwapchain creates a swapchain whose presents are ordered on q.
	CreateSwapchain(q Queue, target SurfaceTarget, desc *SwapchainDesc) (Swapchain, error)

	Destroy()
}

// Queue executes closed command lists in submission order.
type Queue interface {
	Type() CommandListType

	// ExecuteCommandLists submits closed lists. Lists may be reset as soon
	// as this returns; their allocators may not.
	ExecuteCommandLists(lists ...CommandList) error

	// Signal sets f to value once all previously submitted work retired.
	Signal(f Fence, value uint64) error

	Destroy()
}

// Fence is a monotonic counter advanced by the GPU.
type Fence interface {
	// CompletedValue returns the last value the GPU reached.
	CompletedValue() uint64

	// Wait blocks until CompletedValue() >= value or timeout elapses.
	// A negative timeout waits forever, zero polls. It reports whether the
	// value was reached.
	Wait(value uint64, timeout time.Duration) (bool, error)

	Destroy()
}

// CommandAllocator backs the memory command lists are recorded into.
type CommandAllocator interface {
	Type() CommandListType

	// Reset reclaims the memory of every list recorded into the
	// allocator. The GPU must have finished executing those lists.
	Reset() error

	Destroy()
}

// CommandList records GPU commands. Recording methods do not return
// errors; the first recording error is reported by Close.
type CommandList interface {
	Type() CommandListType

	// Reset reopens the list for recording into alloc.
	Reset(alloc CommandAllocator) error

	// Close ends recording.
	Close() error

	ResourceBarrier(barriers ...ResourceBarrier)
	SetDescriptorHeaps(heaps ...DescriptorHeap)
	ClearRenderTargetView(rtv CPUDescriptorHandle, color [4]float32)
	ClearDepthStencilView(dsv CPUDescriptorHandle, flags ClearFlags, depth float32, stencil uint8)
	SetRenderTargets(rtvs []CPUDescriptorHandle, dsv *CPUDescriptorHandle)
	SetViewports(viewports ...Viewport)
	SetScissorRects(rects ...Rect)
	SetPipelineState(p PipelineState)
	SetGraphicsRootConstants(data []uint32, destOffset uint32)
	SetGraphicsRootDescriptorTable(rootIndex uint32, base GPUDescriptorHandle)
	SetPrimitiveTopology(t PrimitiveTopology)
	SetVertexBuffers(startSlot uint32, views ...VertexBufferView)
	SetIndexBuffer(view *IndexBufferView)
	DrawInstanced(vertexCount, instanceCount, startVertex, startInstance uint32)
	DrawIndexedInstanced(indexCount, instanceCount, startIndex uint32, baseVertex int32, startInstance uint32)
	CopyBufferRegion(dst Resource, dstOffset uint64, src Resource, srcOffset, size uint64)

	Destroy()
}

// DescriptorHeap is the backend memory of a descriptor heap.
type DescriptorHeap interface {
	Desc() DescriptorHeapDesc
	CPUStart() CPUDescriptorHandle

	// GPUStart is zero unless the heap is shader visible.
	GPUStart() GPUDescriptorHandle

	Destroy()
}

// Resource is a buffer or texture.
type Resource interface {
	Desc() ResourceDesc
	GPUVirtualAddress() uint64

	// Map returns CPU memory for upload and readback heap resources.
	// For readback resources the contents reflect completed GPU work.
	Map() ([]byte, error)

	// Unmap publishes writes made through the mapped memory.
	Unmap()

	Destroy()
}

// Swapchain is the ring of backbuffers presented to a surface. It owns the
// buffers; callers must not destroy them.
type Swapchain interface {
	BufferCount() int
	Buffer(i int) (Resource, error)
	CurrentBackBufferIndex() int

	// Present queues the current backbuffer for presentation and advances
	// the backbuffer index.
	Present(syncInterval int) error

	// ResizeBuffers recreates the buffers. No buffer may be referenced by
	// GPU work in flight.
	ResizeBuffers(width, height uint32) error

	Destroy()
}

// FrameCapturer is implemented by swapchains that can read back the last
// presented image. Callers must flush the presenting queue first.
type FrameCapturer interface {
	CaptureFrontBuffer() (*image.RGBA, error)
}

// PipelineState is a compiled graphics pipeline.
type PipelineState interface {
	Label() string
	Destroy()
}
