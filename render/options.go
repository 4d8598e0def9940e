// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package render

import (
	"github.com/gogpu/diabolic/gpucore"
)

// Defaults used by NewContext.
const (
	// FrameCount is the number of swapchain buffers, and so the number of
	// frames the CPU may run ahead of the GPU.
	FrameCount = 2

	// SRVHeapCapacity is the default size of the bindless CBV/SRV/UAV heap.
	SRVHeapCapacity = 4096

	// SamplerHeapCapacity is the size of the sampler heap.
	SamplerHeapCapacity = 16

	// MinFeatureLevel is the lowest feature level a hardware adapter may
	// report to be selected.
	MinFeatureLevel = gpucore.FeatureLevel12_0
)

// BackbufferFormat and DepthFormat are the formats of the render targets.
const (
	BackbufferFormat = gpucore.FormatRGBA8Unorm
	DepthFormat      = gpucore.FormatD32Float
)

// DefaultClearColor is the color backbuffers are cleared to.
var DefaultClearColor = [4]float32{1, 182.0 / 255, 193.0 / 255, 1}

// Option configures a Context.
type Option func(*options)

type options struct {
	backend      string
	warp         bool
	device       gpucore.Device
	minLevel     gpucore.FeatureLevel
	frameCount   int
	srvCapacity  uint32
	clearColor   [4]float32
	syncInterval int
}

func defaultOptions() options {
	return options{
		minLevel:     MinFeatureLevel,
		frameCount:   FrameCount,
		srvCapacity:  SRVHeapCapacity,
		clearColor:   DefaultClearColor,
		syncInterval: 1,
	}
}

// WithBackend restricts adapter selection to the named registered backend.
func WithBackend(name string) Option {
	return func(o *options) {
		o.backend = name
	}
}

// WithWARP skips hardware adapters and uses the reference device.
func WithWARP() Option {
	return func(o *options) {
		o.warp = true
	}
}

// WithDevice uses an existing device instead of selecting one. The caller
// keeps ownership: Context.Close does not destroy it.
func WithDevice(d gpucore.Device) Option {
	return func(o *options) {
		o.device = d
	}
}

// WithMinFeatureLevel sets the lowest feature level a hardware adapter may
// report.
func WithMinFeatureLevel(l gpucore.FeatureLevel) Option {
	return func(o *options) {
		o.minLevel = l
	}
}

// WithFrameCount sets the number of swapchain buffers. Values below 2 are
// ignored.
func WithFrameCount(n int) Option {
	return func(o *options) {
		if n >= 2 {
			o.frameCount = n
		}
	}
}

// WithSRVHeapCapacity sets the size of the bindless heap.
func WithSRVHeapCapacity(n uint32) Option {
	return func(o *options) {
		if n > 0 {
			o.srvCapacity = n
		}
	}
}

// WithClearColor sets the backbuffer clear color.
func WithClearColor(c [4]float32) Option {
	return func(o *options) {
		o.clearColor = c
	}
}

// WithSyncInterval sets the interval passed to Present. Zero presents
// without waiting for vertical blank.
func WithSyncInterval(n int) Option {
	return func(o *options) {
		o.syncInterval = n
	}
}
