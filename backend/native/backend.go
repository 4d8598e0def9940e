// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build !nogpu

package native

import (
	"github.com/cockroachdb/errors"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	// Register the Vulkan HAL backend.
	_ "github.com/gogpu/wgpu/hal/vulkan"

	"github.com/gogpu/diabolic"
	"github.com/gogpu/diabolic/gpucore"
)

// BackendName is the registry name of the HAL backend.
const BackendName = "native"

func init() {
	gpucore.Register(BackendName, gpucore.PriorityHardware, func() (gpucore.Backend, error) {
		return NewBackend()
	}, available)
}

func available() bool {
	_, ok := hal.GetBackend(gputypes.BackendVulkan)
	return ok
}

// Backend enumerates the adapters of one HAL instance.
type Backend struct {
	opts     options
	instance hal.Instance
}

var _ gpucore.Backend = (*Backend)(nil)

// NewBackend creates a HAL instance.
func NewBackend(opts ...Option) (*Backend, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	api := o.api
	if api == nil {
		b, ok := hal.GetBackend(o.variant)
		if !ok {
			return nil, errors.Wrapf(ErrNoHAL, "backend %v", o.variant)
		}
		api = b
	}
	instance, err := api.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return nil, errors.Wrap(err, "create HAL instance")
	}
	return &Backend{opts: o, instance: instance}, nil
}

// Name returns BackendName.
func (b *Backend) Name() string { return BackendName }

type adapter struct {
	exposed hal.ExposedAdapter
	info    gpucore.AdapterInfo
}

func (a *adapter) Info() gpucore.AdapterInfo { return a.info }

// EnumerateAdapters lists the adapters of the instance.
func (b *Backend) EnumerateAdapters() ([]gpucore.Adapter, error) {
	exposed := b.instance.EnumerateAdapters(nil)
	adapters := make([]gpucore.Adapter, 0, len(exposed))
	for i := range exposed {
		adapters = append(adapters, &adapter{exposed: exposed[i], info: adapterInfo(&exposed[i])})
	}
	return adapters, nil
}

// adapterInfo classifies a HAL adapter. GPUs get feature level 12_0; the
// HAL guarantees the WebGPU baseline only, which maps to 11_0.
func adapterInfo(e *hal.ExposedAdapter) gpucore.AdapterInfo {
	info := gpucore.AdapterInfo{
		Name:         e.Info.Name,
		Backend:      BackendName,
		Type:         gpucore.AdapterOther,
		FeatureLevel: gpucore.FeatureLevel11_0,
		ShaderModel:  gpucore.ShaderModel6_0,
	}
	switch e.Info.DeviceType {
	case gputypes.DeviceTypeDiscreteGPU:
		info.Type = gpucore.AdapterDiscrete
	case gputypes.DeviceTypeIntegratedGPU:
		info.Type = gpucore.AdapterIntegrated
	case gputypes.DeviceTypeCPU:
		info.Type = gpucore.AdapterSoftware
	}
	if info.Type == gpucore.AdapterDiscrete || info.Type == gpucore.AdapterIntegrated {
		info.FeatureLevel = gpucore.FeatureLevel12_0
		info.ShaderModel = gpucore.ShaderModel6_6
	}
	return info
}

// CreateDevice opens a device on a.
func (b *Backend) CreateDevice(a gpucore.Adapter, minLevel gpucore.FeatureLevel) (gpucore.Device, error) {
	ad, ok := a.(*adapter)
	if !ok {
		return nil, errors.Wrap(gpucore.ErrTypeMismatch, "adapter from another backend")
	}
	if ad.info.FeatureLevel < minLevel {
		return nil, errors.Wrapf(gpucore.ErrFeatureLevel, "%s supports %s, %s required",
			ad.info.Name, ad.info.FeatureLevel, minLevel)
	}
	open, err := ad.exposed.Adapter.Open(gputypes.Features(0), b.opts.limits)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", ad.info.Name)
	}
	d, err := newDevice(open.Device, open.Queue, ad.info, false)
	if err != nil {
		open.Device.Destroy()
		return nil, err
	}
	diabolic.Logger().Info("native: device opened", "adapter", ad.info.Name,
		"type", ad.info.Type.String(), "featureLevel", ad.info.FeatureLevel.String())
	return d, nil
}

// Destroy releases the HAL instance. Devices must be destroyed first.
func (b *Backend) Destroy() {
	if b.instance != nil {
		b.instance.Destroy()
		b.instance = nil
	}
}
