// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package soft

import (
	"github.com/cockroachdb/errors"

	"github.com/gogpu/diabolic/gpucore"
)

// BackendName is the registry name of the reference backend.
const BackendName = "soft"

func init() {
	gpucore.Register(BackendName, gpucore.PriorityReference, func() (gpucore.Backend, error) {
		return NewBackend(), nil
	}, nil)
}

// Backend exposes a single software adapter.
type Backend struct {
	opts []Option
}

var _ gpucore.Backend = (*Backend)(nil)

// NewBackend returns a backend whose devices are created with opts.
func NewBackend(opts ...Option) *Backend {
	return &Backend{opts: opts}
}

// Name returns BackendName.
func (b *Backend) Name() string { return BackendName }

type adapter struct {
	info gpucore.AdapterInfo
}

func (a *adapter) Info() gpucore.AdapterInfo { return a.info }

// EnumerateAdapters returns the single reference adapter.
func (b *Backend) EnumerateAdapters() ([]gpucore.Adapter, error) {
	o := defaultOptions()
	for _, opt := range b.opts {
		opt(&o)
	}
	return []gpucore.Adapter{&adapter{info: gpucore.AdapterInfo{
		Name:         o.name,
		Backend:      BackendName,
		Type:         gpucore.AdapterSoftware,
		FeatureLevel: o.featureLevel,
		ShaderModel:  gpucore.ShaderModel6_6,
	}}}, nil
}

// CreateDevice opens a reference device on a.
func (b *Backend) CreateDevice(a gpucore.Adapter, minLevel gpucore.FeatureLevel) (gpucore.Device, error) {
	if _, ok := a.(*adapter); !ok {
		return nil, errors.Wrap(gpucore.ErrTypeMismatch, "adapter from another backend")
	}
	if a.Info().FeatureLevel < minLevel {
		return nil, errors.Wrapf(gpucore.ErrFeatureLevel, "%s supports %s, %s required",
			a.Info().Name, a.Info().FeatureLevel, minLevel)
	}
	return New(b.opts...)
}

// Destroy is a no-op.
func (b *Backend) Destroy() {}
