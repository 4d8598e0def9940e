// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build !nogpu

package native

import (
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// API creates HAL instances. hal.Backend implementations and noop.API
// satisfy it.
type API interface {
	CreateInstance(desc *hal.InstanceDescriptor) (hal.Instance, error)
}

// Option configures a Backend.
type Option func(*options)

type options struct {
	api     API
	variant gputypes.Backend
	limits  gputypes.Limits
}

func defaultOptions() options {
	return options{
		variant: gputypes.BackendVulkan,
		limits:  gputypes.DefaultLimits(),
	}
}

// WithAPI uses api instead of looking up a registered HAL backend.
func WithAPI(api API) Option {
	return func(o *options) {
		o.api = api
	}
}

// WithHALBackend selects the registered HAL backend, Vulkan by default.
func WithHALBackend(b gputypes.Backend) Option {
	return func(o *options) {
		o.variant = b
	}
}

// WithLimits sets the limits devices are opened with.
func WithLimits(l gputypes.Limits) Option {
	return func(o *options) {
		o.limits = l
	}
}
