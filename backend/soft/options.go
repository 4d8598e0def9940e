// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package soft

import (
	"time"

	"github.com/gogpu/diabolic/gpucore"
)

// Option configures a Device.
type Option func(*options)

type options struct {
	manual       bool
	delay        time.Duration
	featureLevel gpucore.FeatureLevel
	name         string
}

func defaultOptions() options {
	return options{
		featureLevel: gpucore.FeatureLevel12_1,
		name:         "Reference Device",
	}
}

// WithManualExecution disables the timeline goroutines. Submitted work
// runs only when retired explicitly with Queue.Step or Queue.Retire.
func WithManualExecution() Option {
	return func(o *options) {
		o.manual = true
	}
}

// WithExecutionDelay makes every executed batch take at least d, to
// simulate a GPU that lags behind the CPU.
func WithExecutionDelay(d time.Duration) Option {
	return func(o *options) {
		o.delay = d
	}
}

// WithFeatureLevel sets the feature level the device reports.
func WithFeatureLevel(l gpucore.FeatureLevel) Option {
	return func(o *options) {
		o.featureLevel = l
	}
}
