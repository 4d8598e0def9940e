// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build !nogpu

package native

import (
	"math"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/diabolic/gpucore"
)

// Fence is a HAL fence. Values signaled but not yet observed complete are
// kept in pending, in ascending order.
type Fence struct {
	device *Device
	hal    hal.Fence

	mu        sync.Mutex
	completed uint64
	pending   []uint64
	destroyed bool
}

var _ gpucore.Fence = (*Fence)(nil)

func (f *Fence) signaled(value uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if n := len(f.pending); n == 0 || f.pending[n-1] < value {
		f.pending = append(f.pending, value)
	}
}

// CompletedValue polls the HAL fence for the highest pending value that
// was reached. It returns math.MaxUint64 once the device is removed.
func (f *Fence) CompletedValue() uint64 {
	if f.device.Err() != nil {
		return math.MaxUint64
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.pending) - 1; i >= 0; i-- {
		if ok, err := f.device.hal.Wait(f.hal, f.pending[i], 0); err == nil && ok {
			f.complete(f.pending[i])
			break
		}
	}
	return f.completed
}

// complete records value as reached. f.mu must be held.
func (f *Fence) complete(value uint64) {
	if value > f.completed {
		f.completed = value
	}
	n := 0
	for n < len(f.pending) && f.pending[n] <= f.completed {
		n++
	}
	f.pending = f.pending[n:]
}

// Wait blocks until value is reached or timeout elapses. A negative
// timeout waits forever.
func (f *Fence) Wait(value uint64, timeout time.Duration) (bool, error) {
	if err := f.device.Err(); err != nil {
		return true, err
	}
	if f.CompletedValue() >= value {
		return true, nil
	}
	if timeout == 0 {
		return false, nil
	}
	if timeout < 0 {
		timeout = forever
	}
	f.mu.Lock()
	if f.destroyed {
		f.mu.Unlock()
		return false, errors.Wrap(gpucore.ErrClosed, "wait on destroyed fence")
	}
	f.mu.Unlock()

	ok, err := f.device.hal.Wait(f.hal, value, timeout)
	if err != nil {
		return false, f.device.lose(errors.Wrap(err, "fence wait"))
	}
	if ok {
		f.mu.Lock()
		f.complete(value)
		f.mu.Unlock()
	}
	return ok, nil
}

// Destroy releases the HAL fence.
func (f *Fence) Destroy() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.destroyed {
		return
	}
	f.destroyed = true
	f.device.hal.DestroyFence(f.hal)
}
