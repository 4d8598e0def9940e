// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package soft

import (
	"math"
	"sync"
	"time"

	"github.com/gogpu/diabolic/gpucore"
)

// Fence is a monotonic counter advanced by a queue timeline.
type Fence struct {
	device *Device

	mu        sync.Mutex
	value     uint64
	waiters   []fenceWaiter
	destroyed bool
}

type fenceWaiter struct {
	value uint64
	ch    chan struct{}
}

var _ gpucore.Fence = (*Fence)(nil)

// CompletedValue returns the last value reached. After device removal it
// returns math.MaxUint64.
func (f *Fence) CompletedValue() uint64 {
	if f.device.Err() != nil {
		return math.MaxUint64
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.value
}

// Signal sets the fence to value from the CPU. Values below the current
// one are ignored.
func (f *Fence) Signal(value uint64) {
	f.mu.Lock()
	if value <= f.value {
		f.mu.Unlock()
		return
	}
	f.value = value
	kept := f.waiters[:0]
	var ready []chan struct{}
	for _, w := range f.waiters {
		if w.value <= value {
			ready = append(ready, w.ch)
		} else {
			kept = append(kept, w)
		}
	}
	f.waiters = kept
	f.mu.Unlock()

	for _, ch := range ready {
		close(ch)
	}
}

// Wait blocks until the fence reaches value or timeout elapses. A
// negative timeout waits forever and zero polls.
func (f *Fence) Wait(value uint64, timeout time.Duration) (bool, error) {
	if err := f.device.Err(); err != nil {
		return false, err
	}

	f.mu.Lock()
	if f.value >= value {
		f.mu.Unlock()
		return true, nil
	}
	if timeout == 0 {
		f.mu.Unlock()
		return false, nil
	}
	ch := make(chan struct{})
	f.waiters = append(f.waiters, fenceWaiter{value: value, ch: ch})
	f.mu.Unlock()

	if timeout < 0 {
		<-ch
	} else {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		select {
		case <-ch:
		case <-timer.C:
			f.removeWaiter(ch)
			return false, nil
		}
	}

	if err := f.device.Err(); err != nil {
		return false, err
	}
	f.mu.Lock()
	reached, destroyed := f.value >= value, f.destroyed
	f.mu.Unlock()
	if !reached && destroyed {
		return false, gpucore.ErrClosed
	}
	return reached, nil
}

func (f *Fence) removeWaiter(ch chan struct{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, w := range f.waiters {
		if w.ch == ch {
			f.waiters = append(f.waiters[:i], f.waiters[i+1:]...)
			return
		}
	}
}

// abort releases every waiter after device removal.
func (f *Fence) abort() {
	f.mu.Lock()
	waiters := f.waiters
	f.waiters = nil
	f.mu.Unlock()
	for _, w := range waiters {
		close(w.ch)
	}
}

// Destroy releases the fence. Blocked waiters are released.
func (f *Fence) Destroy() {
	f.mu.Lock()
	f.destroyed = true
	f.mu.Unlock()
	f.abort()
	f.device.unregisterFence(f)
}
