// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package queue provides a fence-tracked command queue.
//
// A [Queue] wraps one hardware queue and one fence. Every submission
// signals the next fence value, and command allocators are recycled only
// after the GPU reports that value as complete:
//
//	Free -> Recording (AcquireCommandList) -> Submitted(v) (Submit) -> Free (fence >= v)
//
// Command lists are pooled separately: a list can be reset against a
// different allocator as soon as it has been submitted.
//
// A Queue is not safe for concurrent use. The goroutine driving frame
// submission owns it.
package queue

import (
	"time"

	"github.com/cockroachdb/errors"

	"github.com/gogpu/diabolic"
	"github.com/gogpu/diabolic/gpucore"
)

// Infinite makes WaitForFence block until the value is reached.
const Infinite = gpucore.Infinite

// CommandList is a backend command list paired with the allocator it
// records into. Recording methods are promoted from the embedded list.
type CommandList struct {
	gpucore.CommandList

	alloc gpucore.CommandAllocator
	queue *Queue
	open  bool
}

// Allocator returns the allocator the list records into.
func (l *CommandList) Allocator() gpucore.CommandAllocator { return l.alloc }

// Native returns the backend command list.
func (l *CommandList) Native() gpucore.CommandList { return l.CommandList }

// inFlight is an allocator waiting for the GPU to reach fence.
type inFlight struct {
	fence uint64
	alloc gpucore.CommandAllocator
}

// Queue is a hardware queue with fence-based recycling of command
// allocators and lists.
type Queue struct {
	device gpucore.Device
	native gpucore.Queue
	fence  gpucore.Fence
	typ    gpucore.CommandListType
	label  string

	fenceValue uint64

	inFlight []inFlight
	idle     []gpucore.CommandAllocator
	lists    []gpucore.CommandList

	allocators []gpucore.CommandAllocator
	allLists   []gpucore.CommandList

	stats  Stats
	closed bool
}

// Stats counts queue activity.
type Stats struct {
	Submissions      uint64
	AllocatorsMade   int
	AllocatorReuses  uint64
	ListsMade        int
	Waits            uint64
	WaitsThatBlocked uint64
}

// Option configures a Queue.
type Option func(*options)

type options struct {
	label string
}

// WithLabel sets the label used in logs and statistics.
func WithLabel(label string) Option {
	return func(o *options) {
		o.label = label
	}
}

// New creates a queue of type typ on device, with its own fence starting
// at zero.
func New(device gpucore.Device, typ gpucore.CommandListType, opts ...Option) (*Queue, error) {
	o := options{label: typ.String()}
	for _, opt := range opts {
		opt(&o)
	}

	native, err := device.CreateCommandQueue(typ)
	if err != nil {
		return nil, errors.Wrapf(err, "create %s command queue", typ)
	}
	fence, err := device.CreateFence(0)
	if err != nil {
		native.Destroy()
		return nil, errors.Wrapf(err, "create fence for %s queue", typ)
	}

	return &Queue{
		device: device,
		native: native,
		fence:  fence,
		typ:    typ,
		label:  o.label,
	}, nil
}

// Type returns the command list type of the queue.
func (q *Queue) Type() gpucore.CommandListType { return q.typ }

// Label returns the queue label.
func (q *Queue) Label() string { return q.label }

// Native returns the backend queue, for swapchain creation.
func (q *Queue) Native() gpucore.Queue { return q.native }

// Stats returns a snapshot of the queue counters.
func (q *Queue) Stats() Stats { return q.stats }

// FenceValue returns the last fence value signaled on the queue.
func (q *Queue) FenceValue() uint64 { return q.fenceValue }

// CompletedValue returns the last fence value the GPU reached.
func (q *Queue) CompletedValue() uint64 { return q.fence.CompletedValue() }

// InFlight returns the number of allocators waiting on the GPU.
func (q *Queue) InFlight() int { return len(q.inFlight) }

// AcquireCommandList returns a list open for recording. If the oldest
// in-flight allocator's fence value is complete that allocator is reset
// and reused; otherwise a new allocator is created.
func (q *Queue) AcquireCommandList() (*CommandList, error) {
	if q.closed {
		return nil, errors.Wrapf(gpucore.ErrClosed, "%s queue", q.label)
	}

	alloc, err := q.nextAllocator()
	if err != nil {
		return nil, err
	}

	var list gpucore.CommandList
	if len(q.lists) > 0 {
		list = q.lists[0]
		q.lists = q.lists[1:]
		if err := list.Reset(alloc); err != nil {
			q.lists = append(q.lists, list)
			q.idle = append(q.idle, alloc)
			return nil, errors.Wrap(err, "reset command list")
		}
	} else {
		list, err = q.device.CreateCommandList(q.typ, alloc)
		if err != nil {
			q.idle = append(q.idle, alloc)
			return nil, errors.Wrapf(err, "create %s command list", q.typ)
		}
		q.allLists = append(q.allLists, list)
		q.stats.ListsMade++
	}

	return &CommandList{CommandList: list, alloc: alloc, queue: q, open: true}, nil
}

func (q *Queue) nextAllocator() (gpucore.CommandAllocator, error) {
	if n := len(q.idle); n > 0 {
		alloc := q.idle[n-1]
		q.idle = q.idle[:n-1]
		if err := alloc.Reset(); err != nil {
			return nil, errors.Wrap(err, "reset command allocator")
		}
		return alloc, nil
	}

	if len(q.inFlight) > 0 && q.IsFenceComplete(q.inFlight[0].fence) {
		front := q.inFlight[0]
		q.inFlight[0] = inFlight{}
		q.inFlight = q.inFlight[1:]
		if err := front.alloc.Reset(); err != nil {
			return nil, errors.Wrapf(err, "reset command allocator retired at fence %d", front.fence)
		}
		q.stats.AllocatorReuses++
		diabolic.Logger().Debug("queue: reusing command allocator",
			"queue", q.label, "retiredAt", front.fence)
		return front.alloc, nil
	}

	alloc, err := q.device.CreateCommandAllocator(q.typ)
	if err != nil {
		return nil, errors.Wrapf(err, "create %s command allocator", q.typ)
	}
	q.allocators = append(q.allocators, alloc)
	q.stats.AllocatorsMade++
	diabolic.Logger().Debug("queue: created command allocator",
		"queue", q.label, "count", len(q.allocators), "inFlight", len(q.inFlight))
	return alloc, nil
}

// Submit closes l, executes it and signals the next fence value, which it
// returns. The list goes back to the pool immediately; its allocator is
// reused once the returned value is complete.
func (q *Queue) Submit(l *CommandList) (uint64, error) {
	if q.closed {
		return 0, errors.Wrapf(gpucore.ErrClosed, "%s queue", q.label)
	}
	if l == nil || l.queue != q {
		return 0, errors.Wrapf(gpucore.ErrInvalidArgument, "command list does not belong to %s queue", q.label)
	}
	if !l.open {
		return 0, errors.Wrap(gpucore.ErrInvalidState, "command list already submitted")
	}
	l.open = false

	if err := l.CommandList.Close(); err != nil {
		// Nothing reached the GPU; the allocator is free once prior work is.
		q.inFlight = append(q.inFlight, inFlight{fence: q.fenceValue, alloc: l.alloc})
		q.lists = append(q.lists, l.CommandList)
		return 0, errors.Wrap(err, "close command list")
	}
	if err := q.native.ExecuteCommandLists(l.CommandList); err != nil {
		q.inFlight = append(q.inFlight, inFlight{fence: q.fenceValue, alloc: l.alloc})
		q.lists = append(q.lists, l.CommandList)
		return 0, errors.Wrapf(err, "execute on %s queue", q.label)
	}

	v, err := q.Signal()
	if err != nil {
		// The list may have reached the GPU; hold the allocator behind the
		// value that failed to signal.
		q.inFlight = append(q.inFlight, inFlight{fence: q.fenceValue, alloc: l.alloc})
		q.lists = append(q.lists, l.CommandList)
		return 0, err
	}
	q.inFlight = append(q.inFlight, inFlight{fence: v, alloc: l.alloc})
	q.lists = append(q.lists, l.CommandList)
	q.stats.Submissions++

	diabolic.Logger().Debug("queue: submitted", "queue", q.label, "fence", v)
	return v, nil
}

// Abandon closes l without executing it, for lists whose recording failed.
// The list and its allocator return to the pools.
func (q *Queue) Abandon(l *CommandList) {
	if l == nil || l.queue != q || !l.open {
		return
	}
	l.open = false
	if err := l.CommandList.Close(); err != nil {
		diabolic.Logger().Debug("queue: abandoned list had recording errors", "queue", q.label, "err", err)
	}
	q.inFlight = append(q.inFlight, inFlight{fence: q.fenceValue, alloc: l.alloc})
	q.lists = append(q.lists, l.CommandList)
}

// Signal signals the next fence value without submitting work and
// returns it.
func (q *Queue) Signal() (uint64, error) {
	if q.closed {
		return 0, errors.Wrapf(gpucore.ErrClosed, "%s queue", q.label)
	}
	q.fenceValue++
	if err := q.native.Signal(q.fence, q.fenceValue); err != nil {
		return 0, errors.Wrapf(err, "signal fence %d on %s queue", q.fenceValue, q.label)
	}
	return q.fenceValue, nil
}

// IsFenceComplete reports whether the GPU reached v. It never blocks and
// reports false once the device is lost.
func (q *Queue) IsFenceComplete(v uint64) bool {
	if q.device.Err() != nil {
		return false
	}
	return q.fence.CompletedValue() >= v
}

// WaitForFence blocks until the GPU reached v or timeout elapsed. Pass
// Infinite to wait without a bound. Waiting for a value that is never
// signaled blocks until the timeout. After a device loss it returns the
// device error.
func (q *Queue) WaitForFence(v uint64, timeout time.Duration) error {
	q.stats.Waits++
	if err := q.device.Err(); err != nil {
		return errors.Wrapf(err, "wait for fence %d on %s queue", v, q.label)
	}
	if q.IsFenceComplete(v) {
		return nil
	}
	q.stats.WaitsThatBlocked++

	start := time.Now()
	ok, err := q.fence.Wait(v, timeout)
	if err == nil {
		// The device may be lost while blocked; fences then jump ahead.
		err = q.device.Err()
	}
	if err != nil {
		return errors.Wrapf(err, "wait for fence %d on %s queue", v, q.label)
	}
	if !ok {
		return errors.Wrapf(gpucore.ErrWaitTimeout, "fence %d on %s queue after %v (completed %d)",
			v, q.label, timeout, q.fence.CompletedValue())
	}
	diabolic.Logger().Debug("queue: waited for fence",
		"queue", q.label, "fence", v, "elapsed", time.Since(start))
	return nil
}

// Flush signals a new fence value and blocks until it is complete. When it
// returns, all work submitted before the call has finished and FenceValue
// reports the value Flush waited on.
func (q *Queue) Flush() error {
	v, err := q.Signal()
	if err != nil {
		return err
	}
	return q.WaitForFence(v, Infinite)
}

// Close flushes the queue and destroys its allocators, lists and fence.
// The objects are destroyed even when the flush fails, so after a device
// loss Close still releases everything.
func (q *Queue) Close() error {
	if q.closed {
		return nil
	}
	flushErr := q.Flush()
	q.Destroy()

	if flushErr != nil {
		diabolic.Logger().Warn("queue: flush on close failed", "queue", q.label, "err", flushErr)
		return errors.Wrapf(flushErr, "close %s queue", q.label)
	}
	return nil
}

// Destroy releases the queue without waiting for the GPU. Use it only for
// queues that never submitted work or whose work is known to be complete;
// Close is the normal shutdown path.
func (q *Queue) Destroy() {
	if q.closed {
		return
	}
	q.closed = true

	for _, l := range q.allLists {
		l.Destroy()
	}
	for _, a := range q.allocators {
		a.Destroy()
	}
	q.allLists, q.lists = nil, nil
	q.allocators, q.inFlight, q.idle = nil, nil, nil
	q.fence.Destroy()
	q.native.Destroy()
}
