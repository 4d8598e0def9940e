// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package soft

import (
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/gogpu/diabolic/gpucore"
)

// Queue is a hardware queue whose timeline executes items in submission
// order.
type Queue struct {
	device *Device
	typ    gpucore.CommandListType
	manual bool

	mu      sync.Mutex
	cond    *sync.Cond
	pending []workItem
	stopped bool
	done    chan struct{}
}

// workItem is one entry of the timeline: a batch of lists, a fence
// signal or a present.
type workItem struct {
	batch   []*recording
	fence   *Fence
	value   uint64
	present *presentOp
}

var _ gpucore.Queue = (*Queue)(nil)

// QueueOf returns the reference queue behind q, or nil if q belongs to
// another backend. Tests use it to drive a manual timeline.
func QueueOf(q gpucore.Queue) *Queue {
	sq, _ := q.(*Queue)
	return sq
}

func newQueue(d *Device, t gpucore.CommandListType) *Queue {
	q := &Queue{
		device: d,
		typ:    t,
		manual: d.opts.manual,
		done:   make(chan struct{}),
	}
	q.cond = sync.NewCond(&q.mu)
	if q.manual {
		close(q.done)
	} else {
		go q.run()
	}
	return q
}

// Type returns the queue type.
func (q *Queue) Type() gpucore.CommandListType { return q.typ }

// ExecuteCommandLists queues closed lists for execution.
func (q *Queue) ExecuteCommandLists(lists ...gpucore.CommandList) error {
	if err := q.device.checkAlive(); err != nil {
		return err
	}
	batch := make([]*recording, 0, len(lists))
	for _, gl := range lists {
		l, ok := gl.(*commandList)
		if !ok || l.device != q.device {
			return errors.Wrap(gpucore.ErrTypeMismatch, "command list from another device")
		}
		if l.typ != q.typ {
			return errors.Wrapf(gpucore.ErrTypeMismatch, "%s list on %s queue", l.typ, q.typ)
		}
		rec, err := l.submit()
		if err != nil {
			for _, r := range batch {
				r.alloc.retire()
			}
			return err
		}
		batch = append(batch, rec)
	}
	return q.enqueue(workItem{batch: batch})
}

// Signal sets f to value after all previously queued work.
func (q *Queue) Signal(f gpucore.Fence, value uint64) error {
	if err := q.device.checkAlive(); err != nil {
		return err
	}
	sf, ok := f.(*Fence)
	if !ok || sf.device != q.device {
		return errors.Wrap(gpucore.ErrTypeMismatch, "fence from another device")
	}
	return q.enqueue(workItem{fence: sf, value: value})
}

func (q *Queue) enqueue(it workItem) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.stopped {
		return errors.Wrapf(gpucore.ErrClosed, "%s queue", q.typ)
	}
	q.pending = append(q.pending, it)
	q.cond.Signal()
	return nil
}

// Pending returns the number of timeline items not yet executed.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Retire executes up to n pending items on the calling goroutine and
// returns how many ran. It is meant for devices created with
// WithManualExecution.
func (q *Queue) Retire(n int) int {
	ran := 0
	for ran < n {
		it, ok := q.pop()
		if !ok {
			break
		}
		q.process(it)
		ran++
	}
	return ran
}

// Step executes pending items up to and including the next fence signal,
// which completes exactly one submission. It reports whether a signal ran.
func (q *Queue) Step() bool {
	for {
		it, ok := q.pop()
		if !ok {
			return false
		}
		q.process(it)
		if it.fence != nil {
			return true
		}
	}
}

// Drain executes every pending item.
func (q *Queue) Drain() {
	for {
		it, ok := q.pop()
		if !ok {
			return
		}
		q.process(it)
	}
}

func (q *Queue) pop() (workItem, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return workItem{}, false
	}
	it := q.pending[0]
	q.pending[0] = workItem{}
	q.pending = q.pending[1:]
	return it, true
}

func (q *Queue) run() {
	defer close(q.done)
	for {
		q.mu.Lock()
		for len(q.pending) == 0 && !q.stopped {
			q.cond.Wait()
		}
		if q.stopped {
			q.mu.Unlock()
			return
		}
		it := q.pending[0]
		q.pending[0] = workItem{}
		q.pending = q.pending[1:]
		q.mu.Unlock()

		q.process(it)
	}
}

func (q *Queue) process(it workItem) {
	switch {
	case it.batch != nil:
		if q.device.opts.delay > 0 {
			time.Sleep(q.device.opts.delay)
		}
		for _, rec := range it.batch {
			if q.device.Err() == nil {
				if err := execute(q.device, rec); err != nil {
					q.device.lose(err)
				}
			}
			rec.alloc.retire()
		}
		q.device.stats.Batches.Add(1)
	case it.fence != nil:
		it.fence.Signal(it.value)
	case it.present != nil:
		if q.device.Err() == nil {
			if err := it.present.swapchain.flip(it.present.index); err != nil {
				q.device.lose(err)
			}
		}
	}
}

func (q *Queue) stop() {
	q.mu.Lock()
	q.stopped = true
	q.pending = nil
	q.cond.Broadcast()
	q.mu.Unlock()
	<-q.done
}

// Destroy stops the timeline. Work not yet executed is dropped.
func (q *Queue) Destroy() {
	q.stop()
	q.device.unregisterQueue(q)
}
