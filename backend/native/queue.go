// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build !nogpu

package native

import (
	"github.com/cockroachdb/errors"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/diabolic"
	"github.com/gogpu/diabolic/gpucore"
)

// Queue submits to the HAL queue of its device.
type Queue struct {
	device    *Device
	typ       gpucore.CommandListType
	destroyed bool
}

var _ gpucore.Queue = (*Queue)(nil)

// Type returns the list type the queue executes.
func (q *Queue) Type() gpucore.CommandListType { return q.typ }

// ExecuteCommandLists encodes the lists into HAL command buffers and
// submits them together. Validation failures found while encoding remove
// the device.
func (q *Queue) ExecuteCommandLists(lists ...gpucore.CommandList) error {
	if err := q.device.Err(); err != nil {
		return err
	}
	if q.destroyed {
		return errors.Wrap(gpucore.ErrClosed, "execute on destroyed queue")
	}
	batch := make([]*commandList, 0, len(lists))
	for _, l := range lists {
		cl, ok := l.(*commandList)
		if !ok || cl.device != q.device {
			return errors.Wrap(gpucore.ErrTypeMismatch, "list from another device")
		}
		if cl.typ != q.typ {
			return errors.Wrapf(gpucore.ErrTypeMismatch, "%s list on %s queue", cl.typ, q.typ)
		}
		if cl.state != listClosed {
			return errors.Wrap(gpucore.ErrInvalidState, "executing an open list")
		}
		if cl.err != nil {
			return errors.Wrap(gpucore.ErrInvalidState, "executing a list that failed to record")
		}
		batch = append(batch, cl)
	}

	cbs := make([]hal.CommandBuffer, 0, len(batch))
	for _, cl := range batch {
		cb, err := cl.encode()
		if err != nil {
			return q.device.lose(err)
		}
		cbs = append(cbs, cb)
	}
	serial, err := q.device.submit(cbs)
	if err != nil {
		return err
	}
	for _, cl := range batch {
		cl.submitted(serial)
	}
	diabolic.Logger().Debug("native: executed lists", "queue", q.typ.String(), "count", len(batch), "serial", serial)
	return nil
}

// Signal sets f to value after all previously submitted work.
func (q *Queue) Signal(f gpucore.Fence, value uint64) error {
	nf, ok := f.(*Fence)
	if !ok || nf.device != q.device {
		return errors.Wrap(gpucore.ErrTypeMismatch, "fence from another device")
	}
	if err := q.device.signal(nf.hal, value); err != nil {
		return err
	}
	nf.signaled(value)
	return nil
}

// Destroy marks the queue unusable. The HAL queue belongs to the device.
func (q *Queue) Destroy() {
	q.destroyed = true
}
