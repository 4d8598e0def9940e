// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package soft

import (
	"fmt"
	"image"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/gogpu/diabolic"
	"github.com/gogpu/diabolic/gpucore"
)

// presentOp flips one backbuffer to the front image on the timeline.
type presentOp struct {
	swapchain *swapchain
	index     int
}

// swapchain is an offscreen flip chain. The front image holds the last
// presented buffer.
type swapchain struct {
	device *Device
	queue  *Queue
	desc   gpucore.SwapchainDesc

	mu       sync.Mutex
	buffers  []*resource
	current  int
	front    *image.RGBA
	presents uint64
}

var _ gpucore.Swapchain = (*swapchain)(nil)

// CreateSwapchain creates an offscreen swapchain presenting on q. The
// surface handle is not used; the front buffer is available through
// FrontBuffer.
func (d *Device) CreateSwapchain(q gpucore.Queue, target gpucore.SurfaceTarget, desc *gpucore.SwapchainDesc) (gpucore.Swapchain, error) {
	if err := d.checkAlive(); err != nil {
		return nil, err
	}
	sq, ok := q.(*Queue)
	if !ok || sq.device != d {
		return nil, errors.Wrap(gpucore.ErrTypeMismatch, "swapchain queue from another device")
	}
	if sq.typ != gpucore.CommandListDirect {
		return nil, errors.Wrapf(gpucore.ErrTypeMismatch, "swapchain on a %s queue", sq.typ)
	}
	if desc == nil || desc.BufferCount < 2 {
		return nil, errors.Wrap(gpucore.ErrInvalidArgument, "swapchain needs at least two buffers")
	}
	if desc.Format != gpucore.FormatRGBA8Unorm && desc.Format != gpucore.FormatBGRA8Unorm {
		return nil, errors.Wrapf(gpucore.ErrUnsupported, "swapchain format %s", desc.Format)
	}
	s := &swapchain{device: d, queue: sq, desc: *desc}
	if s.desc.Width == 0 {
		s.desc.Width = target.Width
	}
	if s.desc.Height == 0 {
		s.desc.Height = target.Height
	}
	if target.Handle != 0 {
		diabolic.Logger().Debug("soft: window handle ignored, presenting offscreen", "handle", target.Handle)
	}
	if err := s.createBuffers(s.desc.Width, s.desc.Height); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *swapchain) createBuffers(width, height uint32) error {
	if width == 0 || height == 0 {
		return errors.Wrapf(gpucore.ErrInvalidArgument, "swapchain extent %dx%d", width, height)
	}
	buffers := make([]*resource, s.desc.BufferCount)
	for i := range buffers {
		desc := gpucore.Texture2DDesc(fmt.Sprintf("%s buffer %d", s.desc.Label, i),
			width, height, s.desc.Format, gpucore.ResourceFlagAllowRenderTarget)
		r, err := newResource(s.device, desc, gpucore.StatePresent, nil)
		if err != nil {
			return err
		}
		r.owner = s
		buffers[i] = r
	}
	for _, b := range s.buffers {
		b.release()
	}
	s.buffers = buffers
	s.current = 0
	s.desc.Width, s.desc.Height = width, height
	s.front = image.NewRGBA(image.Rect(0, 0, int(width), int(height)))
	return nil
}

func (s *swapchain) BufferCount() int { return s.desc.BufferCount }

func (s *swapchain) Buffer(i int) (gpucore.Resource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i < 0 || i >= len(s.buffers) {
		return nil, errors.Wrapf(gpucore.ErrInvalidArgument, "swapchain buffer %d of %d", i, len(s.buffers))
	}
	return s.buffers[i], nil
}

func (s *swapchain) CurrentBackBufferIndex() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Present queues the flip of the current buffer after all work already
// submitted to the queue. The sync interval is ignored.
func (s *swapchain) Present(syncInterval int) error {
	if err := s.device.checkAlive(); err != nil {
		return err
	}
	s.mu.Lock()
	idx := s.current
	s.current = (s.current + 1) % len(s.buffers)
	s.mu.Unlock()
	return s.queue.enqueue(workItem{present: &presentOp{swapchain: s, index: idx}})
}

// flip copies buffer index to the front image. The buffer must be in the
// present state.
func (s *swapchain) flip(index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index >= len(s.buffers) {
		return errors.Wrapf(gpucore.ErrInvalidState, "present of buffer %d after resize", index)
	}
	b := s.buffers[index]
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != gpucore.StatePresent {
		return errors.Wrapf(gpucore.ErrInvalidState, "present of %q in state %s", b.desc.Label, b.state)
	}
	copy(s.front.Pix, b.data)
	if s.desc.Format == gpucore.FormatBGRA8Unorm {
		for i := 0; i+4 <= len(s.front.Pix); i += 4 {
			s.front.Pix[i], s.front.Pix[i+2] = s.front.Pix[i+2], s.front.Pix[i]
		}
	}
	s.presents++
	s.device.stats.Presents.Add(1)
	return nil
}

// ResizeBuffers recreates every buffer in the present state. Callers must
// have flushed the queue.
func (s *swapchain) ResizeBuffers(width, height uint32) error {
	if s.queue.Pending() > 0 {
		return errors.Wrap(gpucore.ErrInvalidState, "resize with queued work")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createBuffers(width, height)
}

func (s *swapchain) Destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.buffers {
		b.release()
	}
	s.buffers = nil
}

var _ gpucore.FrameCapturer = (*swapchain)(nil)

func (s *swapchain) CaptureFrontBuffer() (*image.RGBA, error) {
	img := FrontBuffer(s)
	if img == nil {
		return nil, errors.Wrap(gpucore.ErrInvalidState, "no front buffer")
	}
	return img, nil
}

// FrontBuffer returns a copy of the last presented image of sc, or nil if
// sc is not a reference swapchain.
func FrontBuffer(sc gpucore.Swapchain) *image.RGBA {
	s, ok := sc.(*swapchain)
	if !ok {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.front == nil {
		return nil
	}
	img := image.NewRGBA(s.front.Rect)
	copy(img.Pix, s.front.Pix)
	return img
}

// PresentCount returns how many presents of sc the timeline executed.
func PresentCount(sc gpucore.Swapchain) uint64 {
	s, ok := sc.(*swapchain)
	if !ok {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.presents
}
