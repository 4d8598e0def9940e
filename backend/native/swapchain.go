// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build !nogpu

package native

import (
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/diabolic"
	"github.com/gogpu/diabolic/gpucore"
)

// copyPitchAlignment is the row alignment of texture to buffer copies.
const copyPitchAlignment = 256

// swapchain is a ring of offscreen textures. Present records which
// buffer is the front image; CaptureFrontBuffer copies it back.
type swapchain struct {
	device *Device
	queue  *Queue
	desc   gpucore.SwapchainDesc

	mu      sync.Mutex
	buffers []*resource
	current int
	front   int
}

var (
	_ gpucore.Swapchain     = (*swapchain)(nil)
	_ gpucore.FrameCapturer = (*swapchain)(nil)
)

// CreateSwapchain creates an offscreen swapchain. Window handles are not
// attached to a surface.
func (d *Device) CreateSwapchain(q gpucore.Queue, target gpucore.SurfaceTarget, desc *gpucore.SwapchainDesc) (gpucore.Swapchain, error) {
	if err := d.Err(); err != nil {
		return nil, err
	}
	nq, ok := q.(*Queue)
	if !ok || nq.device != d {
		return nil, errors.Wrap(gpucore.ErrTypeMismatch, "swapchain queue from another device")
	}
	if nq.typ != gpucore.CommandListDirect {
		return nil, errors.Wrapf(gpucore.ErrTypeMismatch, "swapchain on a %s queue", nq.typ)
	}
	if desc == nil || desc.BufferCount < 2 {
		return nil, errors.Wrap(gpucore.ErrInvalidArgument, "swapchain needs at least two buffers")
	}
	if desc.Format != gpucore.FormatRGBA8Unorm && desc.Format != gpucore.FormatBGRA8Unorm {
		return nil, errors.Wrapf(gpucore.ErrUnsupported, "swapchain format %s", desc.Format)
	}
	s := &swapchain{device: d, queue: nq, desc: *desc, front: -1}
	if s.desc.Width == 0 {
		s.desc.Width = target.Width
	}
	if s.desc.Height == 0 {
		s.desc.Height = target.Height
	}
	if target.Handle != 0 {
		diabolic.Logger().Info("native: no surface support, presenting offscreen", "handle", target.Handle)
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
	buffers := make([]*resource, 0, s.desc.BufferCount)
	for i := 0; i < s.desc.BufferCount; i++ {
		desc := gpucore.Texture2DDesc(fmt.Sprintf("%s buffer %d", s.desc.Label, i),
			width, height, s.desc.Format, gpucore.ResourceFlagAllowRenderTarget)
		r, err := s.device.newResource(desc, gpucore.StatePresent)
		if err != nil {
			for _, b := range buffers {
				b.release()
			}
			return err
		}
		r.owner = s
		buffers = append(buffers, r)
	}
	for _, b := range s.buffers {
		b.release()
	}
	s.buffers = buffers
	s.current = 0
	s.front = -1
	s.desc.Width, s.desc.Height = width, height
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

// Present makes the current buffer the front image. The buffer must be in
// the present state as of the last executed list.
func (s *swapchain) Present(syncInterval int) error {
	if err := s.device.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.buffers[s.current]
	if st := ResourceState(b); st != gpucore.StatePresent {
		return s.device.lose(errors.Wrapf(gpucore.ErrInvalidState, "present of %q in state %s", b.desc.Label, st))
	}
	s.front = s.current
	s.current = (s.current + 1) % len(s.buffers)
	s.device.stats.Presents.Add(1)
	return nil
}

// ResizeBuffers recreates the buffers after the device went idle.
func (s *swapchain) ResizeBuffers(width, height uint32) error {
	if err := s.device.idle(5 * time.Second); err != nil {
		return errors.Wrap(err, "resize")
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
	s.front = -1
}

// CaptureFrontBuffer copies the last presented buffer into an image. It
// submits its own copy and waits for it.
func (s *swapchain) CaptureFrontBuffer() (*image.RGBA, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.front < 0 {
		return nil, errors.Wrap(gpucore.ErrInvalidState, "no front buffer")
	}
	d := s.device
	b := s.buffers[s.front]
	w, h := s.desc.Width, s.desc.Height
	pitch := (w*4 + copyPitchAlignment - 1) &^ (copyPitchAlignment - 1)

	staging, err := d.hal.CreateBuffer(&hal.BufferDescriptor{
		Label: "capture staging",
		Size:  uint64(pitch) * uint64(h),
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create capture buffer")
	}
	defer d.hal.DestroyBuffer(staging)

	enc, err := d.hal.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "capture"})
	if err != nil {
		return nil, errors.Wrap(err, "create command encoder")
	}
	if err := enc.BeginEncoding("capture"); err != nil {
		return nil, errors.Wrap(err, "begin encoding")
	}
	enc.CopyTextureToBuffer(b.tex, staging, []hal.BufferTextureCopy{{
		BufferLayout: hal.ImageDataLayout{Offset: 0, BytesPerRow: pitch, RowsPerImage: h},
		TextureBase:  hal.ImageCopyTexture{Texture: b.tex, MipLevel: 0},
		Size:         hal.Extent3D{Width: w, Height: h, DepthOrArrayLayers: 1},
	}})
	cb, err := enc.EndEncoding()
	if err != nil {
		return nil, errors.Wrap(err, "end encoding")
	}
	defer d.hal.FreeCommandBuffer(cb)

	serial, err := d.submit([]hal.CommandBuffer{cb})
	if err != nil {
		return nil, err
	}
	ok, err := d.hal.Wait(d.submitFence, serial, 5*time.Second)
	if err != nil {
		return nil, d.lose(errors.Wrap(err, "capture wait"))
	}
	if !ok {
		return nil, errors.Wrap(gpucore.ErrWaitTimeout, "capture")
	}
	d.retired(serial)

	raw := make([]byte, uint64(pitch)*uint64(h))
	if err := d.queue.ReadBuffer(staging, 0, raw); err != nil {
		return nil, errors.Wrap(err, "read capture buffer")
	}
	img := image.NewRGBA(image.Rect(0, 0, int(w), int(h)))
	for y := 0; y < int(h); y++ {
		row := raw[y*int(pitch) : y*int(pitch)+int(w)*4]
		copy(img.Pix[y*img.Stride:], row)
	}
	if s.desc.Format == gpucore.FormatBGRA8Unorm {
		for i := 0; i+4 <= len(img.Pix); i += 4 {
			img.Pix[i], img.Pix[i+2] = img.Pix[i+2], img.Pix[i]
		}
	}
	return img, nil
}
