// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package render

import (
	"errors"
	"image/color"
	"testing"
	"time"

	"github.com/gogpu/diabolic/backend/soft"
	"github.com/gogpu/diabolic/gpucore"
)

func newSoftContext(t *testing.T, dev *soft.Device, width, height uint32) *Context {
	t.Helper()
	ctx, err := NewContext(gpucore.SurfaceTarget{Width: width, Height: height}, WithDevice(dev))
	if err != nil {
		t.Fatalf("NewContext: %v", err)
	}
	t.Cleanup(func() {
		if err := ctx.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return ctx
}

func newSoftDevice(t *testing.T, opts ...soft.Option) *soft.Device {
	t.Helper()
	dev, err := soft.New(opts...)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(dev.Destroy)
	return dev
}

type countingPipeline struct {
	updates  int
	records  int
	lastDT   time.Duration
	indices  []int
	fail     error
	lastList gpucore.CommandList
}

func (p *countingPipeline) Name() string { return "counting" }

func (p *countingPipeline) Update(dt time.Duration) {
	p.updates++
	p.lastDT = dt
}

func (p *countingPipeline) Record(fc FrameContext) error {
	p.records++
	p.indices = append(p.indices, fc.BackbufferIndex())
	p.lastList = fc.CommandList()
	if fc.Device() == nil || fc.Descriptors() == nil {
		return errors.New("incomplete frame context")
	}
	return p.fail
}

func TestNewContextWARP(t *testing.T) {
	ctx, err := NewContext(gpucore.SurfaceTarget{Width: 64, Height: 32}, WithWARP())
	if err != nil {
		t.Fatalf("NewContext: %v", err)
	}
	defer ctx.Close()

	info := ctx.Info()
	if info.Backend != soft.BackendName || info.Type != gpucore.AdapterSoftware {
		t.Errorf("Info() = %+v, want the reference device", info)
	}
	if ctx.FrameCount() != FrameCount {
		t.Errorf("FrameCount() = %d, want %d", ctx.FrameCount(), FrameCount)
	}
	if w, h := ctx.Size(); w != 64 || h != 32 {
		t.Errorf("Size() = %dx%d", w, h)
	}
	if ctx.RTV(0) == ctx.RTV(1) {
		t.Error("buffers share a render target view")
	}
	if d := ctx.Depth().Desc(); d.Format != DepthFormat || d.Width != 64 {
		t.Errorf("depth = %+v", d)
	}
	if ctx.Samplers().CurrentIndex() != 1 {
		t.Errorf("sampler heap holds %d samplers, want 1", ctx.Samplers().CurrentIndex())
	}
}

func TestNewContextRejectsEmptySurface(t *testing.T) {
	if _, err := NewContext(gpucore.SurfaceTarget{}, WithWARP()); !errors.Is(err, gpucore.ErrInvalidArgument) {
		t.Errorf("NewContext with empty surface = %v, want ErrInvalidArgument", err)
	}
}

func TestFramePresentsClearColor(t *testing.T) {
	dev := newSoftDevice(t)
	ctx := newSoftContext(t, dev, 8, 8)
	p := &countingPipeline{}
	r := NewRenderer(ctx, p)

	if err := r.Frame(16 * time.Millisecond); err != nil {
		t.Fatalf("Frame: %v", err)
	}
	if err := ctx.Flush(); err != nil {
		t.Fatal(err)
	}

	if p.updates != 1 || p.records != 1 || p.lastDT != 16*time.Millisecond {
		t.Errorf("pipeline updates %d, records %d, dt %v", p.updates, p.records, p.lastDT)
	}
	img := soft.FrontBuffer(ctx.Swapchain())
	want := color.RGBA{255, 182, 193, 255}
	if got := img.RGBAAt(4, 4); got != want {
		t.Errorf("presented pixel = %v, want %v", got, want)
	}
	if err := dev.Err(); err != nil {
		t.Errorf("device removed: %v", err)
	}
}

// With a GPU slower than the CPU the renderer must block so that at most
// FrameCount-1 frames are still executing when Frame returns.
func TestFramePacing(t *testing.T) {
	dev := newSoftDevice(t, soft.WithExecutionDelay(3*time.Millisecond))
	ctx := newSoftContext(t, dev, 4, 4)
	p := &countingPipeline{}
	r := NewRenderer(ctx, p)
	q := ctx.DirectQueue()

	for i := 0; i < 8; i++ {
		if err := r.Frame(time.Millisecond); err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
		behind := q.FenceValue() - q.CompletedValue()
		if q.CompletedValue() > q.FenceValue() {
			behind = 0
		}
		if behind > uint64(ctx.FrameCount()-1) {
			t.Fatalf("frame %d: GPU %d frames behind", i, behind)
		}
	}
	if r.Stats().Frames != 8 {
		t.Errorf("Frames = %d", r.Stats().Frames)
	}
	if r.Stats().BlockedFrames == 0 {
		t.Error("renderer never waited for a slow GPU")
	}
	for i, idx := range p.indices {
		if idx != i%ctx.FrameCount() {
			t.Fatalf("frame %d rendered to buffer %d", i, idx)
		}
	}
	if got := q.Stats().AllocatorsMade; got > ctx.FrameCount()+1 {
		t.Errorf("AllocatorsMade = %d, allocators not recycled", got)
	}
}

func TestFrameRecordErrorAbandonsList(t *testing.T) {
	dev := newSoftDevice(t)
	ctx := newSoftContext(t, dev, 4, 4)
	boom := errors.New("boom")
	r := NewRenderer(ctx, &countingPipeline{fail: boom})

	before := ctx.DirectQueue().FenceValue()
	if err := r.Frame(0); !errors.Is(err, boom) {
		t.Fatalf("Frame = %v, want the pipeline error", err)
	}
	if ctx.DirectQueue().FenceValue() != before {
		t.Error("failed frame was submitted")
	}
	if ctx.Swapchain().CurrentBackBufferIndex() != 0 {
		t.Error("failed frame was presented")
	}
}

func TestResize(t *testing.T) {
	dev := newSoftDevice(t)
	ctx := newSoftContext(t, dev, 8, 8)
	r := NewRenderer(ctx)
	if err := r.Frame(0); err != nil {
		t.Fatal(err)
	}

	if err := r.Resize(20, 10); err != nil {
		t.Fatalf("Resize: %v", err)
	}
	if w, h := ctx.Size(); w != 20 || h != 10 {
		t.Errorf("Size() = %dx%d", w, h)
	}
	if d := ctx.Backbuffer(0).Desc(); d.Width != 20 || d.Height != 10 {
		t.Errorf("backbuffer = %dx%d", d.Width, d.Height)
	}
	if d := ctx.Depth().Desc(); d.Width != 20 || d.Height != 10 {
		t.Errorf("depth = %dx%d", d.Width, d.Height)
	}
	for i := 0; i < ctx.FrameCount(); i++ {
		if r.FrameFence(i) != 0 {
			t.Errorf("fence of buffer %d not reset", i)
		}
	}
	if err := r.Frame(0); err != nil {
		t.Fatalf("Frame after resize: %v", err)
	}
	if err := ctx.Flush(); err != nil {
		t.Fatal(err)
	}
	if img := soft.FrontBuffer(ctx.Swapchain()); img.Rect.Dx() != 20 {
		t.Errorf("front buffer width = %d", img.Rect.Dx())
	}
	if err := ctx.Resize(0, 10); !errors.Is(err, gpucore.ErrInvalidArgument) {
		t.Errorf("Resize(0, 10) = %v", err)
	}
}

func TestUpload(t *testing.T) {
	dev := newSoftDevice(t)
	ctx := newSoftContext(t, dev, 4, 4)

	desc := gpucore.BufferDesc("dst", 8, gpucore.HeapDefault)
	dst, err := dev.CreateCommittedResource(&desc, gpucore.StateCommon, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer dst.Destroy()
	rbDesc := gpucore.BufferDesc("readback", 8, gpucore.HeapReadback)
	rb, _ := dev.CreateCommittedResource(&rbDesc, gpucore.StateCopyDest, nil)
	defer rb.Destroy()

	if err := ctx.Upload(dst, 2, []byte{9, 8, 7}); err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if !ctx.CopyQueue().IsFenceComplete(ctx.CopyQueue().FenceValue()) {
		t.Error("Upload returned before the copy finished")
	}

	list, err := ctx.DirectQueue().AcquireCommandList()
	if err != nil {
		t.Fatal(err)
	}
	list.CopyBufferRegion(rb, 0, dst, 0, 8)
	if _, err := ctx.DirectQueue().Submit(list); err != nil {
		t.Fatal(err)
	}
	if err := ctx.DirectQueue().Flush(); err != nil {
		t.Fatal(err)
	}
	out, _ := rb.Map()
	want := []byte{0, 0, 9, 8, 7, 0, 0, 0}
	for i := range want {
		if out[i] != want[i] {
			t.Fatalf("readback = %v, want %v", out, want)
		}
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	ctx, err := NewContext(gpucore.SurfaceTarget{Width: 4, Height: 4}, WithWARP())
	if err != nil {
		t.Fatal(err)
	}
	if err := ctx.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := ctx.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

var errInjected = errors.New("injected failure")

// faultyDevice fails selected creation calls of a reference device.
type faultyDevice struct {
	*soft.Device
	failSwapchain bool
	failResources bool
}

func (d *faultyDevice) CreateSwapchain(q gpucore.Queue, target gpucore.SurfaceTarget, desc *gpucore.SwapchainDesc) (gpucore.Swapchain, error) {
	if d.failSwapchain {
		return nil, errInjected
	}
	return d.Device.CreateSwapchain(q, target, desc)
}

func (d *faultyDevice) CreateCommittedResource(desc *gpucore.ResourceDesc, initial gpucore.ResourceState, clear *gpucore.ClearValue) (gpucore.Resource, error) {
	if d.failResources {
		return nil, errInjected
	}
	return d.Device.CreateCommittedResource(desc, initial, clear)
}

func TestResizeDepth(t *testing.T) {
	dev := &faultyDevice{Device: newSoftDevice(t)}
	ctx, err := NewContext(gpucore.SurfaceTarget{Width: 8, Height: 6}, WithDevice(dev))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ctx.Close() })
	r := NewRenderer(ctx)

	if err := ctx.ResizeDepth(); err != nil {
		t.Fatalf("ResizeDepth: %v", err)
	}
	if d := ctx.Depth().Desc(); d.Width != 8 || d.Height != 6 {
		t.Errorf("depth = %dx%d, want the surface size", d.Width, d.Height)
	}

	before := ctx.Depth()
	dev.failResources = true
	if err := ctx.ResizeDepth(); !errors.Is(err, errInjected) {
		t.Fatalf("ResizeDepth = %v, want the creation error", err)
	}
	if ctx.Depth() != before {
		t.Error("failed ResizeDepth replaced the depth target")
	}
	dev.failResources = false
	if err := r.Frame(0); err != nil {
		t.Fatalf("Frame after failed ResizeDepth: %v", err)
	}
}

// A NewContext that fails after creating its queues must not wait on a
// GPU that never runs.
func TestNewContextFailureDoesNotFlush(t *testing.T) {
	dev := &faultyDevice{Device: newSoftDevice(t, soft.WithManualExecution()), failSwapchain: true}
	done := make(chan error, 1)
	go func() {
		_, err := NewContext(gpucore.SurfaceTarget{Width: 4, Height: 4}, WithDevice(dev))
		done <- err
	}()
	select {
	case err := <-done:
		if !errors.Is(err, errInjected) {
			t.Errorf("NewContext = %v, want the swapchain error", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("NewContext blocked after a failed swapchain creation")
	}
}
