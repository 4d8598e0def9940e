// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package soft

import (
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/gogpu/diabolic/gpucore"
)

func newManualDevice(t *testing.T) *Device {
	t.Helper()
	d, err := New(WithManualExecution())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(d.Destroy)
	return d
}

func mustQueue(t *testing.T, d *Device, typ gpucore.CommandListType) *Queue {
	t.Helper()
	q, err := d.CreateCommandQueue(typ)
	if err != nil {
		t.Fatalf("CreateCommandQueue: %v", err)
	}
	return q.(*Queue)
}

func mustList(t *testing.T, d *Device, typ gpucore.CommandListType) (gpucore.CommandAllocator, gpucore.CommandList) {
	t.Helper()
	a, err := d.CreateCommandAllocator(typ)
	if err != nil {
		t.Fatalf("CreateCommandAllocator: %v", err)
	}
	l, err := d.CreateCommandList(typ, a)
	if err != nil {
		t.Fatalf("CreateCommandList: %v", err)
	}
	return a, l
}

func TestFenceSignalAndPoll(t *testing.T) {
	d := newManualDevice(t)
	f, err := d.CreateFence(0)
	if err != nil {
		t.Fatal(err)
	}
	sf := f.(*Fence)

	if ok, err := f.Wait(1, 0); ok || err != nil {
		t.Errorf("Wait(1, 0) = %v, %v; want false, nil", ok, err)
	}
	sf.Signal(3)
	sf.Signal(2) // ignored
	if got := f.CompletedValue(); got != 3 {
		t.Errorf("CompletedValue() = %d, want 3", got)
	}
	if ok, err := f.Wait(2, 0); !ok || err != nil {
		t.Errorf("Wait(2, 0) = %v, %v; want true, nil", ok, err)
	}
}

func TestFenceWaitTimeout(t *testing.T) {
	d := newManualDevice(t)
	f, _ := d.CreateFence(0)

	start := time.Now()
	ok, err := f.Wait(1, 20*time.Millisecond)
	if ok || err != nil {
		t.Errorf("Wait = %v, %v; want false, nil", ok, err)
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Errorf("Wait returned after %v, before the timeout", elapsed)
	}
	if n := len(f.(*Fence).waiters); n != 0 {
		t.Errorf("%d waiters left after timeout", n)
	}
}

func TestFenceWaitInfinite(t *testing.T) {
	d := newManualDevice(t)
	f, _ := d.CreateFence(0)

	var wg sync.WaitGroup
	wg.Add(1)
	var ok bool
	var err error
	go func() {
		defer wg.Done()
		ok, err = f.Wait(5, gpucore.Infinite)
	}()
	time.Sleep(5 * time.Millisecond)
	f.(*Fence).Signal(5)
	wg.Wait()
	if !ok || err != nil {
		t.Errorf("Wait = %v, %v; want true, nil", ok, err)
	}
}

func TestFenceDestroyReleasesWaiters(t *testing.T) {
	d := newManualDevice(t)
	f, _ := d.CreateFence(0)

	done := make(chan error, 1)
	go func() {
		_, err := f.Wait(1, gpucore.Infinite)
		done <- err
	}()
	time.Sleep(5 * time.Millisecond)
	f.Destroy()
	select {
	case err := <-done:
		if !errors.Is(err, gpucore.ErrClosed) {
			t.Errorf("Wait after Destroy = %v, want ErrClosed", err)
		}
	case <-time.After(time.Second):
		t.Fatal("waiter not released by Destroy")
	}
}

func TestQueueExecutesInOrder(t *testing.T) {
	d := newManualDevice(t)
	q := mustQueue(t, d, gpucore.CommandListDirect)
	f, _ := d.CreateFence(0)

	for v := uint64(1); v <= 3; v++ {
		_, l := mustList(t, d, gpucore.CommandListDirect)
		if err := l.Close(); err != nil {
			t.Fatal(err)
		}
		if err := q.ExecuteCommandLists(l); err != nil {
			t.Fatal(err)
		}
		if err := q.Signal(f, v); err != nil {
			t.Fatal(err)
		}
	}
	if got := q.Pending(); got != 6 {
		t.Fatalf("Pending() = %d, want 6", got)
	}
	for want := uint64(1); want <= 3; want++ {
		if !q.Step() {
			t.Fatalf("Step %d found no signal", want)
		}
		if got := f.CompletedValue(); got != want {
			t.Errorf("after step %d CompletedValue() = %d", want, got)
		}
	}
	if q.Step() {
		t.Error("Step on an empty queue reported a signal")
	}
	if got := d.Stats().Batches.Load(); got != 3 {
		t.Errorf("Batches = %d, want 3", got)
	}
}

func TestQueueTimelineGoroutine(t *testing.T) {
	d, err := New(WithExecutionDelay(2 * time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}
	defer d.Destroy()
	q, _ := d.CreateCommandQueue(gpucore.CommandListDirect)
	f, _ := d.CreateFence(0)

	_, l := mustList(t, d, gpucore.CommandListDirect)
	_ = l.Close()
	if err := q.ExecuteCommandLists(l); err != nil {
		t.Fatal(err)
	}
	if err := q.Signal(f, 1); err != nil {
		t.Fatal(err)
	}
	ok, err := f.Wait(1, time.Second)
	if !ok || err != nil {
		t.Fatalf("Wait = %v, %v", ok, err)
	}
}

func TestAllocatorResetWhileExecuting(t *testing.T) {
	d := newManualDevice(t)
	q := mustQueue(t, d, gpucore.CommandListDirect)
	f, _ := d.CreateFence(0)
	a, l := mustList(t, d, gpucore.CommandListDirect)

	if err := a.Reset(); !errors.Is(err, gpucore.ErrAllocatorInUse) {
		t.Errorf("Reset while recording = %v, want ErrAllocatorInUse", err)
	}
	_ = l.Close()
	if err := q.ExecuteCommandLists(l); err != nil {
		t.Fatal(err)
	}
	_ = q.Signal(f, 1)

	if err := a.Reset(); !errors.Is(err, gpucore.ErrAllocatorInUse) {
		t.Errorf("Reset while executing = %v, want ErrAllocatorInUse", err)
	}
	if got := AllocatorExecuting(a); got != 1 {
		t.Errorf("AllocatorExecuting = %d, want 1", got)
	}

	// The list itself may be reset right away, into another allocator.
	other, _ := d.CreateCommandAllocator(gpucore.CommandListDirect)
	if err := l.Reset(other); err != nil {
		t.Errorf("list Reset after submit: %v", err)
	}

	q.Step()
	if err := a.Reset(); err != nil {
		t.Errorf("Reset after completion: %v", err)
	}
}

func TestListTypeRules(t *testing.T) {
	d := newManualDevice(t)
	copyQ := mustQueue(t, d, gpucore.CommandListCopy)

	_, direct := mustList(t, d, gpucore.CommandListDirect)
	_ = direct.Close()
	if err := copyQ.ExecuteCommandLists(direct); !errors.Is(err, gpucore.ErrTypeMismatch) {
		t.Errorf("direct list on copy queue = %v, want ErrTypeMismatch", err)
	}

	_, cl := mustList(t, d, gpucore.CommandListCopy)
	cl.DrawInstanced(3, 1, 0, 0)
	if err := cl.Close(); !errors.Is(err, gpucore.ErrTypeMismatch) {
		t.Errorf("draw in copy list: Close = %v, want ErrTypeMismatch", err)
	}

	if err := cl.Close(); !errors.Is(err, gpucore.ErrInvalidState) {
		t.Errorf("double Close = %v, want ErrInvalidState", err)
	}
}

func TestBarrierMismatchLosesDevice(t *testing.T) {
	d := newManualDevice(t)
	q := mustQueue(t, d, gpucore.CommandListDirect)
	f, _ := d.CreateFence(0)

	desc := gpucore.Texture2DDesc("rt", 4, 4, gpucore.FormatRGBA8Unorm, gpucore.ResourceFlagAllowRenderTarget)
	tex, err := d.CreateCommittedResource(&desc, gpucore.StateCommon, nil)
	if err != nil {
		t.Fatal(err)
	}
	_, l := mustList(t, d, gpucore.CommandListDirect)
	l.ResourceBarrier(gpucore.TransitionBarrier(tex, gpucore.StateRenderTarget, gpucore.StateCommon))
	_ = l.Close()
	_ = q.ExecuteCommandLists(l)
	_ = q.Signal(f, 1)

	done := make(chan error, 1)
	go func() {
		_, err := f.Wait(2, gpucore.Infinite)
		done <- err
	}()
	time.Sleep(5 * time.Millisecond)
	q.Drain()

	if !errors.Is(d.Err(), gpucore.ErrDeviceLost) {
		t.Fatalf("Err() = %v, want ErrDeviceLost", d.Err())
	}
	if got := f.CompletedValue(); got != math.MaxUint64 {
		t.Errorf("CompletedValue() after removal = %d", got)
	}
	select {
	case err := <-done:
		if !errors.Is(err, gpucore.ErrDeviceLost) {
			t.Errorf("blocked Wait = %v, want ErrDeviceLost", err)
		}
	case <-time.After(time.Second):
		t.Fatal("blocked Wait not released by device removal")
	}
	if err := q.ExecuteCommandLists(l); !errors.Is(err, gpucore.ErrDeviceLost) {
		t.Errorf("ExecuteCommandLists after removal = %v", err)
	}
}

func TestCopyBufferRegion(t *testing.T) {
	d := newManualDevice(t)
	q := mustQueue(t, d, gpucore.CommandListCopy)
	f, _ := d.CreateFence(0)

	upDesc := gpucore.BufferDesc("upload", 16, gpucore.HeapUpload)
	up, _ := d.CreateCommittedResource(&upDesc, gpucore.StateGenericRead, nil)
	dstDesc := gpucore.BufferDesc("dst", 16, gpucore.HeapDefault)
	dst, _ := d.CreateCommittedResource(&dstDesc, gpucore.StateCommon, nil)
	rbDesc := gpucore.BufferDesc("readback", 16, gpucore.HeapReadback)
	rb, _ := d.CreateCommittedResource(&rbDesc, gpucore.StateCopyDest, nil)

	mem, err := up.Map()
	if err != nil {
		t.Fatal(err)
	}
	for i := range mem {
		mem[i] = byte(i + 1)
	}
	up.Unmap()

	_, l := mustList(t, d, gpucore.CommandListCopy)
	l.CopyBufferRegion(dst, 0, up, 0, 16)
	l.ResourceBarrier(gpucore.TransitionBarrier(dst, gpucore.StateCommon, gpucore.StateCopySource))
	l.CopyBufferRegion(rb, 4, dst, 0, 8)
	if err := l.Close(); err != nil {
		t.Fatal(err)
	}
	_ = q.ExecuteCommandLists(l)
	_ = q.Signal(f, 1)
	q.Drain()

	if err := d.Err(); err != nil {
		t.Fatalf("device removed: %v", err)
	}
	out, _ := rb.Map()
	want := []byte{0, 0, 0, 0, 1, 2, 3, 4, 5, 6, 7, 8, 0, 0, 0, 0}
	for i := range want {
		if out[i] != want[i] {
			t.Fatalf("readback = %v, want %v", out, want)
		}
	}
	if _, err := dst.Map(); !errors.Is(err, gpucore.ErrInvalidState) {
		t.Errorf("Map of default heap buffer = %v, want ErrInvalidState", err)
	}
}

func TestBackendFeatureLevel(t *testing.T) {
	b := NewBackend(WithFeatureLevel(gpucore.FeatureLevel11_0))
	adapters, err := b.EnumerateAdapters()
	if err != nil || len(adapters) != 1 {
		t.Fatalf("EnumerateAdapters = %v, %v", adapters, err)
	}
	if got := adapters[0].Info().Type; got != gpucore.AdapterSoftware {
		t.Errorf("adapter type = %s", got)
	}
	if _, err := b.CreateDevice(adapters[0], gpucore.FeatureLevel12_0); !errors.Is(err, gpucore.ErrFeatureLevel) {
		t.Errorf("CreateDevice above level = %v, want ErrFeatureLevel", err)
	}
	dev, err := b.CreateDevice(adapters[0], gpucore.FeatureLevel11_0)
	if err != nil {
		t.Fatal(err)
	}
	dev.Destroy()
}

func TestBackendRegistered(t *testing.T) {
	b, err := gpucore.OpenBackend(BackendName)
	if err != nil {
		t.Fatalf("OpenBackend(%q): %v", BackendName, err)
	}
	if b.Name() != BackendName {
		t.Errorf("Name() = %q", b.Name())
	}
}
