// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package queue

import (
	"encoding/json"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/gogpu/diabolic/backend/soft"
	"github.com/gogpu/diabolic/gpucore"
)

// newManualQueue returns a direct queue whose GPU timeline only advances
// when the test steps it.
func newManualQueue(t *testing.T) (*Queue, *soft.Queue) {
	t.Helper()
	d, err := soft.New(soft.WithManualExecution())
	if err != nil {
		t.Fatalf("soft.New: %v", err)
	}
	t.Cleanup(d.Destroy)
	q, err := New(d, gpucore.CommandListDirect, WithLabel("test"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return q, soft.QueueOf(q.Native())
}

func submitEmpty(t *testing.T, q *Queue) (uint64, *CommandList) {
	t.Helper()
	l, err := q.AcquireCommandList()
	if err != nil {
		t.Fatalf("AcquireCommandList: %v", err)
	}
	v, err := q.Submit(l)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	return v, l
}

func TestFenceValuesMonotonic(t *testing.T) {
	q, gpu := newManualQueue(t)

	var last uint64
	for i := 0; i < 5; i++ {
		v, _ := submitEmpty(t, q)
		if v <= last {
			t.Fatalf("submission %d got fence %d after %d", i, v, last)
		}
		last = v
	}
	if q.FenceValue() != last {
		t.Errorf("FenceValue() = %d, want %d", q.FenceValue(), last)
	}
	gpu.Drain()
	if !q.IsFenceComplete(last) {
		t.Error("last fence not complete after drain")
	}
}

func TestAllocatorNotReusedWhileInFlight(t *testing.T) {
	q, gpu := newManualQueue(t)

	_, first := submitEmpty(t, q)
	second, err := q.AcquireCommandList()
	if err != nil {
		t.Fatal(err)
	}
	if second.Allocator() == first.Allocator() {
		t.Fatal("allocator reused while its list was in flight")
	}
	if got := soft.AllocatorExecuting(first.Allocator()); got != 1 {
		t.Errorf("first allocator executing = %d, want 1", got)
	}
	if _, err := q.Submit(second); err != nil {
		t.Fatal(err)
	}

	gpu.Step()
	third, err := q.AcquireCommandList()
	if err != nil {
		t.Fatal(err)
	}
	if third.Allocator() != first.Allocator() {
		t.Error("completed allocator was not reused")
	}
	if s := q.Stats(); s.AllocatorsMade != 2 || s.AllocatorReuses != 1 {
		t.Errorf("stats = %+v, want 2 made and 1 reuse", s)
	}
}

// Three submissions with the GPU two behind: the queue must hold three
// allocators and recycle the first once its fence completes.
func TestThreeSubmissionsGPUBehind(t *testing.T) {
	q, gpu := newManualQueue(t)

	v1, l1 := submitEmpty(t, q)
	v2, _ := submitEmpty(t, q)
	v3, _ := submitEmpty(t, q)
	if v1 != 1 || v2 != 2 || v3 != 3 {
		t.Fatalf("fence values = %d %d %d", v1, v2, v3)
	}
	if q.InFlight() != 3 || q.Stats().AllocatorsMade != 3 {
		t.Fatalf("in flight %d, made %d", q.InFlight(), q.Stats().AllocatorsMade)
	}

	gpu.Step()
	if q.CompletedValue() != 1 {
		t.Fatalf("CompletedValue() = %d, want 1", q.CompletedValue())
	}
	l4, err := q.AcquireCommandList()
	if err != nil {
		t.Fatal(err)
	}
	if l4.Allocator() != l1.Allocator() {
		t.Error("allocator of fence 1 not reused")
	}
	if q.Stats().AllocatorsMade != 3 {
		t.Errorf("AllocatorsMade = %d, want 3", q.Stats().AllocatorsMade)
	}
}

func TestWaitForFenceTimeout(t *testing.T) {
	q, _ := newManualQueue(t)
	v, _ := submitEmpty(t, q)

	err := q.WaitForFence(v, 10*time.Millisecond)
	if !errors.Is(err, gpucore.ErrWaitTimeout) {
		t.Fatalf("WaitForFence = %v, want ErrWaitTimeout", err)
	}
	if s := q.Stats(); s.Waits != 1 || s.WaitsThatBlocked != 1 {
		t.Errorf("stats = %+v", s)
	}
}

func TestWaitForFenceCompleted(t *testing.T) {
	q, gpu := newManualQueue(t)
	v, _ := submitEmpty(t, q)
	gpu.Drain()

	if err := q.WaitForFence(v, 0); err != nil {
		t.Fatalf("WaitForFence on complete fence: %v", err)
	}
	if q.Stats().WaitsThatBlocked != 0 {
		t.Error("wait on complete fence counted as blocking")
	}
}

func TestFlushCompletesAllWork(t *testing.T) {
	d, err := soft.New(soft.WithExecutionDelay(time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}
	defer d.Destroy()
	q, err := New(d, gpucore.CommandListDirect)
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 4; i++ {
		submitEmpty(t, q)
	}
	if err := q.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if got, want := q.CompletedValue(), q.FenceValue(); got < want {
		t.Errorf("after Flush completed %d < fence value %d", got, want)
	}
	if q.FenceValue() != 5 {
		t.Errorf("FenceValue() = %d, want 5", q.FenceValue())
	}
	if err := q.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestSubmitTwice(t *testing.T) {
	q, _ := newManualQueue(t)
	_, l := submitEmpty(t, q)
	if _, err := q.Submit(l); !errors.Is(err, gpucore.ErrInvalidState) {
		t.Errorf("second Submit = %v, want ErrInvalidState", err)
	}
}

func TestSubmitForeignList(t *testing.T) {
	q1, _ := newManualQueue(t)
	q2, _ := newManualQueue(t)
	l, err := q1.AcquireCommandList()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := q2.Submit(l); !errors.Is(err, gpucore.ErrInvalidArgument) {
		t.Errorf("Submit of foreign list = %v, want ErrInvalidArgument", err)
	}
}

func TestSubmitRecordingError(t *testing.T) {
	q, gpu := newManualQueue(t)
	l, err := q.AcquireCommandList()
	if err != nil {
		t.Fatal(err)
	}
	l.SetPipelineState(nil)
	if _, err := q.Submit(l); !errors.Is(err, gpucore.ErrTypeMismatch) {
		t.Fatalf("Submit = %v, want the recording error", err)
	}
	if q.FenceValue() != 0 {
		t.Errorf("failed submit signaled fence %d", q.FenceValue())
	}
	// The allocator is reusable without any GPU progress.
	next, err := q.AcquireCommandList()
	if err != nil {
		t.Fatal(err)
	}
	if next.Allocator() != l.Allocator() {
		t.Error("allocator of failed submit not recycled")
	}
	if gpu.Pending() != 0 {
		t.Errorf("failed submit queued %d items", gpu.Pending())
	}
}

func TestClose(t *testing.T) {
	d, err := soft.New()
	if err != nil {
		t.Fatal(err)
	}
	defer d.Destroy()
	q, err := New(d, gpucore.CommandListCopy)
	if err != nil {
		t.Fatal(err)
	}
	submitEmpty(t, q)

	if err := q.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := q.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	if _, err := q.AcquireCommandList(); !errors.Is(err, gpucore.ErrClosed) {
		t.Errorf("AcquireCommandList after Close = %v, want ErrClosed", err)
	}
}

func TestStatsJSON(t *testing.T) {
	q, _ := newManualQueue(t)
	submitEmpty(t, q)

	var out []map[string]any
	if err := json.Unmarshal(StatsJSON(q), &out); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(out) != 1 || out[0]["Label"] != "test" {
		t.Fatalf("stats = %v", out)
	}
	counters, ok := out[0]["Counters"].(map[string]any)
	if !ok || counters["Submissions"] != float64(1) {
		t.Errorf("Counters = %v", out[0]["Counters"])
	}
}

func TestAbandon(t *testing.T) {
	q, gpu := newManualQueue(t)
	l, err := q.AcquireCommandList()
	if err != nil {
		t.Fatal(err)
	}
	q.Abandon(l)
	if q.FenceValue() != 0 || gpu.Pending() != 0 {
		t.Errorf("Abandon submitted work: fence %d, pending %d", q.FenceValue(), gpu.Pending())
	}
	if _, err := q.Submit(l); !errors.Is(err, gpucore.ErrInvalidState) {
		t.Errorf("Submit after Abandon = %v, want ErrInvalidState", err)
	}
	next, err := q.AcquireCommandList()
	if err != nil {
		t.Fatal(err)
	}
	if next.Allocator() != l.Allocator() {
		t.Error("allocator of abandoned list not reused")
	}
}

// loseDevice removes d by executing a list whose barrier names the wrong
// before state.
func loseDevice(t *testing.T, d *soft.Device, q *Queue, gpu *soft.Queue) {
	t.Helper()
	desc := gpucore.Texture2DDesc("rt", 4, 4, gpucore.FormatRGBA8Unorm, gpucore.ResourceFlagAllowRenderTarget)
	tex, err := d.CreateCommittedResource(&desc, gpucore.StateCommon, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(tex.Destroy)
	l, err := q.AcquireCommandList()
	if err != nil {
		t.Fatal(err)
	}
	l.ResourceBarrier(gpucore.TransitionBarrier(tex, gpucore.StateRenderTarget, gpucore.StatePresent))
	if _, err := q.Submit(l); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	gpu.Drain()
	if !errors.Is(d.Err(), gpucore.ErrDeviceLost) {
		t.Fatalf("device Err() = %v, want ErrDeviceLost", d.Err())
	}
}

func TestDeviceLossFailsWaits(t *testing.T) {
	d, err := soft.New(soft.WithManualExecution())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(d.Destroy)
	q, err := New(d, gpucore.CommandListDirect)
	if err != nil {
		t.Fatal(err)
	}
	gpu := soft.QueueOf(q.Native())
	loseDevice(t, d, q, gpu)

	if q.IsFenceComplete(999) {
		t.Error("IsFenceComplete(999) = true on a lost device")
	}
	if err := q.WaitForFence(999, Infinite); !errors.Is(err, gpucore.ErrDeviceLost) {
		t.Errorf("WaitForFence(999) = %v, want ErrDeviceLost", err)
	}
	if err := q.Flush(); !errors.Is(err, gpucore.ErrDeviceLost) {
		t.Errorf("Flush = %v, want ErrDeviceLost", err)
	}
}

func TestSubmitOnLostDeviceKeepsPools(t *testing.T) {
	d, err := soft.New(soft.WithManualExecution())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(d.Destroy)
	q, err := New(d, gpucore.CommandListDirect)
	if err != nil {
		t.Fatal(err)
	}
	l, err := q.AcquireCommandList()
	if err != nil {
		t.Fatal(err)
	}
	loseDevice(t, d, q, soft.QueueOf(q.Native()))
	inFlight := q.InFlight()

	if _, err := q.Submit(l); !errors.Is(err, gpucore.ErrDeviceLost) {
		t.Fatalf("Submit = %v, want ErrDeviceLost", err)
	}
	if q.InFlight() != inFlight+1 {
		t.Errorf("InFlight() = %d, want %d: allocator of failed submit dropped", q.InFlight(), inFlight+1)
	}
	if err := q.Close(); !errors.Is(err, gpucore.ErrDeviceLost) {
		t.Errorf("Close = %v, want ErrDeviceLost", err)
	}
	if q.InFlight() != 0 {
		t.Errorf("Close left %d allocators in flight", q.InFlight())
	}
}

// Random interleavings of acquire, submit and GPU progress: no allocator
// is handed out while a list recorded into it is still executing, and
// completed values never decrease.
func TestAllocatorSafetyRandomCompletion(t *testing.T) {
	q, gpu := newManualQueue(t)
	rng := rand.New(rand.NewSource(1))

	var (
		open      []*CommandList
		completed uint64
	)
	for step := 0; step < 500; step++ {
		switch op := rng.Intn(4); {
		case op == 0 && len(open) < 4:
			l, err := q.AcquireCommandList()
			if err != nil {
				t.Fatalf("step %d: AcquireCommandList: %v", step, err)
			}
			if n := soft.AllocatorExecuting(l.Allocator()); n != 0 {
				t.Fatalf("step %d: acquired allocator with %d lists executing", step, n)
			}
			open = append(open, l)
		case op == 1 && len(open) > 0:
			i := rng.Intn(len(open))
			if _, err := q.Submit(open[i]); err != nil {
				t.Fatalf("step %d: Submit: %v", step, err)
			}
			open = append(open[:i], open[i+1:]...)
		default:
			gpu.Step()
		}
		c := q.CompletedValue()
		if c < completed {
			t.Fatalf("step %d: completed value went from %d to %d", step, completed, c)
		}
		completed = c
	}
	gpu.Drain()
	if q.CompletedValue() != q.FenceValue() {
		t.Errorf("after drain completed %d, fence %d", q.CompletedValue(), q.FenceValue())
	}
}
