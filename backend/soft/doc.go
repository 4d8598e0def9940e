// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package soft implements the reference device: a pure Go gpucore.Device
// that executes command lists on CPU memory.
//
// The reference device is the fallback used when no hardware adapter meets
// the minimum feature level, and the device GPU-less tests run against.
// It keeps the asynchronous contract of real hardware: every queue has a
// timeline goroutine that executes submitted lists in order and advances
// fences afterwards, so CPU and "GPU" work overlap exactly as they would on
// a discrete GPU.
//
// # Execution
//
// Clears, copies and draws are executed. Draws use fixed-function shading:
// shader bytecode is accepted but not run; vertices are read from the
// POSITION attribute (clip-space xy or xyz) and shaded with the
// interpolated COLOR attribute.
//
// The device enforces the rules the synchronization layer depends on:
//   - a command allocator cannot be reset while lists recorded into it are
//     still executing ([gpucore.ErrAllocatorInUse])
//   - barriers must name the state the resource is actually in
//   - presented buffers must be in [gpucore.StatePresent]
//
// A violation found on the timeline removes the device: fences report
// their maximum value, waits return [gpucore.ErrDeviceLost] and [Device.Err]
// reports the cause.
//
// # Manual Execution
//
// With [WithManualExecution] no timeline goroutine runs. Work stays queued
// until the test retires it with [Queue.Step] or [Queue.Retire], which makes
// fence completion fully controllable:
//
//	dev, _ := soft.New(soft.WithManualExecution())
//	q := queue.New(dev, gpucore.CommandListDirect)
//	v, _ := q.Submit(list)
//	q.IsFenceComplete(v)            // false
//	soft.QueueOf(q.Native()).Step() // execute the list and signal v
//	q.IsFenceComplete(v)            // true
package soft
