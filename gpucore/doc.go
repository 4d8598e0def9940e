// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package gpucore defines the explicit GPU API the renderer is written
// against: devices, queues, fences, command allocators and lists,
// descriptor heaps, resources and swapchains.
//
// # Architecture
//
// The queue and descriptor layers and the frame orchestrator only see the
// interfaces declared here. Backends implement them:
//
//	        +----------------------------+
//	        |  queue / descriptor / render |
//	        +--------------+-------------+
//	                       | gpucore.Device
//	         +-------------+-------------+
//	         |                           |
//	+--------v--------+        +--------v--------+
//	| backend/native  |        |  backend/soft   |
//	| (wgpu HAL)      |        | (reference)     |
//	+-----------------+        +-----------------+
//
// Backends register in the [Registry] with a priority; the bootstrap picks
// the highest priority backend that yields an adapter meeting the minimum
// feature level, so the reference device is the fallback.
//
// # Synchronization Model
//
// Work submitted to one [Queue] retires in submission order. A [Fence] is a
// monotonic counter: once its completed value reaches v, every submission
// signaled with a value <= v has finished. A [CommandAllocator] may only be
// reset after the GPU finished every list recorded into it; a
// [CommandList] may be reset as soon as it has been submitted.
//
// # Ownership
//
// There is no reference counting. The creator of an object owns it and
// destroys it once the GPU no longer uses it. Swapchain buffers are owned
// by the swapchain.
package gpucore
