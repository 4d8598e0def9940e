// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build !nogpu

// Package native implements gpucore over the gogpu/wgpu HAL.
//
// The HAL exposes a single queue per device and WebGPU-style render passes,
// so the explicit model is emulated on top of it:
//
//   - Command lists record into a buffer and are encoded into HAL command
//     buffers when executed. Every direct or copy queue created on a device
//     shares the HAL queue, which keeps submission order across them.
//   - Fences are HAL fences signaled by empty submissions. Allocators own
//     the command buffers encoded from their lists and refuse Reset until a
//     device-internal submission fence shows the GPU is done with them.
//   - Clears are folded into the load operation of the next render pass on
//     the same view, or into an empty pass when none follows.
//   - Descriptor heaps are CPU tables of views with the same handle
//     arithmetic as every other backend.
//   - Swapchains are offscreen. The last presented buffer can be read back
//     through gpucore.FrameCapturer.
//
// Build with the nogpu tag to leave the package out.
package native
