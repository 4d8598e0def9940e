// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package diabolic is a small real-time renderer built on an explicit,
// fence-synchronized GPU command API.
//
// # Overview
//
// diabolic owns the GPU device, its command queues, the frame
// synchronization primitives and the descriptor heaps that every draw-call
// pipeline depends on. Draw-call pipelines, shader compilation and window
// handling are collaborators: they consume the interfaces exposed here.
//
// # Architecture
//
// The module is organized leaf-first:
//   - gpucore: backend-agnostic device interfaces, enums and errors
//   - queue: fence-tracked command queue that recycles allocators and lists
//   - descriptor: fixed-capacity descriptor heap with bump allocation
//   - backend/native: hardware device over gogpu/wgpu HAL
//   - backend/soft: reference device used as fallback and in tests
//   - render: device/swapchain bootstrap and the frame orchestrator
//   - shader: explicitly initialized WGSL to SPIR-V compiler
//
// # Quick Start
//
//	ctx, err := render.NewContext(render.WithSize(1280, 720))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer ctx.Close()
//
//	r := render.NewRenderer(ctx, triangle.New())
//	for running {
//	    if err := r.Frame(dt); err != nil {
//	        log.Fatal(err)
//	    }
//	}
//
// # Logging
//
// The library is silent by default. Call [SetLogger] to route diagnostics
// to a [log/slog] logger.
package diabolic
