// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package render bootstraps a device and swapchain and drives frames.
//
// A [Context] selects a device, creates the direct and copy queues, the
// swapchain with one render target view per buffer, the depth target and
// the descriptor heaps. A [Renderer] runs the frame loop over it:
//
//	acquire list -> bind heaps -> backbuffer to render target -> clear
//	-> pipelines record -> backbuffer to present -> submit -> present
//	-> wait until the next backbuffer is free
//
// Pipelines never see the queue. They receive a [FrameContext] holding the
// device, the bindless descriptor heap and the open command list.
//
//	ctx, err := render.NewContext(gpucore.SurfaceTarget{Width: 1280, Height: 720})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer ctx.Close()
//
//	r := render.NewRenderer(ctx, myPipeline)
//	for running {
//	    if err := r.Frame(dt); err != nil {
//	        log.Fatal(err)
//	    }
//	}
package render
