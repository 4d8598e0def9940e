// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package render

import (
	"github.com/cockroachdb/errors"

	"github.com/gogpu/diabolic"
	"github.com/gogpu/diabolic/backend/soft"
	"github.com/gogpu/diabolic/descriptor"
	"github.com/gogpu/diabolic/gpucore"
	"github.com/gogpu/diabolic/queue"
)

// Context owns the device and everything created at startup: the direct
// and copy queues, the swapchain, the descriptor heaps, the render target
// views and the depth target. It is the single owner of these objects and
// destroys them in Close.
type Context struct {
	backend    gpucore.Backend
	device     gpucore.Device
	ownsDevice bool
	info       gpucore.AdapterInfo

	direct *queue.Queue
	upload *queue.Queue

	swapchain   gpucore.Swapchain
	backbuffers []gpucore.Resource
	rtvs        []descriptor.Handle
	depth       gpucore.Resource
	dsv         descriptor.Handle

	rtvHeap     *descriptor.Heap
	dsvHeap     *descriptor.Heap
	srvHeap     *descriptor.Heap
	samplerHeap *descriptor.Heap

	width, height uint32
	clearColor    [4]float32
	syncInterval  int
	closed        bool
}

// NewContext selects a device and creates the swapchain for target, with
// one render target view per buffer and a depth target.
//
// Hardware adapters below the minimum feature level are skipped. If none
// qualifies the reference device is used.
func NewContext(target gpucore.SurfaceTarget, opts ...Option) (*Context, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if target.Width == 0 || target.Height == 0 {
		return nil, errors.Wrapf(gpucore.ErrInvalidArgument, "surface size %dx%d", target.Width, target.Height)
	}

	c := &Context{
		width:        target.Width,
		height:       target.Height,
		clearColor:   o.clearColor,
		syncInterval: o.syncInterval,
	}
	if err := c.init(target, &o); err != nil {
		c.release()
		return nil, err
	}
	return c, nil
}

func (c *Context) init(target gpucore.SurfaceTarget, o *options) error {
	if o.device != nil {
		c.device = o.device
	} else {
		backend, device, err := selectDevice(o)
		if err != nil {
			return err
		}
		c.backend, c.device, c.ownsDevice = backend, device, true
	}
	c.info = c.device.Info()
	diabolic.Logger().Info("render: device selected",
		"adapter", c.info.Name,
		"backend", c.info.Backend,
		"type", c.info.Type.String(),
		"featureLevel", c.info.FeatureLevel.String(),
		"shaderModel", c.info.ShaderModel.String())

	var err error
	if c.direct, err = queue.New(c.device, gpucore.CommandListDirect, queue.WithLabel("direct")); err != nil {
		return err
	}
	if c.upload, err = queue.New(c.device, gpucore.CommandListCopy, queue.WithLabel("copy")); err != nil {
		return err
	}

	if c.rtvHeap, err = descriptor.New(c.device, gpucore.HeapTypeRTV, uint32(o.frameCount), descriptor.WithLabel("rtv")); err != nil {
		return err
	}
	if c.dsvHeap, err = descriptor.New(c.device, gpucore.HeapTypeDSV, 1, descriptor.WithLabel("dsv")); err != nil {
		return err
	}
	if c.srvHeap, err = descriptor.New(c.device, gpucore.HeapTypeCBVSRVUAV, o.srvCapacity, descriptor.WithLabel("bindless")); err != nil {
		return err
	}
	if c.samplerHeap, err = descriptor.New(c.device, gpucore.HeapTypeSampler, SamplerHeapCapacity, descriptor.WithLabel("samplers")); err != nil {
		return err
	}
	if _, err = c.samplerHeap.CreateSampler(&gpucore.SamplerDesc{
		Filter:   gpucore.FilterLinear,
		AddressU: gpucore.AddressWrap,
		AddressV: gpucore.AddressWrap,
		AddressW: gpucore.AddressWrap,
	}); err != nil {
		return err
	}

	c.swapchain, err = c.device.CreateSwapchain(c.direct.Native(), target, &gpucore.SwapchainDesc{
		Label:       "swapchain",
		Width:       c.width,
		Height:      c.height,
		Format:      BackbufferFormat,
		BufferCount: o.frameCount,
	})
	if err != nil {
		return errors.Wrap(err, "create swapchain")
	}
	for i := 0; i < o.frameCount; i++ {
		buf, err := c.swapchain.Buffer(i)
		if err != nil {
			return err
		}
		idx, err := c.rtvHeap.CreateRTV(buf, &gpucore.RenderTargetViewDesc{Format: BackbufferFormat})
		if err != nil {
			return errors.Wrapf(err, "render target view of buffer %d", i)
		}
		c.backbuffers = append(c.backbuffers, buf)
		c.rtvs = append(c.rtvs, c.rtvHeap.HandleAtIndex(idx))
	}

	if err := c.createDepth(c.width, c.height); err != nil {
		return err
	}
	idx, err := c.dsvHeap.CreateDSV(c.depth, &gpucore.DepthStencilViewDesc{Format: DepthFormat})
	if err != nil {
		return errors.Wrap(err, "depth stencil view")
	}
	c.dsv = c.dsvHeap.HandleAtIndex(idx)

	diabolic.Logger().Info("render: swapchain created",
		"width", c.width, "height", c.height, "buffers", o.frameCount, "format", BackbufferFormat.String())
	return nil
}

// selectDevice opens the first hardware adapter meeting the minimum
// feature level, falling back to the reference device.
func selectDevice(o *options) (gpucore.Backend, gpucore.Device, error) {
	if !o.warp {
		names := gpucore.Backends()
		if o.backend != "" {
			names = []string{o.backend}
		}
		for _, name := range names {
			if name == soft.BackendName && o.backend == "" {
				continue
			}
			backend, device, err := openHardware(name, o.minLevel)
			if err != nil {
				diabolic.Logger().Warn("render: backend unusable", "backend", name, "err", err)
				continue
			}
			if device != nil {
				return backend, device, nil
			}
		}
		diabolic.Logger().Warn("render: no hardware adapter qualifies, using the reference device",
			"minFeatureLevel", o.minLevel.String())
	}

	backend := soft.NewBackend()
	adapters, err := backend.EnumerateAdapters()
	if err != nil || len(adapters) == 0 {
		return nil, nil, errors.Wrap(gpucore.ErrNoAdapter, "reference device")
	}
	device, err := backend.CreateDevice(adapters[0], 0)
	if err != nil {
		return nil, nil, errors.Wrap(err, "create reference device")
	}
	return backend, device, nil
}

// openHardware returns a device on the first adapter of the named backend
// that is not a software adapter and meets minLevel. It returns a nil
// device when no adapter qualifies.
func openHardware(name string, minLevel gpucore.FeatureLevel) (gpucore.Backend, gpucore.Device, error) {
	backend, err := gpucore.OpenBackend(name)
	if err != nil {
		return nil, nil, err
	}
	adapters, err := backend.EnumerateAdapters()
	if err != nil {
		backend.Destroy()
		return nil, nil, errors.Wrapf(err, "enumerate %s adapters", name)
	}
	for _, a := range adapters {
		info := a.Info()
		if info.Type == gpucore.AdapterSoftware && name != soft.BackendName {
			continue
		}
		if info.FeatureLevel < minLevel {
			diabolic.Logger().Debug("render: adapter below minimum feature level",
				"adapter", info.Name, "featureLevel", info.FeatureLevel.String())
			continue
		}
		device, err := backend.CreateDevice(a, minLevel)
		if err != nil {
			diabolic.Logger().Debug("render: adapter failed to open", "adapter", info.Name, "err", err)
			continue
		}
		return backend, device, nil
	}
	backend.Destroy()
	return nil, nil, nil
}

func (c *Context) createDepth(width, height uint32) error {
	desc := gpucore.Texture2DDesc("depth", width, height, DepthFormat, gpucore.ResourceFlagAllowDepthStencil)
	depth, err := c.device.CreateCommittedResource(&desc, gpucore.StateDepthWrite, &gpucore.ClearValue{
		Format: DepthFormat,
		Depth:  1,
	})
	if err != nil {
		return errors.Wrap(err, "create depth target")
	}
	c.depth = depth
	return nil
}

// Device returns the device.
func (c *Context) Device() gpucore.Device { return c.device }

// Info returns the selected adapter.
func (c *Context) Info() gpucore.AdapterInfo { return c.info }

// DirectQueue returns the queue frames are rendered on.
func (c *Context) DirectQueue() *queue.Queue { return c.direct }

// CopyQueue returns the queue uploads run on.
func (c *Context) CopyQueue() *queue.Queue { return c.upload }

// Swapchain returns the swapchain.
func (c *Context) Swapchain() gpucore.Swapchain { return c.swapchain }

// FrameCount returns the number of swapchain buffers.
func (c *Context) FrameCount() int { return len(c.backbuffers) }

// Backbuffer returns swapchain buffer i.
func (c *Context) Backbuffer(i int) gpucore.Resource { return c.backbuffers[i] }

// RTV returns the render target view of buffer i.
func (c *Context) RTV(i int) descriptor.Handle { return c.rtvs[i] }

// Depth returns the depth target.
func (c *Context) Depth() gpucore.Resource { return c.depth }

// DSV returns the depth stencil view.
func (c *Context) DSV() descriptor.Handle { return c.dsv }

// Descriptors returns the bindless CBV/SRV/UAV heap.
func (c *Context) Descriptors() *descriptor.Heap { return c.srvHeap }

// Samplers returns the sampler heap. Slot 0 holds a linear wrap sampler.
func (c *Context) Samplers() *descriptor.Heap { return c.samplerHeap }

// Heaps returns every descriptor heap, for statistics.
func (c *Context) Heaps() []*descriptor.Heap {
	return []*descriptor.Heap{c.rtvHeap, c.dsvHeap, c.srvHeap, c.samplerHeap}
}

// Size returns the backbuffer size.
func (c *Context) Size() (width, height uint32) { return c.width, c.height }

// ClearColor returns the backbuffer clear color.
func (c *Context) ClearColor() [4]float32 { return c.clearColor }

// Viewport returns a viewport covering the backbuffer.
func (c *Context) Viewport() gpucore.Viewport {
	return gpucore.Viewport{Width: float32(c.width), Height: float32(c.height), MaxDepth: 1}
}

// ScissorRect returns a scissor rectangle covering the backbuffer.
func (c *Context) ScissorRect() gpucore.Rect {
	return gpucore.Rect{Right: int32(c.width), Bottom: int32(c.height)}
}

// Upload copies data into dst at offset through the copy queue and waits
// for the copy to finish. dst must be a default heap buffer in the common
// state; it is left in the common state.
func (c *Context) Upload(dst gpucore.Resource, offset uint64, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	desc := gpucore.BufferDesc("staging", uint64(len(data)), gpucore.HeapUpload)
	staging, err := c.device.CreateCommittedResource(&desc, gpucore.StateGenericRead, nil)
	if err != nil {
		return errors.Wrap(err, "create staging buffer")
	}
	defer staging.Destroy()

	mem, err := staging.Map()
	if err != nil {
		return errors.Wrap(err, "map staging buffer")
	}
	copy(mem, data)
	staging.Unmap()

	list, err := c.upload.AcquireCommandList()
	if err != nil {
		return err
	}
	list.CopyBufferRegion(dst, offset, staging, 0, uint64(len(data)))
	v, err := c.upload.Submit(list)
	if err != nil {
		return errors.Wrapf(err, "upload %d bytes", len(data))
	}
	return c.upload.WaitForFence(v, queue.Infinite)
}

// ResizeDepth flushes the direct queue and recreates the depth target at
// the current surface size, rewriting the depth stencil view in place.
func (c *Context) ResizeDepth() error {
	if err := c.direct.Flush(); err != nil {
		return err
	}
	return c.resizeDepth(c.width, c.height)
}

// resizeDepth swaps in a new depth target. On failure the old target and
// its view stay in place.
func (c *Context) resizeDepth(width, height uint32) error {
	old := c.depth
	if err := c.createDepth(width, height); err != nil {
		return err
	}
	if err := c.device.CreateDepthStencilView(c.depth, &gpucore.DepthStencilViewDesc{Format: DepthFormat}, c.dsv.CPU); err != nil {
		c.depth.Destroy()
		c.depth = old
		return errors.Wrap(err, "depth stencil view")
	}
	if old != nil {
		old.Destroy()
	}
	return nil
}

// Resize flushes both queues, resizes the swapchain buffers and the depth
// target and rewrites their views in place.
func (c *Context) Resize(width, height uint32) error {
	if width == 0 || height == 0 {
		return errors.Wrapf(gpucore.ErrInvalidArgument, "resize to %dx%d", width, height)
	}
	if err := c.Flush(); err != nil {
		return err
	}
	if err := c.swapchain.ResizeBuffers(width, height); err != nil {
		return errors.Wrap(err, "resize swapchain")
	}
	c.width, c.height = width, height
	for i := range c.backbuffers {
		buf, err := c.swapchain.Buffer(i)
		if err != nil {
			return err
		}
		c.backbuffers[i] = buf
		if err := c.device.CreateRenderTargetView(buf, &gpucore.RenderTargetViewDesc{Format: BackbufferFormat}, c.rtvs[i].CPU); err != nil {
			return errors.Wrapf(err, "render target view of buffer %d", i)
		}
	}
	if err := c.resizeDepth(width, height); err != nil {
		return err
	}
	diabolic.Logger().Info("render: resized", "width", width, "height", height)
	return nil
}

// Flush waits until the copy and direct queues are idle.
func (c *Context) Flush() error {
	if err := c.upload.Flush(); err != nil {
		return err
	}
	return c.direct.Flush()
}

// Close flushes both queues and destroys everything the context created.
// The device is destroyed only if the context selected it.
func (c *Context) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	var err error
	if c.upload != nil {
		err = errors.CombineErrors(err, c.upload.Close())
	}
	if c.direct != nil {
		err = errors.CombineErrors(err, c.direct.Close())
	}
	c.release()
	if err != nil {
		diabolic.Logger().Warn("render: close", "err", err)
	}
	return err
}

// release destroys the objects in reverse creation order. Queues must be
// closed or never used.
func (c *Context) release() {
	if c.depth != nil {
		c.depth.Destroy()
		c.depth = nil
	}
	if c.swapchain != nil {
		c.swapchain.Destroy()
		c.swapchain = nil
	}
	for _, h := range []*descriptor.Heap{c.samplerHeap, c.srvHeap, c.dsvHeap, c.rtvHeap} {
		if h != nil {
			h.Destroy()
		}
	}
	// Close already flushed and closed the queues; on a failed NewContext
	// they never submitted anything.
	if c.upload != nil {
		c.upload.Destroy()
	}
	if c.direct != nil {
		c.direct.Destroy()
	}
	if c.ownsDevice && c.device != nil {
		c.device.Destroy()
	}
	if c.backend != nil {
		c.backend.Destroy()
	}
	c.device, c.backend = nil, nil
}
