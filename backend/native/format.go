// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build !nogpu

package native

import (
	"github.com/cockroachdb/errors"
	"github.com/gogpu/gputypes"

	"github.com/gogpu/diabolic/gpucore"
)

func toTextureFormat(f gpucore.Format) (gputypes.TextureFormat, error) {
	switch f {
	case gpucore.FormatRGBA8Unorm:
		return gputypes.TextureFormatRGBA8Unorm, nil
	case gpucore.FormatBGRA8Unorm:
		return gputypes.TextureFormatBGRA8Unorm, nil
	case gpucore.FormatR32Float:
		return gputypes.TextureFormatR32Float, nil
	case gpucore.FormatD32Float:
		return gputypes.TextureFormatDepth32Float, nil
	case gpucore.FormatD24UnormS8Uint:
		return gputypes.TextureFormatDepth24PlusStencil8, nil
	}
	return gputypes.TextureFormatUndefined, errors.Wrapf(gpucore.ErrUnsupported, "texture format %s", f)
}

func fromTextureFormat(f gputypes.TextureFormat) gpucore.Format {
	switch f {
	case gputypes.TextureFormatRGBA8Unorm:
		return gpucore.FormatRGBA8Unorm
	case gputypes.TextureFormatBGRA8Unorm:
		return gpucore.FormatBGRA8Unorm
	case gputypes.TextureFormatR32Float:
		return gpucore.FormatR32Float
	case gputypes.TextureFormatDepth32Float:
		return gpucore.FormatD32Float
	case gputypes.TextureFormatDepth24PlusStencil8:
		return gpucore.FormatD24UnormS8Uint
	default:
		return gpucore.FormatUnknown
	}
}

func toVertexFormat(f gpucore.Format) (gputypes.VertexFormat, error) {
	switch f {
	case gpucore.FormatR32Float:
		return gputypes.VertexFormatFloat32, nil
	case gpucore.FormatRG32Float:
		return gputypes.VertexFormatFloat32x2, nil
	case gpucore.FormatRGB32Float:
		return gputypes.VertexFormatFloat32x3, nil
	case gpucore.FormatRGBA32Float:
		return gputypes.VertexFormatFloat32x4, nil
	case gpucore.FormatRGBA8Unorm:
		return gputypes.VertexFormatUnorm8x4, nil
	case gpucore.FormatR32Uint:
		return gputypes.VertexFormatUint32, nil
	}
	return 0, errors.Wrapf(gpucore.ErrUnsupported, "vertex format %s", f)
}

func toIndexFormat(f gpucore.Format) gputypes.IndexFormat {
	if f == gpucore.FormatR32Uint {
		return gputypes.IndexFormatUint32
	}
	return gputypes.IndexFormatUint16
}

func toTopology(t gpucore.PrimitiveTopology) gputypes.PrimitiveTopology {
	switch t {
	case gpucore.TopologyTriangleStrip:
		return gputypes.PrimitiveTopologyTriangleStrip
	case gpucore.TopologyLineList:
		return gputypes.PrimitiveTopologyLineList
	case gpucore.TopologyPointList:
		return gputypes.PrimitiveTopologyPointList
	default:
		return gputypes.PrimitiveTopologyTriangleList
	}
}

func bufferUsage(heap gpucore.HeapKind) gputypes.BufferUsage {
	switch heap {
	case gpucore.HeapUpload:
		return gputypes.BufferUsageCopySrc | gputypes.BufferUsageCopyDst |
			gputypes.BufferUsageVertex | gputypes.BufferUsageIndex | gputypes.BufferUsageUniform
	case gpucore.HeapReadback:
		return gputypes.BufferUsageCopyDst | gputypes.BufferUsageMapRead
	default:
		return gputypes.BufferUsageCopySrc | gputypes.BufferUsageCopyDst |
			gputypes.BufferUsageVertex | gputypes.BufferUsageIndex |
			gputypes.BufferUsageUniform | gputypes.BufferUsageStorage
	}
}

func textureUsage(flags gpucore.ResourceFlags) gputypes.TextureUsage {
	u := gputypes.TextureUsageCopySrc | gputypes.TextureUsageCopyDst
	if flags&(gpucore.ResourceFlagAllowRenderTarget|gpucore.ResourceFlagAllowDepthStencil) != 0 {
		u |= gputypes.TextureUsageRenderAttachment
	}
	if flags&gpucore.ResourceFlagAllowDepthStencil == 0 {
		u |= gputypes.TextureUsageTextureBinding
	}
	if flags&gpucore.ResourceFlagAllowUnorderedAccess != 0 {
		u |= gputypes.TextureUsageStorageBinding
	}
	return u
}

// stateUsage returns the texture usage a resource state is encoded as.
// The common state doubles as the present state, which is read by copies.
func stateUsage(s gpucore.ResourceState) gputypes.TextureUsage {
	switch {
	case s&(gpucore.StateRenderTarget|gpucore.StateDepthWrite|gpucore.StateDepthRead) != 0:
		return gputypes.TextureUsageRenderAttachment
	case s&gpucore.StateUnorderedAccess != 0:
		return gputypes.TextureUsageStorageBinding
	case s&gpucore.StateAllShaderResource != 0:
		return gputypes.TextureUsageTextureBinding
	case s&gpucore.StateCopyDest != 0:
		return gputypes.TextureUsageCopyDst
	default:
		return gputypes.TextureUsageCopySrc
	}
}

func addressMode(m gpucore.AddressMode) gputypes.AddressMode {
	switch m {
	case gpucore.AddressClamp:
		return gputypes.AddressModeClampToEdge
	case gpucore.AddressMirror:
		return gputypes.AddressModeMirrorRepeat
	default:
		return gputypes.AddressModeRepeat
	}
}

func filterMode(f gpucore.Filter) gputypes.FilterMode {
	if f == gpucore.FilterPoint {
		return gputypes.FilterModeNearest
	}
	return gputypes.FilterModeLinear
}
