// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package soft

import (
	"encoding/binary"
	"math"

	"github.com/gogpu/diabolic/gpucore"
)

// vertex is a transformed vertex in render target pixels.
type vertex struct {
	x, y, z float32
	color   [4]float32
}

// rasterize shades the triangles of ids into the bound targets and returns
// how many triangles were assembled. Lines and points are assembled but
// not drawn.
func (e *executor) rasterize(ids []uint32) int {
	p := e.pipeline
	if p.position == nil {
		return 0
	}
	verts := make([]vertex, len(ids))
	for i, id := range ids {
		v, ok := e.fetch(id)
		if !ok {
			return 0
		}
		verts[i] = v
	}

	var tris [][3]vertex
	switch e.topology {
	case gpucore.TopologyTriangleList:
		for i := 0; i+2 < len(verts); i += 3 {
			tris = append(tris, [3]vertex{verts[i], verts[i+1], verts[i+2]})
		}
	case gpucore.TopologyTriangleStrip:
		for i := 0; i+2 < len(verts); i++ {
			if i%2 == 0 {
				tris = append(tris, [3]vertex{verts[i], verts[i+1], verts[i+2]})
			} else {
				tris = append(tris, [3]vertex{verts[i+1], verts[i], verts[i+2]})
			}
		}
	default:
		return 0
	}

	for _, t := range tris {
		e.fillTriangle(t)
	}
	return len(tris)
}

// fetch reads vertex id from the bound vertex buffers and maps it through
// the first viewport.
func (e *executor) fetch(id uint32) (vertex, bool) {
	p := e.pipeline
	pos, ok := e.attribute(p.position, id)
	if !ok {
		return vertex{}, false
	}
	v := vertex{color: [4]float32{1, 1, 1, 1}}
	if p.color != nil {
		if c, ok := e.attribute(p.color, id); ok {
			v.color = c
		}
	}

	x, y, z, w := pos[0], pos[1], pos[2], pos[3]
	if w != 0 && w != 1 {
		x, y, z = x/w, y/w, z/w
	}
	vp := e.viewports[0]
	v.x = vp.X + (x+1)*0.5*vp.Width
	v.y = vp.Y + (1-y)*0.5*vp.Height
	v.z = vp.MinDepth + z*(vp.MaxDepth-vp.MinDepth)
	return v, true
}

// attribute decodes element el of vertex id. Missing components default to
// (0, 0, 0, 1).
func (e *executor) attribute(el *gpucore.InputElement, id uint32) ([4]float32, bool) {
	out := [4]float32{0, 0, 0, 1}
	if int(el.Slot) >= len(e.vertices) {
		return out, false
	}
	vb := e.vertices[el.Slot]
	if vb.res == nil {
		return out, false
	}
	stride := vb.stride
	if stride == 0 {
		stride = e.pipeline.stride(el.Slot)
	}
	at := uint64(id)*uint64(stride) + uint64(el.Offset)
	size := uint64(el.Format.Size())
	if at+size > uint64(vb.size) {
		return out, false
	}
	at += vb.offset

	vb.res.mu.Lock()
	defer vb.res.mu.Unlock()
	if at+size > uint64(len(vb.res.data)) {
		return out, false
	}
	data := vb.res.data[at : at+size]
	if el.Format == gpucore.FormatRGBA8Unorm {
		for i := 0; i < 4; i++ {
			out[i] = float32(data[i]) / 255
		}
		return out, true
	}
	for i := 0; i*4 < len(data); i++ {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return out, true
}

func edge(ax, ay, bx, by, px, py float32) float32 {
	return (bx-ax)*(py-ay) - (by-ay)*(px-ax)
}

// fillTriangle shades the pixels whose centers fall inside t. Both
// windings are drawn.
func (e *executor) fillTriangle(t [3]vertex) {
	area := edge(t[0].x, t[0].y, t[1].x, t[1].y, t[2].x, t[2].y)
	if area == 0 {
		return
	}

	minX, maxX := bounds(t[0].x, t[1].x, t[2].x)
	minY, maxY := bounds(t[0].y, t[1].y, t[2].y)
	clipL, clipT, clipR, clipB := e.clipRect()
	x0 := max(int32(math.Floor(float64(minX))), clipL)
	y0 := max(int32(math.Floor(float64(minY))), clipT)
	x1 := min(int32(math.Ceil(float64(maxX))), clipR)
	y1 := min(int32(math.Ceil(float64(maxY))), clipB)

	depthTest := e.depth != nil && e.pipeline.desc.DepthEnable
	for py := y0; py < y1; py++ {
		for px := x0; px < x1; px++ {
			cx, cy := float32(px)+0.5, float32(py)+0.5
			w0 := edge(t[1].x, t[1].y, t[2].x, t[2].y, cx, cy) / area
			w1 := edge(t[2].x, t[2].y, t[0].x, t[0].y, cx, cy) / area
			w2 := 1 - w0 - w1
			if w0 < 0 || w1 < 0 || w2 < 0 {
				continue
			}
			z := w0*t[0].z + w1*t[1].z + w2*t[2].z
			if depthTest && !e.depthPass(px, py, z) {
				continue
			}
			var c [4]float32
			for i := range c {
				c[i] = w0*t[0].color[i] + w1*t[1].color[i] + w2*t[2].color[i]
			}
			for _, rt := range e.targets {
				writePixel(rt, px, py, c)
			}
		}
	}
}

func bounds(a, b, c float32) (float32, float32) {
	return min(a, b, c), max(a, b, c)
}

// clipRect intersects the first render target with the first scissor.
func (e *executor) clipRect() (left, top, right, bottom int32) {
	var res *resource
	if len(e.targets) > 0 {
		res = e.targets[0].res
	} else {
		res = e.depth.res
	}
	right, bottom = int32(res.desc.Width), int32(res.desc.Height)
	if len(e.scissors) > 0 {
		s := e.scissors[0]
		left, top = max(left, s.Left), max(top, s.Top)
		right, bottom = min(right, s.Right), min(bottom, s.Bottom)
	}
	return left, top, right, bottom
}

// depthPass runs a less-than depth test at (x, y) and writes z when the
// pipeline enables depth writes.
func (e *executor) depthPass(x, y int32, z float32) bool {
	res := e.depth.res
	if x >= int32(res.desc.Width) || y >= int32(res.desc.Height) {
		return false
	}
	at := (int(y)*int(res.desc.Width) + int(x)) * 4
	res.mu.Lock()
	defer res.mu.Unlock()
	cur := math.Float32frombits(binary.LittleEndian.Uint32(res.data[at:]))
	if z >= cur {
		return false
	}
	if e.pipeline.desc.DepthWrite {
		binary.LittleEndian.PutUint32(res.data[at:], math.Float32bits(z))
	}
	return true
}

func writePixel(rt view, x, y int32, c [4]float32) {
	res := rt.res
	if x >= int32(res.desc.Width) || y >= int32(res.desc.Height) {
		return
	}
	at := (int(y)*int(res.desc.Width) + int(x)) * 4
	px := packColor(rt.format, c)
	res.mu.Lock()
	copy(res.data[at:at+4], px[:])
	res.mu.Unlock()
}
