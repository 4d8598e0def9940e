// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package descriptor

import (
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
)

// PrintStats writes the heap's occupancy as a JSON object.
func (h *Heap) PrintStats(json *jwriter.ObjectState) {
	json.Name("Label").String(h.label)
	json.Name("Type").String(h.typ.String())
	json.Name("Capacity").Int(int(h.capacity))
	json.Name("Allocated").Int(int(h.index))
	json.Name("Stride").Int(int(h.stride))
	json.Name("ShaderVisible").Bool(h.typ.ShaderVisible())
}

// StatsJSON returns the statistics of heaps as a JSON array.
func StatsJSON(heaps ...*Heap) []byte {
	w := jwriter.NewWriter()
	arr := w.Array()
	for _, h := range heaps {
		if h == nil {
			continue
		}
		obj := arr.Object()
		h.PrintStats(&obj)
		obj.End()
	}
	arr.End()
	return w.Bytes()
}
