// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package queue

import (
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
)

// PrintStats writes the queue state and counters as a JSON object.
func (q *Queue) PrintStats(json *jwriter.ObjectState) {
	json.Name("Label").String(q.label)
	json.Name("Type").String(q.typ.String())
	json.Name("FenceValue").Float64(float64(q.fenceValue))
	if !q.closed {
		json.Name("CompletedValue").Float64(float64(q.fence.CompletedValue()))
	}
	json.Name("InFlightAllocators").Int(len(q.inFlight))
	json.Name("PooledLists").Int(len(q.lists))

	counters := json.Name("Counters").Object()
	counters.Name("Submissions").Float64(float64(q.stats.Submissions))
	counters.Name("AllocatorsMade").Int(q.stats.AllocatorsMade)
	counters.Name("AllocatorReuses").Float64(float64(q.stats.AllocatorReuses))
	counters.Name("ListsMade").Int(q.stats.ListsMade)
	counters.Name("Waits").Float64(float64(q.stats.Waits))
	counters.Name("WaitsThatBlocked").Float64(float64(q.stats.WaitsThatBlocked))
	counters.End()
}

// StatsJSON returns the statistics of queues as a JSON array.
func StatsJSON(queues ...*Queue) []byte {
	w := jwriter.NewWriter()
	arr := w.Array()
	for _, q := range queues {
		if q == nil {
			continue
		}
		obj := arr.Object()
		q.PrintStats(&obj)
		obj.End()
	}
	arr.End()
	return w.Bytes()
}
