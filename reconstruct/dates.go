package reconstruct

import "time"

// dateStamp is one propagated date: the raw header label for storage and
// the parsed day for ordering validation.
type dateStamp struct {
	label string
	day   time.Time
}

// assignDates propagates date headers across the capture sequence.
//
// The dashboard renders newest-first, and a date header sits below (after,
// in capture order) the messages of that day. A node's date is therefore the
// nearest header at a capture index greater than or equal to its own. Nodes
// past the last header belong to a day whose header fell outside the capture
// window; they get no date rather than an invented one.
//
// Two passes, O(n): collect headers, then walk nodes with a pointer that
// only moves forward. nodes must be in ascending capture order.
func assignDates(nodes []ClassifiedNode) map[int]dateStamp {
	type header struct {
		index int
		stamp dateStamp
	}
	var headers []header
	for _, n := range nodes {
		if n.Kind == KindDateHeader {
			headers = append(headers, header{
				index: n.CaptureIndex,
				stamp: dateStamp{label: n.DateLabel, day: n.DateDay},
			})
		}
	}

	stamps := make(map[int]dateStamp, len(nodes))
	p := 0
	for _, n := range nodes {
		for p < len(headers) && headers[p].index < n.CaptureIndex {
			p++
		}
		if p < len(headers) {
			stamps[n.CaptureIndex] = headers[p].stamp
		}
	}
	return stamps
}
