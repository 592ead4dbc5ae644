package reconstruct

import "fmt"

// finalize assigns order keys, resolves senders, materializes messages and
// images, and runs the ordering validation sweep.
//
// The order key is MessageID = CaptureIndex + 1: strictly increasing in
// capture index, so the newest message carries the smallest id and reading
// by message_id descending yields chronological oldest to newest order.
// That descending read is the contract every consumer of the archive relies
// on, and deriving the key from the capture index alone keeps the whole
// engine idempotent.
func finalize(conv Conversation, sources []messageSource, bindings []imageBinding, stamps map[int]dateStamp, eo *engineOptions) ([]Message, []Image, []Warning) {
	var warnings []Warning

	messages := make([]Message, 0, len(sources))
	byIndex := make(map[int]*Message, len(sources))
	for _, src := range sources {
		n := src.node
		m := Message{
			MessageID:      int64(n.CaptureIndex) + 1,
			ConversationID: conv.ID,
			Text:           n.TextContent,
			TimeLabel:      n.TimeLabel,
		}
		if src.placeholder {
			m.Text = eo.placeholder
			m.HasPlaceholderText = true
		}
		if st, ok := stamps[n.CaptureIndex]; ok {
			label := st.label
			m.Date = &label
		}
		senderType, name, w := classifySender(n, conv)
		m.SenderType = senderType
		m.SenderName = name
		if w != nil {
			warnings = append(warnings, *w)
		}
		messages = append(messages, m)
		byIndex[n.CaptureIndex] = &messages[len(messages)-1]
	}

	images := make([]Image, 0, len(bindings))
	for _, b := range bindings {
		owner, ok := byIndex[b.ownerIndex]
		if !ok {
			warnings = append(warnings, Warning{
				Kind:         WarnAssociationFailure,
				CaptureIndex: b.markerIndex,
				Detail:       fmt.Sprintf("no message at capture index %d to own image", b.ownerIndex),
			})
			continue
		}
		images = append(images, Image{
			MessageID:      owner.MessageID,
			ConversationID: conv.ID,
			ImageURL:       b.url,
			ImageTime:      owner.TimeLabel,
		})
	}

	for _, m := range messages {
		if m.Date == nil {
			warnings = append(warnings, Warning{
				Kind:         WarnUnresolvedDate,
				CaptureIndex: int(m.MessageID) - 1,
				Detail:       "past the last captured date header",
			})
		}
	}

	warnings = append(warnings, sweepOrdering(messages, stamps)...)
	return messages, images, warnings
}

// sweepOrdering walks the messages oldest to newest and checks that every
// adjacent pair with known dates is non-decreasing. A violation means the
// capture itself was inconsistent; it is reported as evidence, never
// corrected, because reordering would hide the upstream defect.
func sweepOrdering(messages []Message, stamps map[int]dateStamp) []Warning {
	var warnings []Warning
	type prevStamp struct {
		index int
		stamp dateStamp
	}
	var prev *prevStamp

	for i := len(messages) - 1; i >= 0; i-- {
		idx := int(messages[i].MessageID) - 1
		st, ok := stamps[idx]
		if !ok {
			prev = nil
			continue
		}
		if prev != nil && st.day.Before(prev.stamp.day) {
			warnings = append(warnings, Warning{
				Kind:         WarnOrderingAnomaly,
				CaptureIndex: idx,
				Detail: fmt.Sprintf("date %q at capture index %d precedes %q at capture index %d",
					st.label, idx, prev.stamp.label, prev.index),
			})
		}
		prev = &prevStamp{index: idx, stamp: st}
	}
	return warnings
}
