// Package reconstruct rebuilds chronologically ordered, sender-attributed
// conversation histories from the reverse-chronological node sequences a
// dashboard capture produces.
//
// The engine is a pure kernel: no I/O, no clock, no randomness. The same
// input always yields the same Result, and no input can fail a run. Nodes
// that resist interpretation degrade into warnings attached to the record
// they concern, so a single malformed bubble never costs the rest of the
// conversation.
//
// Processing stages, in order:
//
//  1. classify every node (text message, image marker, date header, or
//     unrecognized) from structural signals alone
//  2. propagate date headers across the nodes they govern
//  3. resolve sender hints against the conversation's client name
//  4. bind image markers to their owning text message, or synthesize a
//     placeholder message when the date bracket holds no text
//  5. assign order keys and validate chronology
//
// The one contract consumers rely on: reading a conversation's messages by
// message_id descending yields chronological, oldest to newest order.
package reconstruct

import "sort"

// Reconstruct rebuilds one conversation from its captured node sequence.
// The returned error only ever concerns Options; input nodes cannot fail.
func Reconstruct(conv Conversation, nodes []RawNode, opts Options) (*Result, error) {
	eo, err := opts.resolve()
	if err != nil {
		return nil, err
	}

	ordered := make([]RawNode, len(nodes))
	copy(ordered, nodes)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].CaptureIndex < ordered[j].CaptureIndex
	})

	classified := make([]ClassifiedNode, 0, len(ordered))
	var warnings []Warning
	for _, raw := range ordered {
		n, w := classifyNode(raw, &eo)
		if w != nil {
			warnings = append(warnings, *w)
			continue
		}
		classified = append(classified, n)
	}

	stamps := assignDates(classified)
	sources, bindings, assocWarnings := associateImages(classified, &eo)
	warnings = append(warnings, assocWarnings...)

	messages, images, finalWarnings := finalize(conv, sources, bindings, stamps, &eo)
	warnings = append(warnings, finalWarnings...)

	return &Result{
		Messages: messages,
		Images:   images,
		Warnings: warnings,
	}, nil
}
