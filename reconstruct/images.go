package reconstruct

// messageSource is a node that will become a Message: either a text message
// or an image marker whose bracket held no text, promoted to a placeholder.
type messageSource struct {
	node        ClassifiedNode
	placeholder bool
}

// imageBinding ties a marker's image URL to the capture index of the
// message that will own it.
type imageBinding struct {
	markerIndex int
	ownerIndex  int
	url         string
}

// associateImages walks the capture sequence and decides which message owns
// each image marker.
//
// The dashboard renders an image immediately before its caption text in
// capture order, so a marker binds to the nearest following text message,
// as long as no date header intervenes (a header ends the date bracket).
// Several markers may bind to the same message. A marker whose bracket has
// no following text is promoted to a placeholder message at its own capture
// index, so the image is never dropped.
func associateImages(nodes []ClassifiedNode, eo *engineOptions) ([]messageSource, []imageBinding, []Warning) {
	var (
		sources  []messageSource
		bindings []imageBinding
		warnings []Warning
	)

	for i, n := range nodes {
		switch n.Kind {
		case KindTextMessage:
			sources = append(sources, messageSource{node: n})

		case KindImageMarker:
			if n.ImageURL == "" {
				warnings = append(warnings, Warning{
					Kind:         WarnAssociationFailure,
					CaptureIndex: n.CaptureIndex,
					Detail:       "image marker has no URL",
				})
				continue
			}
			owner := -1
			for j := i + 1; j < len(nodes); j++ {
				if nodes[j].Kind == KindDateHeader {
					break
				}
				if nodes[j].Kind == KindTextMessage {
					owner = nodes[j].CaptureIndex
					break
				}
			}
			if owner < 0 {
				sources = append(sources, messageSource{node: n, placeholder: true})
				owner = n.CaptureIndex
			}
			bindings = append(bindings, imageBinding{
				markerIndex: n.CaptureIndex,
				ownerIndex:  owner,
				url:         n.ImageURL,
			})
		}
	}

	return sources, bindings, warnings
}
