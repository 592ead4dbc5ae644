package reconstruct

import "testing"

func associate(t *testing.T, raws []RawNode) ([]messageSource, []imageBinding, []Warning) {
	t.Helper()
	eo, err := Options{}.resolve()
	if err != nil {
		t.Fatalf("resolve options: %v", err)
	}
	nodes := classifyAll(t, raws)
	return associateImages(nodes, &eo)
}

func TestAssociateImages_BindsToFollowingText(t *testing.T) {
	// WHAT: A marker at capture index 5 with a text message at index 6 in
	// the same bracket binds to it.
	// WHY: The dashboard renders an image immediately before its caption in
	// capture order.
	sources, bindings, warnings := associate(t, []RawNode{
		nodeDate(4, "December 06, 2025"),
		nodeImage(5, "https://media.example.com/a.jpg", "02:00 pm"),
		nodeRight(6, "caption for the photo", "01:58 pm"),
		nodeDate(7, "December 05, 2025"),
	})
	if len(warnings) != 0 {
		t.Fatalf("unexpected warnings: %+v", warnings)
	}
	if len(bindings) != 1 || bindings[0].ownerIndex != 6 {
		t.Fatalf("bindings = %+v, want one bound to index 6", bindings)
	}
	for _, s := range sources {
		if s.placeholder {
			t.Errorf("no placeholder expected, got one at index %d", s.node.CaptureIndex)
		}
	}
}

func TestAssociateImages_ManyMarkersOneMessage(t *testing.T) {
	// WHAT: Consecutive markers all bind to the next text message.
	// WHY: A burst of photos shares one caption; binding is one-to-many.
	_, bindings, _ := associate(t, []RawNode{
		nodeImage(0, "https://media.example.com/a.jpg", "02:00 pm"),
		nodeImage(1, "https://media.example.com/b.jpg", "02:00 pm"),
		nodeRight(2, "three from today", "01:58 pm"),
		nodeDate(3, "December 06, 2025"),
	})
	if len(bindings) != 2 {
		t.Fatalf("got %d bindings, want 2", len(bindings))
	}
	for _, b := range bindings {
		if b.ownerIndex != 2 {
			t.Errorf("marker %d bound to %d, want 2", b.markerIndex, b.ownerIndex)
		}
	}
}

func TestAssociateImages_DateHeaderEndsBracket(t *testing.T) {
	// WHAT: A marker whose bracket ends before any text becomes a
	// placeholder bound to itself.
	// WHY: Binding across a day boundary would attach the image to an
	// unrelated older message.
	sources, bindings, _ := associate(t, []RawNode{
		nodeImage(0, "https://media.example.com/lone.jpg", "02:00 pm"),
		nodeDate(1, "December 06, 2025"),
		nodeRight(2, "yesterday's message", "11:00 am"),
		nodeDate(3, "December 05, 2025"),
	})
	var ph *messageSource
	for i := range sources {
		if sources[i].placeholder {
			ph = &sources[i]
		}
	}
	if ph == nil || ph.node.CaptureIndex != 0 {
		t.Fatalf("want placeholder at index 0, sources = %+v", sources)
	}
	if len(bindings) != 1 || bindings[0].ownerIndex != 0 {
		t.Errorf("bindings = %+v, want one bound to the placeholder at 0", bindings)
	}
}

func TestAssociateImages_EndOfCapturePlaceholder(t *testing.T) {
	// WHAT: A marker with nothing after it becomes a placeholder.
	// WHY: The capture window can cut a conversation mid-bracket.
	sources, bindings, _ := associate(t, []RawNode{
		nodeRight(0, "earlier text", "02:10 pm"),
		nodeImage(1, "https://media.example.com/tail.jpg", "02:00 pm"),
	})
	if len(bindings) != 1 || bindings[0].ownerIndex != 1 {
		t.Fatalf("bindings = %+v, want one bound to index 1", bindings)
	}
	var found bool
	for _, s := range sources {
		if s.placeholder && s.node.CaptureIndex == 1 {
			found = true
		}
	}
	if !found {
		t.Error("placeholder source missing for the tail marker")
	}
}

func TestAssociateImages_EmptyURL(t *testing.T) {
	// WHAT: A marker without a URL yields an association_failure warning
	// and no image row.
	// WHY: Defensive path; nothing useful can be stored for it.
	raw := RawNode{CaptureIndex: 0, KindHint: "photoFit", TextContent: "   "}
	eo, err := Options{}.resolve()
	if err != nil {
		t.Fatalf("resolve options: %v", err)
	}
	n, w := classifyNode(raw, &eo)
	if w != nil {
		t.Fatalf("unexpected classification warning: %+v", w)
	}
	_, bindings, warnings := associateImages([]ClassifiedNode{n}, &eo)
	if len(bindings) != 0 {
		t.Errorf("bindings = %+v, want none", bindings)
	}
	if len(warnings) != 1 || warnings[0].Kind != WarnAssociationFailure {
		t.Errorf("warnings = %+v, want one association_failure", warnings)
	}
}

func TestAssociateImages_MarkerDoesNotBlockBinding(t *testing.T) {
	// WHAT: Markers between a marker and the next text do not intervene.
	// WHY: Only a text message or a date header ends the forward scan.
	_, bindings, _ := associate(t, []RawNode{
		nodeImage(0, "https://media.example.com/a.jpg", ""),
		nodeImage(1, "https://media.example.com/b.jpg", ""),
		nodeImage(2, "https://media.example.com/c.jpg", ""),
		nodeRight(3, "album", "01:00 pm"),
	})
	if len(bindings) != 3 {
		t.Fatalf("got %d bindings, want 3", len(bindings))
	}
	for _, b := range bindings {
		if b.ownerIndex != 3 {
			t.Errorf("marker %d bound to %d, want 3", b.markerIndex, b.ownerIndex)
		}
	}
}
