package reconstruct

import (
	"reflect"
	"testing"
)

// Node builders shared by the package tests. Kind hints mirror the dashboard
// classes the default signatures match.

func nodeRight(idx int, text, clock string) RawNode {
	return RawNode{
		CaptureIndex: idx,
		KindHint:     "singleMessageWrapper sentMessage right",
		TextContent:  text,
		ChildLabels:  []string{clock},
	}
}

func nodeLeft(idx int, name, text, clock string) RawNode {
	return RawNode{
		CaptureIndex: idx,
		KindHint:     "singleMessageWrapper receivedMessage left",
		TextContent:  text,
		ChildLabels:  []string{"DW", name, clock},
	}
}

func nodeDate(idx int, label string) RawNode {
	return RawNode{CaptureIndex: idx, TextContent: label}
}

func nodeImage(idx int, url, clock string) RawNode {
	return RawNode{
		CaptureIndex: idx,
		KindHint:     "singleMessageWrapper sentMessage right photoFit",
		TextContent:  url,
		ChildLabels:  []string{clock},
	}
}

func testConv() Conversation {
	return Conversation{ID: "conv_1", ClientID: "8841", ClientName: "Dana Whitfield"}
}

func classifyAll(t *testing.T, nodes []RawNode) []ClassifiedNode {
	t.Helper()
	eo, err := Options{}.resolve()
	if err != nil {
		t.Fatalf("resolve options: %v", err)
	}
	out := make([]ClassifiedNode, 0, len(nodes))
	for _, raw := range nodes {
		n, w := classifyNode(raw, &eo)
		if w != nil {
			t.Fatalf("node %d unexpectedly unrecognized: %s", raw.CaptureIndex, w.Detail)
		}
		out = append(out, n)
	}
	return out
}

func TestReconstruct_OrderingContract(t *testing.T) {
	// WHAT: Reading by message_id descending yields oldest-to-newest order.
	// WHY: This is the one contract every consumer of the archive relies on.
	nodes := []RawNode{
		nodeRight(0, "see you tomorrow", "04:10 pm"),
		nodeLeft(1, "Dana Whitfield", "sounds great", "04:02 pm"),
		nodeDate(2, "December 06, 2025"),
		nodeRight(3, "the bracelet is ready", "11:30 am"),
		nodeDate(4, "December 05, 2025"),
	}
	res, err := Reconstruct(testConv(), nodes, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Messages) != 3 {
		t.Fatalf("got %d messages, want 3", len(res.Messages))
	}

	// Newest capture gets the smallest id.
	if res.Messages[0].MessageID != 1 || res.Messages[0].Text != "see you tomorrow" {
		t.Errorf("newest message should carry id 1, got %d (%q)", res.Messages[0].MessageID, res.Messages[0].Text)
	}

	// Descending id = chronological. The oldest message (capture index 3,
	// December 05) must carry the largest id.
	var maxID int64
	var oldest Message
	for _, m := range res.Messages {
		if m.MessageID > maxID {
			maxID = m.MessageID
			oldest = m
		}
	}
	if oldest.Text != "the bracelet is ready" {
		t.Errorf("largest id should be the oldest message, got %q", oldest.Text)
	}
	if oldest.Date == nil || *oldest.Date != "December 05, 2025" {
		t.Errorf("oldest message date = %v, want December 05, 2025", oldest.Date)
	}
}

func TestReconstruct_Idempotent(t *testing.T) {
	// WHAT: Two runs over the same input yield deep-equal results.
	// WHY: Re-running a capture must not churn the archive.
	nodes := []RawNode{
		nodeImage(0, "https://media.example.com/a.jpg", "04:10 pm"),
		nodeRight(1, "photo attached", "04:10 pm"),
		nodeDate(2, "December 06, 2025"),
		nodeLeft(3, "Marc Leroy", "passing this along", "09:00 am"),
	}
	first, err := Reconstruct(testConv(), nodes, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := Reconstruct(testConv(), nodes, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("same input produced different results:\n%+v\nvs\n%+v", first, second)
	}
}

func TestReconstruct_IsolationOneGarbageNode(t *testing.T) {
	// WHAT: One unclassifiable node yields exactly one warning and full
	// output for everything else.
	// WHY: A malformed bubble must never cost the rest of the conversation.
	nodes := []RawNode{
		nodeRight(0, "all set for thursday", "04:10 pm"),
		{CaptureIndex: 1, KindHint: "adBanner floaty", TextContent: "SALE"},
		nodeLeft(2, "Dana Whitfield", "thank you!", "04:02 pm"),
		nodeDate(3, "December 06, 2025"),
	}
	res, err := Reconstruct(testConv(), nodes, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Messages) != 2 {
		t.Errorf("got %d messages, want 2", len(res.Messages))
	}
	if len(res.Warnings) != 1 {
		t.Fatalf("got %d warnings, want exactly 1: %+v", len(res.Warnings), res.Warnings)
	}
	w := res.Warnings[0]
	if w.Kind != WarnClassificationAmbiguity || w.CaptureIndex != 1 {
		t.Errorf("warning = %+v, want classification_ambiguity at capture index 1", w)
	}
}

func TestReconstruct_OrderingAnomalyReported(t *testing.T) {
	// WHAT: A date sequence that decreases chronologically is flagged, and
	// message ids stay derived from capture order.
	// WHY: Anomalies are evidence about the capture; correcting them would
	// hide the upstream defect.
	nodes := []RawNode{
		nodeRight(0, "newer on screen", "02:00 pm"),
		nodeDate(1, "December 05, 2025"),
		nodeRight(2, "older on screen", "01:00 pm"),
		nodeDate(3, "December 06, 2025"),
	}
	res, err := Reconstruct(testConv(), nodes, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var anomalies []Warning
	for _, w := range res.Warnings {
		if w.Kind == WarnOrderingAnomaly {
			anomalies = append(anomalies, w)
		}
	}
	if len(anomalies) != 1 {
		t.Fatalf("got %d ordering anomalies, want 1: %+v", len(anomalies), res.Warnings)
	}
	if anomalies[0].CaptureIndex != 0 {
		t.Errorf("anomaly at capture index %d, want 0 (the decreasing side)", anomalies[0].CaptureIndex)
	}
	for _, m := range res.Messages {
		if m.MessageID != int64(chronIndex(m))+1 {
			t.Errorf("message id %d not derived from capture index", m.MessageID)
		}
	}
}

// chronIndex recovers the capture index a message id was derived from.
func chronIndex(m Message) int {
	return int(m.MessageID) - 1
}

func TestReconstruct_UnresolvedDateFlag(t *testing.T) {
	// WHAT: Messages past the last date header carry a nil date and an
	// unresolved_date flag.
	// WHY: The header for the oldest bracket fell outside the capture
	// window; inventing a date would corrupt the archive.
	nodes := []RawNode{
		nodeRight(0, "within the bracket", "04:10 pm"),
		nodeDate(1, "December 06, 2025"),
		nodeRight(2, "past the last header", "09:00 am"),
	}
	res, err := Reconstruct(testConv(), nodes, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var dated, undated *Message
	for i := range res.Messages {
		switch res.Messages[i].Text {
		case "within the bracket":
			dated = &res.Messages[i]
		case "past the last header":
			undated = &res.Messages[i]
		}
	}
	if dated == nil || dated.Date == nil || *dated.Date != "December 06, 2025" {
		t.Errorf("bracketed message date wrong: %+v", dated)
	}
	if undated == nil || undated.Date != nil {
		t.Errorf("message past last header should have nil date: %+v", undated)
	}

	var flags []Warning
	for _, w := range res.Warnings {
		if w.Kind == WarnUnresolvedDate {
			flags = append(flags, w)
		}
	}
	if len(flags) != 1 || flags[0].CaptureIndex != 2 {
		t.Errorf("unresolved_date flags = %+v, want exactly one at capture index 2", flags)
	}
}

func TestReconstruct_ImageTimeEqualsOwnerTime(t *testing.T) {
	// WHAT: A bound image's time equals the owning message's time label,
	// even when the marker carried its own.
	// WHY: image_time = owning message's time_label holds by construction.
	nodes := []RawNode{
		nodeImage(0, "https://media.example.com/a.jpg", "04:12 pm"),
		nodeRight(1, "here is the photo", "04:10 pm"),
		nodeDate(2, "December 06, 2025"),
	}
	res, err := Reconstruct(testConv(), nodes, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Images) != 1 {
		t.Fatalf("got %d images, want 1", len(res.Images))
	}
	img := res.Images[0]
	if img.MessageID != 2 {
		t.Errorf("image bound to message %d, want 2", img.MessageID)
	}
	if img.ImageTime != "04:10 pm" {
		t.Errorf("image time %q, want owner's 04:10 pm", img.ImageTime)
	}
}

func TestReconstruct_PlaceholderForLoneImage(t *testing.T) {
	// WHAT: An image whose date bracket holds no text becomes a placeholder
	// message carrying the sentinel text, the marker's own clock label, and
	// the marker's sender signals.
	// WHY: The image must never be dropped, and the viewer needs a message
	// row to hang it on.
	nodes := []RawNode{
		nodeImage(0, "https://media.example.com/lone.jpg", "04:12 pm"),
		nodeDate(1, "December 06, 2025"),
		nodeRight(2, "previous day chatter", "11:00 am"),
		nodeDate(3, "December 05, 2025"),
	}
	res, err := Reconstruct(testConv(), nodes, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var ph *Message
	for i := range res.Messages {
		if res.Messages[i].HasPlaceholderText {
			ph = &res.Messages[i]
		}
	}
	if ph == nil {
		t.Fatal("no placeholder message produced")
	}
	if ph.Text != "[Image]" {
		t.Errorf("placeholder text %q, want [Image]", ph.Text)
	}
	if ph.TimeLabel != "04:12 pm" {
		t.Errorf("placeholder time %q, want the marker's 04:12 pm", ph.TimeLabel)
	}
	if ph.SenderType != SenderAssociate {
		t.Errorf("placeholder sender %q, want associate from the marker's alignment", ph.SenderType)
	}
	if ph.Date == nil || *ph.Date != "December 06, 2025" {
		t.Errorf("placeholder date %v, want December 06, 2025", ph.Date)
	}
	if len(res.Images) != 1 || res.Images[0].MessageID != ph.MessageID {
		t.Errorf("image should bind to the placeholder: %+v", res.Images)
	}
	if res.Images[0].ImageTime != ph.TimeLabel {
		t.Errorf("image time %q, want %q", res.Images[0].ImageTime, ph.TimeLabel)
	}
}

func TestReconstruct_BadOptions(t *testing.T) {
	// WHAT: An invalid time label pattern fails fast.
	// WHY: Options are caller code; input nodes are the only thing that may
	// never fail.
	_, err := Reconstruct(testConv(), nil, Options{TimeLabelPattern: "("})
	if err == nil {
		t.Fatal("expected error for invalid pattern")
	}
}
