package capture

import (
	"errors"
	"strings"
	"testing"

	"github.com/hazyhaar/convarch/reconstruct"
)

// threadHTML is a five-row container in dashboard shape: newest message on
// top, date separators below the day they close, a photo bubble whose img
// precedes its caption list item.
const threadHTML = `<div class="messagesContainer">
  <div class="singleMessageWrapper sentMessage right">
    <ul><li class="messageBubble">See you Thursday at 2.</li></ul>
    <span class="chatDate">3:42 PM</span>
  </div>
  <div class="singleMessageWrapper receivedMessage left">
    <div class="avatar">DW</div>
    <div class="senderName">Dana Whitfield</div>
    <ul><li class="messageBubble">Thursday works for me, see you then!</li></ul>
    <span class="chatDate">3:40 PM</span>
  </div>
  <div class="dateHeader">June 10, 2025</div>
  <div class="singleMessageWrapper receivedMessage left">
    <div class="avatar">DW</div>
    <div class="senderName">Dana Whitfield</div>
    <img class="photoFit" src="https://bucket.s3.amazonaws.com/photos/ring.jpg">
    <ul><li class="messageBubble">Here is the ring you asked about.</li></ul>
    <span class="chatDate">9:15 AM</span>
  </div>
  <div class="dateHeader">June 09, 2025</div>
</div>`

func TestParseContainerShape(t *testing.T) {
	// WHAT: Parse a realistic container and check every emitted node's
	// index, hint, text and labels.
	// WHY: This emission grammar is the entire contract between capture
	// and classification; a drifted hint or label slot breaks both.
	nodes, err := ParseContainer([]byte(threadHTML), Options{})
	if err != nil {
		t.Fatalf("parse container: %v", err)
	}
	if len(nodes) != 6 {
		t.Fatalf("got %d nodes, want 6: %+v", len(nodes), nodes)
	}
	for i, n := range nodes {
		if n.CaptureIndex != i {
			t.Errorf("node %d: capture index %d", i, n.CaptureIndex)
		}
	}

	if nodes[0].KindHint != "singleMessageWrapper sentMessage right messageBubble" {
		t.Errorf("node 0 hint: got %q", nodes[0].KindHint)
	}
	if nodes[0].TextContent != "See you Thursday at 2." {
		t.Errorf("node 0 text: got %q", nodes[0].TextContent)
	}
	if len(nodes[0].ChildLabels) != 1 || nodes[0].ChildLabels[0] != "3:42 PM" {
		t.Errorf("node 0 labels: got %v", nodes[0].ChildLabels)
	}

	wantLabels := []string{"DW", "Dana Whitfield", "3:40 PM"}
	if len(nodes[1].ChildLabels) != 3 {
		t.Fatalf("node 1 labels: got %v", nodes[1].ChildLabels)
	}
	for i, want := range wantLabels {
		if nodes[1].ChildLabels[i] != want {
			t.Errorf("node 1 label %d: got %q, want %q", i, nodes[1].ChildLabels[i], want)
		}
	}

	// Date separators come through bare: text only, no labels.
	if nodes[2].TextContent != "June 10, 2025" || len(nodes[2].ChildLabels) != 0 {
		t.Errorf("node 2: got %+v", nodes[2])
	}
	if nodes[5].TextContent != "June 09, 2025" {
		t.Errorf("node 5: got %+v", nodes[5])
	}

	// The photo row emits the marker first, its caption right after.
	if !strings.Contains(nodes[3].KindHint, "photoFit") {
		t.Errorf("node 3 hint: got %q", nodes[3].KindHint)
	}
	if nodes[3].TextContent != "https://bucket.s3.amazonaws.com/photos/ring.jpg" {
		t.Errorf("node 3 src: got %q", nodes[3].TextContent)
	}
	if nodes[4].TextContent != "Here is the ring you asked about." {
		t.Errorf("node 4 text: got %q", nodes[4].TextContent)
	}
	if len(nodes[3].ChildLabels) != 3 || nodes[3].ChildLabels[2] != "9:15 AM" {
		t.Errorf("node 3 labels: got %v", nodes[3].ChildLabels)
	}
}

func TestParseContainerTextRules(t *testing.T) {
	// WHAT: Short list items are dropped, long text is capped, entities
	// decode, and whitespace collapses.
	// WHY: These are the only transformations capture applies to body
	// text; anything beyond them would corrupt the archived messages.
	long := strings.Repeat("a", 600)
	page := `<div class="c">
	  <div class="singleMessageWrapper right"><ul>
	    <li>ok</li>
	    <li>Tom &amp; Jerry   on
	      two lines</li>
	    <li>` + long + `</li>
	  </ul></div>
	</div>`

	nodes, err := ParseContainer([]byte(page), Options{})
	if err != nil {
		t.Fatalf("parse container: %v", err)
	}
	if len(nodes) != 2 {
		t.Fatalf("got %d nodes, want 2 (short item dropped): %+v", len(nodes), nodes)
	}
	if nodes[0].TextContent != "Tom & Jerry on two lines" {
		t.Errorf("text: got %q", nodes[0].TextContent)
	}
	if got := len([]rune(nodes[1].TextContent)); got != 500 {
		t.Errorf("capped length: got %d, want 500", got)
	}
}

func TestParseContainerUnknownRow(t *testing.T) {
	// WHAT: A row with neither list items nor photos emits one whole-text
	// node; an empty spacer emits nothing.
	// WHY: Unknown structure must surface downstream as a flagged node,
	// not disappear, while invisible chrome stays invisible.
	page := `<div class="c">
	  <div class="systemNotice">Conversation started</div>
	  <div class="spacer"></div>
	</div>`

	nodes, err := ParseContainer([]byte(page), Options{})
	if err != nil {
		t.Fatalf("parse container: %v", err)
	}
	if len(nodes) != 1 {
		t.Fatalf("got %d nodes, want 1: %+v", len(nodes), nodes)
	}
	if nodes[0].KindHint != "systemNotice" || nodes[0].TextContent != "Conversation started" {
		t.Errorf("node: got %+v", nodes[0])
	}
}

func TestParseContainerHostedMedia(t *testing.T) {
	// WHAT: An unclassed img still becomes a marker when its URL points at
	// hosted media; other imgs are ignored entirely.
	// WHY: The dashboard serves some photos through a CDN without the
	// photo class; avatars and icons must not become image rows.
	page := `<div class="c">
	  <div class="singleMessageWrapper right">
	    <img src="https://bucket.s3.amazonaws.com/p/1.jpg?sig=abc">
	  </div>
	  <div class="singleMessageWrapper right">
	    <img src="https://cdn.example.com/icon.png">
	  </div>
	</div>`

	nodes, err := ParseContainer([]byte(page), Options{})
	if err != nil {
		t.Fatalf("parse container: %v", err)
	}
	if len(nodes) != 1 {
		t.Fatalf("got %d nodes, want 1: %+v", len(nodes), nodes)
	}
	if !strings.Contains(nodes[0].KindHint, "hostedMedia") {
		t.Errorf("hint: got %q", nodes[0].KindHint)
	}
	if nodes[0].TextContent != "https://bucket.s3.amazonaws.com/p/1.jpg?sig=abc" {
		t.Errorf("src: got %q", nodes[0].TextContent)
	}
}

func TestParseContainerEmpty(t *testing.T) {
	// WHAT: Empty input and childless containers parse to zero nodes
	// without error.
	// WHY: A thread with nothing rendered is a valid page state; replay
	// must not fail on it.
	for _, input := range []string{"", "<div class=\"c\"></div>"} {
		nodes, err := ParseContainer([]byte(input), Options{})
		if err != nil {
			t.Errorf("input %q: %v", input, err)
		}
		if len(nodes) != 0 {
			t.Errorf("input %q: got %d nodes", input, len(nodes))
		}
	}
}

func TestFindMessageContainer(t *testing.T) {
	// WHAT: The container search skips wrappers holding navigation text
	// and picks the thread div.
	// WHY: Grabbing a parent that includes the inbox sidebar would feed
	// the parser someone else's messages.
	rows := `<div class="r1">June 10, 2025</div>` +
		`<div class="r2"><ul><li>message one here</li></ul></div>` +
		`<div class="r3"><ul><li>message two here</li></ul></div>` +
		`<div class="r4"><ul><li>message three here</li></ul></div>` +
		`<div class="r5"><ul><li>message four here</li></ul></div>` +
		`<div class="r6"><ul><li>message five here</li></ul></div>`
	page := `<html><body><div class="app">
	  <div class="nav">Inbox</div>
	  <div class="side">Today</div>
	  <div class="a"></div><div class="b"></div><div class="d"></div>
	  <div class="thread">` + rows + `</div>
	</div></body></html>`

	got, err := FindMessageContainer([]byte(page), Options{})
	if err != nil {
		t.Fatalf("find container: %v", err)
	}
	if !strings.Contains(string(got), `class="thread"`) {
		t.Errorf("container: got %s", got)
	}
	if strings.Contains(string(got), "Inbox") {
		t.Error("container should not include navigation")
	}

	// The same rows nested under a marker-free wrapper with too few
	// children: the wrapper is skipped, the thread still found.
	small := `<html><body><div class="wrap"><div class="thread">` + rows + `</div></div></body></html>`
	got, err = FindMessageContainer([]byte(small), Options{})
	if err != nil {
		t.Fatalf("find nested container: %v", err)
	}
	if !strings.Contains(string(got), `class="thread"`) {
		t.Errorf("nested container: got %s", got)
	}

	_, err = FindMessageContainer([]byte(`<html><body><div>nothing here</div></body></html>`), Options{})
	if !errors.Is(err, ErrNoContainer) {
		t.Errorf("missing container: got %v, want ErrNoContainer", err)
	}
}

func TestCaptureFeedsReconstruction(t *testing.T) {
	// WHAT: Run captured nodes through the reconstruction engine and check
	// dates, senders and image ownership land where the markup says.
	// WHY: Capture and classification are developed against the same node
	// grammar; this guards the seam between them.
	nodes, err := ParseContainer([]byte(threadHTML), Options{})
	if err != nil {
		t.Fatalf("parse container: %v", err)
	}
	conv := reconstruct.Conversation{ID: "conv_8841", ClientID: "8841", ClientName: "Dana Whitfield"}
	res, err := reconstruct.Reconstruct(conv, nodes, reconstruct.Options{})
	if err != nil {
		t.Fatalf("reconstruct: %v", err)
	}

	if len(res.Messages) != 3 {
		t.Fatalf("messages: got %d, want 3", len(res.Messages))
	}
	if len(res.Warnings) != 0 {
		t.Errorf("warnings: got %+v", res.Warnings)
	}

	// Capture order: ids 1 and 2 on June 10, caption id 5 on June 09.
	byID := map[int64]reconstruct.Message{}
	for _, m := range res.Messages {
		byID[m.MessageID] = m
	}
	newest := byID[1]
	if newest.SenderType != reconstruct.SenderAssociate || *newest.Date != "June 10, 2025" {
		t.Errorf("newest: got %+v", newest)
	}
	reply := byID[2]
	if reply.SenderType != reconstruct.SenderClient || reply.SenderName != "Dana Whitfield" {
		t.Errorf("reply: got %+v", reply)
	}
	caption := byID[5]
	if *caption.Date != "June 09, 2025" || caption.TimeLabel != "9:15 AM" {
		t.Errorf("caption: got %+v", caption)
	}

	if len(res.Images) != 1 {
		t.Fatalf("images: got %d, want 1", len(res.Images))
	}
	img := res.Images[0]
	if img.MessageID != 5 {
		t.Errorf("image owner: got id %d, want 5 (the caption)", img.MessageID)
	}
	if img.ImageTime != "9:15 AM" {
		t.Errorf("image time: got %q", img.ImageTime)
	}
}
