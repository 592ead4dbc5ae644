// Package capture turns the dashboard's message container markup into the
// flat node sequence the reconstruction engine consumes.
//
// The container renders newest-first from the top, so nodes are emitted in
// document order and the capture index counts up as messages get older.
// Capture stays structural: it extracts text, class tokens, image sources
// and the short labels around each bubble, and leaves every interpretation
// decision (sender, dates, image ownership) to the engine.
package capture

import (
	"bytes"
	"fmt"
	stdhtml "html"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/hazyhaar/convarch/reconstruct"
)

// Options controls capture behaviour.
type Options struct {
	// ImageClasses are img class tokens that mark chat photos.
	ImageClasses []string
	// HostedMediaHosts are URL substrings identifying externally hosted
	// photos; a match also requires one of HostedMediaSuffixes.
	HostedMediaHosts    []string
	HostedMediaSuffixes []string
	// MinTextLen is the shortest list-item text accepted as a message;
	// shorter fragments are UI chrome, not content.
	MinTextLen int
	// MaxTextLen caps message text, matching what the dashboard itself
	// truncates in long threads.
	MaxTextLen int
	// MaxLabelLen is the longest text fragment still considered a label
	// (initials, name, clock) rather than body text.
	MaxLabelLen int
	// DateLayouts are the time.Parse layouts a date separator may use.
	DateLayouts []string
	// ExcludeMarkers disqualify container candidates whose text contains
	// them; they mark navigation chrome, not the thread.
	ExcludeMarkers []string
	// MinChildren is the fewest direct children a container candidate may
	// have. Real threads render one child per message row.
	MinChildren int
}

func (o *Options) defaults() {
	if len(o.ImageClasses) == 0 {
		o.ImageClasses = []string{"photoFit"}
	}
	if len(o.HostedMediaHosts) == 0 {
		o.HostedMediaHosts = []string{"amazonaws.com"}
	}
	if len(o.HostedMediaSuffixes) == 0 {
		o.HostedMediaSuffixes = []string{".jpg"}
	}
	if o.MinTextLen <= 0 {
		o.MinTextLen = 6
	}
	if o.MaxTextLen <= 0 {
		o.MaxTextLen = 500
	}
	if o.MaxLabelLen <= 0 {
		o.MaxLabelLen = 48
	}
	if len(o.DateLayouts) == 0 {
		o.DateLayouts = []string{"January 02, 2006", "January 2, 2006"}
	}
	if len(o.ExcludeMarkers) == 0 {
		o.ExcludeMarkers = []string{"Inbox", "Today"}
	}
	if o.MinChildren <= 0 {
		o.MinChildren = 6
	}
}

// textPolicy strips any markup that survives into extracted fragments.
var textPolicy = bluemonday.StrictPolicy()

// ParseContainer parses message container markup and emits raw nodes in
// capture order. Each direct child of the container is one UI row: a date
// separator, a message bubble, or chrome. Bubbles may emit several nodes
// (every qualifying list item, every chat photo) in document order, which
// keeps a photo immediately before its caption.
//
// A child that is neither a date separator nor carries any recognizable
// payload still emits a single node when it has text, so the engine can
// flag it instead of it vanishing silently.
func ParseContainer(container []byte, opts Options) ([]reconstruct.RawNode, error) {
	opts.defaults()
	doc, err := html.Parse(bytes.NewReader(container))
	if err != nil {
		return nil, fmt.Errorf("capture: parse container: %w", err)
	}
	root := firstElement(findBody(doc))
	if root == nil {
		return nil, nil
	}

	var nodes []reconstruct.RawNode
	idx := 0
	for child := root.FirstChild; child != nil; child = child.NextSibling {
		if child.Type != html.ElementNode {
			continue
		}
		text := cleanText(collectText(child))

		// A row whose entire text is a calendar date is a separator. It is
		// emitted bare — no labels — whatever decorations it renders with.
		if isDateText(text, opts.DateLayouts) {
			nodes = append(nodes, reconstruct.RawNode{
				CaptureIndex: idx,
				KindHint:     attr(child, "class"),
				TextContent:  text,
			})
			idx++
			continue
		}

		baseHint := attr(child, "class")
		labels := collectLabels(child, &opts)
		emitted, sawPayload := emitBubble(child, baseHint, labels, &nodes, &idx, &opts)

		// No list items and no photos at all: unknown structure. Emit the
		// row whole so classification can flag it.
		if !emitted && !sawPayload && text != "" {
			nodes = append(nodes, reconstruct.RawNode{
				CaptureIndex: idx,
				KindHint:     baseHint,
				TextContent:  capText(text, opts.MaxTextLen),
				ChildLabels:  labels,
			})
			idx++
		}
	}
	return nodes, nil
}

// emitBubble walks one container row in document order, appending a node
// for every chat photo and every qualifying list item. It reports whether
// anything was emitted and whether any payload shape (list item or photo)
// was seen at all, accepted or not.
func emitBubble(child *html.Node, baseHint string, labels []string, nodes *[]reconstruct.RawNode, idx *int, opts *Options) (emitted, sawPayload bool) {
	var f func(*html.Node)
	f = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Img:
				if hint, ok := chatImage(n, opts); ok {
					sawPayload = true
					*nodes = append(*nodes, reconstruct.RawNode{
						CaptureIndex: *idx,
						KindHint:     joinHints(baseHint, hint),
						TextContent:  strings.TrimSpace(attr(n, "src")),
						ChildLabels:  labels,
					})
					*idx++
					emitted = true
				}
				return
			case atom.Li:
				// Photos render at bubble level in this dashboard; list
				// items are message bodies and are not descended into.
				sawPayload = true
				text := cleanText(collectText(n))
				if utf8.RuneCountInString(text) >= opts.MinTextLen {
					*nodes = append(*nodes, reconstruct.RawNode{
						CaptureIndex: *idx,
						KindHint:     joinHints(baseHint, attr(n, "class")),
						TextContent:  capText(text, opts.MaxTextLen),
						ChildLabels:  labels,
					})
					*idx++
					emitted = true
				}
				return
			case atom.Script, atom.Style, atom.Noscript:
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			f(c)
		}
	}
	f(child)
	return emitted, sawPayload
}

// chatImage reports whether an img element is a chat photo and returns the
// kind hint tokens to carry: the img's own classes, plus "hostedMedia" when
// it matched by URL rather than by class.
func chatImage(n *html.Node, opts *Options) (string, bool) {
	src := strings.TrimSpace(attr(n, "src"))
	if src == "" {
		return "", false
	}
	classes := attr(n, "class")
	for _, want := range opts.ImageClasses {
		if hasClassToken(classes, want) {
			return classes, true
		}
	}
	for _, host := range opts.HostedMediaHosts {
		if !strings.Contains(src, host) {
			continue
		}
		for _, suffix := range opts.HostedMediaSuffixes {
			if strings.Contains(src, suffix) {
				return joinHints(classes, "hostedMedia"), true
			}
		}
	}
	return "", false
}

// collectLabels gathers the short text fragments around a bubble's list
// items: avatar initials, the sender name, clock labels. List item bodies
// are the message text itself and are excluded.
func collectLabels(child *html.Node, opts *Options) []string {
	var labels []string
	var f func(*html.Node)
	f = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Li, atom.Img, atom.Script, atom.Style, atom.Noscript:
				return
			}
			if isLeafElement(n) {
				text := cleanText(collectText(n))
				if text != "" && utf8.RuneCountInString(text) <= opts.MaxLabelLen {
					labels = append(labels, text)
				}
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			f(c)
		}
	}
	for c := child.FirstChild; c != nil; c = c.NextSibling {
		f(c)
	}
	return labels
}

// isDateText reports whether text parses whole under one of the layouts.
func isDateText(text string, layouts []string) bool {
	if text == "" {
		return false
	}
	for _, layout := range layouts {
		if _, err := time.Parse(layout, text); err == nil {
			return true
		}
	}
	return false
}

// cleanText strips markup remnants, decodes entities, and collapses
// whitespace runs to single spaces.
func cleanText(s string) string {
	s = textPolicy.Sanitize(s)
	s = stdhtml.UnescapeString(s)
	return strings.Join(strings.Fields(s), " ")
}

// capText truncates text to max runes.
func capText(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max])
}

// collectText extracts all visible text from a node subtree.
func collectText(n *html.Node) string {
	var sb strings.Builder
	var f func(*html.Node)
	f = func(n *html.Node) {
		if n.Type == html.TextNode {
			text := strings.TrimSpace(n.Data)
			if text != "" {
				if sb.Len() > 0 {
					sb.WriteByte(' ')
				}
				sb.WriteString(text)
			}
		}
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Script, atom.Style, atom.Noscript:
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			f(c)
		}
	}
	f(n)
	return sb.String()
}

func joinHints(hints ...string) string {
	parts := make([]string, 0, len(hints))
	for _, h := range hints {
		if h = strings.TrimSpace(h); h != "" {
			parts = append(parts, h)
		}
	}
	return strings.Join(parts, " ")
}

func hasClassToken(classes, want string) bool {
	for _, tok := range strings.Fields(classes) {
		if tok == want {
			return true
		}
	}
	return false
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func isLeafElement(n *html.Node) bool {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			return false
		}
	}
	return true
}

func findBody(doc *html.Node) *html.Node {
	var body *html.Node
	var f func(*html.Node)
	f = func(n *html.Node) {
		if body != nil {
			return
		}
		if n.Type == html.ElementNode && n.DataAtom == atom.Body {
			body = n
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			f(c)
		}
	}
	f(doc)
	return body
}

func firstElement(n *html.Node) *html.Node {
	if n == nil {
		return nil
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			return c
		}
	}
	return nil
}
