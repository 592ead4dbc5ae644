package reconstruct

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Signatures holds the structural class tokens that identify each node kind
// in a capture's kind hints. Matching is token-wise on whitespace-separated
// hints, so "right" never matches "rights".
//
// The date separator needs no token on the dashboards seen so far: a
// childless block whose entire text parses as a calendar date is the
// signature. Deployments with an explicit header class can add it.
type Signatures struct {
	DateHeader []string `yaml:"date_header"`
	Image      []string `yaml:"image"`
	Right      []string `yaml:"right"`
	Left       []string `yaml:"left"`
}

// DefaultSignatures returns the token sets for the messaging dashboard this
// engine was built against. "hostedMedia" is synthesized by the capture
// layer for images recognized by their hosting URL rather than a class.
func DefaultSignatures() Signatures {
	return Signatures{
		DateHeader: nil,
		Image:      []string{"photoFit", "hostedMedia"},
		Right:      []string{"sentMessage", "right"},
		Left:       []string{"receivedMessage", "left"},
	}
}

// Options configures Reconstruct. The zero value resolves to defaults.
type Options struct {
	// Signatures identifies node kinds from kind hints.
	Signatures Signatures

	// DateLayouts are the time layouts date header text may use.
	// Default: "January 02, 2006" and its unpadded variant.
	DateLayouts []string

	// TimeLabelPattern recognizes time labels among child labels.
	// Default: clock times like "02:23 pm".
	TimeLabelPattern string

	// PlaceholderText is the body of messages synthesized for images that
	// arrive with no text in their date bracket. Default "[Image]".
	PlaceholderText string
}

// engineOptions is Options after defaulting and pattern compilation.
type engineOptions struct {
	sigs        Signatures
	dateLayouts []string
	timeRe      *regexp.Regexp
	placeholder string
}

const (
	defaultTimeLabelPattern = `(?i)^\d{1,2}:\d{2}\s*(am|pm)$`
	defaultPlaceholderText  = "[Image]"
)

func (o Options) resolve() (engineOptions, error) {
	eo := engineOptions{
		sigs:        o.Signatures,
		dateLayouts: o.DateLayouts,
		placeholder: o.PlaceholderText,
	}
	def := DefaultSignatures()
	if len(eo.sigs.Image) == 0 {
		eo.sigs.Image = def.Image
	}
	if len(eo.sigs.Right) == 0 {
		eo.sigs.Right = def.Right
	}
	if len(eo.sigs.Left) == 0 {
		eo.sigs.Left = def.Left
	}
	if len(eo.sigs.DateHeader) == 0 {
		eo.sigs.DateHeader = def.DateHeader
	}
	if len(eo.dateLayouts) == 0 {
		eo.dateLayouts = []string{"January 02, 2006", "January 2, 2006"}
	}
	if eo.placeholder == "" {
		eo.placeholder = defaultPlaceholderText
	}
	pattern := o.TimeLabelPattern
	if pattern == "" {
		pattern = defaultTimeLabelPattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return engineOptions{}, fmt.Errorf("reconstruct: time label pattern: %w", err)
	}
	eo.timeRe = re
	return eo, nil
}

// classifyNode resolves one raw node. It is total: every input yields a
// ClassifiedNode, and inputs that match no signature come back as
// KindUnrecognized with a warning instead of an error.
func classifyNode(raw RawNode, eo *engineOptions) (ClassifiedNode, *Warning) {
	n := ClassifiedNode{RawNode: raw}

	if label, day, ok := matchDateHeader(raw, eo); ok {
		n.Kind = KindDateHeader
		n.DateLabel = label
		n.DateDay = day
		return n, nil
	}
	if hasToken(raw.KindHint, eo.sigs.DateHeader) {
		n.Kind = KindUnrecognized
		return n, &Warning{
			Kind:         WarnClassificationAmbiguity,
			CaptureIndex: raw.CaptureIndex,
			Detail:       fmt.Sprintf("date header text %q matches no known layout", strings.TrimSpace(raw.TextContent)),
		}
	}

	if hasToken(raw.KindHint, eo.sigs.Image) {
		n.Kind = KindImageMarker
		n.ImageURL = strings.TrimSpace(raw.TextContent)
		// Alignment and name signals on the marker itself are kept so a
		// synthesized placeholder can still be attributed to a sender.
		n.SenderHint, n.SenderName = senderSignals(raw, eo)
		n.TimeLabel = timeLabel(raw, n.SenderHint, eo)
		return n, nil
	}

	hint, name := senderSignals(raw, eo)
	switch hint {
	case HintAssociate:
		n.Kind = KindTextMessage
		n.SenderHint = HintAssociate
		n.TimeLabel = timeLabel(raw, hint, eo)
		return n, nil
	case HintNamed:
		n.Kind = KindTextMessage
		n.SenderHint = HintNamed
		n.SenderName = name
		n.TimeLabel = timeLabel(raw, hint, eo)
		return n, nil
	}

	if hasToken(raw.KindHint, eo.sigs.Left) {
		n.Kind = KindUnrecognized
		return n, &Warning{
			Kind:         WarnClassificationAmbiguity,
			CaptureIndex: raw.CaptureIndex,
			Detail:       "left-aligned bubble without a name label",
		}
	}

	n.Kind = KindUnrecognized
	return n, &Warning{
		Kind:         WarnClassificationAmbiguity,
		CaptureIndex: raw.CaptureIndex,
		Detail:       fmt.Sprintf("no structural signature matched kind hint %q", raw.KindHint),
	}
}

// matchDateHeader reports whether raw is a date separator: either its kind
// hint carries a configured header token, or it is a childless block whose
// entire text is a calendar date. Both require the text to parse, so every
// date header downstream carries a comparable day.
func matchDateHeader(raw RawNode, eo *engineOptions) (string, time.Time, bool) {
	text := strings.TrimSpace(raw.TextContent)
	if text == "" {
		return "", time.Time{}, false
	}
	shapeCandidate := len(raw.ChildLabels) == 0
	if !shapeCandidate && !hasToken(raw.KindHint, eo.sigs.DateHeader) {
		return "", time.Time{}, false
	}
	for _, layout := range eo.dateLayouts {
		if day, err := time.Parse(layout, text); err == nil {
			return text, day, true
		}
	}
	return "", time.Time{}, false
}

// senderSignals extracts the structural sender hint from a bubble node.
// Right-aligned bubbles belong to the logged-in associate and carry no name.
// Left-aligned bubbles lead with exactly one avatar-initials label; the
// sender name is the label after it. A left bubble without a name label
// yields no signal rather than a guess.
func senderSignals(raw RawNode, eo *engineOptions) (SenderHint, string) {
	if hasToken(raw.KindHint, eo.sigs.Right) {
		return HintAssociate, ""
	}
	if hasToken(raw.KindHint, eo.sigs.Left) && len(raw.ChildLabels) >= 2 {
		return HintNamed, strings.TrimSpace(raw.ChildLabels[1])
	}
	return HintNone, ""
}

// timeLabel picks the raw clock label from a node's child labels: the last
// label matching the time pattern, skipping the initials and name slots on
// named bubbles.
func timeLabel(raw RawNode, hint SenderHint, eo *engineOptions) string {
	labels := raw.ChildLabels
	if hint == HintNamed && len(labels) >= 2 {
		labels = labels[2:]
	}
	for i := len(labels) - 1; i >= 0; i-- {
		if l := strings.TrimSpace(labels[i]); eo.timeRe.MatchString(l) {
			return l
		}
	}
	return ""
}

func hasToken(hint string, tokens []string) bool {
	if len(tokens) == 0 || hint == "" {
		return false
	}
	for _, field := range strings.Fields(hint) {
		for _, tok := range tokens {
			if field == tok {
				return true
			}
		}
	}
	return false
}
