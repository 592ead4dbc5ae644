package reconstruct

import "time"

// NodeKind is the classification of a captured UI node.
type NodeKind string

const (
	KindTextMessage  NodeKind = "text_message"
	KindImageMarker  NodeKind = "image_marker"
	KindDateHeader   NodeKind = "date_header"
	KindUnrecognized NodeKind = "unrecognized"
)

// SenderHint is the structural sender signal on a classified node, resolved
// into a SenderType later against the conversation's client name.
type SenderHint string

const (
	HintNone      SenderHint = ""
	HintAssociate SenderHint = "associate" // right-aligned bubble
	HintNamed     SenderHint = "named"     // left-aligned bubble with a name label
)

// SenderType is the resolved sender classification of a message.
type SenderType string

const (
	SenderAssociate      SenderType = "associate"
	SenderClient         SenderType = "client"
	SenderOtherAssociate SenderType = "other_associate"
)

// RawNode is one captured UI node. Capture order is reverse-chronological:
// index 0 is the most recent node on screen, higher indexes are older.
type RawNode struct {
	CaptureIndex int      `json:"capture_index"`
	KindHint     string   `json:"kind_hint"`
	TextContent  string   `json:"text_content,omitempty"`
	ChildLabels  []string `json:"child_labels,omitempty"`
}

// ClassifiedNode is a RawNode with its classification resolved. It is
// produced once by the classifier and never mutated afterwards.
type ClassifiedNode struct {
	RawNode

	Kind       NodeKind
	SenderHint SenderHint
	SenderName string
	TimeLabel  string

	// DateLabel and DateDay are set for date headers only. DateLabel is the
	// raw header text as captured; DateDay is its parsed calendar day, used
	// for ordering validation and never stored.
	DateLabel string
	DateDay   time.Time

	ImageURL string
}

// Conversation identifies the conversation a node sequence belongs to.
// ClientName is the display name used to tell the client apart from other
// associates writing into the same thread.
type Conversation struct {
	ID         string `json:"conversation_id"`
	ClientID   string `json:"client_id"`
	ClientName string `json:"client_name"`
}

// Message is one reconstructed message. MessageID is derived from the
// capture index alone: the newest capture gets the smallest id, so reading
// a conversation by message_id descending yields oldest to newest order.
type Message struct {
	MessageID          int64      `json:"message_id"`
	ConversationID     string     `json:"conversation_id"`
	SenderType         SenderType `json:"sender_type"`
	SenderName         string     `json:"sender_name,omitempty"`
	Text               string     `json:"text"`
	Date               *string    `json:"date,omitempty"` // nil = undetermined, never guessed
	TimeLabel          string     `json:"time_label,omitempty"`
	HasPlaceholderText bool       `json:"has_placeholder_text,omitempty"`
}

// Image is one reconstructed image reference. ImageTime always equals the
// owning message's TimeLabel.
type Image struct {
	MessageID      int64  `json:"message_id"`
	ConversationID string `json:"conversation_id"`
	ImageURL       string `json:"image_url"`
	ImageTime      string `json:"image_time,omitempty"`
}

// WarningKind names a degradation the engine flagged instead of failing on.
type WarningKind string

const (
	// WarnClassificationAmbiguity: a node matched no structural signature
	// and was excluded from output.
	WarnClassificationAmbiguity WarningKind = "classification_ambiguity"

	// WarnUnresolvedDate: a message lies past the last captured date header
	// and carries a nil date.
	WarnUnresolvedDate WarningKind = "unresolved_date"

	// WarnSenderUnresolved: a message carried no usable sender signal and
	// fell back to other_associate with an empty name.
	WarnSenderUnresolved WarningKind = "sender_unresolved"

	// WarnOrderingAnomaly: two adjacent messages in chronological order have
	// decreasing dates. Reported, never corrected.
	WarnOrderingAnomaly WarningKind = "ordering_anomaly"

	// WarnAssociationFailure: an image marker could not produce an image row
	// even via a placeholder message.
	WarnAssociationFailure WarningKind = "association_failure"
)

// Warning is attached to the record it concerns via CaptureIndex.
// CaptureIndex is -1 for conversation-level warnings.
type Warning struct {
	Kind         WarningKind `json:"kind"`
	CaptureIndex int         `json:"capture_index"`
	Detail       string      `json:"detail,omitempty"`
}

// Result is the complete reconstruction of one conversation. Messages are in
// capture order (ascending capture index, newest first); sort by MessageID
// descending for chronological order. Identical input yields an identical
// Result.
type Result struct {
	Messages []Message `json:"messages"`
	Images   []Image   `json:"images"`
	Warnings []Warning `json:"warnings,omitempty"`
}
