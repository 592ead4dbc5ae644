package reconstruct

import (
	"fmt"
	"strings"
)

// classifySender resolves a node's structural sender hint against the
// conversation's client name. Matching is exact after trimming and case
// folding; anything fuzzier would misattribute messages between a client
// and an associate who share a name fragment.
//
// The fallback for a node with no usable signal is other_associate with an
// empty name plus a review warning: wrong attribution is worse than an
// honest unknown.
func classifySender(n ClassifiedNode, conv Conversation) (SenderType, string, *Warning) {
	switch n.SenderHint {
	case HintAssociate:
		return SenderAssociate, "", nil
	case HintNamed:
		name := n.SenderName
		if namesEqual(name, conv.ClientName) {
			return SenderClient, name, nil
		}
		return SenderOtherAssociate, name, nil
	default:
		return SenderOtherAssociate, "", &Warning{
			Kind:         WarnSenderUnresolved,
			CaptureIndex: n.CaptureIndex,
			Detail:       fmt.Sprintf("no sender signal on %s node", n.Kind),
		}
	}
}

func namesEqual(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
