package capture

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// ErrNoContainer is returned when no element in the page qualifies as the
// message container.
var ErrNoContainer = errors.New("capture: message container not found")

// dateFindRe spots a calendar date anywhere in a candidate's text. The
// anchored per-row check in ParseContainer is stricter; this one only has
// to tell message containers apart from chrome.
var dateFindRe = regexp.MustCompile(`[A-Za-z]+ \d{1,2}, \d{4}`)

// FindMessageContainer locates the message container inside a full page
// document and returns its markup. The container is the first div in
// document order that holds a date separator, has enough children to be a
// thread, and contains none of the navigation markers — so the outermost
// qualifying div wins, exactly the region the dashboard scrolls.
func FindMessageContainer(doc []byte, opts Options) ([]byte, error) {
	opts.defaults()
	parsed, err := html.Parse(bytes.NewReader(doc))
	if err != nil {
		return nil, fmt.Errorf("capture: parse page: %w", err)
	}

	var found *html.Node
	var f func(*html.Node)
	f = func(n *html.Node) {
		if found != nil {
			return
		}
		if n.Type == html.ElementNode && n.DataAtom == atom.Div && childElementCount(n) >= opts.MinChildren {
			text := collectText(n)
			if dateFindRe.MatchString(text) && !containsAny(text, opts.ExcludeMarkers) {
				found = n
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			f(c)
		}
	}
	f(parsed)
	if found == nil {
		return nil, ErrNoContainer
	}

	var buf bytes.Buffer
	if err := html.Render(&buf, found); err != nil {
		return nil, fmt.Errorf("capture: render container: %w", err)
	}
	return buf.Bytes(), nil
}

func childElementCount(n *html.Node) int {
	count := 0
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			count++
		}
	}
	return count
}

func containsAny(text string, markers []string) bool {
	for _, m := range markers {
		if m != "" && strings.Contains(text, m) {
			return true
		}
	}
	return false
}
