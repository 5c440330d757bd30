// Package decode extracts structured data from the booking application's
// served markup. Each decoder has a documented output contract; the exact
// markup patterns are an implementation detail and are covered by fixture
// tests.
package decode

import (
	"errors"
	"io"
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

// ErrNoForm is returned when a page expected to carry the federation
// auto-submit form has none.
var ErrNoForm = errors.New("no form found in document")

// verificationTokenField is the hidden anti-forgery input the application
// embeds on every served page.
const verificationTokenField = "__RequestVerificationToken"

// ParseAutoSubmitForm extracts the action URL and every hidden input
// name/value pair from the first form in the document. Attribute values are
// returned HTML-unescaped. The field order is not significant; the payload
// is resubmitted as a whole.
func ParseAutoSubmitForm(r io.Reader) (action string, fields map[string]string, err error) {
	doc, err := html.Parse(r)
	if err != nil {
		return "", nil, err
	}
	form := findNode(doc, func(n *html.Node) bool {
		return n.Type == html.ElementNode && n.Data == "form"
	})
	if form == nil {
		return "", nil, ErrNoForm
	}
	action = attr(form, "action")
	fields = make(map[string]string)
	walk(form, func(n *html.Node) {
		if n.Type != html.ElementNode || n.Data != "input" {
			return
		}
		if !strings.EqualFold(attr(n, "type"), "hidden") {
			return
		}
		if name := attr(n, "name"); name != "" {
			fields[name] = attr(n, "value")
		}
	})
	return action, fields, nil
}

// ParseVerificationToken extracts the anti-forgery token from a served page.
// The second return is false when the page carries no token field.
func ParseVerificationToken(r io.Reader) (string, bool) {
	doc, err := html.Parse(r)
	if err != nil {
		return "", false
	}
	node := findNode(doc, func(n *html.Node) bool {
		return n.Type == html.ElementNode && n.Data == "input" &&
			attr(n, "name") == verificationTokenField
	})
	if node == nil {
		return "", false
	}
	value := attr(node, "value")
	return value, value != ""
}

// IsJSONBody reports whether a response body looks like a JSON document.
// The server answers some empty result sets with an HTML fragment instead
// of JSON, so shape is the only reliable signal.
func IsJSONBody(body []byte) bool {
	trimmed := strings.TrimSpace(string(body))
	return strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[")
}

// RoomAvailability is one resource's block from the bulk-availability HTML:
// the displayed room name and its available slots in document order.
type RoomAvailability struct {
	Name  string
	Slots []HTMLSlot
}

// HTMLSlot is one available slot scraped from a resource block.
type HTMLSlot struct {
	ID        string
	TimeRange string
}

var (
	roomNameRe   = regexp.MustCompile(`<span class="d-block d-md-none font-weight-bold">Name:</span>\s*([A-Z0-9\-]+)`)
	slotAnchorRe = regexp.MustCompile(`data-sltid=([a-f0-9\-]+)`)
	slotTimeRe   = regexp.MustCompile(`(?s)class='time-slot-white.*?>\s*(\d{2}:\d{2}-\d{2}:\d{2})`)
)

// ParseAvailability decodes the bulk-availability HTML into per-resource
// blocks. Only slots whose markup state marks them available appear; blocks
// without a recognizable room name are skipped. Order follows the document
// exactly, with no sorting or de-duplication: positional slot selection
// depends on it.
func ParseAvailability(body string) []RoomAvailability {
	var rooms []RoomAvailability
	for _, block := range splitBlocks(body) {
		name := roomNameRe.FindStringSubmatch(block)
		if name == nil {
			continue
		}
		room := RoomAvailability{Name: name[1]}
		// Each slot's state markup sits between its data-sltid anchor and
		// the next anchor; pairing them per segment keeps an unavailable
		// slot's id from borrowing the next slot's time label.
		anchors := slotAnchorRe.FindAllStringSubmatchIndex(block, -1)
		for i, anchor := range anchors {
			segEnd := len(block)
			if i+1 < len(anchors) {
				segEnd = anchors[i+1][0]
			}
			segment := block[anchor[1]:segEnd]
			if m := slotTimeRe.FindStringSubmatch(segment); m != nil {
				room.Slots = append(room.Slots, HTMLSlot{
					ID:        block[anchor[2]:anchor[3]],
					TimeRange: m[1],
				})
			}
		}
		rooms = append(rooms, room)
	}
	return rooms
}

// splitBlocks cuts the document at each resource card boundary.
func splitBlocks(body string) []string {
	const marker = `<div class="card fa-sm">`
	parts := strings.Split(body, marker)
	if len(parts) < 2 {
		return nil
	}
	blocks := make([]string, 0, len(parts)-1)
	for _, p := range parts[1:] {
		blocks = append(blocks, marker+p)
	}
	return blocks
}

func findNode(n *html.Node, match func(*html.Node) bool) *html.Node {
	if match(n) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findNode(c, match); found != nil {
			return found
		}
	}
	return nil
}

func walk(n *html.Node, visit func(*html.Node)) {
	visit(n)
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, visit)
	}
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
