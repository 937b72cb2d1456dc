package network

import (
	"bytes"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/net/html"

	"github.com/bitfsorg/libbabel-go/storage"
)

// postformPattern extracts the five location arguments from the onclick
// handler of a search result link.
var postformPattern = regexp.MustCompile(`postform\('(.*?)','(.*?)','(.*?)','(.*?)','(.*?)'\)`)

// parseLocation finds the first result link inside div.location and
// returns the address in its postform call.
func parseLocation(body []byte) (storage.Address, error) {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return storage.Address{}, fmt.Errorf("%w: %w", ErrInvalidResponse, err)
	}
	loc := find(doc, func(n *html.Node) bool {
		return n.Type == html.ElementNode && n.Data == "div" && hasClass(n, "location")
	})
	if loc == nil {
		return storage.Address{}, fmt.Errorf("%w: no location in search response", ErrNoResult)
	}
	link := find(loc, func(n *html.Node) bool {
		return n.Type == html.ElementNode && n.Data == "a" && hasClass(n, "intext")
	})
	if link == nil {
		return storage.Address{}, fmt.Errorf("%w: no result link in location", ErrNoResult)
	}
	onclick, ok := attr(link, "onclick")
	if !ok {
		return storage.Address{}, fmt.Errorf("%w: result link has no onclick", ErrInvalidResponse)
	}
	m := postformPattern.FindStringSubmatch(onclick)
	if m == nil {
		return storage.Address{}, fmt.Errorf("%w: unrecognized onclick %q", ErrInvalidResponse, onclick)
	}

	addr := storage.Address{Hex: m[1]}
	for i, dst := range []*int{&addr.Wall, &addr.Shelf, &addr.Volume, &addr.Page} {
		n, err := strconv.Atoi(strings.TrimSpace(m[i+2]))
		if err != nil {
			return storage.Address{}, fmt.Errorf("%w: coordinate %q: %w", ErrInvalidResponse, m[i+2], err)
		}
		*dst = n
	}
	if err := addr.Validate(); err != nil {
		return storage.Address{}, fmt.Errorf("%w: %w", ErrInvalidResponse, err)
	}
	return addr, nil
}

// parseTextblock returns the text content of pre#textblock.
func parseTextblock(body []byte) (string, error) {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidResponse, err)
	}
	pre := find(doc, func(n *html.Node) bool {
		if n.Type != html.ElementNode || n.Data != "pre" {
			return false
		}
		id, _ := attr(n, "id")
		return id == "textblock"
	})
	if pre == nil {
		return "", fmt.Errorf("%w: no textblock in page", ErrNoResult)
	}
	var sb strings.Builder
	collectText(pre, &sb)
	return sb.String(), nil
}

// find returns the first node in document order under n matching match.
func find(n *html.Node, match func(*html.Node) bool) *html.Node {
	if match(n) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := find(c, match); found != nil {
			return found
		}
	}
	return nil
}

func collectText(n *html.Node, sb *strings.Builder) {
	if n.Type == html.TextNode {
		sb.WriteString(n.Data)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, sb)
	}
}

func attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func hasClass(n *html.Node, class string) bool {
	v, ok := attr(n, "class")
	if !ok {
		return false
	}
	for _, c := range strings.Fields(v) {
		if c == class {
			return true
		}
	}
	return false
}
