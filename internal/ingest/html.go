package ingest

import (
	"bytes"
	"strings"

	"golang.org/x/net/html"
)

// Shared helpers for walking the loosely-structured HTML reports the
// scanning tools emit. html.Parse is tolerant by design, so "malformed"
// for these artifacts means the expected section markers are absent, not
// that the markup fails to parse.

func parseHTML(data []byte) (*html.Node, error) {
	return html.Parse(bytes.NewReader(data))
}

func attrVal(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attrVal(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

// walk visits every element node in document order.
func walk(n *html.Node, visit func(*html.Node) bool) bool {
	if n.Type == html.ElementNode && !visit(n) {
		return false
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if !walk(c, visit) {
			return false
		}
	}
	return true
}

// findMarked returns the first element matching tag (any tag when empty)
// whose id or class equals marker.
func findMarked(root *html.Node, tag, marker string) *html.Node {
	var found *html.Node
	walk(root, func(n *html.Node) bool {
		if tag != "" && n.Data != tag {
			return true
		}
		if attrVal(n, "id") == marker || hasClass(n, marker) {
			found = n
			return false
		}
		return true
	})
	return found
}

// elementsByTag collects descendants with the given tag in document order.
func elementsByTag(root *html.Node, tag string) []*html.Node {
	var out []*html.Node
	walk(root, func(n *html.Node) bool {
		if n.Data == tag && n != root {
			out = append(out, n)
		}
		return true
	})
	return out
}

// nodeText concatenates the text content of a node, collapsing whitespace.
func nodeText(n *html.Node) string {
	var sb strings.Builder
	var rec func(*html.Node)
	rec = func(c *html.Node) {
		if c.Type == html.TextNode {
			sb.WriteString(c.Data)
			sb.WriteString(" ")
		}
		for cc := c.FirstChild; cc != nil; cc = cc.NextSibling {
			rec(cc)
		}
	}
	rec(n)
	return strings.Join(strings.Fields(sb.String()), " ")
}

// rowCells returns the trimmed text of each td/th cell of a table row.
func rowCells(tr *html.Node) []string {
	var cells []string
	for c := tr.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && (c.Data == "td" || c.Data == "th") {
			cells = append(cells, nodeText(c))
		}
	}
	return cells
}

// rowIsHeader reports whether a row consists of th cells only.
func rowIsHeader(tr *html.Node) bool {
	sawTH := false
	for c := tr.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode {
			continue
		}
		switch c.Data {
		case "th":
			sawTH = true
		case "td":
			return false
		}
	}
	return sawTH
}
