package executor

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// skipTextElements are HTML elements whose content contributes no
// readable text to an http_request action's captured message.
var skipTextElements = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Head:     true,
}

// extractReadableText parses an HTML document and returns its visible
// text, collapsed to single spaces, so an HttpRequest action against
// an HTML endpoint yields a usable Result.Message instead of raw
// markup. Malformed input falls back to the input unchanged.
func extractReadableText(raw string) string {
	doc, err := html.Parse(strings.NewReader(raw))
	if err != nil {
		return raw
	}
	var sb strings.Builder
	walkText(doc, &sb)
	return cleanWhitespace(sb.String())
}

func walkText(n *html.Node, sb *strings.Builder) {
	if n.Type == html.ElementNode && skipTextElements[n.DataAtom] {
		return
	}
	if n.Type == html.TextNode {
		sb.WriteString(n.Data)
		sb.WriteString(" ")
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walkText(c, sb)
	}
}

func cleanWhitespace(s string) string {
	fields := strings.Fields(s)
	return strings.Join(fields, " ")
}
