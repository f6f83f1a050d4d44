package detector

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

// skippedElements are containers whose text is never user-visible and
// must not trigger forbidden-text rules (a script mentioning "error"
// is not a violation).
var skippedElements = map[string]struct{}{
	"script":   {},
	"style":    {},
	"noscript": {},
	"template": {},
	"head":     {},
	"iframe":   {},
	"svg":      {},
}

// VisibleText extracts the user-visible text from raw page HTML,
// collapsing runs of whitespace to single spaces. Drivers use it to
// populate Snapshot.Text from the page source.
func VisibleText(rawHTML string) (string, error) {
	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return "", fmt.Errorf("failed to parse page HTML: %w", err)
	}

	var builder strings.Builder
	collectText(doc, &builder)
	return strings.Join(strings.Fields(builder.String()), " "), nil
}

func collectText(n *html.Node, builder *strings.Builder) {
	switch n.Type {
	case html.CommentNode:
		return
	case html.ElementNode:
		if _, skip := skippedElements[strings.ToLower(n.Data)]; skip {
			return
		}
	case html.TextNode:
		builder.WriteString(n.Data)
		builder.WriteByte(' ')
		return
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, builder)
	}
}
