package extract

import (
	"strings"

	"golang.org/x/net/html"
)

// NormalizeEvidence reduces raw evidence to plain text suitable for a
// prompt. HTML evidence is walked for visible text; plain text passes
// through with whitespace collapsed.
func NormalizeEvidence(content string) string {
	trimmed := strings.TrimSpace(content)
	if !looksLikeHTML(trimmed) {
		return collapseWhitespace(trimmed)
	}

	doc, err := html.Parse(strings.NewReader(trimmed))
	if err != nil {
		// Unparseable markup still carries text; fall back to the raw form.
		return collapseWhitespace(trimmed)
	}
	return collapseWhitespace(visibleText(doc))
}

// Truncate caps text at max characters, cutting at a word boundary when one
// is near the cap.
func Truncate(text string, max int) string {
	if max <= 0 || len(text) <= max {
		return text
	}
	cut := text[:max]
	if idx := strings.LastIndexByte(cut, ' '); idx > 0 && idx > max-200 {
		cut = cut[:idx]
	}
	return cut
}

func looksLikeHTML(s string) bool {
	lower := strings.ToLower(s)
	return strings.Contains(lower, "<html") ||
		strings.Contains(lower, "<body") ||
		strings.Contains(lower, "<div") ||
		strings.Contains(lower, "<p>")
}

// visibleText extracts text nodes from HTML, skipping scripts/styles.
func visibleText(n *html.Node) string {
	var buf strings.Builder

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript", "iframe":
				return
			}
		}

		if n.Type == html.TextNode {
			text := strings.TrimSpace(n.Data)
			if text != "" {
				buf.WriteString(text)
				buf.WriteString(" ")
			}
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}

	walk(n)
	return buf.String()
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
