// Package extract turns message bodies into plain text for indexing.
package extract

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const (
	ContentTypeHTML = "html"
	ContentTypeText = "text"
)

const blockElements = "p, div, br, li, tr, h1, h2, h3, h4, h5, h6, blockquote, pre, table, ul, ol"

// Text returns the readable text of body. HTML bodies are parsed and
// stripped of markup; anything else is only whitespace-normalized.
func Text(contentType, body string) (string, error) {
	if !strings.EqualFold(contentType, ContentTypeHTML) {
		return normalize(body), nil
	}
	return HTMLToText(body)
}

// HTMLToText drops scripts, styles and head content and keeps one line per
// block element.
func HTMLToText(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("failed to parse html body: %w", err)
	}

	doc.Find("script, style, head, noscript").Remove()

	doc.Find(blockElements).Each(func(_ int, s *goquery.Selection) {
		if goquery.NodeName(s) == "br" {
			s.ReplaceWithHtml("\n")
			return
		}
		s.AppendHtml("\n")
	})

	return normalize(doc.Text()), nil
}

// normalize collapses runs of spaces inside lines and drops blank lines.
func normalize(text string) string {
	text = strings.ReplaceAll(text, "\u00a0", " ")
	text = strings.ReplaceAll(text, "\r\n", "\n")

	lines := strings.Split(text, "\n")
	out := lines[:0]
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}
