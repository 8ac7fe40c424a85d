package markdown

import (
	"regexp"
	"strings"

	"github.com/russross/blackfriday/v2"
)

var (
	tagPattern     = regexp.MustCompile(`</?[a-zA-Z]+(?:\s[^>]*)?>`)
	multiNewlines  = regexp.MustCompile(`\n{3,}`)
	listItemOpen   = "<li>"
	blockSeparator = regexp.MustCompile(`</(?:p|h[1-6]|pre|blockquote)>`)
)

// ToPlainText normalizes LLM markdown output to plain chat text. The model
// is free to emit headings, emphasis and lists; the chat contract is plain
// sentences with bullet markers preserved.
func ToPlainText(md string) string {
	if md == "" {
		return ""
	}

	html := string(blackfriday.Run([]byte(md), blackfriday.WithExtensions(blackfriday.CommonExtensions)))

	// Block-level closers become newlines so paragraphs stay separated.
	html = blockSeparator.ReplaceAllString(html, "\n")
	html = strings.ReplaceAll(html, listItemOpen, "• ")
	html = strings.ReplaceAll(html, "</li>", "\n")
	html = strings.ReplaceAll(html, "<br>", "\n")
	html = strings.ReplaceAll(html, "<br/>", "\n")

	html = tagPattern.ReplaceAllString(html, "")

	html = strings.ReplaceAll(html, "&amp;", "&")
	html = strings.ReplaceAll(html, "&lt;", "<")
	html = strings.ReplaceAll(html, "&gt;", ">")
	html = strings.ReplaceAll(html, "&quot;", "\"")
	html = strings.ReplaceAll(html, "&#39;", "'")

	html = multiNewlines.ReplaceAllString(html, "\n\n")

	return strings.TrimSpace(html)
}
