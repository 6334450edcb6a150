package keywords

import (
	"strings"

	"golang.org/x/net/html"
)

// StripMarkup extracts the visible text from an HTML fragment so markup
// never leaks into keyword matching ("<b>Go</b>" detects "Go", and an
// attribute value never matches a dictionary entry). Plain text passes
// through unchanged; script and style bodies are dropped.
func StripMarkup(s string) string {
	if !strings.Contains(s, "<") {
		return s
	}

	tok := html.NewTokenizer(strings.NewReader(s))
	var b strings.Builder
	skipDepth := 0
	for {
		switch tok.Next() {
		case html.ErrorToken:
			return b.String()
		case html.StartTagToken:
			name, _ := tok.TagName()
			if isSkippedTag(string(name)) {
				skipDepth++
			}
		case html.EndTagToken:
			name, _ := tok.TagName()
			if isSkippedTag(string(name)) && skipDepth > 0 {
				skipDepth--
			}
		case html.TextToken:
			if skipDepth > 0 {
				continue
			}
			text := strings.TrimSpace(string(tok.Text()))
			if text == "" {
				continue
			}
			if b.Len() > 0 {
				b.WriteByte(' ')
			}
			b.WriteString(text)
		}
	}
}

func isSkippedTag(name string) bool {
	return name == "script" || name == "style"
}
