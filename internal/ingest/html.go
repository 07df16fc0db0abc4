package ingest

import (
	"strings"

	"golang.org/x/net/html"
)

// ExtractHTML reduces an HTML document to readable text. Script, style, and
// head content is dropped; block-level elements become paragraph breaks so
// the result chunks cleanly with ChunkText.
func ExtractHTML(content string) (string, error) {
	tok := html.NewTokenizer(strings.NewReader(content))

	var b strings.Builder
	skipDepth := 0

	for {
		tt := tok.Next()
		switch tt {
		case html.ErrorToken:
			// io.EOF ends the document; the tokenizer recovers from
			// malformed markup on its own, so any other error is EOF-like.
			return collapseBlankLines(b.String()), nil

		case html.StartTagToken:
			name, _ := tok.TagName()
			switch string(name) {
			case "script", "style", "head", "noscript":
				skipDepth++
			case "p", "div", "section", "article", "li", "br", "tr",
				"h1", "h2", "h3", "h4", "h5", "h6", "pre":
				b.WriteString("\n\n")
			}

		case html.EndTagToken:
			name, _ := tok.TagName()
			switch string(name) {
			case "script", "style", "head", "noscript":
				if skipDepth > 0 {
					skipDepth--
				}
			}

		case html.TextToken:
			if skipDepth == 0 {
				text := strings.TrimSpace(string(tok.Text()))
				if text != "" {
					if b.Len() > 0 && !strings.HasSuffix(b.String(), "\n") {
						b.WriteString(" ")
					}
					b.WriteString(text)
				}
			}
		}
	}
}

func collapseBlankLines(s string) string {
	lines := strings.Split(s, "\n")
	var out []string
	blank := true
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			if !blank {
				out = append(out, "")
			}
			blank = true
			continue
		}
		out = append(out, line)
		blank = false
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
