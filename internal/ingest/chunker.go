// Package ingest turns documentation files into embedded, metadata-rich
// chunks in the vector index. Markdown is chunked along its heading
// structure; PDF and HTML are reduced to text first and chunked by
// paragraph groups.
package ingest

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"docqa/internal/retrieval"
)

// DocChunk pairs chunk text with its index metadata.
type DocChunk struct {
	Text string
	Meta retrieval.Chunk
}

const (
	// KindSection is a markdown section under a heading path.
	KindSection = "section"
	// KindStep is a single numbered instruction extracted from a section.
	KindStep = "step"
	// KindText is an unstructured chunk from a PDF, HTML, or plain file.
	KindText = "text"
)

var (
	headingRe = regexp.MustCompile(`^(#{1,6})\s+(.*)$`)
	stepRe    = regexp.MustCompile(`^\s*(\d+)[.)]\s+(.+)$`)
	fenceRe   = regexp.MustCompile("^```\\s*([a-zA-Z0-9_+-]*)\\s*$")
)

var commandLangs = map[string]struct{}{
	"bash": {}, "sh": {}, "shell": {}, "console": {}, "zsh": {}, "": {},
}

// ChunkMarkdown splits markdown content into one chunk per heading section,
// plus one chunk per numbered step found inside a section. Fenced shell
// blocks mark the enclosing section as has-code and their non-comment lines
// become the command list. Step chunks extend the section path with a
// "step N" element so every chunk keeps a distinct identity.
func ChunkMarkdown(docID, content string) []DocChunk {
	lines := strings.Split(content, "\n")

	var chunks []DocChunk
	var path []string

	var body []string
	var commands []string
	sectionStart := 1
	bodyStart := 1
	inFence := false
	fenceIsCommand := false

	flush := func(endLine int) {
		text := strings.TrimSpace(strings.Join(body, "\n"))
		if text == "" {
			body = body[:0]
			commands = nil
			return
		}
		meta := retrieval.Chunk{
			DocID:          docID,
			SectionPath:    append([]string(nil), path...),
			SectionPathStr: strings.Join(path, " > "),
			Kind:           KindSection,
			HasCode:        len(commands) > 0,
			Commands:       commands,
			StartLine:      sectionStart,
			EndLine:        endLine,
		}
		chunks = append(chunks, DocChunk{Text: text, Meta: meta})
		chunks = append(chunks, stepChunks(docID, path, body, bodyStart)...)
		body = body[:0]
		commands = nil
	}

	for i, line := range lines {
		lineNo := i + 1

		if m := fenceRe.FindStringSubmatch(line); m != nil {
			if inFence {
				inFence = false
				fenceIsCommand = false
			} else {
				inFence = true
				_, fenceIsCommand = commandLangs[strings.ToLower(m[1])]
			}
			body = append(body, line)
			continue
		}

		if inFence {
			if fenceIsCommand {
				cmd := strings.TrimSpace(line)
				if cmd != "" && !strings.HasPrefix(cmd, "#") {
					commands = append(commands, cmd)
				}
			}
			body = append(body, line)
			continue
		}

		if m := headingRe.FindStringSubmatch(line); m != nil {
			flush(lineNo - 1)
			level := len(m[1])
			title := strings.TrimSpace(m[2])
			if level-1 < len(path) {
				path = path[:level-1]
			}
			path = append(path, title)
			sectionStart = lineNo
			bodyStart = lineNo + 1
			continue
		}

		body = append(body, line)
	}
	flush(len(lines))

	return chunks
}

// stepChunks extracts numbered instructions ("1. do this") from a section
// body as standalone chunks. Continuation lines that are not themselves
// numbered are folded into the preceding step.
func stepChunks(docID string, path []string, body []string, sectionStart int) []DocChunk {
	var chunks []DocChunk
	var cur *DocChunk
	inFence := false

	for i, line := range body {
		lineNo := sectionStart + i

		if fenceRe.MatchString(line) {
			inFence = !inFence
		}
		if inFence || fenceRe.MatchString(line) {
			cur = nil
			continue
		}

		m := stepRe.FindStringSubmatch(line)
		if m == nil {
			if cur != nil && strings.TrimSpace(line) != "" {
				cur.Text += "\n" + strings.TrimSpace(line)
				cur.Meta.EndLine = lineNo
			} else {
				cur = nil
			}
			continue
		}

		stepNo, err := strconv.Atoi(m[1])
		if err != nil {
			cur = nil
			continue
		}

		stepPath := append(append([]string(nil), path...), fmt.Sprintf("step %d", stepNo))
		chunks = append(chunks, DocChunk{
			Text: strings.TrimSpace(m[2]),
			Meta: retrieval.Chunk{
				DocID:          docID,
				SectionPath:    stepPath,
				SectionPathStr: strings.Join(stepPath, " > "),
				Kind:           KindStep,
				StepNo:         stepNo,
				StartLine:      lineNo,
				EndLine:        lineNo,
			},
		})
		cur = &chunks[len(chunks)-1]
	}

	return chunks
}

const (
	maxTextChunkChars = 1500
	minTextChunkChars = 200
)

// ChunkText splits unstructured text into paragraph-grouped chunks of
// roughly maxTextChunkChars. Paragraph boundaries are preserved; a trailing
// fragment below minTextChunkChars is merged into the previous chunk.
func ChunkText(docID, content string) []DocChunk {
	paragraphs := strings.Split(content, "\n\n")

	var parts []string
	var cur strings.Builder
	for _, p := range paragraphs {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if cur.Len() > 0 && cur.Len()+len(p) > maxTextChunkChars {
			parts = append(parts, cur.String())
			cur.Reset()
		}
		if cur.Len() > 0 {
			cur.WriteString("\n\n")
		}
		cur.WriteString(p)
	}
	if cur.Len() > 0 {
		if len(parts) > 0 && cur.Len() < minTextChunkChars {
			parts[len(parts)-1] += "\n\n" + cur.String()
		} else {
			parts = append(parts, cur.String())
		}
	}

	chunks := make([]DocChunk, 0, len(parts))
	for i, text := range parts {
		path := []string{fmt.Sprintf("part %d", i+1)}
		chunks = append(chunks, DocChunk{
			Text: text,
			Meta: retrieval.Chunk{
				DocID:          docID,
				SectionPath:    path,
				SectionPathStr: strings.Join(path, " > "),
				Kind:           KindText,
			},
		})
	}
	return chunks
}
