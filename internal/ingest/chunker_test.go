package ingest

import (
	"reflect"
	"strings"
	"testing"
)

const sampleMarkdown = `# Install Guide

Welcome to the install guide.

## Quick Start

Follow these steps:

1. Download the release archive
2. Extract it to /opt
   and add it to your PATH
3. Run the daemon

## Build From Source

Clone and build:

` + "```bash" + `
git clone https://example.com/repo.git
# comment line is skipped
make build
` + "```" + `

Done.
`

func TestChunkMarkdown_SectionPaths(t *testing.T) {
	chunks := ChunkMarkdown("install.md", sampleMarkdown)

	var sections []string
	for _, c := range chunks {
		if c.Meta.Kind == KindSection {
			sections = append(sections, c.Meta.SectionPathStr)
		}
	}

	want := []string{
		"Install Guide",
		"Install Guide > Quick Start",
		"Install Guide > Build From Source",
	}
	if !reflect.DeepEqual(sections, want) {
		t.Errorf("section paths = %v, want %v", sections, want)
	}

	for _, c := range chunks {
		if c.Meta.DocID != "install.md" {
			t.Errorf("DocID = %q, want install.md", c.Meta.DocID)
		}
	}
}

func TestChunkMarkdown_ExtractsSteps(t *testing.T) {
	chunks := ChunkMarkdown("install.md", sampleMarkdown)

	var steps []DocChunk
	for _, c := range chunks {
		if c.Meta.Kind == KindStep {
			steps = append(steps, c)
		}
	}

	if len(steps) != 3 {
		t.Fatalf("steps = %d, want 3", len(steps))
	}
	if steps[0].Meta.StepNo != 1 || steps[2].Meta.StepNo != 3 {
		t.Errorf("step numbers = %d..%d, want 1..3", steps[0].Meta.StepNo, steps[2].Meta.StepNo)
	}
	if steps[1].Text != "Extract it to /opt\nand add it to your PATH" {
		t.Errorf("step 2 text = %q, want continuation folded in", steps[1].Text)
	}
	if steps[0].Meta.SectionPathStr != "Install Guide > Quick Start > step 1" {
		t.Errorf("step path = %q", steps[0].Meta.SectionPathStr)
	}

	// Step chunks must not collide with their parent section's identity.
	seen := map[string]bool{}
	for _, c := range chunks {
		id := c.Meta.DocID + "_" + c.Meta.SectionPathStr
		if seen[id] {
			t.Errorf("duplicate chunk identity %q", id)
		}
		seen[id] = true
	}
}

func TestChunkMarkdown_ExtractsCommands(t *testing.T) {
	chunks := ChunkMarkdown("install.md", sampleMarkdown)

	var build *DocChunk
	for i, c := range chunks {
		if c.Meta.Kind == KindSection && strings.HasSuffix(c.Meta.SectionPathStr, "Build From Source") {
			build = &chunks[i]
		}
	}
	if build == nil {
		t.Fatal("build section not found")
	}

	if !build.Meta.HasCode {
		t.Error("HasCode = false, want true")
	}
	want := []string{"git clone https://example.com/repo.git", "make build"}
	if !reflect.DeepEqual(build.Meta.Commands, want) {
		t.Errorf("Commands = %v, want %v (comments skipped)", build.Meta.Commands, want)
	}
	if !strings.Contains(build.Text, "make build") {
		t.Error("fenced content missing from section text")
	}
}

func TestChunkMarkdown_HeadingLevelPopsPath(t *testing.T) {
	md := "# A\n\ntext a\n\n## B\n\ntext b\n\n# C\n\ntext c\n"
	chunks := ChunkMarkdown("d.md", md)

	var last DocChunk
	for _, c := range chunks {
		if c.Meta.Kind == KindSection {
			last = c
		}
	}
	if last.Meta.SectionPathStr != "C" {
		t.Errorf("last section path = %q, want C (stack popped on level drop)", last.Meta.SectionPathStr)
	}
}

func TestChunkText_GroupsParagraphs(t *testing.T) {
	long := strings.Repeat("word ", 400) // ~2000 chars, forces a split
	content := "First paragraph.\n\n" + long + "\n\nLast paragraph."

	chunks := ChunkText("doc.pdf", content)
	if len(chunks) < 2 {
		t.Fatalf("chunks = %d, want content split", len(chunks))
	}
	for i, c := range chunks {
		if c.Meta.Kind != KindText {
			t.Errorf("Kind = %q, want %q", c.Meta.Kind, KindText)
		}
		if want := "part " + string(rune('1'+i)); c.Meta.SectionPathStr != want {
			t.Errorf("part path = %q, want %q", c.Meta.SectionPathStr, want)
		}
	}
}

func TestChunkText_Empty(t *testing.T) {
	if got := ChunkText("doc.txt", "  \n\n  "); len(got) != 0 {
		t.Errorf("chunks = %v, want none for blank input", got)
	}
}

func TestExtractHTML_DropsScriptAndKeepsText(t *testing.T) {
	html := `<html><head><title>ignored</title><style>.x{}</style></head>
<body><h1>Title</h1><p>Hello world.</p><script>alert(1)</script><p>Bye.</p></body></html>`

	text, err := ExtractHTML(html)
	if err != nil {
		t.Fatalf("ExtractHTML() error = %v", err)
	}
	for _, want := range []string{"Title", "Hello world.", "Bye."} {
		if !strings.Contains(text, want) {
			t.Errorf("text missing %q: %q", want, text)
		}
	}
	for _, banned := range []string{"alert", "ignored", ".x{}"} {
		if strings.Contains(text, banned) {
			t.Errorf("text leaked %q: %q", banned, text)
		}
	}
}
