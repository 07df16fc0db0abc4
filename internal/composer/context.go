// Package composer renders retrieved hits into a prompt-ready context block
// and a parallel list of citation-safe source descriptors.
package composer

import (
	"fmt"
	"strings"

	"docqa/internal/retrieval"
)

// Source is a citation descriptor for one context block. It carries only
// citation-safe fields: the stable document id with a line range and the
// section path, never raw file-system paths.
type Source struct {
	Ref     string `json:"source"`
	Section string `json:"section,omitempty"`
	Kind    string `json:"kind,omitempty"`
	StepNo  int    `json:"step_no,omitempty"`
	HasCode bool   `json:"has_code"`
}

// Context is the assembled prompt context plus its sources.
type Context struct {
	Text    string
	Sources []Source
}

const blockSeparator = "\n\n---\n\n"

// Build renders one block per hit: a Source/Section header, the chunk text,
// and a fenced command listing when the chunk carries extracted commands.
// The Sources list is parallel to the blocks.
func Build(hits []retrieval.AggregatedHit) Context {
	var blocks []string
	sources := make([]Source, 0, len(hits))

	for _, h := range hits {
		md := h.Meta
		ref := fmt.Sprintf("%s:%d-%d", md.DocID, md.StartLine, md.EndLine)

		sources = append(sources, Source{
			Ref:     ref,
			Section: md.SectionPathStr,
			Kind:    md.Kind,
			StepNo:  md.StepNo,
			HasCode: md.HasCode,
		})

		var b strings.Builder
		fmt.Fprintf(&b, "Source: %s\n", ref)
		if md.SectionPathStr != "" {
			fmt.Fprintf(&b, "Section: %s\n", md.SectionPathStr)
		}
		b.WriteString(h.Text)

		if md.HasCode && len(md.Commands) > 0 {
			b.WriteString("\n\n```\n")
			b.WriteString(strings.Join(md.Commands, "\n"))
			b.WriteString("\n```")
		}

		blocks = append(blocks, b.String())
	}

	return Context{
		Text:    strings.Join(blocks, blockSeparator),
		Sources: sources,
	}
}
