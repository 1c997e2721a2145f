package ingest

import (
	"iter"
	"regexp"
	"strings"

	"github.com/WessleyAI/nlq-engine/engine/extract"
)

// paragraphBreak matches a run of two or more newlines, optionally separated
// by horizontal whitespace.
var paragraphBreak = regexp.MustCompile(`\n[ \t]*\n\s*`)

// Splitter turns extracted text into passages.
type Splitter func(text string) []string

// Splitters holds the chunking policy per document kind. Every kind uses the
// paragraph splitter unless overridden.
var Splitters = map[extract.Kind]Splitter{
	extract.KindTXT:  ParagraphChunks,
	extract.KindDOCX: ParagraphChunks,
	extract.KindPDF:  ParagraphChunks,
}

// Paragraphs yields the trimmed, non-empty passages of text separated by
// blank lines. The sequence is finite and yields lazily.
func Paragraphs(text string) iter.Seq[string] {
	return func(yield func(string) bool) {
		text = strings.ReplaceAll(text, "\r\n", "\n")
		rest := text
		for rest != "" {
			var part string
			if loc := paragraphBreak.FindStringIndex(rest); loc != nil {
				part, rest = rest[:loc[0]], rest[loc[1]:]
			} else {
				part, rest = rest, ""
			}
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if !yield(part) {
				return
			}
		}
	}
}

// ParagraphChunks collects Paragraphs into a slice.
func ParagraphChunks(text string) []string {
	var out []string
	for p := range Paragraphs(text) {
		out = append(out, p)
	}
	return out
}

// ChunkText splits text using the policy registered for kind, falling back
// to paragraphs. Blank input yields no chunks.
func ChunkText(text string, kind extract.Kind) []string {
	if split, ok := Splitters[kind]; ok && split != nil {
		return split(text)
	}
	return ParagraphChunks(text)
}
