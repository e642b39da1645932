// Package transcript merges recognized fragments into committed text.
package transcript

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Options controls transcript assembly formatting behavior.
type Options struct {
	TrailingSpace bool
}

// Assemble joins final fragments, collapses whitespace, and applies Options.
func Assemble(finalSegments []string, opts Options) string {
	if len(finalSegments) == 0 {
		return ""
	}

	normalized := Normalize(strings.Join(finalSegments, " "))
	if normalized == "" {
		return ""
	}

	if opts.TrailingSpace {
		return normalized + " "
	}
	return normalized
}

// Normalize collapses every whitespace run to one space and trims the ends.
func Normalize(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// AppendFinal appends chunk to prev, inserting one space when neither side
// already supplies a boundary. prev is always a prefix of the result.
func AppendFinal(prev, chunk string) string {
	if chunk == "" {
		return prev
	}
	if prev == "" {
		return chunk
	}
	last, _ := utf8.DecodeLastRuneInString(prev)
	first, _ := utf8.DecodeRuneInString(chunk)
	if unicode.IsSpace(last) || unicode.IsSpace(first) {
		return prev + chunk
	}
	return prev + " " + chunk
}

// Concat joins the fragments of one result event the way AppendFinal would.
func Concat(fragments []string) string {
	out := ""
	for _, fragment := range fragments {
		out = AppendFinal(out, fragment)
	}
	return out
}
