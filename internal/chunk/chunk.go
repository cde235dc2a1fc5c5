// Package chunk splits memo content into retrieval-sized pieces.
//
// The splitter is structural: it prefers markdown headings, then paragraph
// boundaries, then line breaks, then sentence ends, then word boundaries, and
// only slices mid-word when a single token exceeds the target size. Pieces
// below the minimum are merged into their neighbor so the index never stores
// fragments too small to carry meaning.
package chunk

import (
	"strings"
)

const (
	// DefaultSize is the target chunk length in characters.
	DefaultSize = 1024
	// DefaultMinChars is the smallest chunk the splitter will emit.
	DefaultMinChars = 128
)

// separator is one level of the splitting ladder. Prefix separators stay
// attached to the text that follows them, so a heading keeps its marker.
type separator struct {
	text   string
	prefix bool
}

// separators in priority order. The empty string means hard character split.
var separators = []separator{
	{text: "\n## ", prefix: true},
	{text: "\n# ", prefix: true},
	{text: "\n\n"},
	{text: "\n"},
	{text: ". "},
	{text: " "},
	{text: ""},
}

// Splitter holds chunking parameters. The zero value is not usable; use New.
type Splitter struct {
	size     int
	minChars int
}

// New returns a Splitter with the given target size and minimum chunk length.
// Non-positive values fall back to the defaults.
func New(size, minChars int) *Splitter {
	if size <= 0 {
		size = DefaultSize
	}
	if minChars <= 0 || minChars > size {
		minChars = DefaultMinChars
		if minChars > size {
			minChars = size
		}
	}
	return &Splitter{size: size, minChars: minChars}
}

// Split breaks text into chunks of at most the target size. Whitespace-only
// input yields no chunks. Chunk order follows document order.
func (s *Splitter) Split(text string) []string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}
	pieces := s.split(trimmed, 0)
	return s.mergeSmall(pieces)
}

// split recursively divides text using the separator at the given level.
func (s *Splitter) split(text string, level int) []string {
	if len(text) <= s.size {
		if strings.TrimSpace(text) == "" {
			return nil
		}
		return []string{text}
	}
	if level >= len(separators) {
		return s.hardSplit(text)
	}

	sep := separators[level]
	if sep.text == "" {
		return s.hardSplit(text)
	}

	parts := strings.Split(text, sep.text)
	if len(parts) == 1 {
		// Separator absent at this level, try the next finer one.
		return s.split(text, level+1)
	}

	var chunks []string
	var current strings.Builder
	flush := func() {
		if current.Len() > 0 {
			chunks = append(chunks, current.String())
			current.Reset()
		}
	}

	for i, part := range parts {
		piece := part
		if sep.prefix {
			if i > 0 {
				piece = sep.text + piece
			}
		} else if i < len(parts)-1 {
			piece += sep.text
		}
		if len(piece) > s.size {
			flush()
			chunks = append(chunks, s.split(piece, level+1)...)
			continue
		}
		if current.Len()+len(piece) > s.size {
			flush()
		}
		current.WriteString(piece)
	}
	flush()
	return chunks
}

// hardSplit slices text into size-length runs on rune boundaries.
func (s *Splitter) hardSplit(text string) []string {
	var chunks []string
	runes := []rune(text)
	for start := 0; start < len(runes); start += s.size {
		end := min(start+s.size, len(runes))
		chunks = append(chunks, string(runes[start:end]))
	}
	return chunks
}

// mergeSmall folds chunks below the minimum into the previous chunk when the
// combined length stays within bounds, otherwise into the next one. A single
// undersized chunk is kept as is.
func (s *Splitter) mergeSmall(chunks []string) []string {
	var out []string
	for _, c := range chunks {
		c = strings.TrimPrefix(strings.TrimRight(c, " \n"), "\n")
		if strings.TrimSpace(c) == "" {
			continue
		}
		if len(c) < s.minChars && len(out) > 0 && len(out[len(out)-1])+1+len(c) <= s.size {
			out[len(out)-1] += "\n" + c
			continue
		}
		out = append(out, c)
	}
	// A leading fragment could not merge backward, fold it forward instead.
	if len(out) >= 2 && len(out[0]) < s.minChars && len(out[0])+1+len(out[1]) <= s.size {
		out[1] = out[0] + "\n" + out[1]
		out = out[1:]
	}
	return out
}
