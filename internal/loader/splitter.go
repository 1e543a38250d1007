package loader

import (
	"strings"
	"unicode/utf8"
)

const (
	DefaultChunkSize    = 4000
	DefaultChunkOverlap = 200
)

//nolint:gochecknoglobals // Read-only separator priority list.
var defaultSeparators = []string{"\n\n", "\n", " ", ""}

// Splitter cuts text into chunks of at most chunkSize runes, trying paragraph
// breaks first, then lines, then words, then single characters. Consecutive
// chunks share up to chunkOverlap runes.
type Splitter struct {
	chunkSize    int
	chunkOverlap int
	separators   []string
}

func NewSplitter(chunkSize, chunkOverlap int) *Splitter {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		chunkOverlap = 0
	}

	return &Splitter{
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
		separators:   defaultSeparators,
	}
}

func (s *Splitter) Split(text string) []string {
	return s.split(text, s.separators)
}

func (s *Splitter) split(text string, separators []string) []string {
	separator := separators[len(separators)-1]
	var rest []string

	for i, sep := range separators {
		if sep == "" {
			separator = sep
			break
		}
		if strings.Contains(text, sep) {
			separator = sep
			rest = separators[i+1:]
			break
		}
	}

	var chunks []string
	var good []string

	for _, piece := range splitKeepingSeparator(text, separator) {
		if runeLen(piece) < s.chunkSize {
			good = append(good, piece)
			continue
		}

		if len(good) > 0 {
			chunks = append(chunks, s.merge(good)...)
			good = nil
		}

		if len(rest) == 0 {
			chunks = append(chunks, piece)
		} else {
			chunks = append(chunks, s.split(piece, rest)...)
		}
	}

	if len(good) > 0 {
		chunks = append(chunks, s.merge(good)...)
	}

	return chunks
}

// merge packs pieces into chunks. Separators are already attached to the
// pieces, so they are concatenated as-is.
func (s *Splitter) merge(pieces []string) []string {
	var chunks []string
	var current []string
	total := 0

	for _, piece := range pieces {
		n := runeLen(piece)

		if total+n > s.chunkSize && len(current) > 0 {
			if chunk := strings.TrimSpace(strings.Join(current, "")); chunk != "" {
				chunks = append(chunks, chunk)
			}

			for total > s.chunkOverlap || (total+n > s.chunkSize && total > 0) {
				total -= runeLen(current[0])
				current = current[1:]
			}
		}

		current = append(current, piece)
		total += n
	}

	if chunk := strings.TrimSpace(strings.Join(current, "")); chunk != "" {
		chunks = append(chunks, chunk)
	}

	return chunks
}

func splitKeepingSeparator(text, separator string) []string {
	var parts []string

	if separator == "" {
		parts = make([]string, 0, utf8.RuneCountInString(text))
		for _, r := range text {
			parts = append(parts, string(r))
		}
		return parts
	}

	raw := strings.Split(text, separator)
	parts = make([]string, 0, len(raw))

	for i, p := range raw {
		if i > 0 {
			p = separator + p
		}
		if p != "" {
			parts = append(parts, p)
		}
	}

	return parts
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}
