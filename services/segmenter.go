package services

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"docllama/models"

	"github.com/google/uuid"
)

// separators in priority order; "" falls back to single characters.
var separators = []string{"\n\n", "\n", " ", ""}

var chunkNamespace = uuid.NewSHA1(uuid.NameSpaceOID, []byte("docllama/chunk"))

// Segmenter splits page text into bounded, overlapping chunks. Lengths are
// counted in runes.
type Segmenter struct {
	chunkChars int
	overlap    int
}

// NewSegmenter validates the bounds. overlap >= chunkChars is rejected rather than clamped.
func NewSegmenter(chunkChars, overlap int) (*Segmenter, error) {
	if chunkChars <= 0 {
		return nil, fmt.Errorf("%w: chunk_chars must be positive, got %d", models.ErrValidation, chunkChars)
	}
	if overlap < 0 || overlap >= chunkChars {
		return nil, fmt.Errorf("%w: overlap must satisfy 0 <= overlap < chunk_chars (%d), got %d",
			models.ErrValidation, chunkChars, overlap)
	}
	return &Segmenter{chunkChars: chunkChars, overlap: overlap}, nil
}

// Segment chunks every page independently. Pages are 1-indexed and ordinals
// run across the whole document. Empty pages produce no chunks.
func (s *Segmenter) Segment(file string, pages []string) []models.Chunk {
	var chunks []models.Chunk
	ordinal := 0
	for i, text := range pages {
		page := i + 1
		for _, piece := range s.splitPage(text) {
			chunks = append(chunks, models.Chunk{
				ID:      ChunkID(file, page, ordinal, piece.text),
				File:    file,
				Page:    page,
				Ordinal: ordinal,
				Text:    piece.text,
				Overlap: piece.overlap,
			})
			ordinal++
		}
	}
	return chunks
}

// ChunkID derives a stable identifier from the chunk's position and content,
// so re-ingesting identical content overwrites instead of duplicating.
func ChunkID(file string, page, ordinal int, text string) string {
	key := file + "\x00" + strconv.Itoa(page) + "\x00" + strconv.Itoa(ordinal) + "\x00" + text
	return uuid.NewSHA1(chunkNamespace, []byte(key)).String()
}

type pagePiece struct {
	text    string
	overlap int
}

type unit struct {
	text string
	size int
}

func (s *Segmenter) splitPage(text string) []pagePiece {
	if text == "" {
		return nil
	}

	var (
		pieces     []pagePiece
		current    []unit
		currentLen int
		prefixLen  int
	)

	emit := func() {
		var b strings.Builder
		for _, u := range current {
			b.WriteString(u.text)
		}
		pieces = append(pieces, pagePiece{text: b.String(), overlap: prefixLen})
	}

	for _, u := range s.units(text, separators) {
		if currentLen+u.size > s.chunkChars && currentLen > prefixLen {
			emit()
			current, currentLen = s.overlapTail(current, u.size)
			prefixLen = currentLen
		}
		current = append(current, u)
		currentLen += u.size
	}
	if currentLen > prefixLen {
		emit()
	}
	return pieces
}

// overlapTail keeps whole trailing units of the finished chunk, totalling at
// most overlap runes and leaving room for the next unit.
func (s *Segmenter) overlapTail(current []unit, next int) ([]unit, int) {
	size := 0
	start := len(current)
	for start > 0 {
		candidate := size + current[start-1].size
		if candidate > s.overlap || candidate+next > s.chunkChars {
			break
		}
		size = candidate
		start--
	}
	tail := make([]unit, len(current)-start)
	copy(tail, current[start:])
	return tail, size
}

// units splits text recursively on the highest priority separator present
// until every unit fits. Separators stay attached to the preceding unit so the
// units concatenate back to text exactly.
func (s *Segmenter) units(text string, seps []string) []unit {
	size := utf8.RuneCountInString(text)
	if size <= s.chunkChars || len(seps) == 0 {
		return []unit{{text: text, size: size}}
	}

	var sep string
	var rest []string
	for i, candidate := range seps {
		if candidate == "" || strings.Contains(text, candidate) {
			sep, rest = candidate, seps[i+1:]
			break
		}
	}

	if sep == "" {
		out := make([]unit, 0, size)
		for len(text) > 0 {
			_, width := utf8.DecodeRuneInString(text)
			out = append(out, unit{text: text[:width], size: 1})
			text = text[width:]
		}
		return out
	}

	var out []unit
	for _, part := range strings.SplitAfter(text, sep) {
		if part == "" {
			continue
		}
		out = append(out, s.units(part, rest)...)
	}
	return out
}
