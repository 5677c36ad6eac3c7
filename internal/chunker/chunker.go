package chunker

import (
	"regexp"
	"strconv"
	"strings"

	"chapter-tutor/internal/models"
)

var (
	pageMarkerRe = regexp.MustCompile(models.PageMarkerRegex)
	pageStripRe  = regexp.MustCompile(models.PageMarkerStripRegex)
)

const (
	defaultMaxSize = 500
	defaultOverlap = 100
)

// Chunker accumulates paragraphs into size-bounded, page-tagged chunks.
// Paragraphs are never split: a paragraph longer than the chunk size is
// emitted as its own oversized chunk.
type Chunker struct {
	maxSize int
	overlap int
	chapter int
	source  string
}

func New(maxSize, overlap, chapter int, source string) *Chunker {
	if maxSize <= 0 {
		maxSize = defaultMaxSize
	}
	if overlap < 0 {
		overlap = 0
	}
	return &Chunker{maxSize: maxSize, overlap: overlap, chapter: chapter, source: source}
}

// foldState carries the running page, the accumulating buffer, and the
// next chunk id while folding over paragraphs.
type foldState struct {
	page   int
	buffer string
	nextID int
	out    []models.Chunk
}

// Chunk splits the chapter text into chunks. Paragraphs are delimited by
// blank lines; an inline "[page N]" marker updates the running page and is
// stripped before accumulation. When adding a paragraph would reach the
// size bound, the buffer is flushed and the next buffer is seeded with the
// flushed chunk's trailing overlap (measured in runes), but only when the
// flushed chunk was longer than the overlap.
func (c *Chunker) Chunk(text string, startPage int) []models.Chunk {
	st := foldState{page: startPage}

	for _, para := range strings.Split(text, "\n\n") {
		if m := pageMarkerRe.FindStringSubmatch(para); m != nil {
			if page, err := strconv.Atoi(m[1]); err == nil {
				st.page = page
			}
			para = pageStripRe.ReplaceAllString(para, "")
		}
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}

		if len(st.buffer)+len(para) < c.maxSize {
			st.buffer += para + "\n\n"
			continue
		}

		prev := strings.TrimRight(st.buffer, "\n")
		c.flush(&st)
		if seed := overlapSuffix(prev, c.overlap); seed != "" {
			st.buffer = seed + "\n\n" + para + "\n\n"
		} else {
			st.buffer = para + "\n\n"
		}
	}

	c.flush(&st)
	return st.out
}

// overlapSuffix returns the last n runes of s, or "" when s is no longer
// than n runes. Slicing runes, not bytes, keeps multi-byte text intact at
// the seed boundary.
func overlapSuffix(s string, n int) string {
	if n <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= n {
		return ""
	}
	return string(runes[len(runes)-n:])
}

// flush emits the buffer as a chunk. Only trailing paragraph separators
// are trimmed: a seeded overlap prefix must survive verbatim so adjacent
// chunks share it byte for byte.
func (c *Chunker) flush(st *foldState) {
	text := strings.TrimRight(st.buffer, "\n")
	if text == "" {
		return
	}
	st.out = append(st.out, models.Chunk{
		Text:    text,
		Page:    st.page,
		ChunkID: st.nextID,
		Chapter: c.chapter,
		Source:  c.source,
	})
	st.nextID++
	st.buffer = ""
}
