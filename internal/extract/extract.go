// Package extract assembles the chapter text that feeds the chunker.
// Every non-empty page contributes a "[page N]" tagged block; a page
// whose recognition came back empty is simply omitted.
package extract

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/rs/zerolog/log"

	"chapter-tutor/internal/config"
)

// PageReader returns the recognized text of one 1-based page, or an empty
// string when the page yields no usable content. The PDF reader below is
// the default; an OCR oracle plugs in the same way.
type PageReader func(page int) (string, error)

var (
	multiNewline = regexp.MustCompile(`\n{3,}`)
	multiSpace   = regexp.MustCompile(` {2,}`)
)

// Extractor reads the configured page range of the chapter PDF.
type Extractor struct {
	path      string
	startPage int
	endPage   int
}

func New(cfg *config.ChapterConfig) *Extractor {
	return &Extractor{
		path:      cfg.PDFPath,
		startPage: cfg.StartPage,
		endPage:   cfg.EndPage,
	}
}

// ChapterText extracts and assembles the chapter's full text.
func (e *Extractor) ChapterText() (string, error) {
	f, err := os.Open(e.path)
	if err != nil {
		return "", fmt.Errorf("failed to open PDF: %w", err)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return "", err
	}
	reader, err := pdf.NewReader(f, stat.Size())
	if err != nil {
		return "", fmt.Errorf("failed to read PDF: %w", err)
	}

	start, end := e.startPage, e.endPage
	if total := reader.NumPage(); end > total {
		log.Warn().Int("end_page", end).Int("total", total).Msg("end page beyond document, clamping")
		end = total
	}
	if start < 1 {
		start = 1
	}

	return AssembleChapterText(func(page int) (string, error) {
		p := reader.Page(page)
		if p.V.IsNull() {
			return "", nil
		}
		return p.GetPlainText(nil)
	}, start, end)
}

// AssembleChapterText runs the reader over [start, end] and joins the
// page-tagged blocks. Reader errors are logged and treated as an empty
// page so one unreadable page does not lose the chapter.
func AssembleChapterText(read PageReader, start, end int) (string, error) {
	var parts []string
	for page := start; page <= end; page++ {
		text, err := read(page)
		if err != nil {
			log.Warn().Err(err).Int("page", page).Msg("failed to extract page")
			continue
		}
		text = CleanText(text)
		if text == "" {
			continue
		}
		parts = append(parts, fmt.Sprintf("[page %d]\n%s", page, text))
	}
	return strings.Join(parts, "\n\n"), nil
}

// CleanText normalizes whitespace in recognized text.
func CleanText(text string) string {
	text = multiNewline.ReplaceAllString(text, "\n\n")
	text = multiSpace.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}
