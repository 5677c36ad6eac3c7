package rag

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"chapter-tutor/internal/models"
	"chapter-tutor/internal/vectorstore"
)

// GenerateAnswer builds a grounded prompt from the retrieved chunks and
// asks the generation service for a cited answer. Citations are derived
// locally, so a generation failure still returns them; only the prose
// degrades to an error-describing message.
func (e *Engine) GenerateAnswer(ctx context.Context, query string, results []vectorstore.Result) models.Answer {
	contextBlock, sources := e.buildContext(results)

	if e.generator == nil {
		return models.Answer{
			Answer:  "The generation service is not configured, so no answer can be produced. Set the API key to enable question answering.",
			Sources: sources,
		}
	}

	userMessage := fmt.Sprintf(models.AnswerPromptTemplate, contextBlock, query)
	answer, err := e.generator.Generate(ctx, models.SystemPrompt, userMessage)
	if err != nil {
		log.Error().Err(err).Msg("answer generation failed")
		return models.Answer{
			Answer:  fmt.Sprintf("Failed to generate an answer: %v", err),
			Sources: sources,
		}
	}
	return models.Answer{Answer: answer, Sources: sources}
}

// buildContext renders one numbered block per retrieved chunk, annotated
// with both the PDF page and the printed book page, in retrieval order.
func (e *Engine) buildContext(results []vectorstore.Result) (string, []models.Citation) {
	var blocks []string
	sources := make([]models.Citation, 0, len(results))

	for i, r := range results {
		pdfPage, _ := strconv.Atoi(r.Metadata[vectorstore.MetaPage])
		bookPage := pdfPage - e.cfg.Chapter.PageOffset

		blocks = append(blocks, fmt.Sprintf("[source %d, PDF page %d / book page %d]\n%s",
			i+1, pdfPage, bookPage, r.Text))
		sources = append(sources, models.Citation{
			PDFPage:  pdfPage,
			BookPage: bookPage,
			Preview:  preview(r.Text),
		})
	}
	return strings.Join(blocks, "\n\n"), sources
}

func preview(text string) string {
	runes := []rune(text)
	if len(runes) <= models.PreviewLength {
		return text
	}
	return string(runes[:models.PreviewLength]) + "..."
}

// Ask is the full question-answering flow: retrieve, then either the
// fixed no-knowledge fallback or a synthesized, cited answer.
func (e *Engine) Ask(ctx context.Context, question string) (models.Answer, error) {
	results, err := e.Search(ctx, question, 0)
	if err != nil {
		return models.Answer{}, err
	}
	if len(results) == 0 {
		return models.Answer{
			Answer:  models.NoKnowledgeAnswer,
			Sources: []models.Citation{},
		}, nil
	}
	return e.GenerateAnswer(ctx, question, results), nil
}
