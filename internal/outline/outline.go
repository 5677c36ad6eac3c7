// Package outline generates a knowledge-map outline of the chapter as
// markdown, with an HTML rendering for the UI layer.
package outline

import (
	"bytes"
	"context"
	"fmt"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"

	"chapter-tutor/internal/models"
	"chapter-tutor/internal/rag"
)

type Generator struct {
	gen           rag.Generator
	chapterNumber int
	chapterTitle  string
}

func NewGenerator(gen rag.Generator, chapterNumber int, chapterTitle string) *Generator {
	return &Generator{gen: gen, chapterNumber: chapterNumber, chapterTitle: chapterTitle}
}

// Generate asks the generation service for a structured markdown outline
// over the given chapter content.
func (g *Generator) Generate(ctx context.Context, content string) (string, error) {
	prompt := fmt.Sprintf(models.OutlinePromptTemplate, g.chapterNumber, g.chapterTitle, content)
	outline, err := g.gen.Generate(ctx, models.SystemPrompt, prompt)
	if err != nil {
		return "", fmt.Errorf("failed to generate outline: %w", err)
	}
	return outline, nil
}

// RenderHTML converts the markdown outline to HTML.
func RenderHTML(markdown string) (string, error) {
	md := goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithRendererOptions(
			html.WithHardWraps(),
		),
	)
	var buf bytes.Buffer
	if err := md.Convert([]byte(markdown), &buf); err != nil {
		return "", fmt.Errorf("failed to render outline: %w", err)
	}
	return buf.String(), nil
}
