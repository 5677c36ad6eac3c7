// Package quiz turns stored chapter content into single quiz items.
// The generation service returns JSON; parsing is a tagged result, never
// a best-effort scrape treated as success.
package quiz

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"chapter-tutor/internal/models"
	"chapter-tutor/internal/rag"
)

// Item is one generated quiz question.
type Item struct {
	Type        string   `json:"type"`
	Question    string   `json:"question"`
	Options     []string `json:"options,omitempty"`
	Answer      string   `json:"answer"`
	Explanation string   `json:"explanation"`
}

// ParseResult is either Parsed (Item set) or Malformed (Raw keeps the
// model output for inspection).
type ParseResult struct {
	Item *Item
	Raw  string
}

func (r ParseResult) Parsed() bool { return r.Item != nil }

// Parse extracts the JSON object from the model output. Code fences and
// surrounding prose are tolerated; anything that does not unmarshal into
// a complete item is Malformed.
func Parse(raw string) ParseResult {
	text := strings.TrimSpace(raw)
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return ParseResult{Raw: raw}
	}

	var item Item
	if err := json.Unmarshal([]byte(text[start:end+1]), &item); err != nil {
		log.Debug().Err(err).Msg("quiz JSON did not parse")
		return ParseResult{Raw: raw}
	}
	if item.Question == "" || item.Answer == "" {
		return ParseResult{Raw: raw}
	}
	return ParseResult{Item: &item, Raw: raw}
}

// Generator produces quiz items over retrieved chapter content.
type Generator struct {
	gen rag.Generator
}

func NewGenerator(gen rag.Generator) *Generator {
	return &Generator{gen: gen}
}

// Generate asks for one quiz item grounded in the given content.
func (g *Generator) Generate(ctx context.Context, content string) (ParseResult, error) {
	prompt := fmt.Sprintf(models.QuizPromptTemplate, content)
	raw, err := g.gen.Generate(ctx, models.SystemPrompt, prompt)
	if err != nil {
		return ParseResult{}, fmt.Errorf("failed to generate quiz: %w", err)
	}
	return Parse(raw), nil
}
