package models

const (
	// PageMarkerRegex matches the page tag injected by the extractor,
	// e.g. "[page 420]". The chunker uses the captured number to keep a
	// running page for every paragraph that follows.
	PageMarkerRegex      = `\[page (\d+)\]`
	PageMarkerStripRegex = `\[page \d+\]\n?`

	// PreviewLength bounds the citation preview taken from a chunk.
	PreviewLength = 100

	// NoKnowledgeAnswer is returned when the store has nothing to retrieve.
	NoKnowledgeAnswer = "Sorry, no relevant content was found in the knowledge base. Make sure the chapter has been ingested."
)

var (
	SystemPrompt = `You are a teaching assistant for a single textbook chapter. Your job:
1. Answer questions strictly from the reference material you are given.
2. Cite the page number of every claim inline (e.g. "according to page X...").
3. Explain concepts in plain language, with examples where they help.
If a question falls outside the chapter or the references say nothing about it, say so honestly.`

	AnswerPromptTemplate = `Answer the question using the reference material below. When answering:
1. Quote the references accurately.
2. Mark the source of each point (e.g. "according to page X...").
3. If the references contain no relevant information, say so honestly.

References:
%s

Question: %s

Give a detailed, accurate answer:`

	QuizPromptTemplate = `Based on the chapter content below, write one quiz question.

Requirements:
1. The question type is one of: multiple_choice, true_false, short_answer.
2. Moderate difficulty, testing understanding of a core concept.
3. For multiple_choice, give 4 options with exactly one correct answer.
4. Always include the correct answer and an explanation.

Output only JSON in this shape:
{
    "type": "multiple_choice",
    "question": "...",
    "options": ["A. ...", "B. ...", "C. ...", "D. ..."],
    "answer": "...",
    "explanation": "..."
}

Content:
%s`

	OutlinePromptTemplate = `Based on the chapter content below, produce a structured knowledge outline.

Requirements:
1. Extract the main topics and their sub-topics.
2. Organize them hierarchically.
3. Mark key points and known difficulties.

Output markdown in this shape:
# Chapter %d %s

## 1. [topic]
### 1.1 [sub-topic]
- point
...

Content:
%s`
)
