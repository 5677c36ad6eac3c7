package models

import "fmt"

// Chunk is the atomic unit of retrieval: a page-tagged, size-bounded
// segment of the chapter text.
type Chunk struct {
	Text    string
	Page    int
	ChunkID int
	Chapter int
	Source  string
}

// Citation attributes part of an answer to a page of the source PDF.
// BookPage is the printed page number, PDFPage the page in the PDF file.
type Citation struct {
	PDFPage  int    `json:"pdf_page"`
	BookPage int    `json:"book_page"`
	Preview  string `json:"preview"`
}

// Answer is the result of one question-answering round.
type Answer struct {
	Answer  string     `json:"answer"`
	Sources []Citation `json:"sources"`
}

// ServiceError wraps a failed call to an external service with the
// operation that failed ("embed" or "generate").
type ServiceError struct {
	Op  string
	Err error
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error { return e.Err }
