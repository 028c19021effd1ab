// Package export renders a sharer's topic to PDF.
package export

import (
	"errors"
	"time"
)

// Topic is the content of one topic export.
type Topic struct {
	SharerName  string
	Category    string
	Description string
	Prompts     []Prompt
	GeneratedAt time.Time
}

// Prompt is a single prompt and the sharer's answer, if any.
type Prompt struct {
	Text        string
	Response    string
	Summary     string
	HasVideo    bool
	Attachments []string
	AnsweredAt  time.Time
}

// Result contains the export output
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

// ErrPDFDependencyMissing indicates PDF export runtime dependencies are unavailable.
var ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
