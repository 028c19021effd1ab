package export

import (
	"context"
	"fmt"
)

// PDFRenderer turns an HTML page into PDF bytes.
type PDFRenderer func(ctx context.Context, html string) ([]byte, error)

// Service renders topics to PDF.
type Service struct {
	render PDFRenderer
}

// NewService creates an export service backed by headless Chrome.
func NewService() *Service {
	return &Service{render: renderPDF}
}

// NewServiceWithRenderer swaps the PDF backend, mostly for tests.
func NewServiceWithRenderer(render PDFRenderer) *Service {
	return &Service{render: render}
}

// ExportTopic renders the topic and returns it as a PDF attachment.
func (s *Service) ExportTopic(ctx context.Context, topic Topic) (*Result, error) {
	html, err := RenderTopicHTML(topic)
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}
	data, err := s.render(ctx, html)
	if err != nil {
		return nil, err
	}
	return &Result{
		Data:     data,
		Filename: topicFilename(topic.SharerName, topic.Category),
		MimeType: "application/pdf",
	}, nil
}
