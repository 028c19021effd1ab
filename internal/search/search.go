package search

import (
	"context"
	"time"
)

// Result is a single response hit returned to the caller.
type Result struct {
	ID         string `json:"id"`
	PromptID   string `json:"promptId"`
	PromptText string `json:"promptText"`
	CategoryID string `json:"categoryId"`
	Category   string `json:"category"`
	Snippet    string `json:"snippet"`
}

// Query describes a search request. SharerID is mandatory; every search is
// scoped to one sharer's responses.
type Query struct {
	Text       string
	SharerID   string
	CategoryID string
	Limit      int
	Offset     int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(ctx context.Context, q Query) ([]Result, int, error)
	Healthy() bool
}

// ResponseRecord is the data we index for a prompt response.
type ResponseRecord struct {
	ID           string `json:"id"`
	SharerID     string `json:"sharerId"`
	PromptID     string `json:"promptId"`
	PromptText   string `json:"promptText"`
	CategoryID   string `json:"categoryId"`
	Category     string `json:"category"`
	ResponseText string `json:"responseText"`
	Summary      string `json:"summary"`
	UpdatedAt    int64  `json:"updatedAt"`
}

func NewResponseRecord(id, sharerID, promptID, promptText, categoryID, category, responseText, summary string, updatedAt time.Time) ResponseRecord {
	return ResponseRecord{
		ID:           id,
		SharerID:     sharerID,
		PromptID:     promptID,
		PromptText:   promptText,
		CategoryID:   categoryID,
		Category:     category,
		ResponseText: responseText,
		Summary:      summary,
		UpdatedAt:    updatedAt.Unix(),
	}
}

func normalizePaging(q Query) (limit, offset int) {
	limit = q.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	offset = q.Offset
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
