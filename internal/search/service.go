package search

import (
	"context"

	"go.uber.org/zap"
)

// Service is the facade that tries Meilisearch first and falls back to PG FTS.
type Service struct {
	meili *Meili
	pgfts Searcher
	log   *zap.Logger
}

// NewService creates a search service. meili may be nil if Meilisearch is not configured.
func NewService(meili *Meili, pgfts Searcher, log *zap.Logger) *Service {
	return &Service{meili: meili, pgfts: pgfts, log: log}
}

// Search tries Meilisearch if healthy, otherwise falls back to PG FTS.
func (s *Service) Search(ctx context.Context, q Query) Response {
	if s.meili != nil && s.meili.Healthy() {
		results, total, err := s.meili.Search(ctx, q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		s.log.Warn("meilisearch error, falling back to pgfts", zap.Error(err))
	}

	results, total, err := s.pgfts.Search(ctx, q)
	if err != nil {
		s.log.Error("pgfts search failed", zap.Error(err))
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// IndexResponse indexes a response (fire-and-forget to Meilisearch).
func (s *Service) IndexResponse(record ResponseRecord) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.IndexResponses([]ResponseRecord{record}); err != nil {
			s.log.Warn("index response", zap.String("response_id", record.ID), zap.Error(err))
		}
	}()
}

// Reindex pushes every record to Meilisearch synchronously and reports how
// many were sent. It is a no-op when Meilisearch is not available.
func (s *Service) Reindex(records []ResponseRecord) (int, error) {
	if s.meili == nil || !s.meili.Healthy() {
		return 0, nil
	}
	if err := s.meili.IndexResponses(records); err != nil {
		return 0, err
	}
	return len(records), nil
}

// Close stops the Meilisearch health loop.
func (s *Service) Close() {
	if s.meili != nil {
		s.meili.Close()
	}
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
