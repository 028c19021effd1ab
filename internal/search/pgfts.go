package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS implements Searcher using PostgreSQL full-text search as a fallback.
type PgFTS struct {
	db *sql.DB
}

// NewPgFTS creates a PostgreSQL FTS searcher.
func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true. If Postgres is down, the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search matches prompt_responses.fts with plainto_tsquery, ranked by
// ts_rank, with ts_headline snippets.
func (p *PgFTS) Search(ctx context.Context, q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" || q.SharerID == "" {
		return nil, 0, nil
	}
	limit, offset := normalizePaging(q)

	where := `r.fts @@ plainto_tsquery('english', $1) AND r.profile_sharer_id = $2`
	args := []any{q.Text, q.SharerID}
	if q.CategoryID != "" {
		where += ` AND p.prompt_category_id = $3`
		args = append(args, q.CategoryID)
	}

	from := `
		FROM prompt_responses r
		JOIN prompts p ON p.id = r.prompt_id
		JOIN prompt_categories c ON c.id = p.prompt_category_id
		WHERE ` + where

	var total int
	if err := p.db.QueryRowContext(ctx, `SELECT count(*) `+from, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT r.id, p.id, p.prompt_text, c.id, c.category,
			ts_headline('english', coalesce(r.response_text, '') || ' ' || coalesce(r.summary, ''),
				plainto_tsquery('english', $1), 'MaxFragments=1,MaxWords=30') AS snippet
		%s
		ORDER BY ts_rank(r.fts, plainto_tsquery('english', $1)) DESC, r.updated_at DESC
		LIMIT %d OFFSET %d`, from, limit, offset), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	results := make([]Result, 0)
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.ID, &r.PromptID, &r.PromptText, &r.CategoryID, &r.Category, &r.Snippet); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		results = append(results, r)
	}
	return results, total, rows.Err()
}
