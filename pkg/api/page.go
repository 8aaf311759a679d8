package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
)

// Page is the canonical form of the backend's paginated envelope. The wire
// format carries the items under either "docs" or "data" depending on the
// endpoint; both land in Items here and downstream code never sees the
// difference.
type Page[T any] struct {
	Items       []T
	TotalDocs   int64
	Page        int
	Limit       int
	TotalPages  int
	HasNextPage bool
	HasPrevPage bool
	NextPage    *int
	PrevPage    *int
}

type pageEnvelope struct {
	Success     bool            `json:"success"`
	Docs        json.RawMessage `json:"docs"`
	Data        json.RawMessage `json:"data"`
	TotalDocs   int64           `json:"totalDocs"`
	Page        int             `json:"page"`
	Limit       int             `json:"limit"`
	TotalPages  int             `json:"totalPages"`
	HasNextPage bool            `json:"hasNextPage"`
	HasPrevPage bool            `json:"hasPrevPage"`
	NextPage    *int            `json:"nextPage"`
	PrevPage    *int            `json:"prevPage"`
}

// GetPage fetches a paginated list endpoint and normalizes the envelope.
func GetPage[T any](ctx context.Context, c *Client, path string, query url.Values) (Page[T], error) {
	var env pageEnvelope
	if err := c.Get(ctx, path, query, &env); err != nil {
		return Page[T]{}, err
	}
	return decodePage[T](env)
}

func decodePage[T any](env pageEnvelope) (Page[T], error) {
	raw := env.Docs
	if len(raw) == 0 || string(raw) == "null" {
		raw = env.Data
	}
	p := Page[T]{
		TotalDocs:   env.TotalDocs,
		Page:        env.Page,
		Limit:       env.Limit,
		TotalPages:  env.TotalPages,
		HasNextPage: env.HasNextPage,
		HasPrevPage: env.HasPrevPage,
		NextPage:    env.NextPage,
		PrevPage:    env.PrevPage,
	}
	if len(raw) == 0 || string(raw) == "null" {
		p.Items = []T{}
		return p, nil
	}
	if err := json.Unmarshal(raw, &p.Items); err != nil {
		return Page[T]{}, fmt.Errorf("decode page items: %w", err)
	}
	return p, nil
}

// PageQuery builds the standard page/limit query.
func PageQuery(page, limit int) url.Values {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = 10
	}
	q := url.Values{}
	q.Set("page", fmt.Sprint(page))
	q.Set("limit", fmt.Sprint(limit))
	return q
}
