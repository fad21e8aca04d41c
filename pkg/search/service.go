// Package search wraps the store's full-text index with parameter parsing,
// page filtering and pagination, shared by the HTTP API and the CLI.
package search

import (
	"fmt"
	"strconv"

	"github.com/pagecraft/pagecraft/pkg/core"
	"github.com/pagecraft/pagecraft/pkg/storage"
)

// Params holds one search request.
type Params struct {
	// Query is the full-text term. Empty queries return no results.
	Query string

	// PageFilters limits results to these page paths. Empty searches
	// every page.
	PageFilters []string

	// Page is the 1-based result page.
	Page int

	// Limit is the number of results per page, defaulting to 30.
	Limit int
}

// Results carries one page of matches grouped by page path, plus the
// pagination metadata the admin UI renders.
type Results struct {
	// Results maps page path to its matching blocks, ranked within the
	// overall relevance order.
	Results map[string][]core.Block `json:"results"`

	// TotalCount is the number of results on this page, not overall.
	TotalCount int `json:"total_count"`

	// HasMore reports whether another page of results exists.
	HasMore bool `json:"has_more"`

	Page  int    `json:"page"`
	Limit int    `json:"limit"`
	Query string `json:"query"`
}

// Service executes searches against the block store.
type Service struct {
	store *storage.Store
}

// NewService creates a search service over the given store.
func NewService(store *storage.Store) *Service {
	return &Service{store: store}
}

// Search runs a ranked full-text search. Relevance order comes from the
// store; pagination fetches one row past the page to detect more results.
func (s *Service) Search(params Params) (*Results, error) {
	if params.Page < 1 {
		params.Page = 1
	}
	if params.Limit < 1 {
		params.Limit = 30
	}

	res := &Results{
		Results: make(map[string][]core.Block),
		Page:    params.Page,
		Limit:   params.Limit,
		Query:   params.Query,
	}
	if params.Query == "" {
		return res, nil
	}

	// Page filtering happens after ranking, so overfetch enough ranked
	// rows to fill the requested page plus the lookahead row.
	fetch := params.Page * params.Limit * 2
	if len(params.PageFilters) == 0 {
		fetch = params.Page*params.Limit + 1
	}

	blocks, err := s.store.SearchBlocks(params.Query, fetch)
	if err != nil {
		return nil, fmt.Errorf("searching for %q: %w", params.Query, err)
	}

	matched := make([]core.Block, 0, len(blocks))
	for _, b := range blocks {
		if matchesPageFilter(b.PagePath, params.PageFilters) {
			matched = append(matched, b)
		}
	}

	start := (params.Page - 1) * params.Limit
	if start >= len(matched) {
		return res, nil
	}
	end := start + params.Limit
	if end > len(matched) {
		end = len(matched)
	}

	for _, b := range matched[start:end] {
		res.Results[b.PagePath] = append(res.Results[b.PagePath], b)
		res.TotalCount++
	}
	res.HasMore = len(matched) > end

	return res, nil
}

func matchesPageFilter(pagePath string, filters []string) bool {
	if len(filters) == 0 {
		return true
	}
	for _, f := range filters {
		if f == pagePath {
			return true
		}
	}
	return false
}

// ParseParams parses HTTP query parameters into Params. Invalid page and
// limit values fall back to the defaults rather than erroring.
//
// Supported parameters: q, page (filter, repeatable), p (page number),
// limit.
func ParseParams(queryParams map[string][]string) Params {
	params := Params{
		Page:  1,
		Limit: 30,
	}

	if q := queryParams["q"]; len(q) > 0 {
		params.Query = q[0]
	}

	if pages := queryParams["page"]; len(pages) > 0 {
		for _, p := range pages {
			if p != "" {
				params.PageFilters = append(params.PageFilters, p)
			}
		}
	}

	if pageStr := queryParams["p"]; len(pageStr) > 0 && pageStr[0] != "" {
		if parsed, err := strconv.Atoi(pageStr[0]); err == nil && parsed > 0 {
			params.Page = parsed
		}
	}

	if limitStr := queryParams["limit"]; len(limitStr) > 0 && limitStr[0] != "" {
		if parsed, err := strconv.Atoi(limitStr[0]); err == nil && parsed > 0 {
			params.Limit = parsed
		}
	}

	return params
}
