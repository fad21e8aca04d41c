package search

import (
	"fmt"
	"net/url"
	"path/filepath"
	"testing"

	"github.com/pagecraft/pagecraft/pkg/core"
	"github.com/pagecraft/pagecraft/pkg/storage"
)

func newTestService(t *testing.T) (*Service, *storage.Store) {
	t.Helper()
	store, err := storage.Open(filepath.Join(t.TempDir(), "pagecraft.db"))
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Logf("Warning: failed to close store: %v", err)
		}
	})
	return NewService(store), store
}

func seed(t *testing.T, store *storage.Store, pagePath string, texts ...string) {
	t.Helper()
	blocks := make([]core.Block, 0, len(texts))
	for _, text := range texts {
		blocks = append(blocks, core.NewBlock(pagePath, core.BlockParagraph, map[string]any{"text": text}))
	}
	if _, err := store.ReplacePageBlocks(pagePath, blocks, -1); err != nil {
		t.Fatalf("seeding %s: %v", pagePath, err)
	}
}

func TestSearchGroupsByPage(t *testing.T) {
	svc, store := newTestService(t)
	seed(t, store, "/eyecare", "Cataract surgery consultations", "Contact lenses")
	seed(t, store, "/gynecology", "Annual wellness exams", "Cataract is not treated here")

	res, err := svc.Search(Params{Query: "cataract"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if res.TotalCount != 2 {
		t.Fatalf("expected 2 results, got %d", res.TotalCount)
	}
	if len(res.Results["/eyecare"]) != 1 || len(res.Results["/gynecology"]) != 1 {
		t.Fatalf("unexpected grouping: %+v", res.Results)
	}
	if res.HasMore {
		t.Fatal("expected no further pages")
	}
}

func TestSearchPageFilter(t *testing.T) {
	svc, store := newTestService(t)
	seed(t, store, "/eyecare", "Cataract surgery")
	seed(t, store, "/gynecology", "Cataract mention")

	res, err := svc.Search(Params{Query: "cataract", PageFilters: []string{"/eyecare"}})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if res.TotalCount != 1 {
		t.Fatalf("expected 1 result, got %d", res.TotalCount)
	}
	if _, ok := res.Results["/gynecology"]; ok {
		t.Fatal("filtered page leaked into results")
	}
}

func TestSearchPagination(t *testing.T) {
	svc, store := newTestService(t)
	texts := make([]string, 7)
	for i := range texts {
		texts[i] = fmt.Sprintf("Insurance plan option %d accepted", i)
	}
	seed(t, store, "/insurance", texts...)

	first, err := svc.Search(Params{Query: "insurance", Page: 1, Limit: 5})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if first.TotalCount != 5 || !first.HasMore {
		t.Fatalf("expected full first page with more, got count=%d hasMore=%v",
			first.TotalCount, first.HasMore)
	}

	second, err := svc.Search(Params{Query: "insurance", Page: 2, Limit: 5})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if second.TotalCount != 2 || second.HasMore {
		t.Fatalf("expected 2 trailing results, got count=%d hasMore=%v",
			second.TotalCount, second.HasMore)
	}
}

func TestSearchEmptyQuery(t *testing.T) {
	svc, store := newTestService(t)
	seed(t, store, "/eyecare", "Cataract surgery")

	res, err := svc.Search(Params{})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if res.TotalCount != 0 || len(res.Results) != 0 {
		t.Fatalf("empty query should return nothing, got %+v", res)
	}
}

func TestParseParams(t *testing.T) {
	values := url.Values{
		"q":     {"cataract"},
		"page":  {"/eyecare", "/gynecology"},
		"p":     {"2"},
		"limit": {"10"},
	}

	params := ParseParams(values)
	if params.Query != "cataract" {
		t.Fatalf("unexpected query %q", params.Query)
	}
	if len(params.PageFilters) != 2 {
		t.Fatalf("unexpected filters %v", params.PageFilters)
	}
	if params.Page != 2 || params.Limit != 10 {
		t.Fatalf("unexpected pagination p=%d limit=%d", params.Page, params.Limit)
	}
}

func TestParseParamsDefaults(t *testing.T) {
	params := ParseParams(url.Values{"p": {"-3"}, "limit": {"bogus"}})
	if params.Page != 1 || params.Limit != 30 {
		t.Fatalf("expected defaults, got p=%d limit=%d", params.Page, params.Limit)
	}
	if params.Query != "" || len(params.PageFilters) != 0 {
		t.Fatalf("unexpected params %+v", params)
	}
}
