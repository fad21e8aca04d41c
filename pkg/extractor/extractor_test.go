package extractor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/pagecraft/pagecraft/pkg/core"
	"github.com/pagecraft/pagecraft/pkg/realtime"
	"github.com/pagecraft/pagecraft/pkg/storage"
)

// fakeEngine returns canned elements and counts Render calls.
type fakeEngine struct {
	elements []Element
	calls    int
}

func (f *fakeEngine) Render(_ context.Context, _ string, _ time.Duration) ([]Element, error) {
	f.calls++
	return f.elements, nil
}

func openTestStore(t *testing.T) *storage.Store {
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
	return store
}

func TestExclusionShortCircuit(t *testing.T) {
	store := openTestStore(t)
	engine := &fakeEngine{}
	ex := New(store, nil, engine, "http://clinic.test", DefaultOptions())

	extracted, err := ex.ExtractPage(context.Background(), "/admin/content")
	if err != nil {
		t.Fatalf("excluded page should not error: %v", err)
	}
	if extracted {
		t.Fatal("excluded page must report not extracted")
	}
	if engine.calls != 0 {
		t.Fatalf("excluded page must not be rendered, got %d calls", engine.calls)
	}
	if v, _ := store.PageVersion("/admin/content"); v != 0 {
		t.Fatalf("excluded page must not touch the store, version %d", v)
	}

	// "appointment" is excluded by default anywhere in the path.
	extracted, err = ex.ExtractPage(context.Background(), "/book-appointment")
	if err != nil || extracted {
		t.Fatalf("expected no-op for appointment path, got extracted=%v err=%v", extracted, err)
	}
}

func TestExtractPublishesReplaceEvent(t *testing.T) {
	store := openTestStore(t)
	hub := realtime.NewHub(4)
	id, ch := hub.Subscribe("/eyecare")
	defer hub.Unsubscribe(id)

	engine := &fakeEngine{elements: []Element{
		{Kind: "heading", Text: "Eye Care", Level: 1},
		{Kind: "paragraph", Text: "See clearly."},
	}}
	ex := New(store, hub, engine, "http://clinic.test", DefaultOptions())

	extracted, err := ex.ExtractPage(context.Background(), "/eyecare")
	if err != nil || !extracted {
		t.Fatalf("extract: extracted=%v err=%v", extracted, err)
	}

	select {
	case ev := <-ch:
		if ev.Action != realtime.ActionReplace || ev.BlockCount != 2 || ev.Version != 1 {
			t.Fatalf("unexpected event: %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("expected a replace event")
	}
}

func TestBlocksFromElementsNaming(t *testing.T) {
	elements := []Element{
		{Kind: "heading", Text: "One", Level: 1},
		{Kind: "paragraph", Text: "Body"},
		{Kind: "heading", Text: "Two", Level: 2},
		{Kind: "image", Src: "http://x/img.png", Alt: "pic"},
	}
	blocks := BlocksFromElements("/home", elements, DefaultOptions())
	if len(blocks) != 4 {
		t.Fatalf("expected 4 blocks, got %d", len(blocks))
	}

	wantNames := []string{"heading-1", "paragraph-1", "heading-2", "image-1"}
	for i, want := range wantNames {
		if got := core.StringProp(blocks[i].Properties, "name"); got != want {
			t.Errorf("block %d: got name %q, want %q", i, got, want)
		}
		if blocks[i].OrderIndex != i {
			t.Errorf("block %d: got order index %d", i, blocks[i].OrderIndex)
		}
	}
}

func TestBlocksFromElementsCategorySwitches(t *testing.T) {
	elements := []Element{
		{Kind: "heading", Text: "H", Level: 1},
		{Kind: "paragraph", Text: "P"},
		{Kind: "list", Items: []string{"a", "b"}},
		{Kind: "link", Text: "L", Href: "http://x/"},
		{Kind: "image", Src: "http://x/i.png"},
	}

	opts := DefaultOptions()
	opts.Paragraphs = false
	opts.Links = false

	blocks := BlocksFromElements("/home", elements, opts)
	if len(blocks) != 3 {
		t.Fatalf("expected 3 blocks with paragraphs and links disabled, got %d", len(blocks))
	}
	for _, b := range blocks {
		if b.Type == core.BlockButton {
			t.Fatal("link extracted despite Links=false")
		}
		section := core.StringProp(b.Properties, "section")
		if section == core.SectionParagraph {
			t.Fatal("paragraph extracted despite Paragraphs=false")
		}
	}
}

func TestBlocksFromElementsListJoinsItems(t *testing.T) {
	blocks := BlocksFromElements("/home", []Element{
		{Kind: "list", Items: []string{"Aetna", "Cigna", "Medicare"}},
	}, DefaultOptions())
	if len(blocks) != 1 {
		t.Fatalf("expected 1 block, got %d", len(blocks))
	}
	if blocks[0].Type != core.BlockParagraph {
		t.Fatalf("list should map to paragraph block, got %s", blocks[0].Type)
	}
	if got := core.StringProp(blocks[0].Properties, "text"); got != "Aetna\nCigna\nMedicare" {
		t.Fatalf("items should join with newlines, got %q", got)
	}
}

const clinicPage = `<!DOCTYPE html>
<html><head><title>Eye Care</title></head>
<body>
<header><a href="/">Home</a><h1 style="display:none">Skip</h1></header>
<nav><a href="/gynecology">Gynecology</a></nav>
<main>
  <h1>Eye Care Center</h1>
  <p>Comprehensive exams for the whole family.</p>
  <h2>Our Services</h2>
  <ul>
    <li>Cataract surgery</li>
    <li>Contact lens fittings</li>
    <li hidden>Secret service</li>
  </ul>
  <h3>Why choose us</h3>
  <a href="/appointment">Book an appointment</a>
  <img src="/img/lobby.jpg" alt="clinic lobby">
  <img src="/img/tracking.gif" alt="pixel" style="display:none">
  <img src="/img/spacer.gif" alt="spacer" width="0" height="0">
  <p style="visibility:hidden">Hidden note</p>
  <div style="opacity: 0"><p>Invisible block</p></div>
</main>
<footer><a href="/privacy">Privacy</a></footer>
</body></html>`

func TestStaticEndToEnd(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/eyecare" {
			http.NotFound(w, r)
			return
		}
		if _, err := w.Write([]byte(clinicPage)); err != nil {
			t.Errorf("writing fixture: %v", err)
		}
	}))
	defer ts.Close()

	store := openTestStore(t)
	ex := New(store, nil, NewStaticEngine(), ts.URL, DefaultOptions())

	extracted, err := ex.ExtractPage(context.Background(), "/eyecare")
	if err != nil || !extracted {
		t.Fatalf("extract: extracted=%v err=%v", extracted, err)
	}

	blocks, err := store.FetchPageBlocks("/eyecare")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}

	// h1, p, h2, list, h3, content link, visible image. Header/nav/footer
	// links and every hidden or zero-sized element are filtered out.
	type want struct {
		blockType core.BlockType
		text      string
	}
	wants := []want{
		{core.BlockHeading, "Eye Care Center"},
		{core.BlockParagraph, "Comprehensive exams for the whole family."},
		{core.BlockHeading, "Our Services"},
		{core.BlockParagraph, "Cataract surgery\nContact lens fittings"},
		{core.BlockHeading, "Why choose us"},
		{core.BlockButton, "Book an appointment"},
		{core.BlockImage, "clinic lobby"},
	}
	if len(blocks) != len(wants) {
		for _, b := range blocks {
			t.Logf("got block: %s %q", b.Type, b.Text())
		}
		t.Fatalf("expected %d blocks, got %d", len(wants), len(blocks))
	}
	for i, w := range wants {
		if blocks[i].Type != w.blockType {
			t.Errorf("block %d: got type %s, want %s", i, blocks[i].Type, w.blockType)
		}
		if blocks[i].Text() != w.text {
			t.Errorf("block %d: got text %q, want %q", i, blocks[i].Text(), w.text)
		}
	}

	// Heading levels follow the source tags in document order.
	levels := []int{1, 2, 3}
	idx := 0
	for _, b := range blocks {
		if b.Type == core.BlockHeading {
			if got := core.IntProp(b.Properties, "level", 0); got != levels[idx] {
				t.Errorf("heading %d: got level %d, want %d", idx, got, levels[idx])
			}
			idx++
		}
	}

	// Image src resolves against the site origin.
	for _, b := range blocks {
		if b.Type == core.BlockImage {
			if got := core.StringProp(b.Properties, "src"); got != ts.URL+"/img/lobby.jpg" {
				t.Errorf("unexpected image src %q", got)
			}
		}
	}
}

func TestIdempotentExtraction(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte(clinicPage)); err != nil {
			t.Errorf("writing fixture: %v", err)
		}
	}))
	defer ts.Close()

	store := openTestStore(t)
	ex := New(store, nil, NewStaticEngine(), ts.URL, DefaultOptions())

	if _, err := ex.ExtractPage(context.Background(), "/eyecare"); err != nil {
		t.Fatalf("first extract: %v", err)
	}
	first, err := store.FetchPageBlocks("/eyecare")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}

	if _, err := ex.ExtractPage(context.Background(), "/eyecare"); err != nil {
		t.Fatalf("second extract: %v", err)
	}
	second, err := store.FetchPageBlocks("/eyecare")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}

	if len(first) != len(second) {
		t.Fatalf("expected same count, got %d then %d", len(first), len(second))
	}
	for i := range first {
		if first[i].Type != second[i].Type || first[i].Text() != second[i].Text() {
			t.Errorf("position %d differs: %s %q vs %s %q",
				i, first[i].Type, first[i].Text(), second[i].Type, second[i].Text())
		}
	}
}

func TestStaticEngineFetchFailure(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer ts.Close()

	store := openTestStore(t)
	ex := New(store, nil, NewStaticEngine(), ts.URL, DefaultOptions())

	if _, err := ex.ExtractPage(context.Background(), "/eyecare"); err == nil {
		t.Fatal("expected error for failing fetch")
	}
	// A failed render must not have touched the store.
	if v, _ := store.PageVersion("/eyecare"); v != 0 {
		t.Fatalf("failed extract must not write, version %d", v)
	}
}
