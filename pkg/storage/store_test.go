package storage

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/pagecraft/pagecraft/pkg/core"
)

func createTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "pagecraft.db"))
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

func headingBlock(page, text string, level int) core.Block {
	return core.NewBlock(page, core.BlockHeading, map[string]any{"text": text, "level": level})
}

func paragraphBlock(page, text string) core.Block {
	return core.NewBlock(page, core.BlockParagraph, map[string]any{"text": text})
}

func TestFetchEmptyPage(t *testing.T) {
	store := createTestStore(t)

	blocks, err := store.FetchPageBlocks("/eyecare")
	if err != nil {
		t.Fatalf("fetch on empty page should not error: %v", err)
	}
	if len(blocks) != 0 {
		t.Fatalf("expected empty slice, got %d blocks", len(blocks))
	}
}

func TestReplaceSemantics(t *testing.T) {
	store := createTestStore(t)

	first := []core.Block{
		headingBlock("/eyecare", "Eye Care", 1),
		paragraphBlock("/eyecare", "Comprehensive exams."),
		paragraphBlock("/eyecare", "Contact lens fittings."),
	}
	v1, err := store.ReplacePageBlocks("/eyecare", first, 0)
	if err != nil {
		t.Fatalf("first replace: %v", err)
	}
	if v1 != 1 {
		t.Fatalf("expected version 1, got %d", v1)
	}

	second := []core.Block{
		headingBlock("/eyecare", "Vision Center", 1),
		paragraphBlock("/eyecare", "Now with weekend hours."),
	}
	v2, err := store.ReplacePageBlocks("/eyecare", second, v1)
	if err != nil {
		t.Fatalf("second replace: %v", err)
	}
	if v2 != 2 {
		t.Fatalf("expected version 2, got %d", v2)
	}

	// After a successful replace, a fetch returns exactly the saved list in
	// the same order, with no residue from the previous list.
	got, err := store.FetchPageBlocks("/eyecare")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(got) != len(second) {
		t.Fatalf("expected %d blocks, got %d", len(second), len(got))
	}
	for i, b := range got {
		if b.OrderIndex != i {
			t.Errorf("block %d has order index %d", i, b.OrderIndex)
		}
		if b.Text() != second[i].Text() {
			t.Errorf("block %d: got text %q, want %q", i, b.Text(), second[i].Text())
		}
	}
}

func TestReplaceStaleVersion(t *testing.T) {
	store := createTestStore(t)

	initial := []core.Block{paragraphBlock("/eyecare", "original")}
	v, err := store.ReplacePageBlocks("/eyecare", initial, 0)
	if err != nil {
		t.Fatalf("seed replace: %v", err)
	}

	// A save based on the previous version must be rejected and change nothing.
	_, err = store.ReplacePageBlocks("/eyecare", []core.Block{paragraphBlock("/eyecare", "stale edit")}, v-1)
	if !errors.Is(err, ErrStaleVersion) {
		t.Fatalf("expected ErrStaleVersion, got %v", err)
	}

	got, err := store.FetchPageBlocks("/eyecare")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(got) != 1 || got[0].Text() != "original" {
		t.Fatalf("stale replace modified content: %+v", got)
	}

	// A negative base version skips the check (extractor bulk replace).
	if _, err := store.ReplacePageBlocks("/eyecare", initial, -1); err != nil {
		t.Fatalf("unchecked replace: %v", err)
	}
}

func TestReplaceRejectsInvalidBlock(t *testing.T) {
	store := createTestStore(t)

	bad := core.NewBlock("/eyecare", core.BlockType("carousel"), nil)
	if _, err := store.ReplacePageBlocks("/eyecare", []core.Block{bad}, -1); err == nil {
		t.Fatal("expected validation error for unknown block type")
	}

	if v, err := store.PageVersion("/eyecare"); err != nil || v != 0 {
		t.Fatalf("failed replace should not bump version: v=%d err=%v", v, err)
	}
}

func TestSaveBlockUpsert(t *testing.T) {
	store := createTestStore(t)

	blocks := []core.Block{
		headingBlock("/gynecology", "Gynecology", 1),
		paragraphBlock("/gynecology", "Annual wellness visits."),
	}
	if _, err := store.ReplacePageBlocks("/gynecology", blocks, -1); err != nil {
		t.Fatalf("seed: %v", err)
	}

	saved, err := store.FetchPageBlocks("/gynecology")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}

	edit := saved[1]
	edit.Properties["text"] = "Annual wellness visits, now bookable online."
	version, err := store.SaveBlock(edit)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if version != 2 {
		t.Fatalf("single-block save must bump the page version, got %d", version)
	}
	if v, _ := store.PageVersion("/gynecology"); v != version {
		t.Fatalf("returned version %d disagrees with stored %d", version, v)
	}

	got, err := store.FetchPageBlocks("/gynecology")
	if err != nil {
		t.Fatalf("fetch after save: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("upsert must not change block count, got %d", len(got))
	}
	if got[0].ID != saved[0].ID || got[1].ID != saved[1].ID {
		t.Fatal("upsert must not affect sibling ordering")
	}
	if got[1].Text() != "Annual wellness visits, now bookable online." {
		t.Fatalf("edit not persisted: %q", got[1].Text())
	}

	// A replace based on the pre-save version is now stale.
	if _, err := store.ReplacePageBlocks("/gynecology", got, 1); !errors.Is(err, ErrStaleVersion) {
		t.Fatalf("replace on the pre-save version should be stale, got %v", err)
	}
}

func TestDeleteBlock(t *testing.T) {
	store := createTestStore(t)

	blocks := []core.Block{
		paragraphBlock("/faq", "one"),
		paragraphBlock("/faq", "two"),
	}
	if _, err := store.ReplacePageBlocks("/faq", blocks, -1); err != nil {
		t.Fatalf("seed: %v", err)
	}

	saved, _ := store.FetchPageBlocks("/faq")
	version, err := store.DeleteBlock(saved[0].ID)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if version != 2 {
		t.Fatalf("delete must bump the page version, got %d", version)
	}

	got, err := store.FetchPageBlocks("/faq")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(got) != 1 || got[0].Text() != "two" {
		t.Fatalf("unexpected blocks after delete: %+v", got)
	}

	// Unknown ids are a no-op and must not bump anything.
	if v, err := store.DeleteBlock("does-not-exist"); err != nil || v != 0 {
		t.Fatalf("deleting unknown id: v=%d err=%v", v, err)
	}
	if v, _ := store.PageVersion("/faq"); v != version {
		t.Fatalf("no-op delete changed the version to %d", v)
	}
}

func TestSearchBlocks(t *testing.T) {
	store := createTestStore(t)

	if _, err := store.ReplacePageBlocks("/eyecare", []core.Block{
		headingBlock("/eyecare", "Cataract surgery", 2),
		paragraphBlock("/eyecare", "We accept most insurance plans."),
	}, -1); err != nil {
		t.Fatalf("seed eyecare: %v", err)
	}
	if _, err := store.ReplacePageBlocks("/gynecology", []core.Block{
		paragraphBlock("/gynecology", "Insurance accepted for all visits."),
	}, -1); err != nil {
		t.Fatalf("seed gynecology: %v", err)
	}

	results, err := store.SearchBlocks("insurance", 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(results))
	}

	results, err = store.SearchBlocks("cataract", 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 1 || results[0].PagePath != "/eyecare" {
		t.Fatalf("unexpected cataract results: %+v", results)
	}
}

func TestSearchExcludesReplacedContent(t *testing.T) {
	store := createTestStore(t)

	if _, err := store.ReplacePageBlocks("/home", []core.Block{paragraphBlock("/home", "laser treatments")}, -1); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := store.ReplacePageBlocks("/home", []core.Block{paragraphBlock("/home", "new patient specials")}, -1); err != nil {
		t.Fatalf("replace: %v", err)
	}

	results, err := store.SearchBlocks("laser", 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("stale index entries survived replace: %+v", results)
	}
}

func TestListPagesAndVersion(t *testing.T) {
	store := createTestStore(t)

	if _, err := store.ReplacePageBlocks("/eyecare", []core.Block{paragraphBlock("/eyecare", "a")}, -1); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := store.ReplacePageBlocks("/eyecare", []core.Block{paragraphBlock("/eyecare", "b")}, -1); err != nil {
		t.Fatalf("replace: %v", err)
	}
	if _, err := store.ReplacePageBlocks("/gynecology", []core.Block{paragraphBlock("/gynecology", "c")}, -1); err != nil {
		t.Fatalf("seed: %v", err)
	}

	pages, err := store.ListPages()
	if err != nil {
		t.Fatalf("list pages: %v", err)
	}
	if len(pages) != 2 {
		t.Fatalf("expected 2 pages, got %d", len(pages))
	}
	if pages[0].PagePath != "/eyecare" || pages[0].Version != 2 || pages[0].BlockCount != 1 {
		t.Fatalf("unexpected page info: %+v", pages[0])
	}

	v, err := store.PageVersion("/never-written")
	if err != nil || v != 0 {
		t.Fatalf("expected version 0 for unknown page, got v=%d err=%v", v, err)
	}
}

func TestStats(t *testing.T) {
	store := createTestStore(t)

	if _, err := store.ReplacePageBlocks("/home", []core.Block{paragraphBlock("/home", "welcome")}, -1); err != nil {
		t.Fatalf("seed: %v", err)
	}

	stats, err := store.Stats()
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats["total_blocks"] != 1 {
		t.Fatalf("expected 1 block, got %v", stats["total_blocks"])
	}
	if stats["total_pages"] != 1 {
		t.Fatalf("expected 1 page, got %v", stats["total_pages"])
	}
}
