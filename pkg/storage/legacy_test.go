package storage

import (
	"errors"
	"testing"

	"github.com/pagecraft/pagecraft/pkg/core"
)

func TestLegacyUpsertBySelector(t *testing.T) {
	store := createTestStore(t)

	item := core.LegacyContentItem{
		PagePath: "/eyecare",
		Selector: "main > h1",
		Section:  core.SectionHeading,
		Name:     "heading-1",
		Content:  "Eye Care",
	}
	if err := store.SaveLegacyItem(item); err != nil {
		t.Fatalf("save: %v", err)
	}

	item.Content = "Eye Care Center"
	if err := store.SaveLegacyItem(item); err != nil {
		t.Fatalf("second save: %v", err)
	}

	items, err := store.FetchLegacyItems("/eyecare")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("same selector must upsert, got %d items", len(items))
	}
	if items[0].Content != "Eye Care Center" {
		t.Fatalf("content not updated: %q", items[0].Content)
	}
}

func TestLegacyMalformedBags(t *testing.T) {
	store := createTestStore(t)

	item := core.LegacyContentItem{
		PagePath: "/eyecare",
		Selector: "main > p:nth-of-type(1)",
		Section:  core.SectionParagraph,
		Content:  "Welcome",
	}
	if err := store.SaveLegacyItem(item); err != nil {
		t.Fatalf("save: %v", err)
	}

	// Simulate an older row whose style bag holds broken JSON.
	if _, err := store.DB().Exec(
		"UPDATE legacy_content SET styles = '{broken', properties = 'not json' WHERE selector = ?",
		item.Selector); err != nil {
		t.Fatalf("corrupting row: %v", err)
	}

	items, err := store.FetchLegacyItems("/eyecare")
	if err != nil {
		t.Fatalf("fetch must tolerate malformed bags: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}
	if items[0].Styles == nil || len(items[0].Styles) != 0 {
		t.Fatalf("expected empty style bag, got %v", items[0].Styles)
	}
	if items[0].Properties == nil || len(items[0].Properties) != 0 {
		t.Fatalf("expected empty property bag, got %v", items[0].Properties)
	}
}

func TestMigrateLegacyItems(t *testing.T) {
	store := createTestStore(t)

	items := []core.LegacyContentItem{
		{PagePath: "/gynecology", Selector: "h1", Section: core.SectionHeading, Content: "Gynecology", Properties: map[string]any{"level": 1}, OrderIndex: 0},
		{PagePath: "/gynecology", Selector: "p.intro", Section: core.SectionParagraph, Content: "Caring specialists.", OrderIndex: 1},
		{PagePath: "/gynecology", Selector: "img.team", Section: core.SectionImage, Content: "our team", ImageURL: "/img/team.jpg", OrderIndex: 2},
		{PagePath: "/gynecology", Selector: "a.book", Section: core.SectionLink, Content: "Book a visit", Properties: map[string]any{"href": "/appointment"}, OrderIndex: 3},
		{PagePath: "/gynecology", Selector: "video.tour", Section: "video", Content: "clinic tour", OrderIndex: 4},
	}
	for _, item := range items {
		if err := store.SaveLegacyItem(item); err != nil {
			t.Fatalf("save %s: %v", item.Selector, err)
		}
	}

	count, err := store.MigrateLegacyItems("/gynecology")
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if count != 4 {
		t.Fatalf("expected 4 migrated blocks (video skipped), got %d", count)
	}

	blocks, err := store.FetchPageBlocks("/gynecology")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(blocks) != 4 {
		t.Fatalf("expected 4 blocks, got %d", len(blocks))
	}
	wantTypes := []core.BlockType{core.BlockHeading, core.BlockParagraph, core.BlockImage, core.BlockButton}
	for i, want := range wantTypes {
		if blocks[i].Type != want {
			t.Errorf("block %d: got type %s, want %s", i, blocks[i].Type, want)
		}
	}
	if core.StringProp(blocks[3].Properties, "href") != "/appointment" {
		t.Fatalf("link href lost in migration: %v", blocks[3].Properties)
	}
}

func TestMigrateLegacyEmptyPage(t *testing.T) {
	store := createTestStore(t)

	if _, err := store.MigrateLegacyItems("/nothing"); !errors.Is(err, ErrPageNotFound) {
		t.Fatalf("expected ErrPageNotFound, got %v", err)
	}
}
