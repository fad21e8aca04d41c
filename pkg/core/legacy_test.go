package core

import "testing"

func TestDecodeBag(t *testing.T) {
	bag := DecodeBag(`{"color":"teal","fontSize":"18px"}`)
	if bag["color"] != "teal" {
		t.Fatalf("expected color=teal, got %v", bag["color"])
	}

	// Malformed JSON and bare strings fall back to an empty bag.
	for _, raw := range []string{"", "{broken", `"just a string"`, "null"} {
		bag := DecodeBag(raw)
		if bag == nil {
			t.Fatalf("DecodeBag(%q) returned nil", raw)
		}
		if len(bag) != 0 {
			t.Fatalf("DecodeBag(%q) expected empty bag, got %v", raw, bag)
		}
	}
}

func TestLegacyToBlock(t *testing.T) {
	item := LegacyContentItem{
		PagePath:   "/gynecology",
		Selector:   "main > h2:nth-of-type(1)",
		Section:    SectionHeading,
		Content:    "Meet the Team",
		Properties: map[string]any{"level": 2},
		OrderIndex: 3,
	}
	b, ok := item.ToBlock()
	if !ok {
		t.Fatal("expected heading item to convert")
	}
	if b.Type != BlockHeading {
		t.Fatalf("expected heading block, got %s", b.Type)
	}
	if StringProp(b.Properties, "text") != "Meet the Team" {
		t.Fatalf("unexpected text: %v", b.Properties["text"])
	}
	if IntProp(b.Properties, "level", 0) != 2 {
		t.Fatalf("unexpected level: %v", b.Properties["level"])
	}
	if b.OrderIndex != 3 {
		t.Fatalf("expected order index preserved, got %d", b.OrderIndex)
	}
}

func TestLegacyToBlockSections(t *testing.T) {
	cases := []struct {
		section string
		want    BlockType
	}{
		{SectionParagraph, BlockParagraph},
		{SectionList, BlockParagraph},
		{SectionImage, BlockImage},
		{SectionLink, BlockButton},
	}
	for _, tc := range cases {
		item := LegacyContentItem{PagePath: "/p", Section: tc.section, Content: "x"}
		b, ok := item.ToBlock()
		if !ok {
			t.Fatalf("section %s: expected conversion", tc.section)
		}
		if b.Type != tc.want {
			t.Fatalf("section %s: got %s, want %s", tc.section, b.Type, tc.want)
		}
	}

	if _, ok := (LegacyContentItem{Section: "video"}).ToBlock(); ok {
		t.Fatal("unknown section should not convert")
	}
}
