package core

import (
	"testing"
)

func TestBlockTypeValid(t *testing.T) {
	for _, bt := range BlockTypes() {
		if !bt.Valid() {
			t.Errorf("expected %q to be valid", bt)
		}
	}
	if BlockType("carousel").Valid() {
		t.Error("carousel should not be a valid block type")
	}
	if BlockType("").Valid() {
		t.Error("empty type should not be valid")
	}
}

func TestNewBlockDefaults(t *testing.T) {
	b := NewBlock("/eyecare", BlockHeading, nil)
	if b.ID == "" {
		t.Fatal("expected generated id")
	}
	if b.Properties == nil {
		t.Fatal("expected non-nil properties bag")
	}
	if err := b.Validate(); err != nil {
		t.Fatalf("new block should validate: %v", err)
	}
}

func TestValidateRejectsBadBlocks(t *testing.T) {
	b := NewBlock("/eyecare", BlockType("carousel"), nil)
	if err := b.Validate(); err == nil {
		t.Fatal("expected error for unknown type")
	}

	b = NewBlock("eyecare", BlockHeading, nil)
	if err := b.Validate(); err == nil {
		t.Fatal("expected error for page path without leading slash")
	}

	b = NewBlock("/eyecare", BlockHeading, nil)
	b.ID = ""
	if err := b.Validate(); err == nil {
		t.Fatal("expected error for empty id")
	}
}

func TestBlockText(t *testing.T) {
	cases := []struct {
		block Block
		want  string
	}{
		{NewBlock("/p", BlockHeading, map[string]any{"text": "Our Doctors", "level": 2}), "Our Doctors"},
		{NewBlock("/p", BlockParagraph, map[string]any{"text": "Walk-ins welcome."}), "Walk-ins welcome."},
		{NewBlock("/p", BlockImage, map[string]any{"src": "/img/clinic.jpg", "alt": "clinic lobby"}), "clinic lobby"},
		{NewBlock("/p", BlockButton, map[string]any{"label": "Book now", "href": "/appointment"}), "Book now"},
	}
	for _, tc := range cases {
		if got := tc.block.Text(); got != tc.want {
			t.Errorf("%s block: got text %q, want %q", tc.block.Type, got, tc.want)
		}
	}
}

func TestIntPropHandlesJSONNumbers(t *testing.T) {
	props := map[string]any{"level": float64(3)}
	if got := IntProp(props, "level", 1); got != 3 {
		t.Fatalf("expected 3, got %d", got)
	}
	if got := IntProp(props, "missing", 7); got != 7 {
		t.Fatalf("expected fallback 7, got %d", got)
	}
	if got := IntProp(nil, "level", 2); got != 2 {
		t.Fatalf("expected fallback 2 for nil bag, got %d", got)
	}
}

func TestClampHeadingLevel(t *testing.T) {
	if got := ClampHeadingLevel(0); got != 1 {
		t.Fatalf("expected 1, got %d", got)
	}
	if got := ClampHeadingLevel(9); got != 6 {
		t.Fatalf("expected 6, got %d", got)
	}
	if got := ClampHeadingLevel(4); got != 4 {
		t.Fatalf("expected 4, got %d", got)
	}
}
