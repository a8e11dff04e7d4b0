package segment

import (
	"reflect"
	"testing"
)

func TestStore_RegisterRawSentence(t *testing.T) {
	s := NewStore()

	first := s.RegisterRawSentence()
	second := s.RegisterRawSentence()
	if first != 1 || second != 2 {
		t.Fatalf("expected ids 1 and 2, got %d and %d", first, second)
	}

	rec, ok := s.Get(first)
	if !ok {
		t.Fatal("expected record for first sentence")
	}
	if rec.ActiveVariant() != VariantRaw {
		t.Errorf("expected new record to be raw, got %v", rec.ActiveVariant())
	}
	if s.Len() != 2 {
		t.Errorf("expected 2 records, got %d", s.Len())
	}
}

func TestStore_RecordPolished_Promotes(t *testing.T) {
	s := NewStore()
	id := s.RegisterRawSentence()

	variant, ok := s.RecordPolished(id, "Hello.", true)
	if !ok {
		t.Fatal("expected known sentence")
	}
	if variant != VariantPolished {
		t.Errorf("expected promotion to polished, got %v", variant)
	}

	rec, _ := s.Get(id)
	text, has := rec.PolishedText()
	if !has || text != "Hello." {
		t.Errorf("expected polished text 'Hello.', got %q (present=%v)", text, has)
	}
	if !rec.PolishedWithinSLA() {
		t.Error("expected within SLA")
	}
}

func TestStore_RecordPolished_UnknownID(t *testing.T) {
	s := NewStore()
	if _, ok := s.RecordPolished(42, "x", true); ok {
		t.Error("expected unknown id to be reported")
	}
}

func TestStore_RawOverrideBlocksPromotion(t *testing.T) {
	s := NewStore()
	id := s.RegisterRawSentence()

	applied := s.ApplySelection([]Selection{{SentenceID: id, ActiveVariant: VariantRaw}})
	if len(applied) != 1 {
		t.Fatalf("expected raw selection to apply, got %v", applied)
	}

	variant, _ := s.RecordPolished(id, "Polished.", true)
	if variant != VariantRaw {
		t.Errorf("expected override to keep raw, got %v", variant)
	}

	rec, _ := s.Get(id)
	if !rec.UserOverride() {
		t.Error("expected user override to be set")
	}
}

func TestStore_ApplySelection(t *testing.T) {
	s := NewStore()
	polished := s.RegisterRawSentence()
	rawOnly := s.RegisterRawSentence()
	s.RecordPolished(polished, "Done.", false)

	requested := []Selection{
		{SentenceID: polished, ActiveVariant: VariantRaw},
		{SentenceID: rawOnly, ActiveVariant: VariantPolished},
		{SentenceID: 99, ActiveVariant: VariantRaw},
		{SentenceID: polished, ActiveVariant: VariantPolished},
	}

	got := s.ApplySelection(requested)
	want := []Selection{
		{SentenceID: polished, ActiveVariant: VariantRaw},
		{SentenceID: polished, ActiveVariant: VariantPolished},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ApplySelection() = %v, want %v", got, want)
	}

	rec, _ := s.Get(polished)
	if rec.ActiveVariant() != VariantPolished {
		t.Errorf("expected polished to be active, got %v", rec.ActiveVariant())
	}
	if rec.UserOverride() {
		t.Error("expected polished re-selection to clear override")
	}
}

func TestStore_ApplySelection_NothingApplied(t *testing.T) {
	s := NewStore()
	if got := s.ApplySelection([]Selection{{SentenceID: 7, ActiveVariant: VariantRaw}}); len(got) != 0 {
		t.Errorf("expected no applied selections, got %v", got)
	}
}
