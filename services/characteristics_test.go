package services

import (
	"context"
	"testing"

	"github.com/goccy/go-json"

	"propsync/models"
	"propsync/storage"
)

func TestInferCharacteristicType(t *testing.T) {
	cases := []struct {
		raw  string
		want models.CharacteristicType
	}{
		{``, models.CharBoolean},
		{`null`, models.CharBoolean},
		{`true`, models.CharBoolean},
		{`"Sí"`, models.CharBoolean},
		{`"no"`, models.CharBoolean},
		{`3`, models.CharNumeric},
		{`"2,5"`, models.CharNumeric},
		{`"Norte"`, models.CharText},
		{`{"a":1}`, models.CharText},
	}
	for _, tc := range cases {
		if got := InferCharacteristicType(json.RawMessage(tc.raw)); got != tc.want {
			t.Errorf("InferCharacteristicType(%s) = %s, want %s", tc.raw, got, tc.want)
		}
	}
}

func TestCorrectType(t *testing.T) {
	if got := correctType(models.CharNumeric, models.CharText, false); got != models.CharText {
		t.Fatalf("conflicting evidence should widen to text, got %s", got)
	}
	if got := correctType(models.CharText, models.CharNumeric, false); got != models.CharText {
		t.Fatalf("text should not narrow on inference, got %s", got)
	}
	if got := correctType(models.CharText, models.CharNumeric, true); got != models.CharNumeric {
		t.Fatalf("declared type should win, got %s", got)
	}
}

func TestCharacteristicsReplace(t *testing.T) {
	store, err := storage.Open(context.Background(), "sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer store.Close()
	ctx := context.Background()

	listings := decodeListings(t, `[{"ref": 1}]`)
	engine := NewEngine(store, nil, NewExecutionLog(store, 0, 0))
	if _, err := engine.ProcessBatch(ctx, listings, DefaultOptions()); err != nil {
		t.Fatalf("seed listing: %v", err)
	}
	l, _ := store.GetListingByRef(ctx, 1)

	raw := []models.RawCharacteristic{
		{Name: "Piscina"},
		{Name: "piscina", Value: json.RawMessage(`false`)},
		{Name: "Área balcón", Value: json.RawMessage(`"12,5"`), Unit: "m2"},
		{Name: "Vista", Value: json.RawMessage(`"Norte"`)},
	}
	c := NewCharacteristics()
	err = store.WithTx(ctx, func(tx *storage.Store) error {
		return c.Replace(ctx, tx, l.ID, raw)
	})
	if err != nil {
		t.Fatalf("replace: %v", err)
	}

	vals, err := store.ListListingCharacteristics(ctx, l.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(vals) != 3 {
		t.Fatalf("expected 3 values after dedupe, got %d", len(vals))
	}

	pool, _ := store.GetCharacteristic(ctx, "Piscina")
	if pool == nil || pool.Type != models.CharBoolean {
		t.Fatalf("unexpected pool definition: %+v", pool)
	}
	balcony, _ := store.GetCharacteristic(ctx, "Área balcón")
	if balcony == nil || balcony.Type != models.CharNumeric || balcony.Unit == nil || *balcony.Unit != "m2" {
		t.Fatalf("unexpected balcony definition: %+v", balcony)
	}
	for _, v := range vals {
		if v.CharacteristicID == balcony.ID && (v.ValueNumber == nil || *v.ValueNumber != 12.5) {
			t.Fatalf("balcony value not numeric: %+v", v)
		}
		if v.CharacteristicID == pool.ID && (v.ValueBool == nil || !*v.ValueBool) {
			t.Fatalf("pool value not true: %+v", v)
		}
	}

	// a later listing sends text for the numeric attribute
	err = store.WithTx(ctx, func(tx *storage.Store) error {
		return c.Replace(ctx, tx, l.ID, []models.RawCharacteristic{
			{Name: "Área balcón", Value: json.RawMessage(`"amplio"`)},
		})
	})
	if err != nil {
		t.Fatalf("replace again: %v", err)
	}
	balcony, _ = store.GetCharacteristic(ctx, "Área balcón")
	if balcony.Type != models.CharText {
		t.Fatalf("expected widened type text, got %s", balcony.Type)
	}
	vals, _ = store.ListListingCharacteristics(ctx, l.ID)
	if len(vals) != 1 || vals[0].ValueText == nil || *vals[0].ValueText != "amplio" {
		t.Fatalf("unexpected values: %+v", vals)
	}
}
