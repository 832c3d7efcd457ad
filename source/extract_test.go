package source

import (
	"errors"
	"os"
	"testing"

	"propsync/models"
)

func TestExtractPropertyData_Envelope(t *testing.T) {
	payload, err := os.ReadFile("testdata/inmuebles.json")
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}

	listings, err := ExtractPropertyData(payload)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(listings) != 3 {
		t.Fatalf("expected 3 elements, got %d", len(listings))
	}

	first := listings[0]
	if err := first.Valid(); err != nil {
		t.Fatalf("first listing invalid: %v", err)
	}
	if first.Ref != 261 || first.City != "Bogotá" || first.SyncCode != "AP-261" {
		t.Fatalf("unexpected identity fields: %+v", first)
	}
	if first.SalePrice != 200000000 || first.AreaBuilt != 85.5 || first.Bathrooms != 2 {
		t.Fatalf("loose numerics not parsed: price=%v area=%v baths=%d", first.SalePrice, first.AreaBuilt, first.Bathrooms)
	}
	if first.Longitude == nil || *first.Longitude != "-74.0628" {
		t.Fatalf("longitude: %v", first.Longitude)
	}
	if !first.HasImages || len(first.Images) != 2 || !first.HasCharacteristics || len(first.Characteristics) != 2 {
		t.Fatalf("nested lists: %+v %+v", first.Images, first.Characteristics)
	}
	if _, ok := first.RawExtra["asesor"]; !ok {
		t.Fatalf("unknown key not kept in RawExtra: %v", first.RawExtra)
	}

	if listings[1].Ref != 262 || listings[1].HasImages {
		t.Fatalf("second listing: %+v", listings[1])
	}
	if listings[2].Valid() == nil {
		t.Fatalf("malformed element should be invalid")
	}
}

func TestExtractPropertyData_Shapes(t *testing.T) {
	cases := []struct {
		name    string
		payload string
		want    int
	}{
		{"bare array", `[{"ref": 1}, {"ref": 2}]`, 2},
		{"data key", `{"data": [{"ref": 1}]}`, 1},
		{"items key", `{"items": []}`, 0},
		{"results key", `{"results": [{"ref": 1}, {"ref": 2}, {"ref": 3}]}`, 3},
		{"nested envelope", `{"data": {"inmuebles": [{"ref": 5}]}}`, 1},
		{"single object", `{"ref": 9, "titulo": "Lote"}`, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			listings, err := ExtractPropertyData([]byte(tc.payload))
			if err != nil {
				t.Fatalf("extract: %v", err)
			}
			if len(listings) != tc.want {
				t.Fatalf("expected %d listings, got %d", tc.want, len(listings))
			}
		})
	}
}

func TestExtractPropertyData_Unknown(t *testing.T) {
	for _, payload := range []string{``, `"hola"`, `{"mensaje": "sin datos"}`, `42`} {
		if _, err := ExtractPropertyData([]byte(payload)); !errors.Is(err, ErrUnknownShape) {
			t.Errorf("payload %q: expected ErrUnknownShape, got %v", payload, err)
		}
	}
}

func TestExtractPropertyData_MissingRef(t *testing.T) {
	listings, err := ExtractPropertyData([]byte(`[{"titulo": "sin ref"}]`))
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if !errors.Is(listings[0].Valid(), models.ErrMissingRef) {
		t.Fatalf("expected ErrMissingRef, got %v", listings[0].Valid())
	}
}
