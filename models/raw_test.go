package models

import (
	"testing"

	"github.com/goccy/go-json"
)

func TestRawListing_Decode(t *testing.T) {
	payload := `{
		"ref": "261",
		"codigo_sincronizacion": "AP-261",
		"ciudad": "Bogotá",
		"precio_venta": "$ 200.000.000",
		"area": "85,5",
		"habitaciones": 3,
		"banos": "2",
		"latitud": 4.6097,
		"longitud": null,
		"imagenes": [{"url": "http://x/a.jpg", "orden": "2", "es_principal": "1"}, "http://x/b.jpg", {"url": ""}],
		"caracteristicas": [{"nombre": "Piscina", "valor": true}, {"nombre": " "}],
		"asesor": {"nombre": "Ana"}
	}`

	var r RawListing
	if err := json.Unmarshal([]byte(payload), &r); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if r.Ref != 261 {
		t.Fatalf("expected ref 261, got %d", r.Ref)
	}
	if r.SyncCode != "AP-261" || r.City != "Bogotá" {
		t.Fatalf("unexpected text fields: %+v", r)
	}
	if r.SalePrice != 200000000 {
		t.Fatalf("expected sale price 200000000, got %v", r.SalePrice)
	}
	if r.Area != 85.5 {
		t.Fatalf("expected area 85.5, got %v", r.Area)
	}
	if r.Bedrooms != 3 || r.Bathrooms != 2 {
		t.Fatalf("unexpected counts: %d/%d", r.Bedrooms, r.Bathrooms)
	}
	if r.Latitude == nil || *r.Latitude != "4.6097" {
		t.Fatalf("unexpected latitude: %v", r.Latitude)
	}
	if r.Longitude != nil {
		t.Fatalf("expected nil longitude")
	}
	if len(r.Images) != 2 {
		t.Fatalf("expected 2 images, got %d", len(r.Images))
	}
	if r.Images[0].Order == nil || *r.Images[0].Order != 2 || !r.Images[0].IsPrimary {
		t.Fatalf("unexpected first image: %+v", r.Images[0])
	}
	if r.Images[1].URL != "http://x/b.jpg" || r.Images[1].Order != nil {
		t.Fatalf("unexpected bare-string image: %+v", r.Images[1])
	}
	if len(r.Characteristics) != 1 || r.Characteristics[0].Name != "Piscina" {
		t.Fatalf("unexpected characteristics: %+v", r.Characteristics)
	}
	if _, ok := r.RawExtra["asesor"]; !ok {
		t.Fatalf("expected unknown key in RawExtra")
	}
	if err := r.Valid(); err != nil {
		t.Fatalf("expected valid listing, got %v", err)
	}
}

func TestRawListing_MissingRef(t *testing.T) {
	var r RawListing
	if err := json.Unmarshal([]byte(`{"ciudad": "Cali", "area": "n/a"}`), &r); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if r.Area != 0 {
		t.Fatalf("unparseable numeric should default to 0, got %v", r.Area)
	}
	if err := r.Valid(); err != ErrMissingRef {
		t.Fatalf("expected ErrMissingRef, got %v", err)
	}
}

func TestRawListing_BadRef(t *testing.T) {
	var r RawListing
	if err := json.Unmarshal([]byte(`{"ref": "abc"}`), &r); err == nil {
		t.Fatalf("expected error for unparseable ref")
	}
}

func TestParseLooseNumber(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"1200000", 1200000},
		{"1.200.000", 1200000},
		{"1,200,000.50", 1200000.5},
		{"$ 350.000", 350000},
		{"85,5 m2", 85.5},
		{"0.125", 0.125},
		{"0,125", 0.125},
		{"85.125", 85125},
		{"85.1250", 85.125},
		{"1.200.000,50", 1200000.5},
		{"3.", 3},
		{"-0.5", -0.5},
		{"", 0},
		{"consultar", 0},
	}
	for _, tt := range tests {
		if got := ParseLooseNumber(tt.in); got != tt.want {
			t.Errorf("ParseLooseNumber(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestFlags(t *testing.T) {
	if !DefaultFlags().IsDefault() {
		t.Fatalf("default flags should be default")
	}
	if (Flags{Active: false}).IsDefault() {
		t.Fatalf("inactive should not be default")
	}
	if (Flags{Active: true, Hot: true}).IsDefault() {
		t.Fatalf("hot should not be default")
	}
}

func TestAuditValues_ZeroIsAbsent(t *testing.T) {
	l := &Listing{Title: "Casa", SalePrice: 0, Bedrooms: 2}
	vals := l.AuditValues(CatalogValues{City: "Cali"})
	if vals["precio_venta"] != nil {
		t.Fatalf("zero price should be nil")
	}
	if vals["habitaciones"] == nil || *vals["habitaciones"] != "2" {
		t.Fatalf("unexpected habitaciones: %v", vals["habitaciones"])
	}
	if vals["ciudad"] == nil || *vals["ciudad"] != "Cali" {
		t.Fatalf("unexpected ciudad: %v", vals["ciudad"])
	}
	for _, f := range TrackedFields {
		if _, ok := vals[f]; !ok {
			t.Errorf("tracked field %s missing from audit values", f)
		}
	}
}
