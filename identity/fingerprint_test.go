package identity

import "testing"

func TestFingerprint_KeyOrderIndependent(t *testing.T) {
	lat := "4.65"
	a := map[string]any{}
	a["title"] = "Casa"
	a["sale_price"] = 100.0
	a["bedrooms"] = 3
	a["latitude"] = &lat

	b := map[string]any{}
	b["latitude"] = &lat
	b["bedrooms"] = 3
	b["sale_price"] = 100.0
	b["title"] = "Casa"

	if Fingerprint(a) != Fingerprint(b) {
		t.Fatalf("expected identical fingerprints for equal field sets")
	}
	if len(Fingerprint(a)) != 32 {
		t.Fatalf("expected 128-bit hex digest, got %q", Fingerprint(a))
	}
}

func TestFingerprint_SingleFieldChange(t *testing.T) {
	base := map[string]any{"title": "Casa", "sale_price": 100.0, "bedrooms": 3}
	want := Fingerprint(base)

	cases := map[string]any{
		"title":      "Casa grande",
		"sale_price": 150.0,
		"bedrooms":   4,
	}
	for field, val := range cases {
		changed := map[string]any{}
		for k, v := range base {
			changed[k] = v
		}
		changed[field] = val
		if Fingerprint(changed) == want {
			t.Errorf("changing %s did not change fingerprint", field)
		}
	}
}

func TestFingerprint_NilAndEmptyPointer(t *testing.T) {
	var nilStr *string
	a := Fingerprint(map[string]any{"latitude": nilStr})
	b := Fingerprint(map[string]any{"latitude": nil})
	if a != b {
		t.Fatalf("nil pointer and nil should hash the same")
	}

	empty := ""
	c := Fingerprint(map[string]any{"latitude": &empty})
	if a == c {
		t.Fatalf("empty string should differ from absent")
	}
}

func TestFingerprint_ValueBoundaries(t *testing.T) {
	// "a|b=c" must not collide with a split field set
	a := Fingerprint(map[string]any{"a": "x|b=c"})
	b := Fingerprint(map[string]any{"a": "x", "b": "c"})
	if a == b {
		t.Fatalf("separator inside value collided with field boundary")
	}
}

func TestFingerprint_PanicsOnUnsupportedType(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic for unsupported value type")
		}
	}()
	Fingerprint(map[string]any{"bad": []int{1}})
}

func TestFingerprintBytes(t *testing.T) {
	if FingerprintBytes([]byte("abc")) != FingerprintBytes([]byte("abc")) {
		t.Fatalf("expected stable byte fingerprint")
	}
	if FingerprintBytes([]byte("abc")) == FingerprintBytes([]byte("abd")) {
		t.Fatalf("expected different fingerprints")
	}
}
