package main

import "testing"

func TestMaskDSN(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"postgres://sync:secret@db:5432/props", "postgres://sync:****@db:5432/props"},
		{"sync:secret@tcp(db:3306)/props?parseTime=true", "sync:****@tcp(db:3306)/props?parseTime=true"},
		{"file:data/props.db?_foreign_keys=on", "file:data/props.db?_foreign_keys=on"},
		{"postgres://sync@db/props", "postgres://sync@db/props"},
	}
	for _, tt := range tests {
		if got := maskDSN(tt.in); got != tt.want {
			t.Errorf("maskDSN(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
