package cache

import (
	"testing"
)

func TestParseURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantDB  int
		wantErr bool
	}{
		{"valid-redis", "redis://localhost:6379", 0, false},
		{"with-db", "redis://localhost:6379/2", 2, false},
		{"with-password", "redis://:secret@localhost:6379/1", 1, false},
		{"wrong-scheme", "http://localhost:6379", 0, true},
		{"empty", "", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts, err := ParseURL(tt.url)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseURL() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && opts.DB != tt.wantDB {
				t.Errorf("DB = %d, want %d", opts.DB, tt.wantDB)
			}
		})
	}
}

func TestScanPattern(t *testing.T) {
	tests := []struct {
		prefix string
		want   string
	}{
		{"quiz:desc:", "quiz:desc:*"},
		{"", "*"},
		{"a*b?", `a\*b\?*`},
		{"[x]", `\[x\]*`},
	}
	for _, tt := range tests {
		if got := scanPattern(tt.prefix); got != tt.want {
			t.Errorf("scanPattern(%q) = %q, want %q", tt.prefix, got, tt.want)
		}
	}
}

func TestNew_UnreachableHost(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping unreachable host test in short mode")
	}

	if _, err := New(t.Context(), "redis://localhost:59999"); err == nil {
		t.Fatal("New() should return error for unreachable host")
	}
}
