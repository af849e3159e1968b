package crypto

import (
	"strings"
	"testing"
)

func TestCompressString_RoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		value string
	}{
		{"empty", ""},
		{"short", "hello"},
		{"unicode", "grüße, 你好"},
		{"long repetitive", strings.Repeat("mail body text ", 4000)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			compressed, err := CompressString(tt.value)
			if err != nil {
				t.Fatalf("CompressString() error = %v", err)
			}
			if tt.value == "" && len(compressed) != 0 {
				t.Errorf("empty string compressed to %d bytes, want 0", len(compressed))
			}

			got, err := DecompressString(compressed)
			if err != nil {
				t.Fatalf("DecompressString() error = %v", err)
			}
			if got != tt.value {
				t.Errorf("round trip mismatch: got %d chars, want %d", len(got), len(tt.value))
			}
		})
	}
}

func TestCompressString_Compresses(t *testing.T) {
	value := strings.Repeat("the quick brown fox ", 500)
	compressed, err := CompressString(value)
	if err != nil {
		t.Fatal(err)
	}
	if len(compressed) >= len(value) {
		t.Errorf("compressed %d bytes into %d", len(value), len(compressed))
	}
}
