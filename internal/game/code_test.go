package game

import (
	"strings"
	"testing"
)

func TestNewCodeUsesUnambiguousAlphabet(t *testing.T) {
	for i := 0; i < 100; i++ {
		code := NewCode(6)
		if len(code) != 6 {
			t.Fatalf("expected length 6, got %q", code)
		}
		for _, r := range code {
			if !strings.ContainsRune(CodeChars, r) {
				t.Fatalf("code %q contains %q outside the alphabet", code, r)
			}
		}
	}
}

func TestNormalizeCode(t *testing.T) {
	if got := NormalizeCode("  abcd "); got != "ABCD" {
		t.Fatalf("expected ABCD, got %q", got)
	}
}
