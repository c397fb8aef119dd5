package pairing

import (
	"strings"
	"testing"
)

func TestCodeAlphabet_Is33Symbols(t *testing.T) {
	if len(codeAlphabet) != 33 {
		t.Fatalf("expected 33 symbols, got %d", len(codeAlphabet))
	}
	for _, ambiguous := range []string{"0", "1", "O"} {
		if strings.Contains(codeAlphabet, ambiguous) {
			t.Fatalf("alphabet must not contain %q", ambiguous)
		}
	}
}

func TestNewPairingCode_LengthAndAlphabet(t *testing.T) {
	for i := 0; i < 100; i++ {
		code, err := newPairingCode()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(code) != CodeLength {
			t.Fatalf("expected length %d, got %q", CodeLength, code)
		}
		for _, c := range code {
			if !strings.ContainsRune(codeAlphabet, c) {
				t.Fatalf("code %q contains %q outside the alphabet", code, c)
			}
		}
	}
}
