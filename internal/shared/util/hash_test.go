package util

import "testing"

func TestHashContent(t *testing.T) {
	text := "the study enrolled 40 patients"
	got := HashContent(text)
	if got != HashContent(text) {
		t.Fatalf("expected stable hash, got %s", got)
	}
	if got == HashContent(text+" ") {
		t.Fatalf("expected distinct hashes for distinct inputs")
	}
	for _, ch := range got {
		if !((ch >= 'a' && ch <= 'f') || (ch >= '0' && ch <= '9')) {
			t.Fatalf("hash contains non-hex character: %c", ch)
		}
	}
	if len(got) != 64 {
		t.Fatalf("expected 64 hex characters, got %d", len(got))
	}
}

func TestHashContentNeverEchoesInput(t *testing.T) {
	text := "confidential interim analysis"
	if got := HashContent(text); got == text {
		t.Fatalf("hash must not equal input")
	}
}
