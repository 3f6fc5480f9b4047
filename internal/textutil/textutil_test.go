package textutil

import "testing"

func TestSanitizeToken(t *testing.T) {
	tests := map[string]string{
		"":                  "unknown",
		"  ":                "unknown",
		"MediaPool:42/clip": "mediapool_42_clip",
		"__x__":             "x",
		"A001-C002":         "a001-c002",
	}
	for in, want := range tests {
		if got := SanitizeToken(in); got != want {
			t.Fatalf("SanitizeToken(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNormalizeNameComposes(t *testing.T) {
	composed := "Caf\u00e9"
	decomposed := "Cafe\u0301"
	if composed == decomposed {
		t.Fatal("test strings should differ before normalization")
	}
	if NormalizeName(decomposed) != composed {
		t.Fatalf("unexpected normalized form %q", NormalizeName(decomposed))
	}
}

func TestLabel(t *testing.T) {
	tests := map[string]string{
		"link_failed":  "Link Failed",
		"REQUEUED":     "Requeued",
		"rerender-all": "Rerender All",
		"":             "",
	}
	for in, want := range tests {
		if got := Label(in); got != want {
			t.Fatalf("Label(%q) = %q, want %q", in, got, want)
		}
	}
}
