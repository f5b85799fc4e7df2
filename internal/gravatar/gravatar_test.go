package gravatar

import (
	"strings"
	"testing"
)

func TestURLNormalizesEmail(t *testing.T) {
	a := URL("Dev@Example.com ")
	b := URL("dev@example.com")
	if a != b {
		t.Fatalf("expected identical URLs for equivalent emails, got %q and %q", a, b)
	}
}

func TestURLCarriesDisplayOptions(t *testing.T) {
	got := URL("dev@example.com")
	if !strings.HasPrefix(got, "https://www.gravatar.com/avatar/") {
		t.Fatalf("unexpected URL prefix: %q", got)
	}
	for _, param := range []string{"s=200", "r=pg", "d=mm"} {
		if !strings.Contains(got, param) {
			t.Fatalf("expected %s in URL, got %q", param, got)
		}
	}
}
