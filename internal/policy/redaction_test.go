package policy

import (
	"strings"
	"testing"
)

func TestRedactPII(t *testing.T) {
	input := "user sam@example.com called from +1 (555) 123-9876"
	out, changed := RedactPII(input)
	if !changed {
		t.Fatalf("changed = false, want true")
	}
	for _, marker := range []string{"[REDACTED_EMAIL]", "[REDACTED_PHONE]"} {
		if !strings.Contains(out, marker) {
			t.Fatalf("output missing marker %q: %q", marker, out)
		}
	}
	if _, changed := RedactPII("user-42"); changed {
		t.Fatalf("plain user id was redacted")
	}
}

func TestCoarsenCoordinates(t *testing.T) {
	out, changed := CoarsenCoordinates(`bad request: {"latitude":45.464211,"longitude":-9.190044}`)
	if !changed {
		t.Fatalf("changed = false, want true")
	}
	if strings.Contains(out, "45.464211") || strings.Contains(out, "9.190044") {
		t.Fatalf("precise coordinates survived: %q", out)
	}
	if !strings.Contains(out, "45.46~") || !strings.Contains(out, "-9.19~") {
		t.Fatalf("coarsened output = %q", out)
	}

	if _, changed := CoarsenCoordinates("status 503 after 1.5s"); changed {
		t.Fatalf("low-precision number was treated as a coordinate")
	}
}

func TestForLog(t *testing.T) {
	got := ForLog("push for ana@example.com at 45.46421,9.19002 failed")
	if strings.Contains(got, "ana@example.com") || strings.Contains(got, "45.46421") {
		t.Fatalf("ForLog() = %q", got)
	}
}
