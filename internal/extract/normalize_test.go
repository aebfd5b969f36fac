package extract

import (
	"strings"
	"testing"
)

func TestNormalizeEvidence(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{
			name:    "plain text passes through",
			content: "Pro plan costs $99/month.",
			want:    "Pro plan costs $99/month.",
		},
		{
			name:    "whitespace collapsed",
			content: "Pro plan\n\n   costs\t$99/month.",
			want:    "Pro plan costs $99/month.",
		},
		{
			name:    "html reduced to visible text",
			content: "<html><body><div>Pro plan</div><p>$99/month</p></body></html>",
			want:    "Pro plan $99/month",
		},
		{
			name:    "scripts and styles skipped",
			content: "<html><head><style>.x{color:red}</style></head><body><script>track()</script><p>$99/month</p></body></html>",
			want:    "$99/month",
		},
		{
			name:    "empty input",
			content: "   ",
			want:    "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeEvidence(tt.content); got != tt.want {
				t.Errorf("NormalizeEvidence() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTruncate(t *testing.T) {
	t.Run("short text untouched", func(t *testing.T) {
		if got := Truncate("hello world", 100); got != "hello world" {
			t.Errorf("got %q", got)
		}
	})

	t.Run("cuts at word boundary near cap", func(t *testing.T) {
		text := strings.Repeat("word ", 100) // 500 chars
		got := Truncate(text, 253)
		if len(got) > 253 {
			t.Fatalf("length %d exceeds cap", len(got))
		}
		if strings.HasSuffix(got, "wor") {
			t.Errorf("cut mid-word: %q", got[len(got)-10:])
		}
	})

	t.Run("no boundary within window cuts hard", func(t *testing.T) {
		text := strings.Repeat("x", 500)
		got := Truncate(text, 300)
		if len(got) != 300 {
			t.Errorf("length = %d, want 300", len(got))
		}
	})

	t.Run("small cap over spaceless text cuts hard", func(t *testing.T) {
		// Long unbroken runs (URLs, tokens) with a cap under the boundary
		// window must truncate, not slice out of range.
		text := strings.Repeat("a", 500)
		got := Truncate(text, 100)
		if len(got) != 100 {
			t.Errorf("length = %d, want 100", len(got))
		}
	})

	t.Run("small cap with late space cuts at the space", func(t *testing.T) {
		text := "short intro " + strings.Repeat("a", 500)
		got := Truncate(text, 50)
		if got != "short intro" {
			t.Errorf("got %q, want cut at the last space", got)
		}
	})

	t.Run("zero max disables truncation", func(t *testing.T) {
		text := strings.Repeat("x", 500)
		if got := Truncate(text, 0); len(got) != 500 {
			t.Errorf("length = %d, want 500", len(got))
		}
	})
}
