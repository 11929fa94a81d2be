package hierarchy

import (
	"strings"
	"testing"
)

func TestSegment(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		position int
		title    string
		want     string
	}{
		{"zero position", 0, "Getting Started", "000-getting-started"},
		{"padded position", 12, "API/Design: Notes", "012-api-design-notes"},
		{"wide position", 1000, "X", "1000-x"},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			if got := Segment(tc.position, tc.title); got != tc.want {
				t.Fatalf("got %s, want %s", got, tc.want)
			}
		})
	}
}

func TestSplitSegment(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		segment  string
		position int
		slug     string
		ok       bool
	}{
		{"plain", "002-guide", 2, "guide", true},
		{"wide position", "1000-x", 1000, "x", true},
		{"slug with hyphens", "000-getting-started", 0, "getting-started", true},
		{"no hyphen", "index", 0, "index", false},
		{"short prefix", "12-foo", 0, "12-foo", false},
		{"non-numeric prefix", "abc-def", 0, "abc-def", false},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			pos, slug, ok := SplitSegment(tc.segment)
			if pos != tc.position || slug != tc.slug || ok != tc.ok {
				t.Fatalf("got (%d, %s, %v), want (%d, %s, %v)",
					pos, slug, ok, tc.position, tc.slug, tc.ok)
			}
		})
	}
}

func TestSegmentRoundTrip(t *testing.T) {
	t.Parallel()

	seg := Segment(7, "Release Checklist")
	pos, slug, ok := SplitSegment(seg)
	if !ok || pos != 7 || slug != "release-checklist" {
		t.Fatalf("round trip broke: (%d, %s, %v)", pos, slug, ok)
	}
}

func TestSlug(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		title string
		want  string
	}{
		{"spaces", "Getting Started", "getting-started"},
		{"surrounding space", "  Padded  ", "padded"},
		{"hyphen runs", "A -- B", "a-b"},
		{"all dropped", "***", "untitled"},
		{"unicode kept", "Überblick", "überblick"},
		{"question mark", "What?", "what"},
		{"dotted version", "v2.0 Release", "v2.0-release"},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			if got := Slug(tc.title); got != tc.want {
				t.Fatalf("got %s, want %s", got, tc.want)
			}
		})
	}
}

func TestSlugTruncates(t *testing.T) {
	t.Parallel()

	got := Slug(strings.Repeat("a", 150))
	if len(got) != 100 {
		t.Fatalf("expected 100 bytes, got %d", len(got))
	}
}
