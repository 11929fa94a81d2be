package hierarchy

import (
	"fmt"
	"strconv"
	"strings"
)

// slugReplacer folds separators to hyphens and drops characters that are
// unsafe in filenames on common filesystems.
var slugReplacer = strings.NewReplacer(
	" ", "-",
	"_", "-",
	"/", "-",
	"\\", "-",
	":", "-",
	"\n", "-",
	"\t", "-",
	"\r", "",
	"*", "",
	"?", "",
	"\"", "",
	"'", "",
	"<", "",
	">", "",
	"|", "",
	"#", "",
)

// Segment builds one path segment from a sibling position and a title,
// e.g. Segment(1, "Getting Started") == "001-getting-started". The fixed
// width keeps directory listings in remote sibling order.
func Segment(position int, title string) string {
	return fmt.Sprintf("%03d-%s", position, Slug(title))
}

// SplitSegment recovers the position and title slug from a segment built
// by Segment. Segments without a numeric prefix report ok false and come
// back whole.
func SplitSegment(segment string) (position int, slug string, ok bool) {
	head, rest, found := strings.Cut(segment, "-")
	if !found || len(head) < 3 {
		return 0, segment, false
	}
	for _, c := range head {
		if c < '0' || c > '9' {
			return 0, segment, false
		}
	}
	n, err := strconv.Atoi(head)
	if err != nil {
		return 0, segment, false
	}
	return n, rest, true
}

// Slug normalizes a title for filesystem use: lowercased, separators
// collapsed to single hyphens, unsafe characters dropped. Titles that
// sanitize away entirely fall back to "untitled".
func Slug(title string) string {
	s := slugReplacer.Replace(strings.ToLower(strings.TrimSpace(title)))
	for strings.Contains(s, "--") {
		s = strings.ReplaceAll(s, "--", "-")
	}
	s = strings.Trim(s, "-")
	if len(s) > 100 {
		s = strings.Trim(s[:100], "-")
	}
	if s == "" {
		return "untitled"
	}
	return s
}
