// Package frontmatter reads and writes the YAML metadata block that makes
// pulled markdown files self-describing: which page they mirror, at which
// version, and where they sit in the space tree.
package frontmatter

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

var frontmatterPattern = regexp.MustCompile(`(?s)^---\n(.*?)\n---\n(.*)`)

// Frontmatter carries the sync identity of a local markdown file.
type Frontmatter struct {
	ID         string `yaml:"id"`
	Title      string `yaml:"title"`
	SpaceKey   string `yaml:"space"`
	Version    int    `yaml:"version"`
	ParentID   string `yaml:"parent,omitempty"`
	Position   *int   `yaml:"position,omitempty"`
	LastSynced string `yaml:"last-synced,omitempty"`
}

// Parse extracts frontmatter from content and returns the parsed data and
// body. Content without a frontmatter block comes back untouched with a nil
// Frontmatter.
func Parse(content string) (*Frontmatter, string, error) {
	matches := frontmatterPattern.FindStringSubmatch(content)
	if len(matches) != 3 {
		return nil, content, nil
	}

	var fm Frontmatter
	if err := yaml.Unmarshal([]byte(matches[1]), &fm); err != nil {
		return nil, content, fmt.Errorf("frontmatter: parse: %w", err)
	}

	return &fm, matches[2], nil
}

// Build creates the YAML frontmatter string. Fields render in a fixed order
// so rebuilding unchanged metadata never dirties the file.
func Build(fm *Frontmatter) string {
	var sb strings.Builder

	sb.WriteString("---\n")
	sb.WriteString(fmt.Sprintf("id: %s\n", quoteIfNeeded(fm.ID)))
	sb.WriteString(fmt.Sprintf("title: %s\n", quoteIfNeeded(fm.Title)))
	sb.WriteString(fmt.Sprintf("space: %s\n", quoteIfNeeded(fm.SpaceKey)))
	sb.WriteString(fmt.Sprintf("version: %d\n", fm.Version))

	if fm.ParentID != "" {
		sb.WriteString(fmt.Sprintf("parent: %s\n", quoteIfNeeded(fm.ParentID)))
	}
	if fm.Position != nil {
		sb.WriteString(fmt.Sprintf("position: %d\n", *fm.Position))
	}
	if fm.LastSynced != "" {
		sb.WriteString(fmt.Sprintf("last-synced: %s\n", quoteIfNeeded(fm.LastSynced)))
	}

	sb.WriteString("---")

	return sb.String()
}

// BuildContent combines frontmatter and body content into a complete document.
func BuildContent(fm *Frontmatter, body string) string {
	header := Build(fm)

	if !strings.HasPrefix(body, "\n") {
		return header + "\n\n" + body
	}
	return header + "\n" + body
}

// FormatTimestamp formats a time.Time into the frontmatter timestamp format.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// ParseTimestamp parses a frontmatter timestamp string into time.Time.
func ParseTimestamp(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}

func quoteIfNeeded(s string) string {
	if strings.ContainsAny(s, ",:[]{}\"'#") {
		return fmt.Sprintf("%q", s)
	}
	return s
}
