// Package convert normalizes Confluence storage-format content into
// markdown and renders local markdown back into storage format. The
// normalized form is the canonical input for content hashing, so both sync
// directions agree on what "unchanged" means.
package convert

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	gmhtml "github.com/yuin/goldmark/renderer/html"
	"golang.org/x/net/html"
)

// Normalizer reduces raw page content to the canonical form used for
// hashing and local files.
type Normalizer interface {
	Normalize(raw string) (string, error)
}

// Renderer turns local markdown into a storage-format body for upload.
type Renderer interface {
	RenderStorage(markdown string) (string, error)
}

// Converter implements both directions of the content transform.
type Converter struct {
	md goldmark.Markdown
}

// New constructs a Converter. The markdown renderer emits XHTML so the
// output is valid storage format.
func New() *Converter {
	return &Converter{
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithRendererOptions(gmhtml.WithXHTML()),
		),
	}
}

// Normalize converts storage-format XHTML to markdown. Elements in the ac:
// and ri: namespaces carry macro and resource hints with no local
// representation; they are dropped before conversion so hashes stay stable
// across server-side macro churn.
func (c *Converter) Normalize(raw string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return "", nil
	}

	doc, err := html.Parse(strings.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("convert: parse storage content: %w", err)
	}

	stripMacros(doc)

	markdown, err := htmltomarkdown.ConvertNode(doc)
	if err != nil {
		return "", fmt.Errorf("convert: render markdown: %w", err)
	}

	return normalizeWhitespace(string(markdown)), nil
}

// RenderStorage converts markdown to storage-format XHTML.
func (c *Converter) RenderStorage(markdown string) (string, error) {
	var buf bytes.Buffer
	if err := c.md.Convert([]byte(markdown), &buf); err != nil {
		return "", fmt.Errorf("convert: render storage: %w", err)
	}
	return strings.TrimSpace(buf.String()), nil
}

// HashContent digests normalized content for change detection.
func HashContent(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

func stripMacros(n *html.Node) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		if c.Type == html.ElementNode && isMacroTag(c.Data) {
			n.RemoveChild(c)
		} else {
			stripMacros(c)
		}
		c = next
	}
}

func isMacroTag(tag string) bool {
	return strings.HasPrefix(tag, "ac:") || strings.HasPrefix(tag, "ri:")
}

// normalizeWhitespace trims trailing whitespace per line and collapses runs
// of blank lines so cosmetic differences never change the hash.
func normalizeWhitespace(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))

	blank := 0
	for _, line := range lines {
		line = strings.TrimRight(line, " \t")
		if line == "" {
			blank++
			if blank > 1 {
				continue
			}
		} else {
			blank = 0
		}
		out = append(out, line)
	}

	return strings.Trim(strings.Join(out, "\n"), "\n")
}
