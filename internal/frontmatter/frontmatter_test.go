package frontmatter

import (
	"reflect"
	"testing"
	"time"
)

func intp(i int) *int { return &i }

func TestParse(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		wantFM   *Frontmatter
		wantBody string
		wantErr  bool
	}{
		{
			name: "full frontmatter",
			content: `---
id: "123456"
title: Release Runbook
space: DOCS
version: 7
parent: "123"
position: 3
last-synced: "2026-08-01T10:00:00Z"
---

# Runbook

Steps here.`,
			wantFM: &Frontmatter{
				ID:         "123456",
				Title:      "Release Runbook",
				SpaceKey:   "DOCS",
				Version:    7,
				ParentID:   "123",
				Position:   intp(3),
				LastSynced: "2026-08-01T10:00:00Z",
			},
			wantBody: "\n# Runbook\n\nSteps here.",
			wantErr:  false,
		},
		{
			name:     "no frontmatter",
			content:  "# Just a title\n\nSome content.",
			wantFM:   nil,
			wantBody: "# Just a title\n\nSome content.",
			wantErr:  false,
		},
		{
			name: "invalid yaml",
			content: `---
id: test
title: [broken
---

Body`,
			wantFM: nil,
			wantBody: `---
id: test
title: [broken
---

Body`,
			wantErr: true,
		},
		{
			name: "minimal frontmatter",
			content: `---
id: "99"
title: Note
space: DOCS
version: 1
---

Content`,
			wantFM: &Frontmatter{
				ID:       "99",
				Title:    "Note",
				SpaceKey: "DOCS",
				Version:  1,
			},
			wantBody: "\nContent",
			wantErr:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotFM, gotBody, err := Parse(tt.content)
			if (err != nil) != tt.wantErr {
				t.Errorf("Parse() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !reflect.DeepEqual(gotFM, tt.wantFM) {
				t.Errorf("Parse() gotFM = %+v, want %+v", gotFM, tt.wantFM)
			}
			if gotBody != tt.wantBody {
				t.Errorf("Parse() gotBody = %q, want %q", gotBody, tt.wantBody)
			}
		})
	}
}

func TestBuild(t *testing.T) {
	tests := []struct {
		name string
		fm   *Frontmatter
		want string
	}{
		{
			name: "complete frontmatter",
			fm: &Frontmatter{
				ID:         "123456",
				Title:      "Release Runbook",
				SpaceKey:   "DOCS",
				Version:    7,
				ParentID:   "123",
				Position:   intp(3),
				LastSynced: "2026-08-01T10:00:00Z",
			},
			want: `---
id: 123456
title: Release Runbook
space: DOCS
version: 7
parent: 123
position: 3
last-synced: "2026-08-01T10:00:00Z"
---`,
		},
		{
			name: "minimal frontmatter",
			fm: &Frontmatter{
				ID:       "99",
				Title:    "Note",
				SpaceKey: "DOCS",
				Version:  1,
			},
			want: `---
id: 99
title: Note
space: DOCS
version: 1
---`,
		},
		{
			name: "title with special characters",
			fm: &Frontmatter{
				ID:       "7",
				Title:    "Ops: Incident, Response",
				SpaceKey: "DOCS",
				Version:  2,
			},
			want: `---
id: 7
title: "Ops: Incident, Response"
space: DOCS
version: 2
---`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Build(tt.fm)
			if got != tt.want {
				t.Errorf("Build() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestBuildContent(t *testing.T) {
	fm := &Frontmatter{ID: "1", Title: "Note", SpaceKey: "DOCS", Version: 1}

	tests := []struct {
		name string
		body string
		want string
	}{
		{
			name: "body without leading newline",
			body: "# Title\n\nContent",
			want: Build(fm) + "\n\n# Title\n\nContent",
		},
		{
			name: "body with leading newline",
			body: "\n# Title\n\nContent",
			want: Build(fm) + "\n\n# Title\n\nContent",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BuildContent(fm, tt.body)
			if got != tt.want {
				t.Errorf("BuildContent() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFormatAndParseTimestamp(t *testing.T) {
	now := time.Date(2026, 8, 1, 14, 30, 45, 0, time.UTC)

	formatted := FormatTimestamp(now)
	if formatted != "2026-08-01T14:30:45Z" {
		t.Errorf("FormatTimestamp() = %q", formatted)
	}

	parsed, err := ParseTimestamp(formatted)
	if err != nil {
		t.Errorf("ParseTimestamp() error = %v", err)
	}
	if !parsed.Equal(now) {
		t.Errorf("ParseTimestamp() = %v, want %v", parsed, now)
	}
}

func TestRoundTrip(t *testing.T) {
	original := &Frontmatter{
		ID:         "123456",
		Title:      "Round Trip: Test",
		SpaceKey:   "DOCS",
		Version:    4,
		ParentID:   "123",
		Position:   intp(0),
		LastSynced: "2026-08-01T10:00:00Z",
	}

	body := "# Content\n\nBody text."
	content := BuildContent(original, body)

	parsed, parsedBody, err := Parse(content)
	if err != nil {
		t.Fatalf("parse round-trip content: %v", err)
	}

	if !reflect.DeepEqual(parsed, original) {
		t.Errorf("round trip frontmatter mismatch\noriginal: %+v\nparsed: %+v", original, parsed)
	}

	if parsedBody != "\n"+body {
		t.Errorf("round trip body mismatch: %q", parsedBody)
	}
}
