package export

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"tabscribe/internal/model"
	"tabscribe/internal/normalize"
)

// Supported export formats.
const (
	FormatMarkdown = "markdown"
	FormatJSON     = "json"
	FormatYAML     = "yaml"
)

var (
	// ErrNonASCII is returned when a record that was not normalized reaches
	// the formatter.
	ErrNonASCII = errors.New("export: record contains non-ASCII text")
	// ErrUnknownFormat is returned for a format name outside the supported set.
	ErrUnknownFormat = errors.New("export: unknown format")
)

// Document is one rendered export.
type Document struct {
	Body        []byte
	ContentType string
	Extension   string
}

// ParseFormat maps a user-supplied format name to a supported one.
// Empty selects markdown.
func ParseFormat(s string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "md", FormatMarkdown:
		return FormatMarkdown, nil
	case FormatJSON:
		return FormatJSON, nil
	case "yml", FormatYAML:
		return FormatYAML, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

// Render formats a normalized record. The layout engine downstream only
// handles ASCII, so any non-ASCII byte in the rendered output is an error.
func Render(rec model.NormalizedExportRecord, format string) (*Document, error) {
	format, err := ParseFormat(format)
	if err != nil {
		return nil, err
	}
	rec.Analysis.Fill()

	var doc *Document
	switch format {
	case FormatJSON:
		body, err := json.MarshalIndent(rec, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("failed to encode json export: %w", err)
		}
		doc = &Document{Body: body, ContentType: "application/json", Extension: ".json"}
	case FormatYAML:
		var buf bytes.Buffer
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("failed to encode yaml export: %w", err)
		}
		if err := enc.Close(); err != nil {
			return nil, fmt.Errorf("failed to encode yaml export: %w", err)
		}
		doc = &Document{Body: buf.Bytes(), ContentType: "application/yaml", Extension: ".yaml"}
	default:
		doc = &Document{Body: markdown(rec), ContentType: "text/markdown; charset=us-ascii", Extension: ".md"}
	}

	if !normalize.IsASCII(string(doc.Body)) {
		return nil, ErrNonASCII
	}
	return doc, nil
}

func markdown(rec model.NormalizedExportRecord) []byte {
	var b strings.Builder
	a := rec.Analysis

	b.WriteString("# Session report\n\n")
	if rec.RecordID != "" {
		fmt.Fprintf(&b, "- Record: %s\n", rec.RecordID)
	}
	if !rec.CreatedAt.IsZero() {
		fmt.Fprintf(&b, "- Date: %s\n", rec.CreatedAt.UTC().Format("2006-01-02 15:04 MST"))
	}
	if rec.Language != "" {
		fmt.Fprintf(&b, "- Language: %s\n", rec.Language)
	}
	if rec.Transcript.Duration > 0 {
		fmt.Fprintf(&b, "- Duration: %s\n", clock(rec.Transcript.Duration))
	}
	b.WriteString("\n## Summary\n\n")
	if a.Summary.Overview != "" {
		b.WriteString(a.Summary.Overview)
		b.WriteString("\n")
	}
	list(&b, "### Priority tasks", a.Summary.PriorityTasks)
	list(&b, "### Key points", a.Summary.KeyPoints)

	b.WriteString("\n## Attendance\n\n")
	fmt.Fprintf(&b, "- Present: %s\n", joinOrNone(a.Attendance.Present))
	fmt.Fprintf(&b, "- Absent: %s\n", joinOrNone(a.Attendance.Absent))

	if len(a.PersonalProgress) > 0 {
		b.WriteString("\n## Progress\n")
		for _, p := range a.PersonalProgress {
			fmt.Fprintf(&b, "\n### %s\n", p.Name)
			list(&b, "Completed:", p.Completed)
			list(&b, "In progress:", p.InProgress)
			list(&b, "Blockers:", p.Blockers)
		}
	}

	if len(a.Workload) > 0 {
		b.WriteString("\n## Workload\n\n| Name | Load | Tasks |\n|---|---|---|\n")
		for _, w := range a.Workload {
			fmt.Fprintf(&b, "| %s | %s | %s |\n", cell(w.Name), cell(w.Load), cell(strings.Join(w.Tasks, "; ")))
		}
	}

	if len(a.ActionItems) > 0 {
		b.WriteString("\n## Action items\n\n")
		for _, it := range a.ActionItems {
			line := "- [ ] " + it.Task
			if it.Owner != "" {
				line += " (" + it.Owner + ")"
			}
			if it.Due != "" {
				line += " due " + it.Due
			}
			b.WriteString(line + "\n")
		}
	}

	list(&b, "\n## Decisions", a.Decisions)

	if len(rec.Transcript.Segments) > 0 || rec.Transcript.Text != "" {
		b.WriteString("\n## Transcript\n\n")
		if len(rec.Transcript.Segments) == 0 {
			b.WriteString(rec.Transcript.Text + "\n")
		}
		for _, s := range rec.Transcript.Segments {
			fmt.Fprintf(&b, "[%s] %s\n", clock(s.Start), strings.TrimSpace(s.Text))
		}
	}
	return []byte(b.String())
}

func list(b *strings.Builder, heading string, items []string) {
	if len(items) == 0 {
		return
	}
	b.WriteString(heading)
	b.WriteString("\n\n")
	for _, it := range items {
		b.WriteString("- " + it + "\n")
	}
}

func joinOrNone(ss []string) string {
	if len(ss) == 0 {
		return "none"
	}
	return strings.Join(ss, ", ")
}

func cell(s string) string {
	return strings.ReplaceAll(s, "|", "\\|")
}

func clock(seconds float64) string {
	total := int(seconds)
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, total%3600/60, total%60)
}
