package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/dgallion1/deckcheck/internal/ingest"
)

// Format names an output mode.
type Format string

const (
	FormatConsole  Format = "console"
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
	FormatHTML     Format = "html"
	FormatDOCX     Format = "docx"
	FormatSummary  Format = "summary"
)

// ParseFormat accepts format names and common aliases.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "console", "text":
		return FormatConsole, nil
	case "json":
		return FormatJSON, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	case "html":
		return FormatHTML, nil
	case "docx", "word":
		return FormatDOCX, nil
	case "summary", "quick":
		return FormatSummary, nil
	}
	return "", fmt.Errorf("unknown report format %q", s)
}

// Extension is the file extension used when saving f.
func (f Format) Extension() string {
	switch f {
	case FormatJSON:
		return ".json"
	case FormatMarkdown:
		return ".md"
	case FormatHTML:
		return ".html"
	case FormatDOCX:
		return ".docx"
	}
	return ".txt"
}

// ContentType is the MIME type served for f.
func (f Format) ContentType() string {
	switch f {
	case FormatJSON:
		return "application/json"
	case FormatMarkdown:
		return "text/markdown; charset=utf-8"
	case FormatHTML:
		return "text/html; charset=utf-8"
	case FormatDOCX:
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	}
	return "text/plain; charset=utf-8"
}

// Write renders r in format f. Console output is uncolored; use
// WriteConsole for color.
func Write(w io.Writer, r *AnalysisResult, f Format) error {
	switch f {
	case FormatConsole:
		return WriteConsole(w, r, false)
	case FormatJSON:
		return WriteJSON(w, r)
	case FormatMarkdown:
		_, err := io.WriteString(w, Markdown(r))
		return err
	case FormatHTML:
		return WriteHTML(w, r)
	case FormatDOCX:
		return WriteDOCX(w, r)
	case FormatSummary:
		_, err := fmt.Fprintln(w, QuickSummary(r))
		return err
	}
	return fmt.Errorf("unknown report format %q", f)
}

// WriteJSON writes the indented JSON form of r.
func WriteJSON(w io.Writer, r *AnalysisResult) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(r)
}

// QuickSummary is a one-line verdict.
func QuickSummary(r *AnalysisResult) string {
	if r.Status == StatusFailure {
		return "Analysis failed: " + r.Diagnostic
	}
	total := r.Summary.Total
	if total == 0 {
		return "No inconsistencies found - presentation is consistent."
	}
	critical := r.Summary.BySeverity[ingest.Critical.String()]
	high := r.Summary.BySeverity[ingest.High.String()]
	switch {
	case critical > 0:
		return fmt.Sprintf("%d inconsistencies found (%d critical, %d high severity)", total, critical, high)
	case high > 0:
		return fmt.Sprintf("%d inconsistencies found (%d high severity)", total, high)
	}
	return fmt.Sprintf("%d minor inconsistencies found", total)
}

// groupBySeverity splits ranked findings into severity buckets, most severe
// first, omitting empty buckets.
func groupBySeverity(findings []ingest.Inconsistency) []severityGroup {
	var groups []severityGroup
	for _, sev := range ingest.Severities {
		var g severityGroup
		g.Severity = sev
		for _, f := range findings {
			if f.Severity == sev {
				g.Findings = append(g.Findings, f)
			}
		}
		if len(g.Findings) > 0 {
			groups = append(groups, g)
		}
	}
	return groups
}

type severityGroup struct {
	Severity ingest.Severity
	Findings []ingest.Inconsistency
}

func joinSlides(slides []int) string {
	parts := make([]string, len(slides))
	for i, n := range slides {
		parts[i] = fmt.Sprint(n)
	}
	return strings.Join(parts, ", ")
}

func statusLabel(s Status) string {
	switch s {
	case StatusSuccess:
		return "Success"
	case StatusPartialFailure:
		return "Partial failure"
	case StatusFailure:
		return "Failure"
	}
	return string(s)
}
