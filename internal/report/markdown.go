package report

import (
	"fmt"
	"strings"
)

// Markdown renders r as a Markdown document.
func Markdown(r *AnalysisResult) string {
	var b strings.Builder
	line := func(format string, args ...any) {
		fmt.Fprintf(&b, format, args...)
		b.WriteString("\n")
	}

	line("# Presentation Consistency Report")
	line("")
	line("**Presentation:** %s  ", mdEscape(r.Presentation.Source))
	if r.Presentation.Title != "" {
		line("**Title:** %s  ", mdEscape(r.Presentation.Title))
	}
	line("**Total Slides:** %d  ", r.Presentation.SlideCount)
	line("**Processing Time:** %.2f seconds  ", r.DurationSeconds)
	if !r.CompletedAt.IsZero() {
		line("**Analysis Date:** %s  ", r.CompletedAt.UTC().Format("2006-01-02 15:04:05 UTC"))
	}
	line("**Status:** %s", statusLabel(r.Status))
	line("")

	if r.Status == StatusFailure {
		line("## Analysis Failed")
		line("")
		line("%s", mdEscape(r.Diagnostic))
		return b.String()
	}

	line("## Summary")
	line("")
	for _, l := range strings.Split(r.SummaryText, "\n") {
		// Keep the indented breakdown as a nested list rather than code.
		line("%s", strings.TrimPrefix(l, "  "))
	}
	line("")
	if len(r.Warnings) > 0 {
		line("> **Warnings**")
		for _, w := range r.Warnings {
			line("> - %s", mdEscape(w))
		}
		line("")
	}

	if len(r.Inconsistencies) == 0 {
		line("## Results")
		line("")
		line("No inconsistencies detected. The presentation appears to be consistent.")
		return b.String()
	}

	line("## Inconsistencies Found")
	line("")
	line("Total inconsistencies detected: **%d**", r.Summary.Total)
	line("")
	line("| Severity | Count |")
	line("|---|---|")
	for _, g := range groupBySeverity(r.Inconsistencies) {
		line("| %s | %d |", g.Severity, len(g.Findings))
	}
	line("")

	for _, g := range groupBySeverity(r.Inconsistencies) {
		line("### %s Severity Issues", g.Severity)
		line("")
		for i, f := range g.Findings {
			line("#### %d. %s", i+1, mdEscape(f.Title))
			line("")
			line("- **ID:** %s", f.ID)
			line("- **Type:** %s", f.Type)
			line("- **Affected Slides:** %s", joinSlides(f.AffectedSlides))
			line("- **Confidence:** %.2f", f.Confidence)
			line("")
			if len(f.Evidence) > 0 {
				line("**Evidence:**")
				line("")
				for _, e := range f.Evidence {
					line("- *Slide %d:* %s", e.Slide, mdEscape(e.Text))
				}
				line("")
			}
			line("**Explanation:**")
			line("")
			line("%s", mdEscape(f.Explanation))
			line("")
		}
	}
	line("---")
	line("")
	line("Focus on critical and high severity issues first.")
	return b.String()
}

var mdEscaper = strings.NewReplacer(
	"\\", "\\\\",
	"*", "\\*",
	"_", "\\_",
	"`", "\\`",
	"|", "\\|",
	"<", "&lt;",
	">", "&gt;",
	"\n", " ",
)

// mdEscape neutralizes Markdown and HTML syntax in model-supplied text.
func mdEscape(s string) string {
	return mdEscaper.Replace(s)
}
