package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/dgallion1/deckcheck/internal/ingest"
)

var severityColors = map[ingest.Severity]lipgloss.Color{
	ingest.Low:      lipgloss.Color("#4CAF50"),
	ingest.Medium:   lipgloss.Color("#E5C07B"),
	ingest.High:     lipgloss.Color("#FF6B6B"),
	ingest.Critical: lipgloss.Color("#C678DD"),
}

type consoleStyles struct {
	title   lipgloss.Style
	section lipgloss.Style
	muted   lipgloss.Style
	ok      lipgloss.Style
	fail    lipgloss.Style
	color   bool
}

func newConsoleStyles(color bool) consoleStyles {
	if !color {
		plain := lipgloss.NewStyle()
		return consoleStyles{title: plain, section: plain, muted: plain, ok: plain, fail: plain}
	}
	return consoleStyles{
		title:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5B8DEF")),
		section: lipgloss.NewStyle().Bold(true),
		muted:   lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")),
		ok:      lipgloss.NewStyle().Foreground(lipgloss.Color("#4CAF50")),
		fail:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FF6B6B")),
		color:   true,
	}
}

func (s consoleStyles) severity(sev ingest.Severity) lipgloss.Style {
	if !s.color {
		return lipgloss.NewStyle()
	}
	return lipgloss.NewStyle().Bold(true).Foreground(severityColors[sev])
}

// WriteConsole writes the human-readable report grouped by severity.
func WriteConsole(w io.Writer, r *AnalysisResult, color bool) error {
	st := newConsoleStyles(color)
	rule := strings.Repeat("=", 72)
	var b strings.Builder

	fmt.Fprintln(&b, rule)
	fmt.Fprintln(&b, st.title.Render("PRESENTATION CONSISTENCY REPORT"))
	fmt.Fprintln(&b, rule)
	fmt.Fprintf(&b, "Presentation:    %s\n", r.Presentation.Source)
	if r.Presentation.Title != "" {
		fmt.Fprintf(&b, "Title:           %s\n", r.Presentation.Title)
	}
	fmt.Fprintf(&b, "Total slides:    %d\n", r.Presentation.SlideCount)
	fmt.Fprintf(&b, "Processing time: %.2f seconds\n", r.DurationSeconds)
	fmt.Fprintf(&b, "Status:          %s\n", statusLabel(r.Status))
	if r.ImagesAnalyzed == 0 && r.Status != StatusFailure {
		fmt.Fprintln(&b, st.muted.Render("Slide images unavailable; analysis used text only."))
	}
	for _, warn := range r.Warnings {
		fmt.Fprintln(&b, st.muted.Render("warning: "+warn))
	}
	fmt.Fprintln(&b)

	if r.Status == StatusFailure {
		fmt.Fprintln(&b, st.fail.Render("ANALYSIS FAILED"))
		fmt.Fprintln(&b, r.Diagnostic)
		_, err := io.WriteString(w, b.String())
		return err
	}

	fmt.Fprintln(&b, st.section.Render("SUMMARY"))
	fmt.Fprintln(&b, strings.Repeat("-", 40))
	fmt.Fprintln(&b, r.SummaryText)
	fmt.Fprintln(&b)

	if len(r.Inconsistencies) == 0 {
		fmt.Fprintln(&b, st.ok.Render("No inconsistencies detected. The presentation appears to be consistent."))
		_, err := io.WriteString(w, b.String())
		return err
	}

	fmt.Fprintln(&b, st.section.Render("INCONSISTENCIES FOUND"))
	for _, g := range groupBySeverity(r.Inconsistencies) {
		sevStyle := st.severity(g.Severity)
		fmt.Fprintln(&b)
		fmt.Fprintln(&b, sevStyle.Render(fmt.Sprintf("%s SEVERITY (%d issues)", strings.ToUpper(g.Severity.String()), len(g.Findings))))
		fmt.Fprintln(&b, strings.Repeat("-", 60))
		for i, f := range g.Findings {
			fmt.Fprintln(&b)
			fmt.Fprintln(&b, sevStyle.Render(fmt.Sprintf("#%d %s", i+1, f.Title)))
			fmt.Fprintf(&b, "   ID: %s\n", f.ID)
			fmt.Fprintf(&b, "   Type: %s\n", f.Type)
			fmt.Fprintf(&b, "   Affected slides: %s\n", joinSlides(f.AffectedSlides))
			fmt.Fprintf(&b, "   Confidence: %.2f\n", f.Confidence)
			if len(f.Evidence) > 0 {
				fmt.Fprintln(&b, "   Evidence:")
				for _, e := range f.Evidence {
					fmt.Fprintf(&b, "     slide %d: %s\n", e.Slide, clip(e.Text, 100))
				}
			}
			fmt.Fprintf(&b, "   Explanation: %s\n", f.Explanation)
		}
	}
	fmt.Fprintln(&b)
	fmt.Fprintln(&b, rule)
	fmt.Fprintln(&b, st.muted.Render("Review critical and high severity issues first."))
	fmt.Fprintln(&b, rule)

	_, err := io.WriteString(w, b.String())
	return err
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
