package report

import (
	"fmt"
	"io"

	"github.com/fumiama/go-docx"

	"github.com/dgallion1/deckcheck/internal/ingest"
)

// Hex colors without '#', as WordprocessingML expects.
var docxSeverityColors = map[ingest.Severity]string{
	ingest.Low:      "2E7D32",
	ingest.Medium:   "B8860B",
	ingest.High:     "C62828",
	ingest.Critical: "6A1B9A",
}

// WriteDOCX writes the report as a Word document.
func WriteDOCX(w io.Writer, r *AnalysisResult) error {
	doc := docx.New().WithDefaultTheme()

	heading := func(text, size string) {
		doc.AddParagraph().AddText(text).Bold().Size(size)
	}
	field := func(label, value string) {
		p := doc.AddParagraph()
		p.AddText(label + ": ").Bold()
		p.AddText(value)
	}

	heading("Presentation Consistency Report", "36")
	field("Presentation", r.Presentation.Source)
	if r.Presentation.Title != "" {
		field("Title", r.Presentation.Title)
	}
	field("Total slides", fmt.Sprint(r.Presentation.SlideCount))
	field("Processing time", fmt.Sprintf("%.2f seconds", r.DurationSeconds))
	field("Status", statusLabel(r.Status))

	if r.Status == StatusFailure {
		heading("Analysis Failed", "28")
		doc.AddParagraph().AddText(r.Diagnostic)
		return writeDocx(w, doc)
	}

	heading("Summary", "28")
	doc.AddParagraph().AddText(QuickSummary(r))
	for _, sev := range ingest.Severities {
		field(sev.String(), fmt.Sprint(r.Summary.BySeverity[sev.String()]))
	}

	for _, g := range groupBySeverity(r.Inconsistencies) {
		heading(fmt.Sprintf("%s Severity Issues", g.Severity), "28")
		for i, f := range g.Findings {
			doc.AddParagraph().AddText(fmt.Sprintf("%d. %s", i+1, f.Title)).Bold().Size("24").Color(docxSeverityColors[g.Severity])
			field("ID", f.ID)
			field("Type", string(f.Type))
			field("Affected slides", joinSlides(f.AffectedSlides))
			field("Confidence", fmt.Sprintf("%.2f", f.Confidence))
			for _, e := range f.Evidence {
				p := doc.AddParagraph()
				p.AddText(fmt.Sprintf("Slide %d: ", e.Slide)).Italic()
				p.AddText(e.Text)
			}
			field("Explanation", f.Explanation)
		}
	}
	return writeDocx(w, doc)
}

func writeDocx(w io.Writer, doc *docx.Docx) error {
	if _, err := doc.WriteTo(w); err != nil {
		return fmt.Errorf("write docx: %w", err)
	}
	return nil
}
