package parser

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/dgallion1/deckcheck/internal/deck"
	pdflib "github.com/ledongthuc/pdf"
)

// openPDF is swappable in tests.
var openPDF = pdflib.Open

// PDFParser handles decks exported as PDF, one page per slide. It tries the
// Go library first, then falls back to pdftotext if available.
type PDFParser struct {
	FallbackPdftotext bool
}

func (p *PDFParser) Parse(r io.Reader, filename string) (*Deck, error) {
	// ledongthuc/pdf requires a ReadSeeker+size, so we write to a temp file.
	tmp, err := os.CreateTemp("", "deckcheck-pdf-*.pdf")
	if err != nil {
		return nil, &ExtractionError{File: filename, Err: fmt.Errorf("create temp file: %w", err)}
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return nil, &ExtractionError{File: filename, Err: fmt.Errorf("write temp file: %w", err)}
	}
	tmp.Close()

	d := &Deck{
		Meta: deck.Meta{
			Source: filename,
			Title:  strings.TrimSuffix(filename, ".pdf"),
		},
	}

	pages, failed, err := extractPDFPages(tmpPath)
	if err != nil && p.FallbackPdftotext {
		pages, err = extractPdftotext(tmpPath)
		failed = nil
	}
	if err != nil {
		return nil, &ExtractionError{File: filename, Err: fmt.Errorf("extract pdf text: %w", err)}
	}

	for i, page := range pages {
		index := i + 1
		if failed[index] {
			d.Warnings = append(d.Warnings, fmt.Sprintf("slide %d: page text unreadable", index))
			d.Slides = append(d.Slides, failedSlide(index))
			continue
		}
		d.Slides = append(d.Slides, pageSlide(index, page))
	}
	d.Meta.SlideCount = len(d.Slides)
	return d, nil
}

// pageSlide treats the first non-empty line as the title and the remaining
// blank-line separated paragraphs as body blocks.
func pageSlide(index int, text string) deck.Slide {
	s := deck.Slide{Index: index}
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	var current []string
	flush := func() {
		if len(current) > 0 {
			s.Body = append(s.Body, strings.Join(current, "\n"))
			current = nil
		}
	}
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			flush()
			continue
		}
		if s.Title == "" && len(s.Body) == 0 && len(current) == 0 {
			s.Title = line
			continue
		}
		current = append(current, line)
	}
	flush()
	s.Numbers = NumericFacts(append([]string{s.Title}, s.Body...))
	return s
}

// extractPDFPages returns one text per page. Pages the library cannot decode
// are reported in failed (1-based) with empty text.
func extractPDFPages(path string) (pages []string, failed map[int]bool, err error) {
	// The library panics on some malformed xref tables.
	defer func() {
		if r := recover(); r != nil {
			pages, failed, err = nil, nil, fmt.Errorf("malformed pdf: %v", r)
		}
	}()
	f, reader, err := openPDF(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	failed = map[int]bool{}
	numPages := reader.NumPage()
	for i := 1; i <= numPages; i++ {
		text, ok := pageText(reader, i)
		if !ok {
			failed[i] = true
		}
		pages = append(pages, text)
	}
	return pages, failed, nil
}

// pageText guards against panics inside the pdf library on malformed pages.
func pageText(reader *pdflib.Reader, i int) (text string, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			text, ok = "", false
		}
	}()
	page := reader.Page(i)
	if page.V.IsNull() {
		return "", true
	}
	t, err := page.GetPlainText(nil)
	if err != nil {
		return "", false
	}
	return t, true
}

func extractPdftotext(path string) ([]string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	cmd := exec.CommandContext(ctx, "pdftotext", "-layout", path, "-")
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("pdftotext: %w", err)
	}
	pages := splitPages(string(out))
	// pdftotext terminates the last page with a form feed.
	if n := len(pages); n > 1 && strings.TrimSpace(pages[n-1]) == "" {
		pages = pages[:n-1]
	}
	return pages, nil
}

func splitPages(text string) []string {
	return strings.Split(text, "\f")
}
