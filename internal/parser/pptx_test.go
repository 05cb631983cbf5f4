package parser

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

const (
	nsP   = `xmlns:p="http://schemas.openxmlformats.org/presentationml/2006/main"`
	nsA   = `xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main"`
	nsR   = `xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships"`
	nsC   = `xmlns:c="http://schemas.openxmlformats.org/drawingml/2006/chart"`
	nsRel = `xmlns="http://schemas.openxmlformats.org/package/2006/relationships"`

	typeSlide = "http://schemas.openxmlformats.org/officeDocument/2006/relationships/slide"
	typeNotes = "http://schemas.openxmlformats.org/officeDocument/2006/relationships/notesSlide"
	typeChart = "http://schemas.openxmlformats.org/officeDocument/2006/relationships/chart"
)

// fixture describes a synthetic presentation for tests.
type fixture struct {
	slides []string          // slide XML bodies (spTree children); "" -> corrupt part
	notes  map[int]string    // slide index -> notes text
	extra  map[string]string // extra parts (path -> content)
	rels   map[int][]string  // slide index -> extra Relationship elements
	hidden map[int]bool
	core   string
}

func (f fixture) build(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	write := func(name, content string) {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}

	var ids, rels strings.Builder
	for i := range f.slides {
		n := i + 1
		fmt.Fprintf(&ids, `<p:sldId id="%d" r:id="rId%d"/>`, 255+n, n)
		fmt.Fprintf(&rels, `<Relationship Id="rId%d" Type="%s" Target="slides/slide%d.xml"/>`, n, typeSlide, n)
	}
	write("ppt/presentation.xml", `<?xml version="1.0" encoding="UTF-8"?><p:presentation `+nsP+` `+nsR+`><p:sldIdLst>`+ids.String()+`</p:sldIdLst></p:presentation>`)
	write("ppt/_rels/presentation.xml.rels", `<?xml version="1.0" encoding="UTF-8"?><Relationships `+nsRel+`>`+rels.String()+`</Relationships>`)

	for i, body := range f.slides {
		n := i + 1
		if body == "" {
			write(fmt.Sprintf("ppt/slides/slide%d.xml", n), `<p:sld `+nsP+`><p:cSld><p:spTree>`)
			continue
		}
		show := ""
		if f.hidden[n] {
			show = ` show="0"`
		}
		write(fmt.Sprintf("ppt/slides/slide%d.xml", n), `<?xml version="1.0" encoding="UTF-8"?><p:sld `+nsP+` `+nsA+` `+nsR+` `+nsC+show+`><p:cSld><p:spTree>`+body+`</p:spTree></p:cSld></p:sld>`)

		var srels strings.Builder
		if text, ok := f.notes[n]; ok {
			fmt.Fprintf(&srels, `<Relationship Id="rIdN" Type="%s" Target="../notesSlides/notesSlide%d.xml"/>`, typeNotes, n)
			write(fmt.Sprintf("ppt/notesSlides/notesSlide%d.xml", n), `<p:notes `+nsP+` `+nsA+`><p:cSld><p:spTree>`+
				`<p:sp><p:nvSpPr><p:nvPr><p:ph type="sldImg"/></p:nvPr></p:nvSpPr></p:sp>`+
				shape("body", text)+
				`<p:sp><p:nvSpPr><p:nvPr><p:ph type="sldNum"/></p:nvPr></p:nvSpPr><p:txBody><a:p><a:r><a:t>7</a:t></a:r></a:p></p:txBody></p:sp>`+
				`</p:spTree></p:cSld></p:notes>`)
		}
		for _, r := range f.rels[n] {
			srels.WriteString(r)
		}
		if srels.Len() > 0 {
			write(fmt.Sprintf("ppt/slides/_rels/slide%d.xml.rels", n), `<Relationships `+nsRel+`>`+srels.String()+`</Relationships>`)
		}
	}
	if f.core != "" {
		write("docProps/core.xml", f.core)
	}
	for name, content := range f.extra {
		write(name, content)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	return buf.Bytes()
}

func shape(ph string, paras ...string) string {
	var sb strings.Builder
	sb.WriteString(`<p:sp><p:nvSpPr><p:cNvPr id="2" name="s"/><p:cNvSpPr/><p:nvPr>`)
	if ph != "" {
		fmt.Fprintf(&sb, `<p:ph type="%s"/>`, ph)
	}
	sb.WriteString(`</p:nvPr></p:nvSpPr><p:txBody>`)
	for _, p := range paras {
		fmt.Fprintf(&sb, `<a:p><a:r><a:rPr lang="en-US"/><a:t>%s</a:t></a:r></a:p>`, p)
	}
	sb.WriteString(`</p:txBody></p:sp>`)
	return sb.String()
}

func table(rows ...[]string) string {
	var sb strings.Builder
	sb.WriteString(`<p:graphicFrame><a:graphic><a:graphicData uri="http://schemas.openxmlformats.org/drawingml/2006/table"><a:tbl>`)
	for _, row := range rows {
		sb.WriteString(`<a:tr>`)
		for _, cell := range row {
			if cell == "" {
				sb.WriteString(`<a:tc><a:txBody><a:p/></a:txBody></a:tc>`)
				continue
			}
			fmt.Fprintf(&sb, `<a:tc><a:txBody><a:p><a:r><a:t>%s</a:t></a:r></a:p></a:txBody></a:tc>`, cell)
		}
		sb.WriteString(`</a:tr>`)
	}
	sb.WriteString(`</a:tbl></a:graphicData></a:graphic></p:graphicFrame>`)
	return sb.String()
}

func parseFixture(t *testing.T, f fixture) *Deck {
	t.Helper()
	p := &PPTXParser{}
	d, err := p.Parse(bytes.NewReader(f.build(t)), "deck.pptx")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return d
}

func TestPPTXParser_TitleBodyAndOrder(t *testing.T) {
	d := parseFixture(t, fixture{slides: []string{
		shape("ctrTitle", "Quarterly Review"),
		shape("title", "Revenue") + shape("body", "Total Q3 Revenue: $2.4M", "Growth 12%"),
		shape("title", "Outlook") + `<p:grpSp>` + shape("", "Grouped text") + `</p:grpSp>`,
	}})

	if len(d.Slides) != 3 {
		t.Fatalf("expected 3 slides, got %d", len(d.Slides))
	}
	for i, s := range d.Slides {
		if s.Index != i+1 {
			t.Errorf("slide %d: expected index %d", s.Index, i+1)
		}
	}
	if d.Slides[0].Title != "Quarterly Review" {
		t.Errorf("expected title %q, got %q", "Quarterly Review", d.Slides[0].Title)
	}
	if diff := cmp.Diff([]string{"Total Q3 Revenue: $2.4M\nGrowth 12%"}, d.Slides[1].Body); diff != "" {
		t.Errorf("slide 2 body mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"Grouped text"}, d.Slides[2].Body); diff != "" {
		t.Errorf("group shape text mismatch (-want +got):\n%s", diff)
	}
	if d.Meta.SlideCount != 3 {
		t.Errorf("expected meta slide count 3, got %d", d.Meta.SlideCount)
	}
}

func TestPPTXParser_TablesAreRectangular(t *testing.T) {
	d := parseFixture(t, fixture{slides: []string{
		table([]string{"Quarter", "Revenue", "Margin"}, []string{"Q3", "", "40%"}, []string{"Q4"}),
	}})
	s := d.Slides[0]
	if len(s.Tables) != 1 {
		t.Fatalf("expected 1 table, got %d", len(s.Tables))
	}
	want := [][]string{
		{"Quarter", "Revenue", "Margin"},
		{"Q3", "", "40%"},
		{"Q4", "", ""},
	}
	if diff := cmp.Diff(want, s.Tables[0].Rows); diff != "" {
		t.Errorf("table mismatch (-want +got):\n%s", diff)
	}
}

func TestPPTXParser_CorruptSlideKeepsIndexContinuity(t *testing.T) {
	d := parseFixture(t, fixture{slides: []string{
		shape("title", "One"),
		"",
		shape("title", "Three"),
	}})
	if len(d.Slides) != 3 {
		t.Fatalf("expected 3 slides, got %d", len(d.Slides))
	}
	bad := d.Slides[1]
	if bad.Index != 2 || !bad.Failed {
		t.Errorf("expected failed slide at index 2, got %+v", bad)
	}
	if bad.Title != "" || len(bad.Body) != 0 {
		t.Errorf("expected empty content for failed slide, got %+v", bad)
	}
	if d.Slides[2].Title != "Three" {
		t.Errorf("expected slide 3 title %q, got %q", "Three", d.Slides[2].Title)
	}
	if len(d.Warnings) != 1 || !strings.HasPrefix(d.Warnings[0], "slide 2:") {
		t.Errorf("expected one warning for slide 2, got %v", d.Warnings)
	}
}

func TestPPTXParser_NotesAndHidden(t *testing.T) {
	d := parseFixture(t, fixture{
		slides: []string{shape("title", "A"), shape("title", "B")},
		notes:  map[int]string{2: "Mention the $2.7M restatement"},
		hidden: map[int]bool{2: true},
	})
	if d.Slides[0].Notes != "" || d.Slides[0].Hidden {
		t.Errorf("slide 1 should have no notes and be visible: %+v", d.Slides[0])
	}
	if d.Slides[1].Notes != "Mention the $2.7M restatement" {
		t.Errorf("unexpected notes %q", d.Slides[1].Notes)
	}
	if !d.Slides[1].Hidden {
		t.Error("expected slide 2 hidden")
	}
}

func TestPPTXParser_SlideNumberPlaceholderSkipped(t *testing.T) {
	d := parseFixture(t, fixture{slides: []string{shape("title", "A") + shape("sldNum", "3")}})
	if len(d.Slides[0].Body) != 0 {
		t.Errorf("expected slide number placeholder skipped, got %v", d.Slides[0].Body)
	}
}

func TestPPTXParser_ChartData(t *testing.T) {
	chart := `<c:chartSpace ` + nsC + ` ` + nsA + `><c:chart><c:title><c:tx><c:rich><a:p><a:r><a:t>Revenue by Quarter</a:t></a:r></a:p></c:rich></c:tx></c:title>` +
		`<c:plotArea><c:barChart><c:ser><c:tx><c:strRef><c:strCache><c:pt idx="0"><c:v>2024</c:v></c:pt></c:strCache></c:strRef></c:tx>` +
		`<c:cat><c:strRef><c:strCache><c:pt idx="0"><c:v>Q3</c:v></c:pt><c:pt idx="1"><c:v>Q4</c:v></c:pt></c:strCache></c:strRef></c:cat>` +
		`<c:val><c:numRef><c:numCache><c:pt idx="0"><c:v>2.4</c:v></c:pt><c:pt idx="1"><c:v>3.1</c:v></c:pt></c:numCache></c:numRef></c:val>` +
		`</c:ser></c:barChart></c:plotArea></c:chart></c:chartSpace>`
	frame := `<p:graphicFrame><a:graphic><a:graphicData uri="http://schemas.openxmlformats.org/drawingml/2006/chart"><c:chart r:id="rIdC"/></a:graphicData></a:graphic></p:graphicFrame>`

	d := parseFixture(t, fixture{
		slides: []string{frame},
		rels:   map[int][]string{1: {`<Relationship Id="rIdC" Type="` + typeChart + `" Target="../charts/chart1.xml"/>`}},
		extra:  map[string]string{"ppt/charts/chart1.xml": chart},
	})
	want := []string{"Chart: Revenue by Quarter\n2024: Q3=2.4, Q4=3.1"}
	if diff := cmp.Diff(want, d.Slides[0].Body); diff != "" {
		t.Errorf("chart text mismatch (-want +got):\n%s", diff)
	}
}

func TestPPTXParser_CoreProperties(t *testing.T) {
	core := `<cp:coreProperties xmlns:cp="http://schemas.openxmlformats.org/package/2006/metadata/core-properties" xmlns:dc="http://purl.org/dc/elements/1.1/" xmlns:dcterms="http://purl.org/dc/terms/">` +
		`<dc:title>Board Update</dc:title><dc:creator>Finance Team</dc:creator><dcterms:modified>2024-10-01T09:00:00Z</dcterms:modified></cp:coreProperties>`
	d := parseFixture(t, fixture{slides: []string{shape("title", "A")}, core: core})
	if d.Meta.Title != "Board Update" || d.Meta.Author != "Finance Team" || d.Meta.Modified != "2024-10-01T09:00:00Z" {
		t.Errorf("unexpected meta %+v", d.Meta)
	}
}

func TestPPTXParser_NumericFactsCollected(t *testing.T) {
	d := parseFixture(t, fixture{slides: []string{shape("title", "Total Q3 Revenue: $2.4M")}})
	facts := d.Slides[0].Numbers
	if len(facts) != 1 || facts[0].Value != "$2.4M" {
		t.Errorf("expected one $2.4M fact, got %+v", facts)
	}
}

func TestPPTXParser_NotAZip(t *testing.T) {
	p := &PPTXParser{}
	_, err := p.Parse(strings.NewReader("this is not a presentation"), "broken.pptx")
	var extErr *ExtractionError
	if !errors.As(err, &extErr) {
		t.Fatalf("expected ExtractionError, got %v", err)
	}
	if extErr.File != "broken.pptx" {
		t.Errorf("expected file %q, got %q", "broken.pptx", extErr.File)
	}
}

func TestPPTXParser_MissingPresentationPart(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, _ := zw.Create("word/document.xml")
	w.Write([]byte("<doc/>"))
	zw.Close()

	p := &PPTXParser{}
	_, err := p.Parse(bytes.NewReader(buf.Bytes()), "wrong.pptx")
	var extErr *ExtractionError
	if !errors.As(err, &extErr) {
		t.Fatalf("expected ExtractionError, got %v", err)
	}
}

func TestPPTXParser_SizeLimit(t *testing.T) {
	p := &PPTXParser{MaxBytes: 10}
	_, err := p.Parse(strings.NewReader(strings.Repeat("x", 11)), "big.pptx")
	var extErr *ExtractionError
	if !errors.As(err, &extErr) {
		t.Fatalf("expected ExtractionError, got %v", err)
	}
}

func TestPPTXParser_EveryIndexPresent(t *testing.T) {
	for n := 1; n <= 12; n++ {
		var slides []string
		for i := 0; i < n; i++ {
			if i%4 == 1 {
				slides = append(slides, "")
				continue
			}
			slides = append(slides, shape("title", fmt.Sprintf("Slide %d", i+1)))
		}
		d := parseFixture(t, fixture{slides: slides})
		if len(d.Slides) != n {
			t.Fatalf("n=%d: expected %d slides, got %d", n, n, len(d.Slides))
		}
		for i, s := range d.Slides {
			if s.Index != i+1 {
				t.Fatalf("n=%d: position %d has index %d", n, i, s.Index)
			}
		}
	}
}

func TestForFile(t *testing.T) {
	tests := []struct {
		name    string
		wantErr bool
	}{
		{"deck.pptx", false},
		{"DECK.PPTX", false},
		{"handout.pdf", false},
		{"legacy.ppt", true},
		{"notes.txt", true},
	}
	for _, tc := range tests {
		_, err := ForFile(tc.name)
		if (err != nil) != tc.wantErr {
			t.Errorf("ForFile(%q) error = %v, wantErr %v", tc.name, err, tc.wantErr)
		}
		if IsSupportedExtension(tc.name) == tc.wantErr {
			t.Errorf("IsSupportedExtension(%q) disagrees with ForFile", tc.name)
		}
	}
}
