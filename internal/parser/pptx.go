package parser

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/dgallion1/deckcheck/internal/deck"
)

const (
	relTypeSlide = "/slide"
	relTypeNotes = "/notesSlide"
	relTypeChart = "/chart"

	presentationPart = "ppt/presentation.xml"
	corePropsPart    = "docProps/core.xml"
)

// PPTXParser handles Office Open XML presentations.
type PPTXParser struct {
	// MaxBytes caps the container size read into memory; 0 means 256 MiB.
	MaxBytes int64
}

func (p *PPTXParser) Parse(r io.Reader, filename string) (*Deck, error) {
	limit := p.MaxBytes
	if limit <= 0 {
		limit = 256 << 20
	}
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, &ExtractionError{File: filename, Err: fmt.Errorf("read: %w", err)}
	}
	if int64(len(data)) > limit {
		return nil, &ExtractionError{File: filename, Err: fmt.Errorf("file exceeds %d bytes", limit)}
	}

	pk, err := openPackage(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, &ExtractionError{File: filename, Err: fmt.Errorf("open container: %w", err)}
	}
	pres, err := pk.readXML(presentationPart)
	if err != nil {
		return nil, &ExtractionError{File: filename, Err: err}
	}
	presRels, err := pk.relsFor(presentationPart)
	if err != nil {
		return nil, &ExtractionError{File: filename, Err: err}
	}

	d := &Deck{
		Meta: deck.Meta{
			Source: filename,
			Title:  strings.TrimSuffix(filename, ".pptx"),
		},
	}
	readCoreProps(pk, &d.Meta)

	var ids []*xnode
	if lst := pres.child("sldIdLst"); lst != nil {
		ids = lst.childrenNamed("sldId")
	}

	for i, id := range ids {
		index := i + 1
		rel, ok := presRels[id.attr("id", true)]
		if !ok || !strings.HasSuffix(rel.Type, relTypeSlide) {
			d.Warnings = append(d.Warnings, fmt.Sprintf("slide %d: no slide part for relationship %q", index, id.attr("id", true)))
			d.Slides = append(d.Slides, failedSlide(index))
			continue
		}
		slide, err := extractSlide(pk, rel.Target, index)
		if err != nil {
			d.Warnings = append(d.Warnings, fmt.Sprintf("slide %d: %s", index, err))
			d.Slides = append(d.Slides, failedSlide(index))
			continue
		}
		d.Slides = append(d.Slides, slide)
	}

	d.Meta.SlideCount = len(d.Slides)
	return d, nil
}

func readCoreProps(pk *pkg, meta *deck.Meta) {
	if !pk.has(corePropsPart) {
		return
	}
	root, err := pk.readXML(corePropsPart)
	if err != nil {
		return
	}
	if t := root.child("title"); t != nil && strings.TrimSpace(t.text.String()) != "" {
		meta.Title = strings.TrimSpace(t.text.String())
	}
	if c := root.child("creator"); c != nil {
		meta.Author = strings.TrimSpace(c.text.String())
	}
	if m := root.child("modified"); m != nil {
		meta.Modified = strings.TrimSpace(m.text.String())
	}
}

func extractSlide(pk *pkg, part string, index int) (deck.Slide, error) {
	root, err := pk.readXML(part)
	if err != nil {
		return deck.Slide{}, err
	}
	rels, err := pk.relsFor(part)
	if err != nil {
		return deck.Slide{}, err
	}

	s := deck.Slide{
		Index:  index,
		Hidden: root.attr("show", false) == "0",
	}
	tree := root.path("cSld", "spTree")
	if tree == nil {
		return deck.Slide{}, fmt.Errorf("no shape tree in %s", part)
	}
	w := &shapeWalker{pkg: pk, rels: rels, slide: &s}
	w.walk(tree)

	for _, rel := range rels {
		if strings.HasSuffix(rel.Type, relTypeNotes) {
			s.Notes = extractNotes(pk, rel.Target)
			break
		}
	}

	texts := append([]string{s.Title}, s.Body...)
	for _, t := range s.Tables {
		for _, row := range t.Rows {
			texts = append(texts, strings.Join(row, " | "))
		}
	}
	s.Numbers = NumericFacts(texts)
	return s, nil
}

type shapeWalker struct {
	pkg   *pkg
	rels  map[string]relationship
	slide *deck.Slide
}

func (w *shapeWalker) walk(tree *xnode) {
	for _, shape := range tree.children {
		switch shape.name {
		case "sp":
			w.textShape(shape)
		case "grpSp":
			w.walk(shape)
		case "graphicFrame":
			w.graphicFrame(shape)
		}
	}
}

func (w *shapeWalker) textShape(sp *xnode) {
	phType := ""
	if ph := sp.path("nvSpPr", "nvPr", "ph"); ph != nil {
		phType = ph.attr("type", false)
	}
	if phType == "sldNum" {
		return
	}
	text := textBody(sp.child("txBody"), "\n")
	if text == "" {
		return
	}
	if (phType == "title" || phType == "ctrTitle") && w.slide.Title == "" {
		w.slide.Title = strings.ReplaceAll(text, "\n", " ")
		return
	}
	w.slide.Body = append(w.slide.Body, text)
}

func (w *shapeWalker) graphicFrame(gf *xnode) {
	data := gf.path("graphic", "graphicData")
	if data == nil {
		return
	}
	if tbl := data.child("tbl"); tbl != nil {
		w.slide.Tables = append(w.slide.Tables, extractTable(tbl))
		return
	}
	if chart := data.child("chart"); chart != nil {
		rel, ok := w.rels[chart.attr("id", true)]
		if !ok || !strings.HasSuffix(rel.Type, relTypeChart) {
			return
		}
		if text := extractChart(w.pkg, rel.Target); text != "" {
			w.slide.Body = append(w.slide.Body, text)
		}
	}
}

// extractTable builds a rectangular grid; cells without text are "".
func extractTable(tbl *xnode) deck.Table {
	var rows [][]string
	for _, tr := range tbl.childrenNamed("tr") {
		var row []string
		for _, tc := range tr.childrenNamed("tc") {
			row = append(row, textBody(tc.child("txBody"), " "))
		}
		rows = append(rows, row)
	}
	return deck.NewTable(rows)
}

// textBody joins the non-empty paragraphs of a txBody with sep.
func textBody(body *xnode, sep string) string {
	if body == nil {
		return ""
	}
	var paras []string
	for _, p := range body.childrenNamed("p") {
		var sb strings.Builder
		for _, c := range p.children {
			switch c.name {
			case "r", "fld":
				if t := c.child("t"); t != nil {
					sb.WriteString(t.text.String())
				}
			case "br":
				sb.WriteString(" ")
			}
		}
		if t := strings.TrimSpace(sb.String()); t != "" {
			paras = append(paras, t)
		}
	}
	return strings.Join(paras, sep)
}

func extractNotes(pk *pkg, part string) string {
	root, err := pk.readXML(part)
	if err != nil {
		return ""
	}
	tree := root.path("cSld", "spTree")
	if tree == nil {
		return ""
	}
	var blocks []string
	for _, sp := range tree.findAll("sp") {
		if ph := sp.path("nvSpPr", "nvPr", "ph"); ph != nil {
			switch ph.attr("type", false) {
			case "sldImg", "sldNum", "hdr", "ftr", "dt":
				continue
			}
		}
		if t := textBody(sp.child("txBody"), "\n"); t != "" {
			blocks = append(blocks, t)
		}
	}
	return strings.Join(blocks, "\n")
}

// extractChart renders the embedded chart data as one text line per series.
func extractChart(pk *pkg, part string) string {
	root, err := pk.readXML(part)
	if err != nil {
		return ""
	}
	chart := root.child("chart")
	if chart == nil {
		return ""
	}
	var lines []string
	title := ""
	if t := chart.child("title"); t != nil {
		var parts []string
		for _, tn := range t.findAll("t") {
			parts = append(parts, tn.text.String())
		}
		title = strings.TrimSpace(strings.Join(parts, ""))
	}
	if title != "" {
		lines = append(lines, "Chart: "+title)
	} else {
		lines = append(lines, "Chart")
	}
	for _, ser := range chart.findAll("ser") {
		name := ""
		if tx := ser.child("tx"); tx != nil {
			if v := tx.find("v"); v != nil {
				name = strings.TrimSpace(v.text.String())
			}
		}
		cats := chartPoints(ser.child("cat"))
		vals := chartPoints(ser.child("val"))
		var pts []string
		for i, v := range vals {
			if i < len(cats) && cats[i] != "" {
				pts = append(pts, cats[i]+"="+v)
			} else {
				pts = append(pts, v)
			}
		}
		if name == "" {
			name = "Series"
		}
		lines = append(lines, name+": "+strings.Join(pts, ", "))
	}
	return strings.Join(lines, "\n")
}

func chartPoints(n *xnode) []string {
	if n == nil {
		return nil
	}
	var out []string
	for _, pt := range n.findAll("pt") {
		if v := pt.child("v"); v != nil {
			out = append(out, strings.TrimSpace(v.text.String()))
		}
	}
	return out
}
