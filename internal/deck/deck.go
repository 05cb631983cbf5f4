package deck

import "time"

// Slide is the canonical content of one slide.
type Slide struct {
	Index   int           // 1-based position in presentation order
	Title   string        // Title placeholder text (empty if none)
	Body    []string      // Text blocks in shape order, title excluded
	Tables  []Table       // Rectangular grids
	Notes   string        // Speaker notes
	Numbers []NumericFact // Numeric values found in title/body/tables
	Hidden  bool          // Slide is hidden in slide show
	Image   *Image        // Rendered raster, nil when unavailable
	Failed  bool          // Extraction of this slide failed; content is empty
}

// Table is a row-major grid. Every row has the same number of cells.
type Table struct {
	Rows [][]string
}

// Columns returns the width of the grid.
func (t Table) Columns() int {
	if len(t.Rows) == 0 {
		return 0
	}
	return len(t.Rows[0])
}

// NewTable pads ragged rows with empty cells so the grid is rectangular.
func NewTable(rows [][]string) Table {
	width := 0
	for _, r := range rows {
		if len(r) > width {
			width = len(r)
		}
	}
	out := make([][]string, 0, len(rows))
	for _, r := range rows {
		row := make([]string, width)
		copy(row, r)
		out = append(out, row)
	}
	return Table{Rows: out}
}

// Image is a rendered slide raster.
type Image struct {
	MIMEType string
	Data     []byte
}

// NumericKind classifies a numeric fact.
type NumericKind string

const (
	KindCurrency   NumericKind = "currency"
	KindPercentage NumericKind = "percentage"
	KindDate       NumericKind = "date"
	KindNumber     NumericKind = "number"
)

// NumericFact is a number found in slide text together with its context line.
type NumericFact struct {
	Value   string      `json:"value"`
	Kind    NumericKind `json:"type"`
	Context string      `json:"context"`
}

// Meta is presentation-level metadata.
type Meta struct {
	Source      string    `json:"source"`
	Title       string    `json:"title,omitempty"`
	Author      string    `json:"author,omitempty"`
	Modified    string    `json:"modified,omitempty"`
	SlideCount  int       `json:"slide_count"`
	ExtractedAt time.Time `json:"extracted_at"`
	ContentHash string    `json:"content_hash,omitempty"`
}
