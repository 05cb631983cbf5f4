// Package prompt serializes a deck bundle into the request payload sent to an
// inference provider. Compose is a pure function: the same bundle and budget
// always produce a byte-identical payload.
package prompt

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/dgallion1/deckcheck/internal/deck"
)

// PartKind distinguishes text and inline image parts.
type PartKind int

const (
	PartText PartKind = iota
	PartImage
)

// Part is one ordered element of a multimodal request.
type Part struct {
	Kind     PartKind
	Text     string
	MIMEType string
	Data     []byte
	Slide    int // slide the part belongs to; 0 for the instruction
}

// Payload is the composed request plus a record of what the budget removed.
type Payload struct {
	Parts []Part

	Slides          int   // slides serialized
	DroppedSlides   []int // beyond MaxSlides
	TruncatedSlides []int // body or notes shortened
	DroppedImages   []int // images left out to fit the image budget
	Images          int   // images included
}

// Budget caps the payload. Zero fields mean "no limit".
type Budget struct {
	MaxSlides     int
	MaxBodyChars  int // total body + notes characters across slides
	MaxImages     int
	MaxImageBytes int // total inline image bytes
}

// DefaultBudget keeps a typical deck comfortably inside one request.
func DefaultBudget() Budget {
	return Budget{
		MaxSlides:     60,
		MaxBodyChars:  40000,
		MaxImages:     30,
		MaxImageBytes: 15 << 20,
	}
}

// Trimmed reports whether the budget removed any slide outright.
func (p *Payload) Trimmed() bool { return len(p.DroppedSlides) > 0 }

// Text concatenates the text parts in order.
func (p *Payload) Text() string {
	var sb strings.Builder
	for _, part := range p.Parts {
		if part.Kind == PartText {
			sb.WriteString(part.Text)
		}
	}
	return sb.String()
}

// Digest is a stable SHA-256 over every part.
func (p *Payload) Digest() string {
	h := sha256.New()
	var n [8]byte
	for _, part := range p.Parts {
		h.Write([]byte{byte(part.Kind)})
		content := []byte(part.Text)
		if part.Kind == PartImage {
			h.Write([]byte(part.MIMEType))
			content = part.Data
		}
		binary.BigEndian.PutUint64(n[:], uint64(len(content)))
		h.Write(n[:])
		h.Write(content)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// EstimatedTokens is a rough request size used for logging.
func (p *Payload) EstimatedTokens() int {
	total := 0
	for _, part := range p.Parts {
		if part.Kind == PartImage {
			total += imageTokens
			continue
		}
		total += EstimateTokens(part.Text)
	}
	return total
}

const (
	imageTokens     = 1000
	truncatedMarker = " [truncated]"
)

// Compose builds the payload for b under budget.
func Compose(b *deck.Bundle, budget Budget) *Payload {
	slides := b.Slides()
	p := &Payload{}

	if budget.MaxSlides > 0 && len(slides) > budget.MaxSlides {
		for _, s := range slides[budget.MaxSlides:] {
			p.DroppedSlides = append(p.DroppedSlides, s.Index)
		}
		slides = slides[:budget.MaxSlides]
	}
	p.Slides = len(slides)

	textCap := bodyCap(slides, budget.MaxBodyChars)

	var head strings.Builder
	head.WriteString(Instruction)
	head.WriteString("\n\nPRESENTATION CONTENT:\n")
	meta := b.Meta()
	if meta.Title != "" {
		fmt.Fprintf(&head, "Presentation: %q\n", meta.Title)
	}
	fmt.Fprintf(&head, "Slides: %d\n", meta.SlideCount)
	if len(p.DroppedSlides) > 0 {
		fmt.Fprintf(&head, "Only slides %d-%d are included; later slides were omitted for size.\n",
			slides[0].Index, slides[len(slides)-1].Index)
	}
	p.Parts = append(p.Parts, Part{Kind: PartText, Text: head.String()})

	imageBytes := 0
	for _, s := range slides {
		text, truncated := slideText(s, textCap)
		if truncated {
			p.TruncatedSlides = append(p.TruncatedSlides, s.Index)
		}
		p.Parts = append(p.Parts, Part{Kind: PartText, Text: text, Slide: s.Index})

		if s.Image == nil || len(s.Image.Data) == 0 {
			continue
		}
		size := len(s.Image.Data)
		if (budget.MaxImages > 0 && p.Images >= budget.MaxImages) ||
			(budget.MaxImageBytes > 0 && imageBytes+size > budget.MaxImageBytes) {
			p.DroppedImages = append(p.DroppedImages, s.Index)
			continue
		}
		imageBytes += size
		p.Images++
		p.Parts = append(p.Parts,
			Part{Kind: PartText, Text: fmt.Sprintf("Image of slide %d:\n", s.Index), Slide: s.Index},
			Part{Kind: PartImage, MIMEType: s.Image.MIMEType, Data: s.Image.Data, Slide: s.Index},
		)
	}
	return p
}

// slideText renders one slide. Body blocks and notes share the per-slide
// character cap; tables and numeric facts are never cut.
func slideText(s deck.Slide, textCap int) (string, bool) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "\n--- SLIDE %d ---\n", s.Index)
	if s.Failed {
		sb.WriteString("(content could not be extracted for this slide)\n")
		return sb.String(), false
	}
	if s.Hidden {
		sb.WriteString("Hidden: yes\n")
	}
	if s.Title != "" {
		fmt.Fprintf(&sb, "Title: %s\n", s.Title)
	}

	blocks := append([]string(nil), s.Body...)
	hasNotes := s.Notes != ""
	if hasNotes {
		blocks = append(blocks, s.Notes)
	}
	kept, truncated := capBlocks(blocks, textCap)

	var notes string
	if hasNotes && len(kept) == len(blocks) {
		notes, kept = kept[len(kept)-1], kept[:len(kept)-1]
	}
	if len(kept) > 0 {
		sb.WriteString("Content:\n")
		for _, block := range kept {
			sb.WriteString(block)
			sb.WriteString("\n")
		}
	}
	for i, t := range s.Tables {
		fmt.Fprintf(&sb, "Table %d:\n", i+1)
		writeTable(&sb, t)
	}
	if notes != "" {
		fmt.Fprintf(&sb, "Notes: %s\n", notes)
	}
	if len(s.Numbers) > 0 {
		// Struct fields marshal in declaration order, so this is stable.
		data, _ := json.Marshal(s.Numbers)
		fmt.Fprintf(&sb, "Numerical Data: %s\n", data)
	}
	return sb.String(), truncated
}

func writeTable(sb *strings.Builder, t deck.Table) {
	for _, row := range t.Rows {
		sb.WriteString("|")
		for _, cell := range row {
			sb.WriteString(" ")
			sb.WriteString(strings.ReplaceAll(cell, "\n", " "))
			sb.WriteString(" |")
		}
		sb.WriteString("\n")
	}
}

// bodyCap returns the largest per-slide character allowance c such that
// sum(min(len_i, c)) <= limit, or -1 when everything fits. Long slides are
// shortened first; short slides are never touched while a longer one exists.
func bodyCap(slides []deck.Slide, limit int) int {
	if limit <= 0 {
		return -1
	}
	lengths := make([]int, 0, len(slides))
	total := 0
	for _, s := range slides {
		n := utf8.RuneCountInString(s.Notes)
		for _, block := range s.Body {
			n += utf8.RuneCountInString(block)
		}
		lengths = append(lengths, n)
		total += n
	}
	if total <= limit {
		return -1
	}
	sort.Ints(lengths)
	remaining := limit
	for i, n := range lengths {
		slots := len(lengths) - i
		if n*slots > remaining {
			return remaining / slots
		}
		remaining -= n
	}
	return -1
}

// capBlocks keeps blocks in order until textCap runes are used, cutting the
// block that crosses the limit. Negative textCap keeps everything.
func capBlocks(blocks []string, textCap int) ([]string, bool) {
	if textCap < 0 {
		return blocks, false
	}
	used := 0
	out := make([]string, 0, len(blocks))
	for _, block := range blocks {
		n := utf8.RuneCountInString(block)
		if used+n <= textCap {
			out = append(out, block)
			used += n
			continue
		}
		if left := textCap - used; left > 0 {
			out = append(out, string([]rune(block)[:left])+truncatedMarker)
		}
		return out, true
	}
	return out, false
}
