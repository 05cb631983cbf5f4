package parser

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/dgallion1/deckcheck/internal/deck"
)

// Deck is the Extractor output: one slide per presentation slide, in order.
type Deck struct {
	Meta     deck.Meta
	Slides   []deck.Slide
	Warnings []string
}

// Parser converts raw presentation bytes into slides.
type Parser interface {
	Parse(r io.Reader, filename string) (*Deck, error)
}

// ExtractionError means the container could not be opened or parsed at all.
type ExtractionError struct {
	File string
	Err  error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract %s: %v", e.File, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// SupportedExtensions lists file extensions this service can handle.
var SupportedExtensions = map[string]bool{
	".pptx": true,
	".pdf":  true,
}

// ForFile returns the appropriate parser for a filename.
func ForFile(filename string) (Parser, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".pptx":
		return &PPTXParser{}, nil
	case ".pdf":
		return &PDFParser{FallbackPdftotext: true}, nil
	default:
		return nil, &ExtractionError{File: filename, Err: fmt.Errorf("unsupported file extension: %q", ext)}
	}
}

// IsSupportedExtension checks if a file extension is supported.
func IsSupportedExtension(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return SupportedExtensions[ext]
}

// placeholder for slides whose extraction failed; keeps indices dense.
func failedSlide(index int) deck.Slide {
	return deck.Slide{Index: index, Failed: true}
}
