package deck

import (
	"fmt"
	"log/slog"
)

// Bundle is the immutable, ordered set of slides for one analysis run.
// Construct it with Assemble; it has no mutating methods.
type Bundle struct {
	meta     Meta
	slides   []Slide
	images   int
	warnings []string
}

// Assemble zips extracted slides with optional rendered images by position.
// images may be nil (renderer unavailable). When the counts disagree the
// first min(len) slides get images and the remainder is dropped with a
// warning; slides are never dropped.
func Assemble(meta Meta, slides []Slide, images []Image, log *slog.Logger) *Bundle {
	if log == nil {
		log = slog.Default()
	}
	b := &Bundle{
		meta:   meta,
		slides: make([]Slide, len(slides)),
	}
	copy(b.slides, slides)

	for i := range b.slides {
		if b.slides[i].Index != i+1 {
			b.warn(log, fmt.Sprintf("slide at position %d carried index %d; reindexed", i+1, b.slides[i].Index))
			b.slides[i].Index = i + 1
		}
		// Images only ever come from the renderer.
		b.slides[i].Image = nil
	}
	b.meta.SlideCount = len(b.slides)

	if images != nil {
		n := min(len(images), len(b.slides))
		if len(images) != len(b.slides) {
			b.warn(log, fmt.Sprintf("renderer produced %d images for %d slides; aligned first %d", len(images), len(b.slides), n))
		}
		for i := 0; i < n; i++ {
			img := images[i]
			if len(img.Data) == 0 {
				continue
			}
			b.slides[i].Image = &img
			b.images++
		}
	}

	log.Debug("bundle assembled", "slides", len(b.slides), "images", b.images)
	return b
}

func (b *Bundle) warn(log *slog.Logger, msg string) {
	b.warnings = append(b.warnings, msg)
	log.Warn(msg)
}

// Meta returns presentation metadata.
func (b *Bundle) Meta() Meta { return b.meta }

// Len is the number of slides.
func (b *Bundle) Len() int { return len(b.slides) }

// Slides returns a copy of the slide sequence. Nested slices are shared and
// must be treated as read-only.
func (b *Bundle) Slides() []Slide {
	out := make([]Slide, len(b.slides))
	copy(out, b.slides)
	return out
}

// Slide looks up a slide by its 1-based index.
func (b *Bundle) Slide(index int) (Slide, bool) {
	if !b.HasSlide(index) {
		return Slide{}, false
	}
	return b.slides[index-1], true
}

// HasSlide reports whether index addresses a slide of this bundle.
func (b *Bundle) HasSlide(index int) bool {
	return index >= 1 && index <= len(b.slides)
}

// ImageCount is the number of slides carrying a rendered image.
func (b *Bundle) ImageCount() int { return b.images }

// ImagesAvailable reports whether any slide has an image.
func (b *Bundle) ImagesAvailable() bool { return b.images > 0 }

// FailedSlides lists indices whose extraction failed.
func (b *Bundle) FailedSlides() []int {
	var out []int
	for _, s := range b.slides {
		if s.Failed {
			out = append(out, s.Index)
		}
	}
	return out
}

// Warnings returns assembly warnings.
func (b *Bundle) Warnings() []string {
	out := make([]string, len(b.warnings))
	copy(out, b.warnings)
	return out
}
