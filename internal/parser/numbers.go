package parser

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/dgallion1/deckcheck/internal/deck"
)

// maxFactsPerSlide bounds the numeric facts kept per slide.
const maxFactsPerSlide = 50

// Alternation order matters: dates before currency before percentages
// before plain numbers, so each span is classified once.
var numericPattern = regexp.MustCompile(
	`(\d{4}[-/]\d{1,2}[-/]\d{1,2})` +
		`|(\$\s?\d[\d,]*(?:\.\d+)?(?:\s?(?:[kKmMbBtT]\b|thousand|million|billion))?)` +
		`|(\d[\d,]*(?:\.\d+)?\s?%)` +
		`|(\d[\d,]*(?:\.\d+)?(?:[kKmMbB]\b)?)`,
)

// NumericFacts finds numbers in text lines and classifies them. Digits glued
// to a preceding letter (Q3, H1, FY24) are labels, not values, and skipped.
func NumericFacts(texts []string) []deck.NumericFact {
	var out []deck.NumericFact
	for _, text := range texts {
		if text == "" {
			continue
		}
		for _, m := range numericPattern.FindAllStringSubmatchIndex(text, -1) {
			if len(out) >= maxFactsPerSlide {
				return out
			}
			start, end := m[0], m[1]
			if start > 0 {
				prev, _ := utf8.DecodeLastRuneInString(text[:start])
				if unicode.IsLetter(prev) {
					continue
				}
			}
			value := strings.TrimSpace(text[start:end])
			out = append(out, deck.NumericFact{
				Value:   value,
				Kind:    classify(m),
				Context: text,
			})
		}
	}
	return out
}

func classify(m []int) deck.NumericKind {
	switch {
	case m[2] >= 0:
		return deck.KindDate
	case m[4] >= 0:
		return deck.KindCurrency
	case m[6] >= 0:
		return deck.KindPercentage
	}
	return deck.KindNumber
}
