package ingest

import (
	"sort"
	"strings"
	"unicode"
)

// duplicates reports whether a and b describe the same inconsistency.
func duplicates(a, b Inconsistency, threshold float64) bool {
	if a.Type != b.Type || !overlap(a.AffectedSlides, b.AffectedSlides) {
		return false
	}
	return Similarity(a.Explanation, b.Explanation) >= threshold
}

// dedupe merges duplicates until no pair qualifies. Merged findings keep the
// position of the earlier one. It returns the number of merges.
func dedupe(findings []Inconsistency, threshold float64) ([]Inconsistency, int) {
	merges := 0
	for {
		i, j, found := firstDuplicatePair(findings, threshold)
		if !found {
			return findings, merges
		}
		findings[i] = merge(findings[i], findings[j])
		findings = append(findings[:j], findings[j+1:]...)
		merges++
	}
}

func firstDuplicatePair(findings []Inconsistency, threshold float64) (int, int, bool) {
	for i := range findings {
		for j := i + 1; j < len(findings); j++ {
			if duplicates(findings[i], findings[j], threshold) {
				return i, j, true
			}
		}
	}
	return 0, 0, false
}

// merge keeps the higher-confidence finding's fields (a wins ties) and unions
// slides and evidence.
func merge(a, b Inconsistency) Inconsistency {
	keep, other := a, b
	if b.Confidence > a.Confidence {
		keep, other = b, a
	}
	out := keep
	out.AffectedSlides = unionSlides(keep.AffectedSlides, other.AffectedSlides)
	out.Evidence = append([]Evidence(nil), keep.Evidence...)
	for _, e := range other.Evidence {
		if !containsEvidence(out.Evidence, e) {
			out.Evidence = append(out.Evidence, e)
		}
	}
	return out
}

func containsEvidence(list []Evidence, e Evidence) bool {
	for _, x := range list {
		if x == e {
			return true
		}
	}
	return false
}

func unionSlides(a, b []int) []int {
	seen := make(map[int]bool, len(a)+len(b))
	out := make([]int, 0, len(a)+len(b))
	for _, n := range append(append([]int(nil), a...), b...) {
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	sort.Ints(out)
	return out
}

func overlap(a, b []int) bool {
	set := make(map[int]bool, len(a))
	for _, n := range a {
		set[n] = true
	}
	for _, n := range b {
		if set[n] {
			return true
		}
	}
	return false
}

// Similarity is the Dice coefficient over character trigrams of the
// normalized texts, in [0,1].
func Similarity(a, b string) float64 {
	a, b = normalizeText(a), normalizeText(b)
	if a == b {
		return 1
	}
	ta, tb := trigrams(a), trigrams(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	shared := 0
	for g := range ta {
		if tb[g] {
			shared++
		}
	}
	return 2 * float64(shared) / float64(len(ta)+len(tb))
}

// normalizeText lowercases and collapses everything but letters and digits
// to single spaces.
func normalizeText(s string) string {
	var sb strings.Builder
	space := true
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			sb.WriteRune(r)
			space = false
			continue
		}
		if !space {
			sb.WriteByte(' ')
			space = true
		}
	}
	return strings.TrimSpace(sb.String())
}

func trigrams(s string) map[string]bool {
	runes := []rune(" " + s + " ")
	out := make(map[string]bool, len(runes))
	for i := 0; i+3 <= len(runes); i++ {
		out[string(runes[i:i+3])] = true
	}
	return out
}
