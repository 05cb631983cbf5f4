// Package report ranks validated findings into an AnalysisResult and renders
// it for people and machines.
package report

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dgallion1/deckcheck/internal/deck"
	"github.com/dgallion1/deckcheck/internal/ingest"
)

// Status is the terminal state of a run.
type Status string

const (
	StatusSuccess        Status = "success"
	StatusPartialFailure Status = "partial_failure"
	StatusFailure        Status = "failure"
)

// Summary counts findings. BySeverity always carries all four levels.
type Summary struct {
	Total      int            `json:"total"`
	BySeverity map[string]int `json:"by_severity"`
	ByType     map[string]int `json:"by_type"`
}

// AnalysisResult is the only structure formatters consume.
type AnalysisResult struct {
	RunID           string                 `json:"run_id"`
	Presentation    deck.Meta              `json:"presentation"`
	Status          Status                 `json:"status"`
	Diagnostic      string                 `json:"diagnostic,omitempty"`
	Inconsistencies []ingest.Inconsistency `json:"inconsistencies"`
	Summary         Summary                `json:"summary"`
	SummaryText     string                 `json:"summary_text"`
	Duration        time.Duration          `json:"-"`
	DurationSeconds float64                `json:"duration_seconds"`
	ImagesAnalyzed  int                    `json:"images_analyzed"`
	Provider        string                 `json:"provider,omitempty"`
	Model           string                 `json:"model,omitempty"`
	PayloadDigest   string                 `json:"payload_digest,omitempty"`
	Warnings        []string               `json:"warnings,omitempty"`
	CompletedAt     time.Time              `json:"completed_at"`
}

// Input is everything Aggregate needs from the earlier stages.
type Input struct {
	RunID          string
	Meta           deck.Meta
	Findings       []ingest.Inconsistency
	Duration       time.Duration
	Err            error // terminal failure; findings are ignored
	Incomplete     bool  // some slides were not analyzed
	ImagesAnalyzed int
	Provider       string
	Model          string
	PayloadDigest  string
	Warnings       []string
	CompletedAt    time.Time
}

// Aggregate orders and summarizes findings. Records are copied, never
// modified.
func Aggregate(in Input) *AnalysisResult {
	r := &AnalysisResult{
		RunID:           in.RunID,
		Presentation:    in.Meta,
		Duration:        in.Duration,
		DurationSeconds: in.Duration.Seconds(),
		ImagesAnalyzed:  in.ImagesAnalyzed,
		Provider:        in.Provider,
		Model:           in.Model,
		PayloadDigest:   in.PayloadDigest,
		Warnings:        append([]string(nil), in.Warnings...),
		CompletedAt:     in.CompletedAt,
		Inconsistencies: []ingest.Inconsistency{},
	}

	switch {
	case in.Err != nil:
		r.Status = StatusFailure
		r.Diagnostic = in.Err.Error()
	case in.Incomplete:
		r.Status = StatusPartialFailure
		r.Inconsistencies = Rank(in.Findings)
	default:
		r.Status = StatusSuccess
		r.Inconsistencies = Rank(in.Findings)
	}
	r.Summary = summarize(r.Inconsistencies)
	r.SummaryText = summaryText(r)
	return r
}

// Rank returns a sorted copy: severity descending, then confidence
// descending, then lowest affected slide, then ID.
func Rank(findings []ingest.Inconsistency) []ingest.Inconsistency {
	out := append([]ingest.Inconsistency{}, findings...)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Severity != b.Severity {
			return a.Severity > b.Severity
		}
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		if a.MinSlide() != b.MinSlide() {
			return a.MinSlide() < b.MinSlide()
		}
		return a.ID < b.ID
	})
	return out
}

func summarize(findings []ingest.Inconsistency) Summary {
	s := Summary{
		Total:      len(findings),
		BySeverity: make(map[string]int, len(ingest.Severities)),
		ByType:     map[string]int{},
	}
	for _, sev := range ingest.Severities {
		s.BySeverity[sev.String()] = 0
	}
	for _, f := range findings {
		s.BySeverity[f.Severity.String()]++
		s.ByType[string(f.Type)]++
	}
	return s
}

func summaryText(r *AnalysisResult) string {
	slides := r.Presentation.SlideCount
	if r.Status == StatusFailure {
		return fmt.Sprintf("Analysis failed after %.1fs: %s", r.DurationSeconds, r.Diagnostic)
	}
	if r.Summary.Total == 0 {
		return fmt.Sprintf("No inconsistencies detected across %d slides.", slides)
	}
	lines := []string{
		fmt.Sprintf("Analysis completed for %d slides.", slides),
		fmt.Sprintf("Found %d inconsistencies:", r.Summary.Total),
		"Severity breakdown:",
	}
	for _, sev := range ingest.Severities {
		lines = append(lines, fmt.Sprintf("  - %s: %d", sev, r.Summary.BySeverity[sev.String()]))
	}
	lines = append(lines, "Type breakdown:")
	for _, t := range ingest.Types {
		if n := r.Summary.ByType[string(t)]; n > 0 {
			lines = append(lines, fmt.Sprintf("  - %s: %d", t, n))
		}
	}
	return strings.Join(lines, "\n")
}

// Verdict classifies a result for the exit-code boundary.
type Verdict int

const (
	VerdictClean Verdict = iota
	VerdictFindings
	VerdictCritical
	VerdictFailed
)

// Verdict reports the result's outcome. A failed run is never clean, even
// though it carries no findings.
func (r *AnalysisResult) Verdict() Verdict {
	if r.Status == StatusFailure {
		return VerdictFailed
	}
	if r.Summary.BySeverity[ingest.Critical.String()] > 0 {
		return VerdictCritical
	}
	if r.Summary.Total > 0 {
		return VerdictFindings
	}
	return VerdictClean
}

// Process exit codes.
const (
	ExitClean       = 0
	ExitFindings    = 1
	ExitCritical    = 2
	ExitFailure     = 3
	ExitInterrupted = 130
)

// ExitCode maps the verdict to the CLI exit code.
func (r *AnalysisResult) ExitCode() int {
	switch r.Verdict() {
	case VerdictCritical:
		return ExitCritical
	case VerdictFindings:
		return ExitFindings
	case VerdictFailed:
		return ExitFailure
	}
	return ExitClean
}
