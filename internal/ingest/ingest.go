// Package ingest turns an untrusted model response into validated,
// deduplicated Inconsistency records.
//
// A response moves through explicit states:
//
//	RawParse -> Recover -> FieldCoercion -> SemanticDeduplication -> Accepted
//	    \           \
//	     `-----------`--> Unparseable
//
// RawParse is a strict decode. Recover extracts a JSON value wrapped in
// prose or code fences and decodes it once more; a second failure ends in
// Unparseable. Individual findings that fail coercion are dropped without
// affecting the rest of the batch.
package ingest

import (
	"errors"
	"fmt"
	"log/slog"
)

// State names a step of the ingestion state machine.
type State string

const (
	StateRawParse      State = "raw_parse"
	StateRecover       State = "recover"
	StateFieldCoercion State = "field_coercion"
	StateDeduplication State = "semantic_deduplication"
	StateAccepted      State = "accepted"
	StateUnparseable   State = "unparseable"
)

// Reason classifies an IngestionError.
type Reason string

const ReasonUnparseable Reason = "unparseable"

// IngestionError terminates ingestion of a whole response.
type IngestionError struct {
	Reason  Reason
	Detail  string
	Snippet string // start of the offending response
}

func (e *IngestionError) Error() string {
	return fmt.Sprintf("ingestion failed: %s response: %s", e.Reason, e.Detail)
}

// IsUnparseable reports whether err is an unparseable-response failure.
func IsUnparseable(err error) bool {
	var ie *IngestionError
	return errors.As(err, &ie) && ie.Reason == ReasonUnparseable
}

// Config tunes coercion and deduplication.
type Config struct {
	NeutralConfidence   float64 // used when confidence is absent or non-numeric
	SimilarityThreshold float64 // explanation similarity at which findings merge
}

func DefaultConfig() Config {
	return Config{NeutralConfidence: 0.5, SimilarityThreshold: 0.85}
}

// Result is the outcome of one ingestion.
type Result struct {
	Findings  []Inconsistency
	Drops     []Drop
	Raw       int     // findings present in the response
	Merged    int     // duplicates folded into other findings
	Recovered bool    // strict decode failed and recovery succeeded
	Trace     []State // states visited, in order
}

// Ingester runs the state machine. It holds no per-run state and is safe
// for concurrent use.
type Ingester struct {
	cfg Config
	log *slog.Logger
}

func New(cfg Config, log *slog.Logger) *Ingester {
	def := DefaultConfig()
	if cfg.NeutralConfidence < 0 || cfg.NeutralConfidence > 1 {
		cfg.NeutralConfidence = def.NeutralConfidence
	}
	if cfg.SimilarityThreshold <= 0 || cfg.SimilarityThreshold > 1 {
		cfg.SimilarityThreshold = def.SimilarityThreshold
	}
	if log == nil {
		log = slog.Default()
	}
	return &Ingester{cfg: cfg, log: log}
}

// Ingest validates response against the slides of the analyzed deck. The
// returned Result is never nil; err is an *IngestionError when the response
// held no usable structured payload.
func (g *Ingester) Ingest(response string, slides SlideSet) (*Result, error) {
	res := &Result{}
	enter := func(s State) {
		res.Trace = append(res.Trace, s)
		g.log.Debug("ingest state", "state", s)
	}

	enter(StateRawParse)
	items, err := decodeStrict(response)
	if err != nil {
		enter(StateRecover)
		g.log.Debug("strict decode failed, attempting recovery", "error", err)
		candidates := recoverCandidates(response)
		if len(candidates) == 0 {
			return g.unparseable(res, response, "no JSON array or object found")
		}
		var firstErr error
		found := false
		for _, candidate := range candidates {
			got, err := decodeStrict(candidate)
			if err == nil && !holdsFindings(got) {
				err = errors.New("array holds no finding objects")
			}
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				continue
			}
			items, found = got, true
			break
		}
		if !found {
			return g.unparseable(res, response, firstErr.Error())
		}
		res.Recovered = true
	}
	res.Raw = len(items)

	enter(StateFieldCoercion)
	c := &coercer{slides: slides, neutral: g.cfg.NeutralConfidence}
	findings := make([]Inconsistency, 0, len(items))
	for i, item := range items {
		f, reason := c.coerce(item)
		if reason != "" {
			res.Drops = append(res.Drops, Drop{Index: i, Reason: reason})
			g.log.Warn("finding dropped", "index", i, "reason", reason)
			continue
		}
		findings = append(findings, f)
	}

	enter(StateDeduplication)
	findings, res.Merged = dedupe(findings, g.cfg.SimilarityThreshold)
	if res.Merged > 0 {
		g.log.Debug("duplicate findings merged", "merged", res.Merged)
	}

	enter(StateAccepted)
	for i := range findings {
		findings[i].ID = fmt.Sprintf("INC-%03d", i+1)
	}
	res.Findings = findings
	return res, nil
}

func (g *Ingester) unparseable(res *Result, response, detail string) (*Result, error) {
	res.Trace = append(res.Trace, StateUnparseable)
	err := &IngestionError{Reason: ReasonUnparseable, Detail: detail, Snippet: snippet(response)}
	g.log.Error("model response unparseable", "detail", detail, "snippet", err.Snippet)
	return res, err
}
