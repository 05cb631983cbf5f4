package pipeline

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/dgallion1/deckcheck/internal/deck"
	"github.com/dgallion1/deckcheck/internal/inference"
	"github.com/dgallion1/deckcheck/internal/ingest"
	"github.com/dgallion1/deckcheck/internal/parser"
	"github.com/dgallion1/deckcheck/internal/prompt"
	"github.com/dgallion1/deckcheck/internal/report"
)

// Renderer rasterizes a presentation into one image per slide.
type Renderer interface {
	Render(ctx context.Context, data []byte, filename string) ([]deck.Image, error)
}

// Phase names the stage a run is in.
type Phase string

const (
	PhaseExtracting  Phase = "extracting"
	PhaseComposing   Phase = "composing"
	PhaseInferring   Phase = "inferring"
	PhaseIngesting   Phase = "ingesting"
	PhaseAggregating Phase = "aggregating"
)

// ErrEmptyDeck is returned for a container with no slides.
var ErrEmptyDeck = errors.New("presentation has no slides")

// Options configure an Analyzer.
type Options struct {
	Budget            prompt.Budget
	Ingest            ingest.Config
	Model             string // reported in results
	PdftotextFallback bool
}

// Analyzer runs the full pipeline for one presentation at a time. It holds
// no per-run state, so one Analyzer may serve concurrent runs.
type Analyzer struct {
	client   inference.Client
	renderer Renderer
	ingester *ingest.Ingester
	opts     Options
	log      *slog.Logger

	now func() time.Time
}

// NewAnalyzer wires the stages. A nil renderer means text-only analysis.
func NewAnalyzer(client inference.Client, renderer Renderer, opts Options, log *slog.Logger) *Analyzer {
	if log == nil {
		log = slog.Default()
	}
	return &Analyzer{
		client:   client,
		renderer: renderer,
		ingester: ingest.New(opts.Ingest, log),
		opts:     opts,
		log:      log,
		now:      time.Now,
	}
}

// Request is one presentation to analyze.
type Request struct {
	Data     []byte
	Filename string
	RunID    string      // generated when empty
	OnPhase  func(Phase) // optional progress hook
}

// Run analyzes the presentation. It always returns a result; failures are
// reported through its Status and Diagnostic.
func (a *Analyzer) Run(ctx context.Context, req Request) *report.AnalysisResult {
	start := a.now()
	runID := req.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	log := a.log.With("run_id", runID, "file", req.Filename)
	phase := func(p Phase) {
		log.Debug("phase", "phase", p)
		if req.OnPhase != nil {
			req.OnPhase(p)
		}
	}

	hash := ContentHashHex(req.Data)
	in := report.Input{
		RunID:    runID,
		Meta:     deck.Meta{Source: req.Filename, ContentHash: hash},
		Provider: a.client.Name(),
		Model:    a.opts.Model,
	}
	finish := func() *report.AnalysisResult {
		end := a.now()
		in.Duration = end.Sub(start)
		in.CompletedAt = end.UTC()
		r := report.Aggregate(in)
		log.Info("analysis finished",
			"status", r.Status,
			"findings", r.Summary.Total,
			"duration_ms", in.Duration.Milliseconds(),
		)
		return r
	}
	fail := func(stage string, err error) *report.AnalysisResult {
		log.Error("analysis failed", "stage", stage, "error", err)
		in.Err = err
		return finish()
	}

	phase(PhaseExtracting)
	ex, err := a.extract(ctx, req.Data, req.Filename, log)
	if err != nil {
		return fail("extract", err)
	}
	if ex.renderErr != nil {
		in.Warnings = append(in.Warnings, ex.renderErr.Error())
	}
	in.Warnings = append(in.Warnings, ex.deck.Warnings...)

	meta := ex.deck.Meta
	meta.Source = req.Filename
	meta.ContentHash = hash
	meta.ExtractedAt = a.now().UTC()
	bundle := deck.Assemble(meta, ex.deck.Slides, ex.images, log)
	in.Meta = bundle.Meta()
	in.Warnings = append(in.Warnings, bundle.Warnings()...)
	if bundle.Len() == 0 {
		return fail("extract", &parser.ExtractionError{File: req.Filename, Err: ErrEmptyDeck})
	}

	phase(PhaseComposing)
	payload := prompt.Compose(bundle, a.opts.Budget)
	in.PayloadDigest = payload.Digest()
	in.ImagesAnalyzed = payload.Images
	in.Warnings = append(in.Warnings, budgetWarnings(payload)...)
	log.Info("payload composed",
		"slides", payload.Slides,
		"images", payload.Images,
		"est_tokens", payload.EstimatedTokens(),
		"digest", in.PayloadDigest,
	)
	if err := ctx.Err(); err != nil {
		return fail("compose", err)
	}

	phase(PhaseInferring)
	response, err := a.client.Infer(ctx, payload)
	if err != nil {
		return fail("inference", fmt.Errorf("inference: %w", err))
	}

	phase(PhaseIngesting)
	res, err := a.ingester.Ingest(response, composedSlides{bundle: bundle, dropped: payload.DroppedSlides})
	for _, d := range res.Drops {
		in.Warnings = append(in.Warnings, fmt.Sprintf("finding %d dropped: %s", d.Index+1, d.Reason))
	}
	if err != nil {
		return fail("ingest", err)
	}
	log.Info("findings ingested",
		"raw", res.Raw,
		"accepted", len(res.Findings),
		"dropped", len(res.Drops),
		"merged", res.Merged,
		"recovered", res.Recovered,
	)

	phase(PhaseAggregating)
	in.Findings = res.Findings
	in.Incomplete = len(bundle.FailedSlides()) > 0 || payload.Trimmed()
	return finish()
}

// composedSlides limits valid references to the slides the model was shown.
type composedSlides struct {
	bundle  *deck.Bundle
	dropped []int
}

func (s composedSlides) HasSlide(index int) bool {
	return s.bundle.HasSlide(index) && !slices.Contains(s.dropped, index)
}

type extraction struct {
	deck      *parser.Deck
	images    []deck.Image
	renderErr error
}

// extract parses and renders concurrently. Only a parse failure is fatal;
// a render failure leaves images nil.
func (a *Analyzer) extract(ctx context.Context, data []byte, filename string, log *slog.Logger) (*extraction, error) {
	p, err := parser.ForFile(filename)
	if err != nil {
		return nil, err
	}
	if pp, ok := p.(*parser.PDFParser); ok {
		pp.FallbackPdftotext = a.opts.PdftotextFallback
	}

	ex := &extraction{}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		d, err := p.Parse(bytes.NewReader(data), filename)
		if err != nil {
			return err
		}
		ex.deck = d
		return nil
	})
	if a.renderer != nil {
		g.Go(func() error {
			images, err := a.renderer.Render(gctx, data, filename)
			if err != nil {
				if gctx.Err() == nil {
					log.Warn("slide images unavailable, continuing with text only", "error", err)
				}
				ex.renderErr = err
				return nil
			}
			ex.images = images
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return ex, nil
}

func budgetWarnings(p *prompt.Payload) []string {
	var out []string
	if len(p.DroppedSlides) > 0 {
		out = append(out, fmt.Sprintf("%d slides omitted by the size budget (slides %d-%d)",
			len(p.DroppedSlides), p.DroppedSlides[0], p.DroppedSlides[len(p.DroppedSlides)-1]))
	}
	if len(p.TruncatedSlides) > 0 {
		out = append(out, fmt.Sprintf("text truncated on %d slides", len(p.TruncatedSlides)))
	}
	if len(p.DroppedImages) > 0 {
		out = append(out, fmt.Sprintf("%d slide images omitted by the size budget", len(p.DroppedImages)))
	}
	return out
}

// ContentHashHex computes SHA-256 of content and returns hex string.
func ContentHashHex(data []byte) string {
	h := sha256.Sum256(data)
	return fmt.Sprintf("%x", h[:])
}
