package pipeline

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"

	"github.com/dgallion1/deckcheck/internal/deck"
	"github.com/dgallion1/deckcheck/internal/inference"
	"github.com/dgallion1/deckcheck/internal/prompt"
	"github.com/dgallion1/deckcheck/internal/render"
	"github.com/dgallion1/deckcheck/internal/report"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type testSlide struct {
	title string
	body  []string
}

// buildPPTX writes a minimal presentation. A nil entry becomes a corrupt
// slide part.
func buildPPTX(t *testing.T, slides ...*testSlide) []byte {
	t.Helper()
	const (
		nsP   = `xmlns:p="http://schemas.openxmlformats.org/presentationml/2006/main"`
		nsA   = `xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main"`
		nsR   = `xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships"`
		nsRel = `xmlns="http://schemas.openxmlformats.org/package/2006/relationships"`
		typ   = "http://schemas.openxmlformats.org/officeDocument/2006/relationships/slide"
	)
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	write := func(name, content string) {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	sp := func(ph, text string) string {
		p := ""
		if ph != "" {
			p = `<p:ph type="` + ph + `"/>`
		}
		return `<p:sp><p:nvSpPr><p:nvPr>` + p + `</p:nvPr></p:nvSpPr><p:txBody><a:p><a:r><a:t>` + text + `</a:t></a:r></a:p></p:txBody></p:sp>`
	}

	var ids, rels strings.Builder
	for i, s := range slides {
		n := i + 1
		fmt.Fprintf(&ids, `<p:sldId id="%d" r:id="rId%d"/>`, 255+n, n)
		fmt.Fprintf(&rels, `<Relationship Id="rId%d" Type="%s" Target="slides/slide%d.xml"/>`, n, typ, n)
		if s == nil {
			write(fmt.Sprintf("ppt/slides/slide%d.xml", n), `<p:sld `+nsP+`><p:cSld>`)
			continue
		}
		var tree strings.Builder
		if s.title != "" {
			tree.WriteString(sp("title", s.title))
		}
		for _, b := range s.body {
			tree.WriteString(sp("", b))
		}
		write(fmt.Sprintf("ppt/slides/slide%d.xml", n), `<p:sld `+nsP+` `+nsA+` `+nsR+`><p:cSld><p:spTree>`+tree.String()+`</p:spTree></p:cSld></p:sld>`)
	}
	write("ppt/presentation.xml", `<p:presentation `+nsP+` `+nsR+`><p:sldIdLst>`+ids.String()+`</p:sldIdLst></p:presentation>`)
	write("ppt/_rels/presentation.xml.rels", `<Relationships `+nsRel+`>`+rels.String()+`</Relationships>`)
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func revenueDeck(t *testing.T) []byte {
	slides := make([]*testSlide, 9)
	for i := range slides {
		slides[i] = &testSlide{title: fmt.Sprintf("Slide %d", i+1), body: []string{"Overview"}}
	}
	slides[1].body = []string{"Total Q3 Revenue: $2.4M"}
	slides[3].body = []string{"Q3 Revenue: $2.7M"}
	slides[8].body = []string{"Q3 revenue of $2.9M"}
	return buildPPTX(t, slides...)
}

const revenueResponse = `[{"type": "Numerical Conflict", "severity": "Critical", "affected_slides": [2, 4, 9],
  "confidence": 1.0, "title": "Q3 revenue differs",
  "evidence": [{"slide": 2, "text": "Total Q3 Revenue: $2.4M"}, {"slide": 4, "text": "Q3 Revenue: $2.7M"}],
  "explanation": "Q3 revenue is reported as $2.4M, $2.7M and $2.9M."}]`

type fakeClient struct {
	mu       sync.Mutex
	response string
	err      error
	block    bool
	started  chan struct{}
	payloads []*prompt.Payload
}

func (f *fakeClient) Infer(ctx context.Context, p *prompt.Payload) (string, error) {
	f.mu.Lock()
	f.payloads = append(f.payloads, p)
	f.mu.Unlock()
	if f.block {
		if f.started != nil {
			close(f.started)
		}
		<-ctx.Done()
		return "", ctx.Err()
	}
	return f.response, f.err
}

func (f *fakeClient) Name() string { return "fake" }

func (f *fakeClient) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.payloads)
}

type fakeRenderer struct {
	images []deck.Image
	err    error
}

func (f *fakeRenderer) Render(ctx context.Context, data []byte, filename string) ([]deck.Image, error) {
	return f.images, f.err
}

func pngs(n int) []deck.Image {
	out := make([]deck.Image, n)
	for i := range out {
		out[i] = deck.Image{MIMEType: "image/png", Data: []byte(fmt.Sprintf("png-%d", i+1))}
	}
	return out
}

func newTestAnalyzer(client inference.Client, r Renderer) *Analyzer {
	return NewAnalyzer(client, r, Options{Budget: prompt.DefaultBudget(), Model: "test-model"}, nil)
}

func TestAnalyzer_RevenueScenario(t *testing.T) {
	client := &fakeClient{response: revenueResponse}
	a := newTestAnalyzer(client, &fakeRenderer{images: pngs(9)})

	r := a.Run(context.Background(), Request{Data: revenueDeck(t), Filename: "q3.pptx", RunID: "run-1"})

	if r.Status != report.StatusSuccess {
		t.Fatalf("expected success, got %s (%s)", r.Status, r.Diagnostic)
	}
	if len(r.Inconsistencies) != 1 {
		t.Fatalf("expected 1 finding, got %d", len(r.Inconsistencies))
	}
	f := r.Inconsistencies[0]
	if diff := cmp.Diff([]int{2, 4, 9}, f.AffectedSlides); diff != "" {
		t.Errorf("affected slides mismatch (-want +got):\n%s", diff)
	}
	if f.Severity.String() != "Critical" || f.Confidence != 1.0 {
		t.Errorf("unexpected finding %+v", f)
	}
	if r.Summary.ByType["Numerical Conflict"] != 1 {
		t.Errorf("unexpected type summary %v", r.Summary.ByType)
	}
	if r.ExitCode() != report.ExitCritical {
		t.Errorf("expected exit %d, got %d", report.ExitCritical, r.ExitCode())
	}
	if r.RunID != "run-1" || r.Provider != "fake" || r.Model != "test-model" {
		t.Errorf("unexpected run fields %q %q %q", r.RunID, r.Provider, r.Model)
	}
	if r.ImagesAnalyzed != 9 || r.Presentation.SlideCount != 9 {
		t.Errorf("expected 9 images and slides, got %d/%d", r.ImagesAnalyzed, r.Presentation.SlideCount)
	}
	if r.Presentation.ContentHash == "" || r.PayloadDigest == "" {
		t.Error("expected content hash and payload digest")
	}

	text := client.payloads[0].Text()
	for _, want := range []string{"Total Q3 Revenue: $2.4M", "Q3 Revenue: $2.7M", "Q3 revenue of $2.9M", "--- SLIDE 9 ---"} {
		if !strings.Contains(text, want) {
			t.Errorf("payload missing %q", want)
		}
	}
}

func TestAnalyzer_RendererUnavailableKeepsStatus(t *testing.T) {
	data := revenueDeck(t)
	withImages := newTestAnalyzer(&fakeClient{response: revenueResponse}, &fakeRenderer{images: pngs(9)}).
		Run(context.Background(), Request{Data: data, Filename: "q3.pptx"})

	unavailable := fmt.Errorf("%w: convert to pdf: soffice not installed", render.ErrUnavailable)
	client := &fakeClient{response: revenueResponse}
	textOnly := newTestAnalyzer(client, &fakeRenderer{err: unavailable}).
		Run(context.Background(), Request{Data: data, Filename: "q3.pptx"})

	if textOnly.Status != withImages.Status || textOnly.Status != report.StatusSuccess {
		t.Errorf("status changed without images: %s vs %s", textOnly.Status, withImages.Status)
	}
	if textOnly.ImagesAnalyzed != 0 {
		t.Errorf("expected no images, got %d", textOnly.ImagesAnalyzed)
	}
	for _, part := range client.payloads[0].Parts {
		if part.Kind == prompt.PartImage {
			t.Fatal("text-only run sent an image")
		}
	}
	if len(textOnly.Warnings) == 0 || !strings.Contains(textOnly.Warnings[0], "soffice not installed") {
		t.Errorf("expected render warning, got %v", textOnly.Warnings)
	}
}

func TestAnalyzer_NoRenderer(t *testing.T) {
	r := newTestAnalyzer(&fakeClient{response: "[]"}, nil).
		Run(context.Background(), Request{Data: revenueDeck(t), Filename: "q3.pptx"})
	if r.Status != report.StatusSuccess || r.ImagesAnalyzed != 0 {
		t.Errorf("unexpected result %s/%d", r.Status, r.ImagesAnalyzed)
	}
}

func TestAnalyzer_ProseVersusEmpty(t *testing.T) {
	data := revenueDeck(t)
	prose := newTestAnalyzer(&fakeClient{response: "I could not find any issues with this deck."}, nil).
		Run(context.Background(), Request{Data: data, Filename: "q3.pptx"})
	empty := newTestAnalyzer(&fakeClient{response: "[]"}, nil).
		Run(context.Background(), Request{Data: data, Filename: "q3.pptx"})

	if prose.Status != report.StatusFailure || len(prose.Inconsistencies) != 0 {
		t.Errorf("prose: expected failure with no findings, got %s/%d", prose.Status, len(prose.Inconsistencies))
	}
	if !strings.Contains(prose.Diagnostic, "unparseable") {
		t.Errorf("expected unparseable diagnostic, got %q", prose.Diagnostic)
	}
	if empty.Status != report.StatusSuccess || len(empty.Inconsistencies) != 0 {
		t.Errorf("empty: expected success with no findings, got %s/%d", empty.Status, len(empty.Inconsistencies))
	}
	if prose.ExitCode() == empty.ExitCode() {
		t.Errorf("exit codes must differ, both %d", prose.ExitCode())
	}
}

func TestAnalyzer_FatalInference(t *testing.T) {
	client := &fakeClient{err: &inference.Error{Provider: "fake", StatusCode: 401, Message: "invalid x-api-key"}}
	r := newTestAnalyzer(client, nil).Run(context.Background(), Request{Data: revenueDeck(t), Filename: "q3.pptx"})
	if r.Status != report.StatusFailure {
		t.Fatalf("expected failure, got %s", r.Status)
	}
	if !strings.Contains(r.Diagnostic, "status 401") || r.ExitCode() != report.ExitFailure {
		t.Errorf("unexpected diagnostic %q / exit %d", r.Diagnostic, r.ExitCode())
	}
}

func TestAnalyzer_CorruptContainer(t *testing.T) {
	client := &fakeClient{response: "[]"}
	r := newTestAnalyzer(client, &fakeRenderer{images: pngs(1)}).
		Run(context.Background(), Request{Data: []byte("not a zip"), Filename: "broken.pptx"})
	if r.Status != report.StatusFailure || !strings.Contains(r.Diagnostic, "broken.pptx") {
		t.Errorf("expected extraction failure, got %s %q", r.Status, r.Diagnostic)
	}
	if client.calls() != 0 {
		t.Error("inference must not run after an extraction failure")
	}
}

func TestAnalyzer_UnsupportedExtension(t *testing.T) {
	r := newTestAnalyzer(&fakeClient{response: "[]"}, nil).
		Run(context.Background(), Request{Data: []byte("x"), Filename: "notes.key"})
	if r.Status != report.StatusFailure || !strings.Contains(r.Diagnostic, "unsupported") {
		t.Errorf("expected unsupported failure, got %s %q", r.Status, r.Diagnostic)
	}
}

func TestAnalyzer_EmptyDeck(t *testing.T) {
	r := newTestAnalyzer(&fakeClient{response: "[]"}, nil).
		Run(context.Background(), Request{Data: buildPPTX(t), Filename: "empty.pptx"})
	if r.Status != report.StatusFailure || !strings.Contains(r.Diagnostic, ErrEmptyDeck.Error()) {
		t.Errorf("expected empty deck failure, got %s %q", r.Status, r.Diagnostic)
	}
}

func TestAnalyzer_FailedSlideIsPartial(t *testing.T) {
	data := buildPPTX(t,
		&testSlide{title: "Intro", body: []string{"Revenue $1M"}},
		nil,
		&testSlide{title: "Close", body: []string{"Revenue $2M"}},
	)
	client := &fakeClient{response: `[{"type":"numerical conflict","severity":"high","affected_slides":[1,3],"explanation":"Revenue is both $1M and $2M."}]`}
	r := newTestAnalyzer(client, nil).Run(context.Background(), Request{Data: data, Filename: "deck.pptx"})

	if r.Status != report.StatusPartialFailure {
		t.Fatalf("expected partial failure, got %s (%s)", r.Status, r.Diagnostic)
	}
	if r.Presentation.SlideCount != 3 || len(r.Inconsistencies) != 1 {
		t.Errorf("unexpected result: slides=%d findings=%d", r.Presentation.SlideCount, len(r.Inconsistencies))
	}
	if r.ExitCode() != report.ExitFindings {
		t.Errorf("expected exit %d, got %d", report.ExitFindings, r.ExitCode())
	}
}

func TestAnalyzer_DropsBecomeWarnings(t *testing.T) {
	client := &fakeClient{response: `[{"type":"Made Up","severity":"Low","affected_slides":[1],"explanation":"x"}]`}
	r := newTestAnalyzer(client, nil).Run(context.Background(), Request{Data: revenueDeck(t), Filename: "q3.pptx"})
	if r.Status != report.StatusSuccess || len(r.Inconsistencies) != 0 {
		t.Fatalf("unexpected result %s/%d", r.Status, len(r.Inconsistencies))
	}
	found := false
	for _, w := range r.Warnings {
		if strings.HasPrefix(w, "finding 1 dropped:") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected drop warning, got %v", r.Warnings)
	}
}

func TestAnalyzer_Phases(t *testing.T) {
	var phases []Phase
	newTestAnalyzer(&fakeClient{response: "[]"}, nil).Run(context.Background(), Request{
		Data:     revenueDeck(t),
		Filename: "q3.pptx",
		OnPhase:  func(p Phase) { phases = append(phases, p) },
	})
	want := []Phase{PhaseExtracting, PhaseComposing, PhaseInferring, PhaseIngesting, PhaseAggregating}
	if diff := cmp.Diff(want, phases); diff != "" {
		t.Errorf("phase mismatch (-want +got):\n%s", diff)
	}
}

func TestAnalyzer_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	client := &fakeClient{response: "[]"}
	r := newTestAnalyzer(client, nil).Run(ctx, Request{Data: revenueDeck(t), Filename: "q3.pptx"})
	if r.Status != report.StatusFailure || !errors.Is(ctx.Err(), context.Canceled) {
		t.Errorf("expected failure, got %s", r.Status)
	}
	if client.calls() != 0 {
		t.Error("inference must not start after cancellation")
	}
}

func TestAnalyzer_GeneratesRunID(t *testing.T) {
	a := newTestAnalyzer(&fakeClient{response: "[]"}, nil)
	data := revenueDeck(t)
	r1 := a.Run(context.Background(), Request{Data: data, Filename: "q3.pptx"})
	r2 := a.Run(context.Background(), Request{Data: data, Filename: "q3.pptx"})
	if r1.RunID == "" || r1.RunID == r2.RunID {
		t.Errorf("expected distinct run IDs, got %q and %q", r1.RunID, r2.RunID)
	}
	if r1.PayloadDigest != r2.PayloadDigest {
		t.Error("identical input should compose identical payloads")
	}
}

func TestAnalyzer_ReferencesLimitedToComposedSlides(t *testing.T) {
	client := &fakeClient{response: revenueResponse}
	a := NewAnalyzer(client, nil, Options{Budget: prompt.Budget{MaxSlides: 3}}, nil)

	r := a.Run(context.Background(), Request{Data: revenueDeck(t), Filename: "q3.pptx"})

	if r.Status != report.StatusPartialFailure {
		t.Fatalf("expected partial failure, got %s (%s)", r.Status, r.Diagnostic)
	}
	if len(r.Inconsistencies) != 1 {
		t.Fatalf("expected 1 finding, got %d", len(r.Inconsistencies))
	}
	f := r.Inconsistencies[0]
	if diff := cmp.Diff([]int{2}, f.AffectedSlides); diff != "" {
		t.Errorf("affected slides mismatch (-want +got):\n%s", diff)
	}
	for _, e := range f.Evidence {
		if e.Slide != 2 {
			t.Errorf("evidence from omitted slide %d kept", e.Slide)
		}
	}
}
