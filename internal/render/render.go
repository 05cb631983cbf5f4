// Package render rasterizes presentations into one PNG per slide using
// external tools (LibreOffice for container -> PDF, poppler's pdftoppm for
// PDF -> PNG). Rendering is best effort and all-or-nothing: any failure
// yields ErrUnavailable and no images.
package render

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dgallion1/deckcheck/internal/deck"
	pdflib "github.com/ledongthuc/pdf"
)

// ErrUnavailable is wrapped by every Render failure.
var ErrUnavailable = errors.New("slide rendering unavailable")

// Runner executes an external command in dir.
type Runner interface {
	Run(ctx context.Context, dir, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	// soffice forks helpers that can hold the output pipes open after kill.
	cmd.WaitDelay = 5 * time.Second
	return cmd.CombinedOutput()
}

// Config controls the external toolchain.
type Config struct {
	SofficePath  string
	PdftoppmPath string
	Timeout      time.Duration // per external invocation
	DPI          int
	TempDir      string // parent for per-run scratch dirs; "" = os.TempDir()
}

// Renderer is the Slide Renderer Adapter.
type Renderer struct {
	cfg    Config
	runner Runner
	log    *slog.Logger

	// pageCount is swappable in tests.
	pageCount func(path string) (int, error)
}

func New(cfg Config, runner Runner, log *slog.Logger) *Renderer {
	if cfg.SofficePath == "" {
		cfg.SofficePath = "soffice"
	}
	if cfg.PdftoppmPath == "" {
		cfg.PdftoppmPath = "pdftoppm"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	if cfg.DPI <= 0 {
		cfg.DPI = 110
	}
	if runner == nil {
		runner = ExecRunner{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Renderer{cfg: cfg, runner: runner, log: log, pageCount: pdfPageCount}
}

// Render converts the presentation into per-slide PNG images. Scratch files
// live in a private temp dir that is removed on every return path.
func (r *Renderer) Render(ctx context.Context, data []byte, filename string) (images []deck.Image, err error) {
	start := time.Now()
	dir, err := os.MkdirTemp(r.cfg.TempDir, "deckcheck-render-*")
	if err != nil {
		return nil, unavailable("create scratch dir", err)
	}
	defer func() {
		if rmErr := os.RemoveAll(dir); rmErr != nil {
			r.log.Warn("render cleanup failed", "dir", dir, "error", rmErr)
		}
	}()

	ext := strings.ToLower(filepath.Ext(filename))
	if ext == "" {
		ext = ".pptx"
	}
	input := "input" + ext
	if err := os.WriteFile(filepath.Join(dir, input), data, 0o600); err != nil {
		return nil, unavailable("write input", err)
	}

	pdfName := input
	if ext != ".pdf" {
		pdfName = "input.pdf"
		profile := "file://" + filepath.ToSlash(filepath.Join(dir, "profile"))
		if err := r.run(ctx, dir, "convert to pdf", r.cfg.SofficePath,
			"-env:UserInstallation="+profile,
			"--headless", "--norestore",
			"--convert-to", "pdf",
			"--outdir", dir,
			input,
		); err != nil {
			return nil, err
		}
	}
	pdfPath := filepath.Join(dir, pdfName)
	if _, err := os.Stat(pdfPath); err != nil {
		return nil, unavailable("convert to pdf", fmt.Errorf("no pdf produced: %w", err))
	}

	pages, err := r.pageCount(pdfPath)
	if err != nil {
		return nil, unavailable("read pdf", err)
	}
	if pages == 0 {
		return nil, unavailable("read pdf", errors.New("pdf has no pages"))
	}

	if err := r.run(ctx, dir, "rasterize", r.cfg.PdftoppmPath,
		"-png", "-r", strconv.Itoa(r.cfg.DPI), pdfName, "slide",
	); err != nil {
		return nil, err
	}

	files, err := pageImages(dir)
	if err != nil {
		return nil, unavailable("collect images", err)
	}
	if len(files) != pages {
		return nil, unavailable("rasterize", fmt.Errorf("got %d images for %d pages", len(files), pages))
	}

	images = make([]deck.Image, 0, len(files))
	for _, f := range files {
		b, err := os.ReadFile(f)
		if err != nil {
			return nil, unavailable("read image", err)
		}
		if len(b) == 0 {
			return nil, unavailable("read image", fmt.Errorf("empty image %s", filepath.Base(f)))
		}
		images = append(images, deck.Image{MIMEType: "image/png", Data: b})
	}

	r.log.Debug("slides rendered", "pages", pages, "duration_ms", time.Since(start).Milliseconds())
	return images, nil
}

// run executes one external stage under its own timeout.
func (r *Renderer) run(ctx context.Context, dir, stage, name string, args ...string) error {
	stageCtx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	out, err := r.runner.Run(stageCtx, dir, name, args...)
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(stageCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil:
		err = fmt.Errorf("%s timed out after %s", name, r.cfg.Timeout)
	case ctx.Err() != nil:
		err = ctx.Err()
	case errors.Is(err, exec.ErrNotFound):
		err = fmt.Errorf("%s not installed: %w", name, err)
	default:
		if msg := strings.TrimSpace(string(out)); msg != "" {
			err = fmt.Errorf("%w: %s", err, truncate(msg, 200))
		}
	}
	return unavailable(stage, err)
}

// pageImages lists pdftoppm outputs (slide-1.png or slide-01.png ...) in
// page order.
func pageImages(dir string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "slide-*.png"))
	if err != nil {
		return nil, err
	}
	type page struct {
		n    int
		path string
	}
	pages := make([]page, 0, len(matches))
	for _, m := range matches {
		num := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(m), "slide-"), ".png")
		n, err := strconv.Atoi(num)
		if err != nil {
			continue
		}
		pages = append(pages, page{n: n, path: m})
	}
	sort.Slice(pages, func(i, j int) bool { return pages[i].n < pages[j].n })
	out := make([]string, len(pages))
	for i, p := range pages {
		out[i] = p.path
	}
	return out, nil
}

func pdfPageCount(path string) (int, error) {
	f, reader, err := pdflib.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return reader.NumPage(), nil
}

func unavailable(stage string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrUnavailable, stage, err)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
