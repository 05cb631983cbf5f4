package render

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// fakeRunner emulates soffice and pdftoppm by writing their outputs into dir.
type fakeRunner struct {
	pngs      int // images pdftoppm "produces"
	pad       bool
	fail      map[string]error
	block     bool
	dirs      []string
	commands  []string
	noPDFFile bool
}

func (f *fakeRunner) Run(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	f.dirs = append(f.dirs, dir)
	f.commands = append(f.commands, name)
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err, ok := f.fail[name]; ok {
		return []byte("tool exploded"), err
	}
	switch name {
	case "soffice":
		if !f.noPDFFile {
			if err := os.WriteFile(filepath.Join(dir, "input.pdf"), []byte("%PDF-1.4"), 0o600); err != nil {
				return nil, err
			}
		}
	case "pdftoppm":
		for i := 1; i <= f.pngs; i++ {
			name := fmt.Sprintf("slide-%d.png", i)
			if f.pad {
				name = fmt.Sprintf("slide-%02d.png", i)
			}
			if err := os.WriteFile(filepath.Join(dir, name), []byte(fmt.Sprintf("png-%d", i)), 0o600); err != nil {
				return nil, err
			}
		}
	}
	return nil, nil
}

func newTestRenderer(t *testing.T, runner Runner, pages int) *Renderer {
	t.Helper()
	r := New(Config{Timeout: 2 * time.Second, TempDir: t.TempDir()}, runner, nil)
	r.pageCount = func(string) (int, error) { return pages, nil }
	return r
}

func assertRemoved(t *testing.T, dirs []string) {
	t.Helper()
	for _, d := range dirs {
		if _, err := os.Stat(d); !os.IsNotExist(err) {
			t.Errorf("scratch dir %s not removed", d)
		}
	}
}

func TestRender_Success(t *testing.T) {
	runner := &fakeRunner{pngs: 12, pad: true}
	r := newTestRenderer(t, runner, 12)

	images, err := r.Render(context.Background(), []byte("pptx"), "deck.pptx")
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if len(images) != 12 {
		t.Fatalf("expected 12 images, got %d", len(images))
	}
	// Numeric ordering, not lexical: slide-02 before slide-10.
	for i, img := range images {
		if want := fmt.Sprintf("png-%d", i+1); string(img.Data) != want {
			t.Errorf("image %d: expected %q, got %q", i, want, img.Data)
		}
		if img.MIMEType != "image/png" {
			t.Errorf("image %d: expected image/png, got %q", i, img.MIMEType)
		}
	}
	if got := strings.Join(runner.commands, ","); got != "soffice,pdftoppm" {
		t.Errorf("unexpected commands %s", got)
	}
	assertRemoved(t, runner.dirs)
}

func TestRender_PDFInputSkipsConversion(t *testing.T) {
	runner := &fakeRunner{pngs: 2}
	r := newTestRenderer(t, runner, 2)

	images, err := r.Render(context.Background(), []byte("%PDF"), "deck.pdf")
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if len(images) != 2 {
		t.Fatalf("expected 2 images, got %d", len(images))
	}
	if got := strings.Join(runner.commands, ","); got != "pdftoppm" {
		t.Errorf("expected only pdftoppm, got %s", got)
	}
}

func TestRender_MissingTool(t *testing.T) {
	runner := &fakeRunner{fail: map[string]error{"soffice": exec.ErrNotFound}}
	r := newTestRenderer(t, runner, 3)

	images, err := r.Render(context.Background(), []byte("pptx"), "deck.pptx")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if images != nil {
		t.Errorf("expected no images, got %d", len(images))
	}
	if !strings.Contains(err.Error(), "not installed") {
		t.Errorf("expected not installed in error, got %v", err)
	}
	assertRemoved(t, runner.dirs)
}

func TestRender_ToolFailureIncludesOutput(t *testing.T) {
	runner := &fakeRunner{pngs: 3, fail: map[string]error{"pdftoppm": errors.New("exit status 1")}}
	r := newTestRenderer(t, runner, 3)

	_, err := r.Render(context.Background(), []byte("pptx"), "deck.pptx")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if !strings.Contains(err.Error(), "tool exploded") {
		t.Errorf("expected tool output in error, got %v", err)
	}
}

func TestRender_PartialImagesAreUnavailable(t *testing.T) {
	runner := &fakeRunner{pngs: 2}
	r := newTestRenderer(t, runner, 3)

	images, err := r.Render(context.Background(), []byte("pptx"), "deck.pptx")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if images != nil {
		t.Errorf("expected no partial images, got %d", len(images))
	}
	assertRemoved(t, runner.dirs)
}

func TestRender_NoPDFProduced(t *testing.T) {
	runner := &fakeRunner{noPDFFile: true}
	r := newTestRenderer(t, runner, 1)

	_, err := r.Render(context.Background(), []byte("pptx"), "deck.pptx")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestRender_Timeout(t *testing.T) {
	runner := &fakeRunner{block: true}
	r := New(Config{Timeout: 50 * time.Millisecond, TempDir: t.TempDir()}, runner, nil)

	start := time.Now()
	_, err := r.Render(context.Background(), []byte("pptx"), "deck.pptx")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if !strings.Contains(err.Error(), "timed out") {
		t.Errorf("expected timeout in error, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Errorf("render did not honor timeout")
	}
	assertRemoved(t, runner.dirs)
}

func TestRender_ParentCancel(t *testing.T) {
	runner := &fakeRunner{block: true}
	r := New(Config{Timeout: time.Minute, TempDir: t.TempDir()}, runner, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_, err := r.Render(ctx, []byte("pptx"), "deck.pptx")
	if !errors.Is(err, ErrUnavailable) || !errors.Is(err, context.Canceled) {
		t.Fatalf("expected unavailable wrapping context.Canceled, got %v", err)
	}
}
