package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dgallion1/deckcheck/internal/config"
	"github.com/dgallion1/deckcheck/internal/inference"
	"github.com/dgallion1/deckcheck/internal/parser"
	"github.com/dgallion1/deckcheck/internal/pipeline"
	"github.com/dgallion1/deckcheck/internal/report"
)

// newProvider is swapped in tests.
var newProvider = pipeline.NewProvider

type analyzeFlags struct {
	outputDir    string
	formats      []string
	jsonOnly     bool
	quickSummary bool
	noColors     bool
	noImages     bool
	verbose      bool
	configPath   string
}

func newAnalyzeCmd() *cobra.Command {
	var f analyzeFlags
	cmd := &cobra.Command{
		Use:   "analyze <file>",
		Short: "Analyze a .pptx or .pdf deck",
		Long: `Extracts every slide, renders slide images when LibreOffice and poppler
are installed, asks the configured model for inconsistencies and prints a
ranked report. Reports are also saved to --output-dir.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyze(cmd, args[0], f)
		},
	}
	fl := cmd.Flags()
	fl.StringVarP(&f.outputDir, "output-dir", "o", "reports", "directory for saved reports")
	fl.StringArrayVarP(&f.formats, "format", "f", []string{"json", "markdown"}, "report format to save (json, markdown, html, docx); repeatable")
	fl.BoolVar(&f.jsonOnly, "json-only", false, "print only the JSON result to stdout and save nothing")
	fl.BoolVar(&f.quickSummary, "quick-summary", false, "print a one-line verdict instead of the full report")
	fl.BoolVar(&f.noColors, "no-colors", false, "disable colored console output")
	fl.BoolVar(&f.noImages, "no-images", false, "skip slide rendering and analyze text only")
	fl.BoolVarP(&f.verbose, "verbose", "v", false, "debug logging on stderr")
	fl.StringVar(&f.configPath, "config", "", "YAML config file (default $DECKCHECK_CONFIG)")
	return cmd
}

func runAnalyze(cmd *cobra.Command, path string, f analyzeFlags) error {
	stdout, stderr := cmd.OutOrStdout(), cmd.ErrOrStderr()

	level := slog.LevelWarn
	if f.verbose {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	formats := make([]report.Format, 0, len(f.formats))
	for _, name := range f.formats {
		format, err := report.ParseFormat(name)
		if err != nil {
			return fail(err)
		}
		formats = append(formats, format)
	}

	cfg, err := config.LoadFile(f.configPath)
	if err != nil {
		return fail(err)
	}
	if f.noImages {
		cfg.RenderImages = false
	}

	if !parser.IsSupportedExtension(path) {
		return fail(fmt.Errorf("unsupported file type %q (want .pptx or .pdf)", filepath.Ext(path)))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fail(err)
	}
	if err := cfg.Validate(); err != nil {
		return fail(err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	provider, err := newProvider(ctx, cfg, inference.NewLLMStats(cfg.StatsWindow), log)
	if err != nil {
		return fail(fmt.Errorf("create %s client: %w", cfg.Provider, err))
	}
	defer provider.Close()

	analyzer := pipeline.NewAnalyzer(provider.Client, pipeline.NewRendererFromConfig(cfg, log),
		pipeline.AnalyzerOptions(cfg, provider.Model), log)
	r := analyzer.Run(ctx, pipeline.Request{
		Data:     data,
		Filename: path,
		OnPhase: func(p pipeline.Phase) {
			log.Debug("phase", "phase", p)
		},
	})
	if ctx.Err() != nil {
		fmt.Fprintln(stderr, "Interrupted.")
		return &exitError{code: report.ExitInterrupted}
	}

	if err := printResult(stdout, r, f); err != nil {
		return fail(err)
	}
	if !f.jsonOnly {
		paths, err := report.Save(f.outputDir, path, r, formats)
		if err != nil {
			return fail(err)
		}
		for _, p := range paths {
			fmt.Fprintln(stderr, "Saved", p)
		}
	}

	if code := r.ExitCode(); code != report.ExitClean {
		return &exitError{code: code}
	}
	return nil
}

func printResult(w io.Writer, r *report.AnalysisResult, f analyzeFlags) error {
	switch {
	case f.jsonOnly:
		return report.WriteJSON(w, r)
	case f.quickSummary:
		_, err := fmt.Fprintln(w, report.QuickSummary(r))
		return err
	}
	return report.WriteConsole(w, r, !f.noColors)
}

func fail(err error) error {
	return &exitError{code: report.ExitFailure, err: err}
}
