package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Save writes r in each format to dir as <stem>_analysis<ext> and returns
// the written paths. Console and summary formats are not saved.
func Save(dir, source string, r *AnalysisResult, formats []Format) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	base := filepath.Base(source)
	stem := strings.TrimSuffix(base, filepath.Ext(base))

	var paths []string
	for _, f := range formats {
		if f == FormatConsole || f == FormatSummary {
			continue
		}
		path := filepath.Join(dir, stem+"_analysis"+f.Extension())
		if err := saveOne(path, r, f); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// saveOne writes through a temp file so a failed render never leaves a
// truncated report behind.
func saveOne(path string, r *AnalysisResult, f Format) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".deckcheck-*")
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer os.Remove(tmp.Name())

	if err := Write(tmp, r, f); err != nil {
		tmp.Close()
		return fmt.Errorf("render %s: %w", f, err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	return nil
}
