package api

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dgallion1/deckcheck/internal/parser"
	"github.com/dgallion1/deckcheck/internal/pipeline"
	"github.com/dgallion1/deckcheck/internal/report"
)

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	// Limit total request size.
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes+1024*1024) // extra 1MB for form overhead

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		jsonError(w, "invalid multipart form: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		jsonError(w, "file is required: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer file.Close()

	filename := sanitizeFilename(header.Filename)
	if !parser.IsSupportedExtension(filename) {
		jsonError(w, fmt.Sprintf("unsupported file type: %q", filepath.Ext(filename)), http.StatusBadRequest)
		return
	}

	data, err := io.ReadAll(io.LimitReader(file, s.cfg.MaxUploadBytes+1))
	if err != nil {
		jsonError(w, "failed to read file", http.StatusInternalServerError)
		return
	}
	if int64(len(data)) > s.cfg.MaxUploadBytes {
		jsonError(w, fmt.Sprintf("file exceeds max size (%d bytes)", s.cfg.MaxUploadBytes), http.StatusRequestEntityTooLarge)
		return
	}
	if len(data) == 0 {
		jsonError(w, "file is empty", http.StatusBadRequest)
		return
	}

	job := pipeline.NewJob(uuid.NewString(), filename, data)
	if err := s.orchestrator.Submit(job); err != nil {
		jsonError(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	s.log.Info("analysis queued", "job_id", job.ID, "file", filename, "bytes", len(data))
	writeJSON(w, http.StatusAccepted, map[string]any{
		"job_id":       job.ID,
		"status":       pipeline.StatusQueued,
		"content_hash": job.ContentHash,
		"poll_url":     "/api/analyze/" + job.ID,
		"report_url":   "/api/analyze/" + job.ID + "/report",
	})
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	job := s.orchestrator.GetJob(chi.URLParam(r, "jobID"))
	if job == nil {
		jsonError(w, "job not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, job.Snapshot())
}

// handleJobReport renders the finished result in ?format= (json by default).
func (s *Server) handleJobReport(w http.ResponseWriter, r *http.Request) {
	job := s.orchestrator.GetJob(chi.URLParam(r, "jobID"))
	if job == nil {
		jsonError(w, "job not found", http.StatusNotFound)
		return
	}
	result := job.Result()
	if result == nil {
		jsonError(w, fmt.Sprintf("job is still %s", job.Snapshot().Status), http.StatusConflict)
		return
	}

	format := report.FormatJSON
	if v := r.URL.Query().Get("format"); v != "" {
		f, err := report.ParseFormat(v)
		if err != nil {
			jsonError(w, err.Error(), http.StatusBadRequest)
			return
		}
		format = f
	}

	var buf bytes.Buffer
	if err := report.Write(&buf, result, format); err != nil {
		s.log.Error("render report failed", "job_id", job.ID, "format", format, "error", err)
		jsonError(w, "failed to render report", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", format.ContentType())
	if format == report.FormatDOCX {
		stem := strings.TrimSuffix(job.Filename, filepath.Ext(job.Filename))
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", stem+"_analysis.docx"))
	}
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

func sanitizeFilename(name string) string {
	// Browsers may send Windows paths; keep only the base name.
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	name = strings.ReplaceAll(name, "..", "_")
	if name == "" || name == "." || name == "/" {
		name = "unnamed"
	}
	return name
}
