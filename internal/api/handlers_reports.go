package api

import (
	"errors"
	"net/http"
	"regexp"

	"github.com/go-chi/chi/v5"

	"github.com/dgallion1/deckcheck/internal/pathstore"
)

var hashPattern = regexp.MustCompile(`^[0-9a-f]{64}$`)

// archiveHash validates the {hash} parameter and the archive's presence.
func (s *Server) archiveHash(w http.ResponseWriter, r *http.Request) (string, bool) {
	if s.archive == nil {
		jsonError(w, "report archive is not configured", http.StatusServiceUnavailable)
		return "", false
	}
	hash := chi.URLParam(r, "hash")
	if !hashPattern.MatchString(hash) {
		jsonError(w, "hash must be a hex SHA-256 content hash", http.StatusBadRequest)
		return "", false
	}
	return hash, true
}

// handleListRuns lists the archived runs of one deck, newest first.
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	hash, ok := s.archiveHash(w, r)
	if !ok {
		return
	}
	runs, err := s.archive.Runs(r.Context(), hash)
	if err != nil {
		jsonError(w, "failed to list runs: "+err.Error(), http.StatusBadGateway)
		return
	}
	if runs == nil {
		runs = []pathstore.Node{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"content_hash": hash, "runs": runs})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	hash, ok := s.archiveHash(w, r)
	if !ok {
		return
	}
	node, err := s.archive.Run(r.Context(), hash, chi.URLParam(r, "runID"))
	switch {
	case errors.Is(err, pathstore.ErrNotFound):
		jsonError(w, "run not found", http.StatusNotFound)
		return
	case err != nil:
		jsonError(w, "failed to read run: "+err.Error(), http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, node)
}

// handleForgetRuns deletes every archived run of one deck.
func (s *Server) handleForgetRuns(w http.ResponseWriter, r *http.Request) {
	hash, ok := s.archiveHash(w, r)
	if !ok {
		return
	}
	if err := s.archive.Forget(r.Context(), hash); err != nil {
		jsonError(w, "failed to delete runs: "+err.Error(), http.StatusBadGateway)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
