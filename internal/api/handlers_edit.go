package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/fpang/caption-studio/internal/dedupe"
	"github.com/fpang/caption-studio/internal/export"
	"github.com/fpang/caption-studio/internal/rename"
	"github.com/fpang/caption-studio/internal/tokens"
)

// POST /api/projects/{pid}/prefix
// Body: {"prefix": "sks", "skipExisting": true, "ids": [...]}; no ids means
// every image.
func (s *Server) handlePrefix(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Prefix       string   `json:"prefix"`
		SkipExisting bool     `json:"skipExisting"`
		IDs          []string `json:"ids"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	n, err := s.ws.AddPrefix(r.Context(), r.PathValue("pid"), req.IDs, req.Prefix, req.SkipExisting)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"status":  fmt.Sprintf("Updated %d caption(s)", n),
		"updated": n,
	})
}

// POST /api/projects/{pid}/replace
// Body: {"find": "cat", "replace": "kitten", "ids": [...]}
func (s *Server) handleReplace(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Find    string   `json:"find"`
		Replace string   `json:"replace"`
		IDs     []string `json:"ids"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	n, err := s.ws.SearchReplace(r.Context(), r.PathValue("pid"), req.IDs, req.Find, req.Replace)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"status":  fmt.Sprintf("Updated %d caption(s)", n),
		"updated": n,
	})
}

// GET /api/projects/{pid}/duplicates?strategy=content|name
func (s *Server) handleFindDuplicates(w http.ResponseWriter, r *http.Request) {
	strategy, err := dedupe.ParseStrategy(r.URL.Query().Get("strategy"))
	if err != nil {
		respondError(w, err)
		return
	}
	groups, err := s.ws.FindDuplicates(r.Context(), r.PathValue("pid"), strategy)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"status": dedupe.Describe(groups),
		"groups": groups,
	})
}

// POST /api/projects/{pid}/duplicates/remove
// Body: {"strategy": "content"}
func (s *Server) handleRemoveDuplicates(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Strategy string `json:"strategy"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	strategy, err := dedupe.ParseStrategy(req.Strategy)
	if err != nil {
		respondError(w, err)
		return
	}
	removed, err := s.ws.RemoveDuplicates(r.Context(), r.PathValue("pid"), strategy)
	if err != nil {
		if len(removed) > 0 {
			log.Error().Err(err).Int("removed", len(removed)).Msg("Duplicate removal stopped")
			respondJSON(w, http.StatusBadGateway, map[string]any{
				"error":   fmt.Sprintf("Removal stopped after %d duplicate(s)", len(removed)),
				"removed": removed,
			})
			return
		}
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"status":  dedupe.Summary(removed),
		"removed": removed,
	})
}

// POST /api/projects/{pid}/rename
// Body: {"baseName": "shot", "order": "created|captured|name", "dryRun": true}
func (s *Server) handleRename(w http.ResponseWriter, r *http.Request) {
	var req struct {
		BaseName string `json:"baseName"`
		Order    string `json:"order"`
		DryRun   bool   `json:"dryRun"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	order, err := rename.ParseOrder(req.Order)
	if err != nil {
		respondError(w, err)
		return
	}

	plan, res, err := s.ws.Rename(r.Context(), r.PathValue("pid"), req.BaseName, order, req.DryRun)
	if err != nil {
		var ae *rename.ApplyError
		if errors.As(err, &ae) {
			httpError(w, http.StatusBadGateway,
				fmt.Sprintf("Rename stopped at %d of %d (%s); %d renamed", ae.Position, ae.Total, ae.Name, res.Renamed),
				err.Error())
			return
		}
		respondError(w, err)
		return
	}

	msg := res.Summary()
	if req.DryRun {
		msg = fmt.Sprintf("%d file(s) will be renamed", countChanged(plan))
	}
	respondJSON(w, http.StatusOK, map[string]any{"status": msg, "plan": plan, "result": res})
}

func countChanged(plan []rename.Rename) int {
	n := 0
	for _, r := range plan {
		if r.Changed() {
			n++
		}
	}
	return n
}

// GET /api/projects/{pid}/export?layout=flat|split&compression=deflate|zstd
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := export.Options{Layout: s.opts.ExportLayout}
	if v := q.Get("layout"); v != "" {
		layout, err := export.ParseLayout(v)
		if err != nil {
			respondError(w, err)
			return
		}
		opts.Layout = layout
	}
	compression, err := export.ParseCompression(q.Get("compression"))
	if err != nil {
		respondError(w, err)
		return
	}
	opts.Compression = compression

	pid := r.PathValue("pid")
	zw := &archiveWriter{w: w, filename: export.ArchiveName(pid)}
	sum, err := s.ws.Export(r.Context(), zw, pid, opts)
	if err != nil {
		if !zw.started {
			respondError(w, err)
			return
		}
		// Headers are gone; the client sees a truncated archive.
		log.Error().Err(err).Str("projectId", pid).Msg("Export failed mid-stream")
		return
	}
	log.Info().Str("projectId", pid).Int("images", sum.Images).Int("captions", sum.Captions).Msg("Export sent")
}

// archiveWriter sets the download headers on the first write, so an export
// that fails before producing bytes can still answer with a JSON error.
type archiveWriter struct {
	w        http.ResponseWriter
	filename string
	started  bool
}

func (a *archiveWriter) Write(p []byte) (int, error) {
	if !a.started {
		a.started = true
		a.w.Header().Set("Content-Type", "application/zip")
		a.w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", a.filename))
		a.w.WriteHeader(http.StatusOK)
	}
	return a.w.Write(p)
}

func (s *Server) handleListTokens(w http.ResponseWriter, r *http.Request) {
	values, err := s.ws.Tokens(r.Context(), r.PathValue("pid"))
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"tokens": values})
}

// POST /api/projects/{pid}/tokens
// Body: {"input": "red hat, blue sky"}
func (s *Server) handleAddTokens(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Input string `json:"input"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	added, err := s.ws.AddTokens(r.Context(), r.PathValue("pid"), req.Input)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"status": tokens.AddedSummary(added), "added": added})
}

// DELETE /api/projects/{pid}/tokens?value=red
func (s *Server) handleDeleteToken(w http.ResponseWriter, r *http.Request) {
	if err := s.ws.DeleteToken(r.Context(), r.PathValue("pid"), r.URL.Query().Get("value")); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "Token deleted"})
}
