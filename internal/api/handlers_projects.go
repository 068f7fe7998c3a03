package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/fpang/caption-studio/internal/ingest"
)

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	ps, err := s.ws.ListProjects(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"projects": ps})
}

// POST /api/projects
// Body: {"name": "Cats"}
func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	p, err := s.ws.CreateProject(r.Context(), req.Name)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]any{
		"status":  fmt.Sprintf("Created project %s", p.Name),
		"project": p,
	})
}

func (s *Server) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	if err := s.ws.DeleteProject(r.Context(), r.PathValue("pid")); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "Project deleted"})
}

func (s *Server) handleListImages(w http.ResponseWriter, r *http.Request) {
	recs, err := s.ws.Images(r.Context(), r.PathValue("pid"))
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"images": recs})
}

// POST /api/projects/{pid}/upload
// Multipart form with one or more "files" parts: images and .txt captions.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(s.opts.UploadMemory); err != nil {
		httpError(w, http.StatusBadRequest, "invalid multipart form", err.Error())
		return
	}
	defer r.MultipartForm.RemoveAll()

	headers := r.MultipartForm.File["files"]
	batch := make([]ingest.UploadItem, 0, len(headers))
	for _, fh := range headers {
		batch = append(batch, ingest.FromMultipart(fh))
	}

	res, err := s.ws.Upload(r.Context(), r.PathValue("pid"), batch)
	if err != nil {
		var be *ingest.BatchError
		if errors.As(err, &be) && res != nil {
			log.Error().Err(err).Int("created", len(res.Created)).Msg("Upload stopped")
			respondJSON(w, http.StatusBadGateway, map[string]any{
				"error":  fmt.Sprintf("Upload stopped at item %d (%s)", be.Index+1, be.Filename),
				"result": res,
			})
			return
		}
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"status": res.Summary(), "result": res})
}

func (s *Server) handlePending(w http.ResponseWriter, r *http.Request) {
	pending, err := s.ws.Pending(r.Context(), r.PathValue("pid"))
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"pending": pending})
}

func (s *Server) handleClearPending(w http.ResponseWriter, r *http.Request) {
	n, err := s.ws.ClearPending(r.Context(), r.PathValue("pid"))
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"status":  fmt.Sprintf("Cleared %d pending caption(s)", n),
		"cleared": n,
	})
}
