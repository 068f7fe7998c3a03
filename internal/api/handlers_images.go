package api

import (
	"io"
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"
)

// PUT /api/projects/{pid}/images/{iid}/caption
// Body: {"caption": "text", "immediate": false}
// Without immediate the write is debounced.
func (s *Server) handleSetCaption(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Caption   string `json:"caption"`
		Immediate bool   `json:"immediate"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	immediate := req.Immediate || s.opts.ImmediateCaptions
	if err := s.ws.SetCaption(r.Context(), r.PathValue("pid"), r.PathValue("iid"), req.Caption, immediate); err != nil {
		respondError(w, err)
		return
	}
	msg := "Saving…"
	if immediate {
		msg = "Saved"
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": msg})
}

// POST /api/projects/{pid}/images/{iid}/token
// Body: {"token": "red hat"}
func (s *Server) handleInsertToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string `json:"token"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	recs, err := s.ws.InsertToken(r.Context(), r.PathValue("pid"), []string{r.PathValue("iid")}, req.Token)
	if err != nil {
		respondError(w, err)
		return
	}
	if len(recs) == 0 {
		httpError(w, http.StatusNotFound, "Image not found")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"status": "Token inserted", "image": recs[0]})
}

// GET /api/projects/{pid}/images/{iid}/content
// Redirects to a presigned URL when the blob store can issue one, otherwise
// streams the bytes.
func (s *Server) handleImageContent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	pid, iid := r.PathValue("pid"), r.PathValue("iid")

	url, ok, err := s.ws.ImageURL(ctx, pid, iid)
	if err != nil {
		respondError(w, err)
		return
	}
	if ok {
		http.Redirect(w, r, url, http.StatusFound)
		return
	}

	rec, rc, err := s.ws.OpenImage(ctx, pid, iid)
	if err != nil {
		respondError(w, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", rec.MIMEType)
	if rec.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(rec.Size, 10))
	}
	w.Header().Set("Cache-Control", "private, max-age=300")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	if _, err := io.Copy(w, rc); err != nil {
		log.Warn().Err(err).Str("imageId", iid).Msg("Image stream interrupted")
	}
}

func (s *Server) handleDeleteImage(w http.ResponseWriter, r *http.Request) {
	if err := s.ws.DeleteImage(r.Context(), r.PathValue("pid"), r.PathValue("iid")); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "Image deleted"})
}

func (s *Server) handleFlushCaptions(w http.ResponseWriter, r *http.Request) {
	if err := s.ws.FlushCaptions(r.Context()); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "Saved"})
}
