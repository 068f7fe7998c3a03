package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"

	"github.com/rs/zerolog/log"

	"github.com/fpang/caption-studio/internal/status"
)

// maxJSONBody bounds JSON request bodies.
const maxJSONBody = 1 << 20

// uuidRegex matches UUID v4 format: 8-4-4-4-12 lowercase hex with dashes.
var uuidRegex = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

func validateID(kind, id string) error {
	if !uuidRegex.MatchString(id) {
		return fmt.Errorf("invalid %s id: must be a UUID", kind)
	}
	return nil
}

// withProject validates the {pid} path value before calling next.
func (s *Server) withProject(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := validateID("project", r.PathValue("pid")); err != nil {
			httpError(w, http.StatusBadRequest, err.Error())
			return
		}
		next(w, r)
	}
}

// withImage validates both {pid} and {iid}.
func (s *Server) withImage(next http.HandlerFunc) http.HandlerFunc {
	return s.withProject(func(w http.ResponseWriter, r *http.Request) {
		if err := validateID("image", r.PathValue("iid")); err != nil {
			httpError(w, http.StatusBadRequest, err.Error())
			return
		}
		next(w, r)
	})
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Warn().Err(err).Msg("Failed to encode JSON response")
	}
}

// httpError sends a JSON error response. The clientMsg is returned to the caller.
// Optional internalDetails are logged server-side but never sent to the client.
func httpError(w http.ResponseWriter, status int, clientMsg string, internalDetails ...string) {
	if len(internalDetails) > 0 {
		log.Error().
			Int("status", status).
			Str("clientMsg", clientMsg).
			Strs("internalDetails", internalDetails).
			Msg("HTTP error with internal details")
	}
	respondJSON(w, status, map[string]string{"error": clientMsg})
}

// respondError maps a workspace error to a response by its status kind.
// NoOp outcomes are successes carrying the message as the status line.
func respondError(w http.ResponseWriter, err error) {
	switch status.KindOf(err) {
	case status.NoOp:
		respondJSON(w, http.StatusOK, map[string]string{"status": status.Message(err)})
	case status.UserInput:
		httpError(w, http.StatusBadRequest, status.Message(err))
	case status.NotFound:
		httpError(w, http.StatusNotFound, status.Message(err))
	case status.KindIO:
		httpError(w, http.StatusBadGateway, clientIOMessage(err), err.Error())
	default:
		httpError(w, http.StatusInternalServerError, "internal error", err.Error())
	}
}

// clientIOMessage is the text shown for a storage failure. Only the
// operation is revealed; keys and bucket names stay in the server log.
func clientIOMessage(err error) string {
	var se *status.Error
	if errors.As(err, &se) && se.Op != "" {
		return fmt.Sprintf("storage error during %s", se.Op)
	}
	return "storage error"
}

// decodeJSON reads a bounded JSON body into v. An empty body leaves v as is.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody)).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}
	httpError(w, http.StatusBadRequest, "invalid JSON body")
	return false
}
