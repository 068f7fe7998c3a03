// Package api serves the caption-studio JSON API over a Workspace. The same
// handler runs behind API Gateway (via the Lambda adapter) and in the local
// web server.
//
// Security:
//   - Origin-verify middleware blocks direct API Gateway access when a
//     secret is configured (CloudFront injects the header)
//   - Project and image IDs must be UUIDs
//   - Internal error details are logged, never returned
//
// Endpoints:
//
//	GET    /api/health
//	GET    /api/projects                          list projects
//	POST   /api/projects                          create {"name"}
//	DELETE /api/projects/{pid}                    delete project and all its files
//	GET    /api/projects/{pid}/images             list image records
//	POST   /api/projects/{pid}/upload             multipart "files" (images and .txt captions)
//	GET    /api/projects/{pid}/pending            captions waiting for their image
//	DELETE /api/projects/{pid}/pending            drop waiting captions
//	PUT    /api/projects/{pid}/images/{iid}/caption   {"caption", "immediate"}
//	POST   /api/projects/{pid}/images/{iid}/token     {"token"}
//	GET    /api/projects/{pid}/images/{iid}/content   image bytes or redirect to a presigned URL
//	DELETE /api/projects/{pid}/images/{iid}
//	POST   /api/projects/{pid}/captions/flush     write debounced caption edits now
//	POST   /api/projects/{pid}/prefix             {"prefix", "skipExisting", "ids"}
//	POST   /api/projects/{pid}/replace            {"find", "replace", "ids"}
//	GET    /api/projects/{pid}/duplicates         ?strategy=content|name
//	POST   /api/projects/{pid}/duplicates/remove  {"strategy"}
//	POST   /api/projects/{pid}/rename             {"baseName", "order", "dryRun"}
//	GET    /api/projects/{pid}/export             ?layout=flat|split&compression=deflate|zstd
//	GET    /api/projects/{pid}/tokens
//	POST   /api/projects/{pid}/tokens             {"input"}
//	DELETE /api/projects/{pid}/tokens             ?value=
package api

import (
	"net/http"

	"github.com/fpang/caption-studio/internal/export"
	"github.com/fpang/caption-studio/internal/workspace"
)

// defaultUploadMemory is the multipart form size kept in memory; larger
// parts spill to temporary files.
const defaultUploadMemory = 32 << 20

// Options configures New.
type Options struct {
	// OriginVerifySecret, when set, must match the x-origin-verify header.
	OriginVerifySecret string

	// ExportLayout is used when an export request has no layout parameter.
	ExportLayout export.Layout

	// ImmediateCaptions writes every caption edit synchronously instead of
	// debouncing it. Required where the process may freeze between requests.
	ImmediateCaptions bool

	// LocalCORS allows browser requests from localhost origins.
	LocalCORS bool

	// UploadMemory bounds the in-memory part of a multipart upload.
	UploadMemory int64
}

// Server holds the handler state.
type Server struct {
	ws   *workspace.Workspace
	opts Options
}

// New returns the API handler with all middleware applied.
func New(ws *workspace.Workspace, opts Options) http.Handler {
	if opts.UploadMemory <= 0 {
		opts.UploadMemory = defaultUploadMemory
	}
	s := &Server{ws: ws, opts: opts}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", s.handleHealth)

	mux.HandleFunc("GET /api/projects", s.handleListProjects)
	mux.HandleFunc("POST /api/projects", s.handleCreateProject)
	mux.HandleFunc("DELETE /api/projects/{pid}", s.withProject(s.handleDeleteProject))

	mux.HandleFunc("GET /api/projects/{pid}/images", s.withProject(s.handleListImages))
	mux.HandleFunc("POST /api/projects/{pid}/upload", s.withProject(s.handleUpload))
	mux.HandleFunc("GET /api/projects/{pid}/pending", s.withProject(s.handlePending))
	mux.HandleFunc("DELETE /api/projects/{pid}/pending", s.withProject(s.handleClearPending))
	mux.HandleFunc("PUT /api/projects/{pid}/images/{iid}/caption", s.withImage(s.handleSetCaption))
	mux.HandleFunc("POST /api/projects/{pid}/images/{iid}/token", s.withImage(s.handleInsertToken))
	mux.HandleFunc("GET /api/projects/{pid}/images/{iid}/content", s.withImage(s.handleImageContent))
	mux.HandleFunc("DELETE /api/projects/{pid}/images/{iid}", s.withImage(s.handleDeleteImage))

	mux.HandleFunc("POST /api/projects/{pid}/captions/flush", s.withProject(s.handleFlushCaptions))
	mux.HandleFunc("POST /api/projects/{pid}/prefix", s.withProject(s.handlePrefix))
	mux.HandleFunc("POST /api/projects/{pid}/replace", s.withProject(s.handleReplace))
	mux.HandleFunc("GET /api/projects/{pid}/duplicates", s.withProject(s.handleFindDuplicates))
	mux.HandleFunc("POST /api/projects/{pid}/duplicates/remove", s.withProject(s.handleRemoveDuplicates))
	mux.HandleFunc("POST /api/projects/{pid}/rename", s.withProject(s.handleRename))
	mux.HandleFunc("GET /api/projects/{pid}/export", s.withProject(s.handleExport))

	mux.HandleFunc("GET /api/projects/{pid}/tokens", s.withProject(s.handleListTokens))
	mux.HandleFunc("POST /api/projects/{pid}/tokens", s.withProject(s.handleAddTokens))
	mux.HandleFunc("DELETE /api/projects/{pid}/tokens", s.withProject(s.handleDeleteToken))

	var h http.Handler = mux
	h = s.withOriginVerify(h)
	if opts.LocalCORS {
		h = withCORS(h)
	}
	return withMetrics(withLogging(h))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": "caption-studio",
	})
}
