package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-chi/chi/v5"

	"github.com/screenhire/screener/internal/config"
	"github.com/screenhire/screener/internal/domain"
	"github.com/screenhire/screener/internal/usecase"
)

// Server aggregates handler dependencies.
type Server struct {
	Cfg         config.Config
	Uploads     usecase.UploadService
	Evaluate    usecase.EvaluateService
	Results     usecase.ResultService
	DBCheck     func(ctx context.Context) error
	QdrantCheck func(ctx context.Context) error
}

// NewServer constructs a Server with all handlers and readiness checks wired.
func NewServer(cfg config.Config, uploads usecase.UploadService, eval usecase.EvaluateService, results usecase.ResultService, dbCheck, qdrantCheck func(context.Context) error) *Server {
	return &Server{
		Cfg:         cfg,
		Uploads:     uploads,
		Evaluate:    eval,
		Results:     results,
		DBCheck:     dbCheck,
		QdrantCheck: qdrantCheck,
	}
}

func allowedExt(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf", ".txt", ".md":
		return true
	}
	return false
}

// allowedMIMEFor checks the sniffed content type against the upload allowlist.
// Text files tolerate any text/* detection since sniffers misclassify rich text.
func allowedMIMEFor(m, filename string) bool {
	m = strings.ToLower(m)
	if strings.HasPrefix(m, "text/") {
		return true
	}
	ext := strings.ToLower(filepath.Ext(filename))
	return m == "application/pdf" && ext == ".pdf"
}

// UploadHandler accepts a multipart form with cv and project files, extracts
// their text and returns the stored document ids.
func (s *Server) UploadHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.Header.Get("Content-Type"), "multipart/form-data") {
			writeError(w, r, fmt.Errorf("%w: content-type must be multipart/form-data", domain.ErrInvalidArgument), nil)
			return
		}
		maxBytes := s.Cfg.MaxUploadMB * 1024 * 1024
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes*2)
		if err := r.ParseMultipartForm(maxBytes * 2); err != nil {
			if strings.Contains(strings.ToLower(err.Error()), "too large") {
				writeJSON(w, http.StatusRequestEntityTooLarge, errorEnvelope{Error: apiError{
					Code:    "INVALID_ARGUMENT",
					Message: "payload too large",
					Details: map[string]any{"max_mb": s.Cfg.MaxUploadMB},
				}})
				return
			}
			writeError(w, r, fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err), nil)
			return
		}

		cv, err := s.readUpload(r, "cv")
		if err != nil {
			writeError(w, r, err, map[string]string{"field": "cv"})
			return
		}
		project, err := s.readUpload(r, "project")
		if err != nil {
			writeError(w, r, err, map[string]string{"field": "project"})
			return
		}

		cvID, projectID, err := s.Uploads.Ingest(r.Context(), cv, project)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"cv_id": cvID, "project_id": projectID})
	}
}

func (s *Server) readUpload(r *http.Request, field string) (usecase.UploadedFile, error) {
	file, header, err := r.FormFile(field)
	if err != nil {
		return usecase.UploadedFile{}, fmt.Errorf("%w: %s file required", domain.ErrInvalidArgument, field)
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(file)
	if err != nil {
		return usecase.UploadedFile{}, fmt.Errorf("%w: %s read: %v", domain.ErrInvalidArgument, field, err)
	}
	if !allowedExt(header.Filename) {
		return usecase.UploadedFile{}, fmt.Errorf("%w: unsupported extension for %s: %s", domain.ErrInvalidArgument, field, header.Filename)
	}
	mt := mimetype.Detect(data)
	if !allowedMIMEFor(mt.String(), header.Filename) {
		return usecase.UploadedFile{}, fmt.Errorf("%w: unsupported media type for %s: %s", domain.ErrInvalidArgument, field, mt.String())
	}
	return usecase.UploadedFile{Filename: header.Filename, MIME: mt.String(), Data: data}, nil
}

// EvaluateHandler creates a queued job from the two document ids.
func (s *Server) EvaluateHandler() http.HandlerFunc {
	type request struct {
		CVID      string `json:"cv_id"`
		ProjectID string `json:"project_id"`
		JobTitle  string `json:"job_title"`
		VacancyID string `json:"vacancy_id"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, r, fmt.Errorf("%w: invalid json", domain.ErrInvalidArgument), nil)
			return
		}

		jobID, err := s.Evaluate.Enqueue(r.Context(), usecase.EvaluateInput{
			CVID:      req.CVID,
			ProjectID: req.ProjectID,
			JobTitle:  req.JobTitle,
			VacancyID: req.VacancyID,
			IdemKey:   r.Header.Get("Idempotency-Key"),
		})
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"id": jobID, "status": string(domain.JobQueued)})
	}
}

// ResultHandler returns the job envelope, honoring If-None-Match.
func (s *Server) ResultHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if id == "" {
			writeError(w, r, fmt.Errorf("%w: id missing", domain.ErrInvalidArgument), nil)
			return
		}
		status, body, etag, err := s.Results.Fetch(r.Context(), id, r.Header.Get("If-None-Match"))
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		w.Header().Set("ETag", etag)
		if status == http.StatusNotModified {
			w.WriteHeader(status)
			return
		}
		writeJSON(w, status, body)
	}
}

// HealthzHandler reports process liveness.
func HealthzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// ReadyzHandler probes the database and the vector index.
func (s *Server) ReadyzHandler() http.HandlerFunc {
	type check struct {
		Name    string `json:"name"`
		OK      bool   `json:"ok"`
		Details string `json:"details,omitempty"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		checks := make([]check, 0, 2)
		run := func(name string, probe func(context.Context) error) {
			if probe == nil {
				return
			}
			if err := probe(ctx); err != nil {
				checks = append(checks, check{Name: name, OK: false, Details: err.Error()})
				return
			}
			checks = append(checks, check{Name: name, OK: true})
		}
		run("db", s.DBCheck)
		run("qdrant", s.QdrantCheck)

		status := http.StatusOK
		for _, c := range checks {
			if !c.OK {
				status = http.StatusServiceUnavailable
				break
			}
		}
		writeJSON(w, status, map[string]any{"checks": checks})
	}
}
