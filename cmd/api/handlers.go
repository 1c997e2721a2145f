package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/WessleyAI/nlq-engine/engine/domain"
	"github.com/WessleyAI/nlq-engine/engine/ingest"
	"github.com/WessleyAI/nlq-engine/engine/schema"
	"github.com/WessleyAI/nlq-engine/internal/wire"
)

const defaultHistoryLimit = 50

type server struct {
	app *wire.App
	log *slog.Logger
}

func newServer(app *wire.App, log *slog.Logger) *server {
	if log == nil {
		log = slog.Default()
	}
	return &server{app: app, log: log}
}

func (s *server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("POST /api/connect-database", s.handleConnectDatabase)
	mux.HandleFunc("POST /api/initialize-engine", s.handleInitializeEngine)
	mux.HandleFunc("POST /api/upload-documents", s.handleUpload)
	mux.HandleFunc("GET /api/ingestion-status/{job_id}", s.handleIngestionStatus)
	mux.HandleFunc("POST /api/query", s.handleQuery)
	mux.HandleFunc("GET /api/query/history", s.handleHistory)
	mux.HandleFunc("GET /api/schema", s.handleSchema)
	mux.Handle("GET /metrics", s.app.Metrics.Handler())
	return mux
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

type connectRequest struct {
	ConnectionString string `json:"connection_string"`
}

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// connectError maps a connection failure to its status and message.
func connectError(err error) (int, string) {
	var ve *domain.ValidationError
	if errors.As(err, &ve) {
		return http.StatusBadRequest, "Connection string is required."
	}
	return http.StatusInternalServerError, err.Error()
}

// --- Handlers ---

func (s *server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "NLQ engine API is running."})
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	_, schemaErr := s.app.Engine.CurrentSchema()
	chunks, err := s.app.Index.Count(r.Context())
	if err != nil {
		s.log.Warn("health: count index", "err", err)
		chunks = -1
	}
	active := 0
	for _, j := range s.app.Pipeline.Jobs().List() {
		if !j.Status.Done() {
			active++
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":             "ok",
		"database_connected": schemaErr == nil,
		"indexed_chunks":     chunks,
		"ingestions_running": active,
		"cache":              s.app.Engine.CacheStats(),
	})
}

func (s *server) handleConnectDatabase(w http.ResponseWriter, r *http.Request) {
	var req connectRequest
	if err := decode(r, &req); err != nil {
		writeDetail(w, http.StatusBadRequest, err.Error())
		return
	}
	sch, err := schema.Describe(r.Context(), req.ConnectionString)
	if err != nil {
		s.log.Warn("connect-database failed", "err", err)
		status, msg := connectError(err)
		writeDetail(w, status, msg)
		return
	}
	writeJSON(w, http.StatusOK, sch)
}

func (s *server) handleInitializeEngine(w http.ResponseWriter, r *http.Request) {
	var req connectRequest
	if err := decode(r, &req); err != nil {
		writeDetail(w, http.StatusBadRequest, err.Error())
		return
	}
	if _, err := s.app.Engine.Connect(r.Context(), req.ConnectionString); err != nil {
		s.log.Warn("initialize-engine failed", "err", err)
		status, msg := connectError(err)
		if status == http.StatusInternalServerError {
			msg = "Failed to initialize query engine: " + msg
		}
		writeDetail(w, status, msg)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Query engine initialized successfully."})
}

func (s *server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid multipart upload: "+err.Error())
		return
	}
	defer r.MultipartForm.RemoveAll()
	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		writeDetail(w, http.StatusBadRequest, "At least one file is required.")
		return
	}

	jobID := ingest.NewJobID()
	dir := filepath.Join(s.app.Config.Server.UploadDir, jobID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		s.log.Error("upload: create dir", "err", err)
		writeDetail(w, http.StatusInternalServerError, "could not store upload")
		return
	}

	paths := make([]string, 0, len(files))
	for _, fh := range files {
		path, err := saveUpload(dir, fh)
		if err != nil {
			s.log.Warn("upload: save file", "file", fh.Filename, "err", err)
			writeDetail(w, http.StatusBadRequest, err.Error())
			return
		}
		paths = append(paths, path)
	}

	if err := s.app.Pipeline.Start(r.Context(), jobID, paths); err != nil {
		s.log.Error("upload: start ingestion", "job_id", jobID, "err", err)
		writeDetail(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Upload successful, processing started.",
		"job_id":  jobID,
	})
}

// saveUpload copies fh into dir under its base name. A name already taken in
// dir gets a numeric suffix, so repeated names in one upload are all kept.
func saveUpload(dir string, fh *multipart.FileHeader) (string, error) {
	name := filepath.Base(fh.Filename)
	if name == "." || name == ".." || name == string(filepath.Separator) {
		return "", fmt.Errorf("invalid file name %q", fh.Filename)
	}
	src, err := fh.Open()
	if err != nil {
		return "", err
	}
	defer src.Close()

	path, dst, err := createUnique(dir, name)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return "", err
	}
	return path, dst.Close()
}

// createUnique creates name in dir, falling back to stem-1.ext, stem-2.ext and
// so on when the name exists.
func createUnique(dir, name string) (string, *os.File, error) {
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for i := 0; ; i++ {
		candidate := name
		if i > 0 {
			candidate = fmt.Sprintf("%s-%d%s", stem, i, ext)
		}
		path := filepath.Join(dir, candidate)
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		return path, f, err
	}
}

func (s *server) handleIngestionStatus(w http.ResponseWriter, r *http.Request) {
	job, err := s.app.Pipeline.Jobs().Get(r.PathValue("job_id"))
	if errors.Is(err, domain.ErrJobNotFound) {
		writeDetail(w, http.StatusNotFound, "Job ID not found.")
		return
	}
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, job)
}

type queryRequest struct {
	Query string `json:"query"`
}

func (s *server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := decode(r, &req); err != nil {
		writeDetail(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeDetail(w, http.StatusBadRequest, "Query cannot be empty.")
		return
	}
	writeJSON(w, http.StatusOK, s.app.Engine.Process(r.Context(), req.Query))
}

func (s *server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeDetail(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	entries, err := s.app.Engine.History(r.Context(), limit)
	if err != nil {
		s.log.Error("history: recent", "err", err)
		writeDetail(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": entries})
}

func (s *server) handleSchema(w http.ResponseWriter, _ *http.Request) {
	sch, err := s.app.Engine.CurrentSchema()
	if err != nil {
		writeDetail(w, http.StatusNotFound, "Schema not found or failed to load.")
		return
	}
	writeJSON(w, http.StatusOK, sch)
}
