package cmd

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/tidal-downloader/tidal/internal/core"
	"github.com/tidal-downloader/tidal/internal/download"
	"github.com/tidal-downloader/tidal/internal/engine/types"
	"github.com/tidal-downloader/tidal/internal/utils"
)

const maxRequestBody = 1 << 20

// DownloadRequest is the body of POST /download.
type DownloadRequest = core.AddRequest

// apiServer serves the daemon's HTTP API on top of a DownloadService.
type apiServer struct {
	service core.DownloadService
	stream  http.Handler
	port    int
	// downloadDir reports the directory /health measures free space on.
	downloadDir func() string
}

// newAPIHandler builds the API mux. stream serves /ws and may be nil.
func newAPIHandler(service core.DownloadService, stream http.Handler, port int, downloadDir func() string) http.Handler {
	s := &apiServer{service: service, stream: stream, port: port, downloadDir: downloadDir}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/download", s.handleDownload)
	mux.HandleFunc("/pause", s.handlePause)
	mux.HandleFunc("/resume", s.handleResume)
	mux.HandleFunc("/delete", s.handleDelete)
	mux.HandleFunc("/list", s.handleList)
	mux.HandleFunc("/history", s.handleHistory)
	if stream != nil {
		mux.Handle("/ws", stream)
	}
	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		utils.Debug("Error encoding response: %v", err)
	}
}

// writeServiceError maps engine errors onto HTTP status codes.
func writeServiceError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, download.ErrInvalidArgument):
		code = http.StatusBadRequest
	case errors.Is(err, download.ErrNotFound), core.IsNotFound(err):
		code = http.StatusNotFound
	}
	http.Error(w, err.Error(), code)
}

func requireMethod(w http.ResponseWriter, r *http.Request, methods ...string) bool {
	for _, m := range methods {
		if r.Method == m {
			return true
		}
	}
	http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	return false
}

func requireID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := r.URL.Query().Get("id")
	if id == "" {
		http.Error(w, "Missing id parameter", http.StatusBadRequest)
		return "", false
	}
	return id, true
}

func (s *apiServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"status":  "ok",
		"port":    s.port,
		"version": Version,
	}
	if s.downloadDir != nil {
		if dir := s.downloadDir(); dir != "" {
			if usage, err := utils.DiskUsage(dir); err == nil {
				resp["disk"] = usage
			} else {
				utils.Debug("Disk usage of %s: %v", dir, err)
			}
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *apiServer) handleDownload(w http.ResponseWriter, r *http.Request) {
	// GET request to query status
	if r.Method == http.MethodGet {
		id, ok := requireID(w, r)
		if !ok {
			return
		}
		status, err := s.service.GetStatus(id)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, status)
		return
	}

	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	var req DownloadRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}

	if strings.TrimSpace(req.URL) == "" {
		http.Error(w, "URL is required", http.StatusBadRequest)
		return
	}
	if strings.Contains(req.Path, "..") || strings.Contains(req.Filename, "..") {
		http.Error(w, "Invalid path", http.StatusBadRequest)
		return
	}
	if strings.ContainsAny(req.Filename, `/\`) {
		http.Error(w, "Invalid filename", http.StatusBadRequest)
		return
	}

	utils.Debug("Received download request: URL=%s, Path=%s", req.URL, req.Path)

	id, err := s.service.Add(req.URL, req.Path, req.Filename, req.Segments)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "queued",
		"message": "Download queued successfully",
		"id":      id,
	})
}

func (s *apiServer) handlePause(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	id, ok := requireID(w, r)
	if !ok {
		return
	}
	if err := s.service.Pause(id); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "paused", "id": id})
}

func (s *apiServer) handleResume(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	id, ok := requireID(w, r)
	if !ok {
		return
	}
	if err := s.service.Resume(id); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "resumed", "id": id})
}

// handleDelete removes a task. discard=true also deletes its partial file.
func (s *apiServer) handleDelete(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodDelete, http.MethodPost) {
		return
	}
	id, ok := requireID(w, r)
	if !ok {
		return
	}
	discard, _ := strconv.ParseBool(r.URL.Query().Get("discard"))
	if err := s.service.Delete(id, discard); err != nil {
		writeServiceError(w, err)
		return
	}
	status := "deleted"
	if discard {
		status = "discarded"
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": status, "id": id})
}

func (s *apiServer) handleList(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	statuses, err := s.service.List()
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if statuses == nil {
		statuses = []types.DownloadStatus{}
	}
	writeJSON(w, http.StatusOK, statuses)
}

func (s *apiServer) handleHistory(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	entries, err := s.service.History()
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if entries == nil {
		entries = []types.HistoryEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Set CORS headers
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")

		// Handle preflight requests
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
