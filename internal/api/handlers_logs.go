package api

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"breakout-trader/internal/logger"
)

const defaultTailLines = 500

// logPath resolves ?file= against the log directory, defaulting to the
// active file and rejecting traversal. ok=false means a response was
// already written.
func (s *Server) logPath(w http.ResponseWriter, name string) (string, string, bool) {
	if s.cfg.LogDir == "" {
		fail(w, http.StatusNotFound, "log directory not configured")
		return "", "", false
	}
	if name == "" {
		name = logger.FileName
	}
	path, err := logger.Path(s.cfg.LogDir, name)
	if err != nil {
		fail(w, http.StatusBadRequest, err.Error())
		return "", "", false
	}
	if _, err := os.Stat(path); err != nil {
		fail(w, http.StatusNotFound, "log file not found")
		return "", "", false
	}
	return path, name, true
}

// handleLogs tails a log file with optional level and search filters.
// Query params: file, lines (default 500), level, search.
func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	q := r.URL.Query()
	path, name, ok := s.logPath(w, q.Get("file"))
	if !ok {
		return
	}

	limit := defaultTailLines
	if v := q.Get("lines"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			fail(w, http.StatusBadRequest, "lines must be a positive integer")
			return
		}
		limit = n
	}

	lines, err := logger.Tail(path, limit, q.Get("level"), q.Get("search"))
	if err != nil {
		failErr(w, err)
		return
	}
	if lines == nil {
		lines = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":   true,
		"logs":      lines,
		"total":     len(lines),
		"file":      name,
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

func (s *Server) handleLogFiles(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	files, err := logger.Files(s.cfg.LogDir)
	if err != nil {
		// Missing directory just means nothing has been logged yet.
		files = nil
	}
	if files == nil {
		files = []logger.FileInfo{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"files":   files,
		"count":   len(files),
	})
}

func (s *Server) handleLogDownload(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	path, name, ok := s.logPath(w, r.URL.Query().Get("file"))
	if !ok {
		return
	}
	stamp := time.Now().Format("20060102_150405")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf(`attachment; filename="%s_%s.log"`, name, stamp))
	http.ServeFile(w, r, path)
}

func (s *Server) handleLogStats(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	path, name, ok := s.logPath(w, r.URL.Query().Get("file"))
	if !ok {
		return
	}
	stats, err := logger.Stats(path)
	if err != nil {
		failErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"file":     name,
		"total":    stats.Total,
		"by_level": stats.ByLevel,
	})
}

func (s *Server) handleLogClear(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	var req struct {
		File string `json:"file"`
	}
	// Body is optional; default is the active log file.
	_ = json.NewDecoder(r.Body).Decode(&req)

	path, name, ok := s.logPath(w, req.File)
	if !ok {
		return
	}
	if err := logger.Clear(path); err != nil {
		failErr(w, err)
		return
	}
	log.Printf("[api] log file %s cleared", name)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": fmt.Sprintf("Log file %s cleared successfully", name),
	})
}
