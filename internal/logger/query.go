package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// FileInfo describes one log file in the log directory.
type FileInfo struct {
	Name     string    `json:"name"`
	SizeKB   float64   `json:"size_kb"`
	Modified time.Time `json:"modified"`
}

// LevelStats summarises a log file by severity.
type LevelStats struct {
	Total   int            `json:"total"`
	ByLevel map[string]int `json:"by_level"`
}

var levelTokens = []string{"DEBUG", "INFO", "WARN", "ERROR"}

// Files lists log files in dir, newest first.
func Files(dir string) ([]FileInfo, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read log dir: %w", err)
	}
	var out []FileInfo
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), FileName) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, FileInfo{
			Name:     e.Name(),
			SizeKB:   float64(info.Size()) / 1024,
			Modified: info.ModTime(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Modified.After(out[j].Modified) })
	return out, nil
}

// Tail returns up to limit lines from the end of path. level filters on the
// severity token ("" matches all lines); search is a case-insensitive
// substring filter.
func Tail(path string, limit int, level, search string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read log file: %w", err)
	}
	lines := splitLines(string(data))
	level = strings.ToUpper(strings.TrimSpace(level))
	search = strings.ToLower(strings.TrimSpace(search))

	var matched []string
	for _, ln := range lines {
		if level != "" && levelOf(ln) != level {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(ln), search) {
			continue
		}
		matched = append(matched, ln)
	}
	if limit > 0 && len(matched) > limit {
		matched = matched[len(matched)-limit:]
	}
	return matched, nil
}

// Stats counts lines per severity in path.
func Stats(path string) (LevelStats, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return LevelStats{}, fmt.Errorf("read log file: %w", err)
	}
	st := LevelStats{ByLevel: make(map[string]int)}
	for _, ln := range splitLines(string(data)) {
		st.Total++
		if lv := levelOf(ln); lv != "" {
			st.ByLevel[lv]++
		}
	}
	return st, nil
}

// Clear truncates the active log file in place.
func Clear(path string) error {
	return os.Truncate(path, 0)
}

// Path joins dir and a file name, rejecting traversal outside dir.
func Path(dir, name string) (string, error) {
	if name != filepath.Base(name) {
		return "", fmt.Errorf("invalid log file name %q", name)
	}
	return filepath.Join(dir, name), nil
}

func splitLines(s string) []string {
	raw := strings.Split(s, "\n")
	out := raw[:0]
	for _, ln := range raw {
		if strings.TrimSpace(ln) != "" {
			out = append(out, ln)
		}
	}
	return out
}

// levelOf detects the severity token of a line. Handles both slog JSON
// ("level":"INFO") and plain stdlib log lines carrying a bare token.
func levelOf(line string) string {
	for _, tok := range levelTokens {
		if strings.Contains(line, `"level":"`+tok+`"`) {
			return tok
		}
	}
	for _, tok := range levelTokens {
		if strings.Contains(line, tok) {
			return tok
		}
	}
	return ""
}
