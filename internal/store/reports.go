package store

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ibeckermayer/ytfilter/internal/config"
)

// ReportDir returns the directory holding session reports
func ReportDir() (string, error) {
	cacheDir, err := config.CacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(cacheDir, "reports"), nil
}

// generateFilename creates a timestamped filename with the given extension.
func generateFilename(ext string) string {
	return time.Now().Format("2006-01-02T15-04-05") + ext
}

// SaveReport writes report content (e.g. HTML) to the report directory.
// Returns the path to the saved file.
func SaveReport(content string, ext string) (string, error) {
	dir, err := ReportDir()
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create report dir: %w", err)
	}

	path := filepath.Join(dir, generateFilename(ext))

	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return "", fmt.Errorf("failed to write report: %w", err)
	}

	return path, nil
}

// LatestReport returns the path to the most recent report.
func LatestReport() (string, error) {
	dir, err := ReportDir()
	if err != nil {
		return "", err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("no session report saved yet")
		}
		return "", err
	}

	// os.ReadDir sorts by name, which is chronological for our timestamps
	var files []string
	for _, entry := range entries {
		if !entry.IsDir() {
			files = append(files, entry.Name())
		}
	}

	if len(files) == 0 {
		return "", fmt.Errorf("no session report saved yet")
	}

	return filepath.Join(dir, files[len(files)-1]), nil
}
