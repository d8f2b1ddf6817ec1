package ingestion

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/rpattn/tripsync/internal/domain"
)

// Accept stores an uploaded file in the import folder under its base
// name. The file is written to a temporary name first so a running cycle
// never sees a partial file.
func (s *Service) Accept(fileName string, data io.Reader) (string, error) {
	name := filepath.Base(strings.TrimSpace(fileName))
	if name == "." || name == string(filepath.Separator) || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("%w: invalid file name %q", ErrUnsupportedFormat, fileName)
	}
	if !s.matches(name) {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(name))
	}
	if _, err := s.candidateFiles(); err != nil {
		return "", err
	}

	tmpFile, err := os.CreateTemp(s.importDir, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("%w: create temp file: %v", domain.ErrFileAccess, err)
	}
	tmpPath := tmpFile.Name()
	cleanup := true
	defer func() {
		if cleanup {
			_ = os.Remove(tmpPath)
		}
	}()

	written, err := io.Copy(tmpFile, data)
	if err != nil {
		_ = tmpFile.Close()
		return "", fmt.Errorf("%w: write upload: %v", domain.ErrFileAccess, err)
	}
	if err := tmpFile.Sync(); err != nil {
		_ = tmpFile.Close()
		return "", fmt.Errorf("%w: sync upload: %v", domain.ErrFileAccess, err)
	}
	if err := tmpFile.Close(); err != nil {
		return "", fmt.Errorf("%w: close upload: %v", domain.ErrFileAccess, err)
	}

	finalPath := filepath.Join(s.importDir, name)
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return "", fmt.Errorf("%w: move upload into place: %v", domain.ErrFileAccess, err)
	}
	cleanup = false

	s.logger.Info("accepted import file", zap.String("file", name), zap.Int64("bytes", written))
	return finalPath, nil
}

func (s *Service) matches(name string) bool {
	for _, pattern := range s.patterns {
		if ok, err := filepath.Match(pattern, name); err == nil && ok {
			return true
		}
	}
	return false
}
