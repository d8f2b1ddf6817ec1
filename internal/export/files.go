package export

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rpattn/tripsync/internal/domain"
)

// FileInfo describes one file in the export folder.
type FileInfo struct {
	Name     string    `json:"name"`
	Kind     string    `json:"kind"`
	Size     int64     `json:"size"`
	Modified time.Time `json:"modified"`
}

// ListFiles returns exported files, newest first. Temporary and hidden
// files are left out.
func (s *Service) ListFiles() ([]FileInfo, error) {
	if err := s.ensureExportDirectory(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(s.exportDir)
	if err != nil {
		return nil, fmt.Errorf("%w: read export folder: %v", domain.ErrFileAccess, err)
	}

	files := make([]FileInfo, 0, len(entries))
	for _, entry := range entries {
		kind, ok := exportKind(entry.Name())
		if entry.IsDir() || !ok {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, FileInfo{
			Name:     entry.Name(),
			Kind:     string(kind),
			Size:     info.Size(),
			Modified: info.ModTime().UTC(),
		})
	}
	sort.SliceStable(files, func(i, j int) bool {
		if files[i].Modified.Equal(files[j].Modified) {
			return files[i].Name > files[j].Name
		}
		return files[i].Modified.After(files[j].Modified)
	})
	return files, nil
}

// OpenFile opens an exported file by base name.
func (s *Service) OpenFile(name string) (*os.File, os.FileInfo, error) {
	if name != filepath.Base(name) {
		return nil, nil, fmt.Errorf("invalid file name %q", name)
	}
	if _, ok := exportKind(name); !ok {
		return nil, nil, fmt.Errorf("%q is not an export file", name)
	}
	if err := s.ensureExportDirectory(); err != nil {
		return nil, nil, err
	}
	file, err := os.Open(filepath.Join(s.exportDir, name))
	if err != nil {
		return nil, nil, err
	}
	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, nil, err
	}
	return file, info, nil
}

// exportKind recognises "<plural>.<timestamp>.<ext>" names.
func exportKind(name string) (domain.EntityKind, bool) {
	if strings.HasPrefix(name, ".") {
		return "", false
	}
	parts := strings.SplitN(name, ".", 2)
	if len(parts) != 2 {
		return "", false
	}
	ext := strings.TrimPrefix(filepath.Ext(name), ".")
	if ext != string(FormatCSV) && ext != string(FormatXLSX) {
		return "", false
	}
	for _, kind := range domain.EntityKinds {
		if parts[0] == kind.Plural() {
			return kind, true
		}
	}
	return "", false
}
