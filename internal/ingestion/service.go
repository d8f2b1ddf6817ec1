package ingestion

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/rpattn/tripsync/internal/domain"
	"github.com/rpattn/tripsync/internal/repository"
	"github.com/rpattn/tripsync/internal/upsert"
)

// DefaultPatterns are the file name globs picked up from the import folder.
var DefaultPatterns = []string{"*.csv", "*.xlsx"}

// RowRouter submits one import row upstream.
type RowRouter interface {
	Route(ctx context.Context, row *domain.Record) (upsert.Outcome, error)
}

// Service imports tabular files from a folder into the clearinghouse.
type Service struct {
	registry  repository.ImportedFileRepository
	router    RowRouter
	importDir string
	patterns  []string
	now       func() time.Time
	logger    *zap.Logger
}

type Option func(*Service)

func WithImportDirectory(dir string) Option {
	return func(s *Service) {
		if strings.TrimSpace(dir) != "" {
			s.importDir = filepath.Clean(dir)
		}
	}
}

func WithPatterns(patterns ...string) Option {
	return func(s *Service) {
		if len(patterns) > 0 {
			s.patterns = append([]string(nil), patterns...)
		}
	}
}

// NewService creates a new import service.
func NewService(registry repository.ImportedFileRepository, router RowRouter, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	service := &Service{
		registry: registry,
		router:   router,
		patterns: DefaultPatterns,
		now:      time.Now,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(service)
	}
	return service
}

// Summary reports what one import run did.
type Summary struct {
	Files        []domain.ImportedFile `json:"files"`
	FilesSkipped int                   `json:"filesSkipped"`
	Imported     int                   `json:"imported"`
	Skipped      int                   `json:"skipped"`
	Unposted     int                   `json:"unposted"`
	Failed       int                   `json:"failed"`
	Errors       []domain.RowError     `json:"-"`
}

// Process imports every new file in the import folder. Foreseen row and
// file problems are collected in the summary; any other error stops the
// run and is returned.
func (s *Service) Process(ctx context.Context) (Summary, error) {
	summary := Summary{Files: []domain.ImportedFile{}}

	paths, err := s.candidateFiles()
	if err != nil {
		return summary, err
	}

	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		info, err := os.Stat(path)
		if err != nil {
			summary.Errors = append(summary.Errors, fileError(path, err))
			continue
		}
		fingerprint := domain.FileFingerprint{
			Name:     filepath.Base(path),
			Size:     info.Size(),
			Modified: info.ModTime().UTC(),
		}

		imported, err := s.registry.IsAlreadyImported(ctx, fingerprint)
		if err != nil {
			return summary, fmt.Errorf("check imported file %s: %w", fingerprint.Name, err)
		}
		if imported {
			summary.FilesSkipped++
			s.logger.Debug("skipping already imported file", zap.String("file", fingerprint.Name))
			continue
		}

		record, rowErrors, err := s.importFile(ctx, path, fingerprint, &summary)
		summary.Errors = append(summary.Errors, rowErrors...)

		saved, recordErr := s.registry.Record(ctx, record)
		if recordErr != nil {
			return summary, fmt.Errorf("record imported file %s: %w", fingerprint.Name, recordErr)
		}
		summary.Files = append(summary.Files, saved)
		if err != nil {
			return summary, err
		}
	}

	return summary, nil
}

// importFile routes every row of one file. The returned error is set only
// for unforeseen failures; the ImportedFile is always filled in.
func (s *Service) importFile(ctx context.Context, path string, fingerprint domain.FileFingerprint, summary *Summary) (domain.ImportedFile, []domain.RowError, error) {
	record := domain.ImportedFile{FileFingerprint: fingerprint, CreatedAt: s.now().UTC()}
	var rowErrors []domain.RowError

	payload, err := os.ReadFile(path)
	if err != nil {
		rowErr := fileError(path, err)
		record.Error = true
		record.ErrorMessage = truncateError(rowErr)
		return record, []domain.RowError{rowErr}, nil
	}
	table, err := parseTable(fingerprint.Name, payload)
	if err != nil {
		rowErr := fileError(path, err)
		record.Error = true
		record.ErrorMessage = truncateError(rowErr)
		return record, []domain.RowError{rowErr}, nil
	}

	record.Rows = len(table.rows)
	for _, row := range table.rows {
		ref := fmt.Sprintf("%s row %d", fingerprint.Name, row.line)
		outcome, routeErr := s.router.Route(ctx, rowRecord(table.headers, row.cells))
		switch outcome {
		case upsert.OutcomeCreated, upsert.OutcomeUpdated:
			record.Imported++
			summary.Imported++
		case upsert.OutcomeSkipped:
			record.Skipped++
			summary.Skipped++
		case upsert.OutcomeUnposted:
			record.Unposted++
			summary.Unposted++
		case upsert.OutcomeFailed:
			summary.Failed++
		}
		if routeErr == nil {
			continue
		}

		record.RowErrors++
		record.Error = true
		if record.ErrorMessage == "" {
			record.ErrorMessage = truncateError(fmt.Errorf("%s: %w", ref, routeErr))
		}
		if !domain.IsForeseen(routeErr) {
			return record, rowErrors, fmt.Errorf("%s: %w", ref, routeErr)
		}
		rowErrors = append(rowErrors, domain.RowError{Direction: domain.DirectionImport, Ref: ref, Err: routeErr})
		s.logger.Warn("import row failed",
			zap.String("file", fingerprint.Name),
			zap.Int("line", row.line),
			zap.String("outcome", outcome.String()),
			zap.Error(routeErr),
		)
	}

	s.logger.Info("imported file",
		zap.String("file", fingerprint.Name),
		zap.Int("rows", record.Rows),
		zap.Int("imported", record.Imported),
		zap.Int("skipped", record.Skipped),
		zap.Int("unposted", record.Unposted),
		zap.Int("row_errors", record.RowErrors),
	)
	return record, rowErrors, nil
}

// candidateFiles lists matching files in name order.
func (s *Service) candidateFiles() ([]string, error) {
	if strings.TrimSpace(s.importDir) == "" {
		return nil, fmt.Errorf("%w: import folder not configured", domain.ErrConfiguration)
	}
	info, err := os.Stat(s.importDir)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: import folder %s does not exist", domain.ErrConfiguration, s.importDir)
	}

	seen := make(map[string]struct{})
	var paths []string
	for _, pattern := range s.patterns {
		matches, err := filepath.Glob(filepath.Join(s.importDir, pattern))
		if err != nil {
			return nil, fmt.Errorf("%w: invalid import pattern %q", domain.ErrConfiguration, pattern)
		}
		for _, match := range matches {
			if strings.HasPrefix(filepath.Base(match), ".") {
				continue
			}
			if fi, err := os.Stat(match); err != nil || fi.IsDir() {
				continue
			}
			if _, dup := seen[match]; dup {
				continue
			}
			seen[match] = struct{}{}
			paths = append(paths, match)
		}
	}
	sort.Strings(paths)
	return paths, nil
}

// rowRecord builds the upstream payload for one row. Blank cells are
// omitted so they do not overwrite remote values.
func rowRecord(headers, cells []string) *domain.Record {
	rec := domain.NewRecord()
	for i, header := range headers {
		value := strings.TrimSpace(cells[i])
		if value == "" {
			continue
		}
		rec.Set(header, domain.String(value))
	}
	return rec
}

func fileError(path string, err error) domain.RowError {
	return domain.RowError{
		Direction: domain.DirectionImport,
		Ref:       filepath.Base(path),
		Err:       fmt.Errorf("%w: %v", domain.ErrFileAccess, err),
	}
}

func truncateError(err error) string {
	if err == nil {
		return ""
	}
	const maxLen = 512
	msg := err.Error()
	if len(msg) <= maxLen {
		return msg
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(msg[cut]) {
		cut--
	}
	return msg[:cut]
}
