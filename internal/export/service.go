package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/rpattn/tripsync/internal/domain"
	"github.com/rpattn/tripsync/internal/transform"
)

// TimestampLayout is the run timestamp embedded in export file names.
const TimestampLayout = "2006-01-02.150405"

// Format selects the tabular file format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// ParseFormat accepts csv or xlsx; blank means csv.
func ParseFormat(raw string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", string(FormatCSV):
		return FormatCSV, nil
	case string(FormatXLSX):
		return FormatXLSX, nil
	default:
		return "", fmt.Errorf("%w: unsupported export format %q", domain.ErrConfiguration, raw)
	}
}

// Service writes classified trips to one tabular file per entity kind.
type Service struct {
	pipeline  *transform.Pipeline
	exportDir string
	format    Format
	now       func() time.Time
	logger    *zap.Logger
}

type Option func(*Service)

func WithExportDirectory(dir string) Option {
	return func(s *Service) {
		if strings.TrimSpace(dir) != "" {
			s.exportDir = filepath.Clean(dir)
		}
	}
}

func WithFormat(format Format) Option {
	return func(s *Service) {
		if format != "" {
			s.format = format
		}
	}
}

// WithClock overrides the clock used for file name timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func NewService(pipeline *transform.Pipeline, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	service := &Service{
		pipeline: pipeline,
		format:   FormatCSV,
		now:      time.Now,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(service)
	}
	return service
}

// Result summarises one export run.
type Result struct {
	Files []string
	Rows  map[domain.EntityKind]int
}

// Process splits trips into tickets, claims, comments and results and
// writes a file for every kind that has rows.
func (s *Service) Process(ctx context.Context, trips []domain.TripRecord) (Result, error) {
	if err := s.ensureExportDirectory(); err != nil {
		return Result{}, err
	}

	batches := SplitTrips(trips)
	timestamp := s.now().UTC().Format(TimestampLayout)
	result := Result{Rows: make(map[domain.EntityKind]int, len(domain.EntityKinds))}
	for _, kind := range domain.EntityKinds {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		records := batches[kind]
		if len(records) == 0 {
			continue
		}
		table := s.pipeline.Table(kind, records)
		finalPath := filepath.Join(s.exportDir, s.finalFileName(kind, timestamp))
		written, err := s.writeTable(finalPath, kind, table)
		if err != nil {
			return result, fmt.Errorf("%w: export %s: %v", domain.ErrFileAccess, kind.Plural(), err)
		}
		result.Files = append(result.Files, finalPath)
		result.Rows[kind] = len(table.Rows)
		s.logger.Info("exported records",
			zap.String("kind", string(kind)),
			zap.Int("rows", len(table.Rows)),
			zap.Int("columns", len(table.Columns)),
			zap.Int64("bytes", written),
			zap.String("path", finalPath),
		)
	}
	return result, nil
}

// SplitTrips plucks claims, comments and results off each trip. A trip
// whose remaining payload is empty or only an id produces no ticket row.
func SplitTrips(trips []domain.TripRecord) map[domain.EntityKind][]*domain.Record {
	out := make(map[domain.EntityKind][]*domain.Record, len(domain.EntityKinds))
	for _, trip := range trips {
		data := trip.Data.Clone()
		claims, _ := data.Delete(domain.FieldClaims)
		comments, _ := data.Delete(domain.FieldComments)
		result, _ := data.Delete(domain.FieldResult)

		keys := data.Keys()
		if len(keys) > 0 && !(len(keys) == 1 && keys[0] == domain.FieldID) {
			out[domain.KindTripTicket] = append(out[domain.KindTripTicket], data)
		}
		out[domain.KindTripClaim] = append(out[domain.KindTripClaim], objectsOf(claims)...)
		out[domain.KindTripComment] = append(out[domain.KindTripComment], objectsOf(comments)...)
		if result.Kind() == domain.KindObject && result.Record().Len() > 0 {
			out[domain.KindTripResult] = append(out[domain.KindTripResult], result.Record())
		}
	}
	return out
}

func objectsOf(v domain.Value) []*domain.Record {
	if v.Kind() != domain.KindSequence {
		return nil
	}
	out := make([]*domain.Record, 0, len(v.Items()))
	for _, item := range v.Items() {
		if item.Kind() == domain.KindObject {
			out = append(out, item.Record())
		}
	}
	return out
}

func (s *Service) ensureExportDirectory() error {
	if strings.TrimSpace(s.exportDir) == "" {
		return fmt.Errorf("%w: export folder not configured, will not export changes detected on the clearinghouse", domain.ErrConfiguration)
	}
	info, err := os.Stat(s.exportDir)
	if err != nil || !info.IsDir() {
		return fmt.Errorf("%w: export folder %s does not exist", domain.ErrConfiguration, s.exportDir)
	}
	return nil
}

func (s *Service) finalFileName(kind domain.EntityKind, timestamp string) string {
	return fmt.Sprintf("%s.%s.%s", kind.Plural(), timestamp, s.format)
}

func (s *Service) writeTable(finalPath string, kind domain.EntityKind, table transform.Table) (int64, error) {
	switch s.format {
	case FormatXLSX:
		return writeXLSX(s.exportDir, finalPath, kind.Plural(), table)
	default:
		return writeCSV(s.exportDir, finalPath, table)
	}
}
