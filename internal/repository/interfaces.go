package repository

import (
	"context"
	"time"

	"github.com/rpattn/tripsync/internal/domain"
)

// MirrorRepository persists the last-seen state of each trip ticket.
type MirrorRepository interface {
	// FindByRemoteID returns nil when no row carries the clearinghouse id.
	FindByRemoteID(ctx context.Context, remoteID int64) (*domain.MirrorRow, error)
	// FindOrCreateByOriginKey returns the locally originated row for the
	// natural key, creating it on first sight.
	FindOrCreateByOriginKey(ctx context.Context, originID string, appointmentTime *time.Time) (domain.MirrorRow, error)
	// MaxKnownUpdatedAt returns the newest clearinghouse updated_at seen,
	// or nil when nothing has been mirrored yet.
	MaxKnownUpdatedAt(ctx context.Context) (*time.Time, error)
	// Save inserts or updates row and returns the stored copy.
	Save(ctx context.Context, row domain.MirrorRow) (domain.MirrorRow, error)
}

// ImportedFileRepository records which input files have been processed.
type ImportedFileRepository interface {
	IsAlreadyImported(ctx context.Context, fingerprint domain.FileFingerprint) (bool, error)
	Record(ctx context.Context, file domain.ImportedFile) (domain.ImportedFile, error)
	List(ctx context.Context, limit int, offset int) ([]domain.ImportedFile, error)
}
