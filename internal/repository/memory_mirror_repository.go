package repository

import (
	"context"
	"sync"
	"time"

	"github.com/rpattn/tripsync/internal/domain"
)

// MemoryMirrorRepository keeps mirror rows in process memory. It honours
// the same uniqueness rules as the Postgres table and is used for dry runs
// and tests.
type MemoryMirrorRepository struct {
	mu     sync.Mutex
	nextID int64
	rows   map[int64]domain.MirrorRow
	now    func() time.Time
}

// NewMemoryMirrorRepository creates an empty in-memory mirror.
func NewMemoryMirrorRepository() *MemoryMirrorRepository {
	return &MemoryMirrorRepository{rows: make(map[int64]domain.MirrorRow), now: time.Now}
}

func (r *MemoryMirrorRepository) FindByRemoteID(_ context.Context, remoteID int64) (*domain.MirrorRow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if row.RemoteID != nil && *row.RemoteID == remoteID {
			found := cloneMirror(row)
			return &found, nil
		}
	}
	return nil, nil
}

func (r *MemoryMirrorRepository) FindOrCreateByOriginKey(_ context.Context, originID string, appointmentTime *time.Time) (domain.MirrorRow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if row.IsOriginated && row.OriginID != nil && *row.OriginID == originID && sameTime(row.AppointmentTime, appointmentTime) {
			return cloneMirror(row), nil
		}
	}
	id := originID
	row := domain.MirrorRow{
		IsOriginated:    true,
		OriginID:        &id,
		AppointmentTime: copyTime(appointmentTime),
		Data:            domain.NewRecord(),
	}
	return r.insertLocked(row), nil
}

func (r *MemoryMirrorRepository) MaxKnownUpdatedAt(_ context.Context) (*time.Time, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var latest *time.Time
	for _, row := range r.rows {
		if row.RemoteUpdatedAt != nil && (latest == nil || row.RemoteUpdatedAt.After(*latest)) {
			latest = copyTime(row.RemoteUpdatedAt)
		}
	}
	return latest, nil
}

func (r *MemoryMirrorRepository) Save(_ context.Context, row domain.MirrorRow) (domain.MirrorRow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !row.Persisted() && row.RemoteID != nil {
		for id, existing := range r.rows {
			if existing.RemoteID != nil && *existing.RemoteID == *row.RemoteID {
				row.ID = id
				break
			}
		}
	}
	if !row.Persisted() {
		return r.insertLocked(row), nil
	}
	existing, ok := r.rows[row.ID]
	if ok {
		row.CreatedAt = existing.CreatedAt
	}
	row.UpdatedAt = r.now()
	r.rows[row.ID] = cloneMirror(row)
	return cloneMirror(row), nil
}

// Rows returns a snapshot of every stored row.
func (r *MemoryMirrorRepository) Rows() []domain.MirrorRow {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.MirrorRow, 0, len(r.rows))
	for id := int64(1); id <= r.nextID; id++ {
		if row, ok := r.rows[id]; ok {
			out = append(out, cloneMirror(row))
		}
	}
	return out
}

func (r *MemoryMirrorRepository) insertLocked(row domain.MirrorRow) domain.MirrorRow {
	r.nextID++
	row.ID = r.nextID
	row.CreatedAt = r.now()
	row.UpdatedAt = row.CreatedAt
	if row.Data == nil {
		row.Data = domain.NewRecord()
	}
	r.rows[row.ID] = cloneMirror(row)
	return cloneMirror(row)
}

func cloneMirror(row domain.MirrorRow) domain.MirrorRow {
	if row.Data != nil {
		row.Data = row.Data.Clone()
	}
	return row
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

func copyTime(ts *time.Time) *time.Time {
	if ts == nil {
		return nil
	}
	value := *ts
	return &value
}
