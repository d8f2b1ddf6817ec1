package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/rpattn/tripsync/internal/domain"
)

const registryTimeLayout = time.RFC3339Nano

type importedFileRepository struct {
	db *sql.DB
	sq sq.StatementBuilderType
}

// NewImportedFileRepository wires the registry backed by a SQLite handle.
func NewImportedFileRepository(db *sql.DB) ImportedFileRepository {
	return &importedFileRepository{
		db: db,
		sq: sq.StatementBuilder.PlaceholderFormat(sq.Question),
	}
}

func (r *importedFileRepository) IsAlreadyImported(ctx context.Context, fingerprint domain.FileFingerprint) (bool, error) {
	if r.db == nil {
		return false, fmt.Errorf("imported file repository not initialized")
	}

	query, args, err := r.sq.Select("1").
		From("imported_files").
		Where(sq.Eq{"file_name": fingerprint.Name}).
		Where(sq.Eq{"size": fingerprint.Size}).
		Where(sq.Eq{"modified": fingerprint.Modified.UTC().Format(registryTimeLayout)}).
		Limit(1).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("failed to build fingerprint query: %w", err)
	}

	var found int
	err = r.db.QueryRowContext(ctx, query, args...).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check imported file %s: %w", fingerprint.Name, err)
	}
	return true, nil
}

func (r *importedFileRepository) Record(ctx context.Context, file domain.ImportedFile) (domain.ImportedFile, error) {
	if r.db == nil {
		return domain.ImportedFile{}, fmt.Errorf("imported file repository not initialized")
	}
	if file.CreatedAt.IsZero() {
		file.CreatedAt = time.Now().UTC()
	}

	var errorMsg any
	if file.ErrorMessage != "" {
		errorMsg = file.ErrorMessage
	}

	query, args, err := r.sq.Insert("imported_files").
		Columns(
			"file_name",
			"size",
			"modified",
			"rows",
			"row_errors",
			"imported",
			"skipped",
			"unposted",
			"error",
			"error_msg",
			"created_at",
		).
		Values(
			file.Name,
			file.Size,
			file.Modified.UTC().Format(registryTimeLayout),
			file.Rows,
			file.RowErrors,
			file.Imported,
			file.Skipped,
			file.Unposted,
			file.Error,
			errorMsg,
			file.CreatedAt.UTC().Format(registryTimeLayout),
		).
		ToSql()
	if err != nil {
		return domain.ImportedFile{}, fmt.Errorf("failed to build imported file insert: %w", err)
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return domain.ImportedFile{}, fmt.Errorf("failed to record imported file %s: %w", file.Name, err)
	}
	if id, idErr := result.LastInsertId(); idErr == nil {
		file.ID = id
	}
	return file, nil
}

func (r *importedFileRepository) List(ctx context.Context, limit int, offset int) ([]domain.ImportedFile, error) {
	if r.db == nil {
		return nil, fmt.Errorf("imported file repository not initialized")
	}

	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	query, args, err := r.sq.Select(
		"id",
		"file_name",
		"size",
		"modified",
		"rows",
		"row_errors",
		"imported",
		"skipped",
		"unposted",
		"error",
		"error_msg",
		"created_at",
	).
		From("imported_files").
		OrderBy("id DESC").
		Limit(uint64(limit)).
		Offset(uint64(offset)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build imported file query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list imported files: %w", err)
	}
	defer rows.Close()

	files := []domain.ImportedFile{}
	for rows.Next() {
		var (
			file      domain.ImportedFile
			modified  string
			errorMsg  sql.NullString
			createdAt string
		)
		if scanErr := rows.Scan(
			&file.ID,
			&file.Name,
			&file.Size,
			&modified,
			&file.Rows,
			&file.RowErrors,
			&file.Imported,
			&file.Skipped,
			&file.Unposted,
			&file.Error,
			&errorMsg,
			&createdAt,
		); scanErr != nil {
			return nil, fmt.Errorf("failed to scan imported file: %w", scanErr)
		}
		file.Modified, _ = time.Parse(registryTimeLayout, modified)
		file.CreatedAt, _ = time.Parse(registryTimeLayout, createdAt)
		if errorMsg.Valid {
			file.ErrorMessage = errorMsg.String
		}
		files = append(files, file)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate imported files: %w", rowsErr)
	}

	return files, nil
}
