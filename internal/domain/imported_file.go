package domain

import (
	"time"
)

// FileFingerprint identifies an input file by name, size and modified time.
type FileFingerprint struct {
	Name     string    `json:"file_name"`
	Size     int64     `json:"size"`
	Modified time.Time `json:"modified"`
}

// ImportedFile records the outcome of one processed import file.
type ImportedFile struct {
	ID int64 `json:"id"`
	FileFingerprint
	Rows         int       `json:"rows"`
	RowErrors    int       `json:"row_errors"`
	Imported     int       `json:"imported"`
	Skipped      int       `json:"skipped"`
	Unposted     int       `json:"unposted"`
	Error        bool      `json:"error"`
	ErrorMessage string    `json:"error_msg,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}
