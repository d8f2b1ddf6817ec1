package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingIdentifier marks a clearinghouse record without an id.
	ErrMissingIdentifier = errors.New("record is missing its identifier")
	// ErrMissingOriginKey marks an import row without origin_trip_id.
	ErrMissingOriginKey = errors.New("row is missing origin_trip_id")
	// ErrTransport marks a failed call to the clearinghouse.
	ErrTransport = errors.New("clearinghouse transport error")
	// ErrRemoteResponseMissingID marks a create/update response with no id.
	ErrRemoteResponseMissingID = errors.New("clearinghouse response does not contain an id")
	// ErrConfiguration marks a missing or invalid setting.
	ErrConfiguration = errors.New("configuration error")
	// ErrFileAccess marks a tabular file that could not be read or written.
	ErrFileAccess = errors.New("file access error")
)

// TransportError wraps a failed remote call.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("clearinghouse %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrTransport) match any TransportError.
func (e *TransportError) Is(target error) bool { return target == ErrTransport }

// IsForeseen reports whether err belongs to the named taxonomy. Anything
// else aborts the running cycle.
func IsForeseen(err error) bool {
	return errors.Is(err, ErrMissingIdentifier) ||
		errors.Is(err, ErrMissingOriginKey) ||
		errors.Is(err, ErrTransport) ||
		errors.Is(err, ErrRemoteResponseMissingID) ||
		errors.Is(err, ErrConfiguration) ||
		errors.Is(err, ErrFileAccess)
}

// Direction names the stage a row error came from.
type Direction string

const (
	DirectionSync   Direction = "sync"
	DirectionExport Direction = "export"
	DirectionImport Direction = "import"
)

// RowError is one accumulated, non-fatal error.
type RowError struct {
	Direction Direction
	Ref       string
	Err       error
}

func (e RowError) Error() string {
	if e.Ref == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Ref, e.Err)
}

func (e RowError) Unwrap() error { return e.Err }
