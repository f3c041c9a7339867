package common

import "fmt"

type GoDBErrorCode int

const (
	// DuplicateObjectError indicates an attempt to register a table that
	// already exists in the catalog.
	DuplicateObjectError GoDBErrorCode = iota
	// NoSuchObjectError indicates a request for a table, file or plan node
	// that does not exist. Task.AddSplit returns it for plan node IDs that
	// do not name a split-consuming node of the task's plan.
	NoSuchObjectError
	// SplitsClosedError is returned when a split is added to a plan node
	// after NoMoreSplits was signaled for it.
	SplitsClosedError
	// CorruptFileError indicates a tuple file whose footer, index or block
	// payload does not match the expected layout.
	CorruptFileError
	// CacheFullError is returned by the block cache when every frame is
	// pinned and no victim can be found.
	CacheFullError
	// TaskClosedError indicates an operation on a task that was already closed.
	TaskClosedError
)

func (ec GoDBErrorCode) String() string {
	switch ec {
	case DuplicateObjectError:
		return "DuplicateObjectError"
	case NoSuchObjectError:
		return "NoSuchObjectError"
	case SplitsClosedError:
		return "SplitsClosedError"
	case CorruptFileError:
		return "CorruptFileError"
	case CacheFullError:
		return "CacheFullError"
	case TaskClosedError:
		return "TaskClosedError"
	}
	return "unknown"
}

// GoDBError is the custom error type for the execution engine.
// It wraps a specific GoDBErrorCode with a detailed message.
//
// Callers match on the code with errors.As, which keeps working after the
// error has been wrapped with task or split context on its way up.
type GoDBError struct {
	Code      GoDBErrorCode
	ErrString string
}

func (e GoDBError) Error() string {
	return fmt.Sprintf("err: %s; msg: %s", e.Code.String(), e.ErrString)
}

// NewError builds a GoDBError with a formatted message.
func NewError(code GoDBErrorCode, format string, args ...any) GoDBError {
	return GoDBError{Code: code, ErrString: fmt.Sprintf(format, args...)}
}
