package netns

import (
	"github.com/pkg/errors"
)

var (
	// ErrNotFound is returned when no registry root holds the namespace.
	ErrNotFound = errors.New("namespace not found")
	// ErrOpenFailed is returned when the namespace file exists but cannot be opened.
	ErrOpenFailed = errors.New("failed to open namespace")
	// ErrSetFailed is returned when the switch into the namespace fails. The
	// calling thread is still in its original namespace.
	ErrSetFailed = errors.New("failed to enter namespace")
	// ErrRestoreFailed is returned when the thread could not be switched back
	// to its original namespace. The thread's namespace is then unverified.
	ErrRestoreFailed = errors.New("failed to restore namespace")
)

// Error describes a failed namespace operation. errors.Is matches both Kind
// and the wrapped cause.
type Error struct {
	Kind error
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	s := e.Op + " " + e.Path + ": " + e.Kind.Error()
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	return target == e.Kind
}
