// Copyright 2017 Microsoft. All rights reserved.
// MIT License

// Package netlink reads link devices from the kernel over NETLINK_ROUTE.
package netlink

import (
	"github.com/pkg/errors"
)

// Backends selectable through configuration.
const (
	BackendSocket      = "socket"
	BackendVishvananda = "vishvananda"
)

var (
	// ErrSocket is returned when the netlink connection cannot be opened.
	ErrSocket = errors.New("netlink socket failure")
	// ErrRequest is returned when the dump request cannot be submitted.
	ErrRequest = errors.New("netlink request failure")
	// ErrDriver is returned when the dump stream fails or is cancelled.
	ErrDriver = errors.New("netlink dump failure")
	// ErrDumpInterrupted is returned when the kernel flags the dump as
	// inconsistent because links changed while it was running.
	ErrDumpInterrupted = errors.New("netlink dump interrupted")
	// ErrUnknownBackend is returned for a backend name outside the known set.
	ErrUnknownBackend = errors.New("unknown netlink backend")
)

// Error ties a failure class to its cause. errors.Is matches either.
type Error struct {
	Op  error
	Err error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Op.Error()
	}
	return e.Op.Error() + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	return target == e.Op
}
