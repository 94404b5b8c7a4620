// Package dferr defines the storage-plane error taxonomy (spec §7): a
// stable numeric code per error kind that survives the trip across the
// wire in an ERROR reply payload, plus Go-idiomatic wrapping via
// github.com/pkg/errors the way the teacher's cmn.NewErr* helpers do.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package dferr

import (
	"errors"
	"fmt"

	pkgerrors "github.com/pkg/errors"
)

// Code is the stable numeric identifier carried in a wire ERROR payload.
type Code uint32

const (
	Unknown Code = iota
	InvalidParam
	OutOfMemory
	NotFound
	AlreadyExists
	PermissionDenied
	NetworkFailure
	NodeUnavailable
	ConsistencyViolation
	StorageFull
	Timeout
	AlreadyInitialized
	SystemError
	FileOpenFailed
	UnsupportedOperation
	Cancelled
)

var names = map[Code]string{
	Unknown:               "Unknown",
	InvalidParam:          "InvalidParam",
	OutOfMemory:           "OutOfMemory",
	NotFound:              "NotFound",
	AlreadyExists:         "AlreadyExists",
	PermissionDenied:      "PermissionDenied",
	NetworkFailure:        "NetworkFailure",
	NodeUnavailable:       "NodeUnavailable",
	ConsistencyViolation:  "ConsistencyViolation",
	StorageFull:           "StorageFull",
	Timeout:               "Timeout",
	AlreadyInitialized:    "AlreadyInitialized",
	SystemError:           "SystemError",
	FileOpenFailed:        "FileOpenFailed",
	UnsupportedOperation:  "UnsupportedOperation",
	Cancelled:             "Cancelled",
}

func (c Code) String() string {
	if s, ok := names[c]; ok {
		return s
	}
	return fmt.Sprintf("Code(%d)", c)
}

// StorageError is the error type every storage-plane operation returns;
// Code is what actually crosses the wire, Err carries the local detail
// (and, via pkg/errors, a stack trace for the log).
type StorageError struct {
	Code Code
	Err  error
}

func (e *StorageError) Error() string {
	if e.Err == nil {
		return e.Code.String()
	}
	return fmt.Sprintf("%s: %v", e.Code, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// New builds a StorageError, stack-annotating the underlying cause.
func New(code Code, format string, args ...interface{}) *StorageError {
	return &StorageError{Code: code, Err: pkgerrors.Errorf(format, args...)}
}

// Wrap attaches a code to an existing error, preserving its stack if it
// already carries one (errors.Wrap is a no-op-safe way to add context).
func Wrap(code Code, err error, msg string) *StorageError {
	if err == nil {
		return nil
	}
	return &StorageError{Code: code, Err: pkgerrors.Wrap(err, msg)}
}

// CodeOf extracts the wire code from any error, defaulting to Unknown for
// errors that never passed through this package.
func CodeOf(err error) Code {
	if err == nil {
		return 0
	}
	var se *StorageError
	if errors.As(err, &se) {
		return se.Code
	}
	return Unknown
}
