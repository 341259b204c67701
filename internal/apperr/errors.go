// Package apperr holds the sentinel errors shared across packages.
package apperr

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrAlreadyExists = errors.New("already exists")
	ErrInvalidPath   = errors.New("invalid path")
	// ErrPathTraversal is returned when a requested path resolves outside the content root.
	ErrPathTraversal = errors.New("access denied: path traversal detected")
)
