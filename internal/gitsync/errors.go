package gitsync

import "errors"

var (
	// ErrPushRejected is returned when the remote refuses a push, usually
	// because it has commits the local branch lacks.
	ErrPushRejected = errors.New("push rejected by remote")

	// ErrConflicts is returned when a pull cannot complete due to
	// conflicting changes.
	ErrConflicts = errors.New("unresolved conflicts")

	// ErrDetached is returned when HEAD is not on a branch.
	ErrDetached = errors.New("not on a branch")

	// ErrSyncInProgress is returned when another sync or conflict
	// resolution already holds the repository.
	ErrSyncInProgress = errors.New("sync already in progress")

	// ErrDisabled is returned by explicit sync requests while git sync is off.
	ErrDisabled = errors.New("git sync disabled")

	// ErrUnknownStrategy is returned by HandleConflict for an unrecognised strategy.
	ErrUnknownStrategy = errors.New("unknown conflict strategy")
)
