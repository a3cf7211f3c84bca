package state

import "errors"

// Sentinel errors returned by Reduce. None of them is fatal: the returned
// state is always valid and the error only explains why an action was dropped.
var (
	// ErrStaleResponse reports a success or error for an entry that is
	// already Loaded; a superseded fetch resolved late.
	ErrStaleResponse = errors.New("stale response dropped")
	// ErrAlreadyLoaded reports a start for an entry that is already Loaded.
	ErrAlreadyLoaded = errors.New("entry already loaded")
	// ErrAlreadyPending reports a start for an entry that is already Pending.
	ErrAlreadyPending = errors.New("entry already pending")
	// ErrMissingParent reports a toggle whose parent id is unknown.
	ErrMissingParent = errors.New("parent node not found")
	// ErrInvalidNode reports a toggle without id or gisId.
	ErrInvalidNode = errors.New("node id and gisId are required")
	// ErrRelationClassesNotLoaded reports a relation-object start issued
	// before the owning feature's relationship classes are known.
	ErrRelationClassesNotLoaded = errors.New("relationship classes not loaded")
)

// unknownErrorMessage is stored when a failure carries no error value.
const unknownErrorMessage = "unknown error"

func errorMessage(err error) string {
	if err == nil || err.Error() == "" {
		return unknownErrorMessage
	}
	return err.Error()
}
