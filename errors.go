package taxclean

import "errors"

var (
	// ErrNotFound is returned when an id does not exist in the store.
	ErrNotFound = errors.New("not found")
	// ErrStaleClassification is returned when a commit was prepared against a
	// version history that changed before it was applied.
	ErrStaleClassification = errors.New("stale classification")
	// ErrNoHeader is returned for a submission without a usable report header.
	ErrNoHeader = errors.New("submission has no report header or account id")
	// ErrInvalidTransition is returned when a tax report cannot move to the
	// requested workflow status.
	ErrInvalidTransition = errors.New("invalid tax report transition")
)
