package job

import "errors"

var (
	// ErrEmptyPayload is returned when a job carries no bytes at all.
	ErrEmptyPayload = errors.New("empty job payload")

	// ErrSpoolVanished is returned when the spool file disappeared mid-watch.
	ErrSpoolVanished = errors.New("spool file vanished")

	// ErrSpoolTimeout is returned when a spool file never stopped growing
	// within the configured wait bound.
	ErrSpoolTimeout = errors.New("spool file never stabilized")

	// ErrNoRenderer is returned when no candidate renderer executable exists.
	ErrNoRenderer = errors.New("no renderer executable available")

	// ErrRenderFailed is returned when every renderer invocation in a
	// strategy chain failed.
	ErrRenderFailed = errors.New("all renderer invocations failed")
)
