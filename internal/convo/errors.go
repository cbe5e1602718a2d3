package convo

import "errors"

// Failure taxonomy. Every failure path, whether the transport call itself
// rejected or the stream delivered an explicit terminal-failure event, is
// normalized into exactly one failed Message in the store; nothing vanishes
// silently.
var (
	// ErrTurnLimit rejects a send while the limit guard is tripped. A soft
	// block, not a failure: no failed message is inserted for it.
	ErrTurnLimit = errors.New("turn limit reached")

	// ErrRecoveryBusy rejects a retry/resume while a previous one is still
	// outstanding.
	ErrRecoveryBusy = errors.New("retry or resume already in flight")

	// ErrNoFailedMessage rejects a retry/resume when nothing failed.
	ErrNoFailedMessage = errors.New("no failed message to recover")

	// ErrEmptyMessage rejects a blank user send.
	ErrEmptyMessage = errors.New("empty message")
)
