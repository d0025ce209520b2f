package model

import "errors"

var (
	// ErrConnection covers dialing and authentication failures.
	ErrConnection = errors.New("connection failed")
	// ErrMailbox is returned when the target mailbox cannot be selected.
	ErrMailbox = errors.New("mailbox select failed")
	// ErrSearch is returned when the unseen search does not succeed.
	ErrSearch = errors.New("unseen search failed")
	// ErrFetch marks a per-message fetch failure. The message is skipped.
	ErrFetch = errors.New("message fetch failed")
	// ErrParse is returned for mailbox listing lines that do not match the LIST format.
	ErrParse = errors.New("listing parse failed")
	// ErrConfiguration marks a setting that does not fit the data, e.g. a boundary
	// token missing from a message.
	ErrConfiguration = errors.New("configuration error")
	// ErrIO is returned when the output file cannot be opened or written.
	ErrIO = errors.New("output i/o failed")
)
