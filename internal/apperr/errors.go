// Package apperr defines the sentinel errors shared across zotindex.
package apperr

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrSourceUnavailable  = errors.New("source database unavailable")
	ErrCorruptRow         = errors.New("corrupt row")
	ErrIncompatible       = errors.New("incompatible schema version")
	ErrMalformedMatchInfo = errors.New("malformed matchinfo buffer")
	ErrInvalidQuery       = errors.New("invalid query")
)
