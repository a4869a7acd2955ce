package model

import "errors"

var (
	// ErrParse is returned when a serialized record carries malformed
	// date or time text.
	ErrParse = errors.New("parse failure")
	// ErrMissingField is returned when an identity field is empty.
	ErrMissingField = errors.New("missing required field")
)
