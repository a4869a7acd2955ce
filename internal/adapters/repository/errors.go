package repository

import "errors"

var (
	// ErrAlreadyExists is returned by Put when a record with the same identity hash
	// is already stored.
	ErrAlreadyExists = errors.New("record already exists")
	// ErrNameTaken is returned by Put when every file name available for a
	// record holds a different record.
	ErrNameTaken = errors.New("file name taken by another record")
	// ErrClosed is returned when a closed store is used.
	ErrClosed = errors.New("store closed")
)
