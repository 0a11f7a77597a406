package repository

import "errors"

// ErrNotFound is returned when a row required by an update does not exist.
var ErrNotFound = errors.New("not found")
