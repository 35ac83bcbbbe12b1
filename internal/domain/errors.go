package domain

import "errors"

// ErrNotFound is returned by repositories when the requested job does not
// exist.
var ErrNotFound = errors.New("not found")
