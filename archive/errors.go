package archive

import "errors"

// ErrNotFound is returned when a requested client, conversation or snapshot
// is not in the archive.
var ErrNotFound = errors.New("archive: not found")

// ErrInvalidInput is returned when a caller passes an unusable argument,
// such as an empty client id.
var ErrInvalidInput = errors.New("archive: invalid input")
