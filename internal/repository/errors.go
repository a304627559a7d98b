package repository

import "errors"

// ErrLockTimeout means the room stayed locked by another commit until ctx expired.
var ErrLockTimeout = errors.New("room lock wait timed out")
