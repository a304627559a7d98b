package service

import "errors"

var (
	ErrPermissionDenied   = errors.New("permission denied")
	ErrInvalidTransition  = errors.New("booking cannot change from its current status")
	ErrCancellationWindow = errors.New("booking is too close to its start to be cancelled")
)
