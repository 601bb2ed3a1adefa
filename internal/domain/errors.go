package domain

import "errors"

var (
	ErrNotFound       = errors.New("not found")
	ErrAlreadyExists  = errors.New("already exists")
	ErrTerminalState  = errors.New("position already in terminal state")
	ErrLockHeld       = errors.New("lock already held")
	ErrWSDisconnect   = errors.New("websocket disconnected")
	ErrBreakerTripped = errors.New("drawdown breaker tripped")
	ErrOrderRejected  = errors.New("order rejected")
)
