package rate

import "errors"

var (
	// ErrRedisUnavailable wraps any Redis failure during a check.
	ErrRedisUnavailable = errors.New("redis unavailable")
	// ErrUnknownAction is returned for actions without a usable policy.
	ErrUnknownAction = errors.New("unknown rate limit action")
)
