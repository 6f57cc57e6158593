package rate

import "errors"

// ErrRedisUnavailable wraps counter backend failures.
var ErrRedisUnavailable = errors.New("redis unavailable")
