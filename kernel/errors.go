package kernel

import "errors"

// ErrUnknownDriver is returned by New when the dead-letter driver is not one of
// memory, sqlite, postgres, or redis.
var ErrUnknownDriver = errors.New("unknown dead-letter driver")

// ErrMissingDSN is returned by New when a networked dead-letter driver has no DSN.
var ErrMissingDSN = errors.New("dead-letter driver requires a dsn")
