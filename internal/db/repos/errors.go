package repos

import "errors"

var (
	// ErrJobNotFound is returned when no job row matches the id
	ErrJobNotFound = errors.New("job not found")
	// ErrJobTerminal is returned when a write targets a job that already reached a terminal status
	ErrJobTerminal = errors.New("job already in terminal status")
	// ErrCacheEntryUnavailable is returned when a cache entry is missing or expired
	ErrCacheEntryUnavailable = errors.New("cache entry missing or expired")
)
