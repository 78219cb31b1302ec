package services

import "errors"

// ErrCacheCanceled is returned by tile caching runs stopped through their
// context. The error also wraps the context's own error.
var ErrCacheCanceled = errors.New("tile caching canceled")
