package syncer

import (
	"errors"
	"fmt"
)

var (
	// ErrConflict marks a change the server superseded. The change is kept
	// as a conflict draft and dropped from the queue.
	ErrConflict = errors.New("server state conflicts with queued change")

	// ErrRejected marks a change the server refused permanently. The change
	// is kept as a rejected draft and dropped from the queue.
	ErrRejected = errors.New("server rejected queued change")
)

// StatusError is a non-success HTTP answer from the remote API.
type StatusError struct {
	Code   int
	Method string
	Path   string
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s: status %d", e.Method, e.Path, e.Code)
	}
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Code, e.Body)
}

// Unwrap classifies the status: 409 and 412 are conflicts, other 4xx except
// 401, 408 and 429 are rejections, everything else is transient.
func (e *StatusError) Unwrap() error {
	switch {
	case e.Code == 409 || e.Code == 412:
		return ErrConflict
	case e.Code == 401 || e.Code == 408 || e.Code == 429:
		return nil
	case e.Code >= 400 && e.Code < 500:
		return ErrRejected
	}
	return nil
}
