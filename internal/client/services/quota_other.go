//go:build !unix

package services

import "errors"

func diskAvailable(string) (int64, error) {
	return 0, errors.New("disk quota not supported on this platform")
}
