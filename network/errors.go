package network

import "errors"

var (
	// ErrConnectionFailed indicates the client could not reach the store.
	ErrConnectionFailed = errors.New("network: connection failed")

	// ErrRateLimited indicates the store answered HTTP 429.
	ErrRateLimited = errors.New("network: rate limited")

	// ErrInvalidResponse indicates the store returned a malformed or unexpected page.
	ErrInvalidResponse = errors.New("network: invalid response")

	// ErrNoResult indicates the response carried no location or no page text.
	ErrNoResult = errors.New("network: no result")
)
