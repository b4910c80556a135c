package github

import "errors"

// Errors returned by the client and pagers. Callers classify with errors.Is.
var (
	ErrNotFound          = errors.New("resource not found")
	ErrIncomplete        = errors.New("repository detail incomplete")
	ErrRateLimited       = errors.New("rate limited")
	ErrTransient         = errors.New("transient fetch error")
	ErrMalformedResponse = errors.New("malformed response")
	ErrUnexpectedStatus  = errors.New("unexpected status code")
	ErrPagerDone         = errors.New("pager exhausted")
)

// IsSkippable reports whether err means the item should be skipped
// without counting it as a failure.
func IsSkippable(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrIncomplete)
}
