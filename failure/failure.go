// Package failure is the uniform contract for surfacing a failed query or mutation:
// a human-readable message, a retry bound to the exact failed operation and a dismiss.
package failure

import (
	"context"
	"net/http"
	"sync"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-query-cache/fetcher"
)

// ErrNotRetryable is returned by Retry when the failure has no retry action.
var ErrNotRetryable = goerrors.New("failure has no retry action", goerrors.CategoryOperation).
	WithTextCode("NOT_RETRYABLE")

// Failure describes one surfaced error.
type Failure struct {
	Message string
	Err     error
	Kind    fetcher.Kind

	retry     func(ctx context.Context) error
	dismiss   func()
	dismissed sync.Once
}

// New wraps err. retry re-runs the failed operation with its original input; dismiss
// clears the stored error. Either may be nil.
func New(err error, retry func(ctx context.Context) error, dismiss func()) *Failure {
	return &Failure{
		Message: Message(err),
		Err:     err,
		Kind:    fetcher.KindOf(err),
		retry:   retry,
		dismiss: dismiss,
	}
}

// Error returns the underlying error text.
func (f *Failure) Error() string {
	if f.Err == nil {
		return f.Message
	}
	return f.Err.Error()
}

// Unwrap returns the underlying error.
func (f *Failure) Unwrap() error { return f.Err }

// Retry re-runs the failed operation.
func (f *Failure) Retry(ctx context.Context) error {
	if f.retry == nil {
		return ErrNotRetryable
	}
	return f.retry(ctx)
}

// Dismiss clears the failure. Only the first call has an effect.
func (f *Failure) Dismiss() {
	f.dismissed.Do(func() {
		if f.dismiss != nil {
			f.dismiss()
		}
	})
}

// Retryable reports whether retrying can plausibly succeed without new input.
func (f *Failure) Retryable() bool {
	if f.retry == nil {
		return false
	}
	switch f.Kind {
	case fetcher.KindTimedOut, fetcher.KindNetwork, fetcher.KindAborted:
		return true
	case fetcher.KindHTTP:
		status, _ := fetcher.HTTPStatus(f.Err)
		return status >= 500 || status == http.StatusRequestTimeout || status == http.StatusTooManyRequests
	case fetcher.KindDecode:
		return false
	default:
		return !goerrors.IsValidation(f.Err)
	}
}

// Message maps err to text suitable for showing to a user.
func Message(err error) string {
	if err == nil {
		return ""
	}

	switch fetcher.KindOf(err) {
	case fetcher.KindTimedOut:
		return "The request took too long. Check your connection and try again."
	case fetcher.KindNetwork:
		return "Could not reach the server. Check your connection and try again."
	case fetcher.KindAborted:
		return "The request was cancelled."
	case fetcher.KindDecode:
		return "The server sent an unexpected response."
	case fetcher.KindHTTP:
		status, _ := fetcher.HTTPStatus(err)
		return httpMessage(status)
	}

	if goerrors.IsValidation(err) {
		return "Some of the information provided is not valid."
	}
	return "Something went wrong. Please try again."
}

func httpMessage(status int) string {
	switch {
	case status == http.StatusUnauthorized:
		return "Your session has expired. Please sign in again."
	case status == http.StatusForbidden:
		return "You do not have permission to do that."
	case status == http.StatusNotFound:
		return "We could not find what you were looking for."
	case status == http.StatusConflict:
		return "Someone else changed this first. Refresh and try again."
	case status == http.StatusTooManyRequests:
		return "Too many requests. Wait a moment and try again."
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return "The server rejected the request."
	case status >= 500:
		return "The server ran into a problem. Please try again."
	default:
		return "The request could not be completed (" + http.StatusText(status) + ")."
	}
}
