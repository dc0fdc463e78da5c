package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// Kind classifies a fetch failure.
type Kind int

const (
	KindUnknown Kind = iota
	KindTimedOut
	KindHTTP
	KindNetwork
	KindAborted
	KindDecode
)

// Text codes carried by fetcher errors.
const (
	CodeTimedOut = "TIMED_OUT"
	CodeHTTP     = "HTTP_ERROR"
	CodeNetwork  = "NETWORK_ERROR"
	CodeAborted  = "ABORTED"
	CodeDecode   = "DECODE_ERROR"
)

func (k Kind) String() string {
	switch k {
	case KindTimedOut:
		return "timed_out"
	case KindHTTP:
		return "http_error"
	case KindNetwork:
		return "network_error"
	case KindAborted:
		return "aborted"
	case KindDecode:
		return "decode_error"
	default:
		return "unknown"
	}
}

var kindByCode = map[string]Kind{
	CodeTimedOut: KindTimedOut,
	CodeHTTP:     KindHTTP,
	CodeNetwork:  KindNetwork,
	CodeAborted:  KindAborted,
	CodeDecode:   KindDecode,
}

// KindOf walks err's chain and reports the first fetcher kind it finds. Bare
// context errors map to Aborted and TimedOut.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}

	for e := err; e != nil; {
		var gerr *goerrors.Error
		if !errors.As(e, &gerr) {
			break
		}
		if k, ok := kindByCode[gerr.TextCode]; ok {
			return k
		}
		e = gerr.Source
	}

	switch {
	case errors.Is(err, context.Canceled):
		return KindAborted
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimedOut
	}
	return KindUnknown
}

// IsTimedOut reports whether err is a request timeout.
func IsTimedOut(err error) bool { return KindOf(err) == KindTimedOut }

// IsAborted reports whether err is an explicit cancellation.
func IsAborted(err error) bool { return KindOf(err) == KindAborted }

// IsNetwork reports whether err is a transport failure.
func IsNetwork(err error) bool { return KindOf(err) == KindNetwork }

// IsHTTP reports whether err is a non-2xx response.
func IsHTTP(err error) bool { return KindOf(err) == KindHTTP }

// HTTPStatus returns the response status carried by an HTTP error.
func HTTPStatus(err error) (int, bool) {
	for e := err; e != nil; {
		var gerr *goerrors.Error
		if !errors.As(e, &gerr) {
			return 0, false
		}
		if gerr.TextCode == CodeHTTP {
			return gerr.Code, true
		}
		e = gerr.Source
	}
	return 0, false
}

// NewAborted builds an Aborted error for a cancellation not observed by the
// transport, e.g. a flight dropped because nobody listens any more.
func NewAborted(reason string) error {
	return goerrors.New(reason, goerrors.CategoryOperation).WithTextCode(CodeAborted)
}

func timedOutError(method, url string, timeout time.Duration, cause error) error {
	err := wrap(cause, goerrors.CategoryExternal,
		fmt.Sprintf("%s %s timed out after %s", method, url, timeout)).
		WithTextCode(CodeTimedOut)
	return err.WithMetadata(map[string]any{
		"method":  method,
		"url":     url,
		"timeout": timeout.String(),
	})
}

func abortedError(method, url string, cause error) error {
	return wrap(cause, goerrors.CategoryOperation,
		fmt.Sprintf("%s %s aborted", method, url)).
		WithTextCode(CodeAborted).
		WithMetadata(map[string]any{"method": method, "url": url})
}

func networkError(method, url string, cause error) error {
	return wrap(cause, goerrors.CategoryExternal,
		fmt.Sprintf("%s %s failed", method, url)).
		WithTextCode(CodeNetwork).
		WithMetadata(map[string]any{"method": method, "url": url})
}

func decodeError(method, url string, cause error) error {
	return wrap(cause, goerrors.CategoryInternal,
		fmt.Sprintf("%s %s returned an undecodable body", method, url)).
		WithTextCode(CodeDecode).
		WithMetadata(map[string]any{"method": method, "url": url})
}

// wrap is goerrors.Wrap that tolerates a nil cause.
func wrap(cause error, category goerrors.Category, message string) *goerrors.Error {
	if cause == nil {
		return goerrors.New(message, category)
	}
	return goerrors.Wrap(cause, category, message)
}

const bodyExcerptLimit = 512

func httpError(method, url string, status int, body []byte) error {
	excerpt := string(body)
	if len(excerpt) > bodyExcerptLimit {
		excerpt = excerpt[:bodyExcerptLimit]
	}
	return goerrors.New(
		fmt.Sprintf("%s %s returned %d %s", method, url, status, http.StatusText(status)),
		categoryForStatus(status),
	).
		WithCode(status).
		WithTextCode(CodeHTTP).
		WithMetadata(map[string]any{
			"method": method,
			"url":    url,
			"status": status,
			"body":   excerpt,
		})
}

func categoryForStatus(status int) goerrors.Category {
	switch status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return goerrors.CategoryBadInput
	case http.StatusUnauthorized:
		return goerrors.CategoryAuth
	case http.StatusForbidden:
		return goerrors.CategoryAuthz
	case http.StatusNotFound:
		return goerrors.CategoryNotFound
	case http.StatusConflict:
		return goerrors.CategoryConflict
	case http.StatusTooManyRequests:
		return goerrors.CategoryRateLimit
	default:
		return goerrors.CategoryExternal
	}
}
