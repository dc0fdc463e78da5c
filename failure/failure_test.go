package failure

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-query-cache/fetcher"
)

func httpErr(t *testing.T, status int) error {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))
	defer srv.Close()

	err := fetcher.New(fetcher.StaticBaseURL(srv.URL)).Get(context.Background(), "/posts", nil, nil)
	require.Error(t, err)
	return err
}

func timeoutErr(t *testing.T) error {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	c := fetcher.New(fetcher.StaticBaseURL(srv.URL), fetcher.WithTimeout(20*time.Millisecond))
	err := c.Get(context.Background(), "/posts", nil, nil)
	require.Error(t, err)
	return err
}

func TestMessage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "nil", err: nil, want: ""},
		{name: "timeout", err: timeoutErr(t), want: "The request took too long. Check your connection and try again."},
		{name: "aborted", err: fetcher.NewAborted("gone"), want: "The request was cancelled."},
		{name: "not found", err: httpErr(t, http.StatusNotFound), want: "We could not find what you were looking for."},
		{name: "server error", err: httpErr(t, http.StatusBadGateway), want: "The server ran into a problem. Please try again."},
		{name: "unauthorized", err: httpErr(t, http.StatusUnauthorized), want: "Your session has expired. Please sign in again."},
		{
			name: "validation",
			err:  goerrors.New("bad", goerrors.CategoryValidation),
			want: "Some of the information provided is not valid.",
		},
		{name: "unknown", err: errors.New("boom"), want: "Something went wrong. Please try again."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Message(tt.err))
		})
	}
}

func TestFailure_RetryAndDismiss(t *testing.T) {
	cause := fetcher.NewAborted("no subscribers")
	retries := 0
	dismissals := 0

	f := New(cause,
		func(ctx context.Context) error {
			retries++
			return nil
		},
		func() { dismissals++ },
	)

	assert.Equal(t, fetcher.KindAborted, f.Kind)
	assert.Equal(t, "The request was cancelled.", f.Message)
	assert.True(t, errors.Is(f, cause))
	assert.True(t, f.Retryable())

	require.NoError(t, f.Retry(context.Background()))
	require.NoError(t, f.Retry(context.Background()))
	assert.Equal(t, 2, retries)

	f.Dismiss()
	f.Dismiss()
	assert.Equal(t, 1, dismissals, "dismiss is idempotent")
}

func TestFailure_WithoutActions(t *testing.T) {
	f := New(errors.New("boom"), nil, nil)

	assert.False(t, f.Retryable())
	assert.True(t, errors.Is(f.Retry(context.Background()), ErrNotRetryable))
	assert.NotPanics(t, f.Dismiss)
	assert.Equal(t, "boom", f.Error())
}

func TestFailure_Retryable(t *testing.T) {
	noop := func(context.Context) error { return nil }

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "timeout", err: timeoutErr(t), want: true},
		{name: "5xx", err: httpErr(t, http.StatusServiceUnavailable), want: true},
		{name: "429", err: httpErr(t, http.StatusTooManyRequests), want: true},
		{name: "404", err: httpErr(t, http.StatusNotFound), want: false},
		{name: "validation", err: goerrors.New("bad", goerrors.CategoryValidation), want: false},
		{name: "wrapped unknown", err: fmt.Errorf("load: %w", errors.New("boom")), want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, New(tt.err, noop, nil).Retryable())
		})
	}
}
