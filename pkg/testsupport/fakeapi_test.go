package testsupport

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil && resp.StatusCode < 300 {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func send(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestFakeAPI_Pagination(t *testing.T) {
	api := NewFakeAPI(t)
	api.SeedPosts(13)

	tests := []struct {
		query string
		want  int
		first int
	}{
		{"?page=1&limit=10", 10, 1},
		{"?page=2&limit=10", 3, 11},
		{"?page=3&limit=10", 0, 0},
		{"", 10, 1},
		{"?page=0&limit=10", 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			var posts []PostRecord
			require.Equal(t, http.StatusOK, getJSON(t, api.URL()+"/posts"+tt.query, &posts))
			require.Len(t, posts, tt.want)
			if tt.want > 0 {
				assert.Equal(t, tt.first, posts[0].ID)
			}
		})
	}
	assert.Equal(t, len(tests), api.Hits(RoutePostsList))
}

func TestFakeAPI_PostCRUD(t *testing.T) {
	api := NewFakeAPI(t)
	api.SeedPosts(5)

	resp := send(t, http.MethodPost, api.URL()+"/posts", PostRecord{UserID: 2, Title: "new", Body: "b"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created PostRecord
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	assert.Equal(t, 6, created.ID)

	resp = send(t, http.MethodPut, api.URL()+"/posts/6", PostRecord{UserID: 2, Title: "edited"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	p, ok := api.Post(6)
	require.True(t, ok)
	assert.Equal(t, "edited", p.Title)

	resp = send(t, http.MethodDelete, api.URL()+"/posts/5", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 5, api.PostCount())
	assert.Equal(t, http.StatusNotFound, getJSON(t, api.URL()+"/posts/5", nil))

	resp = send(t, http.MethodDelete, api.URL()+"/posts/5", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, 2, api.Hits(RoutePostsDelete))
}

func TestFakeAPI_Comments(t *testing.T) {
	api := NewFakeAPI(t)
	posts := api.SeedPosts(2)
	api.SeedComments(posts[0].ID, 3)
	api.SeedComments(posts[1].ID, 1)

	var comments []CommentRecord
	require.Equal(t, http.StatusOK, getJSON(t, api.URL()+"/posts/1/comments?page=1&limit=10", &comments))
	assert.Len(t, comments, 3)

	resp := send(t, http.MethodPost, api.URL()+"/posts/1/comments", CommentRecord{Name: "n", Email: "e@example.com", Body: "b"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created CommentRecord
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	assert.Equal(t, 1, created.PostID)

	resp = send(t, http.MethodPut, api.URL()+"/posts/2/comments/"+strconv.Itoa(created.ID), CommentRecord{Body: "x"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode, "comment belongs to another post")

	resp = send(t, http.MethodDelete, api.URL()+"/posts/1/comments/"+strconv.Itoa(created.ID), nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestFakeAPI_FailNext(t *testing.T) {
	api := NewFakeAPI(t)
	api.SeedPosts(1)
	api.FailNext(RoutePostsGet, http.StatusInternalServerError)
	api.FailNext(RoutePostsGet, http.StatusTooManyRequests)

	assert.Equal(t, http.StatusInternalServerError, getJSON(t, api.URL()+"/posts/1", nil))
	assert.Equal(t, http.StatusTooManyRequests, getJSON(t, api.URL()+"/posts/1", nil))
	assert.Equal(t, http.StatusOK, getJSON(t, api.URL()+"/posts/1", nil))
	assert.Equal(t, 3, api.Hits(RoutePostsGet))

	api.ResetHits()
	assert.Zero(t, api.Hits(RoutePostsGet))
}

func TestFakeAPI_BlockAndRelease(t *testing.T) {
	api := NewFakeAPI(t)
	api.SeedPosts(1)
	api.Block()

	done := make(chan int, 1)
	go func() {
		resp, err := http.Get(api.URL() + "/posts/1")
		if err != nil {
			done <- 0
			return
		}
		resp.Body.Close()
		done <- resp.StatusCode
	}()

	require.Eventually(t, func() bool { return api.Hits(RoutePostsGet) == 1 }, time.Second, 5*time.Millisecond)
	select {
	case <-done:
		t.Fatal("request finished while blocked")
	default:
	}

	api.Release()
	assert.Equal(t, http.StatusOK, <-done)
}

func TestFakeAPI_Delay(t *testing.T) {
	api := NewFakeAPI(t)
	api.SetDelay(30 * time.Millisecond)

	start := time.Now()
	getJSON(t, api.URL()+"/posts", nil)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}
