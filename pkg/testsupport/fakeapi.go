package testsupport

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
)

// Route names reported by FakeAPI.Hits.
const (
	RoutePostsList     = "posts.list"
	RoutePostsGet      = "posts.get"
	RoutePostsCreate   = "posts.create"
	RoutePostsUpdate   = "posts.update"
	RoutePostsDelete   = "posts.delete"
	RouteCommentsList  = "comments.list"
	RouteCommentCreate = "comments.create"
	RouteCommentUpdate = "comments.update"
	RouteCommentDelete = "comments.delete"
)

// PostRecord is the JSON shape served for a post.
type PostRecord struct {
	ID     int    `json:"id"`
	UserID int    `json:"userId"`
	Title  string `json:"title"`
	Body   string `json:"body"`
}

// CommentRecord is the JSON shape served for a comment.
type CommentRecord struct {
	ID     int    `json:"id"`
	PostID int    `json:"postId"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Body   string `json:"body"`
}

// FakeAPI is an in-memory posts/comments REST API served over httptest. Lists
// page with ?page=N&limit=M and return an empty array past the last item.
type FakeAPI struct {
	server *httptest.Server

	mu       sync.Mutex
	posts    map[int]PostRecord
	comments map[int]CommentRecord
	nextID   int
	hits     map[string]int
	failures map[string][]int
	delay    time.Duration
	gate     chan struct{}
}

// NewFakeAPI starts the server and closes it when the test ends.
func NewFakeAPI(t testing.TB) *FakeAPI {
	t.Helper()

	api := &FakeAPI{
		posts:    map[int]PostRecord{},
		comments: map[int]CommentRecord{},
		nextID:   1,
		hits:     map[string]int{},
		failures: map[string][]int{},
	}
	api.server = httptest.NewServer(api.router())
	t.Cleanup(api.Close)
	return api
}

// URL is the base URL of the server.
func (a *FakeAPI) URL() string { return a.server.URL }

// Close releases any blocked request and stops the server.
func (a *FakeAPI) Close() {
	a.Release()
	a.server.Close()
}

func (a *FakeAPI) router() http.Handler {
	r := mux.NewRouter()
	r.Use(a.middleware)

	r.HandleFunc("/posts", a.listPosts).Methods(http.MethodGet).Name(RoutePostsList)
	r.HandleFunc("/posts", a.createPost).Methods(http.MethodPost).Name(RoutePostsCreate)
	r.HandleFunc("/posts/{id:[0-9]+}", a.getPost).Methods(http.MethodGet).Name(RoutePostsGet)
	r.HandleFunc("/posts/{id:[0-9]+}", a.updatePost).Methods(http.MethodPut).Name(RoutePostsUpdate)
	r.HandleFunc("/posts/{id:[0-9]+}", a.deletePost).Methods(http.MethodDelete).Name(RoutePostsDelete)

	r.HandleFunc("/posts/{postId:[0-9]+}/comments", a.listComments).Methods(http.MethodGet).Name(RouteCommentsList)
	r.HandleFunc("/posts/{postId:[0-9]+}/comments", a.createComment).Methods(http.MethodPost).Name(RouteCommentCreate)
	r.HandleFunc("/posts/{postId:[0-9]+}/comments/{id:[0-9]+}", a.updateComment).Methods(http.MethodPut).Name(RouteCommentUpdate)
	r.HandleFunc("/posts/{postId:[0-9]+}/comments/{id:[0-9]+}", a.deleteComment).Methods(http.MethodDelete).Name(RouteCommentDelete)

	return r
}

// middleware counts hits per route name and applies the injected delay, gate
// and failures.
func (a *FakeAPI) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := ""
		if route := mux.CurrentRoute(r); route != nil {
			name = route.GetName()
		}

		a.mu.Lock()
		a.hits[name]++
		delay, gate := a.delay, a.gate
		status := 0
		if queue := a.failures[name]; len(queue) > 0 {
			status, a.failures[name] = queue[0], queue[1:]
		}
		a.mu.Unlock()

		if gate != nil {
			select {
			case <-gate:
			case <-r.Context().Done():
				return
			}
		}
		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-r.Context().Done():
				return
			}
		}
		if status != 0 {
			writeJSON(w, status, map[string]string{"error": http.StatusText(status)})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Hits returns how many requests matched route.
func (a *FakeAPI) Hits(route string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.hits[route]
}

// ResetHits zeroes every route counter.
func (a *FakeAPI) ResetHits() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.hits = map[string]int{}
}

// FailNext makes the next request to route answer with status. Calls queue up.
func (a *FakeAPI) FailNext(route string, status int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.failures[route] = append(a.failures[route], status)
}

// SetDelay delays every subsequent response by d.
func (a *FakeAPI) SetDelay(d time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.delay = d
}

// Block holds every subsequent request until Release is called.
func (a *FakeAPI) Block() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.gate == nil {
		a.gate = make(chan struct{})
	}
}

// Release lets blocked requests proceed.
func (a *FakeAPI) Release() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.gate != nil {
		close(a.gate)
		a.gate = nil
	}
}

// SeedPosts adds n posts titled "Post <id>" and returns them.
func (a *FakeAPI) SeedPosts(n int) []PostRecord {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]PostRecord, 0, n)
	for i := 0; i < n; i++ {
		p := PostRecord{ID: a.nextID, UserID: 1, Title: fmt.Sprintf("Post %d", a.nextID), Body: "body"}
		a.posts[p.ID] = p
		a.nextID++
		out = append(out, p)
	}
	return out
}

// SeedComments adds n comments to postID and returns them.
func (a *FakeAPI) SeedComments(postID, n int) []CommentRecord {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]CommentRecord, 0, n)
	for i := 0; i < n; i++ {
		c := CommentRecord{
			ID:     a.nextID,
			PostID: postID,
			Name:   fmt.Sprintf("Comment %d", a.nextID),
			Email:  "reader@example.com",
			Body:   "body",
		}
		a.comments[c.ID] = c
		a.nextID++
		out = append(out, c)
	}
	return out
}

// Post returns the stored post with id.
func (a *FakeAPI) Post(id int) (PostRecord, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	p, ok := a.posts[id]
	return p, ok
}

// PostCount returns the number of stored posts.
func (a *FakeAPI) PostCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.posts)
}

func (a *FakeAPI) listPosts(w http.ResponseWriter, r *http.Request) {
	a.mu.Lock()
	all := make([]PostRecord, 0, len(a.posts))
	for _, p := range a.posts {
		all = append(all, p)
	}
	a.mu.Unlock()

	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	writeJSON(w, http.StatusOK, paginate(r, all))
}

func (a *FakeAPI) getPost(w http.ResponseWriter, r *http.Request) {
	id := pathInt(r, "id")
	p, ok := a.Post(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "post not found"})
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (a *FakeAPI) createPost(w http.ResponseWriter, r *http.Request) {
	var in PostRecord
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	a.mu.Lock()
	in.ID = a.nextID
	a.nextID++
	a.posts[in.ID] = in
	a.mu.Unlock()

	writeJSON(w, http.StatusCreated, in)
}

func (a *FakeAPI) updatePost(w http.ResponseWriter, r *http.Request) {
	id := pathInt(r, "id")
	var in PostRecord
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	a.mu.Lock()
	_, ok := a.posts[id]
	if ok {
		in.ID = id
		a.posts[id] = in
	}
	a.mu.Unlock()

	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "post not found"})
		return
	}
	writeJSON(w, http.StatusOK, in)
}

func (a *FakeAPI) deletePost(w http.ResponseWriter, r *http.Request) {
	id := pathInt(r, "id")

	a.mu.Lock()
	_, ok := a.posts[id]
	delete(a.posts, id)
	for cid, c := range a.comments {
		if c.PostID == id {
			delete(a.comments, cid)
		}
	}
	a.mu.Unlock()

	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "post not found"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{})
}

func (a *FakeAPI) listComments(w http.ResponseWriter, r *http.Request) {
	postID := pathInt(r, "postId")

	a.mu.Lock()
	var all []CommentRecord
	for _, c := range a.comments {
		if c.PostID == postID {
			all = append(all, c)
		}
	}
	a.mu.Unlock()

	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	writeJSON(w, http.StatusOK, paginate(r, all))
}

func (a *FakeAPI) createComment(w http.ResponseWriter, r *http.Request) {
	postID := pathInt(r, "postId")
	var in CommentRecord
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	a.mu.Lock()
	in.ID = a.nextID
	in.PostID = postID
	a.nextID++
	a.comments[in.ID] = in
	a.mu.Unlock()

	writeJSON(w, http.StatusCreated, in)
}

func (a *FakeAPI) updateComment(w http.ResponseWriter, r *http.Request) {
	postID, id := pathInt(r, "postId"), pathInt(r, "id")
	var in CommentRecord
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	a.mu.Lock()
	existing, ok := a.comments[id]
	ok = ok && existing.PostID == postID
	if ok {
		in.ID, in.PostID = id, postID
		a.comments[id] = in
	}
	a.mu.Unlock()

	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "comment not found"})
		return
	}
	writeJSON(w, http.StatusOK, in)
}

func (a *FakeAPI) deleteComment(w http.ResponseWriter, r *http.Request) {
	postID, id := pathInt(r, "postId"), pathInt(r, "id")

	a.mu.Lock()
	existing, ok := a.comments[id]
	ok = ok && existing.PostID == postID
	if ok {
		delete(a.comments, id)
	}
	a.mu.Unlock()

	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "comment not found"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// paginate slices items by the page and limit query parameters. page starts at
// 1 and limit defaults to 10.
func paginate[T any](r *http.Request, items []T) []T {
	page := queryInt(r, "page", 1)
	limit := queryInt(r, "limit", 10)
	if page < 1 || limit < 1 {
		return []T{}
	}

	start := (page - 1) * limit
	if start >= len(items) {
		return []T{}
	}
	end := start + limit
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}

func queryInt(r *http.Request, name string, fallback int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil {
		return fallback
	}
	return v
}

func pathInt(r *http.Request, name string) int {
	v, _ := strconv.Atoi(mux.Vars(r)[name])
	return v
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
