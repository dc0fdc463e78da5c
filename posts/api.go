package posts

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/goliatone/go-query-cache/cache"
	"github.com/goliatone/go-query-cache/fetcher"
)

// API builds query and mutation operations against the posts endpoints.
type API struct {
	client *fetcher.Client
}

// NewAPI returns an API issuing requests through client.
func NewAPI(client *fetcher.Client) *API {
	return &API{client: client}
}

func pageQuery(param any, limit int) (url.Values, error) {
	page, ok := param.(int)
	if !ok {
		return nil, fmt.Errorf("page param must be an int, got %T", param)
	}
	return url.Values{
		"page":  {strconv.Itoa(page)},
		"limit": {strconv.Itoa(limit)},
	}, nil
}

// ListQuery pages through GET /posts?page=N&limit=M starting at page 1.
func (a *API) ListQuery(limit int) cache.Operation {
	return cache.InfiniteQuery(Keys.List(limit), 1, func(ctx context.Context, param any) ([]Post, error) {
		q, err := pageQuery(param, limit)
		if err != nil {
			return nil, err
		}
		var out []Post
		if err := a.client.Get(ctx, "/posts", q, &out); err != nil {
			return nil, err
		}
		return out, nil
	}, cache.WithName("posts.list"))
}

// CommentsQuery pages through GET /posts/{id}/comments?page=N&limit=M.
func (a *API) CommentsQuery(postID, limit int) cache.Operation {
	path := fmt.Sprintf("/posts/%d/comments", postID)
	return cache.InfiniteQuery(Keys.CommentList(postID, limit), 1, func(ctx context.Context, param any) ([]Comment, error) {
		q, err := pageQuery(param, limit)
		if err != nil {
			return nil, err
		}
		var out []Comment
		if err := a.client.Get(ctx, path, q, &out); err != nil {
			return nil, err
		}
		return out, nil
	}, cache.WithName("comments.list"))
}

// GetPost fetches GET /posts/{id}.
func (a *API) GetPost(ctx context.Context, id int) (Post, error) {
	var out Post
	err := a.client.Get(ctx, fmt.Sprintf("/posts/%d", id), nil, &out)
	return out, err
}

// CreatePost sends POST /posts and invalidates every post list.
func (a *API) CreatePost() cache.Operation {
	return cache.Mutation("posts.create",
		func(ctx context.Context, in PostInput) (Post, error) {
			if err := in.Validate(); err != nil {
				return Post{}, err
			}
			var out Post
			err := a.client.Post(ctx, "/posts", in, &out)
			return out, err
		},
		cache.Invalidate[PostInput, Post](cache.MatchPrefix(Keys.Lists())),
	)
}

// UpdatePost sends PUT /posts/{id} and invalidates lists and details.
func (a *API) UpdatePost() cache.Operation {
	return cache.Mutation("posts.update",
		func(ctx context.Context, v UpdatePostVars) (Post, error) {
			if err := v.Input.Validate(); err != nil {
				return Post{}, err
			}
			var out Post
			err := a.client.Put(ctx, fmt.Sprintf("/posts/%d", v.ID), v.Input, &out)
			return out, err
		},
		cache.Invalidate[UpdatePostVars, Post](cache.MatchPrefix(Keys.All())),
	)
}

// DeletePost sends DELETE /posts/{id} and invalidates lists and details.
// The result is the deleted id.
func (a *API) DeletePost() cache.Operation {
	return cache.Mutation("posts.delete",
		func(ctx context.Context, id int) (int, error) {
			if err := a.client.Delete(ctx, fmt.Sprintf("/posts/%d", id), nil); err != nil {
				return 0, err
			}
			return id, nil
		},
		cache.Invalidate[int, int](cache.MatchPrefix(Keys.All())),
	)
}

// commentInvalidations covers the comment lists of postID and its detail.
func commentInvalidations(postID int) []cache.KeyPredicate {
	return []cache.KeyPredicate{
		cache.MatchPrefix(Keys.Comments(postID)),
		cache.MatchExact(Keys.Detail(postID)),
	}
}

// CreateComment sends POST /posts/{postId}/comments.
func (a *API) CreateComment() cache.Operation {
	return cache.Mutation("comments.create",
		func(ctx context.Context, v CreateCommentVars) (Comment, error) {
			if err := v.Input.Validate(); err != nil {
				return Comment{}, err
			}
			var out Comment
			err := a.client.Post(ctx, fmt.Sprintf("/posts/%d/comments", v.PostID), v.Input, &out)
			return out, err
		},
		func(v CreateCommentVars, _ Comment) []cache.KeyPredicate {
			return commentInvalidations(v.PostID)
		},
	)
}

// UpdateComment sends PUT /posts/{postId}/comments/{id}.
func (a *API) UpdateComment() cache.Operation {
	return cache.Mutation("comments.update",
		func(ctx context.Context, v UpdateCommentVars) (Comment, error) {
			if err := v.Input.Validate(); err != nil {
				return Comment{}, err
			}
			var out Comment
			err := a.client.Put(ctx, fmt.Sprintf("/posts/%d/comments/%d", v.PostID, v.ID), v.Input, &out)
			return out, err
		},
		func(v UpdateCommentVars, _ Comment) []cache.KeyPredicate {
			return commentInvalidations(v.PostID)
		},
	)
}

// DeleteComment sends DELETE /posts/{postId}/comments/{id}.
func (a *API) DeleteComment() cache.Operation {
	return cache.Mutation("comments.delete",
		func(ctx context.Context, ref CommentRef) (CommentRef, error) {
			err := a.client.Delete(ctx, fmt.Sprintf("/posts/%d/comments/%d", ref.PostID, ref.ID), nil)
			return ref, err
		},
		func(ref CommentRef, _ CommentRef) []cache.KeyPredicate {
			return commentInvalidations(ref.PostID)
		},
	)
}
