// Package posts is the posts/comments REST resource wired through the query
// and mutation caches: key factory, paginated queries, invalidating mutations
// and a typed Service facade.
package posts

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	goerrors "github.com/goliatone/go-errors"
)

// Post is a blog post.
type Post struct {
	ID     int    `json:"id"`
	UserID int    `json:"userId"`
	Title  string `json:"title"`
	Body   string `json:"body"`
}

// Comment belongs to a post.
type Comment struct {
	ID     int    `json:"id"`
	PostID int    `json:"postId"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Body   string `json:"body"`
}

// PostInput is the payload for creating or replacing a post.
type PostInput struct {
	UserID int    `json:"userId"`
	Title  string `json:"title"`
	Body   string `json:"body"`
}

// Validate checks the fields the API requires.
func (in PostInput) Validate() error {
	err := validation.ValidateStruct(&in,
		validation.Field(&in.UserID, validation.Required, validation.Min(1)),
		validation.Field(&in.Title, validation.Required, validation.Length(1, 200)),
		validation.Field(&in.Body, validation.Length(0, 10000)),
	)
	return invalidInput(err, "invalid post")
}

// CommentInput is the payload for creating or replacing a comment.
type CommentInput struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Body  string `json:"body"`
}

// Validate checks the fields the API requires.
func (in CommentInput) Validate() error {
	err := validation.ValidateStruct(&in,
		validation.Field(&in.Name, validation.Required, validation.Length(1, 120)),
		validation.Field(&in.Email, validation.Required, is.EmailFormat),
		validation.Field(&in.Body, validation.Required),
	)
	return invalidInput(err, "invalid comment")
}

// UpdatePostVars identifies the post to replace.
type UpdatePostVars struct {
	ID    int
	Input PostInput
}

// CreateCommentVars targets the post a comment is added to.
type CreateCommentVars struct {
	PostID int
	Input  CommentInput
}

// UpdateCommentVars identifies the comment to replace.
type UpdateCommentVars struct {
	PostID int
	ID     int
	Input  CommentInput
}

// CommentRef identifies a comment.
type CommentRef struct {
	PostID int
	ID     int
}

func invalidInput(err error, msg string) error {
	if err == nil {
		return nil
	}
	return goerrors.FromOzzoValidation(err, msg).WithTextCode("INVALID_INPUT")
}
