package posts

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/goliatone/go-query-cache/cache"
	"github.com/goliatone/go-query-cache/mutation"
	"github.com/goliatone/go-query-cache/querycache"
)

// DefaultPageSize is the list page size used when none is configured.
const DefaultPageSize = 10

// Listing is a typed view of a paginated query entry.
type Listing[T any] struct {
	Items         []T
	Status        cache.Status
	HasMore       bool
	Stale         bool
	Err           error
	LastFetchedAt time.Time
}

func listingOf[T any](e cache.Entry) Listing[T] {
	return Listing[T]{
		Items:         cache.ItemsOf[T](e),
		Status:        e.Status,
		HasMore:       e.HasMore,
		Stale:         e.Stale,
		Err:           e.Err,
		LastFetchedAt: e.LastFetchedAt,
	}
}

// Service is the typed entry point for reading and writing posts and comments.
type Service struct {
	api       *API
	queries   *querycache.Cache
	mutations *mutation.Cache
	pageSize  int
	logger    *zap.Logger
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithPageSize sets the page size of list queries.
func WithPageSize(n int) ServiceOption {
	return func(s *Service) {
		if n > 0 {
			s.pageSize = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewService wires api to the session caches.
func NewService(api *API, queries *querycache.Cache, mutations *mutation.Cache, opts ...ServiceOption) *Service {
	s := &Service{
		api:       api,
		queries:   queries,
		mutations: mutations,
		pageSize:  DefaultPageSize,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PageSize returns the list page size.
func (s *Service) PageSize() int { return s.pageSize }

// List returns the post list, loading page 1 when it is absent or stale.
func (s *Service) List(ctx context.Context) (Listing[Post], error) {
	e, err := s.queries.EnsureFetched(ctx, s.api.ListQuery(s.pageSize))
	return listingOf[Post](e), err
}

// ListNext loads the next page of the post list.
func (s *Service) ListNext(ctx context.Context) (Listing[Post], error) {
	e, err := s.queries.FetchNext(ctx, Keys.List(s.pageSize))
	return listingOf[Post](e), err
}

// PeekList returns the cached post list without fetching.
func (s *Service) PeekList() Listing[Post] {
	return listingOf[Post](s.queries.Read(Keys.List(s.pageSize)))
}

// Get returns a single post through the detail store. A failed read is
// returned as a *failure.Failure whose Retry reads the post again.
func (s *Service) Get(ctx context.Context, id int) (Post, error) {
	key := Keys.Detail(id)
	fetch := func(ctx context.Context) (Post, error) {
		return s.api.GetPost(ctx, id)
	}

	post, err := querycache.Detail(ctx, s.queries, key, fetch)
	if err != nil {
		return post, querycache.DetailFailure(s.queries, key, err, fetch)
	}
	return post, nil
}

// Create adds a post. Post lists are stale when it returns.
func (s *Service) Create(ctx context.Context, in PostInput) (Post, error) {
	return mutate[Post](ctx, s, s.api.CreatePost(), in)
}

// Update replaces post id.
func (s *Service) Update(ctx context.Context, id int, in PostInput) (Post, error) {
	return mutate[Post](ctx, s, s.api.UpdatePost(), UpdatePostVars{ID: id, Input: in})
}

// Delete removes post id.
func (s *Service) Delete(ctx context.Context, id int) error {
	_, err := mutate[int](ctx, s, s.api.DeletePost(), id)
	return err
}

// Comments returns the comment list of postID.
func (s *Service) Comments(ctx context.Context, postID int) (Listing[Comment], error) {
	e, err := s.queries.EnsureFetched(ctx, s.api.CommentsQuery(postID, s.pageSize))
	return listingOf[Comment](e), err
}

// CommentsNext loads the next page of comments of postID.
func (s *Service) CommentsNext(ctx context.Context, postID int) (Listing[Comment], error) {
	e, err := s.queries.FetchNext(ctx, Keys.CommentList(postID, s.pageSize))
	return listingOf[Comment](e), err
}

// PeekComments returns the cached comment list of postID without fetching.
func (s *Service) PeekComments(postID int) Listing[Comment] {
	return listingOf[Comment](s.queries.Read(Keys.CommentList(postID, s.pageSize)))
}

// CreateComment adds a comment to postID.
func (s *Service) CreateComment(ctx context.Context, postID int, in CommentInput) (Comment, error) {
	return mutate[Comment](ctx, s, s.api.CreateComment(), CreateCommentVars{PostID: postID, Input: in})
}

// UpdateComment replaces comment id of postID.
func (s *Service) UpdateComment(ctx context.Context, postID, id int, in CommentInput) (Comment, error) {
	return mutate[Comment](ctx, s, s.api.UpdateComment(), UpdateCommentVars{PostID: postID, ID: id, Input: in})
}

// DeleteComment removes comment id of postID.
func (s *Service) DeleteComment(ctx context.Context, postID, id int) error {
	_, err := mutate[CommentRef](ctx, s, s.api.DeleteComment(), CommentRef{PostID: postID, ID: id})
	return err
}

// mutate runs op once through the mutation cache. A failure comes back as a
// *failure.Failure whose Retry re-sends vars.
func mutate[R any](ctx context.Context, s *Service, op cache.Operation, vars any) (R, error) {
	var zero R
	result, err := s.mutations.Mutate(ctx, op, vars)
	if err != nil {
		s.logger.Debug("posts mutation failed", zap.String("operation", op.Name), zap.Error(err))
		return zero, err
	}
	typed, ok := result.(R)
	if !ok {
		return zero, fmt.Errorf("%s returned %T: %w", op.Name, result, cache.ErrInvalidResultType)
	}
	return typed, nil
}
