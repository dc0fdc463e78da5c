package cache

import (
	"context"
	"fmt"
	"reflect"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	goerrors "github.com/goliatone/go-errors"
)

// OperationKind tags an Operation as a query or a mutation.
type OperationKind int

const (
	KindQuery OperationKind = iota + 1
	KindMutation
)

func (k OperationKind) String() string {
	switch k {
	case KindQuery:
		return "query"
	case KindMutation:
		return "mutation"
	default:
		return "unknown"
	}
}

// PageFetchFn fetches the page identified by param.
type PageFetchFn func(ctx context.Context, param any) ([]any, error)

// NextPageParamFn derives the param of the page after last. Returning false marks
// the query as exhausted.
type NextPageParamFn func(last Page, pages []Page) (any, bool)

// MutateFn performs a write with the given variables.
type MutateFn func(ctx context.Context, variables any) (any, error)

// InvalidationFn lists the query keys a settled mutation makes stale.
type InvalidationFn func(variables, result any) []KeyPredicate

// Operation is either a paginated query or a mutation. Only the fields belonging
// to Kind are read.
type Operation struct {
	Kind OperationKind
	Name string

	// Query fields.
	Key              QueryKey
	InitialPageParam any
	FetchPage        PageFetchFn
	NextPageParam    NextPageParamFn
	// KeepEmptyPages stores an empty page even when it ends paging. By default
	// such a page only signals exhaustion and is discarded.
	KeepEmptyPages bool

	// Mutation fields.
	Execute     MutateFn
	Invalidates InvalidationFn
}

// QueryOption customizes an infinite query.
type QueryOption func(*Operation)

// WithNextPageParam replaces the default page counter.
func WithNextPageParam(fn NextPageParamFn) QueryOption {
	return func(op *Operation) {
		op.NextPageParam = fn
	}
}

// KeepEmptyPages stores empty terminal pages, for paging schemes where an empty
// page is data rather than the end marker.
func KeepEmptyPages() QueryOption {
	return func(op *Operation) {
		op.KeepEmptyPages = true
	}
}

// WithName sets the operation name used in logs and metrics.
func WithName(name string) QueryOption {
	return func(op *Operation) {
		op.Name = name
	}
}

// InfiniteQuery builds a query operation over a typed page fetcher.
func InfiniteQuery[T any](key QueryKey, initialParam any, fetch func(ctx context.Context, param any) ([]T, error), opts ...QueryOption) Operation {
	op := Operation{
		Kind:             KindQuery,
		Name:             key.Resource(),
		Key:              key,
		InitialPageParam: initialParam,
		NextPageParam:    NextPageNumber,
	}
	if fetch != nil {
		op.FetchPage = func(ctx context.Context, param any) ([]any, error) {
			items, err := fetch(ctx, param)
			if err != nil {
				return nil, err
			}
			out := make([]any, len(items))
			for i, item := range items {
				out[i] = item
			}
			return out, nil
		}
	}
	for _, opt := range opts {
		opt(&op)
	}
	return op
}

// Mutation builds a mutation operation over typed variables and result.
// invalidate may be nil when the write affects no cached query.
func Mutation[V, R any](name string, exec func(ctx context.Context, variables V) (R, error), invalidate func(variables V, result R) []KeyPredicate) Operation {
	op := Operation{
		Kind: KindMutation,
		Name: name,
	}
	if exec != nil {
		op.Execute = func(ctx context.Context, variables any) (any, error) {
			v, ok := variables.(V)
			if !ok && variables != nil {
				var zero V
				return nil, goerrors.New(
					fmt.Sprintf("mutation %s expects variables of type %T, got %T", name, zero, variables),
					goerrors.CategoryBadInput,
				).WithTextCode("INVALID_VARIABLES")
			}
			return exec(ctx, v)
		}
	}
	if invalidate != nil {
		op.Invalidates = func(variables, result any) []KeyPredicate {
			v, _ := variables.(V)
			r, _ := result.(R)
			return invalidate(v, r)
		}
	}
	return op
}

// Invalidate returns an InvalidationFn-compatible closure that always yields preds.
func Invalidate[V, R any](preds ...KeyPredicate) func(V, R) []KeyPredicate {
	return func(V, R) []KeyPredicate {
		return append([]KeyPredicate(nil), preds...)
	}
}

// NextPageNumber is the default page advance rule: integer page counter, and an
// empty page is terminal. Short pages are not treated as terminal.
func NextPageNumber(last Page, pages []Page) (any, bool) {
	if len(last.Items) == 0 {
		return nil, false
	}
	n, ok := last.Param.(int)
	if !ok {
		return nil, false
	}
	return n + 1, true
}

// InvalidationsFor returns the predicates a successful mutation applies.
func (o Operation) InvalidationsFor(variables, result any) []KeyPredicate {
	if o.Invalidates == nil {
		return nil
	}
	return o.Invalidates(variables, result)
}

// Validate checks the fields required by the operation kind.
func (o Operation) Validate() error {
	var err error
	switch o.Kind {
	case KindQuery:
		err = validation.ValidateStruct(&o,
			validation.Field(&o.Key, validation.By(requireKey)),
			validation.Field(&o.FetchPage, validation.By(requireFunc)),
			validation.Field(&o.NextPageParam, validation.By(requireFunc)),
		)
	case KindMutation:
		err = validation.ValidateStruct(&o,
			validation.Field(&o.Name, validation.Required),
			validation.Field(&o.Execute, validation.By(requireFunc)),
		)
	default:
		return goerrors.New("operation kind must be query or mutation", goerrors.CategoryValidation).
			WithTextCode("INVALID_OPERATION")
	}
	if err != nil {
		return goerrors.FromOzzoValidation(err, fmt.Sprintf("invalid %s operation", o.Kind)).
			WithTextCode("INVALID_OPERATION")
	}
	return nil
}

func requireKey(value any) error {
	if k, ok := value.(QueryKey); !ok || k.IsZero() {
		return validation.NewError("validation_required_key", "query key is required")
	}
	return nil
}

func requireFunc(value any) error {
	rv := reflect.ValueOf(value)
	if !rv.IsValid() || (rv.Kind() == reflect.Func && rv.IsNil()) {
		return validation.NewError("validation_required_func", "function is required")
	}
	return nil
}
