package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

// mockCacheService for testing GetOrFetch function
type mockCacheService struct {
	result any
	err    error
}

func (m *mockCacheService) GetOrFetch(ctx context.Context, key string, fetchFn any) (any, error) {
	return m.result, m.err
}

func (m *mockCacheService) Delete(ctx context.Context, key string) error {
	return nil
}

func (m *mockCacheService) DeleteByPrefix(ctx context.Context, prefix string) error {
	return nil
}

func (m *mockCacheService) InvalidateKeys(ctx context.Context, keys []string) error {
	return nil
}

func (m *mockCacheService) Keys() []string { return nil }

func TestDetailStore_Contract(t *testing.T) {
	store, err := NewDetailStore(Config{
		Capacity:           50,
		NumShards:          2,
		TTL:                time.Minute,
		EvictionPercentage: 10,
	})
	if err != nil {
		t.Fatalf("NewDetailStore: %v", err)
	}

	ctx := context.Background()
	key := BuildKey("posts", "detail", 3).String()
	calls := 0
	fetch := func(ctx context.Context) (string, error) {
		calls++
		return "post-3", nil
	}

	for i := 0; i < 2; i++ {
		got, err := GetOrFetch(ctx, store, key, fetch)
		if err != nil {
			t.Fatalf("GetOrFetch: %v", err)
		}
		if got != "post-3" {
			t.Errorf("expected post-3, got %q", got)
		}
	}
	if calls != 1 {
		t.Errorf("expected a single fetch, got %d", calls)
	}

	if keys := store.Keys(); len(keys) != 1 || keys[0] != key {
		t.Errorf("unexpected keys %v", keys)
	}

	if err := store.DeleteByPrefix(ctx, BuildKey("posts").String()); err != nil {
		t.Fatalf("DeleteByPrefix: %v", err)
	}
	if _, err := GetOrFetch(ctx, store, key, fetch); err != nil {
		t.Fatalf("GetOrFetch after delete: %v", err)
	}
	if calls != 2 {
		t.Errorf("expected a refetch after DeleteByPrefix, got %d fetches", calls)
	}
}

func TestNewDetailStore_InvalidConfig(t *testing.T) {
	if _, err := NewDetailStore(Config{}); err == nil {
		t.Fatal("expected an error for an empty config")
	}
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config should be valid: %v", err)
	}
}

func TestGetOrFetch_NilInterfacePanic(t *testing.T) {
	mock := &mockCacheService{
		result: nil,
		err:    nil,
	}

	type SomeInterface interface {
		DoSomething() string
	}

	// This should not panic - it should return zero value of SomeInterface (which is nil)
	result, err := GetOrFetch[SomeInterface](context.Background(), mock, "test-key", func(ctx context.Context) (SomeInterface, error) {
		return nil, nil
	})

	if err != nil {
		t.Errorf("expected no error but got: %v", err)
	}

	if result != nil {
		t.Errorf("expected nil result but got: %v", result)
	}
}

func TestGetOrFetch_NilPointerNoPanic(t *testing.T) {
	mock := &mockCacheService{
		result: (*string)(nil),
		err:    nil,
	}

	result, err := GetOrFetch[*string](context.Background(), mock, "test-key", func(ctx context.Context) (*string, error) {
		return nil, nil
	})

	if err != nil {
		t.Errorf("expected no error but got: %v", err)
	}

	if result != nil {
		t.Errorf("expected nil result but got: %v", result)
	}
}

func TestGetOrFetch_TypeAssertionFailure(t *testing.T) {
	mock := &mockCacheService{
		result: "wrong-type",
		err:    nil,
	}

	result, err := GetOrFetch[int](context.Background(), mock, "test-key", func(ctx context.Context) (int, error) {
		return 42, nil
	})

	if !errors.Is(err, ErrInvalidResultType) {
		t.Errorf("expected ErrInvalidResultType but got: %v", err)
	}

	if result != 0 {
		t.Errorf("expected zero value (0) but got: %v", result)
	}
}

func TestGetOrFetch_PropagatesError(t *testing.T) {
	boom := errors.New("boom")
	mock := &mockCacheService{err: boom}

	_, err := GetOrFetch[string](context.Background(), mock, "test-key", func(ctx context.Context) (string, error) {
		return "", boom
	})
	if !errors.Is(err, boom) {
		t.Errorf("expected boom, got %v", err)
	}
}

func TestGetOrFetch_ValidResult(t *testing.T) {
	expectedValue := "test-value"
	mock := &mockCacheService{
		result: expectedValue,
		err:    nil,
	}

	result, err := GetOrFetch[string](context.Background(), mock, "test-key", func(ctx context.Context) (string, error) {
		return expectedValue, nil
	})

	if err != nil {
		t.Errorf("expected no error but got: %v", err)
	}

	if result != expectedValue {
		t.Errorf("expected '%s' but got: '%s'", expectedValue, result)
	}
}
