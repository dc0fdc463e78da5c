package cache

import (
	"strings"
	"testing"
	"time"

	"github.com/goliatone/go-query-cache/pkg/testsupport"
)

// KeyScenario represents a test scenario loaded from fixtures
type KeyScenario struct {
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Cases       []KeyCase `json:"cases"`
}

// KeyCase represents individual test cases within a scenario
type KeyCase struct {
	Resource    string `json:"resource"`
	Args        []any  `json:"args"`
	ExpectedKey string `json:"expectedKey"`
}

// KeyFixtures represents the structure of the test fixture file
type KeyFixtures struct {
	Scenarios []KeyScenario `json:"scenarios"`
}

func joinWithSeparator(parts ...string) string {
	return strings.Join(parts, KeySeparator)
}

type serializerCase struct {
	name     string
	resource string
	args     []any
	want     string
}

func runSerializerCases(t *testing.T, tests []serializerCase) {
	t.Helper()
	serializer := NewDefaultKeySerializer()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := serializer.SerializeKey(tt.resource, tt.args...)
			if got != tt.want {
				t.Errorf("SerializeKey() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDefaultKeySerializer_BasicTypes(t *testing.T) {
	runSerializerCases(t, []serializerCase{
		{
			name:     "no args",
			resource: "posts",
			args:     []any{},
			want:     "posts",
		},
		{
			name:     "single int",
			resource: "posts",
			args:     []any{42},
			want:     joinWithSeparator("posts", "42"),
		},
		{
			name:     "multiple basic types",
			resource: "search",
			args:     []any{1, "hello", true, 3.14},
			want:     joinWithSeparator("search", "1", "hello", "true", "3.14"),
		},
		{
			name:     "string with special chars",
			resource: "search",
			args:     []any{"hello:world"},
			want:     joinWithSeparator("search", "hello:world"),
		},
	})
}

func TestDefaultKeySerializer_NilValues(t *testing.T) {
	runSerializerCases(t, []serializerCase{
		{
			name:     "nil interface",
			resource: "posts",
			args:     []any{nil},
			want:     joinWithSeparator("posts", "nil"),
		},
		{
			name:     "nil pointer",
			resource: "posts",
			args:     []any{(*int)(nil)},
			want:     joinWithSeparator("posts", "nil"),
		},
		{
			name:     "nil text marshaler pointer",
			resource: "posts",
			args:     []any{(*time.Time)(nil)},
			want:     joinWithSeparator("posts", "nil"),
		},
		{
			name:     "nil slice",
			resource: "posts",
			args:     []any{([]int)(nil)},
			want:     joinWithSeparator("posts", "slice:nil"),
		},
		{
			name:     "nil map",
			resource: "posts",
			args:     []any{(map[string]int)(nil)},
			want:     joinWithSeparator("posts", "map:nil"),
		},
	})
}

func TestDefaultKeySerializer_Collections(t *testing.T) {
	runSerializerCases(t, []serializerCase{
		{
			name:     "empty slice",
			resource: "posts",
			args:     []any{[]int{}},
			want:     joinWithSeparator("posts", "slice[0]:{}"),
		},
		{
			name:     "int slice",
			resource: "posts",
			args:     []any{[]int{1, 2, 3}},
			want:     joinWithSeparator("posts", "slice[3]:{1,2,3}"),
		},
		{
			name:     "nested slice",
			resource: "matrix",
			args:     []any{[][]int{{1, 2}, {3, 4}}},
			want:     joinWithSeparator("matrix", "slice[2]:{slice[2]:{1,2},slice[2]:{3,4}}"),
		},
		{
			name:     "int array",
			resource: "posts",
			args:     []any{[3]int{1, 2, 3}},
			want:     joinWithSeparator("posts", "array[3]:{1,2,3}"),
		},
		{
			name:     "empty map",
			resource: "posts",
			args:     []any{map[string]int{}},
			want:     joinWithSeparator("posts", "map[0]:{}"),
		},
		{
			name:     "string to int map",
			resource: "posts",
			args:     []any{map[string]int{"page": 2, "limit": 10}},
			want:     joinWithSeparator("posts", "map[2]:{limit=10,page=2}"),
		},
	})
}

func TestDefaultKeySerializer_Structs(t *testing.T) {
	type Filter struct {
		Author string
		Limit  int
	}

	type FilterWithPrivate struct {
		Author string
		Limit  int
		token  string
	}

	runSerializerCases(t, []serializerCase{
		{
			name:     "simple struct",
			resource: "posts",
			args:     []any{Filter{Author: "ana", Limit: 5}},
			want:     joinWithSeparator("posts", "struct:{Author:ana,Limit:5}"),
		},
		{
			name:     "struct with private field",
			resource: "posts",
			args:     []any{FilterWithPrivate{Author: "bo", Limit: 1, token: "secret"}},
			want:     joinWithSeparator("posts", "struct:{Author:bo,Limit:1}"),
		},
		{
			name:     "pointer to struct",
			resource: "posts",
			args:     []any{&Filter{Author: "ana", Limit: 5}},
			want:     joinWithSeparator("posts", "struct:{Author:ana,Limit:5}"),
		},
	})
}

func TestDefaultKeySerializer_TimeValues(t *testing.T) {
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.FixedZone("CET", 3600))

	runSerializerCases(t, []serializerCase{
		{
			name:     "time normalized to UTC",
			resource: "agenda",
			args:     []any{at},
			want:     joinWithSeparator("agenda", "time:2024-03-01T11:00:00Z"),
		},
		{
			name:     "duration",
			resource: "agenda",
			args:     []any{90 * time.Minute},
			want:     joinWithSeparator("agenda", "1h30m0s"),
		},
	})
}

func TestDefaultKeySerializer_Functions(t *testing.T) {
	serializer := NewDefaultKeySerializer()

	testFunc := func() {}

	key1 := serializer.SerializeKey("posts", testFunc)
	key2 := serializer.SerializeKey("posts", testFunc)

	if key1 != key2 {
		t.Errorf("Function serialization should be stable: %v != %v", key1, key2)
	}

	funcPrefix := joinWithSeparator("posts", "func") + ":"
	if !strings.HasPrefix(key1, funcPrefix) {
		t.Errorf("Function serialization should use func: prefix with pointer format, got: %v", key1)
	}

	ch := make(chan int)
	key := serializer.SerializeKey("posts", ch)
	if !strings.HasPrefix(key, joinWithSeparator("posts", "chan")+":") {
		t.Errorf("Channel should be serialized with chan: prefix, got: %v", key)
	}
}

func TestDefaultKeySerializer_MapOrderIndependence(t *testing.T) {
	serializer := NewDefaultKeySerializer()

	a := map[string]any{}
	a["limit"] = 20
	a["author"] = "ana"
	a["tags"] = []string{"go"}

	b := map[string]any{}
	b["tags"] = []string{"go"}
	b["author"] = "ana"
	b["limit"] = 20

	for i := 0; i < 20; i++ {
		if ka, kb := serializer.SerializeKey("posts", a), serializer.SerializeKey("posts", b); ka != kb {
			t.Fatalf("expected identical keys, got %q and %q", ka, kb)
		}
	}
}

func TestDefaultKeySerializer_Fixtures(t *testing.T) {
	serializer := NewDefaultKeySerializer()
	fixtures := loadKeyFixtures(t)

	for _, scenario := range fixtures.Scenarios {
		t.Run(scenario.Name, func(t *testing.T) {
			for _, tc := range scenario.Cases {
				got := serializer.SerializeKey(tc.Resource, tc.Args...)
				if got != tc.ExpectedKey {
					t.Errorf("SerializeKey(%s, %v) = %v, want %v", tc.Resource, tc.Args, got, tc.ExpectedKey)
				}
			}
		})
	}
}

func loadKeyFixtures(t *testing.T) KeyFixtures {
	t.Helper()

	var fixtures KeyFixtures
	testsupport.LoadFixtureJSON(t, testsupport.FixturePath("key_scenarios.json"), &fixtures)
	return fixtures
}

func BenchmarkDefaultKeySerializer(b *testing.B) {
	serializer := NewDefaultKeySerializer()
	args := []any{"list", map[string]any{"limit": 20, "author": "ana"}, []int{1, 2, 3}}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		serializer.SerializeKey("posts", args...)
	}
}
