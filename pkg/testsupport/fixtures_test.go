package testsupport

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadFixture(t *testing.T) {
	path := WriteFixture(t, "test.txt", []byte("test fixture content"))

	result := LoadFixture(t, path)
	if string(result) != "test fixture content" {
		t.Errorf("expected %q, got %q", "test fixture content", result)
	}
}

func TestLoadFixtureJSON(t *testing.T) {
	path := WriteFixture(t, "environments.json", []byte(`{"name":"staging","timeout":10,"hosts":["a","b"]}`))

	var result struct {
		Name    string   `json:"name"`
		Timeout int      `json:"timeout"`
		Hosts   []string `json:"hosts"`
	}
	LoadFixtureJSON(t, path, &result)

	if result.Name != "staging" {
		t.Errorf("expected name=staging, got %v", result.Name)
	}
	if result.Timeout != 10 {
		t.Errorf("expected timeout=10, got %v", result.Timeout)
	}
	if len(result.Hosts) != 2 {
		t.Errorf("expected 2 hosts, got %v", result.Hosts)
	}
}

func TestCompareWithGolden_CreatesMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "golden", "out.txt")

	CompareWithGolden(t, path, []byte("first run"))

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("golden file was not created: %v", err)
	}
	if string(data) != "first run" {
		t.Errorf("expected golden content %q, got %q", "first run", data)
	}

	CompareWithGolden(t, path, []byte("first run"))
}

func TestPaths(t *testing.T) {
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"fixture", FixturePath("posts.json"), filepath.Join("testdata", "posts.json")},
		{"golden", GoldenPath("list.txt"), filepath.Join("testdata", "golden", "list.txt")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, tt.got)
			}
		})
	}
}
