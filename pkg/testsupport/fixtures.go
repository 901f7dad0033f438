package testsupport

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
)

// ReadFixture returns the contents of path, relative to the test's package
// directory.
func ReadFixture(tb testing.TB, path string) []byte {
	tb.Helper()

	data, err := os.ReadFile(path)
	if err != nil {
		tb.Fatalf("read fixture %s: %v", path, err)
	}
	return data
}

// DecodeFixture reads path as JSON into a T.
func DecodeFixture[T any](tb testing.TB, path string) T {
	tb.Helper()

	var out T
	if err := json.Unmarshal(ReadFixture(tb, path), &out); err != nil {
		tb.Fatalf("decode fixture %s: %v", path, err)
	}
	return out
}

// LoadFieldMaps reads a JSON array of objects, the shape repository Create
// accepts.
func LoadFieldMaps(tb testing.TB, path string) []map[string]any {
	tb.Helper()
	return DecodeFixture[[]map[string]any](tb, path)
}

// FixturePath joins filename onto the package testdata directory.
func FixturePath(filename string) string {
	return filepath.Join("testdata", filename)
}

// UniqueName returns prefix followed by a random suffix, for values that
// must not collide across tests sharing a store.
func UniqueName(prefix string) string {
	return prefix + "_" + uuid.NewString()[:8]
}
