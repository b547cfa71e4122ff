package testsupport

import (
	"testing"

	"retake/internal/runstate"
)

// MustOpenStore opens a run-state store and closes it when the test ends.
func MustOpenStore(t testing.TB, path string) *runstate.Store {
	t.Helper()

	store, err := runstate.Open(path)
	if err != nil {
		t.Fatalf("open run-state store: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}
