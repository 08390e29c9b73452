package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"dvrestore/internal/dv"
)

// WriteCapture writes frames back to back into path and returns the path.
func WriteCapture(t testing.TB, path string, frames ...[]byte) string {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()
	for i, frame := range frames {
		if _, err := f.Write(frame); err != nil {
			t.Fatalf("write frame %d to %s: %v", i, path, err)
		}
	}
	return path
}

// WriteErrorMaps writes one sidecar record per map into path.
func WriteErrorMaps(t testing.TB, path string, maps ...dv.ErrorMap) string {
	t.Helper()

	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()
	for i, m := range maps {
		if err := dv.WriteErrorMap(f, m); err != nil {
			t.Fatalf("write error map %d: %v", i, err)
		}
	}
	return path
}
