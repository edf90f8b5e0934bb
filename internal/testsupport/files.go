package testsupport

import (
	"os"
	"path/filepath"
	"testing"
)

// matroskaMagic is the EBML header every .mkv file starts with.
var matroskaMagic = []byte{0x1a, 0x45, 0xdf, 0xa3}

// WriteVideo creates a source file of exactly size bytes (at least one) that
// starts with a Matroska header. The content hash only looks at name and
// size, so two calls with the same base name and size yield one identity.
func WriteVideo(t testing.TB, path string, size int64) string {
	t.Helper()
	if size <= 0 {
		size = 1
	}
	data := make([]byte, size)
	copy(data, matroskaMagic)
	writeBytes(t, path, data)
	return path
}

// WriteRelease lays out a release directory under parent holding one video
// named after the release, plus any extra files (samples, nfo) given by base
// name. It returns the path of the main video.
func WriteRelease(t testing.TB, parent, release string, size int64, extras ...string) string {
	t.Helper()
	dir := filepath.Join(parent, release)
	video := WriteVideo(t, filepath.Join(dir, release+".mkv"), size)
	for _, name := range extras {
		WriteVideo(t, filepath.Join(dir, name), 8)
	}
	return video
}

// Symlink points link at dest, creating the library folders above it.
func Symlink(t testing.TB, dest, link string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(link), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", link, err)
	}
	if err := os.Symlink(dest, link); err != nil {
		t.Fatalf("symlink %s -> %s: %v", link, dest, err)
	}
}

func writeBytes(t testing.TB, path string, data []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
