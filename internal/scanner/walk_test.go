package scanner

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestWalkClassifiesTree(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	mustWrite := func(rel string) string {
		path := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
		return path
	}
	audioPath := mustWrite("A/song.flac")
	mustWrite("A/cover.jpg")
	mustWrite("A/notes.txt")
	mustWrite("mix.m3u")

	result, err := walkLibrary(context.Background(), root)
	if err != nil {
		t.Fatalf("walk: %v", err)
	}

	if len(result.audio) != 1 || result.audio[0].path != audioPath {
		t.Fatalf("audio = %+v, want only %s", result.audio, audioPath)
	}
	if len(result.images) != 1 || len(result.playlists) != 1 {
		t.Fatalf("images = %d playlists = %d, want 1 and 1", len(result.images), len(result.playlists))
	}
	if len(result.folders) != 2 {
		t.Fatalf("folders = %v, want root and A", result.folders)
	}
}

func TestUnlistableDirectoryYieldsNoFolder(t *testing.T) {
	t.Parallel()

	// A regular file fails ReadDir the same way a permission-denied
	// directory would; neither may leave a folder record behind.
	path := filepath.Join(t.TempDir(), "opaque")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	result := newWalkResult()
	if err := walkDir(context.Background(), path, result); err != nil {
		t.Fatalf("walk: %v", err)
	}
	if len(result.folders) != 0 {
		t.Fatalf("folders = %v, want none when the listing fails", result.folders)
	}
}
