package scanner

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// walkedFile is one classified file found during the walk.
type walkedFile struct {
	path string
	info fs.FileInfo
}

// walkResult is everything one filesystem walk collected. Nothing is written
// anywhere until reconciliation starts, so an aborted walk commits nothing.
type walkResult struct {
	folders   []string
	audio     []walkedFile
	images    []walkedFile
	playlists []walkedFile

	audioPaths map[string]struct{}
	imagePaths map[string]struct{}
}

func newWalkResult() *walkResult {
	return &walkResult{
		audioPaths: map[string]struct{}{},
		imagePaths: map[string]struct{}{},
	}
}

// walkLibrary enumerates root recursively, classifying every entry.
// Cancellation is checked before each file and before descending into each
// subdirectory; a cancelled walk returns ctx.Err and a nil result.
func walkLibrary(ctx context.Context, root string) (*walkResult, error) {
	cleanRoot := filepath.Clean(root)
	info, err := os.Stat(cleanRoot)
	if err != nil {
		return nil, fmt.Errorf("stat library root %s: %w", cleanRoot, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("library root %s is not a directory", cleanRoot)
	}

	result := newWalkResult()
	if err := walkDir(ctx, cleanRoot, result); err != nil {
		return nil, err
	}

	return result, nil
}

func walkDir(ctx context.Context, dir string, result *walkResult) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		// An unreadable directory loses its subtree but not the pass. No
		// folder is recorded for it either, its contents were never seen.
		return nil
	}
	result.folders = append(result.folders, dir)

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}

		path := filepath.Join(dir, entry.Name())
		if entry.IsDir() {
			if err := walkDir(ctx, path, result); err != nil {
				return err
			}
			continue
		}

		info, infoErr := entry.Info()
		if infoErr != nil {
			continue
		}

		switch Classify(entry.Name()) {
		case KindAudio:
			result.audio = append(result.audio, walkedFile{path: path, info: info})
			result.audioPaths[path] = struct{}{}
		case KindImage:
			result.images = append(result.images, walkedFile{path: path, info: info})
			result.imagePaths[path] = struct{}{}
		case KindPlaylist:
			result.playlists = append(result.playlists, walkedFile{path: path, info: info})
		}
	}

	return nil
}
