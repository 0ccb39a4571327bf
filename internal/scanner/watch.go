package scanner

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/bep/debounce"
	"github.com/fsnotify/fsnotify"
)

// Watcher triggers a full resync after library changes settle. Events are not
// interpreted individually; any activity marks the tree dirty and the
// debounced resync reconciles whatever actually changed.
type Watcher struct {
	service  *Service
	root     string
	log      *log.Logger
	debounce func(func())
}

func NewWatcher(service *Service, root string, logger *log.Logger, quiet time.Duration) *Watcher {
	if quiet <= 0 {
		quiet = 10 * time.Second
	}
	return &Watcher{
		service:  service,
		root:     root,
		log:      logger,
		debounce: debounce.New(quiet),
	}
}

// Run watches the library tree until ctx is cancelled. New directories are
// added to the watch as they appear.
func (w *Watcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := addRecursive(watcher, w.root); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op.Has(fsnotify.Create) {
				if info, statErr := os.Stat(event.Name); statErr == nil && info.IsDir() {
					if addErr := addRecursive(watcher, event.Name); addErr != nil {
						w.log.Printf("[WARN] watch new directory %s: %v", event.Name, addErr)
					}
				}
			}
			w.debounce(w.resync)

		case watchErr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.log.Printf("[WARN] watcher: %v", watchErr)
		}
	}
}

func (w *Watcher) resync() {
	w.log.Printf("[INFO] library changed, starting resync")
	if err := w.service.Sync(context.Background()); err != nil {
		if errors.Is(err, ErrSyncRunning) {
			return
		}
		w.log.Printf("[ERROR] resync: %v", err)
	}
}

func addRecursive(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, entry os.DirEntry, err error) error {
		if err != nil {
			// Unreadable subtrees are skipped, same as the sync walk.
			return nil
		}
		if !entry.IsDir() {
			return nil
		}
		if watchErr := watcher.Add(path); watchErr != nil {
			return fmt.Errorf("watch %s: %w", path, watchErr)
		}
		return nil
	})
}
