package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"cadenza/internal/config"
	"cadenza/internal/db"
	"cadenza/internal/library"
	"cadenza/internal/logging"
	"cadenza/internal/media"
	"cadenza/internal/scanner"
)

func main() {
	var (
		configPath  = flag.String("config", "", "config file path")
		libraryRoot = flag.String("root", "", "library root directory (overrides config)")
		runSync     = flag.Bool("sync", false, "run one synchronization pass and exit")
		watch       = flag.Bool("watch", false, "sync, then watch the library for changes")
		discarded   = flag.Bool("discarded", false, "list files the sync engine gave up on")
	)
	flag.Parse()

	if err := run(*configPath, *libraryRoot, *runSync, *watch, *discarded); err != nil {
		log.Fatal(err)
	}
}

func run(configPath, rootOverride string, runSync, watch, listDiscarded bool) error {
	cfg, err := config.LoadConfigFile(configPath)
	if err != nil {
		return err
	}
	if rootOverride != "" {
		cfg.LibraryRoot = config.ExpandHome(rootOverride)
	}
	if cfg.LibraryRoot == "" {
		return fmt.Errorf("no library root configured; pass -root or set library_root in the config file")
	}
	root, err := filepath.Abs(cfg.LibraryRoot)
	if err != nil {
		return fmt.Errorf("resolve library root: %w", err)
	}

	logger := logging.New(os.Stderr, cfg.LogLevel)

	paths, err := config.ResolvePaths()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	database, info, err := db.OpenLibrary(ctx, paths.DBPath, root)
	if err != nil {
		return err
	}
	defer database.Close()
	logger.Printf("[INFO] library %s (schema v%d) at %s", root, info.SchemaVersion, paths.DBPath)

	service := scanner.NewService(database, root, scanner.Options{
		Logger:      logger,
		Concurrency: cfg.ScanConcurrency,
		Thumbnails: media.Thumbnailer{
			CacheDir: paths.CoverCacheDir,
			Edge:     cfg.ThumbnailEdge,
		},
	})

	if listDiscarded {
		return printDiscarded(ctx, library.NewBrowseRepository(database))
	}

	if runSync || watch {
		if err := service.Sync(ctx); err != nil {
			return err
		}
		status := service.GetStatus()
		logger.Printf("[INFO] %d files seen, %d indexed, %d pruned, %d discarded",
			status.LastFilesSeen, status.LastIndexed, status.LastPruned, status.LastDiscarded)
	}

	if watch {
		watcher := scanner.NewWatcher(service, root, logger,
			time.Duration(cfg.WatchDebounceMS)*time.Millisecond)
		logger.Printf("[INFO] watching %s", root)
		if err := watcher.Run(ctx); err != nil && ctx.Err() == nil {
			return err
		}
		return nil
	}

	if !runSync {
		flag.Usage()
	}
	return nil
}

func printDiscarded(ctx context.Context, repo *library.BrowseRepository) error {
	items, err := repo.ListDiscarded(ctx)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		fmt.Println("no discarded files")
		return nil
	}
	for _, item := range items {
		fmt.Printf("%s\t%s\t%s\n", item.DiscardedAt, item.Path, item.Reason)
	}
	return nil
}
