// Package scanner implements the catalog synchronization engine: it walks the
// library tree, extracts metadata from new files, resolves entities against
// the in-memory snapshot and prunes what disappeared from disk. Passes are
// incremental and idempotent; a second pass over an unchanged tree writes
// nothing.
package scanner

import (
	"context"
	"database/sql"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/djherbis/times"

	"cadenza/internal/catalog"
	"cadenza/internal/genre"
	"cadenza/internal/logging"
	"cadenza/internal/media"
)

// MetadataReader extracts tags and audio properties from one audio file.
// Injectable so tests can feed synthetic metadata for files taglib cannot
// parse.
type MetadataReader func(path string) (media.TrackMetadata, error)

// ImageDecoder decodes raw image bytes.
type ImageDecoder func(data []byte) (media.ImageInfo, error)

// Options configures an Engine. Zero values fall back to the real extractors
// and GOMAXPROCS worker concurrency.
type Options struct {
	Logger       *log.Logger
	ReadMetadata MetadataReader
	DecodeImage  ImageDecoder
	Thumbnails   media.Thumbnailer
	Concurrency  int
}

// Engine runs synchronization passes against one catalog database.
type Engine struct {
	db           *sql.DB
	store        *catalog.Store
	log          *log.Logger
	readMetadata MetadataReader
	decodeImage  ImageDecoder
	thumbs       media.Thumbnailer
	concurrency  int
}

func NewEngine(database *sql.DB, opts Options) *Engine {
	engine := &Engine{
		db:           database,
		store:        catalog.NewStore(database),
		log:          opts.Logger,
		readMetadata: opts.ReadMetadata,
		decodeImage:  opts.DecodeImage,
		thumbs:       opts.Thumbnails,
		concurrency:  opts.Concurrency,
	}
	if engine.log == nil {
		engine.log = logging.Default()
	}
	if engine.readMetadata == nil {
		engine.readMetadata = media.ReadTrackMetadata
	}
	if engine.decodeImage == nil {
		engine.decodeImage = media.DecodeImage
	}
	if engine.concurrency <= 0 {
		engine.concurrency = runtime.GOMAXPROCS(0)
	}
	return engine
}

// Totals summarizes one pass.
type Totals struct {
	FoldersSeen   int
	AudioSeen     int
	ImagesSeen    int
	PlaylistsSeen int

	NewTracks    int
	NewArtworks  int
	NewAlbums    int
	NewPlaylists int
	Discarded    int
	Pruned       int
}

// Run executes one full synchronization pass over root and returns the
// reconciled snapshot. The walk and the snapshot load run concurrently; the
// reconciliation phases are serial. A cancelled context aborts between items
// and the snapshot is not returned, so callers never publish partial state.
func (e *Engine) Run(ctx context.Context, root string) (*catalog.Snapshot, Totals, error) {
	start := time.Now()

	var (
		walked  *walkResult
		snap    *catalog.Snapshot
		walkErr error
		loadErr error
	)
	var group sync.WaitGroup
	group.Add(2)
	go func() {
		defer group.Done()
		walked, walkErr = walkLibrary(ctx, root)
	}()
	go func() {
		defer group.Done()
		snap, loadErr = catalog.LoadSnapshot(ctx, e.db)
	}()
	group.Wait()

	var totals Totals
	if walkErr != nil {
		return nil, totals, walkErr
	}
	if loadErr != nil {
		return nil, totals, loadErr
	}

	totals.FoldersSeen = len(walked.folders)
	totals.AudioSeen = len(walked.audio)
	totals.ImagesSeen = len(walked.images)
	totals.PlaylistsSeen = len(walked.playlists)

	pass := &syncPass{
		engine:          e,
		snap:            snap,
		resolver:        catalog.NewResolver(snap, e.store),
		walked:          walked,
		now:             time.Now().UTC().Format(time.RFC3339),
		totals:          totals,
		touchedAlbums:   map[*catalog.Album]bool{},
		embeddedCover:   map[*catalog.Album]*catalog.Artwork{},
		albumPerformers: map[string][]string{},
	}

	phases := []func(context.Context) error{
		pass.reconcileFolders,
		pass.reconcileImages,
		pass.reconcileAudio,
		pass.reconcileAlbums,
		pass.reconcilePlaylists,
		pass.prune,
	}
	for _, phase := range phases {
		if err := phase(ctx); err != nil {
			return nil, pass.totals, err
		}
	}

	e.log.Printf("[INFO] sync pass complete in %s: %d tracks (+%d), %d artworks (+%d), %d pruned",
		time.Since(start).Round(time.Millisecond),
		len(snap.TracksByPath), pass.totals.NewTracks,
		len(snap.ArtworksByHash), pass.totals.NewArtworks,
		pass.totals.Pruned,
	)
	return snap, pass.totals, nil
}

// syncPass carries the mutable state of one pass.
type syncPass struct {
	engine   *Engine
	snap     *catalog.Snapshot
	resolver *catalog.Resolver
	walked   *walkResult
	now      string
	totals   Totals

	touchedAlbums   map[*catalog.Album]bool
	embeddedCover   map[*catalog.Album]*catalog.Artwork
	albumPerformers map[string][]string
}

// itemFailed decides whether a per-item error aborts the pass. Cancellation
// propagates; anything else is logged and the pass moves on.
func (p *syncPass) itemFailed(ctx context.Context, err error, what, path string) error {
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	p.engine.log.Printf("[WARN] %s %s: %v", what, path, err)
	return nil
}

// discard records a failed file so later passes skip it instead of retrying.
func (p *syncPass) discard(ctx context.Context, path, reason string) {
	entry := &catalog.DiscardedFile{Path: path, Reason: reason, DiscardedAt: p.now}
	if err := p.engine.store.InsertDiscarded(ctx, entry); err != nil {
		p.engine.log.Printf("[WARN] record discarded file %s: %v", path, err)
		return
	}
	p.snap.DiscardedByPath[path] = entry
	p.totals.Discarded++
	p.engine.log.Printf("[INFO] discarded %s: %s", path, reason)
}

func (p *syncPass) reconcileFolders(ctx context.Context) error {
	for _, dir := range p.walked.folders {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := p.resolver.Folder(ctx, dir); err != nil {
			if failed := p.itemFailed(ctx, err, "resolve folder", dir); failed != nil {
				return failed
			}
		}
	}
	return nil
}

// imageResult is one image read+decoded by a worker.
type imageResult struct {
	file walkedFile
	info media.ImageInfo
	err  error
}

func (p *syncPass) reconcileImages(ctx context.Context) error {
	var pending []walkedFile
	for _, file := range p.walked.images {
		if _, known := p.snap.ArtworksByPath[file.path]; known {
			continue
		}
		if _, skipped := p.snap.DiscardedByPath[file.path]; skipped {
			continue
		}
		pending = append(pending, file)
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].path < pending[j].path })

	results := make(chan imageResult)
	go p.decodeImages(ctx, pending, results)

	for result := range results {
		if result.err != nil {
			if ctx.Err() != nil {
				continue // drain; cancellation is reported below
			}
			p.discard(ctx, result.file.path, result.err.Error())
			continue
		}
		if err := p.registerExternalArtwork(ctx, result.file, result.info); err != nil {
			if failed := p.itemFailed(ctx, err, "register artwork", result.file.path); failed != nil {
				for range results {
				}
				return failed
			}
		}
	}
	return ctx.Err()
}

// decodeImages reads and decodes pending image files with bounded
// concurrency, then closes the results channel.
func (p *syncPass) decodeImages(ctx context.Context, pending []walkedFile, results chan<- imageResult) {
	defer close(results)

	semaphore := make(chan struct{}, p.engine.concurrency)
	var group sync.WaitGroup
	for _, file := range pending {
		if ctx.Err() != nil {
			break
		}
		semaphore <- struct{}{}
		group.Add(1)
		go func(file walkedFile) {
			defer group.Done()
			defer func() { <-semaphore }()

			data, err := os.ReadFile(file.path)
			if err != nil {
				results <- imageResult{file: file, err: err}
				return
			}
			info, err := p.engine.decodeImage(data)
			results <- imageResult{file: file, info: info, err: err}
		}(file)
	}
	group.Wait()
}

func (p *syncPass) registerExternalArtwork(ctx context.Context, file walkedFile, info media.ImageInfo) error {
	folder, err := p.resolver.Folder(ctx, filepath.Dir(file.path))
	if err != nil {
		return err
	}

	candidate := &catalog.Artwork{
		Hash:       info.Hash,
		SourcePath: file.path,
		SourceKind: catalog.SourceExternal,
		Role:       catalog.ArtworkRole(media.RoleForFilename(file.path)),
		Width:      info.Width,
		Height:     info.Height,
		Mime:       info.Mime,
		Folder:     folder,
	}
	artwork, created, err := p.resolver.Artwork(ctx, candidate)
	if err != nil {
		return err
	}
	if !created {
		// Same bytes under a new path; remember the path so the next pass
		// skips the file.
		p.snap.ArtworksByPath[file.path] = artwork
		return nil
	}

	p.totals.NewArtworks++
	p.writeThumbnail(info, file.path)
	return nil
}

func (p *syncPass) writeThumbnail(info media.ImageInfo, origin string) {
	if p.engine.thumbs.CacheDir == "" {
		return
	}
	if _, err := p.engine.thumbs.Write(info); err != nil {
		p.engine.log.Printf("[WARN] thumbnail %s: %v", origin, err)
	}
}

// extractedAudio is one audio file whose metadata extraction succeeded.
type extractedAudio struct {
	file walkedFile
	meta media.TrackMetadata
}

type audioResult struct {
	file walkedFile
	meta media.TrackMetadata
	err  error
}

func (p *syncPass) reconcileAudio(ctx context.Context) error {
	known := p.snap.KnownTrackFiles()

	var pending []walkedFile
	for _, file := range p.walked.audio {
		if known[file.path] {
			continue
		}
		if _, skipped := p.snap.DiscardedByPath[file.path]; skipped {
			continue
		}
		pending = append(pending, file)
	}

	results := make(chan audioResult)
	go p.extractAudio(ctx, pending, results)

	var extracted []extractedAudio
	for result := range results {
		if result.err != nil {
			if ctx.Err() != nil {
				continue
			}
			p.discard(ctx, result.file.path, result.err.Error())
			continue
		}
		extracted = append(extracted, extractedAudio{file: result.file, meta: result.meta})
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	// Deterministic indexing order regardless of worker scheduling.
	sort.Slice(extracted, func(i, j int) bool { return extracted[i].file.path < extracted[j].file.path })

	// Album-artist inference looks at all performers contributing to an album
	// tag, so collect them before any album is resolved. Tracks indexed on an
	// earlier pass count too; a performer arriving late must not restart the
	// inference from scratch.
	for _, track := range p.snap.TracksByPath {
		if track.Album == nil {
			continue
		}
		for _, artist := range track.Artists {
			p.albumPerformers[track.Album.Title] = append(p.albumPerformers[track.Album.Title], artist.Name)
		}
	}
	for _, item := range extracted {
		if item.meta.Album == "" {
			continue
		}
		p.albumPerformers[item.meta.Album] = append(p.albumPerformers[item.meta.Album], item.meta.Performers...)
	}

	for _, item := range extracted {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := p.indexTrack(ctx, item); err != nil {
			if failed := p.itemFailed(ctx, err, "index track", item.file.path); failed != nil {
				return failed
			}
		}
	}
	return nil
}

func (p *syncPass) extractAudio(ctx context.Context, pending []walkedFile, results chan<- audioResult) {
	defer close(results)

	semaphore := make(chan struct{}, p.engine.concurrency)
	var group sync.WaitGroup
	for _, file := range pending {
		if ctx.Err() != nil {
			break
		}
		semaphore <- struct{}{}
		group.Add(1)
		go func(file walkedFile) {
			defer group.Done()
			defer func() { <-semaphore }()

			meta, err := p.engine.readMetadata(file.path)
			results <- audioResult{file: file, meta: meta, err: err}
		}(file)
	}
	group.Wait()
}

func (p *syncPass) indexTrack(ctx context.Context, item extractedAudio) error {
	meta := item.meta
	path := item.file.path

	folder, err := p.resolver.Folder(ctx, filepath.Dir(path))
	if err != nil {
		return err
	}
	year, err := p.resolver.Year(ctx, meta.Year)
	if err != nil {
		return err
	}

	codec := meta.Codec
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	if codec == "" {
		codec = strings.ToUpper(ext)
	}
	format, err := p.resolver.Format(ctx, catalog.FormatDescriptor(codec, meta.Bitrate))
	if err != nil {
		return err
	}

	var performers []*catalog.Artist
	for _, name := range meta.Performers {
		artist, artistErr := p.resolver.Artist(ctx, name)
		if artistErr != nil {
			return artistErr
		}
		performers = append(performers, artist)
	}
	if len(performers) == 0 {
		unknown, unknownErr := p.resolver.UnknownArtist(ctx)
		if unknownErr != nil {
			return unknownErr
		}
		performers = append(performers, unknown)
	}

	var composers []*catalog.Artist
	for _, name := range meta.Composers {
		composer, composerErr := p.resolver.Artist(ctx, name)
		if composerErr != nil {
			return composerErr
		}
		composers = append(composers, composer)
	}

	var conductor, remixer *catalog.Artist
	if meta.Conductor != "" {
		if conductor, err = p.resolver.Artist(ctx, meta.Conductor); err != nil {
			return err
		}
	}
	if meta.Remixer != "" {
		if remixer, err = p.resolver.Artist(ctx, meta.Remixer); err != nil {
			return err
		}
	}

	var publisher *catalog.Publisher
	if meta.Publisher != "" {
		if publisher, err = p.resolver.Publisher(ctx, meta.Publisher); err != nil {
			return err
		}
	}

	var genres []*catalog.Genre
	seenGenres := map[string]struct{}{}
	for _, raw := range meta.Genres {
		for _, name := range genre.Canonicalize(raw) {
			if _, dup := seenGenres[name]; dup {
				continue
			}
			seenGenres[name] = struct{}{}
			entity, genreErr := p.resolver.Genre(ctx, name)
			if genreErr != nil {
				return genreErr
			}
			genres = append(genres, entity)
		}
	}

	var album *catalog.Album
	if meta.Album != "" {
		albumArtistName := catalog.InferAlbumArtistName(meta.AlbumArtists, p.albumPerformers[meta.Album])
		albumArtist, artistErr := p.resolver.Artist(ctx, albumArtistName)
		if artistErr != nil {
			return artistErr
		}
		var created bool
		album, created, err = p.resolver.Album(ctx, meta.Album, albumArtist, year, p.now)
		if err != nil {
			return err
		}
		if created {
			p.totals.NewAlbums++
		}
		p.touchedAlbums[album] = true
		discNo := meta.DiscNo
		if discNo <= 0 {
			discNo = 1
		}
		if _, err = p.resolver.Disc(ctx, album, discNo); err != nil {
			return err
		}
	}

	title := meta.Title
	baseName := filepath.Base(path)
	if title == "" {
		title = strings.TrimSuffix(baseName, filepath.Ext(baseName))
	}
	created, modified := fileTimes(item.file.info)

	track := &catalog.Track{
		Path:       path,
		Name:       baseName,
		Extension:  ext,
		Folder:     folder,
		Title:      title,
		Album:      album,
		Year:       year,
		TrackNo:    meta.TrackNo,
		DiscNo:     meta.DiscNo,
		DurationMS: meta.DurationMS,
		StartFrac:  0,
		EndFrac:    1,
		Bitrate:    meta.Bitrate,
		Codec:      codec,
		Format:     format,
		SampleRate: meta.SampleRate,
		Channels:   meta.Channels,
		Publisher:  publisher,
		Conductor:  conductor,
		Remixer:    remixer,
		Comment:    meta.Comment,
		AddedAt:    p.now,
		CreatedAt:  created,
		ModifiedAt: modified,
		Artists:    performers,
		Composers:  composers,
		Genres:     genres,
	}
	if err := p.engine.store.InsertTrack(ctx, track); err != nil {
		return err
	}
	p.snap.TracksByPath[path] = track
	p.totals.NewTracks++

	// Junction rows are independent of each other: losing one link is logged
	// and the rest of the track still lands.
	for _, artist := range performers {
		if err := p.engine.store.InsertTrackArtist(ctx, track, artist); err != nil {
			if failed := p.itemFailed(ctx, err, "link track artist", path); failed != nil {
				return failed
			}
		}
	}
	for _, composer := range composers {
		if err := p.engine.store.InsertTrackComposer(ctx, track, composer); err != nil {
			if failed := p.itemFailed(ctx, err, "link track composer", path); failed != nil {
				return failed
			}
		}
	}
	for _, entity := range genres {
		if err := p.engine.store.InsertTrackGenre(ctx, track, entity); err != nil {
			if failed := p.itemFailed(ctx, err, "link track genre", path); failed != nil {
				return failed
			}
		}
	}

	return p.attachEmbeddedPictures(ctx, track, album, folder, meta.Pictures)
}

// attachEmbeddedPictures resolves pictures carried inside the audio file's
// tags. An undecodable picture is skipped; it never discards the track.
func (p *syncPass) attachEmbeddedPictures(ctx context.Context, track *catalog.Track, album *catalog.Album, folder *catalog.Folder, pictures []media.EmbeddedPicture) error {
	for index, picture := range pictures {
		info, err := p.engine.decodeImage(picture.Data)
		if err != nil {
			p.engine.log.Printf("[DEBUG] embedded picture %d of %s: %v", index, track.Path, err)
			continue
		}

		candidate := &catalog.Artwork{
			Hash:       info.Hash,
			SourcePath: track.Path,
			SourceKind: catalog.SourceEmbedded,
			Role:       catalog.RoleCoverFront,
			Width:      info.Width,
			Height:     info.Height,
			Mime:       info.Mime,
			EmbedIndex: index,
			Folder:     folder,
		}
		artwork, created, err := p.resolver.Artwork(ctx, candidate)
		if err != nil {
			return err
		}
		if created {
			p.totals.NewArtworks++
			p.writeThumbnail(info, track.Path)
		}

		track.Artworks = append(track.Artworks, artwork)
		if err := p.engine.store.InsertTrackArtwork(ctx, track, artwork); err != nil {
			if failed := p.itemFailed(ctx, err, "link track artwork", track.Path); failed != nil {
				return failed
			}
		}
		if album != nil && p.embeddedCover[album] == nil && artwork.Role == catalog.RoleCoverFront {
			p.embeddedCover[album] = artwork
		}
	}
	return nil
}

// fileTimes derives catalog timestamps from filesystem metadata. Birth time
// is used where the platform records one; otherwise mtime stands in.
func fileTimes(info fs.FileInfo) (created, modified string) {
	ts := times.Get(info)
	modified = ts.ModTime().UTC().Format(time.RFC3339)
	created = modified
	if ts.HasBirthTime() {
		created = ts.BirthTime().UTC().Format(time.RFC3339)
	}
	return created, modified
}
