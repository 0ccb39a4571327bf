package scanner

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"cadenza/internal/catalog"
	"cadenza/internal/db"
	"cadenza/internal/logging"
	"cadenza/internal/media"
)

// stubReader serves synthetic metadata so tests do not need parseable audio
// files. Paths without an entry fail extraction, like a corrupt file would.
// Extraction workers call read concurrently.
type stubReader struct {
	mu     sync.Mutex
	byPath map[string]media.TrackMetadata
	calls  map[string]int
}

func newStubReader() *stubReader {
	return &stubReader{
		byPath: map[string]media.TrackMetadata{},
		calls:  map[string]int{},
	}
}

func (r *stubReader) read(path string) (media.TrackMetadata, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.calls[path]++
	meta, ok := r.byPath[path]
	if !ok {
		return media.TrackMetadata{}, fmt.Errorf("unparseable file %s", path)
	}
	return meta, nil
}

func (r *stubReader) callCount(path string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[path]
}

type testLibrary struct {
	root     string
	engine   *Engine
	reader   *stubReader
	database *sql.DB
}

func newTestLibrary(t *testing.T) *testLibrary {
	t.Helper()

	database, err := db.Open(filepath.Join(t.TempDir(), "library.db"))
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	reader := newStubReader()
	engine := NewEngine(database, Options{
		Logger:       logging.New(io.Discard, "ERROR"),
		ReadMetadata: reader.read,
		Concurrency:  2,
	})

	return &testLibrary{root: t.TempDir(), engine: engine, reader: reader, database: database}
}

func (l *testLibrary) addAudio(t *testing.T, relPath string, meta media.TrackMetadata) string {
	t.Helper()
	path := l.writeFile(t, relPath, []byte("not really audio"))
	l.reader.byPath[path] = meta
	return path
}

func (l *testLibrary) writeFile(t *testing.T, relPath string, data []byte) string {
	t.Helper()
	path := filepath.Join(l.root, filepath.FromSlash(relPath))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", relPath, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", relPath, err)
	}
	return path
}

func (l *testLibrary) run(t *testing.T) (*catalog.Snapshot, Totals) {
	t.Helper()
	snapshot, totals, err := l.engine.Run(context.Background(), l.root)
	if err != nil {
		t.Fatalf("sync pass: %v", err)
	}
	return snapshot, totals
}

func pngBytes(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x * 7), G: uint8(y * 11), B: 99, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode test png: %v", err)
	}
	return buf.Bytes()
}

func TestSingleTrackEndToEnd(t *testing.T) {
	t.Parallel()
	lib := newTestLibrary(t)

	trackPath := lib.addAudio(t, "A/track1.mp3", media.TrackMetadata{
		Title:      "First Song",
		Album:      "Debut",
		Performers: []string{"Artist A"},
		Genres:     []string{"rock"},
		Year:       2003,
		TrackNo:    1,
		DurationMS: 200_000,
		Bitrate:    192,
		Codec:      "MPEG Version 1 Layer 3",
	})
	coverData := pngBytes(t, 8, 8)
	coverPath := lib.writeFile(t, "A/cover.jpg", coverData)

	snapshot, totals := lib.run(t)

	track, ok := snapshot.TracksByPath[trackPath]
	if !ok {
		t.Fatal("track not indexed")
	}
	if track.Title != "First Song" || track.TrackNo != 1 {
		t.Fatalf("unexpected track fields: %+v", track)
	}
	if track.Format == nil || track.Format.Name != "MP3 (192Kbps)" {
		t.Fatalf("unexpected format: %+v", track.Format)
	}
	if track.StartFrac != 0 || track.EndFrac != 1 {
		t.Fatalf("physical track must span the whole file: %v..%v", track.StartFrac, track.EndFrac)
	}

	if _, ok := snapshot.Artist("artist a"); !ok {
		t.Fatal("performer not resolved")
	}
	if _, ok := snapshot.GenresByName["Rock"]; !ok {
		t.Fatal("genre not canonicalized to Rock")
	}
	if _, ok := snapshot.YearsByNumber[2003]; !ok {
		t.Fatal("year bucket missing")
	}

	album, ok := snapshot.AlbumsByKey[catalog.AlbumKey{Title: "Debut", Artist: "Artist A"}]
	if !ok {
		t.Fatal("album not resolved under (title, album artist) key")
	}
	if track.Album != album {
		t.Fatal("track not linked to its album")
	}
	if album.Folder == nil || album.Folder.Path != filepath.Dir(trackPath) {
		t.Fatalf("album folder not derived from track set: %+v", album.Folder)
	}

	artwork, ok := snapshot.ArtworksByPath[coverPath]
	if !ok {
		t.Fatal("external artwork not indexed")
	}
	if artwork.Hash != media.HashBytes(coverData) {
		t.Fatal("artwork hash must be the digest of the source bytes")
	}
	if artwork.Role != catalog.RoleCoverFront {
		t.Fatalf("cover.jpg should classify as front cover, got %s", artwork.Role)
	}
	if album.Cover != artwork {
		t.Fatal("album cover not picked from folder candidates")
	}

	if totals.NewTracks != 1 || totals.NewArtworks != 1 || totals.NewAlbums != 1 {
		t.Fatalf("unexpected totals: %+v", totals)
	}
}

func TestSecondPassIsIdempotent(t *testing.T) {
	t.Parallel()
	lib := newTestLibrary(t)

	trackPath := lib.addAudio(t, "A/track1.mp3", media.TrackMetadata{
		Title:      "First Song",
		Album:      "Debut",
		Performers: []string{"Artist A"},
		DurationMS: 200_000,
		Codec:      "FLAC",
		Bitrate:    900,
	})
	lib.writeFile(t, "A/cover.png", pngBytes(t, 4, 4))

	first, _ := lib.run(t)
	second, totals := lib.run(t)

	if totals.NewTracks != 0 || totals.NewArtworks != 0 || totals.NewAlbums != 0 || totals.Pruned != 0 {
		t.Fatalf("second pass over unchanged tree must write nothing: %+v", totals)
	}
	if len(second.TracksByPath) != len(first.TracksByPath) {
		t.Fatal("track count changed between passes")
	}
	if len(second.ArtworksByHash) != len(first.ArtworksByHash) {
		t.Fatal("artwork count changed between passes")
	}
	if lib.reader.callCount(trackPath) != 1 {
		t.Fatalf("metadata extracted %d times, want 1", lib.reader.callCount(trackPath))
	}
}

func TestOrphanPruning(t *testing.T) {
	t.Parallel()
	lib := newTestLibrary(t)

	trackPath := lib.addAudio(t, "A/track1.mp3", media.TrackMetadata{
		Title:      "First Song",
		Album:      "Debut",
		Performers: []string{"Artist A"},
		Publisher:  "Label X",
		Year:       1999,
		DurationMS: 100_000,
		Codec:      "FLAC",
	})
	coverPath := lib.writeFile(t, "A/cover.jpg", pngBytes(t, 4, 4))

	lib.run(t)

	if err := os.Remove(trackPath); err != nil {
		t.Fatalf("remove track: %v", err)
	}
	if err := os.Remove(coverPath); err != nil {
		t.Fatalf("remove cover: %v", err)
	}

	snapshot, totals := lib.run(t)

	if len(snapshot.TracksByPath) != 0 {
		t.Fatal("deleted track still cataloged")
	}
	if len(snapshot.AlbumsByKey) != 0 {
		t.Fatal("empty album not pruned")
	}
	if len(snapshot.ArtworksByHash) != 0 {
		t.Fatal("vanished artwork not pruned")
	}
	if _, ok := snapshot.PublishersByName["Label X"]; ok {
		t.Fatal("orphaned publisher not pruned")
	}
	if _, ok := snapshot.YearsByNumber[1999]; ok {
		t.Fatal("orphaned year not pruned")
	}
	if _, ok := snapshot.Artist("Artist A"); ok {
		t.Fatal("orphaned artist not pruned")
	}
	if totals.Pruned == 0 {
		t.Fatal("prune total not reported")
	}
}

func TestUnknownArtistSentinelSurvivesPruning(t *testing.T) {
	t.Parallel()
	lib := newTestLibrary(t)

	trackPath := lib.addAudio(t, "untagged.mp3", media.TrackMetadata{
		DurationMS: 60_000,
		Codec:      "MP3",
		Bitrate:    128,
	})

	first, _ := lib.run(t)
	if track := first.TracksByPath[trackPath]; len(track.Artists) != 1 || track.Artists[0].Name != catalog.UnknownArtistName {
		t.Fatalf("performerless track must get the unknown-artist sentinel: %+v", track.Artists)
	}

	if err := os.Remove(trackPath); err != nil {
		t.Fatalf("remove track: %v", err)
	}
	second, _ := lib.run(t)

	if _, ok := second.Artist(catalog.UnknownArtistName); !ok {
		t.Fatal("unknown-artist sentinel must survive pruning")
	}
}

func TestFailedExtractionIsDiscardedOnce(t *testing.T) {
	t.Parallel()
	lib := newTestLibrary(t)

	badPath := lib.writeFile(t, "broken.flac", []byte("garbage"))

	first, totals := lib.run(t)
	if totals.Discarded != 1 {
		t.Fatalf("discarded total = %d, want 1", totals.Discarded)
	}
	if _, ok := first.DiscardedByPath[badPath]; !ok {
		t.Fatal("failed file not recorded as discarded")
	}

	_, totals = lib.run(t)
	if totals.Discarded != 0 {
		t.Fatal("discarded file retried on the next pass")
	}
	if lib.reader.callCount(badPath) != 1 {
		t.Fatalf("extraction attempted %d times, want 1", lib.reader.callCount(badPath))
	}
}

func TestEmbeddedArtworkDedupAgainstExternal(t *testing.T) {
	t.Parallel()
	lib := newTestLibrary(t)

	imageData := pngBytes(t, 6, 6)
	lib.writeFile(t, "A/cover.png", imageData)
	trackPath := lib.addAudio(t, "A/song.mp3", media.TrackMetadata{
		Title:      "Song",
		Album:      "Album",
		Performers: []string{"Someone"},
		DurationMS: 90_000,
		Codec:      "MP3",
		Bitrate:    192,
		Pictures:   []media.EmbeddedPicture{{Mime: "image/png", Data: imageData}},
	})

	snapshot, totals := lib.run(t)

	if len(snapshot.ArtworksByHash) != 1 {
		t.Fatalf("identical bytes must resolve to one artwork, got %d", len(snapshot.ArtworksByHash))
	}
	if totals.NewArtworks != 1 {
		t.Fatalf("NewArtworks = %d, want 1", totals.NewArtworks)
	}
	track := snapshot.TracksByPath[trackPath]
	if len(track.Artworks) != 1 {
		t.Fatalf("track artwork links = %d, want 1", len(track.Artworks))
	}
}

func TestPlaylistResolution(t *testing.T) {
	t.Parallel()
	lib := newTestLibrary(t)

	first := lib.addAudio(t, "A/one.mp3", media.TrackMetadata{Title: "One", DurationMS: 1000, Codec: "MP3"})
	second := lib.addAudio(t, "A/two.mp3", media.TrackMetadata{Title: "Two", DurationMS: 1000, Codec: "MP3"})
	playlistPath := lib.writeFile(t, "mix.m3u", []byte("# a mix\nA/one.mp3\nA/two.mp3\nA/missing.mp3\n"))

	snapshot, totals := lib.run(t)

	entity, ok := snapshot.PlaylistsByPath[playlistPath]
	if !ok {
		t.Fatal("playlist not indexed")
	}
	if entity.Name != "mix" {
		t.Fatalf("playlist name = %q, want mix", entity.Name)
	}
	if len(entity.Items) != 2 {
		t.Fatalf("playlist items = %d, want 2 (missing entries skipped)", len(entity.Items))
	}
	if entity.Items[0].Track.Path != first || entity.Items[1].Track.Path != second {
		t.Fatal("playlist order not preserved")
	}
	if totals.NewPlaylists != 1 {
		t.Fatalf("NewPlaylists = %d, want 1", totals.NewPlaylists)
	}
}

func TestCueSheetSplitsSharedFile(t *testing.T) {
	t.Parallel()
	lib := newTestLibrary(t)

	physical := lib.addAudio(t, "B/album.flac", media.TrackMetadata{
		Title:      "Album Rip",
		Performers: []string{"Band"},
		DurationMS: 600_000,
		Codec:      "FLAC",
		Bitrate:    900,
	})
	cue := "" +
		"PERFORMER \"Band\"\n" +
		"TITLE \"Long Album\"\n" +
		"FILE \"album.flac\" WAVE\n" +
		"  TRACK 01 AUDIO\n" +
		"    TITLE \"Opener\"\n" +
		"    INDEX 01 00:00:00\n" +
		"  TRACK 02 AUDIO\n" +
		"    TITLE \"Closer\"\n" +
		"    INDEX 01 05:00:00\n"
	lib.writeFile(t, "B/album.cue", []byte(cue))

	snapshot, _ := lib.run(t)

	if _, ok := snapshot.TracksByPath[physical]; ok {
		t.Fatal("whole-file track must be superseded by its slices")
	}

	opener, ok := snapshot.TracksByPath[catalog.VirtualTrackPath(physical, 1)]
	if !ok {
		t.Fatal("first virtual track missing")
	}
	closer, ok := snapshot.TracksByPath[catalog.VirtualTrackPath(physical, 2)]
	if !ok {
		t.Fatal("second virtual track missing")
	}

	if opener.Title != "Opener" || closer.Title != "Closer" {
		t.Fatalf("cue titles not applied: %q, %q", opener.Title, closer.Title)
	}
	if opener.StartFrac != 0 || opener.EndFrac != 0.5 {
		t.Fatalf("opener spans %v..%v, want 0..0.5", opener.StartFrac, opener.EndFrac)
	}
	if closer.StartFrac != 0.5 || closer.EndFrac != 1 {
		t.Fatalf("closer spans %v..%v, want 0.5..1", closer.StartFrac, closer.EndFrac)
	}
	if !opener.IsVirtual() || !closer.IsVirtual() {
		t.Fatal("slices must report as virtual tracks")
	}

	album, ok := snapshot.AlbumsByKey[catalog.AlbumKey{Title: "Long Album", Artist: "Band"}]
	if !ok {
		t.Fatal("cue album not resolved")
	}
	if opener.Album != album || closer.Album != album {
		t.Fatal("virtual tracks not linked to the cue album")
	}

	// The split must hold across passes: the physical file stays on disk but
	// is not re-indexed, and the slices are not duplicated.
	again, totals := lib.run(t)
	if totals.NewTracks != 0 || totals.Pruned != 0 {
		t.Fatalf("resync after split must be a no-op: %+v", totals)
	}
	if _, ok := again.TracksByPath[physical]; ok {
		t.Fatal("physical track resurrected on resync")
	}
}

func TestCancelledPassPublishesNothing(t *testing.T) {
	t.Parallel()
	lib := newTestLibrary(t)
	lib.addAudio(t, "a.mp3", media.TrackMetadata{DurationMS: 1000, Codec: "MP3"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	snapshot, _, err := lib.engine.Run(ctx, lib.root)
	if err == nil {
		t.Fatal("cancelled pass must report an error")
	}
	if snapshot != nil {
		t.Fatal("cancelled pass must not yield a snapshot")
	}
}

func TestAlbumArtistInferenceAcrossTracks(t *testing.T) {
	t.Parallel()
	lib := newTestLibrary(t)

	for i, performer := range []string{"P One", "P Two", "P Three"} {
		lib.addAudio(t, fmt.Sprintf("C/%d.mp3", i+1), media.TrackMetadata{
			Title:      fmt.Sprintf("Track %d", i+1),
			Album:      "Compilation",
			Performers: []string{performer},
			DurationMS: 1000,
			Codec:      "MP3",
		})
	}

	snapshot, _ := lib.run(t)

	album, ok := snapshot.AlbumsByKey[catalog.AlbumKey{Title: "Compilation", Artist: catalog.VariousArtistsName}]
	if !ok {
		t.Fatalf("three performers must infer %s, have keys %v", catalog.VariousArtistsName, albumKeys(snapshot))
	}
	if album.Artist.Name != catalog.VariousArtistsName {
		t.Fatalf("album artist = %q", album.Artist.Name)
	}
}

func TestStaleDiscPruned(t *testing.T) {
	t.Parallel()
	lib := newTestLibrary(t)

	lib.addAudio(t, "S/d1.mp3", media.TrackMetadata{
		Title:      "Side One",
		Album:      "Sides",
		Performers: []string{"Band"},
		DiscNo:     1,
		TrackNo:    1,
		DurationMS: 1000,
		Codec:      "MP3",
	})
	discTwoPath := lib.addAudio(t, "S/d2.mp3", media.TrackMetadata{
		Title:      "Side Two",
		Album:      "Sides",
		Performers: []string{"Band"},
		DiscNo:     2,
		TrackNo:    1,
		DurationMS: 1000,
		Codec:      "MP3",
	})

	first, _ := lib.run(t)
	album := first.AlbumsByKey[catalog.AlbumKey{Title: "Sides", Artist: "Band"}]
	if album == nil {
		t.Fatal("album not resolved")
	}
	if len(first.DiscsOf(album)) != 2 {
		t.Fatalf("discs after first pass = %d, want 2", len(first.DiscsOf(album)))
	}

	if err := os.Remove(discTwoPath); err != nil {
		t.Fatalf("remove disc two: %v", err)
	}
	second, _ := lib.run(t)

	album = second.AlbumsByKey[catalog.AlbumKey{Title: "Sides", Artist: "Band"}]
	if album == nil {
		t.Fatal("album must survive losing one of its discs")
	}
	discs := second.DiscsOf(album)
	numbers := make([]int, 0, len(discs))
	for _, disc := range discs {
		numbers = append(numbers, disc.Number)
	}
	if len(numbers) != 1 || numbers[0] != 1 {
		t.Fatalf("disc numbers = %v, want [1]", numbers)
	}
}

func TestTrackSurvivesFailedJunctionInsert(t *testing.T) {
	t.Parallel()
	lib := newTestLibrary(t)

	trackPath := lib.addAudio(t, "J/tagged.mp3", media.TrackMetadata{
		Title:      "Tagged",
		Performers: []string{"Someone"},
		Genres:     []string{"rock"},
		DurationMS: 1000,
		Codec:      "MP3",
	})
	if _, err := lib.database.Exec(
		"CREATE TRIGGER genre_link_fault BEFORE INSERT ON track_genres BEGIN SELECT RAISE(ABORT, 'simulated write failure'); END",
	); err != nil {
		t.Fatalf("install fault trigger: %v", err)
	}

	snapshot, totals := lib.run(t)

	track, ok := snapshot.TracksByPath[trackPath]
	if !ok {
		t.Fatal("track lost to a failed genre link")
	}
	if len(track.Artists) != 1 || track.Artists[0].Name != "Someone" {
		t.Fatalf("surviving artist link damaged: %+v", track.Artists)
	}
	if totals.NewTracks != 1 {
		t.Fatalf("NewTracks = %d, want 1", totals.NewTracks)
	}
}

func TestAlbumGainingTrackIsRefinalized(t *testing.T) {
	t.Parallel()
	lib := newTestLibrary(t)

	lib.addAudio(t, "G/one.mp3", media.TrackMetadata{
		Title:      "One",
		Album:      "Grow",
		Performers: []string{"Band"},
		DurationMS: 1000,
		Codec:      "MP3",
	})
	first, _ := lib.run(t)

	album := first.AlbumsByKey[catalog.AlbumKey{Title: "Grow", Artist: "Band"}]
	if album == nil {
		t.Fatal("album not resolved")
	}
	if album.Cover != nil {
		t.Fatal("no cover exists yet")
	}

	lib.addAudio(t, "G/two.mp3", media.TrackMetadata{
		Title:      "Two",
		Album:      "Grow",
		Performers: []string{"Band"},
		DurationMS: 1000,
		Codec:      "MP3",
	})
	lib.writeFile(t, "G/cover.jpg", pngBytes(t, 4, 4))
	second, totals := lib.run(t)

	album = second.AlbumsByKey[catalog.AlbumKey{Title: "Grow", Artist: "Band"}]
	if album == nil {
		t.Fatal("album lost between passes")
	}
	if totals.NewAlbums != 0 {
		t.Fatalf("a second track for the same album must not create one: %+v", totals)
	}
	if len(second.TracksOf(album)) != 2 {
		t.Fatalf("album tracks = %d, want 2", len(second.TracksOf(album)))
	}
	if album.Cover == nil {
		t.Fatal("album gaining a track kept its stale cover state")
	}
}

func TestAlbumArtistInferenceSpansPasses(t *testing.T) {
	t.Parallel()
	lib := newTestLibrary(t)

	for i, performer := range []string{"P One", "P Two"} {
		lib.addAudio(t, fmt.Sprintf("C/%d.mp3", i+1), media.TrackMetadata{
			Title:      fmt.Sprintf("Track %d", i+1),
			Album:      "Compilation",
			Performers: []string{performer},
			DurationMS: 1000,
			Codec:      "MP3",
		})
	}
	lib.run(t)

	lateTrack := lib.addAudio(t, "C/3.mp3", media.TrackMetadata{
		Title:      "Track 3",
		Album:      "Compilation",
		Performers: []string{"P Three"},
		DurationMS: 1000,
		Codec:      "MP3",
	})
	snapshot, _ := lib.run(t)

	// The earlier performers count toward the inference; without them the
	// late track would land on a (Compilation, P Three) album.
	various := snapshot.AlbumsByKey[catalog.AlbumKey{Title: "Compilation", Artist: catalog.VariousArtistsName}]
	if various == nil {
		t.Fatalf("late third performer must infer %s, have keys %v", catalog.VariousArtistsName, albumKeys(snapshot))
	}
	if track := snapshot.TracksByPath[lateTrack]; track.Album != various {
		t.Fatal("late track not linked to the inferred album")
	}
}

func albumKeys(snapshot *catalog.Snapshot) []catalog.AlbumKey {
	var keys []catalog.AlbumKey
	for key := range snapshot.AlbumsByKey {
		keys = append(keys, key)
	}
	return keys
}
