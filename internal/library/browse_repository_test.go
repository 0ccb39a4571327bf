package library

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"cadenza/internal/catalog"
	"cadenza/internal/db"
)

// seedCatalog fills a fresh database with two artists, two albums and three
// tracks through the same write path the sync engine uses.
func seedCatalog(t *testing.T) *sql.DB {
	t.Helper()

	database, err := db.Open(filepath.Join(t.TempDir(), "library.db"))
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	ctx := context.Background()
	store := catalog.NewStore(database)

	folder := &catalog.Folder{Path: "/lib/a"}
	year := &catalog.Year{Number: 2001}
	format := &catalog.AudioFormat{Name: "FLAC (High bitrate)"}
	alpha := &catalog.Artist{Name: "Alpha"}
	beta := &catalog.Artist{Name: "Beta"}
	for _, insert := range []func() error{
		func() error { return store.InsertFolder(ctx, folder) },
		func() error { return store.InsertYear(ctx, year) },
		func() error { return store.InsertFormat(ctx, format) },
		func() error { return store.InsertArtist(ctx, alpha) },
		func() error { return store.InsertArtist(ctx, beta) },
	} {
		if err := insert(); err != nil {
			t.Fatalf("seed base entities: %v", err)
		}
	}

	albums := map[string]*catalog.Album{}
	for title, artist := range map[string]*catalog.Artist{"First": alpha, "Second": beta} {
		album := &catalog.Album{Title: title, Artist: artist, Year: year, AddedAt: "2026-01-01T00:00:00Z"}
		if err := store.InsertAlbum(ctx, album); err != nil {
			t.Fatalf("seed album %s: %v", title, err)
		}
		albums[title] = album
	}

	seedTrack := func(path, title string, album *catalog.Album, artist *catalog.Artist, trackNo int) {
		track := &catalog.Track{
			Path:       path,
			Name:       filepath.Base(path),
			Folder:     folder,
			Title:      title,
			Album:      album,
			Year:       year,
			TrackNo:    trackNo,
			DurationMS: 1000,
			Format:     format,
			EndFrac:    1,
			AddedAt:    "2026-01-01T00:00:00Z",
		}
		if err := store.InsertTrack(ctx, track); err != nil {
			t.Fatalf("seed track %s: %v", title, err)
		}
		if err := store.InsertTrackArtist(ctx, track, artist); err != nil {
			t.Fatalf("seed track artist: %v", err)
		}
	}
	seedTrack("/lib/a/1.flac", "Opening", albums["First"], alpha, 1)
	seedTrack("/lib/a/2.flac", "Middle", albums["First"], alpha, 2)
	seedTrack("/lib/a/3.flac", "Elsewhere", albums["Second"], beta, 1)

	discarded := &catalog.DiscardedFile{
		Path:        "/lib/a/broken.flac",
		Reason:      "read tags: corrupt header",
		DiscardedAt: "2026-01-02T00:00:00Z",
	}
	if err := store.InsertDiscarded(ctx, discarded); err != nil {
		t.Fatalf("seed discarded file: %v", err)
	}

	return database
}

func TestListArtistsWithCounts(t *testing.T) {
	t.Parallel()
	repo := NewBrowseRepository(seedCatalog(t))

	page, err := repo.ListArtists(context.Background(), "", 0, 0)
	if err != nil {
		t.Fatalf("list artists: %v", err)
	}

	if page.Page.Total != 2 || len(page.Items) != 2 {
		t.Fatalf("want 2 artists, got total=%d items=%d", page.Page.Total, len(page.Items))
	}
	if page.Items[0].Name != "Alpha" {
		t.Fatalf("artists not ordered by name: %q first", page.Items[0].Name)
	}
	if page.Items[0].TrackCount != 2 || page.Items[0].AlbumCount != 1 {
		t.Fatalf("Alpha counts wrong: %+v", page.Items[0])
	}
}

func TestListArtistsSearch(t *testing.T) {
	t.Parallel()
	repo := NewBrowseRepository(seedCatalog(t))

	page, err := repo.ListArtists(context.Background(), "bet", 0, 0)
	if err != nil {
		t.Fatalf("search artists: %v", err)
	}
	if len(page.Items) != 1 || page.Items[0].Name != "Beta" {
		t.Fatalf("search did not narrow to Beta: %+v", page.Items)
	}
}

func TestListAlbumsFilteredByArtist(t *testing.T) {
	t.Parallel()
	repo := NewBrowseRepository(seedCatalog(t))

	page, err := repo.ListAlbums(context.Background(), "", "alpha", 0, 0)
	if err != nil {
		t.Fatalf("list albums: %v", err)
	}
	if len(page.Items) != 1 {
		t.Fatalf("want 1 album for Alpha, got %d", len(page.Items))
	}
	album := page.Items[0]
	if album.Title != "First" || album.AlbumArtist != "Alpha" || album.TrackCount != 2 {
		t.Fatalf("unexpected album summary: %+v", album)
	}
	if album.Year == nil || *album.Year != 2001 {
		t.Fatalf("album year not joined: %+v", album.Year)
	}
}

func TestListTracksOrderAndFormat(t *testing.T) {
	t.Parallel()
	repo := NewBrowseRepository(seedCatalog(t))

	page, err := repo.ListTracks(context.Background(), "", "", "First", 0, 0)
	if err != nil {
		t.Fatalf("list tracks: %v", err)
	}
	if len(page.Items) != 2 {
		t.Fatalf("want 2 tracks on First, got %d", len(page.Items))
	}
	if page.Items[0].Title != "Opening" || page.Items[1].Title != "Middle" {
		t.Fatalf("tracks not in track-number order: %+v", page.Items)
	}
	if page.Items[0].Artists != "Alpha" {
		t.Fatalf("artist names not aggregated: %q", page.Items[0].Artists)
	}
	if page.Items[0].Format == nil || *page.Items[0].Format != "FLAC (High bitrate)" {
		t.Fatalf("format descriptor not joined: %+v", page.Items[0].Format)
	}
}

func TestGetAlbumDetail(t *testing.T) {
	t.Parallel()
	repo := NewBrowseRepository(seedCatalog(t))

	detail, err := repo.GetAlbumDetail(context.Background(), "First", "Alpha")
	if err != nil {
		t.Fatalf("album detail: %v", err)
	}
	if detail.TrackCount != 2 || len(detail.Tracks) != 2 {
		t.Fatalf("unexpected detail: count=%d tracks=%d", detail.TrackCount, len(detail.Tracks))
	}

	if _, err := repo.GetAlbumDetail(context.Background(), "Missing", "Alpha"); err != ErrAlbumNotFound {
		t.Fatalf("missing album error = %v, want ErrAlbumNotFound", err)
	}
}

func TestListDiscarded(t *testing.T) {
	t.Parallel()
	repo := NewBrowseRepository(seedCatalog(t))

	discarded, err := repo.ListDiscarded(context.Background())
	if err != nil {
		t.Fatalf("list discarded: %v", err)
	}
	if len(discarded) != 1 {
		t.Fatalf("want 1 discarded file, got %d", len(discarded))
	}
	if discarded[0].Path != "/lib/a/broken.flac" || discarded[0].Reason == "" {
		t.Fatalf("unexpected discarded entry: %+v", discarded[0])
	}
}
