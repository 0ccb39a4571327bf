package scanner

import (
	"context"
	"strconv"

	"cadenza/internal/catalog"
)

// prune removes every entity whose backing file disappeared or that lost its
// last reference this pass. Order matters: artworks and tracks go first so
// the reference counts of albums, years, publishers and artists are final
// when they are examined.
func (p *syncPass) prune(ctx context.Context) error {
	if err := p.pruneArtworks(ctx); err != nil {
		return err
	}
	if err := p.pruneTracks(ctx); err != nil {
		return err
	}
	if err := p.prunePlaylists(ctx); err != nil {
		return err
	}
	if err := p.pruneAlbums(ctx); err != nil {
		return err
	}
	if err := p.pruneDiscs(ctx); err != nil {
		return err
	}
	if err := p.pruneYears(ctx); err != nil {
		return err
	}
	if err := p.prunePublishers(ctx); err != nil {
		return err
	}
	if err := p.pruneArtists(ctx); err != nil {
		return err
	}
	return p.pruneDiscarded(ctx)
}

// pruneArtworks drops external artworks whose source image is gone. Embedded
// artworks live as long as their track does and are handled by cascade.
func (p *syncPass) pruneArtworks(ctx context.Context) error {
	for path, artwork := range p.snap.ArtworksByPath {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, onDisk := p.walked.imagePaths[path]; onDisk {
			continue
		}
		if err := p.engine.store.DeleteArtwork(ctx, artwork); err != nil {
			if failed := p.itemFailed(ctx, err, "prune artwork", path); failed != nil {
				return failed
			}
			continue
		}
		delete(p.snap.ArtworksByPath, path)
		delete(p.snap.ArtworksByHash, artwork.Hash)
		p.clearArtworkRefs(artwork)
		p.totals.Pruned++
	}
	return nil
}

// clearArtworkRefs mirrors the database's ON DELETE SET NULL semantics in the
// in-memory snapshot.
func (p *syncPass) clearArtworkRefs(artwork *catalog.Artwork) {
	for _, album := range p.snap.AlbumsByKey {
		if album.Cover == artwork {
			album.Cover = nil
		}
		album.Artworks = removeArtwork(album.Artworks, artwork)
	}
	for _, track := range p.snap.TracksByPath {
		track.Artworks = removeArtwork(track.Artworks, artwork)
	}
	for _, artist := range p.snap.ArtistsByName {
		if artist.Artwork == artwork {
			artist.Artwork = nil
		}
	}
	for _, entity := range p.snap.GenresByName {
		if entity.Artwork == artwork {
			entity.Artwork = nil
		}
	}
	for _, publisher := range p.snap.PublishersByName {
		if publisher.Artwork == artwork {
			publisher.Artwork = nil
		}
	}
	for _, playlist := range p.snap.PlaylistsByPath {
		if playlist.Artwork == artwork {
			playlist.Artwork = nil
		}
	}
	for _, disc := range p.snap.DiscsByKey {
		if disc.Artwork == artwork {
			disc.Artwork = nil
		}
	}
}

func removeArtwork(artworks []*catalog.Artwork, target *catalog.Artwork) []*catalog.Artwork {
	result := artworks[:0]
	for _, artwork := range artworks {
		if artwork != target {
			result = append(result, artwork)
		}
	}
	return result
}

func (p *syncPass) pruneTracks(ctx context.Context) error {
	for path, track := range p.snap.TracksByPath {
		if err := ctx.Err(); err != nil {
			return err
		}
		base := catalog.VirtualBasePath(path)
		if _, onDisk := p.walked.audioPaths[base]; onDisk {
			continue
		}
		if err := p.engine.store.DeleteTrack(ctx, track); err != nil {
			if failed := p.itemFailed(ctx, err, "prune track", path); failed != nil {
				return failed
			}
			continue
		}
		delete(p.snap.TracksByPath, path)
		p.totals.Pruned++
	}
	return nil
}

func (p *syncPass) prunePlaylists(ctx context.Context) error {
	onDisk := make(map[string]struct{}, len(p.walked.playlists))
	for _, file := range p.walked.playlists {
		onDisk[file.path] = struct{}{}
	}

	for path, entity := range p.snap.PlaylistsByPath {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, ok := onDisk[path]; ok {
			continue
		}
		if err := p.engine.store.DeletePlaylist(ctx, entity); err != nil {
			if failed := p.itemFailed(ctx, err, "prune playlist", path); failed != nil {
				return failed
			}
			continue
		}
		delete(p.snap.PlaylistsByPath, path)
		p.totals.Pruned++
	}
	return nil
}

// pruneAlbums drops albums left with no tracks; their discs go with them by
// cascade.
func (p *syncPass) pruneAlbums(ctx context.Context) error {
	referenced := map[*catalog.Album]bool{}
	for _, track := range p.snap.TracksByPath {
		if track.Album != nil {
			referenced[track.Album] = true
		}
	}

	for key, album := range p.snap.AlbumsByKey {
		if err := ctx.Err(); err != nil {
			return err
		}
		if referenced[album] {
			continue
		}
		if err := p.engine.store.DeleteAlbum(ctx, album); err != nil {
			if failed := p.itemFailed(ctx, err, "prune album", album.Title); failed != nil {
				return failed
			}
			continue
		}
		delete(p.snap.AlbumsByKey, key)
		for discKey := range p.snap.DiscsByKey {
			if discKey.AlbumID == album.ID {
				delete(p.snap.DiscsByKey, discKey)
			}
		}
		p.totals.Pruned++
	}
	return nil
}

// pruneDiscs drops disc rows whose number no longer occurs in the surviving
// track set of their album. Albums deleted above already took their discs by
// cascade; this catches a disc that emptied while its album lives on.
func (p *syncPass) pruneDiscs(ctx context.Context) error {
	occupied := map[catalog.DiscKey]bool{}
	for _, track := range p.snap.TracksByPath {
		if track.Album == nil {
			continue
		}
		number := track.DiscNo
		if number <= 0 {
			number = 1
		}
		occupied[catalog.DiscKey{AlbumID: track.Album.ID, Number: number}] = true
	}

	for key, disc := range p.snap.DiscsByKey {
		if err := ctx.Err(); err != nil {
			return err
		}
		if occupied[key] {
			continue
		}
		if err := p.engine.store.DeleteDisc(ctx, disc); err != nil {
			if failed := p.itemFailed(ctx, err, "prune disc", strconv.Itoa(disc.Number)); failed != nil {
				return failed
			}
			continue
		}
		delete(p.snap.DiscsByKey, key)
		p.totals.Pruned++
	}
	return nil
}

func (p *syncPass) pruneYears(ctx context.Context) error {
	referenced := map[*catalog.Year]bool{}
	for _, track := range p.snap.TracksByPath {
		if track.Year != nil {
			referenced[track.Year] = true
		}
	}
	for _, album := range p.snap.AlbumsByKey {
		if album.Year != nil {
			referenced[album.Year] = true
		}
	}

	for number, year := range p.snap.YearsByNumber {
		if err := ctx.Err(); err != nil {
			return err
		}
		if referenced[year] {
			continue
		}
		if err := p.engine.store.DeleteYear(ctx, year); err != nil {
			if failed := p.itemFailed(ctx, err, "prune year", strconv.Itoa(year.Number)); failed != nil {
				return failed
			}
			continue
		}
		delete(p.snap.YearsByNumber, number)
		p.totals.Pruned++
	}
	return nil
}

func (p *syncPass) prunePublishers(ctx context.Context) error {
	referenced := map[*catalog.Publisher]bool{}
	for _, track := range p.snap.TracksByPath {
		if track.Publisher != nil {
			referenced[track.Publisher] = true
		}
	}

	for name, publisher := range p.snap.PublishersByName {
		if err := ctx.Err(); err != nil {
			return err
		}
		if referenced[publisher] {
			continue
		}
		if err := p.engine.store.DeletePublisher(ctx, publisher); err != nil {
			if failed := p.itemFailed(ctx, err, "prune publisher", name); failed != nil {
				return failed
			}
			continue
		}
		delete(p.snap.PublishersByName, name)
		p.totals.Pruned++
	}
	return nil
}

// pruneArtists drops artists no track or album references anymore. The
// unknown-artist sentinel always survives.
func (p *syncPass) pruneArtists(ctx context.Context) error {
	referenced := map[*catalog.Artist]bool{}
	for _, track := range p.snap.TracksByPath {
		for _, artist := range track.Artists {
			referenced[artist] = true
		}
		for _, composer := range track.Composers {
			referenced[composer] = true
		}
		if track.Conductor != nil {
			referenced[track.Conductor] = true
		}
		if track.Remixer != nil {
			referenced[track.Remixer] = true
		}
	}
	for _, album := range p.snap.AlbumsByKey {
		if album.Artist != nil {
			referenced[album.Artist] = true
		}
	}

	sentinel := catalog.ArtistKey(catalog.UnknownArtistName)
	for key, artist := range p.snap.ArtistsByName {
		if err := ctx.Err(); err != nil {
			return err
		}
		if key == sentinel || referenced[artist] {
			continue
		}
		if err := p.engine.store.DeleteArtist(ctx, artist); err != nil {
			if failed := p.itemFailed(ctx, err, "prune artist", artist.Name); failed != nil {
				return failed
			}
			continue
		}
		delete(p.snap.ArtistsByName, key)
		p.totals.Pruned++
	}
	return nil
}

// pruneDiscarded forgets discard records for files that left the library
// entirely, so a reintroduced file gets a fresh extraction attempt.
func (p *syncPass) pruneDiscarded(ctx context.Context) error {
	playlistPaths := make(map[string]struct{}, len(p.walked.playlists))
	for _, file := range p.walked.playlists {
		playlistPaths[file.path] = struct{}{}
	}

	for path := range p.snap.DiscardedByPath {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, ok := p.walked.audioPaths[path]; ok {
			continue
		}
		if _, ok := p.walked.imagePaths[path]; ok {
			continue
		}
		if _, ok := playlistPaths[path]; ok {
			continue
		}
		if err := p.engine.store.DeleteDiscarded(ctx, path); err != nil {
			if failed := p.itemFailed(ctx, err, "prune discarded file", path); failed != nil {
				return failed
			}
			continue
		}
		delete(p.snap.DiscardedByPath, path)
	}
	return nil
}
