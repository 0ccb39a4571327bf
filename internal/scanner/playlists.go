package scanner

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"cadenza/internal/catalog"
	"cadenza/internal/playlist"
)

func (p *syncPass) reconcilePlaylists(ctx context.Context) error {
	files := append([]walkedFile(nil), p.walked.playlists...)
	sort.Slice(files, func(i, j int) bool { return files[i].path < files[j].path })

	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, known := p.snap.PlaylistsByPath[file.path]; known {
			continue
		}
		if _, skipped := p.snap.DiscardedByPath[file.path]; skipped {
			continue
		}

		split := false
		entries, err := playlist.Parse(file.path, func(sheet *playlist.CueSheet) error {
			split = true
			return p.applyCueSheet(ctx, sheet)
		})
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.discard(ctx, file.path, err.Error())
			continue
		}
		if split {
			// The cue's tracks were materialized as virtual tracks; the sheet
			// itself is not a playlist.
			continue
		}

		if err := p.createPlaylist(ctx, file, entries); err != nil {
			if failed := p.itemFailed(ctx, err, "create playlist", file.path); failed != nil {
				return failed
			}
		}
	}
	return nil
}

func (p *syncPass) createPlaylist(ctx context.Context, file walkedFile, entries []string) error {
	folder, err := p.resolver.Folder(ctx, filepath.Dir(file.path))
	if err != nil {
		return err
	}

	base := filepath.Base(file.path)
	entity := &catalog.Playlist{
		Path:   file.path,
		Name:   strings.TrimSuffix(base, filepath.Ext(base)),
		Folder: folder,
	}
	if err := p.engine.store.InsertPlaylist(ctx, entity); err != nil {
		return err
	}

	position := 0
	for _, entry := range entries {
		track, ok := p.snap.TracksByPath[entry]
		if !ok {
			p.engine.log.Printf("[DEBUG] playlist %s references unindexed file %s", file.path, entry)
			continue
		}
		if err := p.engine.store.InsertPlaylistTrack(ctx, entity, track, position); err != nil {
			return err
		}
		entity.Items = append(entity.Items, catalog.PlaylistItem{Track: track, Position: position})
		position++
	}

	p.snap.PlaylistsByPath[file.path] = entity
	p.totals.NewPlaylists++
	return nil
}

// applyCueSheet materializes a splitting cue sheet as virtual tracks. Every
// FILE entry must already be an indexed track with a known duration; any
// failure abandons the whole sheet and the caller discards it. Re-running
// over an already-split sheet is a no-op, the virtual paths are known.
func (p *syncPass) applyCueSheet(ctx context.Context, sheet *playlist.CueSheet) error {
	dir := filepath.Dir(sheet.Path)

	type splitTarget struct {
		physical *catalog.Track
		cues     []playlist.CueTrack
	}
	var targets []splitTarget

	for _, fileRef := range sheet.Files {
		cues := sheet.TracksForFile(fileRef)
		if len(cues) == 0 {
			continue
		}

		physPath := fileRef
		if !filepath.IsAbs(physPath) {
			physPath = filepath.Join(dir, physPath)
		}
		physPath = filepath.Clean(physPath)

		physical, ok := p.snap.TracksByPath[physPath]
		if !ok {
			if p.alreadySplit(physPath, cues) {
				continue
			}
			return fmt.Errorf("cue references unindexed file %s", fileRef)
		}
		if physical.DurationMS <= 0 {
			return fmt.Errorf("cue target %s has no known duration", fileRef)
		}
		targets = append(targets, splitTarget{physical: physical, cues: cues})
	}

	var createdAlbums []*catalog.Album
	for _, target := range targets {
		if err := ctx.Err(); err != nil {
			return err
		}
		album, err := p.splitTrack(ctx, sheet, target.physical, target.cues)
		if err != nil {
			return err
		}
		if album != nil {
			createdAlbums = append(createdAlbums, album)
		}
	}

	// The album phase has already run by now, so albums born from a cue sheet
	// get their derived fields filled in here.
	for _, album := range createdAlbums {
		if err := p.finishAlbum(ctx, album); err != nil {
			return err
		}
	}
	return nil
}

// alreadySplit reports whether a previous pass has replaced the physical
// track with this sheet's virtual slices.
func (p *syncPass) alreadySplit(physPath string, cues []playlist.CueTrack) bool {
	for _, cue := range cues {
		if _, ok := p.snap.TracksByPath[catalog.VirtualTrackPath(physPath, cue.Number)]; !ok {
			return false
		}
	}
	return true
}

func (p *syncPass) splitTrack(ctx context.Context, sheet *playlist.CueSheet, physical *catalog.Track, cues []playlist.CueTrack) (*catalog.Album, error) {
	durationSec := float64(physical.DurationMS) / 1000

	album := physical.Album
	var createdAlbum *catalog.Album
	if sheet.Title != "" {
		albumArtistName := sheet.Performer
		if albumArtistName == "" {
			var performers []string
			for _, cue := range cues {
				performers = append(performers, cue.Performer)
			}
			albumArtistName = catalog.InferAlbumArtistName(nil, performers)
		}
		albumArtist, err := p.resolver.Artist(ctx, albumArtistName)
		if err != nil {
			return nil, err
		}
		var created bool
		album, created, err = p.resolver.Album(ctx, sheet.Title, albumArtist, physical.Year, p.now)
		if err != nil {
			return nil, err
		}
		if created {
			createdAlbum = album
			p.totals.NewAlbums++
		}
	}

	for i, cue := range cues {
		start := clampFraction(cue.Start() / durationSec)
		end := 1.0
		if i+1 < len(cues) {
			end = clampFraction(cues[i+1].Start() / durationSec)
		}
		if end < start {
			end = start
		}

		virtualPath := catalog.VirtualTrackPath(physical.Path, cue.Number)
		if _, exists := p.snap.TracksByPath[virtualPath]; exists {
			continue
		}

		virtual := *physical
		virtual.ID = 0
		virtual.Path = virtualPath
		virtual.TrackNo = cue.Number
		virtual.StartFrac = start
		virtual.EndFrac = end
		virtual.DurationMS = int((end - start) * durationSec * 1000)
		virtual.Album = album
		virtual.AddedAt = p.now
		if cue.Title != "" {
			virtual.Title = cue.Title
		}

		performerName := cue.Performer
		if performerName == "" {
			performerName = sheet.Performer
		}
		if performerName != "" {
			artist, err := p.resolver.Artist(ctx, performerName)
			if err != nil {
				return createdAlbum, err
			}
			virtual.Artists = []*catalog.Artist{artist}
		}

		if err := p.engine.store.InsertTrack(ctx, &virtual); err != nil {
			return createdAlbum, err
		}
		p.snap.TracksByPath[virtualPath] = &virtual
		p.totals.NewTracks++

		// Junction rows fail independently, same as for physical tracks.
		for _, artist := range virtual.Artists {
			if err := p.engine.store.InsertTrackArtist(ctx, &virtual, artist); err != nil {
				if failed := p.itemFailed(ctx, err, "link track artist", virtualPath); failed != nil {
					return createdAlbum, failed
				}
			}
		}
		for _, composer := range virtual.Composers {
			if err := p.engine.store.InsertTrackComposer(ctx, &virtual, composer); err != nil {
				if failed := p.itemFailed(ctx, err, "link track composer", virtualPath); failed != nil {
					return createdAlbum, failed
				}
			}
		}
		for _, entity := range virtual.Genres {
			if err := p.engine.store.InsertTrackGenre(ctx, &virtual, entity); err != nil {
				if failed := p.itemFailed(ctx, err, "link track genre", virtualPath); failed != nil {
					return createdAlbum, failed
				}
			}
		}
		for _, artwork := range virtual.Artworks {
			if err := p.engine.store.InsertTrackArtwork(ctx, &virtual, artwork); err != nil {
				if failed := p.itemFailed(ctx, err, "link track artwork", virtualPath); failed != nil {
					return createdAlbum, failed
				}
			}
		}

		if album != nil {
			discNo := virtual.DiscNo
			if discNo <= 0 {
				discNo = 1
			}
			if _, err := p.resolver.Disc(ctx, album, discNo); err != nil {
				return createdAlbum, err
			}
		}
	}

	// The whole-file track is superseded by its slices.
	if err := p.engine.store.DeleteTrack(ctx, physical); err != nil {
		return createdAlbum, err
	}
	delete(p.snap.TracksByPath, physical.Path)
	return createdAlbum, nil
}

func clampFraction(value float64) float64 {
	switch {
	case value < 0:
		return 0
	case value > 1:
		return 1
	default:
		return value
	}
}
