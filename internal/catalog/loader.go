package catalog

import (
	"context"
	"database/sql"
	"fmt"
)

// LoadSnapshot reads every catalog table into memory and re-links foreign
// keys by identity. A dangling reference leaves the link nil; callers must
// tolerate that rather than fail the load.
func LoadSnapshot(ctx context.Context, database *sql.DB) (*Snapshot, error) {
	snapshot := NewSnapshot()
	links := newLinkTables()

	loaders := []struct {
		name string
		load func(context.Context, *sql.DB, *Snapshot, *linkTables) error
	}{
		{"folders", loadFolders},
		{"years", loadYears},
		{"audio formats", loadFormats},
		{"artworks", loadArtworks},
		{"artists", loadArtists},
		{"genres", loadGenres},
		{"publishers", loadPublishers},
		{"albums", loadAlbums},
		{"discs", loadDiscs},
		{"tracks", loadTracks},
		{"playlists", loadPlaylists},
		{"discarded files", loadDiscarded},
		{"junctions", loadJunctions},
	}
	for _, loader := range loaders {
		if err := loader.load(ctx, database, snapshot, links); err != nil {
			return nil, fmt.Errorf("load %s: %w", loader.name, err)
		}
	}

	return snapshot, nil
}

// linkTables indexes loaded entities by surrogate id for foreign-key
// relinking. Discarded once the snapshot is assembled.
type linkTables struct {
	folders    map[int64]*Folder
	years      map[int64]*Year
	formats    map[int64]*AudioFormat
	artworks   map[int64]*Artwork
	artists    map[int64]*Artist
	genres     map[int64]*Genre
	publishers map[int64]*Publisher
	albums     map[int64]*Album
	tracks     map[int64]*Track
	playlists  map[int64]*Playlist
}

func newLinkTables() *linkTables {
	return &linkTables{
		folders:    map[int64]*Folder{},
		years:      map[int64]*Year{},
		formats:    map[int64]*AudioFormat{},
		artworks:   map[int64]*Artwork{},
		artists:    map[int64]*Artist{},
		genres:     map[int64]*Genre{},
		publishers: map[int64]*Publisher{},
		albums:     map[int64]*Album{},
		tracks:     map[int64]*Track{},
		playlists:  map[int64]*Playlist{},
	}
}

func loadFolders(ctx context.Context, database *sql.DB, snapshot *Snapshot, links *linkTables) error {
	rows, err := database.QueryContext(ctx, "SELECT id, path FROM folders")
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		folder := &Folder{}
		if err := rows.Scan(&folder.ID, &folder.Path); err != nil {
			return fmt.Errorf("scan folder row: %w", err)
		}
		snapshot.FoldersByPath[folder.Path] = folder
		links.folders[folder.ID] = folder
	}

	return rows.Err()
}

func loadYears(ctx context.Context, database *sql.DB, snapshot *Snapshot, links *linkTables) error {
	rows, err := database.QueryContext(ctx, "SELECT id, number FROM years")
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		year := &Year{}
		if err := rows.Scan(&year.ID, &year.Number); err != nil {
			return fmt.Errorf("scan year row: %w", err)
		}
		snapshot.YearsByNumber[year.Number] = year
		links.years[year.ID] = year
	}

	return rows.Err()
}

func loadFormats(ctx context.Context, database *sql.DB, snapshot *Snapshot, links *linkTables) error {
	rows, err := database.QueryContext(ctx, "SELECT id, name FROM audio_formats")
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		format := &AudioFormat{}
		if err := rows.Scan(&format.ID, &format.Name); err != nil {
			return fmt.Errorf("scan audio format row: %w", err)
		}
		snapshot.FormatsByName[format.Name] = format
		links.formats[format.ID] = format
	}

	return rows.Err()
}

func loadArtworks(ctx context.Context, database *sql.DB, snapshot *Snapshot, links *linkTables) error {
	rows, err := database.QueryContext(
		ctx,
		"SELECT id, hash, source_path, source_kind, role, width, height, mime, embed_index, folder_id FROM artworks",
	)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		artwork := &Artwork{}
		var kind, role string
		var folderRef sql.NullInt64
		if err := rows.Scan(
			&artwork.ID,
			&artwork.Hash,
			&artwork.SourcePath,
			&kind,
			&role,
			&artwork.Width,
			&artwork.Height,
			&artwork.Mime,
			&artwork.EmbedIndex,
			&folderRef,
		); err != nil {
			return fmt.Errorf("scan artwork row: %w", err)
		}
		artwork.SourceKind = ArtworkSource(kind)
		artwork.Role = ArtworkRole(role)
		if folderRef.Valid {
			artwork.Folder = links.folders[folderRef.Int64]
		}

		snapshot.ArtworksByHash[artwork.Hash] = artwork
		if artwork.SourceKind == SourceExternal && artwork.SourcePath != "" {
			snapshot.ArtworksByPath[artwork.SourcePath] = artwork
		}
		links.artworks[artwork.ID] = artwork
	}

	return rows.Err()
}

func loadArtists(ctx context.Context, database *sql.DB, snapshot *Snapshot, links *linkTables) error {
	rows, err := database.QueryContext(ctx, "SELECT id, name, artwork_id FROM artists")
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		artist := &Artist{}
		var artworkRef sql.NullInt64
		if err := rows.Scan(&artist.ID, &artist.Name, &artworkRef); err != nil {
			return fmt.Errorf("scan artist row: %w", err)
		}
		if artworkRef.Valid {
			artist.Artwork = links.artworks[artworkRef.Int64]
		}
		snapshot.addArtist(artist)
		links.artists[artist.ID] = artist
	}

	return rows.Err()
}

func loadGenres(ctx context.Context, database *sql.DB, snapshot *Snapshot, links *linkTables) error {
	rows, err := database.QueryContext(ctx, "SELECT id, name, artwork_id FROM genres")
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		genre := &Genre{}
		var artworkRef sql.NullInt64
		if err := rows.Scan(&genre.ID, &genre.Name, &artworkRef); err != nil {
			return fmt.Errorf("scan genre row: %w", err)
		}
		if artworkRef.Valid {
			genre.Artwork = links.artworks[artworkRef.Int64]
		}
		snapshot.GenresByName[genre.Name] = genre
		links.genres[genre.ID] = genre
	}

	return rows.Err()
}

func loadPublishers(ctx context.Context, database *sql.DB, snapshot *Snapshot, links *linkTables) error {
	rows, err := database.QueryContext(ctx, "SELECT id, name, artwork_id FROM publishers")
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		publisher := &Publisher{}
		var artworkRef sql.NullInt64
		if err := rows.Scan(&publisher.ID, &publisher.Name, &artworkRef); err != nil {
			return fmt.Errorf("scan publisher row: %w", err)
		}
		if artworkRef.Valid {
			publisher.Artwork = links.artworks[artworkRef.Int64]
		}
		snapshot.PublishersByName[publisher.Name] = publisher
		links.publishers[publisher.ID] = publisher
	}

	return rows.Err()
}

func loadAlbums(ctx context.Context, database *sql.DB, snapshot *Snapshot, links *linkTables) error {
	rows, err := database.QueryContext(
		ctx,
		`SELECT id, title, artist_id, year_id, folder_id, cover_id,
		        added_at, created_at, modified_at, last_played_at
		 FROM albums`,
	)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		album := &Album{}
		var artistRef, yearRef, folderRef, coverRef sql.NullInt64
		var lastPlayed sql.NullString
		if err := rows.Scan(
			&album.ID,
			&album.Title,
			&artistRef,
			&yearRef,
			&folderRef,
			&coverRef,
			&album.AddedAt,
			&album.CreatedAt,
			&album.ModifiedAt,
			&lastPlayed,
		); err != nil {
			return fmt.Errorf("scan album row: %w", err)
		}
		if artistRef.Valid {
			album.Artist = links.artists[artistRef.Int64]
		}
		if yearRef.Valid {
			album.Year = links.years[yearRef.Int64]
		}
		if folderRef.Valid {
			album.Folder = links.folders[folderRef.Int64]
		}
		if coverRef.Valid {
			album.Cover = links.artworks[coverRef.Int64]
		}
		album.LastPlayedAt = lastPlayed.String

		snapshot.AlbumsByKey[KeyForAlbum(album)] = album
		links.albums[album.ID] = album
	}

	return rows.Err()
}

func loadDiscs(ctx context.Context, database *sql.DB, snapshot *Snapshot, links *linkTables) error {
	rows, err := database.QueryContext(ctx, "SELECT id, album_id, number, name, artwork_id FROM discs")
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		disc := &Disc{}
		var albumRef int64
		var artworkRef sql.NullInt64
		if err := rows.Scan(&disc.ID, &albumRef, &disc.Number, &disc.Name, &artworkRef); err != nil {
			return fmt.Errorf("scan disc row: %w", err)
		}
		disc.Album = links.albums[albumRef]
		if artworkRef.Valid {
			disc.Artwork = links.artworks[artworkRef.Int64]
		}
		snapshot.DiscsByKey[DiscKey{AlbumID: albumRef, Number: disc.Number}] = disc
	}

	return rows.Err()
}

func loadTracks(ctx context.Context, database *sql.DB, snapshot *Snapshot, links *linkTables) error {
	rows, err := database.QueryContext(
		ctx,
		`SELECT id, path, name, extension, folder_id, title, album_id, year_id,
		        track_no, disc_no, duration_ms, start_frac, end_frac,
		        bitrate, codec, format_id, sample_rate, channels,
		        publisher_id, conductor_id, remixer_id, comment, rating,
		        added_at, created_at, modified_at, last_played_at, play_count
		 FROM tracks`,
	)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		track := &Track{}
		var folderRef, yearRef, formatRef sql.NullInt64
		var albumRef, publisherRef, conductorRef, remixerRef sql.NullInt64
		var lastPlayed sql.NullString
		if err := rows.Scan(
			&track.ID,
			&track.Path,
			&track.Name,
			&track.Extension,
			&folderRef,
			&track.Title,
			&albumRef,
			&yearRef,
			&track.TrackNo,
			&track.DiscNo,
			&track.DurationMS,
			&track.StartFrac,
			&track.EndFrac,
			&track.Bitrate,
			&track.Codec,
			&formatRef,
			&track.SampleRate,
			&track.Channels,
			&publisherRef,
			&conductorRef,
			&remixerRef,
			&track.Comment,
			&track.Rating,
			&track.AddedAt,
			&track.CreatedAt,
			&track.ModifiedAt,
			&lastPlayed,
			&track.PlayCount,
		); err != nil {
			return fmt.Errorf("scan track row: %w", err)
		}
		if folderRef.Valid {
			track.Folder = links.folders[folderRef.Int64]
		}
		if albumRef.Valid {
			track.Album = links.albums[albumRef.Int64]
		}
		if yearRef.Valid {
			track.Year = links.years[yearRef.Int64]
		}
		if formatRef.Valid {
			track.Format = links.formats[formatRef.Int64]
		}
		if publisherRef.Valid {
			track.Publisher = links.publishers[publisherRef.Int64]
		}
		if conductorRef.Valid {
			track.Conductor = links.artists[conductorRef.Int64]
		}
		if remixerRef.Valid {
			track.Remixer = links.artists[remixerRef.Int64]
		}
		track.LastPlayedAt = lastPlayed.String

		snapshot.TracksByPath[track.Path] = track
		links.tracks[track.ID] = track
	}

	return rows.Err()
}

func loadPlaylists(ctx context.Context, database *sql.DB, snapshot *Snapshot, links *linkTables) error {
	rows, err := database.QueryContext(ctx, "SELECT id, path, name, folder_id, artwork_id FROM playlists")
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		playlist := &Playlist{}
		var folderRef, artworkRef sql.NullInt64
		if err := rows.Scan(&playlist.ID, &playlist.Path, &playlist.Name, &folderRef, &artworkRef); err != nil {
			return fmt.Errorf("scan playlist row: %w", err)
		}
		if folderRef.Valid {
			playlist.Folder = links.folders[folderRef.Int64]
		}
		if artworkRef.Valid {
			playlist.Artwork = links.artworks[artworkRef.Int64]
		}
		snapshot.PlaylistsByPath[playlist.Path] = playlist
		links.playlists[playlist.ID] = playlist
	}

	return rows.Err()
}

func loadDiscarded(ctx context.Context, database *sql.DB, snapshot *Snapshot, _ *linkTables) error {
	rows, err := database.QueryContext(ctx, "SELECT id, path, reason, discarded_at FROM discarded_files")
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		discarded := &DiscardedFile{}
		if err := rows.Scan(&discarded.ID, &discarded.Path, &discarded.Reason, &discarded.DiscardedAt); err != nil {
			return fmt.Errorf("scan discarded file row: %w", err)
		}
		snapshot.DiscardedByPath[discarded.Path] = discarded
	}

	return rows.Err()
}

func loadJunctions(ctx context.Context, database *sql.DB, snapshot *Snapshot, links *linkTables) error {
	type junction struct {
		query string
		apply func(left, right int64)
	}

	junctions := []junction{
		{"SELECT track_id, artist_id FROM track_artists", func(left, right int64) {
			if track, artist := links.tracks[left], links.artists[right]; track != nil && artist != nil {
				track.Artists = append(track.Artists, artist)
			}
		}},
		{"SELECT track_id, artist_id FROM track_composers", func(left, right int64) {
			if track, artist := links.tracks[left], links.artists[right]; track != nil && artist != nil {
				track.Composers = append(track.Composers, artist)
			}
		}},
		{"SELECT track_id, genre_id FROM track_genres", func(left, right int64) {
			if track, genre := links.tracks[left], links.genres[right]; track != nil && genre != nil {
				track.Genres = append(track.Genres, genre)
			}
		}},
		{"SELECT track_id, artwork_id FROM track_artworks", func(left, right int64) {
			if track, artwork := links.tracks[left], links.artworks[right]; track != nil && artwork != nil {
				track.Artworks = append(track.Artworks, artwork)
			}
		}},
		{"SELECT album_id, artwork_id FROM album_artworks", func(left, right int64) {
			if album, artwork := links.albums[left], links.artworks[right]; album != nil && artwork != nil {
				album.Artworks = append(album.Artworks, artwork)
			}
		}},
	}
	for _, j := range junctions {
		if err := loadPairs(ctx, database, j.query, j.apply); err != nil {
			return err
		}
	}

	rows, err := database.QueryContext(
		ctx,
		"SELECT playlist_id, track_id, position FROM playlist_tracks ORDER BY playlist_id, position",
	)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var playlistRef, trackRef int64
		var position int
		if err := rows.Scan(&playlistRef, &trackRef, &position); err != nil {
			return fmt.Errorf("scan playlist track row: %w", err)
		}
		playlist := links.playlists[playlistRef]
		track := links.tracks[trackRef]
		if playlist == nil || track == nil {
			continue
		}
		playlist.Items = append(playlist.Items, PlaylistItem{Track: track, Position: position})
	}

	return rows.Err()
}

func loadPairs(ctx context.Context, database *sql.DB, query string, apply func(left, right int64)) error {
	rows, err := database.QueryContext(ctx, query)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var left, right int64
		if err := rows.Scan(&left, &right); err != nil {
			return fmt.Errorf("scan junction row: %w", err)
		}
		apply(left, right)
	}

	return rows.Err()
}
