package catalog

import (
	"context"
	"database/sql"
	"fmt"
)

// Store issues the catalog's SQL writes. Every insert assigns the entity's ID
// in place. Callers decide whether a failure aborts anything; the store only
// reports it.
type Store struct {
	db *sql.DB
}

func NewStore(database *sql.DB) *Store {
	return &Store{db: database}
}

func (s *Store) insert(ctx context.Context, query string, args ...any) (int64, error) {
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}

	return result.LastInsertId()
}

func (s *Store) InsertFolder(ctx context.Context, folder *Folder) error {
	id, err := s.insert(ctx, "INSERT INTO folders(path) VALUES (?)", folder.Path)
	if err != nil {
		return fmt.Errorf("insert folder %s: %w", folder.Path, err)
	}
	folder.ID = id
	return nil
}

func (s *Store) InsertYear(ctx context.Context, year *Year) error {
	id, err := s.insert(ctx, "INSERT INTO years(number) VALUES (?)", year.Number)
	if err != nil {
		return fmt.Errorf("insert year %d: %w", year.Number, err)
	}
	year.ID = id
	return nil
}

func (s *Store) InsertFormat(ctx context.Context, format *AudioFormat) error {
	id, err := s.insert(ctx, "INSERT INTO audio_formats(name) VALUES (?)", format.Name)
	if err != nil {
		return fmt.Errorf("insert audio format %q: %w", format.Name, err)
	}
	format.ID = id
	return nil
}

func (s *Store) InsertArtist(ctx context.Context, artist *Artist) error {
	id, err := s.insert(
		ctx,
		"INSERT INTO artists(name, artwork_id) VALUES (?, ?)",
		artist.Name,
		artworkID(artist.Artwork),
	)
	if err != nil {
		return fmt.Errorf("insert artist %q: %w", artist.Name, err)
	}
	artist.ID = id
	return nil
}

func (s *Store) InsertGenre(ctx context.Context, genre *Genre) error {
	id, err := s.insert(
		ctx,
		"INSERT INTO genres(name, artwork_id) VALUES (?, ?)",
		genre.Name,
		artworkID(genre.Artwork),
	)
	if err != nil {
		return fmt.Errorf("insert genre %q: %w", genre.Name, err)
	}
	genre.ID = id
	return nil
}

func (s *Store) InsertPublisher(ctx context.Context, publisher *Publisher) error {
	id, err := s.insert(
		ctx,
		"INSERT INTO publishers(name, artwork_id) VALUES (?, ?)",
		publisher.Name,
		artworkID(publisher.Artwork),
	)
	if err != nil {
		return fmt.Errorf("insert publisher %q: %w", publisher.Name, err)
	}
	publisher.ID = id
	return nil
}

func (s *Store) InsertArtwork(ctx context.Context, artwork *Artwork) error {
	id, err := s.insert(
		ctx,
		`INSERT INTO artworks(hash, source_path, source_kind, role, width, height, mime, embed_index, folder_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		artwork.Hash,
		artwork.SourcePath,
		string(artwork.SourceKind),
		string(artwork.Role),
		artwork.Width,
		artwork.Height,
		artwork.Mime,
		artwork.EmbedIndex,
		folderID(artwork.Folder),
	)
	if err != nil {
		return fmt.Errorf("insert artwork %s: %w", artwork.Hash, err)
	}
	artwork.ID = id
	return nil
}

func (s *Store) InsertAlbum(ctx context.Context, album *Album) error {
	id, err := s.insert(
		ctx,
		`INSERT INTO albums(title, artist_id, year_id, folder_id, cover_id, added_at, created_at, modified_at, last_played_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		album.Title,
		artistID(album.Artist),
		yearID(album.Year),
		folderID(album.Folder),
		artworkID(album.Cover),
		album.AddedAt,
		album.CreatedAt,
		album.ModifiedAt,
		nullableString(album.LastPlayedAt),
	)
	if err != nil {
		return fmt.Errorf("insert album %q: %w", album.Title, err)
	}
	album.ID = id
	return nil
}

// UpdateAlbum persists the album's derived fields, recomputed each pass from
// its track set.
func (s *Store) UpdateAlbum(ctx context.Context, album *Album) error {
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE albums
		 SET folder_id = ?, cover_id = ?, created_at = ?, modified_at = ?
		 WHERE id = ?`,
		folderID(album.Folder),
		artworkID(album.Cover),
		album.CreatedAt,
		album.ModifiedAt,
		album.ID,
	)
	if err != nil {
		return fmt.Errorf("update album %d: %w", album.ID, err)
	}
	return nil
}

func (s *Store) InsertDisc(ctx context.Context, disc *Disc) error {
	id, err := s.insert(
		ctx,
		"INSERT INTO discs(album_id, number, name, artwork_id) VALUES (?, ?, ?, ?)",
		disc.Album.ID,
		disc.Number,
		disc.Name,
		artworkID(disc.Artwork),
	)
	if err != nil {
		return fmt.Errorf("insert disc %d of album %d: %w", disc.Number, disc.Album.ID, err)
	}
	disc.ID = id
	return nil
}

func (s *Store) InsertTrack(ctx context.Context, track *Track) error {
	id, err := s.insert(
		ctx,
		`INSERT INTO tracks(
			path, name, extension, folder_id, title, album_id, year_id,
			track_no, disc_no, duration_ms, start_frac, end_frac,
			bitrate, codec, format_id, sample_rate, channels,
			publisher_id, conductor_id, remixer_id, comment, rating,
			added_at, created_at, modified_at, last_played_at, play_count
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		track.Path,
		track.Name,
		track.Extension,
		folderID(track.Folder),
		track.Title,
		albumID(track.Album),
		yearID(track.Year),
		track.TrackNo,
		track.DiscNo,
		track.DurationMS,
		track.StartFrac,
		track.EndFrac,
		track.Bitrate,
		track.Codec,
		formatID(track.Format),
		track.SampleRate,
		track.Channels,
		publisherID(track.Publisher),
		artistID(track.Conductor),
		artistID(track.Remixer),
		track.Comment,
		track.Rating,
		track.AddedAt,
		track.CreatedAt,
		track.ModifiedAt,
		nullableString(track.LastPlayedAt),
		track.PlayCount,
	)
	if err != nil {
		return fmt.Errorf("insert track %s: %w", track.Path, err)
	}
	track.ID = id
	return nil
}

func (s *Store) InsertPlaylist(ctx context.Context, playlist *Playlist) error {
	id, err := s.insert(
		ctx,
		"INSERT INTO playlists(path, name, folder_id, artwork_id) VALUES (?, ?, ?, ?)",
		playlist.Path,
		playlist.Name,
		folderID(playlist.Folder),
		artworkID(playlist.Artwork),
	)
	if err != nil {
		return fmt.Errorf("insert playlist %s: %w", playlist.Path, err)
	}
	playlist.ID = id
	return nil
}

func (s *Store) InsertPlaylistTrack(ctx context.Context, playlist *Playlist, track *Track, position int) error {
	_, err := s.db.ExecContext(
		ctx,
		"INSERT INTO playlist_tracks(playlist_id, track_id, position) VALUES (?, ?, ?)",
		playlist.ID,
		track.ID,
		position,
	)
	if err != nil {
		return fmt.Errorf("insert playlist track %d@%d: %w", track.ID, position, err)
	}
	return nil
}

func (s *Store) InsertTrackArtist(ctx context.Context, track *Track, artist *Artist) error {
	return s.insertJunction(ctx, "track_artists", "track_id", "artist_id", track.ID, artist.ID)
}

func (s *Store) InsertTrackComposer(ctx context.Context, track *Track, artist *Artist) error {
	return s.insertJunction(ctx, "track_composers", "track_id", "artist_id", track.ID, artist.ID)
}

func (s *Store) InsertTrackGenre(ctx context.Context, track *Track, genre *Genre) error {
	return s.insertJunction(ctx, "track_genres", "track_id", "genre_id", track.ID, genre.ID)
}

func (s *Store) InsertTrackArtwork(ctx context.Context, track *Track, artwork *Artwork) error {
	return s.insertJunction(ctx, "track_artworks", "track_id", "artwork_id", track.ID, artwork.ID)
}

func (s *Store) InsertAlbumArtwork(ctx context.Context, album *Album, artwork *Artwork) error {
	return s.insertJunction(ctx, "album_artworks", "album_id", "artwork_id", album.ID, artwork.ID)
}

func (s *Store) insertJunction(ctx context.Context, table, leftCol, rightCol string, left, right int64) error {
	query := fmt.Sprintf(
		"INSERT OR IGNORE INTO %s(%s, %s) VALUES (?, ?)",
		table,
		leftCol,
		rightCol,
	)
	if _, err := s.db.ExecContext(ctx, query, left, right); err != nil {
		return fmt.Errorf("insert %s (%d, %d): %w", table, left, right, err)
	}
	return nil
}

func (s *Store) InsertDiscarded(ctx context.Context, discarded *DiscardedFile) error {
	id, err := s.insert(
		ctx,
		`INSERT INTO discarded_files(path, reason, discarded_at) VALUES (?, ?, ?)
		 ON CONFLICT(path) DO UPDATE SET reason = excluded.reason, discarded_at = excluded.discarded_at`,
		discarded.Path,
		discarded.Reason,
		discarded.DiscardedAt,
	)
	if err != nil {
		return fmt.Errorf("insert discarded file %s: %w", discarded.Path, err)
	}
	discarded.ID = id
	return nil
}

func (s *Store) DeleteTrack(ctx context.Context, track *Track) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM tracks WHERE id = ?", track.ID); err != nil {
		return fmt.Errorf("delete track %d: %w", track.ID, err)
	}
	return nil
}

func (s *Store) DeleteAlbum(ctx context.Context, album *Album) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM albums WHERE id = ?", album.ID); err != nil {
		return fmt.Errorf("delete album %d: %w", album.ID, err)
	}
	return nil
}

func (s *Store) DeleteDisc(ctx context.Context, disc *Disc) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM discs WHERE id = ?", disc.ID); err != nil {
		return fmt.Errorf("delete disc %d: %w", disc.ID, err)
	}
	return nil
}

func (s *Store) DeleteArtist(ctx context.Context, artist *Artist) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM artists WHERE id = ?", artist.ID); err != nil {
		return fmt.Errorf("delete artist %d: %w", artist.ID, err)
	}
	return nil
}

func (s *Store) DeleteYear(ctx context.Context, year *Year) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM years WHERE id = ?", year.ID); err != nil {
		return fmt.Errorf("delete year %d: %w", year.ID, err)
	}
	return nil
}

func (s *Store) DeletePublisher(ctx context.Context, publisher *Publisher) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM publishers WHERE id = ?", publisher.ID); err != nil {
		return fmt.Errorf("delete publisher %d: %w", publisher.ID, err)
	}
	return nil
}

func (s *Store) DeleteArtwork(ctx context.Context, artwork *Artwork) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM artworks WHERE id = ?", artwork.ID); err != nil {
		return fmt.Errorf("delete artwork %d: %w", artwork.ID, err)
	}
	return nil
}

func (s *Store) DeletePlaylist(ctx context.Context, playlist *Playlist) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM playlists WHERE id = ?", playlist.ID); err != nil {
		return fmt.Errorf("delete playlist %d: %w", playlist.ID, err)
	}
	return nil
}

func (s *Store) DeleteDiscarded(ctx context.Context, path string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM discarded_files WHERE path = ?", path); err != nil {
		return fmt.Errorf("delete discarded file %s: %w", path, err)
	}
	return nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func folderID(folder *Folder) any {
	if folder == nil {
		return nil
	}
	return folder.ID
}

func yearID(year *Year) any {
	if year == nil {
		return nil
	}
	return year.ID
}

func artistID(artist *Artist) any {
	if artist == nil {
		return nil
	}
	return artist.ID
}

func albumID(album *Album) any {
	if album == nil {
		return nil
	}
	return album.ID
}

func formatID(format *AudioFormat) any {
	if format == nil {
		return nil
	}
	return format.ID
}

func publisherID(publisher *Publisher) any {
	if publisher == nil {
		return nil
	}
	return publisher.ID
}

func artworkID(artwork *Artwork) any {
	if artwork == nil {
		return nil
	}
	return artwork.ID
}
