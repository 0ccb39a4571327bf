// Package library is the read surface over the catalog database: paged
// browse queries for artists, albums and tracks, plus the discarded-file
// listing. It only ever reads; all writes go through the sync engine.
package library

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

var ErrArtistNotFound = errors.New("artist not found")

var ErrAlbumNotFound = errors.New("album not found")

type PageInfo struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
	Total  int `json:"total"`
}

type ArtistSummary struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	TrackCount int    `json:"trackCount"`
	AlbumCount int    `json:"albumCount"`
}

type AlbumSummary struct {
	ID          int64   `json:"id"`
	Title       string  `json:"title"`
	AlbumArtist string  `json:"albumArtist"`
	Year        *int    `json:"year,omitempty"`
	TrackCount  int     `json:"trackCount"`
	CoverHash   *string `json:"coverHash,omitempty"`
}

type TrackSummary struct {
	ID         int64   `json:"id"`
	Title      string  `json:"title"`
	Artists    string  `json:"artists"`
	Album      *string `json:"album,omitempty"`
	Format     *string `json:"format,omitempty"`
	DiscNo     int     `json:"discNo"`
	TrackNo    int     `json:"trackNo"`
	DurationMS int     `json:"durationMs"`
	Path       string  `json:"path"`
}

type DiscardedSummary struct {
	Path        string `json:"path"`
	Reason      string `json:"reason"`
	DiscardedAt string `json:"discardedAt"`
}

type ArtistsPage struct {
	Items []ArtistSummary `json:"items"`
	Page  PageInfo        `json:"page"`
}

type AlbumsPage struct {
	Items []AlbumSummary `json:"items"`
	Page  PageInfo       `json:"page"`
}

type TracksPage struct {
	Items []TrackSummary `json:"items"`
	Page  PageInfo       `json:"page"`
}

type AlbumDetail struct {
	AlbumSummary
	Tracks []TrackSummary `json:"tracks"`
}

type BrowseRepository struct {
	db *sql.DB
}

const defaultBrowseLimit = 24

const maxBrowseLimit = 200

func NewBrowseRepository(database *sql.DB) *BrowseRepository {
	return &BrowseRepository{db: database}
}

func (r *BrowseRepository) ListArtists(ctx context.Context, search string, limit int, offset int) (ArtistsPage, error) {
	limit, offset = normalizePagination(limit, offset, defaultBrowseLimit)

	whereClauses := []string{"1 = 1"}
	args := make([]any, 0, 2)

	if pattern := makeSearchPattern(search); pattern != "" {
		whereClauses = append(whereClauses, "LOWER(a.name) LIKE ?")
		args = append(args, pattern)
	}

	whereSQL := strings.Join(whereClauses, " AND ")

	countQuery := fmt.Sprintf(`
		SELECT COUNT(1)
		FROM artists a
		WHERE %s
	`, whereSQL)

	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return ArtistsPage{}, fmt.Errorf("count artists: %w", err)
	}

	listQuery := fmt.Sprintf(`
		SELECT
			a.id,
			a.name,
			COALESCE(track_totals.track_count, 0) AS track_count,
			COALESCE(album_totals.album_count, 0) AS album_count
		FROM artists a
		LEFT JOIN (
			SELECT ta.artist_id, COUNT(1) AS track_count
			FROM track_artists ta
			GROUP BY ta.artist_id
		) track_totals ON track_totals.artist_id = a.id
		LEFT JOIN (
			SELECT al.artist_id, COUNT(1) AS album_count
			FROM albums al
			GROUP BY al.artist_id
		) album_totals ON album_totals.artist_id = a.id
		WHERE %s
		ORDER BY LOWER(a.name)
		LIMIT ?
		OFFSET ?
	`, whereSQL)

	listArgs := append(cloneArgs(args), limit, offset)

	rows, err := r.db.QueryContext(ctx, listQuery, listArgs...)
	if err != nil {
		return ArtistsPage{}, fmt.Errorf("list artists: %w", err)
	}
	defer rows.Close()

	artists := make([]ArtistSummary, 0)
	for rows.Next() {
		var artist ArtistSummary
		if scanErr := rows.Scan(&artist.ID, &artist.Name, &artist.TrackCount, &artist.AlbumCount); scanErr != nil {
			return ArtistsPage{}, fmt.Errorf("scan artist row: %w", scanErr)
		}
		artists = append(artists, artist)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		return ArtistsPage{}, fmt.Errorf("iterate artist rows: %w", rowsErr)
	}

	return ArtistsPage{
		Items: artists,
		Page: PageInfo{
			Limit:  limit,
			Offset: offset,
			Total:  total,
		},
	}, nil
}

func (r *BrowseRepository) ListAlbums(ctx context.Context, search string, artist string, limit int, offset int) (AlbumsPage, error) {
	limit, offset = normalizePagination(limit, offset, defaultBrowseLimit)

	whereClauses := []string{"1 = 1"}
	args := make([]any, 0, 4)

	if pattern := makeSearchPattern(search); pattern != "" {
		whereClauses = append(whereClauses, "(LOWER(al.title) LIKE ? OR LOWER(ar.name) LIKE ?)")
		args = append(args, pattern, pattern)
	}

	if artistFilter := strings.TrimSpace(artist); artistFilter != "" {
		whereClauses = append(whereClauses, "LOWER(ar.name) = LOWER(?)")
		args = append(args, artistFilter)
	}

	whereSQL := strings.Join(whereClauses, " AND ")

	countQuery := fmt.Sprintf(`
		SELECT COUNT(1)
		FROM albums al
		JOIN artists ar ON ar.id = al.artist_id
		WHERE %s
	`, whereSQL)

	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return AlbumsPage{}, fmt.Errorf("count albums: %w", err)
	}

	listQuery := fmt.Sprintf(`
		SELECT
			al.id,
			al.title,
			ar.name,
			y.number,
			COALESCE(track_totals.track_count, 0) AS track_count,
			aw.hash
		FROM albums al
		JOIN artists ar ON ar.id = al.artist_id
		LEFT JOIN years y ON y.id = al.year_id
		LEFT JOIN artworks aw ON aw.id = al.cover_id
		LEFT JOIN (
			SELECT t.album_id, COUNT(1) AS track_count
			FROM tracks t
			WHERE t.album_id IS NOT NULL
			GROUP BY t.album_id
		) track_totals ON track_totals.album_id = al.id
		WHERE %s
		ORDER BY LOWER(ar.name), LOWER(al.title)
		LIMIT ?
		OFFSET ?
	`, whereSQL)

	listArgs := append(cloneArgs(args), limit, offset)

	rows, err := r.db.QueryContext(ctx, listQuery, listArgs...)
	if err != nil {
		return AlbumsPage{}, fmt.Errorf("list albums: %w", err)
	}
	defer rows.Close()

	albums := make([]AlbumSummary, 0)
	for rows.Next() {
		var album AlbumSummary
		var year sql.NullInt64
		var coverHash sql.NullString
		if scanErr := rows.Scan(&album.ID, &album.Title, &album.AlbumArtist, &year, &album.TrackCount, &coverHash); scanErr != nil {
			return AlbumsPage{}, fmt.Errorf("scan album row: %w", scanErr)
		}
		album.Year = intPointer(year)
		album.CoverHash = stringPointer(coverHash)
		albums = append(albums, album)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		return AlbumsPage{}, fmt.Errorf("iterate album rows: %w", rowsErr)
	}

	return AlbumsPage{
		Items: albums,
		Page: PageInfo{
			Limit:  limit,
			Offset: offset,
			Total:  total,
		},
	}, nil
}

func (r *BrowseRepository) ListTracks(ctx context.Context, search string, artist string, album string, limit int, offset int) (TracksPage, error) {
	limit, offset = normalizePagination(limit, offset, defaultBrowseLimit)

	whereClauses := []string{"1 = 1"}
	args := make([]any, 0, 6)

	if pattern := makeSearchPattern(search); pattern != "" {
		whereClauses = append(whereClauses, `(
			LOWER(t.title) LIKE ?
			OR EXISTS (
				SELECT 1 FROM track_artists ta
				JOIN artists ar ON ar.id = ta.artist_id
				WHERE ta.track_id = t.id AND LOWER(ar.name) LIKE ?
			)
			OR LOWER(COALESCE(al.title, '')) LIKE ?
		)`)
		args = append(args, pattern, pattern, pattern)
	}

	if artistFilter := strings.TrimSpace(artist); artistFilter != "" {
		whereClauses = append(whereClauses, `EXISTS (
			SELECT 1 FROM track_artists ta
			JOIN artists ar ON ar.id = ta.artist_id
			WHERE ta.track_id = t.id AND LOWER(ar.name) = LOWER(?)
		)`)
		args = append(args, artistFilter)
	}

	if albumFilter := strings.TrimSpace(album); albumFilter != "" {
		whereClauses = append(whereClauses, "LOWER(COALESCE(al.title, '')) = LOWER(?)")
		args = append(args, albumFilter)
	}

	whereSQL := strings.Join(whereClauses, " AND ")

	countQuery := fmt.Sprintf(`
		SELECT COUNT(1)
		FROM tracks t
		LEFT JOIN albums al ON al.id = t.album_id
		WHERE %s
	`, whereSQL)

	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return TracksPage{}, fmt.Errorf("count tracks: %w", err)
	}

	listQuery := fmt.Sprintf(`
		SELECT
			t.id,
			t.title,
			COALESCE((
				SELECT GROUP_CONCAT(ar.name, ' & ')
				FROM track_artists ta
				JOIN artists ar ON ar.id = ta.artist_id
				WHERE ta.track_id = t.id
			), '') AS artist_names,
			al.title,
			af.name,
			t.disc_no,
			t.track_no,
			t.duration_ms,
			t.path
		FROM tracks t
		LEFT JOIN albums al ON al.id = t.album_id
		LEFT JOIN audio_formats af ON af.id = t.format_id
		WHERE %s
		ORDER BY
			LOWER(COALESCE(al.title, '')),
			t.disc_no,
			t.track_no,
			LOWER(t.title),
			t.id
		LIMIT ?
		OFFSET ?
	`, whereSQL)

	listArgs := append(cloneArgs(args), limit, offset)

	rows, err := r.db.QueryContext(ctx, listQuery, listArgs...)
	if err != nil {
		return TracksPage{}, fmt.Errorf("list tracks: %w", err)
	}
	defer rows.Close()

	tracks := make([]TrackSummary, 0)
	for rows.Next() {
		var track TrackSummary
		var albumTitle sql.NullString
		var formatName sql.NullString
		if scanErr := rows.Scan(
			&track.ID,
			&track.Title,
			&track.Artists,
			&albumTitle,
			&formatName,
			&track.DiscNo,
			&track.TrackNo,
			&track.DurationMS,
			&track.Path,
		); scanErr != nil {
			return TracksPage{}, fmt.Errorf("scan track row: %w", scanErr)
		}
		track.Album = stringPointer(albumTitle)
		track.Format = stringPointer(formatName)
		tracks = append(tracks, track)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		return TracksPage{}, fmt.Errorf("iterate track rows: %w", rowsErr)
	}

	return TracksPage{
		Items: tracks,
		Page: PageInfo{
			Limit:  limit,
			Offset: offset,
			Total:  total,
		},
	}, nil
}

// GetAlbumDetail resolves one album by its natural key and lists its tracks
// in disc/track order.
func (r *BrowseRepository) GetAlbumDetail(ctx context.Context, title string, albumArtist string) (AlbumDetail, error) {
	albumTitle := strings.TrimSpace(title)
	artistName := strings.TrimSpace(albumArtist)
	if albumTitle == "" {
		return AlbumDetail{}, errors.New("album title is required")
	}
	if artistName == "" {
		return AlbumDetail{}, errors.New("album artist is required")
	}

	var detail AlbumDetail
	var year sql.NullInt64
	var coverHash sql.NullString
	err := r.db.QueryRowContext(ctx, `
		SELECT
			al.id,
			al.title,
			ar.name,
			y.number,
			aw.hash
		FROM albums al
		JOIN artists ar ON ar.id = al.artist_id
		LEFT JOIN years y ON y.id = al.year_id
		LEFT JOIN artworks aw ON aw.id = al.cover_id
		WHERE al.title = ? AND LOWER(ar.name) = LOWER(?)
		LIMIT 1
	`, albumTitle, artistName).Scan(&detail.ID, &detail.Title, &detail.AlbumArtist, &year, &coverHash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return AlbumDetail{}, ErrAlbumNotFound
		}
		return AlbumDetail{}, fmt.Errorf("get album %q by %q: %w", albumTitle, artistName, err)
	}
	detail.Year = intPointer(year)
	detail.CoverHash = stringPointer(coverHash)

	page, err := r.ListTracks(ctx, "", "", albumTitle, maxBrowseLimit, 0)
	if err != nil {
		return AlbumDetail{}, err
	}
	detail.Tracks = page.Items
	detail.TrackCount = page.Page.Total

	return detail, nil
}

// ListDiscarded returns every file the sync engine gave up on, newest first.
func (r *BrowseRepository) ListDiscarded(ctx context.Context) ([]DiscardedSummary, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT path, reason, discarded_at
		FROM discarded_files
		ORDER BY discarded_at DESC, path
	`)
	if err != nil {
		return nil, fmt.Errorf("list discarded files: %w", err)
	}
	defer rows.Close()

	discarded := make([]DiscardedSummary, 0)
	for rows.Next() {
		var item DiscardedSummary
		if scanErr := rows.Scan(&item.Path, &item.Reason, &item.DiscardedAt); scanErr != nil {
			return nil, fmt.Errorf("scan discarded row: %w", scanErr)
		}
		discarded = append(discarded, item)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("iterate discarded rows: %w", rowsErr)
	}

	return discarded, nil
}

func normalizePagination(limit int, offset int, defaultLimit int) (int, int) {
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxBrowseLimit {
		limit = maxBrowseLimit
	}
	if offset < 0 {
		offset = 0
	}

	return limit, offset
}

func makeSearchPattern(search string) string {
	trimmed := strings.TrimSpace(search)
	if trimmed == "" {
		return ""
	}

	return "%" + strings.ToLower(trimmed) + "%"
}

func cloneArgs(args []any) []any {
	copyArgs := make([]any, len(args))
	copy(copyArgs, args)
	return copyArgs
}

func intPointer(value sql.NullInt64) *int {
	if !value.Valid {
		return nil
	}

	intValue := int(value.Int64)
	return &intValue
}

func stringPointer(value sql.NullString) *string {
	if !value.Valid {
		return nil
	}

	trimmed := strings.TrimSpace(value.String)
	if trimmed == "" {
		return nil
	}

	return &trimmed
}
