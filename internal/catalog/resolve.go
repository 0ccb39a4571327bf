package catalog

import (
	"context"
	"errors"
	"strings"
)

// ErrEmptyKey reports a resolver invoked with a blank natural key.
var ErrEmptyKey = errors.New("empty natural key")

// Resolver performs lookup-or-create against the snapshot's natural-key maps.
// A successful create persists the row and registers the entity in the
// snapshot, so within one pass every key resolves to exactly one entity.
type Resolver struct {
	snap  *Snapshot
	store *Store
}

func NewResolver(snapshot *Snapshot, store *Store) *Resolver {
	return &Resolver{snap: snapshot, store: store}
}

func (r *Resolver) Snapshot() *Snapshot { return r.snap }

func (r *Resolver) Folder(ctx context.Context, path string) (*Folder, error) {
	if path == "" {
		return nil, ErrEmptyKey
	}
	if folder, ok := r.snap.FoldersByPath[path]; ok {
		return folder, nil
	}

	folder := &Folder{Path: path}
	if err := r.store.InsertFolder(ctx, folder); err != nil {
		return nil, err
	}
	r.snap.FoldersByPath[path] = folder
	return folder, nil
}

func (r *Resolver) Year(ctx context.Context, number int) (*Year, error) {
	if year, ok := r.snap.YearsByNumber[number]; ok {
		return year, nil
	}

	year := &Year{Number: number}
	if err := r.store.InsertYear(ctx, year); err != nil {
		return nil, err
	}
	r.snap.YearsByNumber[number] = year
	return year, nil
}

func (r *Resolver) Format(ctx context.Context, descriptor string) (*AudioFormat, error) {
	if descriptor == "" {
		return nil, ErrEmptyKey
	}
	if format, ok := r.snap.FormatsByName[descriptor]; ok {
		return format, nil
	}

	format := &AudioFormat{Name: descriptor}
	if err := r.store.InsertFormat(ctx, format); err != nil {
		return nil, err
	}
	r.snap.FormatsByName[descriptor] = format
	return format, nil
}

// Artist resolves a performer name. Lookup is case-insensitive; the stored
// name keeps the first spelling ever observed.
func (r *Resolver) Artist(ctx context.Context, name string) (*Artist, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return nil, ErrEmptyKey
	}
	if artist, ok := r.snap.Artist(trimmed); ok {
		return artist, nil
	}

	artist := &Artist{Name: trimmed}
	if err := r.store.InsertArtist(ctx, artist); err != nil {
		return nil, err
	}
	r.snap.addArtist(artist)
	return artist, nil
}

// UnknownArtist resolves the pruning-exempt sentinel assigned to tracks with
// no performers.
func (r *Resolver) UnknownArtist(ctx context.Context) (*Artist, error) {
	return r.Artist(ctx, UnknownArtistName)
}

func (r *Resolver) Genre(ctx context.Context, name string) (*Genre, error) {
	if name == "" {
		return nil, ErrEmptyKey
	}
	if genre, ok := r.snap.GenresByName[name]; ok {
		return genre, nil
	}

	genre := &Genre{Name: name}
	if err := r.store.InsertGenre(ctx, genre); err != nil {
		return nil, err
	}
	r.snap.GenresByName[name] = genre
	return genre, nil
}

func (r *Resolver) Publisher(ctx context.Context, name string) (*Publisher, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return nil, ErrEmptyKey
	}
	if publisher, ok := r.snap.PublishersByName[trimmed]; ok {
		return publisher, nil
	}

	publisher := &Publisher{Name: trimmed}
	if err := r.store.InsertPublisher(ctx, publisher); err != nil {
		return nil, err
	}
	r.snap.PublishersByName[trimmed] = publisher
	return publisher, nil
}

// Artwork resolves by content hash. The candidate carries all metadata for a
// potential insert; if the hash is already known the existing entity wins and
// the candidate is dropped, whatever its source.
func (r *Resolver) Artwork(ctx context.Context, candidate *Artwork) (*Artwork, bool, error) {
	if candidate.Hash == "" {
		return nil, false, ErrEmptyKey
	}
	if artwork, ok := r.snap.ArtworksByHash[candidate.Hash]; ok {
		return artwork, false, nil
	}

	if err := r.store.InsertArtwork(ctx, candidate); err != nil {
		return nil, false, err
	}
	r.snap.ArtworksByHash[candidate.Hash] = candidate
	if candidate.SourceKind == SourceExternal && candidate.SourcePath != "" {
		r.snap.ArtworksByPath[candidate.SourcePath] = candidate
	}
	return candidate, true, nil
}

// Album resolves by (title, album artist). New albums are stamped with the
// pass timestamp; derived fields are filled in by the album reconciliation
// phase.
func (r *Resolver) Album(ctx context.Context, title string, albumArtist *Artist, year *Year, addedAt string) (*Album, bool, error) {
	if title == "" || albumArtist == nil {
		return nil, false, ErrEmptyKey
	}

	key := AlbumKey{Title: title, Artist: albumArtist.Name}
	if album, ok := r.snap.AlbumsByKey[key]; ok {
		return album, false, nil
	}

	album := &Album{
		Title:   title,
		Artist:  albumArtist,
		Year:    year,
		AddedAt: addedAt,
	}
	if err := r.store.InsertAlbum(ctx, album); err != nil {
		return nil, false, err
	}
	r.snap.AlbumsByKey[key] = album
	return album, true, nil
}

func (r *Resolver) Disc(ctx context.Context, album *Album, number int) (*Disc, error) {
	if album == nil {
		return nil, ErrEmptyKey
	}

	key := DiscKey{AlbumID: album.ID, Number: number}
	if disc, ok := r.snap.DiscsByKey[key]; ok {
		return disc, nil
	}

	disc := &Disc{Album: album, Number: number}
	if err := r.store.InsertDisc(ctx, disc); err != nil {
		return nil, err
	}
	r.snap.DiscsByKey[key] = disc
	return disc, nil
}

// InferAlbumArtistName decides the album-artist name for a track set.
// Explicit album-artist tags win, joined with " & ". Otherwise one or two
// distinct performers are joined; more than two become Various Artists; none
// fall back to the unknown sentinel.
func InferAlbumArtistName(explicit []string, performers []string) string {
	names := distinctNonEmpty(explicit)
	if len(names) > 0 {
		return strings.Join(names, " & ")
	}

	names = distinctNonEmpty(performers)
	switch {
	case len(names) == 0:
		return UnknownArtistName
	case len(names) > 2:
		return VariousArtistsName
	default:
		return strings.Join(names, " & ")
	}
}

func distinctNonEmpty(values []string) []string {
	seen := map[string]struct{}{}
	var result []string
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		key := strings.ToLower(trimmed)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		result = append(result, trimmed)
	}
	return result
}
