package catalog

import (
	"fmt"
	"strings"
	"sync/atomic"
)

// AlbumKey is the album natural key: ordinal title plus ordinal album-artist
// name.
type AlbumKey struct {
	Title  string
	Artist string
}

// DiscKey identifies a disc within an album.
type DiscKey struct {
	AlbumID int64
	Number  int
}

// Snapshot is the in-memory materialization of the whole catalog. A sync pass
// mutates one privately and publishes it with Holder.Publish when the pass is
// complete; readers only ever see complete snapshots.
type Snapshot struct {
	FoldersByPath    map[string]*Folder
	YearsByNumber    map[int]*Year
	FormatsByName    map[string]*AudioFormat
	ArtistsByName    map[string]*Artist
	GenresByName     map[string]*Genre
	PublishersByName map[string]*Publisher
	ArtworksByHash   map[string]*Artwork
	ArtworksByPath   map[string]*Artwork
	AlbumsByKey      map[AlbumKey]*Album
	DiscsByKey       map[DiscKey]*Disc
	TracksByPath     map[string]*Track
	PlaylistsByPath  map[string]*Playlist
	DiscardedByPath  map[string]*DiscardedFile
}

func NewSnapshot() *Snapshot {
	return &Snapshot{
		FoldersByPath:    map[string]*Folder{},
		YearsByNumber:    map[int]*Year{},
		FormatsByName:    map[string]*AudioFormat{},
		ArtistsByName:    map[string]*Artist{},
		GenresByName:     map[string]*Genre{},
		PublishersByName: map[string]*Publisher{},
		ArtworksByHash:   map[string]*Artwork{},
		ArtworksByPath:   map[string]*Artwork{},
		AlbumsByKey:      map[AlbumKey]*Album{},
		DiscsByKey:       map[DiscKey]*Disc{},
		TracksByPath:     map[string]*Track{},
		PlaylistsByPath:  map[string]*Playlist{},
		DiscardedByPath:  map[string]*DiscardedFile{},
	}
}

// VirtualTrackPath derives the catalog path of a cue-split slice of a shared
// physical file. The suffix keeps slice paths unique per file.
func VirtualTrackPath(filePath string, trackNumber int) string {
	return fmt.Sprintf("%s#%02d", filePath, trackNumber)
}

// VirtualBasePath strips a virtual slice suffix, returning the physical file
// path. Plain paths come back unchanged.
func VirtualBasePath(path string) string {
	if i := strings.LastIndexByte(path, '#'); i >= 0 {
		return path[:i]
	}
	return path
}

// KnownTrackFiles collects the physical file paths backing every cataloged
// track, folding cue-split virtual slices onto their shared file.
func (s *Snapshot) KnownTrackFiles() map[string]bool {
	known := make(map[string]bool, len(s.TracksByPath))
	for path := range s.TracksByPath {
		known[VirtualBasePath(path)] = true
	}
	return known
}

// ArtistKey normalizes an artist name for map lookup. Names are stored
// verbatim but matched case-insensitively so tag spelling differences do not
// create duplicate artists.
func ArtistKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Artist looks up an artist case-insensitively.
func (s *Snapshot) Artist(name string) (*Artist, bool) {
	artist, ok := s.ArtistsByName[ArtistKey(name)]
	return artist, ok
}

func (s *Snapshot) addArtist(artist *Artist) {
	s.ArtistsByName[ArtistKey(artist.Name)] = artist
}

// KeyForAlbum builds the natural key for an album entity.
func KeyForAlbum(album *Album) AlbumKey {
	key := AlbumKey{Title: album.Title}
	if album.Artist != nil {
		key.Artist = album.Artist.Name
	}
	return key
}

// TracksOf returns all tracks currently referencing the album.
func (s *Snapshot) TracksOf(album *Album) []*Track {
	var tracks []*Track
	for _, track := range s.TracksByPath {
		if track.Album == album {
			tracks = append(tracks, track)
		}
	}
	return tracks
}

// DiscsOf returns all discs belonging to the album.
func (s *Snapshot) DiscsOf(album *Album) []*Disc {
	var discs []*Disc
	for key, disc := range s.DiscsByKey {
		if key.AlbumID == album.ID {
			discs = append(discs, disc)
		}
	}
	return discs
}

// Holder publishes snapshots with a single atomic pointer swap, so UI readers
// never observe a partially reconciled catalog.
type Holder struct {
	current atomic.Pointer[Snapshot]
}

func NewHolder() *Holder {
	holder := &Holder{}
	holder.current.Store(NewSnapshot())
	return holder
}

// Current returns the latest complete snapshot.
func (h *Holder) Current() *Snapshot {
	return h.current.Load()
}

// Publish swaps in a newly reconciled snapshot.
func (h *Holder) Publish(snapshot *Snapshot) {
	h.current.Store(snapshot)
}
