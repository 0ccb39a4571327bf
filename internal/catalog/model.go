// Package catalog holds the relational model of the music library, the
// in-memory snapshot of it, and the identity resolvers the sync engine uses
// to converge disk state and catalog state.
package catalog

// ArtworkSource describes where an artwork's bytes came from.
type ArtworkSource string

const (
	SourceEmbedded  ArtworkSource = "embedded"
	SourceExternal  ArtworkSource = "external"
	SourceRemote    ArtworkSource = "remote"
	SourceGenerated ArtworkSource = "generated"
)

// ArtworkRole classifies what an artwork depicts.
type ArtworkRole string

const (
	RoleCoverFront ArtworkRole = "cover_front"
	RoleCoverBack  ArtworkRole = "cover_back"
	RoleBooklet    ArtworkRole = "booklet"
	RoleInlay      ArtworkRole = "inlay"
	RoleArtist     ArtworkRole = "artist"
	RoleDisk       ArtworkRole = "disk"
	RoleOther      ArtworkRole = "other"
)

// UnknownArtistName is the sentinel artist assigned to tracks with no
// performers. It is exempt from orphan pruning.
const UnknownArtistName = "Unknown Artist"

// VariousArtistsName is assigned as album artist when an album's tracks have
// more than two distinct performers and no explicit album-artist tag.
const VariousArtistsName = "Various Artists"

type Folder struct {
	ID   int64
	Path string
}

type Year struct {
	ID     int64
	Number int
}

type AudioFormat struct {
	ID   int64
	Name string
}

// Artwork is content-addressed: Hash is the SHA-256 hex digest of the source
// bytes, unique across the catalog regardless of where the bytes were found.
type Artwork struct {
	ID         int64
	Hash       string
	SourcePath string
	SourceKind ArtworkSource
	Role       ArtworkRole
	Width      int
	Height     int
	Mime       string
	EmbedIndex int
	Folder     *Folder
}

type Artist struct {
	ID      int64
	Name    string
	Artwork *Artwork
}

type Genre struct {
	ID      int64
	Name    string
	Artwork *Artwork
}

type Publisher struct {
	ID      int64
	Name    string
	Artwork *Artwork
}

type Album struct {
	ID           int64
	Title        string
	Artist       *Artist
	Year         *Year
	Folder       *Folder
	Cover        *Artwork
	AddedAt      string
	CreatedAt    string
	ModifiedAt   string
	LastPlayedAt string
	Artworks     []*Artwork
}

type Disc struct {
	ID      int64
	Album   *Album
	Number  int
	Name    string
	Artwork *Artwork
}

// Track is one playable entry. StartFrac/EndFrac are [0,1] markers trimming a
// shared physical file; ordinary tracks span the whole file.
type Track struct {
	ID           int64
	Path         string
	Name         string
	Extension    string
	Folder       *Folder
	Title        string
	Album        *Album
	Year         *Year
	TrackNo      int
	DiscNo       int
	DurationMS   int
	StartFrac    float64
	EndFrac      float64
	Bitrate      int
	Codec        string
	Format       *AudioFormat
	SampleRate   int
	Channels     int
	Publisher    *Publisher
	Conductor    *Artist
	Remixer      *Artist
	Comment      string
	Rating       int
	AddedAt      string
	CreatedAt    string
	ModifiedAt   string
	LastPlayedAt string
	PlayCount    int

	Artists   []*Artist
	Composers []*Artist
	Genres    []*Genre
	Artworks  []*Artwork
}

// IsVirtual reports whether the track is a cue-sheet slice of a shared file.
func (t *Track) IsVirtual() bool {
	return t.StartFrac > 0 || (t.EndFrac > 0 && t.EndFrac < 1)
}

// FilePath returns the physical file backing the track. For virtual tracks
// this strips the "#NN" slice suffix from the catalog path.
func (t *Track) FilePath() string {
	return VirtualBasePath(t.Path)
}

type PlaylistItem struct {
	Track    *Track
	Position int
}

type Playlist struct {
	ID      int64
	Path    string
	Name    string
	Folder  *Folder
	Artwork *Artwork
	Items   []PlaylistItem
}

// DiscardedFile records a file that failed extraction so the next pass does
// not retry it.
type DiscardedFile struct {
	ID          int64
	Path        string
	Reason      string
	DiscardedAt string
}
