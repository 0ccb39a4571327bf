package scanner

import (
	"context"
	"path/filepath"
	"sort"
	"strings"

	"cadenza/internal/catalog"
)

// albumCandidateCap bounds how many same-folder artworks are considered for
// one album. A folder holding this many images is almost certainly a dump
// directory, not an album folder.
const albumCandidateCap = 100

// reconcileAlbums recomputes the derived fields of every album whose track
// set changed this pass: timestamps and folder from its tracks, artwork
// candidates and cover from the folder's images. Freshly created albums are
// a subset of the touched set.
func (p *syncPass) reconcileAlbums(ctx context.Context) error {
	touched := make([]*catalog.Album, 0, len(p.touchedAlbums))
	for album := range p.touchedAlbums {
		touched = append(touched, album)
	}
	sort.Slice(touched, func(i, j int) bool {
		if touched[i].Title != touched[j].Title {
			return touched[i].Title < touched[j].Title
		}
		return touched[i].ID < touched[j].ID
	})

	for _, album := range touched {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := p.finishAlbum(ctx, album); err != nil {
			if failed := p.itemFailed(ctx, err, "reconcile album", album.Title); failed != nil {
				return failed
			}
		}
	}
	return nil
}

func (p *syncPass) finishAlbum(ctx context.Context, album *catalog.Album) error {
	tracks := p.snap.TracksOf(album)
	if len(tracks) == 0 {
		return nil
	}

	album.CreatedAt, album.ModifiedAt = trackTimeSpan(tracks)

	folderPath := commonFolder(tracks)
	if folderPath != "" {
		folder, err := p.resolver.Folder(ctx, folderPath)
		if err != nil {
			return err
		}
		album.Folder = folder
	}

	candidates := p.folderArtworks(folderPath)
	if len(candidates) >= albumCandidateCap {
		p.engine.log.Printf("[WARN] album %q folder %s has %d artwork candidates, skipping artwork association",
			album.Title, folderPath, len(candidates))
		candidates = nil
	}

	album.Cover = p.pickCover(album, candidates)

	if embedded := p.embeddedCover[album]; embedded != nil {
		candidates = append(candidates, embedded)
	}
	for _, artwork := range candidates {
		// Re-finalizing an album that gained tracks must not relink artworks
		// it already carries.
		if containsArtwork(album.Artworks, artwork) {
			continue
		}
		if err := p.engine.store.InsertAlbumArtwork(ctx, album, artwork); err != nil {
			return err
		}
		album.Artworks = append(album.Artworks, artwork)
	}

	return p.engine.store.UpdateAlbum(ctx, album)
}

func containsArtwork(artworks []*catalog.Artwork, target *catalog.Artwork) bool {
	for _, artwork := range artworks {
		if artwork == target {
			return true
		}
	}
	return false
}

// trackTimeSpan returns the earliest created and latest modified timestamps
// of the track set. RFC 3339 UTC strings compare correctly as text.
func trackTimeSpan(tracks []*catalog.Track) (created, modified string) {
	for _, track := range tracks {
		if track.CreatedAt != "" && (created == "" || track.CreatedAt < created) {
			created = track.CreatedAt
		}
		if track.ModifiedAt > modified {
			modified = track.ModifiedAt
		}
	}
	return created, modified
}

// commonFolder returns the deepest folder containing every track of the set.
func commonFolder(tracks []*catalog.Track) string {
	var common string
	for _, track := range tracks {
		if track.Folder == nil {
			continue
		}
		if common == "" {
			common = track.Folder.Path
			continue
		}
		common = commonAncestor(common, track.Folder.Path)
	}
	return common
}

func commonAncestor(a, b string) string {
	if a == b {
		return a
	}
	partsA := strings.Split(filepath.Clean(a), string(filepath.Separator))
	partsB := strings.Split(filepath.Clean(b), string(filepath.Separator))

	var shared []string
	for i := 0; i < len(partsA) && i < len(partsB); i++ {
		if partsA[i] != partsB[i] {
			break
		}
		shared = append(shared, partsA[i])
	}
	if len(shared) == 0 {
		return ""
	}
	joined := strings.Join(shared, string(filepath.Separator))
	if joined == "" {
		// Root on unix splits to a leading empty component.
		return string(filepath.Separator)
	}
	return joined
}

// folderArtworks returns the external artworks living directly in folderPath,
// cover-front roles first, then by source path.
func (p *syncPass) folderArtworks(folderPath string) []*catalog.Artwork {
	if folderPath == "" {
		return nil
	}

	var candidates []*catalog.Artwork
	for path, artwork := range p.snap.ArtworksByPath {
		if filepath.Dir(path) == folderPath {
			candidates = append(candidates, artwork)
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		frontI := candidates[i].Role == catalog.RoleCoverFront
		frontJ := candidates[j].Role == catalog.RoleCoverFront
		if frontI != frontJ {
			return frontI
		}
		return candidates[i].SourcePath < candidates[j].SourcePath
	})
	return candidates
}

// pickCover chooses the album cover: an embedded front cover from the album's
// own tracks wins, then an unclassified folder image whose filename echoes
// the album title, then the best-sorted folder candidate.
func (p *syncPass) pickCover(album *catalog.Album, candidates []*catalog.Artwork) *catalog.Artwork {
	if embedded := p.embeddedCover[album]; embedded != nil {
		return embedded
	}
	// An embedded front cover chosen on an earlier pass stays in charge.
	if album.Cover != nil && album.Cover.SourceKind == catalog.SourceEmbedded && album.Cover.Role == catalog.RoleCoverFront {
		return album.Cover
	}
	title := normalizeForMatch(album.Title)
	if title != "" {
		for _, artwork := range candidates {
			if artwork.Role != catalog.RoleOther {
				continue
			}
			if strings.Contains(normalizeForMatch(filepath.Base(artwork.SourcePath)), title) {
				return artwork
			}
		}
	}
	if len(candidates) > 0 {
		return candidates[0]
	}
	return nil
}

// normalizeForMatch lower-cases and strips everything but letters and digits,
// so "The Album!" matches "the_album.png".
func normalizeForMatch(value string) string {
	var builder strings.Builder
	for _, r := range strings.ToLower(value) {
		if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' {
			builder.WriteRune(r)
		}
	}
	return builder.String()
}
