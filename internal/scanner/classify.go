package scanner

import (
	"path/filepath"
	"strings"
)

// FileKind is the classification of one filesystem entry by extension.
type FileKind int

const (
	KindNeither FileKind = iota
	KindAudio
	KindImage
	KindPlaylist
)

func (k FileKind) String() string {
	switch k {
	case KindAudio:
		return "audio"
	case KindImage:
		return "image"
	case KindPlaylist:
		return "playlist"
	default:
		return "neither"
	}
}

var audioExtensions = map[string]struct{}{
	".aac":  {},
	".aif":  {},
	".aiff": {},
	".alac": {},
	".ape":  {},
	".flac": {},
	".m4a":  {},
	".mp3":  {},
	".mpc":  {},
	".ogg":  {},
	".opus": {},
	".wav":  {},
	".wma":  {},
	".wv":   {},
}

var imageExtensions = map[string]struct{}{
	".avif": {},
	".bmp":  {},
	".gif":  {},
	".jpeg": {},
	".jpg":  {},
	".png":  {},
	".webp": {},
}

var playlistExtensions = map[string]struct{}{
	".cue":  {},
	".m3u":  {},
	".m3u8": {},
	".pls":  {},
	".wpl":  {},
	".xspf": {},
}

// Classify maps a file name to its kind by extension. Pure and total;
// anything unrecognized is KindNeither.
func Classify(path string) FileKind {
	ext := strings.ToLower(filepath.Ext(path))
	switch {
	case hasKey(audioExtensions, ext):
		return KindAudio
	case hasKey(imageExtensions, ext):
		return KindImage
	case hasKey(playlistExtensions, ext):
		return KindPlaylist
	default:
		return KindNeither
	}
}

func hasKey(set map[string]struct{}, key string) bool {
	_, ok := set[key]
	return ok
}
