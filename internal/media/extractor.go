// Package media wraps the external capabilities the sync engine needs:
// tag extraction for audio files and decoding, hashing and thumbnailing for
// images.
package media

import (
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"go.senan.xyz/taglib"
)

var leadingIntegerPattern = regexp.MustCompile(`\d+`)

var yearPattern = regexp.MustCompile(`\b(19|20)\d{2}\b`)

// EmbeddedPicture is one picture carried inside an audio file's tags.
type EmbeddedPicture struct {
	Mime string
	Data []byte
}

// TrackMetadata is everything the sync engine extracts from one audio file.
type TrackMetadata struct {
	Title        string
	Album        string
	Performers   []string
	Composers    []string
	AlbumArtists []string
	Conductor    string
	Remixer      string
	Publisher    string
	Genres       []string
	Comment      string
	Year         int
	TrackNo      int
	DiscNo       int
	DurationMS   int
	Bitrate      int
	SampleRate   int
	Channels     int
	Codec        string
	Pictures     []EmbeddedPicture
}

// ReadTrackMetadata extracts tags and audio properties from the file at path.
// An unreadable or corrupt file returns an error; the caller records it as a
// discarded file rather than aborting the pass.
func ReadTrackMetadata(path string) (TrackMetadata, error) {
	tags, err := taglib.ReadTags(path)
	if err != nil {
		return TrackMetadata{}, fmt.Errorf("read tags %s: %w", path, err)
	}

	meta := TrackMetadata{
		Title:        firstTagValue(tags, taglib.Title, "TITLE"),
		Album:        firstTagValue(tags, taglib.Album, "ALBUM"),
		Performers:   allTagValues(tags, taglib.Artist, "ARTIST"),
		Composers:    allTagValues(tags, "COMPOSER"),
		AlbumArtists: allTagValues(tags, taglib.AlbumArtist, "ALBUMARTIST"),
		Conductor:    firstTagValue(tags, "CONDUCTOR"),
		Remixer:      firstTagValue(tags, "REMIXER", "MIXARTIST"),
		Publisher:    firstTagValue(tags, "LABEL", "PUBLISHER"),
		Genres:       allTagValues(tags, taglib.Genre, "GENRE"),
		Comment:      firstTagValue(tags, "COMMENT"),
	}

	if year := parseYearTag(firstTagValue(tags, taglib.Date, "DATE", "YEAR", "ORIGINALDATE")); year != nil {
		meta.Year = *year
	}
	if trackNo := parseNumericTag(firstTagValue(tags, taglib.TrackNumber, "TRACKNUMBER", "TRCK")); trackNo != nil {
		meta.TrackNo = *trackNo
	}
	if discNo := parseNumericTag(firstTagValue(tags, taglib.DiscNumber, "DISCNUMBER", "TPOS")); discNo != nil {
		meta.DiscNo = *discNo
	}

	meta.Codec = firstTagValue(tags, taglib.FileType, "FILETYPE")

	properties, err := taglib.ReadProperties(path)
	if err != nil {
		return TrackMetadata{}, fmt.Errorf("read properties %s: %w", path, err)
	}
	meta.DurationMS = int(properties.Length.Milliseconds())
	meta.Bitrate = int(properties.Bitrate)
	meta.SampleRate = int(properties.SampleRate)
	meta.Channels = int(properties.Channels)

	if imageData, imageErr := taglib.ReadImage(path); imageErr == nil && len(imageData) > 0 {
		meta.Pictures = append(meta.Pictures, EmbeddedPicture{
			Mime: http.DetectContentType(imageData),
			Data: imageData,
		})
	}

	return meta, nil
}

func firstTagValue(tags map[string][]string, keys ...string) string {
	for _, key := range keys {
		values, ok := tags[key]
		if !ok {
			continue
		}
		for _, value := range values {
			trimmed := strings.TrimSpace(value)
			if trimmed != "" {
				return trimmed
			}
		}
	}

	return ""
}

func allTagValues(tags map[string][]string, keys ...string) []string {
	var result []string
	for _, key := range keys {
		for _, value := range tags[key] {
			trimmed := strings.TrimSpace(value)
			if trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}

	return result
}

func parseNumericTag(value string) *int {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}

	match := leadingIntegerPattern.FindString(trimmed)
	if match == "" {
		return nil
	}

	parsed, err := strconv.Atoi(match)
	if err != nil || parsed <= 0 {
		return nil
	}

	return &parsed
}

func parseYearTag(value string) *int {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}

	match := yearPattern.FindString(trimmed)
	if match == "" {
		if fallback := parseNumericTag(trimmed); fallback != nil {
			if *fallback >= 1000 && *fallback <= 3000 {
				return fallback
			}
		}
		return nil
	}

	parsed, err := strconv.Atoi(match)
	if err != nil {
		return nil
	}

	return &parsed
}
