// Package playlist parses playlist container formats and CUE sheets into
// ordered track path lists or virtual sub-track descriptions.
package playlist

import (
	"bufio"
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// CueHandler receives a completed cue sheet that actually splits physical
// files into virtual sub-tracks.
type CueHandler func(sheet *CueSheet) error

// Parse reads the playlist file at path and returns the ordered list of
// referenced track paths, resolved to absolute paths relative to the
// playlist's directory. CUE sheets that describe sub-track splitting are
// handed to the handler instead and yield no plain path list.
func Parse(path string, handler CueHandler) ([]string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".m3u", ".m3u8":
		return parseM3U(path)
	case ".pls":
		return parsePLS(path)
	case ".wpl":
		return parseWPL(path)
	case ".xspf":
		return parseXSPF(path)
	case ".cue":
		return parseCuePlaylist(path, handler)
	default:
		return nil, fmt.Errorf("unsupported playlist format: %s", path)
	}
}

func parseM3U(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open playlist %s: %w", path, err)
	}
	defer file.Close()

	var entries []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		entries = append(entries, resolveEntry(path, line))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read playlist %s: %w", path, err)
	}

	return entries, nil
}

func parsePLS(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open playlist %s: %w", path, err)
	}
	defer file.Close()

	var entries []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(strings.ToLower(line), "file") {
			continue
		}
		separator := strings.Index(line, "=")
		if separator < 0 {
			continue
		}
		value := strings.TrimSpace(line[separator+1:])
		if value == "" {
			continue
		}
		entries = append(entries, resolveEntry(path, value))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read playlist %s: %w", path, err)
	}

	return entries, nil
}

type wplDocument struct {
	Body struct {
		Seq struct {
			Media []struct {
				Src string `xml:"src,attr"`
			} `xml:"media"`
		} `xml:"seq"`
	} `xml:"body"`
}

func parseWPL(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("open playlist %s: %w", path, err)
	}

	var doc wplDocument
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse wpl %s: %w", path, err)
	}

	var entries []string
	for _, media := range doc.Body.Seq.Media {
		src := strings.TrimSpace(media.Src)
		if src == "" {
			continue
		}
		entries = append(entries, resolveEntry(path, src))
	}

	return entries, nil
}

type xspfDocument struct {
	TrackList struct {
		Tracks []struct {
			Location string `xml:"location"`
		} `xml:"track"`
	} `xml:"trackList"`
}

func parseXSPF(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("open playlist %s: %w", path, err)
	}

	var doc xspfDocument
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse xspf %s: %w", path, err)
	}

	var entries []string
	for _, track := range doc.TrackList.Tracks {
		location := strings.TrimSpace(track.Location)
		location = strings.TrimPrefix(location, "file://")
		if location == "" {
			continue
		}
		entries = append(entries, resolveEntry(path, location))
	}

	return entries, nil
}

func parseCuePlaylist(path string, handler CueHandler) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open cue sheet %s: %w", path, err)
	}
	defer file.Close()

	sheet, err := ParseCue(file)
	if err != nil {
		return nil, fmt.Errorf("parse cue sheet %s: %w", path, err)
	}
	sheet.Path = path

	if sheet.Splits() && handler != nil {
		if err := handler(sheet); err != nil {
			return nil, err
		}
		return nil, nil
	}

	entries := make([]string, 0, len(sheet.Files))
	for _, name := range sheet.Files {
		entries = append(entries, resolveEntry(path, name))
	}

	return entries, nil
}

// resolveEntry turns a playlist entry into an absolute, cleaned path.
// Relative entries are resolved against the playlist's directory.
func resolveEntry(playlistPath, entry string) string {
	entry = filepath.FromSlash(strings.TrimSpace(entry))
	if filepath.IsAbs(entry) {
		return filepath.Clean(entry)
	}

	return filepath.Clean(filepath.Join(filepath.Dir(playlistPath), entry))
}
