package playlist

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// cueFramesPerSecond is the CD frame rate used by INDEX timecodes.
const cueFramesPerSecond = 75

// ErrTrackBeforeFile reports a cue sheet whose first TRACK entry precedes any
// FILE entry; such a sheet cannot be attributed to a physical file.
var ErrTrackBeforeFile = errors.New("cue sheet has TRACK before FILE")

// CueIndex is one INDEX line: an index number and a position in CD frames
// from the start of the file.
type CueIndex struct {
	Number int
	Frames int
}

// Seconds converts the index position to seconds.
func (i CueIndex) Seconds() float64 {
	return float64(i.Frames) / cueFramesPerSecond
}

// CueTrack is one TRACK block within a cue sheet.
type CueTrack struct {
	Number    int
	Title     string
	Performer string
	File      string
	Indexes   []CueIndex
}

// Start returns the track's starting position in seconds: INDEX 01 if
// present, else the first index.
func (t CueTrack) Start() float64 {
	for _, index := range t.Indexes {
		if index.Number == 1 {
			return index.Seconds()
		}
	}
	if len(t.Indexes) > 0 {
		return t.Indexes[0].Seconds()
	}
	return 0
}

// CueSheet is the parsed form of one .cue file.
type CueSheet struct {
	Path      string
	Title     string
	Performer string
	Files     []string
	Tracks    []CueTrack
}

// Splits reports whether the sheet describes sub-track splitting: more TRACK
// entries than distinct physical FILE entries.
func (s *CueSheet) Splits() bool {
	return len(s.Tracks) > len(s.Files)
}

// TracksForFile returns the sheet's tracks referencing the given FILE entry,
// in sheet order.
func (s *CueSheet) TracksForFile(file string) []CueTrack {
	var tracks []CueTrack
	for _, track := range s.Tracks {
		if track.File == file {
			tracks = append(tracks, track)
		}
	}
	return tracks
}

// ParseCue incrementally parses a cue sheet. Global PERFORMER/TITLE lines
// apply to the sheet; after the first TRACK they apply to that track.
func ParseCue(r io.Reader) (*CueSheet, error) {
	sheet := &CueSheet{}
	seenFiles := map[string]struct{}{}
	currentFile := ""
	var currentTrack *CueTrack

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		command, rest := splitCommand(line)
		switch command {
		case "FILE":
			currentFile = unquote(trimTrailingWord(rest))
			if _, ok := seenFiles[currentFile]; !ok && currentFile != "" {
				seenFiles[currentFile] = struct{}{}
				sheet.Files = append(sheet.Files, currentFile)
			}
		case "TRACK":
			if currentFile == "" {
				return nil, ErrTrackBeforeFile
			}
			if currentTrack != nil {
				sheet.Tracks = append(sheet.Tracks, *currentTrack)
			}
			number, _ := strconv.Atoi(firstWord(rest))
			currentTrack = &CueTrack{Number: number, File: currentFile}
		case "TITLE":
			if currentTrack != nil {
				currentTrack.Title = unquote(rest)
			} else {
				sheet.Title = unquote(rest)
			}
		case "PERFORMER":
			if currentTrack != nil {
				currentTrack.Performer = unquote(rest)
			} else {
				sheet.Performer = unquote(rest)
			}
		case "INDEX":
			if currentTrack == nil {
				continue
			}
			fields := strings.Fields(rest)
			if len(fields) != 2 {
				continue
			}
			number, err := strconv.Atoi(fields[0])
			if err != nil {
				continue
			}
			frames, err := parseTimecode(fields[1])
			if err != nil {
				continue
			}
			currentTrack.Indexes = append(currentTrack.Indexes, CueIndex{Number: number, Frames: frames})
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read cue sheet: %w", err)
	}

	if currentTrack != nil {
		sheet.Tracks = append(sheet.Tracks, *currentTrack)
	}

	return sheet, nil
}

// parseTimecode parses mm:ss:ff at 75 frames per second into total frames.
func parseTimecode(value string) (int, error) {
	parts := strings.Split(value, ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("malformed timecode %q", value)
	}

	minutes, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("malformed timecode %q: %w", value, err)
	}
	seconds, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("malformed timecode %q: %w", value, err)
	}
	frames, err := strconv.Atoi(parts[2])
	if err != nil {
		return 0, fmt.Errorf("malformed timecode %q: %w", value, err)
	}

	return (minutes*60+seconds)*cueFramesPerSecond + frames, nil
}

func splitCommand(line string) (string, string) {
	separator := strings.IndexAny(line, " \t")
	if separator < 0 {
		return strings.ToUpper(line), ""
	}

	return strings.ToUpper(line[:separator]), strings.TrimSpace(line[separator+1:])
}

func firstWord(value string) string {
	fields := strings.Fields(value)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// trimTrailingWord drops the file-type word following a FILE path
// ("... WAVE", "... MP3").
func trimTrailingWord(value string) string {
	trimmed := strings.TrimSpace(value)
	if strings.HasSuffix(trimmed, `"`) {
		return trimmed
	}

	separator := strings.LastIndexAny(trimmed, " \t")
	if separator < 0 {
		return trimmed
	}

	return strings.TrimSpace(trimmed[:separator])
}

func unquote(value string) string {
	trimmed := strings.TrimSpace(value)
	if len(trimmed) >= 2 && strings.HasPrefix(trimmed, `"`) && strings.HasSuffix(trimmed, `"`) {
		return trimmed[1 : len(trimmed)-1]
	}
	return trimmed
}
