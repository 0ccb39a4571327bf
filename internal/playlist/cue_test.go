package playlist

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
)

const splittingCue = `REM GENRE Electronic
PERFORMER "Some Band"
TITLE "Some Album"
FILE "album.flac" WAVE
  TRACK 01 AUDIO
    TITLE "First"
    PERFORMER "Some Band"
    INDEX 01 00:00:00
  TRACK 02 AUDIO
    TITLE "Second"
    INDEX 00 03:58:70
    INDEX 01 04:00:00
  TRACK 03 AUDIO
    TITLE "Third"
    INDEX 01 08:30:37
`

func TestParseCueSplittingSheet(t *testing.T) {
	t.Parallel()

	sheet, err := ParseCue(strings.NewReader(splittingCue))
	if err != nil {
		t.Fatalf("parse cue: %v", err)
	}

	if sheet.Performer != "Some Band" || sheet.Title != "Some Album" {
		t.Fatalf("global fields wrong: %q / %q", sheet.Performer, sheet.Title)
	}
	if len(sheet.Files) != 1 || sheet.Files[0] != "album.flac" {
		t.Fatalf("unexpected files: %v", sheet.Files)
	}
	if len(sheet.Tracks) != 3 {
		t.Fatalf("expected 3 tracks, got %d", len(sheet.Tracks))
	}
	if !sheet.Splits() {
		t.Fatal("3 tracks over 1 file must split")
	}

	second := sheet.Tracks[1]
	if second.Title != "Second" || second.Number != 2 {
		t.Fatalf("track 2 wrong: %+v", second)
	}
	// INDEX 01 wins over INDEX 00.
	if got := second.Start(); got != 240.0 {
		t.Fatalf("track 2 start = %v, want 240s", got)
	}

	third := sheet.Tracks[2]
	want := float64((8*60+30)*75+37) / 75
	if got := third.Start(); got != want {
		t.Fatalf("track 3 start = %v, want %v", got, want)
	}
}

func TestParseCueOneToOneDoesNotSplit(t *testing.T) {
	t.Parallel()

	body := `FILE "one.mp3" MP3
  TRACK 01 AUDIO
    INDEX 01 00:00:00
FILE "two.mp3" MP3
  TRACK 02 AUDIO
    INDEX 01 00:00:00
`
	sheet, err := ParseCue(strings.NewReader(body))
	if err != nil {
		t.Fatalf("parse cue: %v", err)
	}
	if sheet.Splits() {
		t.Fatal("track count equal to file count must not split")
	}
}

func TestParseCueTrackBeforeFileIsError(t *testing.T) {
	t.Parallel()

	body := "TRACK 01 AUDIO\nINDEX 01 00:00:00\nFILE \"late.flac\" WAVE\n"
	if _, err := ParseCue(strings.NewReader(body)); !errors.Is(err, ErrTrackBeforeFile) {
		t.Fatalf("expected ErrTrackBeforeFile, got %v", err)
	}
}

func TestParseOneToOneCueYieldsPlainPathList(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	body := "FILE \"one.mp3\" MP3\n  TRACK 01 AUDIO\n    INDEX 01 00:00:00\n"
	path := writePlaylist(t, dir, "single.cue", body)

	handlerCalled := false
	got, err := Parse(path, func(*CueSheet) error {
		handlerCalled = true
		return nil
	})
	if err != nil {
		t.Fatalf("parse cue playlist: %v", err)
	}
	if handlerCalled {
		t.Fatal("handler must not fire for a 1:1 sheet")
	}
	if len(got) != 1 || got[0] != filepath.Join(dir, "one.mp3") {
		t.Fatalf("unexpected entries: %v", got)
	}
}

func TestParseSplittingCueInvokesHandler(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := writePlaylist(t, dir, "album.cue", splittingCue)

	var seen *CueSheet
	got, err := Parse(path, func(sheet *CueSheet) error {
		seen = sheet
		return nil
	})
	if err != nil {
		t.Fatalf("parse cue playlist: %v", err)
	}
	if got != nil {
		t.Fatalf("splitting sheet must not yield a path list, got %v", got)
	}
	if seen == nil {
		t.Fatal("handler must receive the sheet")
	}
	if seen.Path != path {
		t.Fatalf("sheet path = %q, want %q", seen.Path, path)
	}
	if tracks := seen.TracksForFile("album.flac"); len(tracks) != 3 {
		t.Fatalf("expected 3 tracks for album.flac, got %d", len(tracks))
	}
}
