package scanner

import "testing"

func TestClassify(t *testing.T) {
	t.Parallel()

	cases := []struct {
		path string
		want FileKind
	}{
		{"song.mp3", KindAudio},
		{"SONG.FLAC", KindAudio},
		{"/library/a/b/track.opus", KindAudio},
		{"cover.jpg", KindImage},
		{"art.AVIF", KindImage},
		{"mix.m3u8", KindPlaylist},
		{"album.cue", KindPlaylist},
		{"mix.pls", KindPlaylist},
		{"notes.txt", KindNeither},
		{"noextension", KindNeither},
		{"", KindNeither},
		{"song.mp3.bak", KindNeither},
	}
	for _, tc := range cases {
		if got := Classify(tc.path); got != tc.want {
			t.Errorf("Classify(%q) = %s, want %s", tc.path, got, tc.want)
		}
	}
}
