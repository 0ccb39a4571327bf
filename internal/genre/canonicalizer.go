// Package genre normalizes free-text genre strings into a curated vocabulary.
package genre

import (
	"regexp"
	"strings"
	"unicode"
)

var splitPattern = regexp.MustCompile(`[,;/|\\]|\s-\s`)

var whitespacePattern = regexp.MustCompile(`\s+`)

var separatorPatterns = []struct {
	pattern     *regexp.Regexp
	replacement string
}{
	{regexp.MustCompile(`\s*_\s*`), "_"},
	{regexp.MustCompile(`\s*&\s*`), " & "},
	{regexp.MustCompile(`\s*-\s*`), "-"},
}

// prefixRewrites turn a leading qualifier word into its hyphenated form.
// Applied as substring replacement, first match wins per entry.
var prefixRewrites = [][2]string{
	{"Alt ", "Alt-"},
	{"Synth ", "Synth-"},
	{"Prog ", "Prog-"},
	{"Post ", "Post-"},
	{"Nu ", "Nu-"},
	{"Lo Fi", "Lo-Fi"},
	{"Trip ", "Trip-"},
}

var acronymRewrites = [][2]string{
	{"Idm", "IDM"},
	{"Edm", "EDM"},
	{"Ebm", "EBM"},
	{"Dnb", "DnB"},
	{"Uk ", "UK "},
	{"Us ", "US "},
	{"Diy", "DIY"},
}

var synonyms = map[string]string{
	"Hip Hop":          "Hip-Hop",
	"Hiphop":           "Hip-Hop",
	"Rap":              "Hip-Hop",
	"Rnb":              "R&B",
	"R & B":            "R&B",
	"R And B":          "R&B",
	"Rhythm & Blues":   "R&B",
	"Drum & Bass":      "DnB",
	"Drum And Bass":    "DnB",
	"D&B":              "DnB",
	"Alternative Rock": "Alt-Rock",
	"Alternative":      "Alt-Rock",
	"Electro":          "Electronic",
	"Electronica":      "Electronic",
	"Psychedelic":      "Psychedelia",
	"Lofi":             "Lo-Fi",
	"Soundtrack":       "OST",
}

// Canonicalize splits a raw genre tag into fragments and maps each fragment to
// its canonical name. Fragment order is preserved; duplicates are kept (entity
// resolution collapses them by natural key).
func Canonicalize(raw string) []string {
	fragments := splitPattern.Split(raw, -1)
	names := make([]string, 0, len(fragments))
	for _, fragment := range fragments {
		name := canonicalizeOne(fragment)
		if name == "" {
			continue
		}
		names = append(names, name)
	}

	return names
}

func canonicalizeOne(fragment string) string {
	name := strings.TrimSpace(fragment)
	if name == "" {
		return ""
	}

	name = whitespacePattern.ReplaceAllString(name, " ")
	for _, sep := range separatorPatterns {
		name = sep.pattern.ReplaceAllString(name, sep.replacement)
	}
	name = strings.TrimSpace(name)

	name = titleCase(name)

	for _, rewrite := range prefixRewrites {
		name = strings.Replace(name, rewrite[0], rewrite[1], 1)
	}
	for _, rewrite := range acronymRewrites {
		name = strings.Replace(name, rewrite[0], rewrite[1], 1)
	}

	if canonical, ok := synonyms[name]; ok {
		return canonical
	}

	return name
}

// titleCase upper-cases the first letter of every word and lower-cases the
// rest. Hyphens, underscores and ampersands start a new word too, so
// "hip-hop" becomes "Hip-Hop".
func titleCase(value string) string {
	var builder strings.Builder
	builder.Grow(len(value))

	startOfWord := true
	for _, r := range value {
		switch {
		case r == ' ' || r == '-' || r == '_' || r == '&' || r == '(' || r == '/':
			startOfWord = true
			builder.WriteRune(r)
		case startOfWord:
			builder.WriteRune(unicode.ToUpper(r))
			startOfWord = false
		default:
			builder.WriteRune(unicode.ToLower(r))
		}
	}

	return builder.String()
}
