package catalog

import (
	"fmt"
	"strings"
)

type codecSignature struct {
	needles []string
	name    string
}

// Ordered; first signature whose needles all appear in the lower-cased
// description wins.
var codecSignatures = []codecSignature{
	{[]string{"flac"}, "FLAC"},
	{[]string{"alac"}, "ALAC"},
	{[]string{"apple lossless"}, "ALAC"},
	{[]string{"mpeg", "layer 3"}, "MP3"},
	{[]string{"mp3"}, "MP3"},
	{[]string{"aac"}, "AAC"},
	{[]string{"vorbis"}, "Vorbis"},
	{[]string{"opus"}, "Opus"},
	{[]string{"monkey"}, "APE"},
	{[]string{"wavpack"}, "WavPack"},
	{[]string{"wv"}, "WavPack"},
	{[]string{"musepack"}, "Musepack"},
	{[]string{"mpc"}, "Musepack"},
	{[]string{"wma"}, "WMA"},
}

var losslessCodecs = map[string]struct{}{
	"FLAC":    {},
	"ALAC":    {},
	"APE":     {},
	"WavPack": {},
}

var lossyCodecs = map[string]struct{}{
	"MP3":    {},
	"AAC":    {},
	"Vorbis": {},
	"WMA":    {},
}

// FormatDescriptor derives the AudioFormat natural key from a free-text codec
// description and a bitrate in kbps, e.g. "MP3 (192Kbps)" or
// "FLAC (High bitrate)".
func FormatDescriptor(description string, bitrate int) string {
	codec := matchCodec(description)

	density := ""
	switch {
	case isLossless(codec):
		density = losslessDensity(bitrate)
	case isLossy(codec):
		density = lossyDensity(description, bitrate)
	}

	if density == "" {
		return codec
	}

	return fmt.Sprintf("%s (%s)", codec, density)
}

func matchCodec(description string) string {
	lower := strings.ToLower(description)
	for _, sig := range codecSignatures {
		matched := true
		for _, needle := range sig.needles {
			if !strings.Contains(lower, needle) {
				matched = false
				break
			}
		}
		if matched {
			return sig.name
		}
	}

	return description
}

func isLossless(codec string) bool {
	_, ok := losslessCodecs[codec]
	return ok
}

func isLossy(codec string) bool {
	_, ok := lossyCodecs[codec]
	return ok
}

func losslessDensity(bitrate int) string {
	switch {
	case bitrate < 500:
		return "Low bitrate"
	case bitrate < 1000:
		return "Medium bitrate"
	case bitrate < 2000:
		return "High bitrate"
	case bitrate < 3000:
		return "Very High bitrate"
	default:
		return "Ultra High bitrate"
	}
}

func lossyDensity(description string, bitrate int) string {
	if strings.Contains(strings.ToLower(description), "vbr") {
		return "VBR"
	}

	// Exact steps take precedence over the range buckets.
	switch bitrate {
	case 128, 192, 256, 320:
		return fmt.Sprintf("%dKbps", bitrate)
	}

	switch {
	case bitrate < 128:
		return "Low bitrate"
	case bitrate < 192:
		return "Medium bitrate"
	case bitrate < 256:
		return "High bitrate"
	default:
		return "Very High bitrate"
	}
}
