package media

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	"image/jpeg"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	_ "image/gif"
	_ "image/png"

	"github.com/gen2brain/avif"
)

// ImageInfo describes a successfully decoded image.
type ImageInfo struct {
	Width  int
	Height int
	Mime   string
	Hash   string
	img    image.Image
}

// DecodeImage decodes the source bytes and computes their content hash.
// The standard decoders are tried first; avif is the fallback. Both failing
// means the image is discarded by the caller.
func DecodeImage(data []byte) (ImageInfo, error) {
	hash := HashBytes(data)
	mime := http.DetectContentType(data)

	decoded, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		decoded, err = avif.Decode(bytes.NewReader(data))
		if err != nil {
			return ImageInfo{}, fmt.Errorf("decode image: %w", err)
		}
		mime = "image/avif"
	}

	bounds := decoded.Bounds()
	return ImageInfo{
		Width:  bounds.Dx(),
		Height: bounds.Dy(),
		Mime:   mime,
		Hash:   hash,
		img:    decoded,
	}, nil
}

// HashBytes returns the SHA-256 hex digest of the raw source bytes, computed
// before any resize or recompression.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Thumbnailer writes hash-named JPEG thumbnails into a cache directory.
type Thumbnailer struct {
	CacheDir string
	Edge     int
}

// Write renders a thumbnail for the decoded image, capped to Edge pixels on
// the longest side, and returns the cache path. An existing cache entry is
// reused.
func (t Thumbnailer) Write(info ImageInfo) (string, error) {
	if t.CacheDir == "" {
		return "", fmt.Errorf("thumbnail cache dir not configured")
	}

	cachePath := filepath.Join(t.CacheDir, info.Hash+".jpg")
	if _, err := os.Stat(cachePath); err == nil {
		return cachePath, nil
	}

	edge := t.Edge
	if edge <= 0 {
		edge = 200
	}
	thumb := downscale(info.img, edge)

	file, err := os.Create(cachePath)
	if err != nil {
		return "", fmt.Errorf("create thumbnail %s: %w", cachePath, err)
	}
	defer file.Close()

	if err := jpeg.Encode(file, thumb, &jpeg.Options{Quality: 85}); err != nil {
		return "", fmt.Errorf("encode thumbnail %s: %w", cachePath, err)
	}

	return cachePath, nil
}

func downscale(src image.Image, maxEdge int) image.Image {
	bounds := src.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	longest := width
	if height > longest {
		longest = height
	}
	if longest <= maxEdge {
		return src
	}

	scale := float64(maxEdge) / float64(longest)
	targetWidth := maxInt(int(math.Round(float64(width)*scale)), 1)
	targetHeight := maxInt(int(math.Round(float64(height)*scale)), 1)

	dst := image.NewNRGBA(image.Rect(0, 0, targetWidth, targetHeight))
	for y := 0; y < targetHeight; y++ {
		srcY := bounds.Min.Y + int(float64(y)/scale)
		for x := 0; x < targetWidth; x++ {
			srcX := bounds.Min.X + int(float64(x)/scale)
			dst.Set(x, y, src.At(srcX, srcY))
		}
	}

	return dst
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// roleKeywords map filename fragments to artwork roles, checked in order so
// the more specific names win.
var roleKeywords = []struct {
	keywords []string
	role     string
}{
	{[]string{"cover", "front", "folder"}, "cover_front"},
	{[]string{"back"}, "cover_back"},
	{[]string{"booklet"}, "booklet"},
	{[]string{"inlay", "tray"}, "inlay"},
	{[]string{"artist"}, "artist"},
	{[]string{"disc", "cd", "vinyl"}, "disk"},
}

// RoleForFilename guesses an artwork role from its filename.
func RoleForFilename(name string) string {
	base := strings.ToLower(strings.TrimSuffix(filepath.Base(name), filepath.Ext(name)))
	for _, entry := range roleKeywords {
		for _, keyword := range entry.keywords {
			if strings.Contains(base, keyword) {
				return entry.role
			}
		}
	}

	return "other"
}
