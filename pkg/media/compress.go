package media

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"strings"

	"whatshub/internal/constants"

	xdraw "golang.org/x/image/draw"
)

// ShouldCompress reports whether an image payload is large enough to be
// worth re-encoding.
func ShouldCompress(sizeBytes int) bool {
	return sizeBytes > constants.MediaCompressionThresholdBytes
}

// CompressImage re-encodes an oversized image as JPEG: any alpha or palette
// color mode becomes opaque RGB, and dimensions are scaled down to fit
// within the maximum bounding box, preserving aspect ratio. Returns the new
// bytes and the "jpg" extension.
func CompressImage(content []byte) ([]byte, string, error) {
	return reencode(content, constants.MediaMaxImageDimensionPx, constants.MediaCompressionJPEGQuality)
}

// Thumbnail produces a small, lower-quality JPEG preview. Not part of the
// main pipeline; callers invoke it separately when a preview is wanted.
func Thumbnail(content []byte) ([]byte, error) {
	out, _, err := reencode(content, constants.ThumbnailMaxDimensionPx, constants.ThumbnailJPEGQuality)
	return out, err
}

func reencode(content []byte, maxDim, quality int) ([]byte, string, error) {
	img, _, err := image.Decode(bytes.NewReader(content))
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode image: %w", err)
	}

	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	targetW, targetH := fitWithin(width, height, maxDim)

	// Drawing onto an opaque RGB canvas flattens alpha and palette modes.
	dst := image.NewRGBA(image.Rect(0, 0, targetW, targetH))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, xdraw.Src, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: quality}); err != nil {
		return nil, "", fmt.Errorf("failed to encode JPEG: %w", err)
	}
	return buf.Bytes(), "jpg", nil
}

// fitWithin scales (w, h) down to fit a square bounding box of maxDim,
// preserving aspect ratio. Images already within the box keep their size.
func fitWithin(w, h, maxDim int) (int, int) {
	if w <= maxDim && h <= maxDim {
		return w, h
	}
	if w >= h {
		return maxDim, maxInt(1, h*maxDim/w)
	}
	return maxInt(1, w*maxDim/h), maxDim
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// ExtensionFromMime maps a MIME type to a file extension, falling back to
// the subtype or "bin".
func ExtensionFromMime(mimeType string) string {
	known := map[string]string{
		"image/jpeg":      "jpg",
		"image/png":       "png",
		"image/gif":       "gif",
		"image/webp":      "webp",
		"video/mp4":       "mp4",
		"video/3gpp":      "3gp",
		"audio/aac":       "aac",
		"audio/mp4":       "m4a",
		"audio/mpeg":      "mp3",
		"audio/ogg":       "ogg",
		"application/pdf": "pdf",
	}
	if ext, ok := known[mimeType]; ok {
		return ext
	}
	if i := strings.LastIndex(mimeType, "/"); i >= 0 && i+1 < len(mimeType) {
		return mimeType[i+1:]
	}
	return "bin"
}
