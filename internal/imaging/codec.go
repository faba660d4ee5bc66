// Package imaging decodes, converts and encodes the images handled by the worker.
// Every function here is pure: bytes or pixels in, bytes or pixels out.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
	"image"
	"image/color"
	"image/draw"
	"image/gif"
	"image/jpeg"
	"image/png"
	"strings"

	// register the decoders that have no encoder here
	_ "golang.org/x/image/webp"
)

var (
	ErrUnsupportedMedia = errors.New("unsupported media type")
	ErrTooLarge         = errors.New("image too large")
)

const (
	FormatJPEG = "jpeg"
	FormatPNG  = "png"
	FormatGIF  = "gif"
	FormatBMP  = "bmp"
	FormatTIFF = "tiff"
	FormatWEBP = "webp"
)

var contentTypes = map[string]string{
	FormatJPEG: "image/jpeg",
	FormatPNG:  "image/png",
	FormatGIF:  "image/gif",
	FormatBMP:  "image/bmp",
	FormatTIFF: "image/tiff",
	FormatWEBP: "image/webp",
}

var extensions = map[string]string{
	FormatJPEG: ".jpg",
	FormatPNG:  ".png",
	FormatGIF:  ".gif",
	FormatBMP:  ".bmp",
	FormatTIFF: ".tiff",
	FormatWEBP: ".webp",
}

// Decode sniffs the payload and decodes it. The returned format is the name
// the image package registered the decoder under (jpeg, png, ...).
// Images with more than maxPixels pixels are rejected from their header,
// before any pixel buffer is allocated.
func Decode(data []byte, maxPixels int64) (image.Image, string, error) {
	mtype := mimetype.Detect(data)
	if !strings.HasPrefix(mtype.String(), "image/") {
		return nil, "", fmt.Errorf("%w: %s", ErrUnsupportedMedia, mtype.String())
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		if errors.Is(err, image.ErrFormat) {
			return nil, "", fmt.Errorf("%w: %s", ErrUnsupportedMedia, mtype.String())
		}
		return nil, "", fmt.Errorf("failed to read %s header: %w", mtype.String(), err)
	}
	if pixels := int64(cfg.Width) * int64(cfg.Height); pixels > maxPixels {
		return nil, "", fmt.Errorf("%w: %dx%d is %d pixels, limit is %d", ErrTooLarge, cfg.Width, cfg.Height, pixels, maxPixels)
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		if errors.Is(err, image.ErrFormat) {
			return nil, "", fmt.Errorf("%w: %s", ErrUnsupportedMedia, mtype.String())
		}
		return nil, "", fmt.Errorf("failed to decode %s: %w", mtype.String(), err)
	}

	return img, format, nil
}

// Encode writes img in the given format. quality only applies to jpeg.
func Encode(img image.Image, format string, quality int) ([]byte, error) {
	var buf bytes.Buffer
	var err error

	switch format {
	case FormatJPEG:
		err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality})
	case FormatPNG:
		err = png.Encode(&buf, img)
	case FormatGIF:
		err = gif.Encode(&buf, greyPaletted(img), nil)
	case FormatBMP:
		err = bmp.Encode(&buf, img)
	case FormatTIFF:
		err = tiff.Encode(&buf, img, &tiff.Options{Compression: tiff.Deflate})
	default:
		return nil, fmt.Errorf("%w: no encoder for %q", ErrUnsupportedMedia, format)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", format, err)
	}
	return buf.Bytes(), nil
}

// greyPaletted maps img onto a 256 level grey palette so gif keeps every
// grey level instead of quantizing to the default Plan9 palette.
func greyPaletted(img image.Image) *image.Paletted {
	palette := make(color.Palette, 256)
	for i := range palette {
		palette[i] = color.Gray{Y: uint8(i)}
	}
	p := image.NewPaletted(img.Bounds(), palette)
	draw.Draw(p, p.Bounds(), img, img.Bounds().Min, draw.Src)
	return p
}

// OutputFormat picks the format to encode to. "source" keeps the decoded
// format when an encoder exists for it and falls back to jpeg otherwise.
func OutputFormat(configured, decoded string) string {
	if configured != "source" {
		return configured
	}
	switch decoded {
	case FormatJPEG, FormatPNG, FormatGIF, FormatBMP, FormatTIFF:
		return decoded
	default:
		return FormatJPEG
	}
}

func ContentType(format string) string {
	if ct, ok := contentTypes[format]; ok {
		return ct
	}
	return "application/octet-stream"
}

func Extension(format string) string {
	return extensions[format]
}

// MatchesExtension reports whether ext (with leading dot) is a usual file
// extension for format.
func MatchesExtension(format, ext string) bool {
	ext = strings.ToLower(ext)
	switch format {
	case FormatJPEG:
		return ext == ".jpg" || ext == ".jpeg"
	case FormatTIFF:
		return ext == ".tif" || ext == ".tiff"
	default:
		return ext != "" && ext == extensions[format]
	}
}
