// Package convert decodes fetched image bytes and re-encodes them into one of
// the download formats.
package convert

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"net/url"
	"strings"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"snapseek/internal/bridge"
)

// JPEGQuality is used for every jpg output.
const JPEGQuality = 92

// ErrEmpty is returned when there are no bytes to decode.
var ErrEmpty = errors.New("convert: empty image data")

// Source is a decoded image. Anim is set for multi-frame GIF input.
type Source struct {
	Image  image.Image
	Anim   *gif.GIF
	Format string
}

// Decode reads any registered image format. Multi-frame GIFs keep every
// frame; Image is then the first frame.
func Decode(raw []byte) (Source, error) {
	if len(raw) == 0 {
		return Source{}, ErrEmpty
	}
	_, format, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return Source{}, fmt.Errorf("convert: unrecognized image data: %w", err)
	}
	if format == "gif" {
		g, err := gif.DecodeAll(bytes.NewReader(raw))
		if err != nil {
			return Source{}, fmt.Errorf("convert: decode gif: %w", err)
		}
		if len(g.Image) == 0 {
			return Source{}, ErrEmpty
		}
		src := Source{Image: g.Image[0], Format: format}
		if len(g.Image) > 1 {
			src.Anim = g
		}
		return src, nil
	}
	img, format, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return Source{}, fmt.Errorf("convert: decode %s: %w", format, err)
	}
	return Source{Image: img, Format: format}, nil
}

// Encode writes src to w in format f.
func Encode(w io.Writer, src Source, f bridge.Format) error {
	switch f {
	case bridge.PNG:
		enc := png.Encoder{CompressionLevel: png.DefaultCompression}
		return enc.Encode(w, src.Image)
	case bridge.JPG:
		img := src.Image
		if HasAlpha(img) {
			img = Flatten(img, color.White)
		}
		return jpeg.Encode(w, img, &jpeg.Options{Quality: JPEGQuality})
	case bridge.GIF:
		if src.Anim != nil {
			return gif.EncodeAll(w, src.Anim)
		}
		return gif.Encode(w, src.Image, &gif.Options{NumColors: 256, Drawer: draw.FloydSteinberg})
	}
	return fmt.Errorf("convert: %w: %q", bridge.ErrUnsupportedFormat, f)
}

// Convert decodes raw and re-encodes it as f.
func Convert(raw []byte, f bridge.Format) ([]byte, error) {
	src, err := Decode(raw)
	if err != nil {
		return nil, err
	}
	var out bytes.Buffer
	if err := Encode(&out, src, f); err != nil {
		return nil, fmt.Errorf("convert: encode %s: %w", f, err)
	}
	return out.Bytes(), nil
}

// Flatten composites img over a solid background.
func Flatten(img image.Image, bg color.Color) image.Image {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(bg), image.Point{}, draw.Src)
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Over)
	return dst
}

// HasAlpha reports whether any sampled pixel is not fully opaque.
func HasAlpha(img image.Image) bool {
	b := img.Bounds()
	dx, dy := b.Dx(), b.Dy()
	if dx <= 0 || dy <= 0 {
		return false
	}
	if o, ok := img.(interface{ Opaque() bool }); ok {
		return !o.Opaque()
	}
	// Sample a ~64x64 grid on images without a cheap opacity check.
	stepX := max(dx/64, 1)
	stepY := max(dy/64, 1)
	for y := b.Min.Y; y < b.Max.Y; y += stepY {
		for x := b.Min.X; x < b.Max.X; x += stepX {
			_, _, _, a := img.At(x, y).RGBA()
			if a < 0xFFFF {
				return true
			}
		}
	}
	return false
}

// DecodeDataURI returns the payload of a data: URI.
func DecodeDataURI(uri string) ([]byte, string, error) {
	// data:[<mediatype>][;base64],<data>
	comma := strings.IndexByte(uri, ',')
	if !strings.HasPrefix(uri, "data:") || comma == -1 {
		return nil, "", errors.New("convert: malformed data uri")
	}
	meta := uri[len("data:"):comma]
	data := uri[comma+1:]
	mediaType := strings.SplitN(meta, ";", 2)[0]
	if strings.HasSuffix(meta, ";base64") {
		raw, err := base64.StdEncoding.DecodeString(data)
		if err != nil {
			return nil, mediaType, fmt.Errorf("convert: data uri: %w", err)
		}
		return raw, mediaType, nil
	}
	raw, err := url.PathUnescape(data)
	if err != nil {
		return nil, mediaType, fmt.Errorf("convert: data uri: %w", err)
	}
	return []byte(raw), mediaType, nil
}
