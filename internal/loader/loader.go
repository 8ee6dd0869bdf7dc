// Package loader decodes dataset files into packed RGB images for the embedders.
package loader

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"os"

	// Registered decoders. Anything else is unreadable.
	_ "image/gif"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/andresmejia3/facedb/internal/utils"
)

// ErrUnreadable marks a file that cannot be read or decoded as an image.
var ErrUnreadable = errors.New("unreadable image")

const jpegQuality = 95

// Image is a decoded dataset file. RGB holds Width*Height*3 bytes, row-major,
// in R, G, B order whatever color model the source was stored in.
type Image struct {
	Path   string
	ID     string
	Format string
	Width  int
	Height int
	RGB    []byte

	raw []byte
	src image.Image
}

// Load reads and decodes path. Read and decode failures wrap ErrUnreadable.
func Load(path string) (*Image, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnreadable, path, err)
	}
	return Decode(path, raw)
}

// Decode builds an Image from raw file bytes.
func Decode(path string, raw []byte) (*Image, error) {
	src, format, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnreadable, path, err)
	}
	b := src.Bounds()
	if b.Empty() {
		return nil, fmt.Errorf("%w: %s: empty image", ErrUnreadable, path)
	}

	return &Image{
		Path:   path,
		ID:     utils.GenerateImageID(raw),
		Format: format,
		Width:  b.Dx(),
		Height: b.Dy(),
		RGB:    toRGB(src),
		raw:    raw,
		src:    src,
	}, nil
}

// JPEG returns the image as JPEG bytes: the original file when it already is one,
// a fresh encode otherwise.
func (img *Image) JPEG() ([]byte, error) {
	if img.Format == "jpeg" {
		return img.raw, nil
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img.src, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("failed to re-encode %s as jpeg: %w", img.Path, err)
	}
	return buf.Bytes(), nil
}

// toRGB flattens any decoded image into packed 8-bit RGB.
func toRGB(src image.Image) []byte {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	out := make([]byte, w*h*3)

	switch m := src.(type) {
	case *image.RGBA:
		for y := 0; y < h; y++ {
			row := m.Pix[y*m.Stride:]
			for x := 0; x < w; x++ {
				// Un-premultiply so transparent pixels keep their hue
				c := color.NRGBAModel.Convert(color.RGBA{row[x*4], row[x*4+1], row[x*4+2], row[x*4+3]}).(color.NRGBA)
				off := (y*w + x) * 3
				out[off], out[off+1], out[off+2] = c.R, c.G, c.B
			}
		}
	case *image.NRGBA:
		for y := 0; y < h; y++ {
			row := m.Pix[y*m.Stride:]
			for x := 0; x < w; x++ {
				off := (y*w + x) * 3
				out[off], out[off+1], out[off+2] = row[x*4], row[x*4+1], row[x*4+2]
			}
		}
	default:
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				c := color.NRGBAModel.Convert(src.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA)
				off := (y*w + x) * 3
				out[off], out[off+1], out[off+2] = c.R, c.G, c.B
			}
		}
	}
	return out
}
