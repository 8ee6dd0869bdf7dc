package loader

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

func writePNG(t *testing.T, path string, img image.Image) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
}

func TestLoadPNGChannelOrder(t *testing.T) {
	dir := t.TempDir()
	src := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	src.Set(0, 0, color.NRGBA{R: 255, A: 255}) // Pure red
	src.Set(1, 0, color.NRGBA{B: 255, A: 255}) // Pure blue
	path := filepath.Join(dir, "rb.png")
	writePNG(t, path, src)

	img, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if img.Format != "png" || img.Width != 2 || img.Height != 1 {
		t.Fatalf("Unexpected header: format=%s %dx%d", img.Format, img.Width, img.Height)
	}

	want := []byte{255, 0, 0, 0, 0, 255}
	if !bytes.Equal(img.RGB, want) {
		t.Errorf("Expected RGB %v, got %v", want, img.RGB)
	}
}

func TestLoadPalettedImage(t *testing.T) {
	dir := t.TempDir()
	pal := color.Palette{color.RGBA{0, 255, 0, 255}}
	src := image.NewPaletted(image.Rect(0, 0, 1, 1), pal)
	path := filepath.Join(dir, "green.png")
	writePNG(t, path, src)

	img, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !bytes.Equal(img.RGB, []byte{0, 255, 0}) {
		t.Errorf("Expected green pixel, got %v", img.RGB)
	}
}

func TestLoadUnreadable(t *testing.T) {
	dir := t.TempDir()
	notImage := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(notImage, []byte("definitely not pixels"), 0644); err != nil {
		t.Fatal(err)
	}
	wrongExt := filepath.Join(dir, "fake.jpg")
	if err := os.WriteFile(wrongExt, []byte{0xFF, 0xD8, 0x00}, 0644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		path string
	}{
		{"Text file", notImage},
		{"Corrupt jpeg", wrongExt},
		{"Directory", dir},
		{"Missing file", filepath.Join(dir, "missing.png")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(tt.path)
			if !errors.Is(err, ErrUnreadable) {
				t.Errorf("Expected ErrUnreadable, got %v", err)
			}
		})
	}
}

func TestJPEGPassThroughAndReencode(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for i := range src.Pix {
		src.Pix[i] = 200
	}

	var jpg bytes.Buffer
	if err := jpeg.Encode(&jpg, src, nil); err != nil {
		t.Fatal(err)
	}
	img, err := Decode("a.jpg", jpg.Bytes())
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	out, err := img.JPEG()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(out, jpg.Bytes()) {
		t.Error("Expected original JPEG bytes to be passed through untouched")
	}

	var pngBuf bytes.Buffer
	if err := png.Encode(&pngBuf, src); err != nil {
		t.Fatal(err)
	}
	img, err = Decode("a.png", pngBuf.Bytes())
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	out, err = img.JPEG()
	if err != nil {
		t.Fatal(err)
	}
	if _, format, err := image.Decode(bytes.NewReader(out)); err != nil || format != "jpeg" {
		t.Errorf("Expected re-encoded jpeg, got format=%q err=%v", format, err)
	}
}
