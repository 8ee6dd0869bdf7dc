package embedder

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/Kagami/go-face"
	"github.com/andresmejia3/facedb/internal/loader"
	"github.com/andresmejia3/facedb/internal/types"
)

type fakeRecognizer struct {
	faces    []face.Face
	err      error
	hogCalls int
	cnnCalls int
}

func (f *fakeRecognizer) Recognize(imgData []byte) ([]face.Face, error) {
	f.hogCalls++
	return f.faces, f.err
}

func (f *fakeRecognizer) RecognizeCNN(imgData []byte) ([]face.Face, error) {
	f.cnnCalls++
	return f.faces, f.err
}

func (f *fakeRecognizer) Close() {}

func testImage(t *testing.T, name string, shade uint8) *loader.Image {
	t.Helper()
	src := image.NewGray(image.Rect(0, 0, 8, 8))
	for i := range src.Pix {
		src.Pix[i] = shade
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, src); err != nil {
		t.Fatal(err)
	}
	img, err := loader.Decode(name, buf.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	return img
}

func descriptor(first float32) face.Descriptor {
	var d face.Descriptor
	d[0] = first
	return d
}

func TestDlibLocateThenEmbed(t *testing.T) {
	rec := &fakeRecognizer{faces: []face.Face{
		{Rectangle: image.Rect(0, 0, 4, 4), Descriptor: descriptor(0.25)},
		{Rectangle: image.Rect(4, 4, 8, 8), Descriptor: descriptor(0.75)},
	}}
	d := &Dlib{rec: rec}
	ctx := context.Background()
	img := testImage(t, "a.png", 10)

	boxes, err := d.LocateFaces(ctx, img, types.StrategyCNN)
	if err != nil {
		t.Fatalf("LocateFaces failed: %v", err)
	}
	if len(boxes) != 2 || rec.cnnCalls != 1 || rec.hogCalls != 0 {
		t.Fatalf("Expected 2 boxes from one cnn call, got %d boxes (hog=%d cnn=%d)", len(boxes), rec.hogCalls, rec.cnnCalls)
	}

	// Ask in reverse order: embeddings must follow the requested box order
	embs, err := d.ComputeEmbeddings(ctx, img, []image.Rectangle{boxes[1], boxes[0]})
	if err != nil {
		t.Fatalf("ComputeEmbeddings failed: %v", err)
	}
	if len(embs) != 2 || embs[0][0] != 0.75 || embs[1][0] != 0.25 {
		t.Errorf("Embeddings not aligned with boxes: %v", [][]float64{embs[0][:1], embs[1][:1]})
	}
	if len(embs[0]) != 128 {
		t.Errorf("Expected 128-d embedding, got %d", len(embs[0]))
	}
	if rec.cnnCalls+rec.hogCalls != 1 {
		t.Errorf("Expected cached faces to be reused, recognizer called %d times", rec.cnnCalls+rec.hogCalls)
	}
}

func TestDlibCacheMissRecognizesAgain(t *testing.T) {
	rec := &fakeRecognizer{faces: []face.Face{{Rectangle: image.Rect(1, 1, 3, 3), Descriptor: descriptor(1)}}}
	d := &Dlib{rec: rec}
	ctx := context.Background()

	if _, err := d.LocateFaces(ctx, testImage(t, "a.png", 10), types.StrategyHOG); err != nil {
		t.Fatal(err)
	}
	other := testImage(t, "b.png", 200)
	if _, err := d.ComputeEmbeddings(ctx, other, []image.Rectangle{image.Rect(1, 1, 3, 3)}); err != nil {
		t.Fatalf("ComputeEmbeddings failed: %v", err)
	}
	if rec.hogCalls != 2 {
		t.Errorf("Expected a second recognition for a different image, got %d calls", rec.hogCalls)
	}
}

func TestDlibUnknownBox(t *testing.T) {
	rec := &fakeRecognizer{faces: []face.Face{{Rectangle: image.Rect(0, 0, 2, 2)}}}
	d := &Dlib{rec: rec}
	img := testImage(t, "a.png", 10)
	if _, err := d.LocateFaces(context.Background(), img, types.StrategyHOG); err != nil {
		t.Fatal(err)
	}
	if _, err := d.ComputeEmbeddings(context.Background(), img, []image.Rectangle{image.Rect(5, 5, 6, 6)}); err == nil {
		t.Error("Expected error for a box the detector never produced")
	}
}

func TestDlibImageLoadErrorIsUnreadable(t *testing.T) {
	d := &Dlib{rec: &fakeRecognizer{err: face.ImageLoadError("not a jpeg")}}
	_, err := d.LocateFaces(context.Background(), testImage(t, "a.png", 10), types.StrategyHOG)
	if !errors.Is(err, loader.ErrUnreadable) {
		t.Errorf("Expected ErrUnreadable, got %v", err)
	}

	d = &Dlib{rec: &fakeRecognizer{err: errors.New("dlib: out of memory")}}
	_, err = d.LocateFaces(context.Background(), testImage(t, "a.png", 10), types.StrategyHOG)
	if err == nil || errors.Is(err, loader.ErrUnreadable) {
		t.Errorf("Expected a hard failure, got %v", err)
	}
}

// TestDlibModels runs the real recognizer. It needs the dlib model files.
func TestDlibModels(t *testing.T) {
	models := os.Getenv("FACEDB_TEST_MODELS")
	if models == "" {
		t.Skip("FACEDB_TEST_MODELS not set")
	}
	d, err := NewDlib(models)
	if err != nil {
		t.Fatalf("NewDlib failed: %v", err)
	}
	defer d.Close()

	// A flat image has no faces
	src := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for x := 0; x < 64; x++ {
		for y := 0; y < 64; y++ {
			src.Set(x, y, color.RGBA{120, 120, 120, 255})
		}
	}
	path := filepath.Join(t.TempDir(), "flat.png")
	f, _ := os.Create(path)
	png.Encode(f, src)
	f.Close()

	img, err := loader.Load(path)
	if err != nil {
		t.Fatal(err)
	}
	boxes, err := d.LocateFaces(context.Background(), img, types.StrategyHOG)
	if err != nil {
		t.Fatalf("LocateFaces failed: %v", err)
	}
	if len(boxes) != 0 {
		t.Errorf("Expected no faces in a flat image, got %d", len(boxes))
	}
}
