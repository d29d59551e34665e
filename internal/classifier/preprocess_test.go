package classifier

import (
	"image"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
)

func TestToTensorLayoutIsBGRNHWC(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	img.SetNRGBA(0, 0, color.NRGBA{R: 255, G: 0, B: 0, A: 255})
	img.SetNRGBA(1, 0, color.NRGBA{R: 0, G: 255, B: 0, A: 255})
	img.SetNRGBA(0, 1, color.NRGBA{R: 0, G: 0, B: 255, A: 255})
	img.SetNRGBA(1, 1, color.NRGBA{R: 51, G: 102, B: 204, A: 255})

	data := ToTensor(img, 2)
	if len(data) != 2*2*Channels {
		t.Fatalf("expected %d values, got %d", 2*2*Channels, len(data))
	}

	want := []float32{
		0, 0, 1, // red
		0, 1, 0, // green
		1, 0, 0, // blue
		0.8, 0.4, 0.2,
	}
	for i := range want {
		if math.Abs(float64(data[i]-want[i])) > 1e-6 {
			t.Fatalf("value %d: got %v want %v", i, data[i], want[i])
		}
	}
}

func TestToTensorResizesToInputSize(t *testing.T) {
	img := imaging.New(40, 20, color.NRGBA{R: 255, G: 255, B: 255, A: 255})

	data := ToTensor(img, InputSize)
	if len(data) != InputSize*InputSize*Channels {
		t.Fatalf("expected %d values, got %d", InputSize*InputSize*Channels, len(data))
	}
	for i, v := range data {
		if v < 0 || v > 1 {
			t.Fatalf("value %d out of range: %v", i, v)
		}
	}
	if math.Abs(float64(data[len(data)-1]-1)) > 1e-6 {
		t.Fatalf("expected white pixel to normalize to 1, got %v", data[len(data)-1])
	}
}

func TestLoadTensorReadsFromDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "face.png")
	if err := imaging.Save(imaging.New(8, 8, color.NRGBA{A: 255}), path); err != nil {
		t.Fatalf("failed to write image: %v", err)
	}

	data, err := LoadTensor(path, InputSize)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(data) != InputSize*InputSize*Channels {
		t.Fatalf("unexpected tensor length %d", len(data))
	}
}

func TestLoadTensorRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.jpg")
	if err := os.WriteFile(path, []byte("not an image"), 0o600); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	if _, err := LoadTensor(path, InputSize); err == nil {
		t.Fatal("expected error for corrupt image")
	}
}
