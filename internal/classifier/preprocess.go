package classifier

import (
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

// InputSize is the square edge, in pixels, the model expects.
const InputSize = 256

// Channels per pixel fed to the model.
const Channels = 3

// LoadTensor reads the image at path and returns it as a NHWC float32
// tensor of shape [1, size, size, 3], channels in BGR order, scaled to [0,1].
func LoadTensor(path string, size int) ([]float32, error) {
	img, err := imaging.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open image: %w", err)
	}
	return ToTensor(img, size), nil
}

// ToTensor resizes img to size x size with bilinear filtering and flattens it.
func ToTensor(img image.Image, size int) []float32 {
	resized := imaging.Resize(img, size, size, imaging.Linear)

	data := make([]float32, size*size*Channels)
	for y := 0; y < size; y++ {
		row := resized.Pix[y*resized.Stride : y*resized.Stride+size*4]
		for x := 0; x < size; x++ {
			px := row[x*4 : x*4+4]
			idx := (y*size + x) * Channels
			data[idx] = float32(px[2]) / 255
			data[idx+1] = float32(px[1]) / 255
			data[idx+2] = float32(px[0]) / 255
		}
	}
	return data
}
