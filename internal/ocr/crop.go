package ocr

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	_ "image/jpeg"
	"image/png"
)

func decodeImage(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return img, nil
}

// cropWindow cuts a size×size PNG centered on (x, y), clamped to the image
// bounds the way the verification window has always been taken.
func cropWindow(src image.Image, x, y, size int) ([]byte, error) {
	bounds := src.Bounds()

	left := x - size/2
	if left < bounds.Min.X {
		left = bounds.Min.X
	}
	top := y - size/2
	if top < bounds.Min.Y {
		top = bounds.Min.Y
	}
	right := left + size
	if right > bounds.Max.X {
		right = bounds.Max.X
	}
	bottom := top + size
	if bottom > bounds.Max.Y {
		bottom = bounds.Max.Y
	}
	if right <= left || bottom <= top {
		return nil, fmt.Errorf("crop window (%d,%d) lies outside image bounds", x, y)
	}

	rect := image.Rect(left, top, right, bottom)
	crop := image.NewRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy()))
	draw.Draw(crop, crop.Bounds(), src, rect.Min, draw.Src)

	var buf bytes.Buffer
	if err := png.Encode(&buf, crop); err != nil {
		return nil, fmt.Errorf("failed to encode crop: %w", err)
	}
	return buf.Bytes(), nil
}
