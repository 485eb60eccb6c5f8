package reporter

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clicksolve/captcha-agent/internal/wire"
)

func testScreenshot(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.White)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestAnnotateDrawsMarkers(t *testing.T) {
	src := testScreenshot(t, 400, 300)
	points := []wire.Point{{X: 100, Y: 100}, {X: 300, Y: 200}}

	out, err := Annotate(src, points)
	require.NoError(t, err)

	decoded, _, err := image.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, 400, decoded.Bounds().Dx())
	assert.Equal(t, 300, decoded.Bounds().Dy())

	// The marker stroke must have changed pixels near each point.
	r, g, b, _ := decoded.At(100+markerRadius, 100).RGBA()
	assert.False(t, r == 0xffff && g == 0xffff && b == 0xffff,
		"expected a marker stroke at the first point")
}

func TestAnnotateNoPoints(t *testing.T) {
	src := testScreenshot(t, 100, 100)
	out, err := Annotate(src, nil)
	require.NoError(t, err)

	decoded, _, err := image.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, 100, decoded.Bounds().Dx())
}

func TestAnnotateRejectsGarbage(t *testing.T) {
	_, err := Annotate([]byte("not an image"), []wire.Point{{X: 1, Y: 1}})
	assert.Error(t, err)
}
