package reporter

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"

	"github.com/fogleman/gg"

	"github.com/clicksolve/captcha-agent/internal/wire"
)

const (
	markerRadius    = 12
	markerLineWidth = 3
)

// Annotate draws the solved points onto the captcha screenshot and returns
// the result as a PNG. Points are in solver space, i.e. the pixel space of
// the submitted bitmap, so no coordinate translation is needed here.
func Annotate(screenshot []byte, points []wire.Point) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(screenshot))
	if err != nil {
		return nil, fmt.Errorf("failed to decode screenshot: %w", err)
	}

	dc := gg.NewContextForImage(img)

	for i, p := range points {
		x := float64(p.X)
		y := float64(p.Y)

		dc.SetRGBA(1, 0, 0, 0.9)
		dc.SetLineWidth(markerLineWidth)
		dc.DrawCircle(x, y, markerRadius)
		dc.Stroke()

		// Crosshair through the exact click coordinate.
		dc.DrawLine(x-markerRadius/2, y, x+markerRadius/2, y)
		dc.DrawLine(x, y-markerRadius/2, x, y+markerRadius/2)
		dc.Stroke()

		dc.DrawStringAnchored(fmt.Sprintf("%d", i+1), x+markerRadius+4, y, 0, 0.5)
	}

	var buf bytes.Buffer
	if err := dc.EncodePNG(&buf); err != nil {
		return nil, fmt.Errorf("failed to encode annotated image: %w", err)
	}
	return buf.Bytes(), nil
}
