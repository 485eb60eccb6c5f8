package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/clicksolve/captcha-agent/internal/wire"
)

func TestToViewportIdentity(t *testing.T) {
	cc := CaptureContext{DevicePixelRatio: 1}
	vp := ToViewport(wire.Point{X: 150, Y: 240}, cc)
	assert.Equal(t, ViewportPoint{X: 150, Y: 240}, vp)
}

func TestToViewportCropAndRatio(t *testing.T) {
	cc := CaptureContext{
		CropOffsetX:      100,
		CropOffsetY:      200,
		DevicePixelRatio: 2,
		ScrollY:          50,
	}
	vp := ToViewport(wire.Point{X: 60, Y: 80}, cc)
	assert.InDelta(t, 80.0, vp.X, 1e-9)  // (60+100)/2
	assert.InDelta(t, 90.0, vp.Y, 1e-9)  // (80+200)/2 - 50
}

func TestToViewportZeroRatioTreatedAsOne(t *testing.T) {
	vp := ToViewport(wire.Point{X: 10, Y: 20}, CaptureContext{})
	assert.Equal(t, ViewportPoint{X: 10, Y: 20}, vp)
}

// Doubling the scroll offset must shift Y by exactly the scroll delta,
// independent of the pixel ratio.
func TestToViewportScrollLinearity(t *testing.T) {
	for _, ratio := range []float64{1, 1.5, 2, 3} {
		base := CaptureContext{DevicePixelRatio: ratio, ScrollY: 120}
		doubled := base
		doubled.ScrollY = 240

		p := wire.Point{X: 300, Y: 450}
		y1 := ToViewport(p, base).Y
		y2 := ToViewport(p, doubled).Y
		assert.InDelta(t, 120.0, y1-y2, 1e-9, "ratio %v", ratio)
	}
}

func TestMapToViewportClampsToViewport(t *testing.T) {
	cc := CaptureContext{DevicePixelRatio: 1}
	metrics := ViewportMetrics{Width: 800, Height: 600}

	points := []wire.Point{
		{X: 400, Y: 300},
		{X: 5000, Y: 300},
		{X: 400, Y: 9000},
	}
	mapped := MapToViewport(points, cc, metrics)

	assert.Len(t, mapped, 3)
	assert.Equal(t, ViewportPoint{X: 400, Y: 300}, mapped[0])
	assert.Equal(t, ViewportPoint{X: 799, Y: 300}, mapped[1])
	assert.Equal(t, ViewportPoint{X: 400, Y: 599}, mapped[2])
}

func TestMapToViewportClampsNegativeAfterScroll(t *testing.T) {
	// A large scroll since capture can push a point above the viewport.
	cc := CaptureContext{DevicePixelRatio: 1, ScrollY: 500}
	metrics := ViewportMetrics{Width: 800, Height: 600}

	mapped := MapToViewport([]wire.Point{{X: 100, Y: 100}}, cc, metrics)
	assert.Equal(t, ViewportPoint{X: 100, Y: 0}, mapped[0])
}
