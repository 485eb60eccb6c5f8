package agent

import (
	"github.com/clicksolve/captcha-agent/internal/wire"
)

// CaptureContext carries everything needed to translate solver-space
// coordinates into live viewport coordinates: where the submitted bitmap's
// origin sat on the page, and the pixel ratio and scroll offset read
// click-adjacent. The page may have scrolled since the screenshot was taken,
// so a context is built at click time, not reused from capture time.
type CaptureContext struct {
	CropOffsetX      int
	CropOffsetY      int
	DevicePixelRatio float64
	ScrollY          float64
}

// NewCaptureContext combines a capture's crop offset with freshly read
// viewport metrics.
func NewCaptureContext(capture *Capture, metrics ViewportMetrics) CaptureContext {
	return CaptureContext{
		CropOffsetX:      capture.CropOffsetX,
		CropOffsetY:      capture.CropOffsetY,
		DevicePixelRatio: metrics.DevicePixelRatio,
		ScrollY:          metrics.ScrollY,
	}
}

// ViewportPoint is a coordinate in browser-viewport space, ready to click.
type ViewportPoint struct {
	X float64
	Y float64
}

// ToViewport maps a solver-space point into viewport space:
//
//	viewportX = (solverX + cropOffsetX) / devicePixelRatio
//	viewportY = (solverY + cropOffsetY) / devicePixelRatio - scrollY
//
// The solving service answers in the pixel space of the exact bitmap it was
// sent; the crop offset restores page position and the ratio and scroll
// corrections account for rendering scale and any scrolling since capture.
func ToViewport(p wire.Point, cc CaptureContext) ViewportPoint {
	ratio := cc.DevicePixelRatio
	if ratio <= 0 {
		ratio = 1
	}
	return ViewportPoint{
		X: (float64(p.X) + float64(cc.CropOffsetX)) / ratio,
		Y: (float64(p.Y)+float64(cc.CropOffsetY))/ratio - cc.ScrollY,
	}
}

// MapToViewport maps a whole batch, clamping each result against the live
// viewport. Clamping happens here in viewport space; solver-space bounds
// violations were already dropped at decode time.
func MapToViewport(points []wire.Point, cc CaptureContext, metrics ViewportMetrics) []ViewportPoint {
	mapped := make([]ViewportPoint, 0, len(points))
	for _, p := range points {
		mapped = append(mapped, ToViewport(p, cc).clampTo(metrics.Width, metrics.Height))
	}
	return mapped
}

func (vp ViewportPoint) clampTo(width, height int) ViewportPoint {
	if width > 0 {
		if vp.X < 0 {
			vp.X = 0
		}
		if vp.X > float64(width-1) {
			vp.X = float64(width - 1)
		}
	}
	if height > 0 {
		if vp.Y < 0 {
			vp.Y = 0
		}
		if vp.Y > float64(height-1) {
			vp.Y = float64(height - 1)
		}
	}
	return vp
}
