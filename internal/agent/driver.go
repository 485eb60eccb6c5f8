package agent

import (
	"context"
	"time"
)

// Capture is one screenshot taken for solving, together with the origin of
// its pixel space relative to the page.
type Capture struct {
	// Data contains the raw PNG image bytes
	Data []byte
	// Width and Height are the bitmap dimensions in pixels
	Width  int
	Height int
	// CropOffsetX/Y locate the bitmap's origin in page pixel space.
	// (0,0) for a full-page capture.
	CropOffsetX int
	CropOffsetY int
	// FullPage is true when the captcha element could not be captured on
	// its own and the whole viewport was used instead
	FullPage bool
	// TakenAt records when the capture happened
	TakenAt time.Time
}

// ViewportMetrics is the live geometry of the page, read capture-adjacent or
// click-adjacent. The page may scroll between the two, which is exactly why
// clicks re-read these instead of trusting capture-time values.
type ViewportMetrics struct {
	DevicePixelRatio float64
	ScrollY          float64
	Width            int
	Height           int
}

// Tile is a plausibly-clickable captcha element with its viewport-space
// bounding box.
type Tile struct {
	Selector string  `json:"selector"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Width    float64 `json:"width"`
	Height   float64 `json:"height"`
}

// Contains reports whether the viewport point lies inside the tile.
func (t Tile) Contains(x, y float64) bool {
	return x >= t.X && x <= t.X+t.Width && y >= t.Y && y <= t.Y+t.Height
}

// PageState is a snapshot of the page used for captcha detection, rate-limit
// detection and solve confirmation.
type PageState struct {
	URL            string
	Title          string
	BodyText       string
	CaptchaPresent bool
}

// Driver is the browser automation collaborator. Implementations must return
// ErrInvalidSession (via errors.Is) when the underlying session is gone,
// since that is the one condition the pipeline never retries.
type Driver interface {
	// CaptureCaptcha screenshots the captcha element when it can be
	// located, recording its crop offset, and falls back to the full
	// viewport otherwise.
	CaptureCaptcha(ctx context.Context) (*Capture, error)

	// Metrics reads the current device pixel ratio and scroll offset.
	Metrics(ctx context.Context) (ViewportMetrics, error)

	// ActivateAt hit-tests the topmost element at the viewport coordinate
	// and invokes its native activation. Returns false when no element is
	// at the point.
	ActivateAt(ctx context.Context, x, y float64) (bool, error)

	// DispatchClick synthesizes a raw pointer press/release at the
	// viewport coordinate through the input layer.
	DispatchClick(ctx context.Context, x, y float64) error

	// TileCandidates lists the clickable captcha tiles currently on the
	// page with their bounding boxes.
	TileCandidates(ctx context.Context) ([]Tile, error)

	// ActivateTile clicks a specific tile found by TileCandidates.
	ActivateTile(ctx context.Context, tile Tile) error

	// PageState snapshots URL, title, body text and captcha markers.
	PageState(ctx context.Context) (*PageState, error)

	// ClickVerifyControl clicks the verify/submit control that finalizes
	// the captcha form, when one is present.
	ClickVerifyControl(ctx context.Context) (bool, error)

	// Reload refreshes the page. Used by the rate-limit backoff loop.
	Reload(ctx context.Context) error
}
