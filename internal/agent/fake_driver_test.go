package agent

import (
	"context"
	"time"
)

// fakeDriver scripts driver behavior for pipeline tests without a browser.
type fakeDriver struct {
	capture    *Capture
	captureErr error

	metrics    ViewportMetrics
	metricsErr error

	activateOK  bool
	activateErr error
	dispatchErr error

	tiles    []Tile
	tilesErr error

	// states is consumed one per PageState call; the last entry repeats.
	states   []*PageState
	stateErr error
	stateIdx int

	verifyErr error
	reloadErr error

	captureCalls  int
	activateCalls int
	dispatchCalls int
	tileCalls     int
	verifyCalls   int
	reloadCalls   int

	clicked []ViewportPoint
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{
		capture: &Capture{
			Data:    []byte("png-bytes"),
			Width:   1280,
			Height:  720,
			TakenAt: time.Now(),
		},
		metrics: ViewportMetrics{
			DevicePixelRatio: 1,
			Width:            1280,
			Height:           720,
		},
		activateOK: true,
		states: []*PageState{
			{URL: "https://example.com/login", CaptchaPresent: true},
			{URL: "https://example.com/home", CaptchaPresent: false},
		},
	}
}

func (d *fakeDriver) CaptureCaptcha(ctx context.Context) (*Capture, error) {
	d.captureCalls++
	if d.captureErr != nil {
		return nil, d.captureErr
	}
	return d.capture, nil
}

func (d *fakeDriver) Metrics(ctx context.Context) (ViewportMetrics, error) {
	if d.metricsErr != nil {
		return ViewportMetrics{}, d.metricsErr
	}
	return d.metrics, nil
}

func (d *fakeDriver) ActivateAt(ctx context.Context, x, y float64) (bool, error) {
	d.activateCalls++
	if d.activateErr != nil {
		return false, d.activateErr
	}
	if d.activateOK {
		d.clicked = append(d.clicked, ViewportPoint{X: x, Y: y})
	}
	return d.activateOK, nil
}

func (d *fakeDriver) DispatchClick(ctx context.Context, x, y float64) error {
	d.dispatchCalls++
	if d.dispatchErr != nil {
		return d.dispatchErr
	}
	d.clicked = append(d.clicked, ViewportPoint{X: x, Y: y})
	return nil
}

func (d *fakeDriver) TileCandidates(ctx context.Context) ([]Tile, error) {
	d.tileCalls++
	if d.tilesErr != nil {
		return nil, d.tilesErr
	}
	return d.tiles, nil
}

func (d *fakeDriver) ActivateTile(ctx context.Context, tile Tile) error {
	d.clicked = append(d.clicked, ViewportPoint{X: tile.X + tile.Width/2, Y: tile.Y + tile.Height/2})
	return nil
}

func (d *fakeDriver) PageState(ctx context.Context) (*PageState, error) {
	if d.stateErr != nil {
		return nil, d.stateErr
	}
	i := d.stateIdx
	if i >= len(d.states) {
		i = len(d.states) - 1
	}
	d.stateIdx++
	return d.states[i], nil
}

func (d *fakeDriver) ClickVerifyControl(ctx context.Context) (bool, error) {
	d.verifyCalls++
	if d.verifyErr != nil {
		return false, d.verifyErr
	}
	return true, nil
}

func (d *fakeDriver) Reload(ctx context.Context) error {
	d.reloadCalls++
	return d.reloadErr
}
