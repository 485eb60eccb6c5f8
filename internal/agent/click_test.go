package agent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastDispatcher(d Driver) *ClickDispatcher {
	cd := NewClickDispatcher(d)
	cd.PauseMin = 0
	cd.PauseMax = time.Millisecond
	return cd
}

func TestClickUsesElementActivationFirst(t *testing.T) {
	driver := newFakeDriver()
	cd := fastDispatcher(driver)

	clicked, err := cd.Click(context.Background(), []ViewportPoint{{X: 10, Y: 20}, {X: 30, Y: 40}})
	require.NoError(t, err)
	assert.Equal(t, 2, clicked)
	assert.Equal(t, 2, driver.activateCalls)
	assert.Equal(t, 0, driver.dispatchCalls)
	assert.Equal(t, []ViewportPoint{{X: 10, Y: 20}, {X: 30, Y: 40}}, driver.clicked)
}

func TestClickFallsBackToInputDispatch(t *testing.T) {
	driver := newFakeDriver()
	driver.activateOK = false
	cd := fastDispatcher(driver)

	clicked, err := cd.Click(context.Background(), []ViewportPoint{{X: 10, Y: 20}})
	require.NoError(t, err)
	assert.Equal(t, 1, clicked)
	assert.Equal(t, 1, driver.activateCalls)
	assert.Equal(t, 1, driver.dispatchCalls)
}

func TestClickFallsBackToTileSearch(t *testing.T) {
	driver := newFakeDriver()
	driver.activateOK = false
	driver.dispatchErr = NewBrowserError("dispatch click", errors.New("input blocked"))
	driver.tiles = []Tile{
		{Selector: ".tile-0", X: 0, Y: 0, Width: 50, Height: 50},
		{Selector: ".tile-1", X: 50, Y: 0, Width: 50, Height: 50},
	}
	cd := fastDispatcher(driver)

	clicked, err := cd.Click(context.Background(), []ViewportPoint{{X: 60, Y: 25}})
	require.NoError(t, err)
	assert.Equal(t, 1, clicked)
	assert.Equal(t, 1, driver.tileCalls)
	// Tile activation clicks the tile center, not the original point.
	assert.Equal(t, []ViewportPoint{{X: 75, Y: 25}}, driver.clicked)
}

func TestClickMissedPointContinuesBatch(t *testing.T) {
	driver := newFakeDriver()
	driver.activateOK = false
	driver.dispatchErr = NewBrowserError("dispatch click", errors.New("input blocked"))
	driver.tiles = []Tile{{Selector: ".tile-0", X: 0, Y: 0, Width: 50, Height: 50}}
	cd := fastDispatcher(driver)

	// First point is outside every tile; second hits tile-0.
	clicked, err := cd.Click(context.Background(), []ViewportPoint{{X: 500, Y: 500}, {X: 25, Y: 25}})
	require.NoError(t, err)
	assert.Equal(t, 1, clicked)
}

func TestClickInvalidSessionAbortsBatch(t *testing.T) {
	driver := newFakeDriver()
	driver.activateErr = NewSessionError("activate", errors.New("target closed"))
	cd := fastDispatcher(driver)

	clicked, err := cd.Click(context.Background(), []ViewportPoint{{X: 1, Y: 1}, {X: 2, Y: 2}, {X: 3, Y: 3}})
	require.Error(t, err)
	assert.True(t, IsInvalidSession(err))
	assert.Equal(t, 0, clicked)
	assert.Equal(t, 1, driver.activateCalls, "batch should stop at the first dead-session error")
}

func TestClickEmptyBatch(t *testing.T) {
	cd := fastDispatcher(newFakeDriver())
	clicked, err := cd.Click(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, clicked)
}
