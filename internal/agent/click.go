package agent

import (
	"context"
	"log"
	"math/rand"
	"time"
)

// clickStrategy attempts one way of delivering a click at a viewport point.
// ok=false means the strategy could not act on the point; err is reserved
// for driver failures.
type clickStrategy struct {
	name string
	fn   func(ctx context.Context, d Driver, p ViewportPoint) (bool, error)
}

// clickStrategies are tried in order for each point until one succeeds:
// native activation of the hit-tested element, a raw input-layer click, and
// finally a search through the captcha tile candidates for one whose box
// contains the point.
var clickStrategies = []clickStrategy{
	{
		name: "element-activation",
		fn: func(ctx context.Context, d Driver, p ViewportPoint) (bool, error) {
			return d.ActivateAt(ctx, p.X, p.Y)
		},
	},
	{
		name: "input-dispatch",
		fn: func(ctx context.Context, d Driver, p ViewportPoint) (bool, error) {
			if err := d.DispatchClick(ctx, p.X, p.Y); err != nil {
				return false, err
			}
			return true, nil
		},
	},
	{
		name: "tile-search",
		fn: func(ctx context.Context, d Driver, p ViewportPoint) (bool, error) {
			tiles, err := d.TileCandidates(ctx)
			if err != nil {
				return false, err
			}
			for _, tile := range tiles {
				if tile.Contains(p.X, p.Y) {
					if err := d.ActivateTile(ctx, tile); err != nil {
						return false, err
					}
					return true, nil
				}
			}
			return false, nil
		},
	},
}

// ClickDispatcher drives a batch of clicks through the prioritized strategy
// list, tolerating per-point failures.
type ClickDispatcher struct {
	driver Driver

	// Pause bounds between points; randomized to avoid a bot-like
	// click cadence.
	PauseMin time.Duration
	PauseMax time.Duration
}

// NewClickDispatcher creates a dispatcher with the default inter-click pause.
func NewClickDispatcher(driver Driver) *ClickDispatcher {
	return &ClickDispatcher{
		driver:   driver,
		PauseMin: 300 * time.Millisecond,
		PauseMax: 1000 * time.Millisecond,
	}
}

// Click dispatches the batch and returns how many points were acted on.
// A point that exhausts every strategy is logged as missed and the batch
// continues; only an invalid session aborts the whole batch.
func (cd *ClickDispatcher) Click(ctx context.Context, points []ViewportPoint) (int, error) {
	clicked := 0
	for i, p := range points {
		ok, err := cd.clickOne(ctx, p)
		if err != nil {
			return clicked, err
		}
		if ok {
			clicked++
		} else {
			log.Printf("[Click] Missed point %d/%d at (%.0f,%.0f): all strategies exhausted",
				i+1, len(points), p.X, p.Y)
		}

		if i < len(points)-1 {
			if err := cd.pause(ctx); err != nil {
				return clicked, err
			}
		}
	}
	return clicked, nil
}

// clickOne tries each strategy at most once for the point.
func (cd *ClickDispatcher) clickOne(ctx context.Context, p ViewportPoint) (bool, error) {
	for _, strategy := range clickStrategies {
		ok, err := strategy.fn(ctx, cd.driver, p)
		if err != nil {
			if IsInvalidSession(err) {
				return false, err
			}
			log.Printf("[Click] Strategy %s failed at (%.0f,%.0f): %v", strategy.name, p.X, p.Y, err)
			continue
		}
		if ok {
			log.Printf("[Click] Clicked (%.0f,%.0f) via %s", p.X, p.Y, strategy.name)
			return true, nil
		}
	}
	return false, nil
}

func (cd *ClickDispatcher) pause(ctx context.Context) error {
	pause := cd.PauseMin
	if cd.PauseMax > cd.PauseMin {
		pause += time.Duration(rand.Int63n(int64(cd.PauseMax - cd.PauseMin)))
	}
	select {
	case <-time.After(pause):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
