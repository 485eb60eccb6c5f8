package agent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimitedMatchesIndicators(t *testing.T) {
	tests := []struct {
		name  string
		state *PageState
		want  bool
	}{
		{"clean page", &PageState{Title: "Login", BodyText: "Welcome back"}, false},
		{"title indicator", &PageState{Title: "429 Too Many Requests"}, true},
		{"body indicator", &PageState{BodyText: "You have been rate limited, try again later."}, true},
		{"case insensitive", &PageState{BodyText: "Unusual Traffic Detected"}, true},
		{"throttled", &PageState{BodyText: "your requests are being throttled"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RateLimited(tt.state))
		})
	}
}

func TestWaitOutRateLimitClears(t *testing.T) {
	driver := newFakeDriver()
	driver.states = []*PageState{
		{Title: "429 Too Many Requests"},
		{Title: "Login", CaptchaPresent: true},
	}
	policy := RateLimitPolicy{BaseWait: time.Millisecond, MaxRetries: 3}

	err := WaitOutRateLimit(context.Background(), driver, policy)
	require.NoError(t, err)
	assert.Equal(t, 2, driver.reloadCalls)
}

func TestWaitOutRateLimitPersists(t *testing.T) {
	driver := newFakeDriver()
	driver.states = []*PageState{{Title: "429 Too Many Requests"}}
	policy := RateLimitPolicy{BaseWait: time.Millisecond, MaxRetries: 2}

	err := WaitOutRateLimit(context.Background(), driver, policy)
	require.Error(t, err)
	assert.Equal(t, 2, driver.reloadCalls)
}

func TestWaitOutRateLimitInvalidSessionOnReload(t *testing.T) {
	driver := newFakeDriver()
	driver.reloadErr = NewSessionError("reload", errors.New("target crashed"))
	policy := RateLimitPolicy{BaseWait: time.Millisecond, MaxRetries: 3}

	err := WaitOutRateLimit(context.Background(), driver, policy)
	require.Error(t, err)
	assert.True(t, IsInvalidSession(err))
}

func TestWaitOutRateLimitRespectsContext(t *testing.T) {
	driver := newFakeDriver()
	policy := RateLimitPolicy{BaseWait: time.Hour, MaxRetries: 3}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := WaitOutRateLimit(ctx, driver, policy)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
