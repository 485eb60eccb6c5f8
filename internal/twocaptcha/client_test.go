package twocaptcha

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clicksolve/captcha-agent/internal/wire"
)

// fakeService scripts the submit endpoint and a sequence of poll responses.
type fakeService struct {
	mu            sync.Mutex
	submitBody    string
	pollResponses []string
	pollCount     int
	submitCount   int
}

func (f *fakeService) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/in.php", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.submitCount++
		fmt.Fprint(w, f.submitBody)
	})
	mux.HandleFunc("/res.php", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		i := f.pollCount
		if i >= len(f.pollResponses) {
			i = len(f.pollResponses) - 1
		}
		f.pollCount++
		fmt.Fprint(w, f.pollResponses[i])
	})
	return mux
}

func newTestClient(t *testing.T, f *fakeService) *Client {
	t.Helper()
	srv := httptest.NewServer(f.handler())
	t.Cleanup(srv.Close)
	return NewClient(Config{
		APIKey:            "test-key",
		BaseURL:           srv.URL,
		PollInterval:      5 * time.Millisecond,
		ExtraPollInterval: 5 * time.Millisecond,
	})
}

func TestSubmitReturnsJobID(t *testing.T) {
	f := &fakeService{submitBody: `{"status":1,"request":"12345"}`}
	c := newTestClient(t, f)

	id, err := c.Submit(context.Background(), []byte("img"), "click all 7s")
	require.NoError(t, err)
	assert.Equal(t, "12345", id)
}

func TestSubmitRejected(t *testing.T) {
	f := &fakeService{submitBody: `{"status":0,"request":"ERROR_ZERO_BALANCE"}`}
	c := newTestClient(t, f)

	_, err := c.Submit(context.Background(), []byte("img"), "")
	var subErr *SubmissionError
	require.ErrorAs(t, err, &subErr)
	assert.Equal(t, "ERROR_ZERO_BALANCE", subErr.Code)
}

func TestPollOnceStates(t *testing.T) {
	f := &fakeService{pollResponses: []string{
		`{"status":0,"request":"CAPCHA_NOT_READY"}`,
		`{"status":0,"request":"ERROR_CAPTCHA_UNSOLVABLE"}`,
		`{"status":1,"request":"10,20|30,40"}`,
	}}
	c := newTestClient(t, f)

	_, err := c.PollOnce(context.Background(), "1")
	assert.ErrorIs(t, err, ErrNotReady)

	_, err = c.PollOnce(context.Background(), "1")
	var svcErr *ServiceError
	require.ErrorAs(t, err, &svcErr)
	assert.Equal(t, "ERROR_CAPTCHA_UNSOLVABLE", svcErr.Code)
	assert.False(t, svcErr.RateLimited())

	raw, err := c.PollOnce(context.Background(), "1")
	require.NoError(t, err)
	assert.Equal(t, []wire.Point{{X: 10, Y: 20}, {X: 30, Y: 40}}, wire.Decode(raw))
}

func TestSolveFirstPollAnswer(t *testing.T) {
	f := &fakeService{
		submitBody:    `{"status":1,"request":"77"}`,
		pollResponses: []string{`{"status":1,"request":"100,100|200,200|300,300"}`},
	}
	c := newTestClient(t, f)

	points, err := c.Solve(context.Background(), []byte("img"), "", time.Second)
	require.NoError(t, err)
	assert.Equal(t, []wire.Point{{X: 100, Y: 100}, {X: 200, Y: 200}, {X: 300, Y: 300}}, points)
	assert.Equal(t, 1, f.submitCount)
}

func TestSolveCountGateRepollsSameJob(t *testing.T) {
	// Counts 1, 2, 7, 4: the gate must keep polling until it sees a count
	// in [3,6] and must never submit a new job.
	f := &fakeService{
		submitBody: `{"status":1,"request":"88"}`,
		pollResponses: []string{
			`{"status":1,"request":"1,1"}`,
			`{"status":1,"request":"1,1|2,2"}`,
			`{"status":1,"request":"1,1|2,2|3,3|4,4|5,5|6,6|7,7"}`,
			`{"status":1,"request":"1,1|2,2|3,3|4,4"}`,
		},
	}
	c := newTestClient(t, f)

	points, err := c.Solve(context.Background(), []byte("img"), "", time.Second)
	require.NoError(t, err)
	assert.Len(t, points, 4)
	assert.Equal(t, 4, f.pollCount)
	assert.Equal(t, 1, f.submitCount)
}

func TestSolveCountGateExhausted(t *testing.T) {
	f := &fakeService{
		submitBody:    `{"status":1,"request":"99"}`,
		pollResponses: []string{`{"status":1,"request":"1,1"}`},
	}
	c := newTestClient(t, f)

	_, err := c.Solve(context.Background(), []byte("img"), "", time.Second)
	assert.ErrorIs(t, err, ErrUnexpectedCount)
	// Initial poll plus the extra-poll budget.
	assert.Equal(t, 1+defaultExtraPolls, f.pollCount)
	assert.Equal(t, 1, f.submitCount)
}

func TestSolveTimeout(t *testing.T) {
	f := &fakeService{
		submitBody:    `{"status":1,"request":"11"}`,
		pollResponses: []string{`{"status":0,"request":"CAPCHA_NOT_READY"}`},
	}
	c := newTestClient(t, f)

	_, err := c.Solve(context.Background(), []byte("img"), "", 30*time.Millisecond)
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestSolveSubmissionRejectedSkipsPolling(t *testing.T) {
	f := &fakeService{
		submitBody:    `{"status":0,"request":"ERROR_TOO_BIG_CAPTCHA_FILESIZE"}`,
		pollResponses: []string{`{"status":1,"request":"1,1|2,2|3,3"}`},
	}
	c := newTestClient(t, f)

	_, err := c.Solve(context.Background(), []byte("img"), "", time.Second)
	var subErr *SubmissionError
	require.ErrorAs(t, err, &subErr)
	assert.Equal(t, 0, f.pollCount)
}

func TestSolveContextCancellation(t *testing.T) {
	f := &fakeService{
		submitBody:    `{"status":1,"request":"22"}`,
		pollResponses: []string{`{"status":0,"request":"CAPCHA_NOT_READY"}`},
	}
	c := newTestClient(t, f)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := c.Solve(ctx, []byte("img"), "", time.Minute)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestImageDimensions(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 40, 30))))

	w, h := imageDimensions(buf.Bytes())
	assert.Equal(t, 40, w)
	assert.Equal(t, 30, h)

	// Unreadable headers disable the bounds filter rather than failing.
	w, h = imageDimensions([]byte("img"))
	assert.Equal(t, 0, w)
	assert.Equal(t, 0, h)
}
