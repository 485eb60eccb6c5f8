package twocaptcha

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/clicksolve/captcha-agent/internal/wire"
)

const (
	defaultBaseURL = "https://2captcha.com"

	defaultPollInterval      = 5 * time.Second
	defaultExtraPollInterval = 3 * time.Second
	defaultExtraPolls        = 4

	// Plausible number of targets in a click-the-digits captcha. Answers
	// outside this band are treated as premature or partial.
	defaultMinPoints = 3
	defaultMaxPoints = 6
)

// Config tunes the client. The zero value of every field falls back to a
// sensible default except APIKey, which is required.
type Config struct {
	APIKey  string
	BaseURL string

	PollInterval      time.Duration
	ExtraPolls        int
	ExtraPollInterval time.Duration

	MinPoints int
	MaxPoints int

	HTTPClient *http.Client
}

// Client talks the two-phase submit/poll coordinate-captcha protocol.
type Client struct {
	cfg Config
}

// Job identifies one outstanding submission. A job id is owned by exactly
// one poll cycle; it is never shared or multiplexed.
type Job struct {
	ID          string
	SubmittedAt time.Time
	Deadline    time.Time
}

// NewClient builds a client, filling unset Config fields with defaults.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.ExtraPolls <= 0 {
		cfg.ExtraPolls = defaultExtraPolls
	}
	if cfg.ExtraPollInterval <= 0 {
		cfg.ExtraPollInterval = defaultExtraPollInterval
	}
	if cfg.MinPoints <= 0 {
		cfg.MinPoints = defaultMinPoints
	}
	if cfg.MaxPoints <= 0 {
		cfg.MaxPoints = defaultMaxPoints
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{cfg: cfg}
}

// apiResponse is the envelope both endpoints use with json=1.
type apiResponse struct {
	Status  int             `json:"status"`
	Request json.RawMessage `json:"request"`
}

// Submit sends the image and instruction to the service and returns the
// assigned job id. A non-OK status at submission time is a SubmissionError.
func (c *Client) Submit(ctx context.Context, imageBytes []byte, instruction string) (string, error) {
	form := url.Values{
		"key":                {c.cfg.APIKey},
		"method":             {"base64"},
		"body":               {base64.StdEncoding.EncodeToString(imageBytes)},
		"json":               {"1"},
		"coordinatescaptcha": {"1"},
	}
	if instruction != "" {
		form.Set("textinstructions", instruction)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.BaseURL+"/in.php", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to build submit request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.do(req)
	if err != nil {
		return "", fmt.Errorf("captcha submission failed: %w", err)
	}

	if resp.Status != 1 {
		return "", &SubmissionError{Code: requestAsString(resp.Request)}
	}

	jobID := requestAsString(resp.Request)
	log.Printf("[2Captcha] Submitted captcha, job id %s", jobID)
	return jobID, nil
}

// PollOnce asks the service for the answer to jobID exactly once. It returns
// the raw payload when ready, ErrNotReady while the job is pending, or a
// ServiceError for a reported error code.
func (c *Client) PollOnce(ctx context.Context, jobID string) (json.RawMessage, error) {
	query := url.Values{
		"key":    {c.cfg.APIKey},
		"action": {"get"},
		"id":     {jobID},
		"json":   {"1"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.cfg.BaseURL+"/res.php?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build poll request: %w", err)
	}

	resp, err := c.do(req)
	if err != nil {
		return nil, fmt.Errorf("captcha poll failed: %w", err)
	}

	if resp.Status == 1 {
		return resp.Request, nil
	}
	if requestAsString(resp.Request) == "CAPCHA_NOT_READY" {
		return nil, ErrNotReady
	}
	return nil, &ServiceError{Code: requestAsString(resp.Request)}
}

// Solve submits the image and polls until an answer with a plausible point
// count arrives, the wait budget elapses, or the service reports an error.
//
// When a ready answer decodes to a count outside [MinPoints, MaxPoints] the
// same job id is re-polled up to ExtraPolls more times; the service is known
// to publish partial answers under an id it later completes. A new job is
// never submitted from inside Solve.
func (c *Client) Solve(ctx context.Context, imageBytes []byte, instruction string, maxWait time.Duration) ([]wire.Point, error) {
	jobID, err := c.Submit(ctx, imageBytes, instruction)
	if err != nil {
		return nil, err
	}

	job := Job{
		ID:          jobID,
		SubmittedAt: time.Now(),
		Deadline:    time.Now().Add(maxWait),
	}

	raw, err := c.waitForAnswer(ctx, job)
	if err != nil {
		return nil, err
	}

	width, height := imageDimensions(imageBytes)
	extraLeft := c.cfg.ExtraPolls
	for {
		points := wire.FilterBounds(wire.Decode(raw), width, height)
		if len(points) >= c.cfg.MinPoints && len(points) <= c.cfg.MaxPoints {
			log.Printf("[2Captcha] Job %s answered with %d points", job.ID, len(points))
			return points, nil
		}

		extraLeft--
		if extraLeft < 0 {
			log.Printf("[2Captcha] Giving up on job %s: %d points is outside [%d,%d]",
				job.ID, len(points), c.cfg.MinPoints, c.cfg.MaxPoints)
			return nil, ErrUnexpectedCount
		}

		log.Printf("[2Captcha] Job %s returned %d points, re-polling the same id", job.ID, len(points))
		if err := sleepCtx(ctx, c.cfg.ExtraPollInterval); err != nil {
			return nil, err
		}

		raw, err = c.PollOnce(ctx, job.ID)
		if err != nil {
			if err == ErrNotReady {
				// The partial answer went back to pending; count the
				// re-poll and try again.
				continue
			}
			return nil, err
		}
	}
}

// waitForAnswer runs the bounded poll loop for a freshly submitted job.
func (c *Client) waitForAnswer(ctx context.Context, job Job) (json.RawMessage, error) {
	for {
		if time.Now().After(job.Deadline) {
			return nil, ErrTimeout
		}

		raw, err := c.PollOnce(ctx, job.ID)
		if err == nil {
			return raw, nil
		}
		if err != ErrNotReady {
			return nil, err
		}

		remaining := time.Until(job.Deadline)
		if remaining <= 0 {
			return nil, ErrTimeout
		}
		interval := c.cfg.PollInterval
		if interval > remaining {
			interval = remaining
		}
		if err := sleepCtx(ctx, interval); err != nil {
			return nil, err
		}
	}
}

func (c *Client) do(req *http.Request) (*apiResponse, error) {
	httpResp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d from %s", httpResp.StatusCode, req.URL.Path)
	}

	var resp apiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse service response: %w", err)
	}
	return &resp, nil
}

// requestAsString extracts the "request" field when it carries a plain
// string (job id, error code, or the legacy delimited answer).
func requestAsString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

// imageDimensions reads just the header of the submitted image. Zero values
// mean the bounds filter is skipped.
func imageDimensions(imageBytes []byte) (int, int) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(imageBytes))
	if err != nil {
		log.Printf("[2Captcha] Could not read image dimensions, skipping answer bounds filter: %v", err)
		return 0, 0
	}
	return cfg.Width, cfg.Height
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
