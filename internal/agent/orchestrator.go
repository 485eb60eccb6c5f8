package agent

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/clicksolve/captcha-agent/internal/ocr"
	"github.com/clicksolve/captcha-agent/internal/twocaptcha"
	"github.com/clicksolve/captcha-agent/internal/wire"
)

// SolverClient is the remote solving-service boundary. Solve submits the
// image and blocks through the poll loop, up to maxWait.
type SolverClient interface {
	Solve(ctx context.Context, image []byte, instruction string, maxWait time.Duration) ([]wire.Point, error)
}

// Outcome is the terminal state of one solve call.
type Outcome string

const (
	// OutcomeSolved means the captcha markers disappeared after clicking
	OutcomeSolved Outcome = "solved"
	// OutcomeAbandoned means the attempt budget or a give-up condition
	// was reached without solving
	OutcomeAbandoned Outcome = "abandoned"
	// OutcomeFatal means the browser session died; the caller must
	// re-establish it before anything else can work
	OutcomeFatal Outcome = "fatal"
)

// AttemptOutcome classifies how a single pipeline pass ended.
type AttemptOutcome string

const (
	AttemptPending            AttemptOutcome = "pending"
	AttemptSuccess            AttemptOutcome = "success"
	AttemptNoDigits           AttemptOutcome = "no-digits"
	AttemptInsufficientPoints AttemptOutcome = "insufficient-points"
	AttemptTimeout            AttemptOutcome = "timeout"
	AttemptRateLimited        AttemptOutcome = "rate-limited"
	AttemptRejected           AttemptOutcome = "rejected"
	AttemptNotConfirmed       AttemptOutcome = "not-confirmed"
	AttemptError              AttemptOutcome = "error"
	AttemptFatal              AttemptOutcome = "fatal"
)

// PhaseTiming records how long one pipeline phase of an attempt took.
type PhaseTiming struct {
	Phase    string
	Duration time.Duration
}

// Attempt records one full capture→submit→click→confirm pass.
type Attempt struct {
	Number    int
	StartedAt time.Time
	Outcome   AttemptOutcome
	Phases    []PhaseTiming
}

// timePhase starts a phase clock; the returned func stops it and records the
// timing on the attempt.
func (a *Attempt) timePhase(name string) func() {
	start := time.Now()
	return func() {
		a.Phases = append(a.Phases, PhaseTiming{Phase: name, Duration: time.Since(start)})
	}
}

// Result summarizes a solve call for the caller and the reporter.
type Result struct {
	Outcome        Outcome
	Attempts       []Attempt
	Target         string
	PointsReturned int
	PointsClicked  int
	Duration       time.Duration

	// LastCapture and SolvedPoints let the reporter render the annotated
	// debug image without re-running any browser I/O.
	LastCapture  *Capture
	SolvedPoints []wire.Point
}

// Config tunes the orchestrator. Zero values fall back to the policy
// defaults used in production.
type Config struct {
	// MaxAttempts bounds full pipeline passes
	MaxAttempts int
	// MaxWait bounds one submit+poll cycle
	MaxWait time.Duration
	// Target is the digit to verify against; auto-extracted from the
	// page instruction when empty
	Target string
	// AttemptBackoff is the base for the exponential wait between
	// failed attempts
	AttemptBackoff time.Duration
	// ConfirmDelay is the settle time before re-inspecting the page
	ConfirmDelay time.Duration
	// RateLimit bounds the throttling backoff loop
	RateLimit RateLimitPolicy
	// CaptureRetry bounds retries of transient capture failures
	CaptureRetry RetryConfig
	// ClickPauseMin/Max override the dispatcher's inter-click pause
	ClickPauseMin time.Duration
	ClickPauseMax time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.MaxWait <= 0 {
		c.MaxWait = 120 * time.Second
	}
	if c.AttemptBackoff <= 0 {
		c.AttemptBackoff = 2 * time.Second
	}
	if c.ConfirmDelay <= 0 {
		c.ConfirmDelay = 2 * time.Second
	}
	if c.RateLimit.BaseWait <= 0 {
		c.RateLimit = DefaultRateLimitPolicy()
	}
	if c.CaptureRetry.MaxAttempts <= 0 {
		c.CaptureRetry = DefaultRetryConfig()
	}
	return c
}

// Attempt-local conditions that feed the retry decision.
var (
	errNoDigits     = errors.New("no digits visible in captcha image")
	errNoClicks     = errors.New("no points could be clicked")
	errNotConfirmed = errors.New("captcha still present after clicking")
)

// Orchestrator drives the whole pipeline: capture, digit gate, remote
// solve, verification, mapping, clicking and confirmation, with bounded
// retries around everything and an immediate stop on a dead session.
type Orchestrator struct {
	driver     Driver
	client     SolverClient
	gate       *ocr.DigitGate
	dispatcher *ClickDispatcher
	cfg        Config
}

// NewOrchestrator wires the pipeline together. gate may be built over a nil
// engine; every gate check then passes.
func NewOrchestrator(driver Driver, client SolverClient, gate *ocr.DigitGate, cfg Config) *Orchestrator {
	cfg = cfg.withDefaults()
	dispatcher := NewClickDispatcher(driver)
	if cfg.ClickPauseMax > 0 {
		dispatcher.PauseMin = cfg.ClickPauseMin
		dispatcher.PauseMax = cfg.ClickPauseMax
	}
	return &Orchestrator{
		driver:     driver,
		client:     client,
		gate:       gate,
		dispatcher: dispatcher,
		cfg:        cfg,
	}
}

// Solve runs attempts until the captcha is confirmed gone, the budget is
// exhausted, or the session dies. The returned error is non-nil only for
// conditions the caller must act on: an invalid session (re-establish it)
// or a rejected submission (fix the job, e.g. image too large).
func (o *Orchestrator) Solve(ctx context.Context) (*Result, error) {
	res := &Result{Outcome: OutcomeAbandoned, Target: o.cfg.Target}
	start := time.Now()
	defer func() { res.Duration = time.Since(start) }()

	proceed, err := o.checkRateLimit(ctx, res)
	if err != nil {
		return res, err
	}
	if !proceed {
		// Rate limiting persisted through the backoff budget.
		return res, nil
	}

	for attemptNum := 1; attemptNum <= o.cfg.MaxAttempts; attemptNum++ {
		rec := Attempt{Number: attemptNum, StartedAt: time.Now(), Outcome: AttemptPending}
		log.Printf("[Solver] Attempt %d/%d", attemptNum, o.cfg.MaxAttempts)

		err := o.runAttempt(ctx, res, &rec)
		rec.Outcome = classifyAttempt(err)
		res.Attempts = append(res.Attempts, rec)

		switch {
		case err == nil:
			res.Outcome = OutcomeSolved
			return res, nil

		case IsInvalidSession(err):
			res.Outcome = OutcomeFatal
			return res, err

		case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
			res.Outcome = OutcomeFatal
			return res, err

		case isSubmissionRejected(err):
			// Surfaced, never blindly retried.
			return res, err

		case errors.Is(err, errNoDigits):
			log.Printf("[Solver] No digits in captcha image, abandoning")
			return res, nil
		}

		log.Printf("[Solver] Attempt %d failed: %v", attemptNum, err)

		if attemptNum < o.cfg.MaxAttempts {
			backoff := o.cfg.AttemptBackoff * (1 << (attemptNum - 1))
			log.Printf("[Solver] Backing off %v before next attempt", backoff)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				res.Outcome = OutcomeFatal
				return res, ctx.Err()
			}
		}
	}

	log.Printf("[Solver] Attempt budget exhausted")
	return res, nil
}

// runAttempt executes one pass through the state machine, recording phase
// timings on rec. A nil return means the captcha was confirmed solved.
func (o *Orchestrator) runAttempt(ctx context.Context, res *Result, rec *Attempt) error {
	// Capturing
	stop := rec.timePhase("capturing")
	var capture *Capture
	err := Retry(ctx, o.cfg.CaptureRetry, func() error {
		var captureErr error
		capture, captureErr = o.driver.CaptureCaptcha(ctx)
		return captureErr
	})
	stop()
	if err != nil {
		return err
	}
	res.LastCapture = capture

	// Gating: do not pay for a solve the service cannot plausibly answer.
	stop = rec.timePhase("gating")
	if !o.gate.HasDigits(ctx, capture.Data) {
		stop()
		return errNoDigits
	}

	target := o.cfg.Target
	if target == "" {
		target = o.gate.ExtractTarget(ctx, capture.Data)
		if target != "" {
			log.Printf("[Solver] Extracted target value %q from instruction", target)
		}
	}
	res.Target = target
	stop()

	// Submitting / Polling
	stop = rec.timePhase("solving")
	points, err := o.client.Solve(ctx, capture.Data, instructionFor(target), o.cfg.MaxWait)
	stop()
	if err != nil {
		return err
	}
	res.PointsReturned = len(points)

	// Verifying
	if target != "" {
		stop = rec.timePhase("verifying")
		points = o.gate.Verify(ctx, capture.Data, target, points)
		stop()
	}
	res.SolvedPoints = points

	// Mapping: geometry is re-read here, at click time, because the page
	// may have scrolled since the capture.
	metrics, err := o.driver.Metrics(ctx)
	if err != nil {
		return err
	}
	viewportPoints := MapToViewport(points, NewCaptureContext(capture, metrics), metrics)

	// Clicking
	stop = rec.timePhase("clicking")
	clicked, err := o.dispatcher.Click(ctx, viewportPoints)
	stop()
	res.PointsClicked = clicked
	if err != nil {
		return err
	}
	if clicked == 0 {
		return errNoClicks
	}

	if ok, err := o.driver.ClickVerifyControl(ctx); err != nil {
		if IsInvalidSession(err) {
			return err
		}
		log.Printf("[Solver] Verify control click failed: %v", err)
	} else if ok {
		log.Printf("[Solver] Clicked verify control")
	}

	// Confirming
	stop = rec.timePhase("confirming")
	defer stop()
	select {
	case <-time.After(o.cfg.ConfirmDelay):
	case <-ctx.Done():
		return ctx.Err()
	}

	state, err := o.driver.PageState(ctx)
	if err != nil {
		return err
	}
	if state.CaptchaPresent || containsCaptchaRoute(state.URL) {
		return errNotConfirmed
	}
	return nil
}

// checkRateLimit runs the throttling scan at orchestrator entry and, when
// needed, the backoff loop. proceed=false marks a throttle that persisted
// through the backoff budget; the solve is abandoned.
func (o *Orchestrator) checkRateLimit(ctx context.Context, res *Result) (bool, error) {
	state, err := o.driver.PageState(ctx)
	if err != nil {
		if IsInvalidSession(err) {
			res.Outcome = OutcomeFatal
			return false, err
		}
		log.Printf("[Solver] Rate-limit pre-check skipped: %v", err)
		return true, nil
	}
	if !RateLimited(state) {
		return true, nil
	}

	if err := WaitOutRateLimit(ctx, o.driver, o.cfg.RateLimit); err != nil {
		if IsInvalidSession(err) || errors.Is(err, context.Canceled) {
			res.Outcome = OutcomeFatal
			return false, err
		}
		res.Attempts = append(res.Attempts, Attempt{
			Number:    0,
			StartedAt: time.Now(),
			Outcome:   AttemptRateLimited,
		})
		log.Printf("[Solver] Abandoning: %v", err)
		return false, nil
	}
	return true, nil
}

func classifyAttempt(err error) AttemptOutcome {
	switch {
	case err == nil:
		return AttemptSuccess
	case IsInvalidSession(err):
		return AttemptFatal
	case errors.Is(err, errNoDigits):
		return AttemptNoDigits
	case errors.Is(err, twocaptcha.ErrTimeout):
		return AttemptTimeout
	case errors.Is(err, twocaptcha.ErrUnexpectedCount), errors.Is(err, errNoClicks):
		return AttemptInsufficientPoints
	case isSubmissionRejected(err):
		return AttemptRejected
	case isRateLimitedService(err):
		return AttemptRateLimited
	case errors.Is(err, errNotConfirmed):
		return AttemptNotConfirmed
	default:
		return AttemptError
	}
}

func isSubmissionRejected(err error) bool {
	var subErr *twocaptcha.SubmissionError
	return errors.As(err, &subErr)
}

func isRateLimitedService(err error) bool {
	var svcErr *twocaptcha.ServiceError
	return errors.As(err, &svcErr) && svcErr.RateLimited()
}

func instructionFor(target string) string {
	if target == "" {
		return ""
	}
	return fmt.Sprintf("Click on all squares containing the number %s", target)
}

func containsCaptchaRoute(url string) bool {
	return strings.Contains(strings.ToLower(url), "captcha")
}
