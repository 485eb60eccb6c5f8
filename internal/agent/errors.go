package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidSession signals that the browser session underlying all I/O has
// been torn down. It is the one fatal, non-retriable condition in the
// pipeline: any further driver call would also fail, so it propagates
// immediately to the caller for session re-establishment.
var ErrInvalidSession = errors.New("browser session is invalid")

// IsInvalidSession reports whether err carries the invalid-session condition.
func IsInvalidSession(err error) bool {
	return errors.Is(err, ErrInvalidSession)
}

// ErrorCategory represents the type of error
type ErrorCategory string

const (
	// ErrorCategorySession for a torn-down browser session
	ErrorCategorySession ErrorCategory = "session"
	// ErrorCategoryBrowser for other browser/driver errors
	ErrorCategoryBrowser ErrorCategory = "browser"
	// ErrorCategoryNetwork for network/connectivity errors
	ErrorCategoryNetwork ErrorCategory = "network"
	// ErrorCategoryTimeout for timeout errors
	ErrorCategoryTimeout ErrorCategory = "timeout"
	// ErrorCategoryService for solving-service errors
	ErrorCategoryService ErrorCategory = "service"
	// ErrorCategoryUnknown for uncategorized errors
	ErrorCategoryUnknown ErrorCategory = "unknown"
)

// CategorizedError wraps an error with category and retry info
type CategorizedError struct {
	Category  ErrorCategory
	Original  error
	Retryable bool
	Message   string
}

// Error implements the error interface
func (e *CategorizedError) Error() string {
	return fmt.Sprintf("[%s] %s: %v", e.Category, e.Message, e.Original)
}

// Unwrap implements error unwrapping
func (e *CategorizedError) Unwrap() error {
	return e.Original
}

// NewSessionError creates a fatal invalid-session error
func NewSessionError(message string, err error) *CategorizedError {
	return &CategorizedError{
		Category:  ErrorCategorySession,
		Original:  fmt.Errorf("%w: %w", ErrInvalidSession, err),
		Retryable: false,
		Message:   message,
	}
}

// NewBrowserError creates a browser-related error
func NewBrowserError(message string, err error) *CategorizedError {
	return &CategorizedError{
		Category:  ErrorCategoryBrowser,
		Original:  err,
		Retryable: true,
		Message:   message,
	}
}

// NewNetworkError creates a network-related error
func NewNetworkError(message string, err error) *CategorizedError {
	return &CategorizedError{
		Category:  ErrorCategoryNetwork,
		Original:  err,
		Retryable: true,
		Message:   message,
	}
}

// NewTimeoutError creates a timeout error
func NewTimeoutError(message string, err error) *CategorizedError {
	return &CategorizedError{
		Category:  ErrorCategoryTimeout,
		Original:  err,
		Retryable: true,
		Message:   message,
	}
}

// NewServiceError creates a solving-service error
func NewServiceError(message string, err error) *CategorizedError {
	return &CategorizedError{
		Category:  ErrorCategoryService,
		Original:  err,
		Retryable: true,
		Message:   message,
	}
}

// sessionErrorFragments are the driver-level failure messages known to mean
// the session is gone. The typed classification below is preferred; message
// matching is the last resort for errors the CDP layer does not type.
var sessionErrorFragments = []string{
	"invalid session id",
	"session closed",
	"target closed",
	"target crashed",
	"websocket: close",
	"context canceled",
}

// classifyDriverErr converts a raw chromedp/CDP error into the pipeline's
// taxonomy, detecting the invalid-session condition as a typed sentinel so
// callers never have to string-match.
func classifyDriverErr(message string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return NewSessionError(message, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NewTimeoutError(message, err)
	}
	lower := strings.ToLower(err.Error())
	for _, fragment := range sessionErrorFragments {
		if strings.Contains(lower, fragment) {
			return NewSessionError(message, err)
		}
	}
	return NewBrowserError(message, err)
}

// RetryConfig configures retry behavior
type RetryConfig struct {
	MaxAttempts     int
	InitialDelay    time.Duration
	MaxDelay        time.Duration
	BackoffFactor   float64
	RetryableErrors []ErrorCategory
}

// DefaultRetryConfig returns sensible retry defaults
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  1 * time.Second,
		MaxDelay:      30 * time.Second,
		BackoffFactor: 2.0,
		RetryableErrors: []ErrorCategory{
			ErrorCategoryBrowser,
			ErrorCategoryNetwork,
			ErrorCategoryTimeout,
		},
	}
}

// Retry executes a function with exponential backoff retry logic. A
// non-retryable error, in particular the invalid-session condition, aborts
// the loop immediately.
func Retry(ctx context.Context, config RetryConfig, fn func() error) error {
	var lastErr error

	for attempt := 0; attempt < config.MaxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}

		lastErr = err

		if !shouldRetry(err, config) {
			return err
		}

		if attempt < config.MaxAttempts-1 {
			delay := calculateDelay(attempt, config)

			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	return fmt.Errorf("max retry attempts (%d) exceeded: %w", config.MaxAttempts, lastErr)
}

// shouldRetry determines if an error is retryable
func shouldRetry(err error, config RetryConfig) bool {
	if IsInvalidSession(err) {
		return false
	}

	var catErr *CategorizedError
	if !errors.As(err, &catErr) {
		// Unknown errors are not retryable by default
		return false
	}

	if !catErr.Retryable {
		return false
	}

	for _, category := range config.RetryableErrors {
		if catErr.Category == category {
			return true
		}
	}

	return false
}

// calculateDelay calculates retry delay with exponential backoff
func calculateDelay(attempt int, config RetryConfig) time.Duration {
	delay := float64(config.InitialDelay)

	for i := 0; i < attempt; i++ {
		delay *= config.BackoffFactor
	}

	if delay > float64(config.MaxDelay) {
		delay = float64(config.MaxDelay)
	}

	return time.Duration(delay)
}
