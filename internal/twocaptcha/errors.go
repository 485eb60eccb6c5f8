package twocaptcha

import (
	"errors"
	"fmt"
)

// ErrNotReady is returned by PollOnce while the service is still working on
// the job.
var ErrNotReady = errors.New("captcha not ready")

// ErrTimeout is returned by Solve when the caller-supplied wait budget
// elapses before the service produces an answer. It is distinct from a
// service-reported error code.
var ErrTimeout = errors.New("timed out waiting for captcha answer")

// ErrUnexpectedCount is returned by Solve when the answer decoded to a point
// count outside the plausible band and re-polling the same job did not
// produce a usable one.
var ErrUnexpectedCount = errors.New("unexpected coordinate count in captcha answer")

// SubmissionError reports that the service refused the job at submission
// time (malformed body, quota exhausted, bad key). It is surfaced to the
// caller and never retried silently.
type SubmissionError struct {
	Code string
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("captcha submission rejected: %s", e.Code)
}

// ServiceError reports an error code returned while polling an accepted job.
type ServiceError struct {
	Code string
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("captcha service error: %s", e.Code)
}

// RateLimited reports whether the error code indicates service-side
// throttling rather than a broken job.
func (e *ServiceError) RateLimited() bool {
	switch e.Code {
	case "ERROR_NO_SLOT_AVAILABLE", "MAX_USER_TURN":
		return true
	}
	return false
}
