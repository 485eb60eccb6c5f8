package ocr

import "context"

// Mode selects how the engine should read an image. The verification path
// runs several modes over the same crop because small crops are noisy.
type Mode string

const (
	// ModeText reads free-form text from the whole image.
	ModeText Mode = "text"
	// ModeSingleChar expects one character, typically a digit.
	ModeSingleChar Mode = "single-char"
	// ModeSingleLine expects a short single line.
	ModeSingleLine Mode = "single-line"
	// ModeDigits restricts recognition to digits only.
	ModeDigits Mode = "digits"
)

// Engine is the text-recognition collaborator. Absence is a valid
// configuration: every caller in this package tolerates a nil Engine and a
// failing one the same way, by assuming a pass.
type Engine interface {
	Recognize(ctx context.Context, image []byte, mode Mode) (string, error)
}
