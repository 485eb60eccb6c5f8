package ocr

import (
	"context"
	"log"
	"regexp"
	"strings"

	"github.com/clicksolve/captcha-agent/internal/wire"
)

// cropSize is the window cut around each candidate point during
// verification, in pixels.
const cropSize = 100

// verifyModes are tried in order over each crop; the first confident match
// wins. Several modes are needed because recognition on small crops is noisy.
var verifyModes = []Mode{ModeSingleChar, ModeDigits, ModeSingleLine}

// DigitGate is a best-effort sanity filter around the solving pipeline.
// Before submission it checks that the captcha shows digits at all; after an
// answer arrives it checks that the returned points actually sit on the
// target value. Both checks fail open: a missing or broken engine never
// blocks the pipeline.
type DigitGate struct {
	engine Engine
}

// NewDigitGate wraps the given engine. A nil engine is valid and turns every
// check into a pass.
func NewDigitGate(engine Engine) *DigitGate {
	return &DigitGate{engine: engine}
}

// HasDigits reports whether the captcha image contains at least one digit.
// Used before paying for a remote solve; an unanswerable image is abandoned
// early instead of submitted.
func (g *DigitGate) HasDigits(ctx context.Context, image []byte) bool {
	if g.engine == nil {
		return true
	}
	text, err := g.engine.Recognize(ctx, image, ModeDigits)
	if err != nil {
		log.Printf("[DigitGate] OCR error during digit check, assuming pass: %v", err)
		return true
	}
	return strings.ContainsAny(text, "0123456789")
}

// Verify keeps only the points whose surrounding crop reads as the target
// value. Points the engine cannot read are kept, and if nothing at all
// survives the original set is returned unchanged; a broken verifier must
// never turn a plausible answer into a certain failure.
func (g *DigitGate) Verify(ctx context.Context, image []byte, target string, points []wire.Point) []wire.Point {
	if g.engine == nil || target == "" || len(points) == 0 {
		return points
	}

	src, err := decodeImage(image)
	if err != nil {
		log.Printf("[DigitGate] Failed to decode screenshot for verification, keeping all points: %v", err)
		return points
	}

	var verified []wire.Point
	for _, p := range points {
		crop, err := cropWindow(src, p.X, p.Y, cropSize)
		if err != nil {
			verified = append(verified, p)
			continue
		}

		texts := g.readCrop(ctx, crop)
		if len(texts) == 0 {
			// Nothing readable at the point; keep it rather than
			// second-guess the solver.
			verified = append(verified, p)
			continue
		}

		if matchesTarget(texts, target) {
			log.Printf("[DigitGate] Point (%d,%d) matches target %q", p.X, p.Y, target)
			verified = append(verified, p)
		} else {
			log.Printf("[DigitGate] Point (%d,%d) read as %v, not target %q; dropping", p.X, p.Y, texts, target)
		}
	}

	if len(verified) == 0 {
		log.Printf("[DigitGate] Verification removed every point, falling back to unfiltered answer")
		return points
	}
	return verified
}

// readCrop runs the verification modes over one crop and collects non-empty
// results. Engine errors are logged and skipped.
func (g *DigitGate) readCrop(ctx context.Context, crop []byte) []string {
	var texts []string
	for _, mode := range verifyModes {
		text, err := g.engine.Recognize(ctx, crop, mode)
		if err != nil {
			log.Printf("[DigitGate] OCR error in mode %s: %v", mode, err)
			continue
		}
		text = normalize(text)
		if text != "" {
			texts = append(texts, text)
		}
	}
	return texts
}

// matchesTarget applies fuzzy containment: a crop counts as a match when any
// recognized text equals, contains, or is contained by the target.
func matchesTarget(texts []string, target string) bool {
	target = normalize(target)
	for _, text := range texts {
		if text == target || strings.Contains(text, target) || strings.Contains(target, text) {
			return true
		}
	}
	return false
}

func normalize(s string) string {
	s = strings.ReplaceAll(s, "\n", "")
	return strings.TrimSpace(strings.ReplaceAll(s, " ", ""))
}

var (
	instructionPattern = regexp.MustCompile(`(?i)(?:number|digit|click(?:\s+all)?)\D{0,20}?(\d{1,3})`)
	anyNumberPattern   = regexp.MustCompile(`\b(\d{1,3})\b`)
)

// ExtractTarget reads the on-page instruction text and pulls out the value
// the user is asked to click. Returns "" when no target can be determined,
// in which case verification is skipped entirely.
func (g *DigitGate) ExtractTarget(ctx context.Context, image []byte) string {
	if g.engine == nil {
		return ""
	}
	text, err := g.engine.Recognize(ctx, image, ModeText)
	if err != nil {
		log.Printf("[DigitGate] OCR error during target extraction: %v", err)
		return ""
	}
	return ExtractTargetFromText(text)
}

// ExtractTargetFromText finds the target value inside instruction text,
// preferring a number that follows instruction wording and falling back to
// the first standalone number.
func ExtractTargetFromText(text string) string {
	if m := instructionPattern.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	if m := anyNumberPattern.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	return ""
}
