// Package locale adapts the whatlanggo trigram detector to crawler.LocaleDetector.
package locale

import (
	"errors"
	"fmt"
	"strings"

	"github.com/abadojack/whatlanggo"
)

// ErrUndetected is returned when no language could be determined.
var ErrUndetected = errors.New("language not detected")

// Detector reports ISO 639-1 codes for bio texts.
type Detector struct {
	minConfidence float64
}

// New returns a Detector that rejects guesses below minConfidence (0 disables).
func New(minConfidence float64) *Detector {
	return &Detector{minConfidence: minConfidence}
}

// Detect returns the ISO 639-1 code of text.
func (d *Detector) Detect(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("empty text: %w", ErrUndetected)
	}
	info := whatlanggo.Detect(text)
	if info.Script == nil {
		return "", ErrUndetected
	}
	code := info.Lang.Iso6391()
	if code == "" {
		return "", ErrUndetected
	}
	if d.minConfidence > 0 && info.Confidence < d.minConfidence {
		return "", fmt.Errorf("%s below confidence %.2f (%.2f): %w", code, d.minConfidence, info.Confidence, ErrUndetected)
	}
	return code, nil
}
