package crawler

import (
	"context"
	"errors"
)

// Error taxonomy. Store errors (ErrIO, ErrFormat) and ErrConfig abort a run;
// ErrNavigation, ErrTimeout and ErrInvalidCandidate are contained at the
// candidate boundary; ErrClassify only degrades the locale signal.
var (
	ErrIO         = errors.New("store io failure")
	ErrFormat     = errors.New("corrupt store data")
	ErrNavigation = errors.New("navigation failed")
	ErrTimeout    = errors.New("navigation timed out")
	ErrClassify   = errors.New("classification failed")
	ErrConfig     = errors.New("invalid configuration")

	ErrInvalidCandidate = errors.New("invalid candidate id")
)

// Error kind labels used in logs and metrics.
const (
	KindIO         = "io"
	KindFormat     = "format"
	KindNavigation = "navigation"
	KindTimeout    = "timeout"
	KindClassify   = "classify"
	KindConfig     = "config"
	KindInvalid    = "invalid_candidate"
	KindCanceled   = "canceled"
	KindUnknown    = "unknown"
)

// KindOf maps err onto a stable label.
func KindOf(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrIO):
		return KindIO
	case errors.Is(err, ErrFormat):
		return KindFormat
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, ErrNavigation):
		return KindNavigation
	case errors.Is(err, ErrClassify):
		return KindClassify
	case errors.Is(err, ErrConfig):
		return KindConfig
	case errors.Is(err, ErrInvalidCandidate):
		return KindInvalid
	case errors.Is(err, context.Canceled):
		return KindCanceled
	default:
		return KindUnknown
	}
}

// IsFatal reports whether err must terminate the run.
func IsFatal(err error) bool {
	switch KindOf(err) {
	case KindIO, KindFormat, KindConfig, KindCanceled:
		return true
	default:
		return false
	}
}

// NavigationError tags err as a navigation failure, or a timeout when the
// navigation deadline expired.
func NavigationError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return errors.Join(ErrTimeout, err)
	}
	return errors.Join(ErrNavigation, err)
}
