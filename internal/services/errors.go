package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrParseFailure        = errors.New("parse failure")
	ErrAmbiguousMatch      = errors.New("ambiguous match")
	ErrProviderUnavailable = errors.New("metadata provider unavailable")
	ErrPersistence         = errors.New("persistence error")
	ErrFilesystem          = errors.New("filesystem error")
	ErrValidation          = errors.New("validation error")
	ErrConfiguration       = errors.New("configuration error")
	ErrNotFound            = errors.New("not found")
)

// Failure kinds recorded on source entries and surfaced to operators.
const (
	KindParse       = "parse"
	KindAmbiguous   = "ambiguous"
	KindProvider    = "provider"
	KindCollision   = "collision"
	KindPersistence = "persistence"
	KindFilesystem  = "filesystem"
	KindValidation  = "validation"
	KindNotFound    = "not_found"
	KindUnknown     = "unknown"
)

// ErrorClassifier allows typed errors to declare their failure kind.
type ErrorClassifier interface {
	ErrorKind() string
}

// Wrap builds an error message that includes component context while tagging
// it with the provided marker for later classification. The marker should be
// one of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrPersistence
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// FailureKind maps an error onto one of the Kind constants.
func FailureKind(err error) string {
	if err == nil {
		return ""
	}
	var classifier ErrorClassifier
	if errors.As(err, &classifier) {
		if kind := strings.TrimSpace(classifier.ErrorKind()); kind != "" {
			return kind
		}
	}
	switch {
	case errors.Is(err, ErrParseFailure):
		return KindParse
	case errors.Is(err, ErrAmbiguousMatch):
		return KindAmbiguous
	case errors.Is(err, ErrProviderUnavailable):
		return KindProvider
	case errors.Is(err, ErrFilesystem):
		return KindFilesystem
	case errors.Is(err, ErrPersistence):
		return KindPersistence
	case errors.Is(err, ErrValidation), errors.Is(err, ErrConfiguration):
		return KindValidation
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	default:
		return KindUnknown
	}
}

// CountsTowardManual reports whether a resolution failure consumes the entry's
// repair budget. Only identity problems and provider outages do; infrastructure
// failures retry untouched.
func CountsTowardManual(err error) bool {
	switch FailureKind(err) {
	case KindParse, KindAmbiguous, KindProvider:
		return true
	default:
		return false
	}
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
