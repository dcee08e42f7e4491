package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
	ErrQuota         = errors.New("quota exceeded")
	ErrStorageQuota  = errors.New("storage quota exceeded")
	ErrNotFound      = errors.New("not found")
	ErrTransient     = errors.New("transient failure")
	ErrBusy          = errors.New("generation already in progress")
	ErrNoIdentity    = errors.New("no authenticated identity")
)

// Wrap builds an error message that includes component context while tagging it with
// the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
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

// Kind is the user-facing failure category.
type Kind string

const (
	KindNone          Kind = ""
	KindConfiguration Kind = "configuration"
	KindQuota         Kind = "quota"
	KindStorageQuota  Kind = "storage_quota"
	KindValidation    Kind = "validation"
	KindBusy          Kind = "busy"
	KindTransient     Kind = "transient"
)

// Classify maps err onto the failure taxonomy. Markers win over message
// inspection; unmarked errors from external services are sniffed for the
// rate-limit and credential signals those services embed in their text.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrBusy):
		return KindBusy
	case errors.Is(err, ErrStorageQuota):
		return KindStorageQuota
	case errors.Is(err, ErrQuota):
		return KindQuota
	case errors.Is(err, ErrConfiguration):
		return KindConfiguration
	case errors.Is(err, ErrTransient):
		// Marked messages carry user titles and ids; never sniff them.
		return KindTransient
	}
	msg := err.Error()
	switch {
	case IsQuotaMessage(msg):
		return KindQuota
	case isStorageQuotaMessage(msg):
		return KindStorageQuota
	case strings.Contains(msg, "API key"):
		return KindConfiguration
	default:
		return KindTransient
	}
}

// IsQuota reports whether err is a generation rate-limit or quota failure.
func IsQuota(err error) bool {
	return Classify(err) == KindQuota
}

// IsStorageQuota reports whether err is a document size/limit failure.
func IsStorageQuota(err error) bool {
	return Classify(err) == KindStorageQuota
}

// IsQuotaMessage reports whether a raw service message carries a rate-limit signal.
func IsQuotaMessage(msg string) bool {
	return strings.Contains(msg, "429") ||
		strings.Contains(msg, "RESOURCE_EXHAUSTED") ||
		strings.Contains(strings.ToLower(msg), "quota")
}

func isStorageQuotaMessage(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "exceeds the maximum") ||
		strings.Contains(lower, "too large") ||
		strings.Contains(lower, "size limit")
}

const maxDetailRunes = 150

// UserMessage renders a message suitable for showing to the person who
// triggered the failed action.
func UserMessage(err error) string {
	switch Classify(err) {
	case KindNone:
		return ""
	case KindConfiguration:
		return "Generation API key is missing or invalid. Set generation.api_key or GEMINI_API_KEY."
	case KindQuota:
		return "API quota exceeded (429). The current plan reached its request limit; select or refresh your API key."
	case KindStorageQuota:
		return "The item is too large to save. Reduce the image size and try again."
	case KindValidation, KindBusy:
		return rootMessage(err)
	default:
		return "Generation failed: " + truncate(err.Error(), maxDetailRunes)
	}
}

// rootMessage strips the marker prefix so validation text reads naturally.
func rootMessage(err error) string {
	msg := err.Error()
	for _, marker := range []error{ErrValidation, ErrBusy} {
		msg = strings.TrimPrefix(msg, marker.Error()+": ")
	}
	return msg
}

func truncate(value string, limit int) string {
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return string(runes[:limit]) + "..."
}
