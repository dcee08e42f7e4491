package gemini

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"shivuk/internal/services"
)

func apiError(err error) (genai.APIError, bool) {
	var value genai.APIError
	if errors.As(err, &value) {
		return value, true
	}
	var ptr *genai.APIError
	if errors.As(err, &ptr) && ptr != nil {
		return *ptr, true
	}
	return genai.APIError{}, false
}

func apiErrorCode(err error) (int, bool) {
	apiErr, ok := apiError(err)
	if !ok {
		return 0, false
	}
	return apiErr.Code, true
}

// classify tags a service failure with the marker callers branch on.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if marked(err) {
		return err
	}
	if apiErr, ok := apiError(err); ok {
		switch {
		case apiErr.Code == http.StatusTooManyRequests || apiErr.Status == "RESOURCE_EXHAUSTED":
			return services.Wrap(services.ErrQuota, "gemini", op, apiErr.Message, err)
		case strings.Contains(apiErr.Message, "API key"):
			return services.Wrap(services.ErrConfiguration, "gemini", op, apiErr.Message, err)
		}
	}
	msg := err.Error()
	switch {
	case services.IsQuotaMessage(msg):
		return services.Wrap(services.ErrQuota, "gemini", op, "quota exceeded", err)
	case strings.Contains(msg, "API key"):
		return services.Wrap(services.ErrConfiguration, "gemini", op, "invalid API key", err)
	}
	return services.Wrap(services.ErrTransient, "gemini", op, "", err)
}

func marked(err error) bool {
	for _, marker := range []error{services.ErrConfiguration, services.ErrQuota, services.ErrValidation, services.ErrTransient} {
		if errors.Is(err, marker) {
			return true
		}
	}
	return false
}
