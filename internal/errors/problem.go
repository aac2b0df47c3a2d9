package errors

import "time"

// ProblemDetails is the RFC 7807 body the ingress boundary renders from a
// TypedError.
type ProblemDetails struct {
	Type     string            `json:"type"`
	Title    string            `json:"title"`
	Status   int               `json:"status"`
	Detail   string            `json:"detail"`
	Instance string            `json:"instance"`
	TraceID  string            `json:"trace_id"`
	Errors   map[string]string `json:"errors,omitempty"`
	HelpURL  string            `json:"help_url,omitempty"`
}

// ToProblemDetails translates a typed error into its wire representation.
// instance and traceID are supplied by the ingress adapter (request path,
// correlation id) — core has no notion of either.
func ToProblemDetails(err *TypedError, instance, traceID string) ProblemDetails {
	return ProblemDetails{
		Type:     "https://clarity.health/problems/" + string(err.Kind),
		Title:    humanTitle(err.Kind),
		Status:   err.Kind.HTTPStatus(),
		Detail:   err.Message,
		Instance: instance,
		TraceID:  traceID,
		Errors:   err.FieldErrors,
	}
}

func humanTitle(k Kind) string {
	switch k {
	case KindValidation:
		return "Validation Failed"
	case KindAuthorization:
		return "Authorization Failed"
	case KindNotFound:
		return "Resource Not Found"
	case KindIntegrity:
		return "Integrity Check Failed"
	case KindDataValidation:
		return "Data Validation Failed"
	case KindInference:
		return "Inference Failed"
	case KindStorage:
		return "Service Unavailable"
	case KindTimeout:
		return "Request Timed Out"
	default:
		return "Error"
	}
}

// RetryAfter computes a Retry-After duration suggestion for transient
// storage failures.
func RetryAfter(attempt int) time.Duration {
	base := 100 * time.Millisecond
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
	}
	if d > 30*time.Second {
		return 30 * time.Second
	}
	return d
}
