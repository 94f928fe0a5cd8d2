package tracing

import (
	"errors"
	"strings"

	"go.opentelemetry.io/otel/attribute"
)

// allowedSpanKeys keeps span attributes to a fixed, low-cardinality set so
// credentials and free-text input never reach the trace backend.
var allowedSpanKeys = map[attribute.Key]struct{}{
	"request_id":               {},
	"http.method":              {},
	"http.route":               {},
	"http.status_code":         {},
	"http.server_duration_ms":  {},
	"team_id":                  {},
	"guard.stage":              {},
	"guard.decision":           {},
	"impersonation.session_id": {},
}

// SafeAttributes drops attributes outside the allowed set.
func SafeAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	out := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedSpanKeys[attr.Key]; ok {
			out = append(out, attr)
		}
	}
	return out
}

// SafeError returns an error carrying only the sentinel message, never
// wrapped request payloads.
func SafeError(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.TrimSpace(err.Error())
	if msg == "" {
		return nil
	}
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return errors.New(msg)
}
