// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Span attribute keys.
const (
	SessionIDKey     = "session.id"
	SessionNameKey   = "session.name"
	SessionStatusKey = "session.status"
	SessionRateKey   = "session.capture_rate_hz"

	StreamNameKey  = "stream.name"
	StreamCountKey = "stream.count"

	ErrorKey     = "error"
	ErrorTypeKey = "error.type"
)

// SessionAttributes describes a recording session.
func SessionAttributes(id, name string, rateHz float64) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 3)
	if id != "" {
		attrs = append(attrs, attribute.String(SessionIDKey, id))
	}
	if name != "" {
		attrs = append(attrs, attribute.String(SessionNameKey, name))
	}
	attrs = append(attrs, attribute.Float64(SessionRateKey, rateHz))
	return attrs
}

// StreamAttributes describes one capture stream and the items it wrote.
func StreamAttributes(name string, count uint64) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(StreamNameKey, name),
		attribute.Int64(StreamCountKey, int64(count)),
	}
}

// ErrorAttributes marks a span as failed with a coarse error class.
func ErrorAttributes(errorType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Bool(ErrorKey, true),
		attribute.String(ErrorTypeKey, errorType),
	}
}
