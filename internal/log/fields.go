// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldSessionID   = "session_id"
	FieldSessionName = "session"
	FieldRequestID   = "request_id"

	// Pipeline fields
	FieldEvent     = "event"
	FieldComponent = "component"
	FieldStream    = "stream"
	FieldEye       = "eye"
	FieldNode      = "node"
	FieldReason    = "reason"

	// State fields
	FieldOldState = "old_state"
	FieldNewState = "new_state"

	// Timing fields
	FieldDeviceNs = "device_ns"
	FieldUnixMs   = "unix_ms"
	FieldRateHz   = "rate_hz"

	// Path fields
	FieldPath = "path"
)
