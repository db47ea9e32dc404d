// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package apierr defines the error taxonomy the HTTP layer translates into
// status codes and response bodies. Internal components return these typed
// errors instead of leaking provider error bodies or stack traces.
package apierr

import (
	"errors"
	"fmt"
)

// Kind discriminates the error taxonomy described in the error handling
// design: InputError, SessionExpired, IngestError, ToolError,
// TransportError, and SafetyRefusal, plus KindInternal for anything
// uncategorized. ValidationDiscrepancy has no Kind: it is never returned
// as an error.
type Kind int

const (
	// KindInput covers missing session id / message / SQL and malformed logs.
	KindInput Kind = iota
	// KindSessionExpired covers unknown or TTL-evicted session ids.
	KindSessionExpired
	// KindIngest covers a per-message-type ingestion failure.
	KindIngest
	// KindTool covers SQL syntax or missing-identifier errors during a tool call.
	KindTool
	// KindTransport covers LLM or doc-fetch network failures.
	KindTransport
	// KindSafetyRefusal is not a failure; it is a terminal refusal outcome.
	KindSafetyRefusal
	// KindInternal covers anything uncategorized; always a 500.
	KindInternal
)

// String returns a short machine-stable name for the kind, used in logs and
// in the JSON error body's "kind" field.
func (k Kind) String() string {
	switch k {
	case KindInput:
		return "input_error"
	case KindSessionExpired:
		return "session_expired"
	case KindIngest:
		return "ingest_error"
	case KindTool:
		return "tool_error"
	case KindTransport:
		return "transport_error"
	case KindSafetyRefusal:
		return "safety_refusal"
	case KindInternal:
		return "internal_error"
	default:
		return "unknown_error"
	}
}

// Error is the typed error every flightlog component returns across a
// component boundary. It wraps an underlying cause without exposing it to
// the client.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New constructs an Error of the given kind with a client-safe message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap constructs an Error of the given kind, attaching cause for logs only;
// cause is never rendered to the client.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Input is a convenience constructor for KindInput.
func Input(format string, args ...any) *Error {
	return New(KindInput, fmt.Sprintf(format, args...))
}

// SessionExpired is a convenience constructor for KindSessionExpired.
func SessionExpired(sessionID string) *Error {
	return New(KindSessionExpired, fmt.Sprintf("session %q not found or expired", sessionID))
}

// Tool is a convenience constructor for KindTool.
func Tool(format string, args ...any) *Error {
	return New(KindTool, fmt.Sprintf(format, args...))
}

// Transport wraps a transport-layer failure (LLM or doc-fetch network error).
func Transport(message string, cause error) *Error {
	return Wrap(KindTransport, message, cause)
}

// Internal wraps an unexpected internal failure.
func Internal(message string, cause error) *Error {
	return Wrap(KindInternal, message, cause)
}

// As extracts an *Error from err, if present.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// Status returns the conventional HTTP status code for kind.
func Status(kind Kind) int {
	switch kind {
	case KindInput:
		return 400
	case KindSessionExpired:
		return 404
	case KindIngest:
		return 500
	case KindTool:
		return 200 // tool errors are surfaced to the model, not the client
	case KindTransport:
		return 502
	case KindSafetyRefusal:
		return 200 // a refusal is a terminal, successful response
	case KindInternal:
		return 500
	default:
		return 500
	}
}

// Translate converts err into an HTTP status code and a JSON-serializable
// body. Non-*Error values are treated as internal errors and their detail is
// never included in the body.
func Translate(err error) (int, map[string]any) {
	if err == nil {
		return 200, nil
	}
	e, ok := As(err)
	if !ok {
		return 500, map[string]any{"error": "internal_error", "message": "an unexpected error occurred"}
	}
	return Status(e.Kind), map[string]any{"error": e.Kind.String(), "message": e.Message}
}
