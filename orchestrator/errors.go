// Copyright 2025 DeskFlow
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package orchestrator

import (
	"fmt"
	"net/http"
)

// ErrorKind classifies request failures. Every error that reaches a
// caller carries exactly one kind, so clients can react without
// parsing messages.
type ErrorKind string

const (
	// KindInvalidRequest means the request was malformed: empty
	// message, bad JSON, or an unusable field value.
	KindInvalidRequest ErrorKind = "invalid_request"

	// KindUnknownAgent means the requested or selected agent id does
	// not exist in the current registry snapshot.
	KindUnknownAgent ErrorKind = "unknown_agent"

	// KindRoutingUnavailable means the classifier could not produce a
	// usable selection: provider down or malformed output. An empty
	// registry is KindConfiguration instead.
	KindRoutingUnavailable ErrorKind = "routing_unavailable"

	// KindAgentError means the selected agent was called and the call
	// failed (unreachable, timeout, or a backend error status).
	KindAgentError ErrorKind = "agent_error"

	// KindCancelled means the caller abandoned the request before a
	// response was produced.
	KindCancelled ErrorKind = "cancelled"

	// KindConfiguration means the service itself is misconfigured and
	// cannot serve the request.
	KindConfiguration ErrorKind = "configuration_error"

	// KindRateLimited means the caller exceeded its request budget.
	KindRateLimited ErrorKind = "rate_limited"
)

// RequestError is the error type returned by request handling. It pairs
// an ErrorKind with a caller-safe message; internal detail rides in
// Cause and only reaches logs.
type RequestError struct {
	Kind    ErrorKind
	Message string
	Cause   error

	// Timeout marks agent errors caused by a deadline rather than a
	// backend failure, so the HTTP layer can answer 504 instead of 502.
	Timeout bool
}

// Error implements the error interface.
func (e *RequestError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying error.
func (e *RequestError) Unwrap() error { return e.Cause }

// HTTPStatus maps the error kind to an HTTP status code.
func (e *RequestError) HTTPStatus() int {
	switch e.Kind {
	case KindInvalidRequest:
		return http.StatusBadRequest
	case KindUnknownAgent:
		return http.StatusNotFound
	case KindRoutingUnavailable:
		return http.StatusBadGateway
	case KindAgentError:
		if e.Timeout {
			return http.StatusGatewayTimeout
		}
		return http.StatusBadGateway
	case KindCancelled:
		if e.Timeout {
			return http.StatusGatewayTimeout
		}
		// Client closed the connection; nginx convention.
		return 499
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindConfiguration:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// newRequestError builds a RequestError without a cause.
func newRequestError(kind ErrorKind, format string, args ...interface{}) *RequestError {
	return &RequestError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// wrapRequestError builds a RequestError around an underlying error.
func wrapRequestError(kind ErrorKind, cause error, format string, args ...interface{}) *RequestError {
	return &RequestError{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}
