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

package llm

import (
	"errors"
	"fmt"
	"testing"
)

func TestProviderErrorFormat(t *testing.T) {
	err := &ProviderError{Provider: "openai", Code: ErrCodeRateLimit,
		Message: "slow down", StatusCode: 429}
	want := "openai error (status 429): slow down"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}

	err = &ProviderError{Provider: "ollama", Code: ErrCodeUnavailable, Message: "connection refused"}
	want = "ollama error: connection refused"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestProviderErrorUnwrap(t *testing.T) {
	cause := fmt.Errorf("dial tcp: connection refused")
	err := &ProviderError{Provider: "openai", Code: ErrCodeUnavailable,
		Message: cause.Error(), Cause: cause}

	if !errors.Is(err, cause) {
		t.Error("expected errors.Is to find the cause")
	}
}

func TestNewProviderErrorRetryability(t *testing.T) {
	tests := []struct {
		code      string
		retryable bool
	}{
		{ErrCodeRateLimit, true},
		{ErrCodeServerError, true},
		{ErrCodeTimeout, true},
		{ErrCodeUnavailable, true},
		{ErrCodeAuth, false},
		{ErrCodeInvalidRequest, false},
	}

	for _, tt := range tests {
		err := NewProviderError("test", tt.code, "msg")
		if err.Retryable != tt.retryable {
			t.Errorf("code %s: Retryable = %v, want %v", tt.code, err.Retryable, tt.retryable)
		}
	}
}

func TestCodeForStatus(t *testing.T) {
	tests := []struct {
		status int
		want   string
	}{
		{400, ErrCodeInvalidRequest},
		{401, ErrCodeAuth},
		{403, ErrCodeAuth},
		{404, ErrCodeInvalidRequest},
		{429, ErrCodeRateLimit},
		{500, ErrCodeServerError},
		{503, ErrCodeServerError},
	}

	for _, tt := range tests {
		if got := codeForStatus(tt.status); got != tt.want {
			t.Errorf("codeForStatus(%d) = %s, want %s", tt.status, got, tt.want)
		}
	}
}
