// Copyright (C) 2025 Finsage Labs
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"context"
	"errors"
	"net"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// =============================================================================
// Error Taxonomy
// =============================================================================

// Sentinel errors classified from transport signals. The orchestrator only
// ever branches on these kinds, never on provider-specific errors.
var (
	ErrRateLimited = errors.New("llm: rate limited")
	ErrQuota       = errors.New("llm: quota exhausted")
	ErrTimeout     = errors.New("llm: request timed out")
	ErrConfig      = errors.New("llm: configuration error")
	ErrUnknown     = errors.New("llm: unknown transport error")
)

// Classify maps a raw transport error onto the taxonomy. The original
// error stays in the chain for logging; callers branch with errors.Is.
func Classify(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return wrap(ErrTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return wrap(ErrTimeout, err)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case 429:
			if code, ok := apiErr.Code.(string); ok && strings.Contains(code, "insufficient_quota") {
				return wrap(ErrQuota, err)
			}
			return wrap(ErrRateLimited, err)
		case 401, 403, 404:
			return wrap(ErrConfig, err)
		case 400:
			return wrap(ErrConfig, err)
		}
		return wrap(ErrUnknown, err)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		if reqErr.HTTPStatusCode == 429 {
			return wrap(ErrRateLimited, err)
		}
		return wrap(ErrUnknown, err)
	}

	return wrap(ErrUnknown, err)
}

// classified keeps both the taxonomy sentinel and the transport cause in
// the error chain.
type classified struct {
	kind  error
	cause error
}

func wrap(kind, cause error) error {
	return &classified{kind: kind, cause: cause}
}

func (e *classified) Error() string {
	return e.kind.Error() + ": " + e.cause.Error()
}

func (e *classified) Is(target error) bool {
	return errors.Is(e.kind, target)
}

func (e *classified) Unwrap() error {
	return e.cause
}
