// SPDX-License-Identifier: MIT

package translate

import (
	"errors"
	"fmt"
)

var (
	// ErrProviderDisabled is returned by the "none" provider.
	ErrProviderDisabled = errors.New("translate: remote provider disabled")
	// ErrUnknownProvider is returned by NewProvider for an unsupported name.
	ErrUnknownProvider = errors.New("translate: unknown provider")

	ErrUpstreamStatus = errors.New("upstream: unexpected status")
	ErrBadResponse    = errors.New("upstream: invalid response format or malformed data")
	ErrRateLimited    = errors.New("upstream: rate limited")
)

// ProviderError wraps a sentinel with the provider and HTTP context.
type ProviderError struct {
	Sentinel error
	Provider string
	Status   int
	Body     string
	Err      error
}

func (e *ProviderError) Error() string {
	msg := fmt.Sprintf("%s: %v", e.Provider, e.Sentinel)
	if e.Status > 0 {
		msg = fmt.Sprintf("%s (HTTP %d)", msg, e.Status)
	}
	if e.Body != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Body)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *ProviderError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Sentinel}
	}
	return []error{e.Sentinel, e.Err}
}
