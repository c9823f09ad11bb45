// Copyright 2026 fanjia1024
//
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

// Package errors provides error-wrapping and domain-error helpers with
// no dependency on internal packages.
package errors

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrInvalidArg = errors.New("invalid argument")

	// ErrRateLimited is returned by ingress when the rate limiter
	// rejects an attempt; domain-level, not an HTTP error on its own.
	ErrRateLimited = errors.New("rate limited")
	// ErrOutOfQuota is returned by ingress when the ledger's
	// ConsumeCredits reports insufficient balance.
	ErrOutOfQuota = errors.New("out of quota")
	// ErrInvalidWebhook marks a webhook body that fails schema
	// validation, surfaced as HTTP 400.
	ErrInvalidWebhook = errors.New("invalid webhook payload")
	// ErrUnauthorized marks a webhook request that failed shared-secret
	// or origin-allowlist authentication, surfaced as HTTP 401.
	ErrUnauthorized = errors.New("unauthorized")
)

// Wrap annotates err with msg, preserving it for errors.Is/As.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// Wrapf is Wrap with a formatted message.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// DomainError pairs an error with the HTTP status and short name it
// should render as in the response envelope:
// {ok, statusCode, statusText, data, error:{name, message}}.
type DomainError struct {
	Status  int
	Name    string
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Name
}

func (e *DomainError) Unwrap() error { return e.Err }

// NewDomainError builds a DomainError wrapping err with an HTTP status
// and short name for the response envelope.
func NewDomainError(status int, name string, err error) *DomainError {
	msg := name
	if err != nil {
		msg = err.Error()
	}
	return &DomainError{Status: status, Name: name, Message: msg, Err: err}
}

// AsDomainError unwraps err looking for a *DomainError. If none is
// found it maps this package's sentinel errors to their HTTP status and
// falls back to a generic 500 "internal" DomainError, so every error
// that escapes to the HTTP boundary renders as the envelope.
func AsDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var de *DomainError
	if errors.As(err, &de) {
		return de
	}
	switch {
	case errors.Is(err, ErrRateLimited):
		return NewDomainError(429, "rate_limited", err)
	case errors.Is(err, ErrOutOfQuota):
		return NewDomainError(402, "out_of_quota", err)
	case errors.Is(err, ErrInvalidWebhook):
		return NewDomainError(400, "invalid_request", err)
	case errors.Is(err, ErrUnauthorized):
		return NewDomainError(401, "unauthorized", err)
	case errors.Is(err, ErrNotFound):
		return NewDomainError(404, "not_found", err)
	case errors.Is(err, ErrInvalidArg):
		return NewDomainError(400, "invalid_argument", err)
	default:
		return NewDomainError(500, "internal", err)
	}
}
