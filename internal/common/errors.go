// Package common defines shared constants and sentinel errors used across
// framekeeper components. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrNotFound = errors.New("not found")

	// Service-level errors (generic/internal flow control).
	ErrInternal = errors.New("internal error")

	// ErrAuthFailure covers bad key, device mismatch and unknown resource ID.
	// All three collapse to the same external signal so a guesser cannot
	// distinguish "wrong key" from "no such resource".
	ErrAuthFailure = errors.New("authorization failure")

	// ErrExpired marks a pairing or update session that is no longer servable.
	ErrExpired = errors.New("session expired")

	// ErrSourceUnavailable marks a transient failure of the external album
	// host; the device may retry on its own schedule.
	ErrSourceUnavailable = errors.New("source unavailable")

	// ErrOverflow marks an external album above the configured item limit.
	ErrOverflow = errors.New("album too large")

	// ErrCollision marks a pairing-code collision. Retried internally,
	// never surfaced to callers.
	ErrCollision = errors.New("pairing code collision")
)
