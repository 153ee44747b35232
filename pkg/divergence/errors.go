/*
 * Copyright (C) 2024 Adiom, Inc.
 *
 * SPDX-License-Identifier: AGPL-3.0-or-later
 */

package divergence

import (
	"errors"
	"fmt"
)

var (
	// ErrNoGroundTruth is matched by errors returned when the trusted node's
	// digest could not be obtained. It always aborts a search.
	ErrNoGroundTruth = errors.New("no ground truth")
	// ErrInvalidRange is returned before any network activity when start > end.
	ErrInvalidRange = errors.New("invalid checkpoint range")
	// ErrUnknownTrustedNode is returned before any network activity when the
	// trusted node is not a member of the peer set.
	ErrUnknownTrustedNode = errors.New("trusted node not in peer set")
	// ErrNoAttempts is returned when a fetch is requested with zero attempts.
	ErrNoAttempts = errors.New("max retries must be at least 1")
)

type FetchErrorKind int

const (
	// FetchTransport covers network failures and undecodable responses.
	FetchTransport FetchErrorKind = iota
	// FetchStatus is a non-success HTTP status.
	FetchStatus
	// FetchEmpty is a successful response that carried no digest.
	FetchEmpty
)

func (k FetchErrorKind) String() string {
	switch k {
	case FetchTransport:
		return "transport"
	case FetchStatus:
		return "non-success-status"
	case FetchEmpty:
		return "empty-result"
	default:
		return fmt.Sprintf("FetchErrorKind(%d)", int(k))
	}
}

// FetchError is a failed single digest request.
type FetchError struct {
	Kind       FetchErrorKind
	Node       NodeID
	Checkpoint Checkpoint
	Err        error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch digest from %v at %d (%v): %v", e.Node, e.Checkpoint, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// NoGroundTruthError wraps the last error seen fetching the trusted digest.
type NoGroundTruthError struct {
	Node       NodeID
	Checkpoint Checkpoint
	Err        error
}

func (e *NoGroundTruthError) Error() string {
	return fmt.Sprintf("no ground truth from trusted node %v at checkpoint %d: %v", e.Node, e.Checkpoint, e.Err)
}

func (e *NoGroundTruthError) Unwrap() error {
	return e.Err
}

func (e *NoGroundTruthError) Is(target error) bool {
	return target == ErrNoGroundTruth
}
