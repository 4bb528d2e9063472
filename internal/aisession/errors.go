package aisession

import (
	"errors"
	"fmt"
)

// Error taxonomy for upstream session failures.
//
// - ConfigurationError: missing credentials or model setup. Fatal to starting
//   a session; never retried automatically.
// - ClientError: transport or protocol failure on the live connection.
//   Surfaced to the failing call's owner; retry policy belongs upstream.
// - ErrNotConnected: operation issued in the wrong lifecycle state. Always a
//   protocol bug in the caller.
// - PoolExhaustedError: capacity backpressure, not a failure. Legitimately
//   retryable.

var ErrNotConnected = errors.New("aisession: session not connected")

type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("aisession: configuration error: %s", e.Reason)
}

type ClientError struct {
	Op  string
	Err error
}

func (e *ClientError) Error() string {
	return fmt.Sprintf("aisession: %s: %v", e.Op, e.Err)
}

func (e *ClientError) Unwrap() error { return e.Err }

type PoolExhaustedError struct {
	Max int
}

func (e *PoolExhaustedError) Error() string {
	return fmt.Sprintf("aisession: pool exhausted (max %d sessions)", e.Max)
}
