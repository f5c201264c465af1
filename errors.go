// errors.go: structured error handling for segcache operations
//
// This file provides structured error types using the go-errors library,
// enabling rich error context, categorization, and standardized error
// codes for every operation the builder and cache can fail on.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0
package segcache

import (
	goerrors "errors"
	"fmt"

	"github.com/agilira/go-errors"
)

// Error codes for segcache operations.
const (
	// Builder / configuration errors (1xxx)
	ErrCodeInvalidArgument    errors.ErrorCode = "SEGCACHE_INVALID_ARGUMENT"
	ErrCodeInvalidState       errors.ErrorCode = "SEGCACHE_INVALID_STATE"
	ErrCodeCapacityImpossible errors.ErrorCode = "SEGCACHE_CAPACITY_IMPOSSIBLE"
	ErrCodeNilKey             errors.ErrorCode = "SEGCACHE_NIL_KEY"
	ErrCodeNilValue           errors.ErrorCode = "SEGCACHE_NIL_VALUE"

	// Computing errors (2xxx)
	ErrCodeComputeFailed   errors.ErrorCode = "SEGCACHE_COMPUTE_FAILED"
	ErrCodeComputeNilValue errors.ErrorCode = "SEGCACHE_COMPUTE_NIL_RESULT"
	ErrCodeCancelled       errors.ErrorCode = "SEGCACHE_CANCELLED"

	// Internal errors (5xxx)
	ErrCodePanicRecovered errors.ErrorCode = "SEGCACHE_PANIC_RECOVERED"
)

const (
	msgInvalidArgument    = "invalid argument"
	msgInvalidState       = "configuration knob already set"
	msgCapacityImpossible = "requested capacity cannot be represented"
	msgNilKey             = "key must not be nil"
	msgNilValue           = "value must not be nil"
	msgComputeFailed      = "compute function failed"
	msgComputeNilValue    = "compute function returned no value"
	msgCancelled          = "wait for in-flight computation was cancelled"
	msgPanicRecovered     = "panic recovered in segcache operation"
)

// NewErrInvalidArgument reports a negative or otherwise disallowed
// numeric knob.
func NewErrInvalidArgument(knob string, value interface{}) error {
	return errors.NewWithContext(ErrCodeInvalidArgument, msgInvalidArgument, map[string]interface{}{
		"knob":  knob,
		"value": value,
	})
}

// NewErrInvalidState reports a builder knob being set a second time, or
// two knobs that cannot coexist (e.g. the legacy TTL alias used
// alongside an explicit expireAfterWrite/expireAfterAccess).
func NewErrInvalidState(knob string) error {
	return errors.NewWithField(ErrCodeInvalidState, msgInvalidState, "knob", knob)
}

// NewErrCapacityImpossible reports a configuration whose implied sizing
// (e.g. an auxiliary admission-sketch sizing) cannot be represented.
// Reserved for callers layering sizing helpers on top of the core; the
// core table itself never returns this.
func NewErrCapacityImpossible(reason string) error {
	return errors.NewWithField(ErrCodeCapacityImpossible, msgCapacityImpossible, "reason", reason)
}

// NewErrNilKey reports a nil/zero key passed to an operation that
// rejects one.
func NewErrNilKey(operation string) error {
	return errors.NewWithField(ErrCodeNilKey, msgNilKey, "operation", operation)
}

// NewErrNilValue reports a nil value passed to an operation that
// rejects one.
func NewErrNilValue(operation string) error {
	return errors.NewWithField(ErrCodeNilValue, msgNilValue, "operation", operation)
}

// NewErrComputeFailed wraps a user compute-function error exactly once.
// If cause is already a SEGCACHE_COMPUTE_FAILED error it is returned
// unchanged to avoid nested wrapping.
func NewErrComputeFailed(key interface{}, cause error) error {
	if errors.HasCode(cause, ErrCodeComputeFailed) {
		return cause
	}
	return errors.Wrap(cause, ErrCodeComputeFailed, msgComputeFailed).
		WithContext("key", fmt.Sprintf("%v", key))
}

// NewErrComputeNilValue reports a compute function that returned no
// error but also no usable value.
func NewErrComputeNilValue(key interface{}) error {
	return errors.NewWithField(ErrCodeComputeNilValue, msgComputeNilValue, "key", fmt.Sprintf("%v", key))
}

// NewErrCancelled reports a waiter's context being cancelled while
// blocked on another goroutine's in-flight computation. The computation
// itself is unaffected and keeps running for other waiters.
func NewErrCancelled(key interface{}, cause error) error {
	return errors.Wrap(cause, ErrCodeCancelled, msgCancelled).
		WithContext("key", fmt.Sprintf("%v", key)).
		AsRetryable()
}

// NewErrPanicRecovered reports a panic inside a user-supplied compute
// function that was recovered to keep the cache operational. A
// panicking removal listener is recovered and logged instead, without
// producing this error.
func NewErrPanicRecovered(operation string, panicValue interface{}) error {
	return errors.NewWithContext(ErrCodePanicRecovered, msgPanicRecovered, map[string]interface{}{
		"operation":   operation,
		"panic_value": fmt.Sprintf("%v", panicValue),
	}).WithSeverity("critical")
}

// IsComputeFailed reports whether err wraps a compute-function failure.
func IsComputeFailed(err error) bool {
	return errors.HasCode(err, ErrCodeComputeFailed)
}

// IsCancelled reports whether err is a cancelled-wait error.
func IsCancelled(err error) bool {
	return errors.HasCode(err, ErrCodeCancelled)
}

// IsInvalidState reports whether err is a builder invalid-state error.
func IsInvalidState(err error) bool {
	return errors.HasCode(err, ErrCodeInvalidState)
}

// IsNilKey reports whether err is a rejected-nil-key error.
func IsNilKey(err error) bool {
	return errors.HasCode(err, ErrCodeNilKey)
}

// IsNilValue reports whether err is a rejected-nil-value error.
func IsNilValue(err error) bool {
	return errors.HasCode(err, ErrCodeNilValue)
}

// IsRetryable reports whether the error can be retried.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var retryable errors.Retryable
	if goerrors.As(err, &retryable) {
		return retryable.IsRetryable()
	}
	return false
}

// GetErrorCode extracts the error code from err, or "" if err does not
// carry one.
func GetErrorCode(err error) errors.ErrorCode {
	if err == nil {
		return ""
	}
	var coder errors.ErrorCoder
	if goerrors.As(err, &coder) {
		return coder.ErrorCode()
	}
	return ""
}
