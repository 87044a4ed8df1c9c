// Copyright (c) 2026 Amun AI AB
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

// Package hyphaerrors defines the error kinds exchanged between the
// workspace router, its transports, and the HTTP proxy.
package hyphaerrors

import (
	"bytes"
	"errors"
	"fmt"
)

// Newf returns a new Status.
//
// The Code should never be CodeOK, if it is, this will return nil.
func Newf(code Code, format string, args ...interface{}) *Status {
	if code == CodeOK {
		return nil
	}

	var err error
	if len(args) == 0 {
		err = errors.New(format)
	} else {
		err = fmt.Errorf(format, args...)
	}

	return &Status{
		code: code,
		err:  err,
	}
}

// FromError returns the Status for the provided error.
//
// If the error:
//   - is nil, return nil
//   - is a 'Status', return the 'Status'
//
// Otherwise, return a wrapped error with code 'CodeUnknown'.
func FromError(err error) *Status {
	if err == nil {
		return nil
	}

	var st *Status
	if errors.As(err, &st) {
		return st
	}

	// Extra wrapping ensures Unwrap works consistently across *Status
	// created by FromError and Newf.
	return &Status{
		code: CodeUnknown,
		err:  &wrapError{err: err},
	}
}

// IsStatus returns whether the provided error is a router error, including
// wrapped errors.
//
// This is false if the error is nil.
func IsStatus(err error) bool {
	var st *Status
	return errors.As(err, &st)
}

// Status represents a router error.
type Status struct {
	code Code
	err  error
}

// Code returns the error code for this Status.
func (s *Status) Code() Code {
	if s == nil {
		return CodeOK
	}
	return s.code
}

// Message returns the error message for this Status.
func (s *Status) Message() string {
	if s == nil {
		return ""
	}
	return s.err.Error()
}

// Error implements the error interface.
func (s *Status) Error() string {
	buffer := bytes.NewBuffer(nil)
	_, _ = buffer.WriteString(`code:`)
	_, _ = buffer.WriteString(s.code.String())
	if s.err != nil && s.err.Error() != "" {
		_, _ = buffer.WriteString(` message:`)
		_, _ = buffer.WriteString(s.err.Error())
	}
	return buffer.String()
}

// Unwrap supports errors.Unwrap.
func (s *Status) Unwrap() error {
	if s == nil {
		return nil
	}
	return errors.Unwrap(s.err)
}

// wrapError does what it says on the tin.
type wrapError struct {
	err error
}

func (e *wrapError) Error() string {
	if e == nil || e.err == nil {
		return ""
	}
	return e.err.Error()
}

func (e *wrapError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.err
}

// InvalidTokenErrorf returns a new Status with code CodeInvalidToken
// by calling Newf(CodeInvalidToken, format, args...).
func InvalidTokenErrorf(format string, args ...interface{}) error {
	return Newf(CodeInvalidToken, format, args...)
}

// ExpiredTokenErrorf returns a new Status with code CodeExpiredToken
// by calling Newf(CodeExpiredToken, format, args...).
func ExpiredTokenErrorf(format string, args ...interface{}) error {
	return Newf(CodeExpiredToken, format, args...)
}

// InsufficientScopeErrorf returns a new Status with code CodeInsufficientScope
// by calling Newf(CodeInsufficientScope, format, args...).
func InsufficientScopeErrorf(format string, args ...interface{}) error {
	return Newf(CodeInsufficientScope, format, args...)
}

// WorkspaceRequiredErrorf returns a new Status with code CodeWorkspaceRequired
// by calling Newf(CodeWorkspaceRequired, format, args...).
func WorkspaceRequiredErrorf(format string, args ...interface{}) error {
	return Newf(CodeWorkspaceRequired, format, args...)
}

// WorkspaceForbiddenErrorf returns a new Status with code CodeWorkspaceForbidden
// by calling Newf(CodeWorkspaceForbidden, format, args...).
func WorkspaceForbiddenErrorf(format string, args ...interface{}) error {
	return Newf(CodeWorkspaceForbidden, format, args...)
}

// ClientIDInUseErrorf returns a new Status with code CodeClientIDInUse
// by calling Newf(CodeClientIDInUse, format, args...).
func ClientIDInUseErrorf(format string, args ...interface{}) error {
	return Newf(CodeClientIDInUse, format, args...)
}

// ServiceIDInUseErrorf returns a new Status with code CodeServiceIDInUse
// by calling Newf(CodeServiceIDInUse, format, args...).
func ServiceIDInUseErrorf(format string, args ...interface{}) error {
	return Newf(CodeServiceIDInUse, format, args...)
}

// ServiceNotFoundErrorf returns a new Status with code CodeServiceNotFound
// by calling Newf(CodeServiceNotFound, format, args...).
func ServiceNotFoundErrorf(format string, args ...interface{}) error {
	return Newf(CodeServiceNotFound, format, args...)
}

// FunctionNotFoundErrorf returns a new Status with code CodeFunctionNotFound
// by calling Newf(CodeFunctionNotFound, format, args...).
func FunctionNotFoundErrorf(format string, args ...interface{}) error {
	return Newf(CodeFunctionNotFound, format, args...)
}

// RecipientUnknownErrorf returns a new Status with code CodeRecipientUnknown
// by calling Newf(CodeRecipientUnknown, format, args...).
func RecipientUnknownErrorf(format string, args ...interface{}) error {
	return Newf(CodeRecipientUnknown, format, args...)
}

// TransportClosedErrorf returns a new Status with code CodeTransportClosed
// by calling Newf(CodeTransportClosed, format, args...).
func TransportClosedErrorf(format string, args ...interface{}) error {
	return Newf(CodeTransportClosed, format, args...)
}

// RequestTimeoutErrorf returns a new Status with code CodeRequestTimeout
// by calling Newf(CodeRequestTimeout, format, args...).
func RequestTimeoutErrorf(format string, args ...interface{}) error {
	return Newf(CodeRequestTimeout, format, args...)
}

// BackpressureDropErrorf returns a new Status with code CodeBackpressureDrop
// by calling Newf(CodeBackpressureDrop, format, args...).
func BackpressureDropErrorf(format string, args ...interface{}) error {
	return Newf(CodeBackpressureDrop, format, args...)
}

// StoreUnavailableErrorf returns a new Status with code CodeStoreUnavailable
// by calling Newf(CodeStoreUnavailable, format, args...).
func StoreUnavailableErrorf(format string, args ...interface{}) error {
	return Newf(CodeStoreUnavailable, format, args...)
}

// MalformedFrameErrorf returns a new Status with code CodeMalformedFrame
// by calling Newf(CodeMalformedFrame, format, args...).
func MalformedFrameErrorf(format string, args ...interface{}) error {
	return Newf(CodeMalformedFrame, format, args...)
}

// ServiceErrorf returns a new Status with code CodeServiceError
// by calling Newf(CodeServiceError, format, args...).
func ServiceErrorf(format string, args ...interface{}) error {
	return Newf(CodeServiceError, format, args...)
}

// InvalidArgumentErrorf returns a new Status with code CodeInvalidArgument
// by calling Newf(CodeInvalidArgument, format, args...).
func InvalidArgumentErrorf(format string, args ...interface{}) error {
	return Newf(CodeInvalidArgument, format, args...)
}

// InternalErrorf returns a new Status with code CodeInternal
// by calling Newf(CodeInternal, format, args...).
func InternalErrorf(format string, args ...interface{}) error {
	return Newf(CodeInternal, format, args...)
}

// UnknownErrorf returns a new Status with code CodeUnknown
// by calling Newf(CodeUnknown, format, args...).
func UnknownErrorf(format string, args ...interface{}) error {
	return Newf(CodeUnknown, format, args...)
}

// IsInvalidToken returns true if FromError(err).Code() == CodeInvalidToken.
func IsInvalidToken(err error) bool {
	return FromError(err).Code() == CodeInvalidToken
}

// IsExpiredToken returns true if FromError(err).Code() == CodeExpiredToken.
func IsExpiredToken(err error) bool {
	return FromError(err).Code() == CodeExpiredToken
}

// IsInsufficientScope returns true if FromError(err).Code() == CodeInsufficientScope.
func IsInsufficientScope(err error) bool {
	return FromError(err).Code() == CodeInsufficientScope
}

// IsWorkspaceRequired returns true if FromError(err).Code() == CodeWorkspaceRequired.
func IsWorkspaceRequired(err error) bool {
	return FromError(err).Code() == CodeWorkspaceRequired
}

// IsWorkspaceForbidden returns true if FromError(err).Code() == CodeWorkspaceForbidden.
func IsWorkspaceForbidden(err error) bool {
	return FromError(err).Code() == CodeWorkspaceForbidden
}

// IsClientIDInUse returns true if FromError(err).Code() == CodeClientIDInUse.
func IsClientIDInUse(err error) bool {
	return FromError(err).Code() == CodeClientIDInUse
}

// IsServiceIDInUse returns true if FromError(err).Code() == CodeServiceIDInUse.
func IsServiceIDInUse(err error) bool {
	return FromError(err).Code() == CodeServiceIDInUse
}

// IsServiceNotFound returns true if FromError(err).Code() == CodeServiceNotFound.
func IsServiceNotFound(err error) bool {
	return FromError(err).Code() == CodeServiceNotFound
}

// IsFunctionNotFound returns true if FromError(err).Code() == CodeFunctionNotFound.
func IsFunctionNotFound(err error) bool {
	return FromError(err).Code() == CodeFunctionNotFound
}

// IsRecipientUnknown returns true if FromError(err).Code() == CodeRecipientUnknown.
func IsRecipientUnknown(err error) bool {
	return FromError(err).Code() == CodeRecipientUnknown
}

// IsTransportClosed returns true if FromError(err).Code() == CodeTransportClosed.
func IsTransportClosed(err error) bool {
	return FromError(err).Code() == CodeTransportClosed
}

// IsRequestTimeout returns true if FromError(err).Code() == CodeRequestTimeout.
func IsRequestTimeout(err error) bool {
	return FromError(err).Code() == CodeRequestTimeout
}

// IsBackpressureDrop returns true if FromError(err).Code() == CodeBackpressureDrop.
func IsBackpressureDrop(err error) bool {
	return FromError(err).Code() == CodeBackpressureDrop
}

// IsStoreUnavailable returns true if FromError(err).Code() == CodeStoreUnavailable.
func IsStoreUnavailable(err error) bool {
	return FromError(err).Code() == CodeStoreUnavailable
}

// IsMalformedFrame returns true if FromError(err).Code() == CodeMalformedFrame.
func IsMalformedFrame(err error) bool {
	return FromError(err).Code() == CodeMalformedFrame
}

// IsServiceError returns true if FromError(err).Code() == CodeServiceError.
func IsServiceError(err error) bool {
	return FromError(err).Code() == CodeServiceError
}

// IsInvalidArgument returns true if FromError(err).Code() == CodeInvalidArgument.
func IsInvalidArgument(err error) bool {
	return FromError(err).Code() == CodeInvalidArgument
}

// IsInternal returns true if FromError(err).Code() == CodeInternal.
func IsInternal(err error) bool {
	return FromError(err).Code() == CodeInternal
}
