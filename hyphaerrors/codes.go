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

package hyphaerrors

import (
	"fmt"
	"net/http"
	"strconv"
)

const (
	// CodeOK means no error; returned on success.
	CodeOK Code = 0

	// CodeUnknown means an unknown error. Errors raised by APIs that do not
	// return enough error information may be converted to this error.
	CodeUnknown Code = 1

	// CodeInvalidToken means a bearer token failed signature or structural
	// validation.
	CodeInvalidToken Code = 2

	// CodeExpiredToken means a bearer token was well-formed but past its
	// expiry.
	CodeExpiredToken Code = 3

	// CodeInsufficientScope means the caller's token lacks the scope or role
	// required for the operation.
	CodeInsufficientScope Code = 4

	// CodeWorkspaceRequired means no workspace was requested and none could
	// be derived for the caller.
	CodeWorkspaceRequired Code = 5

	// CodeWorkspaceForbidden means the caller requested a workspace it may
	// not join or act in.
	CodeWorkspaceForbidden Code = 6

	// CodeClientIDInUse means the requested client id is already connected
	// in the target workspace.
	CodeClientIDInUse Code = 7

	// CodeServiceIDInUse means a service with the same id is already
	// registered by the same owner and overwrite was not requested.
	CodeServiceIDInUse Code = 8

	// CodeServiceNotFound means no visible service matched the lookup.
	CodeServiceNotFound Code = 9

	// CodeFunctionNotFound means the service exists but has no such member.
	CodeFunctionNotFound Code = 10

	// CodeRecipientUnknown means a frame was addressed to a client that is
	// neither local nor known to the cluster.
	CodeRecipientUnknown Code = 11

	// CodeTransportClosed means a send was attempted on a transport that is
	// no longer open.
	CodeTransportClosed Code = 12

	// CodeRequestTimeout means a pending reply was not received within the
	// configured method timeout.
	CodeRequestTimeout Code = 13

	// CodeBackpressureDrop means a frame was dropped because the recipient's
	// outbound queue was over its high-water mark.
	CodeBackpressureDrop Code = 14

	// CodeStoreUnavailable means the cluster coordination store could not be
	// reached.
	CodeStoreUnavailable Code = 15

	// CodeMalformedFrame means inbound bytes were not a routable frame.
	CodeMalformedFrame Code = 16

	// CodeServiceError means a service's own callable raised; the router
	// itself is healthy.
	CodeServiceError Code = 17

	// CodeInvalidArgument means the caller supplied arguments that are
	// invalid regardless of system state.
	CodeInvalidArgument Code = 18

	// CodeInternal means an invariant expected by the router was broken.
	CodeInternal Code = 19
)

// Code represents the type of error for the workspace router.
//
// The zero value is CodeOK.
type Code int

var (
	_codeToString = map[Code]string{
		CodeOK:                 "ok",
		CodeUnknown:            "unknown",
		CodeInvalidToken:       "invalid-token",
		CodeExpiredToken:       "expired-token",
		CodeInsufficientScope:  "insufficient-scope",
		CodeWorkspaceRequired:  "workspace-required",
		CodeWorkspaceForbidden: "workspace-forbidden",
		CodeClientIDInUse:      "client-id-in-use",
		CodeServiceIDInUse:     "service-id-in-use",
		CodeServiceNotFound:    "service-not-found",
		CodeFunctionNotFound:   "function-not-found",
		CodeRecipientUnknown:   "recipient-unknown",
		CodeTransportClosed:    "transport-closed",
		CodeRequestTimeout:     "request-timeout",
		CodeBackpressureDrop:   "backpressure-drop",
		CodeStoreUnavailable:   "store-unavailable",
		CodeMalformedFrame:     "malformed-frame",
		CodeServiceError:       "service-error",
		CodeInvalidArgument:    "invalid-argument",
		CodeInternal:           "internal",
	}
	_stringToCode = map[string]Code{
		"ok":                  CodeOK,
		"unknown":             CodeUnknown,
		"invalid-token":       CodeInvalidToken,
		"expired-token":       CodeExpiredToken,
		"insufficient-scope":  CodeInsufficientScope,
		"workspace-required":  CodeWorkspaceRequired,
		"workspace-forbidden": CodeWorkspaceForbidden,
		"client-id-in-use":    CodeClientIDInUse,
		"service-id-in-use":   CodeServiceIDInUse,
		"service-not-found":   CodeServiceNotFound,
		"function-not-found":  CodeFunctionNotFound,
		"recipient-unknown":   CodeRecipientUnknown,
		"transport-closed":    CodeTransportClosed,
		"request-timeout":     CodeRequestTimeout,
		"backpressure-drop":   CodeBackpressureDrop,
		"store-unavailable":   CodeStoreUnavailable,
		"malformed-frame":     CodeMalformedFrame,
		"service-error":       CodeServiceError,
		"invalid-argument":    CodeInvalidArgument,
		"internal":            CodeInternal,
	}
	_codeToHTTPStatus = map[Code]int{
		CodeOK:                 http.StatusOK,
		CodeUnknown:            http.StatusInternalServerError,
		CodeInvalidToken:       http.StatusUnauthorized,
		CodeExpiredToken:       http.StatusUnauthorized,
		CodeInsufficientScope:  http.StatusForbidden,
		CodeWorkspaceRequired:  http.StatusBadRequest,
		CodeWorkspaceForbidden: http.StatusForbidden,
		CodeClientIDInUse:      http.StatusConflict,
		CodeServiceIDInUse:     http.StatusConflict,
		CodeServiceNotFound:    http.StatusNotFound,
		CodeFunctionNotFound:   http.StatusNotFound,
		CodeRecipientUnknown:   http.StatusNotFound,
		CodeTransportClosed:    http.StatusBadGateway,
		CodeRequestTimeout:     http.StatusRequestTimeout,
		CodeBackpressureDrop:   http.StatusTooManyRequests,
		CodeStoreUnavailable:   http.StatusServiceUnavailable,
		CodeMalformedFrame:     http.StatusBadRequest,
		CodeServiceError:       http.StatusInternalServerError,
		CodeInvalidArgument:    http.StatusBadRequest,
		CodeInternal:           http.StatusInternalServerError,
	}
)

// String returns the string representation of the Code.
//
// This is the lowercase dashed name used on the wire, in close reasons, and
// in HTTP error bodies.
func (c Code) String() string {
	s, ok := _codeToString[c]
	if ok {
		return s
	}
	return strconv.Itoa(int(c))
}

// HTTPStatus returns the HTTP status code the proxy reports for this Code.
func (c Code) HTTPStatus() int {
	if s, ok := _codeToHTTPStatus[c]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// MarshalText implements encoding.TextMarshaler.
func (c Code) MarshalText() ([]byte, error) {
	s, ok := _codeToString[c]
	if !ok {
		return nil, fmt.Errorf("unknown code: %d", c)
	}
	return []byte(s), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Code) UnmarshalText(text []byte) error {
	i, ok := _stringToCode[string(text)]
	if !ok {
		return fmt.Errorf("unknown code string: %s", string(text))
	}
	*c = i
	return nil
}
