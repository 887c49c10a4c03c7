// Package platform is the session and synchronization client for the health
// data service: authentication, request dispatch with error classification,
// dataset resolution, and the batch upload/delete pipeline.
package platform

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors forming the closed error taxonomy. Every error returned by
// this package matches exactly one of them; use errors.Is to check, or Kind
// to reduce an error to its sentinel.
var (
	ErrNetwork           = errors.New("platform: network error")
	ErrOffline           = errors.New("platform: offline")
	ErrNotLoggedIn       = errors.New("platform: not logged in")
	ErrAlreadyLoggedIn   = errors.New("platform: already logged in")
	ErrUnauthorized      = errors.New("platform: unauthorized")
	ErrBadRequest        = errors.New("platform: bad request")
	ErrDataNotFound      = errors.New("platform: data not found")
	ErrServiceError      = errors.New("platform: service error")
	ErrBadLoginResponse  = errors.New("platform: bad login response")
	ErrNoUploadID        = errors.New("platform: dataset has no upload id")
	ErrNoDataInResponse  = errors.New("platform: no data in response")
	ErrBadJSONInResponse = errors.New("platform: bad JSON in response")
	ErrInternal          = errors.New("platform: internal error")
	ErrTransportReset    = errors.New("platform: transport reset")
)

var taxonomy = []error{
	ErrNetwork,
	ErrOffline,
	ErrNotLoggedIn,
	ErrAlreadyLoggedIn,
	ErrUnauthorized,
	ErrBadRequest,
	ErrDataNotFound,
	ErrServiceError,
	ErrBadLoginResponse,
	ErrNoUploadID,
	ErrNoDataInResponse,
	ErrBadJSONInResponse,
	ErrInternal,
	ErrTransportReset,
}

// Kind returns the taxonomy sentinel err matches, or nil if err is nil or
// did not originate in this package.
func Kind(err error) error {
	if err == nil {
		return nil
	}

	for _, sentinel := range taxonomy {
		if errors.Is(err, sentinel) {
			return sentinel
		}
	}

	return nil
}

// APIError wraps a sentinel with the HTTP status, response body, and the
// underlying cause (transport error, JSON error) when there is one.
type APIError struct {
	StatusCode int    // 0 when no response was received
	Message    string // short description, e.g. for ErrBadLoginResponse
	Body       []byte
	Cause      error
	Err        error // sentinel, for errors.Is()
}

func (e *APIError) Error() string {
	msg := e.Err.Error()

	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (HTTP %d)", msg, e.StatusCode)
	}

	if e.Message != "" {
		msg += ": " + e.Message
	}

	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}

	return msg
}

func (e *APIError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Err}
	}

	return []error{e.Err, e.Cause}
}

// BadRequestError is returned for HTTP 400. Indices holds the 0-based
// positions of rejected batch items when they could be determined; nil means
// the failing items are unknown (an empty, non-nil slice is never returned).
type BadRequestError struct {
	Indices []int
	Body    []byte
}

func (e *BadRequestError) Error() string {
	if e.Indices == nil {
		return fmt.Sprintf("%s (HTTP 400): %s", ErrBadRequest, truncateBody(e.Body))
	}

	return fmt.Sprintf("%s (HTTP 400): rejected items %v", ErrBadRequest, e.Indices)
}

func (e *BadRequestError) Unwrap() error {
	return ErrBadRequest
}

// UserFetchError is returned by Refresh when the token was re-issued but the
// follow-up identity fetch failed. The refreshed session is still valid.
type UserFetchError struct {
	Err error
}

func (e *UserFetchError) Error() string {
	return fmt.Sprintf("platform: fetching user after refresh: %v", e.Err)
}

func (e *UserFetchError) Unwrap() error {
	return e.Err
}

// RejectedIndices returns the rejected batch positions carried by a 400
// error, or nil.
func RejectedIndices(err error) []int {
	var bre *BadRequestError
	if errors.As(err, &bre) {
		return bre.Indices
	}

	return nil
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var bre *BadRequestError
	if errors.As(err, &bre) {
		return http.StatusBadRequest
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}

	return 0
}

// classifyStatus maps a non-2xx HTTP status to a taxonomy error. The body
// is retained on every error so callers can inspect it.
func classifyStatus(code int, body []byte) error {
	switch code {
	case http.StatusBadRequest:
		return &BadRequestError{Body: body}
	case http.StatusUnauthorized:
		return &APIError{StatusCode: code, Body: body, Err: ErrUnauthorized}
	case http.StatusNotFound:
		return &APIError{StatusCode: code, Body: body, Err: ErrDataNotFound}
	default:
		return &APIError{StatusCode: code, Body: body, Err: ErrServiceError}
	}
}

const maxErrorBody = 256

func truncateBody(body []byte) string {
	if len(body) > maxErrorBody {
		return string(body[:maxErrorBody]) + "..."
	}

	return string(body)
}
