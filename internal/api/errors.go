// Package api provides error types for drive API responses.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	nethttp "net/http"
	"strings"

	"github.com/rescale/rescale-upload/internal/models"
)

// ErrQuotaExceeded indicates the account has no storage left.
var ErrQuotaExceeded = errors.New("storage quota exceeded")

// maxErrorBody caps how much of a failure body is kept for messages.
const maxErrorBody = 4096

// quotaCodes are the structured error codes the API uses for a full account.
var quotaCodes = map[string]bool{
	"quota_exceeded":         true,
	"storage_quota_exceeded": true,
	"insufficient_storage":   true,
	"storage_limit_reached":  true,
}

// quotaIndicators are message fragments meaning the same thing when no code is sent.
var quotaIndicators = []string{
	"quota exceeded",
	"storage quota",
	"storage limit",
	"insufficient storage",
	"not enough storage",
}

// APIError is a structured failure response from the API.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("API request failed with status %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("API request failed with status %d: %s", e.StatusCode, e.Message)
}

// Is lets errors.Is(err, ErrQuotaExceeded) match quota responses.
func (e *APIError) Is(target error) bool {
	return target == ErrQuotaExceeded && e.isQuota()
}

func (e *APIError) isQuota() bool {
	if e.StatusCode == nethttp.StatusInsufficientStorage {
		return true
	}
	if quotaCodes[strings.ToLower(e.Code)] {
		return true
	}
	msg := strings.ToLower(e.Message)
	for _, indicator := range quotaIndicators {
		if strings.Contains(msg, indicator) {
			return true
		}
	}
	return false
}

// newAPIError reads a failure response body into an APIError.
func newAPIError(resp *nethttp.Response) *APIError {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	apiErr := &APIError{
		StatusCode: resp.StatusCode,
		Message:    strings.TrimSpace(string(raw)),
	}

	var body models.APIErrorBody
	if err := json.Unmarshal(raw, &body); err == nil {
		apiErr.Code = body.Code
		switch {
		case body.Detail != "":
			apiErr.Message = body.Detail
		case body.Error != "":
			apiErr.Message = body.Error
		}
	}
	if apiErr.Message == "" {
		apiErr.Message = nethttp.StatusText(resp.StatusCode)
	}
	return apiErr
}

// IsQuotaError checks if an error indicates the storage quota is exhausted.
//
// Detected from:
//  1. Wrapped ErrQuotaExceeded
//  2. HTTP 507 Insufficient Storage
//  3. A quota error code in the response body
//  4. Error messages containing quota indicators
func IsQuotaError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrQuotaExceeded) {
		return true
	}

	errStr := strings.ToLower(err.Error())
	for _, indicator := range quotaIndicators {
		if strings.Contains(errStr, indicator) {
			return true
		}
	}
	return false
}

// StatusCode returns the HTTP status of an API error, or 0.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}
