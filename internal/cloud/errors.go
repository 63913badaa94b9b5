package cloud

import (
	"errors"
	"fmt"
	nethttp "net/http"
	"strings"

	"github.com/rescale/rescale-upload/internal/api"
)

// Common backend errors
var (
	// ErrQuotaExceeded indicates the storage target has no space left.
	ErrQuotaExceeded = errors.New("storage quota exceeded")
	// ErrInvalidName indicates a file or directory name the backend cannot store.
	ErrInvalidName = errors.New("invalid name")
)

// statusCoder is implemented by SDK response errors (aws-sdk-go-v2 ResponseError).
type statusCoder interface {
	HTTPStatusCode() int
}

// QuotaError wraps a backend error that means the account is full.
func QuotaError(err error) error {
	if err == nil || errors.Is(err, ErrQuotaExceeded) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrQuotaExceeded, err)
}

// IsQuotaError checks if an error indicates the storage quota is exhausted.
//
// Backends are expected to wrap quota failures with QuotaError; this also
// recognises drive API quota responses and HTTP 507 from any SDK error.
func IsQuotaError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrQuotaExceeded) || api.IsQuotaError(err) {
		return true
	}

	var sc statusCoder
	if errors.As(err, &sc) && sc.HTTPStatusCode() == nethttp.StatusInsufficientStorage {
		return true
	}
	return false
}

// ValidateName rejects names that cannot be a single path segment.
func ValidateName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, "/\x00") {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}
