package http

import (
	"errors"
	"net"
	"net/url"
	"strings"
	"syscall"
)

// networkIndicators are substrings of transport failures that carry no
// structured response.
var networkIndicators = []string{
	"tls handshake timeout",
	"connection reset",
	"connection refused",
	"i/o timeout",
	"broken pipe",
	"no such host",
	"unexpected eof",
	"server closed idle connection",
	"network is unreachable",
}

// IsNetworkError reports whether err is a transport-level failure rather than
// a structured server response.
func IsNetworkError(err error) bool {
	if err == nil {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.EPIPE) {
		return true
	}

	errStr := strings.ToLower(err.Error())
	for _, indicator := range networkIndicators {
		if strings.Contains(errStr, indicator) {
			return true
		}
	}
	return false
}
