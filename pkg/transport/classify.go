package transport

import (
	"context"
	"errors"
	"net"
	"net/url"
	"strings"
	"syscall"
)

// classifyError maps a transport-level error to a retry cause. Connect
// failures (server unreachable) and read failures (server accepted the
// connection but the response never arrived) are retried independently,
// each against its own ceiling; anything else is terminal.
func classifyError(err error) FailureCause {
	if err == nil {
		return CauseFatal
	}

	// Context cancellation is the caller's decision, never retried.
	if errors.Is(err, context.Canceled) {
		return CauseFatal
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return CauseRead
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return CauseConnect
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.EHOSTUNREACH) ||
		errors.Is(err, syscall.ENETUNREACH) {
		return CauseConnect
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EPIPE) {
		return CauseRead
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		// A dial timeout is a connect failure; any other timeout means the
		// server went quiet after accepting the connection.
		var opErr *net.OpError
		if errors.As(err, &opErr) && opErr.Op == "dial" {
			return CauseConnect
		}
		return CauseRead
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) && strings.Contains(urlErr.Err.Error(), "connection refused") {
		return CauseConnect
	}

	return CauseFatal
}
