package transport

import (
	"context"
	"errors"
	"net"
	"net/url"
	"syscall"
	"testing"
)

type timeoutErr struct{ op string }

func (e timeoutErr) Error() string   { return e.op + " timed out" }
func (e timeoutErr) Timeout() bool   { return true }
func (e timeoutErr) Temporary() bool { return true }

func TestClassifyError_ContextCanceledIsFatal(t *testing.T) {
	if got := classifyError(context.Canceled); got != CauseFatal {
		t.Errorf("Expected fatal for cancellation, got %s", got)
	}
}

func TestClassifyError_DeadlineExceededIsRead(t *testing.T) {
	if got := classifyError(context.DeadlineExceeded); got != CauseRead {
		t.Errorf("Expected read cause for deadline, got %s", got)
	}
}

func TestClassifyError_DNSFailureIsConnect(t *testing.T) {
	err := &net.DNSError{Err: "no such host", Name: "platform.test"}
	if got := classifyError(err); got != CauseConnect {
		t.Errorf("Expected connect cause for DNS failure, got %s", got)
	}
}

func TestClassifyError_ConnectErrnos(t *testing.T) {
	for _, errno := range []syscall.Errno{
		syscall.ECONNREFUSED, syscall.EHOSTUNREACH, syscall.ENETUNREACH,
	} {
		wrapped := &net.OpError{Op: "dial", Err: errno}
		if got := classifyError(wrapped); got != CauseConnect {
			t.Errorf("Expected connect cause for %v, got %s", errno, got)
		}
	}
}

func TestClassifyError_ReadErrnos(t *testing.T) {
	for _, errno := range []syscall.Errno{syscall.ECONNRESET, syscall.EPIPE} {
		wrapped := &net.OpError{Op: "read", Err: errno}
		if got := classifyError(wrapped); got != CauseRead {
			t.Errorf("Expected read cause for %v, got %s", errno, got)
		}
	}
}

func TestClassifyError_DialTimeoutIsConnect(t *testing.T) {
	err := &net.OpError{Op: "dial", Err: timeoutErr{op: "dial"}}
	if got := classifyError(err); got != CauseConnect {
		t.Errorf("Expected connect cause for dial timeout, got %s", got)
	}
}

func TestClassifyError_ResponseTimeoutIsRead(t *testing.T) {
	err := &net.OpError{Op: "read", Err: timeoutErr{op: "read"}}
	if got := classifyError(err); got != CauseRead {
		t.Errorf("Expected read cause for response timeout, got %s", got)
	}
}

func TestClassifyError_URLErrorConnectionRefused(t *testing.T) {
	err := &url.Error{
		Op:  "Get",
		URL: "http://platform.test",
		Err: errors.New("connection refused"),
	}
	if got := classifyError(err); got != CauseConnect {
		t.Errorf("Expected connect cause, got %s", got)
	}
}

func TestClassifyError_UnknownIsFatal(t *testing.T) {
	if got := classifyError(errors.New("x509: certificate expired")); got != CauseFatal {
		t.Errorf("Expected fatal for unknown error, got %s", got)
	}
}
