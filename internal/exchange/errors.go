package exchange

import (
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"syscall"

	"github.com/adshao/go-binance/v2/common"
)

// Exchange error codes that indicate a transient condition.
const (
	CodeUnknown          int64 = -1000
	CodeDisconnected     int64 = -1001
	CodeTooManyRequests  int64 = -1003
	CodeTimeout          int64 = -1007
	CodeTransportFailure int64 = 0
)

var retryableCodes = map[int64]bool{
	CodeUnknown:         true,
	CodeDisconnected:    true,
	CodeTooManyRequests: true,
	CodeTimeout:         true,
}

// Error is a classified failure from the exchange or the transport under it.
type Error struct {
	Op        string // gateway operation, e.g. "MarketBuy"
	Code      int64  // exchange error code, 0 for transport failures
	Message   string
	Retryable bool
	Cause     error
}

func (e *Error) Error() string {
	if e.Code != CodeTransportFailure {
		return fmt.Sprintf("exchange %s: code %d: %s", e.Op, e.Code, e.Message)
	}
	return fmt.Sprintf("exchange %s: %s", e.Op, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// IsRetryable reports whether err is worth retrying. Only classified
// exchange errors are; anything else is treated as permanent.
func IsRetryable(err error) bool {
	var ee *Error
	if errors.As(err, &ee) {
		return ee.Retryable
	}
	return false
}

// NewAPIError builds an Error for an exchange response code.
func NewAPIError(op string, code int64, msg string) *Error {
	return &Error{Op: op, Code: code, Message: msg, Retryable: retryableCodes[code]}
}

// Classify wraps a raw client error into an *Error. API errors keep their
// code; network timeouts and connection resets are marked retryable.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var ee *Error
	if errors.As(err, &ee) {
		return err
	}

	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		e := NewAPIError(op, apiErr.Code, apiErr.Message)
		e.Cause = err
		return e
	}

	return &Error{
		Op:        op,
		Code:      CodeTransportFailure,
		Message:   err.Error(),
		Retryable: isTransient(err),
		Cause:     err,
	}
}

func isTransient(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	return strings.Contains(err.Error(), "connection reset")
}
