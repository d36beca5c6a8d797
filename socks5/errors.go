package socks5

import (
	"errors"
	"fmt"
)

// Error kinds. Every handshake failure satisfies errors.Is for exactly one
// of these (refinements below wrap a kind).
var (
	ErrUnsupportedVersion   = errors.New("socks5: unsupported version")
	ErrMalformedAddress     = errors.New("socks5: malformed address")
	ErrMalformedLength      = errors.New("socks5: malformed length")
	ErrTruncatedFrame       = errors.New("socks5: truncated frame")
	ErrUnsupportedCommand   = errors.New("socks5: unsupported command")
	ErrNoAcceptableMethod   = errors.New("socks5: no acceptable authentication method")
	ErrAuthenticationFailed = errors.New("socks5: authentication failed")
	ErrExecutionFailed      = errors.New("socks5: command execution failed")
)

// Refinements of the error kinds.
var (
	ErrUnsupportedAddrType = fmt.Errorf("%w: unsupported address type", ErrMalformedAddress)
	ErrInvalidReserved     = fmt.Errorf("%w: reserved byte must be 0x00", ErrMalformedLength)
	ErrInvalidReplyCode    = errors.New("socks5: reply code outside 0x00-0x08")
)

// ExecutionError reports a CommandExecutor failure together with the reply
// code sent to the client.
type ExecutionError struct {
	Code ReplyCode
	Err  error
}

// NewExecutionError returns an ExecutionError for code wrapping err (may be nil).
func NewExecutionError(code ReplyCode, err error) *ExecutionError {
	return &ExecutionError{Code: code, Err: err}
}

func (e *ExecutionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("socks5: command execution failed (%s): %v", e.Code, e.Err)
	}
	return fmt.Sprintf("socks5: command execution failed (%s)", e.Code)
}

// Unwrap exposes ErrExecutionFailed and the underlying cause.
func (e *ExecutionError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrExecutionFailed}
	}
	return []error{ErrExecutionFailed, e.Err}
}

func versionError(got, want byte) error {
	return fmt.Errorf("%w: got %d, want %d", ErrUnsupportedVersion, got, want)
}

// replyCodeFor picks the reply code for an executor error. Unknown errors and
// errors claiming success become RepGeneralFailure.
func replyCodeFor(err error) ReplyCode {
	var ee *ExecutionError
	if errors.As(err, &ee) && ee.Code != RepSuccess && ee.Code.Valid() {
		return ee.Code
	}
	return RepGeneralFailure
}
