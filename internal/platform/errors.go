package platform

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"syscall"
)

var (
	// ErrGroupNotFound is returned when the group does not exist or is not reachable by the bot.
	ErrGroupNotFound = errors.New("group not found")
	// ErrMemberNotFound is returned when the user is not a member of the group.
	ErrMemberNotFound = errors.New("member not found")
	// ErrRoleNotFound is returned when the role does not exist in the group.
	ErrRoleNotFound = errors.New("role not found")
)

// NetworkError marks a transient transport failure worth retrying.
type NetworkError struct {
	Code string
	Err  error
}

func (e *NetworkError) Error() string {
	if e.Code == "" {
		return "network: " + e.Err.Error()
	}

	return "network " + e.Code + ": " + e.Err.Error()
}

func (e *NetworkError) Unwrap() error { return e.Err }

// IsNotFound reports whether err is one of the not found sentinels.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrGroupNotFound) ||
		errors.Is(err, ErrMemberNotFound) ||
		errors.Is(err, ErrRoleNotFound)
}

var networkMessages = []string{
	"econnreset",
	"network",
	"socket hang up",
	"fetch failed",
	"read timeout",
	"connection reset",
	"connection refused",
	"broken pipe",
	"i/o timeout",
}

// IsNetworkError reports whether err is a transient transport failure.
func IsNetworkError(err error) bool {
	if err == nil || IsNotFound(err) || errors.Is(err, context.Canceled) {
		return false
	}

	var ne *NetworkError
	if errors.As(err, &ne) {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ETIMEDOUT) || errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, m := range networkMessages {
		if strings.Contains(msg, m) {
			return true
		}
	}

	return false
}
