package gatt

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode identifies the failure domain of an Error
type ErrorCode string

const (
	NotConnected           ErrorCode = "not_connected"
	LinkHandleMissing      ErrorCode = "link_handle_missing"
	AttributeNotFound      ErrorCode = "attribute_not_found"
	AuthenticationRequired ErrorCode = "authentication_required"
	HardwareRejected       ErrorCode = "hardware_rejected"
	ProtocolStatus         ErrorCode = "protocol_status"
	Disconnected           ErrorCode = "disconnected"
	Cancelled              ErrorCode = "cancelled"
	AlreadyConnected       ErrorCode = "already_connected"
	Unsupported            ErrorCode = "unsupported"
	StillConnected         ErrorCode = "still_connected"
	Closed                 ErrorCode = "closed"
)

// Error is the error type delivered to every continuation.
// Two Errors match under errors.Is when their codes are equal.
type Error struct {
	Code   ErrorCode
	Msg    string
	Status Status // hardware status, meaningful for protocol_status and disconnected
	Err    error  // underlying cause, optional
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}

	var b strings.Builder
	b.WriteString(string(e.Code))
	if e.Msg != "" {
		b.WriteString(": ")
		b.WriteString(e.Msg)
	}
	if e.Code == ProtocolStatus || (e.Code == Disconnected && e.Status != StatusSuccess) {
		fmt.Fprintf(&b, " (status %s)", e.Status)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Is allows errors.Is to compare Error values by Code
func (e *Error) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Predefined sentinel errors, compare with errors.Is
var (
	ErrNotConnected           = &Error{Code: NotConnected}
	ErrLinkHandleMissing      = &Error{Code: LinkHandleMissing}
	ErrAttributeNotFound      = &Error{Code: AttributeNotFound}
	ErrAuthenticationRequired = &Error{Code: AuthenticationRequired}
	ErrHardwareRejected       = &Error{Code: HardwareRejected}
	ErrProtocolStatus         = &Error{Code: ProtocolStatus}
	ErrDisconnected           = &Error{Code: Disconnected}
	ErrCancelled              = &Error{Code: Cancelled}
	ErrAlreadyConnected       = &Error{Code: AlreadyConnected}
	ErrUnsupported            = &Error{Code: Unsupported}
	ErrStillConnected         = &Error{Code: StillConnected}
	ErrClosed                 = &Error{Code: Closed}

	// ErrInconsistentLink is reported by Connect when a link handle survived
	// without the link being marked connected.
	ErrInconsistentLink = &Error{Code: LinkHandleMissing, Msg: "link handle present but link is not connected"}
)

// NotFoundError represents a missing service, characteristic or descriptor.
// It matches ErrAttributeNotFound under errors.Is.
type NotFoundError struct {
	Resource string   // "service", "characteristic", "descriptor"
	UUIDs    []string // parent first, e.g. [serviceUUID, charUUID]
}

func (e *NotFoundError) Error() string {
	if len(e.UUIDs) == 0 {
		return fmt.Sprintf("%s not found", e.Resource)
	}
	if len(e.UUIDs) == 1 {
		return fmt.Sprintf("%s %q not found", e.Resource, e.UUIDs[0])
	}
	parentResource := "service"
	if e.Resource == "descriptor" {
		parentResource = "characteristic"
	}
	return fmt.Sprintf("%s %q not found in %s %q", e.Resource, e.UUIDs[len(e.UUIDs)-1], parentResource, e.UUIDs[len(e.UUIDs)-2])
}

func (e *NotFoundError) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == AttributeNotFound
}

func newError(code ErrorCode, format string, args ...interface{}) *Error {
	return &Error{Code: code, Msg: fmt.Sprintf(format, args...)}
}

func rejected(op Kind, err error) *Error {
	return &Error{Code: HardwareRejected, Msg: fmt.Sprintf("%s submit failed", op), Err: err}
}

func statusError(op Kind, status Status) *Error {
	return &Error{Code: ProtocolStatus, Msg: fmt.Sprintf("%s failed", op), Status: status}
}

func disconnectedError(status Status) *Error {
	return &Error{Code: Disconnected, Msg: "link lost", Status: status}
}

// CodeOf returns the ErrorCode carried by err, or "" when err is not an Error
func CodeOf(err error) ErrorCode {
	var gerr *Error
	if errors.As(err, &gerr) {
		return gerr.Code
	}
	var nf *NotFoundError
	if errors.As(err, &nf) {
		return AttributeNotFound
	}
	return ""
}
