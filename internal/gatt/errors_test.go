package gatt

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_IsMatchesByCode(t *testing.T) {
	err := statusError(KindRead, StatusReadNotPermitted)

	assert.True(t, errors.Is(err, ErrProtocolStatus))
	assert.False(t, errors.Is(err, ErrDisconnected))
	assert.Equal(t, ProtocolStatus, CodeOf(err))
	assert.Contains(t, err.Error(), "read not permitted")

	wrapped := fmt.Errorf("reading heart rate: %w", disconnectedError(StatusLinkLoss))
	assert.True(t, errors.Is(wrapped, ErrDisconnected))
	assert.Equal(t, Disconnected, CodeOf(wrapped))
	assert.Contains(t, wrapped.Error(), "link loss")
}

func TestError_UnwrapsCause(t *testing.T) {
	cause := errors.New("radio busy")
	err := rejected(KindWrite, cause)

	assert.True(t, errors.Is(err, ErrHardwareRejected))
	assert.True(t, errors.Is(err, cause), "the submit error MUST stay reachable")
	assert.Equal(t, "hardware_rejected: write submit failed: radio busy", err.Error())
}

func TestError_InconsistentLinkIsLinkHandleMissing(t *testing.T) {
	assert.True(t, errors.Is(ErrInconsistentLink, ErrLinkHandleMissing))
	assert.Equal(t, "link_handle_missing: link handle present but link is not connected", ErrInconsistentLink.Error())
}

func TestNotFoundError(t *testing.T) {
	tests := []struct {
		name string
		err  *NotFoundError
		msg  string
	}{
		{
			name: "service",
			err:  &NotFoundError{Resource: "service", UUIDs: []string{"180d"}},
			msg:  `service "180d" not found`,
		},
		{
			name: "characteristic",
			err:  &NotFoundError{Resource: "characteristic", UUIDs: []string{"180d", "2a37"}},
			msg:  `characteristic "2a37" not found in service "180d"`,
		},
		{
			name: "descriptor",
			err:  &NotFoundError{Resource: "descriptor", UUIDs: []string{"180d", "2a37", "2902"}},
			msg:  `descriptor "2902" not found in characteristic "2a37"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.msg, tt.err.Error())
			assert.True(t, errors.Is(tt.err, ErrAttributeNotFound))
			assert.Equal(t, AttributeNotFound, CodeOf(tt.err))
		})
	}
}

func TestCodeOf_ForeignError(t *testing.T) {
	assert.Equal(t, ErrorCode(""), CodeOf(errors.New("boom")))
	assert.Equal(t, ErrorCode(""), CodeOf(nil))
}

func TestStatus(t *testing.T) {
	assert.True(t, StatusSuccess.OK())
	assert.False(t, StatusFailure.OK())
	assert.True(t, StatusInsufficientAuthentication.RequiresAuthentication())
	assert.True(t, StatusInsufficientEncryption.RequiresAuthentication())
	assert.False(t, StatusInsufficientAuthorization.RequiresAuthentication())
	assert.Contains(t, Status(0x77).String(), "0x77")
}

func TestNormalizeUUID(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "180D", want: "180d"},
		{in: "0x2A37", want: "2a37"},
		{in: "0000180d-0000-1000-8000-00805f9b34fb", want: "180d"},
		{in: "6E400001-B5A3-F393-E0A9-E50E24DCCA9E", want: "6e400001b5a3f393e0a9e50e24dcca9e"},
		{in: "  2a19 ", want: "2a19"},
		{in: "{0000180d-0000-1000-8000-00805f9b34fb}", want: "180d"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeUUID(tt.in))
		})
	}
}
