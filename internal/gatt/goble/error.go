package goble

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-ble/ble"
	"github.com/srg/gattq/internal/gatt"
)

// ErrBluetoothOff is returned when the host adapter is powered down
var ErrBluetoothOff = errors.New("bluetooth is turned off")

// NormalizeError maps known go-ble error strings to the structured errors the
// gatt core understands. The original error is kept in the chain.
func NormalizeError(err error) error {
	if err == nil {
		return nil
	}

	msg := err.Error()
	switch {
	case msg == "central manager has invalid state: have=4 want=5: is Bluetooth turned on?":
		return fmt.Errorf("%w: %v", ErrBluetoothOff, err)
	case containsIgnoreCase(msg, "bluetooth is turned off"):
		return fmt.Errorf("%w: %v", ErrBluetoothOff, err)
	case containsIgnoreCase(msg, "device not connected"):
		return fmt.Errorf("%w: %v", gatt.ErrNotConnected, err)
	case containsIgnoreCase(msg, "disconnected"):
		return fmt.Errorf("%w: %v", gatt.ErrNotConnected, err)
	case containsIgnoreCase(msg, "device already connected"):
		return fmt.Errorf("%w: %v", gatt.ErrAlreadyConnected, err)
	default:
		return err
	}
}

// statusOf converts a go-ble completion error into the status reported on
// the event sink. ATT errors keep their protocol code.
func statusOf(err error) gatt.Status {
	if err == nil {
		return gatt.StatusSuccess
	}

	var attErr ble.ATTError
	if errors.As(err, &attErr) {
		return gatt.Status(attErr)
	}
	if errors.Is(NormalizeError(err), gatt.ErrNotConnected) {
		return gatt.StatusLinkLoss
	}
	if errors.Is(err, context.Canceled) {
		return gatt.StatusLocalTermination
	}
	return gatt.StatusFailure
}

// containsIgnoreCase checks the substring case-insensitively
func containsIgnoreCase(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
