package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/srg/gattq/internal/gatt"
	"github.com/srg/gattq/internal/gatt/goble"
)

// Command-level errors
var (
	// ErrConnectionLost indicates the link dropped while a command was running.
	// gatt.ErrNotConnected instead means the session was never up.
	ErrConnectionLost = errors.New("connection lost")
)

// hints are appended to the raw error for codes a user can act on
var hints = map[gatt.ErrorCode]string{
	gatt.NotConnected:           "is the device in range and advertising?",
	gatt.AttributeNotFound:      "run 'gattq services <address>' to list what the device exposes",
	gatt.AuthenticationRequired: "pair the device with the host first",
	gatt.Unsupported:            "the characteristic does not support this operation",
	gatt.Disconnected:           "the device dropped the link",
}

// FormatUserError renders err for the terminal, adding a hint where one helps
func FormatUserError(err error) string {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, goble.ErrBluetoothOff):
		return "Bluetooth is turned off; enable it and retry"
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Sprintf("%v (operation timed out; raise --timeout or check the device)", err)
	case errors.Is(err, ErrConnectionLost):
		return err.Error()
	}

	if hint, ok := hints[gatt.CodeOf(err)]; ok {
		return fmt.Sprintf("%v (%s)", err, hint)
	}
	return err.Error()
}
