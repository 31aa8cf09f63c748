package main

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/srg/gattq/internal/gatt"
	"github.com/srg/gattq/internal/gatt/gatttest"
	"github.com/srg/gattq/internal/gatt/goble"
	"github.com/srg/gattq/internal/testutils"
	"github.com/srg/gattq/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

const (
	testAddress    = "00:00:00:00:00:01"
	batteryService = "180f"
	batteryLevel   = "2a19"
	hrService      = "180d"
	hrMeasurement  = "2a37"
	uartService    = "6e400001-b5a3-f393-e0a9-e50e24dcca9e"
	uartRX         = "6e400002-b5a3-f393-e0a9-e50e24dcca9e"
	dupService     = "1234"
)

// CommandTestSuite runs commands against a scripted peripheral
type CommandTestSuite struct {
	suite.Suite

	radio       *gatttest.Radio
	peripheral  *gatttest.Responder
	origFactory func(cfg *config.Config, logger *logrus.Logger) gatt.Radio
}

func (s *CommandTestSuite) SetupSuite() {
	color.NoColor = true
	s.origFactory = RadioFactory
}

func (s *CommandTestSuite) TearDownSuite() {
	RadioFactory = s.origFactory
}

func (s *CommandTestSuite) SetupTest() {
	s.radio = gatttest.NewRadio(
		gatttest.NewService(batteryService,
			gatttest.NewCharacteristic(batteryLevel, gatt.PropRead|gatt.PropNotify),
		),
		gatttest.NewService(hrService,
			gatttest.NewCharacteristic(hrMeasurement, gatt.PropNotify),
		),
		gatttest.NewService(uartService,
			gatttest.NewCharacteristic(uartRX, gatt.PropWrite|gatt.PropWriteNR),
		),
		gatttest.NewService(dupService,
			gatttest.NewCharacteristic(batteryLevel, gatt.PropRead),
		),
	)
	s.peripheral = gatttest.NewResponder(s.radio)
	s.peripheral.Start()

	RadioFactory = func(cfg *config.Config, logger *logrus.Logger) gatt.Radio {
		return s.radio
	}
}

func (s *CommandTestSuite) TearDownTest() {
	s.peripheral.Stop()
}

// ExecuteCommand runs a fresh command tree with args, returns stdout, stderr and error
func (s *CommandTestSuite) ExecuteCommand(args ...string) (string, string, error) {
	root := newRootCmd()
	stdout, stderr := new(bytes.Buffer), new(bytes.Buffer)
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetArgs(args)
	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

func (s *CommandTestSuite) TestServicesTable() {
	out, _, err := s.ExecuteCommand("services", testAddress)
	s.Require().NoError(err)

	testutils.AssertText(s.T(), out, `
		service 180f Battery Service
		  2a19 Battery Level read,notify
		    2902 Client Characteristic Configuration
		service 180d Heart Rate
		  2a37 Heart Rate Measurement notify
		    2902 Client Characteristic Configuration
		service 6e400001b5a3f393e0a9e50e24dcca9e Nordic UART Service
		  6e400002b5a3f393e0a9e50e24dcca9e Nordic UART RX write-without-response,write
		service 1234
		  2a19 Battery Level read
	`, testutils.TrimLines(), testutils.CollapseSpaces(), testutils.IgnoreEmptyLines())
}

func (s *CommandTestSuite) TestServicesJSON() {
	out, _, err := s.ExecuteCommand("services", testAddress, "--json")
	s.Require().NoError(err)

	testutils.AssertJSON(s.T(), out, `[
		{"uuid": "180f", "name": "Battery Service", "characteristics": [
			{"uuid": "2a19", "name": "Battery Level", "properties": "read,notify", "descriptors": [
				{"uuid": "2902", "name": "Client Characteristic Configuration"}
			]}
		]},
		{"uuid": "180d", "name": "Heart Rate", "characteristics": [
			{"uuid": "2a37", "name": "Heart Rate Measurement", "properties": "notify", "descriptors": [
				{"uuid": "2902", "name": "Client Characteristic Configuration"}
			]}
		]},
		{"uuid": "6e400001b5a3f393e0a9e50e24dcca9e", "name": "Nordic UART Service", "characteristics": [
			{"uuid": "6e400002b5a3f393e0a9e50e24dcca9e", "name": "Nordic UART RX", "properties": "write-without-response,write"}
		]},
		{"uuid": "1234", "characteristics": [
			{"uuid": "2a19", "name": "Battery Level", "properties": "read"}
		]}
	]`)
}

func (s *CommandTestSuite) TestReadHex() {
	s.peripheral.SetValue(batteryService, batteryLevel, []byte{0x5a})

	out, _, err := s.ExecuteCommand("read", testAddress, "2A19", "--service", "180F", "--hex")
	s.Require().NoError(err)
	s.Equal("5a\n", out)
}

func (s *CommandTestSuite) TestReadJSON() {
	s.peripheral.SetValue(batteryService, batteryLevel, []byte{0x01, 0x02})

	out, _, err := s.ExecuteCommand("read", testAddress, batteryLevel, "--service", batteryService, "--json")
	s.Require().NoError(err)
	s.JSONEq(`{"characteristic": "2a19", "value": "0102"}`, out)
}

func (s *CommandTestSuite) TestReadResolution() {
	s.Run("ambiguous", func() {
		_, _, err := s.ExecuteCommand("read", testAddress, batteryLevel)
		s.Require().Error(err)
		s.Contains(err.Error(), "ambiguous")
	})

	s.Run("not found", func() {
		_, _, err := s.ExecuteCommand("read", testAddress, "2a00")
		s.ErrorIs(err, gatt.ErrAttributeNotFound)
	})

	s.Run("protocol failure", func() {
		_, _, err := s.ExecuteCommand("read", testAddress, hrMeasurement)
		s.ErrorIs(err, gatt.ErrProtocolStatus, "reads of a value-less characteristic MUST fail with the ATT status")
	})
}

func (s *CommandTestSuite) TestReadInvalidWatch() {
	_, _, err := s.ExecuteCommand("read", testAddress, batteryLevel, "--watch", "soon")
	s.Require().Error(err)
	s.Contains(err.Error(), "invalid watch interval")
}

func (s *CommandTestSuite) TestWriteFragmentsWithResponse() {
	payload := "0102030405060708090a"

	_, errOut, err := s.ExecuteCommand("write", testAddress, uartRX, payload, "--hex", "--chunk", "4")
	s.Require().NoError(err)
	s.Contains(errOut, "Wrote 10 bytes")

	writes := s.peripheral.Writes()
	s.Require().Len(writes, 3)
	var joined []byte
	for i, w := range writes {
		s.True(w.WithResponse)
		if i < 2 {
			s.Len(w.Value, 4)
		}
		joined = append(joined, w.Value...)
	}
	s.Equal(payload, hex.EncodeToString(joined))
}

func (s *CommandTestSuite) TestWriteWithoutResponse() {
	_, _, err := s.ExecuteCommand("write", testAddress, uartRX, "hello", "--without-response", "--chunk-delay", "0")
	s.Require().NoError(err)

	writes := s.peripheral.Writes()
	s.Require().Len(writes, 1)
	s.False(writes[0].WithResponse)
	s.Equal([]byte("hello"), writes[0].Value)
}

func (s *CommandTestSuite) TestWriteRejectsBadInput() {
	_, _, err := s.ExecuteCommand("write", testAddress, uartRX, "zz", "--hex")
	s.Require().Error(err)
	s.Contains(err.Error(), "invalid hex data")
	s.Empty(s.radio.Links(), "input errors MUST NOT open a link")
}

func (s *CommandTestSuite) TestSubscribeCount() {
	s.peripheral.SetNotifications(hrService, hrMeasurement, []byte{0x00, 0x48}, []byte{0x00, 0x49}, []byte{0x00, 0x4a})

	out, _, err := s.ExecuteCommand("subscribe", testAddress, hrMeasurement, "--hex", "--count", "2")
	s.Require().NoError(err)
	s.Equal("0048\n0049\n", out)
}

func (s *CommandTestSuite) TestSubscribeBatched() {
	// default MTU 23 leaves 20-byte frames; factor 3 batches 60 bytes
	frames := [][]byte{bytes.Repeat([]byte{1}, 20), bytes.Repeat([]byte{2}, 20), bytes.Repeat([]byte{3}, 20)}
	s.peripheral.SetNotifications(hrService, hrMeasurement, frames...)

	out, _, err := s.ExecuteCommand("subscribe", testAddress, hrMeasurement, "--hex", "--count", "1", "--factor", "3")
	s.Require().NoError(err)
	s.Equal(hex.EncodeToString(bytes.Join(frames, nil))+"\n", out, "three frames MUST be delivered as one value")
}

func (s *CommandTestSuite) TestRSSIAndMTU() {
	s.peripheral.SetRSSI(-67)

	out, _, err := s.ExecuteCommand("rssi", testAddress)
	s.Require().NoError(err)
	s.Equal("-67 dBm\n", out)

	out, _, err = s.ExecuteCommand("mtu", testAddress, "--request", "185", "--json")
	s.Require().NoError(err)
	s.JSONEq(`{"mtu": 185}`, out)

	_, _, err = s.ExecuteCommand("mtu", testAddress, "--request", "600")
	s.Require().Error(err)
}

func (s *CommandTestSuite) TestConnectFailure() {
	s.radio.FailOpen(errors.New("adapter busy"))

	_, _, err := s.ExecuteCommand("rssi", testAddress)
	s.Require().Error(err)
	s.ErrorIs(err, gatt.ErrHardwareRejected)
	s.Contains(err.Error(), "failed to connect")
}

func (s *CommandTestSuite) TestConfigFile() {
	path := filepath.Join(s.T().TempDir(), "gattq.yaml")
	s.Require().NoError(os.WriteFile(path, []byte("output_format: json\nlog_level: error\n"), 0o600))

	out, _, err := s.ExecuteCommand("rssi", testAddress, "--config", path)
	s.Require().NoError(err)
	s.JSONEq(fmt.Sprintf(`{"rssi": %d}`, gatttest.DefaultRSSI), out)

	_, _, err = s.ExecuteCommand("rssi", testAddress, "--config", filepath.Join(s.T().TempDir(), "missing.yaml"))
	s.Error(err)
}

func (s *CommandTestSuite) TestInvalidLogLevel() {
	_, _, err := s.ExecuteCommand("rssi", testAddress, "--log-level", "loud")
	s.Require().Error(err)
	s.Contains(err.Error(), "invalid log level")
}

func TestCommandTestSuite(t *testing.T) {
	suite.Run(t, new(CommandTestSuite))
}

func TestFormatUserError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		contains string
	}{
		{name: "bluetooth off", err: fmt.Errorf("dial: %w", goble.ErrBluetoothOff), contains: "Bluetooth is turned off"},
		{name: "timeout", err: fmt.Errorf("read: %w", context.DeadlineExceeded), contains: "timed out"},
		{name: "not found", err: &gatt.NotFoundError{Resource: "service", UUIDs: []string{"180d"}}, contains: "gattq services"},
		{name: "not connected", err: fmt.Errorf("x: %w", gatt.ErrNotConnected), contains: "in range"},
		{name: "plain", err: errors.New("boom"), contains: "boom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Contains(t, FormatUserError(tt.err), tt.contains)
		})
	}
	assert.Empty(t, FormatUserError(nil))
}

func TestResolveCharacteristic(t *testing.T) {
	services := []*gatt.Service{
		{UUID: "180f", Characteristics: []*gatt.Characteristic{{UUID: "2a19"}}},
		{UUID: "1234", Characteristics: []*gatt.Characteristic{{UUID: "2a19"}, {UUID: "2a00"}}},
	}

	svc, char, err := resolveCharacteristic(services, "", "0x2A00")
	assert.NoError(t, err)
	assert.Equal(t, "1234", svc)
	assert.Equal(t, "2a00", char)

	svc, _, err = resolveCharacteristic(services, "180F", "2a19")
	assert.NoError(t, err)
	assert.Equal(t, "180f", svc)

	_, _, err = resolveCharacteristic(services, "", "2a19")
	assert.ErrorContains(t, err, "ambiguous")

	_, _, err = resolveCharacteristic(services, "180f", "2a00")
	assert.ErrorIs(t, err, gatt.ErrAttributeNotFound)
}

func TestFormatVersion(t *testing.T) {
	assert.Equal(t, "v1.2.3", formatVersion("1.2.3"))
	assert.Equal(t, "dev", formatVersion("dev"))
	assert.Equal(t, "", formatVersion(""))
}

func TestProgressPrinter(t *testing.T) {
	color.NoColor = true
	out := new(bytes.Buffer)
	assert.False(t, isTerminal(out))

	p := NewProgressPrinter(out, "Connecting to AA", "Connecting")
	p.Start()
	p.SetPhase("Discovering")
	p.Stop()
	p.Stop()

	assert.Contains(t, out.String(), "Connecting to AA (Connecting...)")
	assert.True(t, strings.HasSuffix(out.String(), clearLineSequence))
	assert.Panics(t, p.Start)
}
