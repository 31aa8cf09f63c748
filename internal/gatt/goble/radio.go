package goble

import (
	"context"
	"sync"
	"time"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/gattq/internal/gatt"
	"github.com/srg/gattq/internal/groutine"
)

// DefaultConnectTimeout bounds a dial when LinkParams.AutoReconnect is off
const DefaultConnectTimeout = 30 * time.Second

// redialDelay is the pause between attempts of an auto-reconnecting dial
const redialDelay = time.Second

// Client is the part of ble.Client the shim drives
type Client interface {
	DiscoverProfile(force bool) (*ble.Profile, error)
	ReadCharacteristic(c *ble.Characteristic) ([]byte, error)
	WriteCharacteristic(c *ble.Characteristic, value []byte, noRsp bool) error
	Subscribe(c *ble.Characteristic, ind bool, h ble.NotificationHandler) error
	Unsubscribe(c *ble.Characteristic, ind bool) error
	ReadRSSI() int
	ExchangeMTU(rxMTU int) (txMTU int, err error)
	CancelConnection() error
}

// disconnectNotifier is implemented by clients that report link loss
type disconnectNotifier interface {
	Disconnected() <-chan struct{}
}

// DeviceFactory creates the host ble.Device (can be overridden in tests)
//
//nolint:revive // DeviceFactory name is intentional for test mocking
var DeviceFactory = newDevice

var (
	deviceOnce sync.Once
	deviceErr  error
)

// Dial opens a client to address (can be overridden in tests)
var Dial = func(ctx context.Context, address string) (Client, error) {
	deviceOnce.Do(func() {
		dev, err := DeviceFactory()
		if err != nil {
			deviceErr = err
			return
		}
		ble.SetDefaultDevice(dev)
	})
	if deviceErr != nil {
		return nil, NormalizeError(deviceErr)
	}
	return ble.Dial(ctx, ble.NewAddr(address))
}

// Radio implements gatt.Radio on top of go-ble
type Radio struct {
	logger         *logrus.Logger
	connectTimeout time.Duration
}

// NewRadio creates a go-ble radio. A zero connectTimeout selects DefaultConnectTimeout.
func NewRadio(logger *logrus.Logger, connectTimeout time.Duration) *Radio {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if connectTimeout <= 0 {
		connectTimeout = DefaultConnectTimeout
	}
	return &Radio{logger: logger, connectTimeout: connectTimeout}
}

// Open starts dialing address in the background. LinkStateChanged reports the outcome.
func (r *Radio) Open(address string, params gatt.LinkParams, sink gatt.EventSink) (gatt.Link, error) {
	ctx, cancel := context.WithCancel(context.Background())
	l := &link{
		address:  address,
		params:   params,
		sink:     sink,
		logger:   r.logger.WithField("address", address),
		ctx:      ctx,
		cancel:   cancel,
		jobs:     make(chan func(Client), jobBacklog),
		indicate: make(map[*ble.Characteristic]bool),
		refresh:  true,
	}

	if params.PHY != gatt.PHY1M {
		l.logger.WithField("phy", params.PHY.String()).Debug("Preferred PHY is not selectable through go-ble; using the host default")
	}

	groutine.Go(ctx, "ble-dial-"+address, func(ctx context.Context) {
		l.dial(ctx, r.connectTimeout)
	})
	return l, nil
}

var _ gatt.Radio = (*Radio)(nil)
