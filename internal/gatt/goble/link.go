package goble

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/gattq/internal/gatt"
	"github.com/srg/gattq/internal/groutine"
)

// jobBacklog bounds the submitted-but-unstarted operations of one link
const jobBacklog = 16

// link is one go-ble client. Client calls run one at a time on the link
// worker; completions are posted to the sink.
type link struct {
	address string
	params  gatt.LinkParams
	sink    gatt.EventSink
	logger  *logrus.Entry

	ctx    context.Context
	cancel context.CancelFunc
	jobs   chan func(Client)
	io     sync.Mutex // serializes client calls between the worker and synchronous writes

	mu            sync.Mutex
	client        Client
	closed        bool
	disconnecting bool
	indicate      map[*ble.Characteristic]bool
	refresh       bool // next discovery bypasses the client's cached profile
}

func (l *link) dial(ctx context.Context, timeout time.Duration) {
	for {
		dialCtx, cancel := ctx, context.CancelFunc(func() {})
		if !l.params.AutoReconnect {
			dialCtx, cancel = context.WithTimeout(ctx, timeout)
		}

		l.logger.WithField("timeout", timeout).Debug("Dialing device")
		client, err := Dial(dialCtx, l.address)
		cancel()

		if err == nil {
			l.attach(client)
			return
		}

		if ctx.Err() != nil {
			l.post(gatt.LinkStateChanged{Connected: false, Status: gatt.StatusLocalTermination})
			return
		}
		if l.params.AutoReconnect {
			l.logger.WithField("error", err).Debug("Dial failed; retrying")
			select {
			case <-ctx.Done():
				l.post(gatt.LinkStateChanged{Connected: false, Status: gatt.StatusLocalTermination})
				return
			case <-time.After(redialDelay):
				continue
			}
		}

		l.logger.WithField("error", err).Warn("Failed to connect to device")
		l.post(gatt.LinkStateChanged{Connected: false, Status: statusOf(err)})
		return
	}
}

// attach installs a freshly dialed client and starts its worker and monitor
func (l *link) attach(client Client) {
	l.mu.Lock()
	if l.closed || l.disconnecting {
		l.mu.Unlock()
		l.logger.Debug("Link released while dialing; cancelling connection")
		_ = client.CancelConnection()
		l.post(gatt.LinkStateChanged{Connected: false, Status: gatt.StatusLocalTermination})
		return
	}
	l.client = client
	l.mu.Unlock()

	groutine.Go(l.ctx, "ble-link-"+l.address, l.work)
	if notifier, ok := client.(disconnectNotifier); ok {
		groutine.Go(l.ctx, "ble-connection-monitor", func(ctx context.Context) {
			select {
			case <-notifier.Disconnected():
				status := gatt.StatusLinkLoss
				if l.isDisconnecting() {
					status = gatt.StatusSuccess
				}
				l.logger.WithField("status", status.String()).Info("Device disconnected")
				l.post(gatt.LinkStateChanged{Connected: false, Status: status})
			case <-ctx.Done():
			}
		})
	} else {
		l.logger.Debug("Client reports no disconnection; link loss surfaces as operation errors")
	}

	l.logger.Info("Connected to device")
	l.post(gatt.LinkStateChanged{Connected: true, Status: gatt.StatusSuccess})
}

func (l *link) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-l.jobs:
			l.io.Lock()
			job(l.client)
			l.io.Unlock()
		}
	}
}

// post delivers ev unless the link was closed
func (l *link) post(ev gatt.HardwareEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.sink.Post(ev)
}

func (l *link) isDisconnecting() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.disconnecting
}

// submit queues job for the worker
func (l *link) submit(op string, job func(Client)) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return fmt.Errorf("%s: %w", op, gatt.ErrClosed)
	}
	if l.client == nil {
		return fmt.Errorf("%s: %w", op, gatt.ErrNotConnected)
	}
	select {
	case l.jobs <- job:
		return nil
	default:
		return fmt.Errorf("%s: %d operations already pending", op, jobBacklog)
	}
}

func (l *link) DiscoverServices() error {
	l.mu.Lock()
	force := l.refresh
	l.refresh = false
	l.mu.Unlock()

	return l.submit("discover services", func(client Client) {
		profile, err := client.DiscoverProfile(force)
		if err != nil {
			l.logger.WithField("error", err).Warn("Service discovery failed")
		}
		l.post(gatt.ServicesDiscovered{Services: convertProfile(profile), Status: statusOf(err)})
	})
}

func (l *link) ReadCharacteristic(c *gatt.Characteristic) error {
	h, err := handleOf(c)
	if err != nil {
		return err
	}
	service, char := c.Service, c.UUID

	return l.submit("read", func(client Client) {
		value, err := client.ReadCharacteristic(h)
		l.post(gatt.CharacteristicRead{Service: service, Characteristic: char, Value: value, Status: statusOf(err)})
	})
}

func (l *link) WriteCharacteristic(c *gatt.Characteristic, value []byte, withResponse bool) error {
	h, err := handleOf(c)
	if err != nil {
		return err
	}
	service, char := c.Service, c.UUID

	if !withResponse {
		l.mu.Lock()
		client := l.client
		l.mu.Unlock()
		if client == nil {
			return fmt.Errorf("write: %w", gatt.ErrNotConnected)
		}

		l.io.Lock()
		defer l.io.Unlock()
		return NormalizeError(client.WriteCharacteristic(h, value, true))
	}

	return l.submit("write", func(client Client) {
		err := client.WriteCharacteristic(h, value, false)
		l.post(gatt.CharacteristicWritten{Service: service, Characteristic: char, Status: statusOf(err)})
	})
}

func (l *link) SetNotification(c *gatt.Characteristic, mode gatt.NotifyMode) error {
	h, err := handleOf(c)
	if err != nil {
		return err
	}
	service, char := c.Service, c.UUID

	return l.submit("set notification", func(client Client) {
		var err error
		switch mode {
		case gatt.NotifyDisabled:
			l.mu.Lock()
			ind := l.indicate[h]
			delete(l.indicate, h)
			l.mu.Unlock()
			err = NormalizeError(client.Unsubscribe(h, ind))
		default:
			ind := mode == gatt.IndicateEnabled
			err = NormalizeError(client.Subscribe(h, ind, func(data []byte) {
				value := make([]byte, len(data))
				copy(value, data)
				l.post(gatt.CharacteristicChanged{Service: service, Characteristic: char, Value: value})
			}))
			if err == nil {
				l.mu.Lock()
				l.indicate[h] = ind
				l.mu.Unlock()
			}
		}

		if err != nil {
			l.logger.WithFields(logrus.Fields{
				"char_uuid": char,
				"mode":      mode.String(),
				"error":     err,
			}).Warn("Failed to update notification state")
		}
		l.post(gatt.DescriptorWritten{Service: service, Characteristic: char, Descriptor: "2902", Status: statusOf(err)})
	})
}

func (l *link) ReadRSSI() error {
	return l.submit("read rssi", func(client Client) {
		l.post(gatt.RSSIRead{RSSI: client.ReadRSSI(), Status: gatt.StatusSuccess})
	})
}

func (l *link) RequestMTU(mtu int) error {
	return l.submit("request mtu", func(client Client) {
		negotiated, err := client.ExchangeMTU(mtu)
		l.post(gatt.MTUChanged{MTU: negotiated, Status: statusOf(err)})
	})
}

// RequestConnectionPriority is accepted and ignored; go-ble exposes no
// connection parameter update on the central side.
func (l *link) RequestConnectionPriority(p gatt.Priority) error {
	l.logger.WithField("priority", p.String()).Debug("Connection priority is not adjustable through go-ble; ignored")
	return nil
}

// RefreshCache forces the next discovery to bypass the client's profile cache
func (l *link) RefreshCache() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.refresh = true
	return nil
}

func (l *link) Disconnect() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return fmt.Errorf("disconnect: %w", gatt.ErrClosed)
	}
	l.disconnecting = true
	client := l.client
	l.mu.Unlock()

	if client == nil {
		// Still dialing; cancellation makes the dialer report the link down
		l.cancel()
		return nil
	}

	groutine.Go(context.Background(), "ble-disconnect-"+l.address, func(ctx context.Context) {
		if err := NormalizeError(client.CancelConnection()); err != nil {
			l.logger.WithField("error", err).Warn("Failed to cancel connection")
			l.post(gatt.LinkStateChanged{Connected: false, Status: gatt.StatusFailure})
		}
	})
	return nil
}

func (l *link) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	client := l.client
	disconnecting := l.disconnecting
	l.mu.Unlock()

	l.cancel()
	if client != nil && !disconnecting {
		groutine.Go(context.Background(), "ble-close-"+l.address, func(ctx context.Context) {
			if err := client.CancelConnection(); err != nil {
				l.logger.WithField("error", err).Debug("Cancel connection on close failed")
			}
		})
	}
	return nil
}

var _ gatt.Link = (*link)(nil)
