// Package client is a blocking facade over the gatt session manager. Every
// call waits for the queued operation to resolve or for its context to end.
//
// A context that expires returns ctx.Err() but never cancels the queued
// command; it still runs and its outcome is discarded.
package client

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/gattq/internal/gatt"
	"github.com/srg/gattq/internal/gattcache"
	"github.com/srg/gattq/pkg/config"
)

// Client drives GATT sessions for any number of peripherals
type Client struct {
	cfg      *config.Config
	logger   *logrus.Logger
	manager  *gatt.Manager
	subs     *subscriptions
	listener gatt.Listener
}

// Option configures a Client
type Option func(*Client)

// WithListener forwards every outbound event to l after internal routing
func WithListener(l gatt.Listener) Option {
	return func(c *Client) {
		c.listener = l
	}
}

// WithLogger overrides the logger built from the configuration
func WithLogger(logger *logrus.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// New creates a client on top of radio. A nil cfg selects config.DefaultConfig().
func New(radio gatt.Radio, cfg *config.Config, opts ...Option) *Client {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	c := &Client{cfg: cfg}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = cfg.NewLogger()
	}
	c.subs = newSubscriptions(cfg.NotificationBacklog)

	c.manager = gatt.NewManager(radio, gatt.Options{
		Logger:   c.logger,
		Listener: c.route,
		Cache:    gattcache.New(cfg.ProfileCacheSize, c.logger),
	})
	return c
}

// Manager exposes the underlying session manager
func (c *Client) Manager() *gatt.Manager {
	return c.manager
}

// Close force-disconnects every session and ends every subscription
func (c *Client) Close() {
	c.manager.Close()
	c.subs.closeAll()
}

// route runs on connection owner goroutines and must not block
func (c *Client) route(ev gatt.Event) {
	switch e := ev.(type) {
	case gatt.ValueChangedEvent:
		c.subs.deliver(e)
	case gatt.DisconnectedEvent:
		c.subs.closeAddress(e.Address)
	}
	if c.listener != nil {
		c.listener(ev)
	}
}

// Connect establishes a link to address. It returns once the link is up;
// service discovery continues in the background.
func (c *Client) Connect(ctx context.Context, address string) error {
	ctx, cancel := c.bound(ctx, c.cfg.ConnectTimeout)
	defer cancel()

	conn := c.manager.Connection(address)
	return awaitErr(ctx, func(cb func(error)) {
		conn.Connect(c.cfg.ConnectOptions(), cb)
	})
}

// Disconnect tears the link down. With force the session is released
// without waiting for the hardware.
func (c *Client) Disconnect(ctx context.Context, address string, force bool) error {
	conn, ok := c.manager.Lookup(address)
	if !ok {
		return nil
	}

	ctx, cancel := c.bound(ctx, c.cfg.OperationTimeout)
	defer cancel()
	return awaitErr(ctx, func(cb func(error)) {
		conn.Disconnect(force, cb)
	})
}

// Services returns the discovered tree. A discovery already under way is
// waited for rather than repeated.
func (c *Client) Services(ctx context.Context, address string) ([]*gatt.Service, error) {
	conn, err := c.connection(address)
	if err != nil {
		return nil, err
	}

	ctx, cancel := c.bound(ctx, c.cfg.OperationTimeout)
	defer cancel()
	return await(ctx, conn.AwaitServices)
}

// DiscoverServices runs a fresh discovery
func (c *Client) DiscoverServices(ctx context.Context, address string) ([]*gatt.Service, error) {
	conn, err := c.connection(address)
	if err != nil {
		return nil, err
	}

	ctx, cancel := c.bound(ctx, c.cfg.OperationTimeout)
	defer cancel()
	return await(ctx, conn.DiscoverServices)
}

// Read returns the value of a characteristic
func (c *Client) Read(ctx context.Context, address, service, char string) ([]byte, error) {
	conn, err := c.connection(address)
	if err != nil {
		return nil, err
	}

	ctx, cancel := c.bound(ctx, c.cfg.OperationTimeout)
	defer cancel()
	return await(ctx, func(cb func([]byte, error)) {
		conn.Read(service, char, cb)
	})
}

// Write writes data, fragmenting it to the negotiated frame size
func (c *Client) Write(ctx context.Context, address, service, char string, data []byte, withResponse bool) error {
	conn, err := c.connection(address)
	if err != nil {
		return err
	}

	ctx, cancel := c.bound(ctx, c.writeTimeout(len(data)))
	defer cancel()
	return awaitErr(ctx, func(cb func(error)) {
		conn.Write(service, char, data, c.cfg.WriteOptions(withResponse), cb)
	})
}

// Subscribe enables value change delivery. The subscription is registered
// before the descriptor write so that no early notification is lost.
// factor > 1 batches that many frames into one value.
func (c *Client) Subscribe(ctx context.Context, address, service, char string, factor int) (*Subscription, error) {
	conn, err := c.connection(address)
	if err != nil {
		return nil, err
	}

	sub := c.subs.add(conn.Address(), service, char)

	ctx, cancel := c.bound(ctx, c.cfg.OperationTimeout)
	defer cancel()
	err = awaitErr(ctx, func(cb func(error)) {
		conn.Subscribe(service, char, factor, cb)
	})
	if err != nil {
		c.subs.remove(sub)
		return nil, err
	}

	c.logger.WithFields(logrus.Fields{
		"address":      conn.Address(),
		"service_uuid": sub.Service,
		"char_uuid":    sub.Characteristic,
		"factor":       factor,
	}).Debug("Subscribed")
	return sub, nil
}

// Unsubscribe disables delivery and ends the matching subscription
func (c *Client) Unsubscribe(ctx context.Context, address, service, char string) error {
	conn, err := c.connection(address)
	if err != nil {
		return err
	}

	ctx, cancel := c.bound(ctx, c.cfg.OperationTimeout)
	defer cancel()
	err = awaitErr(ctx, func(cb func(error)) {
		conn.Unsubscribe(service, char, cb)
	})
	c.subs.removeKey(conn.Address(), service, char)
	return err
}

// ReadRSSI returns the received signal strength in dBm
func (c *Client) ReadRSSI(ctx context.Context, address string) (int, error) {
	conn, err := c.connection(address)
	if err != nil {
		return 0, err
	}

	ctx, cancel := c.bound(ctx, c.cfg.OperationTimeout)
	defer cancel()
	return await(ctx, conn.ReadRSSI)
}

// RequestMTU negotiates the ATT MTU and returns the agreed value
func (c *Client) RequestMTU(ctx context.Context, address string, mtu int) (int, error) {
	conn, err := c.connection(address)
	if err != nil {
		return 0, err
	}

	ctx, cancel := c.bound(ctx, c.cfg.OperationTimeout)
	defer cancel()
	return await(ctx, func(cb func(int, error)) {
		conn.RequestMTU(mtu, cb)
	})
}

// Snapshot returns diagnostics of a session
func (c *Client) Snapshot(address string) (gatt.Snapshot, error) {
	conn, err := c.connection(address)
	if err != nil {
		return gatt.Snapshot{}, err
	}
	return conn.Snapshot(), nil
}

func (c *Client) connection(address string) (*gatt.Connection, error) {
	conn, ok := c.manager.Lookup(address)
	if !ok {
		return nil, fmt.Errorf("%s: %w", gatt.NormalizeAddress(address), gatt.ErrNotConnected)
	}
	return conn, nil
}

// bound applies timeout unless ctx already carries a deadline
func (c *Client) bound(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok || timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

// writeTimeout widens the operation timeout by the pacing of a long write
func (c *Client) writeTimeout(size int) time.Duration {
	frame := c.cfg.MaxFrameSize
	if frame <= 0 {
		frame = gatt.DefaultMTU - 3
	}
	chunks := (size + frame - 1) / frame
	return c.cfg.OperationTimeout + time.Duration(chunks)*c.cfg.WriteChunkDelay
}

type result[T any] struct {
	value T
	err   error
}

// await submits an operation and waits for its callback or ctx
func await[T any](ctx context.Context, submit func(cb func(T, error))) (T, error) {
	done := make(chan result[T], 1)
	submit(func(v T, err error) {
		done <- result[T]{value: v, err: err}
	})

	select {
	case r := <-done:
		return r.value, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

func awaitErr(ctx context.Context, submit func(cb func(error))) error {
	_, err := await(ctx, func(cb func(struct{}, error)) {
		submit(func(err error) { cb(struct{}{}, err) })
	})
	return err
}
