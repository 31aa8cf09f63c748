package gatt

import (
	"context"
	"runtime/debug"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"github.com/srg/gattq/internal/groutine"
)

// DefaultMTU is the ATT MTU assumed until a RequestMTU succeeds
const DefaultMTU = 23

// attHeaderSize is the ATT write/notify opcode plus handle overhead
const attHeaderSize = 3

// State is the lifecycle state of a Connection
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected // link up, discovering services
	StateReady
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReady:
		return "ready"
	default:
		return "disconnected"
	}
}

// ServiceCache stores discovered service trees per device address
type ServiceCache interface {
	Store(address string, services []*Service)
	Load(address string) ([]*Service, bool)
	Invalidate(address string)
}

// Options configure a Connection or a Manager
type Options struct {
	Logger   *logrus.Logger
	Listener Listener
	Cache    ServiceCache

	// DefaultMTU is the MTU assumed after link up; 0 means DefaultMTU
	DefaultMTU int
}

// ConnectOptions are forwarded to the Radio when a link is requested
type ConnectOptions struct {
	AutoReconnect bool
	PHY           PHY
}

type attrKey struct {
	service string
	char    string
}

// Connection is the per-address GATT session. Every exported method is safe
// for concurrent use and, apart from Snapshot and Close, never blocks:
// results are delivered to callbacks running on the connection owner
// goroutine. Callbacks must not block and must not call Snapshot or Close.
type Connection struct {
	address  string
	radio    Radio
	listener Listener
	cache    ServiceCache
	logger   *logrus.Entry

	mbox *mailbox
	done chan struct{}

	stateView    atomic.Int32
	servicesView atomic.Pointer[[]*Service]

	// owned by the owner goroutine
	state      State
	link       Link
	generation uint64
	queue      *CommandQueue
	pending    *Registry
	services   []*Service
	buffers    map[attrKey]*NotificationBuffer
	fragments  *FragmentQueue
	defaultMTU int
	mtu        int
	closed     bool
}

// NewConnection creates a disconnected session for address and starts its owner goroutine
func NewConnection(address string, radio Radio, opts Options) *Connection {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.New()
	}
	mtu := opts.DefaultMTU
	if mtu <= attHeaderSize {
		mtu = DefaultMTU
	}

	c := &Connection{
		address:    address,
		radio:      radio,
		listener:   opts.Listener,
		cache:      opts.Cache,
		logger:     logger.WithField("address", address),
		mbox:       newMailbox(),
		done:       make(chan struct{}),
		pending:    NewRegistry(),
		buffers:    make(map[attrKey]*NotificationBuffer),
		defaultMTU: mtu,
		mtu:        mtu,
	}
	c.queue = NewCommandQueue(c.linkAlive, c.dropped, c.logger)

	groutine.Go(context.Background(), "gatt-owner-"+address, c.run)
	return c
}

// Address returns the device address of the session
func (c *Connection) Address() string {
	return c.address
}

// State returns the last published lifecycle state
func (c *Connection) State() State {
	return State(c.stateView.Load())
}

// Services returns the last discovered service tree, nil before discovery
func (c *Connection) Services() []*Service {
	if p := c.servicesView.Load(); p != nil {
		return *p
	}
	return nil
}

// Done is closed once the owner goroutine has stopped
func (c *Connection) Done() <-chan struct{} {
	return c.done
}

// Close tears the session down and stops the owner goroutine. Pending work
// is resolved with a disconnection error, later calls with ErrClosed.
func (c *Connection) Close() {
	c.mbox.post(func() {
		if c.closed {
			return
		}
		c.closed = true
		c.cancelConnects()
		if c.link != nil || c.state != StateDisconnected {
			c.teardown(StatusLocalTermination)
		}
		if n := c.pending.DrainEverything(ErrClosed); n > 0 {
			c.logger.WithField("resolved", n).Debug("Resolved leftover callbacks on close")
		}
		c.mbox.close()
		c.logger.Debug("Connection closed")
	})
	<-c.done
}

// Snapshot reports the owner-side state. It blocks until the owner goroutine
// has processed everything posted before it.
func (c *Connection) Snapshot() Snapshot {
	result := make(chan Snapshot, 1)
	if !c.mbox.post(func() { result <- c.snapshot() }) {
		return Snapshot{Address: c.address, State: StateDisconnected, Closed: true, Pending: map[Kind]int{}}
	}
	return <-result
}

// Snapshot is a diagnostic view of a Connection
type Snapshot struct {
	Address    string
	State      State
	Generation uint64
	QueueLen   int
	Busy       bool
	Suspended  bool
	Pending    map[Kind]int
	Fragments  int // chunks of the in-flight acknowledged write not yet confirmed
	Buffers    int // notification buffers registered
	MTU        int
	Closed     bool
}

func (c *Connection) snapshot() Snapshot {
	s := Snapshot{
		Address:    c.address,
		State:      c.state,
		Generation: c.generation,
		QueueLen:   c.queue.Len(),
		Busy:       c.queue.Busy(),
		Suspended:  c.queue.Suspended(),
		Pending:    c.pending.Counts(),
		Buffers:    len(c.buffers),
		MTU:        c.mtu,
		Closed:     c.closed,
	}
	if c.fragments != nil {
		s.Fragments = c.fragments.Remaining()
	}
	return s
}

func (c *Connection) run(ctx context.Context) {
	defer close(c.done)

	c.logger.WithFields(logrus.Fields{
		"goroutine": groutine.GetName(ctx),
		"gid":       groutine.GetGID(),
	}).Debug("Connection owner started")

	for range c.mbox.signal {
		for _, fn := range c.mbox.take() {
			c.exec(fn)
		}
		if c.mbox.isClosed() {
			for _, fn := range c.mbox.take() {
				c.exec(fn)
			}
			return
		}
	}
}

func (c *Connection) exec(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.WithFields(logrus.Fields{
				"panic": r,
				"stack": string(debug.Stack()),
			}).Error("Panic on connection owner")
		}
	}()
	fn()
}

// post runs fn on the owner goroutine, or resolves cb with ErrClosed when the
// connection no longer accepts work
func (c *Connection) post(cb Callback, fn func()) {
	ok := c.mbox.post(func() {
		if c.closed {
			cb(Outcome{Err: ErrClosed})
			return
		}
		fn()
	})
	if !ok {
		cb(Outcome{Err: ErrClosed})
	}
}

func (c *Connection) setState(s State) {
	if c.state == s {
		return
	}
	c.logger.WithFields(logrus.Fields{
		"from": c.state.String(),
		"to":   s.String(),
	}).Debug("Connection state changed")
	c.state = s
	c.stateView.Store(int32(s))
}

func (c *Connection) setServices(services []*Service) {
	c.services = services
	if services == nil {
		c.servicesView.Store(nil)
		return
	}
	c.servicesView.Store(&services)
}

func (c *Connection) linkAlive() bool {
	return c.link != nil
}

func (c *Connection) linkReady() bool {
	return c.link != nil && (c.state == StateConnected || c.state == StateReady)
}

// dropped resolves the kinds of commands the queue discarded because the link
// handle was gone at dispatch time
func (c *Connection) dropped(cmds []*Command) {
	c.fragments = nil
	seen := make(map[Kind]bool)
	for _, cmd := range cmds {
		if seen[cmd.Kind] {
			continue
		}
		seen[cmd.Kind] = true
		c.pending.DrainAll(cmd.Kind, Outcome{Err: newError(LinkHandleMissing, "%s dropped, link handle absent", cmd.Kind)})
	}
}

// connect implements the Disconnected -> Connecting transition
func (c *Connection) connect(opts ConnectOptions, cb Callback) {
	switch c.state {
	case StateConnected, StateReady:
		cb(Outcome{Err: ErrAlreadyConnected})
		return
	case StateConnecting:
		c.pending.Push(KindConnect, cb)
		c.logger.Debug("Connect joined pending attempt")
		return
	}

	if c.link != nil {
		cb(Outcome{Err: ErrInconsistentLink})
		return
	}

	c.pending.Push(KindConnect, cb)
	c.generation++
	c.setState(StateConnecting)

	c.logger.WithFields(logrus.Fields{
		"auto_reconnect": opts.AutoReconnect,
		"phy":            opts.PHY.String(),
		"generation":     c.generation,
	}).Info("Connecting to device...")

	link, err := c.radio.Open(c.address, LinkParams{AutoReconnect: opts.AutoReconnect, PHY: opts.PHY}, &linkSink{conn: c, generation: c.generation})
	if err != nil {
		c.generation++
		c.setState(StateDisconnected)
		c.logger.WithError(err).Warn("Link request rejected")
		c.pending.DrainAll(KindConnect, Outcome{Err: rejected(KindConnect, err)})
		return
	}
	c.link = link
}

// disconnect cancels pending connects and requests teardown
func (c *Connection) disconnect(force bool, cb Callback) {
	c.cancelConnects()

	if c.link == nil {
		c.setState(StateDisconnected)
		cb(Outcome{})
		return
	}

	c.pending.Push(KindDisconnect, cb)
	c.logger.WithField("force", force).Info("Disconnecting from device...")

	if err := c.link.Disconnect(); err != nil {
		c.logger.WithError(err).Warn("Disconnect request failed, releasing link")
		c.pending.DrainAll(KindDisconnect, Outcome{Err: rejected(KindDisconnect, err)})
		c.teardown(StatusLocalTermination)
		return
	}
	if force {
		c.teardown(StatusSuccess)
	}
}

func (c *Connection) cancelConnects() {
	if n := c.pending.DrainAll(KindConnect, Outcome{Err: newError(Cancelled, "connect cancelled by disconnect")}); n > 0 {
		c.logger.WithField("cancelled", n).Debug("Pending connects cancelled")
	}
}

// linkUp implements Connecting -> Connected
func (c *Connection) linkUp() {
	if c.state != StateConnecting {
		c.logger.WithField("state", c.state.String()).Warn("Link up in unexpected state, ignoring")
		return
	}

	c.setState(StateConnected)
	c.mtu = c.defaultMTU
	c.logger.Info("Connected to device")

	c.queue.Enqueue(c.discoverCommand())
	c.pending.DrainAll(KindConnect, Outcome{})
	c.emit(ConnectedEvent{Address: c.address})
}

// teardown is the single exit to Disconnected. Every pending continuation of
// every kind is resolved exactly once and all per-link state is released.
func (c *Connection) teardown(status Status) {
	c.setState(StateDisconnected)
	c.generation++

	if c.link != nil {
		if err := c.link.Close(); err != nil {
			c.logger.WithError(err).Warn("Failed to release link handle")
		}
		c.link = nil
	}

	dropped := c.queue.Clear()
	fragments := 0
	if c.fragments != nil {
		fragments = c.fragments.Remaining()
		c.fragments = nil
	}
	buffers := len(c.buffers)
	c.buffers = make(map[attrKey]*NotificationBuffer)
	c.setServices(nil)
	c.mtu = c.defaultMTU

	c.pending.DrainAll(KindDisconnect, Outcome{})
	resolved := c.pending.DrainEverything(disconnectedError(status))

	c.logger.WithFields(logrus.Fields{
		"status":    status.String(),
		"dropped":   len(dropped),
		"resolved":  resolved,
		"fragments": fragments,
		"buffers":   buffers,
	}).Info("Disconnected from device")

	c.emit(DisconnectedEvent{Address: c.address, Status: status})
}

func (c *Connection) emit(ev Event) {
	if c.listener == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			c.logger.WithFields(logrus.Fields{
				"event": ev.EventName(),
				"panic": r,
			}).Error("Event listener panicked")
		}
	}()
	c.listener(ev)
}

// guard wraps a caller continuation so a panic cannot take the owner down
func (c *Connection) guard(kind Kind, cb Callback) Callback {
	return func(o Outcome) {
		defer func() {
			if r := recover(); r != nil {
				c.logger.WithFields(logrus.Fields{
					"kind":  kind.String(),
					"panic": r,
				}).Error("Callback panicked")
			}
		}()
		cb(o)
	}
}

// linkSink stamps hardware events with the link generation they belong to
type linkSink struct {
	conn       *Connection
	generation uint64
}

func (s *linkSink) Post(ev HardwareEvent) {
	if ev == nil {
		return
	}
	s.conn.mbox.post(func() {
		s.conn.handle(s.generation, ev)
	})
}
