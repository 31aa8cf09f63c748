package gatt

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/gattq/internal/groutine"
)

// cccdUUID is the Client Characteristic Configuration descriptor
const cccdUUID = "2902"

// WriteOptions control how a payload is put on the air
type WriteOptions struct {
	// MaxFrameSize bounds a single write; 0 uses the negotiated MTU minus the ATT header
	MaxFrameSize int
	// InterChunkDelay paces unacknowledged chunks
	InterChunkDelay time.Duration
	// WithResponse selects acknowledged writes
	WithResponse bool
}

// Connect requests a link. cb receives nil once the link is up, before
// service discovery completes.
func (c *Connection) Connect(opts ConnectOptions, cb func(error)) {
	done := c.errCallback(KindConnect, cb)
	c.post(done, func() { c.connect(opts, done) })
}

// Disconnect requests teardown. With force the link is released and the
// DisconnectedEvent emitted without waiting for the hardware; otherwise cb
// runs once the hardware confirms link down.
func (c *Connection) Disconnect(force bool, cb func(error)) {
	done := c.errCallback(KindDisconnect, cb)
	c.post(done, func() { c.disconnect(force, done) })
}

// Read reads the value of a characteristic
func (c *Connection) Read(service, char string, cb func([]byte, error)) {
	done := c.guard(KindRead, func(o Outcome) {
		if cb == nil {
			return
		}
		v, _ := o.Value.([]byte)
		cb(v, o.Err)
	})
	c.post(done, func() {
		cmd := NewCommand(KindRead, c.dispatchRead).Target(service, char)
		c.enqueue(cmd, done)
	})
}

// Write writes data to a characteristic, splitting it into frames when it
// exceeds the frame size. Acknowledged writes resolve after the last frame
// is confirmed; unacknowledged writes resolve once the first frame is accepted.
func (c *Connection) Write(service, char string, data []byte, opts WriteOptions, cb func(error)) {
	done := c.errCallback(KindWrite, cb)
	payload := append([]byte(nil), data...)
	c.post(done, func() {
		cmd := NewCommand(KindWrite, func(cmd *Command) { c.dispatchWrite(cmd, opts) }).Target(service, char)
		cmd.Payload = payload
		c.enqueue(cmd, done)
	})
}

// Subscribe enables value change delivery. With factor > 1 the frames are
// reassembled into one ValueChangedEvent per factor*(mtu-3) bytes.
func (c *Connection) Subscribe(service, char string, factor int, cb func(error)) {
	done := c.errCallback(KindSetNotify, cb)
	c.post(done, func() {
		cmd := NewCommand(KindSetNotify, func(cmd *Command) { c.dispatchSubscribe(cmd, factor) }).Target(service, char)
		cmd.Descriptor = cccdUUID
		c.enqueue(cmd, done)
	})
}

// Unsubscribe disables value change delivery and drops any reassembly buffer
func (c *Connection) Unsubscribe(service, char string, cb func(error)) {
	done := c.errCallback(KindSetNotify, cb)
	c.post(done, func() {
		cmd := NewCommand(KindSetNotify, c.dispatchUnsubscribe).Target(service, char)
		cmd.Descriptor = cccdUUID
		cmd.Payload = cccdValue(NotifyDisabled)
		c.enqueue(cmd, done)
	})
}

// ReadRSSI reads the received signal strength of the link
func (c *Connection) ReadRSSI(cb func(int, error)) {
	done := c.intCallback(KindReadRSSI, cb)
	c.post(done, func() {
		c.enqueue(NewCommand(KindReadRSSI, c.dispatchReadRSSI), done)
	})
}

// RequestMTU negotiates the ATT MTU. cb receives the MTU in effect.
func (c *Connection) RequestMTU(mtu int, cb func(int, error)) {
	done := c.intCallback(KindRequestMTU, cb)
	c.post(done, func() {
		c.enqueue(NewCommand(KindRequestMTU, func(cmd *Command) { c.dispatchRequestMTU(cmd, mtu) }), done)
	})
}

// DiscoverServices runs service discovery and delivers the resulting tree
func (c *Connection) DiscoverServices(cb func([]*Service, error)) {
	done := c.guard(KindDiscoverServices, func(o Outcome) {
		if cb == nil {
			return
		}
		v, _ := o.Value.([]*Service)
		cb(v, o.Err)
	})
	c.post(done, func() {
		c.enqueue(c.discoverCommand(), done)
	})
}

// AwaitServices delivers the service tree without starting a discovery of
// its own when one can serve it: a Ready session answers at once and a
// queued or running discovery is joined. Otherwise it behaves like
// DiscoverServices.
func (c *Connection) AwaitServices(cb func([]*Service, error)) {
	done := c.guard(KindDiscoverServices, func(o Outcome) {
		if cb == nil {
			return
		}
		v, _ := o.Value.([]*Service)
		cb(v, o.Err)
	})
	c.post(done, func() {
		switch {
		case c.state == StateReady:
			done(Outcome{Value: c.services})
		case c.linkReady() && c.queue.Contains(KindDiscoverServices):
			c.pending.Push(KindDiscoverServices, done)
		default:
			c.enqueue(c.discoverCommand(), done)
		}
	})
}

// RequestConnectionPriority selects a connection interval preset
func (c *Connection) RequestConnectionPriority(p Priority, cb func(error)) {
	done := c.errCallback(KindConnectionPriority, cb)
	c.post(done, func() {
		c.enqueue(NewCommand(KindConnectionPriority, func(cmd *Command) {
			c.dispatchSync(cmd, func() error { return c.link.RequestConnectionPriority(p) })
		}), done)
	})
}

// RefreshCache clears the platform attribute cache and the cached service tree
func (c *Connection) RefreshCache(cb func(error)) {
	done := c.errCallback(KindRefreshCache, cb)
	c.post(done, func() {
		c.enqueue(NewCommand(KindRefreshCache, func(cmd *Command) {
			c.dispatchSync(cmd, func() error {
				if err := c.link.RefreshCache(); err != nil {
					return err
				}
				if c.cache != nil {
					c.cache.Invalidate(c.address)
				}
				return nil
			})
		}), done)
	})
}

func (c *Connection) errCallback(kind Kind, cb func(error)) Callback {
	return c.guard(kind, func(o Outcome) {
		if cb != nil {
			cb(o.Err)
		}
	})
}

func (c *Connection) intCallback(kind Kind, cb func(int, error)) Callback {
	return c.guard(kind, func(o Outcome) {
		if cb == nil {
			return
		}
		v, _ := o.Value.(int)
		cb(v, o.Err)
	})
}

// enqueue registers done under the command kind and queues the command.
// Operations are refused while no link is up.
func (c *Connection) enqueue(cmd *Command, done Callback) {
	if !c.linkReady() {
		done(Outcome{Err: newError(NotConnected, "%s requires an active link (state %s)", cmd.Kind, c.state)})
		return
	}
	c.pending.Push(cmd.Kind, done)
	c.queue.Enqueue(cmd)
}

// fail resolves the kind of the in-flight command with err and releases the queue
func (c *Connection) fail(cmd *Command, err error) {
	c.logger.WithFields(cmd.Fields()).WithError(err).Debug("Command failed")
	c.complete(cmd.Kind, Outcome{Err: err})
}

// complete resolves every continuation of kind and releases the queue
func (c *Connection) complete(kind Kind, outcome Outcome) {
	c.pending.DrainAll(kind, outcome)
	c.queue.Completed()
}

func (c *Connection) lookup(cmd *Command) (*Characteristic, bool) {
	char, err := findCharacteristic(c.services, cmd.Service, cmd.Characteristic)
	if err != nil {
		c.fail(cmd, err)
		return nil, false
	}
	return char, true
}

func (c *Connection) discoverCommand() *Command {
	return NewCommand(KindDiscoverServices, func(cmd *Command) {
		if err := c.link.DiscoverServices(); err != nil {
			c.fail(cmd, rejected(cmd.Kind, err))
		}
	})
}

func (c *Connection) dispatchRead(cmd *Command) {
	char, ok := c.lookup(cmd)
	if !ok {
		return
	}
	if err := c.link.ReadCharacteristic(char); err != nil {
		c.fail(cmd, rejected(cmd.Kind, err))
	}
}

func (c *Connection) frameSize(opts WriteOptions) int {
	if opts.MaxFrameSize > 0 {
		return opts.MaxFrameSize
	}
	return c.mtu - attHeaderSize
}

func (c *Connection) dispatchWrite(cmd *Command, opts WriteOptions) {
	// resumed after authentication: resend the chunk that was refused
	if f := c.fragments; f != nil && f.cmd == cmd {
		if err := c.link.WriteCharacteristic(f.char, f.Current(), true); err != nil {
			c.fragments = nil
			c.fail(cmd, rejected(cmd.Kind, err))
		}
		return
	}

	char, ok := c.lookup(cmd)
	if !ok {
		return
	}

	chunks := Split(cmd.Payload, c.frameSize(opts))
	c.logger.WithFields(cmd.Fields()).WithFields(logrus.Fields{
		"chunks":        len(chunks),
		"with_response": opts.WithResponse,
	}).Debug("Writing characteristic")

	if opts.WithResponse {
		if len(chunks) > 1 {
			c.fragments = newFragmentQueue(cmd, char, chunks)
		}
		if err := c.link.WriteCharacteristic(char, chunks[0], true); err != nil {
			c.fragments = nil
			c.fail(cmd, rejected(cmd.Kind, err))
		}
		return
	}

	if err := c.link.WriteCharacteristic(char, chunks[0], false); err != nil {
		c.fail(cmd, rejected(cmd.Kind, err))
		return
	}

	// no acknowledgment exists: the write is accepted once the first frame is
	c.pending.DrainAll(cmd.Kind, Outcome{})
	if len(chunks) == 1 {
		c.queue.Completed()
		return
	}
	c.pace(cmd, char, chunks[1:], opts.InterChunkDelay)
}

// pace submits the remaining unacknowledged chunks from a background
// goroutine, one owner round trip per chunk. The command stays in flight
// until the last chunk is submitted. A new link generation abandons the rest.
func (c *Connection) pace(cmd *Command, char *Characteristic, chunks [][]byte, delay time.Duration) {
	generation := c.generation
	log := c.logger.WithFields(cmd.Fields())

	groutine.Go(context.Background(), "gatt-pace-"+c.address, func(ctx context.Context) {
		for i, chunk := range chunks {
			if delay > 0 {
				time.Sleep(delay)
			}

			last := i == len(chunks)-1
			submitted := make(chan bool, 1)
			posted := c.mbox.post(func() {
				ok := false
				defer func() {
					// Runs on panic too; the pacer always gets an answer
					if !ok && c.queue.Head() == cmd {
						c.queue.Completed()
					}
					submitted <- ok
				}()

				if c.generation != generation || c.link == nil {
					return
				}
				if err := c.link.WriteCharacteristic(char, chunk, false); err != nil {
					log.WithError(err).WithField("chunk", i+1).Warn("Unacknowledged chunk rejected, abandoning write")
					return
				}
				ok = true
				if last && c.queue.Head() == cmd {
					c.queue.Completed()
				}
			})
			if !posted || !<-submitted {
				log.WithField("chunk", i+1).Debug("Paced write abandoned")
				return
			}
		}
	})
}

func cccdValue(mode NotifyMode) []byte {
	switch mode {
	case NotifyEnabled:
		return []byte{0x01, 0x00}
	case IndicateEnabled:
		return []byte{0x02, 0x00}
	default:
		return []byte{0x00, 0x00}
	}
}

func (c *Connection) dispatchSubscribe(cmd *Command, factor int) {
	char, ok := c.lookup(cmd)
	if !ok {
		return
	}
	if !char.CanNotify() {
		c.fail(cmd, newError(Unsupported, "characteristic %s supports neither notify nor indicate", char.UUID))
		return
	}

	mode := NotifyEnabled
	if !char.Properties.Has(PropNotify) {
		mode = IndicateEnabled
	}
	cmd.Payload = cccdValue(mode)

	key := attrKey{service: char.Service, char: char.UUID}
	delete(c.buffers, key)
	if factor > 1 {
		buf, err := NewNotificationBuffer(factor, c.mtu-attHeaderSize)
		if err != nil {
			c.fail(cmd, err)
			return
		}
		c.buffers[key] = buf
	}

	if err := c.link.SetNotification(char, mode); err != nil {
		delete(c.buffers, key)
		c.fail(cmd, rejected(cmd.Kind, err))
	}
}

func (c *Connection) dispatchUnsubscribe(cmd *Command) {
	char, ok := c.lookup(cmd)
	if !ok {
		return
	}
	delete(c.buffers, attrKey{service: char.Service, char: char.UUID})
	if err := c.link.SetNotification(char, NotifyDisabled); err != nil {
		c.fail(cmd, rejected(cmd.Kind, err))
	}
}

func (c *Connection) dispatchReadRSSI(cmd *Command) {
	if err := c.link.ReadRSSI(); err != nil {
		c.fail(cmd, rejected(cmd.Kind, err))
	}
}

func (c *Connection) dispatchRequestMTU(cmd *Command, mtu int) {
	if err := c.link.RequestMTU(mtu); err != nil {
		c.fail(cmd, rejected(cmd.Kind, err))
	}
}

// dispatchSync runs a hardware call that completes without an event
func (c *Connection) dispatchSync(cmd *Command, call func() error) {
	if err := call(); err != nil {
		c.fail(cmd, rejected(cmd.Kind, err))
		return
	}
	c.complete(cmd.Kind, Outcome{})
}
