package gatt

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// handle routes one hardware event on the owner goroutine
func (c *Connection) handle(generation uint64, ev HardwareEvent) {
	if generation != c.generation {
		c.logger.WithFields(logrus.Fields{
			"event":      fmt.Sprintf("%T", ev),
			"generation": generation,
			"current":    c.generation,
		}).Debug("Dropping event from stale link")
		return
	}

	switch e := ev.(type) {
	case LinkStateChanged:
		c.onLinkState(e)
	case ServicesDiscovered:
		c.onServicesDiscovered(e)
	case CharacteristicRead:
		c.onCharacteristicRead(e)
	case CharacteristicWritten:
		c.onCharacteristicWritten(e)
	case DescriptorWritten:
		c.onDescriptorWritten(e)
	case RSSIRead:
		c.onRSSIRead(e)
	case MTUChanged:
		c.onMTUChanged(e)
	case CharacteristicChanged:
		c.onCharacteristicChanged(e)
	case BondStateChanged:
		c.onBondStateChanged(e)
	default:
		c.logger.WithField("event", fmt.Sprintf("%T", ev)).Warn("Unknown hardware event")
	}
}

// inFlight returns the head command if it is of kind, logging otherwise
func (c *Connection) inFlight(kind Kind, status Status) *Command {
	head := c.queue.Head()
	if head == nil || head.Kind != kind {
		fields := logrus.Fields{"kind": kind.String(), "status": status.String()}
		if head != nil {
			fields["in_flight"] = head.Kind.String()
		}
		c.logger.WithFields(fields).Warn("Completion for a command that is not in flight, ignoring")
		return nil
	}
	return head
}

// suspendForAuth stalls the queue on insufficient authentication or
// encryption. Nothing is resolved; BondStateChanged decides the outcome.
func (c *Connection) suspendForAuth(head *Command, status Status) bool {
	if !status.RequiresAuthentication() {
		return false
	}
	c.logger.WithFields(head.Fields()).WithField("status", status.String()).Warn("Authentication required, waiting for bonding")
	c.queue.Suspend()
	return true
}

func (c *Connection) onLinkState(e LinkStateChanged) {
	if e.Connected && e.Status.OK() {
		c.linkUp()
		return
	}
	if c.state == StateDisconnected && c.link == nil {
		return
	}
	c.teardown(e.Status)
}

func (c *Connection) onServicesDiscovered(e ServicesDiscovered) {
	head := c.inFlight(KindDiscoverServices, e.Status)
	if head == nil {
		return
	}
	if !e.Status.OK() {
		c.complete(head.Kind, Outcome{Err: statusError(head.Kind, e.Status)})
		return
	}

	services := normalizeServices(e.Services)
	c.setServices(services)
	if c.state == StateConnected {
		c.setState(StateReady)
	}
	if c.cache != nil {
		c.cache.Store(c.address, services)
	}

	c.logger.WithFields(logrus.Fields{
		"services":        len(services),
		"characteristics": CountCharacteristics(services),
	}).Info("Services discovered")

	c.complete(head.Kind, Outcome{Value: services})
	c.emit(ServicesDiscoveredEvent{Address: c.address, Services: services})
}

func (c *Connection) onCharacteristicRead(e CharacteristicRead) {
	head := c.inFlight(KindRead, e.Status)
	if head == nil || c.suspendForAuth(head, e.Status) {
		return
	}
	if !e.Status.OK() {
		c.complete(head.Kind, Outcome{Err: statusError(head.Kind, e.Status)})
		return
	}
	c.complete(head.Kind, Outcome{Value: append([]byte(nil), e.Value...)})
}

func (c *Connection) onCharacteristicWritten(e CharacteristicWritten) {
	head := c.inFlight(KindWrite, e.Status)
	if head == nil || c.suspendForAuth(head, e.Status) {
		return
	}
	if !e.Status.OK() {
		c.fragments = nil
		c.complete(head.Kind, Outcome{Err: statusError(head.Kind, e.Status)})
		return
	}

	if f := c.fragments; f != nil && f.cmd == head {
		if f.Advance() {
			c.logger.WithFields(head.Fields()).WithFields(logrus.Fields{
				"chunk":  f.Index() + 1,
				"chunks": f.Len(),
			}).Debug("Writing next chunk")
			if err := c.link.WriteCharacteristic(f.char, f.Current(), true); err != nil {
				c.fragments = nil
				c.fail(head, rejected(head.Kind, err))
			}
			return
		}
		c.fragments = nil
	}
	c.complete(head.Kind, Outcome{})
}

func (c *Connection) onDescriptorWritten(e DescriptorWritten) {
	head := c.inFlight(KindSetNotify, e.Status)
	if head == nil {
		return
	}
	if !e.Status.OK() {
		// a failed enable must not leave a reassembly buffer behind
		if len(head.Payload) > 0 && head.Payload[0] != 0 {
			delete(c.buffers, attrKey{service: NormalizeUUID(head.Service), char: NormalizeUUID(head.Characteristic)})
		}
		c.complete(head.Kind, Outcome{Err: statusError(head.Kind, e.Status)})
		return
	}
	c.complete(head.Kind, Outcome{})
}

func (c *Connection) onRSSIRead(e RSSIRead) {
	head := c.inFlight(KindReadRSSI, e.Status)
	if head == nil {
		return
	}
	if !e.Status.OK() {
		c.complete(head.Kind, Outcome{Err: statusError(head.Kind, e.Status)})
		return
	}
	c.complete(head.Kind, Outcome{Value: e.RSSI})
}

func (c *Connection) onMTUChanged(e MTUChanged) {
	head := c.inFlight(KindRequestMTU, e.Status)
	if head == nil {
		return
	}
	if !e.Status.OK() {
		c.complete(head.Kind, Outcome{Err: statusError(head.Kind, e.Status)})
		return
	}
	c.mtu = e.MTU
	c.logger.WithField("mtu", e.MTU).Info("MTU changed")
	c.complete(head.Kind, Outcome{Value: e.MTU})
}

// onCharacteristicChanged never touches the command queue
func (c *Connection) onCharacteristicChanged(e CharacteristicChanged) {
	service := NormalizeUUID(e.Service)
	char := NormalizeUUID(e.Characteristic)
	value := append([]byte(nil), e.Value...)

	buf, ok := c.buffers[attrKey{service: service, char: char}]
	if !ok {
		c.emit(ValueChangedEvent{Address: c.address, Service: service, Characteristic: char, Value: value})
		return
	}

	for len(value) > 0 {
		value = buf.Put(value)
		if buf.IsFull() {
			c.emit(ValueChangedEvent{Address: c.address, Service: service, Characteristic: char, Value: buf.Drain()})
		}
	}
}

func (c *Connection) onBondStateChanged(e BondStateChanged) {
	if !c.queue.Suspended() {
		c.logger.WithField("bonded", e.Bonded).Debug("Bond state changed with nothing suspended")
		return
	}
	head := c.queue.Head()
	if e.Bonded {
		c.queue.Resume()
		return
	}
	c.fragments = nil
	c.fail(head, newError(AuthenticationRequired, "bonding failed for %s", head.Kind))
}
