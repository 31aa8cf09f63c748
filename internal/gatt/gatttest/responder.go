package gatttest

import (
	"sync"

	"github.com/srg/gattq/internal/gatt"
)

// DefaultRSSI is reported by a Responder unless changed with SetRSSI
const DefaultRSSI = -50

// Responder plays a well-behaved peripheral: every recorded op of its radio
// is answered with a successful completion on the most recent link.
type Responder struct {
	radio *Radio

	mu     sync.Mutex
	values map[string][]byte
	frames map[string][][]byte
	writes []Op
	rssi   int

	stop chan struct{}
	done chan struct{}
}

// NewResponder creates a responder for r; call Start to begin answering
func NewResponder(r *Radio) *Responder {
	return &Responder{
		radio:  r,
		values: make(map[string][]byte),
		frames: make(map[string][][]byte),
		rssi:   DefaultRSSI,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

func attrKey(service, char string) string {
	return gatt.NormalizeUUID(service) + "/" + gatt.NormalizeUUID(char)
}

// SetValue sets what reads of the characteristic return. Characteristics
// without a value fail reads with StatusReadNotPermitted.
func (p *Responder) SetValue(service, char string, value []byte) *Responder {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.values[attrKey(service, char)] = value
	return p
}

// SetNotifications queues frames emitted right after delivery is enabled
func (p *Responder) SetNotifications(service, char string, frames ...[]byte) *Responder {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.frames[attrKey(service, char)] = frames
	return p
}

// SetRSSI sets the reported signal strength
func (p *Responder) SetRSSI(rssi int) *Responder {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rssi = rssi
	return p
}

// Writes returns every write op answered so far
func (p *Responder) Writes() []Op {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Op(nil), p.writes...)
}

// Start answers ops in a background goroutine until Stop
func (p *Responder) Start() {
	go func() {
		defer close(p.done)
		for {
			select {
			case <-p.stop:
				return
			case op := <-p.radio.Ops():
				p.answer(op)
			}
		}
	}()
}

// Stop ends the answering goroutine and waits for it
func (p *Responder) Stop() {
	close(p.stop)
	<-p.done
}

func (p *Responder) answer(op Op) {
	link := p.radio.Link()
	if link == nil {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	switch op.Name {
	case OpOpen:
		link.Up()
	case OpDiscover:
		link.Discovered()
	case OpRead:
		if value, ok := p.values[attrKey(op.Service, op.Characteristic)]; ok {
			link.ReadDone(op.Service, op.Characteristic, value, gatt.StatusSuccess)
		} else {
			link.ReadDone(op.Service, op.Characteristic, nil, gatt.StatusReadNotPermitted)
		}
	case OpWrite:
		p.writes = append(p.writes, op)
		if op.WithResponse {
			link.WriteDone(op.Service, op.Characteristic, gatt.StatusSuccess)
		}
	case OpNotify:
		link.DescriptorDone(op.Service, op.Characteristic, gatt.StatusSuccess)
		if op.Mode != gatt.NotifyDisabled {
			for _, frame := range p.frames[attrKey(op.Service, op.Characteristic)] {
				link.Notify(op.Service, op.Characteristic, frame)
			}
		}
	case OpRSSI:
		link.RSSIDone(p.rssi, gatt.StatusSuccess)
	case OpMTU:
		link.MTUDone(op.MTU, gatt.StatusSuccess)
	case OpDisconnect:
		link.Down(gatt.StatusSuccess)
	}
}
