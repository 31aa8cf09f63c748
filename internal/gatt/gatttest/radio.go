// Package gatttest provides a scripted in-memory Radio for exercising the
// gatt engine without hardware. Every submit is recorded as an Op; tests
// drive completions explicitly through the returned Link.
package gatttest

import (
	"fmt"
	"sync"
	"time"

	"github.com/srg/gattq/internal/gatt"
)

// Op names recorded by the fake radio
const (
	OpOpen       = "open"
	OpDiscover   = "discover_services"
	OpRead       = "read"
	OpWrite      = "write"
	OpNotify     = "set_notification"
	OpRSSI       = "read_rssi"
	OpMTU        = "request_mtu"
	OpPriority   = "connection_priority"
	OpRefresh    = "refresh_cache"
	OpDisconnect = "disconnect"
	OpClose      = "close"
)

// Op is one recorded call into the fake hardware
type Op struct {
	Name           string
	Address        string
	Service        string
	Characteristic string
	Value          []byte
	WithResponse   bool
	Mode           gatt.NotifyMode
	MTU            int
	Priority       gatt.Priority
	Params         gatt.LinkParams
}

func (o Op) String() string {
	if o.Characteristic != "" {
		return fmt.Sprintf("%s(%s/%s, %d bytes)", o.Name, o.Service, o.Characteristic, len(o.Value))
	}
	return o.Name
}

// Radio is a fake gatt.Radio. The zero value is not usable; use NewRadio.
type Radio struct {
	mu       sync.Mutex
	services []*gatt.Service
	links    []*Link
	openErr  error
	ops      chan Op
}

// NewRadio creates a radio whose links discover services
func NewRadio(services ...*gatt.Service) *Radio {
	return &Radio{
		services: services,
		ops:      make(chan Op, 1024),
	}
}

// FailOpen makes the next Open calls return err until cleared with nil
func (r *Radio) FailOpen(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.openErr = err
}

// Open records the request and returns a new scripted link
func (r *Radio) Open(address string, params gatt.LinkParams, sink gatt.EventSink) (gatt.Link, error) {
	r.mu.Lock()
	err := r.openErr
	r.mu.Unlock()

	if err != nil {
		r.record(Op{Name: OpOpen, Address: address, Params: params})
		return nil, err
	}

	// the link is published before the op so that Link() is current for whoever consumes it
	link := &Link{radio: r, address: address, params: params, sink: sink, failures: make(map[string]error)}
	r.mu.Lock()
	r.links = append(r.links, link)
	r.mu.Unlock()
	r.record(Op{Name: OpOpen, Address: address, Params: params})
	return link, nil
}

// Link returns the most recently opened link, nil if none
func (r *Radio) Link() *Link {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.links) == 0 {
		return nil
	}
	return r.links[len(r.links)-1]
}

// Links returns every link opened so far
func (r *Radio) Links() []*Link {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*Link(nil), r.links...)
}

// Ops exposes the recorded calls in submission order
func (r *Radio) Ops() <-chan Op {
	return r.ops
}

// NextOp waits up to timeout for the next recorded call
func (r *Radio) NextOp(timeout time.Duration) (Op, bool) {
	select {
	case op := <-r.ops:
		return op, true
	case <-time.After(timeout):
		return Op{}, false
	}
}

// Drain discards every recorded call not yet consumed
func (r *Radio) Drain() []Op {
	var ops []Op
	for {
		select {
		case op := <-r.ops:
			ops = append(ops, op)
		default:
			return ops
		}
	}
}

func (r *Radio) record(op Op) {
	r.ops <- op
}

// discovered returns a fresh copy of the configured tree per discovery
func (r *Radio) discovered() []*gatt.Service {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*gatt.Service, 0, len(r.services))
	for _, svc := range r.services {
		s := &gatt.Service{UUID: svc.UUID}
		for _, c := range svc.Characteristics {
			cc := *c
			cc.Descriptors = append([]*gatt.Descriptor(nil), c.Descriptors...)
			s.Characteristics = append(s.Characteristics, &cc)
		}
		out = append(out, s)
	}
	return out
}

// NewService builds a service for NewRadio
func NewService(uuid string, chars ...*gatt.Characteristic) *gatt.Service {
	return &gatt.Service{UUID: uuid, Characteristics: chars}
}

// NewCharacteristic builds a characteristic with the given properties
func NewCharacteristic(uuid string, props gatt.Property) *gatt.Characteristic {
	c := &gatt.Characteristic{UUID: uuid, Properties: props}
	if props&(gatt.PropNotify|gatt.PropIndicate) != 0 {
		c.Descriptors = []*gatt.Descriptor{{UUID: "2902"}}
	}
	return c
}
