package gatttest

import (
	"sync"

	"github.com/srg/gattq/internal/gatt"
)

// Link is a scripted gatt.Link. Submits are recorded and succeed unless a
// failure was armed with FailNext; completions are posted by the test.
type Link struct {
	radio   *Radio
	address string
	params  gatt.LinkParams
	sink    gatt.EventSink

	mu       sync.Mutex
	failures map[string]error
	panics   map[string]any
	closed   bool
}

// Params returns the parameters the link was opened with
func (l *Link) Params() gatt.LinkParams {
	return l.params
}

// Closed reports whether the engine released the handle
func (l *Link) Closed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

// FailNext makes the next submit of op return err
func (l *Link) FailNext(op string, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failures[op] = err
}

// PanicNext makes the next submit of op panic with v, as a broken driver would
func (l *Link) PanicNext(op string, v any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.panics == nil {
		l.panics = make(map[string]any)
	}
	l.panics[op] = v
}

func (l *Link) submit(op Op) error {
	op.Address = l.address
	l.radio.record(op)

	l.mu.Lock()
	defer l.mu.Unlock()
	if v, ok := l.panics[op.Name]; ok {
		delete(l.panics, op.Name)
		panic(v)
	}
	if err, ok := l.failures[op.Name]; ok {
		delete(l.failures, op.Name)
		return err
	}
	return nil
}

func (l *Link) DiscoverServices() error {
	return l.submit(Op{Name: OpDiscover})
}

func (l *Link) ReadCharacteristic(c *gatt.Characteristic) error {
	return l.submit(Op{Name: OpRead, Service: c.Service, Characteristic: c.UUID})
}

func (l *Link) WriteCharacteristic(c *gatt.Characteristic, value []byte, withResponse bool) error {
	return l.submit(Op{
		Name:           OpWrite,
		Service:        c.Service,
		Characteristic: c.UUID,
		Value:          append([]byte(nil), value...),
		WithResponse:   withResponse,
	})
}

func (l *Link) SetNotification(c *gatt.Characteristic, mode gatt.NotifyMode) error {
	return l.submit(Op{Name: OpNotify, Service: c.Service, Characteristic: c.UUID, Mode: mode})
}

func (l *Link) ReadRSSI() error {
	return l.submit(Op{Name: OpRSSI})
}

func (l *Link) RequestMTU(mtu int) error {
	return l.submit(Op{Name: OpMTU, MTU: mtu})
}

func (l *Link) RequestConnectionPriority(p gatt.Priority) error {
	return l.submit(Op{Name: OpPriority, Priority: p})
}

func (l *Link) RefreshCache() error {
	return l.submit(Op{Name: OpRefresh})
}

func (l *Link) Disconnect() error {
	return l.submit(Op{Name: OpDisconnect})
}

func (l *Link) Close() error {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
	return l.submit(Op{Name: OpClose})
}

// Post delivers a raw hardware event through the link's sink
func (l *Link) Post(ev gatt.HardwareEvent) {
	l.sink.Post(ev)
}

// Up reports the link as connected
func (l *Link) Up() {
	l.Post(gatt.LinkStateChanged{Connected: true, Status: gatt.StatusSuccess})
}

// Down reports the link as lost with status
func (l *Link) Down(status gatt.Status) {
	l.Post(gatt.LinkStateChanged{Connected: false, Status: status})
}

// Discovered completes service discovery with the radio's service tree
func (l *Link) Discovered() {
	l.Post(gatt.ServicesDiscovered{Services: l.radio.discovered(), Status: gatt.StatusSuccess})
}

// DiscoveryFailed completes service discovery with status
func (l *Link) DiscoveryFailed(status gatt.Status) {
	l.Post(gatt.ServicesDiscovered{Status: status})
}

// ReadDone completes a characteristic read
func (l *Link) ReadDone(service, char string, value []byte, status gatt.Status) {
	l.Post(gatt.CharacteristicRead{Service: service, Characteristic: char, Value: value, Status: status})
}

// WriteDone acknowledges a characteristic write
func (l *Link) WriteDone(service, char string, status gatt.Status) {
	l.Post(gatt.CharacteristicWritten{Service: service, Characteristic: char, Status: status})
}

// DescriptorDone completes a notification configuration write
func (l *Link) DescriptorDone(service, char string, status gatt.Status) {
	l.Post(gatt.DescriptorWritten{Service: service, Characteristic: char, Descriptor: "2902", Status: status})
}

// RSSIDone completes an RSSI read
func (l *Link) RSSIDone(rssi int, status gatt.Status) {
	l.Post(gatt.RSSIRead{RSSI: rssi, Status: status})
}

// MTUDone completes an MTU exchange
func (l *Link) MTUDone(mtu int, status gatt.Status) {
	l.Post(gatt.MTUChanged{MTU: mtu, Status: status})
}

// Notify delivers an unsolicited value change
func (l *Link) Notify(service, char string, value []byte) {
	l.Post(gatt.CharacteristicChanged{Service: service, Characteristic: char, Value: value})
}

// Bond reports the outcome of a bonding flow
func (l *Link) Bond(bonded bool) {
	l.Post(gatt.BondStateChanged{Bonded: bonded})
}
