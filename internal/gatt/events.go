package gatt

// HardwareEvent is a completion or unsolicited event reported by a Link.
// The variants below are the only implementations.
type HardwareEvent interface {
	hardwareEvent()
}

// LinkStateChanged reports link up or link down
type LinkStateChanged struct {
	Connected bool
	Status    Status
}

// ServicesDiscovered completes DiscoverServices
type ServicesDiscovered struct {
	Services []*Service
	Status   Status
}

// CharacteristicRead completes ReadCharacteristic
type CharacteristicRead struct {
	Service        string
	Characteristic string
	Value          []byte
	Status         Status
}

// CharacteristicWritten completes an acknowledged WriteCharacteristic
type CharacteristicWritten struct {
	Service        string
	Characteristic string
	Status         Status
}

// DescriptorWritten completes SetNotification
type DescriptorWritten struct {
	Service        string
	Characteristic string
	Descriptor     string
	Status         Status
}

// RSSIRead completes ReadRSSI
type RSSIRead struct {
	RSSI   int
	Status Status
}

// MTUChanged completes RequestMTU
type MTUChanged struct {
	MTU    int
	Status Status
}

// CharacteristicChanged is an unsolicited notification or indication
type CharacteristicChanged struct {
	Service        string
	Characteristic string
	Value          []byte
}

// BondStateChanged reports the outcome of an out-of-band bonding flow
type BondStateChanged struct {
	Bonded bool
}

func (LinkStateChanged) hardwareEvent()      {}
func (ServicesDiscovered) hardwareEvent()    {}
func (CharacteristicRead) hardwareEvent()    {}
func (CharacteristicWritten) hardwareEvent() {}
func (DescriptorWritten) hardwareEvent()     {}
func (RSSIRead) hardwareEvent()              {}
func (MTUChanged) hardwareEvent()            {}
func (CharacteristicChanged) hardwareEvent() {}
func (BondStateChanged) hardwareEvent()      {}

// Event is an outbound notification for the transport collaborator
type Event interface {
	EventName() string
	DeviceAddress() string
}

// Listener receives outbound events on the connection owner goroutine.
// It must not block.
type Listener func(Event)

// ConnectedEvent is emitted when a link comes up
type ConnectedEvent struct {
	Address string
}

// DisconnectedEvent is emitted once per teardown
type DisconnectedEvent struct {
	Address string
	Status  Status
}

// ServicesDiscoveredEvent carries the discovered service tree
type ServicesDiscoveredEvent struct {
	Address  string
	Services []*Service
}

// ValueChangedEvent carries one logical notification, reassembled when the
// subscription buffers frames
type ValueChangedEvent struct {
	Address        string
	Service        string
	Characteristic string
	Value          []byte
}

func (e ConnectedEvent) EventName() string          { return "connected" }
func (e DisconnectedEvent) EventName() string       { return "disconnected" }
func (e ServicesDiscoveredEvent) EventName() string { return "services_discovered" }
func (e ValueChangedEvent) EventName() string       { return "characteristic_value_changed" }

func (e ConnectedEvent) DeviceAddress() string          { return e.Address }
func (e DisconnectedEvent) DeviceAddress() string       { return e.Address }
func (e ServicesDiscoveredEvent) DeviceAddress() string { return e.Address }
func (e ValueChangedEvent) DeviceAddress() string       { return e.Address }
