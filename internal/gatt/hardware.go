package gatt

// PHY is the preferred physical layer requested for a link
type PHY int

const (
	PHY1M PHY = iota
	PHY2M
	PHYCoded
)

func (p PHY) String() string {
	switch p {
	case PHY2M:
		return "2m"
	case PHYCoded:
		return "coded"
	default:
		return "1m"
	}
}

// ParsePHY maps "1m", "2m" and "coded" to a PHY. Unknown names yield PHY1M and false.
func ParsePHY(name string) (PHY, bool) {
	switch name {
	case "", "1m":
		return PHY1M, true
	case "2m":
		return PHY2M, true
	case "coded":
		return PHYCoded, true
	default:
		return PHY1M, false
	}
}

// Priority is a connection interval preset
type Priority int

const (
	PriorityBalanced Priority = iota
	PriorityHigh
	PriorityLowPower
)

func (p Priority) String() string {
	switch p {
	case PriorityHigh:
		return "high"
	case PriorityLowPower:
		return "low_power"
	default:
		return "balanced"
	}
}

// NotifyMode selects how value changes are delivered
type NotifyMode int

const (
	NotifyDisabled NotifyMode = iota
	NotifyEnabled
	IndicateEnabled
)

func (m NotifyMode) String() string {
	switch m {
	case NotifyEnabled:
		return "notify"
	case IndicateEnabled:
		return "indicate"
	default:
		return "disabled"
	}
}

// LinkParams are derived from ConnectOptions when a link is requested
type LinkParams struct {
	AutoReconnect bool
	PHY           PHY
}

// EventSink receives hardware events. Implementations never block and are
// safe to call from any goroutine.
type EventSink interface {
	Post(ev HardwareEvent)
}

// Radio is the platform BLE stack
type Radio interface {
	// Open requests a link to address. The returned handle is usable for
	// Disconnect/Close immediately; link up or down is reported through sink.
	Open(address string, params LinkParams, sink EventSink) (Link, error)
}

// Link is one physical link. Submit methods return an error only when the
// platform refused to start the operation; otherwise exactly one completion
// event follows on the sink, with these exceptions: WriteCharacteristic
// without response, RequestConnectionPriority and RefreshCache complete
// synchronously and post nothing.
type Link interface {
	DiscoverServices() error
	ReadCharacteristic(c *Characteristic) error
	WriteCharacteristic(c *Characteristic, value []byte, withResponse bool) error
	// SetNotification enables or disables value change delivery; completes
	// with DescriptorWritten for the client configuration descriptor.
	SetNotification(c *Characteristic, mode NotifyMode) error
	ReadRSSI() error
	RequestMTU(mtu int) error
	RequestConnectionPriority(p Priority) error
	RefreshCache() error

	// Disconnect requests teardown; LinkStateChanged{Connected:false} follows.
	Disconnect() error
	// Close releases the handle. No events are delivered afterwards.
	Close() error
}
