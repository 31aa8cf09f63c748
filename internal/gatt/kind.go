package gatt

// Kind identifies an operation kind. Pending continuations and hardware
// completions are matched by kind and arrival order only.
type Kind int

const (
	KindConnect Kind = iota
	KindDisconnect
	KindRead
	KindWrite
	KindSetNotify
	KindReadRSSI
	KindRequestMTU
	KindDiscoverServices
	KindConnectionPriority
	KindRefreshCache
)

var kindNames = [...]string{
	KindConnect:            "connect",
	KindDisconnect:         "disconnect",
	KindRead:               "read",
	KindWrite:              "write",
	KindSetNotify:          "set_notify",
	KindReadRSSI:           "read_rssi",
	KindRequestMTU:         "request_mtu",
	KindDiscoverServices:   "discover_services",
	KindConnectionPriority: "connection_priority",
	KindRefreshCache:       "refresh_cache",
}

func (k Kind) String() string {
	if k >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}
