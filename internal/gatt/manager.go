package gatt

import (
	"sort"
	"strings"

	"github.com/cornelk/hashmap"
	"github.com/sirupsen/logrus"
)

// Manager is the process-wide registry of sessions keyed by device address.
// A session is created on first reference and removed only on request while
// disconnected.
type Manager struct {
	radio  Radio
	opts   Options
	logger *logrus.Logger
	conns  *hashmap.Map[string, *Connection]
}

// NewManager creates an empty manager. Options apply to every session.
func NewManager(radio Radio, opts Options) *Manager {
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}
	return &Manager{
		radio:  radio,
		opts:   opts,
		logger: opts.Logger,
		conns:  hashmap.New[string, *Connection](),
	}
}

// NormalizeAddress returns the map key form of a device address
func NormalizeAddress(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

// Connection returns the session for address, creating it on first reference
func (m *Manager) Connection(address string) *Connection {
	key := NormalizeAddress(address)
	if conn, ok := m.conns.Get(key); ok {
		return conn
	}

	conn := NewConnection(key, m.radio, m.opts)
	actual, loaded := m.conns.GetOrInsert(key, conn)
	if loaded {
		// lost the race to another caller
		conn.Close()
		return actual
	}

	m.logger.WithField("address", key).Debug("Session created")
	return conn
}

// Lookup returns the session for address without creating one
func (m *Manager) Lookup(address string) (*Connection, bool) {
	return m.conns.Get(NormalizeAddress(address))
}

// Remove stops and forgets the session of address. Refused with
// ErrStillConnected unless the session is disconnected.
func (m *Manager) Remove(address string) error {
	key := NormalizeAddress(address)
	conn, ok := m.conns.Get(key)
	if !ok {
		return nil
	}
	if conn.State() != StateDisconnected {
		return newError(StillConnected, "session %s is %s", key, conn.State())
	}

	m.conns.Del(key)
	conn.Close()
	m.logger.WithField("address", key).Debug("Session removed")
	return nil
}

// Addresses returns the addresses of every known session, sorted
func (m *Manager) Addresses() []string {
	addrs := make([]string, 0, m.conns.Len())
	m.conns.Range(func(key string, _ *Connection) bool {
		addrs = append(addrs, key)
		return true
	})
	sort.Strings(addrs)
	return addrs
}

// Len returns the number of sessions
func (m *Manager) Len() int {
	return m.conns.Len()
}

// CachedServices returns the service tree last discovered for address,
// surviving disconnects while the profile cache keeps it
func (m *Manager) CachedServices(address string) ([]*Service, bool) {
	if m.opts.Cache == nil {
		return nil, false
	}
	return m.opts.Cache.Load(NormalizeAddress(address))
}

// Close tears down and forgets every session
func (m *Manager) Close() {
	var conns []*Connection
	m.conns.Range(func(key string, conn *Connection) bool {
		conns = append(conns, conn)
		return true
	})

	for _, conn := range conns {
		m.conns.Del(conn.Address())
		conn.Close()
	}
	m.logger.WithField("sessions", len(conns)).Debug("Manager closed")
}
