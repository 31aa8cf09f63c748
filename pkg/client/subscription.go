package client

import (
	"strings"
	"sync"

	"github.com/cornelk/hashmap"
	"github.com/srg/gattq/internal/gatt"
	"github.com/srg/gattq/internal/ringchan"
)

// DefaultBacklog is used when the configured notification backlog is not positive
const DefaultBacklog = 128

// Subscription receives the value changes of one characteristic. When the
// consumer falls behind, the oldest undelivered values are overwritten.
// The channel is closed on Unsubscribe, on disconnect and on Client.Close.
type Subscription struct {
	Address        string
	Service        string
	Characteristic string

	ring *ringchan.RingChannel[gatt.ValueChangedEvent]
}

// C returns the delivery channel
func (s *Subscription) C() <-chan gatt.ValueChangedEvent {
	return s.ring.C()
}

// Metrics reports how many values were delivered and overwritten
func (s *Subscription) Metrics() ringchan.Metrics {
	return s.ring.Metrics()
}

func (s *Subscription) close() {
	s.ring.Close()
}

func subscriptionKey(address, service, char string) string {
	return gatt.NormalizeAddress(address) + "/" + gatt.NormalizeUUID(service) + "/" + gatt.NormalizeUUID(char)
}

// subscriptions is read on owner goroutines and written by API callers
type subscriptions struct {
	backlog int
	mu      sync.Mutex // serializes writers; readers go lock-free through the map
	byKey   *hashmap.Map[string, *Subscription]
}

func newSubscriptions(backlog int) *subscriptions {
	if backlog <= 0 {
		backlog = DefaultBacklog
	}
	return &subscriptions{
		backlog: backlog,
		byKey:   hashmap.New[string, *Subscription](),
	}
}

// add registers a subscription, ending any previous one for the same key
func (s *subscriptions) add(address, service, char string) *Subscription {
	sub := &Subscription{
		Address:        gatt.NormalizeAddress(address),
		Service:        gatt.NormalizeUUID(service),
		Characteristic: gatt.NormalizeUUID(char),
		ring:           ringchan.New[gatt.ValueChangedEvent](s.backlog),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	key := subscriptionKey(address, service, char)
	if old, ok := s.byKey.Get(key); ok {
		old.close()
	}
	s.byKey.Set(key, sub)
	return sub
}

// remove ends sub if it is still the registered one
func (s *subscriptions) remove(sub *Subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := subscriptionKey(sub.Address, sub.Service, sub.Characteristic)
	if cur, ok := s.byKey.Get(key); ok && cur == sub {
		s.byKey.Del(key)
	}
	sub.close()
}

func (s *subscriptions) removeKey(address, service, char string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := subscriptionKey(address, service, char)
	if sub, ok := s.byKey.Get(key); ok {
		s.byKey.Del(key)
		sub.close()
	}
}

func (s *subscriptions) deliver(ev gatt.ValueChangedEvent) {
	if sub, ok := s.byKey.Get(subscriptionKey(ev.Address, ev.Service, ev.Characteristic)); ok {
		sub.ring.Send(ev)
	}
}

func (s *subscriptions) closeAddress(address string) {
	prefix := gatt.NormalizeAddress(address) + "/"
	s.closeMatching(func(sub *Subscription, key string) bool {
		return strings.HasPrefix(key, prefix)
	})
}

func (s *subscriptions) closeAll() {
	s.closeMatching(func(*Subscription, string) bool { return true })
}

func (s *subscriptions) closeMatching(match func(sub *Subscription, key string) bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var keys []string
	s.byKey.Range(func(key string, sub *Subscription) bool {
		if match(sub, key) {
			keys = append(keys, key)
		}
		return true
	})
	for _, key := range keys {
		if sub, ok := s.byKey.Get(key); ok {
			s.byKey.Del(key)
			sub.close()
		}
	}
}

func (s *subscriptions) len() int {
	return s.byKey.Len()
}
