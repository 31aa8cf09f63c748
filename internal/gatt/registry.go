package gatt

import (
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Outcome is the terminal result handed to a pending continuation
type Outcome struct {
	Value any
	Err   error
}

// Callback is a continuation waiting for the completion of one operation kind
type Callback func(Outcome)

// Registry keeps one FIFO of pending continuations per operation kind.
// Kinds are kept in first-use order so teardown resolves them deterministically.
//
// The protocol carries no correlation id: DrainAll resolves every continuation
// of a kind with the same outcome, so concurrent same-kind requests receive
// the result of whichever request completed first.
//
// Not safe for concurrent use; only the connection owner touches it.
type Registry struct {
	lists *orderedmap.OrderedMap[Kind, []Callback]
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		lists: orderedmap.New[Kind, []Callback](),
	}
}

// Push appends cb to the list of kind
func (r *Registry) Push(kind Kind, cb Callback) {
	if cb == nil {
		return
	}
	list, _ := r.lists.Get(kind)
	r.lists.Set(kind, append(list, cb))
}

// DrainAll pops every continuation of kind and invokes it with outcome.
// Continuations pushed by the invoked callbacks land in a fresh list and are
// not resolved by this call. Returns the number of continuations resolved.
func (r *Registry) DrainAll(kind Kind, outcome Outcome) int {
	list, ok := r.lists.Get(kind)
	if !ok || len(list) == 0 {
		return 0
	}
	r.lists.Set(kind, nil)

	for _, cb := range list {
		cb(outcome)
	}
	return len(list)
}

// DrainEverything resolves the continuations of every kind with err
func (r *Registry) DrainEverything(err error) int {
	kinds := make([]Kind, 0, r.lists.Len())
	for pair := r.lists.Oldest(); pair != nil; pair = pair.Next() {
		kinds = append(kinds, pair.Key)
	}

	total := 0
	for _, kind := range kinds {
		total += r.DrainAll(kind, Outcome{Err: err})
	}
	return total
}

// Len returns the number of continuations pending for kind
func (r *Registry) Len(kind Kind) int {
	list, _ := r.lists.Get(kind)
	return len(list)
}

// Total returns the number of continuations pending across all kinds
func (r *Registry) Total() int {
	total := 0
	for pair := r.lists.Oldest(); pair != nil; pair = pair.Next() {
		total += len(pair.Value)
	}
	return total
}

// Counts returns the pending continuation count per kind, omitting empty kinds
func (r *Registry) Counts() map[Kind]int {
	counts := make(map[Kind]int)
	for pair := r.lists.Oldest(); pair != nil; pair = pair.Next() {
		if len(pair.Value) > 0 {
			counts[pair.Key] = len(pair.Value)
		}
	}
	return counts
}
