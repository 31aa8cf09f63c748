// Package gatt is a client-side GATT engine. It serializes attribute
// operations per connection so the radio sees at most one transaction in
// flight, routes hardware completions back to waiting callers, splits
// writes that exceed the frame size and reassembles buffered notifications.
//
// Each Connection is an actor: API calls and hardware events are posted to
// an owner goroutine that alone mutates the state machine, the CommandQueue
// and the callback Registry. Hardware shims implement Radio and Link and
// report completions through the EventSink handed to Radio.Open.
package gatt
