package client

import "sync"

// State is the Client's connection phase. It advances monotonically
// forward during a single connect attempt and only steps backward
// during teardown.
type State int

const (
	StateDisconnected State = iota
	StateConnected
	StateSecureChannel
	StateSession
	StateSessionRenewed
	StateSessionDisconnected
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "Disconnected"
	case StateConnected:
		return "Connected"
	case StateSecureChannel:
		return "SecureChannel"
	case StateSession:
		return "Session"
	case StateSessionRenewed:
		return "SessionRenewed"
	case StateSessionDisconnected:
		return "SessionDisconnected"
	default:
		return "Unknown"
	}
}

// StateCallback is invoked whenever the Client's state changes. It must
// not itself mutate the Client's state synchronously — Set runs it
// outside its own lock precisely so a callback can safely call State()
// without deadlocking, but calling Set from within the callback would
// still recurse.
type StateCallback func(old, new State)

// stateRegister tracks the Client's connection phase behind a mutex,
// notifying an optional callback on every change.
type stateRegister struct {
	mu       sync.Mutex
	state    State
	callback StateCallback
}

// Get returns the current state.
func (r *stateRegister) Get() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Set updates the state. Setting to the current value is a no-op;
// otherwise the callback, if present, runs synchronously before Set
// returns, but outside the lock so a callback that reads (without
// mutating) client state cannot deadlock against a concurrent Get.
func (r *stateRegister) Set(new State) {
	r.mu.Lock()
	old := r.state
	if old == new {
		r.mu.Unlock()
		return
	}
	r.state = new
	cb := r.callback
	r.mu.Unlock()

	if cb != nil {
		cb(old, new)
	}
}
