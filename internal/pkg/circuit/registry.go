package circuit

import (
	"sort"
	"sync"
	"time"
)

// Well-known resource names. Each name has exactly one breaker shared by
// every call site that protects it.
const (
	ResourceConnection  = "broker_connection"
	ResourceTrade       = "trade_submission"
	ResourceNotifier    = "notifier"
	ResourceStorage     = "storage"
	ResourceExternalAPI = "external_api"
)

// Registry holds the named breakers for one process. It is constructed
// explicitly at startup and handed to components; there are no package-level
// singletons.
type Registry struct {
	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
	defaults map[string]Settings
	onChange func(name string, from, to State)
}

// NewRegistry builds a registry with tuned presets per resource. Trade
// submission carries a tighter gate than notifications: blind retries on
// trading are riskier than a missed message.
func NewRegistry(exclude func(error) bool) *Registry {
	return &Registry{
		breakers: make(map[string]*CircuitBreaker),
		defaults: map[string]Settings{
			ResourceConnection:  {FailureThreshold: 5, RecoveryTimeout: 120 * time.Second, SuccessThreshold: 2, HalfOpenMaxCalls: 1, Exclude: exclude},
			ResourceTrade:       {FailureThreshold: 3, RecoveryTimeout: 60 * time.Second, SuccessThreshold: 2, HalfOpenMaxCalls: 1, Exclude: exclude},
			ResourceNotifier:    {FailureThreshold: 5, RecoveryTimeout: 300 * time.Second, SuccessThreshold: 1, HalfOpenMaxCalls: 1},
			ResourceStorage:     {FailureThreshold: 5, RecoveryTimeout: 120 * time.Second, SuccessThreshold: 2, HalfOpenMaxCalls: 1},
			ResourceExternalAPI: {FailureThreshold: 4, RecoveryTimeout: 180 * time.Second, SuccessThreshold: 2, HalfOpenMaxCalls: 2},
		},
	}
}

// SetStateChangeHandler installs the transition sink on all present and
// future breakers.
func (r *Registry) SetStateChangeHandler(handler func(name string, from, to State)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onChange = handler
	for _, cb := range r.breakers {
		cb.SetStateChangeHandler(handler)
	}
}

// Get returns the breaker for name, creating it from the preset (or generic
// defaults) on first use.
func (r *Registry) Get(name string) *CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cb, ok := r.breakers[name]; ok {
		return cb
	}
	settings, ok := r.defaults[name]
	if !ok {
		settings = r.defaults[ResourceExternalAPI]
	}
	cb := NewCircuitBreaker(name, settings)
	if r.onChange != nil {
		cb.SetStateChangeHandler(r.onChange)
	}
	r.breakers[name] = cb
	return cb
}

// StatusTable snapshots every registered breaker, sorted by name.
func (r *Registry) StatusTable() []Status {
	r.mu.Lock()
	breakers := make([]*CircuitBreaker, 0, len(r.breakers))
	for _, cb := range r.breakers {
		breakers = append(breakers, cb)
	}
	r.mu.Unlock()

	out := make([]Status, 0, len(breakers))
	for _, cb := range breakers {
		out = append(out, cb.Status())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
