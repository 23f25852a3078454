// Package watchdog provides best-effort liveness detection for long-running
// worker loops. A frozen loop cannot be unblocked externally; recovery means
// restarting the owning subsystem via the registered callback.
package watchdog

import (
	"context"
	"sort"
	"sync"
	"time"

	"bastion/internal/logger"
)

const (
	DefaultPollInterval = 30 * time.Second
	DefaultTimeout      = 600 * time.Second
)

// RecoveryFunc is invoked when a monitored loop is flagged frozen.
type RecoveryFunc func(name string)

type entry struct {
	lastBeat time.Time
	recover  RecoveryFunc
}

// LivenessStatus is the operator-facing view of one monitored loop.
type LivenessStatus struct {
	Name          string        `json:"name"`
	SinceLastBeat time.Duration `json:"since_last_beat"`
	Alive         bool          `json:"alive"`
}

// Watchdog tracks heartbeats from registered loops and flags names whose
// last beat is older than the timeout.
type Watchdog struct {
	pollInterval time.Duration
	timeout      time.Duration

	mu      sync.Mutex
	entries map[string]*entry
	nowFn   func() time.Time

	onFrozen func(name string, silence time.Duration)
}

func New(pollInterval, timeout time.Duration) *Watchdog {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Watchdog{
		pollInterval: pollInterval,
		timeout:      timeout,
		entries:      make(map[string]*entry),
		nowFn:        time.Now,
	}
}

// SetFrozenHandler installs an extra sink for freeze events (e.g. the
// operator notifier). Logging happens regardless.
func (w *Watchdog) SetFrozenHandler(fn func(name string, silence time.Duration)) {
	w.mu.Lock()
	w.onFrozen = fn
	w.mu.Unlock()
}

// Register adds a loop under the given name. The recovery callback may be
// nil. Registration counts as the first heartbeat.
func (w *Watchdog) Register(name string, recoverFn RecoveryFunc) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.entries[name] = &entry{lastBeat: w.nowFn(), recover: recoverFn}
}

// Heartbeat records liveness for name. Unknown names are ignored.
func (w *Watchdog) Heartbeat(name string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if e, ok := w.entries[name]; ok {
		e.lastBeat = w.nowFn()
	}
}

// Run polls until ctx is cancelled.
func (w *Watchdog) Run(ctx context.Context) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()
	logger.Infof("watchdog: started poll=%s timeout=%s", w.pollInterval, w.timeout)
	for {
		select {
		case <-ctx.Done():
			logger.Infof("watchdog: ctx done, exit")
			return
		case <-ticker.C:
			w.poll()
		}
	}
}

// poll flags frozen entries, fires recovery, and resets the timestamp so a
// still-frozen loop does not alarm on every tick.
func (w *Watchdog) poll() {
	type frozen struct {
		name    string
		silence time.Duration
		recover RecoveryFunc
	}
	var flagged []frozen

	w.mu.Lock()
	now := w.nowFn()
	for name, e := range w.entries {
		silence := now.Sub(e.lastBeat)
		if silence > w.timeout {
			flagged = append(flagged, frozen{name: name, silence: silence, recover: e.recover})
			e.lastBeat = now
		}
	}
	sink := w.onFrozen
	w.mu.Unlock()

	for _, f := range flagged {
		logger.Errorf("watchdog: loop %s frozen, no heartbeat for %s", f.name, f.silence.Truncate(time.Second))
		if sink != nil {
			sink(f.name, f.silence)
		}
		if f.recover != nil {
			func() {
				defer func() {
					if r := recover(); r != nil {
						logger.Errorf("watchdog: recovery for %s panicked: %v", f.name, r)
					}
				}()
				f.recover(f.name)
			}()
		}
	}
}

// Status snapshots all monitored loops, sorted by name.
func (w *Watchdog) Status() []LivenessStatus {
	w.mu.Lock()
	defer w.mu.Unlock()
	now := w.nowFn()
	out := make([]LivenessStatus, 0, len(w.entries))
	for name, e := range w.entries {
		silence := now.Sub(e.lastBeat)
		out = append(out, LivenessStatus{Name: name, SinceLastBeat: silence, Alive: silence <= w.timeout})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
