// The timer package manages named, backed-off timers on top of a host-
// supplied one-shot Timeout primitive, per spec.md §4.2. It has no clock of
// its own: HandleTimeout must be driven by the host exactly when a Timeout
// created through this package fires.
package timer

// BackoffAlgorithm selects how a timer's duration grows across automatic
// restarts.
type BackoffAlgorithm int

const (
	// BackoffFixed reuses the same base duration on every restart.
	BackoffFixed BackoffAlgorithm = iota
	// BackoffExponential doubles the duration on every consecutive restart.
	BackoffExponential
)

// Unlimited is the MaxRestarts value meaning "restart forever".
const Unlimited = -1

// Options configures a single Timer.
type Options struct {
	DurationMs       int
	MaxRestarts      int
	BackoffAlgorithm BackoffAlgorithm
}

// Timeout is the low-level one-shot primitive the host implements. Start and
// Restart are handed the opaque 64-bit id this package assigns; when the
// primitive fires, the host must call Manager.HandleTimeout with the same
// id.
type Timeout interface {
	Start(durationMs int, timeoutID uint64)
	Stop()
	Restart(durationMs int, timeoutID uint64)
}

// Factory creates a fresh Timeout instance for one Timer.
type Factory func() Timeout

// OnExpired runs when a Timer fires. If ok is true, newDurationMs replaces
// the timer's base duration (before any backoff is applied) for future
// restarts.
type OnExpired func() (newDurationMs int, ok bool)

// Timer is a single named, backed-off timer. Timers are created stopped;
// call Start to arm them.
type Timer struct {
	id         uint32
	name       string
	options    Options
	onExpired  OnExpired
	unregister func()
	timeout    Timeout

	durationMs      int
	generation      uint32
	running         bool
	expirationCount int
}

// Name returns the timer's name, e.g. "t3-rtx" or "heartbeat".
func (t *Timer) Name() string { return t.name }

// IsRunning reports whether the timer is currently armed.
func (t *Timer) IsRunning() bool { return t.running }

// ExpirationCount returns how many times the timer has fired since it was
// last stopped or restarted.
func (t *Timer) ExpirationCount() int { return t.expirationCount }

// DurationMs returns the current base duration (pre-backoff).
func (t *Timer) DurationMs() int { return t.durationMs }

// SetDurationMs overrides the base duration used on the next Start/Restart.
func (t *Timer) SetDurationMs(durationMs int) { t.durationMs = durationMs }

// Close stops the timer and removes it from its Manager; the Timer must not
// be used afterwards.
func (t *Timer) Close() {
	t.Stop()
	if t.unregister != nil {
		t.unregister()
	}
}

// Start arms the timer if it is stopped. Starting an already-running timer
// is a no-op: it keeps its original expiry.
func (t *Timer) Start() {
	if t.running {
		return
	}
	t.running = true
	t.expirationCount = 0
	t.generation++
	t.timeout.Start(t.durationMs, t.timeoutID())
}

// Stop disarms the timer. Safe to call when already stopped.
func (t *Timer) Stop() {
	if !t.running {
		return
	}
	t.running = false
	t.expirationCount = 0
	t.generation++
	t.timeout.Stop()
}

// Restart is Stop followed by Start, resetting expiration_count and
// invalidating any in-flight expiry for the previous generation.
func (t *Timer) Restart() {
	t.running = true
	t.expirationCount = 0
	t.generation++
	t.timeout.Restart(t.durationMs, t.timeoutID())
}

func (t *Timer) timeoutID() uint64 {
	return uint64(t.id)<<32 | uint64(t.generation)
}

// trigger runs the expiry handler for generation gen, ignoring it if a
// Stop/Start/Restart has since bumped the timer past that generation. It
// auto-restarts with backoff unless MaxRestarts has been exhausted.
func (t *Timer) trigger(gen uint32) {
	if !t.running || gen != t.generation {
		return
	}
	t.expirationCount++
	if newDuration, ok := t.onExpired(); ok {
		t.durationMs = newDuration
	}

	if t.options.MaxRestarts != Unlimited && t.expirationCount > t.options.MaxRestarts {
		t.running = false
		t.timeout.Stop()
		return
	}

	duration := t.durationMs
	if t.options.BackoffAlgorithm == BackoffExponential {
		for i := 0; i < t.expirationCount; i++ {
			duration *= 2
		}
	}
	t.timeout.Restart(duration, t.timeoutID())
}

// Manager creates and dispatches Timer instances.
type Manager struct {
	createTimeout Factory
	timers        map[uint32]*Timer
	nextID        uint32
}

// NewManager builds a Manager that asks createTimeout for a fresh Timeout
// primitive each time CreateTimer is called.
func NewManager(createTimeout Factory) *Manager {
	return &Manager{
		createTimeout: createTimeout,
		timers:        make(map[uint32]*Timer),
	}
}

// CreateTimer registers a new, initially-stopped timer.
func (m *Manager) CreateTimer(name string, onExpired OnExpired, options Options) *Timer {
	id := m.nextID
	m.nextID++
	t := &Timer{
		id:         id,
		name:       name,
		options:    options,
		onExpired:  onExpired,
		timeout:    m.createTimeout(),
		durationMs: options.DurationMs,
	}
	t.unregister = func() { delete(m.timers, id) }
	m.timers[id] = t
	return t
}

// HandleTimeout dispatches a fired timeoutID to its owning Timer, discarding
// it silently if the timer was removed or has since moved to a different
// generation.
func (m *Manager) HandleTimeout(timeoutID uint64) {
	id := uint32(timeoutID >> 32)
	gen := uint32(timeoutID)
	t, ok := m.timers[id]
	if !ok {
		return
	}
	t.trigger(gen)
}
