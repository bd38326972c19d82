package association

// Options configures a Socket. Field names and defaults follow spec.md §6
// verbatim; a zero-value Options is not usable as-is, callers should start
// from DefaultOptions() and override what they need.
type Options struct {
	LocalPort  uint16
	RemotePort uint16

	MTU                   int
	MaxReceiverWindow     int
	MaxSendBufferSize     int
	RTOInitialMs          int
	RTOMaxMs              int
	RTOMinMs              int
	T1InitTimeoutMs       int
	T1CookieTimeoutMs     int
	T2ShutdownTimeoutMs   int
	HeartbeatIntervalMs   int
	DelayedAckMaxMs       int
	SlowStartTCPStyle     bool
	MaxRetransmissions    int
	MaxInitRetransmits    int

	EnablePartialReliability     bool
	EnableMessageInterleaving    bool
	HeartbeatIntervalIncludeRTT  bool
	DisableChecksumVerification  bool

	// BytesPerSecLimit, if nonzero, rate-limits the packet sender, mirroring
	// the throttled-link knob the demo binary uses; zero means unthrottled.
	BytesPerSecLimit int
}

// DefaultOptions returns the option defaults enumerated in spec.md §6.
func DefaultOptions() Options {
	return Options{
		LocalPort:                   5000,
		RemotePort:                  5000,
		MTU:                         1170,
		MaxReceiverWindow:           5 * 1024 * 1024,
		MaxSendBufferSize:           2 * 1024 * 1024,
		RTOInitialMs:                500,
		RTOMaxMs:                    800,
		RTOMinMs:                    120,
		T1InitTimeoutMs:             1000,
		T1CookieTimeoutMs:           1000,
		T2ShutdownTimeoutMs:         1000,
		HeartbeatIntervalMs:         5000,
		DelayedAckMaxMs:             200,
		SlowStartTCPStyle:           true,
		MaxRetransmissions:          10,
		MaxInitRetransmits:          10,
		EnablePartialReliability:    true,
		EnableMessageInterleaving:   false,
		HeartbeatIntervalIncludeRTT: true,
		DisableChecksumVerification: false,
	}
}
