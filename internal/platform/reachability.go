package platform

// ReachabilitySource reports network reachability. Implementations must
// answer IsReachable from a cached signal without blocking.
type ReachabilitySource interface {
	IsReachable() bool
	// SetNotifications starts or stops change monitoring and reports
	// whether the request took effect.
	SetNotifications(on bool) bool
}

// Gate short-circuits operations when the device is offline or there is no
// session. It is consulted before every request.
type Gate struct {
	source  ReachabilitySource
	current func() *Session
}

// NewGate wraps source. A nil source is treated as always reachable.
func NewGate(source ReachabilitySource) *Gate {
	return &Gate{source: source}
}

// Offline returns ErrOffline when the source reports unreachable.
func (g *Gate) Offline() error {
	if g == nil || g.source == nil || g.source.IsReachable() {
		return nil
	}

	return ErrOffline
}

// OfflineOrUnauthenticated returns ErrOffline when unreachable, otherwise
// ErrNotLoggedIn when the session manager holds no session. It guards the
// authenticated operations (dataset listing and resolution, uploads and
// deletes) before they do any work. Without a session manager attached the
// session check is left to the dispatcher.
func (g *Gate) OfflineOrUnauthenticated() error {
	if err := g.Offline(); err != nil {
		return err
	}

	if g == nil || g.current == nil {
		return nil
	}

	if g.current() == nil {
		return ErrNotLoggedIn
	}

	return nil
}
