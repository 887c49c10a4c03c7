package platform

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// State is the session manager's lifecycle state.
type State int

// Session lifecycle states.
const (
	StateLoggedOut State = iota
	StateLoggingIn
	StateLoggedIn
	StateRefreshing
)

func (s State) String() string {
	switch s {
	case StateLoggedOut:
		return "logged out"
	case StateLoggingIn:
		return "logging in"
	case StateLoggedIn:
		return "logged in"
	case StateRefreshing:
		return "refreshing"
	default:
		return "unknown"
	}
}

// SessionManager owns the current session and drives the login, refresh and
// logout transitions. Writers serialize on mu; listeners are notified once
// per logical transition, after the new state is visible to readers and
// without mu held, so a listener may call back into the manager.
type SessionManager struct {
	client *Client
	logger *slog.Logger

	mu        sync.Mutex
	state     State
	session   *Session
	user      *User
	listeners []func(*Session)
}

// NewSessionManager creates a manager and binds it to c, so that every 401
// the client sees clears the session held here.
func NewSessionManager(c *Client, logger *slog.Logger) *SessionManager {
	if logger == nil {
		logger = slog.Default()
	}

	m := &SessionManager{client: c, logger: logger}
	c.attach(m)

	return m
}

// Current returns the current session, or nil.
func (m *SessionManager) Current() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.session
}

// User returns the identity cached at login or the last refresh, or nil.
func (m *SessionManager) User() *User {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.user == nil {
		return nil
	}

	u := *m.user

	return &u
}

// State returns the current lifecycle state.
func (m *SessionManager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.state
}

// Subscribe registers fn to be called with the new session (nil after a
// clear) on every session change.
func (m *SessionManager) Subscribe(fn func(*Session)) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.listeners = append(m.listeners, fn)
}

// Login authenticates and installs a new session. It fails with ErrOffline
// without sending a request when unreachable, and with ErrAlreadyLoggedIn
// when a session exists or another login is in flight.
func (m *SessionManager) Login(ctx context.Context, creds Credentials, env Environment) (*Session, error) {
	if err := m.client.gate.Offline(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	if m.state != StateLoggedOut {
		state := m.state
		m.mu.Unlock()

		m.logger.Warn("login rejected", slog.String("state", state.String()))

		return nil, ErrAlreadyLoggedIn
	}

	m.state = StateLoggingIn
	m.mu.Unlock()

	m.logger.Info("logging in",
		slog.String("environment", string(env)),
	)

	sess, user, err := m.client.login(ctx, creds, env)
	if err != nil {
		m.mu.Lock()
		m.state = StateLoggedOut
		m.mu.Unlock()

		return nil, err
	}

	m.mu.Lock()
	m.state = StateLoggedIn
	m.session = sess
	m.user = user
	listeners := m.snapshotListeners()
	m.mu.Unlock()

	m.notify(listeners, sess)

	m.logger.Info("login successful", slog.String("user_id", sess.UserID))

	return sess, nil
}

// Restore installs a previously persisted session without a round trip.
func (m *SessionManager) Restore(sess *Session) error {
	if sess == nil || sess.Token == "" {
		return ErrNotLoggedIn
	}

	m.mu.Lock()
	if m.state != StateLoggedOut {
		m.mu.Unlock()
		return ErrAlreadyLoggedIn
	}

	m.state = StateLoggedIn
	m.session = sess
	listeners := m.snapshotListeners()
	m.mu.Unlock()

	m.notify(listeners, sess)

	m.logger.Debug("session restored", slog.String("user_id", sess.UserID))

	return nil
}

// Refresh re-issues the token for sess and re-fetches the user identity.
// ErrUnauthorized means sess is dead and has been cleared. When the token
// round trip succeeds but the identity fetch fails, the refreshed session is
// installed and returned together with a *UserFetchError.
func (m *SessionManager) Refresh(ctx context.Context, sess *Session) (*Session, error) {
	if err := m.client.gate.Offline(); err != nil {
		return nil, err
	}

	if sess == nil {
		return nil, ErrNotLoggedIn
	}

	m.mu.Lock()
	if m.session == nil || m.session.Token != sess.Token {
		m.mu.Unlock()
		return nil, ErrNotLoggedIn
	}

	if m.state == StateRefreshing {
		m.mu.Unlock()
		return nil, ErrAlreadyLoggedIn
	}

	m.state = StateRefreshing
	m.mu.Unlock()

	token, err := m.client.refreshToken(ctx, sess)
	if err != nil {
		m.mu.Lock()
		if m.state == StateRefreshing {
			// Still refreshing: no 401 cleared the session.
			m.state = StateLoggedIn
		}
		m.mu.Unlock()

		m.logger.Warn("refresh failed", slog.String("error", err.Error()))

		return nil, err
	}

	fresh := &Session{Environment: sess.Environment, Token: token, UserID: sess.UserID}

	m.mu.Lock()
	if m.session == nil || m.session.Token != sess.Token {
		// Logged out while the refresh was in flight.
		m.mu.Unlock()
		return nil, ErrNotLoggedIn
	}

	m.state = StateLoggedIn
	m.session = fresh
	listeners := m.snapshotListeners()
	m.mu.Unlock()

	m.notify(listeners, fresh)

	user, err := m.client.fetchUser(ctx, fresh)
	if err != nil {
		m.logger.Warn("user fetch after refresh failed", slog.String("error", err.Error()))
		return fresh, &UserFetchError{Err: err}
	}

	m.mu.Lock()
	m.user = user
	m.mu.Unlock()

	m.logger.Info("session refreshed", slog.String("user_id", fresh.UserID))

	return fresh, nil
}

// Logout clears the local session immediately, then tells the server on a
// best-effort basis. When offline the session is still cleared and
// ErrOffline is returned. A nil sess logs out the current session.
func (m *SessionManager) Logout(ctx context.Context, sess *Session) error {
	if sess == nil {
		sess = m.Current()
	}

	m.clear()

	if sess == nil {
		return nil
	}

	err := m.client.logout(ctx, sess)
	if err != nil && !errors.Is(err, ErrOffline) {
		m.logger.Warn("server logout failed, local session cleared anyway",
			slog.String("error", err.Error()),
		)
	}

	m.logger.Info("logged out", slog.String("user_id", sess.UserID))

	return err
}

// ClearSession drops the current session. Clearing an already-empty session
// notifies nobody.
func (m *SessionManager) ClearSession() {
	m.clear()
}

func (m *SessionManager) clear() {
	m.mu.Lock()
	if m.session == nil {
		m.mu.Unlock()
		return
	}

	m.session = nil
	m.user = nil
	m.state = StateLoggedOut
	listeners := m.snapshotListeners()
	m.mu.Unlock()

	m.notify(listeners, nil)
}

// holds implements sessionGuard.
func (m *SessionManager) holds(token string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.session != nil && m.session.Token == token
}

// invalidate implements sessionGuard. Only the session whose token was
// rejected is cleared, so concurrent 401s for one token clear it once and a
// late 401 for an old token leaves a newer session alone.
func (m *SessionManager) invalidate(token string) {
	m.mu.Lock()
	if m.session == nil || m.session.Token != token {
		m.mu.Unlock()
		return
	}

	m.session = nil
	m.user = nil
	m.state = StateLoggedOut
	listeners := m.snapshotListeners()
	m.mu.Unlock()

	m.logger.Warn("session rejected by server, cleared")

	m.notify(listeners, nil)
}

// snapshotListeners must be called with mu held.
func (m *SessionManager) snapshotListeners() []func(*Session) {
	out := make([]func(*Session), len(m.listeners))
	copy(out, m.listeners)

	return out
}

func (m *SessionManager) notify(listeners []func(*Session), sess *Session) {
	for _, fn := range listeners {
		fn(sess)
	}
}
