package platform

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/healthsync/internal/record"
)

// fakeReachability is a ReachabilitySource flipped by tests.
type fakeReachability struct {
	offline atomic.Bool
}

func (f *fakeReachability) IsReachable() bool { return !f.offline.Load() }

func (f *fakeReachability) SetNotifications(bool) bool { return true }

// testService wires a client, session manager, resolver and pipeline to an
// httptest server and counts every request the server receives.
type testService struct {
	srv       *httptest.Server
	env       Environment
	reach     *fakeReachability
	client    *Client
	sessions  *SessionManager
	resolver  *DatasetResolver
	pipeline  *Pipeline
	requests  atomic.Int32
	userAgent string
}

func newTestService(t *testing.T, handler http.HandlerFunc) *testService {
	t.Helper()

	ts := &testService{reach: &fakeReachability{}, userAgent: "healthsync-test/1.0"}

	ts.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ts.requests.Add(1)
		handler(w, r)
	}))
	t.Cleanup(ts.srv.Close)

	ts.env = Environment(ts.srv.URL)
	ts.client = NewClient(Options{
		HTTPClient:   ts.srv.Client(),
		Reachability: ts.reach,
		UserAgent:    ts.userAgent,
		Logger:       slog.Default(),
	})
	ts.sessions = NewSessionManager(ts.client, slog.Default())
	ts.resolver = NewDatasetResolver(ts.client, slog.Default())
	ts.pipeline = NewPipeline(ts.client, nil, slog.Default())

	return ts
}

// restore installs a session without a login round trip.
func (ts *testService) restore(t *testing.T, token string) *Session {
	t.Helper()

	sess := &Session{Environment: ts.env, Token: token, UserID: "user-1"}
	require.NoError(t, ts.sessions.Restore(sess))

	return sess
}

func TestDo_Success(t *testing.T) {
	ts := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/ping", r.URL.Path)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"ok":true}`))
	})

	resp, err := ts.client.Do(context.Background(), &Request{
		Method:      http.MethodGet,
		Path:        "/v1/ping",
		Environment: ts.env,
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"ok":true}`, string(resp.Body))
}

func TestDo_Headers(t *testing.T) {
	ts := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "tok-1", r.Header.Get(SessionTokenHeader))
		assert.Equal(t, "healthsync-test/1.0", r.Header.Get("User-Agent"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "yes", r.Header.Get("X-Extra"))
		w.WriteHeader(http.StatusCreated)
	})

	sess := ts.restore(t, "tok-1")

	hdr := http.Header{}
	hdr.Set("X-Extra", "yes")

	_, err := ts.client.Do(context.Background(), &Request{
		Method:        http.MethodPost,
		Path:          "/v1/things",
		Header:        hdr,
		Body:          []byte(`{}`),
		Session:       sess,
		Authenticated: true,
	})
	require.NoError(t, err)
}

func TestDo_UnauthenticatedOmitsToken(t *testing.T) {
	ts := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get(SessionTokenHeader))
		assert.Empty(t, r.Header.Get("Content-Type"), "no body, no content type")
		w.WriteHeader(http.StatusOK)
	})

	_, err := ts.client.Do(context.Background(), &Request{
		Method:      http.MethodGet,
		Path:        "/status",
		Environment: ts.env,
	})
	require.NoError(t, err)
}

func TestDo_ErrorClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   error
	}{
		{"bad request", http.StatusBadRequest, ErrBadRequest},
		{"unauthorized", http.StatusUnauthorized, ErrUnauthorized},
		{"not found", http.StatusNotFound, ErrDataNotFound},
		{"forbidden", http.StatusForbidden, ErrServiceError},
		{"server error", http.StatusInternalServerError, ErrServiceError},
		{"unavailable", http.StatusServiceUnavailable, ErrServiceError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestService(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(`{"code":"nope"}`))
			})

			_, err := ts.client.Do(context.Background(), &Request{
				Method:      http.MethodGet,
				Path:        "/x",
				Environment: ts.env,
			})
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, tt.want, Kind(err))
			assert.Equal(t, tt.status, StatusCode(err))
		})
	}
}

func TestDo_NoRetry(t *testing.T) {
	ts := newTestService(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := ts.client.Do(context.Background(), &Request{
		Method:      http.MethodGet,
		Path:        "/x",
		Environment: ts.env,
	})
	require.ErrorIs(t, err, ErrServiceError)
	assert.Equal(t, int32(1), ts.requests.Load(), "exactly one attempt")
}

func TestDo_NotLoggedIn(t *testing.T) {
	ts := newTestService(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	_, err := ts.client.Do(context.Background(), &Request{
		Method:        http.MethodGet,
		Path:          "/x",
		Environment:   ts.env,
		Authenticated: true,
	})
	require.ErrorIs(t, err, ErrNotLoggedIn)

	// A session the manager does not hold counts as absent.
	_, err = ts.client.Do(context.Background(), &Request{
		Method:        http.MethodGet,
		Path:          "/x",
		Session:       &Session{Environment: ts.env, Token: "stranger"},
		Authenticated: true,
	})
	require.ErrorIs(t, err, ErrNotLoggedIn)
	assert.Equal(t, int32(0), ts.requests.Load())
}

func TestDo_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := NewClient(Options{Logger: slog.Default()})

	_, err := c.Do(context.Background(), &Request{
		Method:      http.MethodGet,
		Path:        "/x",
		Environment: Environment(url),
	})
	require.ErrorIs(t, err, ErrNetwork)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Zero(t, apiErr.StatusCode)
	assert.NotNil(t, apiErr.Cause)
}

func TestDo_NoEnvironment(t *testing.T) {
	c := NewClient(Options{})

	_, err := c.Do(context.Background(), &Request{Method: http.MethodGet, Path: "/x"})
	require.ErrorIs(t, err, ErrInternal)
}

func TestDo_ContextCancellation(t *testing.T) {
	ts := newTestService(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ts.client.Do(ctx, &Request{Method: http.MethodGet, Path: "/x", Environment: ts.env})
	require.ErrorIs(t, err, ErrNetwork)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestDo_UnauthorizedClearsHeldSession(t *testing.T) {
	ts := newTestService(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	sess := ts.restore(t, "tok-1")

	_, err := ts.client.Do(context.Background(), &Request{
		Method: http.MethodGet, Path: "/x", Session: sess, Authenticated: true,
	})
	require.ErrorIs(t, err, ErrUnauthorized)
	assert.Nil(t, ts.sessions.Current())
	assert.Equal(t, StateLoggedOut, ts.sessions.State())

	// The next call with the dead session never reaches the server.
	_, err = ts.client.Do(context.Background(), &Request{
		Method: http.MethodGet, Path: "/x", Session: sess, Authenticated: true,
	})
	require.ErrorIs(t, err, ErrNotLoggedIn)
	assert.Equal(t, int32(1), ts.requests.Load())
}

func TestOffline_ShortCircuitsEveryOperation(t *testing.T) {
	ts := newTestService(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	sess := ts.restore(t, "tok-1")
	ts.reach.offline.Store(true)

	ctx := context.Background()
	ds := Dataset{UploadID: "abc", ClientName: "org.example", Deduplicator: DeduplicatorNone}

	_, err := ts.client.Do(ctx, &Request{Method: http.MethodGet, Path: "/x", Environment: ts.env})
	assert.ErrorIs(t, err, ErrOffline, "dispatch")

	_, err = ts.sessions.Login(ctx, Credentials{Email: "a@b.c", Password: "pw"}, ts.env)
	assert.ErrorIs(t, err, ErrOffline, "login")

	_, err = ts.sessions.Refresh(ctx, sess)
	assert.ErrorIs(t, err, ErrOffline, "refresh")

	_, err = ts.resolver.List(ctx, sess, "")
	assert.ErrorIs(t, err, ErrOffline, "list")

	_, err = ts.resolver.Resolve(ctx, sess, ds)
	assert.ErrorIs(t, err, ErrOffline, "resolve")

	err = ts.pipeline.Upload(ctx, []record.Record{newCBG("o-1", 100)}, ds, sess)
	assert.ErrorIs(t, err, ErrOffline, "upload")

	err = ts.pipeline.Delete(ctx, []DeleteItem{{ID: "r-1"}}, ds, sess)
	assert.ErrorIs(t, err, ErrOffline, "delete")

	// An offline upload is rejected before the missing upload id is noticed.
	err = ts.pipeline.Upload(ctx, []record.Record{newCBG("o-1", 100)}, Dataset{}, sess)
	assert.ErrorIs(t, err, ErrOffline)

	err = ts.sessions.Logout(ctx, sess)
	assert.ErrorIs(t, err, ErrOffline, "logout")
	assert.Nil(t, ts.sessions.Current(), "offline logout still clears locally")

	assert.Equal(t, int32(0), ts.requests.Load(), "no request may reach the network while offline")
}

func TestGate_OfflineOrUnauthenticated(t *testing.T) {
	ts := newTestService(t, func(w http.ResponseWriter, _ *http.Request) {})
	gate := ts.client.Gate()

	assert.ErrorIs(t, gate.OfflineOrUnauthenticated(), ErrNotLoggedIn)

	ts.restore(t, "tok-1")
	assert.NoError(t, gate.OfflineOrUnauthenticated())

	ts.reach.offline.Store(true)
	assert.ErrorIs(t, gate.OfflineOrUnauthenticated(), ErrOffline)

	var nilGate *Gate
	assert.NoError(t, nilGate.Offline())
	assert.NoError(t, NewGate(nil).Offline(), "nil source is reachable")
	assert.NoError(t, NewGate(nil).OfflineOrUnauthenticated(), "no session manager attached")
}

func TestGate_GuardsAuthenticatedOperations(t *testing.T) {
	ts := newTestService(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	ctx := context.Background()

	sess := ts.restore(t, "tok-1")
	ts.sessions.ClearSession()

	// The session check comes before the missing upload id.
	err := ts.pipeline.Upload(ctx, []record.Record{newCBG("o-1", 100)}, Dataset{}, sess)
	assert.ErrorIs(t, err, ErrNotLoggedIn)

	err = ts.pipeline.Delete(ctx, []DeleteItem{{ID: "r-1"}}, testDataset, sess)
	assert.ErrorIs(t, err, ErrNotLoggedIn)

	_, err = ts.resolver.List(ctx, sess, "")
	assert.ErrorIs(t, err, ErrNotLoggedIn)

	_, err = ts.resolver.Resolve(ctx, sess, wantedDataset)
	assert.ErrorIs(t, err, ErrNotLoggedIn)

	assert.Zero(t, ts.requests.Load())
}
