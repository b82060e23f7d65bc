package handlers

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gorilla/mux"
	"github.com/gorilla/sessions"
	"github.com/stretchr/testify/require"

	"payments-playground-api/config"
	"payments-playground-api/middleware"
	"payments-playground-api/queue"
	"payments-playground-api/services/auth"
	"payments-playground-api/services/btai"
)

// upstreamCall is one request seen by the fake payments API.
type upstreamCall struct {
	Method string
	Path   string
	Query  string
	Auth   string
	Body   map[string]any
}

type fakeUpstream struct {
	mu     sync.Mutex
	calls  []upstreamCall
	routes map[string]http.HandlerFunc
}

func (f *fakeUpstream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	call := upstreamCall{
		Method: r.Method,
		Path:   r.URL.Path,
		Query:  r.URL.RawQuery,
		Auth:   r.Header.Get("Authorization"),
	}
	if data, _ := io.ReadAll(r.Body); len(data) > 0 {
		_ = json.Unmarshal(data, &call.Body)
	}

	f.mu.Lock()
	f.calls = append(f.calls, call)
	handler, ok := f.routes[r.Method+" "+r.URL.Path]
	f.mu.Unlock()

	if !ok {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"not found"}`))
		return
	}
	handler(w, r)
}

func (f *fakeUpstream) on(method, path string, status int, body string, headers ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.routes[method+" "+path] = func(w http.ResponseWriter, r *http.Request) {
		for i := 0; i+1 < len(headers); i += 2 {
			w.Header().Set(headers[i], headers[i+1])
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}
}

func (f *fakeUpstream) last() upstreamCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) == 0 {
		return upstreamCall{}
	}
	return f.calls[len(f.calls)-1]
}

func (f *fakeUpstream) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type recordingSink struct {
	mu     sync.Mutex
	events []*queue.Event
	err    error
}

func (s *recordingSink) Publish(_ context.Context, e *queue.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return s.err
}

type testEnv struct {
	router   *mux.Router
	upstream *fakeUpstream
	jwt      *auth.JWTService
	sink     *recordingSink
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	der, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)

	jwtService, err := auth.NewJWTService(auth.Config{
		ProjectID:     "proj-1",
		KeyID:         "kid-1",
		PrivateKeyPEM: string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})),
	})
	require.NoError(t, err)

	upstream := &fakeUpstream{routes: map[string]http.HandlerFunc{}}
	srv := httptest.NewServer(upstream)
	t.Cleanup(srv.Close)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := sessions.NewCookieStore([]byte("0123456789abcdef0123456789abcdef"))
	resolver := middleware.NewTokenResolver(store, jwtService, "user123", logger)
	sink := &recordingSink{}

	router := NewRouter(RouterDeps{
		JWT:      jwtService,
		API:      btai.NewClient(srv.URL, "proj-1", btai.WithLogger(logger)),
		Resolver: resolver,
		Events:   sink,
		Health:   NewHealthHandler(nil, nil, srv.URL),
		Defaults: config.DefaultsConfig{UserID: "user123", Roles: []string{auth.RolePublic}},
		Logger:   logger,
	})

	return &testEnv{router: router, upstream: upstream, jwt: jwtService, sink: sink}
}

func (e *testEnv) do(method, target, body string, headers ...string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}
