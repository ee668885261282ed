package gateway

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/stridehq/sportiva-adapter/internal/session"
	"github.com/stridehq/sportiva-adapter/pkg/model"
)

// mockTransport is an http.RoundTripper that delegates to a handler function.
type mockTransport struct {
	fn func(*http.Request) (*http.Response, error)
}

func (m *mockTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	return m.fn(req)
}

// jsonResponse builds a fake *http.Response with the given status and JSON body.
func jsonResponse(statusCode int, body string) *http.Response {
	return &http.Response{
		StatusCode: statusCode,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     http.Header{"Content-Type": []string{"application/json"}},
	}
}

// newTestGateway creates a Gateway with a custom HTTP transport and the given session.
func newTestGateway(t *testing.T, store session.Store, fn func(*http.Request) (*http.Response, error)) *Gateway {
	t.Helper()
	g := New(zap.NewNop(), "https://api.test.sportiva.app", store)
	g.http = &http.Client{Transport: &mockTransport{fn: fn}}
	return g
}

func seededStore(t *testing.T, access, refresh string) *session.MemoryStore {
	t.Helper()
	st := session.NewMemoryStore()
	require.NoError(t, st.Save(context.Background(), model.TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
	}))
	return st
}

// ─── Do: attaches bearer token from the stored session ───────────────────────

func TestGateway_Do_AttachesBearerToken(t *testing.T) {
	st := seededStore(t, "tok1", "ref1")

	var seenAuth string
	g := newTestGateway(t, st, func(req *http.Request) (*http.Response, error) {
		seenAuth = req.Header.Get("Authorization")
		return jsonResponse(http.StatusOK, `{"id":"class-1","name":"U10 Tigers"}`), nil
	})

	var out model.Class
	require.NoError(t, g.GetJSON(context.Background(), "/classes/class-1", &out))
	assert.Equal(t, "Bearer tok1", seenAuth)
	assert.Equal(t, "U10 Tigers", out.Name)
}

// ─── Do: N concurrent 401s trigger exactly one refresh ───────────────────────

func TestGateway_Do_SingleRefreshForConcurrentRequests(t *testing.T) {
	st := seededStore(t, "tok1", "ref1")

	const concurrent = 3

	var (
		mu           sync.Mutex
		expired401s  int
		refreshCalls int32
		tok2Served   int32
		barrier      = make(chan struct{})
	)

	g := newTestGateway(t, st, func(req *http.Request) (*http.Response, error) {
		if req.URL.Path == refreshPath {
			atomic.AddInt32(&refreshCalls, 1)
			// Hold the refresh open until every request has seen its 401,
			// so all of them are parked on the same in-flight refresh.
			<-barrier
			return jsonResponse(http.StatusOK, `{"access_token":"tok2","refresh_token":"ref2"}`), nil
		}

		switch req.Header.Get("Authorization") {
		case "Bearer tok1":
			mu.Lock()
			expired401s++
			if expired401s == concurrent {
				close(barrier)
			}
			mu.Unlock()
			return jsonResponse(http.StatusUnauthorized, `{"error":"token expired"}`), nil
		case "Bearer tok2":
			atomic.AddInt32(&tok2Served, 1)
			return jsonResponse(http.StatusOK, `{}`), nil
		default:
			return jsonResponse(http.StatusUnauthorized, `{"error":"missing token"}`), nil
		}
	})

	var wg sync.WaitGroup
	errs := make([]error, concurrent)
	for i := 0; i < concurrent; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = g.GetJSON(context.Background(), "/enrollments", nil)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		assert.NoError(t, err, "request %d should succeed after transparent refresh", i)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&refreshCalls), "exactly one refresh call per expiry episode")
	assert.Equal(t, int32(concurrent), atomic.LoadInt32(&tok2Served), "every request replayed with the new token")

	pair, err := st.Tokens(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.TokenPair{AccessToken: "tok2", RefreshToken: "ref2"}, pair)

	g.mu.Lock()
	assert.Empty(t, g.waiters, "waiter queue drained after refresh settles")
	assert.False(t, g.refreshing)
	g.mu.Unlock()
}

// ─── Do: a request already retried once never triggers a second refresh ──────

func TestGateway_Do_SecondUnauthorizedIsTerminal(t *testing.T) {
	st := seededStore(t, "tok1", "ref1")

	var refreshCalls int32
	g := newTestGateway(t, st, func(req *http.Request) (*http.Response, error) {
		if req.URL.Path == refreshPath {
			atomic.AddInt32(&refreshCalls, 1)
			return jsonResponse(http.StatusOK, `{"access_token":"tok2","refresh_token":"ref2"}`), nil
		}
		// Upstream keeps rejecting even the fresh token.
		return jsonResponse(http.StatusUnauthorized, `{"error":"revoked"}`), nil
	})

	err := g.GetJSON(context.Background(), "/roster", nil)
	require.Error(t, err)

	var authErr *AuthenticationError
	require.ErrorAs(t, err, &authErr)
	assert.Contains(t, authErr.Error(), "after refresh")
	assert.Equal(t, int32(1), atomic.LoadInt32(&refreshCalls), "no second refresh for the same logical request")
}

// ─── Do: refresh failure rejects every waiter and clears the session ─────────

func TestGateway_Do_RefreshFailureRejectsAllWaiters(t *testing.T) {
	st := seededStore(t, "tok1", "ref1")

	const concurrent = 3

	var (
		mu          sync.Mutex
		expired401s int
		barrier     = make(chan struct{})
		hookCalls   int32
	)

	g := newTestGateway(t, st, func(req *http.Request) (*http.Response, error) {
		if req.URL.Path == refreshPath {
			<-barrier
			return jsonResponse(http.StatusUnauthorized, `{"error":"refresh token revoked"}`), nil
		}
		mu.Lock()
		expired401s++
		if expired401s == concurrent {
			close(barrier)
		}
		mu.Unlock()
		return jsonResponse(http.StatusUnauthorized, `{"error":"token expired"}`), nil
	})
	g.OnAuthFailure = func(error) { atomic.AddInt32(&hookCalls, 1) }

	var wg sync.WaitGroup
	errs := make([]error, concurrent)
	for i := 0; i < concurrent; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = g.GetJSON(context.Background(), "/enrollments", nil)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		var authErr *AuthenticationError
		assert.ErrorAs(t, err, &authErr, "request %d must reject with an authentication error", i)
	}

	_, err := st.Tokens(context.Background())
	assert.ErrorIs(t, err, session.ErrNoSession, "no stale tokens retained after failed refresh")
	assert.Equal(t, int32(1), atomic.LoadInt32(&hookCalls), "auth failure hook fires once per episode")
}

// ─── Do: missing refresh token → no refresh call at all ──────────────────────

func TestGateway_Do_NoRefreshTokenStored(t *testing.T) {
	st := session.NewMemoryStore()
	require.NoError(t, st.Save(context.Background(), model.TokenPair{AccessToken: "tok1"}))

	var refreshCalls int32
	g := newTestGateway(t, st, func(req *http.Request) (*http.Response, error) {
		if req.URL.Path == refreshPath {
			atomic.AddInt32(&refreshCalls, 1)
			return jsonResponse(http.StatusOK, `{"access_token":"tok2","refresh_token":"ref2"}`), nil
		}
		return jsonResponse(http.StatusUnauthorized, `{"error":"token expired"}`), nil
	})

	var hookFired bool
	g.OnAuthFailure = func(error) { hookFired = true }

	err := g.GetJSON(context.Background(), "/badges", nil)
	var authErr *AuthenticationError
	require.ErrorAs(t, err, &authErr)

	assert.Equal(t, int32(0), atomic.LoadInt32(&refreshCalls), "no refresh attempted without a refresh token")
	assert.True(t, hookFired)

	_, err = st.Tokens(context.Background())
	assert.ErrorIs(t, err, session.ErrNoSession)
}

// ─── Do: session reflects new tokens exactly; next request skips refresh ─────

func TestGateway_Do_SessionUpdatedAfterRefresh(t *testing.T) {
	st := seededStore(t, "tok1", "ref1")

	var refreshCalls int32
	g := newTestGateway(t, st, func(req *http.Request) (*http.Response, error) {
		if req.URL.Path == refreshPath {
			atomic.AddInt32(&refreshCalls, 1)
			return jsonResponse(http.StatusOK, `{"access_token":"tok2","refresh_token":"ref2"}`), nil
		}
		if req.Header.Get("Authorization") == "Bearer tok2" {
			return jsonResponse(http.StatusOK, `{}`), nil
		}
		return jsonResponse(http.StatusUnauthorized, `{"error":"token expired"}`), nil
	})

	require.NoError(t, g.GetJSON(context.Background(), "/programs", nil))

	pair, err := st.Tokens(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok2", pair.AccessToken)
	assert.Equal(t, "ref2", pair.RefreshToken)

	// Follow-up request rides on the refreshed session.
	require.NoError(t, g.GetJSON(context.Background(), "/programs", nil))
	assert.Equal(t, int32(1), atomic.LoadInt32(&refreshCalls))
}

// ─── Do: waiter honors context cancellation while a refresh hangs ────────────

func TestGateway_Do_WaiterContextCancellation(t *testing.T) {
	st := seededStore(t, "tok1", "ref1")

	release := make(chan struct{})
	g := newTestGateway(t, st, func(req *http.Request) (*http.Response, error) {
		if req.URL.Path == refreshPath {
			<-release
			return jsonResponse(http.StatusOK, `{"access_token":"tok2","refresh_token":"ref2"}`), nil
		}
		return jsonResponse(http.StatusUnauthorized, `{"error":"token expired"}`), nil
	})
	defer close(release)

	// First request occupies the refresh slot.
	go func() { _ = g.GetJSON(context.Background(), "/enrollments", nil) }()

	// Wait until the refresh is actually in flight.
	require.Eventually(t, func() bool {
		g.mu.Lock()
		defer g.mu.Unlock()
		return g.refreshing
	}, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := g.GetJSON(ctx, "/enrollments", nil)
	var authErr *AuthenticationError
	require.ErrorAs(t, err, &authErr)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

// ─── Do: non-401 failures pass through unrecovered ───────────────────────────

func TestGateway_Do_ErrorClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		check  func(t *testing.T, err error)
	}{
		{
			name:   "403 maps to AuthorizationError",
			status: http.StatusForbidden,
			body:   `{"error":"coaches only"}`,
			check: func(t *testing.T, err error) {
				var e *AuthorizationError
				require.ErrorAs(t, err, &e)
			},
		},
		{
			name:   "422 maps to ValidationError with fields",
			status: http.StatusUnprocessableEntity,
			body:   `{"errors":{"child_id":["is required"]}}`,
			check: func(t *testing.T, err error) {
				var e *ValidationError
				require.ErrorAs(t, err, &e)
				assert.Equal(t, []string{"is required"}, e.Fields["child_id"])
			},
		},
		{
			name:   "500 maps to APIError",
			status: http.StatusInternalServerError,
			body:   `{"error":"boom"}`,
			check: func(t *testing.T, err error) {
				var e *APIError
				require.ErrorAs(t, err, &e)
				assert.Equal(t, http.StatusInternalServerError, e.Status)
			},
		},
		{
			name:   "404 maps to APIError",
			status: http.StatusNotFound,
			body:   `{"error":"no such class"}`,
			check: func(t *testing.T, err error) {
				var e *APIError
				require.ErrorAs(t, err, &e)
				assert.Equal(t, http.StatusNotFound, e.Status)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := seededStore(t, "tok1", "ref1")

			var refreshCalls int32
			g := newTestGateway(t, st, func(req *http.Request) (*http.Response, error) {
				if req.URL.Path == refreshPath {
					atomic.AddInt32(&refreshCalls, 1)
				}
				return jsonResponse(tt.status, tt.body), nil
			})

			err := g.GetJSON(context.Background(), "/checkins", nil)
			require.Error(t, err)
			tt.check(t, err)
			assert.Equal(t, int32(0), atomic.LoadInt32(&refreshCalls), "only 401 engages the refresh protocol")
		})
	}
}

// ─── refresh: waiters queue and release in arrival order ─────────────────────

func TestGateway_Refresh_WaitersQueueInArrivalOrder(t *testing.T) {
	st := seededStore(t, "tok1", "ref1")

	release := make(chan struct{})
	g := newTestGateway(t, st, func(req *http.Request) (*http.Response, error) {
		if req.URL.Path == refreshPath {
			<-release
			return jsonResponse(http.StatusOK, `{"access_token":"tok2","refresh_token":"ref2"}`), nil
		}
		if req.Header.Get("Authorization") == "Bearer tok2" {
			return jsonResponse(http.StatusOK, `{}`), nil
		}
		return jsonResponse(http.StatusUnauthorized, `{"error":"token expired"}`), nil
	})

	// First request occupies the refresh slot.
	go func() { _ = g.GetJSON(context.Background(), "/programs", nil) }()
	require.Eventually(t, func() bool {
		g.mu.Lock()
		defer g.mu.Unlock()
		return g.refreshing
	}, time.Second, 5*time.Millisecond)

	// Park two more requests one after another and pin their queue slots.
	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); _ = g.GetJSON(context.Background(), "/roster", nil) }()
	require.Eventually(t, func() bool {
		g.mu.Lock()
		defer g.mu.Unlock()
		return len(g.waiters) == 1
	}, time.Second, 5*time.Millisecond)

	g.mu.Lock()
	firstWaiter := g.waiters[0]
	g.mu.Unlock()

	go func() { defer wg.Done(); _ = g.GetJSON(context.Background(), "/badges", nil) }()
	require.Eventually(t, func() bool {
		g.mu.Lock()
		defer g.mu.Unlock()
		return len(g.waiters) == 2
	}, time.Second, 5*time.Millisecond)

	g.mu.Lock()
	assert.True(t, firstWaiter == g.waiters[0], "earlier arrival keeps the earlier queue slot")
	g.mu.Unlock()

	close(release)
	wg.Wait()
}

func TestGateway_SettleRefresh_ReleasesWaitersInArrivalOrder(t *testing.T) {
	st := seededStore(t, "tok1", "ref1")
	g := newTestGateway(t, st, func(*http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, `{}`), nil
	})

	// Unbuffered channels make the release order observable: the send to a
	// later waiter cannot complete until every earlier waiter was served.
	first := make(chan refreshResult)
	second := make(chan refreshResult)
	third := make(chan refreshResult)

	g.mu.Lock()
	g.refreshing = true
	g.waiters = []chan refreshResult{first, second, third}
	g.mu.Unlock()

	go g.settleRefresh(refreshResult{token: "tok2"})

	select {
	case <-third:
		t.Fatal("third waiter released before the first")
	case <-time.After(50 * time.Millisecond):
	}

	res := <-first
	assert.Equal(t, "tok2", res.token)

	select {
	case <-third:
		t.Fatal("third waiter released before the second")
	case <-time.After(50 * time.Millisecond):
	}

	<-second
	res = <-third
	assert.Equal(t, "tok2", res.token)

	g.mu.Lock()
	assert.Empty(t, g.waiters)
	assert.False(t, g.refreshing)
	g.mu.Unlock()
}

func TestGateway_Do_NetworkError(t *testing.T) {
	st := seededStore(t, "tok1", "ref1")

	g := newTestGateway(t, st, func(*http.Request) (*http.Response, error) {
		return nil, errors.New("connection refused")
	})

	err := g.GetJSON(context.Background(), "/photos", nil)
	var netErr *NetworkError
	require.ErrorAs(t, err, &netErr)
}
