package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/stridehq/sportiva-adapter/internal/metrics"
	"github.com/stridehq/sportiva-adapter/internal/session"
	"github.com/stridehq/sportiva-adapter/pkg/model"
)

// refreshPath is the Sportiva endpoint that exchanges a refresh token for a new pair.
const refreshPath = "/auth/refresh"

// refreshResult is delivered to every caller waiting on an in-flight refresh.
type refreshResult struct {
	token string
	err   error
}

// Gateway issues authenticated requests against the Sportiva API and
// transparently recovers from an expired access token.
//
// When a request comes back 401, at most one refresh call is in flight at any
// time: the first caller to observe the expiry performs the refresh while every
// concurrent caller parks on the waiter queue and is released, in arrival
// order, once the refresh settles. Each logical request is retried at most once
// with the fresh token; a second 401 is surfaced as a terminal
// AuthenticationError.
//
// A failed refresh is terminal for the session: the stored tokens are cleared,
// every waiter is rejected with the refresh error, and the OnAuthFailure hook
// (if set) fires exactly once for the episode.
type Gateway struct {
	logger   *zap.Logger
	http     *http.Client
	baseURL  string
	sessions session.Store

	// OnAuthFailure is invoked after a refresh fails and the session has been
	// cleared. Callers typically trigger a fresh service-account login here.
	OnAuthFailure func(error)

	mu         sync.Mutex
	refreshing bool
	waiters    []chan refreshResult
}

// New constructs a Gateway over the given session store.
func New(logger *zap.Logger, baseURL string, sessions session.Store) *Gateway {
	return &Gateway{
		logger:   logger,
		http:     &http.Client{Timeout: 10 * time.Second},
		baseURL:  baseURL,
		sessions: sessions,
	}
}

// GetJSON performs an authenticated GET request and decodes the JSON response into out.
func (g *Gateway) GetJSON(ctx context.Context, path string, out any) error {
	return g.Do(ctx, http.MethodGet, path, nil, out)
}

// PostJSON performs an authenticated POST request with a JSON body.
func (g *Gateway) PostJSON(ctx context.Context, path string, body any, out any) error {
	return g.Do(ctx, http.MethodPost, path, body, out)
}

// Do sends one authenticated request. On a 401 it joins (or starts) the
// single-flight refresh and replays the request once with the new token.
// Every returned error belongs to the gateway taxonomy in errors.go.
func (g *Gateway) Do(ctx context.Context, method, path string, body any, out any) error {
	var payload []byte
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return &UnknownError{Err: fmt.Errorf("encode request body: %w", err)}
		}
		payload = data
	}

	token := g.currentAccessToken(ctx)

	err := g.doOnce(ctx, method, path, token, payload, out)
	var authErr *AuthenticationError
	if !errors.As(err, &authErr) {
		return err
	}

	// Expired token: obtain a fresh one through the single-flight refresh,
	// then replay exactly once.
	newToken, refreshErr := g.awaitRefresh(ctx)
	if refreshErr != nil {
		if errors.As(refreshErr, &authErr) {
			return refreshErr
		}
		return &AuthenticationError{Msg: "session refresh failed", Err: refreshErr}
	}

	err = g.doOnce(ctx, method, path, newToken, payload, out)
	if errors.As(err, &authErr) {
		// Second 401 on the same logical request: terminal, never a second refresh.
		g.logger.Warn("gateway.retry_unauthorized",
			zap.String("method", method),
			zap.String("path", path))
		return &AuthenticationError{Msg: "request unauthorized after refresh"}
	}
	return err
}

// currentAccessToken reads the stored access token, tolerating an empty session.
func (g *Gateway) currentAccessToken(ctx context.Context) string {
	pair, err := g.sessions.Tokens(ctx)
	if err != nil {
		if !errors.Is(err, session.ErrNoSession) {
			g.logger.Warn("gateway.session_read_failed", zap.Error(err))
		}
		return ""
	}
	return pair.AccessToken
}

// doOnce executes a single HTTP attempt and classifies the outcome.
func (g *Gateway) doOnce(ctx context.Context, method, path, token string, payload []byte, out any) error {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, reader)
	if err != nil {
		return &UnknownError{Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := g.http.Do(req)
	if err != nil {
		metrics.IncSportivaRequest(path, method, "network_error")
		g.logger.Warn("gateway.http_failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err))
		return &NetworkError{Err: err}
	}
	defer resp.Body.Close() //nolint:errcheck

	data, _ := io.ReadAll(resp.Body)
	metrics.ObserveDuration(metrics.SportivaRequestDuration, start, path, method)
	metrics.IncSportivaRequest(path, method, strconv.Itoa(resp.StatusCode))

	if resp.StatusCode >= 400 {
		return classifyStatus(resp.StatusCode, data)
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			g.logger.Warn("gateway.decode_failed",
				zap.String("path", path),
				zap.Error(err))
			return &UnknownError{Err: fmt.Errorf("decode response: %w", err)}
		}
	}

	g.logger.Debug("gateway.http_success",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)))
	return nil
}

// awaitRefresh returns a fresh access token, guaranteeing at most one
// in-flight refresh call. The first caller performs the refresh; everyone
// else parks until it settles.
func (g *Gateway) awaitRefresh(ctx context.Context) (string, error) {
	g.mu.Lock()
	if g.refreshing {
		ch := make(chan refreshResult, 1)
		g.waiters = append(g.waiters, ch)
		g.mu.Unlock()

		metrics.RefreshWaiters.Inc()
		defer metrics.RefreshWaiters.Dec()

		select {
		case res := <-ch:
			return res.token, res.err
		case <-ctx.Done():
			return "", &AuthenticationError{Msg: "refresh wait canceled", Err: ctx.Err()}
		}
	}
	g.refreshing = true
	g.mu.Unlock()

	res := g.refresh(ctx)
	g.settleRefresh(res)
	return res.token, res.err
}

// refresh performs the actual refresh call and updates the session store.
// Any failure clears the session: the refresh itself is never retried.
func (g *Gateway) refresh(ctx context.Context) refreshResult {
	pair, err := g.sessions.Tokens(ctx)
	if err != nil || pair.RefreshToken == "" {
		g.clearSession(ctx)
		metrics.IncTokenRefresh("failure")
		g.logger.Warn("gateway.refresh_impossible", zap.Error(err))
		return refreshResult{err: &AuthenticationError{Msg: "no refresh token stored"}}
	}

	body, _ := json.Marshal(map[string]string{"refresh_token": pair.RefreshToken})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+refreshPath, bytes.NewReader(body))
	if err != nil {
		g.clearSession(ctx)
		metrics.IncTokenRefresh("failure")
		return refreshResult{err: &UnknownError{Err: err}}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.http.Do(req)
	if err != nil {
		g.clearSession(ctx)
		metrics.IncTokenRefresh("failure")
		g.logger.Error("gateway.refresh_failed", zap.Error(err))
		return refreshResult{err: &NetworkError{Err: err}}
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		g.clearSession(ctx)
		metrics.IncTokenRefresh("failure")
		g.logger.Error("gateway.refresh_rejected",
			zap.Int("status", resp.StatusCode),
			zap.String("body", string(data)))
		return refreshResult{err: &AuthenticationError{
			Msg: fmt.Sprintf("refresh rejected with status %d", resp.StatusCode),
		}}
	}

	var fresh model.TokenPair
	if err := json.NewDecoder(resp.Body).Decode(&fresh); err != nil {
		g.clearSession(ctx)
		metrics.IncTokenRefresh("failure")
		return refreshResult{err: &UnknownError{Err: fmt.Errorf("decode refresh response: %w", err)}}
	}
	if fresh.AccessToken == "" {
		g.clearSession(ctx)
		metrics.IncTokenRefresh("failure")
		return refreshResult{err: &AuthenticationError{Msg: "refresh returned empty access_token"}}
	}

	if err := g.sessions.Save(ctx, fresh); err != nil {
		g.clearSession(ctx)
		metrics.IncTokenRefresh("failure")
		return refreshResult{err: &UnknownError{Err: fmt.Errorf("persist refreshed session: %w", err)}}
	}

	metrics.IncTokenRefresh("success")
	g.logger.Info("gateway.refresh_success")
	return refreshResult{token: fresh.AccessToken}
}

// settleRefresh clears the in-flight flag and releases every waiter in
// arrival order with the shared outcome.
func (g *Gateway) settleRefresh(res refreshResult) {
	g.mu.Lock()
	waiters := g.waiters
	g.waiters = nil
	g.refreshing = false
	g.mu.Unlock()

	for _, ch := range waiters {
		ch <- res
	}

	if res.err != nil && g.OnAuthFailure != nil {
		g.OnAuthFailure(res.err)
	}
}

func (g *Gateway) clearSession(ctx context.Context) {
	if err := g.sessions.Clear(ctx); err != nil {
		g.logger.Warn("gateway.session_clear_failed", zap.Error(err))
	}
}
