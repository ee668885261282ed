package sportiva

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/stridehq/sportiva-adapter/internal/session"
	"github.com/stridehq/sportiva-adapter/pkg/model"
	"github.com/stridehq/sportiva-adapter/pkg/secrets"
)

// AuthManager performs the initial (and any forced re-) login against
// Sportiva's /auth/login endpoint and stores the resulting token pair.
// Day-to-day token refresh is handled by the gateway, not here.
type AuthManager struct {
	logger   *zap.Logger
	baseURL  string
	client   *http.Client
	sessions session.Store
}

// NewAuthManager creates a Sportiva login manager for the given base URL.
func NewAuthManager(logger *zap.Logger, baseURL string, sessions session.Store) *AuthManager {
	return &AuthManager{
		logger:   logger,
		baseURL:  baseURL,
		client:   &http.Client{Timeout: 5 * time.Second},
		sessions: sessions,
	}
}

// Login authenticates the service account and replaces the stored session.
func (m *AuthManager) Login(ctx context.Context, creds secrets.Credentials) error {
	body, _ := json.Marshal(loginRequest{Username: creds.Username, Password: creds.Password})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+"/auth/login", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		m.logger.Error("sportiva.login_failed", zap.Error(err))
		return err
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		m.logger.Error("sportiva.login_rejected", zap.Int("status", resp.StatusCode))
		return fmt.Errorf("sportiva login failed: %d", resp.StatusCode)
	}

	var pair model.TokenPair
	if err := json.NewDecoder(resp.Body).Decode(&pair); err != nil {
		return fmt.Errorf("decode login response: %w", err)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		return fmt.Errorf("sportiva login returned incomplete token pair")
	}

	if err := m.sessions.Save(ctx, pair); err != nil {
		return fmt.Errorf("persist session: %w", err)
	}

	m.logger.Info("sportiva.login_success", zap.String("user", creds.Username))
	return nil
}

// Logout clears the stored session. Sportiva invalidates the refresh token
// server-side on the next failed use, so no remote call is needed.
func (m *AuthManager) Logout(ctx context.Context) error {
	return m.sessions.Clear(ctx)
}
