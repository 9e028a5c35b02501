/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package api talks to the invoicing backend: authenticated session
// management plus the invoice and batch transaction endpoints.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/malikqattoum/jofotara-invoicing-and-connector-system-ISTD/pkg/logger"
	"github.com/malikqattoum/jofotara-invoicing-and-connector-system-ISTD/pkg/models"
)

const (
	loginPath   = "/api/vendors/login"
	profilePath = "/api/vendors/profile"

	maxAuthRetries = 3
	authRetryDelay = 2 * time.Second

	// expiryThreshold triggers a proactive refresh before the token
	// actually lapses mid-sync.
	expiryThreshold = 30 * time.Minute

	// defaultTokenTTL applies when the backend does not state an expiry
	// and the token carries no exp claim.
	defaultTokenTTL = 24 * time.Hour
)

// ErrAuthFailed is returned when authentication exhausts its retries. No
// further backend communication can succeed once this surfaces.
var ErrAuthFailed = errors.New("authentication failed after all retries")

// SessionManager owns the bearer-token lifecycle for the invoice-mode
// backend: login, proactive and reactive refresh, durable persistence.
type SessionManager struct {
	baseURL     string
	email       string
	password    string
	sessionPath string
	httpClient  *http.Client
	logger      logger.Logger
	now         func() time.Time

	mu      sync.Mutex
	session *models.Session
}

// NewSessionManager loads any persisted session so restarts do not force a
// fresh login while the old token is still good.
func NewSessionManager(cfg *models.ConnectorConfig, log logger.Logger) *SessionManager {
	m := &SessionManager{
		baseURL:     strings.TrimRight(ensureScheme(cfg.BaseURL), "/"),
		email:       cfg.Email,
		password:    cfg.Password,
		sessionPath: cfg.SessionPath,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		logger:      log.WithComponent("api.session"),
		now:         time.Now,
	}

	m.loadSession()

	return m
}

// VendorID returns the backend vendor identity from the current session.
func (m *SessionManager) VendorID() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session == nil {
		return 0
	}

	return m.session.VendorID
}

// Authenticate logs in to the backend. With forceRefresh false an already
// valid session short-circuits without any network call. Retries use a
// linearly increasing delay; exhaustion returns ErrAuthFailed.
func (m *SessionManager) Authenticate(ctx context.Context, forceRefresh bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.authenticateLocked(ctx, forceRefresh)
}

func (m *SessionManager) authenticateLocked(ctx context.Context, forceRefresh bool) error {
	if !forceRefresh && m.session.Valid(m.now()) {
		return nil
	}

	if m.password == "" {
		return fmt.Errorf("%w: no password configured", ErrAuthFailed)
	}

	body, err := json.Marshal(map[string]string{
		"email":    m.email,
		"password": m.password,
	})
	if err != nil {
		return err
	}

	var lastErr error

	for attempt := 1; attempt <= maxAuthRetries; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(authRetryDelay * time.Duration(attempt-1)):
			}
		}

		session, err := m.login(ctx, body)
		if err != nil {
			lastErr = err
			m.logger.Warn().Err(err).
				Int("attempt", attempt).
				Int("max_attempts", maxAuthRetries).
				Msg("Authentication attempt failed")

			continue
		}

		m.session = session
		m.saveSession()
		m.logger.Info().Time("expiry", session.Expiry).Msg("Authentication successful")

		return nil
	}

	return fmt.Errorf("%w: %w", ErrAuthFailed, lastErr)
}

func (m *SessionManager) login(ctx context.Context, body []byte) (*models.Session, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+loginPath, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("login returned status %d", resp.StatusCode)
	}

	var payload struct {
		Token     string `json:"token"`
		ExpiresAt string `json:"expires_at"`
		User      struct {
			ID int64 `json:"id"`
		} `json:"user"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("invalid login response: %w", err)
	}

	if payload.Token == "" {
		return nil, errors.New("login response missing token")
	}

	return &models.Session{
		Token:    payload.Token,
		Expiry:   m.tokenExpiry(payload.Token, payload.ExpiresAt),
		VendorID: payload.User.ID,
	}, nil
}

// tokenExpiry resolves the session expiry: backend-stated first, then the
// token's own exp claim, then the default TTL.
func (m *SessionManager) tokenExpiry(token, stated string) time.Time {
	if stated != "" {
		if expiry, err := time.Parse(time.RFC3339, stated); err == nil {
			return expiry
		}
	}

	parser := jwt.NewParser()
	claims := jwt.MapClaims{}

	if _, _, err := parser.ParseUnverified(token, claims); err == nil {
		if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
			return exp.Time
		}
	}

	return m.now().Add(defaultTokenTTL)
}

// EnsureValidToken refreshes only when the token is missing, expired, or
// inside the expiry threshold. A healthy session costs no network call.
func (m *SessionManager) EnsureValidToken(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if m.session.Valid(now) && !m.session.ExpiringWithin(now, expiryThreshold) {
		return nil
	}

	m.logger.Info().Msg("Token missing, expired or expiring soon, refreshing")

	return m.refreshLocked(ctx)
}

// RefreshToken forces a new login. The previous session is restored if the
// refresh fails, so a still-live token is not thrown away.
func (m *SessionManager) RefreshToken(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.refreshLocked(ctx)
}

func (m *SessionManager) refreshLocked(ctx context.Context) error {
	previous := m.session
	m.session = nil

	if err := m.authenticateLocked(ctx, true); err != nil {
		m.session = previous

		return err
	}

	return nil
}

// VerifyProfile is the lightweight live probe: it confirms the backend
// accepts the current token.
func (m *SessionManager) VerifyProfile(ctx context.Context) bool {
	resp, err := m.Do(ctx, http.MethodGet, profilePath, nil)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode == http.StatusOK
}

// Do issues an authenticated request. A 401 response triggers one reactive
// refresh and a single retry with the new token.
func (m *SessionManager) Do(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	if err := m.EnsureValidToken(ctx); err != nil {
		return nil, err
	}

	resp, err := m.send(ctx, method, path, body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}

	resp.Body.Close()
	m.logger.Warn().Str("path", path).Msg("Received 401, refreshing token")

	if err := m.RefreshToken(ctx); err != nil {
		return nil, err
	}

	return m.send(ctx, method, path, body)
}

func (m *SessionManager) send(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, m.baseURL+path, reader)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	m.mu.Lock()
	if m.session != nil {
		req.Header.Set("Authorization", "Bearer "+m.session.Token)
	}
	m.mu.Unlock()

	return m.httpClient.Do(req)
}

func (m *SessionManager) loadSession() {
	if m.sessionPath == "" {
		return
	}

	data, err := os.ReadFile(m.sessionPath)
	if err != nil {
		return
	}

	var session models.Session
	if err := json.Unmarshal(data, &session); err != nil {
		m.logger.Warn().Err(err).Str("path", m.sessionPath).Msg("Discarding corrupt session file")
		return
	}

	if session.Valid(m.now()) {
		m.session = &session
		m.logger.Info().Time("expiry", session.Expiry).Msg("Restored persisted session")
	}
}

func (m *SessionManager) saveSession() {
	if m.sessionPath == "" || m.session == nil {
		return
	}

	data, err := json.MarshalIndent(m.session, "", "  ")
	if err != nil {
		return
	}

	if err := os.MkdirAll(filepath.Dir(m.sessionPath), 0o755); err != nil {
		m.logger.Warn().Err(err).Msg("Failed to create session directory")
		return
	}

	if err := os.WriteFile(m.sessionPath, data, 0o600); err != nil {
		m.logger.Warn().Err(err).Str("path", m.sessionPath).Msg("Failed to persist session")
	}
}

func ensureScheme(baseURL string) string {
	if strings.HasPrefix(baseURL, "http://") || strings.HasPrefix(baseURL, "https://") {
		return baseURL
	}

	return "http://" + baseURL
}
