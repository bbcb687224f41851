// Package auth obtains and caches tenant bearer tokens from the identity
// agent's multitenancy API.
package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/praxis/acapy-mcp-gateway/internal/acapy"
)

const (
	defaultTTL = 5 * time.Minute
	expirySkew = 30 * time.Second
)

// Manager fetches tokens, caches them in a TokenStore and collapses
// concurrent fetches for the same tenant and api key into one request.
type Manager struct {
	exec   acapy.Executor
	store  TokenStore
	ttl    time.Duration
	logger *logrus.Logger
	group  singleflight.Group
	now    func() time.Time

	// OnToken is called with every freshly fetched token, e.g. to register
	// it with a log redaction hook.
	OnToken func(token string)
}

// NewManager creates a token manager. A nil store disables caching; ttl is
// used when the token carries no readable expiry.
func NewManager(exec acapy.Executor, store TokenStore, ttl time.Duration, logger *logrus.Logger) *Manager {
	if store == nil {
		store = NopStore{}
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Manager{
		exec:   exec,
		store:  store,
		ttl:    ttl,
		logger: logger,
		now:    time.Now,
	}
}

type tokenResponse struct {
	Token string `json:"token"`
}

// Token returns a bearer token for tenantID, from cache when possible.
// Entries are scoped to the api key that obtained them, so a different key
// always goes to the agent. A caller whose ctx ends stops waiting without
// aborting a fetch other callers share.
func (m *Manager) Token(ctx context.Context, tenantID, apiKey string) (string, error) {
	if tenantID == "" || apiKey == "" {
		return "", acapy.NewAuthError("tenant id or api key is missing", nil)
	}

	key := cacheKey(tenantID, apiKey)
	if token, ok := m.cached(ctx, key, tenantID); ok {
		return token, nil
	}

	// The executor timeout still bounds the detached fetch.
	fetchCtx := context.WithoutCancel(ctx)
	ch := m.group.DoChan(key, func() (interface{}, error) {
		if token, ok := m.cached(fetchCtx, key, tenantID); ok {
			return token, nil
		}
		return m.fetch(fetchCtx, key, tenantID, apiKey)
	})

	select {
	case <-ctx.Done():
		return "", acapy.NewAuthError("token request canceled", ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		if res.Shared {
			m.logger.WithField("tenant", tenantID).Debug("Shared in-flight token fetch")
		}
		return res.Val.(string), nil
	}
}

// Invalidate drops the token cached for tenantID and apiKey so the next
// call fetches a new one.
func (m *Manager) Invalidate(ctx context.Context, tenantID, apiKey string) {
	if err := m.store.Delete(ctx, cacheKey(tenantID, apiKey)); err != nil {
		m.logger.WithError(err).WithField("tenant", tenantID).Warn("Failed to invalidate cached token")
		return
	}
	m.logger.WithField("tenant", tenantID).Info("Invalidated cached token")
}

// cacheKey binds a cache entry to the credentials that produced it. The key
// itself only carries a digest of the api key.
func cacheKey(tenantID, apiKey string) string {
	sum := sha256.Sum256([]byte(apiKey))
	return tenantID + ":" + hex.EncodeToString(sum[:])
}

func (m *Manager) cached(ctx context.Context, key, tenantID string) (string, bool) {
	token, ok, err := m.store.Get(ctx, key)
	if err != nil {
		m.logger.WithError(err).WithField("tenant", tenantID).Warn("Token store read failed")
		return "", false
	}
	return token, ok && token != ""
}

func (m *Manager) fetch(ctx context.Context, key, tenantID, apiKey string) (string, error) {
	outcome, err := m.exec.Execute(ctx, acapy.Request{
		Method: "POST",
		Path:   fmt.Sprintf("/multitenancy/tenant/%s/token", url.PathEscape(tenantID)),
		Body:   map[string]string{"api_key": apiKey},
	})
	if err != nil {
		return "", fmt.Errorf("token request: %w", err)
	}
	if !outcome.OK() {
		return "", acapy.NewAuthError("token request failed: "+strings.TrimSpace(outcome.Err.Message), outcome.Err)
	}

	var resp tokenResponse
	if err := outcome.Decode(&resp); err != nil {
		return "", acapy.NewAuthError("token response is not an object", err)
	}
	if resp.Token == "" {
		return "", acapy.NewAuthError("token response has no token", nil)
	}

	if m.OnToken != nil {
		m.OnToken(resp.Token)
	}

	ttl := m.lifetime(resp.Token)
	if ttl > 0 {
		if err := m.store.Set(ctx, key, resp.Token, ttl); err != nil {
			m.logger.WithError(err).WithField("tenant", tenantID).Warn("Token store write failed")
		}
	}
	m.logger.WithFields(logrus.Fields{
		"tenant": tenantID,
		"ttl":    ttl.String(),
	}).Info("Obtained tenant token")
	return resp.Token, nil
}

// lifetime reads exp from a JWT token without verifying it; the agent is
// the only party that checks the signature.
func (m *Manager) lifetime(token string) time.Duration {
	parsed, err := jwt.ParseInsecure([]byte(token))
	if err != nil || parsed.Expiration().IsZero() {
		return m.ttl
	}
	return parsed.Expiration().Sub(m.now()) - expirySkew
}
