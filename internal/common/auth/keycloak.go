// Package auth resolves callers from Keycloak access tokens.
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"payplan-workers/internal/common/errors"
	chttp "payplan-workers/internal/common/http"
)

// KeycloakClient introspects access tokens against one realm.
type KeycloakClient struct {
	baseURL      string
	realm        string
	clientID     string
	clientSecret string
	httpClient   *chttp.Client
}

// NewKeycloakClient creates a new instance of KeycloakClient.
func NewKeycloakClient(baseURL, realm, clientID, clientSecret string, timeout time.Duration) *KeycloakClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &KeycloakClient{
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		realm:        realm,
		clientID:     clientID,
		clientSecret: clientSecret,
		httpClient:   chttp.NewClient(timeout),
	}
}

// TokenInfo holds the information returned by the token introspection endpoint.
type TokenInfo struct {
	Active            bool               `json:"active"`
	Scope             string             `json:"scope,omitempty"`
	ClientID          string             `json:"client_id,omitempty"`
	Username          string             `json:"username,omitempty"`
	PreferredUsername string             `json:"preferred_username,omitempty"`
	TokenType         string             `json:"token_type,omitempty"`
	Exp               int64              `json:"exp,omitempty"`
	Iat               int64              `json:"iat,omitempty"`
	Sub               string             `json:"sub,omitempty"`
	Iss               string             `json:"iss,omitempty"`
	RealmAccess       RoleSet            `json:"realm_access,omitempty"`
	ResourceAccess    map[string]RoleSet `json:"resource_access,omitempty"`
}

type RoleSet struct {
	Roles []string `json:"roles"`
}

// Roles merges realm roles with the roles granted on clientID, sorted and
// without duplicates.
func (t *TokenInfo) Roles(clientID string) []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(roles []string) {
		for _, r := range roles {
			if _, ok := seen[r]; ok || r == "" {
				continue
			}
			seen[r] = struct{}{}
			out = append(out, r)
		}
	}
	add(t.RealmAccess.Roles)
	if rs, ok := t.ResourceAccess[clientID]; ok {
		add(rs.Roles)
	}
	sort.Strings(out)
	return out
}

// Name returns the most readable user name the token carries.
func (t *TokenInfo) Name() string {
	if t.PreferredUsername != "" {
		return t.PreferredUsername
	}
	return t.Username
}

// ValidateToken checks if an access token is valid and active.
// Inactive tokens fail with PERMISSION_DENIED; an unreachable or failing
// Keycloak fails with IDENTITY_UNAVAILABLE.
func (k *KeycloakClient) ValidateToken(ctx context.Context, token string) (*TokenInfo, error) {
	if strings.TrimSpace(token) == "" {
		return nil, errors.NewPermissionDeniedError("", "missing access token")
	}

	introspectURL := fmt.Sprintf("%s/realms/%s/protocol/openid-connect/token/introspect", k.baseURL, url.PathEscape(k.realm))

	data := url.Values{}
	data.Set("token", token)
	data.Set("token_type_hint", "access_token")
	data.Set("client_id", k.clientID)
	data.Set("client_secret", k.clientSecret)

	resp, err := k.httpClient.PostForm(ctx, introspectURL, data)
	if err != nil {
		return nil, errors.NewIdentityUnavailableError(fmt.Errorf("introspection request: %w", err))
	}
	if resp.StatusCode != 200 {
		identityErr := errors.NewIdentityUnavailableError(
			fmt.Errorf("introspection returned status %d: %s", resp.StatusCode, truncate(string(resp.Body), 256)))
		identityErr.Retryable = resp.Transient()
		return nil, identityErr
	}

	var tokenInfo TokenInfo
	if err := json.Unmarshal(resp.Body, &tokenInfo); err != nil {
		return nil, errors.NewIdentityUnavailableError(fmt.Errorf("decode introspection response: %w", err))
	}

	if !tokenInfo.Active {
		return nil, errors.NewPermissionDeniedError("", "access token is not active")
	}
	if tokenInfo.Sub == "" {
		return nil, errors.NewPermissionDeniedError("", "access token has no subject")
	}

	return &tokenInfo, nil
}

// HealthCheck fetches the realm's discovery document.
func (k *KeycloakClient) HealthCheck(ctx context.Context) error {
	target := fmt.Sprintf("%s/realms/%s/.well-known/openid-configuration", k.baseURL, url.PathEscape(k.realm))
	resp, err := k.httpClient.Get(ctx, target)
	if err != nil {
		return fmt.Errorf("keycloak health check failed: %w", err)
	}
	if resp.StatusCode != 200 {
		return fmt.Errorf("keycloak health check failed with status %d", resp.StatusCode)
	}
	return nil
}

func (k *KeycloakClient) ClientID() string {
	return k.clientID
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
