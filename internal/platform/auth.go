package platform

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Identity is the provider-issued principal for a signed-in account.
type Identity struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Session binds an Identity to its provider-issued token pair. The access
// token is an opaque credential from the portal's point of view; only the
// provider validates it. Sessions are replaced wholesale, never patched.
type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type"`
	ExpiresAt    time.Time `json:"expires_at"`
	Identity     Identity  `json:"identity"`
}

// Expired reports whether the access token has passed its expiry, with a
// small skew so a token about to lapse is treated as already gone.
func (s Session) Expired(now time.Time) bool {
	if s.ExpiresAt.IsZero() {
		return false
	}
	return !s.ExpiresAt.After(now.Add(30 * time.Second))
}

type tokenResponse struct {
	AccessToken  string   `json:"access_token"`
	RefreshToken string   `json:"refresh_token"`
	TokenType    string   `json:"token_type"`
	ExpiresIn    int64    `json:"expires_in"`
	User         Identity `json:"user"`
}

// SignInWithPassword exchanges credentials for a session. The raw password is
// sent to the provider and never retained.
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (Session, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return Session{}, ErrInvalidCredentials
	}

	var resp tokenResponse
	query := url.Values{"grant_type": {"password"}}
	err := c.do(ctx, "auth.sign_in", http.MethodPost, "/auth/v1/token", query, "", map[string]string{
		"email":    email,
		"password": password,
	}, &resp)
	if err != nil {
		return Session{}, err
	}
	return c.sessionFromToken(resp)
}

// SignUp creates an account with the given metadata and returns the initial
// session for the new identity.
func (c *Client) SignUp(ctx context.Context, email, password string, metadata map[string]any) (Session, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return Session{}, ErrInvalidCredentials
	}

	body := map[string]any{
		"email":    email,
		"password": password,
	}
	if len(metadata) > 0 {
		body["data"] = metadata
	}

	var resp tokenResponse
	if err := c.do(ctx, "auth.sign_up", http.MethodPost, "/auth/v1/signup", nil, "", body, &resp); err != nil {
		return Session{}, err
	}
	return c.sessionFromToken(resp)
}

// SignOut terminates the session at the provider. Callers clear local state
// regardless of the outcome.
func (c *Client) SignOut(ctx context.Context, accessToken string) error {
	if strings.TrimSpace(accessToken) == "" {
		return nil
	}
	return c.do(ctx, "auth.sign_out", http.MethodPost, "/auth/v1/logout", nil, accessToken, nil, nil)
}

// RefreshSession rotates the token pair using a refresh token.
func (c *Client) RefreshSession(ctx context.Context, refreshToken string) (Session, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return Session{}, ErrSessionExpired
	}

	var resp tokenResponse
	query := url.Values{"grant_type": {"refresh_token"}}
	err := c.do(ctx, "auth.refresh", http.MethodPost, "/auth/v1/token", query, "", map[string]string{
		"refresh_token": refreshToken,
	}, &resp)
	if err != nil {
		return Session{}, err
	}
	return c.sessionFromToken(resp)
}

func (c *Client) sessionFromToken(resp tokenResponse) (Session, error) {
	if resp.AccessToken == "" {
		return Session{}, errors.New("platform: provider returned no access token")
	}

	sess := Session{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		TokenType:    resp.TokenType,
		Identity:     resp.User,
	}

	// The access token is a JWT minted by the provider. Its exp claim is the
	// authoritative expiry; expires_in relative to the local clock is only a
	// fallback. The signature is the provider's concern, so the token is
	// parsed without local verification.
	if claims, err := parseAccessClaims(resp.AccessToken); err == nil {
		if sess.Identity.ID == "" {
			sess.Identity.ID = claims.Subject
		}
		if sess.Identity.Email == "" {
			sess.Identity.Email = claims.Email
		}
		if claims.ExpiresAt != nil {
			sess.ExpiresAt = claims.ExpiresAt.Time.UTC()
		}
	}
	if sess.ExpiresAt.IsZero() && resp.ExpiresIn > 0 {
		sess.ExpiresAt = c.now().Add(time.Duration(resp.ExpiresIn) * time.Second).UTC()
	}

	if sess.Identity.ID == "" {
		return Session{}, errors.New("platform: provider returned no identity")
	}
	return sess, nil
}

type accessClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

func parseAccessClaims(token string) (*accessClaims, error) {
	claims := &accessClaims{}
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return nil, err
	}
	return claims, nil
}
