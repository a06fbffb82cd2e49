package oauth

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

// DefaultIssuer is the chat platform's OIDC issuer.
const DefaultIssuer = "https://slack.com"

// Namespaced claims carried by the platform's identity token.
const (
	claimUserID = "https://slack.com/user_id"
	claimTeamID = "https://slack.com/team_id"
)

// Identity represents a verified external authentication identity.
// It contains facts only, no decisions.
type Identity struct {
	ExternalUserID string // platform-scoped user id
	ExternalTeamID string // platform-scoped workspace id
	Email          string
	Name           string
}

// Client drives the authorization-code login flow against the chat
// platform. It mutates only the state store; directory writes never
// happen on the login path.
type Client struct {
	issuer      string
	clientID    string
	oauthConfig *oauth2.Config
	verifier    *oidc.IDTokenVerifier
	states      StateStore
}

// New initializes the OIDC client via discovery against the platform
// issuer.
func New(
	ctx context.Context,
	clientID string,
	clientSecret string,
	states StateStore,
) (*Client, error) {
	return NewWithIssuer(ctx, DefaultIssuer, clientID, clientSecret, states)
}

// NewWithIssuer is New with an explicit issuer, used by tests to point
// at a local provider.
func NewWithIssuer(
	ctx context.Context,
	issuer string,
	clientID string,
	clientSecret string,
	states StateStore,
) (*Client, error) {

	if clientID == "" || clientSecret == "" {
		return nil, errors.New("oauth config missing required fields")
	}

	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to init oidc provider: %w", err)
	}

	verifier := provider.Verifier(&oidc.Config{
		ClientID:             clientID,
		SupportedSigningAlgs: []string{oidc.RS256},
	})

	oauthCfg := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     provider.Endpoint(),
		// Identity claims only; the login flow never requests
		// message-send scopes.
		Scopes: []string{
			oidc.ScopeOpenID,
			"profile",
			"email",
		},
	}

	return &Client{
		issuer:      issuer,
		clientID:    clientID,
		oauthConfig: oauthCfg,
		verifier:    verifier,
		states:      states,
	}, nil
}

// Issue generates a single-use CSRF state bound to loginKey and returns
// the authorization URL the user should be redirected to.
func (c *Client) Issue(
	ctx context.Context,
	loginKey string,
	orgSlug string,
	redirectURL string,
) (string, error) {

	state, err := NewStateToken()
	if err != nil {
		return "", err
	}

	now := time.Now()
	rec := StateRecord{
		State:     state,
		OrgSlug:   orgSlug,
		IssuedAt:  now,
		ExpiresAt: now.Add(StateTTL),
	}

	if err := c.states.Put(ctx, loginKey, rec); err != nil {
		return "", fmt.Errorf("oauth: failed to store state: %w", err)
	}

	cfg := *c.oauthConfig
	cfg.RedirectURL = redirectURL

	return cfg.AuthCodeURL(state), nil
}

// ValidateState consumes the pending state for loginKey and checks the
// received token against it. The stored state is removed on every
// outcome; a second validation with the same token fails. Returns the
// organization slug the login was initiated for.
func (c *Client) ValidateState(
	ctx context.Context,
	loginKey string,
	received string,
) (string, error) {

	rec, err := c.states.Take(ctx, loginKey)
	if err != nil {
		return "", flowErr(CodeStateMissing, "state lookup failed", err)
	}
	if rec == nil {
		return "", flowErr(CodeStateMissing, "no pending state for login", nil)
	}

	if time.Now().After(rec.ExpiresAt) {
		return "", flowErr(CodeStateExpired, "state issued at "+rec.IssuedAt.Format(time.RFC3339), nil)
	}

	if subtle.ConstantTimeCompare([]byte(rec.State), []byte(received)) != 1 {
		return "", flowErr(CodeStateMismatch, "received state does not match", nil)
	}

	return rec.OrgSlug, nil
}

// Exchange posts the authorization-code grant to the token endpoint and
// returns the raw identity token.
func (c *Client) Exchange(
	ctx context.Context,
	code string,
	redirectURL string,
) (string, error) {

	cfg := *c.oauthConfig
	cfg.RedirectURL = redirectURL

	token, err := cfg.Exchange(ctx, code)
	if err != nil {
		return "", flowErr(CodeTokenExchangeFailed, "code grant rejected", err)
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return "", flowErr(CodeTokenExchangeFailed, "provider did not return id_token", nil)
	}

	return rawIDToken, nil
}

// VerifyIdentityToken validates the identity token's issuer, audience,
// signing algorithm and signature (against the remote key set) and
// returns the normalized identity. Issuer and audience are checked
// explicitly first so each mismatch maps to its own code.
func (c *Client) VerifyIdentityToken(
	ctx context.Context,
	rawIDToken string,
) (*Identity, error) {

	payload, err := decodePayload(rawIDToken)
	if err != nil {
		return nil, flowErr(CodeSignatureInvalid, "malformed token", err)
	}

	if payload.Issuer != c.issuer {
		return nil, flowErr(CodeIssuerMismatch,
			fmt.Sprintf("token issuer %q, want %q", payload.Issuer, c.issuer), nil)
	}

	if !payload.Audience.contains(c.clientID) {
		return nil, flowErr(CodeAudienceMismatch,
			fmt.Sprintf("token audience %v does not include client id", []string(payload.Audience)), nil)
	}

	idToken, err := c.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		var expired *oidc.TokenExpiredError
		if errors.As(err, &expired) {
			return nil, flowErr(CodeTokenExpired, "token past expiry", err)
		}
		return nil, flowErr(CodeSignatureInvalid, "verification failed", err)
	}

	var claims struct {
		Subject string `json:"sub"`
		Email   string `json:"email"`
		Name    string `json:"name"`
		UserID  string `json:"https://slack.com/user_id"`
		TeamID  string `json:"https://slack.com/team_id"`
	}

	if err := idToken.Claims(&claims); err != nil {
		return nil, flowErr(CodeSignatureInvalid, "claims parse failed", err)
	}

	if claims.Subject == "" || claims.Email == "" {
		return nil, flowErr(CodeSignatureInvalid, "token missing required claims", nil)
	}

	externalID := claims.UserID
	if externalID == "" {
		externalID = claims.Subject
	}

	return &Identity{
		ExternalUserID: externalID,
		ExternalTeamID: claims.TeamID,
		Email:          claims.Email,
		Name:           claims.Name,
	}, nil
}

type audience []string

func (a *audience) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*a = audience{single}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return err
	}
	*a = audience(many)
	return nil
}

func (a audience) contains(clientID string) bool {
	for _, aud := range a {
		if aud == clientID {
			return true
		}
	}
	return false
}

type tokenPayload struct {
	Issuer   string   `json:"iss"`
	Audience audience `json:"aud"`
}

// decodePayload reads the unverified claims segment. Used only for the
// issuer/audience pre-checks; nothing here is trusted until the
// verifier has checked the signature.
func decodePayload(rawIDToken string) (*tokenPayload, error) {
	parts := strings.Split(rawIDToken, ".")
	if len(parts) != 3 {
		return nil, fmt.Errorf("token has %d segments, want 3", len(parts))
	}

	data, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, fmt.Errorf("payload decode failed: %w", err)
	}

	var payload tokenPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("payload parse failed: %w", err)
	}

	return &payload, nil
}
