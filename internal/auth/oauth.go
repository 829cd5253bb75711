package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// passwordlessOTPGrant is the grant type for exchanging an emailed code.
const passwordlessOTPGrant = "http://auth0.com/oauth/grant-type/passwordless/otp"

var _ IdentityProvider = (*PasswordlessProvider)(nil)

// PasswordlessProvider implements IdentityProvider against an
// Auth0-compatible passwordless API:
//
//	POST /passwordless/start  send the code
//	POST /oauth/token         exchange email + code for an access token
//	GET  /userinfo            read the verified profile with that token
//
// The token exchange and the authenticated userinfo call go through
// golang.org/x/oauth2.
type PasswordlessProvider struct {
	baseURL    string
	config     *oauth2.Config
	httpClient *http.Client
}

// NewPasswordlessProvider creates a provider for the tenant at domain
// ("tenant.eu.auth0.com" or a full URL).
func NewPasswordlessProvider(domain, clientID, clientSecret string) *PasswordlessProvider {
	base := strings.TrimRight(domain, "/")
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "https://" + base
	}

	return &PasswordlessProvider{
		baseURL: base,
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Scopes:       []string{"openid", "profile", "email"},
			Endpoint: oauth2.Endpoint{
				AuthURL:   base + "/authorize",
				TokenURL:  base + "/oauth/token",
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

type startRequest struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret,omitempty"`
	Connection   string `json:"connection"`
	Email        string `json:"email"`
	Send         string `json:"send"`
}

// StartVerification asks the provider to email a one-time code.
func (p *PasswordlessProvider) StartVerification(ctx context.Context, email string) error {
	body, err := json.Marshal(startRequest{
		ClientID:     p.config.ClientID,
		ClientSecret: p.config.ClientSecret,
		Connection:   "email",
		Email:        email,
		Send:         "code",
	})
	if err != nil {
		return fmt.Errorf("auth: encoding passwordless start: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/passwordless/start", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("auth: building passwordless start request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("auth: calling passwordless start: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("auth: passwordless start returned status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}
	return nil
}

type userInfo struct {
	Sub   string `json:"sub"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// ExchangeCode trades email + code for an access token, then reads the
// verified profile from /userinfo.
func (p *PasswordlessProvider) ExchangeCode(ctx context.Context, email, code string) (*VerifiedProfile, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)

	token, err := p.config.Exchange(ctx, code,
		oauth2.SetAuthURLParam("grant_type", passwordlessOTPGrant),
		oauth2.SetAuthURLParam("username", email),
		oauth2.SetAuthURLParam("otp", code),
		oauth2.SetAuthURLParam("realm", "email"),
		oauth2.SetAuthURLParam("scope", strings.Join(p.config.Scopes, " ")),
	)
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && (re.ErrorCode == "invalid_grant" || re.ErrorCode == "access_denied") {
			return nil, ErrInvalidCode
		}
		return nil, fmt.Errorf("auth: exchanging code: %w", err)
	}

	// Client adds "Authorization: Bearer <token>" to every request.
	client := p.config.Client(ctx, token)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/userinfo", nil)
	if err != nil {
		return nil, fmt.Errorf("auth: building userinfo request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("auth: calling userinfo: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("auth: userinfo returned status %d", resp.StatusCode)
	}

	var info userInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("auth: decoding userinfo: %w", err)
	}
	if info.Sub == "" {
		return nil, errors.New("auth: userinfo returned no subject")
	}

	profile := &VerifiedProfile{Subject: info.Sub, Email: info.Email, Name: info.Name}
	if profile.Email == "" {
		profile.Email = email
	}
	return profile, nil
}
