package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/supabase-community/gotrue-go"
	"github.com/supabase-community/gotrue-go/types"
)

var ErrUserExists = errors.New("user already exists with this email")

// AuthError is a rejection from the auth service.
type AuthError struct {
	Status  int
	Message string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth: %s (status %d)", e.Message, e.Status)
}

type User struct {
	ID    uuid.UUID `json:"id"`
	Email string    `json:"email"`
}

type Session struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	User         User   `json:"user"`
}

type SignUpResult struct {
	User *User `json:"user"`
	// PendingConfirmation is true when the account waits for email
	// confirmation and no session was issued.
	PendingConfirmation bool     `json:"pending_confirmation"`
	Session             *Session `json:"session,omitempty"`
}

// Client talks to a GoTrue-compatible auth service.
type Client struct {
	api  gotrue.Client
	http http.Client
}

// NewClient points at baseURL, the project URL the auth API is mounted under
// as /auth/v1.
func NewClient(baseURL, anonKey string, httpClient *http.Client) *Client {
	hc := http.Client{Timeout: 10 * time.Second}
	if httpClient != nil {
		hc = *httpClient
	}
	api := gotrue.New("", anonKey).WithCustomGoTrueURL(strings.TrimRight(baseURL, "/") + "/auth/v1")
	return &Client{api: api, http: hc}
}

// scoped returns the API client bound to ctx. gotrue-go builds its requests
// without a context, so the transport attaches it along with any extra query
// values.
func (c *Client) scoped(ctx context.Context, query url.Values) gotrue.Client {
	hc := c.http
	base := hc.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	hc.Transport = &scopedTransport{ctx: ctx, query: query, base: base}
	return c.api.WithClient(hc)
}

type scopedTransport struct {
	ctx   context.Context
	query url.Values
	base  http.RoundTripper
}

func (t *scopedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(t.ctx)
	if len(t.query) > 0 {
		q := req.URL.Query()
		for k, vs := range t.query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		req.URL.RawQuery = q.Encode()
	}
	return t.base.RoundTrip(req)
}

func (c *Client) SignIn(ctx context.Context, email, password string) (*Session, error) {
	res, err := c.scoped(ctx, nil).SignInWithEmailPassword(email, password)
	if err != nil {
		return nil, apiError("sign in", err)
	}
	return sessionFrom(res.Session), nil
}

func (c *Client) SignUp(ctx context.Context, email, password, fullName string) (*SignUpResult, error) {
	res, err := c.scoped(ctx, nil).Signup(types.SignupRequest{
		Email:    email,
		Password: password,
		Data:     map[string]interface{}{"full_name": fullName},
	})
	if err != nil {
		return nil, apiError("sign up", err)
	}

	if res.AccessToken != "" {
		s := sessionFrom(res.Session)
		return &SignUpResult{User: &s.User, Session: s}, nil
	}

	// An already registered email comes back as a user without identities.
	if res.User.Identities != nil && len(res.User.Identities) == 0 {
		return nil, ErrUserExists
	}
	return &SignUpResult{
		User:                &User{ID: res.User.ID, Email: res.User.Email},
		PendingConfirmation: true,
	}, nil
}

func (c *Client) SignOut(ctx context.Context, accessToken string) error {
	if err := c.scoped(ctx, nil).WithToken(accessToken).Logout(); err != nil {
		return apiError("sign out", err)
	}
	return nil
}

func (c *Client) ResetPassword(ctx context.Context, email, redirectTo string) error {
	var query url.Values
	if redirectTo != "" {
		query = url.Values{"redirect_to": {redirectTo}}
	}
	if err := c.scoped(ctx, query).Recover(types.RecoverRequest{Email: email}); err != nil {
		return apiError("reset password", err)
	}
	return nil
}

func sessionFrom(s types.Session) *Session {
	return &Session{
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
		TokenType:    s.TokenType,
		ExpiresIn:    s.ExpiresIn,
		User:         User{ID: s.User.ID, Email: s.User.Email},
	}
}

// apiError turns a non-2xx answer, which gotrue-go reports as
// "response status code N: body", into an *AuthError. Transport failures
// are wrapped as they are.
func apiError(op string, err error) error {
	rest, ok := strings.CutPrefix(err.Error(), "response status code ")
	if !ok {
		return fmt.Errorf("auth %s: %w", op, err)
	}
	code, body, _ := strings.Cut(rest, ": ")
	status, convErr := strconv.Atoi(code)
	if convErr != nil {
		return fmt.Errorf("auth %s: %w", op, err)
	}

	var e struct {
		Msg              string `json:"msg"`
		Message          string `json:"message"`
		ErrorDescription string `json:"error_description"`
		Error            string `json:"error"`
	}
	_ = json.Unmarshal([]byte(body), &e)
	msg := firstNonEmpty(e.Msg, e.Message, e.ErrorDescription, e.Error, http.StatusText(status))
	return &AuthError{Status: status, Message: msg}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
