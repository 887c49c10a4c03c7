package platform

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"
)

// Auth endpoint paths.
const (
	loginPath  = "/auth/login"
	logoutPath = "/auth/logout"
	userPath   = "/auth/user"
)

// userResponse mirrors the auth service user JSON.
// Unexported; callers use User via toUser() normalization.
type userResponse struct {
	UserID   string   `json:"userid"`
	Username string   `json:"username"`
	Emails   []string `json:"emails"`
	Profile  *struct {
		FullName string `json:"fullName"`
	} `json:"profile"`
}

func (u *userResponse) toUser() *User {
	user := &User{ID: u.UserID, Email: u.Username}

	// username is the login email; emails is a fallback for older accounts.
	if user.Email == "" && len(u.Emails) > 0 {
		user.Email = u.Emails[0]
	}

	if u.Profile != nil {
		user.FullName = u.Profile.FullName
	}

	return user
}

// login posts credentials and builds a session from the token header and
// the user body.
func (c *Client) login(ctx context.Context, creds Credentials, env Environment) (*Session, *User, error) {
	hdr := http.Header{}
	hdr.Set("Authorization", basicAuth(creds.Email, creds.Password))

	resp, err := c.Do(ctx, &Request{
		Method:      http.MethodPost,
		Path:        loginPath,
		Header:      hdr,
		Environment: env,
	})
	if err != nil {
		return nil, nil, err
	}

	token := resp.Header.Get(SessionTokenHeader)
	if token == "" {
		return nil, nil, &APIError{StatusCode: resp.StatusCode, Message: "missing session token header", Err: ErrBadLoginResponse}
	}

	user, err := parseUser(resp)
	if err != nil {
		return nil, nil, err
	}

	return &Session{Environment: env, Token: token, UserID: user.ID}, user, nil
}

// refreshToken asks the server to re-issue the session token.
func (c *Client) refreshToken(ctx context.Context, sess *Session) (string, error) {
	resp, err := c.Do(ctx, &Request{
		Method:        http.MethodGet,
		Path:          loginPath,
		Session:       sess,
		Authenticated: true,
	})
	if err != nil {
		return "", err
	}

	token := resp.Header.Get(SessionTokenHeader)
	if token == "" {
		return "", &APIError{StatusCode: resp.StatusCode, Message: "missing session token header", Err: ErrBadLoginResponse}
	}

	return token, nil
}

// fetchUser returns the identity behind sess.
func (c *Client) fetchUser(ctx context.Context, sess *Session) (*User, error) {
	resp, err := c.Do(ctx, &Request{
		Method:        http.MethodGet,
		Path:          userPath,
		Session:       sess,
		Authenticated: true,
	})
	if err != nil {
		return nil, err
	}

	return parseUser(resp)
}

// FetchUser returns the identity behind sess without changing any state.
func (m *SessionManager) FetchUser(ctx context.Context, sess *Session) (*User, error) {
	return m.client.fetchUser(ctx, sess)
}

// logout tells the server to revoke sess. The caller has already dropped it
// locally.
func (c *Client) logout(ctx context.Context, sess *Session) error {
	_, err := c.Do(ctx, &Request{
		Method:        http.MethodPost,
		Path:          logoutPath,
		Session:       sess,
		Authenticated: true,
		revoking:      true,
	})
	if err != nil {
		c.logger.Debug("logout request failed", slog.String("error", err.Error()))
		return err
	}

	return nil
}

func parseUser(resp *Response) (*User, error) {
	if len(bytes.TrimSpace(resp.Body)) == 0 {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: "empty user body", Err: ErrBadLoginResponse}
	}

	var ur userResponse
	if err := json.Unmarshal(resp.Body, &ur); err != nil {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: "undecodable user body", Cause: err, Err: ErrBadLoginResponse}
	}

	if ur.UserID == "" {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: "missing user id", Err: ErrBadLoginResponse}
	}

	return ur.toUser(), nil
}

func basicAuth(user, password string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(user+":"+password))
}
