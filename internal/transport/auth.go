package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/tidwall/gjson"

	"github.com/roach88/fieldsync/internal/model"
)

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
	Username     string `json:"username"`
}

type tokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// Login exchanges credentials for a token pair and stores the session.
func (c *Client) Login(ctx context.Context, username, password string) (model.Session, error) {
	resp, err := c.Post(ctx, "/auth/login", credentials{Username: username, Password: password})
	if err != nil {
		return model.Session{}, fmt.Errorf("login: %w", err)
	}
	pair, err := decodePair(resp)
	if err != nil {
		return model.Session{}, fmt.Errorf("login: %w", err)
	}

	sess := model.Session{Username: username, AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken}
	if err := c.sessions.Save(ctx, sess); err != nil {
		return model.Session{}, fmt.Errorf("login: %w", err)
	}
	c.log.Info().Str("username", username).Msg("logged in")
	return sess, nil
}

// Register creates a remote account. It does not log in.
func (c *Client) Register(ctx context.Context, username, password string) error {
	if _, err := c.Post(ctx, "/auth/register", credentials{Username: username, Password: password}); err != nil {
		return fmt.Errorf("register: %w", err)
	}
	return nil
}

// UserExists asks the server whether username is taken.
func (c *Client) UserExists(ctx context.Context, username string) (bool, error) {
	resp, err := c.Get(ctx, "/auth/exists?username="+url.QueryEscape(username))
	if err != nil {
		return false, fmt.Errorf("user exists: %w", err)
	}
	return gjson.GetBytes(resp.Data, "exists").Bool(), nil
}

// Refresh forces a token refresh.
func (c *Client) Refresh(ctx context.Context) error {
	_, err := c.refreshFrom(ctx, "")
	return err
}

// Logout drops the local session. No request is sent.
func (c *Client) Logout(ctx context.Context) error {
	if err := c.sessions.Clear(ctx); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	c.log.Info().Msg("logged out")
	return nil
}

// Session returns the stored session.
func (c *Client) Session(ctx context.Context) (model.Session, error) {
	return c.sessions.Load(ctx)
}

// refreshFrom obtains a new access token. stale is the token the caller
// found unusable; if the stored token already differs, another caller has
// refreshed and its result is reused. Concurrent calls share one request,
// which is detached from any single caller's cancellation and bounded by
// refreshTimeout. A caller whose ctx ends stops waiting; the flight goes on.
func (c *Client) refreshFrom(ctx context.Context, stale string) (string, error) {
	ch := c.refreshes.DoChan("refresh", func() (any, error) {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.refreshTimeout())
		defer cancel()

		sess, err := c.sessions.Load(rctx)
		if err != nil {
			return "", err
		}
		if stale != "" && sess.AccessToken != "" && sess.AccessToken != stale && !c.expired(sess.AccessToken) {
			return sess.AccessToken, nil
		}
		if sess.RefreshToken == "" {
			return "", ErrSessionExpired
		}

		token, err := c.doRefresh(rctx, sess)
		c.rec.RecordRefresh(err)
		return token, err
	})

	select {
	case <-ctx.Done():
		return "", fmt.Errorf("refresh: %w", ctx.Err())
	case res := <-ch:
		if res.Shared {
			c.log.Debug().Msg("joined in-flight refresh")
		}
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

// refreshTimeout bounds one shared refresh: every attempt and the delays
// between them.
func (c *Client) refreshTimeout() time.Duration {
	per := c.http.Timeout
	if per <= 0 {
		per = DefaultTimeout
	}
	attempts := time.Duration(c.retry.MaxRetries + 1)
	return attempts*per + time.Duration(c.retry.MaxRetries)*c.retry.MaxDelay
}

func (c *Client) doRefresh(ctx context.Context, sess model.Session) (string, error) {
	resp, err := c.send(ctx, http.MethodPost, "/auth/refresh", mustMarshal(refreshRequest{
		RefreshToken: sess.RefreshToken,
		Username:     sess.Username,
	}), "")
	if err != nil {
		var httpErr *HTTPError
		if errors.As(err, &httpErr) && httpErr.StatusCode >= 400 && httpErr.StatusCode < 500 {
			// The server rejected the refresh token: forced logout.
			c.log.Warn().Int("status", httpErr.StatusCode).Msg("refresh rejected, clearing session")
			if cerr := c.sessions.Clear(ctx); cerr != nil {
				return "", fmt.Errorf("refresh: %w: %w", ErrSessionExpired, cerr)
			}
			return "", fmt.Errorf("refresh: %w", ErrSessionExpired)
		}
		return "", fmt.Errorf("refresh: %w", err)
	}

	pair, err := decodePair(resp)
	if err != nil {
		return "", fmt.Errorf("refresh: %w", err)
	}
	sess.AccessToken = pair.AccessToken
	if pair.RefreshToken != "" {
		sess.RefreshToken = pair.RefreshToken
	}
	if err := c.sessions.Save(ctx, sess); err != nil {
		return "", fmt.Errorf("refresh: %w", err)
	}
	c.log.Debug().Msg("token refreshed")
	return sess.AccessToken, nil
}

// expired reports whether token's exp claim is within skew of now.
// Tokens without a readable exp are treated as valid; the server decides.
func (c *Client) expired(token string) bool {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return !c.now().Add(c.skew).Before(exp.Time)
}

func decodePair(resp *Response) (tokenPair, error) {
	var pair tokenPair
	if err := json.Unmarshal(resp.Data, &pair); err != nil {
		return tokenPair{}, fmt.Errorf("decode tokens: %w", err)
	}
	if pair.AccessToken == "" {
		return tokenPair{}, errors.New("decode tokens: missing accessToken")
	}
	return pair, nil
}

func mustMarshal(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("marshal %T: %v", v, err))
	}
	return data
}
