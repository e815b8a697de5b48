// Package ikuai implements the client side of the iKuai router's
// session-authenticated management API: login, the call envelope, and the
// monitoring operations the middleware proxies.
package ikuai

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/lemonylab/ikuai-middle/pkg/syncutil"
)

// userAgent mirrors a desktop browser; the router's web layer rejects
// requests from unfamiliar agents.
const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/128.0.0.0 Safari/537.36"

// passwordSalt is the fixed prefix the iKuai web UI prepends to the hashed
// password before base64 encoding.
const passwordSalt = "salt_11"

// kernelSentinel marks the router's non-JSON acknowledgement for operations
// it queues asynchronously; the real envelope follows the sentinel text.
const kernelSentinel = "sending to kernel ..."

const requestTimeout = 30 * time.Second

// envelope is the router's standard response shape.
type envelope struct {
	Result int             `json:"Result"`
	ErrMsg string          `json:"ErrMsg"`
	Data   json.RawMessage `json:"Data"`
}

// Session is the shared authenticated upstream session. Login replaces the
// transport session (a fresh cookie jar) under the write lock; Call runs
// under the read lock, so calls proceed concurrently with each other but
// never overlap a login in progress. Readers only read the current session
// reference and never mutate it.
type Session struct {
	baseURL  string
	username string
	password string

	lock   *syncutil.ReadWriteLock
	logger *slog.Logger

	// Transport used before the first successful login, or after a failed
	// one. No cookie jar, so the router treats its requests as anonymous.
	anon *http.Client

	// Replaced only by login under the write lock; nil while unauthenticated.
	httpClient *http.Client
}

// NewSession creates an unauthenticated session for the router at baseURL.
func NewSession(baseURL, username, password string) (*Session, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base URL %q: scheme must be http or https", baseURL)
	}

	return &Session{
		baseURL:  strings.TrimRight(baseURL, "/"),
		username: username,
		password: password,
		lock:     syncutil.NewReadWriteLock(),
		logger:   slog.Default().With("component", "ikuai"),
		anon:     &http.Client{Timeout: requestTimeout},
	}, nil
}

// Login establishes a fresh authenticated session. It holds the write lock
// for the duration: in-flight calls drain first and new ones wait until the
// login completes. Any failure clears the session reference and returns an
// *AuthError (or a transport error).
func (s *Session) Login(ctx context.Context) error {
	return s.lock.WithWrite(func() error {
		return s.login(ctx)
	})
}

func (s *Session) login(ctx context.Context) error {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return fmt.Errorf("create cookie jar: %w", err)
	}
	client := &http.Client{Jar: jar, Timeout: requestTimeout}
	s.httpClient = client

	sum := md5.Sum([]byte(s.password))
	pwMD5 := hex.EncodeToString(sum[:])
	payload := map[string]any{
		"passwd":            pwMD5,
		"pass":              base64.StdEncoding.EncodeToString([]byte(passwordSalt + pwMD5)),
		"remember_password": false,
		"username":          s.username,
	}

	resp, err := s.post(ctx, client, "/Action/login", payload)
	if err != nil {
		s.httpClient = nil
		return fmt.Errorf("login request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		s.httpClient = nil
		return &AuthError{StatusCode: resp.StatusCode}
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		s.httpClient = nil
		return fmt.Errorf("decode login response: %w", err)
	}
	if env.Result%10000 != 0 {
		s.httpClient = nil
		return &AuthError{Message: fmt.Sprintf("code %d: %s", env.Result, env.ErrMsg)}
	}

	s.logger.Info("logged in", "base_url", s.baseURL, "username", s.username)
	return nil
}

// Call issues a router API call under the read lock and unwraps the result
// envelope: a result code with Result % 10000 != 0 becomes an *APIError,
// otherwise the Data field is returned. There is no automatic relogin or
// retry; an expired session surfaces to the caller as the router's error.
func (s *Session) Call(ctx context.Context, funcName, action string, param any) (json.RawMessage, error) {
	var data json.RawMessage
	err := s.lock.WithRead(func() error {
		var callErr error
		data, callErr = s.call(ctx, funcName, action, param)
		return callErr
	})
	return data, err
}

func (s *Session) call(ctx context.Context, funcName, action string, param any) (json.RawMessage, error) {
	client := s.httpClient
	if client == nil {
		client = s.anon
	}

	payload := map[string]any{
		"func_name": funcName,
		"action":    action,
		"param":     param,
	}
	resp, err := s.post(ctx, client, "/Action/call", payload)
	if err != nil {
		return nil, fmt.Errorf("call %s/%s: %w", funcName, action, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("call %s/%s: unexpected HTTP %d", funcName, action, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("call %s/%s: read response: %w", funcName, action, err)
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		text := string(body)
		if !strings.Contains(text, kernelSentinel) {
			return nil, fmt.Errorf("call %s/%s: decode response: %w", funcName, action, err)
		}
		// Async acknowledgement: the envelope is embedded after the sentinel.
		stripped := strings.ReplaceAll(strings.ReplaceAll(text, kernelSentinel, ""), "\n", "")
		if err := json.Unmarshal([]byte(stripped), &env); err != nil {
			return nil, fmt.Errorf("call %s/%s: decode acknowledgement: %w", funcName, action, err)
		}
	}

	if env.Result%10000 != 0 {
		s.logger.Error("call failed",
			"func_name", funcName, "action", action,
			"code", env.Result, "msg", env.ErrMsg)
		return nil, &APIError{Code: env.Result, Message: env.ErrMsg}
	}
	return env.Data, nil
}

func (s *Session) post(ctx context.Context, client *http.Client, path string, payload any) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)

	return client.Do(req)
}

// Authenticated reports whether the most recent login attempt succeeded.
func (s *Session) Authenticated() bool {
	var ok bool
	_ = s.lock.WithRead(func() error {
		ok = s.httpClient != nil
		return nil
	})
	return ok
}
