package ikuai

import (
	"context"
	"crypto/md5"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSession(t *testing.T, baseURL string) *Session {
	t.Helper()
	s, err := NewSession(baseURL, "admin", "hunter2")
	require.NoError(t, err)
	return s
}

func writeEnvelope(w http.ResponseWriter, result int, errMsg string, data any) {
	raw, _ := json.Marshal(data)
	_ = json.NewEncoder(w).Encode(envelope{Result: result, ErrMsg: errMsg, Data: raw})
}

func TestNewSession_RejectsBadBaseURL(t *testing.T) {
	_, err := NewSession("ftp://router", "admin", "pw")
	require.Error(t, err)

	_, err = NewSession("://nope", "admin", "pw")
	require.Error(t, err)
}

func TestSession_LoginSendsSaltedCredentials(t *testing.T) {
	var payload map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/Action/login", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		writeEnvelope(w, 10000, "", nil)
	}))
	defer server.Close()

	s := newTestSession(t, server.URL)
	require.NoError(t, s.Login(context.Background()))
	assert.True(t, s.Authenticated())

	sum := md5.Sum([]byte("hunter2"))
	pwMD5 := hex.EncodeToString(sum[:])
	assert.Equal(t, pwMD5, payload["passwd"])
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("salt_11"+pwMD5)), payload["pass"])
	assert.Equal(t, "admin", payload["username"])
	assert.Equal(t, false, payload["remember_password"])
}

func TestSession_LoginHTTPFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	s := newTestSession(t, server.URL)
	err := s.Login(context.Background())

	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, http.StatusForbidden, authErr.StatusCode)
	assert.False(t, s.Authenticated(), "failed login must clear the session")
}

func TestSession_LoginEnvelopeFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeEnvelope(w, 10001, "wrong password", nil)
	}))
	defer server.Close()

	s := newTestSession(t, server.URL)
	err := s.Login(context.Background())

	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Contains(t, authErr.Message, "10001")
	assert.False(t, s.Authenticated())
}

func TestSession_CallReturnsData(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/Action/call", r.URL.Path)

		var payload map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "sysstat", payload["func_name"])
		assert.Equal(t, "show", payload["action"])

		writeEnvelope(w, 30000, "", map[string]any{"uptime": 42})
	}))
	defer server.Close()

	s := newTestSession(t, server.URL)
	data, err := s.Call(context.Background(), "sysstat", "show", map[string]any{"TYPE": "cpu"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"uptime":42}`, string(data))
}

func TestSession_CallApplicationError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeEnvelope(w, 10001, "no login authentication", nil)
	}))
	defer server.Close()

	s := newTestSession(t, server.URL)
	_, err := s.Call(context.Background(), "sysstat", "show", nil)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 10001, apiErr.Code)
	assert.Equal(t, "no login authentication", apiErr.Message)
}

func TestSession_CallUnexpectedHTTPStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	s := newTestSession(t, server.URL)
	_, err := s.Call(context.Background(), "sysstat", "show", nil)
	require.Error(t, err)

	var apiErr *APIError
	assert.NotErrorAs(t, err, &apiErr, "transport failures are not application errors")
}

func TestSession_CallParsesKernelAcknowledgement(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("sending to kernel ...\n{\"Result\":30000,\"ErrMsg\":\"\",\"Data\":{\"queued\":true}}\n"))
	}))
	defer server.Close()

	s := newTestSession(t, server.URL)
	data, err := s.Call(context.Background(), "iksyscheck", "start", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"queued":true}`, string(data))
}

func TestSession_CallMalformedBodyWithoutSentinel(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("<html>router error page</html>"))
	}))
	defer server.Close()

	s := newTestSession(t, server.URL)
	_, err := s.Call(context.Background(), "sysstat", "show", nil)
	require.Error(t, err)
}

func TestSession_UserAgentHeader(t *testing.T) {
	var gotUA string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		writeEnvelope(w, 10000, "", nil)
	}))
	defer server.Close()

	s := newTestSession(t, server.URL)
	require.NoError(t, s.Login(context.Background()))
	assert.Equal(t, userAgent, gotUA)
}

// A login in progress must drain in-flight calls and hold back new ones:
// no call request may reach the upstream between login start and finish.
func TestSession_CallsExcludedDuringLogin(t *testing.T) {
	loginGate := make(chan struct{})
	var loginInFlight, violations atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/Action/login":
			loginInFlight.Store(1)
			<-loginGate
			loginInFlight.Store(0)
			writeEnvelope(w, 10000, "", nil)
		case "/Action/call":
			if loginInFlight.Load() != 0 {
				violations.Add(1)
			}
			writeEnvelope(w, 30000, "", map[string]any{"ok": 1})
		}
	}))
	defer server.Close()

	s := newTestSession(t, server.URL)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = s.Login(context.Background())
	}()

	// Let the login acquire the write lock and block on the gate.
	require.Eventually(t, func() bool { return loginInFlight.Load() == 1 },
		time.Second, time.Millisecond)

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.Call(context.Background(), "sysstat", "show", nil)
		}()
	}

	// Calls must be parked on the read lock, not at the upstream.
	time.Sleep(50 * time.Millisecond)
	close(loginGate)
	wg.Wait()

	assert.Zero(t, violations.Load(), "a call reached the upstream while login was in flight")
}
