package ikuai

import "fmt"

// AuthError reports a failed login: either the transport rejected the
// request or the router's result envelope signalled failure. The session
// reference is always cleared before this error is returned.
type AuthError struct {
	StatusCode int // HTTP status, 0 when the failure was application-level
	Message    string
}

func (e *AuthError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("ikuai login rejected: HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("ikuai login rejected: %s", e.Message)
}

// APIError reports a call whose result envelope carried a failure code
// (Result % 10000 != 0).
type APIError struct {
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("ikuai API error code %d: %s", e.Code, e.Message)
}
