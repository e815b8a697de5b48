package ikuai

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DateType selects the aggregation window for the router's statistics calls.
type DateType string

const (
	DateTypeMonth DateType = "month"
	DateTypeWeek  DateType = "week"
	DateTypeDay   DateType = "day"
	DateTypeHour  DateType = "hour"
)

// Valid reports whether d is one of the windows the router accepts.
func (d DateType) Valid() bool {
	switch d {
	case DateTypeMonth, DateTypeWeek, DateTypeDay, DateTypeHour:
		return true
	}
	return false
}

// Client exposes the router monitoring operations the middleware proxies.
// All methods are read-only against the router and safe to call
// concurrently; see Session for the locking rules.
type Client struct {
	session *Session
}

// NewClient wraps an upstream session.
func NewClient(session *Session) *Client {
	return &Client{session: session}
}

// Session returns the underlying upstream session.
func (c *Client) Session() *Session {
	return c.session
}

// Login renews the upstream session; see Session.Login.
func (c *Client) Login(ctx context.Context) error {
	return c.session.Login(ctx)
}

// IfaceInfo returns per-interface status, traffic counters, and link info.
func (c *Client) IfaceInfo(ctx context.Context) (json.RawMessage, error) {
	return c.session.Call(ctx, "monitor_iface", "show",
		typeParam("iface_check", "iface_stream", "ether_info", "snapshoot"))
}

// SysInfo returns the current system snapshot: version, CPU, memory,
// stream rates, and CPU temperature.
func (c *Client) SysInfo(ctx context.Context) (json.RawMessage, error) {
	return c.session.Call(ctx, "sysstat", "show",
		typeParam("verinfo", "cpu", "memory", "stream", "cputemp"))
}

// CheckWANs starts the router's internet connectivity check and polls until
// a result is available, sleeping pollInterval between polls. The check is
// asynchronous on the router; ctx bounds the total wait.
func (c *Client) CheckWANs(ctx context.Context, pollInterval time.Duration) (json.RawMessage, error) {
	param := typeParam("internet")

	if _, err := c.session.Call(ctx, "iksyscheck", "start", param); err != nil {
		return nil, err
	}

	for {
		data, err := c.session.Call(ctx, "iksyscheck", "show", param)
		if err != nil {
			return nil, err
		}

		var probe struct {
			InternetRes json.RawMessage `json:"internet_res"`
		}
		if err := json.Unmarshal(data, &probe); err != nil {
			return nil, fmt.Errorf("decode connectivity check result: %w", err)
		}
		if !pendingResult(probe.InternetRes) {
			return data, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

// pendingResult reports whether internet_res is still empty — the router
// returns an empty value until the probe completes.
func pendingResult(raw json.RawMessage) bool {
	switch strings.TrimSpace(string(raw)) {
	case "", "null", `""`, "[]", "{}", "0":
		return true
	}
	return false
}

// ConnStat returns online-terminal, connection-count, and rate statistics
// for the given window, averaged or peak per sample.
func (c *Client) ConnStat(ctx context.Context, datetype DateType, average bool) (json.RawMessage, error) {
	return c.session.Call(ctx, "monitor_system", "show", map[string]any{
		"TYPE":     "on_terminal,conn_num,rate_stat",
		"datetype": string(datetype),
		"math":     mathMode(average),
	})
}

// SysStat returns CPU, memory, and disk usage statistics for the given
// window, averaged or peak per sample.
func (c *Client) SysStat(ctx context.Context, datetype DateType, average bool) (json.RawMessage, error) {
	return c.session.Call(ctx, "monitor_system", "show", map[string]any{
		"TYPE":     "cpu,memory,disk_space_used",
		"datetype": string(datetype),
		"math":     mathMode(average),
	})
}

// ProtoStat returns per-protocol traffic history across all interfaces.
func (c *Client) ProtoStat(ctx context.Context, datetype DateType) (json.RawMessage, error) {
	return c.session.Call(ctx, "monitor_app_flow", "show", map[string]any{
		"TYPE":      "app_history",
		"datetype":  string(datetype),
		"interface": "all",
	})
}

// ProtoDistrib returns the protocol distribution over the trailing window
// of the given length in minutes.
func (c *Client) ProtoDistrib(ctx context.Context, minutes int) (json.RawMessage, error) {
	return c.session.Call(ctx, "monitor_system", "show", map[string]any{
		"TYPE":    "app_flow",
		"minutes": strconv.Itoa(minutes),
	})
}

func typeParam(types ...string) map[string]any {
	return map[string]any{"TYPE": strings.Join(types, ",")}
}

func mathMode(average bool) string {
	if average {
		return "avg"
	}
	return "max"
}
