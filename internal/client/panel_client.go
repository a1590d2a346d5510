package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// PanelClient talks to one remote proxy-panel server (x-ui style HTTP API).
// It owns the per-server credentials and a short-lived cookie session that is
// established lazily and refreshed transparently when the panel reports it
// expired. Callers never see auth details.
//
// The client performs no retries of its own; retry policy belongs to the
// state machine so attempt counts stay observable and capped in one place.
type PanelClient struct {
	baseURL    string
	username   string
	password   string
	httpClient *http.Client

	mu      sync.RWMutex
	session string // raw Cookie header value

	// 并发场景下只允许一个调用方重新登录，其余等待结果
	loginGroup singleflight.Group
}

// NewPanelClient creates a client for one panel server.
func NewPanelClient(baseURL, username, password string, timeout time.Duration) *PanelClient {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &PanelClient{
		baseURL:  strings.TrimRight(baseURL, "/"),
		username: username,
		password: password,
		httpClient: &http.Client{
			Timeout: timeout,
			// The panel answers expired sessions with a redirect to the
			// login page; surface that instead of following it.
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

// apiResponse is the {success,msg,obj} envelope every panel endpoint uses.
type apiResponse struct {
	Success bool            `json:"success"`
	Msg     string          `json:"msg"`
	Obj     json.RawMessage `json:"obj"`
}

// ClientSpec carries the account parameters for a new panel client.
type ClientSpec struct {
	ID         string `json:"id,omitempty"`       // uuid (vless/vmess)
	Password   string `json:"password,omitempty"` // trojan/shadowsocks secret
	Method     string `json:"method,omitempty"`   // shadowsocks cipher
	Email      string `json:"email"`
	Flow       string `json:"flow,omitempty"`
	LimitIP    int    `json:"limitIp"`
	TotalGB    int64  `json:"totalGB"`
	ExpiryTime int64  `json:"expiryTime"` // unix millis
	Enable     bool   `json:"enable"`
}

// RemoteInbound is one listener as reported by the panel.
type RemoteInbound struct {
	ID       int    `json:"id"`
	Up       int64  `json:"up"`
	Down     int64  `json:"down"`
	Total    int64  `json:"total"`
	Remark   string `json:"remark"`
	Enable   bool   `json:"enable"`
	Port     int    `json:"port"`
	Protocol string `json:"protocol"`
	// Settings is a JSON string holding the clients array
	Settings       string `json:"settings"`
	StreamSettings string `json:"streamSettings"`
}

// RemoteAccountSnapshot is the panel's view of one client account.
type RemoteAccountSnapshot struct {
	ID         int    `json:"id"`
	InboundID  int    `json:"inboundId"`
	Enable     bool   `json:"enable"`
	Email      string `json:"email"`
	Up         int64  `json:"up"`
	Down       int64  `json:"down"`
	Total      int64  `json:"total"`
	ExpiryTime int64  `json:"expiryTime"`
}

// Login authenticates against the panel and caches the session cookie.
// Normally callers never need this: every operation establishes the session
// lazily. It is exported for connectivity checks at startup.
func (c *PanelClient) Login(ctx context.Context) error {
	_, err, _ := c.loginGroup.Do("login", func() (interface{}, error) {
		return nil, c.login(ctx)
	})
	return err
}

func (c *PanelClient) login(ctx context.Context) error {
	form := url.Values{}
	form.Set("username", c.username)
	form.Set("password", c.password)

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/login", strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("create login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRemoteUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read login response: %v", ErrRemoteUnavailable, err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: login status %d", ErrAuthFailed, resp.StatusCode)
	}

	var result apiResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return fmt.Errorf("%w: decode login response: %v", ErrAuthFailed, err)
	}
	if !result.Success {
		return fmt.Errorf("%w: %s", ErrAuthFailed, result.Msg)
	}

	var parts []string
	for _, ck := range resp.Cookies() {
		parts = append(parts, ck.Name+"="+ck.Value)
	}
	if len(parts) == 0 {
		return fmt.Errorf("%w: panel set no session cookie", ErrAuthFailed)
	}

	c.mu.Lock()
	c.session = strings.Join(parts, "; ")
	c.mu.Unlock()

	// 日志脱敏: 不记录 cookie 内容
	log.Printf("[PanelClient] Logged in to panel %s", c.baseURL)
	return nil
}

func (c *PanelClient) currentSession() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session
}

// doAPI performs one authenticated call, establishing or refreshing the
// session as needed. A session that the panel reports expired triggers
// exactly one single-flight re-login and one retry of the request.
func (c *PanelClient) doAPI(ctx context.Context, method, path string, payload interface{}) (*apiResponse, error) {
	if c.currentSession() == "" {
		if err := c.Login(ctx); err != nil {
			return nil, err
		}
	}

	resp, err := c.doOnce(ctx, method, path, payload)
	if err == nil || !errors.Is(err, errSessionExpired) {
		return resp, err
	}

	if err := c.Login(ctx); err != nil {
		return nil, err
	}
	resp, err = c.doOnce(ctx, method, path, payload)
	if errors.Is(err, errSessionExpired) {
		// Fresh login and still rejected: credentials are broken.
		return nil, fmt.Errorf("%w: session rejected after re-login", ErrAuthFailed)
	}
	return resp, err
}

// errSessionExpired is internal to the refresh loop; callers never see it.
var errSessionExpired = errors.New("panel session expired")

func (c *PanelClient) doOnce(ctx context.Context, method, path string, payload interface{}) (*apiResponse, error) {
	var bodyReader io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Cookie", c.currentSession())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil, fmt.Errorf("%w: timeout: %v", ErrRemoteUnavailable, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrRemoteUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrRemoteUnavailable, err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized,
		resp.StatusCode == http.StatusTemporaryRedirect,
		resp.StatusCode == http.StatusFound:
		return nil, errSessionExpired
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: panel status %d", ErrRemoteUnavailable, resp.StatusCode)
	case resp.StatusCode >= 400:
		return nil, fmt.Errorf("%w: panel status %d: %s", ErrRemoteRejected, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var result apiResponse
	if err := json.Unmarshal(body, &result); err != nil {
		// Panels answer expired sessions with a login-page HTML body.
		if strings.Contains(strings.ToLower(string(body)), "login") {
			return nil, errSessionExpired
		}
		return nil, fmt.Errorf("%w: decode response: %v", ErrRemoteUnavailable, err)
	}
	return &result, nil
}

// CreateClient adds one client account to the given inbound and returns the
// remote account id (the spec's id or password, whichever keys the account).
func (c *PanelClient) CreateClient(ctx context.Context, inboundID int, spec *ClientSpec) (string, error) {
	// 日志脱敏: 不记录 secret
	log.Printf("[PanelClient] Creating client on inbound %d (email: %s)", inboundID, spec.Email)

	settings, err := json.Marshal(map[string]interface{}{
		"clients": []*ClientSpec{spec},
	})
	if err != nil {
		return "", fmt.Errorf("marshal client settings: %w", err)
	}

	payload := map[string]interface{}{
		"id":       inboundID,
		"settings": string(settings),
	}

	resp, err := c.doAPI(ctx, "POST", "/panel/api/inbounds/addClient", payload)
	if err != nil {
		return "", err
	}
	if !resp.Success {
		return "", classifyCreateFailure(resp.Msg)
	}

	remoteID := spec.ID
	if remoteID == "" {
		remoteID = spec.Password
	}
	log.Printf("[PanelClient] Client created on inbound %d", inboundID)
	return remoteID, nil
}

// classifyCreateFailure maps the panel's free-text msg onto the error
// taxonomy. Unrecognized messages count as rejections, never as transient.
func classifyCreateFailure(msg string) error {
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "duplicate email"), strings.Contains(lower, "already exists"):
		return fmt.Errorf("%w: %s", ErrDuplicateEmail, msg)
	case strings.Contains(lower, "full"), strings.Contains(lower, "maximum client"):
		return fmt.Errorf("%w: %s", ErrInboundFull, msg)
	default:
		return fmt.Errorf("%w: %s", ErrRemoteRejected, msg)
	}
}

// ListInbounds fetches every inbound configured on the panel.
func (c *PanelClient) ListInbounds(ctx context.Context) ([]*RemoteInbound, error) {
	resp, err := c.doAPI(ctx, "GET", "/panel/api/inbounds/list", nil)
	if err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, fmt.Errorf("%w: %s", ErrRemoteRejected, resp.Msg)
	}

	var inbounds []*RemoteInbound
	if err := json.Unmarshal(resp.Obj, &inbounds); err != nil {
		return nil, fmt.Errorf("decode inbound list: %w", err)
	}
	return inbounds, nil
}

// GetClientByEmail looks up one client's traffic snapshot by email.
func (c *PanelClient) GetClientByEmail(ctx context.Context, email string) (*RemoteAccountSnapshot, error) {
	resp, err := c.doAPI(ctx, "GET", "/panel/api/inbounds/getClientTraffics/"+url.PathEscape(email), nil)
	if err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, fmt.Errorf("%w: %s", ErrRemoteRejected, resp.Msg)
	}
	if len(resp.Obj) == 0 || string(resp.Obj) == "null" {
		return nil, ErrNotFound
	}

	var snap RemoteAccountSnapshot
	if err := json.Unmarshal(resp.Obj, &snap); err != nil {
		return nil, fmt.Errorf("decode client snapshot: %w", err)
	}
	if snap.Email == "" {
		return nil, ErrNotFound
	}
	return &snap, nil
}

// GetClientByUUID looks up traffic snapshots by the account uuid. The panel
// returns an array because a uuid may appear on several inbounds.
func (c *PanelClient) GetClientByUUID(ctx context.Context, uuid string) (*RemoteAccountSnapshot, error) {
	resp, err := c.doAPI(ctx, "GET", "/panel/api/inbounds/getClientTrafficsById/"+url.PathEscape(uuid), nil)
	if err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, fmt.Errorf("%w: %s", ErrRemoteRejected, resp.Msg)
	}

	var snaps []*RemoteAccountSnapshot
	if err := json.Unmarshal(resp.Obj, &snaps); err != nil || len(snaps) == 0 {
		return nil, ErrNotFound
	}
	return snaps[0], nil
}

// GetClientIPs returns the set of IPs the panel has seen connect with this
// account. Used for connected-IP enforcement.
func (c *PanelClient) GetClientIPs(ctx context.Context, email string) ([]string, error) {
	resp, err := c.doAPI(ctx, "POST", "/panel/api/inbounds/clientIps/"+url.PathEscape(email), nil)
	if err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, fmt.Errorf("%w: %s", ErrRemoteRejected, resp.Msg)
	}

	// obj is either the literal "No IP Record" or a JSON array string.
	var raw string
	if err := json.Unmarshal(resp.Obj, &raw); err != nil {
		return nil, fmt.Errorf("decode client ips: %w", err)
	}
	if raw == "" || strings.EqualFold(raw, "no ip record") {
		return nil, ErrNotFound
	}

	var ips []string
	if err := json.Unmarshal([]byte(raw), &ips); err != nil {
		// Some panel builds return newline-separated plain text.
		for _, line := range strings.Split(raw, "\n") {
			if line = strings.TrimSpace(line); line != "" {
				ips = append(ips, line)
			}
		}
	}
	return ips, nil
}

// DeleteClient removes one client account from an inbound.
func (c *PanelClient) DeleteClient(ctx context.Context, inboundID int, uuid string) error {
	log.Printf("[PanelClient] Deleting client %s from inbound %d", uuid, inboundID)

	path := fmt.Sprintf("/panel/api/inbounds/%d/delClient/%s", inboundID, url.PathEscape(uuid))
	resp, err := c.doAPI(ctx, "POST", path, nil)
	if err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("%w: %s", ErrRemoteRejected, resp.Msg)
	}
	return nil
}
