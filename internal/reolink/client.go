// Package reolink talks to Reolink cameras through their CGI JSON API.
package reolink

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"dogfinder/internal/camera"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

const apiPath = "/cgi-bin/api.cgi"

// Response codes the camera returns in the "error" object.
const (
	rspPleaseLogin  = -6
	rspLoginFailed  = -7
	rspTokenInvalid = -10
)

// leaseMargin renews the token slightly before the camera drops it.
const leaseMargin = 30 * time.Second

var ptzOps = map[camera.Operation]string{
	camera.Up:      "Up",
	camera.Down:    "Down",
	camera.Left:    "Left",
	camera.Right:   "Right",
	camera.ZoomIn:  "ZoomInc",
	camera.ZoomOut: "ZoomDec",
	camera.Stop:    "Stop",
}

// Client implements camera.Client for a single camera.
type Client struct {
	baseURL  string
	username string
	password string
	http     *http.Client
	now      func() time.Time

	mu      sync.Mutex
	token   string
	expires time.Time
}

type Option func(*Client)

// WithHTTPClient replaces the HTTP client used for every request.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithClock overrides the time source used for lease tracking.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// BaseURL builds the camera base URL from a host name or address.
func BaseURL(host string, https bool) string {
	if strings.HasPrefix(host, "http://") || strings.HasPrefix(host, "https://") {
		return strings.TrimRight(host, "/")
	}
	scheme := "http"
	if https {
		scheme = "https"
	}
	return scheme + "://" + host
}

func New(baseURL, username, password string, timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		username: username,
		password: password,
		http:     &http.Client{Timeout: timeout},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type request struct {
	Cmd    string `json:"cmd"`
	Action int    `json:"action"`
	Param  any    `json:"param"`
}

type response struct {
	Cmd   string          `json:"cmd"`
	Code  int             `json:"code"`
	Value json.RawMessage `json:"value"`
	Error *apiError       `json:"error"`
}

type apiError struct {
	Detail  string `json:"detail"`
	RspCode int    `json:"rspCode"`
}

func (e *apiError) err(cmd string) error {
	switch e.RspCode {
	case rspPleaseLogin, rspLoginFailed, rspTokenInvalid:
		return fmt.Errorf("reolink %s: %s (rspCode %d): %w", cmd, e.Detail, e.RspCode, camera.ErrUnauthorized)
	default:
		return fmt.Errorf("reolink %s: %s (rspCode %d)", cmd, e.Detail, e.RspCode)
	}
}

type loginParam struct {
	User struct {
		UserName string `json:"userName"`
		Password string `json:"password"`
	} `json:"User"`
}

type loginValue struct {
	Token struct {
		LeaseTime int    `json:"leaseTime"`
		Name      string `json:"name"`
	} `json:"Token"`
}

type ptzParam struct {
	Channel int    `json:"channel"`
	Op      string `json:"op"`
	Speed   int    `json:"speed,omitempty"`
}

// Login obtains a new token.
func (c *Client) Login(ctx context.Context) error {
	var param loginParam
	param.User.UserName = c.username
	param.User.Password = c.password

	resp, err := c.call(ctx, "Login", url.Values{}, param)
	if err != nil {
		return err
	}

	var value loginValue
	if err := json.Unmarshal(resp.Value, &value); err != nil {
		return fmt.Errorf("reolink Login: decode token: %w", err)
	}
	if value.Token.Name == "" {
		return fmt.Errorf("reolink Login: empty token: %w", camera.ErrUnauthorized)
	}

	lease := time.Duration(value.Token.LeaseTime) * time.Second
	if lease > 2*leaseMargin {
		lease -= leaseMargin
	}

	c.mu.Lock()
	c.token = value.Token.Name
	c.expires = time.Time{}
	if lease > 0 {
		c.expires = c.now().Add(lease)
	}
	c.mu.Unlock()
	return nil
}

// Snapshot fetches a JPEG frame from channel.
func (c *Client) Snapshot(ctx context.Context, channel int) ([]byte, error) {
	token, err := c.currentToken()
	if err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("cmd", "Snap")
	query.Set("channel", strconv.Itoa(channel))
	query.Set("rs", strings.ReplaceAll(uuid.NewString(), "-", "")[:16])
	query.Set("token", token)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+apiPath+"?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("reolink Snap: create request: %w", err)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("reolink Snap: %w: %w", camera.ErrUnreachable, err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("reolink Snap: read body: %w: %w", camera.ErrUnreachable, err)
	}
	if err := statusError("Snap", res); err != nil {
		return nil, err
	}

	if strings.HasPrefix(res.Header.Get("Content-Type"), "image/") {
		return body, nil
	}

	// The camera answers with a JSON error array when it refuses the snap.
	if _, err := decode("Snap", body); err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("reolink Snap: unexpected content type %q", res.Header.Get("Content-Type"))
}

// PTZ sends one PtzCtrl command.
func (c *Client) PTZ(ctx context.Context, cmd camera.PTZCommand) error {
	op, ok := ptzOps[cmd.Op]
	if !ok {
		return fmt.Errorf("%w: %s", camera.ErrInvalidCommand, cmd.Op)
	}
	token, err := c.currentToken()
	if err != nil {
		return err
	}

	param := ptzParam{Channel: cmd.Channel, Op: op}
	if cmd.Op.Continuous() {
		param.Speed = cmd.Speed
	}

	query := url.Values{}
	query.Set("token", token)
	_, err = c.call(ctx, "PtzCtrl", query, param)
	return err
}

// Logout releases the token on the camera.
func (c *Client) Logout(ctx context.Context) error {
	c.mu.Lock()
	token := c.token
	c.token = ""
	c.expires = time.Time{}
	c.mu.Unlock()

	if token == "" {
		return nil
	}

	query := url.Values{}
	query.Set("token", token)
	_, err := c.call(ctx, "Logout", query, struct{}{})
	return err
}

// currentToken returns the token while its lease is valid.
func (c *Client) currentToken() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token == "" {
		return "", fmt.Errorf("no token: %w", camera.ErrUnauthorized)
	}
	if !c.expires.IsZero() && !c.now().Before(c.expires) {
		c.token = ""
		return "", fmt.Errorf("token lease expired: %w", camera.ErrSessionExpired)
	}
	return c.token, nil
}

// call posts a single-command JSON request and returns its decoded response.
func (c *Client) call(ctx context.Context, cmd string, query url.Values, param any) (*response, error) {
	payload, err := json.Marshal([]request{{Cmd: cmd, Action: 0, Param: param}})
	if err != nil {
		return nil, fmt.Errorf("reolink %s: encode request: %w", cmd, err)
	}

	query.Set("cmd", cmd)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+apiPath+"?"+query.Encode(), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("reolink %s: create request: %w", cmd, err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("reolink %s: %w: %w", cmd, camera.ErrUnreachable, err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("reolink %s: read body: %w: %w", cmd, camera.ErrUnreachable, err)
	}
	if err := statusError(cmd, res); err != nil {
		return nil, err
	}

	return decode(cmd, body)
}

func statusError(cmd string, res *http.Response) error {
	switch {
	case res.StatusCode == http.StatusUnauthorized || res.StatusCode == http.StatusForbidden:
		return fmt.Errorf("reolink %s: %s: %w", cmd, res.Status, camera.ErrUnauthorized)
	case res.StatusCode != http.StatusOK:
		return fmt.Errorf("reolink %s: bad status: %s", cmd, res.Status)
	}
	return nil
}

func decode(cmd string, body []byte) (*response, error) {
	var responses []response
	if err := json.Unmarshal(body, &responses); err != nil {
		return nil, fmt.Errorf("reolink %s: decode response: %w", cmd, err)
	}
	if len(responses) == 0 {
		return nil, errors.New("reolink " + cmd + ": empty response")
	}

	resp := &responses[0]
	if resp.Error != nil {
		return nil, resp.Error.err(cmd)
	}
	if resp.Code != 0 {
		return nil, fmt.Errorf("reolink %s: code %d", cmd, resp.Code)
	}
	return resp, nil
}
