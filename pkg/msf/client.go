// Package msf speaks the Metasploit RPC protocol (msgpack over HTTP) and adapts a
// running msfrpcd into an execution backend: session registry, console dispatch and
// shell upgrades.
package msf

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	"golang.org/x/time/rate"

	"spectra/pkg/config"
	"spectra/pkg/logx"
	"spectra/pkg/utils"
)

// contentType is the media type msfrpcd expects for requests.
const contentType = "binary/message-pack"

// maxResponseBytes guards against runaway console output.
const maxResponseBytes = 32 << 20

// invalidTokenMessage is the msfrpcd error for an expired or unknown token.
const invalidTokenMessage = "Invalid Authentication Token"

// ErrLoginFailed is returned when msfrpcd rejects the credentials.
var ErrLoginFailed = errors.New("msf rpc login failed")

// RPCError is an error reported by msfrpcd itself.
type RPCError struct {
	Method  string
	Class   string
	Message string
}

func (e *RPCError) Error() string {
	if e.Class != "" {
		return fmt.Sprintf("msf rpc %s: %s (%s)", e.Method, e.Message, e.Class)
	}
	return fmt.Sprintf("msf rpc %s: %s", e.Method, e.Message)
}

// Client is a Metasploit RPC client. It is safe for concurrent use.
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *logx.Logger
	endpoint   string
	user       string
	password   string

	mu    sync.Mutex
	token string
}

// Endpoint builds the RPC URL for cfg.
func Endpoint(cfg config.MSFConfig) string {
	scheme := "http"
	if cfg.SSL {
		scheme = "https"
	}
	uri := cfg.URI
	if uri == "" {
		uri = config.DefaultMSFURI
	}
	return fmt.Sprintf("%s://%s%s", scheme, net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)), uri)
}

// NewClient creates a client for the daemon described by cfg. No request is made
// until the first call.
func NewClient(cfg config.MSFConfig, password string) *Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.SSL && cfg.SkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // msfrpcd ships a self-signed cert
	}

	timeout := cfg.Timeout.D()
	if timeout <= 0 {
		timeout = config.DefaultMSFTimeout
	}

	limit := rate.Inf
	burst := 1
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
		burst = max(1, int(cfg.RateLimit))
	}

	return &Client{
		httpClient: &http.Client{Timeout: timeout, Transport: transport},
		limiter:    rate.NewLimiter(limit, burst),
		logger:     logx.NewLogger("msf"),
		endpoint:   Endpoint(cfg),
		user:       cfg.User,
		password:   password,
	}
}

// Login authenticates and stores the session token.
func (c *Client) Login(ctx context.Context) error {
	res, err := c.do(ctx, "auth.login", c.user, c.password)
	if err != nil {
		var rpcErr *RPCError
		if errors.As(err, &rpcErr) {
			return fmt.Errorf("%w: %s", ErrLoginFailed, rpcErr.Message)
		}
		return err
	}
	if utils.StringField(res, "result") != "success" {
		return ErrLoginFailed
	}
	token := utils.StringField(res, "token")
	if token == "" {
		return fmt.Errorf("%w: no token in response", ErrLoginFailed)
	}

	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
	c.logger.Debug("authenticated to %s", c.endpoint)
	return nil
}

// Logout invalidates the current token. It is a no-op when not logged in.
func (c *Client) Logout(ctx context.Context) error {
	token := c.currentToken()
	if token == "" {
		return nil
	}
	_, err := c.do(ctx, "auth.logout", token, token)

	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()
	return err
}

// Version returns the framework, ruby and API versions.
func (c *Client) Version(ctx context.Context) (map[string]any, error) {
	return c.Call(ctx, "core.version")
}

// Call invokes an authenticated RPC method, logging in first if needed. An expired
// token triggers one re-login.
func (c *Client) Call(ctx context.Context, method string, args ...any) (map[string]any, error) {
	if c.currentToken() == "" {
		if err := c.Login(ctx); err != nil {
			return nil, err
		}
	}

	res, err := c.do(ctx, method, append([]any{c.currentToken()}, args...)...)
	var rpcErr *RPCError
	if errors.As(err, &rpcErr) && strings.Contains(rpcErr.Message, invalidTokenMessage) {
		c.logger.Debug("token rejected on %s, re-authenticating", method)
		if loginErr := c.Login(ctx); loginErr != nil {
			return nil, loginErr
		}
		res, err = c.do(ctx, method, append([]any{c.currentToken()}, args...)...)
	}
	return res, err
}

func (c *Client) currentToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

// do performs one request: [method, args...] in, a msgpack map out.
func (c *Client) do(ctx context.Context, method string, args ...any) (map[string]any, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("msf rpc %s: %w", method, err)
	}

	body, err := msgpack.Marshal(append([]any{method}, args...))
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s request: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", contentType)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("msf rpc %s: %w", method, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("msf rpc %s: failed to read response: %w", method, err)
	}
	c.logger.Debug("%s -> HTTP %d in %v", method, resp.StatusCode, time.Since(start))

	result, decodeErr := decodeResponse(raw)
	if decodeErr != nil {
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("msf rpc %s: HTTP %d", method, resp.StatusCode)
		}
		return nil, fmt.Errorf("msf rpc %s: %w", method, decodeErr)
	}

	if utils.GetMapFieldOr(result, "error", false) {
		return nil, &RPCError{
			Method:  method,
			Class:   utils.StringField(result, "error_class"),
			Message: utils.StringField(result, "error_message"),
		}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("msf rpc %s: HTTP %d", method, resp.StatusCode)
	}
	return result, nil
}

// decodeResponse decodes a msgpack map. Keys may be integers (session.list), so
// maps decode untyped and are then normalized to string keys.
func decodeResponse(raw []byte) (map[string]any, error) {
	dec := msgpack.NewDecoder(bytes.NewReader(raw))
	dec.SetMapDecoder(func(d *msgpack.Decoder) (any, error) {
		return d.DecodeUntypedMap()
	})

	v, err := dec.DecodeInterface()
	if err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	m, ok := utils.StringMap(v)
	if !ok {
		return nil, fmt.Errorf("unexpected response type %T", v)
	}
	return m, nil
}
