package testclient

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"vpnshield/pkg/apiserver"
	"vpnshield/pkg/catalog"
	"vpnshield/pkg/session"

	"github.com/henvic/httpretty"
	"github.com/lmittmann/tint"
)

// InitLogging installs a colored handler; the client is meant for terminals.
func InitLogging(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(
		tint.NewHandler(os.Stderr, &tint.Options{
			Level:      level,
			TimeFormat: time.DateTime,
		}),
	))
}

// Client talks to the control API of a running vpnshield.
type Client struct {
	base     *url.URL
	username string
	password string
	c        *http.Client
}

type Options struct {
	// http(s)://host:port or unix:/path/to/socket
	Server   string
	Username string
	Password string
	// Dump requests and responses to stderr
	Debug bool
}

func New(opts Options) (*Client, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()

	base, err := parseServer(opts.Server, transport)
	if err != nil {
		return nil, err
	}

	var rt http.RoundTripper = transport
	if opts.Debug {
		httpLogger := &httpretty.Logger{
			Time:           true,
			TLS:            true,
			RequestHeader:  true,
			RequestBody:    true,
			ResponseHeader: true,
			ResponseBody:   true,
			Colors:         true,
			Formatters:     []httpretty.Formatter{&httpretty.JSONFormatter{}},
		}
		httpLogger.SetOutput(os.Stderr)
		httpLogger.SkipHeader([]string{"Authorization"})
		// watch streams never end, so the body dump would block forever
		httpLogger.SetBodyFilter(func(h http.Header) (skip bool, err error) {
			return h.Get("Content-Type") == "application/x-ndjson", nil
		})
		rt = httpLogger.RoundTripper(transport)
	}

	return &Client{
		base:     base,
		username: opts.Username,
		password: opts.Password,
		c:        &http.Client{Transport: rt},
	}, nil
}

func parseServer(server string, transport *http.Transport) (*url.URL, error) {
	if path, ok := strings.CutPrefix(server, "unix:"); ok {
		transport.DialContext = func(ctx context.Context, _, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "unix", path)
		}
		return &url.URL{Scheme: "http", Host: "unix"}, nil
	}

	base, err := url.Parse(server)
	if err != nil {
		return nil, fmt.Errorf("invalid server URL: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("invalid server URL %q: scheme must be http or https", server)
	}
	return base, nil
}

func (s *Client) Servers(ctx context.Context) ([]catalog.Endpoint, error) {
	var resp apiserver.ServersResponse
	if err := s.call(ctx, http.MethodGet, "/servers", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Servers, nil
}

func (s *Client) Session(ctx context.Context) (*apiserver.SessionResponse, error) {
	var resp apiserver.SessionResponse
	if err := s.call(ctx, http.MethodGet, "/session", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (s *Client) Select(ctx context.Context, endpointID string) error {
	return s.call(ctx, http.MethodPost, "/session/select", &apiserver.SelectRequest{EndpointID: endpointID}, nil)
}

// Toggle connects or disconnects. An empty endpointID keeps the current selection.
func (s *Client) Toggle(ctx context.Context, endpointID string) (*apiserver.SessionResponse, error) {
	var resp apiserver.SessionResponse
	err := s.call(ctx, http.MethodPost, "/session/toggle", &apiserver.ToggleRequest{EndpointID: endpointID}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// Watch calls fn for every streamed snapshot until fn returns false, ctx is done, or the stream ends.
func (s *Client) Watch(ctx context.Context, fn func(session.Snapshot) bool) error {
	req, err := s.newRequest(ctx, http.MethodGet, "/session/watch", nil)
	if err != nil {
		return err
	}

	resp, err := s.c.Do(req)
	if err != nil {
		return fmt.Errorf("failed to request watch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decodeError(resp)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		var snap session.Snapshot
		if err := json.Unmarshal(scanner.Bytes(), &snap); err != nil {
			return fmt.Errorf("failed to decode snapshot: %w", err)
		}
		if !fn(snap) {
			return nil
		}
	}

	err = scanner.Err()
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}

func (s *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.base.JoinPath(path).String(), reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.username != "" {
		req.SetBasicAuth(s.username, s.password)
	}
	return req, nil
}

func (s *Client) call(ctx context.Context, method, path string, body, out any) error {
	req, err := s.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}

	resp, err := s.c.Do(req)
	if err != nil {
		return fmt.Errorf("failed to request %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decodeError(resp)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	var apiErr apiserver.ApiError
	if err := json.NewDecoder(resp.Body).Decode(&apiErr); err != nil {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}
	apiErr.HttpCode = resp.StatusCode
	return &apiErr
}

// IsResult reports whether err is an API error with the given result code.
func IsResult(err error, result string) bool {
	var apiErr *apiserver.ApiError
	return errors.As(err, &apiErr) && apiErr.Result == result
}
