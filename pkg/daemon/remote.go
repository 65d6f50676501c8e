package daemon

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/grovetools/repostore/errors"
	"github.com/grovetools/repostore/internal/daemon/server"
	"github.com/grovetools/repostore/pkg/actions"
)

// unixHost is the dummy host used for Unix socket HTTP requests.
// The actual connection goes through the Unix socket, not this URL.
const unixHost = "unix"

// RemoteClient implements Client by calling the daemon's HTTP API, either over
// a Unix socket or over TCP.
type RemoteClient struct {
	httpClient   *http.Client
	streamClient *http.Client
	dialer       *websocket.Dialer
	baseURL      string
	endpoint     string
}

// NewRemoteClient creates a RemoteClient for endpoint. An endpoint is a socket
// path, a unix:// URL, or an http(s):// URL.
func NewRemoteClient(endpoint string) (*RemoteClient, error) {
	c := &RemoteClient{endpoint: endpoint}

	var dial func(ctx context.Context, network, addr string) (net.Conn, error)

	switch {
	case strings.HasPrefix(endpoint, "http://"), strings.HasPrefix(endpoint, "https://"):
		u, err := url.Parse(endpoint)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInvalidInput, "invalid daemon endpoint")
		}
		c.baseURL = strings.TrimSuffix(u.String(), "/")
	default:
		socketPath := strings.TrimPrefix(endpoint, "unix://")
		if socketPath == "" {
			return nil, errors.New(errors.ErrCodeInvalidInput, "daemon endpoint is empty")
		}
		dial = func(ctx context.Context, _, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "unix", socketPath)
		}
		c.baseURL = "http://" + unixHost
	}

	transport := &http.Transport{
		DialContext:     dial,
		MaxIdleConns:    10,
		IdleConnTimeout: 90 * time.Second,
	}
	c.httpClient = &http.Client{Transport: transport, Timeout: 10 * time.Second}
	// Streams stay open indefinitely.
	c.streamClient = &http.Client{Transport: transport.Clone()}
	c.dialer = &websocket.Dialer{NetDialContext: dial, HandshakeTimeout: 10 * time.Second}

	return c, nil
}

// Endpoint returns the endpoint the client was created with.
func (c *RemoteClient) Endpoint() string {
	return c.endpoint
}

func (c *RemoteClient) do(ctx context.Context, method, path string, body []byte, want int) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDaemonNotRunning, "failed to reach daemon").
			WithDetail("endpoint", c.endpoint)
	}
	if resp.StatusCode != want {
		defer resp.Body.Close()
		return nil, decodeError(resp)
	}
	return resp, nil
}

// decodeError turns an error body written by the daemon back into an *errors.Error.
func decodeError(resp *http.Response) error {
	var body struct {
		Error *errors.Error `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err == nil && body.Error != nil {
		return body.Error
	}
	return fmt.Errorf("daemon returned status %d", resp.StatusCode)
}

// State fetches /api/state.
func (c *RemoteClient) State(ctx context.Context) (*State, error) {
	resp, err := c.do(ctx, http.MethodGet, "/api/state", nil, http.StatusOK)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var state State
	if err := json.NewDecoder(resp.Body).Decode(&state); err != nil {
		return nil, fmt.Errorf("failed to decode state: %w", err)
	}
	return &state, nil
}

// Config fetches the settings the daemon is running with.
func (c *RemoteClient) Config(ctx context.Context) (*server.RunningConfig, error) {
	resp, err := c.do(ctx, http.MethodGet, "/api/config", nil, http.StatusOK)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var cfg server.RunningConfig
	if err := json.NewDecoder(resp.Body).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Dispatch encodes a and posts it to /api/dispatch.
func (c *RemoteClient) Dispatch(ctx context.Context, a actions.Action) error {
	body, err := actions.Encode(a)
	if err != nil {
		return err
	}
	resp, err := c.do(ctx, http.MethodPost, "/api/dispatch", body, http.StatusAccepted)
	if err != nil {
		return err
	}
	return resp.Body.Close()
}

// Reset queues an emptying of the daemon's store behind pending actions.
func (c *RemoteClient) Reset(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodPost, "/api/reset", nil, http.StatusAccepted)
	if err != nil {
		return err
	}
	return resp.Body.Close()
}

// IsRunning returns true if the daemon is available and responding.
func (c *RemoteClient) IsRunning() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	resp, err := c.do(ctx, http.MethodGet, "/health", nil, http.StatusOK)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return true
}

// Stream subscribes to change notifications via Server-Sent Events (SSE).
func (c *RemoteClient) Stream(ctx context.Context) (<-chan Change, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/stream", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create stream request: %w", err)
	}

	resp, err := c.streamClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDaemonNotRunning, "failed to connect to stream").
			WithDetail("endpoint", c.endpoint)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, decodeError(resp)
	}

	ch := make(chan Change, 10)
	go func() {
		defer resp.Body.Close()
		defer close(ch)

		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			line := scanner.Text()
			// Skip comments and empty lines
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			var change Change
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &change); err != nil {
				continue // Skip malformed data
			}
			select {
			case ch <- change:
			case <-ctx.Done():
				return
			}
		}
	}()

	return ch, nil
}

// Watch subscribes to change notifications over the daemon's websocket.
func (c *RemoteClient) Watch(ctx context.Context) (<-chan Change, error) {
	wsURL := "ws" + strings.TrimPrefix(c.baseURL, "http") + "/api/ws"
	conn, resp, err := c.dialer.DialContext(ctx, wsURL, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDaemonNotRunning, "failed to open websocket").
			WithDetail("endpoint", c.endpoint)
	}

	ch := make(chan Change, 10)
	go func() {
		<-ctx.Done()
		conn.Close()
	}()
	go func() {
		defer close(ch)
		defer conn.Close()
		for {
			var change Change
			if err := conn.ReadJSON(&change); err != nil {
				return
			}
			select {
			case ch <- change:
			case <-ctx.Done():
				return
			}
		}
	}()

	return ch, nil
}

// Close cleans up any resources used by the client.
func (c *RemoteClient) Close() error {
	c.httpClient.CloseIdleConnections()
	c.streamClient.CloseIdleConnections()
	return nil
}

// Ensure RemoteClient implements Client interface.
var _ Client = (*RemoteClient)(nil)
