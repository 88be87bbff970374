package ipc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"
)

// Client issues RPCs to one daemon socket.
type Client struct {
	path string
	http *http.Client
}

// ClientOption customizes a Client.
type ClientOption func(*Client)

// WithTimeout bounds every call made by the client.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.http.Timeout = d }
}

// NewClient returns a client bound to the socket at path. No connection is
// made until the first call.
func NewClient(path string, opts ...ClientOption) *Client {
	transport := &http.Transport{
		DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "unix", path)
		},
		DisableKeepAlives: true,
	}
	c := &Client{path: path, http: &http.Client{Transport: transport}}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Send posts args to /<command> and returns the raw response content.
// Application failures come back as *RemoteError, connectivity and protocol
// failures as *TransportError.
func (c *Client) Send(ctx context.Context, command string, args any) (json.RawMessage, error) {
	content, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("encode %s arguments: %w", command, err)
	}
	body, err := json.Marshal(Request{Content: content})
	if err != nil {
		return nil, fmt.Errorf("encode %s request: %w", command, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "http://nopg/"+url.PathEscape(command), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", command, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &TransportError{Path: c.path, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Path: c.path, Err: err}
	}

	if resp.StatusCode == http.StatusOK {
		var out Response
		if err := json.Unmarshal(raw, &out); err != nil {
			return nil, &TransportError{Path: c.path, Err: fmt.Errorf("decode response: %w", err)}
		}
		return out.Content, nil
	}

	var envelope ErrorEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, &TransportError{Path: c.path, Err: fmt.Errorf("decode error response (status %d): %w", resp.StatusCode, err)}
	}
	remote := &RemoteError{Status: resp.StatusCode, Title: envelope.Title, Stack: envelope.Stack}
	if envelope.Content != nil {
		remote.Code = envelope.Content.Code
		remote.Message = envelope.Content.Message
	}
	return nil, remote
}

// Call is Send followed by decoding the content into out. A nil out discards
// the content.
func (c *Client) Call(ctx context.Context, command string, args, out any) error {
	content, err := c.Send(ctx, command, args)
	if err != nil {
		return err
	}
	if out == nil || len(content) == 0 {
		return nil
	}
	if err := json.Unmarshal(content, out); err != nil {
		return &TransportError{Path: c.path, Err: fmt.Errorf("decode %s result: %w", command, err)}
	}
	return nil
}

// Metrics fetches the daemon's Prometheus exposition.
func (c *Client) Metrics(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://nopg/metrics", nil)
	if err != nil {
		return "", err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", &TransportError{Path: c.path, Err: err}
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &TransportError{Path: c.path, Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return "", &RemoteError{Status: resp.StatusCode, Title: fmt.Sprintf("metrics unavailable (status %d)", resp.StatusCode)}
	}
	return string(raw), nil
}
