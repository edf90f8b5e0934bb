package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"curator/internal/api"
)

type daemonClient struct {
	baseURL string
	http    *http.Client
}

func newDaemonClient(bind string) (*daemonClient, error) {
	bind = strings.TrimSpace(bind)
	if bind == "" {
		return nil, errors.New("a curator daemon is running without api.bind; stop it or enable the API to forward this command")
	}
	host, port, err := net.SplitHostPort(bind)
	if err != nil {
		return nil, fmt.Errorf("parse api.bind %q: %w", bind, err)
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return &daemonClient{
		baseURL: "http://" + net.JoinHostPort(host, port),
		http:    &http.Client{Timeout: 10 * time.Minute},
	}, nil
}

func (c *daemonClient) post(ctx context.Context, path string, in, out any) error {
	return c.do(ctx, http.MethodPost, path, in, out)
}

func (c *daemonClient) get(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

func (c *daemonClient) do(ctx context.Context, method, path string, in, out any) error {
	var body bytes.Buffer
	if in != nil {
		if err := json.NewEncoder(&body).Encode(in); err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, &body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("contact daemon at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr api.ErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err != nil || apiErr.Error == "" {
			return fmt.Errorf("daemon returned %s", resp.Status)
		}
		return &remoteError{message: apiErr.Error, kind: apiErr.Kind}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode daemon response: %w", err)
	}
	return nil
}

// remoteError carries the daemon's failure kind so forwarded commands
// classify the same way as in-process ones.
type remoteError struct {
	message string
	kind    string
}

func (e *remoteError) Error() string { return "daemon: " + e.message }

func (e *remoteError) ErrorKind() string { return e.kind }
