// Package provider reaches tool providers over their opaque
// request/response boundary and owns the runtime registry of provider
// handles and their connection pools.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// AuthType selects how credentials attach to provider requests
type AuthType string

const (
	AuthNone   AuthType = "none"
	AuthAPIKey AuthType = "api_key"
	AuthBearer AuthType = "bearer"
	AuthBasic  AuthType = "basic"
)

// Handle describes one provider endpoint. Credentials are opaque to the
// core; the HTTP caller attaches them per AuthType.
type Handle struct {
	ID         string
	BaseURL    string
	AuthType   AuthType
	Credential string
	Timeout    time.Duration
	MinConns   int
	MaxConns   int
}

// Caller is the minimal provider contract: one call operation and a
// lightweight liveness probe.
type Caller interface {
	Call(ctx context.Context, tool string, params map[string]interface{}) (interface{}, error)
	Ping(ctx context.Context) error
}

// CallError carries the provider-side error detail
type CallError struct {
	StatusCode int
	Detail     string
}

func (e *CallError) Error() string {
	return fmt.Sprintf("provider returned %d: %s", e.StatusCode, e.Detail)
}

// HTTPCaller talks to a provider over HTTP. Calls POST to
// {base}/tools/{name} with a JSON params body; the probe GETs
// {base}/healthz.
type HTTPCaller struct {
	handle Handle
	client *http.Client
}

// NewHTTPCaller creates a caller for the handle
func NewHTTPCaller(handle Handle) *HTTPCaller {
	timeout := handle.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPCaller{
		handle: handle,
		client: &http.Client{Timeout: timeout},
	}
}

type callResponse struct {
	Result interface{} `json:"result"`
	Error  string      `json:"error"`
}

// Call implements Caller
func (h *HTTPCaller) Call(ctx context.Context, tool string, params map[string]interface{}) (interface{}, error) {
	body, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshal params: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		h.handle.BaseURL+"/tools/"+tool, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	h.attachAuth(req)

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, err
	}

	var parsed callResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		if resp.StatusCode >= 400 {
			return nil, &CallError{StatusCode: resp.StatusCode, Detail: string(data)}
		}
		return nil, fmt.Errorf("decode response: %w", err)
	}

	if resp.StatusCode >= 400 || parsed.Error != "" {
		detail := parsed.Error
		if detail == "" {
			detail = http.StatusText(resp.StatusCode)
		}
		return nil, &CallError{StatusCode: resp.StatusCode, Detail: detail}
	}

	return parsed.Result, nil
}

// Ping implements Caller
func (h *HTTPCaller) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.handle.BaseURL+"/healthz", nil)
	if err != nil {
		return err
	}
	h.attachAuth(req)

	resp, err := h.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health probe returned %d", resp.StatusCode)
	}
	return nil
}

func (h *HTTPCaller) attachAuth(req *http.Request) {
	switch h.handle.AuthType {
	case AuthAPIKey:
		req.Header.Set("X-API-Key", h.handle.Credential)
	case AuthBearer:
		req.Header.Set("Authorization", "Bearer "+h.handle.Credential)
	case AuthBasic:
		req.Header.Set("Authorization", "Basic "+h.handle.Credential)
	}
}
