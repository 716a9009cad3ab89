package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// errAPIRequest wraps a non-2xx response from the admin HTTP API.
var errAPIRequest = errors.New("admin api request failed")

// peer mirrors the JSON view served by the daemon's admin HTTP API
// (internal/stack.AdminAPI).
type peer struct {
	DeviceID      string `json:"device_id"`
	Name          string `json:"name"`
	MACAddress    string `json:"mac_address"`
	IsUserRenamed bool   `json:"is_user_renamed"`
}

// adminClient is a thin plain-HTTP client for the daemon's admin API (the
// companion protocol has no generated RPC stubs to talk to; spec.md §4.4
// only asks for list/rename/forget, which map cleanly onto a small JSON
// surface instead).
type adminClient struct {
	baseURL string
	http    *http.Client
}

func newAdminClient(addr string) *adminClient {
	return &adminClient{
		baseURL: "http://" + strings.TrimPrefix(addr, "http://"),
		http:    http.DefaultClient,
	}
}

func (c *adminClient) listPeers(ctx context.Context) ([]peer, error) {
	var out []peer
	if err := c.do(ctx, http.MethodGet, "/peers", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *adminClient) getPeer(ctx context.Context, deviceID string) (peer, error) {
	var out peer
	err := c.do(ctx, http.MethodGet, "/peers/"+deviceID, nil, &out)
	return out, err
}

func (c *adminClient) renamePeer(ctx context.Context, deviceID, name string) error {
	body, err := json.Marshal(map[string]string{"name": name})
	if err != nil {
		return fmt.Errorf("marshal rename request: %w", err)
	}
	return c.do(ctx, http.MethodPost, "/peers/"+deviceID+"/rename", body, nil)
}

func (c *adminClient) forgetPeer(ctx context.Context, deviceID string) error {
	return c.do(ctx, http.MethodDelete, "/peers/"+deviceID, nil, nil)
}

func (c *adminClient) do(ctx context.Context, method, path string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = strings.NewReader(string(body))
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		if apiErr.Error == "" {
			apiErr.Error = resp.Status
		}
		return fmt.Errorf("%w: %s", errAPIRequest, apiErr.Error)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
