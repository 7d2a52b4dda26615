// Package controlplane implements the authenticated REST client for the
// central manager service that owns the node list.
package controlplane

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/relayops/node-provisioner/interfaces"
	"github.com/relayops/node-provisioner/metrics"
)

// Client talks to the control-plane REST API with bearer-token
// authentication. The token is acquired lazily and refreshed reactively: an
// auth-rejected response triggers exactly one re-authentication and one
// retry of the same call. Repeated rejection is a hard AuthError; there is no
// recursion and no unbounded retry.
//
// The token cache is process-wide and safe for concurrent callers; refreshes
// are serialized with a mutex so parallel sessions do not race redundant
// logins.
type Client struct {
	baseURL    string
	username   string
	password   string
	httpClient *http.Client
	log        *slog.Logger

	mu    sync.Mutex
	token string
}

// NewClient creates a control-plane client for the given base URL and admin
// credentials. The default per-call timeout is 10 seconds.
func NewClient(baseURL, username, password string, log *slog.Logger, timeout ...time.Duration) *Client {
	clientTimeout := 10 * time.Second
	if len(timeout) > 0 {
		clientTimeout = timeout[0]
	}

	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		username: username,
		password: password,
		log:      log,
		httpClient: &http.Client{
			Timeout: clientTimeout,
		},
	}
}

// Authenticate posts the admin credentials to the token endpoint and stores
// the returned bearer token. A non-200 response is an AuthError carrying the
// response body.
func (c *Client) Authenticate(ctx context.Context) error {
	form := url.Values{}
	form.Set("username", c.username)
	form.Set("password", c.password)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/admin/token", strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return &interfaces.AuthError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var result struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return fmt.Errorf("failed to parse token response: %w", err)
	}

	c.mu.Lock()
	c.token = result.AccessToken
	c.mu.Unlock()

	c.log.Debug("Control plane token refreshed")
	return nil
}

func (c *Client) currentToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

// do performs one authenticated call with the bounded re-authentication
// policy: on the first 401-equivalent response it refreshes the token and
// retries the same call exactly once.
func (c *Client) do(ctx context.Context, operation, method, path string, payload []byte) ([]byte, error) {
	for attempt := 0; ; attempt++ {
		var reqBody io.Reader
		if payload != nil {
			reqBody = bytes.NewReader(payload)
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s request: %w", operation, err)
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		req.Header.Set("Authorization", "Bearer "+c.currentToken())

		resp, err := c.httpClient.Do(req)
		if err != nil {
			metrics.ControlPlaneRequests.WithLabelValues(operation, "error").Inc()
			return nil, fmt.Errorf("%s request failed: %w", operation, err)
		}

		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusOK:
			metrics.ControlPlaneRequests.WithLabelValues(operation, "ok").Inc()
			return body, nil

		case resp.StatusCode == http.StatusUnauthorized && attempt == 0:
			metrics.Reauthentications.Inc()
			c.log.Debug("Bearer token rejected, re-authenticating", "operation", operation)
			if err := c.Authenticate(ctx); err != nil {
				metrics.ControlPlaneRequests.WithLabelValues(operation, "auth_error").Inc()
				return nil, err
			}

		case resp.StatusCode == http.StatusUnauthorized:
			metrics.ControlPlaneRequests.WithLabelValues(operation, "auth_error").Inc()
			return nil, &interfaces.AuthError{StatusCode: resp.StatusCode, Body: string(body)}

		default:
			metrics.ControlPlaneRequests.WithLabelValues(operation, "api_error").Inc()
			return nil, &interfaces.APIError{StatusCode: resp.StatusCode, Body: string(body)}
		}
	}
}

// ListNodes fetches the full node list. The result is never cached: every
// call is a fresh fetch.
func (c *Client) ListNodes(ctx context.Context) ([]interfaces.NodeRecord, error) {
	body, err := c.do(ctx, "list nodes", http.MethodGet, "/api/nodes", nil)
	if err != nil {
		return nil, err
	}

	var nodes []interfaces.NodeRecord
	if err := json.Unmarshal(body, &nodes); err != nil {
		return nil, fmt.Errorf("failed to parse node list: %w", err)
	}
	return nodes, nil
}

// The control plane expects add_as_new_host as a string flag, not a JSON
// boolean.
type createNodePayload struct {
	AddAsNewHost     string `json:"add_as_new_host"`
	Address          string `json:"address"`
	APIPort          uint16 `json:"api_port"`
	Name             string `json:"name"`
	Port             uint16 `json:"port"`
	UsageCoefficient int    `json:"usage_coefficient"`
}

// CreateNode registers a node with the control plane and returns the created
// record.
func (c *Client) CreateNode(ctx context.Context, req interfaces.CreateNodeRequest) (interfaces.NodeRecord, error) {
	addAsNewHost := "false"
	if req.AddAsNewHost {
		addAsNewHost = "true"
	}

	payload, err := json.Marshal(createNodePayload{
		AddAsNewHost:     addAsNewHost,
		Address:          req.Address,
		APIPort:          req.APIPort,
		Name:             req.Name,
		Port:             req.Port,
		UsageCoefficient: 1,
	})
	if err != nil {
		return interfaces.NodeRecord{}, fmt.Errorf("failed to marshal node payload: %w", err)
	}

	body, err := c.do(ctx, "create node", http.MethodPost, "/api/node", payload)
	if err != nil {
		return interfaces.NodeRecord{}, err
	}

	var node interfaces.NodeRecord
	if err := json.Unmarshal(body, &node); err != nil {
		return interfaces.NodeRecord{}, fmt.Errorf("failed to parse created node: %w", err)
	}
	return node, nil
}

// DeleteNode removes the node with the given id from the control plane.
func (c *Client) DeleteNode(ctx context.Context, id int64) error {
	_, err := c.do(ctx, "delete node", http.MethodDelete, fmt.Sprintf("/api/node/%d", id), nil)
	return err
}
