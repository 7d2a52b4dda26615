package controlplane

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relayops/node-provisioner/interfaces"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// controlPlaneStub simulates the manager service: a form-encoded token
// endpoint plus bearer-authenticated node endpoints.
type controlPlaneStub struct {
	t          *testing.T
	token      string
	authCalls  int
	nodeCalls  int
	rejectAll  bool
	nodes      []interfaces.NodeRecord
	lastCreate map[string]any
}

func (s *controlPlaneStub) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/admin/token", func(w http.ResponseWriter, r *http.Request) {
		s.authCalls++
		require.NoError(s.t, r.ParseForm())
		if r.PostForm.Get("username") != "admin" || r.PostForm.Get("password") != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"detail":"invalid credentials"}`))
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"access_token": s.token})
	})

	authed := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			s.nodeCalls++
			if s.rejectAll || r.Header.Get("Authorization") != "Bearer "+s.token {
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"detail":"Not authenticated"}`))
				return
			}
			next(w, r)
		}
	}

	mux.HandleFunc("GET /api/nodes", authed(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(s.nodes)
	}))

	mux.HandleFunc("POST /api/node", authed(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(s.t, json.NewDecoder(r.Body).Decode(&s.lastCreate))
		json.NewEncoder(w).Encode(interfaces.NodeRecord{
			ID:      7,
			Name:    s.lastCreate["name"].(string),
			Address: s.lastCreate["address"].(string),
		})
	}))

	mux.HandleFunc("DELETE /api/node/{id}", authed(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"detail": "deleted"})
	}))

	return mux
}

func newStubClient(t *testing.T) (*Client, *controlPlaneStub) {
	stub := &controlPlaneStub{t: t, token: "tok-1"}
	srv := httptest.NewServer(stub.handler())
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, "admin", "secret", discardLogger()), stub
}

func TestListNodesReauthenticatesOnce(t *testing.T) {
	client, stub := newStubClient(t)
	stub.nodes = []interfaces.NodeRecord{
		{ID: 1, Name: "Berlin (Germany)", Address: "203.0.113.5", Port: 8443, APIPort: 8880, Status: "active"},
	}

	// First call carries no token: exactly one 401, one authentication, one
	// successful retry.
	nodes, err := client.ListNodes(context.Background())
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	assert.Equal(t, "Berlin (Germany)", nodes[0].Name)
	assert.Equal(t, 1, stub.authCalls)
	assert.Equal(t, 2, stub.nodeCalls)

	// The token is cached; no further authentication.
	_, err = client.ListNodes(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stub.authCalls)
}

func TestRepeatedRejectionIsAuthErrorNotRecursion(t *testing.T) {
	client, stub := newStubClient(t)
	stub.rejectAll = true

	_, err := client.ListNodes(context.Background())
	require.Error(t, err)

	var authErr *interfaces.AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Contains(t, authErr.Body, "Not authenticated")

	// One initial call, one retry: the re-authentication cycle is bounded.
	assert.Equal(t, 2, stub.nodeCalls)
	assert.Equal(t, 1, stub.authCalls)
}

func TestAuthenticateFailure(t *testing.T) {
	stub := &controlPlaneStub{t: t, token: "tok-1"}
	srv := httptest.NewServer(stub.handler())
	t.Cleanup(srv.Close)

	client := NewClient(srv.URL, "admin", "wrong", discardLogger())
	err := client.Authenticate(context.Background())
	require.Error(t, err)

	var authErr *interfaces.AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Contains(t, authErr.Body, "invalid credentials")
}

func TestCreateNodePayload(t *testing.T) {
	client, stub := newStubClient(t)

	node, err := client.CreateNode(context.Background(), interfaces.CreateNodeRequest{
		Name:         "Berlin (Germany)",
		Address:      "203.0.113.5",
		Port:         8443,
		APIPort:      8880,
		AddAsNewHost: true,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(7), node.ID)

	assert.Equal(t, "true", stub.lastCreate["add_as_new_host"])
	assert.Equal(t, "203.0.113.5", stub.lastCreate["address"])
	assert.Equal(t, float64(8880), stub.lastCreate["api_port"])
	assert.Equal(t, "Berlin (Germany)", stub.lastCreate["name"])
	assert.Equal(t, float64(8443), stub.lastCreate["port"])
	assert.Equal(t, float64(1), stub.lastCreate["usage_coefficient"])
}

func TestDeleteNode(t *testing.T) {
	client, _ := newStubClient(t)
	require.NoError(t, client.DeleteNode(context.Background(), 7))
}

func TestAPIErrorCarriesBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"detail":"Node already exists"}`))
	}))
	t.Cleanup(srv.Close)

	client := NewClient(srv.URL, "admin", "secret", discardLogger())
	_, err := client.CreateNode(context.Background(), interfaces.CreateNodeRequest{Name: "x", Address: "203.0.113.5"})

	var apiErr *interfaces.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusConflict, apiErr.StatusCode)
	assert.Contains(t, apiErr.Body, "Node already exists")
}
