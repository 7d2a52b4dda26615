package httpserver

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/relayops/node-provisioner/interfaces"
	"github.com/relayops/node-provisioner/nodeops"
	"github.com/relayops/node-provisioner/workflow"
)

// maxBodySize is the maximum allowed request body size.
const maxBodySize = 64 * 1024

// Handler processes operator API requests. It owns no node state of its own:
// workflow sessions live in the workflow manager and node records in the
// control plane.
//
// Progress messages emitted while provisioning runs in the background are
// buffered per session and drained by the next poll of the session resource.
type Handler struct {
	workflow *workflow.Manager
	ops      *nodeops.Service
	log      *slog.Logger

	mu      sync.Mutex
	pending map[string][]string
}

// NewHandler creates an API handler around the workflow manager and node
// operations service. Register Notify as the manager's notifier so that
// background progress reaches polling clients.
func NewHandler(wf *workflow.Manager, ops *nodeops.Service, log *slog.Logger) *Handler {
	return &Handler{
		workflow: wf,
		ops:      ops,
		log:      log,
		pending:  make(map[string][]string),
	}
}

// Notify buffers a progress message for the session. Safe for concurrent
// use; called from provisioning goroutines.
func (h *Handler) Notify(sessionID, message string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pending[sessionID] = append(h.pending[sessionID], message)
}

func (h *Handler) drainPending(sessionID string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	messages := h.pending[sessionID]
	delete(h.pending, sessionID)
	return messages
}

type sessionResponse struct {
	State    string   `json:"state"`
	Messages []string `json:"messages"`
}

type inputRequest struct {
	Text         string `json:"text"`
	DefaultPorts bool   `json:"default_ports,omitempty"`
}

// HandleStartSession begins a node-creation dialog for the session id.
func (h *Handler) HandleStartSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "session_id")
	messages := h.workflow.Start(sessionID)
	h.writeSession(w, sessionID, messages)
}

// HandleSessionInput feeds one operator input into the session's state
// machine.
func (h *Handler) HandleSessionInput(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "session_id")

	var req inputRequest
	body := http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ev := workflow.Event{Kind: workflow.EventInput, Text: req.Text}
	if req.DefaultPorts {
		ev = workflow.Event{Kind: workflow.EventDefaultPorts}
	}

	messages, err := h.workflow.Handle(sessionID, ev)
	if err != nil {
		h.writeError(w, http.StatusNotFound, err.Error())
		return
	}
	h.writeSession(w, sessionID, messages)
}

// HandleSessionCancel aborts the session's dialog. Cancellation during
// execution is rejected by the state machine itself.
func (h *Handler) HandleSessionCancel(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "session_id")

	messages, err := h.workflow.Handle(sessionID, workflow.Event{Kind: workflow.EventCancel})
	if err != nil {
		h.writeError(w, http.StatusNotFound, err.Error())
		return
	}
	h.writeSession(w, sessionID, messages)
}

// HandleSessionState reports the session's state and drains buffered
// progress messages. Clients poll this while provisioning runs.
func (h *Handler) HandleSessionState(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "session_id")
	h.writeSession(w, sessionID, nil)
}

func (h *Handler) writeSession(w http.ResponseWriter, sessionID string, messages []string) {
	state, active := h.workflow.State(sessionID)
	if !active {
		state = interfaces.StateDone
	}

	h.writeJSON(w, http.StatusOK, sessionResponse{
		State:    string(state),
		Messages: append(messages, h.drainPending(sessionID)...),
	})
}

// HandleListNodes returns the current node list.
func (h *Handler) HandleListNodes(w http.ResponseWriter, r *http.Request) {
	nodes, err := h.ops.List(r.Context())
	if err != nil {
		h.writeOpError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, nodes)
}

// HandleInspectNode returns a single node, fetched fresh.
func (h *Handler) HandleInspectNode(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "node_id"), 10, 64)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid node id")
		return
	}

	node, err := h.ops.Inspect(r.Context(), id)
	if err != nil {
		h.writeOpError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, node)
}

type deletedNodeResponse struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Address string `json:"address"`
}

// HandleDeleteNode deletes a node and reports the deleted identity, not just
// the id.
func (h *Handler) HandleDeleteNode(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "node_id"), 10, 64)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid node id")
		return
	}

	node, err := h.ops.Delete(r.Context(), id)
	if err != nil {
		h.writeOpError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, deletedNodeResponse{ID: node.ID, Name: node.Name, Address: node.Address})
}

// HandleStats returns fleet usage statistics.
func (h *Handler) HandleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.ops.Stats(r.Context())
	if err != nil {
		h.writeOpError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) writeOpError(w http.ResponseWriter, err error) {
	var authErr *interfaces.AuthError
	var apiErr *interfaces.APIError

	switch {
	case errors.Is(err, interfaces.ErrNodeNotFound):
		h.writeError(w, http.StatusNotFound, "node not found")
	case errors.As(err, &authErr), errors.As(err, &apiErr):
		h.log.Error("Control plane request failed", "err", err)
		h.writeError(w, http.StatusBadGateway, err.Error())
	default:
		h.log.Error("Operation failed", "err", err)
		h.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error("Failed to encode response", "err", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
