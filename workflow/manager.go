package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/relayops/node-provisioner/interfaces"
	"github.com/relayops/node-provisioner/metrics"
	"github.com/relayops/node-provisioner/remote"
)

const probeTimeout = 5 * time.Second

// Notifier receives incremental progress messages for a session while
// provisioning runs in the background. Front-ends use it to keep the
// operator informed instead of blocking silently for minutes.
type Notifier func(sessionID, message string)

// Manager owns the per-session workflow state and applies events to it. Each
// operator session holds exactly one state machine instance, created on
// Start and destroyed on completion, cancellation or unrecoverable error.
//
// Provisioning runs in its own goroutine per session so one long-running
// setup never blocks handling of other operators' events.
type Manager struct {
	provisioner  interfaces.Provisioner
	controlPlane interfaces.ControlPlane
	geo          interfaces.GeoResolver
	log          *slog.Logger

	// probe is the advisory SSH reachability check, see SetReachabilityProbe.
	probe func(host string) bool

	notify Notifier

	mu       sync.Mutex
	sessions map[string]*session
}

type session struct {
	id        string
	state     interfaces.WorkflowState
	data      Data
	createdAt time.Time
}

// NewManager creates a workflow manager wired to the given collaborators.
func NewManager(provisioner interfaces.Provisioner, controlPlane interfaces.ControlPlane, geo interfaces.GeoResolver, log *slog.Logger) *Manager {
	m := &Manager{
		provisioner:  provisioner,
		controlPlane: controlPlane,
		geo:          geo,
		log:          log,
		sessions:     make(map[string]*session),
		probe: func(host string) bool {
			return remote.Reachable(host, 22, probeTimeout)
		},
	}
	m.notify = func(sessionID, message string) {
		log.Info("Workflow progress", "session", sessionID, "message", message)
	}
	return m
}

// SetNotifier replaces the progress sink. Must be called before any session
// starts.
func (m *Manager) SetNotifier(n Notifier) {
	m.notify = n
}

// SetReachabilityProbe replaces the advisory SSH reachability check. Passing
// a probe that always reports true disables the check.
func (m *Manager) SetReachabilityProbe(probe func(host string) bool) {
	m.probe = probe
}

// Start begins a node-creation dialog for the session, replacing any
// previous one, and returns the first prompt.
func (m *Manager) Start(sessionID string) []string {
	m.mu.Lock()
	if _, exists := m.sessions[sessionID]; !exists {
		metrics.ActiveWorkflows.Inc()
	}
	m.sessions[sessionID] = &session{
		id:        sessionID,
		state:     interfaces.StateCollectingHost,
		createdAt: time.Now(),
	}
	m.mu.Unlock()

	m.log.Info("Workflow started", "session", sessionID, "action", "configure_node")
	return []string{promptHost}
}

// State reports the current state of a session, if one is active.
func (m *Manager) State(sessionID string) (interfaces.WorkflowState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.sessions[sessionID]
	if !ok {
		return "", false
	}
	return sess.state, true
}

// Handle applies one operator event to the session's state machine and
// returns the messages to show the operator.
func (m *Manager) Handle(sessionID string, ev Event) ([]string, error) {
	m.mu.Lock()
	sess, ok := m.sessions[sessionID]
	if !ok {
		m.mu.Unlock()
		return nil, fmt.Errorf("no active node-creation session")
	}

	nextState, nextData, effects := Transition(sess.state, sess.data, ev)
	sess.state = nextState
	sess.data = nextData
	data := nextData
	m.mu.Unlock()

	var messages []string
	for _, effect := range effects {
		switch effect.Kind {
		case EffectPrompt, EffectReject:
			messages = append(messages, effect.Message)

		case EffectProbeSSH:
			m.log.Info("Host accepted", "session", sessionID, "action", "host_entered", "host", effect.Host)
			if !m.probe(effect.Host) {
				messages = append(messages, msgUnreachable)
			}

		case EffectCancelled:
			m.clearSession(sessionID)
			m.log.Info("Workflow cancelled", "session", sessionID, "action", "node_setup_cancelled")
			messages = append(messages, effect.Message)

		case EffectProvision:
			m.log.Info("Provisioning started", "session", sessionID, "action", "node_setup_started",
				"host", data.Host, "ports", data.Ports.String())
			messages = append(messages, "Starting node setup, this can take several minutes...")
			go m.execute(sessionID, data)
		}
	}
	return messages, nil
}

// execute runs the provisioning transaction to completion: remote setup,
// then geo naming and control-plane registration. Every failure path reports
// to the operator and clears the session so they are never stuck.
func (m *Manager) execute(sessionID string, data Data) {
	defer m.clearSession(sessionID)

	// The dialog's request context is long gone by now; provisioning owns
	// its own lifetime.
	ctx := context.Background()
	start := time.Now()

	creds := interfaces.NodeCredentials{Host: data.Host, Password: data.Password}
	result := m.provisioner.SetupNode(ctx, creds, data.Ports)
	metrics.ProvisioningDuration.Observe(time.Since(start).Seconds())

	if !result.Success {
		metrics.ProvisioningAttempts.WithLabelValues("failure").Inc()
		m.log.Error("Provisioning failed", "session", sessionID, "action", "node_setup_failed",
			"host", data.Host, "reason", result.Error)
		m.notify(sessionID, fmt.Sprintf("Server setup failed: %s", result.Error))
		return
	}

	m.notify(sessionID, "Server configured successfully!")
	m.notify(sessionID, "Registering node with the control plane...")

	name := m.geo.Locate(ctx, data.Host)
	node, err := m.controlPlane.CreateNode(ctx, interfaces.CreateNodeRequest{
		Name:         name,
		Address:      data.Host,
		Port:         data.Ports.ServicePort,
		APIPort:      data.Ports.APIPort,
		AddAsNewHost: true,
	})
	if err != nil {
		metrics.ProvisioningAttempts.WithLabelValues("register_failed").Inc()
		m.log.Error("Node registration failed", "session", sessionID, "action", "node_register_failed",
			"host", data.Host, "err", err)
		m.notify(sessionID, fmt.Sprintf("Error: %s", err))
		return
	}

	metrics.ProvisioningAttempts.WithLabelValues("success").Inc()
	m.log.Info("Node added", "session", sessionID, "action", "node_setup_completed",
		"node", node.ID, "name", name, "host", data.Host)
	m.notify(sessionID, fmt.Sprintf(
		"Node added successfully!\nName: %s\nAddress: %s\nPort: %d\nAPI port: %d",
		name, data.Host, data.Ports.ServicePort, data.Ports.APIPort))
}

func (m *Manager) clearSession(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[sessionID]; ok {
		delete(m.sessions, sessionID)
		metrics.ActiveWorkflows.Dec()
	}
}
