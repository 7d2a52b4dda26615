// Package interfaces defines the core types and contracts shared between the
// provisioning, control-plane and workflow components without implementation
// details.
package interfaces

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// NodeCredentials holds the connection credentials for a target host. The
// password is transient session state: it is never persisted and must never
// appear in logs.
type NodeCredentials struct {
	Host     string
	Password string
}

// PortPair is the pair of ports a relay node is fronted by: the service port
// clients connect to and the management API port the control plane uses.
type PortPair struct {
	ServicePort uint16
	APIPort     uint16
}

// DefaultPortPair is the port pair offered when the operator does not enter
// one manually.
var DefaultPortPair = PortPair{ServicePort: 8443, APIPort: 8880}

// ParsePortPair parses free-form operator input in the form
// "servicePort:apiPort". Anything that is not exactly two colon-separated
// integers in TCP port range is a ValidationError.
func ParsePortPair(s string) (PortPair, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return PortPair{}, &ValidationError{Field: "ports", Reason: "expected format service_port:api_port"}
	}

	servicePort, err := parsePort(strings.TrimSpace(parts[0]))
	if err != nil {
		return PortPair{}, &ValidationError{Field: "ports", Reason: err.Error()}
	}

	apiPort, err := parsePort(strings.TrimSpace(parts[1]))
	if err != nil {
		return PortPair{}, &ValidationError{Field: "ports", Reason: err.Error()}
	}

	return PortPair{ServicePort: servicePort, APIPort: apiPort}, nil
}

func parsePort(s string) (uint16, error) {
	port, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid port %q", s)
	}
	if port == 0 {
		return 0, fmt.Errorf("port must be non-zero")
	}
	return uint16(port), nil
}

// String renders the pair back in input form.
func (p PortPair) String() string {
	return fmt.Sprintf("%d:%d", p.ServicePort, p.APIPort)
}

// ProvisioningResult is the immutable outcome of a single provisioning
// attempt. On failure Error carries a human-readable reason, including the
// remote stderr for failed script steps.
type ProvisioningResult struct {
	Success     bool
	Error       string
	Host        string
	ServicePort uint16
	APIPort     uint16
}

// NodeStatus is the control plane's view of a node's health.
type NodeStatus string

const (
	NodeStatusActive   NodeStatus = "active"
	NodeStatusInactive NodeStatus = "inactive"
)

// NodeRecord is a node as reported by the control plane. Records are owned by
// the control plane and read-only to this system except for create/delete;
// they are never cached across calls.
type NodeRecord struct {
	ID      int64      `json:"id"`
	Name    string     `json:"name"`
	Address string     `json:"address"`
	Port    int        `json:"port"`
	APIPort int        `json:"api_port"`
	Status  NodeStatus `json:"status"`
}

// IsActive reports whether the control plane considers the node healthy.
func (n NodeRecord) IsActive() bool {
	return n.Status == NodeStatusActive
}

// CreateNodeRequest is the payload for registering a freshly provisioned node
// with the control plane.
type CreateNodeRequest struct {
	Name         string
	Address      string
	Port         uint16
	APIPort      uint16
	AddAsNewHost bool
}

// WorkflowState is the current position of an interactive node-creation
// session. Exactly one state is active per session.
type WorkflowState string

const (
	StateCollectingHost     WorkflowState = "collecting_host"
	StateCollectingPassword WorkflowState = "collecting_password"
	StateCollectingPorts    WorkflowState = "collecting_ports"
	StateExecuting          WorkflowState = "executing"
	StateDone               WorkflowState = "done"
)

// Provisioner installs and starts the relay agent on a remote host. The call
// is synchronous and may block for minutes; it never panics and reports all
// failures through the result.
type Provisioner interface {
	SetupNode(ctx context.Context, creds NodeCredentials, ports PortPair) ProvisioningResult
}

// ControlPlane is the authenticated client surface of the central manager
// service that owns the node list.
type ControlPlane interface {
	ListNodes(ctx context.Context) ([]NodeRecord, error)
	CreateNode(ctx context.Context, req CreateNodeRequest) (NodeRecord, error)
	DeleteNode(ctx context.Context, id int64) error
}

// GeoResolver maps an address to a human-readable location label. It never
// fails: lookups that cannot be served return a sentinel label instead.
type GeoResolver interface {
	Locate(ctx context.Context, ip string) string
}
